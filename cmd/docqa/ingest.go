package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [file ...]",
	Short: "Copy files into the data folder and rebuild the index",
	Long: `ingest copies the given PDF, DOCX or TXT files into the data folder
and rebuilds the index over every document stored there. Without arguments
it only rebuilds.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		svc, closeStore, err := buildService(ctx, cfg, logger, false)
		if err != nil {
			return err
		}
		defer closeStore()

		for _, p := range args {
			if err := copyIn(svc.Docs.Save, p); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", color.GreenString("stored"), filepath.Base(p))
		}

		report, err := svc.Ingest(ctx)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, color.GreenString("File uploaded and processed successfully"))
		fmt.Fprintf(out, "%d documents, %d chunks in %s\n", report.Documents, report.Chunks, report.Duration.Round(time.Millisecond))
		if report.Summary != "" {
			fmt.Fprintf(out, "%s %s\n", color.New(color.Bold).Sprint("Summary:"), report.Summary)
		}
		return nil
	},
}

func copyIn(save func(string, io.Reader) (string, error), path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := save(filepath.Base(path), f); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}
