package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"docqa/internal/apiclient"
	"docqa/internal/config"
	"docqa/internal/httpapi"
)

var askRemote bool

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Answer one question about the uploaded documents",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		question := strings.Join(args, " ")

		if askRemote {
			client := apiclient.New(cfg.Client.APIURL, config.Duration(cfg.Client.TimeoutSecs))
			resp, err := client.Query(ctx, question)
			if err != nil {
				return err
			}
			printAnswer(cmd.OutOrStdout(), resp.Response, resp.Sources)
			return nil
		}

		svc, closeStore, err := buildService(ctx, cfg, logger, true)
		if err != nil {
			return err
		}
		defer closeStore()
		answer, err := svc.Query(ctx, question)
		if err != nil {
			return err
		}
		sources := make([]httpapi.Source, len(answer.Sources))
		for i, s := range answer.Sources {
			sources[i] = httpapi.Source{Document: s.Chunk.Source, ChunkID: s.Chunk.ChunkID, Score: s.Score}
		}
		printAnswer(cmd.OutOrStdout(), answer.Response, sources)
		return nil
	},
}

func init() {
	askCmd.Flags().BoolVar(&askRemote, "remote", false, "Ask the server at client.api_url instead of the local index")
}

func printAnswer(w io.Writer, response string, sources []httpapi.Source) {
	fmt.Fprintln(w, color.CyanString(response))
	if len(sources) == 0 {
		return
	}
	faint := color.New(color.Faint)
	fmt.Fprintln(w)
	for _, s := range sources {
		faint.Fprintf(w, "  %s (%s, score %.3f)\n", s.Document, s.ChunkID, s.Score)
	}
}
