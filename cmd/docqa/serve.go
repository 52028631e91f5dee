package main

import (
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"docqa/internal/httpapi"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		svc, closeStore, err := buildService(ctx, cfg, logger, true)
		if err != nil {
			return err
		}
		defer closeStore()

		if !verbose {
			gin.SetMode(gin.ReleaseMode)
		}
		return httpapi.New(svc, cfg.Server, logger).Run(ctx)
	},
}
