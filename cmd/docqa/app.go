package main

import (
	"context"
	"fmt"
	"net"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"docqa/internal/httpapi"
)

var appCmd = &cobra.Command{
	Use:         "app",
	Short:       "Run the HTTP API and the terminal chat in one process",
	Args:        cobra.NoArgs,
	Annotations: map[string]string{"interactive": "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		svc, closeStore, err := buildService(ctx, cfg, logger, true)
		if err != nil {
			return err
		}
		defer closeStore()

		ln, err := net.Listen("tcp", cfg.Server.Addr)
		if err != nil {
			return fmt.Errorf("listening on %s: %w", cfg.Server.Addr, err)
		}
		gin.SetMode(gin.ReleaseMode)
		srv := httpapi.New(svc, cfg.Server, logger)
		done := make(chan error, 1)
		go func() { done <- srv.Serve(ctx, ln) }()

		port := ln.Addr().(*net.TCPAddr).Port
		chatErr := runChat(fmt.Sprintf("http://127.0.0.1:%d", port))

		cancel()
		if err := <-done; err != nil {
			logger.Error("server stopped with error", zap.Error(err))
			if chatErr == nil {
				return err
			}
		}
		return chatErr
	},
}
