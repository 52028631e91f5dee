package main

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"docqa/internal/apiclient"
	"docqa/internal/config"
	"docqa/internal/tui"
)

var chatCmd = &cobra.Command{
	Use:         "chat",
	Short:       "Open the terminal chat against a running server",
	Args:        cobra.NoArgs,
	Annotations: map[string]string{"interactive": "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runChat(cfg.Client.APIURL)
	},
}

func runChat(apiURL string) error {
	client := apiclient.New(apiURL, config.Duration(cfg.Client.TimeoutSecs))
	m := tui.New(client, config.Duration(cfg.Client.TimeoutSecs))
	_, err := tea.NewProgram(m, tea.WithAltScreen()).Run()
	return err
}
