package main

import (
	"github.com/nvandessel/equilibria/internal/mcp"
	"github.com/spf13/cobra"
)

func newMCPServerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp-server",
		Short: "Serve simulations over MCP (stdio)",
		Long: `Start a Model Context Protocol server on stdin/stdout.

Tools: equilibria_run, equilibria_list, equilibria_show, equilibria_games.
Resources: equilibria://games and equilibria://games/{name}.

Example client configuration:
  {"command": "equilibria", "args": ["mcp-server"]}`,
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := loadSettings(cmd)
			if err != nil {
				return err
			}

			server, err := mcp.NewServer(&mcp.Config{
				Name:     "equilibria",
				Version:  version,
				Settings: settings,
				Logger:   newLogger(cmd, settings),
			})
			if err != nil {
				return err
			}

			return server.Run(cmd.Context())
		},
	}
}
