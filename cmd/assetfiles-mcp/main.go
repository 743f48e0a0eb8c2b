// Command assetfiles-mcp exposes the managed root as Model Context Protocol
// tools over stdio.
//
// It runs the same file operations and auth gate as the REST server, reading
// the same configuration file. Logs go to stderr since stdout carries the
// protocol.
package main

import (
	"os"

	"github.com/mark3labs/mcp-go/server"
	"github.com/marmos91/assetfiles/internal/logger"
	"github.com/marmos91/assetfiles/pkg/config"
	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	var (
		configPath string
		token      string
	)

	cmd := &cobra.Command{
		Use:           "assetfiles-mcp",
		Short:         "Serve the managed root as MCP tools over stdio",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			if err := logger.Configure(logger.Options{
				Level:  cfg.Logging.Level,
				Format: cfg.Logging.Format,
				Output: "stderr",
			}); err != nil {
				return err
			}

			gate, err := config.CreateGate(&cfg.Auth)
			if err != nil {
				return err
			}
			ops, err := config.CreateOperations(&cfg.Storage)
			if err != nil {
				return err
			}

			if token == "" {
				token = os.Getenv("ASSETFILES_TOKEN")
			}

			s := server.NewMCPServer("assetfiles", version, server.WithToolCapabilities(false))
			newToolset(ops, gate, token).register(s)

			logger.Info("MCP server ready on stdio, root=%s", ops.Root())
			return server.ServeStdio(s)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to config file")
	cmd.Flags().StringVar(&token, "token", "", "Bearer token used for every tool call (default $ASSETFILES_TOKEN)")

	if err := cmd.Execute(); err != nil {
		logger.Error("%v", err)
		os.Exit(1)
	}
}
