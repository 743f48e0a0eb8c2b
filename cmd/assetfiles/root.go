package main

import (
	"github.com/spf13/cobra"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

func newRootCommand() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:           "assetfiles",
		Short:         "assetfiles serves a single directory over an authenticated HTTP API",
		Long:          `assetfiles manages the files of one root directory: list, upload, rename and delete them over a token-protected REST API, with an audit trail and a websocket change stream.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file (default $XDG_CONFIG_HOME/assetfiles/config.yaml)")

	rootCmd.AddCommand(
		serveCommand(&configPath),
		initCommand(&configPath),
		tokensCommand(&configPath),
		auditCommand(&configPath),
		versionCommand(),
	)

	return rootCmd
}

func versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Printf("assetfiles %s\n", version)
		},
	}
}
