package main

import (
	"fmt"

	"github.com/marmos91/assetfiles/pkg/config"
	"github.com/marmos91/assetfiles/pkg/tokens"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

func tokensCommand(configPath *string) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:     "tokens",
		Aliases: []string{"t"},
		Short:   "Inspect the identity document",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cmd.PersistentFlags().StringVar(&file, "file", "", "Identity document to read (default auth.tokens_file)")

	// resolve picks the --file flag over the configured document.
	resolve := func() (string, error) {
		if file != "" {
			return file, nil
		}
		cfg, err := config.Load(*configPath)
		if err != nil {
			return "", err
		}
		if cfg.Auth.TokensFile == "" {
			return "", fmt.Errorf("auth.tokens_file is not configured")
		}
		return cfg.Auth.TokensFile, nil
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "check",
		Short: "Validate the identity document",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := resolve()
			if err != nil {
				return err
			}
			table, err := tokens.LoadStrict(path)
			if err != nil {
				return err
			}
			if table.Empty() {
				pterm.Warning.Printf("%s contains no usable identities, authentication would be disabled\n", path)
				return nil
			}
			pterm.Success.Printf("%s: %d identities\n", path, table.Len())
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List identity names (secrets are never printed)",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := resolve()
			if err != nil {
				return err
			}
			table, err := tokens.LoadStrict(path)
			if err != nil {
				return err
			}

			data := pterm.TableData{{"#", "Identity"}}
			for i, name := range table.Names() {
				data = append(data, []string{fmt.Sprint(i + 1), name})
			}
			return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
		},
	})

	return cmd
}
