package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/marmos91/assetfiles/pkg/audit"
	"github.com/marmos91/assetfiles/pkg/config"
	"github.com/marmos91/assetfiles/pkg/gc"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

func auditCommand(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Inspect or prune a persistent audit trail",
		Long: `Inspect or prune the audit trail configured in the audit section.

Only the badger store outlives the server process. The badger database is
locked while a server holds it open, so run these commands against a stopped
server.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cmd.AddCommand(auditRecentCommand(configPath), auditPruneCommand(configPath))
	return cmd
}

func openAuditStore(cmd *cobra.Command, configPath string) (audit.Store, *config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	if !cfg.Audit.Enabled {
		return nil, nil, fmt.Errorf("audit is disabled in the configuration")
	}
	if cfg.Audit.Type == "memory" {
		pterm.Warning.Println("The memory audit store starts empty, nothing recorded by a server is visible here")
	}

	store, err := config.CreateAuditStore(cmd.Context(), &cfg.Audit)
	if err != nil {
		return nil, nil, err
	}
	return store, cfg, nil
}

func auditRecentCommand(configPath *string) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "recent",
		Short: "Show the most recent audit entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, _, err := openAuditStore(cmd, *configPath)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			entries, err := store.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				pterm.Info.Println("No audit entries")
				return nil
			}

			data := pterm.TableData{{"Time", "Identity", "Operation", "Requested", "Succeeded", "Targets"}}
			for _, e := range entries {
				identity := e.Identity
				if identity == "" {
					identity = "-"
				}
				data = append(data, []string{
					e.Time.Local().Format(time.DateTime),
					identity,
					e.Operation,
					fmt.Sprint(e.Requested),
					fmt.Sprint(e.Succeeded),
					strings.Join(e.Targets, ", "),
				})
			}
			return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", audit.DefaultRecentLimit, "Maximum number of entries to show")
	return cmd
}

func auditPruneCommand(configPath *string) *cobra.Command {
	var (
		olderThan time.Duration
		dryRun    bool
	)

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete audit entries older than the retention window",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, cfg, err := openAuditStore(cmd, *configPath)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			retention := cfg.Audit.Retention
			if cmd.Flags().Changed("older-than") {
				retention = olderThan
			}
			if retention <= 0 {
				return fmt.Errorf("no retention configured, pass --older-than")
			}

			collector, err := gc.NewCollector(store, gc.Config{
				Enabled:   true,
				Retention: retention,
				DryRun:    dryRun,
			})
			if err != nil {
				return err
			}

			stats, err := collector.RunOnce(cmd.Context())
			if err != nil {
				return err
			}
			pterm.Success.Println("Audit retention completed: " + stats.Summary())
			return nil
		},
	}

	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "Prune entries older than this (default audit.retention)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Report the cutoff without deleting anything")
	return cmd
}
