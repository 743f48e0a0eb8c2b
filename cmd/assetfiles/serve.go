package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/marmos91/assetfiles/internal/logger"
	"github.com/marmos91/assetfiles/pkg/config"
	"github.com/marmos91/assetfiles/pkg/server"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

func serveCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:     "serve",
		Aliases: []string{"start"},
		Short:   "Start the API server",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), *configPath)
		},
	}
}

func runServe(parent context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if err := logger.Configure(logger.Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}); err != nil {
		return fmt.Errorf("failed to configure logger: %w", err)
	}
	gin.SetMode(gin.ReleaseMode)

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	pterm.DefaultSection.Println("assetfiles " + version)
	pterm.DefaultBasicText.Println("  Root:", cfg.Storage.Root)
	pterm.DefaultBasicText.Println("  Listen:", fmt.Sprintf("%s:%d", cfg.Adapters.REST.Host, cfg.Adapters.REST.Port))

	metricsResult := config.InitializeMetrics(cfg)

	gate, err := config.CreateGate(&cfg.Auth)
	if err != nil {
		return err
	}

	ops, err := config.CreateOperations(&cfg.Storage)
	if err != nil {
		return err
	}

	auditStore, err := config.CreateAuditStore(ctx, &cfg.Audit)
	if err != nil {
		return err
	}
	if auditStore != nil {
		defer func() {
			if err := auditStore.Close(); err != nil {
				logger.Warn("Failed to close audit store: %v", err)
			}
		}()
	}

	collector, err := config.CreateCollector(auditStore, &cfg.Audit)
	if err != nil {
		return err
	}
	if collector != nil {
		if err := collector.Start(); err != nil {
			return fmt.Errorf("failed to start audit retention: %w", err)
		}
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := collector.Stop(stopCtx); err != nil {
				logger.Warn("Audit retention did not stop cleanly: %v", err)
			}
		}()
	}

	hub := config.CreateEventHub(&cfg.Events)
	if hub != nil {
		defer hub.Close()
	}

	adapters, err := config.CreateAdapters(cfg, config.Services{
		Gate:       gate,
		Operations: ops,
		Audit:      auditStore,
		Events:     hub,
		Metrics:    metricsResult.APIMetrics,
	})
	if err != nil {
		return err
	}

	srv := server.New(cfg.Server.ShutdownTimeout)
	for _, a := range adapters {
		if err := srv.AddAdapter(a); err != nil {
			return err
		}
	}

	if metricsResult.Enabled() {
		go func() {
			if err := metricsResult.Server.Start(ctx); err != nil {
				logger.Error("Metrics server error: %v", err)
			}
		}()
	}

	logger.Info("Server is running. Press Ctrl+C to stop.")
	if err := srv.Serve(ctx); err != nil {
		return err
	}

	logger.Info("Server stopped gracefully")
	return nil
}
