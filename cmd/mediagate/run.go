package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/opencast/mediagate/internal/config"
	"github.com/opencast/mediagate/internal/gateway"
	"github.com/opencast/mediagate/internal/jwks"
	"github.com/opencast/mediagate/internal/log"
)

func newRunCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the gateway and serve requests until terminated",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, path, err := resolveAndLoad(*configPath)
			if err != nil {
				return err
			}
			return runGateway(cmd.Context(), cfg, path)
		},
	}
}

func runGateway(parent context.Context, cfg config.Config, configFilePath string) error {
	logger, cleanup, err := log.New(cfg.Log)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	manager := jwks.NewManager(cfg.JWT.TrustedKeys, cfg.JWT.KeyCacheDuration.Duration, config.LeadTime, http.DefaultClient, logger.WithName("jwks"))
	if err := manager.Initialize(ctx); err != nil {
		return err
	}
	if cfg.JWT.BackgroundKeyRefresh {
		go manager.BackgroundLoop(ctx)
	}

	if w, err := config.WatchFile(configFilePath, logger.WithName("config")); err == nil {
		defer w.Close()
	} else {
		logger.V(1).Info("config file watch unavailable", "path", configFilePath, "err", err)
	}

	srv := gateway.New(cfg, manager, afero.NewOsFs(), logger.WithName("gateway"))
	return srv.Run(ctx)
}
