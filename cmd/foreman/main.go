package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/briarlatch/foreman/internal/api"
	"github.com/briarlatch/foreman/internal/config"
	"github.com/briarlatch/foreman/internal/controller"
	"github.com/briarlatch/foreman/internal/logging"
	"github.com/briarlatch/foreman/internal/registry"
	"github.com/briarlatch/foreman/internal/runtime"
)

func main() {
	cfg, err := config.Load(os.Getenv)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: invalid configuration: %v\n", err)
		os.Exit(1)
	}

	log := logging.New(cfg.LogLevel, cfg.StructuredLogging, os.Stderr)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	regClient := registry.New(cfg.Token, cfg.Scope.String(), cfg.Scope.IsOrg(), cfg.RunnerPrefix)

	rtClient, err := runtime.NewClient(ctx, cfg.DockerSocket, cfg.ControllerID, cfg.RunnerNetwork, cfg.RunnerPrefix)
	if err != nil {
		log.Error().Err(err).Msg("failed to create Docker client")
		os.Exit(1)
	}
	defer rtClient.Close()

	ctrl := controller.New(cfg, regClient, rtClient, log)

	startCtx, startCancel := context.WithTimeout(ctx, 30*time.Second)
	defer startCancel()
	if err := ctrl.Start(startCtx); err != nil {
		log.Error().Err(err).Msg("startup adoption failed")
		os.Exit(1)
	}

	surface := api.New(ctrl, log)
	surface.Start()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	runDone := make(chan struct{})
	go func() {
		ctrl.Run(ctx)
		close(runDone)
	}()

	log.Info().Str("scope", cfg.Scope.String()).Int("min_runners", cfg.MinRunners).Int("max_runners", cfg.MaxRunners).Msg("foreman started")

	<-sigCh
	log.Info().Msg("received shutdown signal, draining")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := surface.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http surface shutdown error")
	}

	<-runDone
	log.Info().Msg("foreman stopped")
}
