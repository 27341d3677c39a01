package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/sasta-kro/corvus-gateway/internal/buildpipeline"
	"github.com/sasta-kro/corvus-gateway/internal/config"
	"github.com/sasta-kro/corvus-gateway/internal/events"
	"github.com/sasta-kro/corvus-gateway/internal/gateway"
	"github.com/sasta-kro/corvus-gateway/internal/lifecycle"
	"github.com/sasta-kro/corvus-gateway/internal/ports"
	"github.com/sasta-kro/corvus-gateway/internal/proxy"
	"github.com/sasta-kro/corvus-gateway/internal/registry"
	"github.com/sasta-kro/corvus-gateway/internal/runtimeadapter"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the gateway's HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve()
		},
	}
}

func serve() error {
	cfg := config.Load()
	logger := cfg.NewLogger()

	logger.Info("corvus gateway starting",
		"port", cfg.Port,
		"workspace_root", cfg.WorkspaceRoot,
		"log_format", cfg.LogFormat,
	)

	adapter, err := runtimeadapter.New(logger)
	if err != nil {
		log.Fatalf("failed to connect to docker daemon: %v", err)
	}
	defer adapter.Close()

	journal, err := events.Open(cfg.EventsDBPath)
	if err != nil {
		log.Fatalf("failed to open event journal: %v", err)
	}
	defer journal.Close()

	reg := registry.New()
	allocator := ports.New(cfg.PortBase)
	pipeline := buildpipeline.New(afero.NewOsFs(), allocator, adapter, logger)

	manager := lifecycle.New(adapter, reg, logger, cfg.IdleTimeout, cfg.ReapInterval)
	manager.AttachJournal(journal)
	reaperCtx, cancelReaper := context.WithCancel(context.Background())
	defer cancelReaper()
	manager.Run(reaperCtx)

	proxyInstance := proxy.New(reg, manager)
	proxyInstance.AttachJournal(journal)

	router := gateway.NewRouter(gateway.Dependencies{
		Logger:   logger,
		Registry: reg,
		Pipeline: pipeline,
		Proxy:    proxyInstance,
		Journal:  journal,
		Manager:  manager,
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	shutdownChannel := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			shutdownChannel <- err
		}
		close(shutdownChannel)
	}()

	signalChannel := make(chan os.Signal, 1)
	signal.Notify(signalChannel, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-signalChannel:
		logger.Info("shutdown signal received", "signal", sig)
	case err := <-shutdownChannel:
		if err != nil {
			log.Fatalf("http server failed: %v", err)
		}
	}

	shutdownContext, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()

	if err := server.Shutdown(shutdownContext); err != nil {
		logger.Error("graceful http shutdown failed", "error", err)
	}

	// stop the reaper and tear down every still-running container before
	// the process exits, so a restart never inherits orphaned containers.
	if err := manager.Shutdown(context.Background()); err != nil {
		logger.Error("lifecycle shutdown failed", "error", err)
	} else {
		logger.Info("all containers torn down, server shut down cleanly")
	}

	return nil
}
