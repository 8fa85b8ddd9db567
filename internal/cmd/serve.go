package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/discussiond/engine/internal/agentbackend"
	"github.com/discussiond/engine/internal/clienthub"
	"github.com/discussiond/engine/internal/config"
	"github.com/discussiond/engine/internal/event"
	"github.com/discussiond/engine/internal/framework"
	"github.com/discussiond/engine/internal/httpapi"
	"github.com/discussiond/engine/internal/logging"
	"github.com/discussiond/engine/internal/roomstore"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the discussion engine server",
	Long: `serve starts the discussiond process: the room registry, the
WebSocket client bridge, and the REST surface, bound to the configured
host and port until interrupted.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	rotationCfg := logging.RotationConfig{
		MaxSizeMB:  cfg.Logging.RotateMaxSizeMB,
		MaxBackups: cfg.Logging.RotateMaxBackups,
		Compress:   cfg.Logging.RotateCompress,
	}
	logger, err := logging.NewLoggerWithRotation(cfg.Logging.Dir, cfg.Logging.Level, rotationCfg)
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}
	defer logger.Close()

	backend, err := agentbackend.NewFromConfig(cfg, agentbackend.Name(cfg.Agent.Backend))
	if err != nil {
		return fmt.Errorf("creating agent backend: %w", err)
	}

	bus := event.NewBus()
	store := roomstore.New(cfg.Paths.ResolveRoomDir())
	defer store.Close()

	manager := framework.NewManager(cfg, bus, backend, framework.WithPersister(store), framework.WithRoomLoader(store), framework.WithLogger(logger))
	hub := clienthub.New(cfg, bus, manager, store, logger)
	defer hub.Close()

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", hub.ServeWebSocket)
	api := httpapi.New(cfg, manager, store, logger)
	mux.Handle("/api/", api)

	addr := fmt.Sprintf("%s:%d", cfg.Server.BindHost, cfg.Server.BindPort)
	srv := &http.Server{Addr: addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("discussiond listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-sigCh:
		logger.Info("shutting down")
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Engine.ShutdownGrace())
	defer cancel()

	if err := manager.StopAll(ctx); err != nil {
		logger.Warn("error stopping rooms", "error", err)
	}
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return nil
}
