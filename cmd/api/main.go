package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/melih/lighthouse-sandbox/internal/adapters/docker"
	"github.com/melih/lighthouse-sandbox/internal/adapters/http"
	"github.com/melih/lighthouse-sandbox/internal/adapters/sqlite"
	"github.com/melih/lighthouse-sandbox/internal/config"
	"github.com/melih/lighthouse-sandbox/internal/core/services"
	"github.com/melih/lighthouse-sandbox/internal/log"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 15 * time.Second

var configPath string

var rootCmd = &cobra.Command{
	Use:   "lighthouse",
	Short: "Lighthouse - per-user development containers over HTTP",
	Long: `Lighthouse gives each authenticated user their own containers: lifecycle
control, a browser terminal over websocket, and file editing inside the
container.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
		log.Init(log.Options{Level: cfg.Log.Level, JSONFormat: cfg.Log.JSON})
		return run(cmd.Context(), cfg)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultPath, "path to the YAML config file")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		log.Error("lighthouse exited", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	// 1. Initialize Adapters (Infrastructure)
	store, err := sqlite.OpenStore(cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer store.Close()

	dockerAdapter, err := docker.NewAdapter(cfg.StopTimeout)
	if err != nil {
		return err
	}
	defer dockerAdapter.Close()

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := dockerAdapter.Ping(pingCtx); err != nil {
		return err
	}

	// 2. Initialize Services (Core)
	lifecycle := services.NewLifecycle(dockerAdapter, services.NewRegistry(store), services.LifecycleOptions{
		DefaultImage:  cfg.Image,
		AllowedImages: cfg.AllowedImages,
		WorkingDir:    cfg.FilesystemRoot,
	})
	gateway := services.NewGateway(dockerAdapter, lifecycle, cfg.FilesystemRoot)
	bridge := services.NewTerminalBridge(dockerAdapter, lifecycle, cfg.ShellCommand())

	// 3. Setup Framework (Fiber)
	app := http.NewApp(http.Deps{
		Lifecycle:      lifecycle,
		Filesystem:     gateway,
		Terminal:       bridge,
		Guard:          lifecycle,
		JWTSecret:      cfg.JWTSecret,
		FrontendURL:    cfg.FrontendURL,
		PreviewPort:    cfg.PreviewPort,
		SessionContext: ctx,
		AccessLog:      os.Stdout,
	})

	// 4. Start Server
	errc := make(chan error, 1)
	go func() {
		log.Info("server starting", "addr", cfg.ListenAddr)
		errc <- app.Listen(cfg.ListenAddr)
	}()

	select {
	case err := <-errc:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	// 5. Shut down: sessions first, so their websocket handlers return and
	// Fiber can drain.
	log.Info("shutting down", "sessions", bridge.Count())
	bridge.CloseAll()
	if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		log.Warn("server shutdown", "error", err)
	}
	return nil
}
