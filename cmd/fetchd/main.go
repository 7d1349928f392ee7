package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/spf13/cobra"

	"github.com/fetchd/fetchd/internal/api"
	"github.com/fetchd/fetchd/internal/app"
	"github.com/fetchd/fetchd/internal/config"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "fetchd",
	Short: "fetchd is a multi-connection download manager",
	Long:  `A segmented, resumable HTTP/HTTPS download daemon with a small control API.`,
	Run: func(cmd *cobra.Command, args []string) {
		if err := runDaemon(); err != nil {
			log.Fatal(err)
		}
	},
}

func init() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to the config file (default fetchd.yaml)")
}

// runDaemon starts the queue manager and control API, and blocks until an
// interrupt or terminate signal is received. CLI parsing and the HTTP layer
// are both thin callers over the core (spec §1); all download logic lives
// in internal/coordinator and internal/queue.
func runDaemon() error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		<-sigChan
		fmt.Println("\n[!] interrupt received, shutting down gracefully...")
		cancel()
	}()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}

	ctxApp, err := app.NewContext(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize app: %w", err)
	}
	defer ctxApp.Close()

	go ctxApp.Run(ctx)

	e := echo.New()
	api.RegisterRoutes(e, ctxApp)

	srv := &http.Server{Addr: cfg.Server.Addr, Handler: e}
	go func() {
		ctxApp.Logger.Info("control API listening on %s", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			ctxApp.Logger.Error("server error: %v", err)
		}
	}()

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		ctxApp.Logger.Error("error shutting down server: %v", err)
	}

	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
