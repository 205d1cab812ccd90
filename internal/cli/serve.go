package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ogulcanaydogan/billing-killswitch/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the Pub/Sub push endpoint",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringP("listen", "l", "", "Listen address (default from config)")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	listen, _ := cmd.Flags().GetString("listen")
	if listen != "" {
		cfg.Server.Listen = listen
	}

	a, err := initApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	logger := a.Logger

	apiServer := server.NewServer(a.Handler, server.Options{
		Store:             a.Store,
		InvocationTimeout: cfg.InvocationTimeout(),
		MaxBodySize:       cfg.Server.MaxBodySize,
	}, logger)

	srv := &http.Server{
		Addr:         cfg.Server.Listen,
		Handler:      apiServer.Handler(),
		ReadTimeout:  cfg.ReadTimeout(),
		WriteTimeout: cfg.WriteTimeout(),
	}

	// Graceful shutdown
	errCh := make(chan error, 1)
	go func() {
		logger.Info("killswitch started",
			"listen", cfg.Server.Listen,
			"budgets", len(a.Mapping),
			"decision_log", a.Store != nil,
		)
		fmt.Fprintf(os.Stderr, "Billing Killswitch listening on %s\n", cfg.Server.Listen)
		errCh <- srv.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server error: %w", err)
	case sig := <-quit:
		logger.Info("shutting down", "signal", sig.String())
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("shutdown error: %w", err)
		}
	}

	logger.Info("killswitch stopped")
	return nil
}
