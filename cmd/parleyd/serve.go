package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/aretw0/parley"
	"github.com/aretw0/parley/internal/logging"
	httpAdapter "github.com/aretw0/parley/pkg/adapters/http"
	redisAdapter "github.com/aretw0/parley/pkg/adapters/redis"
	"github.com/aretw0/parley/pkg/dialog"
	"github.com/aretw0/parley/pkg/flow"
	"github.com/aretw0/parley/pkg/observability"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the webhook server",
	Long:  `Loads the flow document, wires the session backend and exposes the dialog engine as a webhook over HTTP.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		flowPath, _ := cmd.Flags().GetString("flow")
		addr, _ := cmd.Flags().GetString("addr")
		redisAddr, _ := cmd.Flags().GetString("redis")
		redisPassword, _ := cmd.Flags().GetString("redis-password")
		redisDB, _ := cmd.Flags().GetInt("redis-db")
		timeout, _ := cmd.Flags().GetDuration("session-timeout")
		levelFlag, _ := cmd.Flags().GetString("log-level")
		logJSON, _ := cmd.Flags().GetBool("log-json")

		level, err := logging.ParseLevel(levelFlag)
		if err != nil {
			return err
		}
		logger := logging.New(level)
		if logJSON {
			logger = logging.NewJSON(level)
		}

		var sessions dialog.Provider
		if redisAddr != "" {
			store := redisAdapter.New(redisAddr, redisPassword, redisDB,
				redisAdapter.WithLogger(logger))
			sessions = store
			logger.Info("using redis sessions", "addr", redisAddr, "db", redisDB)
		} else {
			provider := dialog.NewMemoryProvider()
			provider.SetLogger(logger)
			sessions = provider
			logger.Warn("using in-memory sessions; conversations are lost on restart")
		}

		metrics := observability.NewMetrics(prometheus.DefaultRegisterer)

		controller, err := parley.FromFile(flowPath, sessions,
			flow.WithControllerOptions(
				dialog.WithSessionTimeout(timeout),
				dialog.WithLifecycleHooks(metrics.Hooks()),
			),
			flow.WithLogger(logger),
		)
		if err != nil {
			return fmt.Errorf("build flow %s: %w", flowPath, err)
		}

		handler := httpAdapter.NewHandler(controller,
			httpAdapter.WithLogger(logger),
			httpAdapter.WithMetricsHandler(promhttp.Handler()),
		)

		srv := &http.Server{
			Addr:    addr,
			Handler: handler,
		}

		serverErrors := make(chan error, 1)
		go func() {
			logger.Info("server listening", "addr", srv.Addr, "flow", flowPath, "version", parley.Version)
			serverErrors <- srv.ListenAndServe()
		}()

		shutdown := make(chan os.Signal, 1)
		signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

		select {
		case err := <-serverErrors:
			return fmt.Errorf("server: %w", err)

		case sig := <-shutdown:
			logger.Info("shutting down", "signal", sig.String())

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			if err := srv.Shutdown(ctx); err != nil {
				logger.Error("graceful shutdown did not complete", "error", err)
				if err := srv.Close(); err != nil {
					return fmt.Errorf("close server: %w", err)
				}
			}
			logger.Info("server stopped")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringP("flow", "f", "flow.yaml", "Path to the flow document")
	serveCmd.Flags().StringP("addr", "a", ":8080", "Listen address")
	serveCmd.Flags().String("redis", "", "Redis address for distributed sessions (empty = in-memory)")
	serveCmd.Flags().String("redis-password", "", "Redis password")
	serveCmd.Flags().Int("redis-db", 0, "Redis database number")
	serveCmd.Flags().Duration("session-timeout", time.Hour, "Idle window before a session restarts")
}
