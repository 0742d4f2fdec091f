package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/fairyhunter13/ecommerce-service/internal/config"
	"github.com/fairyhunter13/ecommerce-service/internal/obs"
	"github.com/fairyhunter13/ecommerce-service/internal/stack"
)

func serveCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the local stack behind an HTTP server",
		Long: `Run the REST API together with the order events topic, its
subscribers and the e-mail queue in one process.

Examples:
  ecommerce serve --addr :8080
  ecommerce serve --store pebble --bus kafka`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), *cfg)
		},
	}
	cmd.Flags().StringVar(&cfg.HTTPAddr, "addr", cfg.HTTPAddr, "listen address")
	cmd.Flags().StringVar(&cfg.StoreBackend, "store", cfg.StoreBackend, "table backend: memory, pebble or dynamodb")
	cmd.Flags().StringVar(&cfg.BusBackend, "bus", cfg.BusBackend, "order events transport: local, kafka or sns")
	return cmd
}

func runServe(ctx context.Context, cfg config.Config) error {
	obs.Logger.Info("service_starting", "store", cfg.StoreBackend, "bus", cfg.BusBackend)

	st, err := stack.New(ctx, cfg)
	if err != nil {
		return err
	}
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	st.Start(runCtx)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           st.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		obs.Logger.Info("http_listen", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	select {
	case <-sigCtx.Done():
		obs.Logger.Info("shutdown_signal")
	case err := <-errc:
		obs.Logger.Error("http_server_error", "error", err)
		_ = st.Close()
		return err
	}

	st.App.StartShutdown()
	ctxSrv, cancelSrv := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelSrv()
	if err := srv.Shutdown(ctxSrv); err != nil {
		obs.Logger.Error("http_shutdown_error", "error", err)
	}

	obs.Logger.Info("shutdown_drain_begin", "backlog_size", st.Manager.BacklogSize(), "worker_count", st.Manager.WorkerCount())
	ctxDrain, cancelDrain := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancelDrain()
	if drained := st.Drain(ctxDrain); !drained {
		obs.Logger.Warn("shutdown_drain_timeout")
	} else {
		obs.Logger.Info("shutdown_drain_complete")
	}

	if err := st.Close(); err != nil {
		obs.Logger.Error("stack_close_error", "error", err)
	}
	obs.Logger.Info("service_stopped")
	return nil
}
