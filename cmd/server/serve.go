package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/ulule/limiter/v3"
	"golang.org/x/sync/errgroup"

	"marketslip/internal/platform/config"
	"marketslip/internal/platform/httpserver"
	"marketslip/internal/platform/middleware"
	"marketslip/internal/slip/handler"
)

const shutdownTimeout = 10 * time.Second

func serveCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and, when SWEEP_INTERVAL is set, the reconciliation sweeper",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.FromEnv()
			if addr != "" {
				cfg.Server.Addr = addr
			}
			return runServe(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides SLIP_SERVICE_ADDR)")
	return cmd
}

func runServe(ctx context.Context, cfg config.Config) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	if err := a.publisher.EnsureTopology(ctx); err != nil {
		// The broker may come up later; publishing redials lazily.
		a.logger.WarnContext(ctx, "broker topology not declared at startup", "error", err)
	}

	slips, err := a.slipService()
	if err != nil {
		return err
	}
	var uploadLimiter *limiter.Limiter
	if cfg.Server.UploadRate != "" {
		uploadLimiter, err = middleware.NewRateLimiter(cfg.Server.UploadRate)
		if err != nil {
			return fmt.Errorf("invalid SLIP_UPLOAD_RATE: %w", err)
		}
	}
	h := handler.New(slips, uploadLimiter, a.logger)
	router := handler.NewRouter(h, a.logger, a.metrics, a.registry, cfg.Server.AllowedOrigins)
	srv := httpserver.New(cfg.Server.Addr, router)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.logger.InfoContext(ctx, "starting slip service", "addr", cfg.Server.Addr, "auth_bypass", cfg.Auth.Bypass)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		a.logger.InfoContext(shutdownCtx, "shutting down slip service")
		return srv.Shutdown(shutdownCtx)
	})
	if cfg.Sweep.Interval > 0 {
		sweeper := a.sweeper()
		g.Go(func() error {
			return sweeper.Run(ctx, cfg.Sweep.Interval)
		})
	}
	return g.Wait()
}
