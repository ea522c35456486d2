package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/san-kum/simhost/internal/engine"
	"github.com/san-kum/simhost/internal/metrics"
	"github.com/san-kum/simhost/internal/session"
	"github.com/san-kum/simhost/internal/transport"
)

const shutdownGrace = 10 * time.Second

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := cfg.Log.NewLogger(os.Stderr)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)
	if cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(promReg)

	st, err := openStore(cfg)
	if err != nil {
		return err
	}

	reg := engine.DefaultRegistry()
	mgr := session.NewManager(reg, session.Options{
		MaxSessions: cfg.MaxSessions,
		IdleTimeout: cfg.IdleTimeout,
		Session:     sessionConfig(cfg, st),
		Engine:      engine.Options{VizBaseURL: cfg.VizBaseURL},
		Logger:      logger,
		Metrics:     m,
	})

	h := transport.NewHandler(mgr, transport.HandlerOptions{
		PushRate: cfg.PushRate,
		Logger:   logger,
		Metrics:  m,
	})
	sock := transport.NewSocketServer(h, cfg.AllowedOrigins)

	router := transport.NewRouter(transport.RouterConfig{
		Manager:        mgr,
		Registry:       reg,
		Handler:        h,
		Socket:         sock,
		Gatherer:       promReg,
		AllowedOrigins: cfg.AllowedOrigins,
		Logger:         logger,
	})
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		// Accept reports io.EOF once the server is closed.
		if err := sock.Serve(); err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("socket.io: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		logger.Info("listening",
			"addr", cfg.Addr,
			"max_sessions", cfg.MaxSessions,
			"tick_rate", cfg.TickRate,
			"manual_priority", cfg.ManualPriority,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		var errs []error
		if err := srv.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}
		h.Close()
		if err := mgr.Close(); err != nil {
			errs = append(errs, fmt.Errorf("sessions: %w", err))
		}
		if err := sock.Close(); err != nil {
			errs = append(errs, fmt.Errorf("socket.io close: %w", err))
		}
		return errors.Join(errs...)
	})

	return g.Wait()
}
