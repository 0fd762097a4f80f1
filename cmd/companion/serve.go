package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/danielpatrickdp/deskmate/go-controller/internal/httpapi"
	"github.com/danielpatrickdp/deskmate/go-controller/internal/logging"
	"github.com/danielpatrickdp/deskmate/go-controller/internal/notify"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP API and run the idle loop",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	shutdownTracing, err := logging.InitTracing(ctx, logging.TracingOptions{
		ServiceName: "companion",
		Exporter:    a.cfg.Tracing.Exporter,
		Endpoint:    a.cfg.Tracing.Endpoint,
		Insecure:    a.cfg.Tracing.Insecure,
		SampleRatio: a.cfg.Tracing.SampleRatio,
	}, a.log)
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			a.log.Warn("tracing shutdown failed", zap.Error(err))
		}
	}()

	if err := forwardEvents(ctx, a); err != nil {
		return err
	}

	if a.cfg.Log.Mode == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}
	srv := &http.Server{
		Addr: a.cfg.HTTP.Addr,
		Handler: httpapi.NewRouter(httpapi.RouterConfig{
			Navigator:    a.nav,
			Chat:         a.service,
			Events:       a.hub,
			Persona:      a.persona,
			AllowOrigins: a.cfg.HTTP.AllowOrigins,
			Logger:       a.log,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.log.Info("http listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		if err := a.idle.Run(gctx); !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// forwardEvents feeds the shared Redis channel into the SSE hub so clients of
// this server also see events from other companion processes.
func forwardEvents(ctx context.Context, a *app) error {
	if a.redis == nil {
		return nil
	}
	if err := a.redis.Forward(ctx, func(ev notify.Event) { a.hub.Notify(ctx, ev) }); err != nil {
		return fmt.Errorf("forward redis events: %w", err)
	}
	a.log.Info("forwarding redis events to sse hub")
	return nil
}
