package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/abhisek/studybuddy/internal/api"
	"github.com/abhisek/studybuddy/internal/gateway"
	"github.com/abhisek/studybuddy/internal/reports"
)

const shutdownTimeout = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the chat and parent API over HTTP",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().String("addr", "", "Listen address (overrides server.addr)")
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := openStack(cmd)
	if err != nil {
		return err
	}
	defer s.Close()
	if err := s.withGateway(ctx); err != nil {
		return err
	}

	var archiver api.Archiver
	if s.cfg.Reports.MinIO.Enabled() {
		a, err := reports.NewMinIOArchiver(ctx, s.cfg.Reports.MinIO, s.logger)
		if err != nil {
			return err
		}
		archiver = a
	}

	manager := gateway.NewManager(s.gatewayDeps(), s.cfg.Gateway, s.cfg.Server.RateLimit)
	server, err := api.New(api.Deps{
		Manager:  manager,
		Parents:  s.monitor,
		Archiver: archiver,
		Metrics:  s.metrics,
		Logger:   s.logger,
	})
	if err != nil {
		return err
	}

	if s.cfg.Server.Mode != "" {
		gin.SetMode(s.cfg.Server.Mode)
	}
	addr := s.cfg.Server.Addr
	if a, _ := cmd.Flags().GetString("addr"); a != "" {
		addr = a
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("server listening",
			zap.String("addr", addr),
			zap.String("provider", s.provider.ModelID()),
			zap.String("store", s.cfg.Store.Backend),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		s.logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
