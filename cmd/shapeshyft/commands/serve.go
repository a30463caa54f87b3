package commands

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/johnqh/shapeshyft-api/internal/analytics"
	"github.com/johnqh/shapeshyft-api/internal/auth"
	"github.com/johnqh/shapeshyft-api/internal/logger"
	"github.com/johnqh/shapeshyft-api/internal/server"
	"github.com/johnqh/shapeshyft-api/internal/service"
	"github.com/johnqh/shapeshyft-api/internal/store"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		logError("%v", err)
		return err
	}

	masterKey, err := cfg.Auth.MasterKey()
	if err != nil {
		logError("%v", err)
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := store.NewPostgres(ctx, cfg.Database.URL)
	if err != nil {
		logError("%v", err)
		return err
	}
	defer st.Close()

	verifier, err := auth.NewHMACVerifier([]byte(cfg.Auth.Secret))
	if err != nil {
		logError("%v", err)
		return err
	}

	svc := service.New(st, analytics.NewRecorder(st), masterKey)
	srv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: server.New(svc, st, verifier, masterKey).Handler(),
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("server listening", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logError("%v", err)
		return err
	}
	return nil
}
