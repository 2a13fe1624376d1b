package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"disputeflow/api"
	"disputeflow/attach"
	"disputeflow/auth"
	"disputeflow/config"
	"disputeflow/db"
	"disputeflow/dispute"
	"disputeflow/notify"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(logger); err != nil {
		logger.Fatal("startup failed", zap.Error(err))
	}
}

func run(logger *zap.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	tokens := auth.NewTokenService(cfg.JWTSecret)
	mailer := notify.NewPostmark(cfg.PostmarkBaseURL, cfg.PostmarkToken, cfg.MailFrom, cfg.GatewayTimeout, logger)
	uploader := attach.NewCloudinary(attach.Config{
		BaseURL: cfg.CloudinaryBaseURL,
		Cloud:   cfg.CloudinaryCloud,
		APIKey:  cfg.CloudinaryKey,
		Secret:  cfg.CloudinarySecret,
		Preset:  cfg.CloudinaryPreset,
		Timeout: cfg.GatewayTimeout,
	})

	userRepo := auth.NewRepository(pool)
	userService := auth.NewService(userRepo, tokens, mailer, logger, auth.Options{
		SessionTTL:    cfg.SessionTTL,
		SetupTTL:      cfg.SetupTTL,
		ResetLinkBase: cfg.ResetLinkBase,
	})

	disputeRepo := dispute.NewRepository(pool)
	disputeService := dispute.NewService(disputeRepo, uploader, mailer, userRepo, logger, dispute.ServiceOptions{
		ExternalGroup:    cfg.ExternalGroup,
		CounterpartGroup: cfg.CounterpartGroup,
		StaleThreshold:   cfg.SweepThreshold,
	})

	sweeper := dispute.NewSweeper(disputeService, cfg.SweepInterval, logger)
	go sweeper.Run(ctx)

	userHandler := api.NewAuthHandler(userService, logger)
	disputeHandler := api.NewDisputeHandler(disputeService, logger)
	router := api.NewRouter(tokens, userHandler, disputeHandler, logger)

	server := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errs := make(chan error, 1)
	go func() {
		logger.Info("server listening", zap.String("addr", cfg.HTTPAddr))
		errs <- server.ListenAndServe()
	}()

	select {
	case err := <-errs:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return err
		}
	}

	return nil
}
