package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/time/rate"

	"github.com/dukerupert/scoutcard/internal/config"
	"github.com/dukerupert/scoutcard/internal/email"
	"github.com/dukerupert/scoutcard/internal/fakeapi"
	"github.com/dukerupert/scoutcard/internal/logging"
	"github.com/dukerupert/scoutcard/internal/model"
)

func main() {
	cfg := config.Load()
	logger := logging.Setup(cfg.LogLevel, cfg.LogFormat)

	var mailer email.Mailer = email.NewOutbox()
	if cfg.Simulator.PostmarkToken != "" {
		mailer = email.NewClient(cfg.Simulator.PostmarkToken, cfg.Simulator.FromEmail)
	}

	srv := fakeapi.New(fakeapi.Config{
		SigningKey: []byte(cfg.Simulator.SigningKey),
		AccessTTL:  cfg.Simulator.AccessTTL,
		LoginRate:  rate.Every(time.Second),
		LoginBurst: 5,
		Mailer:     mailer,
		PublicURL:  cfg.Simulator.PublicURL,
	}, logger)

	if cfg.Simulator.Seed {
		seed(srv)
	}

	httpServer := &http.Server{
		Addr:              ":" + cfg.Simulator.Port,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Background cleanup goroutine
	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	defer cleanupCancel()
	go func() {
		ticker := time.NewTicker(10 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				srv.LimiterCleanup(30 * time.Minute)
			case <-cleanupCtx.Done():
				return
			}
		}
	}()

	go func() {
		slog.Info("card simulator starting", "addr", httpServer.Addr, "access_ttl", cfg.Simulator.AccessTTL)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down")
	cleanupCancel()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "error", err)
		os.Exit(1)
	}
}

// seed creates a demo account with one active and two unused cards.
func seed(srv *fakeapi.Server) {
	u, err := srv.CreateAccount("demo@example.com", "demo-password-1", "Demo", "Member")
	if err != nil {
		slog.Error("seed account", "error", err)
		return
	}
	srv.AddCard(u.ID, model.CardActive)
	srv.AddCard(u.ID, model.CardUnassigned)
	srv.AddCard(u.ID, model.CardUnassigned)
	slog.Info("seeded demo account", "email", u.Email)
}
