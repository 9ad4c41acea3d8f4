package cli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/dukerupert/scoutcard/internal/auth"
	"github.com/dukerupert/scoutcard/internal/cards"
	"github.com/dukerupert/scoutcard/internal/config"
	"github.com/dukerupert/scoutcard/internal/credential"
	"github.com/dukerupert/scoutcard/internal/database"
	"github.com/dukerupert/scoutcard/internal/gateway"
	"github.com/dukerupert/scoutcard/internal/gift"
	"github.com/dukerupert/scoutcard/internal/logging"
	"github.com/dukerupert/scoutcard/internal/referral"
)

// app is the wired client for one invocation.
type app struct {
	db       *sql.DB
	store    *credential.SQLiteStore
	gw       *gateway.Gateway
	auth     *auth.Client
	cards    *cards.Manager
	gifts    *gift.Protocol
	referral *referral.Engine
	logger   *slog.Logger
}

func openApp(ctx context.Context, scope string) (*app, error) {
	cfg := config.Load()
	logger := logging.Setup(cfg.LogLevel, cfg.LogFormat)

	if cfg.Client.Passphrase == "" {
		return nil, errors.New("SCOUTCARD_PASSPHRASE is required to unlock the credential store")
	}
	if scope == "" {
		scope = cfg.Client.Scope
	}

	if dir := filepath.Dir(cfg.Client.DBPath); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("create data directory: %w", err)
		}
	}
	db, err := database.Open(cfg.Client.DBPath)
	if err != nil {
		return nil, err
	}
	if v, err := database.SchemaVersion(db); err == nil {
		logger.Debug("credential database open", "path", cfg.Client.DBPath, "schema", v)
	}
	store, err := credential.NewSQLiteStore(ctx, db, cfg.Client.Passphrase)
	if err != nil {
		db.Close()
		return nil, err
	}

	gw := gateway.New(gateway.Config{
		BaseURL:   cfg.Client.APIURL,
		Scope:     scope,
		Timeout:   cfg.Client.Timeout,
		RateLimit: cfg.Client.RateLimit,
	}, store, gateway.WithLogger(logger))
	authClient := auth.NewClient(gw, logger)

	return &app{
		db:       db,
		store:    store,
		gw:       gw,
		auth:     authClient,
		cards:    cards.NewManager(gw, logger),
		gifts:    gift.NewProtocol(gw, authClient, logger),
		referral: referral.NewEngine(gw, logger),
		logger:   logger,
	}, nil
}

func (a *app) Close() error {
	if err := a.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}
