package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/yourorg/qbmcp/internal/assets"
	"github.com/yourorg/qbmcp/internal/config"
	"github.com/yourorg/qbmcp/internal/dispatch"
	"github.com/yourorg/qbmcp/internal/entity"
	"github.com/yourorg/qbmcp/internal/filter"
	"github.com/yourorg/qbmcp/internal/registry"
	"github.com/yourorg/qbmcp/internal/schema"
	"github.com/yourorg/qbmcp/internal/store"
	"github.com/yourorg/qbmcp/internal/tools"
)

// app is everything a command needs, built once from config.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	registry *registry.Registry
	entities *entity.Catalog
	session  *dispatch.Session
	store    *store.SQLiteStore
	tools    *tools.Toolset
}

func newLogger(w io.Writer, cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func readOr(path string, fallback []byte) ([]byte, error) {
	if path == "" {
		return fallback, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return data, nil
}

// buildApp compiles the interface description, opens the journal and
// wires the dispatcher. Credentials are not exchanged until the first call.
func buildApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	doc, err := readOr(cfg.Schema.OpenAPIPath, assets.OpenAPI)
	if err != nil {
		return nil, fmt.Errorf("read interface description: %w", err)
	}
	ops, err := schema.Load(doc)
	if err != nil {
		return nil, err
	}
	if a.registry, err = registry.New(ops); err != nil {
		return nil, err
	}
	logger.Debug("operations compiled", "count", a.registry.Len())

	entities, err := readOr(cfg.Schema.EntitiesPath, assets.Entities)
	if err != nil {
		return nil, fmt.Errorf("read entity catalogue: %w", err)
	}
	if a.entities, err = entity.Load(entities); err != nil {
		return nil, err
	}

	var overrides []byte
	if cfg.Schema.ToolsPath != "" {
		if overrides, err = os.ReadFile(cfg.Schema.ToolsPath); err != nil {
			return nil, fmt.Errorf("read tool overrides: %w", err)
		}
	}

	if cfg.Store.Path != "" {
		if a.store, err = store.NewSQLiteStore(cfg.Store.Path); err != nil {
			return nil, fmt.Errorf("open store: %w", err)
		}
	}

	qb := cfg.QuickBooks
	missing := without(cfg.Missing(), "QUICKBOOKS_REFRESH_TOKEN")
	var creds dispatch.Refresher
	if len(missing) == 0 {
		r := dispatch.NewOAuthRefresher(qb.ClientID, qb.ClientSecret, qb.RefreshToken, qb.TokenURL, qb.CompanyID)
		r.Logger = logger
		if a.store != nil {
			r.Store = a.store
		}
		// The stored token is read here once; rotations after this point
		// only ever replace it in memory and in the store.
		if err := r.Restore(ctx); err != nil {
			logger.Warn("stored refresh token unavailable", "error", err)
		}
		if r.RefreshToken() == "" {
			missing = append(missing, "QUICKBOOKS_REFRESH_TOKEN")
		} else {
			creds = r
		}
	} else if qb.RefreshToken == "" {
		missing = append(missing, "QUICKBOOKS_REFRESH_TOKEN")
	}
	if len(missing) > 0 {
		logger.Warn("quickbooks credentials incomplete; tool calls will fail until configured", "missing", strings.Join(missing, ","))
	}
	a.session = dispatch.NewSession(dispatch.SessionConfig{
		BaseURL:     dispatch.BaseURL(qb.Env),
		RealmID:     qb.CompanyID,
		Credentials: creds,
		Missing:     missing,
		Logger:      logger,
	})

	d := &dispatch.Dispatcher{
		Session:      a.session,
		Transport:    dispatch.NewHTTPTransport(cfg.HTTP.Timeout, logger),
		Redactor:     filter.NewRedactor(cfg.Sanitize),
		Logger:       logger,
		MinorVersion: qb.MinorVersion,
	}
	if a.store != nil {
		d.Journal = a.store
	}

	a.tools, err = tools.Build(tools.Options{
		Registry:   a.registry,
		Dispatcher: d,
		Entities:   a.entities,
		RealmID:    qb.CompanyID,
		Overrides:  overrides,
		Logger:     logger,
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) Close() {
	if a.store != nil {
		_ = a.store.Close()
	}
}

func without(items []string, drop string) []string {
	out := items[:0:0]
	for _, v := range items {
		if v != drop {
			out = append(out, v)
		}
	}
	return out
}
