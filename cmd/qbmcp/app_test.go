package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"github.com/yourorg/qbmcp/internal/config"
	"github.com/yourorg/qbmcp/internal/dispatch"
	"github.com/yourorg/qbmcp/internal/tools"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := &config.Config{}
	cfg.SetDefaults()
	cfg.Store.Path = filepath.Join(t.TempDir(), "qbmcp.db")
	return cfg
}

func TestBuildAppWithoutCredentials(t *testing.T) {
	cfg := testConfig(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	a, err := buildApp(context.Background(), cfg, logger)
	if err != nil {
		t.Fatalf("build app: %v", err)
	}
	defer a.Close()

	if a.tools.Len() != a.registry.Len()+3 {
		t.Fatalf("expected %d tools, got %d", a.registry.Len()+3, a.tools.Len())
	}
	if a.session.Ready() {
		t.Fatalf("session should not be ready without credentials")
	}

	_, err = a.tools.Call(context.Background(), "get_bill_billId", []byte(`{"billId":"42"}`))
	var uninit *dispatch.UninitializedSessionError
	if !errors.As(err, &uninit) {
		t.Fatalf("expected UninitializedSessionError, got %v", err)
	}
	if !strings.Contains(err.Error(), "QUICKBOOKS_CLIENT_ID") {
		t.Fatalf("error should name the missing setting: %v", err)
	}

	calls, err := a.store.ListCalls(context.Background(), 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(calls) != 1 || calls[0].Operation != "get_bill_billId" || calls[0].Error == "" {
		t.Fatalf("expected one failed journaled call, got %+v", calls)
	}
}

func TestBuildAppStoredRefreshToken(t *testing.T) {
	cfg := testConfig(t)
	cfg.QuickBooks.CompanyID = "9130"
	cfg.QuickBooks.ClientID = "id"
	cfg.QuickBooks.ClientSecret = "secret"
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	first, err := buildApp(context.Background(), cfg, logger)
	if err != nil {
		t.Fatal(err)
	}
	if err := first.store.SaveRefreshToken(context.Background(), "9130", "rt-stored", ""); err != nil {
		t.Fatal(err)
	}
	first.Close()

	a, err := buildApp(context.Background(), cfg, logger)
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()
	// A stored token satisfies the refresh token requirement, so the
	// failure comes from the token exchange rather than missing config.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = a.session.Init(ctx)
	var uninit *dispatch.UninitializedSessionError
	if !errors.As(err, &uninit) || len(uninit.Missing) != 0 || uninit.Cause == nil {
		t.Fatalf("expected init to attempt the exchange, got %v", err)
	}
}

func TestBuildAppReauthorizedTokenBeatsStored(t *testing.T) {
	var seen []string
	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		seen = append(seen, r.PostForm.Get("refresh_token"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"a","token_type":"bearer","expires_in":3600}`))
	}))
	defer tokenSrv.Close()

	cfg := testConfig(t)
	cfg.QuickBooks.CompanyID = "9130"
	cfg.QuickBooks.ClientID = "id"
	cfg.QuickBooks.ClientSecret = "secret"
	cfg.QuickBooks.RefreshToken = "fresh-from-config"
	cfg.QuickBooks.TokenURL = tokenSrv.URL
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	first, err := buildApp(context.Background(), cfg, logger)
	if err != nil {
		t.Fatal(err)
	}
	if err := first.store.SaveRefreshToken(context.Background(), "9130", "revoked", "old-config"); err != nil {
		t.Fatal(err)
	}
	first.Close()

	a, err := buildApp(context.Background(), cfg, logger)
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()
	if err := a.session.Init(context.Background()); err != nil {
		t.Fatalf("init: %v", err)
	}
	if len(seen) != 1 || seen[0] != "fresh-from-config" {
		t.Fatalf("token endpoint saw %v", seen)
	}
}

func TestBuildAppBadOverrides(t *testing.T) {
	cfg := testConfig(t)
	cfg.Schema.ToolsPath = filepath.Join(t.TempDir(), "missing.json")
	if _, err := buildApp(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil))); err == nil {
		t.Fatalf("expected error for unreadable overrides")
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, config.LogConfig{Level: "warn", Format: "json"})
	logger.Info("hidden")
	logger.Warn("shown", "k", "v")
	out := buf.String()
	if strings.Contains(out, "hidden") || !strings.Contains(out, `"msg":"shown"`) {
		t.Fatalf("unexpected log output %q", out)
	}
}

func TestDescribeEntity(t *testing.T) {
	a, err := buildApp(context.Background(), testConfig(t), slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()

	var out bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&out)
	if err := describeEntity(cmd, a.entities, nil); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "Account\n") {
		t.Fatalf("expected entity names, got %q", out.String())
	}
	out.Reset()
	if err := describeEntity(cmd, a.entities, []string{"Account"}); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), `"AccountType"`) {
		t.Fatalf("expected Account schema, got %q", out.String())
	}
	if err := describeEntity(cmd, a.entities, []string{"Nope"}); err == nil {
		t.Fatalf("expected unknown entity error")
	}
}

func TestToolsCommandRendersMarkdown(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	t.Setenv("QBMCP_STORE_PATH", "")
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"--config", cfgPath, "tools", "--format", "markdown"})
	if err := root.Execute(); err != nil {
		t.Fatalf("tools command: %v", err)
	}
	if !strings.Contains(out.String(), "## "+tools.QueryTool) {
		t.Fatalf("expected query tool section, got %q", out.String())
	}
}
