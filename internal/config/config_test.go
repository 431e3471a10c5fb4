package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestSetDefaults(t *testing.T) {
	c := &Config{}
	c.SetDefaults()
	if c.QuickBooks.Env != "sandbox" {
		t.Fatalf("expected sandbox, got %s", c.QuickBooks.Env)
	}
	if c.Server.Port != 3030 {
		t.Fatalf("expected port 3030")
	}
	if c.HTTP.Timeout != 60*time.Second {
		t.Fatalf("unexpected timeout %s", c.HTTP.Timeout)
	}
	if c.Log.Level != "info" || c.Log.Format != "text" {
		t.Fatalf("unexpected log defaults %+v", c.Log)
	}
	if err := c.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestLoadFromYAML(t *testing.T) {
	tmp := t.TempDir()
	cfgPath := filepath.Join(tmp, "config.yaml")
	content := "quickbooks:\n  env: Production\n  company_id: \"9130\"\nhttp:\n  timeout: 15s\nserver:\n  port: 8080\n"
	if err := os.WriteFile(cfgPath, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.QuickBooks.Env != "production" {
		t.Fatalf("env not normalized: %s", cfg.QuickBooks.Env)
	}
	if cfg.QuickBooks.CompanyID != "9130" {
		t.Fatalf("unexpected company %s", cfg.QuickBooks.CompanyID)
	}
	if cfg.HTTP.Timeout != 15*time.Second {
		t.Fatalf("unexpected timeout %s", cfg.HTTP.Timeout)
	}
	if cfg.Addr() != "127.0.0.1:8080" {
		t.Fatalf("unexpected addr %s", cfg.Addr())
	}
}

func TestEnvOverridesFile(t *testing.T) {
	tmp := t.TempDir()
	cfgPath := filepath.Join(tmp, "config.yaml")
	if err := os.WriteFile(cfgPath, []byte("quickbooks:\n  client_id: from-file\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("QUICKBOOKS_CLIENT_ID", "from-env")
	t.Setenv("QBMCP_SERVER_PORT", "9999")
	t.Setenv("QBMCP_HTTP_TIMEOUT", "5s")
	t.Setenv("QBMCP_SERVER_TOKEN", "admin-token")
	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.QuickBooks.ClientID != "from-env" {
		t.Fatalf("env did not override file: %s", cfg.QuickBooks.ClientID)
	}
	if cfg.Server.Port != 9999 || cfg.HTTP.Timeout != 5*time.Second {
		t.Fatalf("unexpected overrides %+v %+v", cfg.Server, cfg.HTTP)
	}
	if cfg.Server.Token != "admin-token" {
		t.Fatalf("server token not read from env: %q", cfg.Server.Token)
	}
}

func TestValidate(t *testing.T) {
	c := &Config{}
	c.SetDefaults()
	c.QuickBooks.Env = "staging"
	c.Log.Format = "xml"
	err := c.Validate()
	if err == nil {
		t.Fatalf("expected validation error")
	}
	for _, want := range []string{"Env", "Format"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("error %q does not mention %s", err, want)
		}
	}
}

func TestValidateServe(t *testing.T) {
	c := &Config{}
	c.SetDefaults()
	c.Store.Path = filepath.Join(t.TempDir(), "nested", "qbmcp.db")
	if err := c.ValidateServe(); err != nil {
		t.Fatalf("validate serve: %v", err)
	}
	if _, err := os.Stat(filepath.Dir(c.Store.Path)); err != nil {
		t.Fatalf("store dir not created: %v", err)
	}
	c.Schema.OpenAPIPath = filepath.Join(t.TempDir(), "missing.json")
	if err := c.ValidateServe(); err == nil {
		t.Fatalf("expected missing schema file error")
	}
}

func TestMissing(t *testing.T) {
	c := &Config{}
	c.QuickBooks.CompanyID = "9130"
	c.QuickBooks.ClientSecret = "s"
	want := []string{"QUICKBOOKS_CLIENT_ID", "QUICKBOOKS_REFRESH_TOKEN"}
	if diff := cmp.Diff(want, c.Missing()); diff != "" {
		t.Fatalf("missing mismatch (-want +got):\n%s", diff)
	}
}
