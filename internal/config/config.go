package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

const (
	defaultDirName  = ".qbmcp"
	defaultFileName = "config.yaml"
)

var validate = validator.New()

type QuickBooksConfig struct {
	Env          string `yaml:"env" validate:"oneof=sandbox production"`
	CompanyID    string `yaml:"company_id"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	RefreshToken string `yaml:"refresh_token"`
	TokenURL     string `yaml:"token_url" validate:"omitempty,url"`
	MinorVersion string `yaml:"minor_version" validate:"omitempty,numeric"`
}

// SchemaConfig points at replacement documents. Empty paths use the
// embedded defaults.
type SchemaConfig struct {
	OpenAPIPath  string `yaml:"openapi_path"`
	EntitiesPath string `yaml:"entities_path"`
	ToolsPath    string `yaml:"tools_path"`
}

type StoreConfig struct {
	// Path is the sqlite file. Empty disables the call journal.
	Path string `yaml:"path"`
}

type SanitizeConfig struct {
	Fields      []string `yaml:"fields"`
	Replacement string   `yaml:"replacement"`
}

type HTTPConfig struct {
	Timeout time.Duration `yaml:"timeout" validate:"min=1s"`
}

type ServerConfig struct {
	Host string `yaml:"host" validate:"required"`
	Port int    `yaml:"port" validate:"min=1,max=65535"`
	// Token is the bearer token the admin API requires on tool calls.
	Token string `yaml:"token"`
}

type LogConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=text json"`
}

type Config struct {
	QuickBooks QuickBooksConfig `yaml:"quickbooks"`
	Schema     SchemaConfig     `yaml:"schema"`
	Store      StoreConfig      `yaml:"store"`
	Sanitize   SanitizeConfig   `yaml:"sanitize"`
	HTTP       HTTPConfig       `yaml:"http"`
	Server     ServerConfig     `yaml:"server"`
	Log        LogConfig        `yaml:"log"`
}

// Dir returns ~/.qbmcp.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, defaultDirName), nil
}

// Load loads YAML config, then applies env overrides.
func Load(configPath string) (*Config, error) {
	cfg := &Config{}

	if configPath == "" {
		dir, err := Dir()
		if err != nil {
			return nil, err
		}
		configPath = filepath.Join(dir, defaultFileName)
	}

	if data, err := os.ReadFile(configPath); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("read config: %w", err)
	}

	applyEnvOverrides(cfg)
	cfg.SetDefaults()
	for _, p := range []*string{&cfg.Schema.OpenAPIPath, &cfg.Schema.EntitiesPath, &cfg.Schema.ToolsPath, &cfg.Store.Path} {
		*p = expandHome(*p)
	}
	return cfg, nil
}

func (c *Config) SetDefaults() {
	c.QuickBooks.Env = strings.ToLower(strings.TrimSpace(c.QuickBooks.Env))
	if c.QuickBooks.Env == "" {
		c.QuickBooks.Env = "sandbox"
	}
	if len(c.Sanitize.Fields) == 0 {
		c.Sanitize.Fields = []string{"password", "secret", "token", "access_token", "refresh_token", "client_secret", "TaxIdentifier", "AcctNum"}
	}
	if c.Sanitize.Replacement == "" {
		c.Sanitize.Replacement = "***REDACTED***"
	}
	if c.HTTP.Timeout == 0 {
		c.HTTP.Timeout = 60 * time.Second
	}
	if c.Server.Host == "" {
		c.Server.Host = "127.0.0.1"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 3030
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s: failed %s", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// ValidateServe enforces serve-specific requirements. Missing credentials
// are not an error here; the first tool call reports them.
func (c *Config) ValidateServe() error {
	if err := c.Validate(); err != nil {
		return err
	}
	for _, p := range []string{c.Schema.OpenAPIPath, c.Schema.EntitiesPath, c.Schema.ToolsPath} {
		if p == "" {
			continue
		}
		if _, err := os.Stat(p); err != nil {
			return fmt.Errorf("schema file: %w", err)
		}
	}
	if c.Store.Path != "" {
		if err := os.MkdirAll(filepath.Dir(c.Store.Path), 0o755); err != nil {
			return fmt.Errorf("store dir: %w", err)
		}
	}
	return nil
}

// Missing lists the env names of credentials that are not configured.
func (c *Config) Missing() []string {
	var out []string
	check := func(v, name string) {
		if strings.TrimSpace(v) == "" {
			out = append(out, name)
		}
	}
	check(c.QuickBooks.CompanyID, "QUICKBOOKS_COMPANY_ID")
	check(c.QuickBooks.ClientID, "QUICKBOOKS_CLIENT_ID")
	check(c.QuickBooks.ClientSecret, "QUICKBOOKS_CLIENT_SECRET")
	check(c.QuickBooks.RefreshToken, "QUICKBOOKS_REFRESH_TOKEN")
	return out
}

func (c *Config) Addr() string {
	return c.Server.Host + ":" + strconv.Itoa(c.Server.Port)
}

func applyEnvOverrides(c *Config) {
	setString(&c.QuickBooks.Env, "QUICKBOOKS_ENV")
	setString(&c.QuickBooks.CompanyID, "QUICKBOOKS_COMPANY_ID")
	setString(&c.QuickBooks.ClientID, "QUICKBOOKS_CLIENT_ID")
	setString(&c.QuickBooks.ClientSecret, "QUICKBOOKS_CLIENT_SECRET")
	setString(&c.QuickBooks.RefreshToken, "QUICKBOOKS_REFRESH_TOKEN")
	setString(&c.QuickBooks.TokenURL, "QBMCP_TOKEN_URL")
	setString(&c.QuickBooks.MinorVersion, "QBMCP_MINOR_VERSION")
	setString(&c.Schema.OpenAPIPath, "QBMCP_OPENAPI_PATH")
	setString(&c.Schema.EntitiesPath, "QBMCP_ENTITIES_PATH")
	setString(&c.Schema.ToolsPath, "QBMCP_TOOLS_PATH")
	setString(&c.Store.Path, "QBMCP_STORE_PATH")
	setDuration(&c.HTTP.Timeout, "QBMCP_HTTP_TIMEOUT")
	setString(&c.Server.Host, "QBMCP_SERVER_HOST")
	setInt(&c.Server.Port, "QBMCP_SERVER_PORT")
	setString(&c.Server.Token, "QBMCP_SERVER_TOKEN")
	setString(&c.Log.Level, "QBMCP_LOG_LEVEL")
	setString(&c.Log.Format, "QBMCP_LOG_FORMAT")
}

func expandHome(p string) string {
	if !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, p[2:])
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
