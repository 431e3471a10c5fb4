package dispatch

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"
)

// QuickBooks API hosts.
const (
	SandboxBaseURL    = "https://sandbox-quickbooks.api.intuit.com"
	ProductionBaseURL = "https://quickbooks.api.intuit.com"
)

// BaseURL maps an environment name to its API host. Anything other than
// "production" selects the sandbox.
func BaseURL(env string) string {
	if strings.EqualFold(env, "production") {
		return ProductionBaseURL
	}
	return SandboxBaseURL
}

// SessionConfig is the typed input of a Session.
type SessionConfig struct {
	BaseURL     string
	RealmID     string
	Credentials Refresher
	// Missing names configuration that must be supplied before the first call.
	Missing []string
	Logger  *slog.Logger
}

// Context is a snapshot of the session used for one call.
type Context struct {
	BaseURL string
	RealmID string
	Token   string
}

// Session is the process-wide dispatch context. It is established lazily
// on first use and may be re-established after a failed attempt.
type Session struct {
	baseURL string
	realmID string
	creds   Refresher
	missing []string
	logger  *slog.Logger

	mu    sync.Mutex
	token string
	ready bool

	refresh singleflight.Group
}

func NewSession(cfg SessionConfig) *Session {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = SandboxBaseURL
	}
	return &Session{
		baseURL: base,
		realmID: cfg.RealmID,
		creds:   cfg.Credentials,
		missing: cfg.Missing,
		logger:  cfg.Logger,
	}
}

// RealmID returns the company id every call is scoped to.
func (s *Session) RealmID() string {
	return s.realmID
}

// Ready reports whether Init has succeeded.
func (s *Session) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready
}

// Init establishes the session. It is a no-op once it has succeeded.
func (s *Session) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initLocked(ctx)
}

func (s *Session) initLocked(ctx context.Context) error {
	if s.ready {
		return nil
	}
	if len(s.missing) > 0 || s.creds == nil {
		missing := s.missing
		if len(missing) == 0 {
			missing = []string{"credentials"}
		}
		return &UninitializedSessionError{Missing: missing}
	}
	tok, err := s.creds.Refresh(ctx)
	if err != nil {
		if s.logger != nil {
			s.logger.Warn("quickbooks session init failed", "error", err)
		}
		return &UninitializedSessionError{Cause: err}
	}
	s.token = tok
	s.ready = true
	if s.logger != nil {
		s.logger.Info("quickbooks session ready", "realm_id", s.realmID, "base_url", s.baseURL)
	}
	return nil
}

// Snapshot initializes the session if needed and returns the values for one call.
func (s *Session) Snapshot(ctx context.Context) (Context, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.initLocked(ctx); err != nil {
		return Context{}, err
	}
	return Context{BaseURL: s.baseURL, RealmID: s.realmID, Token: s.token}, nil
}

// Refresh replaces a rejected token. Concurrent callers share one refresh,
// and a caller whose stale token was already replaced gets the new one
// without another round trip.
func (s *Session) Refresh(ctx context.Context, stale string) (string, error) {
	v, err, _ := s.refresh.Do("token", func() (any, error) {
		s.mu.Lock()
		current := s.token
		s.mu.Unlock()
		if current != "" && current != stale {
			return current, nil
		}
		if s.creds == nil {
			return "", &UninitializedSessionError{Missing: []string{"credentials"}}
		}
		tok, err := s.creds.Refresh(ctx)
		if err != nil {
			return "", err
		}
		s.mu.Lock()
		s.token = tok
		s.ready = true
		s.mu.Unlock()
		return tok, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}
