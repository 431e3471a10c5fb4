package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"golang.org/x/oauth2"
)

// DefaultTokenURL is the Intuit OAuth2 token endpoint.
const DefaultTokenURL = "https://oauth.platform.intuit.com/oauth2/v1/tokens/bearer"

// Refresher obtains a fresh bearer credential.
type Refresher interface {
	Refresh(ctx context.Context) (string, error)
}

// RefresherFunc adapts a function to Refresher.
type RefresherFunc func(ctx context.Context) (string, error)

func (f RefresherFunc) Refresh(ctx context.Context) (string, error) {
	return f(ctx)
}

// TokenStore persists rotated refresh tokens per company. origin is the
// configured refresh token the stored one descends from.
type TokenStore interface {
	LoadRefreshToken(ctx context.Context, realmID string) (token, origin string, err error)
	SaveRefreshToken(ctx context.Context, realmID, token, origin string) error
}

// OAuthRefresher exchanges a refresh token for an access token. Intuit
// rotates refresh tokens; the latest one is kept in memory and, with a
// Store, persisted. A stored token is used only while the configured token
// it was rotated from is still the configured one.
type OAuthRefresher struct {
	Config     oauth2.Config
	RealmID    string
	Store      TokenStore
	HTTPClient *http.Client
	Logger     *slog.Logger

	mu           sync.Mutex
	configured   string
	refreshToken string
	restored     bool
}

// NewOAuthRefresher builds a refresher for the given client credentials.
// An empty tokenURL selects DefaultTokenURL.
func NewOAuthRefresher(clientID, clientSecret, refreshToken, tokenURL, realmID string) *OAuthRefresher {
	if tokenURL == "" {
		tokenURL = DefaultTokenURL
	}
	return &OAuthRefresher{
		Config: oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Endpoint: oauth2.Endpoint{
				TokenURL:  tokenURL,
				AuthStyle: oauth2.AuthStyleInHeader,
			},
		},
		RealmID:      realmID,
		configured:   refreshToken,
		refreshToken: refreshToken,
	}
}

// Restore reads the persisted refresh token once. Later calls are no-ops,
// so a rotated in-memory token is never replaced by a stored one.
func (r *OAuthRefresher) Restore(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.restoreLocked(ctx)
}

func (r *OAuthRefresher) restoreLocked(ctx context.Context) error {
	if r.restored || r.Store == nil {
		r.restored = true
		return nil
	}
	r.restored = true
	stored, origin, err := r.Store.LoadRefreshToken(ctx, r.RealmID)
	if err != nil {
		return fmt.Errorf("load refresh token: %w", err)
	}
	switch {
	case stored == "":
	case r.configured == "" || origin == r.configured:
		r.refreshToken = stored
	default:
		if r.Logger != nil {
			r.Logger.Info("configured refresh token changed, ignoring stored token", "realm_id", r.RealmID)
		}
	}
	return nil
}

// RefreshToken returns the refresh token currently in use.
func (r *OAuthRefresher) RefreshToken() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.refreshToken
}

func (r *OAuthRefresher) Refresh(ctx context.Context) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.restoreLocked(ctx); err != nil {
		r.warn("restore refresh token", err)
	}
	if r.refreshToken == "" {
		return "", errors.New("no refresh token configured")
	}

	if r.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, r.HTTPClient)
	}
	tok, err := r.Config.TokenSource(ctx, &oauth2.Token{RefreshToken: r.refreshToken}).Token()
	if err != nil {
		return "", fmt.Errorf("refresh access token: %w", err)
	}
	if tok.RefreshToken != "" && tok.RefreshToken != r.refreshToken {
		r.refreshToken = tok.RefreshToken
		if r.Store != nil {
			if err := r.Store.SaveRefreshToken(ctx, r.RealmID, tok.RefreshToken, r.configured); err != nil {
				r.warn("save rotated refresh token", err)
			}
		}
		if r.Logger != nil {
			r.Logger.Info("refresh token rotated", "realm_id", r.RealmID)
		}
	}
	return tok.AccessToken, nil
}

func (r *OAuthRefresher) warn(msg string, err error) {
	if r.Logger != nil {
		r.Logger.Warn(msg, "realm_id", r.RealmID, "error", err)
	}
}
