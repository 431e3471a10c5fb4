package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"time"
)

// Call is one outbound HTTP exchange.
type Call struct {
	Method string
	URL    string
	Query  map[string]any
	Body   map[string]any
	Token  string
}

// Transport performs a Call and returns the raw status and body. Timeouts
// belong to the transport.
type Transport interface {
	Send(ctx context.Context, call Call) (int, []byte, error)
}

// TransportFunc adapts a function to Transport.
type TransportFunc func(ctx context.Context, call Call) (int, []byte, error)

func (f TransportFunc) Send(ctx context.Context, call Call) (int, []byte, error) {
	return f(ctx, call)
}

// HTTPTransport sends calls with net/http. It never retries.
type HTTPTransport struct {
	HTTPClient *http.Client
	UserAgent  string
	Logger     *slog.Logger
}

// NewHTTPTransport returns a transport with the given request timeout.
func NewHTTPTransport(timeout time.Duration, logger *slog.Logger) *HTTPTransport {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &HTTPTransport{
		HTTPClient: &http.Client{Timeout: timeout},
		UserAgent:  "qbmcp",
		Logger:     logger,
	}
}

func (t *HTTPTransport) Send(ctx context.Context, call Call) (int, []byte, error) {
	client := t.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	endpoint, err := url.Parse(call.URL)
	if err != nil {
		return 0, nil, err
	}
	if len(call.Query) > 0 {
		q := endpoint.Query()
		for _, k := range sortedKeys(call.Query) {
			addQueryValue(q, k, call.Query[k])
		}
		endpoint.RawQuery = q.Encode()
	}

	var body io.Reader
	if call.Body != nil {
		data, err := json.Marshal(call.Body)
		if err != nil {
			return 0, nil, fmt.Errorf("encode request body: %w", err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, call.Method, endpoint.String(), body)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if call.Token != "" {
		req.Header.Set("Authorization", "Bearer "+call.Token)
	}
	if t.UserAgent != "" {
		req.Header.Set("User-Agent", t.UserAgent)
	}
	if t.Logger != nil {
		t.Logger.Debug("quickbooks request", "method", call.Method, "url", endpoint.String())
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, err
	}
	if t.Logger != nil {
		t.Logger.Debug("quickbooks response", "status", resp.StatusCode, "bytes", len(data))
	}
	return resp.StatusCode, data, nil
}

func addQueryValue(q url.Values, key string, v any) {
	switch t := v.(type) {
	case []any:
		for _, item := range t {
			q.Add(key, fmt.Sprint(item))
		}
	case []string:
		for _, item := range t {
			q.Add(key, item)
		}
	default:
		q.Add(key, fmt.Sprint(v))
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
