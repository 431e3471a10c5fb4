package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/yourorg/qbmcp/pkg/types"
)

type memJournal struct {
	mu   sync.Mutex
	recs []types.CallRecord
}

func (j *memJournal) RecordCall(_ context.Context, rec types.CallRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.recs = append(j.recs, rec)
	return nil
}

func staticRefresher(tokens ...string) (Refresher, *int32) {
	var n int32
	return RefresherFunc(func(context.Context) (string, error) {
		i := atomic.AddInt32(&n, 1)
		if int(i) > len(tokens) {
			return tokens[len(tokens)-1], nil
		}
		return tokens[i-1], nil
	}), &n
}

func newTestDispatcher(t *testing.T, tr Transport, creds Refresher) (*Dispatcher, *memJournal) {
	t.Helper()
	j := &memJournal{}
	return &Dispatcher{
		Session:   NewSession(SessionConfig{BaseURL: "https://qb.test/", RealmID: "123", Credentials: creds}),
		Transport: tr,
		Journal:   j,
	}, j
}

func TestDispatchBuildsURLAndOmitsGETBody(t *testing.T) {
	creds, _ := staticRefresher("tok-1")
	var got Call
	d, _ := newTestDispatcher(t, TransportFunc(func(_ context.Context, c Call) (int, []byte, error) {
		got = c
		return 200, []byte(`{"Bill":{"Id":"42"}}`), nil
	}), creds)
	d.MinorVersion = "75"

	resp, err := d.Dispatch(context.Background(), types.Request{
		Route:  "/bill/42",
		Method: "GET",
		Query:  map[string]any{},
		Body:   map[string]any{"ignored": true},
	})
	if err != nil {
		t.Fatal(err)
	}
	if got.URL != "https://qb.test/v3/company/123/bill/42" {
		t.Fatalf("url = %q", got.URL)
	}
	if got.Body != nil {
		t.Fatalf("GET sent a body: %v", got.Body)
	}
	if got.Token != "tok-1" {
		t.Fatalf("token = %q", got.Token)
	}
	if got.Query["minorversion"] != "75" {
		t.Fatalf("minorversion not added: %v", got.Query)
	}
	if resp.Shape != ShapeObject {
		t.Fatalf("shape = %v", resp.Shape)
	}
}

func TestDispatchRetriesOnceAfter401(t *testing.T) {
	creds, refreshes := staticRefresher("old", "new")
	var tokens []string
	d, j := newTestDispatcher(t, TransportFunc(func(_ context.Context, c Call) (int, []byte, error) {
		tokens = append(tokens, c.Token)
		if c.Token == "old" {
			return 401, []byte(`{"fault":"expired"}`), nil
		}
		return 200, []byte(`[{"Id":"1"}]`), nil
	}), creds)

	resp, err := d.Dispatch(context.Background(), types.Request{Operation: "get_vendor", Route: "/vendor", Method: "GET"})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"old", "new"}, tokens); diff != "" {
		t.Fatalf("tokens (-want +got):\n%s", diff)
	}
	if atomic.LoadInt32(refreshes) != 2 {
		t.Fatalf("expected init + one refresh, got %d", *refreshes)
	}
	if resp.Shape != ShapeList {
		t.Fatalf("shape = %v", resp.Shape)
	}
	if len(j.recs) != 1 || j.recs[0].Attempts != 2 || j.recs[0].StatusCode != 200 {
		t.Fatalf("journal = %+v", j.recs)
	}
}

func TestDispatchSecond401IsAPIError(t *testing.T) {
	creds, _ := staticRefresher("a", "b", "c")
	var calls int32
	d, _ := newTestDispatcher(t, TransportFunc(func(context.Context, Call) (int, []byte, error) {
		atomic.AddInt32(&calls, 1)
		return 401, []byte(`denied`), nil
	}), creds)

	_, err := d.Dispatch(context.Background(), types.Request{Route: "/vendor", Method: "GET"})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Status != 401 || apiErr.Body != "denied" {
		t.Fatalf("unexpected error %+v", apiErr)
	}
	if calls != 2 {
		t.Fatalf("expected exactly 2 sends, got %d", calls)
	}
}

func TestDispatchOtherStatusIsNotRetried(t *testing.T) {
	creds, refreshes := staticRefresher("a")
	var calls int32
	d, j := newTestDispatcher(t, TransportFunc(func(context.Context, Call) (int, []byte, error) {
		atomic.AddInt32(&calls, 1)
		return 500, []byte(`boom`), nil
	}), creds)

	_, err := d.Dispatch(context.Background(), types.Request{Route: "/vendor", Method: "POST", Body: map[string]any{"Name": "x"}})
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != 500 {
		t.Fatalf("expected 500 APIError, got %v", err)
	}
	if calls != 1 || *refreshes != 1 {
		t.Fatalf("calls = %d refreshes = %d", calls, *refreshes)
	}
	if j.recs[0].Error == "" || j.recs[0].Attempts != 1 {
		t.Fatalf("journal = %+v", j.recs[0])
	}
	if diff := cmp.Diff([]string{"Name"}, j.recs[0].BodyFields); diff != "" {
		t.Fatalf("body fields (-want +got):\n%s", diff)
	}
}

func TestDispatchRefreshFailureKeepsAPIError(t *testing.T) {
	var n int32
	creds := RefresherFunc(func(context.Context) (string, error) {
		if atomic.AddInt32(&n, 1) == 1 {
			return "a", nil
		}
		return "", errors.New("invalid_grant")
	})
	d, _ := newTestDispatcher(t, TransportFunc(func(context.Context, Call) (int, []byte, error) {
		return 401, nil, nil
	}), creds)

	_, err := d.Dispatch(context.Background(), types.Request{Route: "/vendor", Method: "GET"})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if !strings.Contains(err.Error(), "invalid_grant") {
		t.Fatalf("refresh cause missing: %v", err)
	}
}

func TestDispatchUninitializedSession(t *testing.T) {
	d := &Dispatcher{
		Session: NewSession(SessionConfig{Missing: []string{"QUICKBOOKS_CLIENT_ID"}}),
		Transport: TransportFunc(func(context.Context, Call) (int, []byte, error) {
			t.Fatal("transport must not be called")
			return 0, nil, nil
		}),
	}
	_, err := d.Dispatch(context.Background(), types.Request{Route: "/vendor", Method: "GET"})
	var ue *UninitializedSessionError
	if !errors.As(err, &ue) {
		t.Fatalf("expected UninitializedSessionError, got %v", err)
	}
	if !strings.Contains(err.Error(), "QUICKBOOKS_CLIENT_ID") {
		t.Fatalf("remediation message missing variable: %v", err)
	}
}

func TestSessionInitRetriesAfterFailure(t *testing.T) {
	var n int32
	s := NewSession(SessionConfig{RealmID: "1", Credentials: RefresherFunc(func(context.Context) (string, error) {
		if atomic.AddInt32(&n, 1) == 1 {
			return "", errors.New("network down")
		}
		return "tok", nil
	})})
	err := s.Init(context.Background())
	var ue *UninitializedSessionError
	if !errors.As(err, &ue) || ue.Cause == nil {
		t.Fatalf("expected wrapped init failure, got %v", err)
	}
	if s.Ready() {
		t.Fatal("session should not be ready")
	}
	if err := s.Init(context.Background()); err != nil {
		t.Fatalf("second init: %v", err)
	}
	if !s.Ready() {
		t.Fatal("session should be ready")
	}
}

func TestSessionRefreshSkipsWhenAlreadyReplaced(t *testing.T) {
	creds, refreshes := staticRefresher("a", "b")
	s := NewSession(SessionConfig{Credentials: creds})
	if err := s.Init(context.Background()); err != nil {
		t.Fatal(err)
	}
	tok, err := s.Refresh(context.Background(), "a")
	if err != nil || tok != "b" {
		t.Fatalf("refresh = %q, %v", tok, err)
	}
	tok, err = s.Refresh(context.Background(), "a")
	if err != nil || tok != "b" {
		t.Fatalf("stale refresh = %q, %v", tok, err)
	}
	if *refreshes != 2 {
		t.Fatalf("refreshes = %d, want 2", *refreshes)
	}
}

func TestHTTPTransport(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if r.URL.Query().Get("minorversion") != "75" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		data, _ := io.ReadAll(r.Body)
		var body map[string]any
		_ = json.Unmarshal(data, &body)
		_ = json.NewEncoder(w).Encode(map[string]any{"method": r.Method, "path": r.URL.Path, "echo": body["DisplayName"]})
	}))
	defer srv.Close()

	tr := NewHTTPTransport(0, nil)
	status, data, err := tr.Send(context.Background(), Call{
		Method: "POST",
		URL:    srv.URL + "/v3/company/1/vendor",
		Query:  map[string]any{"minorversion": "75"},
		Body:   map[string]any{"DisplayName": "Acme"},
		Token:  "tok",
	})
	if err != nil {
		t.Fatal(err)
	}
	if status != 200 {
		t.Fatalf("status = %d body = %s", status, data)
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatal(err)
	}
	want := map[string]any{"method": "POST", "path": "/v3/company/1/vendor", "echo": "Acme"}
	if diff := cmp.Diff(want, out); diff != "" {
		t.Fatalf("echo (-want +got):\n%s", diff)
	}
}
