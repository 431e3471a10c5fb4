// Package dispatch sends bound requests to QuickBooks.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/yourorg/qbmcp/pkg/types"
)

// Journal records call metadata. Response bodies are never passed in.
type Journal interface {
	RecordCall(ctx context.Context, rec types.CallRecord) error
}

// Redactor masks sensitive values before they are journaled.
type Redactor interface {
	RedactMap(m map[string]any) map[string]any
}

// Dispatcher sends Requests. A 401 triggers one credential refresh and one
// retry; nothing else is retried.
type Dispatcher struct {
	Session   *Session
	Transport Transport
	Journal   Journal
	Redactor  Redactor
	Logger    *slog.Logger
	// MinorVersion is added as the minorversion query parameter when set.
	MinorVersion string

	now func() time.Time
}

// Dispatch sends req and decodes the answer into a Response.
func (d *Dispatcher) Dispatch(ctx context.Context, req types.Request) (Response, error) {
	data, err := d.Fetch(ctx, req)
	if err != nil {
		return Response{}, err
	}
	resp, err := Decode(data)
	if err != nil {
		return Response{}, fmt.Errorf("%s %s: %w", req.Method, req.Route, err)
	}
	return resp, nil
}

// Fetch sends req and returns the raw 200 body.
func (d *Dispatcher) Fetch(ctx context.Context, req types.Request) ([]byte, error) {
	if d.Session == nil {
		return nil, &UninitializedSessionError{Missing: []string{"session"}}
	}
	start := d.clock()
	rec := types.CallRecord{
		ID:         uuid.NewString(),
		Operation:  req.Operation,
		Method:     req.Method,
		Route:      req.Route,
		Query:      d.redact(req.Query),
		BodyFields: fieldNames(req.Body),
		CreatedAt:  start.UTC(),
	}

	data, err := d.send(ctx, req, &rec)
	rec.LatencyMs = d.clock().Sub(start).Milliseconds()
	if err != nil {
		rec.Error = err.Error()
	}
	d.record(ctx, rec)
	return data, err
}

func (d *Dispatcher) send(ctx context.Context, req types.Request, rec *types.CallRecord) ([]byte, error) {
	sc, err := d.Session.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	call := Call{
		Method: req.Method,
		URL:    sc.BaseURL + "/v3/company/" + url.PathEscape(sc.RealmID) + req.Route,
		Query:  d.query(req.Query),
		Token:  sc.Token,
	}
	if req.Method != http.MethodGet {
		call.Body = req.Body
	}

	status, data, err := d.attempt(ctx, call, rec)
	if err != nil {
		return nil, err
	}
	if status == http.StatusUnauthorized {
		if d.Logger != nil {
			d.Logger.Info("access token rejected, refreshing", "operation", req.Operation)
		}
		tok, err := d.Session.Refresh(ctx, call.Token)
		if err != nil {
			return nil, errors.Join(&APIError{Status: status, Body: string(data)}, fmt.Errorf("refresh credentials: %w", err))
		}
		call.Token = tok
		status, data, err = d.attempt(ctx, call, rec)
		if err != nil {
			return nil, err
		}
	}
	if status != http.StatusOK {
		return nil, &APIError{Status: status, Body: string(data)}
	}
	return data, nil
}

func (d *Dispatcher) attempt(ctx context.Context, call Call, rec *types.CallRecord) (int, []byte, error) {
	rec.Attempts++
	status, data, err := d.Transport.Send(ctx, call)
	rec.StatusCode = status
	if err != nil {
		return status, nil, fmt.Errorf("%s %s: %w", call.Method, call.URL, err)
	}
	return status, data, nil
}

func (d *Dispatcher) query(q map[string]any) map[string]any {
	if d.MinorVersion == "" {
		return q
	}
	if _, ok := q["minorversion"]; ok {
		return q
	}
	out := make(map[string]any, len(q)+1)
	for k, v := range q {
		out[k] = v
	}
	out["minorversion"] = d.MinorVersion
	return out
}

func (d *Dispatcher) redact(q map[string]any) map[string]any {
	if len(q) == 0 {
		return nil
	}
	if d.Redactor == nil {
		return q
	}
	return d.Redactor.RedactMap(q)
}

func (d *Dispatcher) record(ctx context.Context, rec types.CallRecord) {
	if d.Logger != nil {
		d.Logger.Debug("quickbooks call", "operation", rec.Operation, "status", rec.StatusCode, "attempts", rec.Attempts, "latency_ms", rec.LatencyMs)
	}
	if d.Journal == nil {
		return
	}
	if err := d.Journal.RecordCall(context.WithoutCancel(ctx), rec); err != nil && d.Logger != nil {
		d.Logger.Warn("journal call", "error", err)
	}
}

func (d *Dispatcher) clock() time.Time {
	if d.now != nil {
		return d.now()
	}
	return time.Now()
}

func fieldNames(body map[string]any) []string {
	if len(body) == 0 {
		return nil
	}
	names := make([]string, 0, len(body))
	for k := range body {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
