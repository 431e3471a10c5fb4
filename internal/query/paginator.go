// Package query pages QuickBooks query-language requests.
package query

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Page sizes for query_quickbooks.
const (
	DefaultPageSize = 100
	MaxPageSize     = 1000
)

// PaginationError reports a malformed cursor, page size or paged query.
type PaginationError struct {
	Value  string
	Reason string
}

func (e *PaginationError) Error() string {
	return fmt.Sprintf("pagination: %s %q", e.Reason, e.Value)
}

// Page is the pagination block of a response.
type Page struct {
	Start      int
	MaxResults *int
	TotalCount *int
}

// NextCursor returns the start position of the following page, or false
// when there is none. Without a total count a full page is taken to mean
// more rows may follow, which can produce one empty trailing page.
func NextCursor(p Page, requested, returned int) (string, bool) {
	size := requested
	if p.MaxResults != nil && *p.MaxResults > 0 {
		size = *p.MaxResults
	}
	if size <= 0 {
		return "", false
	}
	next := p.Start + size
	if p.TotalCount != nil {
		if next <= *p.TotalCount {
			return strconv.Itoa(next), true
		}
		return "", false
	}
	if returned == size {
		return strconv.Itoa(next), true
	}
	return "", false
}

// ParseCursor accepts a non-negative integer start position. An empty
// cursor means the first page.
func ParseCursor(cursor string) (int, error) {
	cursor = strings.TrimSpace(cursor)
	if cursor == "" {
		return 1, nil
	}
	n, err := strconv.Atoi(cursor)
	if err != nil || n < 0 {
		return 0, &PaginationError{Value: cursor, Reason: "cursor must be a non-negative integer"}
	}
	return n, nil
}

// PageSize validates a requested page size; zero selects the default.
func PageSize(n int) (int, error) {
	switch {
	case n == 0:
		return DefaultPageSize, nil
	case n < 0 || n > MaxPageSize:
		return 0, &PaginationError{Value: strconv.Itoa(n), Reason: fmt.Sprintf("page size must be between 1 and %d", MaxPageSize)}
	}
	return n, nil
}

var pagingClause = regexp.MustCompile(`(?i)\b(STARTPOSITION|MAXRESULTS)\b`)

// Build appends the paging clauses to a query statement.
func Build(statement string, start, size int) (string, error) {
	statement = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(statement), ";"))
	if statement == "" {
		return "", &PaginationError{Reason: "query is empty"}
	}
	if m := pagingClause.FindString(statement); m != "" {
		return "", &PaginationError{Value: m, Reason: "query already contains a paging clause"}
	}
	if start < 1 {
		start = 1
	}
	return fmt.Sprintf("%s STARTPOSITION %d MAXRESULTS %d", statement, start, size), nil
}

// Result is a decoded QueryResponse.
type Result struct {
	Rows []any
	Page Page
	// Entities lists the keys rows were taken from.
	Entities []string
}

// ParseResponse extracts rows and pagination from a decoded
// {"QueryResponse": {...}} object.
func ParseResponse(body map[string]any) (Result, error) {
	raw, ok := body["QueryResponse"]
	if !ok {
		return Result{}, fmt.Errorf("query response has no QueryResponse object")
	}
	qr, ok := raw.(map[string]any)
	if !ok {
		return Result{}, fmt.Errorf("QueryResponse is %T, want object", raw)
	}

	var res Result
	keys := make([]string, 0, len(qr))
	for k := range qr {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if items, ok := qr[k].([]any); ok {
			res.Rows = append(res.Rows, items...)
			res.Entities = append(res.Entities, k)
		}
	}
	if v, ok := intValue(qr["startPosition"]); ok {
		res.Page.Start = v
	}
	if v, ok := intValue(qr["maxResults"]); ok {
		res.Page.MaxResults = &v
	}
	if v, ok := intValue(qr["totalCount"]); ok {
		res.Page.TotalCount = &v
	}
	return res, nil
}

func intValue(v any) (int, bool) {
	switch t := v.(type) {
	case json.Number:
		n, err := strconv.Atoi(t.String())
		return n, err == nil
	case float64:
		return int(t), t == float64(int(t))
	case int:
		return t, true
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(t))
		return n, err == nil
	}
	return 0, false
}
