package types

import (
	"encoding/json"
	"time"
)

// Report row tags.
const (
	LineData    = "Data"
	LineSummary = "Summary"
)

// ReportRow is one long-format (line, period) record of a flattened report.
type ReportRow struct {
	Line     string  `json:"line"`
	Period   string  `json:"period"`
	Amount   float64 `json:"amount"`
	LineType string  `json:"line_type"`
	Depth    int     `json:"depth"`
	LineID   string  `json:"line_id,omitempty"`
}

// ReportMeta describes the report a set of rows came from.
type ReportMeta struct {
	ReportName         string   `json:"report_name"`
	DateMacro          string   `json:"date_macro,omitempty"`
	StartPeriod        string   `json:"start_period,omitempty"`
	EndPeriod          string   `json:"end_period,omitempty"`
	Columns            []string `json:"columns"`
	Currency           string   `json:"currency,omitempty"`
	SummarizeColumnsBy string   `json:"summarize_column_by,omitempty"`
	RealmID            string   `json:"realm_id"`
	TotalRows          int      `json:"total_rows"`
}

// ToolDescriptor advertises one callable tool.
type ToolDescriptor struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

// CallRecord is one journaled dispatch. Response bodies are never recorded.
type CallRecord struct {
	ID         string         `json:"id"`
	Operation  string         `json:"operation"`
	Method     string         `json:"method"`
	Route      string         `json:"route"`
	Query      map[string]any `json:"query,omitempty"`
	BodyFields []string       `json:"body_fields,omitempty"`
	StatusCode int            `json:"status_code"`
	Attempts   int            `json:"attempts"`
	LatencyMs  int64          `json:"latency_ms"`
	Error      string         `json:"error,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}
