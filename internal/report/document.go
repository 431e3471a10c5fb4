package report

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Document is a QuickBooks report as returned by /reports/{name}.
type Document struct {
	Header  Header  `json:"Header"`
	Columns Columns `json:"Columns"`
	Rows    Rows    `json:"Rows"`
}

type Header struct {
	ReportName         string `json:"ReportName"`
	DateMacro          string `json:"DateMacro"`
	StartPeriod        string `json:"StartPeriod"`
	EndPeriod          string `json:"EndPeriod"`
	Currency           string `json:"Currency"`
	SummarizeColumnsBy string `json:"SummarizeColumnsBy"`
	Time               string `json:"Time"`
}

type Columns struct {
	Column []Column `json:"Column"`
}

type Column struct {
	ColTitle string `json:"ColTitle"`
	ColType  string `json:"ColType"`
}

type Rows struct {
	Row []Row `json:"Row"`
}

// Row is a Section, Data or Summary node.
type Row struct {
	Type    string     `json:"type"`
	Group   string     `json:"group"`
	Title   string     `json:"title"`
	Header  *ColRow    `json:"Header"`
	Rows    *Rows      `json:"Rows"`
	Summary *ColRow    `json:"Summary"`
	ColData []ColValue `json:"ColData"`
}

type ColRow struct {
	ColData []ColValue `json:"ColData"`
}

// ColValue is one cell. QuickBooks sends strings, but numbers and null
// also occur.
type ColValue struct {
	Value json.RawMessage `json:"value"`
	ID    string          `json:"id"`
}

// Text returns the cell as text; ok is false for a missing or null value.
func (c ColValue) Text() (string, bool) {
	raw := bytes.TrimSpace(c.Value)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", false
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", false
		}
		return s, true
	}
	return string(raw), true
}

// Parse decodes a report body.
func Parse(data []byte) (*Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode report: %w", err)
	}
	return &doc, nil
}

// Titles lists the column titles in order.
func (d *Document) Titles() []string {
	out := make([]string, 0, len(d.Columns.Column))
	for _, c := range d.Columns.Column {
		out = append(out, c.ColTitle)
	}
	return out
}

// NewColValue builds a string cell. Used when assembling reports in code.
func NewColValue(v string) ColValue {
	b, _ := json.Marshal(v)
	return ColValue{Value: b}
}
