// Package report flattens QuickBooks report trees into long-format rows.
package report

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/yourorg/qbmcp/pkg/types"
)

// LineSeparator joins lineage labels.
const LineSeparator = " > "

// Flatten walks the row tree depth first and emits one row per numeric
// (line, column) cell. Non-numeric cells are skipped.
func Flatten(doc *Document) []types.ReportRow {
	if doc == nil {
		return nil
	}
	f := flattener{titles: doc.Titles()}
	f.rows(doc.Rows.Row, nil)
	return f.out
}

type flattener struct {
	titles []string
	out    []types.ReportRow
}

func (f *flattener) rows(rows []Row, lineage []string) {
	for _, r := range rows {
		if isSection(r) {
			f.section(r, lineage)
			continue
		}
		tag := r.Type
		if tag != types.LineSummary {
			tag = types.LineData
		}
		f.leaf(r.ColData, tag, lineage)
	}
}

func isSection(r Row) bool {
	return r.Type == "Section" || (r.Rows != nil && len(r.Rows.Row) > 0)
}

func (f *flattener) section(r Row, lineage []string) {
	label := sectionLabel(r)
	extended := lineage
	if label != "" {
		extended = append(append(make([]string, 0, len(lineage)+1), lineage...), label)
	}
	if r.Rows != nil {
		f.rows(r.Rows.Row, extended)
	}
	if r.Summary != nil {
		f.leaf(r.Summary.ColData, types.LineSummary, extended)
	}
}

func sectionLabel(r Row) string {
	if r.Header != nil && len(r.Header.ColData) > 0 {
		if v, ok := r.Header.ColData[0].Text(); ok && v != "" {
			return v
		}
	}
	return r.Title
}

func (f *flattener) leaf(cols []ColValue, tag string, lineage []string) {
	if len(cols) == 0 {
		return
	}
	parts := lineage
	label, ok := cols[0].Text()
	if ok && label != "" {
		parts = append(append(make([]string, 0, len(lineage)+1), lineage...), label)
	}
	line := strings.Join(parts, LineSeparator)

	for i := 1; i < len(cols); i++ {
		text, ok := cols[i].Text()
		if !ok {
			continue
		}
		amount, ok := parseAmount(text)
		if !ok {
			continue
		}
		f.out = append(f.out, types.ReportRow{
			Line:     line,
			Period:   f.period(i),
			Amount:   amount,
			LineType: tag,
			Depth:    len(lineage),
			LineID:   cols[0].ID,
		})
	}
}

func (f *flattener) period(i int) string {
	if i < len(f.titles) && f.titles[i] != "" {
		return f.titles[i]
	}
	return fmt.Sprintf("col_%d", i)
}

func parseAmount(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}
