package report

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"pgregory.net/rapid"

	"github.com/yourorg/qbmcp/pkg/types"
)

func loadReport(t *testing.T) *Document {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", "profit_and_loss.json"))
	if err != nil {
		t.Fatal(err)
	}
	doc, err := Parse(data)
	if err != nil {
		t.Fatal(err)
	}
	return doc
}

func cells(values ...string) []ColValue {
	out := make([]ColValue, 0, len(values))
	for _, v := range values {
		out = append(out, NewColValue(v))
	}
	return out
}

func TestFlattenIncomeSales(t *testing.T) {
	doc := &Document{
		Columns: Columns{Column: []Column{{ColTitle: "Account"}, {ColTitle: "Jan"}, {ColTitle: "Feb"}}},
		Rows: Rows{Row: []Row{{
			Type:   "Section",
			Header: &ColRow{ColData: cells("Income")},
			Rows:   &Rows{Row: []Row{{Type: "Data", ColData: cells("Sales", "1000", "1200")}}},
		}}},
	}
	want := []types.ReportRow{
		{Line: "Income > Sales", Period: "Jan", Amount: 1000, LineType: "Data", Depth: 1},
		{Line: "Income > Sales", Period: "Feb", Amount: 1200, LineType: "Data", Depth: 1},
	}
	if diff := cmp.Diff(want, Flatten(doc)); diff != "" {
		t.Fatalf("rows (-want +got):\n%s", diff)
	}
}

func TestFlattenFixture(t *testing.T) {
	got := Flatten(loadReport(t))
	row := func(line, period string, amount float64, tag string, depth int, id string) types.ReportRow {
		return types.ReportRow{Line: line, Period: period, Amount: amount, LineType: tag, Depth: depth, LineID: id}
	}
	want := []types.ReportRow{
		row("Income > Sales", "Jan 2024", 1000, "Data", 1, "79"),
		row("Income > Sales", "Feb 2024", 1200, "Data", 1, "79"),
		row("Income > Sales", "Total", 2200, "Data", 1, "79"),
		row("Income > Services > Consulting", "Jan 2024", 300, "Data", 2, "80"),
		row("Income > Services > Consulting", "Total", 300, "Data", 2, "80"),
		row("Income > Services > Total Services", "Jan 2024", 300, "Summary", 2, ""),
		row("Income > Services > Total Services", "Total", 300, "Summary", 2, ""),
		row("Income > Total Income", "Jan 2024", 1300, "Summary", 1, ""),
		row("Income > Total Income", "Feb 2024", 1200, "Summary", 1, ""),
		row("Income > Total Income", "Total", 2500, "Summary", 1, ""),
		row("Net Income", "Jan 2024", 1300, "Summary", 0, ""),
		row("Net Income", "Feb 2024", 1200, "Summary", 0, ""),
		row("Net Income", "Total", 2500, "Summary", 0, ""),
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("rows (-want +got):\n%s", diff)
	}
}

func TestFlattenSectionLabelFallback(t *testing.T) {
	doc, err := Parse([]byte(`{"Columns":{"Column":[{"ColTitle":""},{"ColTitle":"Total"}]},"Rows":{"Row":[
		{"type":"Section","group":"NetIncome","Summary":{"ColData":[{"value":"Net Income"},{"value":"2500"}]}},
		{"type":"Section","group":"Expenses","title":"Expenses","Rows":{"Row":[{"type":"Data","ColData":[{"value":"Rent"},{"value":"900"}]}]}}
	]}}`))
	if err != nil {
		t.Fatal(err)
	}
	want := []types.ReportRow{
		{Line: "Net Income", Period: "Total", Amount: 2500, LineType: "Summary", Depth: 0},
		{Line: "Expenses > Rent", Period: "Total", Amount: 900, LineType: "Data", Depth: 1},
	}
	if diff := cmp.Diff(want, Flatten(doc)); diff != "" {
		t.Fatalf("rows (-want +got):\n%s", diff)
	}
}

func TestFlattenEdgeCases(t *testing.T) {
	doc := &Document{
		Columns: Columns{Column: []Column{{ColTitle: "Account"}, {ColTitle: "Jan"}}},
		Rows: Rows{Row: []Row{
			{Type: "Data", ColData: []ColValue{{}, NewColValue("5"), NewColValue("6")}},
			{Type: "Data", ColData: cells("Notes", "see attached", "")},
			{Type: "Section", Header: &ColRow{ColData: cells("")}, Rows: &Rows{Row: []Row{
				{Type: "Data", ColData: cells("Orphan", "NaN", "7.5")},
			}}},
		}},
	}
	want := []types.ReportRow{
		{Line: "", Period: "Jan", Amount: 5, LineType: "Data", Depth: 0},
		{Line: "", Period: "col_2", Amount: 6, LineType: "Data", Depth: 0},
		{Line: "Orphan", Period: "col_2", Amount: 7.5, LineType: "Data", Depth: 0},
	}
	if diff := cmp.Diff(want, Flatten(doc)); diff != "" {
		t.Fatalf("rows (-want +got):\n%s", diff)
	}
}

func TestColValueNumbers(t *testing.T) {
	doc, err := Parse([]byte(`{"Columns":{"Column":[{"ColTitle":"A"},{"ColTitle":"B"}]},"Rows":{"Row":[{"type":"Data","ColData":[{"value":"x"},{"value":12.5}]},{"type":"Data","ColData":[{"value":"y"},{"value":null}]}]}}`))
	if err != nil {
		t.Fatal(err)
	}
	rows := Flatten(doc)
	if len(rows) != 1 || rows[0].Amount != 12.5 || rows[0].Line != "x" {
		t.Fatalf("rows = %+v", rows)
	}
}

func TestFlattenIsTotalAndOrdered(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		ncols := rapid.IntRange(2, 5).Draw(t, "ncols")
		doc := &Document{}
		for i := 0; i < ncols; i++ {
			doc.Columns.Column = append(doc.Columns.Column, Column{ColTitle: fmt.Sprintf("P%d", i)})
		}
		nrows := rapid.IntRange(0, 10).Draw(t, "nrows")
		wantPerRow := make([]int, nrows)
		section := Row{Type: "Section", Header: &ColRow{ColData: cells("S")}, Rows: &Rows{}}
		for r := 0; r < nrows; r++ {
			vals := []string{fmt.Sprintf("L%d", r)}
			for c := 1; c < ncols; c++ {
				if rapid.Bool().Draw(t, fmt.Sprintf("num_%d_%d", r, c)) {
					vals = append(vals, fmt.Sprint(rapid.IntRange(-1000, 1000).Draw(t, fmt.Sprintf("v_%d_%d", r, c))))
					wantPerRow[r]++
				} else {
					vals = append(vals, "text")
				}
			}
			section.Rows.Row = append(section.Rows.Row, Row{Type: "Data", ColData: cells(vals...)})
		}
		doc.Rows.Row = []Row{section}

		rows := Flatten(doc)
		i := 0
		for r, n := range wantPerRow {
			line := fmt.Sprintf("S > L%d", r)
			for k := 0; k < n; k++ {
				if i >= len(rows) || rows[i].Line != line {
					t.Fatalf("row %d: expected line %q, got %+v", i, line, rows)
				}
				i++
			}
		}
		if i != len(rows) {
			t.Fatalf("extra rows: got %d, want %d", len(rows), i)
		}
	})
}

func TestTranslateDateMacro(t *testing.T) {
	cases := map[string]string{
		"Previous Month":       "Last Month",
		"Last Month":           "Last Month",
		"previous month":       "previous month",
		"Previous Fiscal Year": "Last Fiscal Year",
		"This Year-to-date":    "This Year-to-date",
	}
	for in, want := range cases {
		if got := TranslateDateMacro(in); got != want {
			t.Fatalf("TranslateDateMacro(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestBuildMeta(t *testing.T) {
	meta := BuildMeta(loadReport(t), MetaOptions{
		ReportName:        "ProfitAndLoss",
		DateMacro:         "Previous Month",
		SummarizeColumnBy: "Month",
		RealmID:           "123",
	})
	want := types.ReportMeta{
		ReportName:         "ProfitAndLoss",
		DateMacro:          "Last Month",
		StartPeriod:        "2024-01-01",
		EndPeriod:          "2024-02-29",
		Columns:            []string{"", "Jan 2024", "Feb 2024", "Total"},
		Currency:           "USD",
		SummarizeColumnsBy: "Month",
		RealmID:            "123",
	}
	if diff := cmp.Diff(want, meta); diff != "" {
		t.Fatalf("meta (-want +got):\n%s", diff)
	}
}
