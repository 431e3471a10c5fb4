package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/yourorg/qbmcp/internal/entity"
	"github.com/yourorg/qbmcp/internal/query"
	"github.com/yourorg/qbmcp/internal/report"
	"github.com/yourorg/qbmcp/pkg/types"
)

// Built-in tool names.
const (
	EntitySchemaTool = "get_quickbooks_entity_schema"
	QueryTool        = "query_quickbooks"
	ReportTool       = "get_quickbooks_report"
)

// pagedResult is the envelope of query and report tools.
type pagedResult struct {
	Result        any    `json:"result"`
	Meta          any    `json:"meta,omitempty"`
	NextPageToken string `json:"next_page_token,omitempty"`
}

type queryMeta struct {
	Entities      []string `json:"entities,omitempty"`
	StartPosition int      `json:"start_position"`
	MaxResults    *int     `json:"max_results,omitempty"`
	TotalCount    *int     `json:"total_count,omitempty"`
	Time          any      `json:"time,omitempty"`
}

func prop(typ, desc string) *jsonschema.Schema {
	return &jsonschema.Schema{Type: typ, Description: desc}
}

func objectSchema(required []string, names []string, props map[string]*jsonschema.Schema) *jsonschema.Schema {
	return &jsonschema.Schema{
		Type:                 "object",
		Properties:           props,
		PropertyOrder:        names,
		Required:             required,
		AdditionalProperties: &jsonschema.Schema{Not: &jsonschema.Schema{}},
	}
}

func entitySchemaTool(catalog *entity.Catalog) Tool {
	in := objectSchema([]string{"entity_name"}, []string{"entity_name"}, map[string]*jsonschema.Schema{
		"entity_name": prop("string", "Entity name, e.g. Bill or Customer. Case-sensitive."),
	})
	desc := "Fetches the schema for a given QuickBooks entity (e.g., 'Bill', 'Customer'). " +
		"Use this tool to understand the available fields for an entity before constructing a query with the `" + QueryTool + "` tool."
	if catalog != nil {
		desc += " Available entities: " + strings.Join(catalog.Names(), ", ") + "."
	}
	return Tool{
		Name:        EntitySchemaTool,
		ReadOnly:    true,
		Description: desc,
		InputSchema: in,
		Handler: validated(in, func(_ context.Context, args map[string]any) (any, error) {
			if catalog == nil {
				return nil, fmt.Errorf("entity catalogue is not loaded")
			}
			name := stringArg(args, "entity_name")
			s, err := catalog.Describe(name)
			if err != nil {
				return nil, err
			}
			return map[string]any{"schema": s, "entity": name}, nil
		}),
	}
}

func queryTool(d Dispatcher) Tool {
	in := objectSchema([]string{"query"}, []string{"query", "page_size", "page_token"}, map[string]*jsonschema.Schema{
		"query":      prop("string", "QuickBooks query statement, e.g. select * from Bill where TotalAmt > '100'. Do not add STARTPOSITION or MAXRESULTS."),
		"page_size":  prop("integer", fmt.Sprintf("Rows per page, 1 to %d. Defaults to %d.", query.MaxPageSize, query.DefaultPageSize)),
		"page_token": prop("string", "next_page_token from a previous call."),
	})
	desc := "Executes a SQL-like query on a QuickBooks entity and returns one page of rows. " +
		"**IMPORTANT**: Before using this tool, you MUST first use the `" + EntitySchemaTool + "` tool to get the schema for the entity you want to query (e.g., 'Bill', 'Customer'). " +
		"Pass next_page_token back as page_token to read the following page."
	return Tool{
		Name:        QueryTool,
		ReadOnly:    true,
		Description: desc,
		InputSchema: in,
		Handler: validated(in, func(ctx context.Context, args map[string]any) (any, error) {
			size, err := query.PageSize(intArg(args, "page_size"))
			if err != nil {
				return nil, err
			}
			start, err := query.ParseCursor(stringArg(args, "page_token"))
			if err != nil {
				return nil, err
			}
			if start < 1 {
				start = 1
			}
			stmt, err := query.Build(stringArg(args, "query"), start, size)
			if err != nil {
				return nil, err
			}
			resp, err := d.Dispatch(ctx, types.Request{
				Operation: QueryTool,
				Route:     "/query",
				Method:    "GET",
				Query:     map[string]any{"query": stmt},
			})
			if err != nil {
				return nil, err
			}
			res, err := query.ParseResponse(resp.Body)
			if err != nil {
				return nil, err
			}
			if res.Page.Start == 0 {
				res.Page.Start = start
			}
			rows := res.Rows
			if rows == nil {
				rows = []any{}
			}
			out := pagedResult{
				Result: rows,
				Meta: queryMeta{
					Entities:      res.Entities,
					StartPosition: res.Page.Start,
					MaxResults:    res.Page.MaxResults,
					TotalCount:    res.Page.TotalCount,
					Time:          resp.Body["time"],
				},
			}
			if next, ok := query.NextCursor(res.Page, size, len(res.Rows)); ok {
				out.NextPageToken = next
			}
			return out, nil
		}),
	}
}

func reportTool(d Dispatcher, realmID string) Tool {
	in := objectSchema([]string{"report_name"},
		[]string{"report_name", "date_macro", "start_date", "end_date", "summarize_column_by", "accounting_method", "page_size", "page_token"},
		map[string]*jsonschema.Schema{
			"report_name":         prop("string", "Report name, e.g. ProfitAndLoss, BalanceSheet, CashFlow, AgedReceivables."),
			"date_macro":          prop("string", "Relative date range such as This Month or Last Fiscal Year. Previous X is accepted for Last X."),
			"start_date":          {Type: "string", Format: "date", Description: "Start date (YYYY-MM-DD). Overrides date_macro."},
			"end_date":            {Type: "string", Format: "date", Description: "End date (YYYY-MM-DD). Overrides date_macro."},
			"summarize_column_by": prop("string", "Column grouping: Total, Month, Week, Days, Quarter, Year, Customers, Vendors, Classes, Departments."),
			"accounting_method":   {Type: "string", Enum: []any{"Cash", "Accrual"}, Description: "Accounting method."},
			"page_size":           prop("integer", fmt.Sprintf("Rows per page, 1 to %d. Omit for all rows.", query.MaxPageSize)),
			"page_token":          prop("string", "next_page_token from a previous call."),
		})
	synonyms := make([]string, 0)
	for k := range report.DateMacros() {
		synonyms = append(synonyms, k)
	}
	sort.Strings(synonyms)
	desc := "Runs a QuickBooks report and returns it flattened into long-format rows " +
		"{line, period, amount, line_type, depth, line_id}, one per line and column, with report metadata. " +
		"Accepted date_macro synonyms: " + strings.Join(synonyms, ", ") + "."
	return Tool{
		Name:        ReportTool,
		ReadOnly:    true,
		Description: desc,
		InputSchema: in,
		Handler: validated(in, func(ctx context.Context, args map[string]any) (any, error) {
			name := strings.TrimSpace(stringArg(args, "report_name"))
			macro := report.TranslateDateMacro(stringArg(args, "date_macro"))
			params := make(map[string]any)
			if macro != "" {
				params["date_macro"] = macro
			}
			for _, k := range []string{"start_date", "end_date", "summarize_column_by", "accounting_method"} {
				if v := stringArg(args, k); v != "" {
					params[k] = v
				}
			}
			data, err := d.Fetch(ctx, types.Request{
				Operation: ReportTool,
				Route:     "/reports/" + url.PathEscape(name),
				Method:    "GET",
				Query:     params,
			})
			if err != nil {
				return nil, err
			}
			doc, err := report.Parse(data)
			if err != nil {
				return nil, err
			}
			rows := report.Flatten(doc)
			if rows == nil {
				rows = []types.ReportRow{}
			}
			meta := report.BuildMeta(doc, report.MetaOptions{
				ReportName:        name,
				DateMacro:         stringArg(args, "date_macro"),
				SummarizeColumnBy: stringArg(args, "summarize_column_by"),
				RealmID:           realmID,
			})
			meta.TotalRows = len(rows)

			out := pagedResult{Result: rows, Meta: meta}
			if _, paged := args["page_size"]; !paged && stringArg(args, "page_token") == "" {
				return out, nil
			}
			size, err := query.PageSize(intArg(args, "page_size"))
			if err != nil {
				return nil, err
			}
			start, err := query.ParseCursor(stringArg(args, "page_token"))
			if err != nil {
				return nil, err
			}
			if start < 1 {
				start = 1
			}
			page := sliceRows(rows, start, size)
			out.Result = page
			total := len(rows)
			if next, ok := query.NextCursor(query.Page{Start: start, TotalCount: &total}, size, len(page)); ok {
				out.NextPageToken = next
			}
			return out, nil
		}),
	}
}

// sliceRows returns the 1-based page [start, start+size).
func sliceRows(rows []types.ReportRow, start, size int) []types.ReportRow {
	from := start - 1
	if from >= len(rows) {
		return []types.ReportRow{}
	}
	to := from + size
	if to > len(rows) {
		to = len(rows)
	}
	return rows[from:to]
}

// validated checks arguments against the tool's input schema before h runs.
func validated(in *jsonschema.Schema, h Handler) Handler {
	resolved, err := in.Resolve(nil)
	if err != nil {
		panic(fmt.Sprintf("tools: invalid built-in schema: %v", err))
	}
	return func(ctx context.Context, args map[string]any) (any, error) {
		plain, err := plainJSON(args)
		if err != nil {
			return nil, err
		}
		if err := resolved.Validate(plain); err != nil {
			return nil, fmt.Errorf("invalid arguments: %w", err)
		}
		return h(ctx, args)
	}
}

// plainJSON re-decodes args with float64 numbers, which the validator expects.
func plainJSON(args map[string]any) (map[string]any, error) {
	data, err := json.Marshal(args)
	if err != nil {
		return nil, err
	}
	out := make(map[string]any)
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func stringArg(args map[string]any, key string) string {
	switch v := args[key].(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

func intArg(args map[string]any, key string) int {
	switch v := args[key].(type) {
	case json.Number:
		n, _ := strconv.Atoi(v.String())
		return n
	case float64:
		return int(v)
	case int:
		return v
	case string:
		n, _ := strconv.Atoi(strings.TrimSpace(v))
		return n
	}
	return 0
}
