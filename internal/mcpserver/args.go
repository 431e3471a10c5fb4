package mcpserver

import "encoding/json"

// rawArgs keeps a call's arguments verbatim so the Toolset validates and
// decodes them itself. Structs embedding it only shape the input schema
// mcp-go derives from the handler type; their exported fields stay zero.
type rawArgs struct {
	raw json.RawMessage
}

func (a *rawArgs) UnmarshalJSON(b []byte) error {
	a.raw = append(json.RawMessage(nil), b...)
	return nil
}

type operationArgs struct {
	rawArgs
}

// Tag descriptions cannot contain commas.
type entitySchemaArgs struct {
	rawArgs
	EntityName string `json:"entity_name" jsonschema:"required,description=Entity name such as Bill or Customer (case-sensitive)"`
}

type queryArgs struct {
	rawArgs
	Query     string `json:"query" jsonschema:"required,description=QuickBooks query statement without STARTPOSITION or MAXRESULTS"`
	PageSize  int    `json:"page_size,omitempty" jsonschema:"description=Rows per page"`
	PageToken string `json:"page_token,omitempty" jsonschema:"description=next_page_token from a previous call"`
}

type reportArgs struct {
	rawArgs
	ReportName        string `json:"report_name" jsonschema:"required,description=Report name such as ProfitAndLoss or BalanceSheet"`
	DateMacro         string `json:"date_macro,omitempty" jsonschema:"description=Relative date range such as This Month"`
	StartDate         string `json:"start_date,omitempty" jsonschema:"description=Start date (YYYY-MM-DD)"`
	EndDate           string `json:"end_date,omitempty" jsonschema:"description=End date (YYYY-MM-DD)"`
	SummarizeColumnBy string `json:"summarize_column_by,omitempty" jsonschema:"description=Column grouping such as Month or Customers"`
	AccountingMethod  string `json:"accounting_method,omitempty" jsonschema:"description=Cash or Accrual"`
	PageSize          int    `json:"page_size,omitempty" jsonschema:"description=Rows per page; omit for all rows"`
	PageToken         string `json:"page_token,omitempty" jsonschema:"description=next_page_token from a previous call"`
}
