package report

import "github.com/yourorg/qbmcp/pkg/types"

// MetaOptions carries the request side of a report call.
type MetaOptions struct {
	ReportName        string
	DateMacro         string
	SummarizeColumnBy string
	RealmID           string
}

// BuildMeta describes a report independently of its rows. TotalRows is
// left for the caller.
func BuildMeta(doc *Document, opts MetaOptions) types.ReportMeta {
	meta := types.ReportMeta{
		ReportName:         opts.ReportName,
		DateMacro:          TranslateDateMacro(opts.DateMacro),
		SummarizeColumnsBy: opts.SummarizeColumnBy,
		RealmID:            opts.RealmID,
		Columns:            []string{},
	}
	if doc == nil {
		return meta
	}
	if meta.ReportName == "" {
		meta.ReportName = doc.Header.ReportName
	}
	meta.StartPeriod = doc.Header.StartPeriod
	meta.EndPeriod = doc.Header.EndPeriod
	meta.Currency = doc.Header.Currency
	meta.Columns = doc.Titles()
	return meta
}
