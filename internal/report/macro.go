package report

// previousToLast maps caller synonyms onto the date macros the Reports API
// accepts. Lookup is exact and case-sensitive.
var previousToLast = map[string]string{
	"Previous Week":                     "Last Week",
	"Previous Week-to-date":             "Last Week-to-date",
	"Previous Month":                    "Last Month",
	"Previous Month-to-date":            "Last Month-to-date",
	"Previous Fiscal Quarter":           "Last Fiscal Quarter",
	"Previous Fiscal Quarter-to-date":   "Last Fiscal Quarter-to-date",
	"Previous Fiscal Year":              "Last Fiscal Year",
	"Previous Fiscal Year-to-date":      "Last Fiscal Year-to-date",
	"Previous Calendar Quarter":         "Last Calendar Quarter",
	"Previous Calendar Quarter-to-date": "Last Calendar Quarter-to-date",
	"Previous Calendar Year":            "Last Calendar Year",
	"Previous Calendar Year-to-date":    "Last Calendar Year-to-date",
	"Previous Quarter":                  "Last Quarter",
	"Previous Year":                     "Last Year",
	"Previous Year-to-date":             "Last Year-to-date",
}

// TranslateDateMacro returns the API spelling of macro. Unknown values are
// returned unchanged.
func TranslateDateMacro(macro string) string {
	if v, ok := previousToLast[macro]; ok {
		return v
	}
	return macro
}

// DateMacros lists the accepted "Previous" synonyms.
func DateMacros() map[string]string {
	out := make(map[string]string, len(previousToLast))
	for k, v := range previousToLast {
		out[k] = v
	}
	return out
}
