package types

// Parameter locations. Anything else (including "unknown") is never bound.
const (
	LocationPath    = "path"
	LocationQuery   = "query"
	LocationUnknown = "unknown"
)

// NoDescription marks a body field or parameter the interface description left undocumented.
const NoDescription = "No description provided"

// OperationDescriptor is one compiled (route, method) pair.
type OperationDescriptor struct {
	Route               string                `json:"route"`
	Method              string                `json:"method"`
	Summary             string                `json:"summary,omitempty"`
	Parameters          []ParameterDescriptor `json:"parameters,omitempty"`
	RequestBody         RequestBody           `json:"request_body,omitempty"`
	ResponseDescription string                `json:"response_description"`
}

// ParameterDescriptor describes one declared parameter.
type ParameterDescriptor struct {
	Name        string `json:"name"`
	Location    string `json:"location"`
	Required    bool   `json:"required"`
	Type        string `json:"type"`
	Description string `json:"description"`
}

// Bindable reports whether the parameter can be placed into a request.
func (p ParameterDescriptor) Bindable() bool {
	return p.Location == LocationPath || p.Location == LocationQuery
}

// BodyField is one documented request body field. Scalar bodies carry a
// single entry whose Field is the scalar type name.
type BodyField struct {
	Field       string `json:"field"`
	Description string `json:"description"`
}

// RequestBody lists body fields in document order. Nil means no body.
type RequestBody []BodyField

// Map returns the body as field -> description.
func (b RequestBody) Map() map[string]string {
	if b == nil {
		return nil
	}
	out := make(map[string]string, len(b))
	for _, f := range b {
		out[f.Field] = f.Description
	}
	return out
}

// Request is a fully bound call ready for dispatch.
type Request struct {
	Operation string         `json:"operation,omitempty"`
	Route     string         `json:"route"`
	Method    string         `json:"method"`
	Query     map[string]any `json:"query"`
	Body      map[string]any `json:"body,omitempty"`
}
