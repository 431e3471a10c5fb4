package dispatch

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Shape tags a decoded response.
type Shape int

const (
	ShapeObject Shape = iota + 1
	ShapeList
)

func (s Shape) String() string {
	switch s {
	case ShapeObject:
		return "object"
	case ShapeList:
		return "list"
	}
	return "invalid"
}

// ResultsKey wraps list responses.
const ResultsKey = "results"

// Response is a decoded API answer. Body is always an object; list answers
// are stored under ResultsKey.
type Response struct {
	Shape Shape
	Body  map[string]any
}

// Decode performs the single object-or-list decode step. Numbers are kept
// as json.Number so amounts and ids are not rounded.
func Decode(data []byte) (Response, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return Response{}, fmt.Errorf("decode response: %w", err)
	}
	return Wrap(v)
}

// Wrap tags an already decoded value.
func Wrap(v any) (Response, error) {
	switch t := v.(type) {
	case map[string]any:
		return Response{Shape: ShapeObject, Body: t}, nil
	case []any:
		return Response{Shape: ShapeList, Body: map[string]any{ResultsKey: t}}, nil
	case nil:
		return Response{}, &TypeMismatchError{Got: "null"}
	default:
		return Response{}, &TypeMismatchError{Got: fmt.Sprintf("%T", t)}
	}
}
