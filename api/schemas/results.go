package schemas

import (
	"encoding/json"
	"fmt"
)

// -- Reference Broker Schemas --

// HandleID is an opaque key under which the broker keeps a library object.
// Keys have the form <namespace>.<registry>.<uuid>.
type HandleID string

// String implements fmt.Stringer.
func (h HandleID) String() string { return string(h) }

// ResultKind tells which variant of a Result is populated.
type ResultKind string

const (
	// ResultValue marks a plain, JSON-compatible value.
	ResultValue ResultKind = "value"
	// ResultHandle marks a reference to an object held in the handle registry.
	ResultHandle ResultKind = "handle"
)

// String implements fmt.Stringer.
func (k ResultKind) String() string { return string(k) }

// Result is the outcome of a brokered invocation: either a plain value or a
// handle to an object the caller cannot receive by value.
type Result struct {
	Kind   ResultKind  `json:"kind"`
	Value  interface{} `json:"value,omitempty"`
	Handle HandleID    `json:"handle,omitempty"`
}

// ValueResult wraps a plain value.
func ValueResult(v interface{}) Result {
	return Result{Kind: ResultValue, Value: v}
}

// HandleResult wraps a handle key.
func HandleResult(id HandleID) Result {
	return Result{Kind: ResultHandle, Handle: id}
}

// IsHandle reports whether the result carries a handle.
func (r Result) IsHandle() bool { return r.Kind == ResultHandle }

// Interface returns what crosses the transport boundary: the handle key as a
// string for handles, the value itself otherwise.
func (r Result) Interface() interface{} {
	if r.IsHandle() {
		return string(r.Handle)
	}
	return r.Value
}

// UnmarshalJSON validates the kind while decoding.
func (r *Result) UnmarshalJSON(data []byte) error {
	type alias Result
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	switch a.Kind {
	case ResultValue, ResultHandle:
	default:
		return fmt.Errorf("unknown result kind %q", a.Kind)
	}
	if a.Kind == ResultHandle && a.Handle == "" {
		return fmt.Errorf("handle result without handle key")
	}
	*r = Result(a)
	return nil
}
