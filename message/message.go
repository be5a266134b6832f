// Package message defines the RPC envelopes exchanged between caller and dispatcher.
//
// Request and Result are the "envelopes" of every call. They get serialized by
// the codec layer and carried as one transport message each.
//
//	Request: {"id": "01J...", "obj": "foo", "method": "AddTwo", "args": [{"A": 10, "B": 5}]}
//	Result:  {"id": "01J...", "error": "", "result": 15}
package message

import "netcall/value"

// Error strings sent to the remote caller. Internal failure details never
// cross the wire; these are the only messages a dispatcher produces.
const (
	ErrNotRegistered  = "Requested object is not registered."
	ErrMethodNotFound = "Requested method of object does not exist."
	ErrInvocation     = "The called method resulted in an exception."
	ErrMalformed      = "Malformed request envelope."
	ErrTimeout        = "Request timed out."
	ErrRateLimited    = "Rate limit exceeded."
)

// Request asks the peer to invoke Method on the object registered as Obj.
// Args are positional and must match the parameter order of the remote operation.
type Request struct {
	ID     string        `json:"id,omitempty"` // Call id echoed by the result; empty for peers that do not echo ids
	Obj    string        `json:"obj"`
	Method string        `json:"method"`
	Args   []value.Value `json:"args"`
}

// Result carries the outcome of one Request.
//
//   - On success: Error is empty and Result holds the return value (Null for void).
//   - On failure: Error is one of the fixed messages above.
type Result struct {
	ID     string      `json:"id,omitempty"`
	Error  string      `json:"error"`
	Result value.Value `json:"result"`
}

// Failed builds a Result carrying a remote error.
func Failed(msg string) *Result {
	return &Result{Error: msg}
}

// Succeeded builds a Result carrying a return value.
func Succeeded(v value.Value) *Result {
	return &Result{Result: v}
}
