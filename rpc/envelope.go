// Package rpc layers method calls on top of the text exchange.
//
// A call is one exchange whose request and response texts are JSON envelopes:
//
//	{"method":"Arith.Add","payload":{"a":1,"b":2}}  →  {"method":"Arith.Add","payload":{"c":3}}
//
// The transport never looks inside the text; everything here is owned by the caller.
package rpc

import (
	"encoding/json"
	"errors"
	"strings"
)

var (
	ErrInvalidMethod  = errors.New("rpc: method must have the form Service.Method")
	ErrUnknownService = errors.New("rpc: unknown service")
	ErrUnknownMethod  = errors.New("rpc: unknown method")
	ErrNoResponse     = errors.New("rpc: no response")
)

// Envelope is the JSON document carried in each message.
//
//   - request:  Method and Payload (the encoded args).
//   - response: Payload holds the encoded reply; Error is set if the call failed.
type Envelope struct {
	Method  string          `json:"method"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// RemoteError is an error reported by the serving side.
type RemoteError struct {
	Method  string
	Message string
}

func (e *RemoteError) Error() string {
	return "rpc: " + e.Method + ": " + e.Message
}

func splitMethod(method string) (string, string, error) {
	svc, name, ok := strings.Cut(method, ".")
	if !ok || svc == "" || name == "" || strings.Contains(name, ".") {
		return "", "", ErrInvalidMethod
	}
	return svc, name, nil
}

func encodeEnvelope(env Envelope) string {
	b, err := json.Marshal(env)
	if err != nil {
		b, _ = json.Marshal(Envelope{Method: env.Method, Error: err.Error()})
	}
	return string(b)
}
