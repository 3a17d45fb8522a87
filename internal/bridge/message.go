package bridge

import (
	"bytes"
	"encoding/json"
	"errors"

	"github.com/mark3labs/mcp-go/mcp"
)

// Fault codes carried on the wire.
const (
	CodeInvalidRequest  = mcp.INVALID_REQUEST
	CodeMethodNotFound  = mcp.METHOD_NOT_FOUND
	CodeInvalidParams   = mcp.INVALID_PARAMS
	CodeInternalFailure = 500
)

// InternalFailureMessage is the only message sent for unexpected failures.
const InternalFailureMessage = "Internal failure, please check logs"

// Request is an inbound JSON-RPC request.
type Request struct {
	ID     mcp.RequestId
	Method string
	Params json.RawMessage
}

// Notification is an inbound JSON-RPC notification.
type Notification struct {
	Method string
	Params json.RawMessage
}

// Fault is a JSON-RPC error object.
type Fault struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Response is the single outbound message for a Request.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      mcp.RequestId   `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Fault          `json:"error,omitempty"`
}

func resultResponse(id mcp.RequestId, result json.RawMessage) *Response {
	return &Response{JSONRPC: mcp.JSONRPC_VERSION, ID: id, Result: result}
}

func faultResponse(id mcp.RequestId, fault Fault) *Response {
	return &Response{JSONRPC: mcp.JSONRPC_VERSION, ID: id, Error: &fault}
}

var errInvalidShape = errors.New("payload is neither a request nor a notification")

type envelope struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Method  *string         `json:"method"`
	Params  json.RawMessage `json:"params"`
}

// classify parses payload as a Request, then as a Notification. Exactly one
// of the returned values is non-nil when err is nil.
func classify(payload []byte) (*Request, *Notification, error) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, nil, errInvalidShape
	}
	if env.JSONRPC != mcp.JSONRPC_VERSION || env.Method == nil || *env.Method == "" {
		return nil, nil, errInvalidShape
	}
	if !validParams(env.Params) {
		return nil, nil, errInvalidShape
	}

	if env.ID != nil {
		id, ok := parseID(env.ID)
		if !ok {
			return nil, nil, errInvalidShape
		}
		return &Request{ID: id, Method: *env.Method, Params: env.Params}, nil, nil
	}
	return nil, &Notification{Method: *env.Method, Params: env.Params}, nil
}

// validParams accepts an absent or null params member, or an object.
func validParams(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return true
	}
	return trimmed[0] == '{'
}

// parseID accepts a string or an integer id.
func parseID(raw json.RawMessage) (mcp.RequestId, bool) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return mcp.RequestId{}, false
	}
	switch id := v.(type) {
	case string:
		return mcp.NewRequestId(id), true
	case json.Number:
		n, err := id.Int64()
		if err != nil {
			return mcp.RequestId{}, false
		}
		return mcp.NewRequestId(n), true
	default:
		return mcp.RequestId{}, false
	}
}

func hasParams(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null"))
}
