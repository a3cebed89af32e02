package mcp

import (
	"encoding/json"
	"fmt"
	"sync/atomic"
)

// JSON-RPC 2.0 specification: https://www.jsonrpc.org/specification

// jsonRPCVersion is the JSON-RPC version used by MCP.
const jsonRPCVersion = "2.0"

// Standard JSON-RPC error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
	CodeServerError    = -32000
)

// rpcRequest is a JSON-RPC 2.0 request. A nil ID makes it a notification.
type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// rpcResponse is a JSON-RPC 2.0 response.
type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// rpcMessage is the union shape read off the wire; the method field
// distinguishes inbound requests from responses to our calls.
type rpcMessage struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError is a JSON-RPC 2.0 error object.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	if e.Data != nil {
		return fmt.Sprintf("json-rpc error %d: %s (data: %v)", e.Code, e.Message, e.Data)
	}
	return fmt.Sprintf("json-rpc error %d: %s", e.Code, e.Message)
}

func newRequest(id any, method string, params any) (*rpcRequest, error) {
	req := &rpcRequest{JSONRPC: jsonRPCVersion, ID: id, Method: method}
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("marshal params: %w", err)
		}
		req.Params = raw
	}
	return req, nil
}

func newNotification(method string, params any) (*rpcRequest, error) {
	return newRequest(nil, method, params)
}

func newResponse(id any, result any) (*rpcResponse, error) {
	resp := &rpcResponse{JSONRPC: jsonRPCVersion, ID: id}
	if result != nil {
		raw, err := json.Marshal(result)
		if err != nil {
			return nil, fmt.Errorf("marshal result: %w", err)
		}
		resp.Result = raw
	}
	return resp, nil
}

func newErrorResponse(id any, code int, message string) *rpcResponse {
	return &rpcResponse{
		JSONRPC: jsonRPCVersion,
		ID:      id,
		Error:   &RPCError{Code: code, Message: message},
	}
}

// parseMessage decodes one wire frame and validates the version field.
func parseMessage(data []byte) (*rpcMessage, error) {
	var msg rpcMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, &RPCError{Code: CodeParseError, Message: "failed to parse json-rpc message", Data: err.Error()}
	}
	if msg.JSONRPC != jsonRPCVersion {
		return nil, &RPCError{Code: CodeInvalidRequest, Message: fmt.Sprintf("invalid json-rpc version: %q", msg.JSONRPC)}
	}
	return &msg, nil
}

// isRequest reports whether the message is an inbound request or
// notification rather than a response to one of our calls.
func (m *rpcMessage) isRequest() bool { return m.Method != "" }

// idGenerator produces unique request IDs.
type idGenerator struct {
	counter atomic.Int64
}

func (g *idGenerator) next() string {
	return fmt.Sprintf("%d", g.counter.Add(1))
}
