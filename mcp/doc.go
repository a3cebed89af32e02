// Package mcp implements a Model Context Protocol client. External tool
// servers speak JSON-RPC 2.0 over a transport, either a subprocess pipe
// (stdin/stdout, line-delimited) or a websocket stream. The client performs
// the initialize handshake, lists and calls remote tools, recovers from
// dropped connections by reinitializing, and answers inbound sampling
// requests by delegating to a local model.
//
// Remote tools are exposed as tool.Tool adapters so agents register them
// exactly like local function tools.
package mcp
