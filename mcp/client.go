package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/cenkalti/backoff/v4"

	"github.com/agentloom/agentloom/logging"
)

// protocolVersion is the MCP protocol revision this client speaks.
const protocolVersion = "2024-11-05"

// clientInfo identifies this client during the initialize handshake.
type clientInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// ServerInfo identifies the connected server.
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// ServerCapabilities lists the feature sets the server advertises.
type ServerCapabilities struct {
	Tools     *ToolsCapability `json:"tools,omitempty"`
	Resources map[string]any   `json:"resources,omitempty"`
	Prompts   map[string]any   `json:"prompts,omitempty"`
	Sampling  map[string]any   `json:"sampling,omitempty"`
}

// ToolsCapability indicates the server supports tools.
type ToolsCapability struct {
	ListChanged bool `json:"listChanged,omitempty"`
}

// initializeResult is the payload of a successful initialize handshake.
type initializeResult struct {
	ProtocolVersion string             `json:"protocolVersion"`
	ServerInfo      ServerInfo         `json:"serverInfo"`
	Capabilities    ServerCapabilities `json:"capabilities"`
}

// ToolSchema is an MCP tool declaration as listed by the server.
type ToolSchema struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"`
}

// ToolCallResult is the outcome of a remote tool invocation.
type ToolCallResult struct {
	Content []ContentBlock `json:"content"`
	IsError bool           `json:"isError,omitempty"`
}

// ContentBlock is one piece of remote tool output.
type ContentBlock struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	Data     string `json:"data,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
}

// pendingResult delivers either a response or a transport failure to a
// caller blocked in call.
type pendingResult struct {
	resp *rpcResponse
	err  error
}

// Client talks to one MCP server. It is safe for concurrent use; a mutex
// serializes connection lifecycle (initialize, reinitialize, close) against
// concurrent tool calls.
type Client struct {
	cfg      Config
	dial     Dialer
	logger   logging.Logger
	sampling SamplingHandler

	mu           sync.Mutex
	transport    Transport
	initialized  bool
	closing      bool
	serverInfo   *ServerInfo
	capabilities *ServerCapabilities

	idGen idGenerator

	pendingMu sync.Mutex
	pending   map[string]chan pendingResult
}

// ClientOption customizes client construction.
type ClientOption func(*Client)

// WithLogger sets the logger used by the client.
func WithLogger(l logging.Logger) ClientOption {
	return func(c *Client) { c.logger = l }
}

// WithDialer overrides the transport dialer derived from the config, mainly
// for tests and custom transports.
func WithDialer(d Dialer) ClientOption {
	return func(c *Client) { c.dial = d }
}

// WithSamplingHandler installs the handler answering inbound
// sampling/createMessage requests from the server.
func WithSamplingHandler(h SamplingHandler) ClientOption {
	return func(c *Client) { c.sampling = h }
}

// NewClient constructs a client for one server connection. The connection is
// not established until Initialize.
func NewClient(cfg Config, opts ...ClientOption) (*Client, error) {
	c := &Client{
		cfg:     cfg.withDefaults(),
		logger:  logging.NewDefaultSlogLogger(),
		pending: make(map[string]chan pendingResult),
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.dial == nil {
		d, err := dialerFor(c.cfg)
		if err != nil {
			return nil, err
		}
		c.dial = d
	}

	return c, nil
}

// ServerInfo returns the identity the server reported during the handshake,
// or nil before initialization.
func (c *Client) ServerInfo() *ServerInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.serverInfo
}

// Capabilities returns the server's advertised capabilities, or nil before
// initialization.
func (c *Client) Capabilities() *ServerCapabilities {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.capabilities
}

// IsInitialized reports whether the handshake has completed and the
// connection is believed healthy.
func (c *Client) IsInitialized() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.initialized
}

// Initialize establishes the transport and performs the MCP handshake. It is
// idempotent: a second call on a healthy client is a no-op. A client that
// has been closed can no longer be initialized.
func (c *Client) Initialize(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closing {
		return newClientError(KindConnection, "initialize", errors.New("client closed"))
	}
	if c.initialized {
		return nil
	}
	return c.initializeLocked(ctx)
}

// initializeLocked dials, starts the read loop and runs the handshake.
// Callers hold c.mu.
func (c *Client) initializeLocked(ctx context.Context) error {
	hctx := ctx
	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		hctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}

	t, err := c.dial(hctx)
	if err != nil {
		var ce *ClientError
		if errors.As(err, &ce) {
			return ce
		}
		return newClientError(KindConnection, "initialize", err)
	}

	c.transport = t
	go c.readLoop(t)

	params := map[string]any{
		"protocolVersion": protocolVersion,
		"clientInfo":      clientInfo{Name: "agentloom", Version: "0.1.0"},
		"capabilities":    map[string]any{},
	}

	raw, err := c.call(hctx, t, "initialize", params)
	if err != nil {
		_ = t.Close()
		c.transport = nil
		if errors.Is(err, context.DeadlineExceeded) {
			return newClientError(KindTimeout, "initialize", err)
		}
		var ce *ClientError
		if errors.As(err, &ce) && ce.Kind == KindTimeout {
			return ce
		}
		return newClientError(KindConnection, "initialize", err)
	}

	var initResult initializeResult
	if err := json.Unmarshal(raw, &initResult); err != nil {
		_ = t.Close()
		c.transport = nil
		return newClientError(KindProtocol, "initialize", fmt.Errorf("parse initialize result: %w", err))
	}

	if initResult.ProtocolVersion != protocolVersion {
		c.logger.Warn("mcp.protocol_version_mismatch",
			"server", c.cfg.Name, "client_version", protocolVersion, "server_version", initResult.ProtocolVersion)
	}

	c.serverInfo = &initResult.ServerInfo
	c.capabilities = &initResult.Capabilities
	c.initialized = true

	if err := c.notify(t, "notifications/initialized", nil); err != nil {
		c.logger.Warn("mcp.initialized_notification_failed", "server", c.cfg.Name, "error", err.Error())
	}

	c.logger.Info("mcp.initialized",
		"server", c.cfg.Name, "server_name", initResult.ServerInfo.Name, "server_version", initResult.ServerInfo.Version)

	return nil
}

// reinitialize tears the connection down best-effort and runs the handshake
// again. Close errors on the old transport are swallowed.
func (c *Client) reinitialize(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closing {
		return newClientError(KindConnection, "reinitialize", errors.New("client closed"))
	}

	if c.transport != nil {
		_ = c.transport.Close()
		c.transport = nil
	}
	c.initialized = false

	return c.initializeLocked(ctx)
}

// Close terminates the connection. The client cannot be reused afterwards;
// concurrent and subsequent Initialize calls fail fast.
func (c *Client) Close() error {
	c.mu.Lock()
	c.closing = true
	c.initialized = false
	t := c.transport
	c.transport = nil
	c.mu.Unlock()

	c.failPending(newClientError(KindResourceClosed, "close", errors.New("client closed")))

	if t != nil {
		return t.Close()
	}
	return nil
}

// ListTools fetches the server's tool declarations.
func (c *Client) ListTools(ctx context.Context) ([]ToolSchema, error) {
	t, err := c.currentTransport()
	if err != nil {
		return nil, err
	}

	cctx, cancel := c.withCallTimeout(ctx)
	defer cancel()

	raw, err := c.call(cctx, t, "tools/list", nil)
	if err != nil {
		return nil, err
	}

	var listed struct {
		Tools []ToolSchema `json:"tools"`
	}
	if err := json.Unmarshal(raw, &listed); err != nil {
		return nil, newClientError(KindProtocol, "tools/list", err)
	}

	return listed.Tools, nil
}

// CallTool invokes a remote tool. Calls failing because the connection was
// lost are retried after reinitializing, up to Retry.MaxRetries times with
// exponential backoff; all other failures are returned as-is.
func (c *Client) CallTool(ctx context.Context, name string, arguments map[string]any) (*ToolCallResult, error) {
	if _, err := c.currentTransport(); err != nil {
		return nil, err
	}

	var result *ToolCallResult

	operation := func() error {
		res, err := c.callToolOnce(ctx, name, arguments)
		if err == nil {
			result = res
			return nil
		}

		if IsResourceClosed(err) {
			c.logger.Warn("mcp.call_retrying", "server", c.cfg.Name, "tool", name, "error", err.Error())
			if rerr := c.reinitialize(ctx); rerr != nil {
				c.logger.Warn("mcp.reinitialize_failed", "server", c.cfg.Name, "error", rerr.Error())
			}
			return err
		}

		return backoff.Permanent(err)
	}

	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = c.cfg.Retry.InitialDelay
	expo.MaxInterval = c.cfg.Retry.MaxDelay

	policy := backoff.WithContext(
		backoff.WithMaxRetries(expo, uint64(c.cfg.Retry.MaxRetries)),
		ctx,
	)

	if err := backoff.Retry(operation, policy); err != nil {
		return nil, err
	}
	return result, nil
}

// callToolOnce performs a single tools/call round trip.
func (c *Client) callToolOnce(ctx context.Context, name string, arguments map[string]any) (*ToolCallResult, error) {
	t, err := c.currentTransport()
	if err != nil {
		// Lost connections surface as resource-closed so the retry loop
		// reinitializes instead of giving up.
		return nil, newClientError(KindResourceClosed, "tools/call", err)
	}

	params := map[string]any{
		"name":      name,
		"arguments": arguments,
	}

	cctx, cancel := c.withCallTimeout(ctx)
	defer cancel()

	raw, err := c.call(cctx, t, "tools/call", params)
	if err != nil {
		return nil, err
	}

	var result ToolCallResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, newClientError(KindProtocol, "tools/call", err)
	}
	return &result, nil
}

// currentTransport snapshots the healthy transport or errors.
func (c *Client) currentTransport() (Transport, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closing {
		return nil, newClientError(KindConnection, "call", errors.New("client closed"))
	}
	if !c.initialized || c.transport == nil {
		return nil, newClientError(KindConnection, "call", errors.New("client not initialized"))
	}
	return c.transport, nil
}

// withCallTimeout applies the configured per-call timeout when set.
func (c *Client) withCallTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.cfg.Timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.cfg.Timeout)
}

// call sends one request and waits for its response.
func (c *Client) call(ctx context.Context, t Transport, method string, params any) (json.RawMessage, error) {
	id := c.idGen.next()

	req, err := newRequest(id, method, params)
	if err != nil {
		return nil, newClientError(KindProtocol, method, err)
	}
	data, err := json.Marshal(req)
	if err != nil {
		return nil, newClientError(KindProtocol, method, err)
	}

	ch := make(chan pendingResult, 1)
	c.pendingMu.Lock()
	c.pending[id] = ch
	c.pendingMu.Unlock()

	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
	}()

	if err := t.Send(data); err != nil {
		return nil, err
	}

	select {
	case res := <-ch:
		if res.err != nil {
			return nil, res.err
		}
		if res.resp.Error != nil {
			return nil, fmt.Errorf("%s: %w", method, res.resp.Error)
		}
		return res.resp.Result, nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, newClientError(KindTimeout, method, ctx.Err())
		}
		return nil, ctx.Err()
	}
}

// notify sends a notification; no response is expected.
func (c *Client) notify(t Transport, method string, params any) error {
	notif, err := newNotification(method, params)
	if err != nil {
		return err
	}
	data, err := json.Marshal(notif)
	if err != nil {
		return err
	}
	return t.Send(data)
}

// respond sends a response to an inbound server request.
func (c *Client) respond(t Transport, resp *rpcResponse) {
	data, err := json.Marshal(resp)
	if err != nil {
		c.logger.Error("mcp.respond_marshal_failed", "server", c.cfg.Name, "error", err.Error())
		return
	}
	if err := t.Send(data); err != nil {
		c.logger.Warn("mcp.respond_send_failed", "server", c.cfg.Name, "error", err.Error())
	}
}

// readLoop drains the transport, routing responses to pending calls and
// dispatching inbound requests. It exits when the transport fails, failing
// all pending calls with a resource-closed error.
func (c *Client) readLoop(t Transport) {
	for {
		data, err := t.Receive()
		if err != nil {
			c.failPending(err)
			c.markDisconnected(t)
			return
		}

		msg, err := parseMessage(data)
		if err != nil {
			c.logger.Warn("mcp.bad_frame", "server", c.cfg.Name, "error", err.Error())
			continue
		}

		if msg.isRequest() {
			c.handleInbound(t, msg)
			continue
		}

		key := fmt.Sprintf("%v", msg.ID)
		c.pendingMu.Lock()
		ch, ok := c.pending[key]
		c.pendingMu.Unlock()

		if !ok {
			c.logger.Warn("mcp.orphan_response", "server", c.cfg.Name, "id", key)
			continue
		}

		ch <- pendingResult{resp: &rpcResponse{JSONRPC: msg.JSONRPC, ID: msg.ID, Result: msg.Result, Error: msg.Error}}
	}
}

// failPending delivers err to every caller waiting on a response.
func (c *Client) failPending(err error) {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()

	for id, ch := range c.pending {
		select {
		case ch <- pendingResult{err: err}:
		default:
		}
		delete(c.pending, id)
	}
}

// markDisconnected flags the client uninitialized when the failed transport
// is still the current one, so the next call reinitializes.
func (c *Client) markDisconnected(t Transport) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.transport == t {
		c.initialized = false
	}
}

// handleInbound dispatches a server-initiated request or notification.
func (c *Client) handleInbound(t Transport, msg *rpcMessage) {
	switch msg.Method {
	case "ping":
		if msg.ID != nil {
			resp, _ := newResponse(msg.ID, map[string]any{})
			c.respond(t, resp)
		}
	case "sampling/createMessage":
		// Sampling delegates to a model and can be slow; keep the read
		// loop free to route concurrent responses.
		go c.handleSampling(t, msg)
	default:
		if msg.ID != nil {
			c.respond(t, newErrorResponse(msg.ID, CodeMethodNotFound, fmt.Sprintf("method %q not supported", msg.Method)))
		}
	}
}
