package mcp

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Transport moves one JSON-RPC frame at a time. Send and Receive may be
// called from different goroutines; Receive blocks until a frame arrives or
// the transport fails. A failed or closed transport surfaces
// resource-closed errors from both methods.
type Transport interface {
	Send(data []byte) error
	Receive() ([]byte, error)
	Close() error
}

// Dialer establishes a transport; the client re-dials through it when the
// connection is lost.
type Dialer func(ctx context.Context) (Transport, error)

// dialerFor picks the dialer matching the configured mode.
func dialerFor(cfg Config) (Dialer, error) {
	switch cfg.Mode {
	case ModePipe:
		if strings.TrimSpace(cfg.Command) == "" {
			return nil, fmt.Errorf("pipe transport requires a command")
		}
		return func(ctx context.Context) (Transport, error) {
			return dialPipe(ctx, cfg)
		}, nil
	case ModeStream:
		if cfg.URL == "" {
			return nil, fmt.Errorf("stream transport requires a url")
		}
		return func(ctx context.Context) (Transport, error) {
			return dialStream(ctx, cfg)
		}, nil
	default:
		return nil, fmt.Errorf("unknown transport mode %q", cfg.Mode)
	}
}

// PipeTransport runs the server as a subprocess and frames messages as
// newline-delimited JSON on its stdin/stdout.
type PipeTransport struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	reader *bufio.Reader

	mu     sync.Mutex
	closed bool
}

func dialPipe(ctx context.Context, cfg Config) (*PipeTransport, error) {
	resolved, err := exec.LookPath(strings.TrimSpace(cfg.Command))
	if err != nil {
		return nil, newClientError(KindConnection, "dial", fmt.Errorf("command not found: %w", err))
	}

	cmd := exec.CommandContext(ctx, resolved, cfg.Args...)
	for k, v := range cfg.Env {
		cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, v))
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, newClientError(KindConnection, "dial", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, newClientError(KindConnection, "dial", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, newClientError(KindConnection, "dial", fmt.Errorf("start %s: %w", cfg.Command, err))
	}

	reader := bufio.NewReaderSize(stdout, 64*1024)

	return &PipeTransport{cmd: cmd, stdin: stdin, reader: reader}, nil
}

// Send writes one newline-terminated frame to the subprocess.
func (t *PipeTransport) Send(data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return newClientError(KindResourceClosed, "send", fmt.Errorf("pipe closed"))
	}

	if _, err := t.stdin.Write(append(data, '\n')); err != nil {
		return newClientError(KindResourceClosed, "send", err)
	}
	return nil
}

// Receive reads one newline-terminated frame from the subprocess.
func (t *PipeTransport) Receive() ([]byte, error) {
	line, err := t.reader.ReadBytes('\n')
	if err != nil {
		return nil, newClientError(KindResourceClosed, "receive", err)
	}
	return line, nil
}

// Close terminates the subprocess, first closing stdin so a well-behaved
// server exits on its own, then killing after a short grace period.
func (t *PipeTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.mu.Unlock()

	_ = t.stdin.Close()

	done := make(chan error, 1)
	go func() { done <- t.cmd.Wait() }()

	select {
	case <-done:
		return nil
	case <-time.After(5 * time.Second):
		if t.cmd.Process != nil {
			_ = t.cmd.Process.Kill()
		}
		return nil
	}
}

// StreamTransport frames messages as websocket text messages.
type StreamTransport struct {
	conn *websocket.Conn

	writeMu sync.Mutex
	closed  bool
}

func dialStream(ctx context.Context, cfg Config) (*StreamTransport, error) {
	header := http.Header{}
	for k, v := range cfg.Headers {
		header.Set(k, v)
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, cfg.URL, header)
	if err != nil {
		return nil, newClientError(KindConnection, "dial", err)
	}
	return &StreamTransport{conn: conn}, nil
}

// Send writes one frame as a websocket text message.
func (t *StreamTransport) Send(data []byte) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if t.closed {
		return newClientError(KindResourceClosed, "send", fmt.Errorf("stream closed"))
	}

	if err := t.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return newClientError(KindResourceClosed, "send", err)
	}
	return nil
}

// Receive reads one websocket message.
func (t *StreamTransport) Receive() ([]byte, error) {
	_, data, err := t.conn.ReadMessage()
	if err != nil {
		return nil, newClientError(KindResourceClosed, "receive", err)
	}
	return data, nil
}

// Close performs a best-effort websocket close handshake.
func (t *StreamTransport) Close() error {
	t.writeMu.Lock()
	if t.closed {
		t.writeMu.Unlock()
		return nil
	}
	t.closed = true
	_ = t.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	t.writeMu.Unlock()

	return t.conn.Close()
}
