package mcp

import "time"

// TransportMode selects how the client reaches the server.
type TransportMode string

const (
	// ModePipe spawns the server as a subprocess and speaks line-delimited
	// JSON-RPC over its stdin/stdout.
	ModePipe TransportMode = "pipe"

	// ModeStream connects to a running server over a websocket.
	ModeStream TransportMode = "stream"
)

// Retry bounds reconnection attempts for calls failing with a
// resource-closed error.
type Retry struct {
	MaxRetries   int           `yaml:"max_retries" json:"max_retries"`
	InitialDelay time.Duration `yaml:"initial_delay" json:"initial_delay"`
	MaxDelay     time.Duration `yaml:"max_delay" json:"max_delay"`
}

// Config describes one MCP server connection. Command/Args/Env apply to
// ModePipe; URL/Headers apply to ModeStream.
type Config struct {
	Name string        `yaml:"name" json:"name"`
	Mode TransportMode `yaml:"mode" json:"mode"`

	Command string            `yaml:"command,omitempty" json:"command,omitempty"`
	Args    []string          `yaml:"args,omitempty" json:"args,omitempty"`
	Env     map[string]string `yaml:"env,omitempty" json:"env,omitempty"`

	URL     string            `yaml:"url,omitempty" json:"url,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty" json:"headers,omitempty"`

	// Timeout bounds the initialize handshake and individual calls.
	// Zero means no client-side deadline beyond the caller's context.
	Timeout time.Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"`

	Retry Retry `yaml:"retry,omitempty" json:"retry,omitempty"`
}

const (
	defaultInitialDelay = 200 * time.Millisecond
	defaultMaxDelay     = 5 * time.Second
)

// withDefaults fills unset retry fields.
func (c Config) withDefaults() Config {
	if c.Retry.InitialDelay <= 0 {
		c.Retry.InitialDelay = defaultInitialDelay
	}
	if c.Retry.MaxDelay <= 0 {
		c.Retry.MaxDelay = defaultMaxDelay
	}
	return c
}
