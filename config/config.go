package config

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/sethvargo/go-envconfig"

	"github.com/agentloom/agentloom/mcp"
)

// Config holds process-level settings sourced from the environment.
type Config struct {
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `env:"AGENTLOOM_LOG_LEVEL, default=info"`
	// LogFormat is either text or json.
	LogFormat string `env:"AGENTLOOM_LOG_FORMAT, default=text"`

	// MaxModelCalls caps model invocations per run.
	MaxModelCalls int `env:"AGENTLOOM_MAX_MODEL_CALLS, default=100"`
	// MaxConcurrentRuns caps simultaneously active runs.
	MaxConcurrentRuns int `env:"AGENTLOOM_MAX_CONCURRENT_RUNS, default=10"`
	// EventBufferSize sets event channel buffering.
	EventBufferSize int `env:"AGENTLOOM_EVENT_BUFFER_SIZE, default=100"`

	// MaxSessions bounds the in-memory session store.
	MaxSessions int `env:"AGENTLOOM_MAX_SESSIONS, default=1024"`

	// OpenAIAPIKey and AnthropicAPIKey feed the model adapters.
	OpenAIAPIKey    string `env:"OPENAI_API_KEY"`
	AnthropicAPIKey string `env:"ANTHROPIC_API_KEY"`

	// ToolServersFile optionally points at a YAML file declaring MCP tool
	// servers; see LoadToolServers.
	ToolServersFile string `env:"AGENTLOOM_TOOL_SERVERS_FILE"`
}

// Load reads settings from the environment.
func Load(ctx context.Context) (*Config, error) {
	var cfg Config
	if err := envconfig.Process(ctx, &cfg); err != nil {
		return nil, fmt.Errorf("processing environment config: %w", err)
	}
	return &cfg, nil
}

// toolServersFile is the YAML layout of a tool-server declaration file.
type toolServersFile struct {
	Servers []serverEntry `yaml:"servers"`
}

type serverEntry struct {
	Name    string            `yaml:"name"`
	Mode    string            `yaml:"mode"`
	Command string            `yaml:"command"`
	Args    []string          `yaml:"args"`
	Env     map[string]string `yaml:"env"`
	URL     string            `yaml:"url"`
	Headers map[string]string `yaml:"headers"`
	Timeout time.Duration     `yaml:"timeout"`
	Retry   struct {
		MaxRetries   int           `yaml:"max_retries"`
		InitialDelay time.Duration `yaml:"initial_delay"`
		MaxDelay     time.Duration `yaml:"max_delay"`
	} `yaml:"retry"`
}

// LoadToolServers reads MCP server declarations from a YAML file.
func LoadToolServers(path string) ([]mcp.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading tool servers file: %w", err)
	}
	return ParseToolServers(data)
}

// ParseToolServers parses MCP server declarations from YAML bytes.
func ParseToolServers(data []byte) ([]mcp.Config, error) {
	var file toolServersFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing tool servers yaml: %w", err)
	}

	configs := make([]mcp.Config, 0, len(file.Servers))
	for i, s := range file.Servers {
		if s.Name == "" {
			return nil, fmt.Errorf("server %d: name is required", i)
		}

		mode := mcp.TransportMode(s.Mode)
		switch mode {
		case mcp.ModePipe:
			if s.Command == "" {
				return nil, fmt.Errorf("server %q: pipe mode requires command", s.Name)
			}
		case mcp.ModeStream:
			if s.URL == "" {
				return nil, fmt.Errorf("server %q: stream mode requires url", s.Name)
			}
		default:
			return nil, fmt.Errorf("server %q: unknown mode %q", s.Name, s.Mode)
		}

		configs = append(configs, mcp.Config{
			Name:    s.Name,
			Mode:    mode,
			Command: s.Command,
			Args:    s.Args,
			Env:     s.Env,
			URL:     s.URL,
			Headers: s.Headers,
			Timeout: s.Timeout,
			Retry: mcp.Retry{
				MaxRetries:   s.Retry.MaxRetries,
				InitialDelay: s.Retry.InitialDelay,
				MaxDelay:     s.Retry.MaxDelay,
			},
		})
	}
	return configs, nil
}
