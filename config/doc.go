// Package config loads runtime configuration. Process-level settings come
// from environment variables; the set of MCP tool servers an application
// connects to is declared in a YAML file.
package config
