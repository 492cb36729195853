package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/bobmcallan/toolhost/internal/common"
)

// Config represents the application configuration.
type Config struct {
	App      AppConfig            `toml:"app" yaml:"app" json:"app"`
	Server   ServerConfig         `toml:"server" yaml:"server" json:"server"`
	RPC      RPCConfig            `toml:"rpc" yaml:"rpc" json:"rpc"`
	MCP      MCPConfig            `toml:"mcp" yaml:"mcp" json:"mcp"`
	Schema   SchemaConfig         `toml:"schema" yaml:"schema" json:"schema"`
	Dispatch DispatchConfig       `toml:"dispatch" yaml:"dispatch" json:"dispatch"`
	Backend  BackendConfig        `toml:"backend" yaml:"backend" json:"backend"`
	Logging  common.LoggingConfig `toml:"logging" yaml:"logging" json:"logging"`
}

// AppConfig selects the served application.
type AppConfig struct {
	Name string `toml:"name" yaml:"name" json:"name"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host            string `toml:"host" yaml:"host" json:"host"`
	Port            int    `toml:"port" yaml:"port" json:"port"`
	ShutdownTimeout string `toml:"shutdown_timeout" yaml:"shutdown_timeout" json:"shutdown_timeout"`
}

// Addr returns host:port for the listener.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func (c *ServerConfig) GetShutdownTimeout() time.Duration {
	return parseDuration(c.ShutdownTimeout, 10*time.Second)
}

// RPCConfig contains the unary RPC socket settings.
type RPCConfig struct {
	Enabled         bool   `toml:"enabled" yaml:"enabled" json:"enabled"`
	Network         string `toml:"network" yaml:"network" json:"network"`
	Address         string `toml:"address" yaml:"address" json:"address"`
	ReadTimeout     string `toml:"read_timeout" yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout    string `toml:"write_timeout" yaml:"write_timeout" json:"write_timeout"`
	MaxRequestBytes int64  `toml:"max_request_bytes" yaml:"max_request_bytes" json:"max_request_bytes"`
}

func (c *RPCConfig) GetReadTimeout() time.Duration {
	return parseDuration(c.ReadTimeout, 30*time.Second)
}

func (c *RPCConfig) GetWriteTimeout() time.Duration {
	return parseDuration(c.WriteTimeout, 10*time.Second)
}

// MCPConfig toggles the MCP endpoint.
type MCPConfig struct {
	Enabled bool `toml:"enabled" yaml:"enabled" json:"enabled"`
}

// SchemaConfig controls interface definition generation.
type SchemaConfig struct {
	Package string `toml:"package" yaml:"package" json:"package"`
	Service string `toml:"service" yaml:"service" json:"service"`
	// Output is the document path. Empty disables writing on serve.
	Output string `toml:"output" yaml:"output" json:"output"`
}

// DispatchConfig bounds tool execution.
type DispatchConfig struct {
	MaxConcurrent int64  `toml:"max_concurrent" yaml:"max_concurrent" json:"max_concurrent"`
	CallTimeout   string `toml:"call_timeout" yaml:"call_timeout" json:"call_timeout"`
}

func (c *DispatchConfig) GetCallTimeout() time.Duration {
	return parseDuration(c.CallTimeout, 30*time.Second)
}

// BackendConfig points at the completion and embedding service.
type BackendConfig struct {
	URL             string  `toml:"url" yaml:"url" json:"url"`
	CompletionModel string  `toml:"completion_model" yaml:"completion_model" json:"completion_model"`
	EmbeddingModel  string  `toml:"embedding_model" yaml:"embedding_model" json:"embedding_model"`
	Temperature     float64 `toml:"temperature" yaml:"temperature" json:"temperature"`
	MaxTokens       int     `toml:"max_tokens" yaml:"max_tokens" json:"max_tokens"`
	TopP            float64 `toml:"top_p" yaml:"top_p" json:"top_p"`
	Timeout         string  `toml:"timeout" yaml:"timeout" json:"timeout"`
}

func (c *BackendConfig) GetTimeout() time.Duration {
	return parseDuration(c.Timeout, 60*time.Second)
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// LoadFromFiles loads configuration with priority:
// defaults -> file1 -> file2 -> ... -> env.
// The file format follows the extension; unknown extensions are read as TOML.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := unmarshal(path, data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

func unmarshal(path string, data []byte, config *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Unmarshal(data, config)
	case ".json", ".jsonc":
		return json.Unmarshal(jsonc.ToJSON(data), config)
	default:
		return toml.Unmarshal(data, config)
	}
}

// applyEnvOverrides applies TOOLHOST_* environment variable overrides.
func applyEnvOverrides(config *Config) {
	str := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	boolean := func(key string, dst *bool) {
		if v := os.Getenv(key); v != "" {
			if b, err := strconv.ParseBool(v); err == nil {
				*dst = b
			}
		}
	}

	str("TOOLHOST_APP", &config.App.Name)
	str("TOOLHOST_SERVER_HOST", &config.Server.Host)
	if port := os.Getenv("TOOLHOST_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	boolean("TOOLHOST_RPC_ENABLED", &config.RPC.Enabled)
	str("TOOLHOST_RPC_NETWORK", &config.RPC.Network)
	str("TOOLHOST_RPC_ADDRESS", &config.RPC.Address)
	boolean("TOOLHOST_MCP_ENABLED", &config.MCP.Enabled)
	str("TOOLHOST_SCHEMA_PACKAGE", &config.Schema.Package)
	str("TOOLHOST_SCHEMA_SERVICE", &config.Schema.Service)
	str("TOOLHOST_SCHEMA_OUTPUT", &config.Schema.Output)
	if n := os.Getenv("TOOLHOST_DISPATCH_MAX_CONCURRENT"); n != "" {
		if v, err := strconv.ParseInt(n, 10, 64); err == nil {
			config.Dispatch.MaxConcurrent = v
		}
	}
	str("TOOLHOST_DISPATCH_CALL_TIMEOUT", &config.Dispatch.CallTimeout)
	str("TOOLHOST_BACKEND_URL", &config.Backend.URL)
	str("TOOLHOST_BACKEND_TIMEOUT", &config.Backend.Timeout)
	str("TOOLHOST_LOG_LEVEL", &config.Logging.Level)
}

// Overrides holds command-line values; zero values leave config alone.
type Overrides struct {
	App        string
	Host       string
	Port       int
	RPCAddress string
}

// ApplyFlagOverrides applies command-line flag overrides to config.
func ApplyFlagOverrides(config *Config, o Overrides) {
	if o.App != "" {
		config.App.Name = o.App
	}
	if o.Host != "" {
		config.Server.Host = o.Host
	}
	if o.Port > 0 {
		config.Server.Port = o.Port
	}
	if o.RPCAddress != "" {
		config.RPC.Address = o.RPCAddress
	}
}

var logLevels = map[string]bool{"trace": true, "debug": true, "info": true, "warn": true, "error": true, "fatal": true, "panic": true, "disabled": true}

// Validate returns every problem found; an empty result means the
// configuration is usable.
func (c *Config) Validate() []string {
	var issues []string
	if strings.TrimSpace(c.App.Name) == "" {
		issues = append(issues, "app.name must be set")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		issues = append(issues, fmt.Sprintf("server.port %d is out of range", c.Server.Port))
	}
	if c.RPC.Enabled {
		switch c.RPC.Network {
		case "tcp", "tcp4", "tcp6", "unix":
		default:
			issues = append(issues, fmt.Sprintf("rpc.network %q must be tcp or unix", c.RPC.Network))
		}
		if c.RPC.Address == "" {
			issues = append(issues, "rpc.address must be set when rpc is enabled")
		}
	}
	if c.Schema.Package == "" || c.Schema.Service == "" {
		issues = append(issues, "schema.package and schema.service must be set")
	}
	if c.Dispatch.MaxConcurrent < 0 {
		issues = append(issues, "dispatch.max_concurrent must not be negative")
	}
	for key, value := range map[string]string{
		"server.shutdown_timeout": c.Server.ShutdownTimeout,
		"rpc.read_timeout":        c.RPC.ReadTimeout,
		"rpc.write_timeout":       c.RPC.WriteTimeout,
		"dispatch.call_timeout":   c.Dispatch.CallTimeout,
		"backend.timeout":         c.Backend.Timeout,
	} {
		if value == "" {
			continue
		}
		if _, err := time.ParseDuration(value); err != nil {
			issues = append(issues, fmt.Sprintf("%s %q is not a duration", key, value))
		}
	}
	if c.Logging.Level != "" && !logLevels[strings.ToLower(c.Logging.Level)] {
		issues = append(issues, fmt.Sprintf("logging.level %q is not a known level", c.Logging.Level))
	}
	sort.Strings(issues)
	return issues
}
