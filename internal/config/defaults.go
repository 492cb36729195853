package config

import "github.com/bobmcallan/toolhost/internal/common"

// NewDefaultConfig creates a configuration with default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: AppConfig{
			Name: "calculator",
		},
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8000,
			ShutdownTimeout: "10s",
		},
		RPC: RPCConfig{
			Enabled:         true,
			Network:         "tcp",
			Address:         "0.0.0.0:50051",
			ReadTimeout:     "30s",
			WriteTimeout:    "10s",
			MaxRequestBytes: 1 << 20,
		},
		MCP: MCPConfig{
			Enabled: true,
		},
		Schema: SchemaConfig{
			Package: "truffle",
			Service: "Truffle",
			Output:  "truffle.proto",
		},
		Dispatch: DispatchConfig{
			MaxConcurrent: 10,
			CallTimeout:   "30s",
		},
		Backend: BackendConfig{
			URL:             "http://localhost:8080",
			CompletionModel: "meta-llama/Llama-3.2-1b-instruct",
			EmbeddingModel:  "meta-llama/Llama-3.2-1b",
			Temperature:     0.7,
			MaxTokens:       1000,
			TopP:            0.9,
			Timeout:         "60s",
		},
		Logging: common.LoggingConfig{
			Level:   "info",
			Outputs: []string{"console"},
		},
	}
}
