package config

import (
	"os"
	"time"
)

// Defaults for values left empty in config.toml.
const (
	DefaultLLMURL           = "http://127.0.0.1:8080/v1/chat/completions"
	DefaultLLMMaxTokens     = 2048
	DefaultLLMTemperature   = 0.1
	DefaultLLMTimeout       = 120 * time.Second
	DefaultHandshakeTimeout = 30 * time.Second
	DefaultCallTimeout      = 60 * time.Second
	DefaultStopGrace        = 5 * time.Second
)

// Default returns the built-in configuration used when no config file
// exists. The rocm, atomic and ublue servers are served by this binary.
func Default() *Config {
	self := selfExecutable()
	return &Config{
		LLM: LLMConfig{
			URL:         DefaultLLMURL,
			MaxTokens:   DefaultLLMMaxTokens,
			Temperature: DefaultLLMTemperature,
			Timeout:     DefaultLLMTimeout.String(),
		},
		Timeouts: TimeoutConfig{
			Handshake: DefaultHandshakeTimeout.String(),
			Call:      DefaultCallTimeout.String(),
			StopGrace: DefaultStopGrace.String(),
		},
		Servers: []ServerConfig{
			{
				Name:    "filesystem",
				Command: "npx",
				Args:    []string{"-y", "@modelcontextprotocol/server-filesystem", "/tmp", "${HOME}", "/opt/rocm"},
				NoCacheTools: []string{
					"write_*", "edit_*", "create_*", "move_*",
				},
			},
			{
				Name:    "rocm",
				Command: self,
				Args:    []string{"serve", "rocm"},
			},
			{
				Name:     "linux",
				Command:  "${HOME}/.local/bin/linux-mcp-server",
				Optional: true,
				Env: map[string]string{
					"LINUX_MCP_ALLOWED_LOG_PATHS": "/var/log/messages,/var/log/secure,/var/log/audit/audit.log",
					"LINUX_MCP_LOG_LEVEL":         "ERROR",
					"LINUX_MCP_USER":              "${USER}",
				},
			},
			{
				Name:            "atomic",
				Command:         self,
				Args:            []string{"serve", "atomic"},
				DefaultCacheTTL: "30s",
				NoCacheTools:    []string{"check_*", "get_flatpak_updates"},
			},
			{
				Name:            "ublue",
				Command:         self,
				Args:            []string{"serve", "ublue"},
				DefaultCacheTTL: "30s",
				NoCacheTools:    []string{"check_*", "run_*"},
			},
		},
	}
}

func selfExecutable() string {
	exe, err := os.Executable()
	if err != nil || exe == "" {
		return "rai"
	}
	return exe
}

// HandshakeTimeout returns the parsed handshake timeout or its default.
func (t TimeoutConfig) HandshakeTimeout() time.Duration {
	return durationOr(t.Handshake, DefaultHandshakeTimeout)
}

// CallTimeout returns the parsed per-call timeout or its default.
func (t TimeoutConfig) CallTimeout() time.Duration {
	return durationOr(t.Call, DefaultCallTimeout)
}

// StopGracePeriod returns the parsed stop grace period or its default.
func (t TimeoutConfig) StopGracePeriod() time.Duration {
	return durationOr(t.StopGrace, DefaultStopGrace)
}

// RequestTimeout returns the parsed LLM request timeout or its default.
func (l LLMConfig) RequestTimeout() time.Duration {
	return durationOr(l.Timeout, DefaultLLMTimeout)
}

func durationOr(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func applyDefaults(cfg *Config) {
	if cfg.LLM.URL == "" {
		cfg.LLM.URL = DefaultLLMURL
	}
	if cfg.LLM.MaxTokens == 0 {
		cfg.LLM.MaxTokens = DefaultLLMMaxTokens
	}
	if cfg.LLM.Temperature == 0 {
		cfg.LLM.Temperature = DefaultLLMTemperature
	}
	if cfg.LLM.Timeout == "" {
		cfg.LLM.Timeout = DefaultLLMTimeout.String()
	}
	if cfg.Timeouts.Handshake == "" {
		cfg.Timeouts.Handshake = DefaultHandshakeTimeout.String()
	}
	if cfg.Timeouts.Call == "" {
		cfg.Timeouts.Call = DefaultCallTimeout.String()
	}
	if cfg.Timeouts.StopGrace == "" {
		cfg.Timeouts.StopGrace = DefaultStopGrace.String()
	}
}
