package config

import "maps"

// Config is the top-level rai configuration.
type Config struct {
	LLM      LLMConfig     `toml:"llm"`
	Timeouts TimeoutConfig `toml:"timeouts"`
	// Servers are registered in file order. When two servers expose a
	// tool with the same name, the earlier one serves it.
	Servers []ServerConfig `toml:"servers"`
}

// ServerConfig describes how to launch a single tool server.
type ServerConfig struct {
	Name    string            `toml:"name"`
	Command string            `toml:"command"`
	Args    []string          `toml:"args,omitempty"`
	Env     map[string]string `toml:"env,omitempty"`

	// Optional servers are skipped when their command cannot be found.
	Optional bool `toml:"optional,omitempty"`

	// Caching
	DefaultCacheTTL string                `toml:"default_cache_ttl,omitempty"`
	NoCacheTools    []string              `toml:"no_cache_tools,omitempty"`
	Tools           map[string]ToolConfig `toml:"tools,omitempty"`
}

// ToolConfig holds per-tool overrides.
type ToolConfig struct {
	Cache *bool `toml:"cache,omitempty"`
}

// LLMConfig configures the chat-completions fallback.
type LLMConfig struct {
	URL          string  `toml:"url"`
	MaxTokens    int     `toml:"max_tokens"`
	Temperature  float64 `toml:"temperature"`
	Timeout      string  `toml:"timeout"`
	SystemPrompt string  `toml:"system_prompt,omitempty"`
}

// TimeoutConfig bounds peer lifecycle operations.
type TimeoutConfig struct {
	Handshake string `toml:"handshake"`
	Call      string `toml:"call"`
	StopGrace string `toml:"stop_grace"`
}

// Server returns the server named name.
func (c *Config) Server(name string) (ServerConfig, bool) {
	if c == nil {
		return ServerConfig{}, false
	}
	for _, srv := range c.Servers {
		if srv.Name == name {
			return srv, true
		}
	}
	return ServerConfig{}, false
}

// ServerNames returns server names in registration order.
func (c *Config) ServerNames() []string {
	if c == nil {
		return nil
	}
	names := make([]string, 0, len(c.Servers))
	for _, srv := range c.Servers {
		names = append(names, srv.Name)
	}
	return names
}

// Clone returns a copy of s that shares no slices or maps with it.
func (s ServerConfig) Clone() ServerConfig {
	c := s
	c.Args = append([]string(nil), s.Args...)
	c.NoCacheTools = append([]string(nil), s.NoCacheTools...)
	c.Env = maps.Clone(s.Env)
	if s.Tools != nil {
		c.Tools = make(map[string]ToolConfig, len(s.Tools))
		for name, tc := range s.Tools {
			if tc.Cache != nil {
				v := *tc.Cache
				tc.Cache = &v
			}
			c.Tools[name] = tc
		}
	}
	return c
}
