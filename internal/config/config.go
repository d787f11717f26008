package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/tlee933/rai/internal/paths"
)

// placeholder matches ${NAME}. Bare $NAME is left alone so shell snippets
// in args survive.
var placeholder = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Load reads the config from its XDG location, falling back to Default()
// when no file exists.
func Load() (*Config, error) {
	return LoadFrom(paths.ConfigFile())
}

// LoadFrom is Load for an explicit path.
func LoadFrom(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		cfg := Default()
		resolveEnv(cfg)
		return cfg, nil
	case err != nil:
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes TOML, fills unset LLM and timeout settings with their
// default values and resolves ${VAR} placeholders. Servers are taken from
// the file as is: a file without [[servers]] configures none.
func Parse(data []byte) (*Config, error) {
	cfg := new(Config)
	if _, err := toml.Decode(string(data), cfg); err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	resolveEnv(cfg)
	return cfg, nil
}

func resolveEnv(cfg *Config) {
	cfg.LLM.URL = expandEnv(cfg.LLM.URL)
	for i := range cfg.Servers {
		s := &cfg.Servers[i]
		s.Command = expandEnv(s.Command)
		s.DefaultCacheTTL = expandEnv(s.DefaultCacheTTL)
		expandAll(s.Args)
		expandAll(s.NoCacheTools)
		for k, v := range s.Env {
			s.Env[k] = expandEnv(v)
		}
	}
}

func expandAll(list []string) {
	for i, s := range list {
		list[i] = expandEnv(s)
	}
}

// expandEnv substitutes set variables. Unset ones keep their ${NAME} text.
func expandEnv(s string) string {
	if !strings.Contains(s, "${") {
		return s
	}
	return placeholder.ReplaceAllStringFunc(s, func(m string) string {
		if v, ok := os.LookupEnv(m[2 : len(m)-1]); ok {
			return v
		}
		return m
	})
}
