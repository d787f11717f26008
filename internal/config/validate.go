package config

import (
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"
)

// problems accumulates every issue in one pass so a user can fix the whole
// file at once.
type problems []error

func (p *problems) addf(format string, args ...any) {
	*p = append(*p, fmt.Errorf(format, args...))
}

// duration records a problem unless raw is empty or a positive duration.
func (p *problems) duration(key, raw string) {
	if raw == "" {
		return
	}
	d, err := time.ParseDuration(raw)
	switch {
	case err != nil:
		p.addf("%s: invalid duration %q: %w", key, raw, err)
	case d <= 0:
		p.addf("%s: must be > 0, got %q", key, raw)
	}
}

// Validate reports every invariant the loaded config breaks, joined into a
// single error. A nil config is valid.
func Validate(cfg *Config) error {
	if cfg == nil {
		return nil
	}

	var p problems
	p.llm(cfg.LLM)
	p.duration("timeouts.handshake", cfg.Timeouts.Handshake)
	p.duration("timeouts.call", cfg.Timeouts.Call)
	p.duration("timeouts.stop_grace", cfg.Timeouts.StopGrace)

	firstAt := make(map[string]int, len(cfg.Servers))
	for i, srv := range cfg.Servers {
		name := strings.TrimSpace(srv.Name)
		if name == "" {
			p.addf("servers[%d]: missing name", i)
			continue
		}
		if j, dup := firstAt[name]; dup {
			p.addf("servers[%d]: duplicate name %q (first defined at servers[%d])", i, name, j)
			continue
		}
		firstAt[name] = i
		p.server(name, srv)
	}
	return errors.Join(p...)
}

func (p *problems) llm(llm LLMConfig) {
	if _, err := url.ParseRequestURI(llm.URL); err != nil {
		p.addf("llm.url: invalid URL %q: %w", llm.URL, err)
	}
	if llm.MaxTokens <= 0 {
		p.addf("llm.max_tokens: must be > 0, got %d", llm.MaxTokens)
	}
	if llm.Temperature < 0 || llm.Temperature > 2 {
		p.addf("llm.temperature: must be within [0, 2], got %g", llm.Temperature)
	}
	p.duration("llm.timeout", llm.Timeout)
}

func (p *problems) server(name string, srv ServerConfig) {
	key := "servers." + name
	if strings.TrimSpace(srv.Command) == "" {
		p.addf("%s: missing command", key)
	}
	p.duration(key+".default_cache_ttl", srv.DefaultCacheTTL)
	for i, glob := range srv.NoCacheTools {
		if _, err := path.Match(glob, "x"); err != nil {
			p.addf("%s.no_cache_tools[%d]: invalid glob %q: %w", key, i, glob, err)
		}
	}
}
