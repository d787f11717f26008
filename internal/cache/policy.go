package cache

import (
	"fmt"
	"path"
	"slices"
	"strings"
	"time"

	"github.com/tlee933/rai/internal/config"
)

// EffectiveTTL reports how long results of tool on scfg may be reused.
// Caching needs a positive default_cache_ttl. A tools.<name>.cache setting
// decides next; otherwise a matching no_cache_tools glob turns it off.
// Tool names match in either snake_case or kebab-case.
func EffectiveTTL(scfg config.ServerConfig, tool string) (time.Duration, bool, error) {
	if scfg.DefaultCacheTTL == "" {
		return 0, false, nil
	}
	ttl, err := time.ParseDuration(scfg.DefaultCacheTTL)
	if err != nil {
		return 0, false, fmt.Errorf("servers.%s: invalid default_cache_ttl %q: %w", scfg.Name, scfg.DefaultCacheTTL, err)
	}
	if ttl <= 0 {
		return 0, false, nil
	}

	names := spellings(tool)
	for _, name := range names {
		if tc, ok := scfg.Tools[name]; ok && tc.Cache != nil {
			if !*tc.Cache {
				return 0, false, nil
			}
			return ttl, true, nil
		}
	}

	for _, pattern := range scfg.NoCacheTools {
		matches := func(name string) bool {
			ok, err := path.Match(pattern, name)
			return err == nil && ok
		}
		if slices.ContainsFunc(names, matches) {
			return 0, false, nil
		}
	}
	return ttl, true, nil
}

// spellings returns tool followed by its snake_case and kebab-case forms,
// without duplicates.
func spellings(tool string) []string {
	out := []string{tool}
	for _, alt := range []string{
		strings.ReplaceAll(tool, "-", "_"),
		strings.ReplaceAll(tool, "_", "-"),
	} {
		if !slices.Contains(out, alt) {
			out = append(out, alt)
		}
	}
	return out
}
