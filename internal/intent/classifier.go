// Package intent maps short operator queries onto (category, action,
// params) using an ordered table of anchored, case-insensitive patterns.
package intent

import "strings"

// Classifier evaluates a pattern table. The zero value is not usable; use
// New. A Classifier is immutable and safe for concurrent use.
type Classifier struct {
	patterns []pattern
}

// New returns a classifier over the built-in table.
func New() *Classifier {
	return &Classifier{patterns: defaultPatterns}
}

// Classify returns the intent of the first pattern matching the whole
// trimmed query. ok is false when nothing matches.
func (c *Classifier) Classify(query string) (Intent, bool) {
	query = strings.TrimSpace(query)
	if query == "" {
		return Intent{}, false
	}

	for _, p := range c.patterns {
		groups := p.matcher.FindStringSubmatch(query)
		if groups == nil {
			continue
		}
		return Intent{
			Category: p.category,
			Action:   p.action(groups),
			Params:   extractParams(p.extract, groups),
		}, true
	}
	return Intent{}, false
}

// ShouldUseLLM reports whether query has no pattern and needs the LLM.
func (c *Classifier) ShouldUseLLM(query string) bool {
	_, ok := c.Classify(query)
	return !ok
}

func extractParams(bindings []binding, groups []string) map[string]string {
	params := make(map[string]string, len(bindings))
	for _, b := range bindings {
		val := ""
		if b.group < len(groups) {
			val = strings.TrimSpace(groups[b.group])
		}
		if val == "" {
			val = b.def
		}
		if val == "" {
			continue
		}
		params[b.key] = val
	}
	return params
}
