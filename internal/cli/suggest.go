package cli

import (
	"fmt"

	"github.com/sahilm/fuzzy"
)

// didYouMean returns ` (did you mean "x"?)` for the best fuzzy match of
// name among candidates, or "" when nothing is close.
func didYouMean(name string, candidates []string) string {
	matches := fuzzy.Find(name, candidates)
	if len(matches) == 0 {
		return ""
	}
	return fmt.Sprintf(" (did you mean %q?)", matches[0].Str)
}
