package snapshot

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/spance/a11ycheck/utils"
)

const maxRenderedValue = 200

// Render formats the delta for console reading, one change per line:
// "+" added, "-" removed, "~" changed, ">" moved.
func Render(delta *Delta) string {
	if delta.Empty() {
		return "no differences"
	}

	var sb strings.Builder
	for _, c := range delta.Changes {
		path := c.Path
		if path == "" {
			path = "$"
		}
		switch c.Kind {
		case Added:
			fmt.Fprintf(&sb, "+ %s: %s\n", path, renderValue(c.New))
		case Removed:
			fmt.Fprintf(&sb, "- %s: %s\n", path, renderValue(c.Old))
		case Moved:
			fmt.Fprintf(&sb, "> %s: moved from index %d to %d\n", path, c.From, c.To)
		case Changed:
			oldType, newType := utils.JsonType(c.Old), utils.JsonType(c.New)
			if oldType != newType {
				fmt.Fprintf(&sb, "~ %s: %s (%s) => %s (%s)\n", path, renderValue(c.Old), oldType, renderValue(c.New), newType)
			} else {
				fmt.Fprintf(&sb, "~ %s: %s => %s\n", path, renderValue(c.Old), renderValue(c.New))
			}
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

func renderValue(v any) string {
	s := utils.JsonString(v)
	if len(s) <= maxRenderedValue {
		return s
	}
	cut := maxRenderedValue
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
