package serialmux

import "strings"

// Line kinds emitted by detector bridges.
const (
	LineFrame   = "frame"
	LineComment = "comment"
	LineUnknown = "unknown"
)

// ClassifyLine reports whether a line carries a detection frame, a bridge
// comment (prefixed with '#') or something else.
func ClassifyLine(line string) string {
	line = strings.TrimSpace(line)
	switch {
	case strings.HasPrefix(line, "{") && strings.HasSuffix(line, "}"):
		return LineFrame
	case strings.HasPrefix(line, "#"):
		return LineComment
	default:
		return LineUnknown
	}
}
