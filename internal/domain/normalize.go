package domain

import (
	"math"
	"strings"
)

const (
	StyleMin     = 0
	StyleMax     = 10
	StyleDefault = 5
)

// ClampScore forces a slider score into [StyleMin, StyleMax].
func ClampScore(n int) int {
	if n < StyleMin {
		return StyleMin
	}
	if n > StyleMax {
		return StyleMax
	}
	return n
}

// CoerceScore maps an arbitrary decoded JSON value to a valid score:
// round-then-clamp for numbers, StyleDefault for everything else.
func CoerceScore(v any) int {
	switch n := v.(type) {
	case int:
		return ClampScore(n)
	case int64:
		return ClampScore(int(n))
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return StyleDefault
		}
		return ClampScore(int(math.Round(n)))
	default:
		return StyleDefault
	}
}

// Clamp returns a copy of the style with every dimension clamped.
func (s Style) Clamp() Style {
	return Style{
		Formality:  ClampScore(s.Formality),
		Pace:       ClampScore(s.Pace),
		Calm:       ClampScore(s.Calm),
		Introvert:  ClampScore(s.Introvert),
		Empathy:    ClampScore(s.Empathy),
		Humor:      ClampScore(s.Humor),
		Creativity: ClampScore(s.Creativity),
		Directness: ClampScore(s.Directness),
	}
}

// DefaultStyle returns all sliders at the midpoint.
func DefaultStyle() Style {
	return Style{
		Formality:  StyleDefault,
		Pace:       StyleDefault,
		Calm:       StyleDefault,
		Introvert:  StyleDefault,
		Empathy:    StyleDefault,
		Humor:      StyleDefault,
		Creativity: StyleDefault,
		Directness: StyleDefault,
	}
}

// NormalizeHexColor canonicalizes a CSS hex color to lowercase `#rgb` or
// `#rrggbb` form. Returns nil for anything that is not a valid hex color.
func NormalizeHexColor(s string) *string {
	trimmed := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(s), "#"))
	if len(trimmed) != 3 && len(trimmed) != 6 {
		return nil
	}
	lowered := strings.ToLower(trimmed)
	for _, r := range lowered {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') {
			return nil
		}
	}
	out := "#" + lowered
	return &out
}

// ConnectionStatuses are the allowed connection states.
var ConnectionStatuses = []string{"connected", "needs_setup", "error"}

const ConnectionStatusDefault = "needs_setup"

// ValidConnectionStatus reports whether s is a known connection status.
func ValidConnectionStatus(s string) bool {
	for _, v := range ConnectionStatuses {
		if v == s {
			return true
		}
	}
	return false
}
