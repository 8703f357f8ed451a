// Package estimator provides a fast heuristic token count for chat text.
//
// The estimate is intentionally approximate: it exists to keep a running
// budget gauge current, not to reproduce any model's tokenizer. The rule of
// thumb is ~4 characters per token, floored at one token per word.
package estimator

import (
	"strings"
	"unicode/utf8"
)

const defaultCharsPerToken = 4

// Heuristic estimates tokens from character and word counts.
// The zero value uses the default 4 characters-per-token ratio.
type Heuristic struct {
	CharsPerToken int
}

// Default is the estimator used when no custom ratio is configured.
var Default = Heuristic{}

func (h Heuristic) ratio() int {
	if h.CharsPerToken <= 0 {
		return defaultCharsPerToken
	}
	return h.CharsPerToken
}

// Estimate returns a non-negative token estimate for text. Empty input yields
// 0. Estimation must never take down the tracker: any panic is swallowed and
// mapped to 0.
func (h Heuristic) Estimate(text string) (n int) {
	defer func() {
		if recover() != nil {
			n = 0
		}
	}()

	text = strings.TrimSpace(text)
	if text == "" {
		return 0
	}

	r := h.ratio()
	chars := utf8.RuneCountInString(text)
	n = (chars + r - 1) / r

	// A token rarely spans multiple words.
	if words := len(strings.Fields(text)); words > n {
		n = words
	}
	return n
}
