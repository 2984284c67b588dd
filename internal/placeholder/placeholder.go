// Package placeholder shields markup inside batch items from the model.
// Subtitle styling tags (<i>, </font>), brace overrides and variables
// ({\an8}, {name}) and code spans are swapped for numbered markers such as
// [PH0] before the prompt is built, and put back into the translations
// afterwards. Markers are numbered per item, starting at 0.
package placeholder

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	reFencedCode = regexp.MustCompile("(?s)```.*?```")
	reInlineCode = regexp.MustCompile("`[^`\n]+`")
	reTag        = regexp.MustCompile(`</?[A-Za-z][^<>\n]*>`)
	reBrace      = regexp.MustCompile(`\{[^{}\n]+\}`)

	reMarker = regexp.MustCompile(`\[PH(\d+)\]`)
)

// Protect replaces markup in text with [PH0], [PH1], ... in the order the
// patterns are applied and returns the captured spans.
func Protect(text string) (string, []string) {
	var spans []string
	replace := func(match string) string {
		id := fmt.Sprintf("[PH%d]", len(spans))
		spans = append(spans, match)
		return id
	}

	// Fenced blocks first so their contents are not split by the others.
	text = reFencedCode.ReplaceAllStringFunc(text, replace)
	text = reInlineCode.ReplaceAllStringFunc(text, replace)
	text = reTag.ReplaceAllStringFunc(text, replace)
	text = reBrace.ReplaceAllStringFunc(text, replace)

	return text, spans
}

// Restore puts spans back in place of their markers. Unknown indices are
// left as they are.
func Restore(text string, spans []string) string {
	if len(spans) == 0 {
		return text
	}
	return reMarker.ReplaceAllStringFunc(text, func(match string) string {
		idx, err := strconv.Atoi(reMarker.FindStringSubmatch(match)[1])
		if err != nil || idx >= len(spans) {
			return match
		}
		return spans[idx]
	})
}

// Missing returns the indices of spans whose marker does not appear in text.
func Missing(text string, spans []string) []int {
	var missing []int
	for i := range spans {
		if !strings.Contains(text, fmt.Sprintf("[PH%d]", i)) {
			missing = append(missing, i)
		}
	}
	return missing
}

// Contains reports whether text carries at least one marker.
func Contains(text string) bool {
	return reMarker.MatchString(text)
}

// Set is the protected form of a batch.
type Set struct {
	Texts []string
	spans [][]string
}

// ProtectAll protects every text of a batch.
func ProtectAll(texts []string) Set {
	s := Set{Texts: make([]string, len(texts)), spans: make([][]string, len(texts))}
	for i, text := range texts {
		s.Texts[i], s.spans[i] = Protect(text)
	}
	return s
}

// Count is the number of spans protected across the batch.
func (s Set) Count() int {
	n := 0
	for _, spans := range s.spans {
		n += len(spans)
	}
	return n
}

// RestoreAll restores outputs in place of a batch translated from s.Texts.
// Positions listed in skip (1-based, the gap-filled ones) are not checked.
// It returns the 1-based positions whose translation dropped a marker.
func (s Set) RestoreAll(outputs []string, skip []int) ([]string, []int) {
	skipped := make(map[int]bool, len(skip))
	for _, pos := range skip {
		skipped[pos] = true
	}

	restored := make([]string, len(outputs))
	var lost []int
	for i, out := range outputs {
		if i >= len(s.spans) || skipped[i+1] {
			restored[i] = out
			continue
		}
		if len(Missing(out, s.spans[i])) > 0 {
			lost = append(lost, i+1)
		}
		restored[i] = Restore(out, s.spans[i])
	}
	return restored, lost
}
