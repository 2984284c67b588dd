package parser

import (
	"fmt"
	"strings"
)

// Mode selects how parsed entries are mapped back onto input positions.
type Mode string

const (
	// Positional places each entry at the slot named by its ordinal and
	// fills every empty slot with a placeholder for that slot's input.
	Positional Mode = "positional"
	// Sequential appends in-range entries in ordinal order and pads the
	// tail with placeholders. It misaligns output when an entry other than
	// the last ones is missing and exists for compatibility only.
	Sequential Mode = "sequential"
)

// ParseMode converts a config string into a Mode. The empty string selects
// Positional.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", Positional:
		return Positional, nil
	case Sequential:
		return Sequential, nil
	default:
		return "", fmt.Errorf("unknown reassembly mode %q (want %q or %q)", s, Positional, Sequential)
	}
}

// Placeholder returns the text used for an input whose translation could
// not be recovered.
func Placeholder(original string) string {
	return fmt.Sprintf("[Translation missing for: %s]", original)
}

// Report describes how well a response matched the batch it answers.
type Report struct {
	Expected int // number of input items
	Parsed   int // entries recovered from the response, before filtering
	Filled   int // output slots carrying a placeholder

	Missing    []int // 1-based positions that received a placeholder
	OutOfRange []int // ordinals outside [1, Expected]
	Duplicates []int // ordinals seen more than once; extra copies dropped
}

// Mismatch reports whether the response disagreed with the batch in any
// way the caller should warn about.
func (r Report) Mismatch() bool {
	return r.Parsed != r.Expected || r.Filled > 0 || len(r.OutOfRange) > 0 || len(r.Duplicates) > 0
}

func (r Report) String() string {
	if !r.Mismatch() {
		return fmt.Sprintf("recovered %d of %d translations", r.Parsed, r.Expected)
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "expected %d translations but got %d", r.Expected, r.Parsed)
	if len(r.Missing) > 0 {
		fmt.Fprintf(&sb, "; missing %v", r.Missing)
	}
	if len(r.OutOfRange) > 0 {
		fmt.Fprintf(&sb, "; out of range %v", r.OutOfRange)
	}
	if len(r.Duplicates) > 0 {
		fmt.Fprintf(&sb, "; duplicated %v", r.Duplicates)
	}
	return sb.String()
}

// Reassemble maps sorted entries onto the originals and returns exactly
// len(originals) texts. entries must be sorted by ordinal as returned by
// Parse.
func Reassemble(entries []Entry, originals []string, mode Mode) ([]string, Report) {
	n := len(originals)
	report := Report{Expected: n, Parsed: len(entries)}

	// Classify entries once; both modes drop the same ones.
	kept := make([]Entry, 0, len(entries))
	seen := make(map[int]bool, len(entries))
	for _, e := range entries {
		if e.Ordinal < 1 || e.Ordinal > n {
			report.OutOfRange = append(report.OutOfRange, e.Ordinal)
			continue
		}
		if seen[e.Ordinal] {
			if len(report.Duplicates) == 0 || report.Duplicates[len(report.Duplicates)-1] != e.Ordinal {
				report.Duplicates = append(report.Duplicates, e.Ordinal)
			}
			continue
		}
		seen[e.Ordinal] = true
		kept = append(kept, e)
	}

	out := make([]string, n)
	filled := make([]bool, n)

	switch mode {
	case Sequential:
		for i, e := range kept {
			out[i] = e.Text
			filled[i] = true
		}
	default:
		for _, e := range kept {
			out[e.Ordinal-1] = e.Text
			filled[e.Ordinal-1] = true
		}
	}

	for i := range out {
		if filled[i] {
			continue
		}
		out[i] = Placeholder(originals[i])
		report.Missing = append(report.Missing, i+1)
		report.Filled++
	}

	return out, report
}
