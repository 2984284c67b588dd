// Package parser recovers numbered translations from free-form LLM output.
//
// The provider is asked to answer with one "[N] text" entry per input item,
// but responses drift: entries wrap over several lines, arrive out of order,
// repeat, or go missing. Parse scans the response line by line with a small
// state machine and Reassemble maps the recovered entries back onto the
// input positions, filling any gap with a placeholder.
package parser

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// markerRe matches a line that opens a new entry: optional leading
// whitespace, "[", one or more digits, "]", then the rest of the line.
var markerRe = regexp.MustCompile(`^\s*\[(\d+)\](.*)$`)

// Entry is one numbered translation recovered from the response.
type Entry struct {
	Ordinal int
	Text    string
}

type state int

const (
	noOpenEntry state = iota
	entryOpen
)

// scanner holds the state machine used by Parse.
type scanner struct {
	state   state
	ordinal int
	text    strings.Builder
	entries []Entry
}

func (s *scanner) open(ordinal int, text string) {
	s.finalize()
	s.state = entryOpen
	s.ordinal = ordinal
	s.text.Reset()
	s.text.WriteString(text)
}

func (s *scanner) continueWith(line string) {
	if s.state == noOpenEntry {
		return
	}
	if s.text.Len() > 0 {
		s.text.WriteByte(' ')
	}
	s.text.WriteString(line)
}

func (s *scanner) finalize() {
	if s.state != entryOpen {
		return
	}
	s.entries = append(s.entries, Entry{
		Ordinal: s.ordinal,
		Text:    strings.TrimSpace(s.text.String()),
	})
	s.state = noOpenEntry
}

// Parse splits raw into numbered entries and returns them sorted by ordinal.
// Entries sharing an ordinal keep their response order. Text before the
// first marker is discarded. Parse never fails; a response without markers
// yields an empty slice.
func Parse(raw string) []Entry {
	var s scanner

	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		m := markerRe.FindStringSubmatch(line)
		if m == nil {
			s.continueWith(line)
			continue
		}

		ordinal, err := strconv.Atoi(m[1])
		if err != nil {
			// Digits too long for int; keep the entry so it is reported
			// as out of range rather than merged into its neighbour.
			ordinal = -1
		}
		s.open(ordinal, strings.TrimSpace(m[2]))
	}
	s.finalize()

	sort.SliceStable(s.entries, func(i, j int) bool {
		return s.entries[i].Ordinal < s.entries[j].Ordinal
	})

	return s.entries
}
