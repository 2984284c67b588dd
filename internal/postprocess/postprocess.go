// Package postprocess removes common LLM artifacts from a batch response.
//
// It is applied to the raw text returned by any provider before the
// response is handed to the parser. Cleaning only removes wrapping around
// the numbered entries; it never rewrites the text of an entry.
package postprocess

import (
	"regexp"
	"strings"
)

// Clean removes LLM artifacts from text in four phases and returns the
// trimmed result:
//  1. Thinking / reasoning block removal
//  2. Markdown code fence unwrapping
//  3. Instruction echo removal (prompt leakage), after which a fence that
//     followed the echo is unwrapped too
//  4. Emphasised marker normalisation (**[1]** → [1])
func Clean(text string) string {
	text = removeThinkingBlocks(text)
	text = unwrapCodeFence(text)
	text = unwrapCodeFence(removeInstructionEchoes(text))
	text = normaliseMarkers(text)
	return strings.TrimSpace(text)
}

// --- Phase 1: thinking blocks ---

// thinkingBlockRe matches complete <thinking>…</thinking> style blocks.
// Each tag variant is listed explicitly because Go's RE2 engine does not
// support backreferences.
// Flags: i = case-insensitive, s = dot matches newline.
var thinkingBlockRe = regexp.MustCompile(
	`(?is)<thinking>.*?</thinking>|<think>.*?</think>|<reasoning>.*?</reasoning>|<reflection>.*?</reflection>`,
)

// truncatedThinkingRe matches an opened thinking tag whose closing tag is
// missing (the model was cut off mid-thought).
var truncatedThinkingRe = regexp.MustCompile(
	`(?is)(?:<thinking>|<think>|<reasoning>|<reflection>).*$`,
)

func removeThinkingBlocks(text string) string {
	text = thinkingBlockRe.ReplaceAllString(text, "")
	text = truncatedThinkingRe.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}

// --- Phase 2: code fences ---

// codeFenceRe matches a response wrapped entirely in a fenced block,
// optionally tagged with a language (```text … ```).
var codeFenceRe = regexp.MustCompile("(?s)^```[A-Za-z0-9_-]*[ \t]*\r?\n(.*?)\r?\n?```$")

func unwrapCodeFence(text string) string {
	if m := codeFenceRe.FindStringSubmatch(strings.TrimSpace(text)); m != nil {
		return strings.TrimSpace(m[1])
	}
	return text
}

// --- Phase 3: instruction echoes ---

// echoPatterns match introductory phrases that LLMs sometimes prepend even
// when instructed not to.  Each pattern is anchored to the start of the string
// and requires a colon to reduce false positives on legitimate content.
var echoPatterns = []*regexp.Regexp{
	// "Here are / Here is / Here's [the] [Hinglish] translation[s]:"
	regexp.MustCompile(`(?i)^here(?:'s| is| are)(?: the| your)? (?:hinglish |numbered |translated )?(?:translations?|texts?)\s*:`),
	// "[The] [Hinglish] translation[s]:"
	regexp.MustCompile(`(?i)^(?:the )?(?:hinglish |numbered )?(?:translations?|translated texts?)\s*:`),
	// "Certainly / Sure / Of course[,!] here are [the] translations:"
	regexp.MustCompile(`(?i)^(?:certainly|sure|of course)[,.!]? here(?:'s| is| are)(?: the| your)? (?:hinglish |numbered |translated )?(?:translations?|texts?)\s*:`),
}

func removeInstructionEchoes(text string) string {
	for _, re := range echoPatterns {
		if loc := re.FindStringIndex(text); loc != nil && loc[0] == 0 {
			text = strings.TrimSpace(text[loc[1]:])
		}
	}
	return text
}

// --- Phase 4: emphasised markers ---

// emphasisedMarkerRe matches a line-leading ordinal marker wrapped in
// markdown bold or italics, e.g. "**[3]**" or "_[3]_".
var emphasisedMarkerRe = regexp.MustCompile(`(?m)^([ \t]*)(?:\*\*|__|\*|_)\[(\d+)\](?:\*\*|__|\*|_)`)

func normaliseMarkers(text string) string {
	return emphasisedMarkerRe.ReplaceAllString(text, "$1[$2]")
}
