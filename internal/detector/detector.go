// Package detector flags batch items that do not look like English before
// they are sent for translation.
package detector

import (
	"strings"

	lingua "github.com/pemistahl/lingua-go"
)

// minCheckLength is the minimum rune count required to attempt language
// detection. Shorter texts produce unreliable results and are not flagged.
const minCheckLength = 20

// candidates is kept small: building a detector over every language costs
// gigabytes of models, and the interesting question is only "English or not".
var candidates = []lingua.Language{
	lingua.English,
	lingua.Hindi,
	lingua.Spanish,
	lingua.French,
	lingua.German,
	lingua.Portuguese,
	lingua.Italian,
	lingua.Dutch,
	lingua.Polish,
	lingua.Ukrainian,
	lingua.Russian,
}

// Detector is expensive to build; reuse the instance.
type Detector struct {
	detector lingua.LanguageDetector
}

func New() *Detector {
	detector := lingua.NewLanguageDetectorBuilder().
		FromLanguages(candidates...).
		Build()

	return &Detector{detector: detector}
}

func (d *Detector) Detect(text string) (lingua.Language, bool) {
	if text == "" {
		return lingua.Unknown, false
	}
	return d.detector.DetectLanguageOf(text)
}

func isoCode(lang lingua.Language) string {
	return strings.ToLower(lang.IsoCode639_1().String())
}

// Finding is an item whose detected language is not English.
type Finding struct {
	Position int    // 1-based
	Detected string // language name, e.g. "Spanish"
	Code     string // ISO 639-1, e.g. "es"
}

// CheckEnglish returns a finding for every text long enough to classify
// that is confidently detected as something other than English.
func (d *Detector) CheckEnglish(texts []string) []Finding {
	var findings []Finding
	for i, text := range texts {
		text = strings.TrimSpace(text)
		if len([]rune(text)) < minCheckLength {
			continue
		}

		lang, ok := d.Detect(text)
		if !ok || lang == lingua.English {
			continue
		}
		findings = append(findings, Finding{Position: i + 1, Detected: lang.String(), Code: isoCode(lang)})
	}
	return findings
}
