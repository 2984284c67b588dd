// Package prompt renders a batch of texts into a single instruction for the
// translation provider.
//
// Every item is written as "[i] text" (1-based) and items are separated by
// a blank line. Item text is passed through verbatim; a text that itself
// starts with "[k]" will look like a marker to the provider.
package prompt

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"text/template"

	"github.com/valpere/dubtran/internal/placeholder"
)

// DefaultTemplate asks for natural conversational Hinglish and fixes the
// numbered answer format the parser expects.
const DefaultTemplate = `Translate the following English texts to natural, conversational Hinglish (Hindi-English mix).

Guidelines:
1. Keep translations natural sounding, not robotic or literal
2. Convert numbers, numerical values and currencies to words in Hindi
3. Maintain English words that are commonly used in Hinglish conversation
4. Consider context between sentences for a natural flow
5. The output should feel like a casual conversation between Indians
{{if .Protected}}6. Keep every [PHn] marker exactly as written and at the matching spot in the sentence
{{end}}
For each text below, provide the Hinglish translation. Maintain the numbering format exactly as [1], [2], etc.

{{.Items}}

Return ONLY the translated texts with their corresponding numbers in this exact format:
[1] <Hinglish translation>
[2] <Hinglish translation>
...

Do not include any explanations, only the numbered translations.
`

// Options selects the instruction template. InlineTemplate wins over
// TemplatePath; when both are empty DefaultTemplate is used.
type Options struct {
	InlineTemplate string
	TemplatePath   string
}

// Data is what the template is executed with.
type Data struct {
	Items     string // the numbered block
	Count     int
	Protected bool // some item carries [PHn] markers
}

// Builder renders batches. It is safe for concurrent use.
type Builder struct {
	tpl *template.Template
}

// New parses the configured template. Reading TemplatePath is the only I/O
// a Builder performs.
func New(opts Options) (*Builder, error) {
	src := DefaultTemplate
	switch {
	case opts.InlineTemplate != "":
		src = opts.InlineTemplate
	case opts.TemplatePath != "":
		b, err := os.ReadFile(opts.TemplatePath)
		if err != nil {
			return nil, fmt.Errorf("prompt template read: %w", err)
		}
		src = string(b)
	}

	tpl, err := template.New("prompt").Option("missingkey=error").Parse(src)
	if err != nil {
		return nil, fmt.Errorf("prompt template parse: %w", err)
	}
	if !strings.Contains(src, ".Items") {
		return nil, fmt.Errorf("prompt template must reference {{.Items}}")
	}

	return &Builder{tpl: tpl}, nil
}

// Build renders texts into one request string.
func (b *Builder) Build(texts []string) (string, error) {
	var buf bytes.Buffer
	data := Data{Items: Number(texts), Count: len(texts)}
	for _, text := range texts {
		if placeholder.Contains(text) {
			data.Protected = true
			break
		}
	}
	if err := b.tpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("prompt render: %w", err)
	}
	return buf.String(), nil
}

// Number writes texts as "[1] a\n\n[2] b".
func Number(texts []string) string {
	var sb strings.Builder
	for i, text := range texts {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		fmt.Fprintf(&sb, "[%d] %s", i+1, text)
	}
	return sb.String()
}
