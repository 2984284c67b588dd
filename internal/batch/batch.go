// Package batch reads and writes the JSON item lists that flow through a
// translation run, and exports translated batches as CSV or XLSX tables.
package batch

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/renameio"
)

// ErrInvalidInput is returned when an input document is not a JSON array
// of {"text": ...} objects.
var ErrInvalidInput = errors.New("invalid input")

// Item is a single text snippet. Input and output batches share the shape.
type Item struct {
	Text string `json:"text"`
}

// Texts returns the text of every item, in order.
func Texts(items []Item) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.Text
	}
	return out
}

// FromTexts wraps plain strings into items.
func FromTexts(texts []string) []Item {
	out := make([]Item, len(texts))
	for i, t := range texts {
		out[i] = Item{Text: t}
	}
	return out
}

// Decode reads a JSON array of items from r.
func Decode(r io.Reader) ([]Item, error) {
	var raw []map[string]json.RawMessage
	dec := json.NewDecoder(r)
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if raw == nil {
		return nil, fmt.Errorf("%w: expected a JSON array", ErrInvalidInput)
	}
	var extra json.RawMessage
	if err := dec.Decode(&extra); err != io.EOF {
		return nil, fmt.Errorf("%w: unexpected data after the JSON array", ErrInvalidInput)
	}

	items := make([]Item, len(raw))
	for i, obj := range raw {
		field, ok := obj["text"]
		if !ok {
			return nil, fmt.Errorf("%w: item %d has no \"text\" field", ErrInvalidInput, i+1)
		}
		if err := json.Unmarshal(field, &items[i].Text); err != nil {
			return nil, fmt.Errorf("%w: item %d: \"text\" must be a string", ErrInvalidInput, i+1)
		}
	}
	return items, nil
}

// Load reads a JSON input file.
func Load(path string) ([]Item, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open input file: %w", err)
	}
	defer f.Close()

	return Decode(f)
}

// Encode renders items as pretty-printed JSON. Non-ASCII and HTML
// characters are written literally.
func Encode(items []Item) ([]byte, error) {
	if items == nil {
		items = []Item{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(items); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Save writes items to path atomically, creating parent directories.
func Save(path string, items []Item) error {
	data, err := Encode(items)
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := renameio.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write output file: %w", err)
	}
	return nil
}
