package web

import (
	"errors"
	"sync"

	"github.com/valpere/dubtran/internal/batch"
	"github.com/valpere/dubtran/internal/pipeline"
)

var (
	errBusy    = errors.New("a translation is already running")
	errNoInput = errors.New("upload a JSON file first")
)

type session struct {
	mu        sync.Mutex
	busy      bool
	input     []batch.Item
	inputName string
	result    *pipeline.Result
}

type snapshot struct {
	busy      bool
	input     []batch.Item
	inputName string
	result    *pipeline.Result
}

func (s *session) snapshot() snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return snapshot{busy: s.busy, input: s.input, inputName: s.inputName, result: s.result}
}

func (s *session) setInput(name string, items []batch.Item) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.input, s.inputName = items, name
}

// begin claims the session for one batch. A nil items translates the
// uploaded input; otherwise items replaces it.
func (s *session) begin(name string, items []batch.Item) ([]batch.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.busy {
		return nil, errBusy
	}
	if items != nil {
		s.input, s.inputName = items, name
	}
	if s.input == nil {
		return nil, errNoInput
	}
	s.busy = true
	return s.input, nil
}

// finish releases the session. A failed batch leaves the previous result
// in place.
func (s *session) finish(res *pipeline.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.busy = false
	if res != nil {
		s.result = res
	}
}
