// Package diag accumulates script-level diagnostics for a single Derp
// evaluation. It is the runtime's error state (spec component 5): a
// cursor the evaluator updates before every step that may fail, plus the
// list of (file, line, message) entries that accumulate from it.
//
// Script errors are never Go `error` values that unwind a call stack —
// they live here, and the evaluator separately signals control-flow
// `Error` (see package vm's Signal) to unwind to the host entry point.
package diag

import (
	"fmt"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"
)

// Entry is one recorded diagnostic.
type Entry struct {
	File    string
	Line    int
	Message string
}

// State carries the current (file, line) cursor plus all recorded
// entries for one evaluation.
type State struct {
	currentFile string
	currentLine int
	entries     []Entry
}

// NewState returns an empty error state.
func NewState() *State {
	return &State{}
}

// SetPosition updates the cursor. The evaluator calls this before every
// node it is about to evaluate, so any error raised mid-step is
// attributed to the right location.
func (s *State) SetPosition(file string, line int) {
	s.currentFile = file
	s.currentLine = line
}

// AddError appends an entry at the current cursor position.
func (s *State) AddError(format string, args ...interface{}) {
	s.entries = append(s.entries, Entry{
		File:    s.currentFile,
		Line:    s.currentLine,
		Message: fmt.Sprintf(format, args...),
	})
}

// AddErrorWithSuggestion appends an entry and, if candidates contains a
// close match for `got` (and not an exact one), appends a "did you mean"
// hint. A candidate matches when it contains got's letters in order,
// ignoring case (so "cnt" finds "count", but a transposed "cuont" finds
// nothing); among matches the smallest edit distance wins. Grounded on
// the teacher pack's fuzzysearch dependency.
func (s *State) AddErrorWithSuggestion(got string, candidates []string, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if best, ok := closestMatch(got, candidates); ok {
		msg = fmt.Sprintf("%s; did you mean %q?", msg, best)
	}
	s.entries = append(s.entries, Entry{
		File:    s.currentFile,
		Line:    s.currentLine,
		Message: msg,
	})
}

func closestMatch(got string, candidates []string) (string, bool) {
	if got == "" || len(candidates) == 0 {
		return "", false
	}
	ranked := fuzzy.RankFindFold(got, candidates)
	if len(ranked) == 0 {
		return "", false
	}
	ranked.Sort()
	best := ranked[0].Target
	if best == got {
		return "", false
	}
	return best, true
}

// HasErrors reports whether any entry has been recorded.
func (s *State) HasErrors() bool {
	return len(s.entries) > 0
}

// Entries returns the recorded diagnostics in recording order.
func (s *State) Entries() []Entry {
	return s.entries
}

// Reset clears both the cursor and the entry list.
func (s *State) Reset() {
	s.currentFile = ""
	s.currentLine = 0
	s.entries = nil
}

// GetAllErrorText concatenates entries as "file:line: error: msg", one
// per line.
func (s *State) GetAllErrorText() string {
	var b strings.Builder
	for _, e := range s.entries {
		fmt.Fprintf(&b, "%s:%d: error: %s\n", e.File, e.Line, e.Message)
	}
	return b.String()
}

// CurrentPosition returns the cursor's current (file, line).
func (s *State) CurrentPosition() (string, int) {
	return s.currentFile, s.currentLine
}
