package basic

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/antibyte/retrobasic/pkg/logger"
)

// ProgramStore persists program source for SAVE and LOAD at the prompt.
type ProgramStore interface {
	SaveSource(name, source string) error
	LoadSource(name string) (string, error)
	Names() ([]string, error)
}

// ErrNoStore is returned by SAVE, LOAD and FILES without a ProgramStore.
var ErrNoStore = errors.New("no program store attached")

// Shell is the immediate-mode prompt on top of an Interpreter. Numbered
// lines are collected into a Listing; RUN, LIST, NEW, SAVE, LOAD, FILES and
// BYE are handled here and everything else goes to Execute.
type Shell struct {
	b       *Interpreter
	listing *Listing
	source  string // program text of a LOAD with unnumbered lines
	store   ProgramStore
}

// NewShell wraps b. store may be nil.
func NewShell(b *Interpreter, store ProgramStore) *Shell {
	return &Shell{b: b, listing: NewListing(), store: store}
}

// Interpreter returns the wrapped interpreter.
func (s *Shell) Interpreter() *Interpreter { return s.b }

// Source returns the current program text.
func (s *Shell) Source() string {
	if s.source != "" {
		return s.source
	}
	return s.listing.Source()
}

// Handle processes one line typed at the prompt. quit is true after BYE.
func (s *Shell) Handle(ctx context.Context, line string) (quit bool, err error) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return false, nil
	}
	if trimmed[0] >= '0' && trimmed[0] <= '9' {
		return false, s.enter(trimmed)
	}

	word, arg := trimmed, ""
	if i := strings.IndexAny(trimmed, " \t"); i >= 0 {
		word, arg = trimmed[:i], strings.TrimSpace(trimmed[i+1:])
	}
	switch strings.ToUpper(word) {
	case "BYE":
		return true, nil
	case "RUN":
		if arg != "" {
			if err := s.load(arg); err != nil {
				return false, err
			}
		}
		if err := s.b.LoadProgram(s.Source()); err != nil {
			return false, err
		}
		return false, s.b.Run(ctx)
	case "LIST":
		return false, s.print(s.Source())
	case "NEW":
		s.listing.Clear()
		s.source = ""
		return false, s.b.LoadProgram("")
	case "SAVE":
		return false, s.save(arg)
	case "LOAD":
		return false, s.load(arg)
	case "FILES":
		return false, s.files()
	}
	return false, s.b.Execute(ctx, trimmed)
}

// enter stores or deletes a numbered line after checking that it tokenizes.
func (s *Shell) enter(line string) error {
	tok, err := Tokenize(line, true)
	if err != nil {
		return err
	}
	n := lineNumberOf(tok, 0)
	i := 0
	for i < len(line) && line[i] >= '0' && line[i] <= '9' {
		i++
	}
	// a loaded program without line numbers cannot be edited by number
	if s.source != "" {
		return newError(ErrCategorySyntax, "INVALID_HERE", "A numbered line")
	}
	s.listing.Set(n, strings.TrimSpace(line[i:]))
	return nil
}

// setSource installs loaded text, into the listing when every line is numbered.
func (s *Shell) setSource(src string) {
	s.listing.Clear()
	s.source = ""
	type entry struct {
		n    int
		text string
	}
	var entries []entry
	for _, line := range strings.Split(strings.ReplaceAll(src, "\r\n", "\n"), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		i := 0
		for i < len(line) && line[i] >= '0' && line[i] <= '9' {
			i++
		}
		n, err := strconv.Atoi(line[:i])
		if i == 0 || err != nil {
			s.source = src
			return
		}
		entries = append(entries, entry{n, strings.TrimSpace(line[i:])})
	}
	for _, e := range entries {
		s.listing.Set(e.n, e.text)
	}
}

func programName(arg string) string {
	return strings.Trim(strings.TrimSpace(arg), `"`)
}

func (s *Shell) save(arg string) error {
	if s.store == nil {
		return ErrNoStore
	}
	name := programName(arg)
	if name == "" {
		return newError(ErrCategorySyntax, "EXPECTED_STRING")
	}
	if err := s.store.SaveSource(name, s.Source()); err != nil {
		return err
	}
	logger.Info(logger.AreaProgram, "[%s] saved %s", s.b.sessionID, name)
	return nil
}

func (s *Shell) load(arg string) error {
	if s.store == nil {
		return ErrNoStore
	}
	name := programName(arg)
	if name == "" {
		return newError(ErrCategorySyntax, "EXPECTED_STRING")
	}
	src, err := s.store.LoadSource(name)
	if err != nil {
		return err
	}
	if err := s.b.LoadProgram(src); err != nil {
		return err
	}
	s.setSource(src)
	return nil
}

func (s *Shell) files() error {
	if s.store == nil {
		return ErrNoStore
	}
	names, err := s.store.Names()
	if err != nil {
		return err
	}
	for _, name := range names {
		if err := s.print(name + "\n"); err != nil {
			return err
		}
	}
	return nil
}

// print writes text to console stream 0.
func (s *Shell) print(text string) error {
	if s.b.console == nil {
		return ErrNoConsole
	}
	for i := 0; i < len(text); i++ {
		if err := s.b.console.WriteChar(0, text[i]); err != nil {
			return err
		}
	}
	return nil
}
