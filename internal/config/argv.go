package config

import (
	"fmt"
	"strings"
	"unicode"
)

// ArgvError reports a command string that cannot be split into argv.
type ArgvError struct {
	Command string
	Problem string
}

func (e *ArgvError) Error() string {
	return fmt.Sprintf("%s in command: %q", e.Problem, e.Command)
}

// argvSplitter splits a shell-like command line without invoking a shell.
// Quotes group words and a backslash escapes the next rune. No expansion
// is performed.
type argvSplitter struct {
	words   []string
	word    strings.Builder
	inWord  bool
	quote   rune
	escaped bool
}

func (s *argvSplitter) feed(r rune) {
	switch {
	case s.escaped:
		s.escaped = false
		s.add(r)
	case r == '\\':
		s.escaped = true
	case s.quote != 0 && r == s.quote:
		s.quote = 0
	case s.quote != 0:
		s.add(r)
	case r == '"' || r == '\'':
		s.quote = r
	case unicode.IsSpace(r):
		s.end()
	default:
		s.add(r)
	}
}

func (s *argvSplitter) add(r rune) {
	s.word.WriteRune(r)
	s.inWord = true
}

func (s *argvSplitter) end() {
	if !s.inWord || s.word.Len() == 0 {
		s.inWord = false
		return
	}
	s.words = append(s.words, s.word.String())
	s.word.Reset()
	s.inWord = false
}

// parseArgv splits a configured command. Blank input and input commented
// out with a leading '#' yield a nil argv, which disables the command.
func parseArgv(input string) ([]string, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" || trimmed[0] == '#' {
		return nil, nil
	}

	var s argvSplitter
	for _, r := range trimmed {
		s.feed(r)
	}
	switch {
	case s.escaped:
		return nil, &ArgvError{Command: trimmed, Problem: "unterminated escape sequence"}
	case s.quote != 0:
		return nil, &ArgvError{Command: trimmed, Problem: "unterminated quote"}
	}
	s.end()
	return s.words, nil
}

func mustParseArgv(input string) []string {
	argv, err := parseArgv(input)
	if err != nil {
		panic(fmt.Sprintf("default command: %v", err))
	}
	return argv
}
