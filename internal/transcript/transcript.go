// Package transcript normalizes recognizer output before injection.
package transcript

import (
	"regexp"
	"strings"
)

// Options controls formatting.
type Options struct {
	TrailingSpace       bool
	CapitalizeSentences bool
}

// whisper emits these for non-speech audio.
var nonSpeechMarker = regexp.MustCompile(`(?i)\[\s*(?:blank_audio|silence|music|noise|inaudible|no speech)\s*\]|\(\s*(?:silence|music|noise|inaudible|blank audio)\s*\)`)

// Clean strips non-speech markers, collapses whitespace and applies the
// configured casing. It returns "" when nothing speakable remains.
func Clean(raw string, opts Options) string {
	text := nonSpeechMarker.ReplaceAllString(raw, " ")
	text = strings.Join(strings.Fields(text), " ")
	if !hasWordRune(text) {
		return ""
	}
	if opts.CapitalizeSentences {
		text = capitalizePronounI(capitalizeSentences(text))
	}
	if opts.TrailingSpace {
		return text + " "
	}
	return text
}

func hasWordRune(s string) bool {
	for _, r := range s {
		if isWordRune(r) {
			return true
		}
	}
	return false
}
