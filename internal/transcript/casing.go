package transcript

import (
	"regexp"
	"strings"
	"unicode"
)

// Periods after these tokens do not end a sentence.
var abbreviations = map[string]struct{}{
	"e.g": {}, "i.e": {}, "etc": {}, "vs": {}, "cf": {},
	"mr": {}, "mrs": {}, "ms": {}, "dr": {}, "prof": {}, "sr": {}, "jr": {}, "st": {},
	"approx": {}, "dept": {}, "est": {}, "fig": {}, "no": {}, "vol": {},
	"min": {}, "mins": {}, "hr": {}, "hrs": {}, "sec": {}, "oz": {}, "lb": {}, "lbs": {},
}

// These stay lowercase even at a sentence start.
var lowercaseLeads = map[string]struct{}{
	"e.g": {}, "i.e": {}, "etc": {}, "vs": {},
}

func capitalizeSentences(text string) string {
	runes := []rune(text)
	atStart := true
	for i, r := range runes {
		switch {
		case atStart && unicode.IsLetter(r):
			if _, keep := lowercaseLeads[leadingToken(runes, i)]; !keep {
				runes[i] = unicode.ToUpper(r)
			}
			atStart = false
		case atStart && unicode.IsDigit(r):
			atStart = false
		case r == '!' || r == '?':
			atStart = followedBySpace(runes, i)
		case r == '.':
			atStart = followedBySpace(runes, i) && endsSentence(runes, i)
		}
	}
	return string(runes)
}

func followedBySpace(runes []rune, i int) bool {
	j := i + 1
	for j < len(runes) && isClosingRune(runes[j]) {
		j++
	}
	return j < len(runes) && unicode.IsSpace(runes[j])
}

func isClosingRune(r rune) bool {
	switch r {
	case ')', ']', '"', '\'', '’', '”', '.':
		return true
	}
	return false
}

// endsSentence reports whether the period at i terminates a sentence.
func endsSentence(runes []rune, i int) bool {
	start := i
	for start > 0 && (unicode.IsLetter(runes[start-1]) || runes[start-1] == '.') {
		start--
	}
	token := strings.ToLower(strings.Trim(string(runes[start:i]), "."))
	if token == "" {
		return true
	}
	_, abbr := abbreviations[token]
	return !abbr
}

func leadingToken(runes []rune, i int) string {
	end := i
	for end < len(runes) && (unicode.IsLetter(runes[end]) || runes[end] == '.') {
		end++
	}
	return strings.ToLower(strings.Trim(string(runes[i:end]), "."))
}

var pronounI = regexp.MustCompile(`\bi\b`)

// capitalizePronounI uppercases the standalone pronoun, contractions
// included, and leaves initialisms such as "i.e." alone.
func capitalizePronounI(text string) string {
	out := []byte(text)
	for _, m := range pronounI.FindAllStringIndex(text, -1) {
		if !inInitialism(text, m[0]) {
			out[m[0]] = 'I'
		}
	}
	return string(out)
}

func inInitialism(text string, i int) bool {
	if i+2 < len(text) && text[i+1] == '.' && isASCIILetter(text[i+2]) {
		return true
	}
	return i >= 2 && text[i-1] == '.' && isASCIILetter(text[i-2])
}

func isASCIILetter(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}
