package output

import (
	"fmt"
	"strings"
)

// Shortcut is a paste chord such as CTRL+V, CTRL+SHIFT+V or SHIFT+INSERT.
type Shortcut struct {
	Mods []string
	Key  string
}

var modifierAliases = map[string]string{
	"CTRL":    "CTRL",
	"CONTROL": "CTRL",
	"SHIFT":   "SHIFT",
	"ALT":     "ALT",
	"SUPER":   "SUPER",
	"META":    "SUPER",
	"WIN":     "SUPER",
	"MOD4":    "SUPER",
}

// ParseShortcut accepts "+"-joined chords (CTRL+SHIFT+V) and hyprctl's
// literal form (CTRL SHIFT,V).
func ParseShortcut(s string) (Shortcut, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return Shortcut{}, fmt.Errorf("paste shortcut cannot be empty")
	}

	var tokens []string
	if mods, key, ok := strings.Cut(s, ","); ok {
		tokens = append(strings.Fields(mods), strings.TrimSpace(key))
	} else {
		for _, tok := range strings.Split(s, "+") {
			tokens = append(tokens, strings.TrimSpace(tok))
		}
	}

	sc := Shortcut{Key: tokens[len(tokens)-1]}
	if sc.Key == "" {
		return Shortcut{}, fmt.Errorf("paste shortcut %q has no key", s)
	}
	if _, isMod := modifierAliases[sc.Key]; isMod {
		return Shortcut{}, fmt.Errorf("paste shortcut %q ends with a modifier", s)
	}
	for _, tok := range tokens[:len(tokens)-1] {
		mod, ok := modifierAliases[tok]
		if !ok {
			return Shortcut{}, fmt.Errorf("paste shortcut %q: %q is not a modifier", s, tok)
		}
		sc.Mods = append(sc.Mods, mod)
	}
	return sc, nil
}

func (s Shortcut) has(mod string) bool {
	for _, m := range s.Mods {
		if m == mod {
			return true
		}
	}
	return false
}

// HyprChord renders the chord as hyprctl sendshortcut expects it.
func (s Shortcut) HyprChord() string {
	return strings.Join(s.Mods, " ") + "," + s.Key
}

func (s Shortcut) String() string {
	if len(s.Mods) == 0 {
		return s.Key
	}
	return strings.Join(s.Mods, "+") + "+" + s.Key
}
