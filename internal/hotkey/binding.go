package hotkey

import (
	"fmt"
	"strconv"
	"strings"
)

// Linux input event key codes (linux/input-event-codes.h).
const (
	keyLeftCtrl   uint16 = 29
	keyRightCtrl  uint16 = 97
	keyLeftShift  uint16 = 42
	keyRightShift uint16 = 54
	keyLeftAlt    uint16 = 56
	keyRightAlt   uint16 = 100
	keyLeftMeta   uint16 = 125
	keyRightMeta  uint16 = 126
)

var modifierGroups = map[string][]uint16{
	"ctrl":       {keyLeftCtrl, keyRightCtrl},
	"control":    {keyLeftCtrl, keyRightCtrl},
	"shift":      {keyLeftShift, keyRightShift},
	"alt":        {keyLeftAlt, keyRightAlt},
	"super":      {keyLeftMeta, keyRightMeta},
	"meta":       {keyLeftMeta, keyRightMeta},
	"win":        {keyLeftMeta, keyRightMeta},
	"leftctrl":   {keyLeftCtrl},
	"rightctrl":  {keyRightCtrl},
	"leftshift":  {keyLeftShift},
	"rightshift": {keyRightShift},
	"leftalt":    {keyLeftAlt},
	"rightalt":   {keyRightAlt},
	"leftmeta":   {keyLeftMeta},
	"rightmeta":  {keyRightMeta},
	"leftsuper":  {keyLeftMeta},
	"rightsuper": {keyRightMeta},
}

var namedKeys = map[string]uint16{
	"esc": 1, "escape": 1,
	"minus": 12, "equal": 13, "backspace": 14, "tab": 15,
	"enter": 28, "return": 28,
	"space": 57, "capslock": 58, "scrolllock": 70,
	"home": 102, "up": 103, "pageup": 104, "left": 105, "right": 106,
	"end": 107, "down": 108, "pagedown": 109, "insert": 110, "delete": 111,
	"pause": 119, "menu": 139, "compose": 127,
}

// Binding is a parsed key combination: every modifier group must be held
// when Key goes down.
type Binding struct {
	Name      string
	Key       uint16
	Modifiers [][]uint16
}

// ParseBinding accepts strings like "F9", "SUPER+SHIFT+D" or "RIGHTCTRL".
// Tokens are case-insensitive and joined by "+".
func ParseBinding(s string) (Binding, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Binding{}, fmt.Errorf("empty key binding")
	}

	parts := strings.Split(s, "+")
	for i := range parts {
		parts[i] = strings.ToLower(strings.TrimSpace(parts[i]))
		if parts[i] == "" {
			return Binding{}, fmt.Errorf("invalid key binding %q: empty token", s)
		}
	}

	keyToken := parts[len(parts)-1]
	code, ok := keyCode(keyToken)
	if !ok {
		return Binding{}, fmt.Errorf("invalid key binding %q: unknown key %q", s, keyToken)
	}

	b := Binding{Name: strings.ToUpper(strings.Join(parts, "+")), Key: code}
	for _, token := range parts[:len(parts)-1] {
		group, ok := modifierGroups[token]
		if !ok {
			return Binding{}, fmt.Errorf("invalid key binding %q: %q is not a modifier", s, token)
		}
		b.Modifiers = append(b.Modifiers, group)
	}
	return b, nil
}

// Codes lists every key code the binding needs to observe.
func (b Binding) Codes() []uint16 {
	codes := []uint16{b.Key}
	for _, group := range b.Modifiers {
		codes = append(codes, group...)
	}
	return codes
}

func keyCode(token string) (uint16, bool) {
	if group, ok := modifierGroups[token]; ok {
		// A bare modifier binds its left-side key unless a side was named.
		return group[0], true
	}
	if code, ok := namedKeys[token]; ok {
		return code, true
	}
	if len(token) == 1 {
		return charCode(token[0])
	}
	if strings.HasPrefix(token, "f") {
		n, err := strconv.Atoi(strings.TrimPrefix(token, "f"))
		if err == nil && n >= 1 && n <= 24 {
			return functionKeyCode(n), true
		}
	}
	return 0, false
}

func charCode(ch byte) (uint16, bool) {
	rows := []struct {
		keys  string
		first uint16
	}{
		{"1234567890", 2},
		{"qwertyuiop", 16},
		{"asdfghjkl", 30},
		{"zxcvbnm", 44},
	}
	for _, row := range rows {
		if i := strings.IndexByte(row.keys, ch); i >= 0 {
			return row.first + uint16(i), true
		}
	}
	return 0, false
}

func functionKeyCode(n int) uint16 {
	switch {
	case n <= 10:
		return 59 + uint16(n-1)
	case n <= 12:
		return 87 + uint16(n-11)
	default:
		return 183 + uint16(n-13)
	}
}
