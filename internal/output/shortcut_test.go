package output

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseShortcut(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in    string
		chord string
		str   string
	}{
		{in: "CTRL+V", chord: "CTRL,V", str: "CTRL+V"},
		{in: "ctrl+shift+v", chord: "CTRL SHIFT,V", str: "CTRL+SHIFT+V"},
		{in: "SHIFT+INSERT", chord: "SHIFT,INSERT", str: "SHIFT+INSERT"},
		{in: "SUPER,V", chord: "SUPER,V", str: "SUPER+V"},
		{in: "CTRL SHIFT, V", chord: "CTRL SHIFT,V", str: "CTRL+SHIFT+V"},
		{in: "control+v", chord: "CTRL,V", str: "CTRL+V"},
	}
	for _, tc := range tests {
		sc, err := ParseShortcut(tc.in)
		require.NoError(t, err, tc.in)
		require.Equal(t, tc.chord, sc.HyprChord(), tc.in)
		require.Equal(t, tc.str, sc.String(), tc.in)
	}
}

func TestParseShortcutErrors(t *testing.T) {
	t.Parallel()

	for in, want := range map[string]string{
		"":        "cannot be empty",
		"CTRL+":   "has no key",
		"CTRL":    "ends with a modifier",
		"HYPER+V": "is not a modifier",
	} {
		_, err := ParseShortcut(in)
		require.ErrorContains(t, err, want, in)
	}
}
