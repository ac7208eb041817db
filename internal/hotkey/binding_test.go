package hotkey

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseBinding(t *testing.T) {
	tests := []struct {
		input   string
		key     uint16
		mods    int
		name    string
		wantErr string
	}{
		{input: "F9", key: 67, name: "F9"},
		{input: "f12", key: 88, name: "F12"},
		{input: "F13", key: 183, name: "F13"},
		{input: "super+shift+d", key: 32, mods: 2, name: "SUPER+SHIFT+D"},
		{input: "CTRL + space", key: 57, mods: 1, name: "CTRL+SPACE"},
		{input: "RIGHTCTRL", key: keyRightCtrl, name: "RIGHTCTRL"},
		{input: "alt+1", key: 2, mods: 1, name: "ALT+1"},
		{input: "", wantErr: "empty key binding"},
		{input: "ctrl+", wantErr: "empty token"},
		{input: "d+ctrl", wantErr: "not a modifier"},
		{input: "hyper", wantErr: "unknown key"},
		{input: "F25", wantErr: "unknown key"},
	}

	for _, tc := range tests {
		t.Run(tc.input, func(t *testing.T) {
			b, err := ParseBinding(tc.input)
			if tc.wantErr != "" {
				require.Error(t, err)
				require.Contains(t, err.Error(), tc.wantErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.key, b.Key)
			require.Len(t, b.Modifiers, tc.mods)
			require.Equal(t, tc.name, b.Name)
		})
	}
}

func TestBindingCodesIncludeModifierSides(t *testing.T) {
	b, err := ParseBinding("CTRL+V")
	require.NoError(t, err)
	require.ElementsMatch(t, []uint16{47, keyLeftCtrl, keyRightCtrl}, b.Codes())
}

func TestTrackerComboEdges(t *testing.T) {
	b, err := ParseBinding("SUPER+D")
	require.NoError(t, err)
	tr := newTracker(b)

	_, ok := tr.feed(32, valueDown)
	require.False(t, ok, "key without modifier must not fire")
	_, ok = tr.feed(32, valueUp)
	require.False(t, ok)

	_, ok = tr.feed(keyRightMeta, valueDown)
	require.False(t, ok)
	kind, ok := tr.feed(32, valueDown)
	require.True(t, ok)
	require.Equal(t, Pressed, kind)

	_, ok = tr.feed(32, valueRepeat)
	require.False(t, ok, "repeat ignored")
	_, ok = tr.feed(32, valueDown)
	require.False(t, ok, "already active")

	_, ok = tr.feed(keyRightMeta, valueUp)
	require.False(t, ok, "releasing modifier does not end gesture")
	kind, ok = tr.feed(32, valueUp)
	require.True(t, ok)
	require.Equal(t, Released, kind)
}

func TestTrackerBareModifierBinding(t *testing.T) {
	b, err := ParseBinding("RIGHTCTRL")
	require.NoError(t, err)
	tr := newTracker(b)

	_, ok := tr.feed(keyLeftCtrl, valueDown)
	require.False(t, ok)
	kind, ok := tr.feed(keyRightCtrl, valueDown)
	require.True(t, ok)
	require.Equal(t, Pressed, kind)
	kind, ok = tr.feed(keyRightCtrl, valueUp)
	require.True(t, ok)
	require.Equal(t, Released, kind)
}
