package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseArgv(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    []string
		wantErr string
	}{
		{name: "blank", input: "   ", want: nil},
		{name: "clipboard copy", input: "wl-copy --trim-newline", want: []string{"wl-copy", "--trim-newline"}},
		{name: "double quoted", input: `wtype -s 20 "ctrl v"`, want: []string{"wtype", "-s", "20", "ctrl v"}},
		{name: "single quoted", input: `notify-send 'quill ready'`, want: []string{"notify-send", "quill ready"}},
		{name: "quote of other kind kept", input: `echo "it's"`, want: []string{"echo", "it's"}},
		{name: "escaped space", input: `paste\ tool --now`, want: []string{"paste tool", "--now"}},
		{name: "collapses whitespace", input: "wl-paste\t\t-n", want: []string{"wl-paste", "-n"}},
		{name: "disabled by comment", input: `# wl-copy --clear`, want: nil},
		{name: "open quote", input: `wl-copy "oops`, wantErr: "unterminated quote"},
		{name: "dangling escape", input: `wl-copy oops\`, wantErr: "unterminated escape"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := parseArgv(tc.input)
			if tc.wantErr != "" {
				var argvErr *ArgvError
				require.ErrorAs(t, err, &argvErr)
				require.Contains(t, err.Error(), tc.wantErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestMustParseArgvPanicsOnInvalidDefault(t *testing.T) {
	require.PanicsWithValue(t, `default command: unterminated quote in command: "wl-copy \"x"`, func() {
		_ = mustParseArgv(`wl-copy "x`)
	})
}
