package cli

import (
	"errors"
	"fmt"
	"strings"
)

type Command string

const (
	CommandRun     Command = "run"
	CommandPress   Command = "press"
	CommandRelease Command = "release"
	CommandToggle  Command = "toggle"
	CommandStop    Command = "stop"
	CommandStatus  Command = "status"
	CommandSecure  Command = "secure"
	CommandReplay  Command = "replay"
	CommandDevices Command = "devices"
	CommandDoctor  Command = "doctor"
	CommandVersion Command = "version"
	CommandHelp    Command = "help"
)

var validCommands = map[Command]struct{}{
	CommandRun:     {},
	CommandPress:   {},
	CommandRelease: {},
	CommandToggle:  {},
	CommandStop:    {},
	CommandStatus:  {},
	CommandSecure:  {},
	CommandReplay:  {},
	CommandDevices: {},
	CommandDoctor:  {},
	CommandVersion: {},
	CommandHelp:    {},
}

type Parsed struct {
	Command    Command
	ConfigPath string
	ShowHelp   bool
	// Secure is the requested flag for the secure command.
	Secure bool
}

func Parse(args []string) (Parsed, error) {
	parsed := Parsed{Command: CommandHelp, ShowHelp: true}

	for i := 0; i < len(args); i++ {
		arg := args[i]

		switch arg {
		case "-h", "--help":
			parsed.ShowHelp = true
			parsed.Command = CommandHelp
		case "--version":
			parsed.ShowHelp = false
			parsed.Command = CommandVersion
		case "--config":
			i++
			if i >= len(args) {
				return Parsed{}, errors.New("--config requires a path")
			}
			parsed.ConfigPath = args[i]
		default:
			if strings.HasPrefix(arg, "-") {
				return Parsed{}, fmt.Errorf("unknown flag: %s", arg)
			}

			cmd := Command(arg)
			if _, ok := validCommands[cmd]; !ok {
				return Parsed{}, fmt.Errorf("unknown command: %s", arg)
			}

			parsed.Command = cmd
			parsed.ShowHelp = cmd == CommandHelp
			rest := args[i+1:]
			if cmd == CommandSecure {
				on, err := parseSecureArg(rest)
				if err != nil {
					return Parsed{}, err
				}
				parsed.Secure = on
				return parsed, nil
			}
			if len(rest) > 0 {
				return Parsed{}, fmt.Errorf("unexpected arguments after command %q", arg)
			}
		}
	}

	return parsed, nil
}

func parseSecureArg(rest []string) (bool, error) {
	if len(rest) != 1 {
		return false, errors.New("secure requires exactly one argument: on|off")
	}
	switch rest[0] {
	case "on":
		return true, nil
	case "off":
		return false, nil
	default:
		return false, fmt.Errorf("secure expects on|off, got %q", rest[0])
	}
}

func HelpText(binaryName string) string {
	return fmt.Sprintf(`Usage:
  %[1]s [--config PATH] <command>

Commands:
  run           Run the dictation daemon in the foreground
  press         Send a hotkey press to the daemon
  release       Send a hotkey release to the daemon
  toggle        Start a session, or stop and transcribe the active one
  stop          Stop the active session and transcribe it
  status        Print session state and ASR readiness
  secure on|off Block or allow dictation into the focused field
  replay        Print the cached HUD state and recent diagnostics
  devices       List available input devices
  doctor        Run configuration and environment checks
  version       Print version information
  help          Show this help

Flags:
  --config PATH   Config file path (default: $XDG_CONFIG_HOME/quill/config.jsonc)
  -h, --help      Show help
  --version       Show version
`, binaryName)
}
