package indicator

import (
	"os"
	"strings"

	"github.com/rbright/quill/internal/hud"
)

type locale string

const localeEnglish locale = "en"

type messages struct {
	warming     string
	listening   string
	slow        string
	processing  string
	secure      string
	asrError    string
	pasteFailed string
	pasteManual string
	noOutput    map[string]string
}

func messagesFromEnv() messages {
	return messagesFor(resolveLocale(os.Getenv("LANG")))
}

func resolveLocale(raw string) locale {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if strings.HasPrefix(raw, "en") {
		return localeEnglish
	}
	return localeEnglish
}

func messagesFor(tag locale) messages {
	switch tag {
	case localeEnglish:
		fallthrough
	default:
		return messages{
			warming:     "Loading speech model…",
			listening:   "Listening…",
			slow:        "Listening (system is slow)…",
			processing:  "Transcribing…",
			secure:      "Dictation paused in secure field",
			asrError:    "Speech model unavailable",
			pasteFailed: "Paste failed",
			pasteManual: "Paste failed; transcript is on the clipboard",
			noOutput: map[string]string{
				hud.ReasonNoAudio:         "No audio captured",
				hud.ReasonNoSpeech:        "No speech detected",
				hud.ReasonEmptyTranscript: "Nothing recognized",
				hud.ReasonSecureBlocked:   "Not pasted into secure field",
				hud.ReasonASRFailed:       "Speech recognition error",
			},
		}
	}
}
