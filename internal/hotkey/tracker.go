package hotkey

import "time"

// Kind is the gesture edge reported by a Source.
type Kind string

const (
	Pressed  Kind = "pressed"
	Released Kind = "released"
)

// Event is one hotkey edge.
type Event struct {
	Kind Kind
	At   time.Time
}

// Key event values from the kernel.
const (
	valueUp     int32 = 0
	valueDown   int32 = 1
	valueRepeat int32 = 2
)

// tracker folds raw key transitions from every keyboard into combo edges.
type tracker struct {
	binding Binding
	down    map[uint16]bool
	active  bool
}

func newTracker(b Binding) *tracker {
	return &tracker{binding: b, down: make(map[uint16]bool)}
}

func (t *tracker) feed(code uint16, value int32) (Kind, bool) {
	switch value {
	case valueRepeat:
		return "", false
	case valueDown:
		t.down[code] = true
		if code == t.binding.Key && !t.active && t.modifiersHeld() {
			t.active = true
			return Pressed, true
		}
	case valueUp:
		delete(t.down, code)
		if code == t.binding.Key && t.active {
			t.active = false
			return Released, true
		}
	}
	return "", false
}

func (t *tracker) modifiersHeld() bool {
	for _, group := range t.binding.Modifiers {
		held := false
		for _, code := range group {
			if t.down[code] {
				held = true
				break
			}
		}
		if !held {
			return false
		}
	}
	return true
}
