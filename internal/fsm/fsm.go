// Package fsm defines the dictation session lifecycle as a pure transition table.
package fsm

import "fmt"

type State string

type Event string

const (
	StateIdle       State = "idle"
	StateWarming    State = "warming"
	StateListening  State = "listening"
	StateProcessing State = "processing"
	StateError      State = "error"
)

const (
	// EventArm records a hold-mode press that arrived before the engine was ready.
	EventArm     Event = "arm"
	EventDisarm  Event = "disarm"
	EventStart   Event = "start"
	EventStop    Event = "stop"
	EventDiscard Event = "discard"
	EventDone    Event = "done"
	EventFail    Event = "fail"
	EventRecover Event = "recover"
)

// Transition returns the next state for event, or an error when the event is
// not valid in current. On error the returned state is current.
func Transition(current State, event Event) (State, error) {
	switch current {
	case StateIdle:
		switch event {
		case EventArm:
			return StateWarming, nil
		case EventStart:
			return StateListening, nil
		case EventFail:
			return StateError, nil
		}
	case StateWarming:
		switch event {
		case EventStart:
			return StateListening, nil
		case EventDisarm:
			return StateIdle, nil
		case EventFail:
			return StateError, nil
		}
	case StateListening:
		switch event {
		case EventStop:
			return StateProcessing, nil
		case EventDiscard:
			return StateIdle, nil
		case EventFail:
			return StateError, nil
		}
	case StateProcessing:
		// In-flight work always completes; failures arrive as EventDone.
		if event == EventDone {
			return StateIdle, nil
		}
	case StateError:
		if event == EventRecover {
			return StateIdle, nil
		}
	default:
		return current, fmt.Errorf("unknown state %q", current)
	}
	return current, invalidTransition(current, event)
}

// Active reports whether a session exists in s.
func (s State) Active() bool {
	return s == StateListening || s == StateProcessing
}

func invalidTransition(state State, event Event) error {
	return fmt.Errorf("invalid transition: %s --(%s)--> ?", state, event)
}
