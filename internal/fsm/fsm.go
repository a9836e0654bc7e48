// Package fsm defines the live-mode state machine owned by the session controller.
package fsm

import "fmt"

type State string

type Event string

const (
	StateIdle State = "idle"
	StateLive State = "live"
)

const (
	EventStart Event = "start"
	EventStop  Event = "stop"
	// EventFail leaves live mode after a fatal recognition error.
	EventFail Event = "fail"
)

func Transition(current State, event Event) (State, error) {
	switch current {
	case StateIdle:
		switch event {
		case EventStart:
			return StateLive, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateLive:
		switch event {
		case EventStop, EventFail:
			return StateIdle, nil
		default:
			return current, invalidTransition(current, event)
		}
	default:
		return current, fmt.Errorf("unknown state %q", current)
	}
}

// ToggleEvent returns the event that flips current to the opposite state.
func ToggleEvent(current State) Event {
	if current == StateLive {
		return EventStop
	}
	return EventStart
}

func invalidTransition(state State, event Event) error {
	return fmt.Errorf("invalid transition: %s --(%s)--> ?", state, event)
}
