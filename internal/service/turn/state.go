package turn

import (
	"fmt"
	"time"
)

// State is a step of the per-turn state machine.
type State int

const (
	StateIdle State = iota
	StateTranscribing
	StateAwaitingGeneration
	StatePostProcessing
	StateSynthesizing
	StateDone
	StateFailed
)

var stateNames = [...]string{
	StateIdle:               "idle",
	StateTranscribing:       "transcribing",
	StateAwaitingGeneration: "awaiting_generation",
	StatePostProcessing:     "post_processing",
	StateSynthesizing:       "synthesizing",
	StateDone:               "done",
	StateFailed:             "failed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// MarshalText renders the state by name in JSON events.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Terminal reports whether no further transition follows.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}

// Event is published on every state transition.
type Event struct {
	Turn   int       `json:"turn"`
	State  State     `json:"state"`
	Reason string    `json:"reason,omitempty"`
	At     time.Time `json:"at"`
}

// Observer receives transition events. It runs on the worker goroutine and
// must not block.
type Observer func(Event)
