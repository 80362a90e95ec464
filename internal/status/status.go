package status

import (
	"fmt"
	"slices"
)

// Status represents the delivery state of a message.
type Status string

const (
	// Sending marks an optimistic entry whose network attempt is in flight.
	Sending Status = "sending"
	// Sent marks a message acknowledged by the server. Messages authored by
	// the counterpart are always Sent.
	Sent Status = "sent"
	// Failed marks a send attempt that errored; recoverable via retry.
	Failed Status = "failed"
)

// validTransitions defines allowed delivery-state transitions. Sent is
// terminal; Failed only goes back to Sending through an explicit retry.
var validTransitions = map[Status][]Status{
	Sending: {Sent, Failed},
	Failed:  {Sending},
	Sent:    {},
}

// Transition reports whether moving from one delivery state to another is
// allowed, returning an error describing the violation otherwise.
func Transition(from, to Status) error {
	if !slices.Contains(validTransitions[from], to) {
		return fmt.Errorf("invalid transition from %s to %s", from, to)
	}
	return nil
}
