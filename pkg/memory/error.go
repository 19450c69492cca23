package memory

import (
	"errors"
	"fmt"
)

// ErrNoMemoriesToFuse is returned when fusion is attempted over an empty
// item list.
var ErrNoMemoriesToFuse = errors.New("no memories to fuse")

// ConsentError reports a rejected Relation write. It carries the required
// and actual trust so callers can present an actionable message.
type ConsentError struct {
	RequiredTrust float64
	ActualTrust   float64
	Reason        string
}

func (e *ConsentError) Error() string {
	return fmt.Sprintf("insufficient consent: %s (trust %.2f, required > %.2f)",
		e.Reason, e.ActualTrust, e.RequiredTrust)
}

// ConsensusError reports a rejected Collective write or an under-supported
// fusion. Required is inclusive: Actual == Required passes the gate.
type ConsensusError struct {
	Required float64
	Actual   float64
}

func (e *ConsensusError) Error() string {
	return fmt.Sprintf("insufficient consensus: %.2f, required >= %.2f", e.Actual, e.Required)
}
