package common

import "fmt"

// ConfirmationStatus is the lifecycle state of a submitted transaction.
type ConfirmationStatus string

const (
	StatusPending   ConfirmationStatus = "PENDING"
	StatusPolling   ConfirmationStatus = "POLLING"
	StatusConfirmed ConfirmationStatus = "CONFIRMED"
	StatusFinalized ConfirmationStatus = "FINALIZED"
	StatusExpired   ConfirmationStatus = "EXPIRED"
	StatusFailed    ConfirmationStatus = "FAILED"
)

// TerminalStatuses lists the states a transaction never leaves.
var TerminalStatuses = []ConfirmationStatus{StatusFinalized, StatusExpired, StatusFailed}

var allowedTransitions = map[ConfirmationStatus][]ConfirmationStatus{
	StatusPending:   {StatusPolling, StatusConfirmed, StatusFinalized, StatusExpired, StatusFailed},
	StatusPolling:   {StatusConfirmed, StatusFinalized, StatusExpired, StatusFailed},
	// a landed transaction can still be reported failed after a fork
	StatusConfirmed: {StatusFinalized, StatusFailed},
}

// IsTerminal reports whether no further transition is possible.
func (s ConfirmationStatus) IsTerminal() bool {
	for _, t := range TerminalStatuses {
		if s == t {
			return true
		}
	}
	return false
}

// IsSuccess reports whether the transaction landed.
func (s ConfirmationStatus) IsSuccess() bool {
	return s == StatusConfirmed || s == StatusFinalized
}

// CanTransition reports whether from -> to is a forward move.
func CanTransition(from, to ConfirmationStatus) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ValidateTransition returns an error for backward or unknown moves.
func ValidateTransition(from, to ConfirmationStatus) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("invalid status transition %s -> %s", from, to)
	}
	return nil
}

// PredecessorsOf returns every status that may move to `to`.
func PredecessorsOf(to ConfirmationStatus) []ConfirmationStatus {
	var out []ConfirmationStatus
	for from, nexts := range allowedTransitions {
		for _, next := range nexts {
			if next == to {
				out = append(out, from)
			}
		}
	}
	return out
}
