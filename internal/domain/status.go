package domain

import "fmt"

// Status values shared by transactions and KYC submissions.
const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusApproved  = "approved"
	StatusRejected  = "rejected"
	StatusFailed    = "failed"
)

// Event is an input to one of the workflow state machines.
type Event string

const (
	EventSubmit  Event = "submit"
	EventApprove Event = "approve"
	EventReject  Event = "reject"
	EventFail    Event = "fail"
)

type transitionKey struct {
	from  string
	event Event
}

// transactionTransitions is the complete transition table for Transaction.Status.
// The empty string is the "not yet persisted" state.
var transactionTransitions = map[transitionKey]string{
	{"", EventSubmit}:             StatusPending,
	{StatusPending, EventApprove}: StatusCompleted,
	{StatusPending, EventReject}:  StatusRejected,
	{StatusPending, EventFail}:    StatusFailed,
}

var kycTransitions = map[transitionKey]string{
	{"", EventSubmit}:             StatusPending,
	{StatusPending, EventApprove}: StatusApproved,
	{StatusPending, EventReject}:  StatusRejected,
}

// InvalidTransitionError reports an event that is not legal in the current state.
type InvalidTransitionError struct {
	Entity string
	From   string
	Event  Event
}

func (e *InvalidTransitionError) Error() string {
	from := e.From
	if from == "" {
		from = "(none)"
	}
	return fmt.Sprintf("%s cannot %s from status %q", e.Entity, e.Event, from)
}

func (e *InvalidTransitionError) Unwrap() error { return ErrInvalidTransition }

// TransitionTransaction returns the status a transaction moves to when event is
// applied in state current.
func TransitionTransaction(current string, event Event) (string, error) {
	next, ok := transactionTransitions[transitionKey{current, event}]
	if !ok {
		return "", &InvalidTransitionError{Entity: "transaction", From: current, Event: event}
	}
	return next, nil
}

// TransitionKYC returns the status a KYC submission moves to when event is
// applied in state current.
func TransitionKYC(current string, event Event) (string, error) {
	next, ok := kycTransitions[transitionKey{current, event}]
	if !ok {
		return "", &InvalidTransitionError{Entity: "kyc submission", From: current, Event: event}
	}
	return next, nil
}

// IsTerminalTransactionStatus reports whether no further event is accepted.
func IsTerminalTransactionStatus(status string) bool {
	for key := range transactionTransitions {
		if key.from == status {
			return false
		}
	}
	return true
}
