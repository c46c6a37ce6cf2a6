package domain

import (
	"errors"
	"testing"
)

func TestTransitionTransaction(t *testing.T) {
	tests := []struct {
		name    string
		current string
		event   Event
		want    string
		wantErr bool
	}{
		{name: "submit creates pending", current: "", event: EventSubmit, want: StatusPending},
		{name: "approve pending", current: StatusPending, event: EventApprove, want: StatusCompleted},
		{name: "reject pending", current: StatusPending, event: EventReject, want: StatusRejected},
		{name: "fail pending", current: StatusPending, event: EventFail, want: StatusFailed},
		{name: "approve completed", current: StatusCompleted, event: EventApprove, wantErr: true},
		{name: "reject completed", current: StatusCompleted, event: EventReject, wantErr: true},
		{name: "approve rejected", current: StatusRejected, event: EventApprove, wantErr: true},
		{name: "submit pending", current: StatusPending, event: EventSubmit, wantErr: true},
		{name: "unknown status", current: "processing", event: EventApprove, wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := TransitionTransaction(tc.current, tc.event)
			if tc.wantErr {
				if !errors.Is(err, ErrInvalidTransition) {
					t.Fatalf("expected ErrInvalidTransition, got %v", err)
				}
				var transitionErr *InvalidTransitionError
				if !errors.As(err, &transitionErr) || transitionErr.From != tc.current {
					t.Fatalf("expected InvalidTransitionError from %q, got %#v", tc.current, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, got)
			}
		})
	}
}

func TestTransitionKYC(t *testing.T) {
	if got, err := TransitionKYC(StatusPending, EventApprove); err != nil || got != StatusApproved {
		t.Fatalf("expected approved, got %q (%v)", got, err)
	}
	if got, err := TransitionKYC(StatusPending, EventReject); err != nil || got != StatusRejected {
		t.Fatalf("expected rejected, got %q (%v)", got, err)
	}
	if _, err := TransitionKYC(StatusApproved, EventReject); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected approved submission to be terminal, got %v", err)
	}
	if _, err := TransitionKYC(StatusPending, EventFail); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected fail to be unsupported for kyc, got %v", err)
	}
}

func TestIsTerminalTransactionStatus(t *testing.T) {
	for _, status := range []string{StatusCompleted, StatusRejected, StatusFailed} {
		if !IsTerminalTransactionStatus(status) {
			t.Fatalf("expected %q to be terminal", status)
		}
	}
	if IsTerminalTransactionStatus(StatusPending) {
		t.Fatal("expected pending to accept further events")
	}
}

func TestInvalidTransitionErrorMessage(t *testing.T) {
	err := &InvalidTransitionError{Entity: "transaction", Event: EventApprove}
	if got := err.Error(); got != `transaction cannot approve from status "(none)"` {
		t.Fatalf("unexpected message %q", got)
	}
}
