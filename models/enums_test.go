package models

import "testing"

// NOTE: These tests are intentionally DB-free. They pin the status
// machines that every workflow guard relies on.

func TestRequestStatusTransitions(t *testing.T) {
	cases := []struct {
		from RequestStatus
		to   RequestStatus
		want bool
	}{
		{RequestStatusPending, RequestStatusDispatch, true},
		{RequestStatusPending, RequestStatusDenied, true},
		{RequestStatusDispatch, RequestStatusReceived, true},
		{RequestStatusPending, RequestStatusReceived, false},
		{RequestStatusDispatch, RequestStatusPending, false},
		{RequestStatusDispatch, RequestStatusDenied, false},
		{RequestStatusReceived, RequestStatusPending, false},
		{RequestStatusReceived, RequestStatusDispatch, false},
		{RequestStatusReceived, RequestStatusReceived, false},
		{RequestStatusDispatch, RequestStatusDispatch, false},
		{RequestStatusDenied, RequestStatusPending, false},
		{RequestStatusDenied, RequestStatusDispatch, false},
		{RequestStatusDenied, RequestStatusDenied, false},
	}
	for _, c := range cases {
		if got := c.from.CanTransition(c.to); got != c.want {
			t.Errorf("CanTransition(%s -> %s) = %v, want %v", c.from, c.to, got, c.want)
		}
	}
}

func TestRequestStatusValid(t *testing.T) {
	for _, s := range []RequestStatus{RequestStatusPending, RequestStatusDispatch, RequestStatusReceived, RequestStatusDenied} {
		if !s.Valid() {
			t.Errorf("%s should be valid", s)
		}
	}
	if RequestStatus("cancelled").Valid() {
		t.Error("cancelled should not be a valid request status")
	}
}

func TestTokenStatusTransitions(t *testing.T) {
	if !TokenStatusUnclaimed.CanTransition(TokenStatusClaimed) {
		t.Error("Unclaimed -> Claimed should be allowed")
	}
	if TokenStatusClaimed.CanTransition(TokenStatusUnclaimed) {
		t.Error("Claimed is terminal; no reversal path")
	}
	if TokenStatusClaimed.CanTransition(TokenStatusClaimed) {
		t.Error("Claimed -> Claimed should not be allowed")
	}
}
