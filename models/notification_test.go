package models

import "testing"

func TestReceiverAddresses(t *testing.T) {
	if got := CustomerAddress(42); got != "customer/42" {
		t.Errorf("CustomerAddress(42) = %q", got)
	}
	if got := OutletAddress(7); got != "outlet/7" {
		t.Errorf("OutletAddress(7) = %q", got)
	}
	if got := OutletCustomersAddress(7); got != "outlet/7/customers" {
		t.Errorf("OutletCustomersAddress(7) = %q", got)
	}
	// Broadcast group is a fixed name, never derived from an id.
	if ReceiverAllOutlets != "outlets" {
		t.Errorf("ReceiverAllOutlets = %q", ReceiverAllOutlets)
	}
}
