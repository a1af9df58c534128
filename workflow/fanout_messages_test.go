package workflow

import (
	"strings"
	"testing"
	"time"
)

func TestLifecycleMessages(t *testing.T) {
	oldDate := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	newDate := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)

	msg := ScheduleChangeMessage("Colombo Central", oldDate, newDate)
	for _, want := range []string{"Colombo Central", "10 Jan 2024", "15 Jan 2024"} {
		if !strings.Contains(msg, want) {
			t.Errorf("ScheduleChangeMessage missing %q: %q", want, msg)
		}
	}

	msg = DispatchMessage("Kandy", newDate)
	if !strings.Contains(msg, "Kandy") || !strings.Contains(msg, "dispatched") || !strings.Contains(msg, "15 Jan 2024") {
		t.Errorf("DispatchMessage = %q", msg)
	}

	msg = ReceivedMessage("Kandy")
	if !strings.Contains(msg, "Kandy") || !strings.Contains(msg, "ready for pickup") {
		t.Errorf("ReceivedMessage = %q", msg)
	}

	msg = ReallocationMessage("Kandy", 2)
	if !strings.Contains(msg, "Kandy") || !strings.Contains(msg, "2 cylinder(s)") {
		t.Errorf("ReallocationMessage = %q", msg)
	}

	msg = HandoverMessage("Kandy", 3)
	if !strings.Contains(msg, "Kandy") || !strings.Contains(msg, "3 cylinder(s)") {
		t.Errorf("HandoverMessage = %q", msg)
	}

	msg = DeniedMessage(25, oldDate, newDate)
	for _, want := range []string{"25 units", "10 Jan 2024", "15 Jan 2024", "denied"} {
		if !strings.Contains(msg, want) {
			t.Errorf("DeniedMessage missing %q: %q", want, msg)
		}
	}
}
