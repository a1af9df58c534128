package models

import (
	"testing"
	"time"

	"github.com/gasbygas/dispatch_backend/utils"
)

func TestValidateScheduleDate(t *testing.T) {
	now := time.Date(2024, 1, 1, 10, 30, 0, 0, time.UTC)

	cases := []struct {
		name         string
		scheduleDate time.Time
		wantErr      bool
	}{
		{"past date", time.Date(2023, 12, 28, 0, 0, 0, 0, time.UTC), true},
		{"too close", time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC), true},
		{"six days out", time.Date(2024, 1, 7, 0, 0, 0, 0, time.UTC), true},
		{"exactly seven days", time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC), false},
		{"ten days out", time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC), false},
		{"today", now, true},
	}
	for _, c := range cases {
		err := ValidateScheduleDate(c.scheduleDate, now)
		if c.wantErr && err == nil {
			t.Errorf("%s: expected error, got nil", c.name)
		}
		if !c.wantErr && err != nil {
			t.Errorf("%s: unexpected error: %v", c.name, err)
		}
		if err != nil && !utils.IsValidationError(err) {
			t.Errorf("%s: expected a validation error, got %T: %v", c.name, err, err)
		}
	}
}

func TestValidateScheduleDateIgnoresTimeOfDay(t *testing.T) {
	// 23:59 on day seven still counts as seven days out.
	now := time.Date(2024, 1, 1, 23, 59, 0, 0, time.UTC)
	scheduleDate := time.Date(2024, 1, 8, 0, 1, 0, 0, time.UTC)
	if err := ValidateScheduleDate(scheduleDate, now); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
