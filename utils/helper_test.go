package utils

import (
	"strings"
	"testing"
	"time"
)

func TestToDate(t *testing.T) {
	in := time.Date(2024, 3, 15, 18, 45, 12, 999, time.UTC)
	got := ToDate(in)
	want := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("ToDate(%v) = %v, want %v", in, got, want)
	}
}

func TestUniqueSlice(t *testing.T) {
	got := UniqueSlice([]int{3, 1, 3, 2, 1})
	if len(got) != 3 {
		t.Fatalf("UniqueSlice returned %v, want 3 elements", got)
	}
	seen := map[int]bool{}
	for _, v := range got {
		if seen[v] {
			t.Fatalf("UniqueSlice returned duplicate %d in %v", v, got)
		}
		seen[v] = true
	}
}

func TestDereferencePtr(t *testing.T) {
	v := 7
	if got := DereferencePtr(&v); got != 7 {
		t.Errorf("DereferencePtr(&7) = %d", got)
	}
	if got := DereferencePtr[int](nil); got != 0 {
		t.Errorf("DereferencePtr(nil) = %d, want zero value", got)
	}
	if got := DereferencePtr[string](nil, "fallback"); got != "fallback" {
		t.Errorf("DereferencePtr(nil, fallback) = %q", got)
	}
}

func TestExecTemplate(t *testing.T) {
	sql, err := ExecTemplate("SELECT 1 {{- if .outletId }} WHERE outlet_id = @outletId {{- end }}", map[string]interface{}{
		"outletId": 5,
	})
	if err != nil {
		t.Fatalf("ExecTemplate: %v", err)
	}
	if !strings.Contains(sql, "WHERE outlet_id = @outletId") {
		t.Errorf("expected filter in generated sql: %q", sql)
	}

	sql, err = ExecTemplate("SELECT 1 {{- if .outletId }} WHERE outlet_id = @outletId {{- end }}", map[string]interface{}{
		"outletId": 0,
	})
	if err != nil {
		t.Fatalf("ExecTemplate: %v", err)
	}
	if strings.Contains(sql, "WHERE") {
		t.Errorf("expected no filter for zero value: %q", sql)
	}
}

func TestIsValidEmail(t *testing.T) {
	valid := []string{"a@b.lk", "first.last@example.com"}
	invalid := []string{"", "not-an-email", "a@", "@b.com"}
	for _, e := range valid {
		if !IsValidEmail(e) {
			t.Errorf("IsValidEmail(%q) = false", e)
		}
	}
	for _, e := range invalid {
		if IsValidEmail(e) {
			t.Errorf("IsValidEmail(%q) = true", e)
		}
	}
}

func TestValidateStruct(t *testing.T) {
	type input struct {
		Quantity int `validate:"required,gt=0"`
		MaxLimit int `validate:"gte=0"`
	}

	if err := ValidateStruct(&input{Quantity: 5}); err != nil {
		t.Fatalf("valid input rejected: %v", err)
	}
	if err := ValidateStruct(&input{Quantity: 0}); !IsValidationError(err) {
		t.Fatalf("expected validation error for zero quantity, got %v", err)
	}
	if err := ValidateStruct(&input{Quantity: 1, MaxLimit: -1}); !IsValidationError(err) {
		t.Fatalf("expected validation error for negative max limit, got %v", err)
	}
}
