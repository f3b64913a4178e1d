package validation

import (
	"errors"
	"testing"
)

func TestIsDate(t *testing.T) {
	tests := []struct {
		name  string
		value string
		valid bool
	}{
		{name: "valid date", value: "2024-06-10", valid: true},
		{name: "leap day", value: "2024-02-29", valid: true},
		{name: "not a leap year", value: "2023-02-29", valid: false},
		{name: "timestamp", value: "2024-06-10T00:00:00Z", valid: false},
		{name: "empty string", value: "", valid: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsDate(tt.value); got != tt.valid {
				t.Fatalf("IsDate(%q) = %v, want %v", tt.value, got, tt.valid)
			}
		})
	}
}

func TestBuilder(t *testing.T) {
	var b Builder
	if err := b.Err(); err != nil {
		t.Fatalf("empty builder must return nil, got %v", err)
	}

	b.Required("name", "  ")
	b.Date("date", "10/06/2024")
	b.NonNegative("amount", -1)

	err := b.Err()
	if !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}

	var verr *Error
	if !errors.As(err, &verr) {
		t.Fatalf("expected *Error, got %T", err)
	}
	if len(verr.Fields) != 3 {
		t.Fatalf("fields = %+v, want 3 entries", verr.Fields)
	}
	if verr.Fields[0].Field != "name" || verr.Fields[1].Field != "date" || verr.Fields[2].Field != "amount" {
		t.Fatalf("unexpected field order: %+v", verr.Fields)
	}

	want := "validation: name: required; date: must be a date in YYYY-MM-DD format; amount: must not be negative"
	if err.Error() != want {
		t.Fatalf("Error() = %q, want %q", err.Error(), want)
	}
}
