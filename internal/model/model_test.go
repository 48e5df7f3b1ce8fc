package model

import (
	"regexp"
	"testing"
)

// crockfordBase32 matches valid ULID strings (26 chars, Crockford Base32 alphabet).
var crockfordBase32 = regexp.MustCompile(`^[0123456789ABCDEFGHJKMNPQRSTVWXYZ]{26}$`)

func TestNewIDFormat(t *testing.T) {
	id := NewID()
	if !crockfordBase32.MatchString(id) {
		t.Errorf("NewID() = %q, does not match Crockford Base32 ULID format", id)
	}
}

func TestNewIDUniqueness(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := NewID()
		if seen[id] {
			t.Fatalf("NewID() produced duplicate: %s", id)
		}
		seen[id] = true
	}
}

func TestValidRunTransition(t *testing.T) {
	tests := []struct {
		from, to string
		want     bool
	}{
		{RunRunning, RunCompleted, true},
		{RunRunning, RunAborted, true},
		{RunCompleted, RunRunning, false},
		{RunAborted, RunCompleted, false},
		{"bogus", RunCompleted, false},
	}
	for _, tt := range tests {
		if got := ValidRunTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("ValidRunTransition(%q, %q) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestExecutionStatus(t *testing.T) {
	tests := []struct {
		code string
		want string
	}{
		{ResultOK, StatusCompleted},
		{ResultFailed, StatusFailed},
		{ResultCrashed, StatusFailed},
		{ResultCanceled, StatusCanceled},
		{"", StatusFailed},
	}
	for _, tt := range tests {
		if got := ExecutionStatus(tt.code); got != tt.want {
			t.Errorf("ExecutionStatus(%q) = %q, want %q", tt.code, got, tt.want)
		}
		if !IsTerminal(ExecutionStatus(tt.code)) {
			t.Errorf("ExecutionStatus(%q) is not terminal", tt.code)
		}
	}
	if IsTerminal(StatusRunning) {
		t.Error("running should not be terminal")
	}
}
