package logger

import "testing"

func TestNew_Levels(t *testing.T) {
	l, err := New(false, "debug")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if !l.Core().Enabled(-1) {
		t.Fatalf("expected debug level to be enabled")
	}

	l, err = New(true, "warn")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if l.Core().Enabled(0) {
		t.Fatalf("expected info level to be disabled at warn")
	}
}

func TestNew_BadLevel(t *testing.T) {
	if _, err := New(true, "loud"); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}
