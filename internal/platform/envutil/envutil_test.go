package envutil

import (
	"testing"
	"time"
)

func TestDuration(t *testing.T) {
	t.Setenv("PODREACH_TEST_DUR_SECS", "45")
	t.Setenv("PODREACH_TEST_DUR_GO", "30m")
	t.Setenv("PODREACH_TEST_DUR_BAD", "soon")

	if got := Duration("PODREACH_TEST_DUR_SECS", time.Second, nil); got != 45*time.Second {
		t.Fatalf("seconds: got %v", got)
	}
	if got := Duration("PODREACH_TEST_DUR_GO", time.Second, nil); got != 30*time.Minute {
		t.Fatalf("go duration: got %v", got)
	}
	if got := Duration("PODREACH_TEST_DUR_BAD", 7*time.Second, nil); got != 7*time.Second {
		t.Fatalf("bad value should fall back: got %v", got)
	}
	if got := Duration("PODREACH_TEST_DUR_MISSING", 9*time.Second, nil); got != 9*time.Second {
		t.Fatalf("missing should fall back: got %v", got)
	}
}

func TestBoolAndInt(t *testing.T) {
	t.Setenv("PODREACH_TEST_BOOL", "off")
	t.Setenv("PODREACH_TEST_INT", "12")
	if Bool("PODREACH_TEST_BOOL", true, nil) {
		t.Fatalf("expected false")
	}
	if got := Int("PODREACH_TEST_INT", 1, nil); got != 12 {
		t.Fatalf("expected 12, got %d", got)
	}
	if got := Float("PODREACH_TEST_FLOAT_MISSING", 0.7, nil); got != 0.7 {
		t.Fatalf("expected default 0.7, got %v", got)
	}
}
