package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/yungbote/podreach-backend/internal/pkg/httpx"
)

var fast = Policy{Initial: time.Millisecond, Multiplier: 2, Max: 4 * time.Millisecond, Attempts: 3}

func TestDelaySchedule(t *testing.T) {
	got := []time.Duration{DownloadPolicy.Delay(0), DownloadPolicy.Delay(1), DownloadPolicy.Delay(2), DownloadPolicy.Delay(10)}
	want := []time.Duration{5 * time.Second, 10 * time.Second, 20 * time.Second, 300 * time.Second}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Delay(%d)=%v want %v", i, got[i], want[i])
		}
	}
}

func TestDoRetriesTransientThenSucceeds(t *testing.T) {
	calls := 0
	retries := 0
	err := Do(context.Background(), fast, func() error {
		calls++
		if calls < 3 {
			return &httpx.StatusError{StatusCode: 503}
		}
		return nil
	}, func(error, time.Duration) { retries++ })
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if calls != 3 || retries != 2 {
		t.Fatalf("calls=%d retries=%d", calls, retries)
	}
}

func TestDoStopsOnPermanent(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fast, func() error {
		calls++
		return &httpx.StatusError{StatusCode: 404}
	}, nil)
	var se *httpx.StatusError
	if !errors.As(err, &se) || se.StatusCode != 404 {
		t.Fatalf("expected 404 status error, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("404 must not be retried, calls=%d", calls)
	}
}

func TestDoExhaustsAttempts(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fast, func() error {
		calls++
		return &httpx.StatusError{StatusCode: 500}
	}, nil)
	if err == nil {
		t.Fatalf("expected error after exhausting retries")
	}
	if calls != 1+fast.Attempts {
		t.Fatalf("calls=%d want %d", calls, 1+fast.Attempts)
	}
}

func TestDownloadPolicyCallsThreeTimes(t *testing.T) {
	p := DownloadPolicy
	p.Initial, p.Max = time.Millisecond, time.Millisecond
	calls := 0
	err := Do(context.Background(), p, func() error {
		calls++
		return Transient(errors.New("connection reset by peer"))
	}, nil)
	if err == nil {
		t.Fatalf("expected error after exhausting retries")
	}
	if calls != 3 {
		t.Fatalf("calls=%d want 3", calls)
	}
}

func TestDoRetriesTransientMarkedErrors(t *testing.T) {
	reset := errors.New("connection reset by peer")
	calls := 0
	err := Do(context.Background(), fast, func() error {
		calls++
		return Transient(reset)
	}, nil)
	if err != reset {
		t.Fatalf("expected unwrapped error, got %v", err)
	}
	if calls != 1+fast.Attempts {
		t.Fatalf("calls=%d", calls)
	}
}
