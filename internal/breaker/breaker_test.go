package breaker

import (
	"errors"
	"testing"
	"time"
)

var errProvider = errors.New("provider down")

func failingCall() error { return errProvider }
func okCall() error      { return nil }

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	b := New("test", Config{FailMax: 3, ResetTimeout: time.Minute})

	for i := 0; i < 3; i++ {
		if err := b.Execute(failingCall); !errors.Is(err, errProvider) {
			t.Fatalf("attempt %d: expected provider error, got %v", i, err)
		}
	}

	if b.State() != StateOpen {
		t.Fatalf("expected open state, got %s", b.State())
	}

	invoked := false
	err := b.Execute(func() error {
		invoked = true
		return nil
	})
	if !errors.Is(err, ErrOpen) {
		t.Fatalf("expected ErrOpen, got %v", err)
	}
	if invoked {
		t.Error("call must not be invoked while open")
	}
}

func TestBreakerSuccessResetsFailureCount(t *testing.T) {
	b := New("test", Config{FailMax: 3, ResetTimeout: time.Minute})

	b.Execute(failingCall)
	b.Execute(failingCall)
	b.Execute(okCall)
	b.Execute(failingCall)
	b.Execute(failingCall)

	if b.State() != StateClosed {
		t.Errorf("expected closed after interleaved success, got %s", b.State())
	}
}

func TestBreakerHalfOpenProbeCloses(t *testing.T) {
	b := New("test", Config{FailMax: 1, ResetTimeout: 10 * time.Millisecond})

	b.Execute(failingCall)
	if b.State() != StateOpen {
		t.Fatalf("expected open, got %s", b.State())
	}

	time.Sleep(20 * time.Millisecond)
	if b.State() != StateHalfOpen {
		t.Fatalf("expected half-open after reset timeout, got %s", b.State())
	}

	if err := b.Execute(okCall); err != nil {
		t.Fatalf("probe failed: %v", err)
	}
	if b.State() != StateClosed {
		t.Errorf("expected closed after successful probe, got %s", b.State())
	}
}

func TestBreakerHalfOpenProbeReopens(t *testing.T) {
	b := New("test", Config{FailMax: 1, ResetTimeout: 10 * time.Millisecond})

	b.Execute(failingCall)
	time.Sleep(20 * time.Millisecond)

	if err := b.Execute(failingCall); !errors.Is(err, errProvider) {
		t.Fatalf("expected provider error from probe, got %v", err)
	}
	if b.State() != StateOpen {
		t.Errorf("expected reopened after failed probe, got %s", b.State())
	}
}

func TestBreakerAdmitsSingleProbe(t *testing.T) {
	b := New("test", Config{FailMax: 1, ResetTimeout: 10 * time.Millisecond})

	b.Execute(failingCall)
	time.Sleep(20 * time.Millisecond)

	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- b.Execute(func() error {
			close(started)
			<-release
			return nil
		})
	}()

	<-started
	// Second caller while the probe is in flight is rejected
	if err := b.Execute(okCall); !errors.Is(err, ErrOpen) {
		t.Errorf("expected ErrOpen for second half-open call, got %v", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("probe failed: %v", err)
	}
	if b.State() != StateClosed {
		t.Errorf("expected closed, got %s", b.State())
	}
}
