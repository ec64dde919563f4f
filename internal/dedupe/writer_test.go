package dedupe

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestWriterGate_AcquireRelease(t *testing.T) {
	t.Parallel()

	var gate writerGate
	if err := gate.acquire(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	gate.release()
	if err := gate.acquire(context.Background()); err != nil {
		t.Fatalf("unexpected error after release: %v", err)
	}
	gate.release()
}

func TestWriterGate_BusyAfterBackoffExhausted(t *testing.T) {
	t.Parallel()

	var gate writerGate
	if err := gate.acquire(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer gate.release()

	start := time.Now()
	err := gate.acquire(context.Background())
	if !errors.Is(err, ErrWriterBusy) {
		t.Fatalf("expected ErrWriterBusy, got %v", err)
	}
	// Full schedule: 50+100+200+400+800 ms.
	if elapsed := time.Since(start); elapsed < 1500*time.Millisecond {
		t.Fatalf("expected the backoff schedule to run, took %v", elapsed)
	}
}

func TestWriterGate_AcquireAfterHolderReleases(t *testing.T) {
	t.Parallel()

	var gate writerGate
	if err := gate.acquire(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	go func() {
		time.Sleep(80 * time.Millisecond)
		gate.release()
	}()

	if err := gate.acquire(context.Background()); err != nil {
		t.Fatalf("expected acquire to succeed after release, got %v", err)
	}
	gate.release()
}

func TestRetryBusy_SucceedsMidSchedule(t *testing.T) {
	t.Parallel()

	calls := 0
	err := retryBusy(context.Background(), func() (bool, error) {
		calls++
		return calls == 3, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
}

func TestRetryBusy_ExhaustsSchedule(t *testing.T) {
	t.Parallel()

	calls := 0
	err := retryBusy(context.Background(), func() (bool, error) {
		calls++
		return false, nil
	})
	if !errors.Is(err, ErrWriterBusy) {
		t.Fatalf("expected ErrWriterBusy, got %v", err)
	}
	// Initial attempt plus one per backoff step.
	if calls != len(writerBackoff)+1 {
		t.Fatalf("expected %d attempts, got %d", len(writerBackoff)+1, calls)
	}
}

func TestRetryBusy_PropagatesTryError(t *testing.T) {
	t.Parallel()

	wantErr := errors.New("connection lost")
	calls := 0
	err := retryBusy(context.Background(), func() (bool, error) {
		calls++
		return false, wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected the try error, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected no retry after an error, got %d attempts", calls)
	}
}

func TestWriterGate_ContextCancel(t *testing.T) {
	t.Parallel()

	var gate writerGate
	if err := gate.acquire(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer gate.release()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()
	if err := gate.acquire(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected context deadline error, got %v", err)
	}
}
