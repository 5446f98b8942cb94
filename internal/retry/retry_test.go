package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestRetry_SucceedsAfterBusy(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), func() error {
		attempts++
		if attempts < 3 {
			return errors.New("database is locked (5) (SQLITE_BUSY)")
		}
		return nil
	}, 5, time.Millisecond)

	if err != nil {
		t.Fatalf("Expected success, got %v", err)
	}
	if attempts != 3 {
		t.Errorf("Expected 3 attempts, got %d", attempts)
	}
}

func TestRetry_NonRetryableReturnsImmediately(t *testing.T) {
	attempts := 0
	want := errors.New("no such table: video_cache")
	err := Retry(context.Background(), func() error {
		attempts++
		return want
	}, 5, time.Millisecond)

	if !errors.Is(err, want) {
		t.Errorf("Expected original error, got %v", err)
	}
	if attempts != 1 {
		t.Errorf("Expected 1 attempt, got %d", attempts)
	}
}

func TestRetry_GivesUpAfterMaxAttempts(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), func() error {
		attempts++
		return fmt.Errorf("save: %w", errors.New("database is locked"))
	}, 3, time.Millisecond)

	if err == nil {
		t.Fatal("Expected error after exhausting attempts")
	}
	if attempts != 3 {
		t.Errorf("Expected 3 attempts, got %d", attempts)
	}
}

func TestRetry_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	attempts := 0
	err := Retry(ctx, func() error {
		attempts++
		return errors.New("database is locked")
	}, 10, time.Hour)

	if err == nil {
		t.Fatal("Expected error")
	}
	if attempts != 1 {
		t.Errorf("Expected 1 attempt before cancellation, got %d", attempts)
	}
}

func TestRetry_ZeroAttempts(t *testing.T) {
	attempts := 0
	_ = Retry(context.Background(), func() error {
		attempts++
		return nil
	}, 0, time.Millisecond)

	if attempts != 1 {
		t.Errorf("Expected maxAttempts=0 to run once, got %d", attempts)
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		err      error
		expected bool
	}{
		{nil, false},
		{errors.New("database is locked"), true},
		{errors.New("database table is locked: video_cache"), true},
		{errors.New("constraint failed: NOT NULL"), false},
		{errors.New("disk I/O error"), false},
	}

	for _, tt := range tests {
		if got := IsRetryable(tt.err); got != tt.expected {
			t.Errorf("IsRetryable(%v) = %v, want %v", tt.err, got, tt.expected)
		}
	}
}
