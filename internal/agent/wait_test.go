package agent

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestWaitFor_ConditionMet(t *testing.T) {
	calls := 0
	err := WaitFor(context.Background(), time.Second, time.Millisecond, func() (bool, error) {
		calls++
		return calls >= 3, nil
	})
	if err != nil {
		t.Fatalf("expected the condition to be met, got %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 evaluations, got %d", calls)
	}
}

func TestWaitFor_Timeout(t *testing.T) {
	err := WaitFor(context.Background(), 10*time.Millisecond, time.Millisecond, func() (bool, error) {
		return false, nil
	})
	if err == nil {
		t.Fatal("expected a timeout error")
	}
}

func TestWaitFor_ConditionErrorAborts(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	err := WaitFor(context.Background(), time.Second, time.Millisecond, func() (bool, error) {
		calls++
		return false, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected the condition error, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected a single evaluation, got %d", calls)
	}
}

func TestWaitFor_ContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := WaitFor(ctx, time.Second, time.Millisecond, func() (bool, error) {
		return false, nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestStepDelay_GrowsWithAttempts(t *testing.T) {
	base := 10 * time.Millisecond
	for attempt := 0; attempt < 3; attempt++ {
		d := stepDelay(attempt, base)
		min := base * time.Duration(1<<attempt)
		if d < min {
			t.Errorf("attempt %d: delay %s below the backoff floor %s", attempt, d, min)
		}
		if d >= min+maxStepJitter {
			t.Errorf("attempt %d: delay %s exceeds the jitter cap", attempt, d)
		}
	}
}

func TestThinkDelay_StaysInBounds(t *testing.T) {
	min, max := 5*time.Millisecond, 20*time.Millisecond
	for i := 0; i < 100; i++ {
		d := thinkDelay(min, max)
		if d < min || d > max {
			t.Fatalf("delay %s outside [%s, %s]", d, min, max)
		}
	}
	if got := thinkDelay(max, min); got != max {
		t.Errorf("inverted bounds must collapse to the lower value, got %s", got)
	}
}
