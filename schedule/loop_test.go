package schedule

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestLoop_DoRunsOnLoop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	loop := NewLoop(4)
	go loop.Run(ctx)

	counter := 0
	for i := 0; i < 10; i++ {
		if err := loop.Do(ctx, func() error {
			counter++
			return nil
		}); err != nil {
			t.Fatalf("do: %v", err)
		}
	}
	if counter != 10 {
		t.Fatalf("expected 10 increments, got %d", counter)
	}

	boom := errors.New("boom")
	if err := loop.Do(ctx, func() error { return boom }); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
}

func TestLoop_AfterFuncPostsToLoop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	loop := NewLoop(4)
	go loop.Run(ctx)

	fired := make(chan struct{})
	loop.AfterFunc(5*time.Millisecond, func() { close(fired) })

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatalf("timer never fired")
	}
}

func TestLoop_StoppedTimerNeverFires(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	loop := NewLoop(4)
	go loop.Run(ctx)

	fired := make(chan struct{}, 1)
	var timer *Timer
	if err := loop.Do(ctx, func() error {
		timer = loop.AfterFunc(10*time.Millisecond, func() { fired <- struct{}{} })
		timer.Stop()
		return nil
	}); err != nil {
		t.Fatalf("do: %v", err)
	}

	select {
	case <-fired:
		t.Fatalf("stopped timer fired")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestLoop_DoAfterStop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	loop := NewLoop(1)
	done := make(chan struct{})
	go func() {
		_ = loop.Run(ctx)
		close(done)
	}()
	cancel()
	<-done

	if err := loop.Do(context.Background(), func() error { return nil }); !errors.Is(err, ErrStopped) {
		t.Fatalf("expected ErrStopped, got %v", err)
	}
	if loop.Post(func() {}) {
		t.Fatalf("expected Post to fail on stopped loop")
	}
}
