package sender

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestDispatcherRunsJob(t *testing.T) {
	d := NewDispatcher(Options{Workers: 1, QueueSize: 4})
	defer d.Close()

	done := make(chan struct{})
	err := d.Enqueue(context.Background(), "send_text", 42, "hello", func() error {
		close(done)
		return nil
	})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("job did not run")
	}
}

func TestDispatcherSuppressesDuplicateBody(t *testing.T) {
	d := NewDispatcher(Options{Workers: 1, QueueSize: 8, SuppressWindow: time.Minute})
	defer d.Close()

	run := func() error { return nil }
	if err := d.Enqueue(context.Background(), "send_text", 7, "same body", run); err != nil {
		t.Fatalf("first enqueue: %v", err)
	}
	if err := d.Enqueue(context.Background(), "send_text", 7, "same body", run); err != ErrSuppressed {
		t.Fatalf("second enqueue err = %v, want ErrSuppressed", err)
	}
	// Same body to a different chat is not a duplicate.
	if err := d.Enqueue(context.Background(), "send_text", 8, "same body", run); err != nil {
		t.Fatalf("different chat enqueue: %v", err)
	}
	if got := d.SuppressedCount(); got != 1 {
		t.Fatalf("suppressed = %d, want 1", got)
	}
}

func TestDispatcherEmptyBodyBypassesSuppression(t *testing.T) {
	d := NewDispatcher(Options{Workers: 1, QueueSize: 8, SuppressWindow: time.Minute})
	defer d.Close()

	run := func() error { return nil }
	for i := 0; i < 3; i++ {
		if err := d.Enqueue(context.Background(), "send_doc", 7, "", run); err != nil {
			t.Fatalf("enqueue %d: %v", i, err)
		}
	}
}

func TestDispatcherSpacesSendsPerChat(t *testing.T) {
	const interval = 50 * time.Millisecond
	d := NewDispatcher(Options{Workers: 4, QueueSize: 8, MinInterval: interval})
	defer d.Close()

	var (
		mu    sync.Mutex
		times []time.Time
		wg    sync.WaitGroup
	)
	wg.Add(3)
	for i := 0; i < 3; i++ {
		err := d.Enqueue(context.Background(), "send_text", 99, "", func() error {
			mu.Lock()
			times = append(times, time.Now())
			mu.Unlock()
			wg.Done()
			return nil
		})
		if err != nil {
			t.Fatalf("enqueue %d: %v", i, err)
		}
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if len(times) != 3 {
		t.Fatalf("ran %d jobs, want 3", len(times))
	}
	first, last := times[0], times[0]
	for _, ts := range times[1:] {
		if ts.Before(first) {
			first = ts
		}
		if ts.After(last) {
			last = ts
		}
	}
	// Three sends to one chat span at least two full intervals.
	if span := last.Sub(first); span < 2*interval-10*time.Millisecond {
		t.Fatalf("span = %v, want >= %v", span, 2*interval)
	}
}

func TestDispatcherRejectsAfterClose(t *testing.T) {
	d := NewDispatcher(Options{Workers: 1, QueueSize: 1})
	d.Close()
	err := d.Enqueue(context.Background(), "send_text", 1, "x", func() error { return nil })
	if err != ErrQueueClosed {
		t.Fatalf("err = %v, want ErrQueueClosed", err)
	}
}
