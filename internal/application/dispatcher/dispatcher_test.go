package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/garyjia/approval-gateway/internal/domain/event"
)

// mockLogger implements Logger for testing
type mockLogger struct {
	mu     sync.Mutex
	infos  []string
	errors []string
}

func (m *mockLogger) Info(msg string, keysAndValues ...interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.infos = append(m.infos, msg)
}

func (m *mockLogger) Error(msg string, keysAndValues ...interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors = append(m.errors, msg)
}

func (m *mockLogger) ErrorCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.errors)
}

func (m *mockLogger) HasInfo(msg string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, info := range m.infos {
		if info == msg {
			return true
		}
	}
	return false
}

func newEvent() *event.Event {
	return event.NewEvent(event.TypeApprovalCreated, "A1", nil)
}

func TestSubscribe(t *testing.T) {
	t.Run("subscribes handler with auto-generated name", func(t *testing.T) {
		d := NewDispatcher()
		called := false

		d.Subscribe(event.TypeApprovalCreated, func(ctx context.Context, evt *event.Event) error {
			called = true
			return nil
		})

		if err := d.Dispatch(context.Background(), newEvent()); err != nil {
			t.Fatalf("dispatch failed: %v", err)
		}
		if !called {
			t.Error("expected handler to be called")
		}

		handlers := d.ListHandlers(event.TypeApprovalCreated)
		if len(handlers) != 1 || handlers[0].Name != "handler-0" {
			t.Errorf("unexpected handlers: %+v", handlers)
		}
	})

	t.Run("does not call handlers of other types", func(t *testing.T) {
		d := NewDispatcher()
		called := false
		d.Subscribe(event.TypeApprovalResolved, func(ctx context.Context, evt *event.Event) error {
			called = true
			return nil
		})

		if err := d.Dispatch(context.Background(), newEvent()); err != nil {
			t.Fatalf("dispatch failed: %v", err)
		}
		if called {
			t.Error("handler for another type should not run")
		}
	})
}

func TestSubscribeNamed(t *testing.T) {
	logger := &mockLogger{}
	d := NewDispatcher(WithLogger(logger))

	d.SubscribeNamed(event.TypeApprovalCreated, "history", func(ctx context.Context, evt *event.Event) error {
		return nil
	})

	if !logger.HasInfo("Handler registered") {
		t.Error("expected registration to be logged")
	}
}

func TestSubscribeAll(t *testing.T) {
	d := NewDispatcher()
	var seen sync.Map

	d.SubscribeAll("recorder", func(ctx context.Context, evt *event.Event) error {
		seen.Store(evt.Type, true)
		return nil
	})

	for _, typ := range AllTypes {
		if err := d.Dispatch(context.Background(), event.NewEvent(typ, "A1", nil)); err != nil {
			t.Fatalf("dispatch %s failed: %v", typ, err)
		}
		if _, ok := seen.Load(typ); !ok {
			t.Errorf("handler was not called for %s", typ)
		}
		if n := len(d.ListHandlers(typ)); n != 1 {
			t.Errorf("%s: expected 1 handler, got %d", typ, n)
		}
	}
}

func TestUnsubscribe(t *testing.T) {
	d := NewDispatcher()
	var calls []string

	d.SubscribeNamed(event.TypeApprovalCreated, "first", func(ctx context.Context, evt *event.Event) error {
		calls = append(calls, "first")
		return nil
	})
	d.SubscribeNamed(event.TypeApprovalCreated, "second", func(ctx context.Context, evt *event.Event) error {
		calls = append(calls, "second")
		return nil
	})

	d.Unsubscribe(event.TypeApprovalCreated, "first")

	if err := d.Dispatch(context.Background(), newEvent()); err != nil {
		t.Fatalf("dispatch failed: %v", err)
	}
	if len(calls) != 1 || calls[0] != "second" {
		t.Errorf("calls = %v, want [second]", calls)
	}
}

func TestDispatch(t *testing.T) {
	t.Run("runs handlers in registration order", func(t *testing.T) {
		d := NewDispatcher()
		var order []int
		for i := 0; i < 3; i++ {
			i := i
			d.Subscribe(event.TypeApprovalCreated, func(ctx context.Context, evt *event.Event) error {
				order = append(order, i)
				return nil
			})
		}

		if err := d.Dispatch(context.Background(), newEvent()); err != nil {
			t.Fatalf("dispatch failed: %v", err)
		}
		if fmt.Sprint(order) != "[0 1 2]" {
			t.Errorf("order = %v", order)
		}
	})

	t.Run("keeps running after a failing handler", func(t *testing.T) {
		logger := &mockLogger{}
		d := NewDispatcher(WithLogger(logger))
		sentinel := errors.New("store down")
		secondCalled := false

		d.SubscribeNamed(event.TypeApprovalCreated, "history", func(ctx context.Context, evt *event.Event) error {
			return sentinel
		})
		d.SubscribeNamed(event.TypeApprovalCreated, "metrics", func(ctx context.Context, evt *event.Event) error {
			secondCalled = true
			return nil
		})

		err := d.Dispatch(context.Background(), newEvent())
		if !errors.Is(err, sentinel) {
			t.Errorf("error = %v, want wrapped %v", err, sentinel)
		}
		if !secondCalled {
			t.Error("second handler should still run")
		}
		if logger.ErrorCount() != 1 {
			t.Errorf("expected 1 logged error, got %d", logger.ErrorCount())
		}
	})

	t.Run("recovers from handler panic", func(t *testing.T) {
		d := NewDispatcher(WithLogger(&mockLogger{}))
		d.Subscribe(event.TypeApprovalCreated, func(ctx context.Context, evt *event.Event) error {
			panic("boom")
		})

		err := d.Dispatch(context.Background(), newEvent())
		if err == nil {
			t.Fatal("expected error from panicking handler")
		}
	})

	t.Run("no handlers is not an error", func(t *testing.T) {
		d := NewDispatcher()
		if err := d.Dispatch(context.Background(), newEvent()); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})
}

func TestClose(t *testing.T) {
	d := NewDispatcher()

	if err := d.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if err := d.Close(); err == nil {
		t.Error("second close should fail")
	}
	if err := d.Dispatch(context.Background(), newEvent()); !errors.Is(err, ErrClosed) {
		t.Errorf("dispatch after close error = %v, want %v", err, ErrClosed)
	}
}

func TestConcurrency(t *testing.T) {
	d := NewDispatcher()
	var count atomic.Int64

	d.Subscribe(event.TypeApproverResponded, func(ctx context.Context, evt *event.Event) error {
		count.Add(1)
		return nil
	})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = d.Dispatch(context.Background(), event.NewEvent(event.TypeApproverResponded, "A1", nil))
		}()
	}
	wg.Wait()

	if got := count.Load(); got != 50 {
		t.Errorf("count = %d, want 50", got)
	}
	if err := d.Close(); err != nil {
		t.Errorf("close failed: %v", err)
	}
}
