package stream

import (
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeConn struct {
	mu     sync.Mutex
	frames [][]byte
	fail   bool
	closed []string
}

func (c *fakeConn) Send(frame []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return ErrSlowConsumer
	}
	c.frames = append(c.frames, frame)
	return nil
}

func (c *fakeConn) Close(reason string) {
	c.mu.Lock()
	c.closed = append(c.closed, reason)
	c.mu.Unlock()
}

func (c *fakeConn) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.frames)
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *clock { return &clock{t: time.Unix(1_700_000_000, 0)} }

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func TestRegisterCapacity(t *testing.T) {
	r := NewRegistry(Options{MaxSubscribers: 2})

	idA, err := r.Register(&fakeConn{})
	if err != nil {
		t.Fatalf("Register A: %v", err)
	}
	if _, err := r.Register(&fakeConn{}); err != nil {
		t.Fatalf("Register B: %v", err)
	}
	if _, err := r.Register(&fakeConn{}); !errors.Is(err, ErrCapacityExceeded) {
		t.Fatalf("Register C: got %v, want ErrCapacityExceeded", err)
	}
	if r.Len() != 2 {
		t.Fatalf("Len = %d, want 2", r.Len())
	}

	r.Unregister(idA)
	if _, err := r.Register(&fakeConn{}); err != nil {
		t.Fatalf("Register D after unregister: %v", err)
	}
	if r.Len() != 2 {
		t.Fatalf("Len = %d, want 2", r.Len())
	}
}

func TestRegisterHandlesAreUnique(t *testing.T) {
	r := NewRegistry(Options{MaxSubscribers: 50})
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		id, err := r.Register(&fakeConn{})
		if err != nil {
			t.Fatalf("Register: %v", err)
		}
		if len(id) != 26 {
			t.Errorf("handle %q: len %d, want 26", id, len(id))
		}
		if seen[id] {
			t.Fatalf("duplicate handle %q", id)
		}
		seen[id] = true
	}
}

func TestUnregisterIdempotent(t *testing.T) {
	r := NewRegistry(Options{})
	id, _ := r.Register(&fakeConn{})
	r.Unregister(id)
	r.Unregister(id)
	r.Unregister("unknown")
	if r.Len() != 0 {
		t.Fatalf("Len = %d, want 0", r.Len())
	}
}

func TestBroadcastIsolatesFailingSubscriber(t *testing.T) {
	r := NewRegistry(Options{MaxSubscribers: 3})
	good1, bad, good2 := &fakeConn{}, &fakeConn{fail: true}, &fakeConn{}
	for _, c := range []*fakeConn{good1, bad, good2} {
		if _, err := r.Register(c); err != nil {
			t.Fatalf("Register: %v", err)
		}
	}

	n := r.Broadcast(EventMessage, []byte(`{"x":1}`))
	if n != 2 {
		t.Fatalf("delivered = %d, want 2", n)
	}
	if good1.count() != 1 || good2.count() != 1 {
		t.Fatalf("healthy subscribers got %d and %d frames", good1.count(), good2.count())
	}
	if r.Len() != 2 {
		t.Fatalf("Len = %d, want 2 after eviction", r.Len())
	}
	if len(bad.closed) != 1 || bad.closed[0] != ReasonDeliveryFailed {
		t.Fatalf("bad.closed = %v", bad.closed)
	}
}

func TestBroadcastFrameIsShared(t *testing.T) {
	r := NewRegistry(Options{})
	c := &fakeConn{}
	_, _ = r.Register(c)
	r.Broadcast(EventMessage, []byte(`{"a":"b"}`))

	want := "event: message\ndata: {\"a\":\"b\"}\n\nretry: 3000\n\n"
	if got := string(c.frames[0]); got != want {
		t.Fatalf("frame = %q, want %q", got, want)
	}
}

func TestSweepEvictsStale(t *testing.T) {
	clk := newClock()
	r := NewRegistry(Options{StaleTimeout: 300 * time.Second, Now: clk.Now})

	old := &fakeConn{}
	oldID, _ := r.Register(old)
	clk.Advance(200 * time.Second)
	fresh := &fakeConn{}
	_, _ = r.Register(fresh)

	clk.Advance(150 * time.Second)
	if n := r.Sweep(300 * time.Second); n != 1 {
		t.Fatalf("Sweep = %d, want 1", n)
	}
	if len(old.closed) != 1 || old.closed[0] != ReasonStale {
		t.Fatalf("old.closed = %v", old.closed)
	}
	if err := r.Send(oldID, EventPing, pingPayload); !errors.Is(err, ErrNotRegistered) {
		t.Fatalf("Send to evicted: %v", err)
	}
	if r.Len() != 1 {
		t.Fatalf("Len = %d, want 1", r.Len())
	}
}

func TestTouchKeepsSubscriberAlive(t *testing.T) {
	clk := newClock()
	r := NewRegistry(Options{StaleTimeout: 60 * time.Second, Now: clk.Now})

	id, _ := r.Register(&fakeConn{})
	clk.Advance(50 * time.Second)
	r.Touch(id)
	clk.Advance(50 * time.Second)

	if n := r.Sweep(60 * time.Second); n != 0 {
		t.Fatalf("Sweep = %d, want 0", n)
	}
}

func TestRegisterSweepsBeforeCapacityCheck(t *testing.T) {
	clk := newClock()
	r := NewRegistry(Options{MaxSubscribers: 1, StaleTimeout: 10 * time.Second, Now: clk.Now})

	_, _ = r.Register(&fakeConn{})
	clk.Advance(11 * time.Second)
	if _, err := r.Register(&fakeConn{}); err != nil {
		t.Fatalf("Register after stale: %v", err)
	}
}

func TestBroadcastTouchesOnSuccess(t *testing.T) {
	clk := newClock()
	r := NewRegistry(Options{StaleTimeout: 60 * time.Second, Now: clk.Now})

	_, _ = r.Register(&fakeConn{})
	clk.Advance(50 * time.Second)
	r.Broadcast(EventMessage, []byte(`{}`))
	clk.Advance(50 * time.Second)

	if n := r.Sweep(60 * time.Second); n != 0 {
		t.Fatalf("Sweep = %d, want 0", n)
	}
}

func TestConcurrentBroadcastAndRegister(t *testing.T) {
	r := NewRegistry(Options{MaxSubscribers: 100})
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			id, err := r.Register(&fakeConn{})
			if err == nil {
				r.Unregister(id)
			}
		}()
		go func() {
			defer wg.Done()
			r.Broadcast(EventMessage, []byte(`{}`))
		}()
	}
	wg.Wait()
	if r.Len() != 0 {
		t.Fatalf("Len = %d, want 0", r.Len())
	}
}
