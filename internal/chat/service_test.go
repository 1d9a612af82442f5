package chat

import (
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"chatrelay/internal/models"
	"chatrelay/internal/stream"
)

type countingRecorder struct {
	mu sync.Mutex
	n  int
}

func (r *countingRecorder) RecordAppend() {
	r.mu.Lock()
	r.n++
	r.mu.Unlock()
}

func (r *countingRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.n
}

func newTestService(t *testing.T, capacity, maxSubs int) (*Service, *stream.Registry, *countingRecorder, *clock) {
	t.Helper()
	clk := newClock(1_700_000_000)
	reg := stream.NewRegistry(stream.Options{MaxSubscribers: maxSubs, Now: clk.Now})
	rec := &countingRecorder{}
	svc := NewService(NewLog(capacity, clk.Now), NewSnapshotCache(time.Hour, clk.Now), reg, rec)
	return svc, reg, rec, clk
}

func drain(o *stream.Outbox) []string {
	var out []string
	for {
		select {
		case f := <-o.Frames():
			out = append(out, string(f))
		default:
			return out
		}
	}
}

func TestPostBroadcastsAndRecords(t *testing.T) {
	svc, _, rec, _ := newTestService(t, 10, 5)

	out := stream.NewOutbox(8)
	if _, err := svc.OpenSubscription(out); err != nil {
		t.Fatalf("OpenSubscription: %v", err)
	}

	m, err := svc.Post("id-1", "alice", "hello")
	if err != nil {
		t.Fatalf("Post: %v", err)
	}
	if m.Timestamp != 1_700_000_000 {
		t.Fatalf("timestamp = %d", m.Timestamp)
	}
	if rec.count() != 1 {
		t.Fatalf("RecordAppend called %d times", rec.count())
	}

	frames := drain(out)
	if len(frames) != 2 {
		t.Fatalf("frames = %q", frames)
	}
	if frames[0] != "event: messages\ndata: []\n\nretry: 3000\n\n" {
		t.Fatalf("first frame = %q", frames[0])
	}
	want := `event: message` + "\n" + `data: {"uuid":"id-1","username":"alice","message":"hello","timestamp":1700000000}` + "\n\nretry: 3000\n\n"
	if frames[1] != want {
		t.Fatalf("second frame = %q, want %q", frames[1], want)
	}
}

func TestPostValidationHasNoSideEffects(t *testing.T) {
	svc, _, rec, _ := newTestService(t, 10, 5)
	out := stream.NewOutbox(8)
	_, _ = svc.OpenSubscription(out)
	drain(out)

	before, _ := svc.GetAll()
	_, err := svc.Post("u", "bob", strings.Repeat("x", 151))
	if !IsValidation(err) {
		t.Fatalf("err = %v, want validation", err)
	}
	after, _ := svc.GetAll()

	if string(before) != string(after) {
		t.Fatalf("history changed: %s -> %s", before, after)
	}
	if rec.count() != 0 {
		t.Fatal("RecordAppend called on invalid post")
	}
	if frames := drain(out); len(frames) != 0 {
		t.Fatalf("invalid post broadcast %q", frames)
	}
}

func TestGetAllSeesPostImmediately(t *testing.T) {
	svc, _, _, _ := newTestService(t, 10, 5)

	first, _ := svc.GetAll()
	if string(first) != "[]" {
		t.Fatalf("GetAll = %s", first)
	}
	_, _ = svc.Post("u", "bob", "hi")

	b, err := svc.GetAll()
	if err != nil {
		t.Fatalf("GetAll: %v", err)
	}
	var msgs []models.Message
	if err := json.Unmarshal(b, &msgs); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Message != "hi" {
		t.Fatalf("GetAll after post = %s", b)
	}
}

func TestGetSince(t *testing.T) {
	svc, _, _, clk := newTestService(t, 3, 5)

	for _, body := range []string{"a", "b", "c", "d"} {
		if _, err := svc.Post("u", "n", body); err != nil {
			t.Fatalf("Post: %v", err)
		}
		clk.Advance(time.Second)
	}

	b, hasNew, err := svc.GetSince(0)
	if err != nil {
		t.Fatalf("GetSince: %v", err)
	}
	var msgs []models.Message
	_ = json.Unmarshal(b, &msgs)
	if !hasNew || bodies(msgs) != "b,c,d" {
		t.Fatalf("GetSince(0) = %s, %v", b, hasNew)
	}

	b, hasNew, _ = svc.GetSince(svc.ServerTime())
	if hasNew || string(b) != "[]" {
		t.Fatalf("GetSince(now) = %s, %v", b, hasNew)
	}
}

func TestOpenSubscriptionCapacity(t *testing.T) {
	svc, reg, _, _ := newTestService(t, 10, 2)

	a, b := stream.NewOutbox(4), stream.NewOutbox(4)
	idA, err := svc.OpenSubscription(a)
	if err != nil {
		t.Fatalf("A: %v", err)
	}
	if _, err := svc.OpenSubscription(b); err != nil {
		t.Fatalf("B: %v", err)
	}
	if _, err := svc.OpenSubscription(stream.NewOutbox(4)); !errors.Is(err, stream.ErrCapacityExceeded) {
		t.Fatalf("C: err = %v", err)
	}

	svc.CloseSubscription(idA)
	if _, err := svc.OpenSubscription(stream.NewOutbox(4)); err != nil {
		t.Fatalf("D: %v", err)
	}
	if reg.Len() != 2 {
		t.Fatalf("Len = %d", reg.Len())
	}
}

func TestSlowSubscriberDoesNotBlockPost(t *testing.T) {
	svc, reg, _, _ := newTestService(t, 10, 5)

	slow := stream.NewOutbox(1)
	fast := stream.NewOutbox(16)
	_, _ = svc.OpenSubscription(slow)
	_, _ = svc.OpenSubscription(fast)

	for i := 0; i < 3; i++ {
		if _, err := svc.Post("u", "n", "m"); err != nil {
			t.Fatalf("Post: %v", err)
		}
	}

	select {
	case <-slow.Done():
	default:
		t.Fatal("slow subscriber not evicted")
	}
	if slow.Reason() != stream.ReasonDeliveryFailed {
		t.Fatalf("reason = %q", slow.Reason())
	}
	if got := len(drain(fast)); got != 4 {
		t.Fatalf("fast subscriber got %d frames, want 4", got)
	}
	if reg.Len() != 1 {
		t.Fatalf("Len = %d, want 1", reg.Len())
	}
}

func TestConcurrentPostsKeepLogOrderPerSubscriber(t *testing.T) {
	svc, _, _, _ := newTestService(t, 100, 5)
	out := stream.NewOutbox(256)
	_, _ = svc.OpenSubscription(out)

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				_, _ = svc.Post("u", "n", string(rune('a'+w)))
			}
		}(w)
	}
	wg.Wait()

	frames := drain(out)[1:]
	all, _ := svc.GetAll()
	var msgs []models.Message
	_ = json.Unmarshal(all, &msgs)
	if len(frames) != len(msgs) {
		t.Fatalf("frames %d, messages %d", len(frames), len(msgs))
	}
	for i, f := range frames {
		want := `"message":"` + msgs[i].Message + `"`
		if !strings.Contains(f, want) {
			t.Fatalf("frame %d = %q, want %s", i, f, want)
		}
	}
}
