package chat

import (
	"testing"
	"time"

	"chatrelay/internal/models"
)

type countingSource struct {
	msgs  []models.Message
	calls int
}

func (s *countingSource) SnapshotAll() []models.Message {
	s.calls++
	return append([]models.Message(nil), s.msgs...)
}

func TestCacheEmptyHistory(t *testing.T) {
	c := NewSnapshotCache(time.Minute, nil)
	b, err := c.Get(&countingSource{})
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(b) != "[]" {
		t.Fatalf("Get = %s, want []", b)
	}
}

func TestCacheServesWithinTTL(t *testing.T) {
	clk := newClock(0)
	c := NewSnapshotCache(30*time.Second, clk.Now)
	src := &countingSource{msgs: []models.Message{{Message: "a"}}}

	first, _ := c.Get(src)
	src.msgs = append(src.msgs, models.Message{Message: "b"})
	clk.Advance(29 * time.Second)
	second, _ := c.Get(src)

	if src.calls != 1 {
		t.Fatalf("source called %d times, want 1", src.calls)
	}
	if string(first) != string(second) {
		t.Fatalf("cached payload changed: %s vs %s", first, second)
	}

	clk.Advance(2 * time.Second)
	third, _ := c.Get(src)
	if src.calls != 2 {
		t.Fatalf("source called %d times after TTL, want 2", src.calls)
	}
	if string(third) == string(first) {
		t.Fatal("expired payload was served")
	}
}

func TestCacheInvalidate(t *testing.T) {
	c := NewSnapshotCache(time.Hour, nil)
	src := &countingSource{}

	_, _ = c.Get(src)
	c.Invalidate()
	_, _ = c.Get(src)
	if src.calls != 2 {
		t.Fatalf("source called %d times, want 2", src.calls)
	}
}

func TestCacheReturnsCopy(t *testing.T) {
	c := NewSnapshotCache(time.Hour, nil)
	src := &countingSource{msgs: []models.Message{{Message: "a"}}}

	b, _ := c.Get(src)
	b[0] = 'X'
	again, _ := c.Get(src)
	if again[0] != '[' {
		t.Fatalf("caller mutation leaked into cache: %s", again)
	}
}

type invalidatingSource struct {
	c   *SnapshotCache
	msg models.Message
}

func (s *invalidatingSource) SnapshotAll() []models.Message {
	s.c.Invalidate()
	return []models.Message{s.msg}
}

func TestCacheRebuildRacingInvalidateNotStored(t *testing.T) {
	c := NewSnapshotCache(time.Hour, nil)
	racer := &invalidatingSource{c: c, msg: models.Message{Message: "old"}}
	if _, err := c.Get(racer); err != nil {
		t.Fatalf("Get: %v", err)
	}

	src := &countingSource{}
	_, _ = c.Get(src)
	if src.calls != 1 {
		t.Fatal("payload built across an Invalidate was cached")
	}
}
