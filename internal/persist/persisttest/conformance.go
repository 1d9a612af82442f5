// Package persisttest checks that a persist.Store backend behaves the way the
// scheduler and loader expect.
package persisttest

import (
	"context"
	"errors"
	"testing"

	"chatrelay/internal/models"
	"chatrelay/internal/persist"
)

// Run exercises a fresh store from open in each subtest.
func Run(t *testing.T, open func(t *testing.T) persist.Store) {
	t.Helper()

	cases := []struct {
		name string
		fn   func(t *testing.T, s persist.Store)
	}{
		{"MissingKey", testMissingKey},
		{"CommitMakesVisible", testCommitMakesVisible},
		{"Overwrite", testOverwrite},
		{"Discard", testDiscard},
		{"EmptyCommit", testEmptyCommit},
		{"SchedulerRoundTrip", testSchedulerRoundTrip},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := open(t)
			t.Cleanup(func() { _ = s.Close() })
			tc.fn(t, s)
		})
	}
}

func testMissingKey(t *testing.T, s persist.Store) {
	_, err := s.Get(context.Background(), "nope")
	if !errors.Is(err, persist.ErrNotFound) {
		t.Fatalf("Get missing: err = %v, want ErrNotFound", err)
	}
}

func testCommitMakesVisible(t *testing.T, s persist.Store) {
	ctx := context.Background()
	if err := s.Put(ctx, "k", []byte("v1")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := s.Commit(ctx); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	got, err := s.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != "v1" {
		t.Fatalf("Get = %q, want v1", got)
	}
}

func testOverwrite(t *testing.T, s persist.Store) {
	ctx := context.Background()
	for _, v := range []string{"a", "b"} {
		if err := s.Put(ctx, "k", []byte(v)); err != nil {
			t.Fatalf("Put: %v", err)
		}
		if err := s.Commit(ctx); err != nil {
			t.Fatalf("Commit: %v", err)
		}
	}
	got, _ := s.Get(ctx, "k")
	if string(got) != "b" {
		t.Fatalf("Get = %q, want b", got)
	}
}

func testDiscard(t *testing.T, s persist.Store) {
	ctx := context.Background()
	if err := s.Put(ctx, "gone", []byte("x")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	s.Discard()
	if err := s.Commit(ctx); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if _, err := s.Get(ctx, "gone"); !errors.Is(err, persist.ErrNotFound) {
		t.Fatalf("discarded key visible: err = %v", err)
	}
}

func testEmptyCommit(t *testing.T, s persist.Store) {
	if err := s.Commit(context.Background()); err != nil {
		t.Fatalf("empty Commit: %v", err)
	}
}

type fixed []models.Message

func (f fixed) SnapshotAll() []models.Message { return f }

func testSchedulerRoundTrip(t *testing.T, s persist.Store) {
	ctx := context.Background()
	history := fixed{
		{UUID: "1", Username: "ann", Message: "hi | there", Timestamp: 10},
		{UUID: "2", Username: "bo", Message: "yo", Timestamp: 11},
		{UUID: "3", Username: "cy", Message: "hey", Timestamp: 12},
	}
	sched := persist.NewScheduler(s, history, persist.Options{})
	if err := sched.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	got, err := persist.Load(ctx, s, 10)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got) != len(history) {
		t.Fatalf("Load returned %d records, want %d", len(got), len(history))
	}
	for i := range history {
		if got[i] != history[i] {
			t.Errorf("record %d = %+v, want %+v", i, got[i], history[i])
		}
	}

	got, _ = persist.Load(ctx, s, 2)
	if len(got) != 2 || got[0].UUID != "2" || got[1].UUID != "3" {
		t.Fatalf("Load with capacity 2 = %+v", got)
	}
}
