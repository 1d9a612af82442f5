package filesystem

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"chatrelay/internal/persist"
	"chatrelay/internal/persist/persisttest"
)

func TestConformance(t *testing.T) {
	persisttest.Run(t, func(t *testing.T) persist.Store {
		s, err := Open(filepath.Join(t.TempDir(), "chat.log"), 0)
		if err != nil {
			t.Fatalf("Open: %v", err)
		}
		return s
	})
}

func TestReplayAfterReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "chat.log")
	ctx := context.Background()

	s, err := Open(path, 0)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	_ = s.Put(ctx, "a", []byte("1"))
	_ = s.Commit(ctx)
	_ = s.Put(ctx, "a", []byte("2"))
	_ = s.Put(ctx, "b", []byte("3"))
	_ = s.Commit(ctx)

	s, err = Open(path, 0)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	for k, want := range map[string]string{"a": "2", "b": "3"} {
		v, err := s.Get(ctx, k)
		if err != nil || string(v) != want {
			t.Fatalf("Get(%s) = %q, %v; want %s", k, v, err, want)
		}
	}
}

func TestTornLineIsSkipped(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chat.log")
	ctx := context.Background()

	s, _ := Open(path, 0)
	_ = s.Put(ctx, "k", []byte("v"))
	_ = s.Commit(ctx)

	f, _ := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	_, _ = f.WriteString(`{"ts":"2024-01-01T00:00:00Z","set":{"k":`)
	_ = f.Close()

	s, err := Open(path, 0)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	v, err := s.Get(ctx, "k")
	if err != nil || string(v) != "v" {
		t.Fatalf("Get = %q, %v", v, err)
	}
}

func TestCompaction(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chat.log")
	ctx := context.Background()

	s, err := Open(path, 512)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	for i := 0; i < 50; i++ {
		_ = s.Put(ctx, "k", []byte(fmt.Sprintf("value-%02d", i)))
		if err := s.Commit(ctx); err != nil {
			t.Fatalf("Commit: %v", err)
		}
	}

	raw, _ := os.ReadFile(path)
	if len(raw) > 512 {
		t.Fatalf("journal is %d bytes, want compaction below 512", len(raw))
	}
	if lines := bytes.Count(raw, []byte("\n")); lines >= 50 {
		t.Fatalf("journal has %d lines", lines)
	}

	s, _ = Open(path, 512)
	v, _ := s.Get(ctx, "k")
	if string(v) != "value-49" {
		t.Fatalf("Get after compaction = %q", v)
	}
}
