package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"chatrelay/internal/persist"
	"chatrelay/internal/persist/persisttest"
)

func TestConformance(t *testing.T) {
	persisttest.Run(t, func(t *testing.T) persist.Store {
		s, err := Open(context.Background(), filepath.Join(t.TempDir(), "chat.db"))
		if err != nil {
			t.Fatalf("Open: %v", err)
		}
		return s
	})
}

func TestReopen(t *testing.T) {
	ctx := context.Background()
	dsn := filepath.Join(t.TempDir(), "chat.db")

	s, err := Open(ctx, dsn)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	_ = s.Put(ctx, "msg_0", []byte(`{"message":"hi"}`))
	if err := s.Commit(ctx); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	_ = s.Close()

	s, err = Open(ctx, dsn)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()
	v, err := s.Get(ctx, "msg_0")
	if err != nil || string(v) != `{"message":"hi"}` {
		t.Fatalf("Get = %q, %v", v, err)
	}
}
