package storage

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
)

// Runs only when REDIS_ADDR points at a disposable server.
func TestRedisStore_RoundTrip(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	ctx := context.Background()
	s, err := NewRedisStore(ctx, addr, "placement-test:"+uuid.New().String()+":")
	if err != nil {
		t.Fatalf("NewRedisStore: %v", err)
	}
	defer s.Close()

	if _, ok, err := s.Get(ctx, "missing"); err != nil || ok {
		t.Fatalf("expected miss, got ok=%v err=%v", ok, err)
	}
	if err := s.Set(ctx, "k", []byte("v")); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, ok, err := s.Get(ctx, "k")
	if err != nil || !ok || string(got) != "v" {
		t.Fatalf("expected v, got %q ok=%v err=%v", got, ok, err)
	}
}

func TestNewRedisStore_MissingAddr(t *testing.T) {
	if _, err := NewRedisStore(context.Background(), "", "p:"); err == nil {
		t.Fatal("expected error for empty addr")
	}
}
