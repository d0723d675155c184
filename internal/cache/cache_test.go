package cache

import (
	"context"
	"testing"
	"time"
)

func TestMemory_SetGetDelete(t *testing.T) {
	t.Parallel()
	c := NewMemory("t")
	ctx := context.Background()

	if _, err := c.Get(ctx, "missing"); !IsNotFound(err) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := c.Set(ctx, "k", "v", time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, err := c.Get(ctx, "k")
	if err != nil || got != "v" {
		t.Fatalf("get = %q, %v", got, err)
	}
	if err := c.Delete(ctx, "k"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := c.Get(ctx, "k"); !IsNotFound(err) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestMemory_AddIsFirstWriterWins(t *testing.T) {
	t.Parallel()
	c := NewMemory("")
	ctx := context.Background()

	first, err := c.Add(ctx, "order:1", "a", time.Minute)
	if err != nil || !first {
		t.Fatalf("first add = %v, %v", first, err)
	}
	second, err := c.Add(ctx, "order:1", "b", time.Minute)
	if err != nil {
		t.Fatalf("second add err: %v", err)
	}
	if second {
		t.Fatal("second add must lose")
	}
	got, _ := c.Get(ctx, "order:1")
	if got != "a" {
		t.Fatalf("first value must survive, got %q", got)
	}
}

func TestNew_UnknownDriver(t *testing.T) {
	t.Parallel()
	if _, err := New(Config{Driver: "bogus"}); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}
