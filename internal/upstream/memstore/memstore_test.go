package memstore

import (
	"context"
	"errors"
	"testing"

	"github.com/any-hub/asset-cache/internal/asset"
	"github.com/any-hub/asset-cache/internal/upstream"
)

func TestStoreRoundTrip(t *testing.T) {
	s := New()
	ctx := context.Background()

	if _, err := s.Get(ctx, "a"); !errors.Is(err, upstream.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	src := &asset.Asset{ID: "a", Data: []byte("hello")}
	if err := s.Put(ctx, src); err != nil {
		t.Fatalf("put failed: %v", err)
	}
	src.Data[0] = 'X'

	got, err := s.Get(ctx, "a")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if string(got.Data) != "hello" {
		t.Fatalf("stored data was aliased: %s", got.Data)
	}
	if s.Gets() != 2 {
		t.Fatalf("unexpected get count: %d", s.Gets())
	}

	s.Delete("a")
	if _, err := s.Get(ctx, "a"); !errors.Is(err, upstream.ErrNotFound) {
		t.Fatalf("deleted asset should be missing")
	}
	if err := s.Put(ctx, nil); err == nil {
		t.Fatalf("nil asset should be rejected")
	}
}

func TestRegisteredAsMemory(t *testing.T) {
	store, err := upstream.Open(upstream.Options{Type: "memory"})
	if err != nil {
		t.Fatalf("open memory backend: %v", err)
	}
	if _, ok := store.(*Store); !ok {
		t.Fatalf("unexpected store type %T", store)
	}
}
