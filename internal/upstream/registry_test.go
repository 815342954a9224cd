package upstream

import (
	"context"
	"errors"
	"testing"

	"github.com/any-hub/asset-cache/internal/asset"
)

type nopStore struct{}

func (nopStore) Get(context.Context, string) (*asset.Asset, error) { return nil, ErrNotFound }
func (nopStore) Put(context.Context, *asset.Asset) error { return nil }

func replaceRegistry(t *testing.T) func() {
	t.Helper()
	prev := globalRegistry
	globalRegistry = newRegistry()
	return func() { globalRegistry = prev }
}

func nopFactory(Options) (Store, error) { return nopStore{}, nil }

func TestRegisterResolveAndList(t *testing.T) {
	cleanup := replaceRegistry(t)
	defer cleanup()

	if err := Register(Backend{Key: "memory", Factory: nopFactory}); err != nil {
		t.Fatalf("register memory failed: %v", err)
	}
	if err := Register(Backend{Key: "HTTP", Factory: nopFactory}); err != nil {
		t.Fatalf("register http failed: %v", err)
	}

	if _, ok := Resolve(" Memory "); !ok {
		t.Fatalf("resolve should be case-insensitive")
	}
	keys := Keys()
	if len(keys) != 2 || keys[0] != "http" || keys[1] != "memory" {
		t.Fatalf("unexpected keys: %v", keys)
	}
}

func TestRegisterRejectsInvalidBackends(t *testing.T) {
	cleanup := replaceRegistry(t)
	defer cleanup()

	if err := Register(Backend{Key: "", Factory: nopFactory}); err == nil {
		t.Fatalf("empty key should fail")
	}
	if err := Register(Backend{Key: "nofactory"}); err == nil {
		t.Fatalf("missing factory should fail")
	}
	if err := Register(Backend{Key: "dup", Factory: nopFactory}); err != nil {
		t.Fatalf("first registration should succeed: %v", err)
	}
	if err := Register(Backend{Key: "dup", Factory: nopFactory}); err == nil {
		t.Fatalf("duplicate registration should fail")
	}
}

func TestOpen(t *testing.T) {
	cleanup := replaceRegistry(t)
	defer cleanup()

	boom := errors.New("boom")
	MustRegister(Backend{Key: "ok", Factory: nopFactory})
	MustRegister(Backend{Key: "broken", Factory: func(Options) (Store, error) { return nil, boom }})

	if _, err := Open(Options{Type: "ok"}); err != nil {
		t.Fatalf("open ok failed: %v", err)
	}
	if _, err := Open(Options{Type: "broken"}); !errors.Is(err, boom) {
		t.Fatalf("factory error should be wrapped, got %v", err)
	}
	if _, err := Open(Options{Type: "missing"}); err == nil {
		t.Fatalf("unknown type should fail")
	}
}
