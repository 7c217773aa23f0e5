package tagcache

import (
	"testing"

	"github.com/silverpine/tagcache/codec"
)

func TestNewRequiresBackend(t *testing.T) {
	_, err := New[string](Options[string]{Codec: codec.JSONCodec[string]{}})
	if err == nil {
		t.Fatalf("expected error for nil backend")
	}
}

func TestNewRequiresCodec(t *testing.T) {
	_, err := New[string](Options[string]{Backend: newMemDriver()})
	if err == nil {
		t.Fatalf("expected error for nil codec")
	}
}

func TestNewRejectsInvalidNamespace(t *testing.T) {
	_, err := New[string](Options[string]{
		Namespace: "bad:ns",
		Backend:   newMemDriver(),
		Codec:     codec.JSONCodec[string]{},
	})
	if err == nil {
		t.Fatalf("expected error for reserved character in namespace")
	}
}

func TestNewAppliesDefaults(t *testing.T) {
	p, err := New[string](Options[string]{
		Backend: newMemDriver(),
		Codec:   codec.JSONCodec[string]{},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	impl := p.(*pool[string])
	if impl.defaultLifetime <= 0 {
		t.Fatalf("expected a positive default lifetime, got %v", impl.defaultLifetime)
	}
	if _, ok := impl.log.(NopLogger); !ok {
		t.Fatalf("expected NopLogger default")
	}
	if _, ok := impl.hooks.(NopHooks); !ok {
		t.Fatalf("expected NopHooks default")
	}
}
