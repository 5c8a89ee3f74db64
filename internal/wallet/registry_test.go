package wallet

import (
	"context"
	"testing"
	"time"

	xerrors "IntentWallet/internal/errors"
)

func TestRegistryReturnsSameHandle(t *testing.T) {
	created := 0
	reg := NewRegistry(func(key string) *custodialHandle {
		created++
		return &custodialHandle{}
	})
	if reg.Handle("a") != reg.Handle("a") {
		t.Fatalf("same key should yield the same handle")
	}
	if reg.Handle("a") == reg.Handle("b") {
		t.Fatalf("different keys should not share handles")
	}
	if created != 2 || reg.Len() != 2 {
		t.Fatalf("unexpected handle count created=%d len=%d", created, reg.Len())
	}
}

func TestRegistryLockIsPerKey(t *testing.T) {
	reg := NewRegistry[struct{}](nil)
	release, err := reg.Lock(context.Background(), "agent")
	if err != nil {
		t.Fatalf("lock: %v", err)
	}

	other, err := reg.Lock(context.Background(), "other")
	if err != nil {
		t.Fatalf("other key should not block: %v", err)
	}
	other()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := reg.Lock(ctx, "agent"); xerrors.CodeOf(err) != xerrors.CodeTimeout {
		t.Fatalf("expected timeout while held, got %v", err)
	}

	release()
	release()
	again, err := reg.Lock(context.Background(), "agent")
	if err != nil {
		t.Fatalf("lock after release: %v", err)
	}
	again()
}
