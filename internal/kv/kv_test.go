package kv

import (
	"testing"
)

func newTestStore(t *testing.T) *GormStore {
	t.Helper()
	store, err := Open("file::memory:")
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	return store
}

func TestGormStore_ReadWriteRoundTrip(t *testing.T) {
	store := newTestStore(t)

	if _, ok, err := store.Read("missing"); err != nil || ok {
		t.Fatalf("expected absent key, got ok=%v err=%v", ok, err)
	}

	if err := store.Write("warp_accounts", `{"a@x.com":{}}`); err != nil {
		t.Fatalf("write: %v", err)
	}
	value, ok, err := store.Read("warp_accounts")
	if err != nil || !ok {
		t.Fatalf("read back: ok=%v err=%v", ok, err)
	}
	if value != `{"a@x.com":{}}` {
		t.Fatalf("unexpected value: %s", value)
	}

	// Overwrite replaces the whole value.
	if err := store.Write("warp_accounts", "{}"); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	value, _, _ = store.Read("warp_accounts")
	if value != "{}" {
		t.Fatalf("expected overwritten value, got %s", value)
	}
}

func TestInitialize_SeedsFreshStore(t *testing.T) {
	store := NewMemoryStore()

	if err := Initialize(store); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	version, ok, _ := store.Read(KeySchemaVersion)
	if !ok || version != SchemaVersion {
		t.Fatalf("expected schema version %q, got %q", SchemaVersion, version)
	}
	accounts, ok, _ := store.Read(KeyAccounts)
	if !ok || accounts != "{}" {
		t.Fatalf("expected empty accounts seed, got %q", accounts)
	}
	if active, ok, _ := store.Read(KeyActiveAccount); !ok || active != "" {
		t.Fatalf("expected empty active pointer seed, got %q", active)
	}
}

func TestInitialize_DoesNotClobberExistingData(t *testing.T) {
	store := NewMemoryStore()
	store.Write(KeyAccounts, `{"a@x.com":{}}`)

	if err := Initialize(store); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	accounts, _, _ := store.Read(KeyAccounts)
	if accounts != `{"a@x.com":{}}` {
		t.Fatalf("existing accounts were clobbered: %q", accounts)
	}
}
