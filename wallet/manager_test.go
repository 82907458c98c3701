package wallet

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/giwa-chain/giwa-walletd/audit"
	"github.com/giwa-chain/giwa-walletd/keystore"
	"github.com/giwa-chain/giwa-walletd/ratelimit"

	"github.com/jonboulle/clockwork"
)

type testEnv struct {
	manager *Manager
	store   keystore.SecureStore
	sink    *audit.MemorySink
	clock   *clockwork.FakeClock
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	clock := clockwork.NewFakeClock()
	store, err := keystore.NewFileStore(t.TempDir(), []byte("test-passphrase"), keystore.StaticAuthenticator{Allow: true})
	if err != nil {
		t.Fatalf("failed to create keystore: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	sink := audit.NewMemorySink(0)

	manager := NewManager(ManagerConfig{
		Store:   store,
		Limiter: ratelimit.New(clock),
		Audit:   audit.New(clock, sink),
		Clock:   clock,
		Prefix:  "giwa",
	})
	t.Cleanup(manager.Destroy)

	return &testEnv{manager: manager, store: store, sink: sink, clock: clock}
}

func TestCreateWallet(t *testing.T) {
	env := newTestEnv(t)

	account, mnemonic, err := env.manager.CreateWallet(keystore.Options{})
	if err != nil {
		t.Fatalf("CreateWallet: %v", err)
	}

	if len(strings.Fields(mnemonic)) != 12 {
		t.Errorf("mnemonic has %d words, want 12", len(strings.Fields(mnemonic)))
	}
	if account.Path != "m/44'/60'/0'/0/0" {
		t.Errorf("path = %s", account.Path)
	}
	if !env.manager.HasWallet() {
		t.Error("HasWallet should be true after create")
	}
	if got := env.manager.GetAccount(); got == nil || got.Address != account.Address {
		t.Error("account should be hot after create")
	}
	if env.sink.CountByType(audit.EventWalletCreated) != 1 {
		t.Error("WALLET_CREATED should be logged once")
	}
}

func TestCreateThenRecover_SameAddress(t *testing.T) {
	env := newTestEnv(t)

	account, mnemonic, err := env.manager.CreateWallet(keystore.Options{})
	if err != nil {
		t.Fatal(err)
	}

	if err := env.manager.DeleteWallet(); err != nil {
		t.Fatalf("DeleteWallet: %v", err)
	}
	if env.manager.HasWallet() {
		t.Fatal("HasWallet should be false after delete")
	}
	if env.manager.GetAccount() != nil {
		t.Fatal("GetAccount should be nil after delete")
	}

	recovered, err := env.manager.RecoverWallet(mnemonic, keystore.Options{})
	if err != nil {
		t.Fatalf("RecoverWallet: %v", err)
	}
	if recovered.Address != account.Address {
		t.Errorf("recovered address %s != created address %s", recovered.Address.Hex(), account.Address.Hex())
	}
	if env.sink.CountByType(audit.EventWalletRecovered) != 1 {
		t.Error("WALLET_RECOVERED should be logged once")
	}
}

func TestRecoverWallet_InvalidMnemonic(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.manager.RecoverWallet("totally bogus phrase", keystore.Options{})
	if err == nil {
		t.Fatal("invalid mnemonic should be rejected")
	}

	var werr *Error
	if !errors.As(err, &werr) || werr.Code != ErrCodeInvalidMnemonic {
		t.Errorf("got %v, want code %s", err, ErrCodeInvalidMnemonic)
	}

	// Validation failure must happen before any storage write
	keys, kerr := env.store.Keys()
	if kerr != nil {
		t.Fatal(kerr)
	}
	if len(keys) != 0 {
		t.Errorf("store should be untouched, has %v", keys)
	}
}

func TestImportPrivateKey(t *testing.T) {
	env := newTestEnv(t)

	keyHex := "0x" + strings.Repeat("11", 32)
	account, err := env.manager.ImportPrivateKey(keyHex, keystore.Options{})
	if err != nil {
		t.Fatalf("ImportPrivateKey: %v", err)
	}

	if account.Path != "" {
		t.Errorf("imported key path = %q, want empty", account.Path)
	}

	// Deterministic: importing the same key again yields the same address
	env2 := newTestEnv(t)
	account2, err := env2.manager.ImportPrivateKey(keyHex, keystore.Options{})
	if err != nil {
		t.Fatal(err)
	}
	if account.Address != account2.Address {
		t.Error("same key imported twice should derive the same address")
	}

	exported, err := env.manager.ExportPrivateKey(keystore.Options{})
	if err != nil {
		t.Fatalf("ExportPrivateKey: %v", err)
	}
	if exported != keyHex {
		t.Errorf("exported = %s, want %s", exported, keyHex)
	}

	// Imported wallets have no mnemonic to export
	mnemonic, err := env.manager.ExportMnemonic(keystore.Options{})
	if err != nil {
		t.Fatalf("ExportMnemonic: %v", err)
	}
	if mnemonic != "" {
		t.Errorf("mnemonic = %q, want empty", mnemonic)
	}
}

func TestImportPrivateKey_Invalid(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.manager.ImportPrivateKey("not-a-key", keystore.Options{})
	if err == nil {
		t.Fatal("garbage key should be rejected")
	}

	var werr *Error
	if !errors.As(err, &werr) || werr.Code != ErrCodeInvalidPrivateKey {
		t.Errorf("got %v, want code %s", err, ErrCodeInvalidPrivateKey)
	}

	if env.manager.HasWallet() {
		t.Error("no wallet record should remain after a failed import")
	}
}

func TestLoadWallet(t *testing.T) {
	env := newTestEnv(t)

	// No wallet yet: nil, not an error
	account, err := env.manager.LoadWallet(keystore.Options{})
	if err != nil {
		t.Fatalf("LoadWallet with empty store: %v", err)
	}
	if account != nil {
		t.Fatal("LoadWallet should return nil when no wallet exists")
	}

	created, _, err := env.manager.CreateWallet(keystore.Options{})
	if err != nil {
		t.Fatal(err)
	}

	// Simulate process restart: a fresh manager over the same store
	manager2 := NewManager(ManagerConfig{
		Store: env.store,
		Clock: env.clock,
	})
	defer manager2.Destroy()

	loaded, err := manager2.LoadWallet(keystore.Options{})
	if err != nil {
		t.Fatalf("LoadWallet: %v", err)
	}
	if loaded == nil || loaded.Address != created.Address {
		t.Error("loaded account should match the created one")
	}
	if got := manager2.GetAccount(); got == nil {
		t.Error("account should be hot after load")
	}
}

func TestLoadWallet_FallsBackToRawKey(t *testing.T) {
	env := newTestEnv(t)

	keyHex := "0x" + strings.Repeat("42", 32)
	imported, err := env.manager.ImportPrivateKey(keyHex, keystore.Options{})
	if err != nil {
		t.Fatal(err)
	}

	manager2 := NewManager(ManagerConfig{Store: env.store, Clock: env.clock})
	defer manager2.Destroy()

	loaded, err := manager2.LoadWallet(keystore.Options{})
	if err != nil {
		t.Fatalf("LoadWallet: %v", err)
	}
	if loaded == nil || loaded.Address != imported.Address {
		t.Error("load should fall back to the stored raw key")
	}
}

func TestExportRateLimit(t *testing.T) {
	env := newTestEnv(t)

	if _, _, err := env.manager.CreateWallet(keystore.Options{}); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 3; i++ {
		if _, err := env.manager.ExportPrivateKey(keystore.Options{}); err != nil {
			t.Fatalf("export %d should succeed: %v", i+1, err)
		}
	}

	_, err := env.manager.ExportPrivateKey(keystore.Options{})
	var rlErr *ratelimit.Error
	if !errors.As(err, &rlErr) {
		t.Fatalf("4th export: got %v, want rate limit error", err)
	}
	if rlErr.RetryAfter != 5*time.Minute {
		t.Errorf("RetryAfter = %v, want 5m", rlErr.RetryAfter)
	}

	// Remaining attempts stay at zero for the whole cooldown
	env.clock.Advance(4 * time.Minute)
	_, err = env.manager.ExportPrivateKey(keystore.Options{})
	if !errors.As(err, &rlErr) {
		t.Fatalf("export during cooldown: got %v, want rate limit error", err)
	}

	// Past the cooldown exports work again
	env.clock.Advance(2 * time.Minute)
	if _, err := env.manager.ExportPrivateKey(keystore.Options{}); err != nil {
		t.Fatalf("export after cooldown should succeed: %v", err)
	}

	// Mnemonic exports have an independent budget
	if _, err := env.manager.ExportMnemonic(keystore.Options{}); err != nil {
		t.Fatalf("mnemonic export should be unaffected: %v", err)
	}
}

func TestExportMnemonic_RoundTrip(t *testing.T) {
	env := newTestEnv(t)

	_, mnemonic, err := env.manager.CreateWallet(keystore.Options{})
	if err != nil {
		t.Fatal(err)
	}

	exported, err := env.manager.ExportMnemonic(keystore.Options{})
	if err != nil {
		t.Fatalf("ExportMnemonic: %v", err)
	}
	if exported != mnemonic {
		t.Error("exported mnemonic should match the one returned at creation")
	}
	if env.sink.CountByType(audit.EventExportAttempt) != 1 {
		t.Error("export attempt should be logged")
	}
	if env.sink.CountByType(audit.EventExportSuccess) != 1 {
		t.Error("export success should be logged")
	}
}

func TestAccountTimeout(t *testing.T) {
	env := newTestEnv(t)

	account, _, err := env.manager.CreateWallet(keystore.Options{})
	if err != nil {
		t.Fatal(err)
	}

	// Calls inside the timeout keep the account hot and slide the expiry
	for i := 0; i < 3; i++ {
		env.clock.Advance(4 * time.Minute)
		if got := env.manager.GetAccount(); got == nil || got.Address != account.Address {
			t.Fatalf("account should still be hot after touch %d", i+1)
		}
	}

	// Inactivity past the timeout evicts the account
	env.clock.Advance(6 * time.Minute)
	if got := env.manager.GetAccount(); got != nil {
		t.Fatal("account should be evicted after timeout")
	}

	if n := env.sink.CountByType(audit.EventWalletDisconnected); n != 1 {
		t.Errorf("WALLET_DISCONNECTED logged %d times, want 1", n)
	}
	events := env.sink.Events()
	found := false
	for _, e := range events {
		if e.Type == audit.EventWalletDisconnected {
			found = true
			if e.Details["reason"] != "account_timeout" {
				t.Errorf("reason = %v, want account_timeout", e.Details["reason"])
			}
		}
	}
	if !found {
		t.Error("disconnect event missing")
	}

	// A further idle period must not log a second disconnect
	env.clock.Advance(10 * time.Minute)
	if env.manager.GetAccount() != nil {
		t.Fatal("account should stay evicted")
	}
	if n := env.sink.CountByType(audit.EventWalletDisconnected); n != 1 {
		t.Errorf("WALLET_DISCONNECTED logged %d times after idle, want 1", n)
	}

	// Reloading re-arms the slot
	if _, err := env.manager.LoadWallet(keystore.Options{}); err != nil {
		t.Fatal(err)
	}
	if env.manager.GetAccount() == nil {
		t.Error("account should be hot again after reload")
	}
}

func TestDestroy(t *testing.T) {
	env := newTestEnv(t)

	if _, _, err := env.manager.CreateWallet(keystore.Options{}); err != nil {
		t.Fatal(err)
	}

	env.manager.Destroy()

	if env.manager.GetAccount() != nil {
		t.Error("GetAccount should be nil after Destroy")
	}
	// Persisted state is untouched
	if !env.manager.HasWallet() {
		t.Error("Destroy must not delete the persisted wallet")
	}
}

func TestDeleteWallet_LogsCapturedAddress(t *testing.T) {
	env := newTestEnv(t)

	account, _, err := env.manager.CreateWallet(keystore.Options{})
	if err != nil {
		t.Fatal(err)
	}

	if err := env.manager.DeleteWallet(); err != nil {
		t.Fatal(err)
	}

	masked := audit.MaskAddress(account.Address.Hex())
	for _, e := range env.sink.Events() {
		if e.Type == audit.EventWalletDeleted {
			if e.Address != masked {
				t.Errorf("deleted event address = %q, want %q", e.Address, masked)
			}
			return
		}
	}
	t.Error("WALLET_DELETED event missing")
}
