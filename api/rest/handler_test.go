package rest

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/giwa-chain/giwa-walletd/api"
	"github.com/giwa-chain/giwa-walletd/audit"
	"github.com/giwa-chain/giwa-walletd/client"
	"github.com/giwa-chain/giwa-walletd/keystore"
	"github.com/giwa-chain/giwa-walletd/ratelimit"
	"github.com/giwa-chain/giwa-walletd/wallet"

	"github.com/jonboulle/clockwork"
)

func newTestRouter(t *testing.T) (http.Handler, *wallet.Manager) {
	t.Helper()

	clock := clockwork.NewFakeClock()
	store, err := keystore.NewFileStore(t.TempDir(), []byte("test-passphrase"), keystore.StaticAuthenticator{Allow: true})
	if err != nil {
		t.Fatalf("failed to create keystore: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	sink := audit.NewMemorySink(0)

	manager := wallet.NewManager(wallet.ManagerConfig{
		Store:   store,
		Limiter: ratelimit.New(clock),
		Audit:   audit.New(clock, sink),
		Clock:   clock,
		Prefix:  "giwa",
	})
	t.Cleanup(manager.Destroy)

	// Chain handlers are not exercised here; the client never dials
	chain := client.New("http://localhost:0", 1)
	router := setupRouter(manager, chain, api.NewWSHub(), sink)

	return router, manager
}

func doJSON(t *testing.T, router http.Handler, method, path string, body interface{}) (*httptest.ResponseRecorder, RestResp) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var resp RestResp
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response %q: %v", rec.Body.String(), err)
	}
	return rec, resp
}

func TestCreateWalletEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)

	rec, resp := doJSON(t, router, "POST", "/api/v1/wallet", nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201 (body %s)", rec.Code, rec.Body.String())
	}
	if !resp.Success {
		t.Fatalf("success = false: %s", resp.Error)
	}

	data, ok := resp.Data.(map[string]interface{})
	if !ok {
		t.Fatalf("unexpected data shape: %T", resp.Data)
	}
	if data["mnemonic"] == "" {
		t.Error("create response should carry the mnemonic")
	}

	// Second create must refuse while a wallet exists
	rec, resp = doJSON(t, router, "POST", "/api/v1/wallet", nil)
	if rec.Code != http.StatusConflict {
		t.Errorf("second create status = %d, want 409", rec.Code)
	}
	if resp.Success {
		t.Error("second create should not succeed")
	}
}

func TestRecoverWalletEndpoint_InvalidMnemonic(t *testing.T) {
	router, _ := newTestRouter(t)

	rec, resp := doJSON(t, router, "POST", "/api/v1/wallet/recover", RecoverWalletReq{
		Mnemonic: "not a valid phrase at all",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if resp.Code != wallet.ErrCodeInvalidMnemonic {
		t.Errorf("code = %q, want %q", resp.Code, wallet.ErrCodeInvalidMnemonic)
	}
}

func TestWalletStatusEndpoint(t *testing.T) {
	router, manager := newTestRouter(t)

	rec, resp := doJSON(t, router, "GET", "/api/v1/wallet/status", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	data := resp.Data.(map[string]interface{})
	if data["exists"] != false {
		t.Error("exists should be false before create")
	}

	if _, _, err := manager.CreateWallet(keystore.Options{}); err != nil {
		t.Fatal(err)
	}

	_, resp = doJSON(t, router, "GET", "/api/v1/wallet/status", nil)
	data = resp.Data.(map[string]interface{})
	if data["exists"] != true || data["connected"] != true {
		t.Errorf("after create: exists=%v connected=%v, want true/true", data["exists"], data["connected"])
	}
}

func TestExportRateLimitEndpoint(t *testing.T) {
	router, manager := newTestRouter(t)

	if _, _, err := manager.CreateWallet(keystore.Options{}); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 3; i++ {
		rec, _ := doJSON(t, router, "POST", "/api/v1/wallet/export/mnemonic", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("export %d status = %d (body %s)", i+1, rec.Code, rec.Body.String())
		}
	}

	rec, resp := doJSON(t, router, "POST", "/api/v1/wallet/export/mnemonic", nil)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("4th export status = %d, want 429", rec.Code)
	}
	if resp.Code != "RATE_LIMITED" {
		t.Errorf("code = %q, want RATE_LIMITED", resp.Code)
	}
	if rec.Header().Get("Retry-After") != "300" {
		t.Errorf("Retry-After = %q, want 300", rec.Header().Get("Retry-After"))
	}
}

func TestDeleteWalletEndpoint(t *testing.T) {
	router, manager := newTestRouter(t)

	rec, _ := doJSON(t, router, "DELETE", "/api/v1/wallet", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("delete without wallet status = %d, want 404", rec.Code)
	}

	if _, _, err := manager.CreateWallet(keystore.Options{}); err != nil {
		t.Fatal(err)
	}

	rec, resp := doJSON(t, router, "DELETE", "/api/v1/wallet", nil)
	if rec.Code != http.StatusOK || !resp.Success {
		t.Fatalf("delete status = %d success = %v", rec.Code, resp.Success)
	}
	if manager.HasWallet() {
		t.Error("wallet should be gone after delete")
	}
}

func TestAuditEventsEndpoint(t *testing.T) {
	router, manager := newTestRouter(t)

	if _, _, err := manager.CreateWallet(keystore.Options{}); err != nil {
		t.Fatal(err)
	}

	rec, resp := doJSON(t, router, "GET", "/api/v1/audit/events", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	data := resp.Data.(map[string]interface{})
	if count, ok := data["count"].(float64); !ok || count < 1 {
		t.Errorf("count = %v, want at least 1 event", data["count"])
	}
}
