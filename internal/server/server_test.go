package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/privilegehq/satsgate/internal/config"
	"github.com/privilegehq/satsgate/internal/indexer"
	"github.com/privilegehq/satsgate/internal/settlement"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const testTreasury = "bcrt1qsmfcnslyhp48w6g6pr86gw3z87qw33hxnzrrx8"

type signerFunc func(ctx context.Context, intent settlement.PaymentIntent, cb settlement.Callbacks) error

func (f signerFunc) Submit(ctx context.Context, intent settlement.PaymentIntent, cb settlement.Callbacks) error {
	return f(ctx, intent, cb)
}

// fakeLedger serves the esplora endpoints the server depends on.
func fakeLedger(t *testing.T, txs map[string]indexer.Transaction) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/blocks/tip/height", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("102"))
	})
	mux.HandleFunc("/api/tx/", func(w http.ResponseWriter, r *http.Request) {
		tx, ok := txs[r.URL.Path[len("/api/tx/"):]]
		if !ok {
			http.NotFound(w, r)
			return
		}
		_ = json.NewEncoder(w).Encode(tx)
	})
	mux.HandleFunc("/api/address/", func(w http.ResponseWriter, _ *http.Request) {
		list := make([]indexer.Transaction, 0, len(txs))
		for _, tx := range txs {
			list = append(list, tx)
		}
		_ = json.NewEncoder(w).Encode(list)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(indexerURL string) *config.Config {
	return &config.Config{
		Port:            "0",
		Env:             "development",
		LogLevel:        "error",
		IndexerURL:      indexerURL,
		IndexerAttempts: 2,
		IndexerInterval: 10 * time.Millisecond,
		TreasuryAddress: testTreasury,
		Network:         "regtest",
		DispatchTimeout: 2 * time.Second,
		PollMaxWait:     300 * time.Millisecond,
		PollInterval:    20 * time.Millisecond,
	}
}

func newTestServer(t *testing.T, txs map[string]indexer.Transaction, sg settlement.Signer) *Server {
	t.Helper()
	ledger := fakeLedger(t, txs)
	opts := []Option{}
	if sg != nil {
		opts = append(opts, WithSigner(sg))
	}
	s, err := New(testConfig(ledger.URL), opts...)
	if err != nil {
		t.Fatalf("Failed to create server: %v", err)
	}
	return s
}

// ---------------------------------------------------------------------------
// Health endpoint tests
// ---------------------------------------------------------------------------

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(t, nil, nil)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/healthz", nil)
	s.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp HealthResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if resp.Status != "healthy" {
		t.Errorf("Expected status 'healthy', got %v", resp.Status)
	}
	if resp.Checks["indexer"] != "healthy" {
		t.Errorf("Expected indexer check healthy, got %v", resp.Checks)
	}
}

func TestLivenessEndpoint(t *testing.T) {
	s := newTestServer(t, nil, nil)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/health/live", nil)
	s.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", w.Code)
	}
}

func TestReadinessEndpoint(t *testing.T) {
	s := newTestServer(t, nil, nil)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/readyz", nil)
	s.router.ServeHTTP(w, req)

	// Server hasn't called Run() so ready is false
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503 (not ready), got %d", w.Code)
	}
}

// ---------------------------------------------------------------------------
// Route registration tests
// ---------------------------------------------------------------------------

func TestCoreRoutesRegistered(t *testing.T) {
	s := newTestServer(t, nil, nil)

	routes := s.router.Routes()
	expected := []string{
		"GET:/healthz",
		"GET:/readyz",
		"GET:/metrics",
		"GET:/ws",
		"GET:/v1/resources",
		"GET:/v1/resources/:resourceID",
		"POST:/v1/purchases",
		"GET:/v1/access/:resourceID",
		"POST:/v1/access/verify",
	}

	routeSet := make(map[string]bool)
	for _, route := range routes {
		routeSet[route.Method+":"+route.Path] = true
	}

	for _, e := range expected {
		if !routeSet[e] {
			t.Errorf("Core route %s not registered", e)
		}
	}
}

// ---------------------------------------------------------------------------
// Catalog endpoints
// ---------------------------------------------------------------------------

func TestListResources(t *testing.T) {
	s := newTestServer(t, nil, nil)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/v1/resources", nil)
	s.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}

	var resp struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if resp.Count != 3 {
		t.Errorf("Expected 3 seeded resources, got %d", resp.Count)
	}
}

func TestGetResource_NotFound(t *testing.T) {
	s := newTestServer(t, nil, nil)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/v1/resources/unknown", nil)
	s.router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", w.Code)
	}
}

// ---------------------------------------------------------------------------
// Purchase and verification flow
// ---------------------------------------------------------------------------

func TestPurchaseFlow_ConfirmedAndVerified(t *testing.T) {
	txs := map[string]indexer.Transaction{
		"txid-1": {
			TxID: "txid-1",
			Vout: []indexer.Output{
				{ScriptpubkeyAddress: testTreasury, Value: 5_000_000},
			},
		},
	}
	sg := signerFunc(func(_ context.Context, _ settlement.PaymentIntent, cb settlement.Callbacks) error {
		go cb.OnConfirmed("txid-1")
		return nil
	})
	s := newTestServer(t, txs, sg)

	body := `{"walletAddress":"bcrt1qbuyer","resourceId":"1","tierIndex":0,"priceSats":5000000}`
	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/v1/purchases", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	s.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var buyResp struct {
		Success   bool   `json:"success"`
		Reference string `json:"reference"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &buyResp); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if !buyResp.Success || buyResp.Reference != "txid-1" {
		t.Fatalf("Expected successful purchase with txid-1, got %+v", buyResp)
	}

	// Cheap hint now reports the tier as purchased.
	w = httptest.NewRecorder()
	req = httptest.NewRequest("GET", "/v1/access/1?wallet=bcrt1qbuyer", nil)
	s.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	var accessResp struct {
		Purchased []bool `json:"purchased"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &accessResp); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if len(accessResp.Purchased) != 3 || !accessResp.Purchased[0] {
		t.Fatalf("Expected tier 0 purchased, got %v", accessResp.Purchased)
	}

	// The authoritative decision re-derives from the ledger.
	body = `{"walletAddress":"bcrt1qbuyer","resourceId":"1","tierIndex":0}`
	w = httptest.NewRecorder()
	req = httptest.NewRequest("POST", "/v1/access/verify", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	s.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
}

func TestPurchase_InvalidBody(t *testing.T) {
	s := newTestServer(t, nil, nil)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/v1/purchases", strings.NewReader(`{"resourceId":"1"}`))
	req.Header.Set("Content-Type", "application/json")
	s.router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", w.Code)
	}
}

func TestPurchase_UnknownResource(t *testing.T) {
	s := newTestServer(t, nil, nil)

	body := `{"walletAddress":"bcrt1qbuyer","resourceId":"nope","tierIndex":0,"priceSats":5000000}`
	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/v1/purchases", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	s.router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", w.Code)
	}
}

func TestPurchase_NoSignerConfigured(t *testing.T) {
	s := newTestServer(t, nil, nil)

	body := `{"walletAddress":"bcrt1qbuyer","resourceId":"1","tierIndex":0,"priceSats":5000000}`
	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/v1/purchases", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	s.router.ServeHTTP(w, req)

	if w.Code != http.StatusPaymentRequired {
		t.Errorf("Expected 402, got %d: %s", w.Code, w.Body.String())
	}
}

func TestVerifyAccess_NoProofIsForbidden(t *testing.T) {
	s := newTestServer(t, nil, nil)

	body := `{"walletAddress":"bcrt1qbuyer","resourceId":"1","tierIndex":0}`
	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/v1/access/verify", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	s.router.ServeHTTP(w, req)

	if w.Code != http.StatusForbidden {
		t.Fatalf("Expected 403, got %d", w.Code)
	}
	var resp struct {
		Allowed    bool   `json:"allowed"`
		DenyReason string `json:"denyReason"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if resp.Allowed || resp.DenyReason == "" {
		t.Errorf("Expected deny reason, got %+v", resp)
	}
}

func TestNotFoundRoute(t *testing.T) {
	s := newTestServer(t, nil, nil)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/v1/nonexistent", nil)
	s.router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", w.Code)
	}
}
