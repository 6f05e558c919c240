package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/custodia/escrowd/internal/allowlist"
	"github.com/custodia/escrowd/internal/auth"
	"github.com/custodia/escrowd/internal/engine"
	"github.com/custodia/escrowd/internal/model"
	"github.com/custodia/escrowd/internal/store/memstore"
	"github.com/custodia/escrowd/internal/transfer"
)

const (
	operatorKey  = "sk_test_operator"
	operatorName = "operator-root"
	lockSeconds  = 14 * 24 * 3600
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type testServer struct {
	*httptest.Server
	bank  *transfer.MemoryBank
	clock *testClock
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	bank := transfer.NewMemoryBank()
	clock := &testClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}

	eng, err := engine.New(engine.Config{
		Operator:  operatorName,
		Mover:     bank,
		AllowList: allowlist.New(model.NativeAsset()),
		Store:     memstore.New(),
		Now:       clock.Now,
	})
	require.NoError(t, err)

	authorizer := auth.NewDevAuthorizer(auth.NewStaticAuthorizer(map[string]auth.ActorInfo{
		operatorKey: {ActorID: operatorName, KeyName: "operator"},
	}))

	srv := httptest.NewServer(NewRouter(eng, authorizer))
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, bank: bank, clock: clock}
}

// do issues a JSON request with the given API key ("" for none) and decodes
// the response body into a generic map.
func (s *testServer) do(t *testing.T, method, path, apiKey string, body interface{}) (int, map[string]interface{}) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, s.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}
	resp, err := s.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func devKey(actor string) string { return auth.DevKeyPrefix + actor }

func createVault(t *testing.T, s *testServer, creator string) int64 {
	t.Helper()
	status, body := s.do(t, "POST", "/v1/vaults", devKey(creator), map[string]interface{}{
		"message":     "for the cause",
		"asset":       "native",
		"lockSeconds": lockSeconds,
	})
	require.Equal(t, http.StatusCreated, status, "body: %v", body)
	return int64(body["vaultId"].(float64))
}

func TestCreateVaultEndpoint(t *testing.T) {
	s := newTestServer(t)

	id := createVault(t, s, "alice")
	require.Equal(t, int64(1), id)

	status, body := s.do(t, "GET", fmt.Sprintf("/v1/vaults/%d", id), "", nil)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "alice", body["creator"])
	require.Equal(t, "native", body["asset"])
	require.Equal(t, float64(0), body["poolTotal"])
}

func TestCreateVaultRequiresAuth(t *testing.T) {
	s := newTestServer(t)

	status, body := s.do(t, "POST", "/v1/vaults", "", map[string]interface{}{
		"message":     "m",
		"asset":       "native",
		"lockSeconds": lockSeconds,
	})
	require.Equal(t, http.StatusUnauthorized, status)
	require.Equal(t, "UNAUTHORIZED", body["code"])
}

func TestCreateVaultRejectsUnlistedAsset(t *testing.T) {
	s := newTestServer(t)

	status, body := s.do(t, "POST", "/v1/vaults", devKey("alice"), map[string]interface{}{
		"message":     "m",
		"asset":       "token:usdc",
		"lockSeconds": lockSeconds,
	})
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, "INVALID_TOKEN_ADDRESS", body["code"])
}

func TestCreateVaultRejectsShortLock(t *testing.T) {
	s := newTestServer(t)

	status, body := s.do(t, "POST", "/v1/vaults", devKey("alice"), map[string]interface{}{
		"message":     "m",
		"asset":       "native",
		"lockSeconds": 3600,
	})
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, "INVALID_LOCK_DURATION", body["code"])
}

func TestVaultNotFound(t *testing.T) {
	s := newTestServer(t)

	status, body := s.do(t, "GET", "/v1/vaults/42", "", nil)
	require.Equal(t, http.StatusNotFound, status)
	require.Equal(t, "VAULT_NOT_FOUND", body["code"])
}

func TestDonateSettleClaimFlow(t *testing.T) {
	s := newTestServer(t)

	id := createVault(t, s, "alice")
	s.bank.Credit("bob", model.NativeAsset(), 1_000)

	status, body := s.do(t, "POST", fmt.Sprintf("/v1/vaults/%d/donations", id), devKey("bob"),
		map[string]interface{}{"amount": 500})
	require.Equal(t, http.StatusOK, status, "body: %v", body)
	require.Equal(t, float64(500), body["poolTotal"])
	require.Equal(t, float64(500), body["totalDonated"])

	// settlement is operator-only
	status, body = s.do(t, "POST", fmt.Sprintf("/v1/vaults/%d/settlements", id), devKey("bob"),
		map[string]interface{}{"recipient": "carol", "amount": 200})
	require.Equal(t, http.StatusForbidden, status)
	require.Equal(t, "UNAUTHORIZED_ACCESS", body["code"])

	status, body = s.do(t, "POST", fmt.Sprintf("/v1/vaults/%d/settlements", id), operatorKey,
		map[string]interface{}{"recipient": "carol", "amount": 200})
	require.Equal(t, http.StatusOK, status, "body: %v", body)
	require.Equal(t, float64(200), body["settledAmount"])

	status, body = s.do(t, "GET", fmt.Sprintf("/v1/vaults/%d/entitlements/carol", id), "", nil)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, float64(200), body["claimable"])

	status, body = s.do(t, "POST", fmt.Sprintf("/v1/vaults/%d/claims", id), devKey("carol"), nil)
	require.Equal(t, http.StatusOK, status, "body: %v", body)
	require.Equal(t, float64(200), body["amount"])
	require.Equal(t, int64(200), s.bank.BalanceOf("carol", model.NativeAsset()))

	// nothing left to claim
	status, body = s.do(t, "POST", fmt.Sprintf("/v1/vaults/%d/claims", id), devKey("carol"), nil)
	require.Equal(t, http.StatusConflict, status)
	require.Equal(t, "NO_FUNDS_TO_CLAIM", body["code"])
}

func TestSettleCannotExceedPool(t *testing.T) {
	s := newTestServer(t)

	id := createVault(t, s, "alice")
	s.bank.Credit("bob", model.NativeAsset(), 100)
	status, _ := s.do(t, "POST", fmt.Sprintf("/v1/vaults/%d/donations", id), devKey("bob"),
		map[string]interface{}{"amount": 100})
	require.Equal(t, http.StatusOK, status)

	status, body := s.do(t, "POST", fmt.Sprintf("/v1/vaults/%d/settlements", id), operatorKey,
		map[string]interface{}{"recipient": "carol", "amount": 101})
	require.Equal(t, http.StatusConflict, status)
	require.Equal(t, "INSUFFICIENT_POOL_FUNDS", body["code"])
}

func TestDonateTransferFailure(t *testing.T) {
	s := newTestServer(t)

	id := createVault(t, s, "alice")
	// bob has no balance in the bank
	status, body := s.do(t, "POST", fmt.Sprintf("/v1/vaults/%d/donations", id), devKey("bob"),
		map[string]interface{}{"amount": 500})
	require.Equal(t, http.StatusBadGateway, status)
	require.Equal(t, "TRANSFER_FAILED", body["code"])
}

func TestWithdrawEndpoint(t *testing.T) {
	s := newTestServer(t)

	id := createVault(t, s, "alice")
	s.bank.Credit("bob", model.NativeAsset(), 300)
	status, _ := s.do(t, "POST", fmt.Sprintf("/v1/vaults/%d/donations", id), devKey("bob"),
		map[string]interface{}{"amount": 300})
	require.Equal(t, http.StatusOK, status)

	// before the lock deadline
	status, body := s.do(t, "POST", fmt.Sprintf("/v1/vaults/%d/withdrawals", id), devKey("alice"),
		map[string]interface{}{"amount": 300})
	require.Equal(t, http.StatusConflict, status)
	require.Equal(t, "LOCK_PERIOD_NOT_EXPIRED", body["code"])

	// only the creator may withdraw
	s.clock.Advance(15 * 24 * time.Hour)
	status, body = s.do(t, "POST", fmt.Sprintf("/v1/vaults/%d/withdrawals", id), devKey("bob"),
		map[string]interface{}{"amount": 300})
	require.Equal(t, http.StatusForbidden, status)
	require.Equal(t, "UNAUTHORIZED_ACCESS", body["code"])

	status, body = s.do(t, "POST", fmt.Sprintf("/v1/vaults/%d/withdrawals", id), devKey("alice"),
		map[string]interface{}{"amount": 300})
	require.Equal(t, http.StatusOK, status, "body: %v", body)
	require.Equal(t, float64(0), body["poolTotal"])
	require.Equal(t, int64(300), s.bank.BalanceOf("alice", model.NativeAsset()))
}

func TestEmergencyModeEndpoints(t *testing.T) {
	s := newTestServer(t)

	id := createVault(t, s, "alice")
	s.bank.Credit("bob", model.NativeAsset(), 100)
	status, _ := s.do(t, "POST", fmt.Sprintf("/v1/vaults/%d/donations", id), devKey("bob"),
		map[string]interface{}{"amount": 100})
	require.Equal(t, http.StatusOK, status)

	// emergency withdraw requires emergency mode
	status, body := s.do(t, "POST", "/v1/admin/emergency-withdrawals", operatorKey,
		map[string]interface{}{"vaultId": id, "amount": 100})
	require.Equal(t, http.StatusConflict, status)
	require.Equal(t, "EMERGENCY_MODE_NOT_ACTIVE", body["code"])

	// toggling is operator-only
	status, body = s.do(t, "POST", "/v1/admin/emergency-mode", devKey("alice"), nil)
	require.Equal(t, http.StatusForbidden, status)
	require.Equal(t, "UNAUTHORIZED_ACCESS", body["code"])

	status, body = s.do(t, "POST", "/v1/admin/emergency-mode", operatorKey, nil)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, true, body["emergencyMode"])

	status, body = s.do(t, "GET", "/v1/emergency-mode", "", nil)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, true, body["emergencyMode"])

	// normal operations are halted
	status, body = s.do(t, "POST", fmt.Sprintf("/v1/vaults/%d/donations", id), devKey("bob"),
		map[string]interface{}{"amount": 1})
	require.Equal(t, http.StatusConflict, status)
	require.Equal(t, "EMERGENCY_MODE_ACTIVE", body["code"])

	status, body = s.do(t, "POST", "/v1/admin/emergency-withdrawals", operatorKey,
		map[string]interface{}{"vaultId": id, "amount": 100})
	require.Equal(t, http.StatusOK, status, "body: %v", body)
	require.Equal(t, float64(0), body["poolTotal"])
	require.Equal(t, int64(100), s.bank.BalanceOf(operatorName, model.NativeAsset()))
}

func TestAssetAdminEndpoints(t *testing.T) {
	s := newTestServer(t)

	status, body := s.do(t, "GET", "/v1/assets/token:usdc", "", nil)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, false, body["allowed"])

	// allow-listing is operator-only
	status, body = s.do(t, "POST", "/v1/admin/assets", devKey("alice"),
		map[string]interface{}{"asset": "token:usdc"})
	require.Equal(t, http.StatusForbidden, status)
	require.Equal(t, "UNAUTHORIZED_ACCESS", body["code"])

	status, _ = s.do(t, "POST", "/v1/admin/assets", operatorKey,
		map[string]interface{}{"asset": "token:usdc"})
	require.Equal(t, http.StatusOK, status)

	status, body = s.do(t, "GET", "/v1/assets/token:usdc", "", nil)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, true, body["allowed"])

	status, body = s.do(t, "POST", "/v1/vaults", devKey("alice"), map[string]interface{}{
		"message":     "usdc vault",
		"asset":       "token:usdc",
		"lockSeconds": lockSeconds,
	})
	require.Equal(t, http.StatusCreated, status, "body: %v", body)

	status, _ = s.do(t, "DELETE", "/v1/admin/assets/token:usdc", operatorKey, nil)
	require.Equal(t, http.StatusOK, status)

	status, body = s.do(t, "GET", "/v1/assets/token:usdc", "", nil)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, false, body["allowed"])
}

func TestTransferAuthorityEndpoint(t *testing.T) {
	s := newTestServer(t)

	status, body := s.do(t, "POST", "/v1/admin/operator", operatorKey,
		map[string]interface{}{"newOperator": "operator-next"})
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "operator-next", body["operator"])

	// the old operator has lost authority
	status, body = s.do(t, "POST", "/v1/admin/emergency-mode", operatorKey, nil)
	require.Equal(t, http.StatusForbidden, status)
	require.Equal(t, "UNAUTHORIZED_ACCESS", body["code"])

	status, _ = s.do(t, "POST", "/v1/admin/emergency-mode", devKey("operator-next"), nil)
	require.Equal(t, http.StatusOK, status)
}

func TestListVaults(t *testing.T) {
	s := newTestServer(t)

	createVault(t, s, "alice")
	createVault(t, s, "bob")

	status, body := s.do(t, "GET", "/v1/vaults", "", nil)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, float64(2), body["count"])
}

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(t)

	BindServiceHealth(func() bool { return true })
	defer BindServiceHealth(func() bool { return healthyFlag.Load() == 1 })

	status, body := s.do(t, "GET", "/v1/health", "", nil)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "healthy", body["status"])
}
