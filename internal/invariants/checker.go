//
// 🔒 CRITICAL SYSTEM FILE - Invariant Contract Testing
// ⚠️  These tests ensure ledger invariants are never violated
// 🛡️  Uses customer-facing APIs only (blackbox testing)
// 📋  Never mutate invariants to get incremental changes working
//

package invariants

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// InvariantChecker tests ledger invariants using customer-facing APIs.
// This is a blackbox test that treats the service as an external system.
type InvariantChecker struct {
	baseURL     string
	operatorKey string
	client      *http.Client
}

// NewInvariantChecker creates a new invariant checker. operatorKey must
// authenticate as the current operator.
func NewInvariantChecker(baseURL, operatorKey string) *InvariantChecker {
	return &InvariantChecker{
		baseURL:     baseURL,
		operatorKey: operatorKey,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// 🔒 INVARIANT: Settled funds never exceed the pool, cumulative counters
// never decrease, and claimed never exceeds settled.
func (ic *InvariantChecker) TestLedgerConservationInvariant(t *testing.T, creatorKey, donorKey string) {
	vaultID := ic.createTestVault(t, creatorKey, "conservation test")
	ic.donate(t, donorKey, vaultID, 100)

	// 🔒 INVARIANT: Settlement cannot exceed the pool
	t.Run("SettlementCappedByPool", func(t *testing.T) {
		resp := ic.makeRequest(t, "POST",
			fmt.Sprintf("/v1/vaults/%d/settlements", vaultID),
			ic.operatorKey,
			map[string]interface{}{"recipient": "inv-recipient", "amount": 101},
			http.StatusConflict)

		var errorResp map[string]interface{}
		require.NoError(t, json.Unmarshal(resp, &errorResp))
		assert.Equal(t, "INSUFFICIENT_POOL_FUNDS", errorResp["code"])
	})

	// 🔒 INVARIANT: claimed <= settled <= donated at every observable point
	t.Run("CumulativeCountersOrdered", func(t *testing.T) {
		ic.makeRequest(t, "POST",
			fmt.Sprintf("/v1/vaults/%d/settlements", vaultID),
			ic.operatorKey,
			map[string]interface{}{"recipient": "inv-recipient", "amount": 60},
			http.StatusOK)

		v := ic.getVault(t, vaultID)
		assert.Equal(t, float64(100), v["totalDonated"])
		assert.Equal(t, float64(60), v["totalSettled"])
		assert.Equal(t, float64(40), v["poolTotal"])
		assert.LessOrEqual(t, v["totalClaimed"].(float64), v["totalSettled"].(float64))
		assert.LessOrEqual(t, v["totalSettled"].(float64), v["totalDonated"].(float64))
		assert.GreaterOrEqual(t, v["poolTotal"].(float64), float64(0))
	})
}

// 🔒 INVARIANT: A claim pays the full outstanding entitlement exactly once.
func (ic *InvariantChecker) TestDoubleClaimInvariant(t *testing.T, creatorKey, donorKey, recipientKey, recipient string) {
	vaultID := ic.createTestVault(t, creatorKey, "double claim test")
	ic.donate(t, donorKey, vaultID, 50)

	ic.makeRequest(t, "POST",
		fmt.Sprintf("/v1/vaults/%d/settlements", vaultID),
		ic.operatorKey,
		map[string]interface{}{"recipient": recipient, "amount": 50},
		http.StatusOK)

	t.Run("FirstClaimPaysFullEntitlement", func(t *testing.T) {
		resp := ic.makeRequest(t, "POST",
			fmt.Sprintf("/v1/vaults/%d/claims", vaultID),
			recipientKey, nil, http.StatusOK)

		var claim map[string]interface{}
		require.NoError(t, json.Unmarshal(resp, &claim))
		assert.Equal(t, float64(50), claim["amount"])
	})

	t.Run("SecondClaimRejected", func(t *testing.T) {
		resp := ic.makeRequest(t, "POST",
			fmt.Sprintf("/v1/vaults/%d/claims", vaultID),
			recipientKey, nil, http.StatusConflict)

		var errorResp map[string]interface{}
		require.NoError(t, json.Unmarshal(resp, &errorResp))
		assert.Equal(t, "NO_FUNDS_TO_CLAIM", errorResp["code"])
	})

	t.Run("EntitlementFullyConsumed", func(t *testing.T) {
		resp := ic.makeRequest(t, "GET",
			fmt.Sprintf("/v1/vaults/%d/entitlements/%s", vaultID, recipient),
			"", nil, http.StatusOK)

		var ent map[string]interface{}
		require.NoError(t, json.Unmarshal(resp, &ent))
		assert.Equal(t, float64(0), ent["claimable"])
		assert.Equal(t, ent["settledAmount"], ent["claimedAmount"])
	})
}

// 🔒 INVARIANT: Creator withdrawals are blocked before the lock deadline.
func (ic *InvariantChecker) TestLockDeadlineInvariant(t *testing.T, creatorKey, donorKey string) {
	vaultID := ic.createTestVault(t, creatorKey, "lock deadline test")
	ic.donate(t, donorKey, vaultID, 25)

	resp := ic.makeRequest(t, "POST",
		fmt.Sprintf("/v1/vaults/%d/withdrawals", vaultID),
		creatorKey,
		map[string]interface{}{"amount": 25},
		http.StatusConflict)

	var errorResp map[string]interface{}
	require.NoError(t, json.Unmarshal(resp, &errorResp))
	assert.Equal(t, "LOCK_PERIOD_NOT_EXPIRED", errorResp["code"])

	// pool is untouched by the rejected withdrawal
	v := ic.getVault(t, vaultID)
	assert.Equal(t, float64(25), v["poolTotal"])
}

// 🔒 INVARIANT: Removing an asset from the allow-list never invalidates
// existing vaults, but blocks new vault creation.
func (ic *InvariantChecker) TestAllowListInvariant(t *testing.T, creatorKey, donorKey, asset string) {
	ic.makeRequest(t, "POST", "/v1/admin/assets", ic.operatorKey,
		map[string]interface{}{"asset": asset}, http.StatusOK)

	vaultID := ic.createTestVaultWithAsset(t, creatorKey, "allow-list test", asset)

	ic.makeRequest(t, "DELETE", "/v1/admin/assets/"+asset, ic.operatorKey,
		nil, http.StatusOK)

	t.Run("RemovalBlocksNewVaults", func(t *testing.T) {
		ic.makeRequest(t, "POST", "/v1/vaults", creatorKey,
			map[string]interface{}{
				"message":     "should fail",
				"asset":       asset,
				"lockSeconds": 14 * 24 * 3600,
			}, http.StatusBadRequest)
	})

	t.Run("RemovalNotRetroactive", func(t *testing.T) {
		// the existing vault still accepts donations
		ic.donate(t, donorKey, vaultID, 10)
		v := ic.getVault(t, vaultID)
		assert.Equal(t, float64(10), v["poolTotal"])
	})
}

// Helper methods for API interactions

func (ic *InvariantChecker) createTestVault(t *testing.T, creatorKey, message string) int64 {
	return ic.createTestVaultWithAsset(t, creatorKey, message, "native")
}

func (ic *InvariantChecker) createTestVaultWithAsset(t *testing.T, creatorKey, message, asset string) int64 {
	resp := ic.makeRequest(t, "POST", "/v1/vaults", creatorKey,
		map[string]interface{}{
			"message":     message,
			"asset":       asset,
			"lockSeconds": 14 * 24 * 3600,
		}, http.StatusCreated)

	var vault map[string]interface{}
	require.NoError(t, json.Unmarshal(resp, &vault))
	return int64(vault["vaultId"].(float64))
}

func (ic *InvariantChecker) donate(t *testing.T, donorKey string, vaultID, amount int64) {
	ic.makeRequest(t, "POST",
		fmt.Sprintf("/v1/vaults/%d/donations", vaultID),
		donorKey,
		map[string]interface{}{"amount": amount},
		http.StatusOK)
}

func (ic *InvariantChecker) getVault(t *testing.T, vaultID int64) map[string]interface{} {
	resp := ic.makeRequest(t, "GET",
		fmt.Sprintf("/v1/vaults/%d", vaultID), "", nil, http.StatusOK)

	var vault map[string]interface{}
	require.NoError(t, json.Unmarshal(resp, &vault))
	return vault
}

func (ic *InvariantChecker) makeRequest(t *testing.T, method, path, apiKey string, body interface{}, expectedStatus int) []byte {
	var reqBody []byte
	var err error

	if body != nil {
		reqBody, err = json.Marshal(body)
		require.NoError(t, err)
	}

	req, err := http.NewRequest(method, ic.baseURL+path, bytes.NewBuffer(reqBody))
	require.NoError(t, err)

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}

	resp, err := ic.client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, expectedStatus, resp.StatusCode,
		"Expected status %d but got %d for %s %s", expectedStatus, resp.StatusCode, method, path)

	respBody, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return respBody
}
