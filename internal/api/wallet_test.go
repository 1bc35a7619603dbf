package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"

	"allowance_wallet/internal/audit"
	"allowance_wallet/internal/payment"
	"allowance_wallet/internal/provider"
	"allowance_wallet/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testParent = "0x1111111111111111111111111111111111111111"

func init() {
	gin.SetMode(gin.TestMode)
}

// newProviderStub returns a stub wallet provider that issues a distinct
// well-formed address per create-wallet call
func newProviderStub() *httptest.Server {
	var counter atomic.Int64
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := counter.Add(1)
		json.NewEncoder(w).Encode(map[string]string{
			"address": fmt.Sprintf("0x%040x", n),
			"id":      fmt.Sprintf("wallet-%d", n),
		})
	}))
}

// newTestRouter wires the wallet routes the way cmd/server does, with no
// Redis, no audit database, and an unconfigured payment backend
func newTestRouter(t *testing.T, providerURL string) *gin.Engine {
	t.Helper()
	st := store.New(filepath.Join(t.TempDir(), "policies.json"))
	prov := provider.New(providerURL, "test-key", "")
	pay := payment.New("", "")
	rec := audit.New(nil)

	r := gin.New()
	r.POST("/wallet/child", CreateChildWalletHandler(st, prov, pay, rec, nil))
	r.POST("/wallet/validate", ValidateTransactionHandler(st, prov, rec))
	r.GET("/wallet/policies", ListParentPoliciesHandler(st, nil))
	r.DELETE("/wallet/policy/:address", DeletePolicyHandler(st, rec, nil))
	return r
}

func doJSON(t *testing.T, r *gin.Engine, method, path string, body any) (int, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &decoded), "every response must be valid JSON")
	return w.Code, decoded
}

func createWallet(t *testing.T, r *gin.Engine, maxUSD float64) string {
	t.Helper()
	code, resp := doJSON(t, r, http.MethodPost, "/wallet/child", map[string]any{
		"parentWalletAddress": testParent,
		"restrictToBase":      true,
		"maxUsd":              maxUSD,
		"devMode":             true,
	})
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, true, resp["success"])
	addr, _ := resp["walletAddress"].(string)
	require.NotEmpty(t, addr)
	return addr
}

func TestCreateChildWallet(t *testing.T) {
	srv := newProviderStub()
	defer srv.Close()
	r := newTestRouter(t, srv.URL)

	code, resp := doJSON(t, r, http.MethodPost, "/wallet/child", map[string]any{
		"parentWalletAddress": testParent,
		"restrictToBase":      true,
		"maxUsd":              15,
		"policyName":          "Weekly allowance",
		"devMode":             true,
	})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, resp["success"])
	assert.NotEmpty(t, resp["walletAddress"])
	assert.NotEmpty(t, resp["walletId"])

	pol, ok := resp["policy"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Weekly allowance", pol["name"])
	assert.Equal(t, []any{float64(8453)}, pol["allowedChains"])
	assert.Equal(t, true, pol["hasUsdLimit"])
	assert.Equal(t, float64(15), pol["usdLimit"])
	assert.Equal(t, true, pol["restrictToBase"])
}

func TestCreateChildWalletLimitFieldsTrackTheBuiltPolicy(t *testing.T) {
	srv := newProviderStub()
	defer srv.Close()
	r := newTestRouter(t, srv.URL)

	// A ceiling the builder discards (not finite-positive) must not be
	// reported back as a limit
	for _, maxUSD := range []any{nil, float64(0), float64(-5)} {
		body := map[string]any{
			"parentWalletAddress": testParent,
			"devMode":             true,
		}
		if maxUSD != nil {
			body["maxUsd"] = maxUSD
		}
		code, resp := doJSON(t, r, http.MethodPost, "/wallet/child", body)
		require.Equal(t, http.StatusOK, code)
		pol, ok := resp["policy"].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, false, pol["hasUsdLimit"], "maxUsd %v", maxUSD)
		// The field is always present, null when no limit applies
		limit, present := pol["usdLimit"]
		assert.True(t, present)
		assert.Nil(t, limit)
	}
}

func TestCreateChildWalletRejectsMalformedParent(t *testing.T) {
	srv := newProviderStub()
	defer srv.Close()
	r := newTestRouter(t, srv.URL)

	for _, parent := range []string{"", "0x123", "not-an-address", "1111111111111111111111111111111111111111"} {
		code, resp := doJSON(t, r, http.MethodPost, "/wallet/child", map[string]any{
			"parentWalletAddress": parent,
			"devMode":             true,
		})
		assert.Equal(t, http.StatusBadRequest, code, "parent %q", parent)
		assert.NotEmpty(t, resp["error"])
	}
}

func TestCreateChildWalletRequiresPayment(t *testing.T) {
	srv := newProviderStub()
	defer srv.Close()
	r := newTestRouter(t, srv.URL)

	// No payment backend configured and no devMode bypass
	code, resp := doJSON(t, r, http.MethodPost, "/wallet/child", map[string]any{
		"parentWalletAddress": testParent,
	})
	assert.Equal(t, http.StatusPaymentRequired, code)
	assert.NotEmpty(t, resp["error"])
}

func TestCreateChildWalletProviderNotConfigured(t *testing.T) {
	r := newTestRouter(t, "") // Provider client left unconfigured

	code, resp := doJSON(t, r, http.MethodPost, "/wallet/child", map[string]any{
		"parentWalletAddress": testParent,
		"devMode":             true,
	})
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.Equal(t, "Wallet provider is not configured", resp["error"])
}

func TestValidateTransactionRejectsBadInput(t *testing.T) {
	srv := newProviderStub()
	defer srv.Close()
	r := newTestRouter(t, srv.URL)

	// Malformed wallet address
	code, _ := doJSON(t, r, http.MethodPost, "/wallet/validate", map[string]any{
		"walletAddress": "nope",
		"chainId":       8453,
	})
	assert.Equal(t, http.StatusBadRequest, code)

	// Missing chainId
	code, resp := doJSON(t, r, http.MethodPost, "/wallet/validate", map[string]any{
		"walletAddress": testParent,
	})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "chainId is required", resp["error"])
}

func TestValidateTransactionNoPolicy(t *testing.T) {
	srv := newProviderStub()
	defer srv.Close()
	r := newTestRouter(t, srv.URL)

	code, resp := doJSON(t, r, http.MethodPost, "/wallet/validate", map[string]any{
		"walletAddress":   "0x9999999999999999999999999999999999999999",
		"chainId":         8453,
		"transactionType": "transfer",
	})
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, true, resp["paraEnforced"])
	// Never a condition-specific code for a missing record
	assert.NotContains(t, resp, "condition")
}

func TestValidateTransactionEndToEnd(t *testing.T) {
	srv := newProviderStub()
	defer srv.Close()
	r := newTestRouter(t, srv.URL)

	// Two policies under different addresses
	walletA := createWallet(t, r, 15)
	walletB := createWallet(t, r, 5)
	require.NotEqual(t, walletA, walletB)

	// B: value 10 on an allowed chain exceeds its $5 ceiling
	code, resp := doJSON(t, r, http.MethodPost, "/wallet/validate", map[string]any{
		"walletAddress":   walletB,
		"chainId":         8453,
		"valueUsd":        10,
		"transactionType": "transfer",
	})
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, false, resp["allowed"])
	assert.Equal(t, "value_limit", resp["condition"])
	assert.Equal(t, "para_policy", resp["rejectedBy"])
	assert.Equal(t, true, resp["simulated"])
	assert.NotNil(t, resp["policy"])

	// A: chain 1 is outside the restricted-to-Base allowlist
	code, resp = doJSON(t, r, http.MethodPost, "/wallet/validate", map[string]any{
		"walletAddress":   walletA,
		"chainId":         1,
		"valueUsd":        5,
		"transactionType": "transfer",
	})
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "chain_restriction", resp["condition"])

	// A: value 10 on Base is inside the $15 ceiling
	code, resp = doJSON(t, r, http.MethodPost, "/wallet/validate", map[string]any{
		"walletAddress":   walletA,
		"chainId":         8453,
		"valueUsd":        10,
		"transactionType": "transfer",
	})
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, resp["allowed"])
	assert.Equal(t, true, resp["simulated"])
	assert.NotNil(t, resp["policy"])

	// A: contract deployment is always blocked
	code, resp = doJSON(t, r, http.MethodPost, "/wallet/validate", map[string]any{
		"walletAddress":   walletA,
		"chainId":         8453,
		"transactionType": "deploy",
	})
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "action_restriction", resp["condition"])
}

func TestValidateTransactionLookupIsCaseInsensitive(t *testing.T) {
	srv := newProviderStub()
	defer srv.Close()
	r := newTestRouter(t, srv.URL)

	wallet := createWallet(t, r, 15)
	code, resp := doJSON(t, r, http.MethodPost, "/wallet/validate", map[string]any{
		"walletAddress":   "0x" + upperHex(wallet[2:]),
		"chainId":         8453,
		"transactionType": "transfer",
	})
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, resp["allowed"])
}

// upperHex uppercases the hex portion of an address
func upperHex(s string) string {
	out := []byte(s)
	for i, b := range out {
		if b >= 'a' && b <= 'f' {
			out[i] = b - ('a' - 'A')
		}
	}
	return string(out)
}

func TestListParentPolicies(t *testing.T) {
	srv := newProviderStub()
	defer srv.Close()
	r := newTestRouter(t, srv.URL)

	// Invalid parent address
	code, _ := doJSON(t, r, http.MethodGet, "/wallet/policies?parent=nope", nil)
	assert.Equal(t, http.StatusBadRequest, code)

	wallet := createWallet(t, r, 15)

	// Round-trip: exactly one record for the owning parent
	code, resp := doJSON(t, r, http.MethodGet, "/wallet/policies?parent="+testParent, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(1), resp["count"])
	policies, ok := resp["policies"].([]any)
	require.True(t, ok)
	require.Len(t, policies, 1)
	rec := policies[0].(map[string]any)
	assert.Equal(t, wallet, rec["walletAddress"])

	// Other parents see nothing
	code, resp = doJSON(t, r, http.MethodGet, "/wallet/policies?parent=0x2222222222222222222222222222222222222222", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(0), resp["count"])
}

func TestDeletePolicy(t *testing.T) {
	srv := newProviderStub()
	defer srv.Close()
	r := newTestRouter(t, srv.URL)

	wallet := createWallet(t, r, 15)

	// Non-owning parent cannot delete
	code, _ := doJSON(t, r, http.MethodDelete, "/wallet/policy/"+wallet+"?parent=0x2222222222222222222222222222222222222222", nil)
	assert.Equal(t, http.StatusNotFound, code)

	// The record survived
	code, resp := doJSON(t, r, http.MethodPost, "/wallet/validate", map[string]any{
		"walletAddress":   wallet,
		"chainId":         8453,
		"transactionType": "transfer",
	})
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, true, resp["allowed"])

	// The owning parent can delete
	code, resp = doJSON(t, r, http.MethodDelete, "/wallet/policy/"+wallet+"?parent="+testParent, nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, resp["success"])

	// A subsequent validation finds no policy
	code, resp = doJSON(t, r, http.MethodPost, "/wallet/validate", map[string]any{
		"walletAddress":   wallet,
		"chainId":         8453,
		"transactionType": "transfer",
	})
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, true, resp["paraEnforced"])
}

func TestValidateDelegatesWhenSigningKeyPresent(t *testing.T) {
	// Provider stub that creates wallets and denies signing
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/wallets":
			json.NewEncoder(w).Encode(map[string]string{
				"address": "0xabcdef0123456789abcdef0123456789abcdef01",
				"id":      "wallet-1",
			})
		case "/transactions/sign":
			json.NewEncoder(w).Encode(map[string]any{
				"allowed":   false,
				"error":     "Chain 1 is not allowed. Allowed chains: 8453",
				"condition": "chain_restriction",
			})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	st := store.New(filepath.Join(t.TempDir(), "policies.json"))
	prov := provider.New(srv.URL, "test-key", "signing-key")
	rec := audit.New(nil)
	r := gin.New()
	r.POST("/wallet/child", CreateChildWalletHandler(st, prov, payment.New("", ""), rec, nil))
	r.POST("/wallet/validate", ValidateTransactionHandler(st, prov, rec))

	code, resp := doJSON(t, r, http.MethodPost, "/wallet/child", map[string]any{
		"parentWalletAddress": testParent,
		"devMode":             true,
	})
	require.Equal(t, http.StatusOK, code)
	wallet := resp["walletAddress"].(string)

	code, resp = doJSON(t, r, http.MethodPost, "/wallet/validate", map[string]any{
		"walletAddress":   wallet,
		"chainId":         1,
		"transactionType": "transfer",
	})
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "chain_restriction", resp["condition"])
	assert.Equal(t, "para_policy", resp["rejectedBy"])
	// A delegated verdict is never tagged as simulated
	assert.NotContains(t, resp, "simulated")
}
