package provider

import (
	"bytes"         // Request body buffer
	"context"       // Request-scoped cancellation
	"encoding/json" // Wire encoding
	"errors"        // Sentinel errors
	"fmt"           // Error wrapping
	"io"            // Response body reading
	"net/http"      // HTTP client
	"regexp"        // Returned-address validation
	"time"          // Client timeout
)

// ErrNotConfigured means the provider client has no API key. Operators need to
// tell this configuration problem apart from a business-logic rejection.
var ErrNotConfigured = errors.New("wallet provider client is not configured")

// addressPattern matches a well-formed 0x-prefixed, 40-hex-character address
var addressPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

// Wallet is the provider's view of a created wallet
type Wallet struct {
	Address string `json:"address"` // On-chain address, primary key for the policy store
	ID      string `json:"id"`      // Provider-internal wallet ID
}

// SignOutcome is the provider's verdict on a sign-transaction request
type SignOutcome struct {
	Allowed   bool   `json:"allowed"`             // Whether the provider signed
	Signature string `json:"signature,omitempty"` // Hex signature when allowed
	Error     string `json:"error,omitempty"`     // Rejection message when denied
	Condition string `json:"condition,omitempty"` // Provider-side rejection code when denied
}

// Client talks to the wallet provider's REST API. A zero API key renders the
// client unconfigured; every call then fails with ErrNotConfigured.
type Client struct {
	baseURL    string       // Provider API base URL
	apiKey     string       // API key for wallet creation
	signingKey string       // Credential for the provider's enforcement channel; empty means local stopgap enforcement
	httpClient *http.Client // Shared client with a bounded timeout
}

// New creates a provider client. signingKey may be empty: validation then falls
// back to the local stopgap validator instead of delegating to the provider.
func New(baseURL, apiKey, signingKey string) *Client {
	return &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		signingKey: signingKey,
		httpClient: &http.Client{Timeout: 15 * time.Second}, // Bounded, never hang on the provider
	}
}

// Configured reports whether wallet creation is possible
func (c *Client) Configured() bool {
	return c.apiKey != "" && c.baseURL != ""
}

// CanDelegate reports whether the provider's own enforcement channel is available
func (c *Client) CanDelegate() bool {
	return c.Configured() && c.signingKey != ""
}

// CreateWallet provisions a new wallet of the given kind for the identity seed
// and returns its address and provider ID. The address is validated before it
// is returned so callers never store a policy under a malformed key.
func (c *Client) CreateWallet(ctx context.Context, kind, identitySeed string) (*Wallet, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}
	body, err := json.Marshal(map[string]string{"type": kind, "identity": identitySeed})
	if err != nil {
		return nil, fmt.Errorf("encode create-wallet request: %w", err)
	}
	var wallet Wallet
	if err := c.post(ctx, "/wallets", body, &wallet); err != nil {
		return nil, err
	}
	// Never hand back an address the policy store cannot safely key on
	if !addressPattern.MatchString(wallet.Address) {
		return nil, fmt.Errorf("provider returned malformed wallet address %q", wallet.Address)
	}
	if wallet.ID == "" {
		return nil, errors.New("provider returned wallet without an id")
	}
	return &wallet, nil
}

// SignTransaction forwards a transaction to the provider's enforcement channel
// and relays its allow/deny verdict
func (c *Client) SignTransaction(ctx context.Context, walletAddress string, chainID int64, to string, valueWei string) (*SignOutcome, error) {
	if !c.CanDelegate() {
		return nil, ErrNotConfigured
	}
	body, err := json.Marshal(map[string]any{
		"walletAddress": walletAddress, // Wallet to sign with
		"chainId":       chainID,       // Target chain
		"to":            to,            // Recipient
		"valueWei":      valueWei,      // Raw value, provider-side interpretation
	})
	if err != nil {
		return nil, fmt.Errorf("encode sign-transaction request: %w", err)
	}
	var outcome SignOutcome
	if err := c.post(ctx, "/transactions/sign", body, &outcome); err != nil {
		return nil, err
	}
	return &outcome, nil
}

// post sends an authenticated JSON request and decodes the JSON response into out
func (c *Client) post(ctx context.Context, path string, body []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build provider request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("wallet provider unreachable: %w", err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read provider response: %w", err)
	}
	// Non-2xx means the provider rejected the request; distinct from ErrNotConfigured
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("wallet provider rejected request: status %d: %s", resp.StatusCode, string(data))
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode provider response: %w", err)
	}
	return nil
}
