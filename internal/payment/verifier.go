package payment

import (
	"bytes"         // Request body buffer
	"context"       // Request-scoped cancellation
	"encoding/json" // Wire encoding
	"errors"        // Sentinel errors
	"fmt"           // Error wrapping
	"net/http"      // HTTP client
	"time"          // Client timeout
)

// ErrTokenRequired means a payment backend is configured but the caller sent
// no payment token. This is a hard failure distinct from a failed verification.
var ErrTokenRequired = errors.New("payment token is required")

// ErrVerificationFailed means the payment backend rejected the token
var ErrVerificationFailed = errors.New("payment verification failed")

// Verifier checks payment tokens against a configured payment backend. When no
// backend is configured, callers may bypass verification via a dev-mode flag.
type Verifier struct {
	endpoint   string       // Payment backend verification URL; empty means unconfigured
	apiKey     string       // Payment backend credential
	httpClient *http.Client // Shared client with a bounded timeout
}

// New creates a verifier. An empty endpoint leaves it unconfigured.
func New(endpoint, apiKey string) *Verifier {
	return &Verifier{
		endpoint:   endpoint,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// Configured reports whether a payment backend is wired up
func (v *Verifier) Configured() bool {
	return v.endpoint != ""
}

// Verify checks a payment token with the backend. With no backend configured,
// devMode permits bypass; without devMode the request is rejected outright.
func (v *Verifier) Verify(ctx context.Context, token string, devMode bool) error {
	if !v.Configured() {
		if devMode {
			return nil // Explicit bypass for local development
		}
		return ErrVerificationFailed
	}
	if token == "" {
		return ErrTokenRequired // Mandatory once a backend exists
	}
	body, err := json.Marshal(map[string]string{"token": token})
	if err != nil {
		return fmt.Errorf("encode payment verification request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build payment verification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+v.apiKey)
	resp, err := v.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("payment backend unreachable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return ErrVerificationFailed
	}
	var result struct {
		Success bool `json:"success"` // Backend verdict
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("decode payment verification response: %w", err)
	}
	if !result.Success {
		return ErrVerificationFailed
	}
	return nil
}
