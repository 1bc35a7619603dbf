package api

import (
	"context"  // Context for Redis operations
	"errors"   // Sentinel error matching
	"net/http" // HTTP status codes
	"regexp"   // Wallet address validation
	"time"     // Time durations

	"allowance_wallet/internal/audit"    // Audit trail recorder
	"allowance_wallet/internal/domain"   // Importing domain models
	"allowance_wallet/internal/payment"  // Payment verifier
	"allowance_wallet/internal/policy"   // Policy builder and validator
	"allowance_wallet/internal/provider" // Wallet provider client
	"allowance_wallet/internal/store"    // Policy store
	"allowance_wallet/internal/utils"    // Utility functions

	"github.com/gin-gonic/gin"     // Gin web framework
	"github.com/redis/go-redis/v9" // Redis client
	"github.com/sirupsen/logrus"   // Logging library
)

// addressPattern matches a 0x-prefixed, 40-hex-character wallet address
var addressPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

// isValidAddress checks that an address is well-formed before it is used as a key
func isValidAddress(addr string) bool {
	return addressPattern.MatchString(addr) // Return whether it matched
}

// parentPoliciesCacheKey is the Redis key for a parent's policy listing
func parentPoliciesCacheKey(parent string) string {
	return "policies:parent:" + domain.NormalizeAddress(parent)
}

// CreateChildWalletRequest represents a child wallet provisioning request
type CreateChildWalletRequest struct {
	ParentWalletAddress string   `json:"parentWalletAddress" binding:"required"` // Owning parent address
	RestrictToBase      bool     `json:"restrictToBase"`                         // Restrict the child to the Base chain
	MaxUSD              *float64 `json:"maxUsd"`                                 // Optional USD spending ceiling
	PolicyName          string   `json:"policyName"`                             // Optional policy name
	PaymentToken        string   `json:"paymentToken"`                           // Payment token when a backend is configured
	DevMode             bool     `json:"devMode"`                                // Payment bypass when no backend is configured
}

// CreateChildWalletHandler provisions a child wallet: verify payment, build the
// policy, create the wallet at the provider, then store the policy under the
// new wallet's address
func CreateChildWalletHandler(st *store.Store, prov *provider.Client, pay *payment.Verifier, rec *audit.Recorder, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateChildWalletRequest // Bind JSON request to struct
		if err := c.ShouldBindJSON(&req); err != nil {
			// If binding fails, return bad request
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
		// Validate the parent wallet address
		if !isValidAddress(req.ParentWalletAddress) {
			// If malformed, return bad request
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid parent wallet address"})
			return
		}
		// Verify payment before anything else
		if err := pay.Verify(c.Request.Context(), req.PaymentToken, req.DevMode); err != nil {
			// Missing token is a distinct hard failure from a failed verification
			if errors.Is(err, payment.ErrTokenRequired) {
				c.JSON(http.StatusPaymentRequired, gin.H{"error": "Payment token is required"})
				return
			}
			c.JSON(http.StatusPaymentRequired, gin.H{"error": "Payment verification failed"})
			return
		}
		// Build the policy document from the parent-supplied options
		doc := policy.Build(policy.BuildOptions{
			Name:           req.PolicyName,     // Policy name
			RestrictToBase: req.RestrictToBase, // Chain restriction option
			MaxUSD:         req.MaxUSD,         // Optional USD ceiling
		})
		// Create the child wallet at the provider
		wallet, err := prov.CreateWallet(c.Request.Context(), "EVM", domain.NormalizeAddress(req.ParentWalletAddress))
		if err != nil {
			// A missing client configuration is an operator problem, not a provider rejection
			if errors.Is(err, provider.ErrNotConfigured) {
				logrus.Error("Wallet provider client is not configured")
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Wallet provider is not configured"})
				return
			}
			logrus.WithFields(logrus.Fields{
				"parent_address": domain.NormalizeAddress(req.ParentWalletAddress), // Owning parent
				"error":          err.Error(),                                      // Error message
			}).Error("Wallet creation failed") // Log provider failure
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		// Store the policy keyed by the address the provider actually returned
		record, err := st.Put(wallet.Address, req.ParentWalletAddress, doc)
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"wallet_address": wallet.Address, // New child wallet
				"error":          err.Error(),    // Error message
			}).Error("Failed to persist policy") // Log store failure
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to persist policy"})
			return
		}
		// Log successful provisioning
		logrus.WithFields(logrus.Fields{
			"wallet_address": record.WalletAddress,            // New child wallet
			"parent_address": record.ParentAddress,            // Owning parent
			"wallet_id":      wallet.ID,                       // Provider-internal ID
			"type":           domain.EventProvision,           // Event kind
			"timestamp":      time.Now().Format(time.RFC3339), // Current timestamp
		}).Info("Child wallet provisioned")
		// Record the provisioning in the audit trail
		rec.Record(domain.AuditEvent{
			Kind:          domain.EventProvision, // Event kind
			WalletAddress: record.WalletAddress,  // New child wallet
			ParentAddress: record.ParentAddress,  // Owning parent
		})
		// Invalidate the parent's policy listing cache
		ctx := context.Background()                                                   // Context for Redis operations
		_ = utils.DeleteCache(ctx, rdb, parentPoliciesCacheKey(record.ParentAddress)) // Invalidate listing cache
		// Return success response; the ceiling comes from the built document,
		// never re-derived from the request, so the response cannot disagree
		// with the stored policy
		usdLimit := maxValueCeiling(doc)
		c.JSON(http.StatusOK, gin.H{
			"success":       true,
			"walletAddress": record.WalletAddress, // New child wallet address
			"walletId":      wallet.ID,            // Provider-internal wallet ID
			"policy": gin.H{
				"name":           doc.Name,           // Policy name
				"allowedChains":  doc.AllowedChains,  // Allowed chain IDs
				"hasUsdLimit":    usdLimit != nil,    // Whether a ceiling condition was emitted
				"usdLimit":       usdLimit,           // Ceiling value, null when no limit applies
				"restrictToBase": req.RestrictToBase, // Echo of the chain restriction option
			},
		})
	}
}

// ValidateTransactionRequest represents a transaction validation request
type ValidateTransactionRequest struct {
	WalletAddress   string   `json:"walletAddress"`   // Child wallet to validate for
	ChainID         *int64   `json:"chainId"`         // Target chain; pointer so absence is detectable
	To              string   `json:"to"`              // Recipient address
	ValueWei        string   `json:"valueWei"`        // Raw value forwarded to the provider when delegating
	ValueUSD        *float64 `json:"valueUsd"`        // USD value for local evaluation; nil means no value to check
	TransactionType string   `json:"transactionType"` // Action kind
}

// ValidateTransactionHandler looks up the wallet's stored policy and validates
// the proposed transaction. With provider enforcement credentials configured
// the verdict is delegated to the provider; otherwise the local validator runs
// as a stopgap and the response is tagged as simulated.
func ValidateTransactionHandler(st *store.Store, prov *provider.Client, rec *audit.Recorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ValidateTransactionRequest // Bind JSON request to struct
		if err := c.ShouldBindJSON(&req); err != nil {
			// If binding fails, return bad request
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
		// Validate the wallet address
		if !isValidAddress(req.WalletAddress) {
			// If malformed or missing, return bad request
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid wallet address"})
			return
		}
		// The target chain is mandatory
		if req.ChainID == nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "chainId is required"})
			return
		}
		// Look up the stored policy
		record, ok := st.Get(req.WalletAddress)
		if !ok {
			// No stored policy: enforcement falls to the provider. Distinct from
			// a condition failure, never a condition-specific code.
			rec.Record(domain.AuditEvent{
				Kind:          domain.EventValidate,                       // Event kind
				WalletAddress: domain.NormalizeAddress(req.WalletAddress), // Subject wallet
				Allowed:       boolPtr(false),                             // Denied
				Code:          policy.CodeNoPolicy,                        // No-policy code
				ChainID:       *req.ChainID,                               // Requested chain
				ValueUSD:      req.ValueUSD,                               // Requested value
			})
			c.JSON(http.StatusNotFound, gin.H{
				"error":        "No policy found for this wallet",
				"paraEnforced": true, // The provider remains the enforcement authority
			})
			return
		}
		// Delegate to the provider's own enforcement channel when available
		if prov.CanDelegate() {
			outcome, err := prov.SignTransaction(c.Request.Context(), record.WalletAddress, *req.ChainID, req.To, req.ValueWei)
			if err != nil {
				logrus.WithFields(logrus.Fields{
					"wallet_address": record.WalletAddress, // Subject wallet
					"error":          err.Error(),          // Error message
				}).Error("Provider signing failed") // Log provider failure
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
			rec.Record(domain.AuditEvent{
				Kind:          domain.EventValidate, // Event kind
				WalletAddress: record.WalletAddress, // Subject wallet
				Allowed:       &outcome.Allowed,     // Provider verdict
				Code:          outcome.Condition,    // Provider rejection code
				ChainID:       *req.ChainID,         // Requested chain
				ValueUSD:      req.ValueUSD,         // Requested value
			})
			// Relay the provider's verdict
			if !outcome.Allowed {
				c.JSON(http.StatusForbidden, gin.H{
					"allowed":    false,
					"error":      outcome.Error,     // Provider rejection message
					"rejectedBy": "para_policy",     // Enforcement authority tag
					"condition":  outcome.Condition, // Provider rejection code
					"policy":     record.Policy,     // Full policy document for rendering
				})
				return
			}
			c.JSON(http.StatusOK, gin.H{
				"allowed":   true,
				"signature": outcome.Signature, // Provider-produced signature
				"policy":    record.Policy,     // Full policy document for rendering
			})
			return
		}
		// No enforcement channel: run the local stopgap validator
		result := policy.Evaluate(record.Policy, domain.TransactionRequest{
			ChainID:  *req.ChainID,        // Requested chain
			ValueUSD: req.ValueUSD,        // Requested value
			Action:   req.TransactionType, // Requested action kind
		})
		// Record the verdict in the audit trail
		rec.Record(domain.AuditEvent{
			Kind:          domain.EventValidate, // Event kind
			WalletAddress: record.WalletAddress, // Subject wallet
			Allowed:       &result.Allowed,      // Local verdict
			Code:          result.Code,          // Rejection code when denied
			ChainID:       *req.ChainID,         // Requested chain
			ValueUSD:      req.ValueUSD,         // Requested value
		})
		if !result.Allowed {
			// Log the denial
			logrus.WithFields(logrus.Fields{
				"wallet_address": record.WalletAddress, // Subject wallet
				"condition":      result.Code,          // Rejection code
				"chain_id":       *req.ChainID,         // Requested chain
			}).Info("Transaction denied by policy")
			c.JSON(http.StatusForbidden, gin.H{
				"allowed":    false,
				"error":      result.Message, // Human-readable rejection message
				"rejectedBy": "para_policy",  // Shaped like the provider's own rejection
				"condition":  result.Code,    // Stable rejection code
				"policy":     record.Policy,  // Full policy document for rendering
				"simulated":  true,           // Verdict came from the local stopgap, not the provider
			})
			return
		}
		// All present conditions passed
		c.JSON(http.StatusOK, gin.H{
			"allowed":   true,
			"policy":    record.Policy, // Full policy document for rendering
			"simulated": true,          // Verdict came from the local stopgap, not the provider
		})
	}
}

// ListParentPoliciesHandler returns every policy record owned by a parent
func ListParentPoliciesHandler(st *store.Store, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		parent := c.Query("parent") // Owning parent address from the query string
		// Validate the parent address
		if !isValidAddress(parent) {
			// If malformed or missing, return bad request
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid parent wallet address"})
			return
		}
		ctx := context.Background()                // Context for Redis operations
		cacheKey := parentPoliciesCacheKey(parent) // Cache key for this parent's listing
		var cached struct {
			Policies []*domain.WalletPolicyRecord `json:"policies"` // Policy records
			Count    int                          `json:"count"`    // Number of records
		}
		// Try to get from cache
		found, err := utils.GetCache(ctx, rdb, cacheKey, &cached)
		// If found in cache, return it
		if err == nil && found {
			c.JSON(http.StatusOK, gin.H{
				"policies": cached.Policies, // Cached records
				"count":    cached.Count,    // Number of records
				"cached":   true,            // Indicate response is from cache
			})
			return
		}
		records := st.ListByParent(parent) // Read through to the store
		resp := gin.H{
			"policies": records,      // Policy records
			"count":    len(records), // Number of records
			"cached":   false,        // Indicate response is not from cache
		}
		// Cache the result for 60 seconds
		_ = utils.SetCache(ctx, rdb, cacheKey, resp, 60*time.Second)
		c.JSON(http.StatusOK, resp) // Return the listing
	}
}

// DeletePolicyHandler removes a policy record on behalf of its owning parent.
// A missing record and a non-owning parent are deliberately indistinguishable.
func DeletePolicyHandler(st *store.Store, rec *audit.Recorder, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		address := c.Param("address") // Child wallet address from the path
		parent := c.Query("parent")   // Requesting parent address from the query string
		// Validate both addresses
		if !isValidAddress(address) || !isValidAddress(parent) {
			// If malformed or missing, return bad request
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid wallet address"})
			return
		}
		removed, err := st.Delete(address, parent) // Owner-checked delete
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"wallet_address": domain.NormalizeAddress(address), // Subject wallet
				"error":          err.Error(),                      // Error message
			}).Error("Failed to persist policy deletion") // Log store failure
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete policy"})
			return
		}
		// Absent record and non-owning parent both land here
		if !removed {
			c.JSON(http.StatusNotFound, gin.H{"error": "Policy not found"})
			return
		}
		// Log the deletion
		logrus.WithFields(logrus.Fields{
			"wallet_address": domain.NormalizeAddress(address), // Subject wallet
			"parent_address": domain.NormalizeAddress(parent),  // Owning parent
			"type":           domain.EventDelete,               // Event kind
			"timestamp":      time.Now().Format(time.RFC3339),  // Current timestamp
		}).Info("Policy deleted")
		// Record the deletion in the audit trail
		rec.Record(domain.AuditEvent{
			Kind:          domain.EventDelete,               // Event kind
			WalletAddress: domain.NormalizeAddress(address), // Subject wallet
			ParentAddress: domain.NormalizeAddress(parent),  // Owning parent
		})
		// Invalidate the parent's policy listing cache
		ctx := context.Background()                                     // Context for Redis operations
		_ = utils.DeleteCache(ctx, rdb, parentPoliciesCacheKey(parent)) // Invalidate listing cache
		// Return success response
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}

// maxValueCeiling returns the USD ceiling from a policy's max-value condition,
// or nil when the policy carries no such condition
func maxValueCeiling(doc domain.PolicyDocument) *float64 {
	for _, cond := range doc.Conditions {
		if cond.Type == domain.ConditionMaxValue && cond.MaxUSD != nil {
			return cond.MaxUSD
		}
	}
	return nil
}

// boolPtr returns a pointer to b
func boolPtr(b bool) *bool {
	return &b
}
