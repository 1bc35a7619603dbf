package domain

import (
	"fmt"     // Error formatting
	"strings" // Address normalization
	"time"    // Record timestamps
)

// PolicySchemaVersion is the fixed schema version the wallet provider expects
const PolicySchemaVersion = "1.0"

// Condition types
const (
	ConditionChainAllowlist = "chain-allowlist" // Requested chain must be in the allowed set
	ConditionMaxValue       = "max-value"       // USD value must not exceed the ceiling
	ConditionBlockedAction  = "blocked-action"  // Requested action must not equal the blocked one
)

// Condition operators (each condition type has exactly one valid operator)
const (
	OperatorMemberOf = "member-of"          // chain-allowlist
	OperatorLTE      = "less-than-or-equal" // max-value
	OperatorNotEqual = "not-equal"          // blocked-action
)

// PolicyCondition is one constraint inside a policy. Only the field matching
// Type carries meaning; the others stay at their zero value.
type PolicyCondition struct {
	Type     string   `json:"type"`             // One of the Condition* constants
	Operator string   `json:"operator"`         // Must match Type
	Chains   []int64  `json:"chains,omitempty"` // chain-allowlist: allowed chain IDs
	MaxUSD   *float64 `json:"maxUsd,omitempty"` // max-value: USD ceiling
	Action   string   `json:"action,omitempty"` // blocked-action: blocked action tag
}

// ChainAllowlistCondition builds a chain-allowlist condition
func ChainAllowlistCondition(chains []int64) PolicyCondition {
	return PolicyCondition{Type: ConditionChainAllowlist, Operator: OperatorMemberOf, Chains: chains}
}

// MaxValueCondition builds a max-value condition with the given USD ceiling
func MaxValueCondition(maxUSD float64) PolicyCondition {
	return PolicyCondition{Type: ConditionMaxValue, Operator: OperatorLTE, MaxUSD: &maxUSD}
}

// BlockedActionCondition builds a blocked-action condition for the given action tag
func BlockedActionCondition(action string) PolicyCondition {
	return PolicyCondition{Type: ConditionBlockedAction, Operator: OperatorNotEqual, Action: action}
}

// Validate checks that the operator matches the condition type
func (c PolicyCondition) Validate() error {
	switch c.Type {
	case ConditionChainAllowlist:
		if c.Operator != OperatorMemberOf {
			return fmt.Errorf("condition %s requires operator %s", c.Type, OperatorMemberOf)
		}
	case ConditionMaxValue:
		if c.Operator != OperatorLTE {
			return fmt.Errorf("condition %s requires operator %s", c.Type, OperatorLTE)
		}
	case ConditionBlockedAction:
		if c.Operator != OperatorNotEqual {
			return fmt.Errorf("condition %s requires operator %s", c.Type, OperatorNotEqual)
		}
	default:
		return fmt.Errorf("unknown condition type %q", c.Type)
	}
	return nil
}

// PolicyScope is an informational consent grouping shown in the provider UI.
// Scopes are never evaluated by the validator.
type PolicyScope struct {
	Name     string   `json:"name"`     // Scope name shown to the user
	Required bool     `json:"required"` // Whether consent is mandatory
	Actions  []string `json:"actions"`  // Permitted action types in this scope
}

// PolicyDocument is the versioned bundle of conditions presented to the
// wallet provider and the UI
type PolicyDocument struct {
	SchemaVersion string            `json:"schemaVersion"` // Always PolicySchemaVersion
	Name          string            `json:"name"`          // Human-readable policy name
	Description   string            `json:"description"`   // Human-readable description
	AllowedChains []int64           `json:"allowedChains"` // Non-empty, consistent with any chain condition
	Conditions    []PolicyCondition `json:"conditions"`    // Ordered global conditions
	Scopes        []PolicyScope     `json:"scopes"`        // Informational only
}

// WalletPolicyRecord is the persisted unit: one per normalized child wallet address
type WalletPolicyRecord struct {
	WalletAddress string         `json:"walletAddress"` // Child wallet address, lowercased (primary key)
	ParentAddress string         `json:"parentAddress"` // Owning parent address, lowercased
	Policy        PolicyDocument `json:"policy"`        // The policy document
	CreatedAt     time.Time      `json:"createdAt"`     // Set once at provisioning time
	UpdatedAt     time.Time      `json:"updatedAt"`     // Bumped on every overwrite
}

// NormalizeAddress lowercases a wallet address so lookups are case-insensitive
func NormalizeAddress(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}
