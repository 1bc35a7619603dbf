package policy

import (
	"fmt"     // Rejection message formatting
	"strconv" // Chain ID formatting
	"strings" // Allowed-chain list rendering

	"allowance_wallet/internal/domain" // Policy domain models
)

// Rejection codes returned by Evaluate. Codes are stable and machine-checkable;
// messages are for humans and may change.
const (
	CodeChainRestriction  = "chain_restriction"  // Requested chain not in the allowed set
	CodeActionRestriction = "action_restriction" // Requested action is blocked
	CodeValueLimit        = "value_limit"        // Requested USD value exceeds the ceiling
	CodeNoPolicy          = "no_policy"          // No stored policy for the wallet (set by callers, never by Evaluate)
)

// Result is the outcome of evaluating a transaction against a policy
type Result struct {
	Allowed   bool                    // Verdict
	Code      string                  // Rejection code when denied, empty when allowed
	Message   string                  // Human-readable rejection message
	Condition *domain.PolicyCondition // The condition that denied, nil when allowed
}

// Evaluate checks a proposed transaction against a policy document and returns
// an allow/deny verdict. Conditions are checked by kind in a fixed order
// (chain, then action, then value) and evaluation short-circuits on the first
// failure; multiple violations are never aggregated. An absent condition kind
// means no constraint of that kind. Value conditions are checked only when the
// request carries a USD value; a value exactly equal to the ceiling passes.
func Evaluate(policy domain.PolicyDocument, req domain.TransactionRequest) Result {
	// Kinds are mutually exclusive in what they check, so evaluation order is
	// fixed here rather than taken from condition order in the document
	for _, kind := range []string{domain.ConditionChainAllowlist, domain.ConditionBlockedAction, domain.ConditionMaxValue} {
		for i := range policy.Conditions {
			cond := policy.Conditions[i]
			if cond.Type != kind {
				continue
			}
			if r := checkCondition(cond, req); r != nil {
				return *r // First failure wins
			}
		}
	}
	return Result{Allowed: true}
}

// checkCondition evaluates a single condition, returning nil when it passes
func checkCondition(cond domain.PolicyCondition, req domain.TransactionRequest) *Result {
	switch cond.Type {
	case domain.ConditionChainAllowlist:
		for _, id := range cond.Chains {
			if id == req.ChainID {
				return nil // Chain is allowed
			}
		}
		return &Result{
			Code:      CodeChainRestriction,
			Message:   fmt.Sprintf("Chain %d is not allowed. Allowed chains: %s", req.ChainID, formatChains(cond.Chains)),
			Condition: &cond,
		}
	case domain.ConditionBlockedAction:
		if req.Action != cond.Action {
			return nil // Action differs from the blocked one
		}
		return &Result{
			Code:      CodeActionRestriction,
			Message:   fmt.Sprintf("Action %q is blocked by policy", req.Action),
			Condition: &cond,
		}
	case domain.ConditionMaxValue:
		// Only checked when both the ceiling and a request value are present
		if cond.MaxUSD == nil || req.ValueUSD == nil {
			return nil
		}
		if *req.ValueUSD <= *cond.MaxUSD {
			return nil // At or under the ceiling
		}
		return &Result{
			Code:      CodeValueLimit,
			Message:   fmt.Sprintf("Value $%g exceeds $%g limit", *req.ValueUSD, *cond.MaxUSD),
			Condition: &cond,
		}
	}
	return nil // Unknown kinds impose no constraint
}

// formatChains renders a chain ID list as "1, 8453"
func formatChains(chains []int64) string {
	parts := make([]string, len(chains))
	for i, id := range chains {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ", ")
}
