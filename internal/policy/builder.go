package policy

import (
	"fmt"  // Description formatting
	"math" // Finite-number check for the USD ceiling

	"allowance_wallet/internal/domain" // Policy domain models
)

// BaseChainID is the designated low-risk chain used when a parent restricts
// the child wallet to a single chain
const BaseChainID int64 = 8453

// SupportedChains is the full chain set offered when no chain restriction is requested
var SupportedChains = []int64{1, BaseChainID, 137, 42161}

// BuildOptions are the parent-supplied knobs for policy construction
type BuildOptions struct {
	Name           string   // Policy name; defaults to "Allowance Policy" when empty
	RestrictToBase bool     // Restrict the child wallet to the Base chain only
	MaxUSD         *float64 // Optional USD spending ceiling; nil means no limit
}

// Build turns parent-supplied options into a policy document. Construction is
// deterministic: the same options always produce the same document. A
// blocked-action condition for contract deployment is always appended and
// cannot be disabled by the caller.
func Build(opts BuildOptions) domain.PolicyDocument {
	name := opts.Name // Policy name
	if name == "" {
		name = "Allowance Policy" // Default name
	}
	chains := SupportedChains // Full supported set by default
	if opts.RestrictToBase {
		chains = []int64{BaseChainID} // Single low-risk chain
	}
	// Chain condition always comes first
	conditions := []domain.PolicyCondition{domain.ChainAllowlistCondition(chains)}
	// A max-value condition is emitted only for a finite, positive ceiling
	if opts.MaxUSD != nil && !math.IsNaN(*opts.MaxUSD) && !math.IsInf(*opts.MaxUSD, 0) && *opts.MaxUSD > 0 {
		conditions = append(conditions, domain.MaxValueCondition(*opts.MaxUSD))
	}
	// Contract deployment is always blocked, independent of UI cooperation
	conditions = append(conditions, domain.BlockedActionCondition(domain.ActionDeploy))
	return domain.PolicyDocument{
		SchemaVersion: domain.PolicySchemaVersion, // Fixed schema version literal
		Name:          name,
		Description:   fmt.Sprintf("Parent-managed allowance policy (%d allowed chains)", len(chains)),
		AllowedChains: chains, // Must stay consistent with the chain condition
		Conditions:    conditions,
		// Scopes are informational consent groupings for the provider UI;
		// the validator never evaluates them
		Scopes: []domain.PolicyScope{
			{Name: "Account access", Required: true, Actions: []string{domain.ActionSign}},
			{Name: "Transaction signing", Required: false, Actions: []string{domain.ActionTransfer, domain.ActionContractCall}},
		},
	}
}
