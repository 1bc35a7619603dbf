package domain

// Transaction action kinds
const (
	ActionTransfer     = "transfer"      // Native or token transfer
	ActionSign         = "sign"          // Message signing
	ActionContractCall = "contract_call" // Arbitrary contract call
	ActionDeploy       = "deploy"        // Contract deployment
)

// TransactionRequest is the validator input. It is transient and never persisted.
type TransactionRequest struct {
	ChainID  int64    `json:"chainId"`            // Target chain
	ValueUSD *float64 `json:"valueUsd,omitempty"` // USD value; nil means no value to check
	Action   string   `json:"transactionType"`    // One of the Action* constants
}
