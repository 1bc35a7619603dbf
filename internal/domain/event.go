package domain

// Audit event kinds
const (
	EventProvision = "provision" // Child wallet created and policy stored
	EventValidate  = "validate"  // Transaction validated against a policy
	EventDelete    = "delete"    // Policy record deleted by its owning parent
)

// AuditEvent Model (append-only trail of provisioning and validation decisions)
type AuditEvent struct {
	ID            uint     `gorm:"primaryKey" json:"id"`             // Primary key
	Kind          string   `gorm:"index" json:"kind"`                // Event kind: provision, validate, delete
	WalletAddress string   `gorm:"index" json:"wallet_address"`      // Child wallet address, lowercased
	ParentAddress string   `json:"parent_address"`                   // Owning parent address, lowercased (empty for validate)
	Allowed       *bool    `json:"allowed,omitempty"`                // Validation verdict (nil for non-validate events)
	Code          string   `json:"code,omitempty"`                   // Rejection code when denied
	ChainID       int64    `json:"chain_id,omitempty"`               // Requested chain (validate only)
	ValueUSD      *float64 `json:"value_usd,omitempty"`              // Requested USD value (validate only)
	CreatedAt     int64    `gorm:"autoCreateTime:milli" json:"created_at"` // Timestamp of creation in milliseconds
}
