package api

import (
	"context"  // Context for Redis operations
	"net/http" // HTTP status codes
	"strconv"  // String conversion
	"strings"  // String manipulation
	"time"     // Time durations

	"allowance_wallet/internal/domain" // Importing domain models
	"allowance_wallet/internal/store"  // Policy store
	"allowance_wallet/internal/utils"  // Utility functions

	"github.com/gin-gonic/gin"     // Gin web framework
	"github.com/redis/go-redis/v9" // Redis client
	"gorm.io/gorm"                 // GORM ORM library
)

// PolicySummary is the redacted view of a stored record returned to admins
type PolicySummary struct {
	WalletAddress string    `json:"wallet_address"` // Child wallet address
	ParentAddress string    `json:"parent_address"` // Owning parent address
	PolicyName    string    `json:"policy_name"`    // Policy name
	AllowedChains []int64   `json:"allowed_chains"` // Allowed chain IDs
	Conditions    int       `json:"conditions"`     // Number of conditions
	CreatedAt     time.Time `json:"created_at"`     // Record creation time
	UpdatedAt     time.Time `json:"updated_at"`     // Last update time
}

// ListAllPoliciesHandler returns a redacted listing of every stored policy
// record. Diagnostics only; the route sits behind the admin JWT gate.
func ListAllPoliciesHandler(st *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		records := st.ListAll() // Every stored record
		// Map records to the redacted response format
		resp := make([]PolicySummary, len(records))
		for i, r := range records {
			resp[i] = PolicySummary{
				WalletAddress: r.WalletAddress,          // Child wallet address
				ParentAddress: r.ParentAddress,          // Owning parent address
				PolicyName:    r.Policy.Name,            // Policy name
				AllowedChains: r.Policy.AllowedChains,   // Allowed chain IDs
				Conditions:    len(r.Policy.Conditions), // Number of conditions
				CreatedAt:     r.CreatedAt,              // Record creation time
				UpdatedAt:     r.UpdatedAt,              // Last update time
			}
		}
		// Return the listing
		c.JSON(http.StatusOK, gin.H{"policies": resp, "count": len(resp)})
	}
}

// ListEventsHandler returns audit events, with optional filtering by wallet,
// kind, or date
func ListEventsHandler(db *gorm.DB, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		// The audit trail is optional; without a database there is nothing to list
		if db == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Audit trail is not configured"})
			return
		}
		ctx := context.Background()
		// Build cache key from all query params
		var keyParts []string // Parts of the cache key
		// Append each query parameter to the key parts
		for _, k := range []string{"wallet", "kind", "from", "to", "page", "page_size"} {
			keyParts = append(keyParts, k+"="+c.DefaultQuery(k, "")) // Append key-value pair
		}
		// Join key parts to form the final cache key
		cacheKey := "admin:events:" + strings.Join(keyParts, ":")
		var cached struct {
			Events     []domain.AuditEvent `json:"events"`      // List of events
			Page       int                 `json:"page"`        // Current page
			PageSize   int                 `json:"page_size"`   // Page size
			Total      int64               `json:"total"`       // Total number of events
			TotalPages int                 `json:"total_pages"` // Total pages
		}
		// If cached data found, return it
		found, err := utils.GetCache(ctx, rdb, cacheKey, &cached)
		if err == nil && found {
			c.JSON(http.StatusOK, gin.H{
				"events":      cached.Events,     // List of events
				"page":        cached.Page,       // Current page
				"page_size":   cached.PageSize,   // Page size
				"total":       cached.Total,      // Total number of events
				"total_pages": cached.TotalPages, // Total pages
				"cached":      true,              // Indicate response is from cache
			})
			return
		}
		page := 1      // Default page number
		pageSize := 20 // Default page size
		// Check and set page number and size from query params
		if p := c.Query("page"); p != "" {
			// If valid, set page number
			if v, err := strconv.Atoi(p); err == nil && v > 0 {
				page = v // Set page if valid
			}
		}
		// Check and set page size within limits
		if ps := c.Query("page_size"); ps != "" {
			// If valid, set page size
			if v, err := strconv.Atoi(ps); err == nil && v > 0 && v <= 100 {
				pageSize = v // Set page size
			}
		}
		offset := (page - 1) * pageSize         // Calculate offset for pagination
		query := db.Model(&domain.AuditEvent{}) // Start building the query
		if wallet := c.Query("wallet"); wallet != "" {
			query = query.Where("wallet_address = ?", domain.NormalizeAddress(wallet)) // Filter by wallet
		}
		if kind := c.Query("kind"); kind != "" {
			query = query.Where("kind = ?", kind) // Filter by event kind
		}
		if from := c.Query("from"); from != "" {
			query = query.Where("created_at >= ?", from) // Filter by start date
		}
		if to := c.Query("to"); to != "" {
			query = query.Where("created_at <= ?", to) // Filter by end date
		}
		var total int64 // Total event count
		// Get total count of events matching the filters
		if err := query.Count(&total).Error; err != nil {
			// If error occurs, return internal server error
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to count events"})
			return
		}
		var events []domain.AuditEvent // Slice to hold events
		// Fetch paginated events with filters applied
		if err := query.Order("created_at desc").Offset(offset).Limit(pageSize).Find(&events).Error; err != nil {
			// If error occurs, return internal server error
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch events"})
			return
		}
		// The total number of pages
		totalPages := (int(total) + pageSize - 1) / pageSize
		respData := gin.H{
			"events":      events,     // List of events
			"page":        page,       // Current page
			"page_size":   pageSize,   // Page size
			"total":       total,      // Total number of events
			"total_pages": totalPages, // Total pages
			"cached":      false,      // Indicate response is not from cache
		}
		// Cache the response for future requests
		_ = utils.SetCache(ctx, rdb, cacheKey, respData, 60*time.Second)
		c.JSON(http.StatusOK, respData) // Return the response
	}
}
