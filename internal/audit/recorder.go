package audit

import (
	"allowance_wallet/internal/domain" // Audit event model

	"github.com/sirupsen/logrus" // Logging library
	"gorm.io/gorm"               // GORM ORM library
)

// Recorder appends audit events to the database. A nil database disables
// recording, so the wallet endpoints keep working without MySQL; the event
// row is operational visibility, never part of the request outcome.
type Recorder struct {
	db *gorm.DB // May be nil
}

// New creates a recorder over db; db may be nil
func New(db *gorm.DB) *Recorder {
	return &Recorder{db: db}
}

// Enabled reports whether events are being persisted
func (r *Recorder) Enabled() bool {
	return r != nil && r.db != nil
}

// Record appends one event. Failures are logged and swallowed: the audit trail
// must never fail the request it describes.
func (r *Recorder) Record(event domain.AuditEvent) {
	if !r.Enabled() {
		return
	}
	if err := r.db.Create(&event).Error; err != nil {
		logrus.WithFields(logrus.Fields{
			"kind":           event.Kind,          // Event kind
			"wallet_address": event.WalletAddress, // Subject wallet
			"error":          err.Error(),         // Error message
		}).Error("Failed to record audit event")
	}
}
