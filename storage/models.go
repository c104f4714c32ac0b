package storage

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PayoutStatus tracks the provider-reported state of a reward payout. A
// record never moves back to pending once success or failed has been set.
type PayoutStatus string

const (
	PayoutPending PayoutStatus = "pending"
	PayoutSuccess PayoutStatus = "success"
	PayoutFailed  PayoutStatus = "failed"
)

// RewardTransaction is the durable record of a reward attempt. Records are
// written exactly once, after ledger verification succeeds, and are never
// updated or deleted.
type RewardTransaction struct {
	ID              uuid.UUID    `gorm:"type:uuid;primaryKey" json:"id"`
	SourceTxRef     string       `gorm:"size:128;index;not null" json:"sourceTxRef"`
	PayerAddress    string       `gorm:"size:64;not null" json:"payerAddress"`
	PayoutAddress   string       `gorm:"size:128;not null" json:"payoutAddress"`
	SourceAmount    float64      `gorm:"not null" json:"sourceAmount"`
	ConvertedAmount float64      `gorm:"not null" json:"convertedAmount"`
	PayoutAmount    float64      `gorm:"not null" json:"payoutAmount"`
	ContactRef      string       `gorm:"size:255" json:"contactRef,omitempty"`
	PayoutStatus    PayoutStatus `gorm:"size:16;index;not null" json:"payoutStatus"`
	CreatedAt       time.Time    `json:"createdAt"`
}

// AutoMigrate performs all schema migrations for the service.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&RewardTransaction{})
}
