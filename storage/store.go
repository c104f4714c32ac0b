package storage

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Store provides the append/list contract over reward transactions. The
// underlying engine serializes writes, so concurrent appends never produce
// partial or lost records.
type Store struct {
	db *gorm.DB
}

// NewStore wraps an open gorm handle.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// CreateTransaction appends a reward record. The record id is assigned here
// when the caller left it zero.
func (s *Store) CreateTransaction(ctx context.Context, rec *RewardTransaction) error {
	if rec == nil {
		return fmt.Errorf("storage: nil reward transaction")
	}
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
		return fmt.Errorf("storage: create reward transaction: %w", err)
	}
	return nil
}

// ListTransactions returns every reward record in creation order.
func (s *Store) ListTransactions(ctx context.Context) ([]RewardTransaction, error) {
	var records []RewardTransaction
	if err := s.db.WithContext(ctx).Order("created_at ASC, id ASC").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("storage: list reward transactions: %w", err)
	}
	return records, nil
}
