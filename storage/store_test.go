package storage

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := AutoMigrate(db); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return db
}

func sampleTransaction(i int, created time.Time) *RewardTransaction {
	return &RewardTransaction{
		SourceTxRef:     fmt.Sprintf("sig-%d", i),
		PayerAddress:    "payer",
		PayoutAddress:   "tb1qaddr",
		SourceAmount:    2,
		ConvertedAmount: 346.04,
		PayoutAmount:    3.4604,
		PayoutStatus:    PayoutSuccess,
		CreatedAt:       created,
	}
}

func TestCreateAndListOrdering(t *testing.T) {
	store := NewStore(setupTestDB(t))
	ctx := context.Background()

	base := time.Date(2025, 8, 10, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		rec := sampleTransaction(i, base.Add(time.Duration(i)*time.Second))
		if err := store.CreateTransaction(ctx, rec); err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
		if rec.ID == uuid.Nil {
			t.Fatal("expected id to be assigned")
		}
	}

	records, err := store.ListTransactions(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(records) != 5 {
		t.Fatalf("expected 5 records, got %d", len(records))
	}
	for i, rec := range records {
		if rec.SourceTxRef != fmt.Sprintf("sig-%d", i) {
			t.Fatalf("expected creation order, got %s at index %d", rec.SourceTxRef, i)
		}
	}
}

func TestConcurrentAppendsAreNotLost(t *testing.T) {
	store := NewStore(setupTestDB(t))
	ctx := context.Background()

	const writers = 16
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs <- store.CreateTransaction(ctx, sampleTransaction(i, time.Now().UTC()))
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent create: %v", err)
		}
	}

	records, err := store.ListTransactions(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(records) != writers {
		t.Fatalf("expected %d records, got %d", writers, len(records))
	}
	seen := make(map[uuid.UUID]bool, writers)
	for _, rec := range records {
		if seen[rec.ID] {
			t.Fatalf("duplicate record id %s", rec.ID)
		}
		seen[rec.ID] = true
	}
}
