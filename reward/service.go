package reward

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"satsbridge/ledger"
	"satsbridge/observability"
	"satsbridge/payout"
	"satsbridge/storage"
)

// Store is the persistence contract the workflow requires.
type Store interface {
	CreateTransaction(ctx context.Context, rec *storage.RewardTransaction) error
	ListTransactions(ctx context.Context) ([]storage.RewardTransaction, error)
}

// Verifier reports whether the claimed purchase transaction is present on
// the ledger and involves the expected payer.
type Verifier interface {
	Verify(ctx context.Context, txRef, expectedAddress string, amountHint float64) ledger.Result
}

// PayoutSender submits reward payments to the external provider.
type PayoutSender interface {
	Send(ctx context.Context, req payout.SendRequest) (*payout.SendResponse, error)
}

// ValidationError rejects a request before any external call is made.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

// VerificationError rejects a request whose source transaction could not be
// positively verified. The embedded result preserves why.
type VerificationError struct {
	Result ledger.Result
}

func (e *VerificationError) Error() string {
	if e.Result.Detail != "" {
		return fmt.Sprintf("invalid source transaction: %s", e.Result.Detail)
	}
	return "invalid source transaction"
}

// Request is the inbound reward payload.
type Request struct {
	SourceTxRef   string  `json:"sourceTxRef"`
	PayerAddress  string  `json:"payerAddress"`
	PayoutAddress string  `json:"payoutAddress"`
	SourceAmount  float64 `json:"sourceAmount"`
	ContactRef    string  `json:"contactRef"`
}

func (r Request) validate() error {
	if strings.TrimSpace(r.SourceTxRef) == "" {
		return &ValidationError{Reason: "sourceTxRef required"}
	}
	if strings.TrimSpace(r.PayerAddress) == "" {
		return &ValidationError{Reason: "payerAddress required"}
	}
	if strings.TrimSpace(r.PayoutAddress) == "" {
		return &ValidationError{Reason: "payoutAddress required"}
	}
	if math.IsNaN(r.SourceAmount) || math.IsInf(r.SourceAmount, 0) {
		return &ValidationError{Reason: "sourceAmount must be finite"}
	}
	if r.SourceAmount <= 0 {
		return &ValidationError{Reason: "sourceAmount must be positive"}
	}
	return nil
}

// Outcome pairs the stored record with the provider's raw response.
type Outcome struct {
	Transaction    *storage.RewardTransaction
	PayoutResponse json.RawMessage
}

// Config captures the dependencies required to construct the service.
type Config struct {
	Store          Store
	Verifier       Verifier
	Payout         PayoutSender
	ConversionRate float64
	RewardFraction float64
	Metrics        *observability.RewardMetrics
	Now            func() time.Time
}

// Service orchestrates the reward-issuance workflow: validate, verify the
// on-ledger purchase, compute the converted payout, submit it, persist the
// outcome.
type Service struct {
	store          Store
	verifier       Verifier
	payout         PayoutSender
	conversionRate float64
	rewardFraction float64
	metrics        *observability.RewardMetrics
	now            func() time.Time
}

// NewService constructs the workflow service.
func NewService(cfg Config) *Service {
	if cfg.Store == nil {
		panic("reward: store required")
	}
	if cfg.Verifier == nil {
		panic("reward: verifier required")
	}
	if cfg.Payout == nil {
		panic("reward: payout sender required")
	}
	svc := &Service{
		store:          cfg.Store,
		verifier:       cfg.Verifier,
		payout:         cfg.Payout,
		conversionRate: cfg.ConversionRate,
		rewardFraction: cfg.RewardFraction,
		metrics:        cfg.Metrics,
		now:            cfg.Now,
	}
	if svc.now == nil {
		svc.now = time.Now
	}
	return svc
}

// ProcessReward runs one reward attempt end to end. The payout call never
// precedes a successful verification, and a record is written whenever
// verification succeeded, regardless of the payout outcome.
func (s *Service) ProcessReward(ctx context.Context, req Request) (*Outcome, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	result := s.verifier.Verify(ctx, req.SourceTxRef, req.PayerAddress, req.SourceAmount)
	s.metrics.RecordVerification(string(result.Outcome))
	if !result.Verified() {
		return nil, &VerificationError{Result: result}
	}

	convertedAmount := req.SourceAmount * s.conversionRate
	payoutAmount := convertedAmount * s.rewardFraction

	start := time.Now()
	resp, sendErr := s.payout.Send(ctx, payout.SendRequest{
		PayoutAddress: req.PayoutAddress,
		Amount:        payoutAmount,
		ContactRef:    req.ContactRef,
	})
	s.metrics.ObservePayout(payoutOutcomeLabel(sendErr), time.Since(start))

	rec := &storage.RewardTransaction{
		ID:              uuid.New(),
		SourceTxRef:     strings.TrimSpace(req.SourceTxRef),
		PayerAddress:    strings.TrimSpace(req.PayerAddress),
		PayoutAddress:   strings.TrimSpace(req.PayoutAddress),
		SourceAmount:    req.SourceAmount,
		ConvertedAmount: convertedAmount,
		PayoutAmount:    payoutAmount,
		ContactRef:      strings.TrimSpace(req.ContactRef),
		PayoutStatus:    payoutStatus(resp, sendErr),
		CreatedAt:       s.now().UTC(),
	}
	if err := s.store.CreateTransaction(ctx, rec); err != nil {
		return nil, err
	}
	s.metrics.RecordTransaction(string(rec.PayoutStatus))

	if sendErr != nil {
		return nil, sendErr
	}
	return &Outcome{Transaction: rec, PayoutResponse: resp.Raw}, nil
}

// ListTransactions returns every stored reward record in creation order.
func (s *Service) ListTransactions(ctx context.Context) ([]storage.RewardTransaction, error) {
	return s.store.ListTransactions(ctx)
}

// payoutStatus derives the stored status from the provider interaction:
// success only on an explicit success indicator, failed when the provider
// failed or reported failure, pending when the response carries no clear
// status.
func payoutStatus(resp *payout.SendResponse, sendErr error) storage.PayoutStatus {
	if sendErr != nil {
		return storage.PayoutFailed
	}
	if resp == nil {
		return storage.PayoutPending
	}
	switch strings.ToLower(strings.TrimSpace(resp.Data.Status)) {
	case "success", "paid", "finished", "completed":
		return storage.PayoutSuccess
	case "failed", "failure", "expired", "rejected", "cancelled":
		return storage.PayoutFailed
	case "":
		if !resp.Status {
			return storage.PayoutFailed
		}
		return storage.PayoutPending
	default:
		return storage.PayoutPending
	}
}

func payoutOutcomeLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "submitted"
}
