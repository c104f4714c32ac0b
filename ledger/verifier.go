package ledger

import (
	"context"
	"errors"
	"strings"
)

// Outcome classifies the result of a verification attempt. Only
// OutcomeVerified admits the transaction; the remaining variants keep
// "unverifiable" distinguishable from "verified false" for diagnostics even
// though callers treat them uniformly as rejections.
type Outcome string

const (
	OutcomeVerified           Outcome = "verified"
	OutcomeNotFound           Outcome = "not_found"
	OutcomeTransactionInvalid Outcome = "transaction_invalid"
	OutcomeTransportFailure   Outcome = "transport_failure"
)

// Result carries the verification outcome and a short human-readable detail.
type Result struct {
	Outcome Outcome
	Detail  string
}

// Verified reports whether the transaction was positively verified.
func (r Result) Verified() bool { return r.Outcome == OutcomeVerified }

// TransactionSource is the read API the verifier depends on.
type TransactionSource interface {
	GetTransaction(ctx context.Context, signature string) (*Transaction, error)
}

// Verifier checks that an expected address participated in a finalized
// ledger transaction.
type Verifier struct {
	source TransactionSource
}

// NewVerifier constructs a verifier over the given transaction source.
func NewVerifier(source TransactionSource) *Verifier {
	return &Verifier{source: source}
}

// Verify fetches the transaction identified by txRef and reports whether
// expectedAddress appears among its participants. amountHint is accepted for
// contract compatibility but not checked against the on-chain transfer.
// TODO: verify the transferred amount against amountHint once acceptance
// behavior for existing callers is confirmed.
func (v *Verifier) Verify(ctx context.Context, txRef, expectedAddress string, amountHint float64) Result {
	_ = amountHint

	txRef = strings.TrimSpace(txRef)
	expectedAddress = strings.TrimSpace(expectedAddress)
	if txRef == "" || expectedAddress == "" {
		return Result{Outcome: OutcomeTransactionInvalid, Detail: "empty transaction reference or address"}
	}

	tx, err := v.source.GetTransaction(ctx, txRef)
	switch {
	case errors.Is(err, ErrTransactionNotFound):
		return Result{Outcome: OutcomeNotFound, Detail: "transaction not found"}
	case err != nil:
		return Result{Outcome: OutcomeTransportFailure, Detail: err.Error()}
	}

	participants, err := tx.Transaction.Message.Participants()
	if err != nil {
		return Result{Outcome: OutcomeTransactionInvalid, Detail: err.Error()}
	}

	for _, key := range participants {
		if key == expectedAddress {
			return Result{Outcome: OutcomeVerified}
		}
	}
	return Result{Outcome: OutcomeTransactionInvalid, Detail: "expected address not among transaction participants"}
}
