package reward

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"satsbridge/ledger"
	"satsbridge/payout"
	"satsbridge/storage"
)

type fakeVerifier struct {
	result ledger.Result
	calls  int
}

func (f *fakeVerifier) Verify(_ context.Context, _, _ string, _ float64) ledger.Result {
	f.calls++
	return f.result
}

type fakeSender struct {
	resp  *payout.SendResponse
	err   error
	calls int
	last  payout.SendRequest
}

func (f *fakeSender) Send(_ context.Context, req payout.SendRequest) (*payout.SendResponse, error) {
	f.calls++
	f.last = req
	return f.resp, f.err
}

func setupTestStore(t *testing.T) *storage.Store {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := storage.AutoMigrate(db); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return storage.NewStore(db)
}

func validRequest() Request {
	return Request{
		SourceTxRef:   "5h4sVsNqyVZzQ",
		PayerAddress:  "payerSolanaAddress",
		PayoutAddress: "tb1qpayoutaddress",
		SourceAmount:  2,
		ContactRef:    "merchant@example.com",
	}
}

func newTestService(t *testing.T, verifier *fakeVerifier, sender *fakeSender) (*Service, *storage.Store) {
	t.Helper()
	store := setupTestStore(t)
	svc := NewService(Config{
		Store:          store,
		Verifier:       verifier,
		Payout:         sender,
		ConversionRate: 173.02,
		RewardFraction: 0.01,
	})
	return svc, store
}

func successResponse() *payout.SendResponse {
	raw := json.RawMessage(`{"status":true,"message":"sent","data":{"id":"pay_1","status":"success"}}`)
	resp := &payout.SendResponse{Raw: raw}
	if err := json.Unmarshal(raw, resp); err != nil {
		panic(err)
	}
	return resp
}

func TestValidationRejectsBeforeExternalCalls(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Request)
	}{
		{name: "missing tx ref", mutate: func(r *Request) { r.SourceTxRef = "" }},
		{name: "missing payer address", mutate: func(r *Request) { r.PayerAddress = "  " }},
		{name: "missing payout address", mutate: func(r *Request) { r.PayoutAddress = "" }},
		{name: "zero amount", mutate: func(r *Request) { r.SourceAmount = 0 }},
		{name: "negative amount", mutate: func(r *Request) { r.SourceAmount = -5 }},
		{name: "nan amount", mutate: func(r *Request) { r.SourceAmount = math.NaN() }},
		{name: "infinite amount", mutate: func(r *Request) { r.SourceAmount = math.Inf(1) }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			verifier := &fakeVerifier{result: ledger.Result{Outcome: ledger.OutcomeVerified}}
			sender := &fakeSender{resp: successResponse()}
			svc, store := newTestService(t, verifier, sender)

			req := validRequest()
			tc.mutate(&req)

			_, err := svc.ProcessReward(context.Background(), req)
			var validationErr *ValidationError
			if !errors.As(err, &validationErr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if verifier.calls != 0 || sender.calls != 0 {
				t.Fatalf("expected no external calls, got verify=%d send=%d", verifier.calls, sender.calls)
			}
			records, listErr := store.ListTransactions(context.Background())
			if listErr != nil {
				t.Fatalf("list: %v", listErr)
			}
			if len(records) != 0 {
				t.Fatalf("expected no records, got %d", len(records))
			}
		})
	}
}

func TestVerificationFailureCreatesNoRecord(t *testing.T) {
	outcomes := []ledger.Outcome{
		ledger.OutcomeNotFound,
		ledger.OutcomeTransactionInvalid,
		ledger.OutcomeTransportFailure,
	}
	for _, outcome := range outcomes {
		t.Run(string(outcome), func(t *testing.T) {
			verifier := &fakeVerifier{result: ledger.Result{Outcome: outcome, Detail: "nope"}}
			sender := &fakeSender{resp: successResponse()}
			svc, store := newTestService(t, verifier, sender)

			_, err := svc.ProcessReward(context.Background(), validRequest())
			var verificationErr *VerificationError
			if !errors.As(err, &verificationErr) {
				t.Fatalf("expected VerificationError, got %v", err)
			}
			if verificationErr.Result.Outcome != outcome {
				t.Fatalf("expected outcome %s, got %s", outcome, verificationErr.Result.Outcome)
			}
			if sender.calls != 0 {
				t.Fatal("payout must not be called when verification fails")
			}
			records, listErr := store.ListTransactions(context.Background())
			if listErr != nil {
				t.Fatalf("list: %v", listErr)
			}
			if len(records) != 0 {
				t.Fatalf("expected no records, got %d", len(records))
			}
		})
	}
}

func TestSuccessfulRewardPersistsRecord(t *testing.T) {
	verifier := &fakeVerifier{result: ledger.Result{Outcome: ledger.OutcomeVerified}}
	sender := &fakeSender{resp: successResponse()}
	svc, store := newTestService(t, verifier, sender)

	outcome, err := svc.ProcessReward(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("process reward: %v", err)
	}
	if sender.calls != 1 {
		t.Fatalf("expected one payout call, got %d", sender.calls)
	}

	rec := outcome.Transaction
	if math.Abs(rec.ConvertedAmount-346.04) > 1e-9 {
		t.Fatalf("unexpected converted amount %v", rec.ConvertedAmount)
	}
	if math.Abs(rec.PayoutAmount-3.4604) > 1e-9 {
		t.Fatalf("unexpected payout amount %v", rec.PayoutAmount)
	}
	if math.Abs(sender.last.Amount-3.4604) > 1e-9 {
		t.Fatalf("payout called with unexpected amount %v", sender.last.Amount)
	}
	if rec.PayoutStatus != storage.PayoutSuccess {
		t.Fatalf("expected success status, got %s", rec.PayoutStatus)
	}
	if string(outcome.PayoutResponse) != string(sender.resp.Raw) {
		t.Fatal("expected raw provider response in outcome")
	}

	records, err := store.ListTransactions(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected one record, got %d", len(records))
	}
	if records[0].ID != rec.ID {
		t.Fatal("stored record does not match outcome")
	}
}

func TestPayoutFailureStillPersistsRecord(t *testing.T) {
	verifier := &fakeVerifier{result: ledger.Result{Outcome: ledger.OutcomeVerified}}
	sender := &fakeSender{err: &payout.Error{
		Message:    "payout provider /send_bitcoin failed",
		StatusCode: http.StatusServiceUnavailable,
		Details:    `{"status":false,"message":"insufficient balance"}`,
	}}
	svc, store := newTestService(t, verifier, sender)

	_, err := svc.ProcessReward(context.Background(), validRequest())
	var providerErr *payout.Error
	if !errors.As(err, &providerErr) {
		t.Fatalf("expected payout error, got %v", err)
	}

	records, listErr := store.ListTransactions(context.Background())
	if listErr != nil {
		t.Fatalf("list: %v", listErr)
	}
	if len(records) != 1 {
		t.Fatalf("expected record despite payout failure, got %d", len(records))
	}
	if records[0].PayoutStatus != storage.PayoutFailed {
		t.Fatalf("expected failed status, got %s", records[0].PayoutStatus)
	}
}

func TestAmbiguousProviderStatusIsPending(t *testing.T) {
	raw := json.RawMessage(`{"status":true,"message":"accepted","data":{"id":"pay_2"}}`)
	resp := &payout.SendResponse{Raw: raw}
	if err := json.Unmarshal(raw, resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	verifier := &fakeVerifier{result: ledger.Result{Outcome: ledger.OutcomeVerified}}
	sender := &fakeSender{resp: resp}
	svc, store := newTestService(t, verifier, sender)

	if _, err := svc.ProcessReward(context.Background(), validRequest()); err != nil {
		t.Fatalf("process reward: %v", err)
	}
	records, err := store.ListTransactions(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if records[0].PayoutStatus != storage.PayoutPending {
		t.Fatalf("expected pending status, got %s", records[0].PayoutStatus)
	}
}

func TestProviderIndicatedFailureIsRecorded(t *testing.T) {
	raw := json.RawMessage(`{"status":false,"message":"rejected","data":{}}`)
	resp := &payout.SendResponse{Raw: raw}
	if err := json.Unmarshal(raw, resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	verifier := &fakeVerifier{result: ledger.Result{Outcome: ledger.OutcomeVerified}}
	sender := &fakeSender{resp: resp}
	svc, store := newTestService(t, verifier, sender)

	if _, err := svc.ProcessReward(context.Background(), validRequest()); err != nil {
		t.Fatalf("process reward: %v", err)
	}
	records, err := store.ListTransactions(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if records[0].PayoutStatus != storage.PayoutFailed {
		t.Fatalf("expected failed status, got %s", records[0].PayoutStatus)
	}
}

func TestListTransactionsReturnsCreationOrder(t *testing.T) {
	verifier := &fakeVerifier{result: ledger.Result{Outcome: ledger.OutcomeVerified}}
	sender := &fakeSender{resp: successResponse()}
	store := setupTestStore(t)

	base := time.Date(2025, 8, 10, 12, 0, 0, 0, time.UTC)
	step := 0
	svc := NewService(Config{
		Store:          store,
		Verifier:       verifier,
		Payout:         sender,
		ConversionRate: 173.02,
		RewardFraction: 0.01,
		Now: func() time.Time {
			step++
			return base.Add(time.Duration(step) * time.Second)
		},
	})

	const n = 4
	for i := 0; i < n; i++ {
		req := validRequest()
		req.SourceTxRef = fmt.Sprintf("sig-%d", i)
		if _, err := svc.ProcessReward(context.Background(), req); err != nil {
			t.Fatalf("process reward %d: %v", i, err)
		}
	}

	records, err := svc.ListTransactions(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(records) != n {
		t.Fatalf("expected %d records, got %d", n, len(records))
	}
	for i, rec := range records {
		if rec.SourceTxRef != fmt.Sprintf("sig-%d", i) {
			t.Fatalf("expected creation order, got %s at index %d", rec.SourceTxRef, i)
		}
	}
}
