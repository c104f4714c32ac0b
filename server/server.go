package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"satsbridge/payout"
	"satsbridge/reward"
	"satsbridge/storage"
)

// BalanceSource reads token balances from the ledger.
type BalanceSource interface {
	TokenBalanceByOwner(ctx context.Context, owner, mint string) (float64, error)
}

// Rewards is the workflow surface the HTTP layer depends on.
type Rewards interface {
	ProcessReward(ctx context.Context, req reward.Request) (*reward.Outcome, error)
	ListTransactions(ctx context.Context) ([]storage.RewardTransaction, error)
}

// Config captures the dependencies required to construct the server.
type Config struct {
	Rewards        Rewards
	Payout         payout.Client
	Balances       BalanceSource
	USDCMint       string
	RequestTimeout time.Duration
	Log            *slog.Logger
}

// Server exposes the reward workflow and its provider passthroughs over HTTP.
type Server struct {
	rewards        Rewards
	payout         payout.Client
	balances       BalanceSource
	usdcMint       string
	requestTimeout time.Duration
	log            *slog.Logger

	router http.Handler
}

// New constructs a configured HTTP server.
func New(cfg Config) *Server {
	if cfg.Rewards == nil {
		panic("server: rewards service required")
	}
	if cfg.Payout == nil {
		panic("server: payout client required")
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Second
	}
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}
	srv := &Server{
		rewards:        cfg.Rewards,
		payout:         cfg.Payout,
		balances:       cfg.Balances,
		usdcMint:       strings.TrimSpace(cfg.USDCMint),
		requestTimeout: cfg.RequestTimeout,
		log:            cfg.Log,
	}
	srv.router = srv.buildRouter()
	return srv
}

// Handler exposes the configured HTTP router.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(s.requestLogger)
	r.Use(chimw.Recoverer)

	r.Post("/reward", s.handleReward)
	r.Get("/reward/transactions", s.handleListTransactions)
	r.Get("/wallets", s.handleWallets)
	r.Get("/balance/{address}", s.handleBalance)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Info("request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", ww.Status()),
			slog.Duration("duration", time.Since(start)),
		)
	})
}

func (s *Server) handleReward(w http.ResponseWriter, r *http.Request) {
	var req reward.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON payload: %v", err), "")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.requestTimeout)
	defer cancel()

	outcome, err := s.rewards.ProcessReward(ctx, req)
	if err != nil {
		s.writeRewardError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"message":        "Reward sent successfully!",
		"transaction":    outcome.Transaction,
		"payoutResponse": outcome.PayoutResponse,
	})
}

func (s *Server) writeRewardError(w http.ResponseWriter, err error) {
	var validationErr *reward.ValidationError
	var verificationErr *reward.VerificationError
	var providerErr *payout.Error
	switch {
	case errors.As(err, &validationErr):
		s.writeError(w, http.StatusBadRequest, validationErr.Reason, "")
	case errors.As(err, &verificationErr):
		s.log.Warn("verification rejected",
			slog.String("outcome", string(verificationErr.Result.Outcome)),
			slog.String("detail", verificationErr.Result.Detail),
		)
		s.writeError(w, http.StatusBadRequest, "invalid source transaction", "")
	case errors.As(err, &providerErr):
		s.log.Error("payout provider failure",
			slog.Int("providerStatus", providerErr.StatusCode),
			slog.String("details", providerErr.Details),
		)
		s.writeError(w, http.StatusBadGateway, providerErr.Message, providerErr.Details)
	default:
		s.log.Error("reward workflow failure", slog.String("error", err.Error()))
		s.writeError(w, http.StatusInternalServerError, "internal server error", err.Error())
	}
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	records, err := s.rewards.ListTransactions(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "internal server error", err.Error())
		return
	}
	if records == nil {
		records = []storage.RewardTransaction{}
	}
	s.writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleWallets(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.requestTimeout)
	defer cancel()

	raw, err := s.payout.ListWallets(ctx)
	if err != nil {
		status := http.StatusInternalServerError
		details := err.Error()
		message := "failed to fetch wallets"
		var providerErr *payout.Error
		if errors.As(err, &providerErr) {
			if providerErr.StatusCode > 0 {
				status = providerErr.StatusCode
			}
			message = providerErr.Message
			details = providerErr.Details
		}
		s.writeError(w, status, message, details)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(raw)
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	address := strings.TrimSpace(chi.URLParam(r, "address"))
	if address == "" {
		s.writeError(w, http.StatusBadRequest, "address required", "")
		return
	}
	if s.balances == nil {
		s.writeError(w, http.StatusInternalServerError, "balance source not configured", "")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.requestTimeout)
	defer cancel()

	btc, err := s.payout.WalletBalance(ctx)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to fetch balances", err.Error())
		return
	}
	usdc, err := s.balances.TokenBalanceByOwner(ctx, address, s.usdcMint)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to fetch balances", err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]float64{"btc": btc, "usdc": usdc})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	body, err := json.Marshal(payload)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "internal server error", err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func (s *Server) writeError(w http.ResponseWriter, status int, message, details string) {
	payload := map[string]string{"error": message}
	if details != "" {
		payload["details"] = details
	}
	body, _ := json.Marshal(payload)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
