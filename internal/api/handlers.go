package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/punchamoorthee/x402gate/internal/domain"
	"github.com/punchamoorthee/x402gate/internal/paywall"
	"github.com/punchamoorthee/x402gate/internal/store"
	"github.com/punchamoorthee/x402gate/internal/verify"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "x402_http_requests_total",
		Help: "Total HTTP requests processed, labeled by status code",
	}, []string{"method", "endpoint", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "x402_http_request_duration_seconds",
		Help:    "Latency distribution of HTTP requests",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	}, []string{"method", "endpoint"})
)

// Tool is one entry in the free discovery catalog: a priced endpoint an agent
// can learn about before paying for it.
type Tool struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	Endpoint    string `json:"endpoint"`
	Cost        string `json:"cost"`
}

type Handler struct {
	store      store.Store
	verifier   *verify.Verifier
	logger     *slog.Logger
	depositTTL time.Duration
	tools      []Tool
	documents  map[string]string
}

func NewHandler(s store.Store, v *verify.Verifier, logger *slog.Logger, depositTTL time.Duration, tools []Tool, documents map[string]string) *Handler {
	return &Handler{
		store:      s,
		verifier:   v,
		logger:     logger,
		depositTTL: depositTTL,
		tools:      tools,
		documents:  documents,
	}
}

func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"}, "GET", "/health")
}

func (h *Handler) Public(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]string{"message": "Free data for you all!"}, "GET", "/public")
}

// Tools is the free discovery endpoint listing the gated resources and their
// per-call cost.
func (h *Handler) Tools(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, h.tools, "GET", "/tools")
}

// Premium serves the demo gated resource. Reaching it means the gate already
// settled payment; the handler only reports how.
func (h *Handler) Premium(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]string{
		"message":       "This is your premium data sir.",
		"paymentMethod": paywall.PaymentMethod(r.Context()),
		"timestamp":     time.Now().UTC().Format(time.RFC3339),
	}, "GET", "/premium")
}

// Context serves a priced document by id.
func (h *Handler) Context(w http.ResponseWriter, r *http.Request) {
	docID := r.URL.Query().Get("docId")
	content, ok := h.documents[docID]
	if !ok {
		h.respondError(w, http.StatusNotFound, "document not found", "GET", "/context")
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]string{
		"context":       content,
		"paymentMethod": paywall.PaymentMethod(r.Context()),
	}, "GET", "/context")
}

// Deposit verifies a budget deposit transaction and credits the payer. The
// reference is claimed before verification, so a deposit can be credited at
// most once no matter how often it is replayed.
func (h *Handler) Deposit(w http.ResponseWriter, r *http.Request) {
	timer := prometheus.NewTimer(httpRequestDuration.WithLabelValues("POST", "/deposits"))
	defer timer.ObserveDuration()

	var req domain.DepositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid JSON", "POST", "/deposits")
		return
	}
	if req.Signature == "" || req.Reference == "" || req.PayerIdentity == "" || req.Amount == "" {
		h.respondError(w, http.StatusBadRequest, "signature, reference, payerIdentity and amount are required", "POST", "/deposits")
		return
	}

	claimed, err := h.store.ClaimReference(r.Context(), req.Reference, h.depositTTL)
	if err != nil {
		h.logger.Error("deposit claim failed", "err", err)
		h.respondError(w, http.StatusInternalServerError, "internal error", "POST", "/deposits")
		return
	}
	if !claimed {
		h.respondError(w, http.StatusUnauthorized, domain.ErrAlreadyClaimed.Error(), "POST", "/deposits")
		return
	}

	verified, err := h.verifier.VerifyPayment(r.Context(), req.Signature, req.Reference, req.Amount)
	if err != nil {
		if errors.Is(err, domain.ErrOracleUnavailable) {
			h.logger.Error("deposit verification fault", "err", err)
			h.respondError(w, http.StatusInternalServerError, err.Error(), "POST", "/deposits")
			return
		}
		h.logger.Warn("deposit rejected", "payer", req.PayerIdentity, "reason", err.Error())
		h.respondError(w, http.StatusUnauthorized, err.Error(), "POST", "/deposits")
		return
	}

	balance, err := h.store.Credit(r.Context(), req.PayerIdentity, verified)
	if err != nil {
		h.logger.Error("deposit credit failed", "err", err)
		h.respondError(w, http.StatusInternalServerError, "internal error", "POST", "/deposits")
		return
	}

	h.logger.Info("budget deposit credited", "payer", req.PayerIdentity, "amount", verified, "balance", balance)
	h.respondJSON(w, http.StatusOK, domain.DepositResponse{Success: true, NewBalance: balance}, "POST", "/deposits")
}

// BudgetQuery reports a payer's remaining budget in smallest token units.
func (h *Handler) BudgetQuery(w http.ResponseWriter, r *http.Request) {
	payer := r.URL.Query().Get("payerIdentity")
	if payer == "" {
		h.respondError(w, http.StatusBadRequest, "payerIdentity is required", "GET", "/budget")
		return
	}
	balance, err := h.store.Budget(r.Context(), payer)
	if err != nil {
		h.logger.Error("budget query failed", "err", err)
		h.respondError(w, http.StatusInternalServerError, "internal error", "GET", "/budget")
		return
	}
	h.respondJSON(w, http.StatusOK, domain.BudgetResponse{CurrentBudget: balance}, "GET", "/budget")
}

// Helpers
func (h *Handler) respondJSON(w http.ResponseWriter, code int, payload interface{}, method, endpoint string) {
	httpRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(code)).Inc()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(payload)
}

func (h *Handler) respondError(w http.ResponseWriter, code int, msg, method, endpoint string) {
	h.respondJSON(w, code, map[string]string{"error": msg}, method, endpoint)
}
