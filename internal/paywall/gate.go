// Package paywall implements the x402 access gate: each request to a priced
// route is either debited from the payer's pre-funded budget, unlocked by a
// verified one-time on-chain payment, challenged with a 402 invoice, or
// rejected with a typed reason.
package paywall

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/punchamoorthee/x402gate/internal/domain"
	"github.com/punchamoorthee/x402gate/internal/store"
	"github.com/punchamoorthee/x402gate/internal/verify"
)

const (
	// HeaderPayerIdentity lets a caller claim a budget account.
	HeaderPayerIdentity = "X-Payer-Identity"
	// HeaderPaymentMethod tags responses with how payment was satisfied.
	HeaderPaymentMethod = "X-Payment-Method"

	authScheme = "x402 "
)

// Payment method tags.
const (
	MethodBudget  = "budget"
	MethodOnChain = "onchain"
)

var gateOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "x402_gate_requests_total",
	Help: "Paywall decisions per gated route",
}, []string{"route", "outcome"})

// budgetDecision is the single atomic decision of the budget phase.
type budgetDecision int

const (
	satisfiedByBudget budgetDecision = iota
	requiresOnChainProof
)

// Gate guards one priced route.
type Gate struct {
	store    store.Store
	verifier *verify.Verifier
	resource domain.Resource
	route    string
	refTTL   time.Duration
	logger   *slog.Logger
}

func NewGate(s store.Store, v *verify.Verifier, res domain.Resource, route string, refTTL time.Duration, logger *slog.Logger) *Gate {
	return &Gate{
		store:    s,
		verifier: v,
		resource: res,
		route:    route,
		refTTL:   refTTL,
		logger:   logger.With("route", route),
	}
}

// Middleware wires the gate in front of a resource handler, mux-style.
func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		g.serve(w, r, next)
	})
}

func (g *Gate) serve(w http.ResponseWriter, r *http.Request, next http.Handler) {
	ctx := r.Context()

	decision, err := g.tryBudget(ctx, r)
	if err != nil {
		g.reject(w, http.StatusInternalServerError, err, "error")
		return
	}
	if decision == satisfiedByBudget {
		g.allow(w, r, next, MethodBudget)
		return
	}

	signature, reference := paymentProof(r)
	if signature == "" || reference == "" {
		g.challenge(w)
		return
	}

	// Claim before verifying. A reference stays consumed even when the
	// verification behind it fails, forcing a fresh invoice on retry.
	claimed, err := g.store.ClaimReference(ctx, reference, g.refTTL)
	if err != nil {
		g.reject(w, http.StatusInternalServerError, err, "error")
		return
	}
	if !claimed {
		g.reject(w, http.StatusUnauthorized, domain.ErrAlreadyClaimed, "rejected_replay")
		return
	}

	if _, err := g.verifier.VerifyPayment(ctx, signature, reference, g.resource.Price); err != nil {
		if errors.Is(err, domain.ErrOracleUnavailable) {
			g.reject(w, http.StatusInternalServerError, err, "error")
			return
		}
		g.reject(w, http.StatusUnauthorized, err, "rejected_verify")
		return
	}

	g.allow(w, r, next, MethodOnChain)
}

// tryBudget attempts to satisfy the request from the caller's budget.
// Insufficient balance is not an error, only a fallthrough to the on-chain
// path.
func (g *Gate) tryBudget(ctx context.Context, r *http.Request) (budgetDecision, error) {
	payer := strings.TrimSpace(r.Header.Get(HeaderPayerIdentity))
	if payer == "" {
		return requiresOnChainProof, nil
	}
	cost, err := g.verifier.RequiredUnits(ctx, g.resource.Price)
	if err != nil {
		return requiresOnChainProof, err
	}
	ok, err := g.store.TryDebit(ctx, payer, cost)
	if err != nil {
		return requiresOnChainProof, err
	}
	if !ok {
		return requiresOnChainProof, nil
	}
	return satisfiedByBudget, nil
}

func (g *Gate) allow(w http.ResponseWriter, r *http.Request, next http.Handler, method string) {
	gateOutcomes.WithLabelValues(g.route, method).Inc()
	w.Header().Set(HeaderPaymentMethod, method)
	next.ServeHTTP(w, r.WithContext(WithPaymentMethod(r.Context(), method)))
}

func (g *Gate) challenge(w http.ResponseWriter) {
	gateOutcomes.WithLabelValues(g.route, "challenged").Inc()
	invoice := NewInvoice(g.resource)
	g.logger.Info("issuing payment challenge", "reference", invoice.Reference)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusPaymentRequired)
	json.NewEncoder(w).Encode(invoice)
}

func (g *Gate) reject(w http.ResponseWriter, code int, err error, outcome string) {
	gateOutcomes.WithLabelValues(g.route, outcome).Inc()
	if code == http.StatusInternalServerError {
		g.logger.Error("paywall fault", "err", err)
	} else {
		g.logger.Warn("payment rejected", "reason", err.Error())
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}

// paymentProof extracts the transaction signature from the Authorization
// header and the invoice reference from the query string.
func paymentProof(r *http.Request) (signature, reference string) {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, authScheme) {
		signature = strings.TrimSpace(strings.TrimPrefix(auth, authScheme))
	}
	reference = r.URL.Query().Get("reference")
	return signature, reference
}

type ctxKey struct{}

// WithPaymentMethod tags a request context with how payment was satisfied.
func WithPaymentMethod(ctx context.Context, method string) context.Context {
	return context.WithValue(ctx, ctxKey{}, method)
}

// PaymentMethod reports how the current request paid, or "unknown".
func PaymentMethod(ctx context.Context) string {
	if m, ok := ctx.Value(ctxKey{}).(string); ok {
		return m
	}
	return "unknown"
}
