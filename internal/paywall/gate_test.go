package paywall

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/punchamoorthee/x402gate/internal/domain"
	"github.com/punchamoorthee/x402gate/internal/solana"
	"github.com/punchamoorthee/x402gate/internal/store"
	"github.com/punchamoorthee/x402gate/internal/verify"
)

const (
	testMint      = "TokenMint111111111111111111111111111111111"
	testRecipient = "Recipient1111111111111111111111111111111111"
	refTTL        = 5 * time.Minute
)

type fakeOracle struct {
	txs map[string]*solana.Transaction
	err error
}

func (f *fakeOracle) GetTransaction(_ context.Context, signature string) (*solana.Transaction, error) {
	if f.err != nil {
		return nil, f.err
	}
	tx, ok := f.txs[signature]
	if !ok {
		return nil, domain.ErrTransactionNotFound
	}
	return tx, nil
}

func (f *fakeOracle) MintDecimals(context.Context) (uint8, error) {
	if f.err != nil {
		return 0, f.err
	}
	return 6, nil
}

func paymentTx(t *testing.T, memo string, received int64) *solana.Transaction {
	t.Helper()
	raw := fmt.Sprintf(`{
		"meta": {
			"err": null,
			"preTokenBalances": [],
			"postTokenBalances": [{"owner": %q, "mint": %q, "uiTokenAmount": {"amount": "%d"}}]
		},
		"transaction": {"message": {"instructions": [
			{"programId": "MemoSq4gqABAXKb96qnH8TysNcVtrnbMpsBwiHggz", "parsed": %q}
		]}}
	}`, testRecipient, testMint, received, memo)
	var tx solana.Transaction
	require.NoError(t, json.Unmarshal([]byte(raw), &tx))
	return &tx
}

// testGate wires a gate over the in-memory store and a fake oracle, guarding
// a handler that reports the payment method.
func testGate(t *testing.T, oracle *fakeOracle) (*store.MemoryStore, http.Handler) {
	t.Helper()
	kv := store.NewMemoryStore()
	verifier := verify.New(oracle, testMint, testRecipient)
	res := domain.Resource{Price: "0.01", Asset: testMint, Recipient: testRecipient}
	gate := NewGate(kv, verifier, res, "/premium", refTTL, slog.Default())

	handler := gate.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"paymentMethod": PaymentMethod(r.Context())})
	}))
	return kv, handler
}

func TestGateChallengesWithoutProof(t *testing.T) {
	_, handler := testGate(t, &fakeOracle{})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/premium", nil))

	require.Equal(t, http.StatusPaymentRequired, rec.Code)
	var invoice domain.Invoice
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &invoice))
	require.Equal(t, domain.ProtocolTag, invoice.Protocol)
	require.Equal(t, testRecipient, invoice.Recipient)
	require.Equal(t, testMint, invoice.Asset)
	require.Equal(t, "0.01", invoice.Amount)
	require.NotEmpty(t, invoice.Reference)

	// A second challenge issues a different reference.
	rec2 := httptest.NewRecorder()
	handler.ServeHTTP(rec2, httptest.NewRequest("GET", "/premium", nil))
	var invoice2 domain.Invoice
	require.NoError(t, json.Unmarshal(rec2.Body.Bytes(), &invoice2))
	require.NotEqual(t, invoice.Reference, invoice2.Reference)
}

func TestGateBudgetPathDebitsUntilExhausted(t *testing.T) {
	kv, handler := testGate(t, &fakeOracle{})

	// Deposit 0.05 worth of budget, then issue five 0.01 requests.
	_, err := kv.Credit(context.Background(), "payer-1", 50_000)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		req := httptest.NewRequest("GET", "/premium", nil)
		req.Header.Set(HeaderPayerIdentity, "payer-1")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, "request %d", i+1)
		require.Equal(t, MethodBudget, rec.Header().Get(HeaderPaymentMethod))
	}

	balance, err := kv.Budget(context.Background(), "payer-1")
	require.NoError(t, err)
	require.Equal(t, int64(0), balance)

	// Sixth request falls through to a fresh 402 challenge.
	req := httptest.NewRequest("GET", "/premium", nil)
	req.Header.Set(HeaderPayerIdentity, "payer-1")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusPaymentRequired, rec.Code)
}

func TestGateOnChainPayment(t *testing.T) {
	oracle := &fakeOracle{txs: map[string]*solana.Transaction{
		"sig-1": paymentTx(t, "ref-1", 10_000),
	}}
	_, handler := testGate(t, oracle)

	req := httptest.NewRequest("GET", "/premium?reference=ref-1", nil)
	req.Header.Set("Authorization", "x402 sig-1")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, MethodOnChain, rec.Header().Get(HeaderPaymentMethod))

	// Replaying the same proof is rejected: the reference is spent.
	rec2 := httptest.NewRecorder()
	req2 := httptest.NewRequest("GET", "/premium?reference=ref-1", nil)
	req2.Header.Set("Authorization", "x402 sig-1")
	handler.ServeHTTP(rec2, req2)
	require.Equal(t, http.StatusUnauthorized, rec2.Code)
	require.Contains(t, rec2.Body.String(), "already claimed")
}

func TestGateShortPaymentRejectedAndReferenceConsumed(t *testing.T) {
	oracle := &fakeOracle{txs: map[string]*solana.Transaction{
		"sig-short": paymentTx(t, "ref-short", 9_999),
	}}
	_, handler := testGate(t, oracle)

	req := httptest.NewRequest("GET", "/premium?reference=ref-short", nil)
	req.Header.Set("Authorization", "x402 sig-short")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Contains(t, rec.Body.String(), "amount mismatch")

	// The failed attempt consumed the reference; a retry with the same
	// reference is now a replay, not another verification.
	rec2 := httptest.NewRecorder()
	req2 := httptest.NewRequest("GET", "/premium?reference=ref-short", nil)
	req2.Header.Set("Authorization", "x402 sig-short")
	handler.ServeHTTP(rec2, req2)
	require.Equal(t, http.StatusUnauthorized, rec2.Code)
	require.Contains(t, rec2.Body.String(), "already claimed")
}

func TestGateWrongMemoRejected(t *testing.T) {
	oracle := &fakeOracle{txs: map[string]*solana.Transaction{
		"sig-1": paymentTx(t, "different-ref", 10_000),
	}}
	_, handler := testGate(t, oracle)

	req := httptest.NewRequest("GET", "/premium?reference=ref-1", nil)
	req.Header.Set("Authorization", "x402 sig-1")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Contains(t, rec.Body.String(), "reference mismatch")
}

func TestGateOracleFaultIs500(t *testing.T) {
	oracle := &fakeOracle{err: fmt.Errorf("%w: timeout", domain.ErrOracleUnavailable)}
	_, handler := testGate(t, oracle)

	req := httptest.NewRequest("GET", "/premium?reference=ref-1", nil)
	req.Header.Set("Authorization", "x402 sig-1")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestGateBudgetWithUnknownPayerFallsThrough(t *testing.T) {
	_, handler := testGate(t, &fakeOracle{})

	req := httptest.NewRequest("GET", "/premium", nil)
	req.Header.Set(HeaderPayerIdentity, "stranger")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusPaymentRequired, rec.Code)
}
