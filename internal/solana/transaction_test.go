package solana

import (
	"encoding/json"
	"testing"

	"github.com/btcsuite/btcutil/base58"
	"github.com/stretchr/testify/require"
)

func parseTx(t *testing.T, raw string) *Transaction {
	t.Helper()
	var tx Transaction
	require.NoError(t, json.Unmarshal([]byte(raw), &tx))
	return &tx
}

func TestMemoParsed(t *testing.T) {
	tx := parseTx(t, `{
		"meta": {"err": null},
		"transaction": {"message": {"instructions": [
			{"programId": "11111111111111111111111111111111"},
			{"programId": "MemoSq4gqABAXKb96qnH8TysNcVtrnbMpsBwiHggz", "parsed": "invoice-ref-42"}
		]}}
	}`)
	memo, ok := tx.Memo()
	require.True(t, ok)
	require.Equal(t, "invoice-ref-42", memo)
}

func TestMemoRawBase58(t *testing.T) {
	encoded := base58.Encode([]byte("invoice-ref-42"))
	tx := parseTx(t, `{
		"meta": {"err": null},
		"transaction": {"message": {"instructions": [
			{"programId": "MemoSq4gqABAXKb96qnH8TysNcVtrnbMpsBwiHggz", "data": "`+encoded+`"}
		]}}
	}`)
	memo, ok := tx.Memo()
	require.True(t, ok)
	require.Equal(t, "invoice-ref-42", memo)
}

func TestMemoAbsent(t *testing.T) {
	tx := parseTx(t, `{
		"meta": {"err": null},
		"transaction": {"message": {"instructions": [
			{"programId": "11111111111111111111111111111111"}
		]}}
	}`)
	_, ok := tx.Memo()
	require.False(t, ok)
}

func TestFailed(t *testing.T) {
	require.False(t, parseTx(t, `{"meta": {"err": null}}`).Failed())
	require.True(t, parseTx(t, `{"meta": {"err": {"InstructionError": [0, "Custom"]}}}`).Failed())
}

func TestRecipientDelta(t *testing.T) {
	tx := parseTx(t, `{
		"meta": {
			"err": null,
			"preTokenBalances": [
				{"owner": "recipient", "mint": "mint", "uiTokenAmount": {"amount": "250000"}},
				{"owner": "payer", "mint": "mint", "uiTokenAmount": {"amount": "900000"}}
			],
			"postTokenBalances": [
				{"owner": "recipient", "mint": "mint", "uiTokenAmount": {"amount": "260000"}},
				{"owner": "payer", "mint": "mint", "uiTokenAmount": {"amount": "890000"}}
			]
		}
	}`)
	delta, ok := tx.RecipientDelta("recipient", "mint")
	require.True(t, ok)
	require.Equal(t, int64(10_000), delta)
}

func TestRecipientDeltaMissingPreBalance(t *testing.T) {
	// Recipient token account created by the transaction itself: no pre
	// entry means a zero starting balance.
	tx := parseTx(t, `{
		"meta": {
			"err": null,
			"preTokenBalances": [],
			"postTokenBalances": [
				{"owner": "recipient", "mint": "mint", "uiTokenAmount": {"amount": "10000"}}
			]
		}
	}`)
	delta, ok := tx.RecipientDelta("recipient", "mint")
	require.True(t, ok)
	require.Equal(t, int64(10_000), delta)
}

func TestRecipientDeltaWrongMint(t *testing.T) {
	tx := parseTx(t, `{
		"meta": {
			"err": null,
			"preTokenBalances": [],
			"postTokenBalances": [
				{"owner": "recipient", "mint": "other-mint", "uiTokenAmount": {"amount": "10000"}}
			]
		}
	}`)
	delta, ok := tx.RecipientDelta("recipient", "mint")
	require.True(t, ok)
	require.Equal(t, int64(0), delta)
}
