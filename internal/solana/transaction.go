package solana

import (
	"encoding/json"
	"math/big"

	"github.com/btcsuite/btcutil/base58"
)

// MemoProgramID is the address of the SPL Memo program. Payments bind their
// invoice reference by attaching it as a memo instruction.
const MemoProgramID = "MemoSq4gqABAXKb96qnH8TysNcVtrnbMpsBwiHggz"

// Transaction is the subset of a jsonParsed getTransaction result the
// verifier inspects.
type Transaction struct {
	Meta        *Meta `json:"meta"`
	Transaction struct {
		Message struct {
			Instructions []Instruction `json:"instructions"`
		} `json:"message"`
	} `json:"transaction"`
}

type Meta struct {
	Err               json.RawMessage `json:"err"`
	PreTokenBalances  []TokenBalance  `json:"preTokenBalances"`
	PostTokenBalances []TokenBalance  `json:"postTokenBalances"`
}

type TokenBalance struct {
	Owner         string `json:"owner"`
	Mint          string `json:"mint"`
	UITokenAmount struct {
		// Amount is the raw integer balance in smallest units, as a
		// decimal string.
		Amount string `json:"amount"`
	} `json:"uiTokenAmount"`
}

type Instruction struct {
	ProgramID string          `json:"programId"`
	Data      string          `json:"data"`
	Parsed    json.RawMessage `json:"parsed"`
}

// Failed reports whether the ledger recorded an execution error for the
// transaction.
func (t *Transaction) Failed() bool {
	return t.Meta != nil && len(t.Meta.Err) > 0 && string(t.Meta.Err) != "null"
}

// Memo returns the transaction's memo text, if a memo instruction is present.
// jsonParsed nodes deliver the text in Parsed; older responses carry raw
// base58 instruction data instead.
func (t *Transaction) Memo() (string, bool) {
	for _, ix := range t.Transaction.Message.Instructions {
		if ix.ProgramID != MemoProgramID {
			continue
		}
		if len(ix.Parsed) > 0 {
			var text string
			if err := json.Unmarshal(ix.Parsed, &text); err == nil {
				return text, true
			}
		}
		if ix.Data != "" {
			return string(base58.Decode(ix.Data)), true
		}
	}
	return "", false
}

// RecipientDelta computes the post − pre token balance change for the given
// owner and mint, in smallest units. A missing pre or post entry counts as a
// zero balance, matching an account created or emptied by the transaction.
func (t *Transaction) RecipientDelta(owner, mint string) (int64, bool) {
	if t.Meta == nil {
		return 0, false
	}
	pre := tokenAmount(t.Meta.PreTokenBalances, owner, mint)
	post := tokenAmount(t.Meta.PostTokenBalances, owner, mint)
	delta := new(big.Int).Sub(post, pre)
	if !delta.IsInt64() {
		return 0, false
	}
	return delta.Int64(), true
}

func tokenAmount(balances []TokenBalance, owner, mint string) *big.Int {
	for _, b := range balances {
		if b.Owner == owner && b.Mint == mint {
			if v, ok := new(big.Int).SetString(b.UITokenAmount.Amount, 10); ok {
				return v
			}
		}
	}
	return new(big.Int)
}
