// Package verify checks that an on-chain payment satisfies an invoice:
// the transaction succeeded, its memo carries the invoice reference, and the
// recipient's token balance moved by exactly the required amount.
package verify

import (
	"context"
	"fmt"

	"github.com/punchamoorthee/x402gate/internal/domain"
	"github.com/punchamoorthee/x402gate/internal/solana"
)

// Oracle is the ledger surface the verifier consumes.
type Oracle interface {
	GetTransaction(ctx context.Context, signature string) (*solana.Transaction, error)
	MintDecimals(ctx context.Context) (uint8, error)
}

type Verifier struct {
	oracle    Oracle
	mint      string
	recipient string
}

func New(oracle Oracle, mint, recipient string) *Verifier {
	return &Verifier{oracle: oracle, mint: mint, recipient: recipient}
}

// VerifyPayment checks the transaction behind signature against an invoice
// with the given reference and human-unit amount. On success it returns the
// verified amount in smallest units; otherwise one of the typed failures from
// the domain package.
//
// The amount check compares the integer smallest-unit balance delta of the
// recipient, never the client-supplied decimal, so a payer cannot pick a
// favourable rounding.
func (v *Verifier) VerifyPayment(ctx context.Context, signature, reference, amount string) (int64, error) {
	tx, err := v.oracle.GetTransaction(ctx, signature)
	if err != nil {
		return 0, err
	}
	if tx.Failed() {
		return 0, domain.ErrTransactionFailed
	}

	memo, ok := tx.Memo()
	if !ok || memo != reference {
		return 0, fmt.Errorf("%w: memo %q", domain.ErrReferenceMismatch, memo)
	}

	required, err := v.RequiredUnits(ctx, amount)
	if err != nil {
		return 0, err
	}

	received, ok := tx.RecipientDelta(v.recipient, v.mint)
	if !ok {
		return 0, &domain.AmountMismatchError{Received: 0, Required: required}
	}
	if received != required {
		return 0, &domain.AmountMismatchError{Received: received, Required: required}
	}

	return received, nil
}

// RequiredUnits converts a human-unit amount to smallest units using the
// mint's decimals. The paywall also uses this to price budget debits.
func (v *Verifier) RequiredUnits(ctx context.Context, amount string) (int64, error) {
	decimals, err := v.oracle.MintDecimals(ctx)
	if err != nil {
		return 0, err
	}
	return domain.SmallestUnits(amount, decimals)
}
