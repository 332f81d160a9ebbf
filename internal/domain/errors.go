package domain

import (
	"errors"
	"fmt"
)

// Verification and access failures surfaced to clients as typed 401 reasons,
// mapped to HTTP codes at the API edge.
var (
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrTransactionFailed   = errors.New("transaction failed on chain")
	ErrReferenceMismatch   = errors.New("memo reference mismatch")
	ErrAlreadyClaimed      = errors.New("payment reference already claimed")
	ErrOracleUnavailable   = errors.New("ledger oracle unavailable")
)

// AmountMismatchError reports an exact-integer amount check failure. Both
// sides are in smallest token units so the diagnostic is unambiguous.
type AmountMismatchError struct {
	Received int64
	Required int64
}

func (e *AmountMismatchError) Error() string {
	return fmt.Sprintf("amount mismatch: received %d smallest units, required %d", e.Received, e.Required)
}
