package domain

import (
	"fmt"
	"math/big"
)

// ProtocolTag identifies the payment protocol in 402 challenges.
const ProtocolTag = "x402"

// Resource describes a priced route. Static configuration, read-only at
// request time.
type Resource struct {
	// Price in human token units, e.g. "0.01".
	Price string
	// Asset is the SPL token mint address.
	Asset string
	// Recipient is the wallet address payments must land on.
	Recipient string
}

// Invoice is the 402 challenge payload. The reference is single-use and
// becomes meaningful only once a successful verification claims it.
type Invoice struct {
	Protocol  string `json:"protocol"`
	Recipient string `json:"recipient"`
	Amount    string `json:"amount"`
	Asset     string `json:"asset"`
	Reference string `json:"reference"`
}

// DepositRequest is the payload for confirming a budget deposit.
type DepositRequest struct {
	Signature     string `json:"signature"`
	Reference     string `json:"reference"`
	PayerIdentity string `json:"payerIdentity"`
	Amount        string `json:"amount"`
}

// DepositResponse reports the credited balance in smallest token units.
type DepositResponse struct {
	Success    bool  `json:"success"`
	NewBalance int64 `json:"newBalance"`
}

// BudgetResponse reports a payer's remaining balance in smallest token units.
type BudgetResponse struct {
	CurrentBudget int64 `json:"currentBudget"`
}

// SmallestUnits converts a human-unit decimal amount to the token's smallest
// integer unit: floor(amount * 10^decimals). The arithmetic stays in big.Rat
// so decimal prices like "0.01" never round through a float.
func SmallestUnits(amount string, decimals uint8) (int64, error) {
	r, ok := new(big.Rat).SetString(amount)
	if !ok {
		return 0, fmt.Errorf("invalid decimal amount %q", amount)
	}
	if r.Sign() < 0 {
		return 0, fmt.Errorf("negative amount %q", amount)
	}
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	r.Mul(r, new(big.Rat).SetInt(scale))

	// Quo truncates toward zero; amount is non-negative so this is floor.
	units := new(big.Int).Quo(r.Num(), r.Denom())
	if !units.IsInt64() {
		return 0, fmt.Errorf("amount %q overflows smallest-unit range", amount)
	}
	return units.Int64(), nil
}
