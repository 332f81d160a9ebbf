package paywall

import (
	"github.com/google/uuid"

	"github.com/punchamoorthee/x402gate/internal/domain"
)

// NewInvoice builds a payment challenge for a resource with a freshly
// generated single-use reference. The reference is not reserved anywhere; it
// becomes meaningful only when a verified payment claims it.
func NewInvoice(res domain.Resource) domain.Invoice {
	return domain.Invoice{
		Protocol:  domain.ProtocolTag,
		Recipient: res.Recipient,
		Amount:    res.Price,
		Asset:     res.Asset,
		Reference: uuid.NewString(),
	}
}
