package request

import (
	"fmt"

	"github.com/noah-isme/payone-gateway/internal/payone"
)

// CaptureBuilder builds follow-up capture requests for every payment method.
// The caller assigns the sequence number to the transaction snapshot before
// dispatching.
type CaptureBuilder struct{}

// NewCaptureBuilder claims (any method, capture).
func NewCaptureBuilder() *CaptureBuilder {
	return &CaptureBuilder{}
}

func (b *CaptureBuilder) Supports(ctx Context) bool {
	return ctx.Action == ActionCapture
}

func (b *CaptureBuilder) Build(ctx Context) (payone.Params, error) {
	tx := ctx.Transaction
	if tx == nil || tx.TxID == "" {
		return nil, ErrMissingTransactionID
	}
	if tx.SequenceNumber <= 0 {
		return nil, ErrMissingSequenceNumber
	}
	amount := minorUnits(ctx.Order.Amount, ctx.Order.Currency)
	if amount == 0 {
		// A capture without an explicit amount settles the full
		// authorized amount.
		amount = tx.Amount
	}
	return payone.Params{
		"request":        payone.ActionCapture,
		"txid":           tx.TxID,
		"sequencenumber": fmt.Sprintf("%d", tx.SequenceNumber),
		"amount":         fmt.Sprintf("%d", amount),
		"capturemode":    "completed",
	}, nil
}
