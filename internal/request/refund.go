package request

import (
	"fmt"
	"strings"

	"github.com/noah-isme/payone-gateway/internal/payone"
)

// RefundBuilder builds follow-up refund requests for every payment method. A
// refund travels as a debit with the amount arithmetically negated; a zero
// requested amount refunds everything captured so far.
type RefundBuilder struct{}

// NewRefundBuilder claims (any method, refund).
func NewRefundBuilder() *RefundBuilder {
	return &RefundBuilder{}
}

func (b *RefundBuilder) Supports(ctx Context) bool {
	return ctx.Action == ActionRefund
}

func (b *RefundBuilder) Build(ctx Context) (payone.Params, error) {
	tx := ctx.Transaction
	if tx == nil || tx.TxID == "" {
		return nil, ErrMissingTransactionID
	}
	if tx.SequenceNumber <= 0 {
		return nil, ErrMissingSequenceNumber
	}

	amount := minorUnits(ctx.Order.Amount, ctx.Order.Currency)
	if amount == 0 {
		amount = tx.CapturedAmount
	}
	params := payone.Params{
		"request":        payone.ActionDebit,
		"txid":           tx.TxID,
		"sequencenumber": fmt.Sprintf("%d", tx.SequenceNumber),
		"amount":         fmt.Sprintf("%d", -amount),
	}

	// Direct debit refunds need the bank account again; when the form does
	// not resubmit it, the IBAN from the last stored request is reused.
	if ctx.PaymentMethod == MethodDebit {
		iban := ctx.FormValue("iban")
		if iban == "" && tx.LatestRequest != nil {
			iban = tx.LatestRequest["iban"]
		}
		if iban != "" {
			params["iban"] = iban
		}
		holder := ctx.FormValue("account_holder")
		if holder == "" && tx.LatestRequest != nil {
			holder = tx.LatestRequest["bankaccountholder"]
		}
		if holder != "" {
			params["bankaccountholder"] = holder
		}
	}

	// Ratepay refunds settle against the merchant account and must repeat
	// the shop id the initial request ran under.
	if strings.HasPrefix(ctx.PaymentMethod, "ratepay") {
		params["settleaccount"] = "yes"
		if tx.LatestRequest != nil {
			if shopID := tx.LatestRequest["add_paydata[shop_id]"]; shopID != "" {
				params["add_paydata[shop_id]"] = shopID
			}
		}
	}

	return params, nil
}
