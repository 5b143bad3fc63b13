package request_test

import (
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/payone-gateway/internal/request"
	"github.com/noah-isme/payone-gateway/internal/txdata"
)

func newDefaultFactory(t *testing.T) *request.Factory {
	t.Helper()
	return request.NewDefaultFactory(validator.New())
}

func refundContext(tx *txdata.Transaction) request.Context {
	return request.Context{
		Action:        request.ActionRefund,
		PaymentMethod: request.MethodCreditCard,
		Order:         request.Order{Reference: "ord-7", Amount: 100, Currency: "EUR"},
		Transaction:   tx,
	}
}

func TestRefundNegatesAmount(t *testing.T) {
	t.Parallel()

	params, err := newDefaultFactory(t).Build(refundContext(&txdata.Transaction{
		TxID:           "tx-99",
		SequenceNumber: 1,
	}))
	require.NoError(t, err)
	require.Equal(t, "debit", params["request"])
	require.Equal(t, "-10000", params["amount"])
	require.Equal(t, "tx-99", params["txid"])
	require.Equal(t, "1", params["sequencenumber"])
	require.Equal(t, "EUR", params["currency"])
}

func TestRefundDefaultsToCapturedAmount(t *testing.T) {
	t.Parallel()

	ctx := refundContext(&txdata.Transaction{
		TxID:           "tx-99",
		SequenceNumber: 2,
		CapturedAmount: 4550,
	})
	ctx.Order.Amount = 0

	params, err := newDefaultFactory(t).Build(ctx)
	require.NoError(t, err)
	require.Equal(t, "-4550", params["amount"])
	require.Equal(t, "2", params["sequencenumber"])
}

func TestRefundRequiresTransactionID(t *testing.T) {
	t.Parallel()

	_, err := newDefaultFactory(t).Build(refundContext(&txdata.Transaction{SequenceNumber: 1}))
	require.ErrorIs(t, err, request.ErrMissingTransactionID)

	_, err = newDefaultFactory(t).Build(refundContext(nil))
	require.ErrorIs(t, err, request.ErrMissingTransactionID)
}

func TestRefundRequiresSequenceNumber(t *testing.T) {
	t.Parallel()

	_, err := newDefaultFactory(t).Build(refundContext(&txdata.Transaction{TxID: "tx-99"}))
	require.ErrorIs(t, err, request.ErrMissingSequenceNumber)
}

func TestRefundDebitReusesStoredIBAN(t *testing.T) {
	t.Parallel()

	ctx := refundContext(&txdata.Transaction{
		TxID:           "tx-99",
		SequenceNumber: 1,
		LatestRequest: map[string]string{
			"iban":              "DE89370400440532013000",
			"bankaccountholder": "Max Mustermann",
		},
	})
	ctx.PaymentMethod = request.MethodDebit

	params, err := newDefaultFactory(t).Build(ctx)
	require.NoError(t, err)
	require.Equal(t, "DE89370400440532013000", params["iban"])
	require.Equal(t, "Max Mustermann", params["bankaccountholder"])
}

func TestRefundDebitPrefersSubmittedIBAN(t *testing.T) {
	t.Parallel()

	ctx := refundContext(&txdata.Transaction{
		TxID:           "tx-99",
		SequenceNumber: 1,
		LatestRequest:  map[string]string{"iban": "DE89370400440532013000"},
	})
	ctx.PaymentMethod = request.MethodDebit
	ctx.Form = map[string]string{"iban": "DE02120300000000202051"}

	params, err := newDefaultFactory(t).Build(ctx)
	require.NoError(t, err)
	require.Equal(t, "DE02120300000000202051", params["iban"])
}

func TestRefundRatepayRepeatsShopID(t *testing.T) {
	t.Parallel()

	ctx := refundContext(&txdata.Transaction{
		TxID:           "tx-99",
		SequenceNumber: 1,
		LatestRequest:  map[string]string{"add_paydata[shop_id]": "shop-88"},
	})
	ctx.PaymentMethod = "ratepay_invoice"

	params, err := newDefaultFactory(t).Build(ctx)
	require.NoError(t, err)
	require.Equal(t, "yes", params["settleaccount"])
	require.Equal(t, "shop-88", params["add_paydata[shop_id]"])
}
