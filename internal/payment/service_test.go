package payment_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/payone-gateway/internal/common"
	"github.com/noah-isme/payone-gateway/internal/fingerprint"
	"github.com/noah-isme/payone-gateway/internal/payment"
	"github.com/noah-isme/payone-gateway/internal/payone"
	"github.com/noah-isme/payone-gateway/internal/request"
	"github.com/noah-isme/payone-gateway/internal/status"
	"github.com/noah-isme/payone-gateway/internal/txdata"
)

type fakeGateway struct {
	response payone.Response
	err      error
	requests []payone.Params
}

func (g *fakeGateway) Request(_ context.Context, params payone.Params) (payone.Response, error) {
	g.requests = append(g.requests, params.Clone())
	return g.response, g.err
}

type fixture struct {
	service     *payment.Service
	store       *txdata.MemoryStore
	gateway     *fakeGateway
	redisClient *redis.Client
}

func newFixture(t *testing.T, gateway *fakeGateway) *fixture {
	t.Helper()
	mini := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mini.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := txdata.NewMemoryStore()
	statusSvc := status.NewService(store, zerolog.Nop(), nil)
	fp := fingerprint.NewService(client, time.Minute)
	factory := request.NewDefaultFactory(validator.New())
	svc := payment.NewService(store, factory, gateway, statusSvc, fp, payment.Options{
		DebitAuthorizationMethod:       "authorization",
		InstallmentAuthorizationMethod: "authorization",
	}, zerolog.Nop())
	return &fixture{service: svc, store: store, gateway: gateway, redisClient: client}
}

func debitPayInput() payment.PayInput {
	return payment.PayInput{
		OrderReference: "ord-1",
		PaymentMethod:  request.MethodDebit,
		Amount:         100,
		Currency:       "EUR",
		Customer:       request.Customer{FirstName: "Max", LastName: "Mustermann", CountryCode: "DE"},
		Form: map[string]string{
			"iban":           "DE89370400440532013000",
			"account_holder": "Max Mustermann",
		},
		SessionID: "session-1",
	}
}

func TestPayApprovedTransitionsToPaid(t *testing.T) {
	t.Parallel()

	gateway := &fakeGateway{response: payone.Response{
		Status: payone.StatusApproved,
		TxID:   "tx-1",
		Raw:    map[string]string{"status": "APPROVED", "txid": "tx-1"},
	}}
	f := newFixture(t, gateway)

	result, err := f.service.Pay(context.Background(), debitPayInput())
	require.NoError(t, err)
	require.Equal(t, "tx-1", result.TxID)
	require.Equal(t, string(status.StatePaid), result.State)

	tx, err := f.store.ByTxID(context.Background(), "tx-1")
	require.NoError(t, err)
	require.Equal(t, int64(10000), tx.Amount)
	require.Equal(t, "authorization", tx.AuthorizationMethod)
	// the portal key never reaches storage
	require.NotContains(t, tx.LatestRequest, "key")
}

func TestPayDeclinedSurfacesCustomerMessage(t *testing.T) {
	t.Parallel()

	gateway := &fakeGateway{
		response: payone.Response{Status: payone.StatusError, Raw: map[string]string{"status": "ERROR"}},
		err: &payone.RequestError{
			ErrorCode:       "351",
			ErrorMessage:    "bank account blocked",
			CustomerMessage: "Please use a different account.",
		},
	}
	f := newFixture(t, gateway)

	_, err := f.service.Pay(context.Background(), debitPayInput())
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, "gateway_declined", appErr.Code)
	require.Equal(t, "Please use a different account.", appErr.Message)

	tx, err := f.store.ByReference(context.Background(), "ord-1")
	require.NoError(t, err)
	require.Equal(t, string(status.StateFailed), tx.State)
}

func TestPayReleasesFingerprintOnEveryPath(t *testing.T) {
	t.Parallel()

	run := func(t *testing.T, gateway *fakeGateway) *fixture {
		f := newFixture(t, gateway)
		input := debitPayInput()
		_, _ = f.service.Pay(context.Background(), input)

		keys, err := f.redisClient.Keys(context.Background(), "fingerprint:*").Result()
		require.NoError(t, err)
		require.Empty(t, keys)
		return f
	}

	t.Run("success", func(t *testing.T) {
		t.Parallel()
		run(t, &fakeGateway{response: payone.Response{Status: payone.StatusApproved, TxID: "tx-1"}})
	})
	t.Run("failure", func(t *testing.T) {
		t.Parallel()
		run(t, &fakeGateway{err: &payone.TransportError{Err: errors.New("connection reset")}})
	})
}

func TestPaySecuredMethodInjectsDeviceToken(t *testing.T) {
	t.Parallel()

	gateway := &fakeGateway{response: payone.Response{Status: payone.StatusApproved, TxID: "tx-1"}}
	f := newFixture(t, gateway)

	input := payment.PayInput{
		OrderReference: "ord-2",
		PaymentMethod:  request.MethodSecuredInstallment,
		Amount:         240,
		Currency:       "EUR",
		Customer: request.Customer{
			FirstName: "Max", LastName: "Mustermann", CountryCode: "DE",
			PhoneNumber: "0049111222333", BirthDate: "2000-01-01",
		},
		Form:      map[string]string{"installment_option_id": "option-5"},
		SessionID: "session-7",
	}
	_, err := f.service.Pay(context.Background(), input)
	require.NoError(t, err)

	require.Len(t, f.gateway.requests, 1)
	require.NotEmpty(t, f.gateway.requests[0]["add_paydata[device_token]"])
}

func TestPayDuplicateOrderReference(t *testing.T) {
	t.Parallel()

	gateway := &fakeGateway{response: payone.Response{Status: payone.StatusApproved, TxID: "tx-1"}}
	f := newFixture(t, gateway)

	_, err := f.service.Pay(context.Background(), debitPayInput())
	require.NoError(t, err)

	input := debitPayInput()
	_, err = f.service.Pay(context.Background(), input)
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, "duplicate_order", appErr.Code)
}

func TestCaptureAssignsSequenceAndTransitions(t *testing.T) {
	t.Parallel()

	gateway := &fakeGateway{response: payone.Response{Status: payone.StatusApproved}}
	f := newFixture(t, gateway)

	tx := &txdata.Transaction{
		OrderReference: "ord-1",
		PaymentMethod:  request.MethodCreditCard,
		TxID:           "tx-1",
		State:          string(status.StateAuthorized),
		Amount:         10000,
		Currency:       "EUR",
	}
	require.NoError(t, f.store.Create(context.Background(), tx))

	result, err := f.service.Capture(context.Background(), tx.ID, 50)
	require.NoError(t, err)
	require.Equal(t, string(status.StatePartiallyPaid), result.State)

	require.Len(t, gateway.requests, 1)
	require.Equal(t, "capture", gateway.requests[0]["request"])
	require.Equal(t, "1", gateway.requests[0]["sequencenumber"])
	require.Equal(t, "5000", gateway.requests[0]["amount"])

	reloaded, err := f.store.ByTxID(context.Background(), "tx-1")
	require.NoError(t, err)
	require.Equal(t, int64(5000), reloaded.CapturedAmount)

	// settling the remainder moves the transaction to paid
	result, err = f.service.Capture(context.Background(), tx.ID, 50)
	require.NoError(t, err)
	require.Equal(t, string(status.StatePaid), result.State)
	require.Equal(t, "2", gateway.requests[1]["sequencenumber"])
}

func TestInteractionHistoryIsAppended(t *testing.T) {
	t.Parallel()

	gateway := &fakeGateway{response: payone.Response{
		Status: payone.StatusApproved,
		TxID:   "tx-1",
		Raw:    map[string]string{"status": "APPROVED", "txid": "tx-1"},
	}}
	f := newFixture(t, gateway)

	result, err := f.service.Pay(context.Background(), debitPayInput())
	require.NoError(t, err)

	_, err = f.service.Capture(context.Background(), result.TransactionID, 50)
	require.NoError(t, err)
	_, err = f.service.Capture(context.Background(), result.TransactionID, 50)
	require.NoError(t, err)

	// every interaction stays on file; the latest snapshot never replaces it
	records, err := f.store.Records(context.Background(), result.TransactionID)
	require.NoError(t, err)
	require.Len(t, records, 3)
	require.Equal(t, 0, records[0].SequenceNumber)
	require.Equal(t, "authorization", records[0].Request["request"])
	require.Equal(t, "APPROVED", records[0].Response["status"])
	require.Equal(t, 1, records[1].SequenceNumber)
	require.Equal(t, "capture", records[1].Request["request"])
	require.Equal(t, 2, records[2].SequenceNumber)
	require.Equal(t, "capture", records[2].Request["request"])

	tx, err := f.store.ByID(context.Background(), result.TransactionID)
	require.NoError(t, err)
	require.Equal(t, "capture", tx.LatestRequest["request"])
}

func TestRefundRequiresApprovedStatus(t *testing.T) {
	t.Parallel()

	gateway := &fakeGateway{response: payone.Response{Status: payone.StatusPending}}
	f := newFixture(t, gateway)

	tx := &txdata.Transaction{
		OrderReference: "ord-1",
		PaymentMethod:  request.MethodCreditCard,
		TxID:           "tx-1",
		State:          string(status.StatePaid),
		Amount:         10000,
		CapturedAmount: 10000,
		Currency:       "EUR",
	}
	require.NoError(t, f.store.Create(context.Background(), tx))

	_, err := f.service.Refund(context.Background(), tx.ID, 100)
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, "refund_rejected", appErr.Code)

	reloaded, err := f.store.ByTxID(context.Background(), "tx-1")
	require.NoError(t, err)
	require.Zero(t, reloaded.RefundedAmount)
}

func TestRefundFullAmount(t *testing.T) {
	t.Parallel()

	gateway := &fakeGateway{response: payone.Response{Status: payone.StatusApproved}}
	f := newFixture(t, gateway)

	tx := &txdata.Transaction{
		OrderReference: "ord-1",
		PaymentMethod:  request.MethodCreditCard,
		TxID:           "tx-1",
		State:          string(status.StatePaid),
		Amount:         10000,
		CapturedAmount: 10000,
		Currency:       "EUR",
	}
	require.NoError(t, f.store.Create(context.Background(), tx))

	result, err := f.service.Refund(context.Background(), tx.ID, 100)
	require.NoError(t, err)
	require.Equal(t, string(status.StateRefunded), result.State)

	require.Len(t, gateway.requests, 1)
	require.Equal(t, "debit", gateway.requests[0]["request"])
	require.Equal(t, "-10000", gateway.requests[0]["amount"])

	reloaded, err := f.store.ByTxID(context.Background(), "tx-1")
	require.NoError(t, err)
	require.Equal(t, int64(10000), reloaded.RefundedAmount)
}

func TestFollowUpWithoutGatewayID(t *testing.T) {
	t.Parallel()

	f := newFixture(t, &fakeGateway{})
	tx := &txdata.Transaction{OrderReference: "ord-1", PaymentMethod: request.MethodCreditCard, State: string(status.StateOpen)}
	require.NoError(t, f.store.Create(context.Background(), tx))

	_, err := f.service.Capture(context.Background(), tx.ID, 10)
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, "missing_txid", appErr.Code)
	require.ErrorIs(t, err, request.ErrMissingTransactionID)
}
