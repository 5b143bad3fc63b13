package webhook_test

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/payone-gateway/internal/lock"
	"github.com/noah-isme/payone-gateway/internal/status"
	"github.com/noah-isme/payone-gateway/internal/txdata"
	"github.com/noah-isme/payone-gateway/internal/webhook"
)

const portalKey = "portal-key"

type fixture struct {
	handler *webhook.Handler
	store   *txdata.MemoryStore
	redis   *miniredis.Miniredis
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mini := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mini.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := txdata.NewMemoryStore()
	statusSvc := status.NewService(store, zerolog.Nop(), nil)
	locker := lock.NewLocker(client, time.Second, 5*time.Millisecond)
	handler := webhook.NewHandler(store, statusSvc, client, locker, portalKey, time.Hour, zerolog.Nop())
	return &fixture{handler: handler, store: store, redis: mini}
}

func (f *fixture) createTransaction(t *testing.T, state string) {
	t.Helper()
	err := f.store.Create(context.Background(), &txdata.Transaction{
		OrderReference: "ord-1",
		PaymentMethod:  "debit",
		TxID:           "tx-1",
		State:          state,
	})
	require.NoError(t, err)
}

func notification(extra map[string]string) url.Values {
	sum := md5.Sum([]byte(portalKey))
	form := url.Values{}
	form.Set("key", hex.EncodeToString(sum[:]))
	form.Set("txaction", "appointed")
	form.Set("txid", "tx-1")
	form.Set("sequencenumber", "0")
	for k, v := range extra {
		form.Set(k, v)
	}
	return form
}

func deliver(t *testing.T, handler *webhook.Handler, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/payone/webhook", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	handler.Handle(rec, req)
	return rec
}

func TestAppointedTransitionsTransaction(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.createTransaction(t, string(status.StateOpen))

	rec := deliver(t, f.handler, notification(nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "TSOK", rec.Body.String())

	state, err := f.store.TransactionState(context.Background(), "tx-1")
	require.NoError(t, err)
	require.Equal(t, string(status.StateAuthorized), state)
	require.Len(t, f.store.WebhookEvents(), 1)
}

func TestRedeliveryIsIdempotent(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.createTransaction(t, string(status.StateOpen))
	form := notification(nil)

	rec := deliver(t, f.handler, form)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "TSOK", rec.Body.String())

	rec = deliver(t, f.handler, form)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "TSOK", rec.Body.String())

	// the duplicate was acknowledged without reprocessing
	require.Len(t, f.store.WebhookEvents(), 1)
	state, err := f.store.TransactionState(context.Background(), "tx-1")
	require.NoError(t, err)
	require.Equal(t, string(status.StateAuthorized), state)
}

func TestRetryAfterUnresolvedTransactionIsProcessed(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	form := notification(nil)

	// the notification races the order creation; the first delivery cannot
	// be resolved and is acknowledged without leaving a replay marker
	rec := deliver(t, f.handler, form)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "TSOK", rec.Body.String())
	require.Empty(t, f.store.WebhookEvents())

	f.createTransaction(t, string(status.StateOpen))

	rec = deliver(t, f.handler, form)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "TSOK", rec.Body.String())

	state, err := f.store.TransactionState(context.Background(), "tx-1")
	require.NoError(t, err)
	require.Equal(t, string(status.StateAuthorized), state)
	require.Len(t, f.store.WebhookEvents(), 1)
}

func TestRedeliveryAfterMarkerExpiryDoesNotDuplicateEvent(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.createTransaction(t, string(status.StateOpen))
	form := notification(nil)

	rec := deliver(t, f.handler, form)
	require.Equal(t, http.StatusOK, rec.Code)

	// the replay marker expired; the store-level dedup still holds
	f.redis.FastForward(2 * time.Hour)

	rec = deliver(t, f.handler, form)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "TSOK", rec.Body.String())
	require.Len(t, f.store.WebhookEvents(), 1)
}

func TestUnknownTransactionIsAcknowledged(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	rec := deliver(t, f.handler, notification(map[string]string{"txid": "unknown"}))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "TSOK", rec.Body.String())
	require.Empty(t, f.store.WebhookEvents())
}

func TestRejectedTransitionStillAcknowledged(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.createTransaction(t, string(status.StatePaid))

	// appointed is illegal from paid; the processor still gets its ack
	rec := deliver(t, f.handler, notification(nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "TSOK", rec.Body.String())

	state, err := f.store.TransactionState(context.Background(), "tx-1")
	require.NoError(t, err)
	require.Equal(t, string(status.StatePaid), state)
}

func TestMissingTxActionRejected(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	form := notification(nil)
	form.Del("txaction")

	rec := deliver(t, f.handler, form)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestInvalidKeyRejected(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	rec := deliver(t, f.handler, notification(map[string]string{"key": "wrong"}))
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestPayloadIsNormalizedBeforePersisting(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.createTransaction(t, string(status.StateOpen))

	form := notification(map[string]string{"lastname": "M\xfcller"})
	rec := deliver(t, f.handler, form)
	require.Equal(t, http.StatusOK, rec.Code)

	events := f.store.WebhookEvents()
	require.Len(t, events, 1)
	stored := events[0].Payload["lastname"]
	require.True(t, utf8.ValidString(stored))
	require.Equal(t, "Müller", stored)
}

func TestSupports(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	require.True(t, f.handler.Supports(map[string]string{"txaction": "appointed"}))
	require.False(t, f.handler.Supports(map[string]string{"txid": "tx-1"}))
}
