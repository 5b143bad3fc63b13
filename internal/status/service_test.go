package status_test

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/payone-gateway/internal/status"
	"github.com/noah-isme/payone-gateway/internal/txdata"
)

func newStoreWithTransaction(t *testing.T, state string) *txdata.MemoryStore {
	t.Helper()
	store := txdata.NewMemoryStore()
	err := store.Create(context.Background(), &txdata.Transaction{
		OrderReference: "ord-1",
		PaymentMethod:  "debit",
		TxID:           "tx-1",
		State:          state,
	})
	require.NoError(t, err)
	return store
}

func TestHandleTxActionApplies(t *testing.T) {
	t.Parallel()

	store := newStoreWithTransaction(t, string(status.StateOpen))
	svc := status.NewService(store, zerolog.Nop(), nil)

	state, applied, err := svc.HandleTxAction(context.Background(), "tx-1", "appointed")
	require.NoError(t, err)
	require.True(t, applied)
	require.Equal(t, status.StateAuthorized, state)

	stored, err := store.TransactionState(context.Background(), "tx-1")
	require.NoError(t, err)
	require.Equal(t, string(status.StateAuthorized), stored)
}

func TestHandleTxActionUnknownKeywordIgnored(t *testing.T) {
	t.Parallel()

	store := newStoreWithTransaction(t, string(status.StateOpen))
	svc := status.NewService(store, zerolog.Nop(), nil)

	_, applied, err := svc.HandleTxAction(context.Background(), "tx-1", "transfer")
	require.NoError(t, err)
	require.False(t, applied)

	stored, err := store.TransactionState(context.Background(), "tx-1")
	require.NoError(t, err)
	require.Equal(t, string(status.StateOpen), stored)
}

func TestApplyRejectsIllegalTransition(t *testing.T) {
	t.Parallel()

	store := newStoreWithTransaction(t, string(status.StatePaid))
	svc := status.NewService(store, zerolog.Nop(), nil)

	// a second pay on an already paid transaction is rejected
	_, err := svc.Apply(context.Background(), "tx-1", status.TransitionPay)
	require.ErrorIs(t, err, status.ErrTransitionRejected)

	stored, err := store.TransactionState(context.Background(), "tx-1")
	require.NoError(t, err)
	require.Equal(t, string(status.StatePaid), stored)
}

func TestApplyUnknownTransition(t *testing.T) {
	t.Parallel()

	store := newStoreWithTransaction(t, string(status.StateOpen))
	svc := status.NewService(store, zerolog.Nop(), nil)

	_, err := svc.Apply(context.Background(), "tx-1", status.Transition("teleport"))
	require.ErrorIs(t, err, status.ErrUnknownTransition)
}

func TestMappingOverrides(t *testing.T) {
	t.Parallel()

	store := newStoreWithTransaction(t, string(status.StateOpen))
	svc := status.NewService(store, zerolog.Nop(), map[string]string{
		"appointed": string(status.TransitionPay),
		"custom":    string(status.TransitionFail),
		"broken":    "not_a_transition",
	})

	transition, ok := svc.TransitionForTxAction("appointed")
	require.True(t, ok)
	require.Equal(t, status.TransitionPay, transition)

	transition, ok = svc.TransitionForTxAction("custom")
	require.True(t, ok)
	require.Equal(t, status.TransitionFail, transition)

	_, ok = svc.TransitionForTxAction("broken")
	require.False(t, ok)
}

func TestLifecycleSequence(t *testing.T) {
	t.Parallel()

	store := newStoreWithTransaction(t, string(status.StateOpen))
	svc := status.NewService(store, zerolog.Nop(), nil)
	ctx := context.Background()

	state, err := svc.Apply(ctx, "tx-1", status.TransitionAuthorize)
	require.NoError(t, err)
	require.Equal(t, status.StateAuthorized, state)

	state, err = svc.Apply(ctx, "tx-1", status.TransitionPayPartially)
	require.NoError(t, err)
	require.Equal(t, status.StatePartiallyPaid, state)

	state, err = svc.Apply(ctx, "tx-1", status.TransitionPay)
	require.NoError(t, err)
	require.Equal(t, status.StatePaid, state)

	state, err = svc.Apply(ctx, "tx-1", status.TransitionRefundPartially)
	require.NoError(t, err)
	require.Equal(t, status.StatePartiallyRefunded, state)

	state, err = svc.Apply(ctx, "tx-1", status.TransitionRefund)
	require.NoError(t, err)
	require.Equal(t, status.StateRefunded, state)

	_, err = svc.Apply(ctx, "tx-1", status.TransitionCancel)
	require.ErrorIs(t, err, status.ErrTransitionRejected)
}
