package status

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/noah-isme/payone-gateway/internal/obs"
)

// TransitionStore reads and writes transaction state keyed by the gateway
// transaction id.
type TransitionStore interface {
	TransactionState(ctx context.Context, txID string) (string, error)
	SetTransactionState(ctx context.Context, txID, state string) error
}

// Service applies lifecycle transitions to stored transactions.
type Service struct {
	store   TransitionStore
	mapping map[string]Transition
	logger  zerolog.Logger
}

// NewService builds a Service. overrides extends or replaces the default
// txaction keyword mapping.
func NewService(store TransitionStore, logger zerolog.Logger, overrides map[string]string) *Service {
	return &Service{
		store:   store,
		mapping: buildMapping(overrides),
		logger:  logger.With().Str("component", "status").Logger(),
	}
}

// TransitionForTxAction resolves a processor keyword to a transition.
func (s *Service) TransitionForTxAction(txAction string) (Transition, bool) {
	t, ok := s.mapping[txAction]
	return t, ok
}

// Apply runs one transition on the transaction with the given gateway id and
// returns the resulting state. Illegal transitions return
// ErrTransitionRejected and leave the stored state untouched.
func (s *Service) Apply(ctx context.Context, txID string, t Transition) (State, error) {
	rule, ok := transitionRules[t]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownTransition, t)
	}
	current, err := s.store.TransactionState(ctx, txID)
	if err != nil {
		return "", fmt.Errorf("load state for %s: %w", txID, err)
	}
	if !rule.from[State(current)] {
		s.logger.Warn().
			Str("txid", txID).
			Str("transition", string(t)).
			Str("current_state", current).
			Msg("transition rejected")
		s.countTransition(t, "rejected")
		return "", fmt.Errorf("%w: %s from %s", ErrTransitionRejected, t, current)
	}
	if err := s.store.SetTransactionState(ctx, txID, string(rule.target)); err != nil {
		return "", fmt.Errorf("persist state for %s: %w", txID, err)
	}
	s.logger.Info().
		Str("txid", txID).
		Str("transition", string(t)).
		Str("from_state", current).
		Str("to_state", string(rule.target)).
		Msg("transition applied")
	s.countTransition(t, "applied")
	return rule.target, nil
}

// HandleTxAction resolves a processor keyword and applies the mapped
// transition. Unmapped keywords are logged and ignored; the second return
// value reports whether a transition ran.
func (s *Service) HandleTxAction(ctx context.Context, txID, txAction string) (State, bool, error) {
	t, ok := s.mapping[txAction]
	if !ok {
		s.logger.Warn().
			Str("txid", txID).
			Str("txaction", txAction).
			Msg("unmapped txaction ignored")
		return "", false, nil
	}
	state, err := s.Apply(ctx, txID, t)
	if err != nil {
		return "", false, err
	}
	return state, true, nil
}

func (s *Service) countTransition(t Transition, result string) {
	if obs.StatusTransitionTotal != nil {
		obs.StatusTransitionTotal.WithLabelValues(string(t), result).Inc()
	}
}
