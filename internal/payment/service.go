package payment

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/payone-gateway/internal/common"
	"github.com/noah-isme/payone-gateway/internal/fingerprint"
	"github.com/noah-isme/payone-gateway/internal/obs"
	"github.com/noah-isme/payone-gateway/internal/payone"
	"github.com/noah-isme/payone-gateway/internal/request"
	"github.com/noah-isme/payone-gateway/internal/status"
	"github.com/noah-isme/payone-gateway/internal/txdata"
)

// Gateway is the outbound processor call used by the service. *payone.Client
// satisfies it.
type Gateway interface {
	Request(ctx context.Context, params payone.Params) (payone.Response, error)
}

// Options tune per-method behaviour from configuration.
type Options struct {
	// DebitAuthorizationMethod and InstallmentAuthorizationMethod choose
	// between "authorization" and "preauthorization" for the initial
	// request of the respective method family.
	DebitAuthorizationMethod       string
	InstallmentAuthorizationMethod string
}

// Service orchestrates synchronous payment operations: build parameters,
// call the gateway, persist transaction data and feed the synchronous result
// into the state machine.
type Service struct {
	store       txdata.Store
	factory     *request.Factory
	gateway     Gateway
	status      *status.Service
	fingerprint *fingerprint.Service
	opts        Options
	logger      zerolog.Logger
	tracer      trace.Tracer
}

// NewService wires the payment orchestration.
func NewService(store txdata.Store, factory *request.Factory, gateway Gateway, statusSvc *status.Service, fp *fingerprint.Service, opts Options, logger zerolog.Logger) *Service {
	return &Service{
		store:       store,
		factory:     factory,
		gateway:     gateway,
		status:      statusSvc,
		fingerprint: fp,
		opts:        opts,
		logger:      logger.With().Str("component", "payment").Logger(),
		tracer:      otel.Tracer("payment"),
	}
}

// PayInput is one initial payment attempt.
type PayInput struct {
	OrderReference string
	PaymentMethod  string
	Amount         float64
	Currency       string
	Customer       request.Customer
	LineItems      []request.LineItem
	Form           map[string]string
	// SessionID scopes the device-fingerprint token for secured methods.
	SessionID string
}

// Result is the outcome of a synchronous gateway operation.
type Result struct {
	TransactionID string `json:"transaction_id"`
	TxID          string `json:"txid"`
	Status        string `json:"status"`
	RedirectURL   string `json:"redirect_url,omitempty"`
	State         string `json:"state"`
}

// Pay runs an initial payment request. The device-fingerprint token, when a
// session is given, is released on every exit path.
func (s *Service) Pay(ctx context.Context, in PayInput) (*Result, error) {
	ctx, span := s.tracer.Start(ctx, "payment.pay")
	defer span.End()

	if in.SessionID != "" {
		defer func() {
			releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			if err := s.fingerprint.Release(releaseCtx, in.SessionID); err != nil {
				s.logger.Warn().Err(err).Str("session_id", in.SessionID).Msg("fingerprint release failed")
			}
		}()
		if isSecuredMethod(in.PaymentMethod) && in.Form["device_token"] == "" {
			token, err := s.fingerprint.Acquire(ctx, in.SessionID)
			if err != nil {
				return nil, common.NewAppError("fingerprint_unavailable", "payment temporarily unavailable", http.StatusServiceUnavailable, err)
			}
			if in.Form == nil {
				in.Form = map[string]string{}
			}
			in.Form["device_token"] = token
		}
	}

	action := s.initialAction(in.PaymentMethod)
	reqCtx := request.Context{
		Action:        action,
		PaymentMethod: in.PaymentMethod,
		Order: request.Order{
			Reference: in.OrderReference,
			Amount:    in.Amount,
			Currency:  in.Currency,
			LineItems: in.LineItems,
		},
		Customer: in.Customer,
		Form:     in.Form,
	}
	params, err := s.factory.Build(reqCtx)
	if err != nil {
		return nil, mapBuildError(err)
	}

	tx := &txdata.Transaction{
		OrderReference:      in.OrderReference,
		PaymentMethod:       in.PaymentMethod,
		State:               string(status.StateOpen),
		AuthorizationMethod: params["request"],
		Amount:              parseAmount(params["amount"]),
		Currency:            strings.ToUpper(in.Currency),
		LatestRequest:       txdata.SanitizeRequest(params),
	}
	if err := s.store.Create(ctx, tx); err != nil {
		if errors.Is(err, txdata.ErrDuplicate) {
			return nil, common.NewAppError("duplicate_order", "order was already paid or is in progress", http.StatusConflict, err)
		}
		return nil, common.NewAppError("storage", "payment temporarily unavailable", http.StatusInternalServerError, err)
	}

	resp, err := s.gateway.Request(ctx, params)
	s.countGateway(params["request"], err)
	s.appendRecord(ctx, tx, params, resp)
	if err != nil {
		tx.State = string(status.StateFailed)
		tx.LatestResponse = resp.Raw
		if updateErr := s.store.Update(ctx, tx); updateErr != nil {
			s.logger.Error().Err(updateErr).Str("transaction_id", tx.ID).Msg("failed to persist failed attempt")
		}
		return nil, mapGatewayError(err)
	}

	tx.TxID = resp.TxID
	tx.LatestResponse = resp.Raw
	if err := s.store.Update(ctx, tx); err != nil {
		return nil, common.NewAppError("storage", "payment temporarily unavailable", http.StatusInternalServerError, err)
	}

	state := s.applySyncStatus(ctx, tx, action, resp)
	return &Result{
		TransactionID: tx.ID,
		TxID:          resp.TxID,
		Status:        resp.Status,
		RedirectURL:   resp.RedirectURL,
		State:         state,
	}, nil
}

// Capture settles a previously preauthorized transaction, fully or partially.
// amount is in major units; zero settles the full authorized amount.
func (s *Service) Capture(ctx context.Context, transactionID string, amount float64) (*Result, error) {
	ctx, span := s.tracer.Start(ctx, "payment.capture")
	defer span.End()

	tx, err := s.loadForFollowUp(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	reqCtx := request.Context{
		Action:        request.ActionCapture,
		PaymentMethod: tx.PaymentMethod,
		Order: request.Order{
			Reference: tx.OrderReference,
			Amount:    amount,
			Currency:  tx.Currency,
		},
		Transaction: tx,
	}
	params, err := s.factory.Build(reqCtx)
	if err != nil {
		return nil, mapBuildError(err)
	}
	resp, err := s.gateway.Request(ctx, params)
	s.countGateway(params["request"], err)
	if err != nil {
		return nil, mapGatewayError(err)
	}
	s.appendRecord(ctx, tx, params, resp)

	captured := parseAmount(params["amount"])
	tx.CapturedAmount += captured
	tx.LatestRequest = txdata.SanitizeRequest(params)
	tx.LatestResponse = resp.Raw
	if err := s.store.Update(ctx, tx); err != nil {
		return nil, common.NewAppError("storage", "payment temporarily unavailable", http.StatusInternalServerError, err)
	}

	transition := status.TransitionPay
	if tx.CapturedAmount < tx.Amount {
		transition = status.TransitionPayPartially
	}
	state := s.applyTransition(ctx, tx.TxID, transition)
	return &Result{TransactionID: tx.ID, TxID: tx.TxID, Status: resp.Status, State: state}, nil
}

// Refund sends money back, fully or partially. amount is in major units; zero
// refunds the full captured amount. Only an outright APPROVED answer counts
// as success.
func (s *Service) Refund(ctx context.Context, transactionID string, amount float64) (*Result, error) {
	ctx, span := s.tracer.Start(ctx, "payment.refund")
	defer span.End()

	tx, err := s.loadForFollowUp(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	reqCtx := request.Context{
		Action:        request.ActionRefund,
		PaymentMethod: tx.PaymentMethod,
		Order: request.Order{
			Reference: tx.OrderReference,
			Amount:    amount,
			Currency:  tx.Currency,
		},
		Transaction: tx,
	}
	params, err := s.factory.Build(reqCtx)
	if err != nil {
		return nil, mapBuildError(err)
	}
	resp, err := s.gateway.Request(ctx, params)
	s.countGateway("refund", err)
	if err != nil {
		return nil, mapGatewayError(err)
	}
	s.appendRecord(ctx, tx, params, resp)
	if !resp.Approved() {
		return nil, common.NewAppError("refund_rejected", "the refund was not accepted", http.StatusBadGateway,
			fmt.Errorf("refund answered with status %q", resp.Status))
	}

	refunded := -parseAmount(params["amount"])
	tx.RefundedAmount += refunded
	tx.LatestRequest = txdata.SanitizeRequest(params)
	tx.LatestResponse = resp.Raw
	if err := s.store.Update(ctx, tx); err != nil {
		return nil, common.NewAppError("storage", "payment temporarily unavailable", http.StatusInternalServerError, err)
	}

	transition := status.TransitionRefundPartially
	if tx.CapturedAmount > 0 && tx.RefundedAmount >= tx.CapturedAmount {
		transition = status.TransitionRefund
	}
	state := s.applyTransition(ctx, tx.TxID, transition)
	return &Result{TransactionID: tx.ID, TxID: tx.TxID, Status: resp.Status, State: state}, nil
}

// Transaction exposes a stored transaction for the management API.
func (s *Service) Transaction(ctx context.Context, transactionID string) (*txdata.Transaction, error) {
	tx, err := s.store.ByID(ctx, transactionID)
	if err != nil {
		if errors.Is(err, txdata.ErrNotFound) {
			return nil, common.NewAppError("not_found", "transaction not found", http.StatusNotFound, err)
		}
		return nil, common.NewAppError("storage", "temporarily unavailable", http.StatusInternalServerError, err)
	}
	return tx, nil
}

// loadForFollowUp fetches the transaction and assigns the next sequence
// number to the snapshot, so builders can echo it.
func (s *Service) loadForFollowUp(ctx context.Context, transactionID string) (*txdata.Transaction, error) {
	tx, err := s.store.ByID(ctx, transactionID)
	if err != nil {
		if errors.Is(err, txdata.ErrNotFound) {
			return nil, common.NewAppError("not_found", "transaction not found", http.StatusNotFound, err)
		}
		return nil, common.NewAppError("storage", "temporarily unavailable", http.StatusInternalServerError, err)
	}
	if tx.TxID == "" {
		return nil, common.NewAppError("missing_txid", "transaction has no gateway id yet", http.StatusConflict, request.ErrMissingTransactionID)
	}
	seq, err := s.store.NextSequenceNumber(ctx, tx.TxID)
	if err != nil {
		return nil, common.NewAppError("storage", "temporarily unavailable", http.StatusInternalServerError, err)
	}
	tx.SequenceNumber = seq
	return tx, nil
}

// appendRecord keeps the per-interaction history. LatestRequest/LatestResponse
// only hold the most recent snapshot; the record log is never overwritten.
func (s *Service) appendRecord(ctx context.Context, tx *txdata.Transaction, params payone.Params, resp payone.Response) {
	rec := &txdata.Record{
		TransactionID:  tx.ID,
		SequenceNumber: tx.SequenceNumber,
		Request:        txdata.SanitizeRequest(params),
		Response:       resp.Raw,
	}
	if err := s.store.AppendRecord(ctx, rec); err != nil && !errors.Is(err, txdata.ErrDuplicate) {
		s.logger.Error().Err(err).Str("transaction_id", tx.ID).Msg("interaction record not appended")
	}
}

// applySyncStatus feeds the synchronous answer into the state machine.
// REDIRECT and PENDING leave the transaction open until the notification
// arrives.
func (s *Service) applySyncStatus(ctx context.Context, tx *txdata.Transaction, action request.Action, resp payone.Response) string {
	if !resp.Approved() {
		return tx.State
	}
	transition := status.TransitionPay
	if action == request.ActionPreauthorize {
		transition = status.TransitionAuthorize
	}
	return s.applyTransition(ctx, tx.TxID, transition)
}

func (s *Service) applyTransition(ctx context.Context, txID string, transition status.Transition) string {
	state, err := s.status.Apply(ctx, txID, transition)
	if err != nil {
		// The money already moved; a rejected bookkeeping transition is
		// logged, not surfaced to the caller.
		s.logger.Warn().Err(err).Str("txid", txID).Str("transition", string(transition)).Msg("sync transition not applied")
		current, stateErr := s.store.TransactionState(ctx, txID)
		if stateErr != nil {
			return ""
		}
		return current
	}
	return string(state)
}

func (s *Service) initialAction(method string) request.Action {
	configured := s.opts.DebitAuthorizationMethod
	if isSecuredMethod(method) {
		configured = s.opts.InstallmentAuthorizationMethod
	}
	if configured == string(payone.ActionPreauthorize) || configured == "preauthorize" {
		return request.ActionPreauthorize
	}
	return request.ActionAuthorize
}

func (s *Service) countGateway(action string, err error) {
	if obs.GatewayRequestTotal == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	obs.GatewayRequestTotal.WithLabelValues(action, result).Inc()
}

// parseAmount reads the minor-unit amount a builder produced.
func parseAmount(value string) int64 {
	amount, _ := strconv.ParseInt(value, 10, 64)
	return amount
}

func isSecuredMethod(method string) bool {
	return strings.HasPrefix(method, "secured_")
}

func mapBuildError(err error) error {
	var verr *request.ValidationError
	if errors.As(err, &verr) {
		return common.NewAppError("validation", fmt.Sprintf("invalid payment data: %s", verr.Field), http.StatusUnprocessableEntity, err)
	}
	var cerr *request.ConfigurationError
	if errors.As(err, &cerr) {
		return common.NewAppError("configuration", "payment method unavailable", http.StatusInternalServerError, err)
	}
	if errors.Is(err, request.ErrMissingTransactionID) || errors.Is(err, request.ErrMissingSequenceNumber) {
		return common.NewAppError("invalid_transaction", "transaction is not ready for this operation", http.StatusConflict, err)
	}
	return common.NewAppError("request_build", "payment temporarily unavailable", http.StatusInternalServerError, err)
}

func mapGatewayError(err error) error {
	var reqErr *payone.RequestError
	if errors.As(err, &reqErr) {
		message := reqErr.CustomerMessage
		if message == "" {
			message = "the payment was declined"
		}
		return common.NewAppError("gateway_declined", message, http.StatusPaymentRequired, err)
	}
	return common.NewAppError("gateway_unreachable", "payment temporarily unavailable", http.StatusBadGateway, err)
}
