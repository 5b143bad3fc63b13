package txdata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore is the pgx-backed Store implementation.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore builds a PostgresStore around the given pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const transactionColumns = `
	id, order_reference, payment_method, tx_id, sequence_number, state,
	authorization_method, amount, currency, captured_amount, refunded_amount,
	latest_request, latest_response, created_at, updated_at`

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func encodeParams(params map[string]string) ([]byte, error) {
	if params == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(params)
}

func scanTransaction(row pgx.Row) (*Transaction, error) {
	var (
		tx           Transaction
		requestJSON  []byte
		responseJSON []byte
	)
	err := row.Scan(
		&tx.ID, &tx.OrderReference, &tx.PaymentMethod, &tx.TxID,
		&tx.SequenceNumber, &tx.State, &tx.AuthorizationMethod,
		&tx.Amount, &tx.Currency, &tx.CapturedAmount, &tx.RefundedAmount,
		&requestJSON, &responseJSON, &tx.CreatedAt, &tx.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan transaction: %w", err)
	}
	if len(requestJSON) > 0 {
		if err := json.Unmarshal(requestJSON, &tx.LatestRequest); err != nil {
			return nil, fmt.Errorf("decode latest_request: %w", err)
		}
	}
	if len(responseJSON) > 0 {
		if err := json.Unmarshal(responseJSON, &tx.LatestResponse); err != nil {
			return nil, fmt.Errorf("decode latest_response: %w", err)
		}
	}
	return &tx, nil
}

// Create implements Store.
func (s *PostgresStore) Create(ctx context.Context, tx *Transaction) error {
	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}
	requestJSON, err := encodeParams(tx.LatestRequest)
	if err != nil {
		return fmt.Errorf("encode latest_request: %w", err)
	}
	responseJSON, err := encodeParams(tx.LatestResponse)
	if err != nil {
		return fmt.Errorf("encode latest_response: %w", err)
	}
	row := s.pool.QueryRow(ctx, `
		INSERT INTO payment_transactions (
			id, order_reference, payment_method, tx_id, sequence_number, state,
			authorization_method, amount, currency, captured_amount,
			refunded_amount, latest_request, latest_response
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING created_at, updated_at`,
		tx.ID, tx.OrderReference, tx.PaymentMethod, tx.TxID, tx.SequenceNumber,
		tx.State, tx.AuthorizationMethod, tx.Amount, tx.Currency,
		tx.CapturedAmount, tx.RefundedAmount, requestJSON, responseJSON,
	)
	if err := row.Scan(&tx.CreatedAt, &tx.UpdatedAt); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

// ByID implements Store.
func (s *PostgresStore) ByID(ctx context.Context, id string) (*Transaction, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+transactionColumns+` FROM payment_transactions WHERE id = $1`, id)
	return scanTransaction(row)
}

// ByTxID implements Store.
func (s *PostgresStore) ByTxID(ctx context.Context, txID string) (*Transaction, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+transactionColumns+` FROM payment_transactions WHERE tx_id = $1`, txID)
	return scanTransaction(row)
}

// ByReference implements Store.
func (s *PostgresStore) ByReference(ctx context.Context, reference string) (*Transaction, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+transactionColumns+` FROM payment_transactions WHERE order_reference = $1`, reference)
	return scanTransaction(row)
}

// Update implements Store.
func (s *PostgresStore) Update(ctx context.Context, tx *Transaction) error {
	requestJSON, err := encodeParams(tx.LatestRequest)
	if err != nil {
		return fmt.Errorf("encode latest_request: %w", err)
	}
	responseJSON, err := encodeParams(tx.LatestResponse)
	if err != nil {
		return fmt.Errorf("encode latest_response: %w", err)
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE payment_transactions SET
			tx_id = $2, sequence_number = $3, state = $4,
			authorization_method = $5, captured_amount = $6,
			refunded_amount = $7, latest_request = $8, latest_response = $9,
			updated_at = now()
		WHERE id = $1`,
		tx.ID, tx.TxID, tx.SequenceNumber, tx.State, tx.AuthorizationMethod,
		tx.CapturedAmount, tx.RefundedAmount, requestJSON, responseJSON,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("update transaction: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// NextSequenceNumber implements Store. The row is locked for the duration of
// the statement so concurrent follow-up requests never reuse a number.
func (s *PostgresStore) NextSequenceNumber(ctx context.Context, txID string) (int, error) {
	var seq int
	err := s.pool.QueryRow(ctx, `
		UPDATE payment_transactions
		SET sequence_number = sequence_number + 1, updated_at = now()
		WHERE tx_id = $1
		RETURNING sequence_number`, txID).Scan(&seq)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("next sequence number: %w", err)
	}
	return seq, nil
}

// TransactionState implements Store.
func (s *PostgresStore) TransactionState(ctx context.Context, txID string) (string, error) {
	var state string
	err := s.pool.QueryRow(ctx,
		`SELECT state FROM payment_transactions WHERE tx_id = $1`, txID).Scan(&state)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("transaction state: %w", err)
	}
	return state, nil
}

// SetTransactionState implements Store.
func (s *PostgresStore) SetTransactionState(ctx context.Context, txID, state string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE payment_transactions SET state = $2, updated_at = now()
		WHERE tx_id = $1`, txID, state)
	if err != nil {
		return fmt.Errorf("set transaction state: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// AppendRecord implements Store. The unique (transaction_id, sequence_number)
// index maps double appends to ErrDuplicate.
func (s *PostgresStore) AppendRecord(ctx context.Context, rec *Record) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	requestJSON, err := encodeParams(rec.Request)
	if err != nil {
		return fmt.Errorf("encode record request: %w", err)
	}
	responseJSON, err := encodeParams(rec.Response)
	if err != nil {
		return fmt.Errorf("encode record response: %w", err)
	}
	row := s.pool.QueryRow(ctx, `
		INSERT INTO transaction_records (id, transaction_id, sequence_number, request, response)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at`,
		rec.ID, rec.TransactionID, rec.SequenceNumber, requestJSON, responseJSON,
	)
	if err := row.Scan(&rec.CreatedAt); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert transaction record: %w", err)
	}
	return nil
}

// Records implements Store.
func (s *PostgresStore) Records(ctx context.Context, transactionID string) ([]*Record, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, transaction_id, sequence_number, request, response, created_at
		FROM transaction_records
		WHERE transaction_id = $1
		ORDER BY sequence_number`, transactionID)
	if err != nil {
		return nil, fmt.Errorf("query transaction records: %w", err)
	}
	defer rows.Close()

	var out []*Record
	for rows.Next() {
		var (
			rec          Record
			requestJSON  []byte
			responseJSON []byte
		)
		if err := rows.Scan(&rec.ID, &rec.TransactionID, &rec.SequenceNumber, &requestJSON, &responseJSON, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan transaction record: %w", err)
		}
		if len(requestJSON) > 0 {
			if err := json.Unmarshal(requestJSON, &rec.Request); err != nil {
				return nil, fmt.Errorf("decode record request: %w", err)
			}
		}
		if len(responseJSON) > 0 {
			if err := json.Unmarshal(responseJSON, &rec.Response); err != nil {
				return nil, fmt.Errorf("decode record response: %w", err)
			}
		}
		out = append(out, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transaction records: %w", err)
	}
	return out, nil
}

// RecordWebhookEvent implements Store. The unique
// (tx_id, tx_action, sequence_number) index maps redeliveries that outlived
// the redis replay marker to ErrDuplicate.
func (s *PostgresStore) RecordWebhookEvent(ctx context.Context, event *WebhookEvent) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	payloadJSON, err := encodeParams(event.Payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	row := s.pool.QueryRow(ctx, `
		INSERT INTO webhook_events (id, tx_id, tx_action, sequence_number, payload)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING received_at`,
		event.ID, event.TxID, event.TxAction, event.SequenceNumber, payloadJSON,
	)
	if err := row.Scan(&event.ReceivedAt); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert webhook event: %w", err)
	}
	return nil
}
