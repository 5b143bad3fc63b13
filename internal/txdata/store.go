package txdata

import "context"

// Store persists transactions and their status notifications.
type Store interface {
	// Create inserts a new transaction. Returns ErrDuplicate when the order
	// reference is already taken.
	Create(ctx context.Context, tx *Transaction) error
	// ByID fetches a transaction by its internal id.
	ByID(ctx context.Context, id string) (*Transaction, error)
	// ByTxID fetches a transaction by the gateway transaction id.
	ByTxID(ctx context.Context, txID string) (*Transaction, error)
	// ByReference fetches a transaction by its order reference.
	ByReference(ctx context.Context, reference string) (*Transaction, error)
	// Update writes back a modified transaction.
	Update(ctx context.Context, tx *Transaction) error
	// NextSequenceNumber atomically increments and returns the sequence
	// number for the transaction with the given gateway id.
	NextSequenceNumber(ctx context.Context, txID string) (int, error)

	// TransactionState returns the current state for a gateway transaction id.
	TransactionState(ctx context.Context, txID string) (string, error)
	// SetTransactionState persists a new state for a gateway transaction id.
	SetTransactionState(ctx context.Context, txID, state string) error

	// AppendRecord appends a request/response interaction record. Returns
	// ErrDuplicate when the sequence number was already recorded for the
	// transaction.
	AppendRecord(ctx context.Context, rec *Record) error
	// Records returns the interaction records of a transaction ordered by
	// sequence number.
	Records(ctx context.Context, transactionID string) ([]*Record, error)

	// RecordWebhookEvent appends a received status notification. Returns
	// ErrDuplicate when the same delivery was already recorded.
	RecordWebhookEvent(ctx context.Context, event *WebhookEvent) error
}
