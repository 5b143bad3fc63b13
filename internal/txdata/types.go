package txdata

import (
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when no transaction matches the lookup key.
	ErrNotFound = errors.New("txdata: transaction not found")
	// ErrDuplicate is returned when a transaction with the same reference or
	// gateway id already exists.
	ErrDuplicate = errors.New("txdata: duplicate transaction")
)

// Transaction is the persisted record of one payment transaction and the data
// required for follow-up gateway requests.
type Transaction struct {
	ID                  string
	OrderReference      string
	PaymentMethod       string
	TxID                string
	SequenceNumber      int
	State               string
	AuthorizationMethod string
	Amount              int64
	Currency            string
	CapturedAmount      int64
	RefundedAmount      int64
	LatestRequest       map[string]string
	LatestResponse      map[string]string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Record is one appended request/response interaction of a transaction.
// Records are never updated or deleted; the sequence number orders them.
type Record struct {
	ID             string
	TransactionID  string
	SequenceNumber int
	Request        map[string]string
	Response       map[string]string
	CreatedAt      time.Time
}

// WebhookEvent is a persisted transaction status notification.
type WebhookEvent struct {
	ID             string
	TxID           string
	TxAction       string
	SequenceNumber int
	Payload        map[string]string
	ReceivedAt     time.Time
}

// sensitiveRequestKeys are stripped before a gateway request is persisted.
var sensitiveRequestKeys = []string{"key", "cardpan", "cardcvc2"}

// SanitizeRequest returns a copy of params safe to persist alongside the
// transaction. The portal key and raw card data never reach storage.
func SanitizeRequest(params map[string]string) map[string]string {
	if params == nil {
		return nil
	}
	clean := make(map[string]string, len(params))
	for k, v := range params {
		clean[k] = v
	}
	for _, k := range sensitiveRequestKeys {
		delete(clean, k)
	}
	return clean
}
