package webhook

import (
	"context"
	"crypto/md5"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/payone-gateway/internal/common"
	"github.com/noah-isme/payone-gateway/internal/lock"
	"github.com/noah-isme/payone-gateway/internal/obs"
	"github.com/noah-isme/payone-gateway/internal/status"
	"github.com/noah-isme/payone-gateway/internal/txdata"
)

// acknowledgement is the body the processor expects; anything else makes it
// redeliver the notification.
const acknowledgement = "TSOK"

const replayKeyPrefix = "webhook:replay:"
const lockKeyPrefix = "webhook:txlock:"

// Handler processes asynchronous transaction status notifications.
type Handler struct {
	store     txdata.Store
	status    *status.Service
	redis     redis.UniversalClient
	locker    *lock.Locker
	portalKey string
	replayTTL time.Duration
	logger    zerolog.Logger
}

// NewHandler wires the notification pipeline.
func NewHandler(store txdata.Store, statusSvc *status.Service, rdb redis.UniversalClient, locker *lock.Locker, portalKey string, replayTTL time.Duration, logger zerolog.Logger) *Handler {
	if replayTTL <= 0 {
		replayTTL = 24 * time.Hour
	}
	return &Handler{
		store:     store,
		status:    statusSvc,
		redis:     rdb,
		locker:    locker,
		portalKey: portalKey,
		replayTTL: replayTTL,
		logger:    logger.With().Str("component", "webhook").Logger(),
	}
}

// Supports reports whether the payload is a transaction status notification.
func (h *Handler) Supports(values map[string]string) bool {
	_, ok := values["txaction"]
	return ok
}

// Handle is the chi endpoint for POST /payone/webhook. After the payload is
// validated the processor always receives the acknowledgement, including for
// duplicates, unresolved transaction ids and rejected transitions; anything
// else would trigger endless redelivery.
func (h *Handler) Handle(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := r.ParseForm(); err != nil {
		h.count("malformed")
		common.JSONError(w, http.StatusBadRequest, "bad_request", "invalid form payload", nil)
		return
	}
	values := make(map[string]string, len(r.PostForm))
	for key := range r.PostForm {
		values[key] = r.PostForm.Get(key)
	}

	if !h.Supports(values) {
		h.count("unsupported")
		common.JSONError(w, http.StatusBadRequest, "unsupported_notification", "unsupported notification", nil)
		return
	}
	if !h.validKey(values["key"]) {
		h.logger.Warn().Msg("notification with invalid portal key rejected")
		h.count("invalid_key")
		common.JSONError(w, http.StatusForbidden, "invalid_key", "invalid key", nil)
		return
	}

	// Byte-identical redeliveries are acknowledged without reprocessing. The
	// marker is written only after successful processing, so a retry still
	// gets through when the transaction could not be resolved or processing
	// failed the first time.
	payloadHash := common.Sha256Hex(r.PostForm.Encode())
	replayKey := replayKeyPrefix + payloadHash
	if _, err := h.redis.Get(ctx, replayKey).Result(); err == nil {
		h.logger.Info().Str("payload_hash", payloadHash).Msg("duplicate notification acknowledged")
		h.count("duplicate")
		h.acknowledge(w)
		return
	} else if !errors.Is(err, redis.Nil) {
		h.logger.Error().Err(err).Msg("replay check failed")
		h.count("error")
		common.JSONError(w, http.StatusInternalServerError, "internal", "temporarily unavailable", nil)
		return
	}

	values = NormalizeValues(values)
	txID := values["txid"]
	txAction := values["txaction"]

	if _, err := h.store.ByTxID(ctx, txID); err != nil {
		if errors.Is(err, txdata.ErrNotFound) {
			h.logger.Warn().
				Str("txid", txID).
				Str("txaction", txAction).
				Msg("notification for unknown transaction acknowledged")
			h.count("unresolved")
			h.acknowledge(w)
			return
		}
		h.logger.Error().Err(err).Str("txid", txID).Msg("transaction lookup failed")
		h.count("error")
		common.JSONError(w, http.StatusInternalServerError, "internal", "temporarily unavailable", nil)
		return
	}

	err := h.locker.WithLock(ctx, lockKeyPrefix+txID, func(ctx context.Context) error {
		return h.process(ctx, txID, txAction, values)
	})
	if err != nil {
		h.logger.Error().Err(err).Str("txid", txID).Msg("notification processing failed")
		h.count("error")
		common.JSONError(w, http.StatusInternalServerError, "internal", "temporarily unavailable", nil)
		return
	}
	if err := h.redis.Set(ctx, replayKey, "1", h.replayTTL).Err(); err != nil {
		h.logger.Warn().Err(err).Str("payload_hash", payloadHash).Msg("replay marker not written")
	}
	h.count("processed")
	h.acknowledge(w)
}

func (h *Handler) process(ctx context.Context, txID, txAction string, values map[string]string) error {
	seq, _ := strconv.Atoi(values["sequencenumber"])
	event := &txdata.WebhookEvent{
		TxID:           txID,
		TxAction:       txAction,
		SequenceNumber: seq,
		Payload:        values,
	}
	if err := h.store.RecordWebhookEvent(ctx, event); err != nil && !errors.Is(err, txdata.ErrDuplicate) {
		return err
	}

	_, _, err := h.status.HandleTxAction(ctx, txID, txAction)
	if err != nil && !errors.Is(err, status.ErrTransitionRejected) {
		return err
	}
	return nil
}

// validKey compares the payload key with the MD5 digest of the configured
// portal key, the same digest outbound requests carry.
func (h *Handler) validKey(key string) bool {
	if h.portalKey == "" {
		return true
	}
	sum := md5.Sum([]byte(h.portalKey))
	want := hex.EncodeToString(sum[:])
	return subtle.ConstantTimeCompare([]byte(key), []byte(want)) == 1
}

func (h *Handler) acknowledge(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(acknowledgement))
}

func (h *Handler) count(result string) {
	if obs.WebhookTotal != nil {
		obs.WebhookTotal.WithLabelValues(result).Inc()
	}
}
