package payment

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/noah-isme/payone-gateway/internal/common"
	"github.com/noah-isme/payone-gateway/internal/request"
)

// Handler exposes the payment management endpoints.
type Handler struct {
	service  *Service
	validate *validator.Validate
	logger   zerolog.Logger
}

// NewHandler builds the HTTP layer over the payment service.
func NewHandler(service *Service, v *validator.Validate, logger zerolog.Logger) *Handler {
	return &Handler{service: service, validate: v, logger: logger.With().Str("component", "payment_http").Logger()}
}

// Routes mounts the payment endpoints on a chi router.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/payments", h.pay)
	r.Get("/payments/{id}", h.get)
	r.Post("/payments/{id}/capture", h.capture)
	r.Post("/payments/{id}/refund", h.refund)
}

type customerBody struct {
	Salutation  string `json:"salutation"`
	FirstName   string `json:"first_name" validate:"required"`
	LastName    string `json:"last_name" validate:"required"`
	Email       string `json:"email" validate:"omitempty,email"`
	Street      string `json:"street"`
	ZipCode     string `json:"zip_code"`
	City        string `json:"city"`
	CountryCode string `json:"country_code" validate:"required,len=2"`
	Language    string `json:"language"`
	IPAddress   string `json:"ip_address"`
	PhoneNumber string `json:"phone_number"`
	BirthDate   string `json:"birth_date"`
}

type lineItemBody struct {
	Reference string  `json:"reference" validate:"required"`
	Name      string  `json:"name" validate:"required"`
	Quantity  int     `json:"quantity" validate:"required,gt=0"`
	UnitPrice float64 `json:"unit_price" validate:"required"`
	TaxRate   float64 `json:"tax_rate"`
	Type      string  `json:"type"`
}

type payBody struct {
	OrderReference string            `json:"order_reference" validate:"required"`
	PaymentMethod  string            `json:"payment_method" validate:"required"`
	Amount         float64           `json:"amount" validate:"required,gt=0"`
	Currency       string            `json:"currency" validate:"required,len=3"`
	Customer       customerBody      `json:"customer" validate:"required"`
	LineItems      []lineItemBody    `json:"line_items" validate:"omitempty,dive"`
	Form           map[string]string `json:"form"`
	SessionID      string            `json:"session_id"`
}

type amountBody struct {
	Amount float64 `json:"amount" validate:"gte=0"`
}

func (h *Handler) pay(w http.ResponseWriter, r *http.Request) {
	var body payBody
	if !h.decode(w, r, &body) {
		return
	}
	items := make([]request.LineItem, 0, len(body.LineItems))
	for _, item := range body.LineItems {
		items = append(items, request.LineItem{
			Reference: item.Reference,
			Name:      item.Name,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			TaxRate:   item.TaxRate,
			Type:      item.Type,
		})
	}
	result, err := h.service.Pay(r.Context(), PayInput{
		OrderReference: body.OrderReference,
		PaymentMethod:  body.PaymentMethod,
		Amount:         body.Amount,
		Currency:       body.Currency,
		Customer: request.Customer{
			Salutation:  body.Customer.Salutation,
			FirstName:   body.Customer.FirstName,
			LastName:    body.Customer.LastName,
			Email:       body.Customer.Email,
			Street:      body.Customer.Street,
			ZipCode:     body.Customer.ZipCode,
			City:        body.Customer.City,
			CountryCode: body.Customer.CountryCode,
			Language:    body.Customer.Language,
			IPAddress:   body.Customer.IPAddress,
			PhoneNumber: body.Customer.PhoneNumber,
			BirthDate:   body.Customer.BirthDate,
		},
		LineItems: items,
		Form:      body.Form,
		SessionID: body.SessionID,
	})
	if err != nil {
		h.renderError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, result)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	tx, err := h.service.Transaction(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.renderError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{
		"id":              tx.ID,
		"order_reference": tx.OrderReference,
		"payment_method":  tx.PaymentMethod,
		"txid":            tx.TxID,
		"sequence_number": tx.SequenceNumber,
		"state":           tx.State,
		"amount":          tx.Amount,
		"currency":        tx.Currency,
		"captured_amount": tx.CapturedAmount,
		"refunded_amount": tx.RefundedAmount,
		"created_at":      tx.CreatedAt,
		"updated_at":      tx.UpdatedAt,
	})
}

func (h *Handler) capture(w http.ResponseWriter, r *http.Request) {
	var body amountBody
	if !h.decode(w, r, &body) {
		return
	}
	result, err := h.service.Capture(r.Context(), chi.URLParam(r, "id"), body.Amount)
	if err != nil {
		h.renderError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, result)
}

func (h *Handler) refund(w http.ResponseWriter, r *http.Request) {
	var body amountBody
	if !h.decode(w, r, &body) {
		return
	}
	result, err := h.service.Refund(r.Context(), chi.URLParam(r, "id"), body.Amount)
	if err != nil {
		h.renderError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, result)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, body any) bool {
	if err := json.NewDecoder(r.Body).Decode(body); err != nil {
		common.JSONError(w, http.StatusBadRequest, "bad_request", "invalid JSON body", nil)
		return false
	}
	if err := h.validate.Struct(body); err != nil {
		var verrs validator.ValidationErrors
		details := map[string]string{}
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				details[fe.Field()] = fe.Tag()
			}
		}
		common.JSONError(w, http.StatusUnprocessableEntity, "validation", "invalid request body", details)
		return false
	}
	return true
}

func (h *Handler) renderError(w http.ResponseWriter, err error) {
	var appErr *common.AppError
	if errors.As(err, &appErr) {
		h.logger.Warn().Err(err).Str("code", appErr.Code).Msg("payment request failed")
		common.JSONError(w, appErr.HTTPStatus, appErr.Code, appErr.Message, appErr.Details)
		return
	}
	h.logger.Error().Err(err).Msg("payment request failed")
	common.JSONError(w, http.StatusInternalServerError, "internal", "temporarily unavailable", nil)
}
