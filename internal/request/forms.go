package request

import (
	"errors"

	"github.com/go-playground/validator/v10"
)

// DebitForm is the checkout form for direct debit payments.
type DebitForm struct {
	IBAN          string `validate:"required,min=15,max=34"`
	BIC           string `validate:"omitempty,alphanum"`
	AccountHolder string `validate:"required"`
}

// CreditCardForm is the checkout form for card payments. The pan never
// reaches this service; the client-side hosted iframe exchanges it for a
// pseudo card pan.
type CreditCardForm struct {
	PseudoCardPan string `validate:"required"`
}

// InstallmentForm is the checkout form for secured installment payments.
type InstallmentForm struct {
	DeviceToken         string `validate:"required"`
	InstallmentOptionID string `validate:"required"`
}

// formFieldNames maps struct fields to the submitted form field they came
// from, so validation errors name what the shopper actually filled in.
var formFieldNames = map[string]string{
	"IBAN":                "iban",
	"BIC":                 "bic",
	"AccountHolder":       "account_holder",
	"PseudoCardPan":       "pseudo_card_pan",
	"DeviceToken":         "device_token",
	"InstallmentOptionID": "installment_option_id",
}

// validateForm runs the struct validators and converts the first failure into
// a field-named ValidationError.
func validateForm(v *validator.Validate, form any) error {
	err := v.Struct(form)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		field := verrs[0].StructField()
		if name, ok := formFieldNames[field]; ok {
			field = name
		}
		return &ValidationError{Field: field, Reason: "failed " + verrs[0].Tag() + " validation"}
	}
	return err
}
