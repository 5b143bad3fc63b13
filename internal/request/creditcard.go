package request

import (
	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/payone-gateway/internal/payone"
)

// CreditCardBuilder builds initial card requests from the pseudo card pan the
// hosted iframe produced.
type CreditCardBuilder struct {
	action   Action
	validate *validator.Validate
}

// NewCreditCardAuthorizeBuilder claims (credit_card, authorize).
func NewCreditCardAuthorizeBuilder(v *validator.Validate) *CreditCardBuilder {
	return &CreditCardBuilder{action: ActionAuthorize, validate: v}
}

// NewCreditCardPreauthorizeBuilder claims (credit_card, preauthorize).
func NewCreditCardPreauthorizeBuilder(v *validator.Validate) *CreditCardBuilder {
	return &CreditCardBuilder{action: ActionPreauthorize, validate: v}
}

func (b *CreditCardBuilder) Supports(ctx Context) bool {
	return ctx.PaymentMethod == MethodCreditCard && ctx.Action == b.action
}

func (b *CreditCardBuilder) Build(ctx Context) (payone.Params, error) {
	form := CreditCardForm{PseudoCardPan: ctx.FormValue("pseudo_card_pan")}
	if err := validateForm(b.validate, form); err != nil {
		return nil, err
	}
	return payone.Params{
		"request":       wireRequest(b.action),
		"clearingtype":  payone.ClearingCreditCard,
		"pseudocardpan": form.PseudoCardPan,
	}, nil
}
