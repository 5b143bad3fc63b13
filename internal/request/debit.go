package request

import (
	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/payone-gateway/internal/payone"
)

// DebitBuilder builds initial direct debit requests.
type DebitBuilder struct {
	action   Action
	validate *validator.Validate
}

// NewDebitAuthorizeBuilder claims (debit, authorize).
func NewDebitAuthorizeBuilder(v *validator.Validate) *DebitBuilder {
	return &DebitBuilder{action: ActionAuthorize, validate: v}
}

// NewDebitPreauthorizeBuilder claims (debit, preauthorize).
func NewDebitPreauthorizeBuilder(v *validator.Validate) *DebitBuilder {
	return &DebitBuilder{action: ActionPreauthorize, validate: v}
}

func (b *DebitBuilder) Supports(ctx Context) bool {
	return ctx.PaymentMethod == MethodDebit && ctx.Action == b.action
}

func (b *DebitBuilder) Build(ctx Context) (payone.Params, error) {
	form := DebitForm{
		IBAN:          ctx.FormValue("iban"),
		BIC:           ctx.FormValue("bic"),
		AccountHolder: ctx.FormValue("account_holder"),
	}
	if err := validateForm(b.validate, form); err != nil {
		return nil, err
	}
	params := payone.Params{
		"request":           wireRequest(b.action),
		"clearingtype":      payone.ClearingDirectDebit,
		"iban":              form.IBAN,
		"bankaccountholder": form.AccountHolder,
	}
	if form.BIC != "" {
		params["bic"] = form.BIC
	}
	return params, nil
}
