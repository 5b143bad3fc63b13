package request

import (
	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/payone-gateway/internal/payone"
)

// SecuredInstallmentBuilder builds initial secured installment requests. The
// risk check behind this method needs a phone number and a birthday; when the
// checkout form left them out, stored customer profile values fill the gap.
type SecuredInstallmentBuilder struct {
	validate *validator.Validate
}

// NewSecuredInstallmentAuthorizeBuilder claims (secured_installment, authorize).
func NewSecuredInstallmentAuthorizeBuilder(v *validator.Validate) *SecuredInstallmentBuilder {
	return &SecuredInstallmentBuilder{validate: v}
}

func (b *SecuredInstallmentBuilder) Supports(ctx Context) bool {
	return ctx.PaymentMethod == MethodSecuredInstallment && ctx.Action == ActionAuthorize
}

func (b *SecuredInstallmentBuilder) Build(ctx Context) (payone.Params, error) {
	form := InstallmentForm{
		DeviceToken:         ctx.FormValue("device_token"),
		InstallmentOptionID: ctx.FormValue("installment_option_id"),
	}
	if err := validateForm(b.validate, form); err != nil {
		return nil, err
	}

	phone := ctx.Customer.PhoneNumber
	if phone == "" {
		phone = ctx.Customer.CustomFields["telephone_number"]
	}
	if phone == "" {
		return nil, &ValidationError{Field: "telephonenumber", Reason: "missing phone number"}
	}

	birthday := compactBirthday(ctx.Customer.BirthDate)
	if birthday == "" {
		birthday = compactBirthday(ctx.Customer.CustomFields["birthday"])
	}
	if birthday == "" {
		return nil, &ValidationError{Field: "birthday", Reason: "missing birthday"}
	}

	return payone.Params{
		"request":                            payone.ActionAuthorize,
		"clearingtype":                       payone.ClearingFinancing,
		"financingtype":                      payone.FinancingSecuredInstallment,
		"telephonenumber":                    phone,
		"birthday":                           birthday,
		"add_paydata[device_token]":          form.DeviceToken,
		"add_paydata[installment_option_id]": form.InstallmentOptionID,
	}, nil
}
