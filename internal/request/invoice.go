package request

import (
	"github.com/noah-isme/payone-gateway/internal/payone"
)

// SecuredInvoiceBuilder builds initial secured invoice requests.
type SecuredInvoiceBuilder struct{}

// NewSecuredInvoiceAuthorizeBuilder claims (secured_invoice, authorize).
func NewSecuredInvoiceAuthorizeBuilder() *SecuredInvoiceBuilder {
	return &SecuredInvoiceBuilder{}
}

func (b *SecuredInvoiceBuilder) Supports(ctx Context) bool {
	return ctx.PaymentMethod == MethodSecuredInvoice && ctx.Action == ActionAuthorize
}

func (b *SecuredInvoiceBuilder) Build(ctx Context) (payone.Params, error) {
	params := payone.Params{
		"request":       payone.ActionAuthorize,
		"clearingtype":  payone.ClearingFinancing,
		"financingtype": payone.FinancingSecuredInvoice,
	}
	if token := ctx.FormValue("device_token"); token != "" {
		params["add_paydata[device_token]"] = token
	}
	return params, nil
}
