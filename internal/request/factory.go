package request

import (
	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/payone-gateway/internal/payone"
)

// Factory dispatches a request context to its builders. Exactly one specific
// builder must claim the context; every supporting generic builder
// contributes first, then the specific builder's parameters win on conflict.
type Factory struct {
	generic  []Builder
	specific []Builder
}

// NewFactory builds a factory from explicit builder sets.
func NewFactory(generic, specific []Builder) *Factory {
	return &Factory{generic: generic, specific: specific}
}

// NewDefaultFactory registers the full builder set.
func NewDefaultFactory(v *validator.Validate) *Factory {
	return NewFactory(
		[]Builder{
			GeneralBuilder{},
			CustomerBuilder{},
			LineItemsBuilder{},
		},
		[]Builder{
			NewDebitAuthorizeBuilder(v),
			NewDebitPreauthorizeBuilder(v),
			NewCreditCardAuthorizeBuilder(v),
			NewCreditCardPreauthorizeBuilder(v),
			NewSecuredInvoiceAuthorizeBuilder(),
			NewSecuredInstallmentAuthorizeBuilder(v),
			NewCaptureBuilder(),
			NewRefundBuilder(),
		},
	)
}

// Build resolves the specific builder for ctx and merges the parameter sets.
func (f *Factory) Build(ctx Context) (payone.Params, error) {
	var match Builder
	matches := 0
	for _, b := range f.specific {
		if b.Supports(ctx) {
			match = b
			matches++
		}
	}
	if matches != 1 {
		return nil, &ConfigurationError{
			Method:  ctx.PaymentMethod,
			Action:  ctx.Action,
			Matches: matches,
		}
	}

	merged := payone.Params{}
	for _, b := range f.generic {
		if !b.Supports(ctx) {
			continue
		}
		params, err := b.Build(ctx)
		if err != nil {
			return nil, err
		}
		merged.Merge(params)
	}
	params, err := match.Build(ctx)
	if err != nil {
		return nil, err
	}
	merged.Merge(params)
	return merged, nil
}
