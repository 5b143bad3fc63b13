package request

import "github.com/noah-isme/payone-gateway/internal/payone"

// Builder contributes parameters to one processor request. Specific builders
// claim exactly one (payment method, action) pair; generic builders add the
// data shared across methods.
type Builder interface {
	// Supports reports whether this builder applies to the given context.
	Supports(ctx Context) bool
	// Build returns the parameters this builder contributes.
	Build(ctx Context) (payone.Params, error)
}

// wireRequest maps the logical initial action onto the server API request
// name.
func wireRequest(action Action) string {
	if action == ActionPreauthorize {
		return payone.ActionPreauthorize
	}
	return payone.ActionAuthorize
}
