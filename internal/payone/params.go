package payone

import (
	"net/url"
	"sort"
)

// Request actions accepted by the Payone server API. Refund requests are sent
// as a debit with a negative amount, so there is no dedicated refund action on
// the wire.
const (
	ActionAuthorize    = "authorization"
	ActionPreauthorize = "preauthorization"
	ActionCapture      = "capture"
	ActionDebit        = "debit"
)

// Clearing types identify the payment method family on the wire.
const (
	ClearingDirectDebit = "elv"
	ClearingCreditCard  = "cc"
	ClearingInvoice     = "rec"
	ClearingFinancing   = "fnc"
)

// Financing types for the fnc clearing family.
const (
	FinancingSecuredInvoice     = "PIV"
	FinancingSecuredInstallment = "PIN"
	FinancingSecuredDirectDebit = "PDD"
)

// Response status values returned by the processor.
const (
	StatusApproved = "APPROVED"
	StatusRedirect = "REDIRECT"
	StatusPending  = "PENDING"
	StatusError    = "ERROR"
)

// Params is the flat key-value parameter set of one processor request.
type Params map[string]string

// Merge copies all entries of other into p, overriding existing keys, and
// returns p for chaining.
func (p Params) Merge(other Params) Params {
	for k, v := range other {
		p[k] = v
	}
	return p
}

// Clone returns a shallow copy of the parameter set.
func (p Params) Clone() Params {
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Encode renders the parameter set as an application/x-www-form-urlencoded
// body with deterministic key ordering.
func (p Params) Encode() string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	form := url.Values{}
	for _, k := range keys {
		form.Set(k, p[k])
	}
	return form.Encode()
}
