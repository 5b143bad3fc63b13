package request

import (
	"math"
	"strings"

	"github.com/noah-isme/payone-gateway/internal/txdata"
)

// Action is the logical operation a parameter set is built for. Refund is a
// logical action; on the wire it becomes a debit with a negated amount.
type Action string

const (
	ActionAuthorize    Action = "authorize"
	ActionPreauthorize Action = "preauthorize"
	ActionCapture      Action = "capture"
	ActionRefund       Action = "refund"
)

// Payment method identifiers used to key specific builders.
const (
	MethodDebit              = "debit"
	MethodCreditCard         = "credit_card"
	MethodSecuredInvoice     = "secured_invoice"
	MethodSecuredInstallment = "secured_installment"
)

// Customer carries buyer data for initial payment requests. CustomFields holds
// profile values used as fallbacks when the checkout form omitted them.
type Customer struct {
	Salutation   string
	FirstName    string
	LastName     string
	Email        string
	Street       string
	ZipCode      string
	City         string
	CountryCode  string
	Language     string
	IPAddress    string
	PhoneNumber  string
	BirthDate    string // 2006-01-02
	CustomFields map[string]string
}

// LineItem is one order position transmitted with initial requests.
type LineItem struct {
	Reference string
	Name      string
	Quantity  int
	UnitPrice float64 // major units, per unit
	TaxRate   float64 // percent
	Type      string  // goods, shipment, voucher
}

// Order carries the monetary scope of the request. Amount is in major units;
// builders convert to the processor's minor-unit integers.
type Order struct {
	Reference string
	Amount    float64
	Currency  string
	LineItems []LineItem
}

// Context is the input every builder decides on and builds from.
type Context struct {
	Action        Action
	PaymentMethod string
	Order         Order
	Customer      Customer
	// Transaction is the stored record for follow-up actions; nil for
	// initial requests.
	Transaction *txdata.Transaction
	// Form holds the submitted payment form fields, keyed by form name.
	Form map[string]string
}

// FormValue returns the trimmed form field or "".
func (c Context) FormValue(name string) string {
	return strings.TrimSpace(c.Form[name])
}

var currencyDecimals = map[string]int{
	"BHD": 3, "JOD": 3, "KWD": 3, "OMR": 3, "TND": 3,
	"JPY": 0, "KRW": 0, "VND": 0,
}

// minorUnits converts a major-unit amount into the currency's smallest unit.
func minorUnits(amount float64, currency string) int64 {
	decimals, ok := currencyDecimals[strings.ToUpper(strings.TrimSpace(currency))]
	if !ok {
		decimals = 2
	}
	return int64(math.Round(amount * math.Pow10(decimals)))
}
