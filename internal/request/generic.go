package request

import (
	"fmt"
	"strings"

	"github.com/noah-isme/payone-gateway/internal/payone"
)

// GeneralBuilder contributes the order reference, amount and currency to every
// request. Follow-up builders override the amount where they must.
type GeneralBuilder struct{}

func (GeneralBuilder) Supports(Context) bool { return true }

func (GeneralBuilder) Build(ctx Context) (payone.Params, error) {
	params := payone.Params{
		"reference": ctx.Order.Reference,
		"currency":  strings.ToUpper(ctx.Order.Currency),
	}
	if ctx.Order.Amount != 0 {
		params["amount"] = fmt.Sprintf("%d", minorUnits(ctx.Order.Amount, ctx.Order.Currency))
	}
	return params, nil
}

// CustomerBuilder contributes buyer data to initial requests.
type CustomerBuilder struct{}

func (CustomerBuilder) Supports(ctx Context) bool {
	return ctx.Action == ActionAuthorize || ctx.Action == ActionPreauthorize
}

func (CustomerBuilder) Build(ctx Context) (payone.Params, error) {
	c := ctx.Customer
	params := payone.Params{
		"firstname": c.FirstName,
		"lastname":  c.LastName,
		"country":   c.CountryCode,
	}
	setIfPresent := func(key, value string) {
		if strings.TrimSpace(value) != "" {
			params[key] = value
		}
	}
	setIfPresent("salutation", c.Salutation)
	setIfPresent("email", c.Email)
	setIfPresent("street", c.Street)
	setIfPresent("zip", c.ZipCode)
	setIfPresent("city", c.City)
	setIfPresent("language", c.Language)
	setIfPresent("ip", c.IPAddress)
	setIfPresent("telephonenumber", c.PhoneNumber)
	if birthday := compactBirthday(c.BirthDate); birthday != "" {
		params["birthday"] = birthday
	}
	return params, nil
}

// compactBirthday turns 2006-01-02 into the processor's 20060102 form.
func compactBirthday(date string) string {
	compact := strings.ReplaceAll(strings.TrimSpace(date), "-", "")
	if len(compact) != 8 {
		return ""
	}
	return compact
}

// LineItemsBuilder contributes indexed order positions to initial requests.
type LineItemsBuilder struct{}

func (LineItemsBuilder) Supports(ctx Context) bool {
	return ctx.Action == ActionAuthorize || ctx.Action == ActionPreauthorize
}

func (LineItemsBuilder) Build(ctx Context) (payone.Params, error) {
	params := payone.Params{}
	for i, item := range ctx.Order.LineItems {
		// Item indices on the wire start at 1.
		n := i + 1
		itemType := item.Type
		if itemType == "" {
			itemType = "goods"
		}
		params[fmt.Sprintf("it[%d]", n)] = itemType
		params[fmt.Sprintf("id[%d]", n)] = item.Reference
		params[fmt.Sprintf("pr[%d]", n)] = fmt.Sprintf("%d", minorUnits(item.UnitPrice, ctx.Order.Currency))
		params[fmt.Sprintf("no[%d]", n)] = fmt.Sprintf("%d", item.Quantity)
		params[fmt.Sprintf("de[%d]", n)] = item.Name
		params[fmt.Sprintf("va[%d]", n)] = fmt.Sprintf("%d", int64(item.TaxRate*100))
	}
	return params, nil
}
