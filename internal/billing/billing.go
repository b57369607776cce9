// Package billing computes invoice amounts on decimal values.
package billing

import (
	"fmt"

	"github.com/shopspring/decimal"

	"dukaanpos/backend/internal/domain"
)

var hundred = decimal.NewFromInt(100)

// EffectiveTaxPercent resolves the tax rate for a product: the product
// override wins, otherwise the category default applies.
func EffectiveTaxPercent(p *domain.Product, c *domain.Category) decimal.Decimal {
	if p.TaxOverride != nil {
		return *p.TaxOverride
	}
	return c.DefaultGST
}

// EffectiveDiscountPercent sums the category default discount and the
// store-wide discount. The two are additive percentages off the line
// subtotal, clamped to 0..100, never compounded.
func EffectiveDiscountPercent(c *domain.Category, store *domain.Store) decimal.Decimal {
	d := c.DefaultDiscount
	if store.GlobalDiscount != nil {
		d = d.Add(*store.GlobalDiscount)
	}
	if d.IsNegative() {
		return decimal.Zero
	}
	if d.GreaterThan(hundred) {
		return hundred
	}
	return d
}

// ComputeLine prices one invoice line. The discount comes off the line
// subtotal first; tax applies to the post-discount amount.
func ComputeLine(p *domain.Product, c *domain.Category, store *domain.Store, qty int64) (domain.InvoiceItem, error) {
	if qty <= 0 {
		return domain.InvoiceItem{}, fmt.Errorf("qty must be positive, got %d", qty)
	}
	taxPct := EffectiveTaxPercent(p, c)
	discPct := EffectiveDiscountPercent(c, store)

	sub := p.Price.Mul(decimal.NewFromInt(qty))
	disc := sub.Mul(discPct).Div(hundred).Round(2)
	base := sub.Sub(disc)
	tax := base.Mul(taxPct).Div(hundred).Round(2)

	return domain.InvoiceItem{
		ProductID:              p.ID,
		Name:                   p.Name,
		Price:                  p.Price,
		Qty:                    qty,
		AppliedTaxPercent:      taxPct,
		AppliedDiscountPercent: discPct,
		LineTotal:              base.Add(tax),
	}, nil
}

type Totals struct {
	Subtotal      decimal.Decimal
	TaxTotal      decimal.Decimal
	DiscountTotal decimal.Decimal
	GrandTotal    decimal.Decimal
}

// Aggregate sums line values. Each component is the sum of already
// rounded per-line amounts, so
// GrandTotal == Subtotal - DiscountTotal + TaxTotal holds exactly.
func Aggregate(items []domain.InvoiceItem) Totals {
	t := Totals{
		Subtotal:      decimal.Zero,
		TaxTotal:      decimal.Zero,
		DiscountTotal: decimal.Zero,
		GrandTotal:    decimal.Zero,
	}
	for _, it := range items {
		sub := it.Price.Mul(decimal.NewFromInt(it.Qty))
		disc := sub.Mul(it.AppliedDiscountPercent).Div(hundred).Round(2)
		base := sub.Sub(disc)
		tax := base.Mul(it.AppliedTaxPercent).Div(hundred).Round(2)
		t.Subtotal = t.Subtotal.Add(sub)
		t.DiscountTotal = t.DiscountTotal.Add(disc)
		t.TaxTotal = t.TaxTotal.Add(tax)
		t.GrandTotal = t.GrandTotal.Add(base.Add(tax))
	}
	return t
}
