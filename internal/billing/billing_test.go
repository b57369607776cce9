package billing

import (
	"testing"

	"github.com/shopspring/decimal"

	"dukaanpos/backend/internal/domain"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func testStore() *domain.Store {
	return &domain.Store{ID: "store-1", Currency: domain.CurrencyINR}
}

func TestLineTaxOnly(t *testing.T) {
	cat := &domain.Category{ID: "cat-1", DefaultGST: dec("10")}
	prod := &domain.Product{ID: "prod-1", Name: "Soap", Price: dec("100")}

	item, err := ComputeLine(prod, cat, testStore(), 2)
	if err != nil {
		t.Fatalf("ComputeLine: %v", err)
	}
	if !item.LineTotal.Equal(dec("220")) {
		t.Fatalf("line total = %s, want 220", item.LineTotal)
	}
	tot := Aggregate([]domain.InvoiceItem{item})
	if !tot.Subtotal.Equal(dec("200")) || !tot.TaxTotal.Equal(dec("20")) || !tot.GrandTotal.Equal(dec("220")) {
		t.Fatalf("totals = %+v, want 200/20/220", tot)
	}
}

func TestLineDiscountBeforeTax(t *testing.T) {
	cat := &domain.Category{ID: "cat-1", DefaultGST: dec("10"), DefaultDiscount: dec("10")}
	prod := &domain.Product{ID: "prod-1", Name: "Soap", Price: dec("100")}

	item, err := ComputeLine(prod, cat, testStore(), 2)
	if err != nil {
		t.Fatalf("ComputeLine: %v", err)
	}
	tot := Aggregate([]domain.InvoiceItem{item})
	if !tot.DiscountTotal.Equal(dec("20")) {
		t.Fatalf("discount = %s, want 20", tot.DiscountTotal)
	}
	if !tot.TaxTotal.Equal(dec("18")) {
		t.Fatalf("tax = %s, want 18 (tax on post-discount base)", tot.TaxTotal)
	}
	if !tot.GrandTotal.Equal(dec("198")) {
		t.Fatalf("grand total = %s, want 198", tot.GrandTotal)
	}
}

func TestTaxOverrideBeatsCategoryDefault(t *testing.T) {
	cat := &domain.Category{ID: "cat-1", DefaultGST: dec("18")}
	override := dec("5")
	prod := &domain.Product{ID: "prod-1", Name: "Book", Price: dec("50"), TaxOverride: &override}

	got := EffectiveTaxPercent(prod, cat)
	if !got.Equal(dec("5")) {
		t.Fatalf("effective tax = %s, want override 5", got)
	}
	prod.TaxOverride = nil
	if got := EffectiveTaxPercent(prod, cat); !got.Equal(dec("18")) {
		t.Fatalf("effective tax = %s, want category default 18", got)
	}
}

func TestStoreDiscountIsAdditive(t *testing.T) {
	g := dec("5")
	store := testStore()
	store.GlobalDiscount = &g
	cat := &domain.Category{ID: "cat-1", DefaultDiscount: dec("10")}

	got := EffectiveDiscountPercent(cat, store)
	if !got.Equal(dec("15")) {
		t.Fatalf("discount = %s, want additive 15", got)
	}
}

func TestDiscountClamped(t *testing.T) {
	g := dec("80")
	store := testStore()
	store.GlobalDiscount = &g
	cat := &domain.Category{ID: "cat-1", DefaultDiscount: dec("40")}
	if got := EffectiveDiscountPercent(cat, store); !got.Equal(dec("100")) {
		t.Fatalf("discount = %s, want clamp at 100", got)
	}
	neg := dec("-5")
	store.GlobalDiscount = &neg
	cat.DefaultDiscount = decimal.Zero
	if got := EffectiveDiscountPercent(cat, store); !got.Equal(decimal.Zero) {
		t.Fatalf("discount = %s, want clamp at 0", got)
	}
}

func TestGrandTotalIdentity(t *testing.T) {
	cat := &domain.Category{ID: "cat-1", DefaultGST: dec("12"), DefaultDiscount: dec("3")}
	store := testStore()
	items := make([]domain.InvoiceItem, 0, 3)
	for i, price := range []string{"19.99", "7.33", "120.5"} {
		prod := &domain.Product{ID: "p", Name: "x", Price: dec(price)}
		item, err := ComputeLine(prod, cat, store, int64(i+1))
		if err != nil {
			t.Fatalf("ComputeLine: %v", err)
		}
		items = append(items, item)
	}
	tot := Aggregate(items)
	want := tot.Subtotal.Sub(tot.DiscountTotal).Add(tot.TaxTotal)
	if !tot.GrandTotal.Equal(want) {
		t.Fatalf("grand total %s != subtotal - discount + tax %s", tot.GrandTotal, want)
	}
}

func TestComputeLineRejectsNonPositiveQty(t *testing.T) {
	cat := &domain.Category{ID: "cat-1"}
	prod := &domain.Product{ID: "prod-1", Price: dec("10")}
	if _, err := ComputeLine(prod, cat, testStore(), 0); err == nil {
		t.Fatal("expected error for qty 0")
	}
	if _, err := ComputeLine(prod, cat, testStore(), -2); err == nil {
		t.Fatal("expected error for negative qty")
	}
}
