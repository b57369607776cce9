package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"dukaanpos/backend/internal/domain"
	"dukaanpos/backend/internal/store"
)

func TestCreateInvoiceDecrementsStockAtomically(t *testing.T) {
	databaseURL := os.Getenv("DUKAANPOS_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set DUKAANPOS_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})
	if err := s.EnsureSchema(ctx); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}

	stamp := time.Now().UnixNano()
	storeID := fmt.Sprintf("it-store-%d", stamp)
	catID := fmt.Sprintf("it-cat-%d", stamp)
	prodID := fmt.Sprintf("it-prod-%d", stamp)

	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM invoices WHERE store_id = $1`, storeID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM invoice_counters WHERE store_id = $1`, storeID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM products WHERE store_id = $1`, storeID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM categories WHERE store_id = $1`, storeID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM stores WHERE id = $1`, storeID)
	})

	now := time.Now().UTC()
	if _, err := s.CreateStore(ctx, domain.Store{
		ID: storeID, Name: "Integration Store", Currency: "INR",
		ActiveUPI: 1, IsActive: true, CreatedAt: now, UpdatedAt: now,
	}); err != nil {
		t.Fatalf("create store: %v", err)
	}
	if _, err := s.CreateCategory(ctx, domain.Category{
		ID: catID, StoreID: storeID, Name: "Grocery",
		DefaultGST: decimal.NewFromInt(5), DefaultDiscount: decimal.Zero,
		LowStockThreshold: 10, CreatedAt: now, UpdatedAt: now,
	}); err != nil {
		t.Fatalf("create category: %v", err)
	}
	if _, err := s.CreateProduct(ctx, domain.Product{
		ID: prodID, StoreID: storeID, CategoryID: catID, Name: "Atta 5kg",
		Price: decimal.NewFromInt(240), StockQty: 10, IsActive: true,
		CreatedAt: now, UpdatedAt: now,
	}); err != nil {
		t.Fatalf("create product: %v", err)
	}

	inv := domain.Invoice{
		ID:      fmt.Sprintf("it-inv-%d", stamp),
		StoreID: storeID,
		Number:  "INV-000001",
		Items: []domain.InvoiceItem{{
			ProductID: prodID, Name: "Atta 5kg",
			Price: decimal.NewFromInt(240), Qty: 2,
			AppliedTaxPercent:      decimal.NewFromInt(5),
			AppliedDiscountPercent: decimal.Zero,
			LineTotal:              decimal.NewFromInt(504),
		}},
		Subtotal:      decimal.NewFromInt(480),
		TaxTotal:      decimal.NewFromInt(24),
		DiscountTotal: decimal.Zero,
		GrandTotal:    decimal.NewFromInt(504),
		PaymentMethod: domain.PaymentCash,
		CreatedBy:     "it-cashier",
		CreatedAt:     now,
	}
	if _, err := s.CreateInvoice(ctx, inv); err != nil {
		t.Fatalf("create invoice: %v", err)
	}

	p, err := s.GetProduct(ctx, prodID)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if p.StockQty != 8 {
		t.Fatalf("stock = %d, want 8", p.StockQty)
	}

	over := inv
	over.ID = fmt.Sprintf("it-inv2-%d", stamp)
	over.Number = "INV-000002"
	over.Items[0].Qty = 99
	if _, err := s.CreateInvoice(ctx, over); !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("err = %v, want ErrInsufficientStock", err)
	}

	p, err = s.GetProduct(ctx, prodID)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if p.StockQty != 8 {
		t.Fatalf("stock = %d after failed invoice, want untouched 8", p.StockQty)
	}
}
