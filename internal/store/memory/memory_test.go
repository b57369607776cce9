package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"dukaanpos/backend/internal/domain"
	"dukaanpos/backend/internal/store"
)

func TestUsernameLookupIsCaseInsensitive(t *testing.T) {
	s := NewSeeded()

	u, err := s.GetUserByUsername(context.Background(), "OWNER@SharmaStore.IN")
	if err != nil {
		t.Fatalf("GetUserByUsername: %v", err)
	}
	if u.ID != "user-owner" {
		t.Fatalf("user = %s, want user-owner", u.ID)
	}
}

func TestCreateUserRejectsDuplicateUsername(t *testing.T) {
	s := NewSeeded()

	_, err := s.CreateUser(context.Background(), domain.User{
		ID: "dup", Username: "Cashier1", Role: domain.RoleCashier, StoreID: "store-demo",
	})
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("err = %v, want ErrConflict", err)
	}
}

func TestAdjustStockNeverGoesNegative(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	if _, err := s.AdjustStock(ctx, "prod-atta", -121); !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("err = %v, want ErrInsufficientStock", err)
	}
	qty, err := s.AdjustStock(ctx, "prod-atta", -120)
	if err != nil {
		t.Fatalf("AdjustStock: %v", err)
	}
	if qty != 0 {
		t.Fatalf("qty = %d, want 0", qty)
	}
}

func TestDeleteCategoryGuard(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	if err := s.DeleteCategory(ctx, "cat-grocery"); !errors.Is(err, store.ErrCategoryInUse) {
		t.Fatalf("err = %v, want ErrCategoryInUse", err)
	}
	if err := s.DeleteProduct(ctx, "prod-atta"); err != nil {
		t.Fatalf("DeleteProduct: %v", err)
	}
	if err := s.DeleteProduct(ctx, "prod-rice"); err != nil {
		t.Fatalf("DeleteProduct: %v", err)
	}
	if err := s.DeleteCategory(ctx, "cat-grocery"); err != nil {
		t.Fatalf("DeleteCategory after emptying: %v", err)
	}
}

func TestListInvoicesFilterByTime(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	old := domain.Invoice{
		ID: "inv-old", StoreID: "store-demo", Number: "INV-000001",
		Items: []domain.InvoiceItem{{
			ProductID: "prod-soap", Name: "Bath Soap",
			Price: decimal.NewFromInt(35), Qty: 1,
			AppliedTaxPercent: decimal.NewFromInt(18), AppliedDiscountPercent: decimal.NewFromInt(5),
			LineTotal: decimal.NewFromInt(39),
		}},
		GrandTotal:    decimal.NewFromInt(39),
		PaymentMethod: domain.PaymentCash,
		CreatedAt:     time.Now().UTC().Add(-48 * time.Hour),
	}
	recent := old
	recent.ID = "inv-recent"
	recent.Number = "INV-000002"
	recent.CreatedAt = time.Now().UTC()

	if _, err := s.CreateInvoice(ctx, old); err != nil {
		t.Fatalf("CreateInvoice old: %v", err)
	}
	if _, err := s.CreateInvoice(ctx, recent); err != nil {
		t.Fatalf("CreateInvoice recent: %v", err)
	}

	cutoff := time.Now().UTC().Add(-24 * time.Hour)
	got, err := s.ListInvoices(ctx, store.InvoiceFilter{StoreID: "store-demo", From: &cutoff})
	if err != nil {
		t.Fatalf("ListInvoices: %v", err)
	}
	if len(got) != 1 || got[0].ID != "inv-recent" {
		t.Fatalf("got = %+v, want only inv-recent", got)
	}
}

func TestInvoiceCountersArePerStore(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	first, err := s.NextInvoiceNumber(ctx, "store-demo")
	if err != nil {
		t.Fatalf("NextInvoiceNumber: %v", err)
	}
	second, err := s.NextInvoiceNumber(ctx, "store-demo")
	if err != nil {
		t.Fatalf("NextInvoiceNumber: %v", err)
	}
	other, err := s.NextInvoiceNumber(ctx, "store-other")
	if err != nil {
		t.Fatalf("NextInvoiceNumber: %v", err)
	}
	if first != 1 || second != 2 || other != 1 {
		t.Fatalf("sequences = %d %d %d, want 1 2 1", first, second, other)
	}
}

func TestReturnedCopiesDoNotAliasState(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	p, err := s.GetProduct(ctx, "prod-atta")
	if err != nil {
		t.Fatalf("GetProduct: %v", err)
	}
	p.Name = "mutated"

	again, err := s.GetProduct(ctx, "prod-atta")
	if err != nil {
		t.Fatalf("GetProduct: %v", err)
	}
	if again.Name != "Atta 5kg" {
		t.Fatalf("name = %s, internal state was mutated through a returned copy", again.Name)
	}
}
