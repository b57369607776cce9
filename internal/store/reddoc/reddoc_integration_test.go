package reddoc

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"dukaanpos/backend/internal/domain"
	"dukaanpos/backend/internal/store"
)

func newIntegrationStore(t *testing.T) *Store {
	t.Helper()
	addr := os.Getenv("DUKAANPOS_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("set DUKAANPOS_TEST_REDIS_ADDR to run redis integration test")
	}
	client := redis.NewClient(&redis.Options{Addr: addr, DB: 9})
	s, err := New(context.Background(), client)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})
	return s
}

func TestAdjustStockRefreshesTimestamp(t *testing.T) {
	s := newIntegrationStore(t)
	ctx := context.Background()

	stamp := time.Now().UnixNano()
	storeID := fmt.Sprintf("it-store-%d", stamp)
	catID := fmt.Sprintf("it-cat-%d", stamp)
	prodID := fmt.Sprintf("it-prod-%d", stamp)

	created := time.Now().UTC().Add(-time.Hour)
	if _, err := s.CreateStore(ctx, domain.Store{
		ID: storeID, Name: "Integration Store", Currency: "INR",
		ActiveUPI: 1, IsActive: true, CreatedAt: created, UpdatedAt: created,
	}); err != nil {
		t.Fatalf("create store: %v", err)
	}
	if _, err := s.CreateCategory(ctx, domain.Category{
		ID: catID, StoreID: storeID, Name: "Grocery",
		DefaultGST: decimal.NewFromInt(5), LowStockThreshold: 10,
		CreatedAt: created, UpdatedAt: created,
	}); err != nil {
		t.Fatalf("create category: %v", err)
	}
	if _, err := s.CreateProduct(ctx, domain.Product{
		ID: prodID, StoreID: storeID, CategoryID: catID, Name: "Atta 5kg",
		Price: decimal.NewFromInt(240), StockQty: 10, IsActive: true,
		CreatedAt: created, UpdatedAt: created,
	}); err != nil {
		t.Fatalf("create product: %v", err)
	}
	t.Cleanup(func() {
		_ = s.DeleteProduct(ctx, prodID)
		_ = s.DeleteCategory(ctx, catID)
		_ = s.DeleteStore(ctx, storeID)
	})

	newQty, err := s.AdjustStock(ctx, prodID, -3)
	if err != nil {
		t.Fatalf("adjust stock: %v", err)
	}
	if newQty != 7 {
		t.Fatalf("newQty = %d, want 7", newQty)
	}
	p, err := s.GetProduct(ctx, prodID)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if !p.UpdatedAt.After(created) {
		t.Fatalf("updatedAt = %s, want later than %s", p.UpdatedAt, created)
	}

	if _, err := s.AdjustStock(ctx, prodID, -100); !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("err = %v, want ErrInsufficientStock", err)
	}
}

func TestDeleteStoreGuardsAndRemovesUsers(t *testing.T) {
	s := newIntegrationStore(t)
	ctx := context.Background()

	stamp := time.Now().UnixNano()
	storeID := fmt.Sprintf("it-store-%d", stamp)
	catID := fmt.Sprintf("it-cat-%d", stamp)
	userID := fmt.Sprintf("it-user-%d", stamp)
	username := fmt.Sprintf("it-owner-%d@x.in", stamp)

	now := time.Now().UTC()
	if _, err := s.CreateStore(ctx, domain.Store{
		ID: storeID, Name: "Integration Store", Currency: "INR",
		ActiveUPI: 1, IsActive: true, CreatedAt: now, UpdatedAt: now,
	}); err != nil {
		t.Fatalf("create store: %v", err)
	}
	if _, err := s.CreateCategory(ctx, domain.Category{
		ID: catID, StoreID: storeID, Name: "Grocery",
		DefaultGST: decimal.NewFromInt(5), LowStockThreshold: 10,
		CreatedAt: now, UpdatedAt: now,
	}); err != nil {
		t.Fatalf("create category: %v", err)
	}
	if _, err := s.CreateUser(ctx, domain.User{
		ID: userID, Username: username, PasswordHash: "x",
		Role: domain.RoleStoreAdmin, StoreID: storeID,
		CreatedAt: now, UpdatedAt: now,
	}); err != nil {
		t.Fatalf("create user: %v", err)
	}

	if err := s.DeleteStore(ctx, storeID); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("delete with category err = %v, want ErrConflict", err)
	}

	if err := s.DeleteCategory(ctx, catID); err != nil {
		t.Fatalf("delete category: %v", err)
	}
	if err := s.DeleteStore(ctx, storeID); err != nil {
		t.Fatalf("delete store: %v", err)
	}
	if _, err := s.GetUserByUsername(ctx, username); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("username lookup after delete err = %v, want ErrNotFound", err)
	}
}
