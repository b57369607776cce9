package service

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"dukaanpos/backend/internal/domain"
	"dukaanpos/backend/internal/store"
	"dukaanpos/backend/internal/store/memory"
)

func newTestService(t *testing.T) (*Service, *memory.Store) {
	t.Helper()
	repo := memory.NewSeeded()
	svc := New(repo, nil, nil, Settings{
		DataSource: "memory",
		TaxPresets: []decimal.Decimal{decimal.NewFromInt(5), decimal.NewFromInt(18)},
	})
	return svc, repo
}

func superCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{
		UserID: "user-root", Username: "root", Role: domain.RoleSuperAdmin,
	})
}

func adminCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{
		UserID: "user-owner", Username: "owner@sharmastore.in", Role: domain.RoleStoreAdmin, StoreID: "store-demo",
	})
}

func cashierCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{
		UserID: "user-cashier", Username: "cashier1", Role: domain.RoleCashier, StoreID: "store-demo",
	})
}

func dec(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("bad decimal %q: %v", s, err)
	}
	return d
}

func TestCreateStoreProvisionsAdmin(t *testing.T) {
	svc, repo := newTestService(t)

	resp, err := svc.CreateStore(superCtx(), domain.StoreCreateRequest{
		Name:     "Patel Provision",
		Currency: "INR",
		Email:    "Owner@Patel.In",
		Mobile:   "9876500001",
	})
	if err != nil {
		t.Fatalf("CreateStore: %v", err)
	}
	if len(resp.Warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", resp.Warnings)
	}

	u, err := repo.GetUserByUsername(context.Background(), "owner@patel.in")
	if err != nil {
		t.Fatalf("provisioned admin missing: %v", err)
	}
	if u.Role != domain.RoleStoreAdmin {
		t.Fatalf("role = %s, want %s", u.Role, domain.RoleStoreAdmin)
	}
	if u.StoreID != resp.Store.ID {
		t.Fatalf("storeId = %s, want %s", u.StoreID, resp.Store.ID)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte("9876500001")); err != nil {
		t.Fatalf("initial password is not the mobile number: %v", err)
	}
}

func TestCreateStoreDuplicateAdminWarns(t *testing.T) {
	svc, _ := newTestService(t)

	resp, err := svc.CreateStore(superCtx(), domain.StoreCreateRequest{
		Name:     "Second Sharma",
		Currency: "INR",
		Email:    "owner@sharmastore.in",
		Mobile:   "9876500002",
	})
	if err != nil {
		t.Fatalf("CreateStore: %v", err)
	}
	if len(resp.Warnings) != 1 {
		t.Fatalf("warnings = %v, want one conflict warning", resp.Warnings)
	}
}

func TestCreateStoreRequiresSuperAdmin(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.CreateStore(adminCtx(), domain.StoreCreateRequest{Name: "X", Currency: "INR"})
	if !errors.Is(err, store.ErrForbidden) {
		t.Fatalf("err = %v, want ErrForbidden", err)
	}
}

func TestStoreScopeEnforced(t *testing.T) {
	svc, _ := newTestService(t)

	resp, err := svc.CreateStore(superCtx(), domain.StoreCreateRequest{Name: "Other", Currency: "USD"})
	if err != nil {
		t.Fatalf("CreateStore: %v", err)
	}

	if _, err := svc.GetStore(adminCtx(), resp.Store.ID); !errors.Is(err, store.ErrForbidden) {
		t.Fatalf("cross-store read err = %v, want ErrForbidden", err)
	}
	if _, err := svc.ListProducts(cashierCtx(), resp.Store.ID); !errors.Is(err, store.ErrForbidden) {
		t.Fatalf("cross-store product list err = %v, want ErrForbidden", err)
	}
}

func TestDeleteStoreRejectsNonEmpty(t *testing.T) {
	svc, repo := newTestService(t)

	// Seeded store carries categories, products and users.
	if err := svc.DeleteStore(superCtx(), "store-demo"); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("seeded store delete err = %v, want ErrConflict", err)
	}
	if _, err := repo.GetStore(context.Background(), "store-demo"); err != nil {
		t.Fatalf("store gone after rejected delete: %v", err)
	}

	resp, err := svc.CreateStore(superCtx(), domain.StoreCreateRequest{
		Name: "Pop-up Stall", Currency: "INR", Email: "popup@stall.in", Mobile: "9876500009",
	})
	if err != nil {
		t.Fatalf("CreateStore: %v", err)
	}
	if err := svc.DeleteStore(superCtx(), resp.Store.ID); err != nil {
		t.Fatalf("empty store delete: %v", err)
	}
	// The provisioned admin account goes with the store.
	if _, err := repo.GetUserByUsername(context.Background(), "popup@stall.in"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("provisioned admin lookup err = %v, want ErrNotFound", err)
	}
}

func TestListStoresScopedToOwn(t *testing.T) {
	svc, _ := newTestService(t)

	if _, err := svc.CreateStore(superCtx(), domain.StoreCreateRequest{Name: "Other", Currency: "EUR"}); err != nil {
		t.Fatalf("CreateStore: %v", err)
	}

	all, err := svc.ListStores(superCtx())
	if err != nil {
		t.Fatalf("ListStores super: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("super sees %d stores, want 2", len(all))
	}

	own, err := svc.ListStores(adminCtx())
	if err != nil {
		t.Fatalf("ListStores admin: %v", err)
	}
	if len(own) != 1 || own[0].ID != "store-demo" {
		t.Fatalf("admin sees %v, want only store-demo", own)
	}
}

func TestDeleteCategoryInUse(t *testing.T) {
	svc, repo := newTestService(t)

	err := svc.DeleteCategory(adminCtx(), "cat-grocery")
	if !errors.Is(err, store.ErrCategoryInUse) {
		t.Fatalf("err = %v, want ErrCategoryInUse", err)
	}
	if _, err := repo.GetCategory(context.Background(), "cat-grocery"); err != nil {
		t.Fatalf("category was removed despite products: %v", err)
	}
}

func TestDeleteEmptyCategory(t *testing.T) {
	svc, _ := newTestService(t)

	c, err := svc.CreateCategory(adminCtx(), domain.CategoryCreateRequest{
		StoreID: "store-demo", Name: "Stationery",
	})
	if err != nil {
		t.Fatalf("CreateCategory: %v", err)
	}
	if err := svc.DeleteCategory(adminCtx(), c.ID); err != nil {
		t.Fatalf("DeleteCategory: %v", err)
	}
}

func TestCashierCannotWriteCatalog(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.CreateCategory(cashierCtx(), domain.CategoryCreateRequest{
		StoreID: "store-demo", Name: "Snacks",
	})
	if !errors.Is(err, store.ErrForbidden) {
		t.Fatalf("err = %v, want ErrForbidden", err)
	}
	if _, err := svc.AdjustStock(cashierCtx(), "prod-atta", 5); !errors.Is(err, store.ErrForbidden) {
		t.Fatalf("cashier stock adjust err = %v, want ErrForbidden", err)
	}
}

func TestAdjustStock(t *testing.T) {
	svc, _ := newTestService(t)

	resp, err := svc.AdjustStock(adminCtx(), "prod-atta", -20)
	if err != nil {
		t.Fatalf("AdjustStock: %v", err)
	}
	if resp.NewStock != 100 {
		t.Fatalf("newStock = %d, want 100", resp.NewStock)
	}

	if _, err := svc.AdjustStock(adminCtx(), "prod-atta", -500); !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("err = %v, want ErrInsufficientStock", err)
	}
	if _, err := svc.AdjustStock(adminCtx(), "prod-atta", 0); !errors.Is(err, store.ErrInvalid) {
		t.Fatalf("zero delta err = %v, want ErrInvalid", err)
	}
}

func TestCreateInvoiceDecrementsStock(t *testing.T) {
	svc, repo := newTestService(t)

	inv, err := svc.CreateInvoice(cashierCtx(), domain.InvoiceCreateRequest{
		StoreID:       "store-demo",
		PaymentMethod: domain.PaymentCash,
		Items: []domain.InvoiceItemRequest{
			{ProductID: "prod-atta", Qty: 2},
		},
	})
	if err != nil {
		t.Fatalf("CreateInvoice: %v", err)
	}
	if inv.Number != "INV-000001" {
		t.Fatalf("number = %s, want INV-000001", inv.Number)
	}
	if inv.CreatedBy != "cashier1" {
		t.Fatalf("createdBy = %s, want cashier1", inv.CreatedBy)
	}

	// 2 x 240 at 5% GST, no discount.
	if !inv.Subtotal.Equal(dec(t, "480")) {
		t.Fatalf("subtotal = %s, want 480", inv.Subtotal)
	}
	if !inv.TaxTotal.Equal(dec(t, "24")) {
		t.Fatalf("taxTotal = %s, want 24", inv.TaxTotal)
	}
	if !inv.GrandTotal.Equal(dec(t, "504")) {
		t.Fatalf("grandTotal = %s, want 504", inv.GrandTotal)
	}

	p, err := repo.GetProduct(context.Background(), "prod-atta")
	if err != nil {
		t.Fatalf("GetProduct: %v", err)
	}
	if p.StockQty != 118 {
		t.Fatalf("stock = %d, want 118", p.StockQty)
	}
}

func TestCreateInvoiceInsufficientStockAborts(t *testing.T) {
	svc, repo := newTestService(t)

	_, err := svc.CreateInvoice(cashierCtx(), domain.InvoiceCreateRequest{
		StoreID:       "store-demo",
		PaymentMethod: domain.PaymentUPI,
		Items: []domain.InvoiceItemRequest{
			{ProductID: "prod-atta", Qty: 1},
			{ProductID: "prod-tea", Qty: 999},
		},
	})
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("err = %v, want ErrInsufficientStock", err)
	}

	// The passing line must not have been decremented.
	p, err := repo.GetProduct(context.Background(), "prod-atta")
	if err != nil {
		t.Fatalf("GetProduct: %v", err)
	}
	if p.StockQty != 120 {
		t.Fatalf("stock = %d, want untouched 120", p.StockQty)
	}
}

func TestCreateInvoiceAppliesTaxOverride(t *testing.T) {
	svc, _ := newTestService(t)

	inv, err := svc.CreateInvoice(cashierCtx(), domain.InvoiceCreateRequest{
		StoreID:       "store-demo",
		PaymentMethod: domain.PaymentCard,
		Items: []domain.InvoiceItemRequest{
			{ProductID: "prod-cola", Qty: 1},
		},
	})
	if err != nil {
		t.Fatalf("CreateInvoice: %v", err)
	}
	// Cola overrides the Beverages 12% default with 28%.
	if !inv.Items[0].AppliedTaxPercent.Equal(dec(t, "28")) {
		t.Fatalf("appliedTaxPercent = %s, want 28", inv.Items[0].AppliedTaxPercent)
	}
	if !inv.GrandTotal.Equal(dec(t, "51.2")) {
		t.Fatalf("grandTotal = %s, want 51.2", inv.GrandTotal)
	}
}

func TestCreateInvoiceMergesDuplicateLines(t *testing.T) {
	svc, repo := newTestService(t)

	inv, err := svc.CreateInvoice(cashierCtx(), domain.InvoiceCreateRequest{
		StoreID:       "store-demo",
		PaymentMethod: domain.PaymentCash,
		Items: []domain.InvoiceItemRequest{
			{ProductID: "prod-soap", Qty: 2},
			{ProductID: "prod-soap", Qty: 3},
		},
	})
	if err != nil {
		t.Fatalf("CreateInvoice: %v", err)
	}
	if len(inv.Items) != 1 || inv.Items[0].Qty != 5 {
		t.Fatalf("items = %+v, want one merged line of qty 5", inv.Items)
	}

	p, _ := repo.GetProduct(context.Background(), "prod-soap")
	if p.StockQty != 145 {
		t.Fatalf("stock = %d, want 145", p.StockQty)
	}
}

func TestStoreDiscountAffectsNewInvoices(t *testing.T) {
	svc, _ := newTestService(t)

	before, err := svc.CreateInvoice(cashierCtx(), domain.InvoiceCreateRequest{
		StoreID:       "store-demo",
		PaymentMethod: domain.PaymentCash,
		Items:         []domain.InvoiceItemRequest{{ProductID: "prod-rice", Qty: 1}},
	})
	if err != nil {
		t.Fatalf("CreateInvoice: %v", err)
	}

	ten := dec(t, "10")
	if _, err := svc.UpdateStore(adminCtx(), "store-demo", domain.StoreUpdateRequest{GlobalDiscount: &ten}); err != nil {
		t.Fatalf("UpdateStore: %v", err)
	}

	after, err := svc.CreateInvoice(cashierCtx(), domain.InvoiceCreateRequest{
		StoreID:       "store-demo",
		PaymentMethod: domain.PaymentCash,
		Items:         []domain.InvoiceItemRequest{{ProductID: "prod-rice", Qty: 1}},
	})
	if err != nil {
		t.Fatalf("CreateInvoice after discount: %v", err)
	}

	if !before.DiscountTotal.IsZero() {
		t.Fatalf("pre-discount invoice has discount %s", before.DiscountTotal)
	}
	if !after.DiscountTotal.Equal(dec(t, "11")) {
		t.Fatalf("discountTotal = %s, want 11", after.DiscountTotal)
	}
	if after.GrandTotal.GreaterThanOrEqual(before.GrandTotal) {
		t.Fatalf("discount did not lower the total: before %s, after %s", before.GrandTotal, after.GrandTotal)
	}
}

func TestInvoiceNumbersArePerStore(t *testing.T) {
	svc, _ := newTestService(t)

	resp, err := svc.CreateStore(superCtx(), domain.StoreCreateRequest{Name: "Other", Currency: "INR"})
	if err != nil {
		t.Fatalf("CreateStore: %v", err)
	}
	cat, err := svc.CreateCategory(superCtx(), domain.CategoryCreateRequest{StoreID: resp.Store.ID, Name: "Misc"})
	if err != nil {
		t.Fatalf("CreateCategory: %v", err)
	}
	p, err := svc.CreateProduct(superCtx(), domain.ProductCreateRequest{
		StoreID: resp.Store.ID, CategoryID: cat.ID, Name: "Widget", Price: dec(t, "10"), StockQty: 5,
	})
	if err != nil {
		t.Fatalf("CreateProduct: %v", err)
	}

	first, err := svc.CreateInvoice(cashierCtx(), domain.InvoiceCreateRequest{
		StoreID:       "store-demo",
		PaymentMethod: domain.PaymentCash,
		Items:         []domain.InvoiceItemRequest{{ProductID: "prod-soap", Qty: 1}},
	})
	if err != nil {
		t.Fatalf("CreateInvoice demo: %v", err)
	}
	other, err := svc.CreateInvoice(superCtx(), domain.InvoiceCreateRequest{
		StoreID:       resp.Store.ID,
		PaymentMethod: domain.PaymentCash,
		Items:         []domain.InvoiceItemRequest{{ProductID: p.ID, Qty: 1}},
	})
	if err != nil {
		t.Fatalf("CreateInvoice other: %v", err)
	}
	if first.Number != "INV-000001" || other.Number != "INV-000001" {
		t.Fatalf("numbers = %s / %s, want independent INV-000001 each", first.Number, other.Number)
	}
}

func TestSetInvoiceSynced(t *testing.T) {
	svc, _ := newTestService(t)

	inv, err := svc.CreateInvoice(cashierCtx(), domain.InvoiceCreateRequest{
		StoreID:       "store-demo",
		PaymentMethod: domain.PaymentQR,
		Items:         []domain.InvoiceItemRequest{{ProductID: "prod-tea", Qty: 1}},
	})
	if err != nil {
		t.Fatalf("CreateInvoice: %v", err)
	}
	updated, err := svc.SetInvoiceSynced(cashierCtx(), inv.ID, true)
	if err != nil {
		t.Fatalf("SetInvoiceSynced: %v", err)
	}
	if !updated.Synced {
		t.Fatal("invoice not marked synced")
	}
}

func TestLowStockProducts(t *testing.T) {
	svc, _ := newTestService(t)

	if _, err := svc.AdjustStock(adminCtx(), "prod-tea", -55); err != nil {
		t.Fatalf("AdjustStock: %v", err)
	}

	low, err := svc.LowStockProducts(adminCtx(), "store-demo")
	if err != nil {
		t.Fatalf("LowStockProducts: %v", err)
	}
	if len(low) != 1 || low[0].ID != "prod-tea" {
		t.Fatalf("low = %+v, want only prod-tea", low)
	}
}

func TestFinancialOverview(t *testing.T) {
	svc, _ := newTestService(t)

	if _, err := svc.CreateInvoice(cashierCtx(), domain.InvoiceCreateRequest{
		StoreID:       "store-demo",
		PaymentMethod: domain.PaymentCash,
		Items:         []domain.InvoiceItemRequest{{ProductID: "prod-atta", Qty: 2}},
	}); err != nil {
		t.Fatalf("CreateInvoice: %v", err)
	}
	if _, err := svc.CreateExpense(adminCtx(), domain.ExpenseCreateRequest{
		StoreID: "store-demo", Label: "Electricity", Amount: dec(t, "104"),
	}); err != nil {
		t.Fatalf("CreateExpense: %v", err)
	}

	ov, err := svc.FinancialOverview(adminCtx(), "store-demo", nil, nil)
	if err != nil {
		t.Fatalf("FinancialOverview: %v", err)
	}
	if !ov.Summary.TotalSales.Equal(dec(t, "504")) {
		t.Fatalf("totalSales = %s, want 504", ov.Summary.TotalSales)
	}
	if !ov.Summary.TotalExpenses.Equal(dec(t, "104")) {
		t.Fatalf("totalExpenses = %s, want 104", ov.Summary.TotalExpenses)
	}
	if !ov.Summary.Profit.Equal(dec(t, "400")) {
		t.Fatalf("profit = %s, want 400", ov.Summary.Profit)
	}
	if ov.Counts.Invoices != 1 || ov.Counts.Expenses != 1 {
		t.Fatalf("counts = %+v, want 1/1", ov.Counts)
	}
	if ov.Currency != "INR" {
		t.Fatalf("currency = %s, want INR", ov.Currency)
	}

	if _, err := svc.FinancialOverview(cashierCtx(), "store-demo", nil, nil); !errors.Is(err, store.ErrForbidden) {
		t.Fatalf("cashier overview err = %v, want ErrForbidden", err)
	}
}

func TestPartnershipsFeedOverview(t *testing.T) {
	svc, _ := newTestService(t)

	p, err := svc.CreatePartnership(adminCtx(), domain.PartnershipCreateRequest{
		StoreID: "store-demo", PartnerName: "Gupta Traders", Investment: dec(t, "5000"),
	})
	if err != nil {
		t.Fatalf("CreatePartnership: %v", err)
	}
	if _, err := svc.CreatePartnershipAsset(adminCtx(), p.ID, domain.PartnershipAssetCreateRequest{
		Label: "Delivery scooter", Value: dec(t, "1200"),
	}); err != nil {
		t.Fatalf("CreatePartnershipAsset: %v", err)
	}

	ov, err := svc.FinancialOverview(adminCtx(), "store-demo", nil, nil)
	if err != nil {
		t.Fatalf("FinancialOverview: %v", err)
	}
	if !ov.Summary.TotalInvestment.Equal(dec(t, "6200")) {
		t.Fatalf("totalInvestment = %s, want 6200", ov.Summary.TotalInvestment)
	}

	if _, err := svc.CreatePartnership(cashierCtx(), domain.PartnershipCreateRequest{
		StoreID: "store-demo", PartnerName: "X", Investment: dec(t, "1"),
	}); !errors.Is(err, store.ErrForbidden) {
		t.Fatalf("cashier create err = %v, want ErrForbidden", err)
	}
	if _, err := svc.ListPartnershipAssets(cashierCtx(), p.ID); !errors.Is(err, store.ErrForbidden) {
		t.Fatalf("cashier asset list err = %v, want ErrForbidden", err)
	}
}

func TestRegisterRequiresSuperAdmin(t *testing.T) {
	svc, _ := newTestService(t)

	req := domain.RegisterRequest{
		Username: "cashier2", Password: "secret123", Role: domain.RoleCashier, StoreID: "store-demo",
	}
	if _, err := svc.Register(adminCtx(), req); !errors.Is(err, store.ErrForbidden) {
		t.Fatalf("store admin register err = %v, want ErrForbidden", err)
	}

	u, err := svc.Register(superCtx(), req)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if u.Role != domain.RoleCashier || u.StoreID != "store-demo" {
		t.Fatalf("user = %+v", u)
	}

	bad := req
	bad.Username = "orphan"
	bad.StoreID = ""
	if _, err := svc.Register(superCtx(), bad); !errors.Is(err, store.ErrInvalid) {
		t.Fatalf("missing storeId err = %v, want ErrInvalid", err)
	}
}

func TestChangePassword(t *testing.T) {
	svc, repo := newTestService(t)

	err := svc.ChangePassword(cashierCtx(), domain.ChangePasswordRequest{
		OldPassword: "wrong", NewPassword: "longenough",
	})
	if !errors.Is(err, ErrBadCredentials) {
		t.Fatalf("err = %v, want ErrBadCredentials", err)
	}

	err = svc.ChangePassword(cashierCtx(), domain.ChangePasswordRequest{
		OldPassword: "cashier123", NewPassword: "short",
	})
	if !errors.Is(err, store.ErrInvalid) {
		t.Fatalf("err = %v, want ErrInvalid for short password", err)
	}

	err = svc.ChangePassword(cashierCtx(), domain.ChangePasswordRequest{
		OldPassword: "cashier123", NewPassword: "longenough",
	})
	if err != nil {
		t.Fatalf("ChangePassword: %v", err)
	}
	u, err := repo.GetUser(context.Background(), "user-cashier")
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte("longenough")); err != nil {
		t.Fatalf("new password not stored: %v", err)
	}
}

func TestUpdateStoreRenamesProvisionedAdmin(t *testing.T) {
	svc, repo := newTestService(t)

	email := "new-owner@sharmastore.in"
	resp, err := svc.UpdateStore(adminCtx(), "store-demo", domain.StoreUpdateRequest{Email: &email})
	if err != nil {
		t.Fatalf("UpdateStore: %v", err)
	}
	if len(resp.Warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", resp.Warnings)
	}
	if _, err := repo.GetUserByUsername(context.Background(), email); err != nil {
		t.Fatalf("renamed admin missing: %v", err)
	}
	if _, err := repo.GetUserByUsername(context.Background(), "owner@sharmastore.in"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("old username still resolves: %v", err)
	}
}

func TestGlobalSettings(t *testing.T) {
	svc, _ := newTestService(t)

	gs, err := svc.GlobalSettings(cashierCtx())
	if err != nil {
		t.Fatalf("GlobalSettings: %v", err)
	}
	if gs.DataSource != "memory" {
		t.Fatalf("dataSource = %s, want memory", gs.DataSource)
	}
	if len(gs.DefaultTaxPresets) != 2 {
		t.Fatalf("presets = %v, want 2 entries", gs.DefaultTaxPresets)
	}
}
