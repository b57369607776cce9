package memory

import (
	"context"
	"log"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"dukaanpos/backend/internal/domain"
	"dukaanpos/backend/internal/store"
)

type Store struct {
	mu                sync.RWMutex
	stores            map[string]domain.Store
	categories        map[string]domain.Category
	products          map[string]domain.Product
	invoices          map[string]domain.Invoice
	invoiceSeqByStore map[string]int64
	usersByID         map[string]domain.User
	userIDByUsername  map[string]string
	expenses          map[string]domain.Expense
	partnerships      map[string]domain.Partnership
	partnershipAssets map[string]domain.PartnershipAsset
}

func New() *Store {
	return &Store{
		stores:            make(map[string]domain.Store),
		categories:        make(map[string]domain.Category),
		products:          make(map[string]domain.Product),
		invoices:          make(map[string]domain.Invoice),
		invoiceSeqByStore: make(map[string]int64),
		usersByID:         make(map[string]domain.User),
		userIDByUsername:  make(map[string]string),
		expenses:          make(map[string]domain.Expense),
		partnerships:      make(map[string]domain.Partnership),
		partnershipAssets: make(map[string]domain.PartnershipAsset),
	}
}

// seedPassword hashes a dev/demo credential. The password comes from
// the named environment variable; the hardcoded default is used with a
// warning when unset. Production deployments run on the postgres or
// redis backend and never hit this path.
func seedPassword(envKey, fallback string) string {
	pwd := os.Getenv(envKey)
	if pwd == "" {
		pwd = fallback
		log.Printf("[memory-store] WARNING: using default dev credential, set %s to override", envKey)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	if err != nil {
		log.Fatalf("[memory-store] failed to hash seed password: %v", err)
	}
	return string(hash)
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func NewSeeded() *Store {
	s := New()
	now := time.Now().UTC()

	seedStore := domain.Store{
		ID:        "store-demo",
		Name:      "Sharma General Store",
		OwnerName: "R. Sharma",
		Currency:  domain.CurrencyINR,
		TaxID:     "29ABCDE1234F1Z5",
		Address:   "12 MG Road, Bengaluru",
		UPIID:     "sharma@upi",
		ActiveUPI: 1,
		IsActive:  true,
		Timezone:  "Asia/Kolkata",
		Email:     "owner@sharmastore.in",
		Mobile:    "9876543210",
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.stores[seedStore.ID] = seedStore

	cats := []domain.Category{
		{ID: "cat-grocery", StoreID: seedStore.ID, Name: "Grocery", DefaultGST: dec("5"), DefaultDiscount: dec("0"), LowStockThreshold: 10, CreatedAt: now, UpdatedAt: now},
		{ID: "cat-beverage", StoreID: seedStore.ID, Name: "Beverages", DefaultGST: dec("12"), DefaultDiscount: dec("0"), LowStockThreshold: 10, CreatedAt: now, UpdatedAt: now},
		{ID: "cat-household", StoreID: seedStore.ID, Name: "Household", DefaultGST: dec("18"), DefaultDiscount: dec("5"), LowStockThreshold: 5, CreatedAt: now, UpdatedAt: now},
	}
	for _, c := range cats {
		s.categories[c.ID] = c
	}

	override := dec("28")
	prods := []domain.Product{
		{ID: "prod-atta", StoreID: seedStore.ID, CategoryID: "cat-grocery", Name: "Atta 5kg", Price: dec("240"), StockQty: 120, SKU: "GRC-ATTA-5", IsActive: true, CreatedAt: now, UpdatedAt: now},
		{ID: "prod-rice", StoreID: seedStore.ID, CategoryID: "cat-grocery", Name: "Basmati Rice 1kg", Price: dec("110"), StockQty: 80, SKU: "GRC-RICE-1", IsActive: true, CreatedAt: now, UpdatedAt: now},
		{ID: "prod-tea", StoreID: seedStore.ID, CategoryID: "cat-beverage", Name: "Tea 500g", Price: dec("250"), StockQty: 60, SKU: "BEV-TEA-500", IsActive: true, CreatedAt: now, UpdatedAt: now},
		{ID: "prod-cola", StoreID: seedStore.ID, CategoryID: "cat-beverage", Name: "Cola 750ml", Price: dec("40"), StockQty: 200, TaxOverride: &override, SKU: "BEV-COLA-750", IsActive: true, CreatedAt: now, UpdatedAt: now},
		{ID: "prod-soap", StoreID: seedStore.ID, CategoryID: "cat-household", Name: "Bath Soap", Price: dec("35"), StockQty: 150, SKU: "HH-SOAP", IsActive: true, CreatedAt: now, UpdatedAt: now},
	}
	for _, p := range prods {
		s.products[p.ID] = p
	}

	users := []domain.User{
		{ID: "user-root", Username: "root", PasswordHash: seedPassword("SEED_ADMIN_PASSWORD", "admin123"), Role: domain.RoleSuperAdmin, DisplayName: "Platform Admin", CreatedAt: now, UpdatedAt: now},
		{ID: "user-owner", Username: "owner@sharmastore.in", PasswordHash: seedPassword("SEED_STORE_PASSWORD", "owner123"), Role: domain.RoleStoreAdmin, StoreID: seedStore.ID, DisplayName: "R. Sharma", Email: "owner@sharmastore.in", CreatedAt: now, UpdatedAt: now},
		{ID: "user-cashier", Username: "cashier1", PasswordHash: seedPassword("SEED_CASHIER_PASSWORD", "cashier123"), Role: domain.RoleCashier, StoreID: seedStore.ID, DisplayName: "Counter 1", CreatedAt: now, UpdatedAt: now},
	}
	for _, u := range users {
		s.usersByID[u.ID] = u
		s.userIDByUsername[strings.ToLower(u.Username)] = u.ID
	}

	return s
}

func (s *Store) CreateStore(_ context.Context, st domain.Store) (*domain.Store, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if st.ID == "" || st.Name == "" {
		return nil, store.ErrInvalid
	}
	if _, exists := s.stores[st.ID]; exists {
		return nil, store.ErrConflict
	}
	s.stores[st.ID] = st
	created := st
	return &created, nil
}

func (s *Store) GetStore(_ context.Context, id string) (*domain.Store, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, exists := s.stores[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	out := st
	return &out, nil
}

func (s *Store) ListStores(_ context.Context) ([]domain.Store, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Store, 0, len(s.stores))
	for _, st := range s.stores {
		out = append(out, st)
	}
	slices.SortFunc(out, func(a, b domain.Store) int {
		return strings.Compare(a.Name, b.Name)
	})
	return out, nil
}

func (s *Store) UpdateStore(_ context.Context, st domain.Store) (*domain.Store, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.stores[st.ID]; !exists {
		return nil, store.ErrNotFound
	}
	s.stores[st.ID] = st
	updated := st
	return &updated, nil
}

// DeleteStore refuses stores that still hold catalog or financial data.
// The store's user accounts and invoice counter are removed with it.
func (s *Store) DeleteStore(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.stores[id]; !exists {
		return store.ErrNotFound
	}
	for _, c := range s.categories {
		if c.StoreID == id {
			return store.ErrConflict
		}
	}
	for _, p := range s.products {
		if p.StoreID == id {
			return store.ErrConflict
		}
	}
	for _, inv := range s.invoices {
		if inv.StoreID == id {
			return store.ErrConflict
		}
	}
	for _, e := range s.expenses {
		if e.StoreID == id {
			return store.ErrConflict
		}
	}
	for _, p := range s.partnerships {
		if p.StoreID == id {
			return store.ErrConflict
		}
	}
	for uid, u := range s.usersByID {
		if u.StoreID == id {
			delete(s.userIDByUsername, strings.ToLower(u.Username))
			delete(s.usersByID, uid)
		}
	}
	delete(s.invoiceSeqByStore, id)
	delete(s.stores, id)
	return nil
}

func (s *Store) CreateCategory(_ context.Context, c domain.Category) (*domain.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c.ID == "" || c.Name == "" || c.StoreID == "" {
		return nil, store.ErrInvalid
	}
	if _, exists := s.stores[c.StoreID]; !exists {
		return nil, store.ErrNotFound
	}
	s.categories[c.ID] = c
	created := c
	return &created, nil
}

func (s *Store) GetCategory(_ context.Context, id string) (*domain.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, exists := s.categories[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	out := c
	return &out, nil
}

func (s *Store) ListCategories(_ context.Context, storeID string) ([]domain.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Category, 0)
	for _, c := range s.categories {
		if c.StoreID == storeID {
			out = append(out, c)
		}
	}
	slices.SortFunc(out, func(a, b domain.Category) int {
		return strings.Compare(a.Name, b.Name)
	})
	return out, nil
}

func (s *Store) UpdateCategory(_ context.Context, c domain.Category) (*domain.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.categories[c.ID]; !exists {
		return nil, store.ErrNotFound
	}
	s.categories[c.ID] = c
	updated := c
	return &updated, nil
}

func (s *Store) DeleteCategory(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.categories[id]; !exists {
		return store.ErrNotFound
	}
	for _, p := range s.products {
		if p.CategoryID == id {
			return store.ErrCategoryInUse
		}
	}
	delete(s.categories, id)
	return nil
}

func (s *Store) CountProductsByCategory(_ context.Context, categoryID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, p := range s.products {
		if p.CategoryID == categoryID {
			n++
		}
	}
	return n, nil
}

func (s *Store) CreateProduct(_ context.Context, p domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.ID == "" || p.Name == "" || p.StoreID == "" || p.CategoryID == "" {
		return nil, store.ErrInvalid
	}
	if _, exists := s.stores[p.StoreID]; !exists {
		return nil, store.ErrNotFound
	}
	if _, exists := s.categories[p.CategoryID]; !exists {
		return nil, store.ErrNotFound
	}
	s.products[p.ID] = p
	created := p
	return &created, nil
}

func (s *Store) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, exists := s.products[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	out := p
	return &out, nil
}

func (s *Store) ListProducts(_ context.Context, storeID string) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Product, 0)
	for _, p := range s.products {
		if p.StoreID == storeID {
			out = append(out, p)
		}
	}
	slices.SortFunc(out, func(a, b domain.Product) int {
		return strings.Compare(a.Name, b.Name)
	})
	return out, nil
}

func (s *Store) UpdateProduct(_ context.Context, p domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.products[p.ID]; !exists {
		return nil, store.ErrNotFound
	}
	s.products[p.ID] = p
	updated := p
	return &updated, nil
}

func (s *Store) DeleteProduct(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.products[id]; !exists {
		return store.ErrNotFound
	}
	delete(s.products, id)
	return nil
}

func (s *Store) AdjustStock(_ context.Context, productID string, delta int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, exists := s.products[productID]
	if !exists {
		return 0, store.ErrNotFound
	}
	next := p.StockQty + delta
	if next < 0 {
		return 0, store.ErrInsufficientStock
	}
	p.StockQty = next
	p.UpdatedAt = time.Now().UTC()
	s.products[productID] = p
	return next, nil
}

func (s *Store) CreateInvoice(_ context.Context, inv domain.Invoice) (*domain.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if inv.ID == "" || inv.StoreID == "" || len(inv.Items) == 0 {
		return nil, store.ErrInvalid
	}
	if _, exists := s.invoices[inv.ID]; exists {
		return nil, store.ErrConflict
	}

	// Validate every line before mutating anything so a failed line
	// leaves no partial decrement behind.
	for _, item := range inv.Items {
		p, exists := s.products[item.ProductID]
		if !exists {
			return nil, store.ErrNotFound
		}
		if p.StockQty < item.Qty {
			return nil, store.ErrInsufficientStock
		}
	}
	now := time.Now().UTC()
	for _, item := range inv.Items {
		p := s.products[item.ProductID]
		p.StockQty -= item.Qty
		p.UpdatedAt = now
		s.products[item.ProductID] = p
	}

	s.invoices[inv.ID] = inv
	created := inv
	return &created, nil
}

func (s *Store) GetInvoice(_ context.Context, id string) (*domain.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	inv, exists := s.invoices[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	out := inv
	out.Items = slices.Clone(inv.Items)
	return &out, nil
}

func (s *Store) ListInvoices(_ context.Context, f store.InvoiceFilter) ([]domain.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Invoice, 0)
	for _, inv := range s.invoices {
		if f.StoreID != "" && inv.StoreID != f.StoreID {
			continue
		}
		if f.From != nil && inv.CreatedAt.Before(*f.From) {
			continue
		}
		if f.To != nil && inv.CreatedAt.After(*f.To) {
			continue
		}
		copyInv := inv
		copyInv.Items = slices.Clone(inv.Items)
		out = append(out, copyInv)
	}
	slices.SortFunc(out, func(a, b domain.Invoice) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *Store) SetInvoiceSynced(_ context.Context, id string, synced bool) (*domain.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inv, exists := s.invoices[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	inv.Synced = synced
	s.invoices[id] = inv
	out := inv
	out.Items = slices.Clone(inv.Items)
	return &out, nil
}

func (s *Store) NextInvoiceNumber(_ context.Context, storeID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.invoiceSeqByStore[storeID]++
	return s.invoiceSeqByStore[storeID], nil
}

func (s *Store) CreateUser(_ context.Context, u domain.User) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if u.ID == "" || u.Username == "" {
		return nil, store.ErrInvalid
	}
	key := strings.ToLower(u.Username)
	if _, exists := s.userIDByUsername[key]; exists {
		return nil, store.ErrConflict
	}
	s.usersByID[u.ID] = u
	s.userIDByUsername[key] = u.ID
	created := u
	return &created, nil
}

func (s *Store) GetUser(_ context.Context, id string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, exists := s.usersByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	out := u
	return &out, nil
}

func (s *Store) GetUserByUsername(_ context.Context, username string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, exists := s.userIDByUsername[strings.ToLower(username)]
	if !exists {
		return nil, store.ErrNotFound
	}
	u := s.usersByID[id]
	out := u
	return &out, nil
}

func (s *Store) ListUsersByStore(_ context.Context, storeID string) ([]domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.User, 0)
	for _, u := range s.usersByID {
		if u.StoreID == storeID {
			out = append(out, u)
		}
	}
	slices.SortFunc(out, func(a, b domain.User) int {
		return strings.Compare(a.Username, b.Username)
	})
	return out, nil
}

func (s *Store) UpdateUser(_ context.Context, u domain.User) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	old, exists := s.usersByID[u.ID]
	if !exists {
		return nil, store.ErrNotFound
	}
	if !strings.EqualFold(old.Username, u.Username) {
		key := strings.ToLower(u.Username)
		if _, taken := s.userIDByUsername[key]; taken {
			return nil, store.ErrConflict
		}
		delete(s.userIDByUsername, strings.ToLower(old.Username))
		s.userIDByUsername[key] = u.ID
	}
	s.usersByID[u.ID] = u
	updated := u
	return &updated, nil
}

func (s *Store) CreateExpense(_ context.Context, e domain.Expense) (*domain.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e.ID == "" || e.StoreID == "" || e.Label == "" {
		return nil, store.ErrInvalid
	}
	if _, exists := s.stores[e.StoreID]; !exists {
		return nil, store.ErrNotFound
	}
	s.expenses[e.ID] = e
	created := e
	return &created, nil
}

func (s *Store) GetExpense(_ context.Context, id string) (*domain.Expense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, exists := s.expenses[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	out := e
	return &out, nil
}

func (s *Store) ListExpenses(_ context.Context, f store.ExpenseFilter) ([]domain.Expense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Expense, 0)
	for _, e := range s.expenses {
		if f.StoreID != "" && e.StoreID != f.StoreID {
			continue
		}
		if f.From != nil && e.IncurredAt.Before(*f.From) {
			continue
		}
		if f.To != nil && e.IncurredAt.After(*f.To) {
			continue
		}
		out = append(out, e)
	}
	slices.SortFunc(out, func(a, b domain.Expense) int {
		return b.IncurredAt.Compare(a.IncurredAt)
	})
	return out, nil
}

func (s *Store) UpdateExpense(_ context.Context, e domain.Expense) (*domain.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.expenses[e.ID]; !exists {
		return nil, store.ErrNotFound
	}
	s.expenses[e.ID] = e
	updated := e
	return &updated, nil
}

func (s *Store) DeleteExpense(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.expenses[id]; !exists {
		return store.ErrNotFound
	}
	delete(s.expenses, id)
	return nil
}

func (s *Store) CreatePartnership(_ context.Context, p domain.Partnership) (*domain.Partnership, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.ID == "" || p.StoreID == "" {
		return nil, store.ErrInvalid
	}
	s.partnerships[p.ID] = p
	created := p
	return &created, nil
}

func (s *Store) GetPartnership(_ context.Context, id string) (*domain.Partnership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, exists := s.partnerships[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	out := p
	return &out, nil
}

func (s *Store) ListPartnerships(_ context.Context, storeID string) ([]domain.Partnership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Partnership, 0)
	for _, p := range s.partnerships {
		if p.StoreID == storeID {
			out = append(out, p)
		}
	}
	slices.SortFunc(out, func(a, b domain.Partnership) int {
		return strings.Compare(a.PartnerName, b.PartnerName)
	})
	return out, nil
}

func (s *Store) CreatePartnershipAsset(_ context.Context, a domain.PartnershipAsset) (*domain.PartnershipAsset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if a.ID == "" || a.PartnershipID == "" {
		return nil, store.ErrInvalid
	}
	s.partnershipAssets[a.ID] = a
	created := a
	return &created, nil
}

func (s *Store) ListPartnershipAssets(_ context.Context, partnershipID string) ([]domain.PartnershipAsset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.PartnershipAsset, 0)
	for _, a := range s.partnershipAssets {
		if a.PartnershipID == partnershipID {
			out = append(out, a)
		}
	}
	slices.SortFunc(out, func(a, b domain.PartnershipAsset) int {
		return strings.Compare(a.Label, b.Label)
	})
	return out, nil
}
