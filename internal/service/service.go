package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"dukaanpos/backend/internal/authz"
	"dukaanpos/backend/internal/billing"
	"dukaanpos/backend/internal/cache"
	"dukaanpos/backend/internal/domain"
	"dukaanpos/backend/internal/store"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

// Settings is fixed at startup and never mutable through the API.
type Settings struct {
	DataSource string
	TaxPresets []decimal.Decimal
}

const overviewTTL = 2 * time.Minute

type Service struct {
	repo     store.Repository
	overview cache.OverviewCache
	logger   *zap.Logger
	settings Settings
}

func New(repo store.Repository, overview cache.OverviewCache, logger *zap.Logger, settings Settings) *Service {
	if overview == nil {
		overview = cache.NoopOverviewCache{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		repo:     repo,
		overview: overview,
		logger:   logger,
		settings: settings,
	}
}

func (s *Service) requireCap(ctx context.Context, cap authz.Capability) (domain.Actor, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.Actor{}, store.ErrForbidden
	}
	if !authz.Can(actor.Role, cap) {
		return domain.Actor{}, store.ErrForbidden
	}
	return actor, nil
}

func (s *Service) requireStoreCap(ctx context.Context, cap authz.Capability, storeID string) (domain.Actor, error) {
	actor, err := s.requireCap(ctx, cap)
	if err != nil {
		return domain.Actor{}, err
	}
	if !authz.CanAccessStore(actor, storeID) {
		return domain.Actor{}, store.ErrForbidden
	}
	return actor, nil
}

func validPercent(d decimal.Decimal) bool {
	return !d.IsNegative() && !d.GreaterThan(decimal.NewFromInt(100))
}

func (s *Service) CreateStore(ctx context.Context, req domain.StoreCreateRequest) (*domain.StoreCreateResponse, error) {
	if _, err := s.requireCap(ctx, authz.StoresManage); err != nil {
		return nil, err
	}

	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.Mobile = strings.TrimSpace(req.Mobile)
	if req.Name == "" {
		return nil, fmt.Errorf("%w: store name required", store.ErrInvalid)
	}
	if !domain.ValidCurrency(req.Currency) {
		return nil, fmt.Errorf("%w: unsupported currency %q", store.ErrInvalid, req.Currency)
	}
	if req.GlobalDiscount != nil && !validPercent(*req.GlobalDiscount) {
		return nil, fmt.Errorf("%w: globalDiscount out of range", store.ErrInvalid)
	}
	activeUPI := req.ActiveUPI
	if activeUPI == 0 {
		activeUPI = 1
	}
	if activeUPI != 1 && activeUPI != 2 {
		return nil, fmt.Errorf("%w: activeUpi must be 1 or 2", store.ErrInvalid)
	}

	now := time.Now().UTC()
	st := domain.Store{
		ID:             uuid.NewString(),
		Name:           req.Name,
		OwnerName:      strings.TrimSpace(req.OwnerName),
		Currency:       req.Currency,
		TaxID:          strings.TrimSpace(req.TaxID),
		Address:        strings.TrimSpace(req.Address),
		UPIID:          strings.TrimSpace(req.UPIID),
		UPIID2:         strings.TrimSpace(req.UPIID2),
		ActiveUPI:      activeUPI,
		IsActive:       true,
		GlobalDiscount: req.GlobalDiscount,
		Timezone:       strings.TrimSpace(req.Timezone),
		Email:          req.Email,
		Mobile:         req.Mobile,
		LogoURL:        strings.TrimSpace(req.LogoURL),
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	created, err := s.repo.CreateStore(ctx, st)
	if err != nil {
		return nil, err
	}

	resp := &domain.StoreCreateResponse{Store: created}
	if warning := s.provisionStoreAdmin(ctx, created); warning != "" {
		resp.Warnings = append(resp.Warnings, warning)
	}
	return resp, nil
}

// provisionStoreAdmin creates the STORE_ADMIN account for a new store
// when contact details are present. The username is the store email and
// the initial password is the mobile number; the owner rotates it via
// change-password. Failures never abort store creation, they surface as
// warnings.
func (s *Service) provisionStoreAdmin(ctx context.Context, st *domain.Store) string {
	if st.Email == "" || st.Mobile == "" {
		return "store admin not provisioned: email and mobile required"
	}
	if _, err := s.repo.GetUserByUsername(ctx, st.Email); err == nil {
		return fmt.Sprintf("store admin not provisioned: username %s already exists", st.Email)
	} else if !errors.Is(err, store.ErrNotFound) {
		s.logger.Warn("store admin lookup failed", zap.String("store_id", st.ID), zap.Error(err))
		return "store admin not provisioned: user lookup failed"
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(st.Mobile), bcrypt.DefaultCost)
	if err != nil {
		s.logger.Warn("store admin password hash failed", zap.String("store_id", st.ID), zap.Error(err))
		return "store admin not provisioned: password hash failed"
	}
	now := time.Now().UTC()
	_, err = s.repo.CreateUser(ctx, domain.User{
		ID:           uuid.NewString(),
		Username:     st.Email,
		PasswordHash: string(hash),
		Role:         domain.RoleStoreAdmin,
		StoreID:      st.ID,
		DisplayName:  st.OwnerName,
		Email:        st.Email,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return fmt.Sprintf("store admin not provisioned: username %s already exists", st.Email)
		}
		s.logger.Warn("store admin create failed", zap.String("store_id", st.ID), zap.Error(err))
		return "store admin not provisioned: user create failed"
	}
	return ""
}

func (s *Service) GetStore(ctx context.Context, id string) (*domain.Store, error) {
	if _, err := s.requireStoreCap(ctx, authz.StoresRead, id); err != nil {
		return nil, err
	}
	return s.repo.GetStore(ctx, id)
}

func (s *Service) ListStores(ctx context.Context) ([]domain.Store, error) {
	actor, err := s.requireCap(ctx, authz.StoresRead)
	if err != nil {
		return nil, err
	}
	if actor.Role == domain.RoleSuperAdmin {
		return s.repo.ListStores(ctx)
	}
	if actor.StoreID == "" {
		return []domain.Store{}, nil
	}
	own, err := s.repo.GetStore(ctx, actor.StoreID)
	if err != nil {
		return nil, err
	}
	return []domain.Store{*own}, nil
}

func (s *Service) UpdateStore(ctx context.Context, id string, req domain.StoreUpdateRequest) (*domain.StoreUpdateResponse, error) {
	if _, err := s.requireStoreCap(ctx, authz.StoresUpdateOwn, id); err != nil {
		return nil, err
	}

	st, err := s.repo.GetStore(ctx, id)
	if err != nil {
		return nil, err
	}
	prevEmail := st.Email

	if req.Name != nil {
		if strings.TrimSpace(*req.Name) == "" {
			return nil, fmt.Errorf("%w: store name required", store.ErrInvalid)
		}
		st.Name = strings.TrimSpace(*req.Name)
	}
	if req.OwnerName != nil {
		st.OwnerName = strings.TrimSpace(*req.OwnerName)
	}
	if req.Currency != nil {
		if !domain.ValidCurrency(*req.Currency) {
			return nil, fmt.Errorf("%w: unsupported currency %q", store.ErrInvalid, *req.Currency)
		}
		st.Currency = *req.Currency
	}
	if req.TaxID != nil {
		st.TaxID = strings.TrimSpace(*req.TaxID)
	}
	if req.Address != nil {
		st.Address = strings.TrimSpace(*req.Address)
	}
	if req.UPIID != nil {
		st.UPIID = strings.TrimSpace(*req.UPIID)
	}
	if req.UPIID2 != nil {
		st.UPIID2 = strings.TrimSpace(*req.UPIID2)
	}
	if req.ActiveUPI != nil {
		if *req.ActiveUPI != 1 && *req.ActiveUPI != 2 {
			return nil, fmt.Errorf("%w: activeUpi must be 1 or 2", store.ErrInvalid)
		}
		st.ActiveUPI = *req.ActiveUPI
	}
	if req.IsActive != nil {
		st.IsActive = *req.IsActive
	}
	if req.GlobalDiscount != nil {
		if !validPercent(*req.GlobalDiscount) {
			return nil, fmt.Errorf("%w: globalDiscount out of range", store.ErrInvalid)
		}
		st.GlobalDiscount = req.GlobalDiscount
	}
	if req.Timezone != nil {
		st.Timezone = strings.TrimSpace(*req.Timezone)
	}
	if req.Email != nil {
		st.Email = strings.ToLower(strings.TrimSpace(*req.Email))
	}
	if req.Mobile != nil {
		st.Mobile = strings.TrimSpace(*req.Mobile)
	}
	if req.LogoURL != nil {
		st.LogoURL = strings.TrimSpace(*req.LogoURL)
	}

	updated, err := s.repo.UpdateStore(ctx, *st)
	if err != nil {
		return nil, err
	}

	resp := &domain.StoreUpdateResponse{Store: updated}
	resp.Warnings = s.propagateContactChange(ctx, updated, prevEmail)
	return resp, nil
}

// propagateContactChange keeps the provisioned STORE_ADMIN account in
// step with the store contact details. A rename that collides with an
// existing username is reported, not fatal.
func (s *Service) propagateContactChange(ctx context.Context, st *domain.Store, prevEmail string) []string {
	if st.Email == "" || st.Email == prevEmail {
		return nil
	}
	users, err := s.repo.ListUsersByStore(ctx, st.ID)
	if err != nil {
		s.logger.Warn("store user listing failed", zap.String("store_id", st.ID), zap.Error(err))
		return []string{"store admin not updated: user listing failed"}
	}
	var warnings []string
	for _, u := range users {
		if u.Role != domain.RoleStoreAdmin || !strings.EqualFold(u.Username, prevEmail) {
			continue
		}
		u.Username = st.Email
		u.Email = st.Email
		if _, err := s.repo.UpdateUser(ctx, u); err != nil {
			if errors.Is(err, store.ErrConflict) {
				warnings = append(warnings, fmt.Sprintf("store admin not renamed: username %s already exists", st.Email))
				continue
			}
			s.logger.Warn("store admin update failed", zap.String("store_id", st.ID), zap.Error(err))
			warnings = append(warnings, "store admin not updated")
		}
	}
	return warnings
}

func (s *Service) DeleteStore(ctx context.Context, id string) error {
	if _, err := s.requireCap(ctx, authz.StoresManage); err != nil {
		return err
	}
	return s.repo.DeleteStore(ctx, id)
}

func (s *Service) CreateCategory(ctx context.Context, req domain.CategoryCreateRequest) (*domain.Category, error) {
	if _, err := s.requireStoreCap(ctx, authz.CategoriesWrite, req.StoreID); err != nil {
		return nil, err
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" || req.StoreID == "" {
		return nil, fmt.Errorf("%w: category name and storeId required", store.ErrInvalid)
	}
	if _, err := s.repo.GetStore(ctx, req.StoreID); err != nil {
		return nil, err
	}

	gst := decimal.Zero
	if req.DefaultGST != nil {
		gst = *req.DefaultGST
	}
	disc := decimal.Zero
	if req.DefaultDiscount != nil {
		disc = *req.DefaultDiscount
	}
	if !validPercent(gst) || !validPercent(disc) {
		return nil, fmt.Errorf("%w: percentages must be within 0..100", store.ErrInvalid)
	}
	threshold := int64(10)
	if req.LowStockThreshold != nil {
		if *req.LowStockThreshold < 0 {
			return nil, fmt.Errorf("%w: lowStockThreshold must not be negative", store.ErrInvalid)
		}
		threshold = *req.LowStockThreshold
	}

	now := time.Now().UTC()
	return s.repo.CreateCategory(ctx, domain.Category{
		ID:                uuid.NewString(),
		StoreID:           req.StoreID,
		Name:              req.Name,
		DefaultGST:        gst,
		DefaultDiscount:   disc,
		LowStockThreshold: threshold,
		CreatedAt:         now,
		UpdatedAt:         now,
	})
}

func (s *Service) GetCategory(ctx context.Context, id string) (*domain.Category, error) {
	c, err := s.repo.GetCategory(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := s.requireStoreCap(ctx, authz.CategoriesRead, c.StoreID); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *Service) ListCategories(ctx context.Context, storeID string) ([]domain.Category, error) {
	if _, err := s.requireStoreCap(ctx, authz.CategoriesRead, storeID); err != nil {
		return nil, err
	}
	return s.repo.ListCategories(ctx, storeID)
}

func (s *Service) UpdateCategory(ctx context.Context, id string, req domain.CategoryUpdateRequest) (*domain.Category, error) {
	c, err := s.repo.GetCategory(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := s.requireStoreCap(ctx, authz.CategoriesWrite, c.StoreID); err != nil {
		return nil, err
	}

	if req.Name != nil {
		if strings.TrimSpace(*req.Name) == "" {
			return nil, fmt.Errorf("%w: category name required", store.ErrInvalid)
		}
		c.Name = strings.TrimSpace(*req.Name)
	}
	if req.DefaultGST != nil {
		if !validPercent(*req.DefaultGST) {
			return nil, fmt.Errorf("%w: defaultGst out of range", store.ErrInvalid)
		}
		c.DefaultGST = *req.DefaultGST
	}
	if req.DefaultDiscount != nil {
		if !validPercent(*req.DefaultDiscount) {
			return nil, fmt.Errorf("%w: defaultDiscount out of range", store.ErrInvalid)
		}
		c.DefaultDiscount = *req.DefaultDiscount
	}
	if req.LowStockThreshold != nil {
		if *req.LowStockThreshold < 0 {
			return nil, fmt.Errorf("%w: lowStockThreshold must not be negative", store.ErrInvalid)
		}
		c.LowStockThreshold = *req.LowStockThreshold
	}
	return s.repo.UpdateCategory(ctx, *c)
}

func (s *Service) DeleteCategory(ctx context.Context, id string) error {
	c, err := s.repo.GetCategory(ctx, id)
	if err != nil {
		return err
	}
	if _, err := s.requireStoreCap(ctx, authz.CategoriesWrite, c.StoreID); err != nil {
		return err
	}
	n, err := s.repo.CountProductsByCategory(ctx, id)
	if err != nil {
		return err
	}
	if n > 0 {
		return fmt.Errorf("%w: %d products still reference it", store.ErrCategoryInUse, n)
	}
	return s.repo.DeleteCategory(ctx, id)
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (*domain.Product, error) {
	if _, err := s.requireStoreCap(ctx, authz.ProductsWrite, req.StoreID); err != nil {
		return nil, err
	}
	req.Name = strings.TrimSpace(req.Name)
	req.SKU = strings.ToUpper(strings.TrimSpace(req.SKU))
	if req.Name == "" || req.StoreID == "" || req.CategoryID == "" {
		return nil, fmt.Errorf("%w: name, storeId and categoryId required", store.ErrInvalid)
	}
	if req.Price.IsNegative() || req.Price.IsZero() {
		return nil, fmt.Errorf("%w: price must be positive", store.ErrInvalid)
	}
	if req.StockQty < 0 {
		return nil, fmt.Errorf("%w: stockQty must not be negative", store.ErrInvalid)
	}
	if req.TaxOverride != nil && !validPercent(*req.TaxOverride) {
		return nil, fmt.Errorf("%w: taxOverride out of range", store.ErrInvalid)
	}

	cat, err := s.repo.GetCategory(ctx, req.CategoryID)
	if err != nil {
		return nil, err
	}
	if cat.StoreID != req.StoreID {
		return nil, fmt.Errorf("%w: category belongs to another store", store.ErrInvalid)
	}

	now := time.Now().UTC()
	return s.repo.CreateProduct(ctx, domain.Product{
		ID:          uuid.NewString(),
		StoreID:     req.StoreID,
		CategoryID:  req.CategoryID,
		Name:        req.Name,
		Price:       req.Price,
		StockQty:    req.StockQty,
		TaxOverride: req.TaxOverride,
		SKU:         req.SKU,
		ImageURL:    strings.TrimSpace(req.ImageURL),
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
}

func (s *Service) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	p, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := s.requireStoreCap(ctx, authz.ProductsRead, p.StoreID); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) ListProducts(ctx context.Context, storeID string) ([]domain.Product, error) {
	if _, err := s.requireStoreCap(ctx, authz.ProductsRead, storeID); err != nil {
		return nil, err
	}
	return s.repo.ListProducts(ctx, storeID)
}

func (s *Service) UpdateProduct(ctx context.Context, id string, req domain.ProductUpdateRequest) (*domain.Product, error) {
	p, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := s.requireStoreCap(ctx, authz.ProductsWrite, p.StoreID); err != nil {
		return nil, err
	}

	if req.CategoryID != nil {
		cat, err := s.repo.GetCategory(ctx, *req.CategoryID)
		if err != nil {
			return nil, err
		}
		if cat.StoreID != p.StoreID {
			return nil, fmt.Errorf("%w: category belongs to another store", store.ErrInvalid)
		}
		p.CategoryID = *req.CategoryID
	}
	if req.Name != nil {
		if strings.TrimSpace(*req.Name) == "" {
			return nil, fmt.Errorf("%w: product name required", store.ErrInvalid)
		}
		p.Name = strings.TrimSpace(*req.Name)
	}
	if req.Price != nil {
		if req.Price.IsNegative() || req.Price.IsZero() {
			return nil, fmt.Errorf("%w: price must be positive", store.ErrInvalid)
		}
		p.Price = *req.Price
	}
	if req.ClearTaxOverride {
		p.TaxOverride = nil
	} else if req.TaxOverride != nil {
		if !validPercent(*req.TaxOverride) {
			return nil, fmt.Errorf("%w: taxOverride out of range", store.ErrInvalid)
		}
		p.TaxOverride = req.TaxOverride
	}
	if req.SKU != nil {
		p.SKU = strings.ToUpper(strings.TrimSpace(*req.SKU))
	}
	if req.ImageURL != nil {
		p.ImageURL = strings.TrimSpace(*req.ImageURL)
	}
	if req.IsActive != nil {
		p.IsActive = *req.IsActive
	}
	return s.repo.UpdateProduct(ctx, *p)
}

func (s *Service) DeleteProduct(ctx context.Context, id string) error {
	p, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		return err
	}
	if _, err := s.requireStoreCap(ctx, authz.ProductsWrite, p.StoreID); err != nil {
		return err
	}
	return s.repo.DeleteProduct(ctx, id)
}

func (s *Service) AdjustStock(ctx context.Context, productID string, delta int64) (*domain.StockAdjustResponse, error) {
	p, err := s.repo.GetProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	if _, err := s.requireStoreCap(ctx, authz.StockAdjust, p.StoreID); err != nil {
		return nil, err
	}
	if delta == 0 {
		return nil, fmt.Errorf("%w: delta must not be zero", store.ErrInvalid)
	}
	newQty, err := s.repo.AdjustStock(ctx, productID, delta)
	if err != nil {
		return nil, err
	}
	return &domain.StockAdjustResponse{ProductID: productID, NewStock: newQty}, nil
}

func (s *Service) LowStockProducts(ctx context.Context, storeID string) ([]domain.Product, error) {
	if _, err := s.requireStoreCap(ctx, authz.ProductsRead, storeID); err != nil {
		return nil, err
	}
	products, err := s.repo.ListProducts(ctx, storeID)
	if err != nil {
		return nil, err
	}
	categories, err := s.repo.ListCategories(ctx, storeID)
	if err != nil {
		return nil, err
	}
	thresholds := make(map[string]int64, len(categories))
	for _, c := range categories {
		thresholds[c.ID] = c.LowStockThreshold
	}

	low := make([]domain.Product, 0)
	for _, p := range products {
		if !p.IsActive {
			continue
		}
		if p.StockQty <= thresholds[p.CategoryID] {
			low = append(low, p)
		}
	}
	return low, nil
}

func (s *Service) CreateInvoice(ctx context.Context, req domain.InvoiceCreateRequest) (*domain.Invoice, error) {
	actor, err := s.requireStoreCap(ctx, authz.InvoicesCreate, req.StoreID)
	if err != nil {
		return nil, err
	}
	if req.StoreID == "" || len(req.Items) == 0 {
		return nil, fmt.Errorf("%w: storeId and items required", store.ErrInvalid)
	}
	if !domain.ValidPaymentMethod(req.PaymentMethod) {
		return nil, fmt.Errorf("%w: unsupported payment method %q", store.ErrInvalid, req.PaymentMethod)
	}

	st, err := s.repo.GetStore(ctx, req.StoreID)
	if err != nil {
		return nil, err
	}
	if !st.IsActive {
		return nil, fmt.Errorf("%w: store is inactive", store.ErrInvalid)
	}

	// Merge duplicate product lines so the stock decrement sees one
	// qty per product.
	merged := make(map[string]int64, len(req.Items))
	order := make([]string, 0, len(req.Items))
	for _, item := range req.Items {
		if item.Qty <= 0 {
			return nil, fmt.Errorf("%w: qty must be positive", store.ErrInvalid)
		}
		if item.ProductID == "" {
			return nil, fmt.Errorf("%w: productId required", store.ErrInvalid)
		}
		if _, seen := merged[item.ProductID]; !seen {
			order = append(order, item.ProductID)
		}
		merged[item.ProductID] += item.Qty
	}

	categories := make(map[string]*domain.Category)
	items := make([]domain.InvoiceItem, 0, len(order))
	for _, productID := range order {
		p, err := s.repo.GetProduct(ctx, productID)
		if err != nil {
			return nil, err
		}
		if p.StoreID != req.StoreID {
			return nil, fmt.Errorf("%w: product belongs to another store", store.ErrInvalid)
		}
		if !p.IsActive {
			return nil, fmt.Errorf("%w: product %s is inactive", store.ErrInvalid, p.Name)
		}
		cat, ok := categories[p.CategoryID]
		if !ok {
			cat, err = s.repo.GetCategory(ctx, p.CategoryID)
			if err != nil {
				return nil, err
			}
			categories[p.CategoryID] = cat
		}
		item, err := billing.ComputeLine(p, cat, st, merged[productID])
		if err != nil {
			return nil, fmt.Errorf("%w: %v", store.ErrInvalid, err)
		}
		items = append(items, item)
	}

	totals := billing.Aggregate(items)
	seq, err := s.repo.NextInvoiceNumber(ctx, req.StoreID)
	if err != nil {
		return nil, err
	}

	inv := domain.Invoice{
		ID:            uuid.NewString(),
		StoreID:       req.StoreID,
		Number:        fmt.Sprintf("INV-%06d", seq),
		Items:         items,
		Subtotal:      totals.Subtotal,
		TaxTotal:      totals.TaxTotal,
		DiscountTotal: totals.DiscountTotal,
		GrandTotal:    totals.GrandTotal,
		PaymentMethod: req.PaymentMethod,
		Synced:        false,
		CreatedBy:     actor.Username,
		CreatedAt:     time.Now().UTC(),
	}

	created, err := s.repo.CreateInvoice(ctx, inv)
	if err != nil {
		return nil, err
	}
	if err := s.overview.InvalidateStore(ctx, req.StoreID); err != nil {
		s.logger.Warn("overview cache invalidation failed", zap.String("store_id", req.StoreID), zap.Error(err))
	}
	return created, nil
}

func (s *Service) GetInvoice(ctx context.Context, id string) (*domain.Invoice, error) {
	inv, err := s.repo.GetInvoice(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := s.requireStoreCap(ctx, authz.InvoicesRead, inv.StoreID); err != nil {
		return nil, err
	}
	return inv, nil
}

func (s *Service) ListInvoices(ctx context.Context, f store.InvoiceFilter) ([]domain.Invoice, error) {
	if f.StoreID == "" {
		return nil, fmt.Errorf("%w: storeId required", store.ErrInvalid)
	}
	if _, err := s.requireStoreCap(ctx, authz.InvoicesRead, f.StoreID); err != nil {
		return nil, err
	}
	return s.repo.ListInvoices(ctx, f)
}

func (s *Service) SetInvoiceSynced(ctx context.Context, id string, synced bool) (*domain.Invoice, error) {
	inv, err := s.repo.GetInvoice(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := s.requireStoreCap(ctx, authz.InvoicesSync, inv.StoreID); err != nil {
		return nil, err
	}
	return s.repo.SetInvoiceSynced(ctx, id, synced)
}

func (s *Service) CreateExpense(ctx context.Context, req domain.ExpenseCreateRequest) (*domain.Expense, error) {
	if _, err := s.requireStoreCap(ctx, authz.ExpensesWrite, req.StoreID); err != nil {
		return nil, err
	}
	req.Label = strings.TrimSpace(req.Label)
	if req.Label == "" || req.StoreID == "" {
		return nil, fmt.Errorf("%w: label and storeId required", store.ErrInvalid)
	}
	if req.Amount.IsNegative() {
		return nil, fmt.Errorf("%w: amount must not be negative", store.ErrInvalid)
	}
	now := time.Now().UTC()
	incurred := now
	if req.IncurredAt != nil {
		incurred = req.IncurredAt.UTC()
	}
	e, err := s.repo.CreateExpense(ctx, domain.Expense{
		ID:         uuid.NewString(),
		StoreID:    req.StoreID,
		Label:      req.Label,
		Amount:     req.Amount,
		Category:   strings.TrimSpace(req.Category),
		IncurredAt: incurred,
		CreatedAt:  now,
		UpdatedAt:  now,
	})
	if err != nil {
		return nil, err
	}
	if err := s.overview.InvalidateStore(ctx, req.StoreID); err != nil {
		s.logger.Warn("overview cache invalidation failed", zap.String("store_id", req.StoreID), zap.Error(err))
	}
	return e, nil
}

func (s *Service) GetExpense(ctx context.Context, id string) (*domain.Expense, error) {
	e, err := s.repo.GetExpense(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := s.requireStoreCap(ctx, authz.ExpensesRead, e.StoreID); err != nil {
		return nil, err
	}
	return e, nil
}

func (s *Service) ListExpenses(ctx context.Context, f store.ExpenseFilter) ([]domain.Expense, error) {
	if f.StoreID == "" {
		return nil, fmt.Errorf("%w: storeId required", store.ErrInvalid)
	}
	if _, err := s.requireStoreCap(ctx, authz.ExpensesRead, f.StoreID); err != nil {
		return nil, err
	}
	return s.repo.ListExpenses(ctx, f)
}

func (s *Service) UpdateExpense(ctx context.Context, id string, req domain.ExpenseUpdateRequest) (*domain.Expense, error) {
	e, err := s.repo.GetExpense(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := s.requireStoreCap(ctx, authz.ExpensesWrite, e.StoreID); err != nil {
		return nil, err
	}
	if req.Label != nil {
		if strings.TrimSpace(*req.Label) == "" {
			return nil, fmt.Errorf("%w: label required", store.ErrInvalid)
		}
		e.Label = strings.TrimSpace(*req.Label)
	}
	if req.Amount != nil {
		if req.Amount.IsNegative() {
			return nil, fmt.Errorf("%w: amount must not be negative", store.ErrInvalid)
		}
		e.Amount = *req.Amount
	}
	if req.Category != nil {
		e.Category = strings.TrimSpace(*req.Category)
	}
	if req.IncurredAt != nil {
		e.IncurredAt = req.IncurredAt.UTC()
	}
	updated, err := s.repo.UpdateExpense(ctx, *e)
	if err != nil {
		return nil, err
	}
	if err := s.overview.InvalidateStore(ctx, e.StoreID); err != nil {
		s.logger.Warn("overview cache invalidation failed", zap.String("store_id", e.StoreID), zap.Error(err))
	}
	return updated, nil
}

func (s *Service) DeleteExpense(ctx context.Context, id string) error {
	e, err := s.repo.GetExpense(ctx, id)
	if err != nil {
		return err
	}
	if _, err := s.requireStoreCap(ctx, authz.ExpensesWrite, e.StoreID); err != nil {
		return err
	}
	if err := s.repo.DeleteExpense(ctx, id); err != nil {
		return err
	}
	if err := s.overview.InvalidateStore(ctx, e.StoreID); err != nil {
		s.logger.Warn("overview cache invalidation failed", zap.String("store_id", e.StoreID), zap.Error(err))
	}
	return nil
}

func (s *Service) CreatePartnership(ctx context.Context, req domain.PartnershipCreateRequest) (*domain.Partnership, error) {
	if _, err := s.requireStoreCap(ctx, authz.PartnersWrite, req.StoreID); err != nil {
		return nil, err
	}
	req.PartnerName = strings.TrimSpace(req.PartnerName)
	if req.PartnerName == "" || req.StoreID == "" {
		return nil, fmt.Errorf("%w: partnerName and storeId required", store.ErrInvalid)
	}
	if req.Investment.IsNegative() {
		return nil, fmt.Errorf("%w: investment must not be negative", store.ErrInvalid)
	}
	if _, err := s.repo.GetStore(ctx, req.StoreID); err != nil {
		return nil, err
	}
	p, err := s.repo.CreatePartnership(ctx, domain.Partnership{
		ID:          uuid.NewString(),
		StoreID:     req.StoreID,
		PartnerName: req.PartnerName,
		Investment:  req.Investment,
		CreatedAt:   time.Now().UTC(),
	})
	if err != nil {
		return nil, err
	}
	if err := s.overview.InvalidateStore(ctx, req.StoreID); err != nil {
		s.logger.Warn("overview cache invalidation failed", zap.String("store_id", req.StoreID), zap.Error(err))
	}
	return p, nil
}

func (s *Service) ListPartnerships(ctx context.Context, storeID string) ([]domain.Partnership, error) {
	if storeID == "" {
		return nil, fmt.Errorf("%w: storeId required", store.ErrInvalid)
	}
	if _, err := s.requireStoreCap(ctx, authz.PartnersRead, storeID); err != nil {
		return nil, err
	}
	return s.repo.ListPartnerships(ctx, storeID)
}

func (s *Service) CreatePartnershipAsset(ctx context.Context, partnershipID string, req domain.PartnershipAssetCreateRequest) (*domain.PartnershipAsset, error) {
	p, err := s.repo.GetPartnership(ctx, partnershipID)
	if err != nil {
		return nil, err
	}
	if _, err := s.requireStoreCap(ctx, authz.PartnersWrite, p.StoreID); err != nil {
		return nil, err
	}
	req.Label = strings.TrimSpace(req.Label)
	if req.Label == "" {
		return nil, fmt.Errorf("%w: label required", store.ErrInvalid)
	}
	if req.Value.IsNegative() {
		return nil, fmt.Errorf("%w: value must not be negative", store.ErrInvalid)
	}
	a, err := s.repo.CreatePartnershipAsset(ctx, domain.PartnershipAsset{
		ID:            uuid.NewString(),
		PartnershipID: p.ID,
		Label:         req.Label,
		Value:         req.Value,
		CreatedAt:     time.Now().UTC(),
	})
	if err != nil {
		return nil, err
	}
	if err := s.overview.InvalidateStore(ctx, p.StoreID); err != nil {
		s.logger.Warn("overview cache invalidation failed", zap.String("store_id", p.StoreID), zap.Error(err))
	}
	return a, nil
}

func (s *Service) ListPartnershipAssets(ctx context.Context, partnershipID string) ([]domain.PartnershipAsset, error) {
	p, err := s.repo.GetPartnership(ctx, partnershipID)
	if err != nil {
		return nil, err
	}
	if _, err := s.requireStoreCap(ctx, authz.PartnersRead, p.StoreID); err != nil {
		return nil, err
	}
	return s.repo.ListPartnershipAssets(ctx, p.ID)
}

func (s *Service) FinancialOverview(ctx context.Context, storeID string, from, to *time.Time) (*domain.FinancialOverview, error) {
	if _, err := s.requireStoreCap(ctx, authz.FinancialRead, storeID); err != nil {
		return nil, err
	}
	st, err := s.repo.GetStore(ctx, storeID)
	if err != nil {
		return nil, err
	}

	key := cache.Key(storeID, from, to)
	if cached, ok, err := s.overview.Get(ctx, key); err != nil {
		s.logger.Warn("overview cache read failed", zap.String("store_id", storeID), zap.Error(err))
	} else if ok {
		return cached, nil
	}

	invoices, err := s.repo.ListInvoices(ctx, store.InvoiceFilter{StoreID: storeID, From: from, To: to})
	if err != nil {
		return nil, err
	}
	expenses, err := s.repo.ListExpenses(ctx, store.ExpenseFilter{StoreID: storeID, From: from, To: to})
	if err != nil {
		return nil, err
	}
	partnerships, err := s.repo.ListPartnerships(ctx, storeID)
	if err != nil {
		return nil, err
	}

	totalSales := decimal.Zero
	for _, inv := range invoices {
		totalSales = totalSales.Add(inv.GrandTotal)
	}
	totalExpenses := decimal.Zero
	for _, e := range expenses {
		totalExpenses = totalExpenses.Add(e.Amount)
	}
	totalInvestment := decimal.Zero
	for _, p := range partnerships {
		totalInvestment = totalInvestment.Add(p.Investment)
		assets, err := s.repo.ListPartnershipAssets(ctx, p.ID)
		if err != nil {
			return nil, err
		}
		for _, a := range assets {
			totalInvestment = totalInvestment.Add(a.Value)
		}
	}

	profit := totalSales.Sub(totalExpenses)
	margin := decimal.Zero
	if !totalSales.IsZero() {
		margin = profit.Mul(decimal.NewFromInt(100)).Div(totalSales).Round(2)
	}

	overview := &domain.FinancialOverview{
		StoreID: storeID,
		Period:  domain.Period{From: from, To: to},
		Summary: domain.FinancialSummary{
			TotalInvestment: totalInvestment,
			TotalSales:      totalSales,
			TotalExpenses:   totalExpenses,
			Profit:          profit,
			ProfitMargin:    margin,
		},
		Counts: domain.FinancialCounts{
			Invoices: len(invoices),
			Expenses: len(expenses),
		},
		Currency: st.Currency,
	}

	if err := s.overview.Set(ctx, key, overview, overviewTTL); err != nil {
		s.logger.Warn("overview cache write failed", zap.String("store_id", storeID), zap.Error(err))
	}
	return overview, nil
}

func (s *Service) Register(ctx context.Context, req domain.RegisterRequest) (*domain.User, error) {
	if _, err := s.requireCap(ctx, authz.UsersRegister); err != nil {
		return nil, err
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		return nil, fmt.Errorf("%w: username and password required", store.ErrInvalid)
	}
	if !domain.ValidRole(req.Role) {
		return nil, fmt.Errorf("%w: unsupported role %q", store.ErrInvalid, req.Role)
	}
	if req.Role != domain.RoleSuperAdmin && req.StoreID == "" {
		return nil, fmt.Errorf("%w: storeId required for role %s", store.ErrInvalid, req.Role)
	}
	if req.StoreID != "" {
		if _, err := s.repo.GetStore(ctx, req.StoreID); err != nil {
			return nil, err
		}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	return s.repo.CreateUser(ctx, domain.User{
		ID:           uuid.NewString(),
		Username:     req.Username,
		PasswordHash: string(hash),
		Role:         req.Role,
		StoreID:      req.StoreID,
		DisplayName:  strings.TrimSpace(req.DisplayName),
		Email:        strings.ToLower(strings.TrimSpace(req.Email)),
		CreatedAt:    now,
		UpdatedAt:    now,
	})
}

func (s *Service) Me(ctx context.Context) (*domain.MeResponse, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return nil, store.ErrForbidden
	}
	u, err := s.repo.GetUser(ctx, actor.UserID)
	if err != nil {
		return nil, err
	}
	resp := &domain.MeResponse{User: u}
	if u.StoreID != "" {
		st, err := s.repo.GetStore(ctx, u.StoreID)
		if err == nil {
			resp.Store = st
		} else if !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
	}
	return resp, nil
}

func (s *Service) UpdateProfile(ctx context.Context, req domain.ProfileUpdateRequest) (*domain.User, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return nil, store.ErrForbidden
	}
	u, err := s.repo.GetUser(ctx, actor.UserID)
	if err != nil {
		return nil, err
	}
	if req.DisplayName != nil {
		u.DisplayName = strings.TrimSpace(*req.DisplayName)
	}
	if req.Email != nil {
		u.Email = strings.ToLower(strings.TrimSpace(*req.Email))
	}
	if req.ImageURL != nil {
		u.ImageURL = strings.TrimSpace(*req.ImageURL)
	}
	return s.repo.UpdateUser(ctx, *u)
}

var ErrBadCredentials = errors.New("invalid credentials")

func (s *Service) ChangePassword(ctx context.Context, req domain.ChangePasswordRequest) error {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return store.ErrForbidden
	}
	if len(req.NewPassword) < 8 {
		return fmt.Errorf("%w: new password must be at least 8 characters", store.ErrInvalid)
	}
	u, err := s.repo.GetUser(ctx, actor.UserID)
	if err != nil {
		return err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(req.OldPassword)); err != nil {
		return ErrBadCredentials
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = string(hash)
	_, err = s.repo.UpdateUser(ctx, *u)
	return err
}

func (s *Service) GlobalSettings(ctx context.Context) (*domain.GlobalSettings, error) {
	if _, err := s.requireCap(ctx, authz.SettingsRead); err != nil {
		return nil, err
	}
	presets := make([]decimal.Decimal, len(s.settings.TaxPresets))
	copy(presets, s.settings.TaxPresets)
	return &domain.GlobalSettings{
		DataSource:        s.settings.DataSource,
		DefaultTaxPresets: presets,
	}, nil
}
