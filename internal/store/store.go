package store

import (
	"context"
	"errors"
	"time"

	"dukaanpos/backend/internal/domain"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrInvalid           = errors.New("invalid input")
	ErrForbidden         = errors.New("forbidden")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrCategoryInUse     = errors.New("category has existing products")
)

type InvoiceFilter struct {
	StoreID string
	From    *time.Time
	To      *time.Time
	Limit   int
}

type ExpenseFilter struct {
	StoreID string
	From    *time.Time
	To      *time.Time
}

type Repository interface {
	CreateStore(ctx context.Context, s domain.Store) (*domain.Store, error)
	GetStore(ctx context.Context, id string) (*domain.Store, error)
	ListStores(ctx context.Context) ([]domain.Store, error)
	UpdateStore(ctx context.Context, s domain.Store) (*domain.Store, error)
	DeleteStore(ctx context.Context, id string) error

	CreateCategory(ctx context.Context, c domain.Category) (*domain.Category, error)
	GetCategory(ctx context.Context, id string) (*domain.Category, error)
	ListCategories(ctx context.Context, storeID string) ([]domain.Category, error)
	UpdateCategory(ctx context.Context, c domain.Category) (*domain.Category, error)
	// DeleteCategory fails with ErrCategoryInUse while any product
	// still references the category.
	DeleteCategory(ctx context.Context, id string) error
	CountProductsByCategory(ctx context.Context, categoryID string) (int, error)

	CreateProduct(ctx context.Context, p domain.Product) (*domain.Product, error)
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	ListProducts(ctx context.Context, storeID string) ([]domain.Product, error)
	UpdateProduct(ctx context.Context, p domain.Product) (*domain.Product, error)
	DeleteProduct(ctx context.Context, id string) error
	// AdjustStock applies delta atomically and fails with
	// ErrInsufficientStock when the result would go below zero.
	AdjustStock(ctx context.Context, productID string, delta int64) (int64, error)

	// CreateInvoice persists the invoice and decrements stock for every
	// line in one atomic step; any insufficient line aborts the whole
	// invoice with ErrInsufficientStock.
	CreateInvoice(ctx context.Context, inv domain.Invoice) (*domain.Invoice, error)
	GetInvoice(ctx context.Context, id string) (*domain.Invoice, error)
	ListInvoices(ctx context.Context, f InvoiceFilter) ([]domain.Invoice, error)
	SetInvoiceSynced(ctx context.Context, id string, synced bool) (*domain.Invoice, error)
	NextInvoiceNumber(ctx context.Context, storeID string) (int64, error)

	CreateUser(ctx context.Context, u domain.User) (*domain.User, error)
	GetUser(ctx context.Context, id string) (*domain.User, error)
	GetUserByUsername(ctx context.Context, username string) (*domain.User, error)
	ListUsersByStore(ctx context.Context, storeID string) ([]domain.User, error)
	UpdateUser(ctx context.Context, u domain.User) (*domain.User, error)

	CreateExpense(ctx context.Context, e domain.Expense) (*domain.Expense, error)
	GetExpense(ctx context.Context, id string) (*domain.Expense, error)
	ListExpenses(ctx context.Context, f ExpenseFilter) ([]domain.Expense, error)
	UpdateExpense(ctx context.Context, e domain.Expense) (*domain.Expense, error)
	DeleteExpense(ctx context.Context, id string) error

	CreatePartnership(ctx context.Context, p domain.Partnership) (*domain.Partnership, error)
	GetPartnership(ctx context.Context, id string) (*domain.Partnership, error)
	ListPartnerships(ctx context.Context, storeID string) ([]domain.Partnership, error)
	CreatePartnershipAsset(ctx context.Context, a domain.PartnershipAsset) (*domain.PartnershipAsset, error)
	ListPartnershipAssets(ctx context.Context, partnershipID string) ([]domain.PartnershipAsset, error)
}
