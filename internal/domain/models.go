package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	RoleSuperAdmin = "SUPER_ADMIN"
	RoleStoreAdmin = "STORE_ADMIN"
	RoleCashier    = "CASHIER"
)

const (
	CurrencyINR = "INR"
	CurrencyUSD = "USD"
	CurrencyAED = "AED"
	CurrencyEUR = "EUR"
)

const (
	PaymentCash = "CASH"
	PaymentCard = "CARD"
	PaymentUPI  = "UPI"
	PaymentQR   = "QR"
)

type Store struct {
	ID             string           `json:"id"`
	Name           string           `json:"name"`
	OwnerName      string           `json:"ownerName"`
	Currency       string           `json:"currency"`
	TaxID          string           `json:"taxId,omitempty"`
	Address        string           `json:"address,omitempty"`
	UPIID          string           `json:"upiId,omitempty"`
	UPIID2         string           `json:"upiId2,omitempty"`
	ActiveUPI      int              `json:"activeUpi"`
	IsActive       bool             `json:"isActive"`
	GlobalDiscount *decimal.Decimal `json:"globalDiscount,omitempty"`
	Timezone       string           `json:"timezone,omitempty"`
	Email          string           `json:"email,omitempty"`
	Mobile         string           `json:"mobile,omitempty"`
	LogoURL        string           `json:"logoUrl,omitempty"`
	CreatedAt      time.Time        `json:"createdAt"`
	UpdatedAt      time.Time        `json:"updatedAt"`
}

type StoreCreateRequest struct {
	Name           string           `json:"name"`
	OwnerName      string           `json:"ownerName"`
	Currency       string           `json:"currency"`
	TaxID          string           `json:"taxId"`
	Address        string           `json:"address"`
	UPIID          string           `json:"upiId"`
	UPIID2         string           `json:"upiId2"`
	ActiveUPI      int              `json:"activeUpi"`
	GlobalDiscount *decimal.Decimal `json:"globalDiscount,omitempty"`
	Timezone       string           `json:"timezone"`
	Email          string           `json:"email"`
	Mobile         string           `json:"mobile"`
	LogoURL        string           `json:"logoUrl"`
}

type StoreUpdateRequest struct {
	Name           *string          `json:"name,omitempty"`
	OwnerName      *string          `json:"ownerName,omitempty"`
	Currency       *string          `json:"currency,omitempty"`
	TaxID          *string          `json:"taxId,omitempty"`
	Address        *string          `json:"address,omitempty"`
	UPIID          *string          `json:"upiId,omitempty"`
	UPIID2         *string          `json:"upiId2,omitempty"`
	ActiveUPI      *int             `json:"activeUpi,omitempty"`
	IsActive       *bool            `json:"isActive,omitempty"`
	GlobalDiscount *decimal.Decimal `json:"globalDiscount,omitempty"`
	Timezone       *string          `json:"timezone,omitempty"`
	Email          *string          `json:"email,omitempty"`
	Mobile         *string          `json:"mobile,omitempty"`
	LogoURL        *string          `json:"logoUrl,omitempty"`
}

type StoreCreateResponse struct {
	Store    *Store   `json:"store"`
	Warnings []string `json:"warnings,omitempty"`
}

type StoreUpdateResponse struct {
	Store    *Store   `json:"store"`
	Warnings []string `json:"warnings,omitempty"`
}

type Category struct {
	ID                string          `json:"id"`
	StoreID           string          `json:"storeId"`
	Name              string          `json:"name"`
	DefaultGST        decimal.Decimal `json:"defaultGst"`
	DefaultDiscount   decimal.Decimal `json:"defaultDiscount"`
	LowStockThreshold int64           `json:"lowStockThreshold"`
	CreatedAt         time.Time       `json:"createdAt"`
	UpdatedAt         time.Time       `json:"updatedAt"`
}

type CategoryCreateRequest struct {
	StoreID           string           `json:"storeId"`
	Name              string           `json:"name"`
	DefaultGST        *decimal.Decimal `json:"defaultGst,omitempty"`
	DefaultDiscount   *decimal.Decimal `json:"defaultDiscount,omitempty"`
	LowStockThreshold *int64           `json:"lowStockThreshold,omitempty"`
}

type CategoryUpdateRequest struct {
	Name              *string          `json:"name,omitempty"`
	DefaultGST        *decimal.Decimal `json:"defaultGst,omitempty"`
	DefaultDiscount   *decimal.Decimal `json:"defaultDiscount,omitempty"`
	LowStockThreshold *int64           `json:"lowStockThreshold,omitempty"`
}

type Product struct {
	ID          string           `json:"id"`
	StoreID     string           `json:"storeId"`
	CategoryID  string           `json:"categoryId"`
	Name        string           `json:"name"`
	Price       decimal.Decimal  `json:"price"`
	StockQty    int64            `json:"stockQty"`
	TaxOverride *decimal.Decimal `json:"taxOverride,omitempty"`
	SKU         string           `json:"sku,omitempty"`
	ImageURL    string           `json:"imageUrl,omitempty"`
	IsActive    bool             `json:"isActive"`
	CreatedAt   time.Time        `json:"createdAt"`
	UpdatedAt   time.Time        `json:"updatedAt"`
}

type ProductCreateRequest struct {
	StoreID     string           `json:"storeId"`
	CategoryID  string           `json:"categoryId"`
	Name        string           `json:"name"`
	Price       decimal.Decimal  `json:"price"`
	StockQty    int64            `json:"stockQty"`
	TaxOverride *decimal.Decimal `json:"taxOverride,omitempty"`
	SKU         string           `json:"sku"`
	ImageURL    string           `json:"imageUrl"`
}

type ProductUpdateRequest struct {
	CategoryID       *string          `json:"categoryId,omitempty"`
	Name             *string          `json:"name,omitempty"`
	Price            *decimal.Decimal `json:"price,omitempty"`
	TaxOverride      *decimal.Decimal `json:"taxOverride,omitempty"`
	ClearTaxOverride bool             `json:"clearTaxOverride,omitempty"`
	SKU              *string          `json:"sku,omitempty"`
	ImageURL         *string          `json:"imageUrl,omitempty"`
	IsActive         *bool            `json:"isActive,omitempty"`
}

type StockAdjustRequest struct {
	Delta int64 `json:"delta"`
}

type StockAdjustResponse struct {
	ProductID string `json:"productId"`
	NewStock  int64  `json:"newStock"`
}

type InvoiceItem struct {
	ProductID              string          `json:"productId"`
	Name                   string          `json:"name"`
	Price                  decimal.Decimal `json:"price"`
	Qty                    int64           `json:"qty"`
	AppliedTaxPercent      decimal.Decimal `json:"appliedTaxPercent"`
	AppliedDiscountPercent decimal.Decimal `json:"appliedDiscountPercent"`
	LineTotal              decimal.Decimal `json:"lineTotal"`
}

type Invoice struct {
	ID            string          `json:"id"`
	StoreID       string          `json:"storeId"`
	Number        string          `json:"number"`
	Items         []InvoiceItem   `json:"items"`
	Subtotal      decimal.Decimal `json:"subtotal"`
	TaxTotal      decimal.Decimal `json:"taxTotal"`
	DiscountTotal decimal.Decimal `json:"discountTotal"`
	GrandTotal    decimal.Decimal `json:"grandTotal"`
	PaymentMethod string          `json:"paymentMethod"`
	Synced        bool            `json:"synced"`
	CreatedBy     string          `json:"createdBy"`
	CreatedAt     time.Time       `json:"createdAt"`
}

type InvoiceItemRequest struct {
	ProductID string `json:"productId"`
	Qty       int64  `json:"qty"`
}

type InvoiceCreateRequest struct {
	StoreID       string               `json:"storeId"`
	PaymentMethod string               `json:"paymentMethod"`
	Items         []InvoiceItemRequest `json:"items"`
}

type InvoiceSyncRequest struct {
	Synced bool `json:"synced"`
}

type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	StoreID      string    `json:"storeId,omitempty"`
	DisplayName  string    `json:"displayName,omitempty"`
	Email        string    `json:"email,omitempty"`
	ImageURL     string    `json:"imageUrl,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

type RegisterRequest struct {
	Username    string `json:"username"`
	Password    string `json:"password"`
	Role        string `json:"role"`
	StoreID     string `json:"storeId"`
	DisplayName string `json:"displayName"`
	Email       string `json:"email"`
}

type ProfileUpdateRequest struct {
	DisplayName *string `json:"displayName,omitempty"`
	Email       *string `json:"email,omitempty"`
	ImageURL    *string `json:"imageUrl,omitempty"`
}

type ChangePasswordRequest struct {
	OldPassword string `json:"oldPassword"`
	NewPassword string `json:"newPassword"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Token string `json:"token"`
	User  *User  `json:"user"`
}

type MeResponse struct {
	User  *User  `json:"user"`
	Store *Store `json:"store,omitempty"`
}

type Actor struct {
	UserID   string
	Username string
	Role     string
	StoreID  string
}

type Expense struct {
	ID         string          `json:"id"`
	StoreID    string          `json:"storeId"`
	Label      string          `json:"label"`
	Amount     decimal.Decimal `json:"amount"`
	Category   string          `json:"category,omitempty"`
	IncurredAt time.Time       `json:"incurredAt"`
	CreatedAt  time.Time       `json:"createdAt"`
	UpdatedAt  time.Time       `json:"updatedAt"`
}

type ExpenseCreateRequest struct {
	StoreID    string          `json:"storeId"`
	Label      string          `json:"label"`
	Amount     decimal.Decimal `json:"amount"`
	Category   string          `json:"category"`
	IncurredAt *time.Time      `json:"incurredAt,omitempty"`
}

type ExpenseUpdateRequest struct {
	Label      *string          `json:"label,omitempty"`
	Amount     *decimal.Decimal `json:"amount,omitempty"`
	Category   *string          `json:"category,omitempty"`
	IncurredAt *time.Time       `json:"incurredAt,omitempty"`
}

type Partnership struct {
	ID          string          `json:"id"`
	StoreID     string          `json:"storeId"`
	PartnerName string          `json:"partnerName"`
	Investment  decimal.Decimal `json:"investment"`
	CreatedAt   time.Time       `json:"createdAt"`
}

type PartnershipAsset struct {
	ID            string          `json:"id"`
	PartnershipID string          `json:"partnershipId"`
	Label         string          `json:"label"`
	Value         decimal.Decimal `json:"value"`
	CreatedAt     time.Time       `json:"createdAt"`
}

type PartnershipCreateRequest struct {
	StoreID     string          `json:"storeId"`
	PartnerName string          `json:"partnerName"`
	Investment  decimal.Decimal `json:"investment"`
}

type PartnershipAssetCreateRequest struct {
	Label string          `json:"label"`
	Value decimal.Decimal `json:"value"`
}

type Period struct {
	From *time.Time `json:"from,omitempty"`
	To   *time.Time `json:"to,omitempty"`
}

type FinancialSummary struct {
	TotalInvestment decimal.Decimal `json:"totalInvestment"`
	TotalSales      decimal.Decimal `json:"totalSales"`
	TotalExpenses   decimal.Decimal `json:"totalExpenses"`
	Profit          decimal.Decimal `json:"profit"`
	ProfitMargin    decimal.Decimal `json:"profitMargin"`
}

type FinancialCounts struct {
	Invoices int `json:"invoices"`
	Expenses int `json:"expenses"`
}

type FinancialOverview struct {
	StoreID  string           `json:"storeId"`
	Period   Period           `json:"period"`
	Summary  FinancialSummary `json:"summary"`
	Counts   FinancialCounts  `json:"counts"`
	Currency string           `json:"currency"`
}

type GlobalSettings struct {
	DataSource        string            `json:"dataSource"`
	DefaultTaxPresets []decimal.Decimal `json:"defaultTaxPresets"`
}

func ValidCurrency(c string) bool {
	switch c {
	case CurrencyINR, CurrencyUSD, CurrencyAED, CurrencyEUR:
		return true
	}
	return false
}

func ValidPaymentMethod(m string) bool {
	switch m {
	case PaymentCash, PaymentCard, PaymentUPI, PaymentQR:
		return true
	}
	return false
}

func ValidRole(r string) bool {
	switch r {
	case RoleSuperAdmin, RoleStoreAdmin, RoleCashier:
		return true
	}
	return false
}
