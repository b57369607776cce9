package authz

import "dukaanpos/backend/internal/domain"

type Capability string

const (
	StoresManage    Capability = "stores.manage"
	StoresRead      Capability = "stores.read"
	StoresUpdateOwn Capability = "stores.update_own"
	CategoriesWrite Capability = "categories.write"
	CategoriesRead  Capability = "categories.read"
	ProductsWrite   Capability = "products.write"
	ProductsRead    Capability = "products.read"
	StockAdjust     Capability = "stock.adjust"
	InvoicesCreate  Capability = "invoices.create"
	InvoicesRead    Capability = "invoices.read"
	InvoicesSync    Capability = "invoices.sync"
	ExpensesWrite   Capability = "expenses.write"
	ExpensesRead    Capability = "expenses.read"
	PartnersWrite   Capability = "partnerships.write"
	PartnersRead    Capability = "partnerships.read"
	FinancialRead   Capability = "financial.read"
	UsersRegister   Capability = "users.register"
	SettingsRead    Capability = "settings.read"
)

var table = map[Capability][]string{
	StoresManage:    {domain.RoleSuperAdmin},
	StoresRead:      {domain.RoleSuperAdmin, domain.RoleStoreAdmin, domain.RoleCashier},
	StoresUpdateOwn: {domain.RoleSuperAdmin, domain.RoleStoreAdmin},
	CategoriesWrite: {domain.RoleSuperAdmin, domain.RoleStoreAdmin},
	CategoriesRead:  {domain.RoleSuperAdmin, domain.RoleStoreAdmin, domain.RoleCashier},
	ProductsWrite:   {domain.RoleSuperAdmin, domain.RoleStoreAdmin},
	ProductsRead:    {domain.RoleSuperAdmin, domain.RoleStoreAdmin, domain.RoleCashier},
	StockAdjust:     {domain.RoleSuperAdmin, domain.RoleStoreAdmin},
	InvoicesCreate:  {domain.RoleSuperAdmin, domain.RoleStoreAdmin, domain.RoleCashier},
	InvoicesRead:    {domain.RoleSuperAdmin, domain.RoleStoreAdmin, domain.RoleCashier},
	InvoicesSync:    {domain.RoleSuperAdmin, domain.RoleStoreAdmin, domain.RoleCashier},
	ExpensesWrite:   {domain.RoleSuperAdmin, domain.RoleStoreAdmin},
	ExpensesRead:    {domain.RoleSuperAdmin, domain.RoleStoreAdmin},
	PartnersWrite:   {domain.RoleSuperAdmin, domain.RoleStoreAdmin},
	PartnersRead:    {domain.RoleSuperAdmin, domain.RoleStoreAdmin},
	FinancialRead:   {domain.RoleSuperAdmin, domain.RoleStoreAdmin},
	UsersRegister:   {domain.RoleSuperAdmin},
	SettingsRead:    {domain.RoleSuperAdmin, domain.RoleStoreAdmin, domain.RoleCashier},
}

func Can(role string, cap Capability) bool {
	for _, allowed := range table[cap] {
		if allowed == role {
			return true
		}
	}
	return false
}

// CanAccessStore reports whether the actor may touch data of storeID.
// SUPER_ADMIN reaches every store; everyone else only their own.
func CanAccessStore(actor domain.Actor, storeID string) bool {
	if actor.Role == domain.RoleSuperAdmin {
		return true
	}
	return actor.StoreID != "" && actor.StoreID == storeID
}
