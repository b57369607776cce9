package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/shopspring/decimal"

	"dukaanpos/backend/internal/domain"
	"dukaanpos/backend/internal/store"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// EnsureSchema creates the tables on first boot. Statements are
// idempotent so repeated startups are safe.
func (s *Store) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS stores (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			owner_name TEXT NOT NULL DEFAULT '',
			currency TEXT NOT NULL,
			tax_id TEXT,
			address TEXT,
			upi_id TEXT,
			upi_id2 TEXT,
			active_upi INT NOT NULL DEFAULT 1,
			is_active BOOLEAN NOT NULL DEFAULT true,
			global_discount NUMERIC(6,2),
			timezone TEXT,
			email TEXT,
			mobile TEXT,
			logo_url TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS categories (
			id TEXT PRIMARY KEY,
			store_id TEXT NOT NULL REFERENCES stores(id),
			name TEXT NOT NULL,
			default_gst NUMERIC(6,2) NOT NULL DEFAULT 0,
			default_discount NUMERIC(6,2) NOT NULL DEFAULT 0,
			low_stock_threshold BIGINT NOT NULL DEFAULT 10,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS products (
			id TEXT PRIMARY KEY,
			store_id TEXT NOT NULL REFERENCES stores(id),
			category_id TEXT NOT NULL REFERENCES categories(id),
			name TEXT NOT NULL,
			price NUMERIC(12,2) NOT NULL,
			stock_qty BIGINT NOT NULL DEFAULT 0 CHECK (stock_qty >= 0),
			tax_override NUMERIC(6,2),
			sku TEXT,
			image_url TEXT,
			is_active BOOLEAN NOT NULL DEFAULT true,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS invoices (
			id TEXT PRIMARY KEY,
			store_id TEXT NOT NULL REFERENCES stores(id),
			number TEXT NOT NULL,
			items JSONB NOT NULL,
			subtotal NUMERIC(14,2) NOT NULL,
			tax_total NUMERIC(14,2) NOT NULL,
			discount_total NUMERIC(14,2) NOT NULL,
			grand_total NUMERIC(14,2) NOT NULL,
			payment_method TEXT NOT NULL,
			synced BOOLEAN NOT NULL DEFAULT false,
			created_by TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			UNIQUE (store_id, number)
		)`,
		`CREATE TABLE IF NOT EXISTS invoice_counters (
			store_id TEXT PRIMARY KEY REFERENCES stores(id),
			seq BIGINT NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			username TEXT NOT NULL,
			password_hash TEXT NOT NULL,
			role TEXT NOT NULL,
			store_id TEXT,
			display_name TEXT,
			email TEXT,
			image_url TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_users_username ON users (lower(username))`,
		`CREATE TABLE IF NOT EXISTS expenses (
			id TEXT PRIMARY KEY,
			store_id TEXT NOT NULL REFERENCES stores(id),
			label TEXT NOT NULL,
			amount NUMERIC(14,2) NOT NULL,
			category TEXT,
			incurred_at TIMESTAMPTZ NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS partnerships (
			id TEXT PRIMARY KEY,
			store_id TEXT NOT NULL REFERENCES stores(id),
			partner_name TEXT NOT NULL,
			investment NUMERIC(14,2) NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS partnership_assets (
			id TEXT PRIMARY KEY,
			partnership_id TEXT NOT NULL REFERENCES partnerships(id),
			label TEXT NOT NULL,
			value NUMERIC(14,2) NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_products_store ON products(store_id)`,
		`CREATE INDEX IF NOT EXISTS idx_products_category ON products(category_id)`,
		`CREATE INDEX IF NOT EXISTS idx_invoices_store_created ON invoices(store_id, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_expenses_store_incurred ON expenses(store_id, incurred_at)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

const storeColumns = `id, name, owner_name, currency, COALESCE(tax_id,''), COALESCE(address,''),
	COALESCE(upi_id,''), COALESCE(upi_id2,''), active_upi, is_active, global_discount,
	COALESCE(timezone,''), COALESCE(email,''), COALESCE(mobile,''), COALESCE(logo_url,''), created_at, updated_at`

func scanStore(row interface{ Scan(...any) error }) (*domain.Store, error) {
	var st domain.Store
	var gd decimal.NullDecimal
	err := row.Scan(&st.ID, &st.Name, &st.OwnerName, &st.Currency, &st.TaxID, &st.Address,
		&st.UPIID, &st.UPIID2, &st.ActiveUPI, &st.IsActive, &gd,
		&st.Timezone, &st.Email, &st.Mobile, &st.LogoURL, &st.CreatedAt, &st.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if gd.Valid {
		st.GlobalDiscount = &gd.Decimal
	}
	return &st, nil
}

func (s *Store) CreateStore(ctx context.Context, st domain.Store) (*domain.Store, error) {
	if st.ID == "" || st.Name == "" {
		return nil, store.ErrInvalid
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO stores (id, name, owner_name, currency, tax_id, address, upi_id, upi_id2,
			active_upi, is_active, global_discount, timezone, email, mobile, logo_url, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
	`, st.ID, st.Name, st.OwnerName, st.Currency, nullIfEmpty(st.TaxID), nullIfEmpty(st.Address),
		nullIfEmpty(st.UPIID), nullIfEmpty(st.UPIID2), st.ActiveUPI, st.IsActive, nullDecimal(st.GlobalDiscount),
		nullIfEmpty(st.Timezone), nullIfEmpty(st.Email), nullIfEmpty(st.Mobile), nullIfEmpty(st.LogoURL),
		st.CreatedAt, st.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}
	created := st
	return &created, nil
}

func (s *Store) GetStore(ctx context.Context, id string) (*domain.Store, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+storeColumns+` FROM stores WHERE id = $1`, id)
	st, err := scanStore(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return st, nil
}

func (s *Store) ListStores(ctx context.Context) ([]domain.Store, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+storeColumns+` FROM stores ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stores := make([]domain.Store, 0, 16)
	for rows.Next() {
		st, err := scanStore(rows)
		if err != nil {
			return nil, err
		}
		stores = append(stores, *st)
	}
	return stores, rows.Err()
}

func (s *Store) UpdateStore(ctx context.Context, st domain.Store) (*domain.Store, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE stores SET name=$2, owner_name=$3, currency=$4, tax_id=$5, address=$6, upi_id=$7,
			upi_id2=$8, active_upi=$9, is_active=$10, global_discount=$11, timezone=$12,
			email=$13, mobile=$14, logo_url=$15, updated_at=now()
		WHERE id = $1
	`, st.ID, st.Name, st.OwnerName, st.Currency, nullIfEmpty(st.TaxID), nullIfEmpty(st.Address),
		nullIfEmpty(st.UPIID), nullIfEmpty(st.UPIID2), st.ActiveUPI, st.IsActive, nullDecimal(st.GlobalDiscount),
		nullIfEmpty(st.Timezone), nullIfEmpty(st.Email), nullIfEmpty(st.Mobile), nullIfEmpty(st.LogoURL))
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, store.ErrNotFound
	}
	return s.GetStore(ctx, st.ID)
}

// DeleteStore refuses stores that still hold catalog or financial data.
// The store's user accounts and invoice counter are removed with it; any
// remaining foreign key reference rolls everything back.
func (s *Store) DeleteStore(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM users WHERE store_id = $1`, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM invoice_counters WHERE store_id = $1`, id); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM stores WHERE id = $1`, id)
	if err != nil {
		if isForeignKeyViolation(err) {
			return store.ErrConflict
		}
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return tx.Commit()
}

const categoryColumns = `id, store_id, name, default_gst, default_discount, low_stock_threshold, created_at, updated_at`

func scanCategory(row interface{ Scan(...any) error }) (*domain.Category, error) {
	var c domain.Category
	err := row.Scan(&c.ID, &c.StoreID, &c.Name, &c.DefaultGST, &c.DefaultDiscount, &c.LowStockThreshold, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *Store) CreateCategory(ctx context.Context, c domain.Category) (*domain.Category, error) {
	if c.ID == "" || c.Name == "" || c.StoreID == "" {
		return nil, store.ErrInvalid
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO categories (id, store_id, name, default_gst, default_discount, low_stock_threshold, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, c.ID, c.StoreID, c.Name, c.DefaultGST, c.DefaultDiscount, c.LowStockThreshold, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, store.ErrNotFound
		}
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}
	created := c
	return &created, nil
}

func (s *Store) GetCategory(ctx context.Context, id string) (*domain.Category, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+categoryColumns+` FROM categories WHERE id = $1`, id)
	c, err := scanCategory(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return c, nil
}

func (s *Store) ListCategories(ctx context.Context, storeID string) ([]domain.Category, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+categoryColumns+` FROM categories WHERE store_id = $1 ORDER BY name`, storeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cats := make([]domain.Category, 0, 16)
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, err
		}
		cats = append(cats, *c)
	}
	return cats, rows.Err()
}

func (s *Store) UpdateCategory(ctx context.Context, c domain.Category) (*domain.Category, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE categories
		SET name=$2, default_gst=$3, default_discount=$4, low_stock_threshold=$5, updated_at=now()
		WHERE id = $1
	`, c.ID, c.Name, c.DefaultGST, c.DefaultDiscount, c.LowStockThreshold)
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, store.ErrNotFound
	}
	return s.GetCategory(ctx, c.ID)
}

func (s *Store) DeleteCategory(ctx context.Context, id string) error {
	// The guard and the delete run in one statement so a product
	// created concurrently cannot slip between them.
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM categories
		WHERE id = $1 AND NOT EXISTS (SELECT 1 FROM products WHERE category_id = $1)
	`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}
	var exists bool
	if err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM categories WHERE id = $1)`, id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return store.ErrNotFound
	}
	return store.ErrCategoryInUse
}

func (s *Store) CountProductsByCategory(ctx context.Context, categoryID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM products WHERE category_id = $1`, categoryID).Scan(&n)
	return n, err
}

const productColumns = `id, store_id, category_id, name, price, stock_qty, tax_override,
	COALESCE(sku,''), COALESCE(image_url,''), is_active, created_at, updated_at`

func scanProduct(row interface{ Scan(...any) error }) (*domain.Product, error) {
	var p domain.Product
	var override decimal.NullDecimal
	err := row.Scan(&p.ID, &p.StoreID, &p.CategoryID, &p.Name, &p.Price, &p.StockQty, &override,
		&p.SKU, &p.ImageURL, &p.IsActive, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if override.Valid {
		p.TaxOverride = &override.Decimal
	}
	return &p, nil
}

func (s *Store) CreateProduct(ctx context.Context, p domain.Product) (*domain.Product, error) {
	if p.ID == "" || p.Name == "" || p.StoreID == "" || p.CategoryID == "" {
		return nil, store.ErrInvalid
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (id, store_id, category_id, name, price, stock_qty, tax_override, sku, image_url, is_active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	`, p.ID, p.StoreID, p.CategoryID, p.Name, p.Price, p.StockQty, nullDecimal(p.TaxOverride),
		nullIfEmpty(p.SKU), nullIfEmpty(p.ImageURL), p.IsActive, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, store.ErrNotFound
		}
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}
	created := p
	return &created, nil
}

func (s *Store) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id)
	p, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return p, nil
}

func (s *Store) ListProducts(ctx context.Context, storeID string) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+productColumns+` FROM products WHERE store_id = $1 ORDER BY name`, storeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 64)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, *p)
	}
	return products, rows.Err()
}

func (s *Store) UpdateProduct(ctx context.Context, p domain.Product) (*domain.Product, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET category_id=$2, name=$3, price=$4, tax_override=$5, sku=$6, image_url=$7, is_active=$8, updated_at=now()
		WHERE id = $1
	`, p.ID, p.CategoryID, p.Name, p.Price, nullDecimal(p.TaxOverride), nullIfEmpty(p.SKU), nullIfEmpty(p.ImageURL), p.IsActive)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, store.ErrNotFound
	}
	return s.GetProduct(ctx, p.ID)
}

func (s *Store) DeleteProduct(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// AdjustStock applies the delta with a conditional update so two
// concurrent decrements can never take the count below zero.
func (s *Store) AdjustStock(ctx context.Context, productID string, delta int64) (int64, error) {
	var newQty int64
	err := s.db.QueryRowContext(ctx, `
		UPDATE products
		SET stock_qty = stock_qty + $2, updated_at = now()
		WHERE id = $1 AND stock_qty + $2 >= 0
		RETURNING stock_qty
	`, productID, delta).Scan(&newQty)
	if err == nil {
		return newQty, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, err
	}
	var exists bool
	if err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)`, productID).Scan(&exists); err != nil {
		return 0, err
	}
	if !exists {
		return 0, store.ErrNotFound
	}
	return 0, store.ErrInsufficientStock
}

func (s *Store) CreateInvoice(ctx context.Context, inv domain.Invoice) (*domain.Invoice, error) {
	if inv.ID == "" || inv.StoreID == "" || len(inv.Items) == 0 {
		return nil, store.ErrInvalid
	}

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	for _, item := range inv.Items {
		res, err := pgTx.ExecContext(ctx, `
			UPDATE products
			SET stock_qty = stock_qty - $2, updated_at = now()
			WHERE id = $1 AND stock_qty >= $2
		`, item.ProductID, item.Qty)
		if err != nil {
			return nil, err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			var exists bool
			if err := pgTx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)`, item.ProductID).Scan(&exists); err != nil {
				return nil, err
			}
			if !exists {
				return nil, store.ErrNotFound
			}
			return nil, store.ErrInsufficientStock
		}
	}

	itemsJSON, err := json.Marshal(inv.Items)
	if err != nil {
		return nil, err
	}
	_, err = pgTx.ExecContext(ctx, `
		INSERT INTO invoices (id, store_id, number, items, subtotal, tax_total, discount_total, grand_total, payment_method, synced, created_by, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	`, inv.ID, inv.StoreID, inv.Number, itemsJSON, inv.Subtotal, inv.TaxTotal, inv.DiscountTotal,
		inv.GrandTotal, inv.PaymentMethod, inv.Synced, inv.CreatedBy, inv.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}
	created := inv
	return &created, nil
}

const invoiceColumns = `id, store_id, number, items, subtotal, tax_total, discount_total, grand_total, payment_method, synced, created_by, created_at`

func scanInvoice(row interface{ Scan(...any) error }) (*domain.Invoice, error) {
	var inv domain.Invoice
	var itemsJSON []byte
	err := row.Scan(&inv.ID, &inv.StoreID, &inv.Number, &itemsJSON, &inv.Subtotal, &inv.TaxTotal,
		&inv.DiscountTotal, &inv.GrandTotal, &inv.PaymentMethod, &inv.Synced, &inv.CreatedBy, &inv.CreatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(itemsJSON, &inv.Items); err != nil {
		return nil, fmt.Errorf("decode invoice items: %w", err)
	}
	return &inv, nil
}

func (s *Store) GetInvoice(ctx context.Context, id string) (*domain.Invoice, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id = $1`, id)
	inv, err := scanInvoice(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return inv, nil
}

func (s *Store) ListInvoices(ctx context.Context, f store.InvoiceFilter) ([]domain.Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE store_id = $1`
	args := []any{f.StoreID}
	if f.From != nil {
		args = append(args, *f.From)
		query += fmt.Sprintf(" AND created_at >= $%d", len(args))
	}
	if f.To != nil {
		args = append(args, *f.To)
		query += fmt.Sprintf(" AND created_at <= $%d", len(args))
	}
	query += " ORDER BY created_at DESC"
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	invoices := make([]domain.Invoice, 0, 64)
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		invoices = append(invoices, *inv)
	}
	return invoices, rows.Err()
}

func (s *Store) SetInvoiceSynced(ctx context.Context, id string, synced bool) (*domain.Invoice, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE invoices SET synced = $2 WHERE id = $1`, id, synced)
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, store.ErrNotFound
	}
	return s.GetInvoice(ctx, id)
}

func (s *Store) NextInvoiceNumber(ctx context.Context, storeID string) (int64, error) {
	var seq int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO invoice_counters (store_id, seq) VALUES ($1, 1)
		ON CONFLICT (store_id) DO UPDATE SET seq = invoice_counters.seq + 1
		RETURNING seq
	`, storeID).Scan(&seq)
	return seq, err
}

const userColumns = `id, username, password_hash, role, COALESCE(store_id,''),
	COALESCE(display_name,''), COALESCE(email,''), COALESCE(image_url,''), created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (*domain.User, error) {
	var u domain.User
	err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Role, &u.StoreID,
		&u.DisplayName, &u.Email, &u.ImageURL, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *Store) CreateUser(ctx context.Context, u domain.User) (*domain.User, error) {
	if u.ID == "" || u.Username == "" {
		return nil, store.ErrInvalid
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, username, password_hash, role, store_id, display_name, email, image_url, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, u.ID, u.Username, u.PasswordHash, u.Role, nullIfEmpty(u.StoreID), nullIfEmpty(u.DisplayName),
		nullIfEmpty(u.Email), nullIfEmpty(u.ImageURL), u.CreatedAt, u.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}
	created := u
	return &created, nil
}

func (s *Store) GetUser(ctx context.Context, id string) (*domain.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return u, nil
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE lower(username) = lower($1)`, username)
	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return u, nil
}

func (s *Store) ListUsersByStore(ctx context.Context, storeID string) ([]domain.User, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users WHERE store_id = $1 ORDER BY username`, storeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.User, 0, 8)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

func (s *Store) UpdateUser(ctx context.Context, u domain.User) (*domain.User, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET username=$2, password_hash=$3, role=$4, store_id=$5, display_name=$6, email=$7, image_url=$8, updated_at=now()
		WHERE id = $1
	`, u.ID, u.Username, u.PasswordHash, u.Role, nullIfEmpty(u.StoreID), nullIfEmpty(u.DisplayName),
		nullIfEmpty(u.Email), nullIfEmpty(u.ImageURL))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, store.ErrNotFound
	}
	return s.GetUser(ctx, u.ID)
}

const expenseColumns = `id, store_id, label, amount, COALESCE(category,''), incurred_at, created_at, updated_at`

func scanExpense(row interface{ Scan(...any) error }) (*domain.Expense, error) {
	var e domain.Expense
	err := row.Scan(&e.ID, &e.StoreID, &e.Label, &e.Amount, &e.Category, &e.IncurredAt, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (s *Store) CreateExpense(ctx context.Context, e domain.Expense) (*domain.Expense, error) {
	if e.ID == "" || e.StoreID == "" || e.Label == "" {
		return nil, store.ErrInvalid
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO expenses (id, store_id, label, amount, category, incurred_at, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, e.ID, e.StoreID, e.Label, e.Amount, nullIfEmpty(e.Category), e.IncurredAt, e.CreatedAt, e.UpdatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	created := e
	return &created, nil
}

func (s *Store) GetExpense(ctx context.Context, id string) (*domain.Expense, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+expenseColumns+` FROM expenses WHERE id = $1`, id)
	e, err := scanExpense(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return e, nil
}

func (s *Store) ListExpenses(ctx context.Context, f store.ExpenseFilter) ([]domain.Expense, error) {
	query := `SELECT ` + expenseColumns + ` FROM expenses WHERE store_id = $1`
	args := []any{f.StoreID}
	if f.From != nil {
		args = append(args, *f.From)
		query += fmt.Sprintf(" AND incurred_at >= $%d", len(args))
	}
	if f.To != nil {
		args = append(args, *f.To)
		query += fmt.Sprintf(" AND incurred_at <= $%d", len(args))
	}
	query += " ORDER BY incurred_at DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	expenses := make([]domain.Expense, 0, 32)
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, err
		}
		expenses = append(expenses, *e)
	}
	return expenses, rows.Err()
}

func (s *Store) UpdateExpense(ctx context.Context, e domain.Expense) (*domain.Expense, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE expenses SET label=$2, amount=$3, category=$4, incurred_at=$5, updated_at=now()
		WHERE id = $1
	`, e.ID, e.Label, e.Amount, nullIfEmpty(e.Category), e.IncurredAt)
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, store.ErrNotFound
	}
	return s.GetExpense(ctx, e.ID)
}

func (s *Store) DeleteExpense(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM expenses WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) CreatePartnership(ctx context.Context, p domain.Partnership) (*domain.Partnership, error) {
	if p.ID == "" || p.StoreID == "" {
		return nil, store.ErrInvalid
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO partnerships (id, store_id, partner_name, investment, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, p.ID, p.StoreID, p.PartnerName, p.Investment, p.CreatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	created := p
	return &created, nil
}

func (s *Store) GetPartnership(ctx context.Context, id string) (*domain.Partnership, error) {
	var p domain.Partnership
	err := s.db.QueryRowContext(ctx, `
		SELECT id, store_id, partner_name, investment, created_at
		FROM partnerships WHERE id = $1
	`, id).Scan(&p.ID, &p.StoreID, &p.PartnerName, &p.Investment, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) ListPartnerships(ctx context.Context, storeID string) ([]domain.Partnership, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, store_id, partner_name, investment, created_at
		FROM partnerships WHERE store_id = $1 ORDER BY partner_name
	`, storeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Partnership, 0, 8)
	for rows.Next() {
		var p domain.Partnership
		if err := rows.Scan(&p.ID, &p.StoreID, &p.PartnerName, &p.Investment, &p.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) CreatePartnershipAsset(ctx context.Context, a domain.PartnershipAsset) (*domain.PartnershipAsset, error) {
	if a.ID == "" || a.PartnershipID == "" {
		return nil, store.ErrInvalid
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO partnership_assets (id, partnership_id, label, value, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, a.ID, a.PartnershipID, a.Label, a.Value, a.CreatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	created := a
	return &created, nil
}

func (s *Store) ListPartnershipAssets(ctx context.Context, partnershipID string) ([]domain.PartnershipAsset, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, partnership_id, label, value, created_at
		FROM partnership_assets WHERE partnership_id = $1 ORDER BY label
	`, partnershipID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.PartnershipAsset, 0, 8)
	for rows.Next() {
		var a domain.PartnershipAsset
		if err := rows.Scan(&a.ID, &a.PartnershipID, &a.Label, &a.Value, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23503"
	}
	return false
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}

func nullDecimal(d *decimal.Decimal) any {
	if d == nil {
		return nil
	}
	return *d
}
