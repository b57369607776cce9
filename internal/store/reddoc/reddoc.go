// Package reddoc keeps each entity as a JSON document in Redis, with
// set keys as secondary indexes.
package reddoc

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"

	"dukaanpos/backend/internal/domain"
	"dukaanpos/backend/internal/store"
)

// txRetries bounds WATCH retries on contended keys; exhaustion surfaces
// as ErrConflict.
const txRetries = 16

type Store struct {
	client *redis.Client
}

func New(ctx context.Context, client *redis.Client) (*Store, error) {
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	return &Store{client: client}, nil
}

func (s *Store) Close() error {
	return s.client.Close()
}

func storeKey(id string) string           { return "pos:store:" + id }
func categoryKey(id string) string        { return "pos:category:" + id }
func productKey(id string) string         { return "pos:product:" + id }
func invoiceKey(id string) string         { return "pos:invoice:" + id }
func userKey(id string) string            { return "pos:user:" + id }
func usernameKey(username string) string  { return "pos:username:" + strings.ToLower(username) }
func expenseKey(id string) string         { return "pos:expense:" + id }
func partnershipKey(id string) string     { return "pos:partnership:" + id }
func assetKey(id string) string           { return "pos:passet:" + id }
func storeIndex() string                  { return "pos:stores" }
func categoryIndex(storeID string) string { return "pos:categories:store:" + storeID }
func productIndex(storeID string) string  { return "pos:products:store:" + storeID }
func productCatIndex(catID string) string { return "pos:products:category:" + catID }
func invoiceIndex(storeID string) string  { return "pos:invoices:store:" + storeID }
func userIndex(storeID string) string     { return "pos:users:store:" + storeID }
func expenseIndex(storeID string) string  { return "pos:expenses:store:" + storeID }
func partnershipIndex(sid string) string  { return "pos:partnerships:store:" + sid }
func assetIndex(pid string) string        { return "pos:passets:" + pid }
func invoiceSeqKey(storeID string) string { return "pos:invoiceseq:" + storeID }

func (s *Store) getDoc(ctx context.Context, key string, out any) error {
	val, err := s.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return store.ErrNotFound
	}
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(val), out)
}

func (s *Store) setDoc(ctx context.Context, key string, doc any) error {
	payload, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, key, payload, 0).Err()
}

func getMany[T any](ctx context.Context, s *Store, indexKey string, keyFn func(string) string) ([]T, error) {
	ids, err := s.client.SMembers(ctx, indexKey).Result()
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(ids))
	for _, id := range ids {
		var doc T
		if err := s.getDoc(ctx, keyFn(id), &doc); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			return nil, err
		}
		out = append(out, doc)
	}
	return out, nil
}

func (s *Store) CreateStore(ctx context.Context, st domain.Store) (*domain.Store, error) {
	if st.ID == "" || st.Name == "" {
		return nil, store.ErrInvalid
	}
	exists, err := s.client.Exists(ctx, storeKey(st.ID)).Result()
	if err != nil {
		return nil, err
	}
	if exists > 0 {
		return nil, store.ErrConflict
	}
	if err := s.setDoc(ctx, storeKey(st.ID), st); err != nil {
		return nil, err
	}
	if err := s.client.SAdd(ctx, storeIndex(), st.ID).Err(); err != nil {
		return nil, err
	}
	created := st
	return &created, nil
}

func (s *Store) GetStore(ctx context.Context, id string) (*domain.Store, error) {
	var st domain.Store
	if err := s.getDoc(ctx, storeKey(id), &st); err != nil {
		return nil, err
	}
	return &st, nil
}

func (s *Store) ListStores(ctx context.Context) ([]domain.Store, error) {
	out, err := getMany[domain.Store](ctx, s, storeIndex(), storeKey)
	if err != nil {
		return nil, err
	}
	slices.SortFunc(out, func(a, b domain.Store) int {
		return strings.Compare(a.Name, b.Name)
	})
	return out, nil
}

func (s *Store) UpdateStore(ctx context.Context, st domain.Store) (*domain.Store, error) {
	if _, err := s.GetStore(ctx, st.ID); err != nil {
		return nil, err
	}
	if err := s.setDoc(ctx, storeKey(st.ID), st); err != nil {
		return nil, err
	}
	updated := st
	return &updated, nil
}

// DeleteStore refuses stores that still hold catalog or financial data.
// The store's user accounts and invoice counter are removed with it.
func (s *Store) DeleteStore(ctx context.Context, id string) error {
	if _, err := s.GetStore(ctx, id); err != nil {
		return err
	}
	indexes := []string{
		categoryIndex(id), productIndex(id), invoiceIndex(id),
		expenseIndex(id), partnershipIndex(id),
	}
	for _, idx := range indexes {
		n, err := s.client.SCard(ctx, idx).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			return store.ErrConflict
		}
	}
	userIDs, err := s.client.SMembers(ctx, userIndex(id)).Result()
	if err != nil {
		return err
	}
	for _, uid := range userIDs {
		u, err := s.GetUser(ctx, uid)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			return err
		}
		if err := s.client.Del(ctx, userKey(uid), usernameKey(u.Username)).Err(); err != nil {
			return err
		}
	}
	if err := s.client.Del(ctx, userIndex(id), invoiceSeqKey(id), storeKey(id)).Err(); err != nil {
		return err
	}
	return s.client.SRem(ctx, storeIndex(), id).Err()
}

func (s *Store) CreateCategory(ctx context.Context, c domain.Category) (*domain.Category, error) {
	if c.ID == "" || c.Name == "" || c.StoreID == "" {
		return nil, store.ErrInvalid
	}
	if _, err := s.GetStore(ctx, c.StoreID); err != nil {
		return nil, err
	}
	if err := s.setDoc(ctx, categoryKey(c.ID), c); err != nil {
		return nil, err
	}
	if err := s.client.SAdd(ctx, categoryIndex(c.StoreID), c.ID).Err(); err != nil {
		return nil, err
	}
	created := c
	return &created, nil
}

func (s *Store) GetCategory(ctx context.Context, id string) (*domain.Category, error) {
	var c domain.Category
	if err := s.getDoc(ctx, categoryKey(id), &c); err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *Store) ListCategories(ctx context.Context, storeID string) ([]domain.Category, error) {
	out, err := getMany[domain.Category](ctx, s, categoryIndex(storeID), categoryKey)
	if err != nil {
		return nil, err
	}
	slices.SortFunc(out, func(a, b domain.Category) int {
		return strings.Compare(a.Name, b.Name)
	})
	return out, nil
}

func (s *Store) UpdateCategory(ctx context.Context, c domain.Category) (*domain.Category, error) {
	if _, err := s.GetCategory(ctx, c.ID); err != nil {
		return nil, err
	}
	if err := s.setDoc(ctx, categoryKey(c.ID), c); err != nil {
		return nil, err
	}
	updated := c
	return &updated, nil
}

func (s *Store) DeleteCategory(ctx context.Context, id string) error {
	c, err := s.GetCategory(ctx, id)
	if err != nil {
		return err
	}
	n, err := s.client.SCard(ctx, productCatIndex(id)).Result()
	if err != nil {
		return err
	}
	if n > 0 {
		return store.ErrCategoryInUse
	}
	if err := s.client.Del(ctx, categoryKey(id)).Err(); err != nil {
		return err
	}
	return s.client.SRem(ctx, categoryIndex(c.StoreID), id).Err()
}

func (s *Store) CountProductsByCategory(ctx context.Context, categoryID string) (int, error) {
	n, err := s.client.SCard(ctx, productCatIndex(categoryID)).Result()
	return int(n), err
}

func (s *Store) CreateProduct(ctx context.Context, p domain.Product) (*domain.Product, error) {
	if p.ID == "" || p.Name == "" || p.StoreID == "" || p.CategoryID == "" {
		return nil, store.ErrInvalid
	}
	if _, err := s.GetStore(ctx, p.StoreID); err != nil {
		return nil, err
	}
	if _, err := s.GetCategory(ctx, p.CategoryID); err != nil {
		return nil, err
	}
	if err := s.setDoc(ctx, productKey(p.ID), p); err != nil {
		return nil, err
	}
	if err := s.client.SAdd(ctx, productIndex(p.StoreID), p.ID).Err(); err != nil {
		return nil, err
	}
	if err := s.client.SAdd(ctx, productCatIndex(p.CategoryID), p.ID).Err(); err != nil {
		return nil, err
	}
	created := p
	return &created, nil
}

func (s *Store) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	var p domain.Product
	if err := s.getDoc(ctx, productKey(id), &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) ListProducts(ctx context.Context, storeID string) ([]domain.Product, error) {
	out, err := getMany[domain.Product](ctx, s, productIndex(storeID), productKey)
	if err != nil {
		return nil, err
	}
	slices.SortFunc(out, func(a, b domain.Product) int {
		return strings.Compare(a.Name, b.Name)
	})
	return out, nil
}

func (s *Store) UpdateProduct(ctx context.Context, p domain.Product) (*domain.Product, error) {
	old, err := s.GetProduct(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	if err := s.setDoc(ctx, productKey(p.ID), p); err != nil {
		return nil, err
	}
	if old.CategoryID != p.CategoryID {
		if err := s.client.SRem(ctx, productCatIndex(old.CategoryID), p.ID).Err(); err != nil {
			return nil, err
		}
		if err := s.client.SAdd(ctx, productCatIndex(p.CategoryID), p.ID).Err(); err != nil {
			return nil, err
		}
	}
	updated := p
	return &updated, nil
}

func (s *Store) DeleteProduct(ctx context.Context, id string) error {
	p, err := s.GetProduct(ctx, id)
	if err != nil {
		return err
	}
	if err := s.client.Del(ctx, productKey(id)).Err(); err != nil {
		return err
	}
	if err := s.client.SRem(ctx, productIndex(p.StoreID), id).Err(); err != nil {
		return err
	}
	return s.client.SRem(ctx, productCatIndex(p.CategoryID), id).Err()
}

func (s *Store) AdjustStock(ctx context.Context, productID string, delta int64) (int64, error) {
	var newQty int64
	txn := func(tx *redis.Tx) error {
		val, err := tx.Get(ctx, productKey(productID)).Result()
		if err == redis.Nil {
			return store.ErrNotFound
		}
		if err != nil {
			return err
		}
		var p domain.Product
		if err := json.Unmarshal([]byte(val), &p); err != nil {
			return err
		}
		next := p.StockQty + delta
		if next < 0 {
			return store.ErrInsufficientStock
		}
		p.StockQty = next
		p.UpdatedAt = time.Now().UTC()
		payload, err := json.Marshal(p)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, productKey(productID), payload, 0)
			return nil
		})
		if err == nil {
			newQty = next
		}
		return err
	}

	for i := 0; i < txRetries; i++ {
		err := s.client.Watch(ctx, txn, productKey(productID))
		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			return 0, err
		}
		return newQty, nil
	}
	return 0, store.ErrConflict
}

func (s *Store) CreateInvoice(ctx context.Context, inv domain.Invoice) (*domain.Invoice, error) {
	if inv.ID == "" || inv.StoreID == "" || len(inv.Items) == 0 {
		return nil, store.ErrInvalid
	}
	keys := make([]string, 0, len(inv.Items))
	for _, item := range inv.Items {
		keys = append(keys, productKey(item.ProductID))
	}

	txn := func(tx *redis.Tx) error {
		products := make(map[string]domain.Product, len(inv.Items))
		for _, item := range inv.Items {
			val, err := tx.Get(ctx, productKey(item.ProductID)).Result()
			if err == redis.Nil {
				return store.ErrNotFound
			}
			if err != nil {
				return err
			}
			var p domain.Product
			if err := json.Unmarshal([]byte(val), &p); err != nil {
				return err
			}
			products[item.ProductID] = p
		}
		now := time.Now().UTC()
		for _, item := range inv.Items {
			p := products[item.ProductID]
			if p.StockQty < item.Qty {
				return store.ErrInsufficientStock
			}
			p.StockQty -= item.Qty
			p.UpdatedAt = now
			products[item.ProductID] = p
		}
		invoicePayload, err := json.Marshal(inv)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for id, p := range products {
				payload, err := json.Marshal(p)
				if err != nil {
					return err
				}
				pipe.Set(ctx, productKey(id), payload, 0)
			}
			pipe.Set(ctx, invoiceKey(inv.ID), invoicePayload, 0)
			pipe.SAdd(ctx, invoiceIndex(inv.StoreID), inv.ID)
			return nil
		})
		return err
	}

	for i := 0; i < txRetries; i++ {
		err := s.client.Watch(ctx, txn, keys...)
		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			return nil, err
		}
		created := inv
		return &created, nil
	}
	return nil, store.ErrConflict
}

func (s *Store) GetInvoice(ctx context.Context, id string) (*domain.Invoice, error) {
	var inv domain.Invoice
	if err := s.getDoc(ctx, invoiceKey(id), &inv); err != nil {
		return nil, err
	}
	return &inv, nil
}

func (s *Store) ListInvoices(ctx context.Context, f store.InvoiceFilter) ([]domain.Invoice, error) {
	all, err := getMany[domain.Invoice](ctx, s, invoiceIndex(f.StoreID), invoiceKey)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Invoice, 0, len(all))
	for _, inv := range all {
		if f.From != nil && inv.CreatedAt.Before(*f.From) {
			continue
		}
		if f.To != nil && inv.CreatedAt.After(*f.To) {
			continue
		}
		out = append(out, inv)
	}
	slices.SortFunc(out, func(a, b domain.Invoice) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *Store) SetInvoiceSynced(ctx context.Context, id string, synced bool) (*domain.Invoice, error) {
	inv, err := s.GetInvoice(ctx, id)
	if err != nil {
		return nil, err
	}
	inv.Synced = synced
	if err := s.setDoc(ctx, invoiceKey(id), inv); err != nil {
		return nil, err
	}
	return inv, nil
}

func (s *Store) NextInvoiceNumber(ctx context.Context, storeID string) (int64, error) {
	return s.client.Incr(ctx, invoiceSeqKey(storeID)).Result()
}

// userDoc re-exposes the password hash, which the domain type keeps
// out of API JSON. Documents in Redis must carry it.
type userDoc struct {
	domain.User
	PasswordHash string `json:"passwordHash"`
}

func (s *Store) setUserDoc(ctx context.Context, u domain.User) error {
	return s.setDoc(ctx, userKey(u.ID), userDoc{User: u, PasswordHash: u.PasswordHash})
}

func (s *Store) CreateUser(ctx context.Context, u domain.User) (*domain.User, error) {
	if u.ID == "" || u.Username == "" {
		return nil, store.ErrInvalid
	}
	// SETNX claims the username; losing the race means a duplicate.
	ok, err := s.client.SetNX(ctx, usernameKey(u.Username), u.ID, 0).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, store.ErrConflict
	}
	if err := s.setUserDoc(ctx, u); err != nil {
		return nil, err
	}
	if u.StoreID != "" {
		if err := s.client.SAdd(ctx, userIndex(u.StoreID), u.ID).Err(); err != nil {
			return nil, err
		}
	}
	created := u
	return &created, nil
}

func (s *Store) GetUser(ctx context.Context, id string) (*domain.User, error) {
	var doc userDoc
	if err := s.getDoc(ctx, userKey(id), &doc); err != nil {
		return nil, err
	}
	u := doc.User
	u.PasswordHash = doc.PasswordHash
	return &u, nil
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	id, err := s.client.Get(ctx, usernameKey(username)).Result()
	if err == redis.Nil {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return s.GetUser(ctx, id)
}

func (s *Store) ListUsersByStore(ctx context.Context, storeID string) ([]domain.User, error) {
	ids, err := s.client.SMembers(ctx, userIndex(storeID)).Result()
	if err != nil {
		return nil, err
	}
	out := make([]domain.User, 0, len(ids))
	for _, id := range ids {
		u, err := s.GetUser(ctx, id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			return nil, err
		}
		out = append(out, *u)
	}
	slices.SortFunc(out, func(a, b domain.User) int {
		return strings.Compare(a.Username, b.Username)
	})
	return out, nil
}

func (s *Store) UpdateUser(ctx context.Context, u domain.User) (*domain.User, error) {
	old, err := s.GetUser(ctx, u.ID)
	if err != nil {
		return nil, err
	}
	if !strings.EqualFold(old.Username, u.Username) {
		ok, err := s.client.SetNX(ctx, usernameKey(u.Username), u.ID, 0).Result()
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, store.ErrConflict
		}
		if err := s.client.Del(ctx, usernameKey(old.Username)).Err(); err != nil {
			return nil, err
		}
	}
	if err := s.setUserDoc(ctx, u); err != nil {
		return nil, err
	}
	updated := u
	return &updated, nil
}

func (s *Store) CreateExpense(ctx context.Context, e domain.Expense) (*domain.Expense, error) {
	if e.ID == "" || e.StoreID == "" || e.Label == "" {
		return nil, store.ErrInvalid
	}
	if _, err := s.GetStore(ctx, e.StoreID); err != nil {
		return nil, err
	}
	if err := s.setDoc(ctx, expenseKey(e.ID), e); err != nil {
		return nil, err
	}
	if err := s.client.SAdd(ctx, expenseIndex(e.StoreID), e.ID).Err(); err != nil {
		return nil, err
	}
	created := e
	return &created, nil
}

func (s *Store) GetExpense(ctx context.Context, id string) (*domain.Expense, error) {
	var e domain.Expense
	if err := s.getDoc(ctx, expenseKey(id), &e); err != nil {
		return nil, err
	}
	return &e, nil
}

func (s *Store) ListExpenses(ctx context.Context, f store.ExpenseFilter) ([]domain.Expense, error) {
	all, err := getMany[domain.Expense](ctx, s, expenseIndex(f.StoreID), expenseKey)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Expense, 0, len(all))
	for _, e := range all {
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

func (s *Store) UpdateExpense(ctx context.Context, e domain.Expense) (*domain.Expense, error) {
	if _, err := s.GetExpense(ctx, e.ID); err != nil {
		return nil, err
	}
	if err := s.setDoc(ctx, expenseKey(e.ID), e); err != nil {
		return nil, err
	}
	updated := e
	return &updated, nil
}

func (s *Store) DeleteExpense(ctx context.Context, id string) error {
	e, err := s.GetExpense(ctx, id)
	if err != nil {
		return err
	}
	if err := s.client.Del(ctx, expenseKey(id)).Err(); err != nil {
		return err
	}
	return s.client.SRem(ctx, expenseIndex(e.StoreID), id).Err()
}

func (s *Store) CreatePartnership(ctx context.Context, p domain.Partnership) (*domain.Partnership, error) {
	if p.ID == "" || p.StoreID == "" {
		return nil, store.ErrInvalid
	}
	if err := s.setDoc(ctx, partnershipKey(p.ID), p); err != nil {
		return nil, err
	}
	if err := s.client.SAdd(ctx, partnershipIndex(p.StoreID), p.ID).Err(); err != nil {
		return nil, err
	}
	created := p
	return &created, nil
}

func (s *Store) GetPartnership(ctx context.Context, id string) (*domain.Partnership, error) {
	var p domain.Partnership
	if err := s.getDoc(ctx, partnershipKey(id), &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) ListPartnerships(ctx context.Context, storeID string) ([]domain.Partnership, error) {
	out, err := getMany[domain.Partnership](ctx, s, partnershipIndex(storeID), partnershipKey)
	if err != nil {
		return nil, err
	}
	slices.SortFunc(out, func(a, b domain.Partnership) int {
		return strings.Compare(a.PartnerName, b.PartnerName)
	})
	return out, nil
}

func (s *Store) CreatePartnershipAsset(ctx context.Context, a domain.PartnershipAsset) (*domain.PartnershipAsset, error) {
	if a.ID == "" || a.PartnershipID == "" {
		return nil, store.ErrInvalid
	}
	if err := s.setDoc(ctx, assetKey(a.ID), a); err != nil {
		return nil, err
	}
	if err := s.client.SAdd(ctx, assetIndex(a.PartnershipID), a.ID).Err(); err != nil {
		return nil, err
	}
	created := a
	return &created, nil
}

func (s *Store) ListPartnershipAssets(ctx context.Context, partnershipID string) ([]domain.PartnershipAsset, error) {
	out, err := getMany[domain.PartnershipAsset](ctx, s, assetIndex(partnershipID), assetKey)
	if err != nil {
		return nil, err
	}
	slices.SortFunc(out, func(a, b domain.PartnershipAsset) int {
		return strings.Compare(a.Label, b.Label)
	})
	return out, nil
}
