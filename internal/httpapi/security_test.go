package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"
)

func TestRequiresBearerToken(t *testing.T) {
	handler := newTestAPI(t)

	rec := doJSON(t, handler, http.MethodGet, "/api/v1/stores", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestRejectsMalformedAuthHeader(t *testing.T) {
	handler := newTestAPI(t)

	rec := doJSON(t, handler, http.MethodGet, "/api/v1/stores", "not-a-jwt", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestCashierCannotCreateStore(t *testing.T) {
	handler := newTestAPI(t)
	token := login(t, handler, "cashier1", "cashier123")

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/stores", token, map[string]any{
		"name": "Rogue Store", "currency": "INR",
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403 (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestCrossStoreAccessForbidden(t *testing.T) {
	handler := newTestAPI(t)
	root := login(t, handler, "root", "admin123")

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/stores", root, map[string]any{
		"name": "Other Store", "currency": "USD",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create store: %d (body: %s)", rec.Code, rec.Body.String())
	}
	var resp struct {
		Store struct {
			ID string `json:"id"`
		} `json:"store"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}

	owner := login(t, handler, "owner@sharmastore.in", "owner123")
	rec = doJSON(t, handler, http.MethodGet, "/api/v1/stores/"+resp.Store.ID, owner, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403 (body: %s)", rec.Code, rec.Body.String())
	}
	rec = doJSON(t, handler, http.MethodGet, "/api/v1/products?storeId="+resp.Store.ID, owner, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("product list status = %d, want 403", rec.Code)
	}
}

func TestRegisterRequiresSuperAdminRole(t *testing.T) {
	handler := newTestAPI(t)
	owner := login(t, handler, "owner@sharmastore.in", "owner123")

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/auth/register", owner, map[string]any{
		"username": "cashier9", "password": "secret123", "role": "CASHIER", "storeId": "store-demo",
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403 (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestResponsesNeverLeakPasswordHashes(t *testing.T) {
	handler := newTestAPI(t)

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"username": "root", "password": "admin123",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("login: %d", rec.Code)
	}
	body := rec.Body.String()
	if strings.Contains(body, "$2a$") || strings.Contains(body, "$2b$") || strings.Contains(body, "passwordHash") {
		t.Fatalf("response leaks credential material: %s", body)
	}

	token := login(t, handler, "root", "admin123")
	rec = doJSON(t, handler, http.MethodGet, "/api/v1/auth/me", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("me: %d", rec.Code)
	}
	body = rec.Body.String()
	if strings.Contains(body, "$2a$") || strings.Contains(body, "$2b$") {
		t.Fatalf("profile response leaks credential material: %s", body)
	}
}
