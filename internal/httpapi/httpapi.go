package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"dukaanpos/backend/internal/domain"
	"dukaanpos/backend/internal/logger"
	"dukaanpos/backend/internal/metrics"
	"dukaanpos/backend/internal/service"
	"dukaanpos/backend/internal/store"
)

type API struct {
	service *service.Service
	auth    *AuthManager
	logger  *zap.Logger
}

func New(svc *service.Service, auth *AuthManager, log *zap.Logger) *API {
	if log == nil {
		log = zap.NewNop()
	}
	return &API{service: svc, auth: auth, logger: log}
}

func (a *API) Handler() http.Handler {
	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = a.errorHandler

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(logger.RequestLogger(a.logger))
	e.Use(metrics.Middleware)
	e.Use(middleware.BodyLimit("1M"))

	e.GET("/healthz", a.handleHealth)
	e.GET("/metrics", metrics.Handler())

	v1 := e.Group("/api/v1")
	v1.POST("/auth/login", a.handleLogin)

	auth := v1.Group("", a.requireAuth)
	auth.POST("/auth/register", a.handleRegister)
	auth.GET("/auth/me", a.handleMe)
	auth.PATCH("/auth/profile", a.handleUpdateProfile)
	auth.POST("/auth/change-password", a.handleChangePassword)

	auth.POST("/stores", a.handleCreateStore)
	auth.GET("/stores", a.handleListStores)
	auth.GET("/stores/:id", a.handleGetStore)
	auth.PATCH("/stores/:id", a.handleUpdateStore)
	auth.DELETE("/stores/:id", a.handleDeleteStore)
	auth.GET("/stores/:id/low-stock", a.handleLowStock)

	auth.POST("/categories", a.handleCreateCategory)
	auth.GET("/categories", a.handleListCategories)
	auth.GET("/categories/:id", a.handleGetCategory)
	auth.PATCH("/categories/:id", a.handleUpdateCategory)
	auth.DELETE("/categories/:id", a.handleDeleteCategory)

	auth.POST("/products", a.handleCreateProduct)
	auth.GET("/products", a.handleListProducts)
	auth.GET("/products/:id", a.handleGetProduct)
	auth.PATCH("/products/:id", a.handleUpdateProduct)
	auth.DELETE("/products/:id", a.handleDeleteProduct)
	auth.PATCH("/products/:id/stock", a.handleAdjustStock)

	auth.POST("/invoices", a.handleCreateInvoice)
	auth.GET("/invoices", a.handleListInvoices)
	auth.GET("/invoices/:id", a.handleGetInvoice)
	auth.PATCH("/invoices/:id/synced", a.handleSetInvoiceSynced)

	auth.POST("/expenses", a.handleCreateExpense)
	auth.GET("/expenses/store/:storeId", a.handleListExpenses)
	auth.GET("/expenses/:id", a.handleGetExpense)
	auth.PATCH("/expenses/:id", a.handleUpdateExpense)
	auth.DELETE("/expenses/:id", a.handleDeleteExpense)

	auth.POST("/partnerships", a.handleCreatePartnership)
	auth.GET("/partnerships/store/:storeId", a.handleListPartnerships)
	auth.POST("/partnerships/:id/assets", a.handleCreatePartnershipAsset)
	auth.GET("/partnerships/:id/assets", a.handleListPartnershipAssets)

	auth.GET("/financial/overview/:storeId", a.handleFinancialOverview)
	auth.GET("/settings", a.handleSettings)

	return e
}

func (a *API) requireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		header := strings.TrimSpace(c.Request().Header.Get("Authorization"))
		if !strings.HasPrefix(strings.ToLower(header), "bearer ") {
			return echo.NewHTTPError(http.StatusUnauthorized, "missing bearer token")
		}
		token := strings.TrimSpace(header[len("Bearer "):])
		actor, err := a.auth.ParseToken(token)
		if err != nil {
			return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
		}
		ctx := service.WithActor(c.Request().Context(), actor)
		c.SetRequest(c.Request().WithContext(ctx))
		return next(c)
	}
}

// errorHandler maps sentinel errors to statuses. 5xx bodies stay
// generic so internals never leak to clients.
func (a *API) errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status := http.StatusInternalServerError
	msg := "internal server error"

	var httpErr *echo.HTTPError
	switch {
	case errors.As(err, &httpErr):
		status = httpErr.Code
		if m, ok := httpErr.Message.(string); ok {
			msg = m
		} else {
			msg = http.StatusText(status)
		}
	case errors.Is(err, store.ErrInvalid):
		status, msg = http.StatusBadRequest, err.Error()
	case errors.Is(err, service.ErrBadCredentials):
		status, msg = http.StatusUnauthorized, "invalid credentials"
	case errors.Is(err, store.ErrForbidden):
		status, msg = http.StatusForbidden, "forbidden"
	case errors.Is(err, store.ErrNotFound):
		status, msg = http.StatusNotFound, "not found"
	case errors.Is(err, store.ErrConflict),
		errors.Is(err, store.ErrCategoryInUse),
		errors.Is(err, store.ErrInsufficientStock):
		status, msg = http.StatusConflict, err.Error()
	default:
		a.logger.Error("unhandled request error",
			zap.String("path", c.Request().URL.Path), zap.Error(err))
	}

	if jsonErr := c.JSON(status, echo.Map{"error": msg}); jsonErr != nil {
		a.logger.Error("error response write failed", zap.Error(jsonErr))
	}
}

func (a *API) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleLogin(c echo.Context) error {
	var req domain.LoginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	resp, err := a.auth.Login(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, resp)
}

func (a *API) handleRegister(c echo.Context) error {
	var req domain.RegisterRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	u, err := a.service.Register(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, echo.Map{"user": u})
}

func (a *API) handleMe(c echo.Context) error {
	resp, err := a.service.Me(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, resp)
}

func (a *API) handleUpdateProfile(c echo.Context) error {
	var req domain.ProfileUpdateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	u, err := a.service.UpdateProfile(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"user": u})
}

func (a *API) handleChangePassword(c echo.Context) error {
	var req domain.ChangePasswordRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := a.service.ChangePassword(c.Request().Context(), req); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"ok": true})
}

func (a *API) handleCreateStore(c echo.Context) error {
	var req domain.StoreCreateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	resp, err := a.service.CreateStore(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, resp)
}

func (a *API) handleListStores(c echo.Context) error {
	stores, err := a.service.ListStores(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"stores": stores})
}

func (a *API) handleGetStore(c echo.Context) error {
	st, err := a.service.GetStore(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"store": st})
}

func (a *API) handleUpdateStore(c echo.Context) error {
	var req domain.StoreUpdateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	resp, err := a.service.UpdateStore(c.Request().Context(), c.Param("id"), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, resp)
}

func (a *API) handleDeleteStore(c echo.Context) error {
	if err := a.service.DeleteStore(c.Request().Context(), c.Param("id")); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"ok": true})
}

func (a *API) handleLowStock(c echo.Context) error {
	products, err := a.service.LowStockProducts(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"products": products})
}

func (a *API) handleCreateCategory(c echo.Context) error {
	var req domain.CategoryCreateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	cat, err := a.service.CreateCategory(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, echo.Map{"category": cat})
}

func (a *API) handleListCategories(c echo.Context) error {
	storeID := c.QueryParam("storeId")
	if storeID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "storeId query parameter required")
	}
	cats, err := a.service.ListCategories(c.Request().Context(), storeID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"categories": cats})
}

func (a *API) handleGetCategory(c echo.Context) error {
	cat, err := a.service.GetCategory(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"category": cat})
}

func (a *API) handleUpdateCategory(c echo.Context) error {
	var req domain.CategoryUpdateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	cat, err := a.service.UpdateCategory(c.Request().Context(), c.Param("id"), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"category": cat})
}

func (a *API) handleDeleteCategory(c echo.Context) error {
	if err := a.service.DeleteCategory(c.Request().Context(), c.Param("id")); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"ok": true})
}

func (a *API) handleCreateProduct(c echo.Context) error {
	var req domain.ProductCreateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	p, err := a.service.CreateProduct(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, echo.Map{"product": p})
}

func (a *API) handleListProducts(c echo.Context) error {
	storeID := c.QueryParam("storeId")
	if storeID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "storeId query parameter required")
	}
	products, err := a.service.ListProducts(c.Request().Context(), storeID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"products": products})
}

func (a *API) handleGetProduct(c echo.Context) error {
	p, err := a.service.GetProduct(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"product": p})
}

func (a *API) handleUpdateProduct(c echo.Context) error {
	var req domain.ProductUpdateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	p, err := a.service.UpdateProduct(c.Request().Context(), c.Param("id"), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"product": p})
}

func (a *API) handleDeleteProduct(c echo.Context) error {
	if err := a.service.DeleteProduct(c.Request().Context(), c.Param("id")); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"ok": true})
}

func (a *API) handleAdjustStock(c echo.Context) error {
	var req domain.StockAdjustRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	resp, err := a.service.AdjustStock(c.Request().Context(), c.Param("id"), req.Delta)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, resp)
}

func (a *API) handleCreateInvoice(c echo.Context) error {
	var req domain.InvoiceCreateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	inv, err := a.service.CreateInvoice(c.Request().Context(), req)
	if err != nil {
		return err
	}
	metrics.RecordInvoiceCreated(inv.StoreID, inv.PaymentMethod)
	return c.JSON(http.StatusCreated, echo.Map{"invoice": inv})
}

func (a *API) handleListInvoices(c echo.Context) error {
	storeID := c.QueryParam("storeId")
	if storeID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "storeId query parameter required")
	}
	from, err := parseTimeParam(c.QueryParam("from"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid from parameter")
	}
	to, err := parseTimeParam(c.QueryParam("to"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid to parameter")
	}
	limit := 0
	if raw := c.QueryParam("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid limit parameter")
		}
		limit = parsed
	}

	invoices, err := a.service.ListInvoices(c.Request().Context(), store.InvoiceFilter{
		StoreID: storeID, From: from, To: to, Limit: limit,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"invoices": invoices})
}

func (a *API) handleGetInvoice(c echo.Context) error {
	inv, err := a.service.GetInvoice(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"invoice": inv})
}

func (a *API) handleSetInvoiceSynced(c echo.Context) error {
	var req domain.InvoiceSyncRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	inv, err := a.service.SetInvoiceSynced(c.Request().Context(), c.Param("id"), req.Synced)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"invoice": inv})
}

func (a *API) handleCreateExpense(c echo.Context) error {
	var req domain.ExpenseCreateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	e, err := a.service.CreateExpense(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, echo.Map{"expense": e})
}

func (a *API) handleListExpenses(c echo.Context) error {
	from, err := parseTimeParam(c.QueryParam("from"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid from parameter")
	}
	to, err := parseTimeParam(c.QueryParam("to"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid to parameter")
	}
	expenses, err := a.service.ListExpenses(c.Request().Context(), store.ExpenseFilter{
		StoreID: c.Param("storeId"), From: from, To: to,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"expenses": expenses})
}

func (a *API) handleGetExpense(c echo.Context) error {
	e, err := a.service.GetExpense(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"expense": e})
}

func (a *API) handleUpdateExpense(c echo.Context) error {
	var req domain.ExpenseUpdateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	e, err := a.service.UpdateExpense(c.Request().Context(), c.Param("id"), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"expense": e})
}

func (a *API) handleDeleteExpense(c echo.Context) error {
	if err := a.service.DeleteExpense(c.Request().Context(), c.Param("id")); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"ok": true})
}

func (a *API) handleCreatePartnership(c echo.Context) error {
	var req domain.PartnershipCreateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	p, err := a.service.CreatePartnership(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, echo.Map{"partnership": p})
}

func (a *API) handleListPartnerships(c echo.Context) error {
	partnerships, err := a.service.ListPartnerships(c.Request().Context(), c.Param("storeId"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"partnerships": partnerships})
}

func (a *API) handleCreatePartnershipAsset(c echo.Context) error {
	var req domain.PartnershipAssetCreateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	asset, err := a.service.CreatePartnershipAsset(c.Request().Context(), c.Param("id"), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, echo.Map{"asset": asset})
}

func (a *API) handleListPartnershipAssets(c echo.Context) error {
	assets, err := a.service.ListPartnershipAssets(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"assets": assets})
}

func (a *API) handleFinancialOverview(c echo.Context) error {
	from, err := parseTimeParam(c.QueryParam("from"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid from parameter")
	}
	to, err := parseTimeParam(c.QueryParam("to"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid to parameter")
	}
	ov, err := a.service.FinancialOverview(c.Request().Context(), c.Param("storeId"), from, to)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, ov)
}

func (a *API) handleSettings(c echo.Context) error {
	gs, err := a.service.GlobalSettings(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, gs)
}

// parseTimeParam accepts RFC 3339 timestamps or plain dates.
func parseTimeParam(raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		t = t.UTC()
		return &t, nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return nil, err
	}
	t = t.UTC()
	return &t, nil
}
