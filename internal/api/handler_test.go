package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"shop-service/internal/models"
	"shop-service/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubOrders struct {
	placeResp *service.PlaceOrderResponse
	placeErr  error
	placeReq  *service.PlaceOrderRequest

	order  *models.Order
	items  []models.OrderItem
	getErr error

	orders []models.Order
}

func (s *stubOrders) PlaceOrder(ctx context.Context, req *service.PlaceOrderRequest) (*service.PlaceOrderResponse, error) {
	s.placeReq = req
	if s.placeErr != nil {
		return nil, s.placeErr
	}
	return s.placeResp, nil
}

func (s *stubOrders) QuoteCart(lines []models.CartLine) (service.Quote, error) {
	if len(lines) == 0 {
		return service.Quote{}, models.ErrEmptyCart
	}
	return service.PriceCart(lines), nil
}

func (s *stubOrders) ListOrders(ctx context.Context, userID int64) ([]models.Order, error) {
	return s.orders, nil
}

func (s *stubOrders) GetOrder(ctx context.Context, orderID int64) (*models.Order, []models.OrderItem, error) {
	if s.getErr != nil {
		return nil, nil, s.getErr
	}
	return s.order, s.items, nil
}

type stubCatalog struct {
	products map[int64]*models.Product
}

func (s *stubCatalog) GetProducts(ctx context.Context) ([]models.Product, error) {
	var out []models.Product
	for _, p := range s.products {
		out = append(out, *p)
	}
	return out, nil
}

func (s *stubCatalog) GetProductByID(ctx context.Context, id int64) (*models.Product, error) {
	p, ok := s.products[id]
	if !ok {
		return nil, &models.ProductNotFoundError{ProductID: id}
	}
	return p, nil
}

type stubCarts struct {
	lines   []models.CartLine
	cleared bool
	labels  map[int64]models.PaymentLabel
	stock   map[int64]int
}

func newStubCarts(lines ...models.CartLine) *stubCarts {
	return &stubCarts{
		lines:  lines,
		labels: map[int64]models.PaymentLabel{},
		stock:  map[int64]int{},
	}
}

func (s *stubCarts) Get(ctx context.Context, userID int64) ([]models.CartLine, error) {
	return s.lines, nil
}

func (s *stubCarts) AddLine(ctx context.Context, userID int64, line models.CartLine) error {
	s.lines = append(s.lines, line)
	return nil
}

func (s *stubCarts) UpdateQuantity(ctx context.Context, userID, productID int64, quantity int) (bool, error) {
	for i := range s.lines {
		if s.lines[i].ProductID == productID {
			s.lines[i].Quantity = quantity
			return true, nil
		}
	}
	return false, nil
}

func (s *stubCarts) RemoveLine(ctx context.Context, userID, productID int64) error {
	return nil
}

func (s *stubCarts) Clear(ctx context.Context, userID int64) error {
	s.cleared = true
	s.lines = nil
	return nil
}

func (s *stubCarts) SetPaymentLabel(ctx context.Context, orderID int64, label models.PaymentLabel) error {
	s.labels[orderID] = label
	return nil
}

func (s *stubCarts) GetPaymentLabel(ctx context.Context, orderID int64) (*models.PaymentLabel, error) {
	if label, ok := s.labels[orderID]; ok {
		return &label, nil
	}
	return nil, nil
}

func (s *stubCarts) GetStock(ctx context.Context, productID int64) (int, bool, error) {
	qty, ok := s.stock[productID]
	return qty, ok, nil
}

func newTestRouter(orders Orders, catalog Catalog, carts Carts) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	NewHandler(orders, catalog, carts).SetupRoutes(router)
	return router
}

func doJSON(router *gin.Engine, method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func asUser(id string) map[string]string {
	return map[string]string{"X-User-ID": id}
}

func cartLine(productID int64, price string, qty int) models.CartLine {
	return models.CartLine{
		ProductID:   productID,
		ProductName: "widget",
		UnitPrice:   decimal.RequireFromString(price),
		Quantity:    qty,
	}
}

func TestPlaceOrderHandlerSuccess(t *testing.T) {
	orders := &stubOrders{
		placeResp: &service.PlaceOrderResponse{
			OrderID: 42,
			Total:   decimal.RequireFromString("31.00"),
		},
	}
	carts := newStubCarts(cartLine(1, "10.00", 2), cartLine(2, "5.00", 1))
	router := newTestRouter(orders, &stubCatalog{}, carts)

	w := doJSON(router, http.MethodPost, "/api/v1/checkout", gin.H{
		"address":        "12 Orchard Road",
		"payment_method": "card",
		"card_name":      "A Tan",
		"card_number":    "4111 1111 1111 1234",
	}, asUser("7"))

	assert.Equal(t, http.StatusCreated, w.Code)
	require.NotNil(t, orders.placeReq)
	assert.Equal(t, int64(7), orders.placeReq.UserID)
	assert.Len(t, orders.placeReq.Lines, 2)
	assert.Equal(t, "12 Orchard Road", orders.placeReq.Address)

	assert.True(t, carts.cleared)

	label, ok := carts.labels[42]
	require.True(t, ok)
	assert.Equal(t, models.PaymentMethodCard, label.Method)
	require.NotNil(t, label.CardLast4)
	assert.Equal(t, "1234", *label.CardLast4)
}

func TestPlaceOrderHandlerCashLabel(t *testing.T) {
	orders := &stubOrders{
		placeResp: &service.PlaceOrderResponse{OrderID: 43, Total: decimal.RequireFromString("10.00")},
	}
	carts := newStubCarts(cartLine(1, "10.00", 1))
	router := newTestRouter(orders, &stubCatalog{}, carts)

	w := doJSON(router, http.MethodPost, "/api/v1/checkout", gin.H{
		"payment_method": "cash",
		"card_number":    "4111111111111234",
	}, asUser("7"))

	assert.Equal(t, http.StatusCreated, w.Code)
	label := carts.labels[43]
	assert.Equal(t, models.PaymentMethodCash, label.Method)
	assert.Nil(t, label.CardLast4)
}

func TestPlaceOrderHandlerErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"empty cart", models.ErrEmptyCart, http.StatusBadRequest},
		{"product missing", &models.ProductNotFoundError{ProductID: 2}, http.StatusNotFound},
		{"insufficient stock", &models.InsufficientStockError{ProductID: 2, ProductName: "mouse"}, http.StatusConflict},
		{"persistence failure", context.DeadlineExceeded, http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			orders := &stubOrders{placeErr: tc.err}
			carts := newStubCarts(cartLine(1, "10.00", 1))
			router := newTestRouter(orders, &stubCatalog{}, carts)

			w := doJSON(router, http.MethodPost, "/api/v1/checkout", gin.H{}, asUser("7"))

			assert.Equal(t, tc.status, w.Code)
			// a failed placement must not clear the cart
			assert.False(t, carts.cleared)
		})
	}
}

func TestPlaceOrderHandlerUnauthenticated(t *testing.T) {
	router := newTestRouter(&stubOrders{}, &stubCatalog{}, newStubCarts())

	w := doJSON(router, http.MethodPost, "/api/v1/checkout", gin.H{}, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestGetOrderOwnership(t *testing.T) {
	order := &models.Order{ID: 42, UserID: 7, Total: decimal.RequireFromString("31.00")}
	items := []models.OrderItem{
		{OrderID: 42, ProductID: 1, ProductName: "keyboard", Price: decimal.RequireFromString("10.00"), Quantity: 2},
	}

	cases := []struct {
		name    string
		headers map[string]string
		status  int
	}{
		{"owner", asUser("7"), http.StatusOK},
		{"other user", asUser("8"), http.StatusForbidden},
		{"admin", map[string]string{"X-User-ID": "9", "X-User-Role": "admin"}, http.StatusOK},
		{"anonymous", nil, http.StatusUnauthorized},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			orders := &stubOrders{order: order, items: items}
			router := newTestRouter(orders, &stubCatalog{}, newStubCarts())

			w := doJSON(router, http.MethodGet, "/api/v1/orders/42", nil, tc.headers)
			assert.Equal(t, tc.status, w.Code)
		})
	}
}

func TestGetOrderNotFound(t *testing.T) {
	orders := &stubOrders{getErr: models.ErrOrderNotFound}
	router := newTestRouter(orders, &stubCatalog{}, newStubCarts())

	w := doJSON(router, http.MethodGet, "/api/v1/orders/999", nil, asUser("7"))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetOrderIncludesBreakdown(t *testing.T) {
	order := &models.Order{ID: 42, UserID: 7, Total: decimal.RequireFromString("31.00")}
	items := []models.OrderItem{
		{OrderID: 42, ProductID: 1, Price: decimal.RequireFromString("10.00"), Quantity: 2},
		{OrderID: 42, ProductID: 2, Price: decimal.RequireFromString("5.00"), Quantity: 1},
	}
	orders := &stubOrders{order: order, items: items}
	router := newTestRouter(orders, &stubCatalog{}, newStubCarts())

	w := doJSON(router, http.MethodGet, "/api/v1/orders/42", nil, asUser("7"))
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Breakdown service.Quote `json:"breakdown"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "25.00", body.Breakdown.Subtotal.StringFixed(2))
	assert.Equal(t, "31.00", body.Breakdown.Total.StringFixed(2))
}

func TestCheckoutQuoteEmptyCart(t *testing.T) {
	router := newTestRouter(&stubOrders{}, &stubCatalog{}, newStubCarts())

	w := doJSON(router, http.MethodGet, "/api/v1/checkout", nil, asUser("7"))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAddToCartSnapshotsProduct(t *testing.T) {
	category := "peripherals"
	catalog := &stubCatalog{products: map[int64]*models.Product{
		1: {ID: 1, Name: "keyboard", Category: &category, Price: decimal.RequireFromString("10.00"), Quantity: 5},
	}}
	carts := newStubCarts()
	router := newTestRouter(&stubOrders{}, catalog, carts)

	w := doJSON(router, http.MethodPost, "/api/v1/cart/items/1", gin.H{"quantity": 2}, asUser("7"))
	require.Equal(t, http.StatusOK, w.Code)

	require.Len(t, carts.lines, 1)
	added := carts.lines[0]
	assert.Equal(t, "keyboard", added.ProductName)
	assert.Equal(t, "10.00", added.UnitPrice.StringFixed(2))
	assert.Equal(t, 2, added.Quantity)
	require.NotNil(t, added.Category)
	assert.Equal(t, "peripherals", *added.Category)
}

func TestAddToCartUnknownProduct(t *testing.T) {
	router := newTestRouter(&stubOrders{}, &stubCatalog{}, newStubCarts())

	w := doJSON(router, http.MethodPost, "/api/v1/cart/items/99", nil, asUser("7"))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestUpdateCartItemRejectsZeroQuantity(t *testing.T) {
	carts := newStubCarts(cartLine(1, "10.00", 2))
	router := newTestRouter(&stubOrders{}, &stubCatalog{}, carts)

	w := doJSON(router, http.MethodPut, "/api/v1/cart/items/1", gin.H{"quantity": 0}, asUser("7"))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, 2, carts.lines[0].Quantity)
}

func TestAdminUserOrdersRequiresAdmin(t *testing.T) {
	router := newTestRouter(&stubOrders{}, &stubCatalog{}, newStubCarts())

	w := doJSON(router, http.MethodGet, "/api/v1/admin/users/7/orders", nil, asUser("7"))
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = doJSON(router, http.MethodGet, "/api/v1/admin/users/7/orders", nil,
		map[string]string{"X-User-ID": "1", "X-User-Role": "admin"})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCardLast4(t *testing.T) {
	assert.Equal(t, "1234", cardLast4("4111 1111 1111 1234"))
	assert.Equal(t, "1234", cardLast4("4111-1111-1111-1234"))
	assert.Equal(t, "", cardLast4("12"))
	assert.Equal(t, "", cardLast4(""))
}
