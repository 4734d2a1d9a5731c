package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"shop-service/internal/models"
	"shop-service/internal/service"
	"shop-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Orders is the order placement and query surface used by the handlers.
type Orders interface {
	PlaceOrder(ctx context.Context, req *service.PlaceOrderRequest) (*service.PlaceOrderResponse, error)
	QuoteCart(lines []models.CartLine) (service.Quote, error)
	ListOrders(ctx context.Context, userID int64) ([]models.Order, error)
	GetOrder(ctx context.Context, orderID int64) (*models.Order, []models.OrderItem, error)
}

// Catalog provides read access to products.
type Catalog interface {
	GetProducts(ctx context.Context) ([]models.Product, error)
	GetProductByID(ctx context.Context, id int64) (*models.Product, error)
}

// Carts is the session-scoped cart storage.
type Carts interface {
	Get(ctx context.Context, userID int64) ([]models.CartLine, error)
	AddLine(ctx context.Context, userID int64, line models.CartLine) error
	UpdateQuantity(ctx context.Context, userID, productID int64, quantity int) (bool, error)
	RemoveLine(ctx context.Context, userID, productID int64) error
	Clear(ctx context.Context, userID int64) error
	SetPaymentLabel(ctx context.Context, orderID int64, label models.PaymentLabel) error
	GetPaymentLabel(ctx context.Context, orderID int64) (*models.PaymentLabel, error)
	GetStock(ctx context.Context, productID int64) (int, bool, error)
}

// Handler contains HTTP handlers
type Handler struct {
	orders  Orders
	catalog Catalog
	carts   Carts
}

// NewHandler creates a new HTTP handler
func NewHandler(orders Orders, catalog Catalog, carts Carts) *Handler {
	return &Handler{
		orders:  orders,
		catalog: catalog,
		carts:   carts,
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	v1.Use(identityMiddleware())
	{
		v1.GET("/products", h.listProducts)

		authed := v1.Group("", requireUser)
		{
			authed.GET("/cart", h.viewCart)
			authed.POST("/cart/items/:id", h.addToCart)
			authed.PUT("/cart/items/:id", h.updateCartItem)
			authed.DELETE("/cart/items/:id", h.removeFromCart)
			authed.DELETE("/cart", h.clearCart)

			authed.GET("/checkout", h.checkoutQuote)
			authed.POST("/checkout", h.placeOrder)

			authed.GET("/orders", h.listOrders)
			authed.GET("/orders/:id", h.getOrder)
		}

		admin := v1.Group("/admin", requireUser, requireAdmin)
		{
			admin.GET("/users/:id/orders", h.listUserOrders)
		}
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck handles readiness check requests
func (h *Handler) readinessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// listProducts returns the catalog, preferring the advisory stock cache
// for the displayed quantity.
func (h *Handler) listProducts(c *gin.Context) {
	products, err := h.catalog.GetProducts(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list products"})
		return
	}

	for i := range products {
		if cached, ok, err := h.carts.GetStock(c.Request.Context(), products[i].ID); err == nil && ok {
			products[i].Quantity = cached
		}
	}

	c.JSON(http.StatusOK, gin.H{"products": products})
}

func (h *Handler) viewCart(c *gin.Context) {
	lines, err := h.carts.Get(c.Request.Context(), currentUser(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load cart"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"cart": lines})
}

type cartQuantityRequest struct {
	Quantity int `json:"quantity"`
}

func (h *Handler) addToCart(c *gin.Context) {
	productID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid product ID"})
		return
	}

	var req cartQuantityRequest
	_ = c.ShouldBindJSON(&req)
	if req.Quantity < 1 {
		req.Quantity = 1
	}

	product, err := h.catalog.GetProductByID(c.Request.Context(), productID)
	if err != nil {
		var notFound *models.ProductNotFoundError
		if errors.As(err, &notFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Product not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load product"})
		return
	}

	line := models.CartLine{
		ProductID:   product.ID,
		ProductName: product.Name,
		Category:    product.Category,
		UnitPrice:   product.Price,
		Quantity:    req.Quantity,
		Image:       product.Image,
	}

	if err := h.carts.AddLine(c.Request.Context(), currentUser(c), line); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update cart"})
		return
	}

	util.CartOperationsTotal.WithLabelValues("add").Inc()
	c.JSON(http.StatusOK, gin.H{"message": "Item added to cart"})
}

func (h *Handler) updateCartItem(c *gin.Context) {
	productID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid product ID"})
		return
	}

	var req cartQuantityRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Quantity < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Quantity must be at least 1"})
		return
	}

	found, err := h.carts.UpdateQuantity(c.Request.Context(), currentUser(c), productID, req.Quantity)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update cart"})
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "Item not found in cart"})
		return
	}

	util.CartOperationsTotal.WithLabelValues("update").Inc()
	c.JSON(http.StatusOK, gin.H{"message": "Cart updated"})
}

func (h *Handler) removeFromCart(c *gin.Context) {
	productID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid product ID"})
		return
	}

	if err := h.carts.RemoveLine(c.Request.Context(), currentUser(c), productID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update cart"})
		return
	}

	util.CartOperationsTotal.WithLabelValues("remove").Inc()
	c.JSON(http.StatusOK, gin.H{"message": "Item removed from cart"})
}

func (h *Handler) clearCart(c *gin.Context) {
	if err := h.carts.Clear(c.Request.Context(), currentUser(c)); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to clear cart"})
		return
	}

	util.CartOperationsTotal.WithLabelValues("clear").Inc()
	c.JSON(http.StatusOK, gin.H{"message": "Cart cleared"})
}

// checkoutQuote prices the current cart without placing an order.
func (h *Handler) checkoutQuote(c *gin.Context) {
	lines, err := h.carts.Get(c.Request.Context(), currentUser(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load cart"})
		return
	}

	quote, err := h.orders.QuoteCart(lines)
	if errors.Is(err, models.ErrEmptyCart) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Your cart is empty."})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to price cart"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"cart":          lines,
		"gst_rate":      service.GSTRate,
		"delivery_rate": service.DeliveryRate,
		"quote":         quote,
	})
}

type placeOrderRequest struct {
	Address        string `json:"address"`
	PaymentMethod  string `json:"payment_method"`
	CardName       string `json:"card_name"`
	CardNumber     string `json:"card_number"`
	IdempotencyKey string `json:"idempotency_key"`
}

// placeOrder converts the user's cart into an order. The cart is
// cleared only after the order committed; every failure leaves it
// untouched so the user can retry.
func (h *Handler) placeOrder(c *gin.Context) {
	userID := currentUser(c)

	var req placeOrderRequest
	_ = c.ShouldBindJSON(&req)
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = c.GetHeader("Idempotency-Key")
	}

	lines, err := h.carts.Get(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load cart"})
		return
	}

	resp, err := h.orders.PlaceOrder(c.Request.Context(), &service.PlaceOrderRequest{
		UserID:         userID,
		Lines:          lines,
		Address:        req.Address,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		h.writePlaceOrderError(c, err)
		return
	}

	if err := h.carts.SetPaymentLabel(c.Request.Context(), resp.OrderID, paymentLabel(req)); err != nil {
		util.GetLogger().Warn("Failed to store payment label",
			zap.Int64("order_id", resp.OrderID), zap.Error(err))
	}

	if err := h.carts.Clear(c.Request.Context(), userID); err != nil {
		util.GetLogger().Warn("Failed to clear cart after checkout",
			zap.Int64("user_id", userID), zap.Error(err))
	}

	c.JSON(http.StatusCreated, resp)
}

// writePlaceOrderError maps the placement error taxonomy onto HTTP
// statuses, keeping user-correctable failures distinct from server
// failures.
func (h *Handler) writePlaceOrderError(c *gin.Context, err error) {
	var notFound *models.ProductNotFoundError
	var noStock *models.InsufficientStockError

	switch {
	case errors.Is(err, models.ErrEmptyCart):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Your cart is empty."})
	case errors.As(err, &notFound):
		c.JSON(http.StatusNotFound, gin.H{
			"error":      notFound.Error(),
			"product_id": notFound.ProductID,
		})
	case errors.As(err, &noStock):
		c.JSON(http.StatusConflict, gin.H{
			"error":      noStock.Error(),
			"product_id": noStock.ProductID,
		})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Could not place order, please try again.",
		})
	}
}

func paymentLabel(req placeOrderRequest) models.PaymentLabel {
	if req.PaymentMethod == "cash" {
		return models.PaymentLabel{Method: models.PaymentMethodCash}
	}

	label := models.PaymentLabel{Method: models.PaymentMethodCard}
	if name := strings.TrimSpace(req.CardName); name != "" {
		label.CardName = &name
	}
	if last4 := cardLast4(req.CardNumber); last4 != "" {
		label.CardLast4 = &last4
	}
	return label
}

// cardLast4 keeps only the last 4 digits of a card number. The full
// number is never stored anywhere.
func cardLast4(number string) string {
	digits := make([]rune, 0, len(number))
	for _, r := range number {
		if r >= '0' && r <= '9' {
			digits = append(digits, r)
		}
	}
	if len(digits) < 4 {
		return ""
	}
	return string(digits[len(digits)-4:])
}

// listOrders returns the authenticated user's orders, newest first.
func (h *Handler) listOrders(c *gin.Context) {
	orders, err := h.orders.ListOrders(c.Request.Context(), currentUser(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list orders"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

// getOrder returns an order with its items and price breakdown. Only
// the owning user or an admin may view it.
func (h *Handler) getOrder(c *gin.Context) {
	orderID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid order ID"})
		return
	}

	order, items, err := h.orders.GetOrder(c.Request.Context(), orderID)
	if errors.Is(err, models.ErrOrderNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Order not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load order"})
		return
	}

	if order.UserID != currentUser(c) && !isAdmin(c) {
		c.JSON(http.StatusForbidden, gin.H{"error": "Access denied"})
		return
	}

	lines := make([]models.CartLine, len(items))
	for i, item := range items {
		lines[i] = models.CartLine{
			ProductID: item.ProductID,
			UnitPrice: item.Price,
			Quantity:  item.Quantity,
		}
	}
	breakdown := service.PriceCart(lines)

	payment, err := h.carts.GetPaymentLabel(c.Request.Context(), order.ID)
	if err != nil {
		payment = nil
	}

	c.JSON(http.StatusOK, gin.H{
		"order":     order,
		"items":     items,
		"breakdown": breakdown,
		"payment":   payment,
	})
}

// listUserOrders lets an admin inspect any user's order history.
func (h *Handler) listUserOrders(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user ID"})
		return
	}

	orders, err := h.orders.ListOrders(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list orders"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders})
}
