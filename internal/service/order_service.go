package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"shop-service/internal/models"
	"shop-service/internal/util"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// OrderStore is the persistence surface the order service needs.
type OrderStore interface {
	GetProductsByIDs(ctx context.Context, ids []int64) ([]models.Product, error)
	PlaceOrder(ctx context.Context, order *models.Order, items []models.OrderItem) error
	GetOrderByIdempotencyKey(ctx context.Context, key string) (*models.Order, error)
	GetOrderByID(ctx context.Context, id int64) (*models.Order, error)
	GetOrdersByUserID(ctx context.Context, userID int64) ([]models.Order, error)
	GetOrderItemsByOrderID(ctx context.Context, orderID int64) ([]models.OrderItem, error)
}

// EventPublisher publishes domain events after an order commits.
type EventPublisher interface {
	PublishOrderPlaced(ctx context.Context, event *models.OrderPlacedEvent) error
}

// OrderService turns a cart snapshot into a durable order. It never
// touches the cart itself: callers pass the snapshot in and clear the
// cart only after a successful placement.
type OrderService struct {
	store  OrderStore
	events EventPublisher
	logger *zap.Logger
}

// NewOrderService creates a new order service
func NewOrderService(store OrderStore, events EventPublisher) *OrderService {
	return &OrderService{
		store:  store,
		events: events,
		logger: util.GetLogger(),
	}
}

// PlaceOrderRequest represents a checkout attempt
type PlaceOrderRequest struct {
	UserID         int64
	Lines          []models.CartLine
	Address        string
	IdempotencyKey string
}

// PlaceOrderResponse represents the result of a successful checkout
type PlaceOrderResponse struct {
	OrderID int64           `json:"order_id"`
	Total   decimal.Decimal `json:"total"`
}

// PlaceOrder validates the cart against live stock and creates the
// order header, its lines and the stock decrements atomically. On any
// failure no durable side effect remains and the caller keeps the cart.
func (s *OrderService) PlaceOrder(ctx context.Context, req *PlaceOrderRequest) (*PlaceOrderResponse, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.PlaceOrder")
	defer span.End()

	start := time.Now()
	defer func() {
		util.CheckoutLatency.Observe(time.Since(start).Seconds())
	}()

	lines := normalizeLines(req.Lines)
	if len(lines) == 0 {
		util.OrdersFailedTotal.WithLabelValues("empty_cart").Inc()
		return nil, models.ErrEmptyCart
	}

	if req.IdempotencyKey != "" {
		existing, err := s.store.GetOrderByIdempotencyKey(ctx, req.IdempotencyKey)
		if err != nil {
			return nil, fmt.Errorf("failed to check idempotency: %w", err)
		}
		if existing != nil {
			s.logger.Info("Duplicate checkout detected",
				zap.String("idempotency_key", req.IdempotencyKey),
				zap.Int64("order_id", existing.ID))
			return &PlaceOrderResponse{OrderID: existing.ID, Total: existing.Total}, nil
		}
	}

	quote := PriceCart(lines)

	order := &models.Order{
		UserID: req.UserID,
		Total:  quote.Total,
	}
	if addr := strings.TrimSpace(req.Address); addr != "" {
		order.Address = &addr
	}
	if req.IdempotencyKey != "" {
		key := req.IdempotencyKey
		order.IdempotencyKey = &key
	}

	items := make([]models.OrderItem, len(lines))
	for i, line := range lines {
		items[i] = models.OrderItem{
			ProductID:   line.ProductID,
			ProductName: line.ProductName,
			Category:    line.Category,
			Price:       line.UnitPrice,
			Quantity:    line.Quantity,
			Image:       line.Image,
		}
	}

	if err := s.store.PlaceOrder(ctx, order, items); err != nil {
		var notFound *models.ProductNotFoundError
		var noStock *models.InsufficientStockError
		switch {
		case errors.As(err, &notFound):
			util.OrdersFailedTotal.WithLabelValues("product_not_found").Inc()
			return nil, err
		case errors.As(err, &noStock):
			util.OrdersFailedTotal.WithLabelValues("insufficient_stock").Inc()
			return nil, err
		default:
			util.OrdersFailedTotal.WithLabelValues("db_error").Inc()
			return nil, fmt.Errorf("failed to place order: %w", err)
		}
	}

	util.OrdersPlacedTotal.Inc()
	s.logger.Info("Order placed",
		zap.Int64("order_id", order.ID),
		zap.Int64("user_id", order.UserID),
		zap.String("total", order.Total.StringFixed(2)))

	event := &models.OrderPlacedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeOrderPlaced,
			Timestamp: time.Now(),
		},
		OrderID: order.ID,
		UserID:  order.UserID,
		Total:   order.Total,
	}
	for _, item := range items {
		event.Items = append(event.Items, models.OrderPlacedEventItem{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: item.Price,
		})
	}

	if err := s.events.PublishOrderPlaced(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderPlaced event", zap.Error(err))
	}

	return &PlaceOrderResponse{OrderID: order.ID, Total: order.Total}, nil
}

// QuoteCart prices the current cart without side effects.
func (s *OrderService) QuoteCart(lines []models.CartLine) (Quote, error) {
	normalized := normalizeLines(lines)
	if len(normalized) == 0 {
		return Quote{}, models.ErrEmptyCart
	}
	return PriceCart(normalized), nil
}

// ListOrders retrieves a user's orders, newest first
func (s *OrderService) ListOrders(ctx context.Context, userID int64) ([]models.Order, error) {
	return s.store.GetOrdersByUserID(ctx, userID)
}

// GetOrder retrieves an order header with its items
func (s *OrderService) GetOrder(ctx context.Context, orderID int64) (*models.Order, []models.OrderItem, error) {
	order, err := s.store.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, nil, err
	}

	items, err := s.store.GetOrderItemsByOrderID(ctx, orderID)
	if err != nil {
		return nil, nil, err
	}

	return order, items, nil
}

// normalizeLines drops lines without a product id or a positive
// quantity and merges duplicate product ids, summing quantities. The
// first occurrence wins for the cached product attributes.
func normalizeLines(lines []models.CartLine) []models.CartLine {
	normalized := make([]models.CartLine, 0, len(lines))
	index := make(map[int64]int, len(lines))

	for _, line := range lines {
		if line.ProductID <= 0 || line.Quantity <= 0 {
			continue
		}
		if i, ok := index[line.ProductID]; ok {
			normalized[i].Quantity += line.Quantity
			continue
		}
		index[line.ProductID] = len(normalized)
		normalized = append(normalized, line)
	}

	return normalized
}
