package store

import (
	"context"
	"database/sql"
	"fmt"

	"shop-service/internal/models"

	"github.com/jmoiron/sqlx"
)

// lockedStock is the authoritative stock row read under FOR UPDATE.
type lockedStock struct {
	ID       int64  `db:"id"`
	Name     string `db:"product_name"`
	Quantity int    `db:"quantity"`
}

// PlaceOrder creates the order header, its items and the stock
// decrements as a single transaction. Items must already be normalized:
// one item per distinct product, quantity >= 1.
//
// Stock rows for every product in the order are locked with FOR UPDATE
// before validation, so concurrent checkouts competing for the same
// product serialize instead of both reading stale stock. Validation
// against values read before the transaction would be a race.
//
// On success order.ID and order.CreatedAt are populated and every
// item's ID and OrderID are set. On any failure the transaction is
// rolled back and no row is left behind.
func (s *Store) PlaceOrder(ctx context.Context, order *models.Order, items []models.OrderItem) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	ids := make([]int64, len(items))
	for i, it := range items {
		ids[i] = it.ProductID
	}

	query, args, err := sqlx.In(
		"SELECT id, product_name, quantity FROM products WHERE id IN (?) FOR UPDATE", ids)
	if err != nil {
		return fmt.Errorf("failed to build lock query: %w", err)
	}
	query = tx.Rebind(query)

	var locked []lockedStock
	if err := tx.SelectContext(ctx, &locked, query, args...); err != nil {
		return fmt.Errorf("failed to lock stock rows: %w", err)
	}

	stockByID := make(map[int64]lockedStock, len(locked))
	for _, row := range locked {
		stockByID[row.ID] = row
	}

	for _, it := range items {
		row, ok := stockByID[it.ProductID]
		if !ok {
			return &models.ProductNotFoundError{ProductID: it.ProductID, ProductName: it.ProductName}
		}
		if row.Quantity < it.Quantity {
			return &models.InsufficientStockError{
				ProductID:   it.ProductID,
				ProductName: row.Name,
				Available:   row.Quantity,
				Requested:   it.Quantity,
			}
		}
	}

	err = tx.GetContext(ctx, order, `
		INSERT INTO orders (user_id, total, address, idempotency_key)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`,
		order.UserID, order.Total, order.Address, order.IdempotencyKey)
	if err != nil {
		return fmt.Errorf("failed to insert order: %w", err)
	}

	for i := range items {
		items[i].OrderID = order.ID
	}

	if _, err := tx.NamedExecContext(ctx, `
		INSERT INTO order_items (order_id, product_id, product_name, category, price, quantity, image)
		VALUES (:order_id, :product_id, :product_name, :category, :price, :quantity, :image)`,
		items); err != nil {
		return fmt.Errorf("failed to insert order items: %w", err)
	}

	for _, it := range items {
		res, err := tx.ExecContext(ctx,
			"UPDATE products SET quantity = quantity - $1 WHERE id = $2 AND quantity >= $1",
			it.Quantity, it.ProductID)
		if err != nil {
			return fmt.Errorf("failed to deduct stock for product %d: %w", it.ProductID, err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to read stock update result: %w", err)
		}
		// cannot happen while the lock is held, but never let stock go negative
		if affected != 1 {
			row := stockByID[it.ProductID]
			return &models.InsufficientStockError{
				ProductID:   it.ProductID,
				ProductName: row.Name,
				Available:   row.Quantity,
				Requested:   it.Quantity,
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit order: %w", err)
	}
	return nil
}

// GetOrderByID retrieves an order header by ID
func (s *Store) GetOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, "SELECT * FROM orders WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, models.ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// GetOrderByIdempotencyKey retrieves an order by idempotency key,
// returning nil when no such order exists.
func (s *Store) GetOrderByIdempotencyKey(ctx context.Context, key string) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, "SELECT * FROM orders WHERE idempotency_key = $1", key)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// GetOrdersByUserID retrieves a user's orders, newest first
func (s *Store) GetOrdersByUserID(ctx context.Context, userID int64) ([]models.Order, error) {
	var orders []models.Order
	err := s.db.SelectContext(ctx, &orders,
		"SELECT * FROM orders WHERE user_id = $1 ORDER BY created_at DESC", userID)
	return orders, err
}

// GetOrderItemsByOrderID retrieves all items for an order
func (s *Store) GetOrderItemsByOrderID(ctx context.Context, orderID int64) ([]models.OrderItem, error) {
	var items []models.OrderItem
	err := s.db.SelectContext(ctx, &items,
		"SELECT * FROM order_items WHERE order_id = $1 ORDER BY id", orderID)
	return items, err
}
