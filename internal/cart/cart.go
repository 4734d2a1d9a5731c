package cart

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"shop-service/internal/models"

	"github.com/go-redis/redis/v8"
)

// Store keeps per-user carts in Redis. A cart is a JSON list of lines
// under cart:<userID>, expiring after the configured TTL. The same
// client also carries the cosmetic payment labels and the advisory
// stock cache.
type Store struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewStore creates a new cart store backed by Redis
func NewStore(addr, password string, db int, ttl time.Duration) (*Store, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Store{rdb: rdb, ttl: ttl}, nil
}

// Close closes the Redis connection
func (s *Store) Close() error {
	return s.rdb.Close()
}

func cartKey(userID int64) string {
	return fmt.Sprintf("cart:%d", userID)
}

// Get retrieves a user's cart. A missing key is an empty cart.
func (s *Store) Get(ctx context.Context, userID int64) ([]models.CartLine, error) {
	data, err := s.rdb.Get(ctx, cartKey(userID)).Result()
	if err == redis.Nil {
		return []models.CartLine{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cart: %w", err)
	}

	var lines []models.CartLine
	if err := json.Unmarshal([]byte(data), &lines); err != nil {
		return nil, fmt.Errorf("failed to decode cart: %w", err)
	}
	return lines, nil
}

func (s *Store) save(ctx context.Context, userID int64, lines []models.CartLine) error {
	data, err := json.Marshal(lines)
	if err != nil {
		return fmt.Errorf("failed to encode cart: %w", err)
	}
	if err := s.rdb.Set(ctx, cartKey(userID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save cart: %w", err)
	}
	return nil
}

// AddLine adds a product to the cart, merging the quantity into an
// existing line for the same product and refreshing its cached
// attributes from the given line.
func (s *Store) AddLine(ctx context.Context, userID int64, line models.CartLine) error {
	lines, err := s.Get(ctx, userID)
	if err != nil {
		return err
	}

	merged := false
	for i := range lines {
		if lines[i].ProductID == line.ProductID {
			line.Quantity += lines[i].Quantity
			lines[i] = line
			merged = true
			break
		}
	}
	if !merged {
		lines = append(lines, line)
	}

	return s.save(ctx, userID, lines)
}

// UpdateQuantity sets the quantity of an existing line. It returns
// false when the product is not in the cart.
func (s *Store) UpdateQuantity(ctx context.Context, userID, productID int64, quantity int) (bool, error) {
	lines, err := s.Get(ctx, userID)
	if err != nil {
		return false, err
	}

	for i := range lines {
		if lines[i].ProductID == productID {
			lines[i].Quantity = quantity
			return true, s.save(ctx, userID, lines)
		}
	}
	return false, nil
}

// RemoveLine removes a product from the cart
func (s *Store) RemoveLine(ctx context.Context, userID, productID int64) error {
	lines, err := s.Get(ctx, userID)
	if err != nil {
		return err
	}

	kept := lines[:0]
	for _, line := range lines {
		if line.ProductID != productID {
			kept = append(kept, line)
		}
	}

	return s.save(ctx, userID, kept)
}

// Clear empties a user's cart
func (s *Store) Clear(ctx context.Context, userID int64) error {
	if err := s.rdb.Del(ctx, cartKey(userID)).Err(); err != nil {
		return fmt.Errorf("failed to clear cart: %w", err)
	}
	return nil
}

// SetPaymentLabel stashes the cosmetic payment label for an order so
// the invoice view can show it. Labels expire with the cart TTL.
func (s *Store) SetPaymentLabel(ctx context.Context, orderID int64, label models.PaymentLabel) error {
	data, err := json.Marshal(label)
	if err != nil {
		return fmt.Errorf("failed to encode payment label: %w", err)
	}
	key := fmt.Sprintf("payment:%d", orderID)
	if err := s.rdb.Set(ctx, key, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save payment label: %w", err)
	}
	return nil
}

// GetPaymentLabel retrieves the payment label for an order, returning
// nil when none was stored or it expired.
func (s *Store) GetPaymentLabel(ctx context.Context, orderID int64) (*models.PaymentLabel, error) {
	data, err := s.rdb.Get(ctx, fmt.Sprintf("payment:%d", orderID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get payment label: %w", err)
	}

	var label models.PaymentLabel
	if err := json.Unmarshal([]byte(data), &label); err != nil {
		return nil, fmt.Errorf("failed to decode payment label: %w", err)
	}
	return &label, nil
}

// SetStock writes a product's advisory stock count. Product listings
// read this cache; checkout always revalidates in the database.
func (s *Store) SetStock(ctx context.Context, productID int64, quantity int) error {
	return s.rdb.Set(ctx, fmt.Sprintf("stock:%d", productID), quantity, 0).Err()
}

// AdjustStock decrements the advisory stock count by delta
func (s *Store) AdjustStock(ctx context.Context, productID int64, delta int) error {
	return s.rdb.DecrBy(ctx, fmt.Sprintf("stock:%d", productID), int64(delta)).Err()
}

// GetStock reads the advisory stock count. The second result is false
// when the product is not cached.
func (s *Store) GetStock(ctx context.Context, productID int64) (int, bool, error) {
	val, err := s.rdb.Get(ctx, fmt.Sprintf("stock:%d", productID)).Int()
	if err == redis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return val, true, nil
}
