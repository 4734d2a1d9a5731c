package worker

import (
	"context"
	"log"

	"shop-service/internal/broker"
	"shop-service/internal/cart"
	"shop-service/internal/models"
	"shop-service/internal/util"

	"go.uber.org/zap"
)

// StockCacheWorker consumes OrderPlaced events and keeps the advisory
// Redis stock cache in step with committed orders. The cache only feeds
// product listings; checkout revalidates stock in the database.
type StockCacheWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	cache        *cart.Store
	logger       *zap.Logger
}

// NewStockCacheWorker creates a new stock cache worker
func NewStockCacheWorker(consumer *broker.Consumer, cache *cart.Store) *StockCacheWorker {
	w := &StockCacheWorker{
		consumer: consumer,
		cache:    cache,
		logger:   util.GetLogger(),
	}

	eventHandler := broker.NewEventHandler()
	eventHandler.OnOrderPlaced(w.handleOrderPlaced)
	w.eventHandler = eventHandler

	return w
}

// Start starts the worker
func (w *StockCacheWorker) Start(ctx context.Context) error {
	log.Println("Starting stock cache worker...")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *StockCacheWorker) Stop() error {
	log.Println("Stopping stock cache worker...")
	return w.consumer.Close()
}

func (w *StockCacheWorker) handleOrderPlaced(ctx context.Context, event *models.OrderPlacedEvent) error {
	for _, item := range event.Items {
		if err := w.cache.AdjustStock(ctx, item.ProductID, item.Quantity); err != nil {
			w.logger.Error("Failed to adjust cached stock",
				zap.Int64("order_id", event.OrderID),
				zap.Int64("product_id", item.ProductID),
				zap.Error(err))
			return err
		}
	}

	util.StockCacheRefreshTotal.Inc()
	return nil
}
