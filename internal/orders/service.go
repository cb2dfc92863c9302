package orders

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/joao-fontenele/bookstore-orders/internal/auth"
	"github.com/joao-fontenele/bookstore-orders/internal/domain"
)

type Store interface {
	Create(ctx context.Context, n domain.NewOrder) (domain.Order, bool, error)
	ListByUser(ctx context.Context, userID string) ([]domain.Order, error)
}

// Cache is best-effort: implementations swallow their own failures.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration)
}

type EventPublisher interface {
	PublishOrderCreated(ctx context.Context, event domain.OrderCreatedEvent) error
}

type CreateOrderInput struct {
	BookID         int64
	Quantity       int
	IdempotencyKey string
}

type CreateOrderResult struct {
	Order    domain.Order
	Replayed bool
}

// Service writes orders to the store, announces them on the broker and
// serves per-user order lists through the cache.
//
// Creating an order does not invalidate the user's cached list. A list read
// within CacheTTL of a previous read can miss orders created in between.
type Service struct {
	store     Store
	cache     Cache
	publisher EventPublisher
	cacheTTL  time.Duration
	logger    *slog.Logger
	now       func() time.Time
}

func NewService(store Store, cache Cache, publisher EventPublisher, cacheTTL time.Duration, logger *slog.Logger) *Service {
	return &Service{
		store:     store,
		cache:     cache,
		publisher: publisher,
		cacheTTL:  cacheTTL,
		logger:    logger,
		now:       time.Now,
	}
}

func UserOrdersKey(userID string) string {
	return "orders:user:" + userID
}

func (s *Service) CreateOrder(ctx context.Context, p auth.Principal, in CreateOrderInput) (CreateOrderResult, error) {
	n := domain.NewOrder{
		UserID:         p.UserID,
		BookID:         in.BookID,
		Quantity:       in.Quantity,
		IdempotencyKey: in.IdempotencyKey,
	}
	if err := n.Validate(); err != nil {
		return CreateOrderResult{}, err
	}

	order, created, err := s.store.Create(ctx, n)
	if err != nil {
		return CreateOrderResult{}, err
	}

	if !created {
		s.logger.Info("order replayed", "order_id", order.ID, "user_id", order.UserID)
		return CreateOrderResult{Order: order, Replayed: true}, nil
	}

	if s.publisher != nil {
		event := domain.NewOrderCreatedEvent(order, s.now())
		if err := s.publisher.PublishOrderCreated(ctx, event); err != nil {
			s.logger.Warn("failed to publish order created event", "error", err, "order_id", order.ID)
		}
	}

	s.logger.Info("order created", "order_id", order.ID, "user_id", order.UserID, "book_id", order.BookID)
	return CreateOrderResult{Order: order}, nil
}

func (s *Service) ListOrders(ctx context.Context, p auth.Principal) ([]domain.Order, error) {
	key := UserOrdersKey(p.UserID)

	if s.cache != nil {
		if cached, ok := s.cache.Get(ctx, key); ok {
			var orders []domain.Order
			if err := json.Unmarshal(cached, &orders); err == nil && orders != nil {
				return orders, nil
			}
			s.logger.Warn("discarding undecodable cache entry", "key", key)
		}
	}

	orders, err := s.store.ListByUser(ctx, p.UserID)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		data, err := json.Marshal(orders)
		if err != nil {
			s.logger.Error("failed to encode orders for cache", "error", err, "key", key)
			return orders, nil
		}
		s.cache.SetWithTTL(ctx, key, data, s.cacheTTL)
	}

	return orders, nil
}
