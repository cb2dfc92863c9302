package orders

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/joao-fontenele/bookstore-orders/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type memStore struct {
	mu      sync.Mutex
	orders  []domain.Order
	keys    map[string]string
	err     error
	creates int
	lists   int
	now     time.Time
}

func newMemStore() *memStore {
	return &memStore{
		keys: make(map[string]string),
		now:  time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
	}
}

func (s *memStore) Create(_ context.Context, n domain.NewOrder) (domain.Order, bool, error) {
	if err := n.Validate(); err != nil {
		return domain.Order{}, false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.creates++
	if s.err != nil {
		return domain.Order{}, false, fmt.Errorf("%w: %w", domain.ErrStore, s.err)
	}

	if n.IdempotencyKey != "" {
		if id, ok := s.keys[n.UserID+"/"+n.IdempotencyKey]; ok {
			for _, o := range s.orders {
				if o.ID == id {
					return o, false, nil
				}
			}
		}
	}

	s.now = s.now.Add(time.Second)
	order := domain.Order{
		ID:        fmt.Sprintf("order-%d", len(s.orders)+1),
		UserID:    n.UserID,
		BookID:    n.BookID,
		Quantity:  n.Quantity,
		CreatedAt: s.now,
	}
	s.orders = append(s.orders, order)
	if n.IdempotencyKey != "" {
		s.keys[n.UserID+"/"+n.IdempotencyKey] = order.ID
	}
	return order, true, nil
}

func (s *memStore) ListByUser(_ context.Context, userID string) ([]domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lists++
	if s.err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrStore, s.err)
	}

	result := []domain.Order{}
	for _, o := range s.orders {
		if o.UserID == userID {
			result = append(result, o)
		}
	}
	return result, nil
}

func (s *memStore) count(userID string) int {
	orders, _ := s.ListByUser(context.Background(), userID)
	return len(orders)
}

type memCache struct {
	mu      sync.Mutex
	entries map[string][]byte
	ttls    map[string]time.Duration
	down    bool
	sets    int
}

func newMemCache() *memCache {
	return &memCache{entries: make(map[string][]byte), ttls: make(map[string]time.Duration)}
}

func (c *memCache) Get(_ context.Context, key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.down {
		return nil, false
	}
	v, ok := c.entries[key]
	return v, ok
}

func (c *memCache) SetWithTTL(_ context.Context, key string, value []byte, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sets++
	if c.down {
		return
	}
	c.entries[key] = value
	c.ttls[key] = ttl
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.OrderCreatedEvent
	err    error
}

func (p *recordingPublisher) PublishOrderCreated(_ context.Context, event domain.OrderCreatedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) published() []domain.OrderCreatedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.OrderCreatedEvent(nil), p.events...)
}

var errUnreachable = errors.New("connection refused")
