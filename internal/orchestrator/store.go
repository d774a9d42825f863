package orchestrator

import (
	"fmt"
	"sync"

	"github.com/Frontier-tech-consulting/unite-defi-submission/internal/common"
)

// OrderStore is the in-memory order book. Reads return deep-copied snapshots;
// all mutation goes through Update so fills and status changes serialize per
// order under one lock.
type OrderStore struct {
	mu     sync.RWMutex
	orders map[string]*common.Order
}

func NewOrderStore() *OrderStore {
	return &OrderStore{orders: make(map[string]*common.Order)}
}

// Insert adds a new order. The id must not already exist.
func (s *OrderStore) Insert(order *common.Order) error {
	if order == nil || order.OrderID == "" {
		return fmt.Errorf("%w: missing order id", common.ErrInvalidOrder)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.orders[order.OrderID]; exists {
		return fmt.Errorf("%w: duplicate order id %s", common.ErrInvalidOrder, order.OrderID)
	}
	s.orders[order.OrderID] = order.Clone()
	return nil
}

// Get returns a snapshot of the order, or common.ErrOrderNotFound.
func (s *OrderStore) Get(orderID string) (*common.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	order, ok := s.orders[orderID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", common.ErrOrderNotFound, orderID)
	}
	return order.Clone(), nil
}

// All returns snapshots of every stored order.
func (s *OrderStore) All() []*common.Order {
	s.mu.RLock()
	defer s.mu.RUnlock()

	orders := make([]*common.Order, 0, len(s.orders))
	for _, order := range s.orders {
		orders = append(orders, order.Clone())
	}
	return orders
}

// Update applies fn to the stored order under the write lock. fn sees and may
// mutate the live record; returning an error abandons nothing, mutations made
// before the error stick, so fn should mutate only on its success path.
func (s *OrderStore) Update(orderID string, fn func(*common.Order) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[orderID]
	if !ok {
		return fmt.Errorf("%w: %s", common.ErrOrderNotFound, orderID)
	}
	return fn(order)
}

// Remove deletes the order if present.
func (s *OrderStore) Remove(orderID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.orders, orderID)
}

// Clear drops every stored order.
func (s *OrderStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders = make(map[string]*common.Order)
}

// Prune drops every order in a terminal status and returns how many were removed.
func (s *OrderStore) Prune() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, order := range s.orders {
		if order.Status.Terminal() {
			delete(s.orders, id)
			removed++
		}
	}
	return removed
}

// Len reports the number of stored orders.
func (s *OrderStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.orders)
}
