// internal/domain/order/service.go
package order

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/your-org/storefront-engine/internal/pkg/apperr"
)

// Repository reads orders and their lines. Lines carry their product.
type Repository interface {
	ListOrders(ctx context.Context, userID string) ([]Order, error)
	GetOrder(ctx context.Context, orderID string) (*Order, error)
	UpdateOrderStatus(ctx context.Context, orderID string, status Status) error
}

// Service handles order business logic
type Service struct {
	repo Repository
	log  logrus.FieldLogger
}

// NewService creates a new order service
func NewService(repo Repository, log logrus.FieldLogger) *Service {
	return &Service{
		repo: repo,
		log:  log.WithField("component", "order"),
	}
}

// History returns the user's orders, newest first
func (s *Service) History(ctx context.Context, userID string) ([]Order, error) {
	if userID == "" {
		return nil, apperr.AuthRequired("sign in to see your orders")
	}

	orders, err := s.repo.ListOrders(ctx, userID)
	if err != nil {
		return nil, apperr.Storage("failed to retrieve orders", err)
	}
	return orders, nil
}

// GetForUser retrieves one of the user's orders. Orders of other users are
// reported as not found.
func (s *Service) GetForUser(ctx context.Context, userID, orderID string) (*Order, error) {
	if userID == "" {
		return nil, apperr.AuthRequired("sign in to see your orders")
	}
	if _, err := uuid.Parse(orderID); err != nil {
		return nil, apperr.NotFound("order not found")
	}

	o, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return nil, apperr.Storage("failed to retrieve order", err)
	}
	if o.UserID != userID {
		return nil, apperr.NotFound("order not found")
	}
	return o, nil
}

// UpdateStatus moves an order along its fulfilment lifecycle
func (s *Service) UpdateStatus(ctx context.Context, orderID string, status Status) (*Order, error) {
	if _, err := uuid.Parse(orderID); err != nil {
		return nil, apperr.NotFound("order not found")
	}

	o, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return nil, apperr.Storage("failed to retrieve order", err)
	}

	if !isValidStatusTransition(o.Status, status) {
		return nil, apperr.Validation(fmt.Sprintf("invalid status transition from %s to %s", o.Status, status))
	}

	if err := s.repo.UpdateOrderStatus(ctx, orderID, status); err != nil {
		return nil, apperr.Storage("failed to update order status", err)
	}

	s.log.WithFields(logrus.Fields{
		"order_id": orderID,
		"from":     o.Status,
		"to":       status,
	}).Info("order status updated")

	o.Status = status
	return o, nil
}

func isValidStatusTransition(from, to Status) bool {
	validTransitions := map[Status][]Status{
		StatusPending:    {StatusProcessing},
		StatusProcessing: {StatusShipped},
		StatusShipped:    {StatusCompleted},
	}

	for _, status := range validTransitions[from] {
		if status == to {
			return true
		}
	}
	return false
}
