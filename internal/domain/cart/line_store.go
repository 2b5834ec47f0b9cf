// internal/domain/cart/line_store.go
package cart

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/your-org/storefront-engine/internal/pkg/apperr"
	"github.com/your-org/storefront-engine/internal/pkg/observe"
)

// LineRepository is the part of the backing store that owns cart lines.
//
// IncrementOrCreateLine must be a single atomic operation: insert the line, or
// when a line for the same (user, product, size) exists add line.Quantity to it.
// Implementations must never split this into a read followed by a write.
type LineRepository interface {
	IncrementOrCreateLine(ctx context.Context, line *Line) error
	SetLineQuantity(ctx context.Context, userID string, lineID uint, quantity int) error
	DeleteLine(ctx context.Context, userID string, lineID uint) error
	ListLines(ctx context.Context, userID string) ([]AggregateItem, error)
}

// LineStore validates cart line operations and persists them
type LineStore struct {
	repo      LineRepository
	log       logrus.FieldLogger
	mutations observe.Subject[Mutation]
}

// NewLineStore creates a new cart line store
func NewLineStore(repo LineRepository, log logrus.FieldLogger) *LineStore {
	return &LineStore{
		repo: repo,
		log:  log.WithField("component", "cart_line_store"),
	}
}

// OnMutation registers fn to run after every committed write
func (s *LineStore) OnMutation(fn func(Mutation)) (unsubscribe func()) {
	return s.mutations.Subscribe(fn)
}

// AddItem adds qty units of (productID, size) to the user's cart. A qty of zero means one.
func (s *LineStore) AddItem(ctx context.Context, userID string, productID uint, size string, qty int) (*Line, error) {
	if userID == "" {
		return nil, apperr.AuthRequired("sign in to add items to your cart")
	}
	size = strings.TrimSpace(size)
	if size == "" {
		return nil, apperr.Validation("select a size first")
	}
	if qty == 0 {
		qty = 1
	}
	if qty < 0 {
		return nil, apperr.Validation("quantity must be at least 1")
	}
	if productID == 0 {
		return nil, apperr.Validation("product is required")
	}

	line := &Line{
		UserID:    userID,
		ProductID: productID,
		Size:      size,
		Quantity:  qty,
	}
	if err := s.repo.IncrementOrCreateLine(ctx, line); err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{
			"user_id":    userID,
			"product_id": productID,
			"size":       size,
		}).Error("add to cart failed")
		return nil, apperr.Storage("failed to add item to cart", err)
	}

	s.log.WithFields(logrus.Fields{
		"user_id":  userID,
		"line_id":  line.ID,
		"quantity": line.Quantity,
	}).Debug("cart line merged")

	s.mutations.Notify(Mutation{Kind: MutationAdd, UserID: userID, LineID: line.ID})
	return line, nil
}

// UpdateQuantity sets a line's quantity. Values below one leave the line
// untouched; removing a line goes through RemoveLine only.
func (s *LineStore) UpdateQuantity(ctx context.Context, userID string, lineID uint, newQty int) error {
	if userID == "" {
		return apperr.AuthRequired("sign in to edit your cart")
	}
	if newQty < 1 {
		s.log.WithFields(logrus.Fields{"line_id": lineID, "quantity": newQty}).Debug("quantity below one ignored")
		return nil
	}

	if err := s.repo.SetLineQuantity(ctx, userID, lineID, newQty); err != nil {
		return apperr.Storage("failed to update cart item", err)
	}

	s.mutations.Notify(Mutation{Kind: MutationUpdate, UserID: userID, LineID: lineID})
	return nil
}

// RemoveLine deletes a line. Removing an absent line is not an error.
func (s *LineStore) RemoveLine(ctx context.Context, userID string, lineID uint) error {
	if userID == "" {
		return apperr.AuthRequired("sign in to edit your cart")
	}

	if err := s.repo.DeleteLine(ctx, userID, lineID); err != nil {
		return apperr.Storage("failed to remove cart item", err)
	}

	s.mutations.Notify(Mutation{Kind: MutationRemove, UserID: userID, LineID: lineID})
	return nil
}
