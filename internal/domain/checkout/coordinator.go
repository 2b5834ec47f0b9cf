// internal/domain/checkout/coordinator.go
package checkout

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/your-org/storefront-engine/internal/domain/cart"
	"github.com/your-org/storefront-engine/internal/domain/order"
	"github.com/your-org/storefront-engine/internal/pkg/apperr"
	"github.com/your-org/storefront-engine/internal/pkg/observe"
)

// State of a checkout attempt
type State string

const (
	StateIdle       State = "idle"
	StateValidating State = "validating"
	StateSubmitting State = "submitting"
	StateSucceeded  State = "succeeded"
	StateFailed     State = "failed"
)

// HistoryPath is where the client goes after a successful checkout
const HistoryPath = "/user/checkout-history"

// ErrCheckoutInFlight is returned when a checkout is started while another one
// for the same session has not finished.
var ErrCheckoutInFlight = apperr.New(apperr.KindBusy, "checkout already in progress")

// Params are the arguments of the atomic checkout procedure
type Params struct {
	UserID        string
	Address       string
	PaymentMethod order.PaymentMethod
	Sizes         string // sizes of all lines joined with ", "
}

// Procedure creates an order from the user's cart in one transaction: it
// copies every line with the current unit price into the order and empties
// the cart. It returns the new order id.
type Procedure interface {
	CreateCheckout(ctx context.Context, p Params) (orderID string, err error)
}

// CartView is the part of the cart aggregate view the coordinator reads
type CartView interface {
	UserID() string
	Snapshot() cart.Snapshot
	Refresh(ctx context.Context) error
}

// Request is a checkout submission
type Request struct {
	Address       string `json:"address"`
	PaymentMethod string `json:"payment_method"`
}

// Result describes a placed order
type Result struct {
	OrderID  string `json:"order_id"`
	Redirect string `json:"redirect"`
	Subtotal int64  `json:"subtotal"`
	Shipping int64  `json:"shipping"`
	Total    int64  `json:"total"`
}

// Transition is delivered to observers on every state change
type Transition struct {
	From    State     `json:"from"`
	To      State     `json:"to"`
	OrderID string    `json:"order_id,omitempty"`
	Err     error     `json:"-"`
	At      time.Time `json:"at"`
}

// Coordinator turns a session's cart into an order, at most one attempt at a time
type Coordinator struct {
	view   CartView
	proc   Procedure
	events EventPublisher
	log    logrus.FieldLogger
	now    func() time.Time

	mu        sync.Mutex
	state     State
	lastErr   error
	lastOrder string

	observers observe.Subject[Transition]
}

// NewCoordinator creates a coordinator for the owner of view. events may be nil.
func NewCoordinator(view CartView, proc Procedure, events EventPublisher, log logrus.FieldLogger) *Coordinator {
	if events == nil {
		events = NoopPublisher{}
	}
	return &Coordinator{
		view:   view,
		proc:   proc,
		events: events,
		log:    log.WithFields(logrus.Fields{"component": "checkout", "user_id": view.UserID()}),
		now:    time.Now,
		state:  StateIdle,
	}
}

// Subscribe registers fn to receive every state transition
func (c *Coordinator) Subscribe(fn func(Transition)) (unsubscribe func()) {
	return c.observers.Subscribe(fn)
}

// State returns the current state
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Status is a point-in-time view of the coordinator
type Status struct {
	State     State  `json:"state"`
	LastError string `json:"last_error,omitempty"`
	LastOrder string `json:"last_order_id,omitempty"`
}

// Status returns the state with the outcome of the last attempt
func (c *Coordinator) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := Status{State: c.state, LastOrder: c.lastOrder}
	if c.lastErr != nil {
		st.LastError = c.lastErr.Error()
	}
	return st
}

// Checkout validates the cart and submits it to the checkout procedure.
// Errors from the procedure are returned unchanged; the cart is left as it was.
func (c *Coordinator) Checkout(ctx context.Context, req Request) (*Result, error) {
	if err := c.begin(); err != nil {
		return nil, err
	}

	snap := c.view.Snapshot()
	params, err := c.validate(snap, req)
	if err != nil {
		c.fail(StateValidating, err)
		return nil, err
	}

	c.transition(StateValidating, StateSubmitting, "", nil)

	orderID, err := c.proc.CreateCheckout(ctx, params)
	if err != nil {
		c.log.WithError(err).Warn("checkout failed")
		c.fail(StateSubmitting, err)
		return nil, err
	}

	c.mu.Lock()
	c.lastErr = nil
	c.lastOrder = orderID
	c.mu.Unlock()
	c.transition(StateSubmitting, StateSucceeded, orderID, nil)

	c.log.WithFields(logrus.Fields{
		"order_id":       orderID,
		"lines":          len(snap.Items),
		"total":          snap.Totals.TotalAmount,
		"payment_method": params.PaymentMethod,
	}).Info("order placed")

	// The procedure emptied the cart server-side; confirm it instead of
	// clearing locally.
	if err := c.view.Refresh(ctx); err != nil {
		c.log.WithError(err).Warn("cart refresh after checkout failed")
	}

	if err := c.events.PublishOrderPlaced(ctx, OrderPlaced{
		OrderID:       orderID,
		UserID:        params.UserID,
		PaymentMethod: string(params.PaymentMethod),
		Total:         snap.Totals.TotalAmount,
		PlacedAt:      c.now().UTC(),
	}); err != nil {
		c.log.WithError(err).WithField("order_id", orderID).Warn("failed to publish order placed event")
	}

	return &Result{
		OrderID:  orderID,
		Redirect: HistoryPath,
		Subtotal: snap.Totals.SubTotal,
		Shipping: snap.Totals.ShippingCost,
		Total:    snap.Totals.TotalAmount,
	}, nil
}

func (c *Coordinator) begin() error {
	c.mu.Lock()
	if c.state == StateValidating || c.state == StateSubmitting {
		c.mu.Unlock()
		return ErrCheckoutInFlight
	}
	from := c.state
	c.state = StateValidating
	c.mu.Unlock()

	c.observers.Notify(Transition{From: from, To: StateValidating, At: c.now()})
	return nil
}

func (c *Coordinator) validate(snap cart.Snapshot, req Request) (Params, error) {
	userID := c.view.UserID()
	if userID == "" {
		return Params{}, apperr.AuthRequired("sign in to check out")
	}
	if len(snap.Items) == 0 {
		return Params{}, apperr.EmptyCart("your cart is empty")
	}
	address := strings.TrimSpace(req.Address)
	if address == "" {
		return Params{}, apperr.Validation("shipping address is required")
	}
	method := order.PaymentMethod(strings.ToLower(strings.TrimSpace(req.PaymentMethod)))
	if !method.Valid() {
		return Params{}, apperr.Validation("payment method must be one of transfer, cod, qris")
	}

	return Params{
		UserID:        userID,
		Address:       address,
		PaymentMethod: method,
		Sizes:         strings.Join(snap.Sizes(), ", "),
	}, nil
}

// fail records err and moves through Failed back to Idle
func (c *Coordinator) fail(from State, err error) {
	c.mu.Lock()
	c.lastErr = err
	c.mu.Unlock()

	c.transition(from, StateFailed, "", err)
	c.transition(StateFailed, StateIdle, "", nil)
}

func (c *Coordinator) transition(from, to State, orderID string, err error) {
	c.mu.Lock()
	c.state = to
	c.mu.Unlock()

	c.observers.Notify(Transition{From: from, To: to, OrderID: orderID, Err: err, At: c.now()})
}
