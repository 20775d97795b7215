package orders

import (
	"errors"
	"fmt"

	"github.com/gastrodesk/gastrodesk/app/models"
)

// ErrOrderNotFound is returned when the referenced order does not exist.
var ErrOrderNotFound = errors.New("order not found")

// TerminalStateError is returned when an order has no legal successor
// (it already reached delivered or canceled).
type TerminalStateError struct {
	Current string
}

func (e *TerminalStateError) Error() string {
	return fmt.Sprintf("order status %q is terminal", e.Current)
}

// ConflictError is returned when the requested status is not the single
// legal successor of the current one. It carries both so a stale caller
// can resynchronize instead of retrying blindly.
type ConflictError struct {
	Current     string
	AllowedNext string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("order is %q, only %q is allowed next", e.Current, e.AllowedNext)
}

// forwardTransitions is the fixed fulfillment chain. Canceled is not part
// of the chain; it is applied through Cancel as an explicit action.
var forwardTransitions = map[string]string{
	models.OrderStatusReceived:  models.OrderStatusPreparing,
	models.OrderStatusPreparing: models.OrderStatusReady,
	models.OrderStatusReady:     models.OrderStatusDelivered,
}

// NextStatus returns the single legal successor of current, if any.
func NextStatus(current string) (string, bool) {
	next, ok := forwardTransitions[current]
	return next, ok
}

// IsTerminal reports whether status admits no further transition.
func IsTerminal(status string) bool {
	return status == models.OrderStatusDelivered || status == models.OrderStatusCanceled
}

// Store is the minimal persistence surface the state machine needs. The
// conditional update must be atomic (update-if-status-matches) so two
// racing callers cannot both win the same transition.
type Store interface {
	GetOrderStatus(orderID uint) (string, error)
	UpdateOrderStatusIf(orderID uint, from, to string) (bool, error)
}

// Machine validates and applies order status transitions.
type Machine struct {
	store Store
}

func NewMachine(store Store) *Machine {
	return &Machine{store: store}
}

// Advance moves an order to requested, which must be the single legal
// successor of its current status. On a lost race the fresh status and
// allowed successor are reported via ConflictError.
func (m *Machine) Advance(orderID uint, requested string) error {
	current, err := m.store.GetOrderStatus(orderID)
	if err != nil {
		return err
	}

	next, ok := NextStatus(current)
	if !ok {
		return &TerminalStateError{Current: current}
	}
	if requested != next {
		return &ConflictError{Current: current, AllowedNext: next}
	}

	applied, err := m.store.UpdateOrderStatusIf(orderID, current, requested)
	if err != nil {
		return err
	}
	if !applied {
		// A concurrent caller won the transition. Re-read so the error
		// carries the status the caller should resynchronize against.
		fresh, err := m.store.GetOrderStatus(orderID)
		if err != nil {
			return err
		}
		freshNext, ok := NextStatus(fresh)
		if !ok {
			return &TerminalStateError{Current: fresh}
		}
		return &ConflictError{Current: fresh, AllowedNext: freshNext}
	}
	return nil
}

// Cancel terminates an order from any non-terminal state.
func (m *Machine) Cancel(orderID uint) error {
	current, err := m.store.GetOrderStatus(orderID)
	if err != nil {
		return err
	}
	if IsTerminal(current) {
		return &TerminalStateError{Current: current}
	}
	applied, err := m.store.UpdateOrderStatusIf(orderID, current, models.OrderStatusCanceled)
	if err != nil {
		return err
	}
	if !applied {
		fresh, err := m.store.GetOrderStatus(orderID)
		if err != nil {
			return err
		}
		if IsTerminal(fresh) {
			return &TerminalStateError{Current: fresh}
		}
		// Raced with a forward transition; cancel from the fresh state.
		return m.Cancel(orderID)
	}
	return nil
}
