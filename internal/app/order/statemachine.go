// Package order holds the explicit transition table governing an order's
// lifecycle. Every state change goes through Machine.Fire; guard failures
// leave the order untouched.
package order

import (
	"context"
	"errors"
	"fmt"

	"github.com/skillmarket/backend/internal/app/entity"
	"github.com/skillmarket/backend/internal/app/storage"
)

var ErrInvalidTransition = errors.New("invalid order transition")

type Event string

const (
	EventAssign   Event = "assign"
	EventStart    Event = "start"
	EventDelay    Event = "delay"
	EventDispute  Event = "dispute"
	EventComplete Event = "complete"
	EventReassign Event = "reassign"
)

type transition struct {
	sources []entity.OrderState
	target  entity.OrderState
	guard   func(o *entity.Order, workerID *int64) error
}

var table = map[Event]transition{
	EventAssign: {
		sources: []entity.OrderState{entity.OrderOpen, entity.OrderReAssigned},
		target:  entity.OrderAssigned,
		guard: func(o *entity.Order, workerID *int64) error {
			if workerID == nil && !o.WorkerID.Valid {
				return fmt.Errorf("%w: order %d has no worker", ErrInvalidTransition, o.OrderID)
			}
			return nil
		},
	},
	EventStart: {
		sources: []entity.OrderState{entity.OrderAssigned},
		target:  entity.OrderInProgress,
	},
	EventDelay: {
		sources: []entity.OrderState{entity.OrderInProgress},
		target:  entity.OrderDelayed,
	},
	EventDispute: {
		sources: []entity.OrderState{entity.OrderAssigned, entity.OrderInProgress, entity.OrderDelayed},
		target:  entity.OrderDisputed,
	},
	EventComplete: {
		sources: []entity.OrderState{entity.OrderInProgress, entity.OrderDelayed},
		target:  entity.OrderComplete,
	},
	EventReassign: {
		sources: []entity.OrderState{entity.OrderAssigned, entity.OrderInProgress, entity.OrderDisputed, entity.OrderDelayed},
		target:  entity.OrderReAssigned,
	},
}

type Machine struct {
	repo storage.Repository
}

func NewMachine(repo storage.Repository) *Machine {
	return &Machine{repo: repo}
}

// Fire validates ev against the transition table and applies it atomically.
// workerID is consulted by the assign guard and written together with the
// state; for every other event it must be nil.
func (m *Machine) Fire(ctx context.Context, orderID int64, ev Event, workerID *int64) (entity.Order, error) {
	o, err := m.repo.GetOrder(ctx, orderID)
	if err != nil {
		return o, err
	}

	t, ok := table[ev]
	if !ok {
		return o, fmt.Errorf("%w: unknown event %q", ErrInvalidTransition, ev)
	}

	allowed := false
	for _, s := range t.sources {
		if o.State == s {
			allowed = true
			break
		}
	}
	if !allowed {
		return o, fmt.Errorf("%w: %s from %s", ErrInvalidTransition, ev, o.State)
	}

	if t.guard != nil {
		if err := t.guard(&o, workerID); err != nil {
			return o, err
		}
	}

	if err := m.repo.TransitionOrder(ctx, orderID, o.State, t.target, workerID); err != nil {
		if errors.Is(err, storage.ErrStaleState) {
			return o, fmt.Errorf("%w: %s raced with a concurrent transition", ErrInvalidTransition, ev)
		}
		return o, err
	}

	return m.repo.GetOrder(ctx, orderID)
}
