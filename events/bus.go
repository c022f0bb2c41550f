/*
Package events announces balance changes to interested consumers.

PURPOSE:
  When the Synchronizer persists a recomputed customer balance it
  publishes a customer.balance_updated event carrying the committed
  value. The bus is an external collaborator from the engine's point of
  view: publish failure is a notification-delivery gap, never a
  correctness failure, and must not roll back the balance write.

IMPLEMENTATIONS:
  Memory: In-process fan-out to subscribers (tests, dev mode, desktop)
  Nop:    Discards events (maintenance CLIs)
*/
package events

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// CustomerBalanceUpdated is published after a denormalized customer
// balance has been committed. Payload is the post-sync value.
const CustomerBalanceUpdated = "customer.balance_updated"

// Event is a balance-change notification.
type Event struct {
	Name       string
	CustomerID int64
	Balance    decimal.Decimal
	At         time.Time
}

// Bus delivers events to consumers. Publish must only be called after the
// state the event describes has been committed.
type Bus interface {
	Publish(ctx context.Context, e Event) error
}

// =============================================================================
// MEMORY BUS - In-process implementation
// =============================================================================

// Memory fans events out to registered subscribers and keeps a history
// for inspection. Safe for concurrent use.
type Memory struct {
	mu     sync.RWMutex
	events []Event
	subs   []func(Event)
}

func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Publish(_ context.Context, e Event) error {
	m.mu.Lock()
	m.events = append(m.events, e)
	subs := make([]func(Event), len(m.subs))
	copy(subs, m.subs)
	m.mu.Unlock()

	for _, fn := range subs {
		fn(e)
	}
	return nil
}

// Subscribe registers fn to be called synchronously for every published
// event. Subscribers must not block.
func (m *Memory) Subscribe(fn func(Event)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs = append(m.subs, fn)
}

// Events returns a copy of everything published so far.
func (m *Memory) Events() []Event {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Event, len(m.events))
	copy(out, m.events)
	return out
}

// =============================================================================
// NOP BUS
// =============================================================================

// Nop discards all events. Used by one-shot maintenance commands where
// nothing is listening.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
