// Package store provides in-memory implementations of the canteen
// persistence and collaborator contracts, for tests and dev.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/warp/canteen-engine/canteen"
)

// =============================================================================
// MEMORY CANCELLATION STORE
// =============================================================================

type Memory struct {
	mu      sync.RWMutex
	records map[canteen.CancellationID]canteen.Cancellation
	triples map[triple]canteen.CancellationID
}

type triple struct {
	ChildID  canteen.ChildID
	Date     canteen.Day
	MealType canteen.MealType
}

func NewMemory() *Memory {
	return &Memory{
		records: make(map[canteen.CancellationID]canteen.Cancellation),
		triples: make(map[triple]canteen.CancellationID),
	}
}

func (m *Memory) Insert(_ context.Context, c canteen.Cancellation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := triple{ChildID: c.ChildID, Date: c.Date, MealType: c.MealType}
	if existing, ok := m.triples[k]; ok {
		return &canteen.DuplicateCancellationError{
			ChildID:    c.ChildID,
			Date:       c.Date,
			MealType:   c.MealType,
			ExistingID: existing,
		}
	}
	m.records[c.ID] = c
	m.triples[k] = c.ID
	return nil
}

func (m *Memory) Get(_ context.Context, id canteen.CancellationID) (*canteen.Cancellation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.records[id]
	if !ok {
		return nil, canteen.ErrCancellationNotFound
	}
	return &c, nil
}

func (m *Memory) Delete(_ context.Context, id canteen.CancellationID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.records[id]
	if !ok {
		return canteen.ErrCancellationNotFound
	}
	delete(m.records, id)
	delete(m.triples, triple{ChildID: c.ChildID, Date: c.Date, MealType: c.MealType})
	return nil
}

func (m *Memory) List(_ context.Context, f canteen.Filter) ([]canteen.Cancellation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []canteen.Cancellation
	for _, c := range m.records {
		if f.Matches(c) {
			result = append(result, c)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].Date.Equal(result[j].Date) {
			return result[i].Date.Before(result[j].Date)
		}
		if result[i].MealType != result[j].MealType {
			return result[i].MealType < result[j].MealType
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

func (m *Memory) MarkRefunded(_ context.Context, ids []canteen.CancellationID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	count := 0
	for _, id := range ids {
		c, ok := m.records[id]
		if !ok || c.Refunded {
			continue
		}
		c.Refunded = true
		m.records[id] = c
		count++
	}
	return count, nil
}

// =============================================================================
// MEMORY DIRECTORY - Children and groups
// =============================================================================

type Directory struct {
	mu       sync.RWMutex
	children map[canteen.ChildID]canteen.Child
	groups   map[canteen.GroupID]canteen.Group
}

func NewDirectory() *Directory {
	return &Directory{
		children: make(map[canteen.ChildID]canteen.Child),
		groups:   make(map[canteen.GroupID]canteen.Group),
	}
}

func (d *Directory) PutChild(c canteen.Child) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.children[c.ID] = c
}

func (d *Directory) PutGroup(g canteen.Group) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.groups[g.ID] = g
}

func (d *Directory) GetChild(_ context.Context, id canteen.ChildID) (*canteen.Child, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	c, ok := d.children[id]
	if !ok {
		return nil, canteen.ErrChildNotFound
	}
	return &c, nil
}

func (d *Directory) ChildrenOfGuardian(_ context.Context, guardianID string) ([]canteen.Child, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var result []canteen.Child
	for _, c := range d.children {
		if c.GuardianID == guardianID {
			result = append(result, c)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (d *Directory) GetGroup(_ context.Context, id canteen.GroupID) (*canteen.Group, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	g, ok := d.groups[id]
	if !ok {
		return nil, nil // unknown group is fail-soft, not an error
	}
	return &g, nil
}

// =============================================================================
// MEMORY PAYMENT SINK
// =============================================================================

type PaymentLog struct {
	mu       sync.RWMutex
	payments []canteen.Payment
}

func NewPaymentLog() *PaymentLog {
	return &PaymentLog{}
}

func (p *PaymentLog) CreatePayment(_ context.Context, payment canteen.Payment) (canteen.Payment, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.payments = append(p.payments, payment)
	return payment, nil
}

// Payments returns a copy of every payment recorded so far.
func (p *PaymentLog) Payments() []canteen.Payment {
	p.mu.RLock()
	defer p.mu.RUnlock()
	result := make([]canteen.Payment, len(p.payments))
	copy(result, p.payments)
	return result
}
