package storage

import (
	"context"
	"sort"
	"sync"
)

// Memory is a non-durable Store. It backs the "memory" driver and the
// package tests; state is lost on process exit.
type Memory struct {
	mu    sync.Mutex
	subs  map[string]SubscriptionRecord
	cons  map[string]ContactRecord
	marks map[string]WatermarkRecord
}

func NewMemory() *Memory {
	return &Memory{
		subs:  map[string]SubscriptionRecord{},
		cons:  map[string]ContactRecord{},
		marks: map[string]WatermarkRecord{},
	}
}

func (m *Memory) PutSubscription(_ context.Context, rec SubscriptionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if old, ok := m.subs[rec.PKK]; ok {
		rec.ID = old.ID
		rec.CreatedAt = old.CreatedAt
	}
	m.subs[rec.PKK] = rec
	return nil
}

func (m *Memory) DeleteSubscription(_ context.Context, pkk string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.subs, pkk)
	return nil
}

func (m *Memory) ListSubscriptions(_ context.Context) ([]SubscriptionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SubscriptionRecord, 0, len(m.subs))
	for _, rec := range m.subs {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) PutContact(_ context.Context, rec ContactRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if old, ok := m.cons[rec.PKK]; ok {
		rec.ID = old.ID
	}
	m.cons[rec.PKK] = rec
	return nil
}

func (m *Memory) DeleteContact(_ context.Context, pkk string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.cons, pkk)
	return nil
}

func (m *Memory) ListContacts(_ context.Context) ([]ContactRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ContactRecord, 0, len(m.cons))
	for _, rec := range m.cons {
		out = append(out, rec)
	}
	return out, nil
}

func (m *Memory) PutWatermark(_ context.Context, rec WatermarkRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if old, ok := m.marks[rec.PKK]; ok {
		rec.ID = old.ID
	}
	m.marks[rec.PKK] = rec
	return nil
}

func (m *Memory) DeleteWatermark(_ context.Context, pkk string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.marks, pkk)
	return nil
}

func (m *Memory) ListWatermarks(_ context.Context) ([]WatermarkRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]WatermarkRecord, 0, len(m.marks))
	for _, rec := range m.marks {
		out = append(out, rec)
	}
	return out, nil
}

func (m *Memory) Close() error { return nil }
