// Package registry owns the watcher's shared mutable state: the set of
// subscribed PKK cases, their notification contacts, and the per-case
// status-history watermarks.
//
// State lives in memory behind one mutex and is mirrored to storage on
// every mutation. Both the HTTP request path and the poll cycle go
// through this object, so nothing else in the program holds case state.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"pkkwatch/internal/storage"
	logx "pkkwatch/pkg/logx"
)

var (
	// ErrDuplicateSubscription is returned by Add when the PKK is already watched.
	ErrDuplicateSubscription = errors.New("pkk already subscribed")
	// ErrNotSubscribed is returned when an operation names an unknown PKK.
	ErrNotSubscribed = errors.New("pkk not subscribed")
	// ErrContactMissing means an active subscription has no contact row.
	// Every subscribe stores a contact, so this is an internal-consistency
	// fault, not a user-facing condition.
	ErrContactMissing = errors.New("contact missing for subscription")
)

// Subscription identifies one watched case.
type Subscription struct {
	PKK     string
	Name    string
	Surname string
}

// Contact holds the notification channels for one case.
type Contact struct {
	PKK       string
	Email     string
	PushToken string
}

// HasChannel reports whether at least one delivery channel is configured.
func (c Contact) HasChannel() bool { return c.Email != "" || c.PushToken != "" }

// Registry is safe for concurrent use.
type Registry struct {
	store storage.Store
	log   logx.Logger

	mu       sync.Mutex
	order    []string // insertion order of PKKs, poll cycles iterate in this order
	subs     map[string]Subscription
	contacts map[string]Contact
	marks    map[string]int
}

// Load builds the registry from persisted state.
func Load(ctx context.Context, store storage.Store, log logx.Logger) (*Registry, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	r := &Registry{
		store:    store,
		log:      log,
		subs:     map[string]Subscription{},
		contacts: map[string]Contact{},
		marks:    map[string]int{},
	}

	subs, err := store.ListSubscriptions(ctx)
	if err != nil {
		return nil, fmt.Errorf("load subscriptions: %w", err)
	}
	for _, rec := range subs {
		r.subs[rec.PKK] = Subscription{PKK: rec.PKK, Name: rec.Name, Surname: rec.Surname}
		r.order = append(r.order, rec.PKK)
	}

	contacts, err := store.ListContacts(ctx)
	if err != nil {
		return nil, fmt.Errorf("load contacts: %w", err)
	}
	for _, rec := range contacts {
		r.contacts[rec.PKK] = Contact{PKK: rec.PKK, Email: rec.Email, PushToken: rec.PushToken}
	}

	marks, err := store.ListWatermarks(ctx)
	if err != nil {
		return nil, fmt.Errorf("load watermarks: %w", err)
	}
	for _, rec := range marks {
		r.marks[rec.PKK] = rec.HistoryLen
	}

	log.Info("registry loaded",
		logx.Int("subscriptions", len(r.subs)),
		logx.Int("contacts", len(r.contacts)),
		logx.Int("watermarks", len(r.marks)))
	return r, nil
}

// Add inserts a new subscription together with its initial watermark.
// The watermark baseline comes from the first successful status fetch;
// no notification is ever sent for it.
func (r *Registry) Add(ctx context.Context, sub Subscription, initialLen int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.subs[sub.PKK]; ok {
		return ErrDuplicateSubscription
	}

	now := time.Now()
	if err := r.store.PutSubscription(ctx, storage.SubscriptionRecord{
		ID: uuid.NewString(), PKK: sub.PKK, Name: sub.Name, Surname: sub.Surname, CreatedAt: now,
	}); err != nil {
		return fmt.Errorf("persist subscription: %w", err)
	}
	if err := r.store.PutWatermark(ctx, storage.WatermarkRecord{
		ID: uuid.NewString(), PKK: sub.PKK, HistoryLen: initialLen, UpdatedAt: now,
	}); err != nil {
		// Roll back the subscription row so the invariant "every subscription
		// has exactly one watermark" holds across restarts.
		_ = r.store.DeleteSubscription(ctx, sub.PKK)
		return fmt.Errorf("persist watermark: %w", err)
	}

	r.subs[sub.PKK] = sub
	r.order = append(r.order, sub.PKK)
	r.marks[sub.PKK] = initialLen
	return nil
}

// Remove drops a subscription, its contact and its watermark.
// Storage deletion failures are logged, not returned: the in-memory state
// is authoritative for "subscribed or not", so the unsubscribe still
// succeeds from the caller's point of view.
func (r *Registry) Remove(ctx context.Context, pkk string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.subs[pkk]; !ok {
		return ErrNotSubscribed
	}

	delete(r.subs, pkk)
	delete(r.contacts, pkk)
	delete(r.marks, pkk)
	for i, p := range r.order {
		if p == pkk {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}

	if err := r.store.DeleteSubscription(ctx, pkk); err != nil {
		r.log.Warn("subscription delete failed", logx.String("pkk", pkk), logx.Err(err))
	}
	if err := r.store.DeleteContact(ctx, pkk); err != nil {
		r.log.Warn("contact delete failed", logx.String("pkk", pkk), logx.Err(err))
	}
	if err := r.store.DeleteWatermark(ctx, pkk); err != nil {
		r.log.Warn("watermark delete failed", logx.String("pkk", pkk), logx.Err(err))
	}
	return nil
}

// Contains reports whether the PKK is currently watched.
func (r *Registry) Contains(pkk string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.subs[pkk]
	return ok
}

// List returns a snapshot of all subscriptions in insertion order.
// Callers iterate the copy, so a concurrent unsubscribe cannot corrupt a
// running poll cycle.
func (r *Registry) List() []Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Subscription, 0, len(r.order))
	for _, pkk := range r.order {
		if sub, ok := r.subs[pkk]; ok {
			out = append(out, sub)
		}
	}
	return out
}

// Get returns the subscription for a PKK.
func (r *Registry) Get(pkk string) (Subscription, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sub, ok := r.subs[pkk]
	return sub, ok
}

// UpsertContact overwrites the contact for a PKK. Idempotent.
func (r *Registry) UpsertContact(ctx context.Context, c Contact) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.store.PutContact(ctx, storage.ContactRecord{
		ID: uuid.NewString(), PKK: c.PKK, Email: c.Email, PushToken: c.PushToken, UpdatedAt: time.Now(),
	}); err != nil {
		return fmt.Errorf("persist contact: %w", err)
	}
	r.contacts[c.PKK] = c
	return nil
}

// Contact returns the contact for a PKK, or ErrContactMissing.
func (r *Registry) Contact(pkk string) (Contact, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.contacts[pkk]
	if !ok {
		return Contact{}, ErrContactMissing
	}
	return c, nil
}

// Watermark returns the last observed history length for a PKK.
// ok is false when no baseline has been established yet.
func (r *Registry) Watermark(pkk string) (n int, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok = r.marks[pkk]
	return n, ok
}

// SetWatermark persists the new history length, then updates memory.
// Persist-first ordering: if the store write fails the in-memory mark is
// left untouched, so the next cycle re-detects the change and retries.
func (r *Registry) SetWatermark(ctx context.Context, pkk string, n int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.subs[pkk]; !ok {
		return ErrNotSubscribed
	}
	if err := r.store.PutWatermark(ctx, storage.WatermarkRecord{
		ID: uuid.NewString(), PKK: pkk, HistoryLen: n, UpdatedAt: time.Now(),
	}); err != nil {
		return fmt.Errorf("persist watermark: %w", err)
	}
	r.marks[pkk] = n
	return nil
}
