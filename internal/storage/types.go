package storage

import (
	"context"
	"time"
)

// Config configures storage.
//
// Driver values:
//   - "sqlite": SQLite database file (default)
//   - "memory": non-durable in-process store (dev/tests)
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// SubscriptionRecord is one watched PKK case.
type SubscriptionRecord struct {
	ID        string
	PKK       string
	Name      string
	Surname   string
	CreatedAt time.Time
}

// ContactRecord holds the notification channels for one PKK.
// At least one of Email/PushToken is set.
type ContactRecord struct {
	ID        string
	PKK       string
	Email     string
	PushToken string
	UpdatedAt time.Time
}

// WatermarkRecord is the last observed status-history length for one PKK.
type WatermarkRecord struct {
	ID         string
	PKK        string
	HistoryLen int
	UpdatedAt  time.Time
}

// Store is the persistence API used by the registry.
//
// Puts are upserts keyed by PKK. Deletes of absent rows are not errors;
// unsubscribe is deliberately lenient.
type Store interface {
	PutSubscription(ctx context.Context, rec SubscriptionRecord) error
	DeleteSubscription(ctx context.Context, pkk string) error
	ListSubscriptions(ctx context.Context) ([]SubscriptionRecord, error)

	PutContact(ctx context.Context, rec ContactRecord) error
	DeleteContact(ctx context.Context, pkk string) error
	ListContacts(ctx context.Context) ([]ContactRecord, error)

	PutWatermark(ctx context.Context, rec WatermarkRecord) error
	DeleteWatermark(ctx context.Context, pkk string) error
	ListWatermarks(ctx context.Context) ([]WatermarkRecord, error)

	Close() error
}
