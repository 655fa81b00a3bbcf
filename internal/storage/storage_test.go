package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	logx "pkkwatch/pkg/logx"
)

// stores lists every Store implementation under the same contract tests.
func stores(t *testing.T) map[string]Store {
	t.Helper()
	sq, err := Open(Config{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "test.db")}, logx.Nop())
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = sq.Close() })
	return map[string]Store{
		"sqlite": sq,
		"memory": NewMemory(),
	}
}

func TestSubscriptionRoundTrip(t *testing.T) {
	t.Parallel()
	for name, st := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			err := st.PutSubscription(ctx, SubscriptionRecord{
				ID: "id-1", PKK: "P1", Name: "Jan", Surname: "Kowalski", CreatedAt: time.Now(),
			})
			if err != nil {
				t.Fatalf("PutSubscription error: %v", err)
			}

			subs, err := st.ListSubscriptions(ctx)
			if err != nil {
				t.Fatalf("ListSubscriptions error: %v", err)
			}
			if len(subs) != 1 || subs[0].PKK != "P1" || subs[0].Surname != "Kowalski" {
				t.Fatalf("subscriptions = %+v", subs)
			}

			if err := st.DeleteSubscription(ctx, "P1"); err != nil {
				t.Fatalf("DeleteSubscription error: %v", err)
			}
			subs, err = st.ListSubscriptions(ctx)
			if err != nil || len(subs) != 0 {
				t.Fatalf("after delete: (%+v, %v)", subs, err)
			}
		})
	}
}

func TestSubscriptionUpsertKeepsIdentity(t *testing.T) {
	t.Parallel()
	for name, st := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			created := time.Now().Add(-time.Hour)
			if err := st.PutSubscription(ctx, SubscriptionRecord{ID: "id-1", PKK: "P1", Name: "Jan", Surname: "K", CreatedAt: created}); err != nil {
				t.Fatalf("first put: %v", err)
			}
			if err := st.PutSubscription(ctx, SubscriptionRecord{ID: "id-2", PKK: "P1", Name: "Janusz", Surname: "K", CreatedAt: time.Now()}); err != nil {
				t.Fatalf("second put: %v", err)
			}

			subs, err := st.ListSubscriptions(ctx)
			if err != nil || len(subs) != 1 {
				t.Fatalf("subscriptions = (%+v, %v), want one row", subs, err)
			}
			if subs[0].ID != "id-1" {
				t.Fatalf("upsert replaced id: %q", subs[0].ID)
			}
			if subs[0].Name != "Janusz" {
				t.Fatalf("upsert did not update name: %q", subs[0].Name)
			}
		})
	}
}

func TestListSubscriptionsInsertionOrder(t *testing.T) {
	t.Parallel()
	for name, st := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			base := time.Now()
			for i, pkk := range []string{"P3", "P1", "P2"} {
				err := st.PutSubscription(ctx, SubscriptionRecord{
					ID: pkk + "-id", PKK: pkk, Name: "A", Surname: "B",
					CreatedAt: base.Add(time.Duration(i) * time.Second),
				})
				if err != nil {
					t.Fatalf("put %s: %v", pkk, err)
				}
			}

			subs, err := st.ListSubscriptions(ctx)
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			want := []string{"P3", "P1", "P2"}
			for i, rec := range subs {
				if rec.PKK != want[i] {
					t.Fatalf("order[%d] = %s, want %s", i, rec.PKK, want[i])
				}
			}
		})
	}
}

func TestListSubscriptionsOrderWithSubsecondTimes(t *testing.T) {
	t.Parallel()
	for name, st := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			// Fractions with different digit counts within one second:
			// chronological order is .020 < .100 < .150, but trimmed
			// RFC 3339 strings (".02Z" < ".15Z" < ".1Z") sort differently.
			base := time.Date(2026, 8, 27, 12, 0, 5, 0, time.UTC)
			subs := []SubscriptionRecord{
				{ID: "id-1", PKK: "P1", Name: "A", Surname: "B", CreatedAt: base.Add(100 * time.Millisecond)},
				{ID: "id-2", PKK: "P2", Name: "A", Surname: "B", CreatedAt: base.Add(150 * time.Millisecond)},
				{ID: "id-3", PKK: "P3", Name: "A", Surname: "B", CreatedAt: base.Add(20 * time.Millisecond)},
			}
			for _, rec := range subs {
				if err := st.PutSubscription(ctx, rec); err != nil {
					t.Fatalf("put %s: %v", rec.PKK, err)
				}
			}

			got, err := st.ListSubscriptions(ctx)
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			want := []string{"P3", "P1", "P2"}
			for i, rec := range got {
				if rec.PKK != want[i] {
					t.Fatalf("order[%d] = %s, want %s", i, rec.PKK, want[i])
				}
			}
		})
	}
}

func TestContactRoundTrip(t *testing.T) {
	t.Parallel()
	for name, st := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			err := st.PutContact(ctx, ContactRecord{ID: "c-1", PKK: "P1", Email: "jan@example.com", UpdatedAt: time.Now()})
			if err != nil {
				t.Fatalf("PutContact error: %v", err)
			}
			// Upsert by PKK swaps the channels.
			err = st.PutContact(ctx, ContactRecord{ID: "c-2", PKK: "P1", PushToken: "tok", UpdatedAt: time.Now()})
			if err != nil {
				t.Fatalf("PutContact upsert error: %v", err)
			}

			cons, err := st.ListContacts(ctx)
			if err != nil || len(cons) != 1 {
				t.Fatalf("contacts = (%+v, %v), want one row", cons, err)
			}
			if cons[0].Email != "" || cons[0].PushToken != "tok" {
				t.Fatalf("contact after upsert = %+v", cons[0])
			}
		})
	}
}

func TestWatermarkRoundTrip(t *testing.T) {
	t.Parallel()
	for name, st := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if err := st.PutWatermark(ctx, WatermarkRecord{ID: "w-1", PKK: "P1", HistoryLen: 2, UpdatedAt: time.Now()}); err != nil {
				t.Fatalf("PutWatermark error: %v", err)
			}
			if err := st.PutWatermark(ctx, WatermarkRecord{ID: "w-2", PKK: "P1", HistoryLen: 3, UpdatedAt: time.Now()}); err != nil {
				t.Fatalf("PutWatermark upsert error: %v", err)
			}

			marks, err := st.ListWatermarks(ctx)
			if err != nil || len(marks) != 1 {
				t.Fatalf("watermarks = (%+v, %v), want one row", marks, err)
			}
			if marks[0].HistoryLen != 3 {
				t.Fatalf("history_len = %d, want 3", marks[0].HistoryLen)
			}
		})
	}
}

func TestDeleteAbsentRowIsNotAnError(t *testing.T) {
	t.Parallel()
	for name, st := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if err := st.DeleteSubscription(ctx, "absent"); err != nil {
				t.Fatalf("DeleteSubscription: %v", err)
			}
			if err := st.DeleteContact(ctx, "absent"); err != nil {
				t.Fatalf("DeleteContact: %v", err)
			}
			if err := st.DeleteWatermark(ctx, "absent"); err != nil {
				t.Fatalf("DeleteWatermark: %v", err)
			}
		})
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	t.Parallel()
	if _, err := Open(Config{Driver: "litedb"}, logx.Nop()); err == nil {
		t.Fatal("unknown driver accepted")
	}
}

func TestSQLiteSurvivesReopen(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "reopen.db")

	st, err := Open(Config{Driver: "sqlite", Path: path, BusyTimeout: time.Second}, logx.Nop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := st.PutSubscription(ctx, SubscriptionRecord{ID: "id-1", PKK: "P1", Name: "Jan", Surname: "K"}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	st, err = Open(Config{Driver: "sqlite", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer st.Close()

	subs, err := st.ListSubscriptions(ctx)
	if err != nil || len(subs) != 1 || subs[0].PKK != "P1" {
		t.Fatalf("after reopen: (%+v, %v)", subs, err)
	}
}
