package watch

import (
	"context"
	"testing"
	"time"

	"pkkwatch/internal/registry"
	"pkkwatch/internal/storage"
	logx "pkkwatch/pkg/logx"
)

func TestCycleUnchangedDoesNotNotify(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.subscribe(t, "P1", 2)

	// Two cycles with the same history length.
	same := fetchStep{snap: snapshotWithHistory("a", "b")}
	h.gw.script("P1", same, same)
	for i := 0; i < 2; i++ {
		if err := h.svc.RunCycle(context.Background()); err != nil {
			t.Fatalf("RunCycle error: %v", err)
		}
	}

	if h.disp.changeCount() != 0 {
		t.Fatalf("dispatched %d notifications, want 0", h.disp.changeCount())
	}
	if n, _ := h.reg.Watermark("P1"); n != 2 {
		t.Fatalf("watermark = %d, want unchanged 2", n)
	}
}

func TestCycleChangeNotifiesOnceAndAdvancesWatermark(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.subscribe(t, "PKK123", 2)

	// Poll 1: history grew to 3 -> one notification with entry #3's text.
	h.gw.script("PKK123", fetchStep{snap: snapshotWithHistory("a", "b", "wydano prawo jazdy")})
	if err := h.svc.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle error: %v", err)
	}
	if h.disp.changeCount() != 1 {
		t.Fatalf("dispatched %d notifications, want 1", h.disp.changeCount())
	}
	if got := h.disp.changes[0]; got.pkk != "PKK123" || got.desc != "wydano prawo jazdy" {
		t.Fatalf("notification = %+v, want latest entry description", got)
	}
	if n, _ := h.reg.Watermark("PKK123"); n != 3 {
		t.Fatalf("watermark = %d, want 3", n)
	}

	// Poll 2: same length again -> nothing new.
	h.gw.script("PKK123", fetchStep{snap: snapshotWithHistory("a", "b", "wydano prawo jazdy")})
	if err := h.svc.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle error: %v", err)
	}
	if h.disp.changeCount() != 1 {
		t.Fatalf("dispatched %d notifications after repeat poll, want still 1", h.disp.changeCount())
	}
}

func TestCycleSkipsUnavailableCase(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.subscribe(t, "P1", 2)
	// Nothing more scripted: both fetch attempts fail.

	if err := h.svc.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle error: %v", err)
	}

	if h.disp.changeCount() != 0 {
		t.Fatal("unavailable case produced a notification")
	}
	if n, _ := h.reg.Watermark("P1"); n != 2 {
		t.Fatalf("watermark = %d, want untouched 2", n)
	}
}

func TestCycleBadCaseDoesNotBlockOthers(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.subscribe(t, "P1", 1)
	h.subscribe(t, "P2", 1)

	// P1 stays unavailable; P2 grows.
	h.gw.script("P2", fetchStep{snap: snapshotWithHistory("a", "b")})
	if err := h.svc.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle error: %v", err)
	}

	if h.disp.changeCount() != 1 {
		t.Fatalf("dispatched %d notifications, want 1 (for P2)", h.disp.changeCount())
	}
	if h.disp.changes[0].pkk != "P2" {
		t.Fatalf("notified pkk = %s, want P2", h.disp.changes[0].pkk)
	}
}

func TestCycleIgnoresUnsubscribedCase(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.subscribe(t, "P1", 1)

	if err := h.svc.Unsubscribe(context.Background(), "P1"); err != nil {
		t.Fatalf("Unsubscribe error: %v", err)
	}
	if err := h.svc.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle error: %v", err)
	}

	if got := h.gw.callCount("P1"); got != 1 {
		t.Fatalf("fetch calls for removed case = %d, want only the subscribe-time fetch", got)
	}
}

func TestHydrateEstablishesMissingBaselineWithoutNotify(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	// A subscription row without a watermark row, as after a crash between
	// the two writes.
	store := storage.NewMemory()
	err := store.PutSubscription(ctx, storage.SubscriptionRecord{
		ID: "id-1", PKK: "P1", Name: "Jan", Surname: "Kowalski", CreatedAt: time.Now(),
	})
	if err != nil {
		t.Fatalf("PutSubscription error: %v", err)
	}
	reg, err := registry.Load(ctx, store, logx.Nop())
	if err != nil {
		t.Fatalf("registry load error: %v", err)
	}

	gw := newScriptedFetcher()
	disp := &recordingDispatcher{}
	svc := New(reg, gw, disp, logx.Nop())

	gw.script("P1", fetchStep{snap: snapshotWithHistory("a", "b", "c")})
	svc.Hydrate(ctx)

	if disp.changeCount() != 0 {
		t.Fatal("hydration produced a notification")
	}
	if n, ok := reg.Watermark("P1"); !ok || n != 3 {
		t.Fatalf("watermark after hydrate = (%d, %v), want (3, true)", n, ok)
	}
}

func TestHydrateToleratesFetchFailure(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	store := storage.NewMemory()
	err := store.PutSubscription(ctx, storage.SubscriptionRecord{
		ID: "id-1", PKK: "P1", Name: "Jan", Surname: "Kowalski", CreatedAt: time.Now(),
	})
	if err != nil {
		t.Fatalf("PutSubscription error: %v", err)
	}
	reg, err := registry.Load(ctx, store, logx.Nop())
	if err != nil {
		t.Fatalf("registry load error: %v", err)
	}

	gw := newScriptedFetcher()
	disp := &recordingDispatcher{}
	svc := New(reg, gw, disp, logx.Nop())

	// Nothing scripted: the baseline fetch fails. The case stays without a
	// watermark until a later cycle reaches it.
	svc.Hydrate(ctx)
	if _, ok := reg.Watermark("P1"); ok {
		t.Fatal("failed hydrate set a watermark")
	}
	if disp.changeCount() != 0 {
		t.Fatal("failed hydrate produced a notification")
	}
}
