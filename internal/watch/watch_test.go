package watch

import (
	"context"
	"sync"
	"testing"

	"pkkwatch/internal/registry"
	"pkkwatch/internal/statusapi"
	"pkkwatch/internal/storage"
	logx "pkkwatch/pkg/logx"
)

// scriptedFetcher pops one scripted result per call; an exhausted script
// behaves like an unavailable upstream.
type scriptedFetcher struct {
	mu      sync.Mutex
	scripts map[string][]fetchStep
	calls   map[string]int
}

type fetchStep struct {
	snap statusapi.Snapshot
	err  error
}

func newScriptedFetcher() *scriptedFetcher {
	return &scriptedFetcher{scripts: map[string][]fetchStep{}, calls: map[string]int{}}
}

func (f *scriptedFetcher) script(pkk string, steps ...fetchStep) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scripts[pkk] = append(f.scripts[pkk], steps...)
}

func (f *scriptedFetcher) FetchWithRetry(_ context.Context, sub statusapi.Subject) (statusapi.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[sub.PKK]++
	steps := f.scripts[sub.PKK]
	if len(steps) == 0 {
		return statusapi.Snapshot{}, statusapi.ErrUnavailable
	}
	step := steps[0]
	f.scripts[sub.PKK] = steps[1:]
	return step.snap, step.err
}

func (f *scriptedFetcher) callCount(pkk string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[pkk]
}

// recordingDispatcher captures dispatched notifications synchronously.
type recordingDispatcher struct {
	mu       sync.Mutex
	changes  []dispatchedChange
	welcomes []string // PKKs
}

type dispatchedChange struct {
	pkk  string
	desc string
}

func (d *recordingDispatcher) StatusChanged(_ context.Context, contact registry.Contact, snap statusapi.Snapshot) {
	desc := ""
	if latest, ok := snap.Latest(); ok {
		desc = latest.Description
	}
	d.mu.Lock()
	d.changes = append(d.changes, dispatchedChange{pkk: contact.PKK, desc: desc})
	d.mu.Unlock()
}

func (d *recordingDispatcher) Welcome(_ context.Context, contact registry.Contact) {
	d.mu.Lock()
	d.welcomes = append(d.welcomes, contact.PKK)
	d.mu.Unlock()
}

func (d *recordingDispatcher) changeCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.changes)
}

func snapshotWithHistory(descs ...string) statusapi.Snapshot {
	entries := make([]statusapi.HistoryEntry, 0, len(descs))
	for _, d := range descs {
		entries = append(entries, statusapi.HistoryEntry{Description: d})
	}
	return statusapi.Snapshot{StatusHistory: entries, Type: "DRIVER_LICENCE"}
}

type testHarness struct {
	reg  *registry.Registry
	gw   *scriptedFetcher
	disp *recordingDispatcher
	svc  *Service
}

func newHarness(t *testing.T) *testHarness {
	t.Helper()
	reg, err := registry.Load(context.Background(), storage.NewMemory(), logx.Nop())
	if err != nil {
		t.Fatalf("registry load error: %v", err)
	}
	gw := newScriptedFetcher()
	disp := &recordingDispatcher{}
	return &testHarness{
		reg:  reg,
		gw:   gw,
		disp: disp,
		svc:  New(reg, gw, disp, logx.Nop()),
	}
}

func (h *testHarness) subscribe(t *testing.T, pkk string, historyLen int) {
	t.Helper()
	descs := make([]string, historyLen)
	for i := range descs {
		descs[i] = "entry"
	}
	h.gw.script(pkk, fetchStep{snap: snapshotWithHistory(descs...)})
	err := h.svc.Subscribe(context.Background(), SubscribeRequest{
		Name: "Jan", Surname: "Kowalski", PKK: pkk, Email: "jan@example.com",
	})
	if err != nil {
		t.Fatalf("subscribe(%s) error: %v", pkk, err)
	}
}
