package watch

import (
	"context"
	"sync"

	"pkkwatch/internal/registry"
	"pkkwatch/internal/statusapi"
	logx "pkkwatch/pkg/logx"
)

// Change is a detected status-history append for one case.
type Change struct {
	PKK         string
	NewLength   int
	Description string
}

// cycleGuard enforces the skip-if-running overlap policy: a slow upstream
// must not pile up concurrent cycles.
type cycleGuard struct {
	mu      sync.Mutex
	running bool
}

func (g *cycleGuard) tryAcquire() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.running {
		return false
	}
	g.running = true
	return true
}

func (g *cycleGuard) release() {
	g.mu.Lock()
	g.running = false
	g.mu.Unlock()
}

// RunCycle checks every subscribed case once, in insertion order.
//
// Per case: fetch (one retry) → compare history length against the
// watermark → on change persist the watermark, then notify. The ordering
// matters: a crash between persist and notify means the change is never
// re-announced, which is the accepted at-most-once gap. The reverse order
// could re-notify the same change forever after a persist failure.
func (s *Service) RunCycle(ctx context.Context) error {
	if !s.cycle.tryAcquire() {
		s.log.Warn("poll cycle still running; skipping")
		return nil
	}
	defer s.cycle.release()

	subs := s.reg.List()
	s.log.Info("poll cycle started", logx.Int("cases", len(subs)))

	checked, changed := 0, 0
	for _, sub := range subs {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if s.checkCase(ctx, sub) {
			changed++
		}
		checked++
	}

	s.log.Info("poll cycle finished", logx.Int("checked", checked), logx.Int("changed", changed))
	return nil
}

// checkCase handles one subscription; reports whether a change was seen.
func (s *Service) checkCase(ctx context.Context, sub registry.Subscription) bool {
	snap, err := s.gw.FetchWithRetry(ctx, statusapi.Subject{
		Name: sub.Name, Surname: sub.Surname, PKK: sub.PKK,
	})
	if err != nil {
		// Upstream flakiness is expected; skip the case this cycle with no
		// state change and no notification.
		s.log.Warn("case unavailable this cycle", logx.String("pkk", sub.PKK), logx.Err(err))
		return false
	}

	change, ok := s.detectChange(ctx, sub.PKK, snap)
	if !ok {
		return false
	}

	// Persist before notify.
	if err := s.reg.SetWatermark(ctx, sub.PKK, change.NewLength); err != nil {
		s.log.Error("watermark update failed; notification withheld",
			logx.String("pkk", sub.PKK), logx.Err(err))
		return false
	}

	contact, err := s.reg.Contact(sub.PKK)
	if err != nil {
		// Invariant violation: every active subscription must have a contact.
		// Log loudly and keep the cycle going.
		s.log.Error("contact missing for active subscription",
			logx.String("pkk", sub.PKK), logx.Err(err))
		return true
	}

	s.disp.StatusChanged(ctx, contact, snap)
	return true
}

// detectChange compares the fetched history length against the stored
// watermark. Only length changes count: the upstream history only
// appends, so content edits of existing entries are deliberately not
// detected.
func (s *Service) detectChange(ctx context.Context, pkk string, snap statusapi.Snapshot) (Change, bool) {
	newLen := len(snap.StatusHistory)

	last, ok := s.reg.Watermark(pkk)
	if !ok {
		// No baseline yet (boot-time hydration fetch failed earlier).
		// Establish one now; the first observation never notifies.
		if err := s.reg.SetWatermark(ctx, pkk, newLen); err != nil {
			s.log.Warn("baseline watermark persist failed", logx.String("pkk", pkk), logx.Err(err))
		}
		return Change{}, false
	}
	if last == newLen {
		return Change{}, false
	}

	s.log.Info("status history changed",
		logx.String("pkk", pkk), logx.Int("from", last), logx.Int("to", newLen))

	desc := ""
	if latest, ok := snap.Latest(); ok {
		desc = latest.Description
	}
	return Change{PKK: pkk, NewLength: newLen, Description: desc}, true
}

// Hydrate establishes missing watermark baselines after a restart.
// Fetch failures are tolerated: the case simply has no baseline until a
// later cycle reaches it.
func (s *Service) Hydrate(ctx context.Context) {
	missing := 0
	for _, sub := range s.reg.List() {
		if _, ok := s.reg.Watermark(sub.PKK); ok {
			continue
		}
		missing++
		snap, err := s.gw.FetchWithRetry(ctx, statusapi.Subject{
			Name: sub.Name, Surname: sub.Surname, PKK: sub.PKK,
		})
		if err != nil {
			s.log.Warn("baseline fetch failed", logx.String("pkk", sub.PKK), logx.Err(err))
			continue
		}
		if err := s.reg.SetWatermark(ctx, sub.PKK, len(snap.StatusHistory)); err != nil {
			s.log.Warn("baseline watermark persist failed", logx.String("pkk", sub.PKK), logx.Err(err))
		}
	}
	if missing > 0 {
		s.log.Info("baseline hydration done", logx.Int("missing", missing))
	}
}
