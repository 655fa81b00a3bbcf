// Package watch implements the case-watching workflow: subscribe and
// unsubscribe requests, the current-status query, and the scheduled poll
// cycle that detects status-history growth and triggers notifications.
package watch

import (
	"context"
	"errors"
	"strings"

	"pkkwatch/internal/registry"
	"pkkwatch/internal/statusapi"
	logx "pkkwatch/pkg/logx"
)

var (
	// ErrMissingFields means name, surname or PKK was empty.
	ErrMissingFields = errors.New("missing required fields")
	// ErrNoChannel means neither an email address nor a push token was given.
	ErrNoChannel = errors.New("no notification channel given")
)

// StatusFetcher is the upstream gateway as seen by the watcher.
type StatusFetcher interface {
	FetchWithRetry(ctx context.Context, sub statusapi.Subject) (statusapi.Snapshot, error)
}

// Dispatcher delivers notifications for this service. Implementations must
// not block: delivery runs on the dispatcher's own workers.
type Dispatcher interface {
	StatusChanged(ctx context.Context, contact registry.Contact, snap statusapi.Snapshot)
	Welcome(ctx context.Context, contact registry.Contact)
}

// SubscribeRequest carries the fields of one subscribe call.
type SubscribeRequest struct {
	Name      string
	Surname   string
	PKK       string
	Email     string
	PushToken string
}

type Service struct {
	log  logx.Logger
	reg  *registry.Registry
	gw   StatusFetcher
	disp Dispatcher

	cycle cycleGuard
}

func New(reg *registry.Registry, gw StatusFetcher, disp Dispatcher, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{log: log, reg: reg, gw: gw, disp: disp}
}

// Subscribe validates the request, establishes the watermark baseline from
// a first fetch, and registers the case with its contact. The baseline
// fetch never produces a notification: a change is only meaningful
// relative to a previously observed state.
func (s *Service) Subscribe(ctx context.Context, req SubscribeRequest) error {
	req.Name = strings.TrimSpace(req.Name)
	req.Surname = strings.TrimSpace(req.Surname)
	req.PKK = strings.TrimSpace(req.PKK)
	req.Email = strings.TrimSpace(req.Email)
	req.PushToken = strings.TrimSpace(req.PushToken)

	// Validation order mirrors the public API contract: duplicate first,
	// then channel presence, then field completeness.
	if s.reg.Contains(req.PKK) {
		s.log.Warn("duplicate subscribe rejected", logx.String("pkk", req.PKK))
		return registry.ErrDuplicateSubscription
	}
	if req.Email == "" && req.PushToken == "" {
		s.log.Warn("subscribe without channel rejected", logx.String("pkk", req.PKK))
		return ErrNoChannel
	}
	if req.Name == "" || req.Surname == "" || req.PKK == "" {
		s.log.Warn("subscribe with missing fields rejected", logx.String("pkk", req.PKK))
		return ErrMissingFields
	}

	snap, err := s.gw.FetchWithRetry(ctx, statusapi.Subject{
		Name: req.Name, Surname: req.Surname, PKK: req.PKK,
	})
	if err != nil {
		return err
	}

	sub := registry.Subscription{PKK: req.PKK, Name: req.Name, Surname: req.Surname}
	if err := s.reg.Add(ctx, sub, len(snap.StatusHistory)); err != nil {
		return err
	}

	contact := registry.Contact{PKK: req.PKK, Email: req.Email, PushToken: req.PushToken}
	if err := s.reg.UpsertContact(ctx, contact); err != nil {
		// Keep the subscription consistent: a watched case without a contact
		// would violate the registry invariant.
		_ = s.reg.Remove(ctx, req.PKK)
		return err
	}

	s.disp.Welcome(ctx, contact)
	s.log.Info("subscribed",
		logx.String("pkk", req.PKK),
		logx.Int("history_len", len(snap.StatusHistory)),
		logx.Bool("email", req.Email != ""),
		logx.Bool("push", req.PushToken != ""))
	return nil
}

// Unsubscribe removes the case. Unknown PKKs yield
// registry.ErrNotSubscribed.
func (s *Service) Unsubscribe(ctx context.Context, pkk string) error {
	if err := s.reg.Remove(ctx, strings.TrimSpace(pkk)); err != nil {
		return err
	}
	s.log.Info("unsubscribed", logx.String("pkk", pkk))
	return nil
}

// Current fetches the case's latest history entry on demand.
func (s *Service) Current(ctx context.Context, pkk string) (statusapi.HistoryEntry, error) {
	pkk = strings.TrimSpace(pkk)
	sub, ok := s.reg.Get(pkk)
	if !ok {
		return statusapi.HistoryEntry{}, registry.ErrNotSubscribed
	}
	snap, err := s.gw.FetchWithRetry(ctx, statusapi.Subject{
		Name: sub.Name, Surname: sub.Surname, PKK: sub.PKK,
	})
	if err != nil {
		return statusapi.HistoryEntry{}, err
	}
	latest, ok := snap.Latest()
	if !ok {
		return statusapi.HistoryEntry{}, statusapi.ErrUnavailable
	}
	return latest, nil
}
