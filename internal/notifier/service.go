// Package notifier turns detected status changes into delivered email and
// push notifications.
//
// Deliveries run on a small worker pool behind a bounded queue so neither
// the poll cycle nor a subscribe request ever blocks on SMTP or the push
// gateway. Channel failures are logged, never surfaced: the watermark
// update already happened and reflects ground truth regardless of
// delivery.
package notifier

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"pkkwatch/internal/registry"
	"pkkwatch/internal/statusapi"
	logx "pkkwatch/pkg/logx"
)

type job struct {
	channel string // "email" | "push"
	pkk     string
	to      string // address or device token
	title   string // email subject / push title
	body    string
}

// Service is the notification dispatcher. Safe for concurrent use.
type Service struct {
	mu sync.Mutex

	log   logx.Logger
	email EmailSender
	push  PushSender

	cfg     Config
	limiter *rate.Limiter

	accepting bool
	queue     chan job
	stopDone  chan struct{}

	runCtx    context.Context
	runCancel context.CancelFunc
	// sendWG tracks in-flight enqueues; Stop waits on it before closing the
	// queue so a send can never hit a closed channel.
	sendWG   sync.WaitGroup
	workerWG sync.WaitGroup
}

// New builds the dispatcher. Either sender may be nil; jobs for a missing
// channel are dropped with a warning (channel not configured).
func New(cfg Config, email EmailSender, push PushSender, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	cfg = cfg.withDefaults()
	return &Service{
		log:     log,
		email:   email,
		push:    push,
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec),
	}
}

func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.queue != nil {
		return // already running
	}

	s.queue = make(chan job, s.cfg.QueueSize)
	s.accepting = true
	s.stopDone = make(chan struct{})
	s.runCtx, s.runCancel = context.WithCancel(context.Background())

	queue := s.queue
	runCtx := s.runCtx

	s.workerWG.Add(s.cfg.Workers)
	for i := 0; i < s.cfg.Workers; i++ {
		go func() {
			defer s.workerWG.Done()
			s.workerLoop(runCtx, queue)
		}()
	}
	s.log.Debug("notifier started", logx.Int("workers", s.cfg.Workers))
}

// Stop drains nothing: pending welcome timers and queued sends are
// abandoned. Losing a notification on shutdown is accepted.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	if s.queue == nil {
		s.mu.Unlock()
		return
	}
	// Block new enqueues.
	s.accepting = false
	queue := s.queue
	cancel := s.runCancel
	done := s.stopDone
	s.mu.Unlock()

	// Wait for in-flight enqueues to finish before closing the queue.
	// They registered on sendWG under the mutex, so none can slip past the
	// accepting check after this point.
	sends := make(chan struct{})
	go func() {
		s.sendWG.Wait()
		close(sends)
	}()
	select {
	case <-sends:
	case <-ctx.Done():
	}

	cancel()
	func() {
		defer func() { _ = recover() }()
		close(queue)
	}()

	go func() {
		s.workerWG.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		// workers finish in background
	}

	s.mu.Lock()
	s.queue = nil
	s.runCancel = nil
	s.runCtx = nil
	s.stopDone = nil
	s.mu.Unlock()
	s.log.Debug("notifier stopped")
}

// StatusChanged dispatches one notification per configured channel for a
// detected change. The body is the latest history entry's description.
func (s *Service) StatusChanged(ctx context.Context, contact registry.Contact, snap statusapi.Snapshot) {
	latest, ok := snap.Latest()
	if !ok {
		s.log.Warn("status change with empty history", logx.String("pkk", contact.PKK))
		return
	}
	if contact.Email != "" {
		s.enqueue(job{channel: "email", pkk: contact.PKK, to: contact.Email,
			title: statusEmailSubject, body: latest.Description})
	}
	if contact.PushToken != "" {
		s.enqueue(job{channel: "push", pkk: contact.PKK, to: contact.PushToken,
			title: statusPushTitle, body: latest.Description})
	}
}

// Welcome sends the one-time onboarding messages for a fresh contact.
// Email goes out immediately; the push is deferred by WelcomeDelay so it
// cannot race ahead of the welcome-email pipeline. The deferred send is
// fire-and-forget and dies with the service on shutdown.
func (s *Service) Welcome(ctx context.Context, contact registry.Contact) {
	if contact.Email != "" {
		s.enqueue(job{channel: "email", pkk: contact.PKK, to: contact.Email,
			title: welcomeEmailSubject, body: welcomeEmailBody})
	}
	if contact.PushToken == "" {
		return
	}

	s.mu.Lock()
	runCtx := s.runCtx
	delay := s.cfg.WelcomeDelay
	s.mu.Unlock()
	if runCtx == nil {
		return
	}

	j := job{channel: "push", pkk: contact.PKK, to: contact.PushToken,
		title: welcomePushTitle, body: welcomePushBody}
	go func() {
		t := time.NewTimer(delay)
		defer t.Stop()
		select {
		case <-t.C:
			s.enqueue(j)
		case <-runCtx.Done():
		}
	}()
}

func (s *Service) enqueue(j job) {
	s.mu.Lock()
	if !s.accepting || s.queue == nil {
		s.mu.Unlock()
		s.log.Warn("notification dropped (notifier stopped)",
			logx.String("channel", j.channel), logx.String("pkk", j.pkk))
		return
	}
	q := s.queue
	s.sendWG.Add(1)
	s.mu.Unlock()
	defer s.sendWG.Done()

	select {
	case q <- j:
	default:
		s.log.Warn("notification dropped (queue full)",
			logx.String("channel", j.channel), logx.String("pkk", j.pkk))
	}
}

func (s *Service) workerLoop(runCtx context.Context, queue chan job) {
	for j := range queue {
		select {
		case <-runCtx.Done():
			return
		default:
		}
		s.deliver(runCtx, j)
	}
}

func (s *Service) deliver(runCtx context.Context, j job) {
	if err := s.limiter.Wait(runCtx); err != nil {
		return
	}

	ctx, cancel := context.WithTimeout(runCtx, s.cfg.SendTimeout)
	defer cancel()

	var err error
	switch j.channel {
	case "email":
		if s.email == nil {
			s.log.Warn("email channel not configured", logx.String("pkk", j.pkk))
			return
		}
		err = s.email.Send(ctx, j.to, j.title, j.body)
	case "push":
		if s.push == nil {
			s.log.Warn("push channel not configured", logx.String("pkk", j.pkk))
			return
		}
		err = s.push.Send(ctx, j.to, j.title, j.body)
	default:
		return
	}

	if err != nil {
		s.log.Error("notification send failed",
			logx.String("channel", j.channel), logx.String("pkk", j.pkk), logx.Err(err))
		return
	}
	s.log.Info("notification sent",
		logx.String("channel", j.channel), logx.String("pkk", j.pkk))
}
