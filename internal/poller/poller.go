// Package poller triggers the poll cycle on a cron schedule.
//
// It knows nothing about cases or notifications; it runs one job function
// on the configured spec, plus once at startup so a fresh process does not
// wait a full period before its first check.
package poller

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	logx "pkkwatch/pkg/logx"
)

// Config controls the trigger.
type Config struct {
	Enabled    bool
	Spec       string // cron spec or descriptor; default "@hourly"
	Timezone   string // IANA TZ, e.g. "Europe/Warsaw"
	RunAtStart bool
}

type Service struct {
	mu sync.Mutex

	log logx.Logger
	cfg Config
	job func(ctx context.Context) error

	parser cron.Parser
	c      *cron.Cron

	runCtx    context.Context
	runCancel context.CancelFunc
	startWG   sync.WaitGroup
}

func New(cfg Config, job func(ctx context.Context) error, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	if strings.TrimSpace(cfg.Spec) == "" {
		cfg.Spec = "@hourly"
	}
	return &Service{
		log: log,
		cfg: cfg,
		job: job,
		// SecondOptional allows both 5-field and 6-field (with seconds) cron specs.
		parser: cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
	}
}

// ValidateSpec checks a schedule spec without starting anything.
// Used by the config validator so a bad hot-reload is rejected up front.
func (s *Service) ValidateSpec(spec string) error {
	if strings.TrimSpace(spec) == "" {
		return nil
	}
	if _, err := s.parser.Parse(spec); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", spec, err)
	}
	return nil
}

func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return nil // already running
	}
	if !s.cfg.Enabled {
		s.log.Info("poller disabled")
		return nil
	}

	loc := time.Local
	if tz := strings.TrimSpace(s.cfg.Timezone); tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			return fmt.Errorf("timezone: invalid %q: %w", tz, err)
		}
		loc = l
	}

	s.runCtx, s.runCancel = context.WithCancel(context.Background())
	runCtx := s.runCtx

	c := cron.New(cron.WithParser(s.parser), cron.WithLocation(loc))
	if _, err := c.AddFunc(s.cfg.Spec, func() { s.runJob(runCtx) }); err != nil {
		s.runCancel()
		s.runCtx, s.runCancel = nil, nil
		return fmt.Errorf("schedule %q: %w", s.cfg.Spec, err)
	}
	s.c = c
	c.Start()
	s.log.Info("poller started", logx.String("spec", s.cfg.Spec), logx.String("tz", loc.String()))

	if s.cfg.RunAtStart {
		s.startWG.Add(1)
		go func() {
			defer s.startWG.Done()
			s.runJob(runCtx)
		}()
	}
	return nil
}

// Apply restarts the cron entry when the schedule changed at runtime.
func (s *Service) Apply(cfg Config) {
	if strings.TrimSpace(cfg.Spec) == "" {
		cfg.Spec = "@hourly"
	}
	s.mu.Lock()
	same := s.cfg.Enabled == cfg.Enabled && s.cfg.Spec == cfg.Spec && s.cfg.Timezone == cfg.Timezone
	running := s.c != nil
	s.mu.Unlock()
	if same {
		return
	}

	// Never auto-fire the cycle on a reload; RunAtStart is a boot concern.
	cfg.RunAtStart = false

	if running {
		s.Stop(context.Background())
	}
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
	if err := s.Start(context.Background()); err != nil {
		s.log.Error("poller restart after config change failed", logx.Err(err))
	}
}

func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.c
	cancel := s.runCancel
	s.c = nil
	s.runCtx, s.runCancel = nil, nil
	s.mu.Unlock()
	if c == nil {
		return
	}

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		<-c.Stop().Done()
		s.startWG.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.log.Info("poller stopped")
	case <-ctx.Done():
		// job finishes in background
	}
}

func (s *Service) runJob(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("panic in poll job", logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
		}
	}()
	if ctx.Err() != nil {
		return
	}
	start := time.Now()
	if err := s.job(ctx); err != nil {
		s.log.Error("poll job failed", logx.Err(err), logx.Duration("took", time.Since(start)))
		return
	}
	s.log.Debug("poll job done", logx.Duration("took", time.Since(start)))
}
