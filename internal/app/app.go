// Package app wires configuration, storage, the registry, the upstream
// gateway, the notifier, the poller, and the HTTP surface into one
// process with an explicit start/stop lifecycle.
package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"pkkwatch/internal/config"
	"pkkwatch/internal/httpapi"
	"pkkwatch/internal/notifier"
	"pkkwatch/internal/observability/pprof"
	"pkkwatch/internal/poller"
	"pkkwatch/internal/registry"
	"pkkwatch/internal/statusapi"
	"pkkwatch/internal/storage"
	"pkkwatch/internal/watch"
	logx "pkkwatch/pkg/logx"
)

type App struct {
	cfgm *config.Manager

	log  logx.Logger
	logs *logx.Service

	store storage.Store
	reg   *registry.Registry
	gw    *statusapi.Client
	notif *notifier.Service
	svc   *watch.Service
	poll  *poller.Service
	http  *httpapi.Server
	pprof *pprof.Service

	stopWatch context.CancelFunc
	watchWG   sync.WaitGroup
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logSvc, log := logx.New(mapLoggingConfig(cfg))
	log = log.With(logx.String("comp", "app"))

	storeCfg, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(storeCfg, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	reg, err := registry.Load(context.Background(), store, log.With(logx.String("comp", "registry")))
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("load registry: %w", err)
	}

	gwCfg, err := mapUpstreamConfig(cfg)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	gw := statusapi.New(gwCfg, log.With(logx.String("comp", "statusapi")))

	var email notifier.EmailSender
	if cfg.SMTP.Host != "" {
		ch, err := notifier.NewSMTPChannel(notifier.SMTPConfig{
			Host: cfg.SMTP.Host, Port: cfg.SMTP.Port,
			From: cfg.SMTP.From, Password: cfg.SMTP.Password,
		})
		if err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("smtp channel: %w", err)
		}
		email = ch
	}
	var push notifier.PushSender
	if cfg.Push.ServerKey != "" {
		push = notifier.NewFCMChannel(notifier.PushConfig{
			GatewayURL: cfg.Push.GatewayURL, ServerKey: cfg.Push.ServerKey,
		})
	}
	if email == nil && push == nil {
		log.Warn("no notification channel configured; changes will only be logged")
	}

	notifCfg, err := mapNotifierConfig(cfg)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	notif := notifier.New(notifCfg, email, push, log.With(logx.String("comp", "notifier")))

	svc := watch.New(reg, gw, notif, log.With(logx.String("comp", "watch")))

	poll := poller.New(mapPollerConfig(cfg), svc.RunCycle, log.With(logx.String("comp", "poller")))

	httpCfg, err := mapHTTPConfig(cfg)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	httpSrv := httpapi.New(httpCfg, svc, log.With(logx.String("comp", "http")))

	pprofSvc := pprof.New(log.With(logx.String("comp", "pprof")))

	return &App{
		cfgm:  cfgm,
		log:   log,
		logs:  logSvc,
		store: store,
		reg:   reg,
		gw:    gw,
		notif: notif,
		svc:   svc,
		poll:  poll,
		http:  httpSrv,
		pprof: pprofSvc,
	}, nil
}

func (a *App) Start(ctx context.Context) error {
	cfg := a.cfgm.Get()

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(a.validateConfig)

	a.notif.Start(ctx)

	// Establish watermark baselines for subscriptions restored from storage
	// before the first scheduled cycle runs.
	a.svc.Hydrate(ctx)

	if err := a.poll.Start(ctx); err != nil {
		return err
	}
	if err := a.http.Start(ctx); err != nil {
		a.poll.Stop(ctx)
		return err
	}
	a.pprof.Apply(ctx, pprof.Config{Enabled: cfg.Pprof.Enabled, Addr: cfg.Pprof.Addr})

	// Config hot reload: watch the file and apply dynamic sections.
	watchCtx, cancel := context.WithCancel(context.Background())
	a.stopWatch = cancel
	updates := a.cfgm.Subscribe(4)
	a.watchWG.Add(2)
	go func() {
		defer a.watchWG.Done()
		_ = a.cfgm.Watch(watchCtx)
	}()
	go func() {
		defer a.watchWG.Done()
		defer a.cfgm.Unsubscribe(updates)
		for {
			select {
			case <-watchCtx.Done():
				return
			case cfg, ok := <-updates:
				if !ok {
					return
				}
				a.applyConfig(watchCtx, cfg)
			}
		}
	}()

	a.log.Info("pkkwatch started")
	return nil
}

func (a *App) Stop(ctx context.Context) error {
	if a.stopWatch != nil {
		a.stopWatch()
		a.watchWG.Wait()
	}
	a.poll.Stop(ctx)
	a.http.Stop(ctx)
	a.notif.Stop(ctx)
	a.pprof.Stop(ctx)
	if err := a.store.Close(); err != nil {
		a.log.Warn("storage close failed", logx.Err(err))
	}
	a.log.Info("pkkwatch stopped")
	_ = a.logs.Close()
	return nil
}

// applyConfig handles the dynamic sections of a hot reload: logging,
// poll schedule, and the pprof listener. Storage, channels, and the HTTP
// address need a restart; changes there are logged and ignored.
func (a *App) applyConfig(ctx context.Context, cfg *config.Config) {
	a.logs.Apply(mapLoggingConfig(cfg))
	a.poll.Apply(mapPollerConfig(cfg))
	a.pprof.Apply(ctx, pprof.Config{Enabled: cfg.Pprof.Enabled, Addr: cfg.Pprof.Addr})
	a.log.Info("config reloaded")
}

func (a *App) validateConfig(_ context.Context, cfg *config.Config) error {
	if _, err := mapStorageConfig(cfg); err != nil {
		return err
	}
	if _, err := mapUpstreamConfig(cfg); err != nil {
		return err
	}
	if _, err := mapNotifierConfig(cfg); err != nil {
		return err
	}
	if _, err := mapHTTPConfig(cfg); err != nil {
		return err
	}
	pc := mapPollerConfig(cfg)
	if err := a.poll.ValidateSpec(pc.Spec); err != nil {
		return err
	}
	if tz := pc.Timezone; tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return fmt.Errorf("poller.timezone: invalid %q: %w", tz, err)
		}
	}
	return nil
}
