package app

import (
	"time"

	"pkkwatch/internal/config"
	"pkkwatch/internal/httpapi"
	"pkkwatch/internal/notifier"
	"pkkwatch/internal/poller"
	"pkkwatch/internal/statusapi"
	"pkkwatch/internal/storage"
	logx "pkkwatch/pkg/logx"
)

// Config mapping lives here so the leaf packages stay decoupled from the
// config file format.

func mapLoggingConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	busy, err := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
	if err != nil {
		return storage.Config{}, err
	}
	path := cfg.Storage.Path
	if path == "" {
		path = "./pkkwatch.db"
	}
	return storage.Config{
		Driver:      cfg.Storage.Driver,
		Path:        path,
		BusyTimeout: busy,
	}, nil
}

func mapUpstreamConfig(cfg *config.Config) (statusapi.Config, error) {
	timeout, err := config.ParseDurationOrDefault("upstream.timeout", cfg.Upstream.Timeout, 15*time.Second)
	if err != nil {
		return statusapi.Config{}, err
	}
	return statusapi.Config{URL: cfg.Upstream.URL, Timeout: timeout}, nil
}

func mapNotifierConfig(cfg *config.Config) (notifier.Config, error) {
	sendTimeout, err := config.ParseDurationOrDefault("notifier.send_timeout", cfg.Notifier.SendTimeout, 10*time.Second)
	if err != nil {
		return notifier.Config{}, err
	}
	welcomeDelay, err := config.ParseDurationOrDefault("notifier.welcome_delay", cfg.Notifier.WelcomeDelay, 30*time.Second)
	if err != nil {
		return notifier.Config{}, err
	}
	return notifier.Config{
		Workers:      cfg.Notifier.Workers,
		QueueSize:    cfg.Notifier.QueueSize,
		RatePerSec:   cfg.Notifier.RatePerSec,
		SendTimeout:  sendTimeout,
		WelcomeDelay: welcomeDelay,
	}, nil
}

func mapPollerConfig(cfg *config.Config) poller.Config {
	enabled := true
	if cfg.Poller.Enabled != nil {
		enabled = *cfg.Poller.Enabled
	}
	runAtStart := true
	if cfg.Poller.RunAtStart != nil {
		runAtStart = *cfg.Poller.RunAtStart
	}
	return poller.Config{
		Enabled:    enabled,
		Spec:       cfg.Poller.Spec,
		Timezone:   cfg.Poller.Timezone,
		RunAtStart: runAtStart,
	}
}

func mapHTTPConfig(cfg *config.Config) (httpapi.Config, error) {
	readTimeout, err := config.ParseDurationField("http.read_timeout", cfg.HTTP.ReadTimeout)
	if err != nil {
		return httpapi.Config{}, err
	}
	writeTimeout, err := config.ParseDurationField("http.write_timeout", cfg.HTTP.WriteTimeout)
	if err != nil {
		return httpapi.Config{}, err
	}
	return httpapi.Config{
		Addr:         cfg.HTTP.Addr,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	}, nil
}
