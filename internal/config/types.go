package config

// Config is the root of the pkkwatch configuration file (YAML or JSON).
//
// All durations are Go duration strings (e.g. "500ms", "15s", "1m").
type Config struct {
	HTTP     HTTPConfig     `json:"http"`
	Upstream UpstreamConfig `json:"upstream"`
	SMTP     SMTPConfig     `json:"smtp,omitempty"`
	Push     PushConfig     `json:"push,omitempty"`
	Poller   PollerConfig   `json:"poller"`
	Notifier NotifierConfig `json:"notifier,omitempty"`
	Logging  LoggingConfig  `json:"logging"`
	Storage  StorageConfig  `json:"storage"`
	Pprof    PprofConfig    `json:"pprof,omitempty"`
}

// HTTPConfig controls the public request surface.
type HTTPConfig struct {
	Addr         string `json:"addr,omitempty"` // default ":8080"
	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
}

// UpstreamConfig points at the driver-licence status API.
type UpstreamConfig struct {
	// URL defaults to the public info-car.pl driver-licence status endpoint.
	URL string `json:"url,omitempty"`
	// Timeout bounds a single status call so one stuck request cannot
	// stall a whole poll cycle. Default "15s".
	Timeout string `json:"timeout,omitempty"`
}

// SMTPConfig configures the email notification channel.
// The channel is active when Host is non-empty.
type SMTPConfig struct {
	Host     string `json:"host,omitempty"`
	Port     int    `json:"port,omitempty"` // default 465 (implicit TLS)
	From     string `json:"from,omitempty"`
	Password string `json:"password,omitempty"` // do not log
}

// PushConfig configures the mobile push channel (FCM legacy HTTP).
// The channel is active when ServerKey is non-empty.
type PushConfig struct {
	GatewayURL string `json:"gateway_url,omitempty"` // default FCM send endpoint
	ServerKey  string `json:"server_key,omitempty"`  // do not log
}

// PollerConfig controls the scheduled status check.
//
// Spec accepts a cron expression (5 or 6 fields) or a descriptor like
// "@hourly" / "@every 30m". Default "@hourly".
//
// RunAtStart is a pointer so an omitted value defaults to true while an
// explicit false is respected.
type PollerConfig struct {
	Enabled    *bool  `json:"enabled,omitempty"`
	Spec       string `json:"spec,omitempty"`
	Timezone   string `json:"timezone,omitempty"` // IANA TZ, e.g. "Europe/Warsaw"
	RunAtStart *bool  `json:"run_at_start,omitempty"`
}

// NotifierConfig controls the async notification send pipeline.
type NotifierConfig struct {
	Workers      int    `json:"workers,omitempty"`       // default 2
	QueueSize    int    `json:"queue_size,omitempty"`    // default 128
	RatePerSec   int    `json:"rate_per_sec,omitempty"`  // default 3
	SendTimeout  string `json:"send_timeout,omitempty"`  // default "10s"
	WelcomeDelay string `json:"welcome_delay,omitempty"` // default "30s"
}

type LoggingConfig struct {
	Level   string            `json:"level,omitempty"` // default "INFO"
	Console bool              `json:"console"`
	File    LoggingFileConfig `json:"file,omitempty"`
}

type LoggingFileConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

// StorageConfig controls the persistence layer.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./pkkwatch.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite busy_timeout
}

// PprofConfig controls the optional pprof HTTP listener.
// Prefer binding to localhost.
type PprofConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"` // default "127.0.0.1:6060"
}
