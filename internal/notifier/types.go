package notifier

import (
	"context"
	"time"
)

// EmailSender delivers one message to one address.
type EmailSender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// PushSender delivers one push notification to one device token.
type PushSender interface {
	Send(ctx context.Context, token, title, text string) error
}

// Config controls the async send pipeline.
type Config struct {
	Workers    int           // default 2
	QueueSize  int           // default 128
	RatePerSec int           // default 3
	// SendTimeout bounds one delivery attempt. Default 10s.
	SendTimeout time.Duration
	// WelcomeDelay holds the welcome push back so it does not arrive before
	// the user has associated the app install with their subscription.
	// Default 30s.
	WelcomeDelay time.Duration
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 2
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 128
	}
	if c.RatePerSec <= 0 {
		c.RatePerSec = 3
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = 10 * time.Second
	}
	if c.WelcomeDelay <= 0 {
		c.WelcomeDelay = 30 * time.Second
	}
	return c
}

// User-facing strings, Polish like the rest of the service surface.
const (
	statusEmailSubject = "Status prawa jazdy zmieniony - Prawko Checker"
	statusPushTitle    = "Zmiana statusu"

	welcomeEmailSubject = "Adres dodany do PrawkoChecker"
	welcomeEmailBody    = "Cześć! Ten email został dodany do bazy. Dostaniesz na niego powiadomienia o zmianie statusu prawa jazdy"

	welcomePushTitle = "Powitalne powiadomienie"
	welcomePushBody  = "Takie powiadomienie dostaniesz kiedy zmieni się status twojego prawa jazdy"
)
