package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultPushGatewayURL is the FCM legacy HTTP send endpoint.
const DefaultPushGatewayURL = "https://fcm.googleapis.com/fcm/send"

// PushConfig configures the FCM channel.
type PushConfig struct {
	GatewayURL string
	ServerKey  string
}

// pushMessage is the legacy FCM downstream message envelope.
type pushMessage struct {
	RegistrationIDs []string         `json:"registration_ids"`
	Notification    pushNotification `json:"notification"`
}

type pushNotification struct {
	Title string `json:"title"`
	Text  string `json:"text"`
}

// FCMChannel delivers push notifications through the FCM legacy HTTP API.
type FCMChannel struct {
	cfg PushConfig
	hc  *http.Client
}

func NewFCMChannel(cfg PushConfig) *FCMChannel {
	if cfg.GatewayURL == "" {
		cfg.GatewayURL = DefaultPushGatewayURL
	}
	return &FCMChannel{cfg: cfg, hc: &http.Client{Timeout: 15 * time.Second}}
}

func (c *FCMChannel) Send(ctx context.Context, token, title, text string) error {
	body, err := json.Marshal(pushMessage{
		RegistrationIDs: []string{token},
		Notification:    pushNotification{Title: title, Text: text},
	})
	if err != nil {
		return fmt.Errorf("marshal push message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.GatewayURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build push request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "key="+c.cfg.ServerKey)

	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("push gateway: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("push gateway: http %d", resp.StatusCode)
	}
	return nil
}
