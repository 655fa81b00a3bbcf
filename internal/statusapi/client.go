// Package statusapi talks to the public driver-licence status API.
//
// The upstream is flaky by nature, so every failure mode (network error,
// non-2xx, malformed body) collapses into ErrUnavailable. Callers apply
// exactly one retry and then treat the case as unavailable for the cycle.
package statusapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	logx "pkkwatch/pkg/logx"
)

// DefaultURL is the public info-car.pl driver-licence status endpoint.
const DefaultURL = "https://info-car.pl/api/ssi/status/driver/driver-licence"

// ErrUnavailable marks a transient upstream failure. Match with errors.Is.
var ErrUnavailable = errors.New("status api unavailable")

// HistoryEntry is one entry of the upstream status history.
// The upstream sends more fields; only the description is used.
type HistoryEntry struct {
	Description string `json:"description"`
}

// Snapshot is the upstream's view of one case at fetch time.
// It is never persisted; only len(StatusHistory) survives as the watermark.
type Snapshot struct {
	NewestStatusDate uint64         `json:"newestStatusDate"`
	StatusHistory    []HistoryEntry `json:"statusHistory"`
	Type             string         `json:"type"`
}

// Latest returns the newest history entry.
func (s Snapshot) Latest() (HistoryEntry, bool) {
	if len(s.StatusHistory) == 0 {
		return HistoryEntry{}, false
	}
	return s.StatusHistory[len(s.StatusHistory)-1], true
}

// Subject identifies the case being queried.
type Subject struct {
	Name    string `json:"name"`
	Surname string `json:"surname"`
	PKK     string `json:"pkk"`
}

type Config struct {
	URL     string
	Timeout time.Duration // per-call bound; default 15s
}

type Client struct {
	url     string
	timeout time.Duration
	hc      *http.Client
	log     logx.Logger
}

func New(cfg Config, log logx.Logger) *Client {
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Client{
		url:     cfg.URL,
		timeout: cfg.Timeout,
		hc:      &http.Client{Timeout: cfg.Timeout},
		log:     log,
	}
}

// FetchStatus performs a single upstream call.
func (c *Client) FetchStatus(ctx context.Context, sub Subject) (Snapshot, error) {
	body, err := json.Marshal(sub)
	if err != nil {
		return Snapshot{}, fmt.Errorf("marshal subject: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return Snapshot{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		c.log.Warn("status fetch failed", logx.String("pkk", sub.PKK), logx.Err(err))
		return Snapshot{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		c.log.Warn("status fetch non-2xx", logx.String("pkk", sub.PKK), logx.Int("status", resp.StatusCode))
		return Snapshot{}, fmt.Errorf("%w: http %d", ErrUnavailable, resp.StatusCode)
	}

	var snap Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		c.log.Warn("status response malformed", logx.String("pkk", sub.PKK), logx.Err(err))
		return Snapshot{}, fmt.Errorf("%w: decode: %v", ErrUnavailable, err)
	}
	return snap, nil
}

// FetchWithRetry applies the one-retry policy for transient failures.
// A second failure is final for this call; the caller decides whether to
// surface it (subscribe/current) or skip the case (poll cycle).
func (c *Client) FetchWithRetry(ctx context.Context, sub Subject) (Snapshot, error) {
	snap, err := c.FetchStatus(ctx, sub)
	if err == nil {
		return snap, nil
	}
	if !errors.Is(err, ErrUnavailable) || ctx.Err() != nil {
		return Snapshot{}, err
	}
	return c.FetchStatus(ctx, sub)
}
