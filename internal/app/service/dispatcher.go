package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gatekeylabs/gatekey/internal/app/model"
	"github.com/gatekeylabs/gatekey/internal/app/repository"
	infraprom "github.com/gatekeylabs/gatekey/internal/infra/prometheus"
	"go.uber.org/zap"
)

// DispatcherConfig carries the side-effect settings, injected at
// construction so the dispatcher never reads ambient state.
type DispatcherConfig struct {
	GateWebhookURL   string
	GateWebhookToken string
	GateTimeout      time.Duration
	GateRetries      int

	// GateOpenSeconds tells the hardware how long to hold the gate open.
	GateOpenSeconds int

	NotifyTimeout time.Duration
}

// Dispatcher fires the hardware webhook and the notification fan-out after
// a grant. Everything here is strictly after the fact: the grant is already
// committed and the HTTP response already on its way, so failures are
// logged and counted but can never unwind the decision.
type Dispatcher struct {
	cfg       DispatcherConfig
	providers repository.ProviderRepository
	client    *http.Client
	logger    *zap.Logger

	// backoffBase scales the exponential wait between gate retries.
	backoffBase time.Duration

	// wg tracks in-flight side effects so tests and shutdown can join them.
	wg sync.WaitGroup
}

// NewDispatcher builds a dispatcher with sane defaults for anything unset.
func NewDispatcher(cfg DispatcherConfig, providers repository.ProviderRepository, logger *zap.Logger) *Dispatcher {
	if cfg.GateTimeout <= 0 {
		cfg.GateTimeout = 5 * time.Second
	}
	if cfg.GateRetries <= 0 {
		cfg.GateRetries = 3
	}
	if cfg.GateOpenSeconds <= 0 {
		cfg.GateOpenSeconds = 5
	}
	if cfg.NotifyTimeout <= 0 {
		cfg.NotifyTimeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		cfg:         cfg,
		providers:   providers,
		client:      &http.Client{},
		logger:      logger,
		backoffBase: 2 * time.Second,
	}
}

// Dispatch schedules the gate trigger and the notification fan-out for a
// committed grant and returns immediately.
func (d *Dispatcher) Dispatch(link *model.AccessLink, grantedAt time.Time) {
	snapshot := Event{
		Type:      EventAccessGranted,
		LinkCode:  link.Code,
		LinkName:  link.Name,
		Timestamp: grantedAt,
	}
	linkID := link.ID

	d.wg.Add(2)
	go func() {
		defer d.wg.Done()
		d.triggerGate(snapshot)
	}()
	go func() {
		defer d.wg.Done()
		d.notifyAll(linkID, snapshot)
	}()
}

// Wait blocks until all in-flight side effects settle. Used on shutdown.
func (d *Dispatcher) Wait() { d.wg.Wait() }

// triggerGate runs the hardware webhook with bounded retries. Each attempt
// gets its own timeout; the wait between attempts grows exponentially and
// is capped at 10s.
func (d *Dispatcher) triggerGate(event Event) {
	if d.cfg.GateWebhookURL == "" {
		d.logger.Warn("gate webhook URL not configured, grant has no hardware effect",
			zap.String("code", event.LinkCode))
		return
	}

	var lastErr error
	for attempt := 1; attempt <= d.cfg.GateRetries; attempt++ {
		elapsed, err := d.gateAttempt()
		infraprom.GateWebhookDuration.Observe(elapsed.Seconds())
		if err == nil {
			d.logger.Info("gate webhook triggered",
				zap.String("code", event.LinkCode),
				zap.Int("attempt", attempt),
				zap.Duration("elapsed", elapsed),
			)
			return
		}

		lastErr = err
		d.logger.Warn("gate webhook attempt failed",
			zap.String("code", event.LinkCode),
			zap.Int("attempt", attempt),
			zap.Duration("elapsed", elapsed),
			zap.Error(err),
		)
		if attempt < d.cfg.GateRetries {
			time.Sleep(d.backoff(attempt))
		}
	}

	infraprom.GateWebhookFailures.Inc()
	d.logger.Error("gate webhook exhausted retries",
		zap.String("code", event.LinkCode),
		zap.Int("attempts", d.cfg.GateRetries),
		zap.Error(lastErr),
	)
}

// gateOpenCommand is what the gate controller expects on its webhook.
type gateOpenCommand struct {
	Action          string `json:"action"`
	DurationSeconds int    `json:"duration_seconds"`
	Source          string `json:"source"`
}

func (d *Dispatcher) gateAttempt() (time.Duration, error) {
	ctx, cancel := context.WithTimeout(context.Background(), d.cfg.GateTimeout)
	defer cancel()

	body, err := json.Marshal(gateOpenCommand{
		Action:          "open",
		DurationSeconds: d.cfg.GateOpenSeconds,
		Source:          "gatekey",
	})
	if err != nil {
		return 0, err
	}

	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.cfg.GateWebhookURL, bytes.NewReader(body))
	if err != nil {
		return time.Since(start), err
	}
	req.Header.Set("Content-Type", "application/json")
	if d.cfg.GateWebhookToken != "" {
		req.Header.Set("Authorization", "Bearer "+d.cfg.GateWebhookToken)
	}

	resp, err := d.client.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		return elapsed, fmt.Errorf("gate webhook request: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated, http.StatusAccepted, http.StatusNoContent:
		return elapsed, nil
	default:
		return elapsed, fmt.Errorf("gate webhook returned %d", resp.StatusCode)
	}
}

func (d *Dispatcher) backoff(attempt int) time.Duration {
	wait := d.backoffBase << (attempt - 1)
	if max := 5 * d.backoffBase; wait > max {
		wait = max
	}
	return wait
}

// notifyAll delivers the event to every enabled provider attached to the
// link, concurrently, each under its own timeout. One slow or failing
// provider never delays the others.
func (d *Dispatcher) notifyAll(linkID string, event Event) {
	ctx, cancel := context.WithTimeout(context.Background(), d.cfg.NotifyTimeout+time.Second)
	defer cancel()

	providers, err := d.providers.ListForLink(ctx, linkID)
	if err != nil {
		d.logger.Error("failed to load notification providers",
			zap.String("code", event.LinkCode), zap.Error(err))
		return
	}
	if len(providers) == 0 {
		return
	}

	var wg sync.WaitGroup
	for _, p := range providers {
		notifier, err := NewNotifier(p, d.client)
		if err != nil {
			infraprom.NotificationsTotal.WithLabelValues(string(p.Type), "error").Inc()
			d.logger.Error("failed to build notifier",
				zap.String("provider", p.Name), zap.Error(err))
			continue
		}

		wg.Add(1)
		go func(p model.NotificationProvider, n Notifier) {
			defer wg.Done()
			nctx, ncancel := context.WithTimeout(context.Background(), d.cfg.NotifyTimeout)
			defer ncancel()

			if err := n.Deliver(nctx, event); err != nil {
				infraprom.NotificationsTotal.WithLabelValues(string(p.Type), "failure").Inc()
				d.logger.Warn("notification delivery failed",
					zap.String("provider", n.Name()),
					zap.String("type", string(p.Type)),
					zap.String("code", event.LinkCode),
					zap.Error(err),
				)
				return
			}
			infraprom.NotificationsTotal.WithLabelValues(string(p.Type), "success").Inc()
			d.logger.Debug("notification delivered",
				zap.String("provider", n.Name()),
				zap.String("code", event.LinkCode),
			)
		}(p, notifier)
	}
	wg.Wait()
}
