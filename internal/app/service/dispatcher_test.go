package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gatekeylabs/gatekey/internal/app/model"
)

func newTestDispatcher(cfg DispatcherConfig, providers *mockProviderRepository) *Dispatcher {
	d := NewDispatcher(cfg, providers, nil)
	d.backoffBase = time.Millisecond
	return d
}

func TestDispatcher_GateRetriesUntilSuccess(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("expected bearer token, got %q", got)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	d := newTestDispatcher(DispatcherConfig{
		GateWebhookURL:   srv.URL,
		GateWebhookToken: "secret",
		GateRetries:      3,
	}, &mockProviderRepository{})

	d.Dispatch(&model.AccessLink{ID: "l1", Code: "GATE0001", Name: "Front Gate"}, time.Now().UTC())
	d.Wait()

	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Fatalf("expected 3 gate attempts, got %d", got)
	}
}

// The controller decides nothing on its own: the webhook body carries the
// open command and the hold duration.
func TestDispatcher_GateOpenCommandBody(t *testing.T) {
	var payload struct {
		Action          string `json:"action"`
		DurationSeconds int    `json:"duration_seconds"`
		Source          string `json:"source"`
	}
	var contentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		contentType = r.Header.Get("Content-Type")
		_ = json.NewDecoder(r.Body).Decode(&payload)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := newTestDispatcher(DispatcherConfig{
		GateWebhookURL:  srv.URL,
		GateOpenSeconds: 12,
	}, &mockProviderRepository{})

	d.Dispatch(&model.AccessLink{ID: "l1", Code: "GATE0004", Name: "Front Gate"}, time.Now().UTC())
	d.Wait()

	if payload.Action != "open" {
		t.Fatalf("action = %q, want open", payload.Action)
	}
	if payload.DurationSeconds != 12 {
		t.Fatalf("duration_seconds = %d, want 12", payload.DurationSeconds)
	}
	if payload.Source != "gatekey" {
		t.Fatalf("source = %q, want gatekey", payload.Source)
	}
	if contentType != "application/json" {
		t.Fatalf("content type = %q, want application/json", contentType)
	}
}

func TestDispatcher_GateGivesUpAfterRetries(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	d := newTestDispatcher(DispatcherConfig{
		GateWebhookURL: srv.URL,
		GateRetries:    3,
	}, &mockProviderRepository{})

	d.Dispatch(&model.AccessLink{ID: "l1", Code: "GATE0002", Name: "Front Gate"}, time.Now().UTC())
	d.Wait()

	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Fatalf("expected exactly 3 gate attempts, got %d", got)
	}
}

func TestDispatcher_NoGateURLConfigured(t *testing.T) {
	d := newTestDispatcher(DispatcherConfig{}, &mockProviderRepository{})

	// Must not panic or hang; the grant simply has no hardware effect.
	d.Dispatch(&model.AccessLink{ID: "l1", Code: "GATE0003", Name: "Front Gate"}, time.Now().UTC())
	d.Wait()
}

func TestDispatcher_NotifiesAllProvidersDespiteFailure(t *testing.T) {
	var okCalls, failCalls int32
	okSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&okCalls, 1)
		w.WriteHeader(http.StatusOK)
	}))
	defer okSrv.Close()
	failSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&failCalls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer failSrv.Close()

	webhookCfg := func(url string) json.RawMessage {
		raw, _ := json.Marshal(model.WebhookConfig{URL: url})
		return raw
	}

	providers := &mockProviderRepository{
		listForLinkFn: func(ctx context.Context, linkID string) ([]model.NotificationProvider, error) {
			return []model.NotificationProvider{
				{ID: "p1", Name: "healthy", Type: model.ProviderWebhook, Enabled: true, Config: webhookCfg(okSrv.URL)},
				{ID: "p2", Name: "broken", Type: model.ProviderWebhook, Enabled: true, Config: webhookCfg(failSrv.URL)},
			}, nil
		},
	}

	d := newTestDispatcher(DispatcherConfig{}, providers)
	d.Dispatch(&model.AccessLink{ID: "l1", Code: "NOTIFY01", Name: "Front Gate"}, time.Now().UTC())
	d.Wait()

	if atomic.LoadInt32(&okCalls) != 1 {
		t.Fatal("healthy provider was not delivered to")
	}
	if atomic.LoadInt32(&failCalls) != 1 {
		t.Fatal("broken provider was not attempted")
	}
}

func TestDispatcher_BadProviderConfigSkipped(t *testing.T) {
	providers := &mockProviderRepository{
		listForLinkFn: func(ctx context.Context, linkID string) ([]model.NotificationProvider, error) {
			return []model.NotificationProvider{
				{ID: "p1", Name: "garbage", Type: "carrier_pigeon", Enabled: true, Config: json.RawMessage(`{}`)},
			}, nil
		},
	}

	d := newTestDispatcher(DispatcherConfig{}, providers)
	d.Dispatch(&model.AccessLink{ID: "l1", Code: "NOTIFY02", Name: "Front Gate"}, time.Now().UTC())
	d.Wait()
}
