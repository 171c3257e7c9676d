package service

import (
	"encoding/json"
	"time"

	"github.com/gatekeylabs/gatekey/internal/app/model"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

// AttemptPublisher pushes access-attempt records onto JetStream so that
// persisting them never sits on the request path.
type AttemptPublisher struct {
	js nats.JetStreamContext
}

// NewAttemptPublisher creates a new attempt-record publisher.
func NewAttemptPublisher(js nats.JetStreamContext) *AttemptPublisher {
	return &AttemptPublisher{js: js}
}

// Publish emits one record for a decided attempt. Exactly one call per
// inbound attempt; recording is best-effort and an error here must only be
// logged by the caller, never surfaced to the requester.
func (p *AttemptPublisher) Publish(decision Decision, code, ip, userAgent string, at time.Time) error {
	attempt := BuildAttempt(decision, code, ip, userAgent, at)

	data, err := json.Marshal(attempt)
	if err != nil {
		return err
	}

	_, err = p.js.Publish(model.AttemptStreamSubject, data)
	return err
}

// BuildAttempt maps a grant decision to its append-only record.
func BuildAttempt(decision Decision, code, ip, userAgent string, at time.Time) model.AccessAttempt {
	attempt := model.AccessAttempt{
		ID:          uuid.New().String(),
		CodeUsed:    code,
		Outcome:     model.OutcomeGranted,
		IP:          ip,
		UserAgent:   userAgent,
		AttemptedAt: at,
	}
	if decision.Link != nil {
		linkID := decision.Link.ID
		attempt.LinkID = &linkID
	}
	if !decision.Granted {
		attempt.Outcome = model.OutcomeDenied
		reason := decision.Reason
		attempt.Reason = &reason
	}
	return attempt
}
