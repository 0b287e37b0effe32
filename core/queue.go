package core

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

type JobKind string

const (
	JobEmail JobKind = "email"
	JobPush  JobKind = "push"
)

// Job is a unit of deferred work (email or push delivery).
type Job struct {
	ID         string          `json:"id"`
	Kind       JobKind         `json:"kind"`
	TenantID   string          `json:"tenant_id,omitempty"`
	Payload    json.RawMessage `json:"payload"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
}

// PushPayload is the payload of a JobPush job.
type PushPayload struct {
	NotificationID string `json:"notification_id"`
	UserID         string `json:"user_id"`
	Title          string `json:"title"`
}

// JobQueue is a durable queue for deferred work.
type JobQueue interface {
	Enqueue(ctx context.Context, jobs ...Job) error
}

func NewJob(kind JobKind, tenantID string, payload interface{}) (Job, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Job{}, errors.Wrap(err, "marshalling job payload")
	}
	return Job{
		ID:         uuid.New().String(),
		Kind:       kind,
		TenantID:   tenantID,
		Payload:    data,
		EnqueuedAt: NowFunc(),
	}, nil
}

// NewEmailJob wraps an email message into a JobEmail job.
func NewEmailJob(tenantID string, msg EmailMessage) (Job, error) {
	return NewJob(JobEmail, tenantID, msg)
}

// EmailMessage decodes a JobEmail payload.
func (j Job) EmailMessage() (*EmailMessage, error) {
	if j.Kind != JobEmail {
		return nil, errors.Errorf("job %s is not an email job", j.ID)
	}
	var msg EmailMessage
	if err := json.Unmarshal(j.Payload, &msg); err != nil {
		return nil, errors.Wrap(err, "unmarshalling email job")
	}
	return &msg, nil
}

// Push decodes a JobPush payload.
func (j Job) Push() (PushPayload, error) {
	var p PushPayload
	if j.Kind != JobPush {
		return p, errors.Errorf("job %s is not a push job", j.ID)
	}
	if err := json.Unmarshal(j.Payload, &p); err != nil {
		return p, errors.Wrap(err, "unmarshalling push job")
	}
	return p, nil
}
