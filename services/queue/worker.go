package queue

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/services/metrics"
)

// Sender delivers one email synchronously.
type Sender interface {
	Send(msg *core.EmailMessage) error
}

// Worker pops jobs from a Source and delivers them.
// Jobs are processed once: a failed job is logged and dropped.
type Worker struct {
	src         Source
	emails      Sender
	logger      core.Logger
	PollTimeout time.Duration
}

func NewWorker(src Source, emails Sender, logger core.Logger) *Worker {
	return &Worker{src: src, emails: emails, logger: logger, PollTimeout: 5 * time.Second}
}

// Run processes jobs until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		job, ok, err := w.src.Dequeue(ctx, w.PollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			w.logger.Error("dequeuing job", err)
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
				return nil
			}
			continue
		}
		if !ok {
			continue
		}
		if err := w.Process(ctx, job); err != nil {
			w.logger.Error("processing job", err, map[string]interface{}{
				"job_id": job.ID, "kind": job.Kind, "tenant_id": job.TenantID,
			})
		}
	}
}

// Process handles one job.
func (w *Worker) Process(_ context.Context, job core.Job) (err error) {
	start := time.Now()
	defer func() { metrics.ObserveJob(string(job.Kind), start, err) }()

	switch job.Kind {
	case core.JobEmail:
		msg, err := job.EmailMessage()
		if err != nil {
			return err
		}
		return errors.Wrap(w.emails.Send(msg), "sending email")
	case core.JobPush:
		p, err := job.Push()
		if err != nil {
			return err
		}
		// no push provider: the notification is already in the recipient's inbox
		w.logger.Info("push notification", map[string]interface{}{
			"notification_id": p.NotificationID, "user_id": p.UserID, "title": p.Title,
		})
		return nil
	default:
		return errors.Errorf("unknown job kind %q", job.Kind)
	}
}

// Every runs fn every interval until ctx is cancelled.
func (w *Worker) Every(ctx context.Context, interval time.Duration, name string, fn func(ctx context.Context) error) {
	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				start := time.Now()
				err := fn(ctx)
				metrics.ObserveJob(name, start, err)
				if err != nil {
					w.logger.Error("running "+name, err)
				}
			}
		}
	}()
}
