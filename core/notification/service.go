package notification

import (
	"context"
	"net/mail"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/policy"
	"github.com/trezcool/darasa/core/tenant"
)

var ErrNotFound = core.NewNotFoundError("notification")

type Repository interface {
	CreateNotifications(ctx context.Context, rows []Notification, exec ...core.DBExecutor) error
	GetNotification(ctx context.Context, scope policy.Filter, id string) (Notification, error)
	// QueryNotifications lists the notifications of filter.UserID, newest first.
	QueryNotifications(ctx context.Context, scope policy.Filter, filter Filter, page core.Pagination) ([]Notification, int, error)
	UpdateNotification(ctx context.Context, n Notification) (Notification, error)
	// MarkAllRead marks the UNREAD notifications of a user as READ.
	MarkAllRead(ctx context.Context, scope policy.Filter, userID string) (int, error)
	DeleteNotification(ctx context.Context, scope policy.Filter, id string) error
}

type Service struct {
	repo    Repository
	tenants *tenant.Service
	tx      core.Transactor
	queue   core.JobQueue
	conf    *core.Config
}

func NewService(repo Repository, tenants *tenant.Service, tx core.Transactor, queue core.JobQueue, conf *core.Config) *Service {
	return &Service{repo: repo, tenants: tenants, tx: tx, queue: queue, conf: conf}
}

// inboxes are per user: only the tenant part of the scope applies
func scopeOf(p policy.Principal) policy.Filter {
	return policy.Tenant(policy.Scope(p).TenantID)
}

// Send creates one notification per recipient and, in the same transaction, enqueues a push job
// for each and, when asked, an email job. The sender is not notified unless listed explicitly.
func (svc *Service) Send(ctx context.Context, p policy.Principal, sm SendMessage) ([]Notification, error) {
	if err := policy.Authorize(p, policy.NotificationsSend, policy.Context{}); err != nil {
		return nil, err
	}
	tenantID, err := p.WriteTenant()
	if err != nil {
		return nil, err
	}

	members, err := svc.tenants.ActiveMembers(ctx, tenantID, sm.RecipientIDs, sm.Roles)
	if err != nil {
		if core.IsNotFound(err) {
			return nil, core.NewValidationError(err, core.FieldError{Field: "recipient_ids", Error: err.Error()})
		}
		return nil, err
	}
	explicit := make(map[string]bool, len(sm.RecipientIDs))
	for _, id := range sm.RecipientIDs {
		explicit[id] = true
	}
	recipients := make([]tenant.Member, 0, len(members))
	for _, m := range members {
		if m.UserID == p.UserID && !explicit[m.UserID] {
			continue
		}
		recipients = append(recipients, m)
	}
	if len(recipients) == 0 {
		return nil, core.NewValidationError(nil, core.FieldError{Field: "recipient_ids", Error: "no recipients"})
	}

	now := core.NowFunc()
	rows := make([]Notification, 0, len(recipients))
	for _, m := range recipients {
		rows = append(rows, Notification{
			ID:        uuid.New().String(),
			TenantID:  tenantID,
			UserID:    m.UserID,
			SenderID:  null.StringFrom(p.UserID),
			Kind:      KindMessage,
			Title:     sm.Title,
			Body:      sm.Body,
			Status:    StatusUnread,
			CreatedAt: now,
		})
	}

	jobs := make([]core.Job, 0, 2*len(rows))
	for i, n := range rows {
		job, err := core.NewJob(core.JobPush, tenantID, core.PushPayload{NotificationID: n.ID, UserID: n.UserID, Title: n.Title})
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)

		if sm.Email {
			m := recipients[i]
			job, err = core.NewEmailJob(tenantID, core.EmailMessage{
				To:           []mail.Address{{Name: m.Name, Address: m.Email}},
				Subject:      sm.Title,
				TemplateName: core.TemplateMessage,
				TemplateData: map[string]interface{}{
					"sender": p.Name,
					"title":  sm.Title,
					"body":   sm.Body,
				},
				FrontendBaseURL: svc.conf.FrontendBaseURL,
				AppName:         svc.conf.AppName,
			})
			if err != nil {
				return nil, err
			}
			jobs = append(jobs, job)
		}
	}

	// the rows are only kept once their jobs are queued
	err = svc.tx.RunInTx(ctx, func(exec core.DBExecutor) error {
		if err := svc.repo.CreateNotifications(ctx, rows, exec); err != nil {
			return errors.Wrap(err, "creating notifications")
		}
		return errors.Wrap(svc.queue.Enqueue(ctx, jobs...), "enqueuing notification jobs")
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (svc *Service) Query(ctx context.Context, p policy.Principal, filter Filter, page core.Pagination) (core.Page[Notification], error) {
	if err := policy.Authorize(p, policy.NotificationsRead, policy.Context{}); err != nil {
		return core.Page[Notification]{}, err
	}
	if err := Lifecycle.CheckFilter(filter.Status); err != nil {
		return core.Page[Notification]{}, err
	}
	filter.UserID = p.UserID
	rows, total, err := svc.repo.QueryNotifications(ctx, scopeOf(p), filter, page)
	if err != nil {
		return core.Page[Notification]{}, errors.Wrap(err, "querying notifications")
	}
	return core.NewPage(rows, page, total), nil
}

// CountUnread counts the UNREAD notifications in p's inbox.
func (svc *Service) CountUnread(ctx context.Context, p policy.Principal) (int, error) {
	page, err := svc.Query(ctx, p, Filter{Status: StatusUnread}, core.Pagination{Page: 1, Limit: 1})
	return page.Total, err
}

// MarkStatus reads or dismisses a notification of the caller's inbox.
func (svc *Service) MarkStatus(ctx context.Context, p policy.Principal, id string, us UpdateStatus) (Notification, error) {
	n, err := svc.repo.GetNotification(ctx, scopeOf(p), id)
	if err != nil {
		return Notification{}, err
	}
	if n.UserID != p.UserID {
		// other inboxes do not exist
		return Notification{}, ErrNotFound
	}
	err = policy.Authorize(p, policy.NotificationsUpdate, policy.On("notification", n.TenantID, policy.Owned(true)))
	if err != nil {
		return Notification{}, err
	}
	if err = Lifecycle.Transition(n.Status, us.Status); err != nil {
		return Notification{}, err
	}
	n.Status = us.Status
	if us.Status == StatusRead {
		n.ReadAt = null.TimeFrom(core.NowFunc())
	}
	n, err = svc.repo.UpdateNotification(ctx, n)
	return n, errors.Wrap(err, "updating notification")
}

func (svc *Service) MarkAllRead(ctx context.Context, p policy.Principal) (core.BulkResult, error) {
	if err := policy.Authorize(p, policy.NotificationsUpdate, policy.Context{}); err != nil {
		return core.BulkResult{}, err
	}
	n, err := svc.repo.MarkAllRead(ctx, scopeOf(p), p.UserID)
	if err != nil {
		return core.BulkResult{}, errors.Wrap(err, "marking notifications read")
	}
	return core.BulkResult{Affected: n}, nil
}

// Delete hard-deletes any notification of the tenant.
func (svc *Service) Delete(ctx context.Context, p policy.Principal, id string) error {
	if err := policy.Authorize(p, policy.NotificationsDelete, policy.Context{}); err != nil {
		return err
	}
	n, err := svc.repo.GetNotification(ctx, scopeOf(p), id)
	if err != nil {
		return err
	}
	return errors.Wrap(svc.repo.DeleteNotification(ctx, policy.Tenant(n.TenantID), n.ID), "deleting notification")
}
