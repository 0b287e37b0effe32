package notification_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/notification"
	"github.com/trezcool/darasa/core/tenant"
	inmemdb "github.com/trezcool/darasa/storage/database/inmem"
	testutil "github.com/trezcool/darasa/tests"
)

var errQueueDown = errors.New("queue down")

type brokenQueue struct{}

func (brokenQueue) Enqueue(context.Context, ...core.Job) error { return errQueueDown }

func TestService_Send(t *testing.T) {
	app := testutil.NewApp(t)
	ctx := context.Background()
	alpha := app.School(t, "Alpha")
	pA := app.Principal(t, app.Member(t, alpha, tenant.RoleAdmin, "admin@alpha.test"))
	parent := app.Member(t, alpha, tenant.RoleParent, "parent@alpha.test")
	pP := app.Principal(t, parent)
	msg := notification.SendMessage{RecipientIDs: []string{parent.User.ID}, Title: "Trip", Body: "Bring a hat", Email: true}

	t.Run("queue failure keeps no notification", func(t *testing.T) {
		svc := notification.NewService(inmemdb.NewNotificationRepository(app.DB), app.Tenants, app.DB, brokenQueue{}, app.Conf)
		_, err := svc.Send(ctx, pA, msg)
		assert.ErrorIs(t, err, errQueueDown)

		inbox, err := app.Notifications.Query(ctx, pP, notification.Filter{}, core.Pagination{})
		require.NoError(t, err)
		assert.Zero(t, inbox.Total)
	})

	t.Run("sent", func(t *testing.T) {
		app.Queue.Reset()
		sent, err := app.Notifications.Send(ctx, pA, msg)
		require.NoError(t, err)
		require.Len(t, sent, 1)
		assert.Len(t, app.Queue.Jobs(core.JobPush), 1)
		assert.Len(t, app.Queue.Jobs(core.JobEmail), 1)

		inbox, err := app.Notifications.Query(ctx, pP, notification.Filter{}, core.Pagination{})
		require.NoError(t, err)
		assert.Equal(t, 1, inbox.Total)
	})
}
