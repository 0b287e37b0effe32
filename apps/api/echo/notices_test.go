package echoapi_test

import (
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/notice"
	"github.com/trezcool/darasa/core/notification"
	"github.com/trezcool/darasa/core/tenant"
)

func TestNotices(t *testing.T) {
	app, srv := setup(t)
	s := seedTwoSchools(t, app)
	learner := app.Member(t, s.a, tenant.RoleStudent, "learner@alpha.test")
	tokenA, tokenT, tokenS := app.Token(t, s.adminA), app.Token(t, s.teacherA), app.Token(t, learner)

	create := func(t *testing.T, token string, nn notice.NewNotice) notice.Notice {
		t.Helper()
		rec := do(srv, http.MethodPost, "/v1/notices", token, marshalObj(t, nn))
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		var n notice.Notice
		decode(t, rec, &n)
		return n
	}

	later := time.Now().Add(48 * time.Hour)
	forStudents := create(t, tokenT, notice.NewNotice{
		Title:       "Field trip",
		Body:        "Bring a packed lunch.",
		TargetRoles: []tenant.Role{tenant.RoleStudent},
	})
	assert.Equal(t, notice.StateLive, forStudents.State)
	assert.Equal(t, s.teacherA.User.ID, forStudents.AuthorID)

	staffOnly := create(t, tokenA, notice.NewNotice{
		Title:       "Staff meeting",
		Body:        "Room 4 at noon.",
		TargetRoles: []tenant.Role{tenant.RoleTeacher},
		IsUrgent:    true,
		IsPinned:    true,
	})
	scheduled := create(t, tokenA, notice.NewNotice{
		Title:       "Holidays",
		Body:        "School closes on Friday.",
		TargetRoles: []tenant.Role{tenant.RoleStudent, tenant.RoleParent},
		PublishAt:   &later,
	})
	assert.Equal(t, notice.StateScheduled, scheduled.State)

	runTests(t, srv, []httpTest{
		{
			name:     "teacher cannot raise urgency",
			method:   http.MethodPost,
			path:     "/v1/notices",
			token:    tokenT,
			body:     marshalObj(t, notice.NewNotice{Title: "t", Body: "b", TargetRoles: []tenant.Role{tenant.RoleStudent}, IsUrgent: true}),
			wantCode: http.StatusForbidden,
		},
		{
			name:     "expiry before publication",
			method:   http.MethodPost,
			path:     "/v1/notices",
			token:    tokenA,
			body:     []byte(fmt.Sprintf(`{"title":"t","body":"b","target_roles":["STUDENT"],"expires_at":%q}`, time.Now().Add(-time.Hour).Format(time.RFC3339))),
			wantCode: http.StatusBadRequest,
			wantData: marshalObj(t, httpErr{
				Error:   "invalid request",
				Details: []core.FieldError{{Field: "expires_at", Error: "expires_at must be after publish_at"}},
			}),
		},
		{
			name:     "unknown target role",
			method:   http.MethodPost,
			path:     "/v1/notices",
			token:    tokenA,
			body:     []byte(`{"title":"t","body":"b","target_roles":["JANITOR"]}`),
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "scheduled notice is hidden from students",
			method:   http.MethodGet,
			path:     "/v1/notices/" + scheduled.ID,
			token:    tokenS,
			wantCode: http.StatusNotFound,
			wantData: marshalObj(t, httpErr{Error: "notice not found"}),
		},
		{
			name:     "notice of another audience is hidden",
			method:   http.MethodGet,
			path:     "/v1/notices/" + staffOnly.ID,
			token:    tokenS,
			wantCode: http.StatusNotFound,
		},
		{
			name:     "other tenant",
			method:   http.MethodGet,
			path:     "/v1/notices/" + forStudents.ID,
			token:    app.Token(t, s.adminB),
			wantCode: http.StatusNotFound,
		},
		{
			name:     "teacher cannot edit someone else's notice",
			method:   http.MethodPut,
			path:     "/v1/notices/" + staffOnly.ID,
			token:    tokenT,
			body:     []byte(`{"title":"Cancelled"}`),
			wantCode: http.StatusForbidden,
		},
		{
			name:     "teacher cannot delete",
			method:   http.MethodDelete,
			path:     "/v1/notices/" + forStudents.ID,
			token:    tokenT,
			wantCode: http.StatusForbidden,
		},
	})

	t.Run("audiences", func(t *testing.T) {
		titles := func(token string) []string {
			rec := do(srv, http.MethodGet, "/v1/notices", token)
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			var res core.Page[notice.Notice]
			decode(t, rec, &res)
			out := make([]string, len(res.Data))
			for i, n := range res.Data {
				out[i] = n.Title
			}
			return out
		}
		assert.Equal(t, []string{"Staff meeting", "Holidays", "Field trip"}, titles(tokenA), "pinned first, then newest")
		assert.ElementsMatch(t, []string{"Staff meeting", "Field trip"}, titles(tokenT))
		assert.Equal(t, []string{"Field trip"}, titles(tokenS))
		assert.Empty(t, titles(app.Token(t, s.adminB)))
	})

	t.Run("author edits own notice", func(t *testing.T) {
		rec := do(srv, http.MethodPut, "/v1/notices/"+forStudents.ID, tokenT, []byte(`{"body":"Lunch is provided."}`))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var n notice.Notice
		decode(t, rec, &n)
		assert.Equal(t, "Lunch is provided.", n.Body)
		assert.Equal(t, "Field trip", n.Title)
	})

	t.Run("bulk delete", func(t *testing.T) {
		foreign := create(t, app.Token(t, s.adminB), notice.NewNotice{Title: "B", Body: "b", TargetRoles: []tenant.Role{tenant.RoleAdmin}})

		rec := do(srv, http.MethodDelete, fmt.Sprintf("/v1/notices?id=%s&id=%s", scheduled.ID, foreign.ID), tokenA)
		assert.Equal(t, http.StatusNotFound, rec.Code, rec.Body.String())
		assert.JSONEq(t, string(marshalObj(t, httpErr{Error: "notice not found: " + foreign.ID})), rec.Body.String())

		rec = do(srv, http.MethodDelete, fmt.Sprintf("/v1/notices?id=%s&id=%s", scheduled.ID, staffOnly.ID), tokenA)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.JSONEq(t, `{"affected":2}`, rec.Body.String())

		rec = do(srv, http.MethodGet, "/v1/notices/"+staffOnly.ID, tokenA)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestNotifications(t *testing.T) {
	app, srv := setup(t)
	s := seedTwoSchools(t, app)
	learner := app.Member(t, s.a, tenant.RoleStudent, "learner@alpha.test")
	parent := app.Member(t, s.a, tenant.RoleParent, "parent@alpha.test")
	tokenA, tokenS := app.Token(t, s.adminA), app.Token(t, learner)

	runTests(t, srv, []httpTest{
		{
			name:     "students cannot send",
			method:   http.MethodPost,
			path:     "/v1/notifications",
			token:    tokenS,
			body:     marshalObj(t, notification.SendMessage{RecipientIDs: []string{parent.User.ID}, Title: "hi", Body: "hello"}),
			wantCode: http.StatusForbidden,
		},
		{
			name:     "recipient of another tenant",
			method:   http.MethodPost,
			path:     "/v1/notifications",
			token:    tokenA,
			body:     marshalObj(t, notification.SendMessage{RecipientIDs: []string{s.adminB.User.ID}, Title: "hi", Body: "hello"}),
			wantCode: http.StatusBadRequest,
			wantData: marshalObj(t, httpErr{
				Error:   "invalid request",
				Details: []core.FieldError{{Field: "recipient_ids", Error: "member not found: " + s.adminB.User.ID}},
			}),
		},
		{
			name:     "no recipients",
			method:   http.MethodPost,
			path:     "/v1/notifications",
			token:    tokenA,
			body:     []byte(`{"title":"hi","body":"hello"}`),
			wantCode: http.StatusBadRequest,
		},
	})

	rec := do(srv, http.MethodPost, "/v1/notifications", tokenA, marshalObj(t, notification.SendMessage{
		RecipientIDs: []string{parent.User.ID},
		Roles:        []tenant.Role{tenant.RoleStudent, tenant.RoleAdmin},
		Title:        "Report cards",
		Body:         "Report cards are out.",
		Email:        true,
	}))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var sent []notification.Notification
	decode(t, rec, &sent)
	require.Len(t, sent, 2, "the sender is not notified")
	recipients := []string{sent[0].UserID, sent[1].UserID}
	assert.ElementsMatch(t, []string{parent.User.ID, learner.User.ID}, recipients)
	assert.Len(t, app.Queue.Jobs(core.JobPush), 2)
	assert.Len(t, app.Queue.Jobs(core.JobEmail), 2)

	var inbox core.Page[notification.Notification]
	rec = do(srv, http.MethodGet, "/v1/notifications?status=UNREAD", tokenS)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	decode(t, rec, &inbox)
	require.Equal(t, 1, inbox.Total)
	mine := inbox.Data[0]
	assert.Equal(t, "Report cards", mine.Title)
	assert.Equal(t, s.adminA.User.ID, mine.SenderID.String)

	var parentsID string
	for _, n := range sent {
		if n.UserID == parent.User.ID {
			parentsID = n.ID
		}
	}

	runTests(t, srv, []httpTest{
		{
			name:     "other inboxes do not exist",
			method:   http.MethodPut,
			path:     "/v1/notifications/" + parentsID + "/status",
			token:    tokenS,
			body:     []byte(`{"status":"READ"}`),
			wantCode: http.StatusNotFound,
			wantData: marshalObj(t, httpErr{Error: "notification not found"}),
		},
		{
			name:     "cannot go back to unread",
			method:   http.MethodPut,
			path:     "/v1/notifications/" + mine.ID + "/status",
			token:    tokenS,
			body:     []byte(`{"status":"UNREAD"}`),
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "read",
			method:   http.MethodPut,
			path:     "/v1/notifications/" + mine.ID + "/status",
			token:    tokenS,
			body:     []byte(`{"status":"READ"}`),
			wantCode: http.StatusOK,
		},
		{
			name:     "read twice",
			method:   http.MethodPut,
			path:     "/v1/notifications/" + mine.ID + "/status",
			token:    tokenS,
			body:     []byte(`{"status":"READ"}`),
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"error":"notification is already READ","reason":"duplicate_action","details":{"status":"READ"}}`),
		},
		{
			name:     "dismiss",
			method:   http.MethodPut,
			path:     "/v1/notifications/" + mine.ID + "/status",
			token:    tokenS,
			body:     []byte(`{"status":"DISMISSED"}`),
			wantCode: http.StatusOK,
		},
		{
			name:     "students cannot delete",
			method:   http.MethodDelete,
			path:     "/v1/notifications/" + mine.ID,
			token:    tokenS,
			wantCode: http.StatusForbidden,
		},
		{
			name:     "mark all read",
			method:   http.MethodPut,
			path:     "/v1/notifications/read-all",
			token:    app.Token(t, parent),
			wantCode: http.StatusOK,
			wantData: []byte(`{"affected":1}`),
		},
		{
			name:     "nothing left to read",
			method:   http.MethodPut,
			path:     "/v1/notifications/read-all",
			token:    app.Token(t, parent),
			wantCode: http.StatusOK,
			wantData: []byte(`{"affected":0}`),
		},
		{
			name:     "admin deletes any notification of the tenant",
			method:   http.MethodDelete,
			path:     "/v1/notifications/" + parentsID,
			token:    tokenA,
			wantCode: http.StatusNoContent,
		},
		{
			name:     "admin of another tenant",
			method:   http.MethodDelete,
			path:     "/v1/notifications/" + mine.ID,
			token:    app.Token(t, s.adminB),
			wantCode: http.StatusNotFound,
		},
	})
}
