// Package dashboard assembles the figures of the home screen from the domain services.
package dashboard

import (
	"context"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/attendance"
	"github.com/trezcool/darasa/core/notification"
	"github.com/trezcool/darasa/core/payment"
	"github.com/trezcool/darasa/core/policy"
	"github.com/trezcool/darasa/core/school"
	"github.com/trezcool/darasa/core/stats"
)

type Counts struct {
	Students int `json:"students"`
	Teachers int `json:"teachers"`
	Classes  int `json:"classes"`
	Lessons  int `json:"lessons"`
}

type Dashboard struct {
	Counts              Counts                  `json:"counts"`
	Attendance          stats.AttendanceSummary `json:"attendance"`
	Payments            *stats.PaymentSummary   `json:"payments,omitempty"`
	UnreadNotifications int                     `json:"unread_notifications"`
}

type Service struct {
	schools       *school.Service
	attendance    *attendance.Service
	payments      *payment.Service
	notifications *notification.Service
}

func NewService(
	schools *school.Service,
	attendance *attendance.Service,
	payments *payment.Service,
	notifications *notification.Service,
) *Service {
	return &Service{
		schools:       schools,
		attendance:    attendance,
		payments:      payments,
		notifications: notifications,
	}
}

var one = core.Pagination{Page: 1, Limit: 1}

// Get builds the dashboard of p. Every figure is computed over p's scope; payments are only
// included for principals allowed to read them.
func (svc *Service) Get(ctx context.Context, p policy.Principal) (Dashboard, error) {
	if err := policy.Authorize(p, policy.StatsRead, policy.Context{}); err != nil {
		return Dashboard{}, err
	}

	var (
		dash Dashboard
		err  error
	)
	if dash.Counts, err = svc.counts(ctx, p); err != nil {
		return Dashboard{}, err
	}
	if policy.Can(p, policy.AttendanceRead) {
		if dash.Attendance, err = svc.attendance.Stats(ctx, p, attendance.Filter{}); err != nil {
			return Dashboard{}, err
		}
	}
	if policy.Can(p, policy.PaymentsRead) {
		sum, err := svc.payments.Stats(ctx, p, payment.Filter{})
		if err != nil {
			return Dashboard{}, err
		}
		dash.Payments = &sum
	}
	if dash.UnreadNotifications, err = svc.notifications.CountUnread(ctx, p); err != nil {
		return Dashboard{}, err
	}
	return dash, nil
}

func (svc *Service) counts(ctx context.Context, p policy.Principal) (Counts, error) {
	var c Counts
	if policy.Can(p, policy.StudentsRead) {
		page, err := svc.schools.QueryStudents(ctx, p, school.StudentFilter{Status: school.StudentActive}, nil, one)
		if err != nil {
			return Counts{}, err
		}
		c.Students = page.Total
	}
	if policy.Can(p, policy.TeachersRead) {
		page, err := svc.schools.QueryTeachers(ctx, p, school.TeacherFilter{Status: school.TeacherActive}, nil, one)
		if err != nil {
			return Counts{}, err
		}
		c.Teachers = page.Total
	}
	if policy.Can(p, policy.ClassesRead) {
		page, err := svc.schools.QueryClasses(ctx, p, school.ClassFilter{Status: school.ClassActive}, nil, one)
		if err != nil {
			return Counts{}, err
		}
		c.Classes = page.Total
	}
	if policy.Can(p, policy.LessonsRead) {
		page, err := svc.schools.QueryLessons(ctx, p, school.LessonFilter{Status: school.LessonScheduled}, nil, one)
		if err != nil {
			return Counts{}, err
		}
		c.Lessons = page.Total
	}
	return c, nil
}
