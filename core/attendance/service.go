package attendance

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/policy"
	"github.com/trezcool/darasa/core/school"
	"github.com/trezcool/darasa/core/stats"
)

type Repository interface {
	// UpsertAttendance inserts the marks, updating the status, note and recorder of existing (lesson, student) pairs.
	UpsertAttendance(ctx context.Context, rows []Attendance, exec ...core.DBExecutor) error
	QueryAttendance(ctx context.Context, scope policy.Filter, filter Filter, ords []core.DBOrdering, page core.Pagination) ([]Attendance, int, error)
	CountAttendance(ctx context.Context, scope policy.Filter, filter Filter) (stats.AttendanceCounts, error)
	// LessonHeadcounts returns, for the scheduled lessons in scope that started before `until`, the class's
	// active enrollments and the lesson's PRESENT marks.
	LessonHeadcounts(ctx context.Context, scope policy.Filter, filter Filter, until time.Time) ([]stats.LessonAttendance, error)
}

type Service struct {
	repo    Repository
	schools *school.Service
	tx      core.Transactor
}

func NewService(repo Repository, schools *school.Service, tx core.Transactor) *Service {
	return &Service{repo: repo, schools: schools, tx: tx}
}

// Record upserts the attendance marks of a lesson. Every student must be actively enrolled in the lesson's class.
func (svc *Service) Record(ctx context.Context, p policy.Principal, lessonID string, ra RecordAttendance) ([]Attendance, error) {
	if err := policy.Authorize(p, policy.AttendanceRecord, policy.Context{}); err != nil {
		return nil, err
	}
	// a teacher only sees the lessons of their classes
	lesson, err := svc.schools.GetLesson(ctx, p, lessonID)
	if err != nil {
		return nil, err
	}
	if err = policy.Authorize(p, policy.AttendanceRecord, policy.On("lesson", lesson.TenantID, nil)); err != nil {
		return nil, err
	}
	if lesson.Status == school.LessonCancelled {
		return nil, core.NewInvariantError(
			core.ReasonInvalidTransition,
			"cannot record attendance for a cancelled lesson",
			map[string]interface{}{"status": lesson.Status},
		)
	}

	err = svc.tx.RunInTx(ctx, func(exec core.DBExecutor) error {
		enrolled, err := svc.schools.ActiveStudentIDs(ctx, lesson.ClassID, ra.StudentIDs(), exec)
		if err != nil {
			return err
		}
		active := make(map[string]bool, len(enrolled))
		for _, id := range enrolled {
			active[id] = true
		}
		var notEnrolled []string
		for _, id := range ra.StudentIDs() {
			if !active[id] {
				notEnrolled = append(notEnrolled, id)
			}
		}
		if len(notEnrolled) > 0 {
			return core.NewValidationError(nil, core.FieldError{
				Field: "marks",
				Error: "students not enrolled in this class: " + strings.Join(notEnrolled, ", "),
			})
		}

		now := core.NowFunc()
		rows := make([]Attendance, 0, len(ra.Marks))
		for _, m := range ra.Marks {
			rows = append(rows, Attendance{
				ID:         uuid.New().String(),
				TenantID:   lesson.TenantID,
				LessonID:   lesson.ID,
				ClassID:    lesson.ClassID,
				StudentID:  m.StudentID,
				Status:     m.Status,
				Note:       null.NewString(m.Note, m.Note != ""),
				RecordedBy: p.UserID,
				RecordedAt: now,
				UpdatedAt:  now,
			})
		}
		return errors.Wrap(svc.repo.UpsertAttendance(ctx, rows, exec), "upserting attendance")
	})
	if err != nil {
		return nil, err
	}

	marks, _, err := svc.repo.QueryAttendance(ctx, policy.Tenant(lesson.TenantID), Filter{LessonID: lesson.ID}, nil, core.Pagination{})
	return marks, errors.Wrap(err, "querying lesson attendance")
}

// ForLesson lists the marks of a lesson visible to p.
func (svc *Service) ForLesson(ctx context.Context, p policy.Principal, lessonID string) ([]Attendance, error) {
	lesson, err := svc.schools.GetLesson(ctx, p, lessonID)
	if err != nil {
		return nil, err
	}
	page, err := svc.Query(ctx, p, Filter{LessonID: lesson.ID}, nil, core.Pagination{})
	if err != nil {
		return nil, err
	}
	return page.Data, nil
}

func (svc *Service) Query(
	ctx context.Context,
	p policy.Principal,
	filter Filter,
	ords []core.DBOrdering,
	page core.Pagination,
) (core.Page[Attendance], error) {
	if err := policy.Authorize(p, policy.AttendanceRead, policy.Context{}); err != nil {
		return core.Page[Attendance]{}, err
	}
	ords = Ordering.Resolve(ords, core.DBOrdering{Field: "lesson_starts_at"})
	marks, total, err := svc.repo.QueryAttendance(ctx, policy.Scope(p), filter, ords, page)
	if err != nil {
		return core.Page[Attendance]{}, errors.Wrap(err, "querying attendance")
	}
	return core.NewPage(marks, page, total), nil
}

// Stats summarizes the attendance visible to p. Per-lesson rates are left out for students and
// parents, whose scope only holds their own marks.
func (svc *Service) Stats(ctx context.Context, p policy.Principal, filter Filter) (stats.AttendanceSummary, error) {
	if err := policy.Authorize(p, policy.AttendanceRead, policy.Context{}); err != nil {
		return stats.AttendanceSummary{}, err
	}
	scope := policy.Scope(p)
	counts, err := svc.repo.CountAttendance(ctx, scope, filter)
	if err != nil {
		return stats.AttendanceSummary{}, errors.Wrap(err, "counting attendance")
	}
	var lessons []stats.LessonAttendance
	if scope.Narrowing != policy.NarrowStudents {
		if lessons, err = svc.repo.LessonHeadcounts(ctx, scope, filter, core.NowFunc()); err != nil {
			return stats.AttendanceSummary{}, errors.Wrap(err, "counting lesson attendance")
		}
	}
	return stats.SummarizeAttendance(counts, lessons), nil
}

// StudentLine is one row of an attendance report.
type StudentLine struct {
	StudentID string
	Name      string
	Counts    stats.AttendanceCounts
	Rate      int
}

type ClassReport struct {
	Class    school.Class
	Students []StudentLine
	Counts   stats.AttendanceCounts
	Rate     int
}

type Report struct {
	From, To time.Time
	Classes  []ClassReport
	Total    stats.AttendanceCounts
	Rate     int
}

// Report aggregates the attendance of every class in scope per student, over [from, to].
func (svc *Service) Report(ctx context.Context, p policy.Principal, from, to time.Time) (Report, error) {
	if err := policy.Authorize(p, policy.ReportsRead, policy.Context{}); err != nil {
		return Report{}, err
	}
	classes, err := svc.schools.QueryClasses(ctx, p, school.ClassFilter{}, nil, core.Pagination{})
	if err != nil {
		return Report{}, err
	}
	students, err := svc.schools.QueryStudents(ctx, p, school.StudentFilter{}, nil, core.Pagination{})
	if err != nil {
		return Report{}, err
	}
	names := make(map[string]string, len(students.Data))
	for _, s := range students.Data {
		names[s.ID] = s.FullName()
	}

	marks, _, err := svc.repo.QueryAttendance(ctx, policy.Scope(p), Filter{From: from, To: to}, nil, core.Pagination{})
	if err != nil {
		return Report{}, errors.Wrap(err, "querying attendance")
	}
	byClass := make(map[string]map[string]*stats.AttendanceCounts)
	for _, m := range marks {
		perStudent, ok := byClass[m.ClassID]
		if !ok {
			perStudent = make(map[string]*stats.AttendanceCounts)
			byClass[m.ClassID] = perStudent
		}
		c, ok := perStudent[m.StudentID]
		if !ok {
			c = &stats.AttendanceCounts{}
			perStudent[m.StudentID] = c
		}
		*c = c.Add(countOf(m.Status))
	}

	rep := Report{From: from, To: to}
	for _, class := range classes.Data {
		cr := ClassReport{Class: class}
		for sid, c := range byClass[class.ID] {
			cr.Students = append(cr.Students, StudentLine{
				StudentID: sid,
				Name:      names[sid],
				Counts:    *c,
				Rate:      stats.Rate(c.Present, c.Total()),
			})
			cr.Counts = cr.Counts.Add(*c)
		}
		sort.Slice(cr.Students, func(i, j int) bool { return cr.Students[i].Name < cr.Students[j].Name })
		cr.Rate = stats.Rate(cr.Counts.Present, cr.Counts.Total())
		rep.Classes = append(rep.Classes, cr)
		rep.Total = rep.Total.Add(cr.Counts)
	}
	rep.Rate = stats.Rate(rep.Total.Present, rep.Total.Total())
	return rep, nil
}

func countOf(s Status) stats.AttendanceCounts {
	switch s {
	case StatusPresent:
		return stats.AttendanceCounts{Present: 1}
	case StatusAbsent:
		return stats.AttendanceCounts{Absent: 1}
	case StatusLate:
		return stats.AttendanceCounts{Late: 1}
	case StatusExcused:
		return stats.AttendanceCounts{Excused: 1}
	}
	return stats.AttendanceCounts{}
}
