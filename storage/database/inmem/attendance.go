package inmemdb

import (
	"context"
	"time"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/attendance"
	"github.com/trezcool/darasa/core/policy"
	"github.com/trezcool/darasa/core/school"
	"github.com/trezcool/darasa/core/stats"
)

type attendanceRepository struct {
	db *DB
}

func NewAttendanceRepository(db *DB) attendance.Repository {
	return &attendanceRepository{db: db}
}

func (t tables) attendanceVisible(scope policy.Filter, a attendance.Attendance) bool {
	if !inTenant(scope.TenantID, a.TenantID) {
		return false
	}
	switch scope.Narrowing {
	case policy.NarrowTeacher:
		if t.teachesClass(scope.TeacherID, a.ClassID) {
			return true
		}
		l, ok := t.lessons[a.LessonID]
		return ok && scope.TeacherID != "" && l.TeacherID.Valid && l.TeacherID.String == scope.TeacherID
	case policy.NarrowStudents:
		return contains(scope.StudentIDs, a.StudentID)
	}
	return true
}

func matchAttendance(filter attendance.Filter, a attendance.Attendance) bool {
	switch {
	case filter.ClassID != "" && a.ClassID != filter.ClassID,
		filter.LessonID != "" && a.LessonID != filter.LessonID,
		filter.StudentID != "" && a.StudentID != filter.StudentID,
		filter.Status != "" && a.Status != filter.Status:
		return false
	}
	return matchLessonWindow(filter, a.LessonStartsAt)
}

func matchLessonWindow(filter attendance.Filter, startsAt time.Time) bool {
	if !filter.From.IsZero() && startsAt.Before(filter.From) {
		return false
	}
	return filter.To.IsZero() || !startsAt.After(filter.To)
}

// marks joins the marks in scope with their lesson's start. The caller holds the lock.
func (repo *attendanceRepository) marks(scope policy.Filter, filter attendance.Filter) []attendance.Attendance {
	var rows []attendance.Attendance
	for _, a := range repo.db.attendance {
		a.LessonStartsAt = repo.db.lessons[a.LessonID].StartsAt
		if repo.db.attendanceVisible(scope, a) && matchAttendance(filter, a) {
			rows = append(rows, a)
		}
	}
	return rows
}

func (repo *attendanceRepository) UpsertAttendance(_ context.Context, rows []attendance.Attendance, exec ...core.DBExecutor) error {
	defer repo.db.lockWrite(exec...)()

	for _, a := range rows {
		for id, existing := range repo.db.attendance {
			if existing.LessonID == a.LessonID && existing.StudentID == a.StudentID {
				existing.Status = a.Status
				existing.Note = a.Note
				existing.RecordedBy = a.RecordedBy
				existing.UpdatedAt = a.UpdatedAt
				repo.db.attendance[id] = existing
				a.ID = ""
				break
			}
		}
		if a.ID != "" {
			a.LessonStartsAt = time.Time{}
			repo.db.attendance[a.ID] = a
		}
	}
	return nil
}

func (repo *attendanceRepository) QueryAttendance(
	_ context.Context,
	scope policy.Filter,
	filter attendance.Filter,
	ords []core.DBOrdering,
	page core.Pagination,
) ([]attendance.Attendance, int, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	rows := repo.marks(scope, filter)
	if len(ords) == 0 {
		ords = []core.DBOrdering{{Field: "recorded_at", Ascending: true}}
	}
	sortRows(rows, ords, func(a attendance.Attendance, col string) interface{} {
		switch col {
		case "status":
			return string(a.Status)
		case "lesson_starts_at":
			return a.LessonStartsAt
		}
		return a.RecordedAt
	})
	rows, total := paginate(rows, page)
	return rows, total, nil
}

func (repo *attendanceRepository) CountAttendance(_ context.Context, scope policy.Filter, filter attendance.Filter) (stats.AttendanceCounts, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var c stats.AttendanceCounts
	for _, a := range repo.marks(scope, filter) {
		switch a.Status {
		case attendance.StatusPresent:
			c.Present++
		case attendance.StatusAbsent:
			c.Absent++
		case attendance.StatusLate:
			c.Late++
		case attendance.StatusExcused:
			c.Excused++
		}
	}
	return c, nil
}

func (repo *attendanceRepository) LessonHeadcounts(
	_ context.Context,
	scope policy.Filter,
	filter attendance.Filter,
	until time.Time,
) ([]stats.LessonAttendance, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var rows []stats.LessonAttendance
	for _, l := range repo.db.lessons {
		if l.Status != school.LessonScheduled || !l.StartsAt.Before(until) || !repo.db.lessonVisible(scope, l) {
			continue
		}
		if filter.ClassID != "" && l.ClassID != filter.ClassID || filter.LessonID != "" && l.ID != filter.LessonID {
			continue
		}
		if !matchLessonWindow(filter, l.StartsAt) {
			continue
		}
		// only marks of students still enrolled count, so Present never exceeds Enrolled
		la := stats.LessonAttendance{LessonID: l.ID}
		active := make(map[string]bool)
		for _, e := range repo.db.enrollments {
			if e.ClassID == l.ClassID && e.IsActive() {
				la.Enrolled++
				active[e.StudentID] = true
			}
		}
		for _, a := range repo.db.attendance {
			if a.LessonID == l.ID && a.Status == attendance.StatusPresent && active[a.StudentID] {
				la.Present++
			}
		}
		rows = append(rows, la)
	}
	sortRows(rows, []core.DBOrdering{{Field: "lesson_id", Ascending: true}}, func(la stats.LessonAttendance, _ string) interface{} {
		return la.LessonID
	})
	return rows, nil
}
