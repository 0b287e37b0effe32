package pgrepos

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/attendance"
	"github.com/trezcool/darasa/core/policy"
	"github.com/trezcool/darasa/core/school"
	"github.com/trezcool/darasa/core/stats"
)

type attendanceRepository struct {
	repository
}

func NewAttendanceRepository(db *sqlx.DB) attendance.Repository {
	return &attendanceRepository{repository{db: db}}
}

var attendanceQuery = psql.Select(
	"a.id", "a.tenant_id", "a.lesson_id", "a.class_id", "a.student_id", "a.status", "a.note",
	"a.recorded_by", "a.recorded_at", "a.updated_at", "al.starts_at AS lesson_starts_at",
).
	From("attendance a").
	Join("lessons al ON al.id = a.lesson_id")

func filterAttendance(q sq.SelectBuilder, filter attendance.Filter) sq.SelectBuilder {
	if filter.ClassID != "" {
		q = q.Where(sq.Eq{"a.class_id": filter.ClassID})
	}
	if filter.LessonID != "" {
		q = q.Where(sq.Eq{"a.lesson_id": filter.LessonID})
	}
	if filter.StudentID != "" {
		q = q.Where(sq.Eq{"a.student_id": filter.StudentID})
	}
	if filter.Status != "" {
		q = q.Where(sq.Eq{"a.status": filter.Status})
	}
	if !filter.From.IsZero() {
		q = q.Where(sq.GtOrEq{"al.starts_at": filter.From})
	}
	if !filter.To.IsZero() {
		q = q.Where(sq.LtOrEq{"al.starts_at": filter.To})
	}
	return q
}

func (repo *attendanceRepository) UpsertAttendance(ctx context.Context, rows []attendance.Attendance, exec ...core.DBExecutor) error {
	if len(rows) == 0 {
		return nil
	}
	ins := psql.Insert("attendance").Columns(
		"id", "tenant_id", "lesson_id", "class_id", "student_id", "status", "note", "recorded_by", "recorded_at", "updated_at",
	)
	for _, a := range rows {
		ins = ins.Values(a.ID, a.TenantID, a.LessonID, a.ClassID, a.StudentID, a.Status, a.Note, a.RecordedBy, a.RecordedAt, a.UpdatedAt)
	}
	ins = ins.Suffix(`ON CONFLICT (lesson_id, student_id) DO UPDATE SET
		status = EXCLUDED.status,
		note = EXCLUDED.note,
		recorded_by = EXCLUDED.recorded_by,
		updated_at = EXCLUDED.updated_at`)
	_, err := run(ctx, repo.exec(exec), ins)
	return errors.Wrap(err, "upserting attendance")
}

func (repo *attendanceRepository) QueryAttendance(
	ctx context.Context,
	scope policy.Filter,
	filter attendance.Filter,
	ords []core.DBOrdering,
	pg core.Pagination,
) ([]attendance.Attendance, int, error) {
	q := filterAttendance(attendanceQuery.Where(attendanceScope(scope)), filter)
	if len(ords) == 0 {
		ords = []core.DBOrdering{{Field: "recorded_at", Ascending: true}}
	}
	var rows []attendance.Attendance
	total, err := page(ctx, repo.db, &rows, q, ords, pg)
	return rows, total, errors.Wrap(err, "selecting attendance")
}

func (repo *attendanceRepository) CountAttendance(ctx context.Context, scope policy.Filter, filter attendance.Filter) (stats.AttendanceCounts, error) {
	q := psql.Select(
		"count(*) FILTER (WHERE a.status = 'PRESENT') AS present",
		"count(*) FILTER (WHERE a.status = 'ABSENT') AS absent",
		"count(*) FILTER (WHERE a.status = 'LATE') AS late",
		"count(*) FILTER (WHERE a.status = 'EXCUSED') AS excused",
	).
		From("attendance a").
		Join("lessons al ON al.id = a.lesson_id").
		Where(attendanceScope(scope))

	var c struct {
		Present int `db:"present"`
		Absent  int `db:"absent"`
		Late    int `db:"late"`
		Excused int `db:"excused"`
	}
	if err := get(ctx, repo.db, &c, filterAttendance(q, filter)); err != nil {
		return stats.AttendanceCounts{}, errors.Wrap(err, "counting attendance")
	}
	return stats.AttendanceCounts{Present: c.Present, Absent: c.Absent, Late: c.Late, Excused: c.Excused}, nil
}

func (repo *attendanceRepository) LessonHeadcounts(
	ctx context.Context,
	scope policy.Filter,
	filter attendance.Filter,
	until time.Time,
) ([]stats.LessonAttendance, error) {
	q := psql.Select(
		"l.id::text AS lesson_id",
		"(SELECT count(*) FROM enrollments le WHERE le.class_id = l.class_id AND le.status = 'ACTIVE') AS enrolled",
		"(SELECT count(*) FROM attendance la JOIN enrollments pe ON pe.class_id = l.class_id AND pe.student_id = la.student_id"+
			" WHERE la.lesson_id = l.id AND la.status = 'PRESENT' AND pe.status = 'ACTIVE') AS present",
	).
		From("lessons l").
		Where(lessonScope(scope)).
		Where(sq.Eq{"l.status": school.LessonScheduled}).
		Where(sq.Lt{"l.starts_at": until}).
		OrderBy("l.id")
	if filter.ClassID != "" {
		q = q.Where(sq.Eq{"l.class_id": filter.ClassID})
	}
	if filter.LessonID != "" {
		q = q.Where(sq.Eq{"l.id": filter.LessonID})
	}
	if !filter.From.IsZero() {
		q = q.Where(sq.GtOrEq{"l.starts_at": filter.From})
	}
	if !filter.To.IsZero() {
		q = q.Where(sq.LtOrEq{"l.starts_at": filter.To})
	}

	var rows []struct {
		LessonID string `db:"lesson_id"`
		Enrolled int    `db:"enrolled"`
		Present  int    `db:"present"`
	}
	if err := sel(ctx, repo.db, &rows, q); err != nil {
		return nil, errors.Wrap(err, "selecting lesson headcounts")
	}
	out := make([]stats.LessonAttendance, len(rows))
	for i, r := range rows {
		out[i] = stats.LessonAttendance{LessonID: r.LessonID, Enrolled: r.Enrolled, Present: r.Present}
	}
	return out, nil
}
