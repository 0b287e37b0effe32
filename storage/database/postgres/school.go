package pgrepos

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/policy"
	"github.com/trezcool/darasa/core/school"
	"github.com/trezcool/darasa/core/tenant"
)

type schoolRepository struct {
	repository
}

func NewSchoolRepository(db *sqlx.DB) school.Repository {
	return &schoolRepository{repository{db: db}}
}

var (
	studentQuery = psql.Select(
		"s.id", "s.tenant_id", "s.user_id", "s.first_name", "s.last_name", "s.email", "s.date_of_birth",
		"s.grade", "s.status", "s.created_at", "s.updated_at",
		"ARRAY(SELECT sp.parent_user_id::text FROM student_parents sp WHERE sp.student_id = s.id ORDER BY 1) AS parent_user_ids",
	).From("students s")

	teacherQuery = psql.Select(
		"t.id", "t.tenant_id", "t.user_id", "t.first_name", "t.last_name", "t.email", "t.phone",
		"t.subject", "t.status", "t.created_at", "t.updated_at",
	).From("teachers t")

	classQuery = psql.Select(
		"c.id", "c.tenant_id", "c.name", "c.grade", "c.teacher_id", "c.max_students", "c.status",
		"c.created_at", "c.updated_at",
		"(SELECT count(*) FROM enrollments ce WHERE ce.class_id = c.id AND ce.status = 'ACTIVE') AS active_students",
	).From("classes c")

	lessonQuery = psql.Select(
		"l.id", "l.tenant_id", "l.class_id", "l.teacher_id", "l.title", "l.description", "l.starts_at",
		"l.ends_at", "l.status", "l.created_at", "l.updated_at",
	).From("lessons l")

	enrollmentColumns = []string{"id", "tenant_id", "class_id", "student_id", "status", "enrolled_at", "dropped_at"}
)

func findIDs(ctx context.Context, exec core.DBExecutor, table, alias string, scope sq.Sqlizer, ids []string) ([]string, error) {
	var found []string
	err := sel(ctx, exec, &found, psql.Select(alias+".id::text").From(table+" "+alias).Where(scope).Where(anyOf(alias+".id", ids)))
	return found, err
}

// ======== students ========

func (repo *schoolRepository) CreateStudent(ctx context.Context, s school.Student, exec ...core.DBExecutor) (school.Student, error) {
	_, err := run(ctx, repo.exec(exec), psql.Insert("students").
		Columns("id", "tenant_id", "user_id", "first_name", "last_name", "email", "date_of_birth", "grade", "status", "created_at", "updated_at").
		Values(s.ID, s.TenantID, s.UserID, s.FirstName, s.LastName, s.Email, s.DateOfBirth, s.Grade, s.Status, s.CreatedAt, s.UpdatedAt))
	if err != nil {
		return school.Student{}, errors.Wrap(err, "inserting student")
	}
	s.ParentUserIDs = pq.StringArray{}
	return s, nil
}

func (repo *schoolRepository) GetStudent(ctx context.Context, scope policy.Filter, id string, exec ...core.DBExecutor) (school.Student, error) {
	var s school.Student
	err := get(ctx, repo.exec(exec), &s, studentQuery.Where(studentScope(scope)).Where(sq.Eq{"s.id": id}))
	if isNoRows(err) {
		return school.Student{}, school.ErrStudentNotFound
	}
	return s, errors.Wrap(err, "selecting student")
}

func (repo *schoolRepository) QueryStudents(
	ctx context.Context,
	scope policy.Filter,
	filter school.StudentFilter,
	ords []core.DBOrdering,
	pg core.Pagination,
) ([]school.Student, int, error) {
	q := studentQuery.Where(studentScope(scope))
	if len(filter.IDs) > 0 {
		q = q.Where(anyOf("s.id", filter.IDs))
	}
	if filter.Grade != "" {
		q = q.Where(sq.Eq{"s.grade": filter.Grade})
	}
	if filter.Status != "" {
		q = q.Where(sq.Eq{"s.status": filter.Status})
	}
	if filter.ClassID != "" {
		q = q.Where(sq.Expr(
			"EXISTS (SELECT 1 FROM enrollments fe WHERE fe.student_id = s.id AND fe.class_id = ? AND fe.status = 'ACTIVE')",
			filter.ClassID,
		))
	}
	if filter.Search != "" {
		like := "%" + filter.Search + "%"
		q = q.Where(sq.Or{sq.ILike{"s.first_name || ' ' || s.last_name": like}, sq.ILike{"s.email": like}})
	}
	var rows []school.Student
	total, err := page(ctx, repo.db, &rows, q, ords, pg)
	return rows, total, errors.Wrap(err, "selecting students")
}

func (repo *schoolRepository) UpdateStudent(ctx context.Context, s school.Student, exec ...core.DBExecutor) (school.Student, error) {
	n, err := run(ctx, repo.exec(exec), psql.Update("students").
		SetMap(map[string]interface{}{
			"user_id":       s.UserID,
			"first_name":    s.FirstName,
			"last_name":     s.LastName,
			"email":         s.Email,
			"date_of_birth": s.DateOfBirth,
			"grade":         s.Grade,
			"status":        s.Status,
			"updated_at":    s.UpdatedAt,
		}).
		Where(sq.Eq{"id": s.ID}))
	if err != nil {
		return school.Student{}, errors.Wrap(err, "updating student")
	}
	if n == 0 {
		return school.Student{}, school.ErrStudentNotFound
	}
	return s, nil
}

func (repo *schoolRepository) SetStudentParents(ctx context.Context, studentID string, parentUserIDs []string, exec ...core.DBExecutor) error {
	ex := repo.exec(exec)
	if _, err := run(ctx, ex, psql.Delete("student_parents").Where(sq.Eq{"student_id": studentID})); err != nil {
		return errors.Wrap(err, "clearing parents")
	}
	if len(parentUserIDs) == 0 {
		return nil
	}
	ins := psql.Insert("student_parents").Columns("student_id", "parent_user_id")
	for _, id := range parentUserIDs {
		ins = ins.Values(studentID, id)
	}
	_, err := run(ctx, ex, ins)
	return errors.Wrap(err, "inserting parents")
}

func (repo *schoolRepository) AddStudentParent(ctx context.Context, studentIDs []string, parentUserID string, exec ...core.DBExecutor) error {
	if len(studentIDs) == 0 {
		return nil
	}
	ins := psql.Insert("student_parents").Columns("student_id", "parent_user_id")
	for _, id := range studentIDs {
		ins = ins.Values(id, parentUserID)
	}
	_, err := run(ctx, repo.exec(exec), ins.Suffix("ON CONFLICT DO NOTHING"))
	return errors.Wrap(err, "inserting parent")
}

func (repo *schoolRepository) SetStudentsStatus(
	ctx context.Context,
	scope policy.Filter,
	ids []string,
	from, to school.StudentStatus,
	exec ...core.DBExecutor,
) (int, error) {
	n, err := run(ctx, repo.exec(exec), psql.Update("students s").
		Set("status", to).
		Set("updated_at", core.NowFunc()).
		Where(studentScope(scope)).
		Where(anyOf("s.id", ids)).
		Where(sq.Eq{"s.status": from}))
	return n, errors.Wrap(err, "updating students status")
}

func (repo *schoolRepository) FindStudentIDs(ctx context.Context, scope policy.Filter, ids []string, exec ...core.DBExecutor) ([]string, error) {
	found, err := findIDs(ctx, repo.exec(exec), "students", "s", studentScope(scope), ids)
	return found, errors.Wrap(err, "finding students")
}

func (repo *schoolRepository) LinkedStudentIDs(ctx context.Context, tenantID, userID string, parent bool) ([]string, error) {
	q := psql.Select("s.id::text").From("students s").Where(sq.Eq{"s.tenant_id": tenantID}).OrderBy("1")
	if parent {
		q = q.Where(sq.Expr("EXISTS (SELECT 1 FROM student_parents sp WHERE sp.student_id = s.id AND sp.parent_user_id = ?)", userID))
	} else {
		q = q.Where(sq.Eq{"s.user_id": userID})
	}
	ids := []string{}
	err := sel(ctx, repo.db, &ids, q)
	return ids, errors.Wrap(err, "selecting linked students")
}

func (repo *schoolRepository) FindParentUserIDs(ctx context.Context, tenantID string, userIDs []string, exec ...core.DBExecutor) ([]string, error) {
	var found []string
	err := sel(ctx, repo.exec(exec), &found, psql.Select("user_id::text").From("memberships").
		Where(sq.Eq{"tenant_id": tenantID, "role": tenant.RoleParent, "status": tenant.MembershipActive}).
		Where(anyOf("user_id", userIDs)))
	return found, errors.Wrap(err, "finding parents")
}

// ======== teachers ========

func (repo *schoolRepository) CreateTeacher(ctx context.Context, t school.Teacher, exec ...core.DBExecutor) (school.Teacher, error) {
	_, err := run(ctx, repo.exec(exec), psql.Insert("teachers").
		Columns("id", "tenant_id", "user_id", "first_name", "last_name", "email", "phone", "subject", "status", "created_at", "updated_at").
		Values(t.ID, t.TenantID, t.UserID, t.FirstName, t.LastName, t.Email, t.Phone, t.Subject, t.Status, t.CreatedAt, t.UpdatedAt))
	return t, errors.Wrap(err, "inserting teacher")
}

func (repo *schoolRepository) getTeacher(ctx context.Context, pred sq.Sqlizer, exec []core.DBExecutor) (school.Teacher, error) {
	var t school.Teacher
	err := get(ctx, repo.exec(exec), &t, teacherQuery.Where(pred))
	if isNoRows(err) {
		return school.Teacher{}, school.ErrTeacherNotFound
	}
	return t, errors.Wrap(err, "selecting teacher")
}

func (repo *schoolRepository) GetTeacher(ctx context.Context, scope policy.Filter, id string, exec ...core.DBExecutor) (school.Teacher, error) {
	return repo.getTeacher(ctx, sq.And{teacherScope(scope), sq.Eq{"t.id": id}}, exec)
}

func (repo *schoolRepository) GetTeacherByUser(ctx context.Context, tenantID, userID string) (school.Teacher, error) {
	return repo.getTeacher(ctx, sq.Eq{"t.tenant_id": tenantID, "t.user_id": userID}, nil)
}

func (repo *schoolRepository) QueryTeachers(
	ctx context.Context,
	scope policy.Filter,
	filter school.TeacherFilter,
	ords []core.DBOrdering,
	pg core.Pagination,
) ([]school.Teacher, int, error) {
	q := teacherQuery.Where(teacherScope(scope))
	if filter.Status != "" {
		q = q.Where(sq.Eq{"t.status": filter.Status})
	}
	if filter.Subject != "" {
		q = q.Where(sq.ILike{"t.subject": "%" + filter.Subject + "%"})
	}
	if filter.Search != "" {
		like := "%" + filter.Search + "%"
		q = q.Where(sq.Or{sq.ILike{"t.first_name || ' ' || t.last_name": like}, sq.ILike{"t.email": like}})
	}
	var rows []school.Teacher
	total, err := page(ctx, repo.db, &rows, q, ords, pg)
	return rows, total, errors.Wrap(err, "selecting teachers")
}

func (repo *schoolRepository) UpdateTeacher(ctx context.Context, t school.Teacher, exec ...core.DBExecutor) (school.Teacher, error) {
	n, err := run(ctx, repo.exec(exec), psql.Update("teachers").
		SetMap(map[string]interface{}{
			"user_id":    t.UserID,
			"first_name": t.FirstName,
			"last_name":  t.LastName,
			"email":      t.Email,
			"phone":      t.Phone,
			"subject":    t.Subject,
			"status":     t.Status,
			"updated_at": t.UpdatedAt,
		}).
		Where(sq.Eq{"id": t.ID}))
	if err != nil {
		return school.Teacher{}, errors.Wrap(err, "updating teacher")
	}
	if n == 0 {
		return school.Teacher{}, school.ErrTeacherNotFound
	}
	return t, nil
}

func (repo *schoolRepository) SetTeachersStatus(
	ctx context.Context,
	scope policy.Filter,
	ids []string,
	from, to school.TeacherStatus,
	exec ...core.DBExecutor,
) (int, error) {
	n, err := run(ctx, repo.exec(exec), psql.Update("teachers t").
		Set("status", to).
		Set("updated_at", core.NowFunc()).
		Where(teacherScope(scope)).
		Where(anyOf("t.id", ids)).
		Where(sq.Eq{"t.status": from}))
	return n, errors.Wrap(err, "updating teachers status")
}

func (repo *schoolRepository) FindTeacherIDs(ctx context.Context, scope policy.Filter, ids []string, exec ...core.DBExecutor) ([]string, error) {
	found, err := findIDs(ctx, repo.exec(exec), "teachers", "t", teacherScope(scope), ids)
	return found, errors.Wrap(err, "finding teachers")
}

// ======== classes ========

func (repo *schoolRepository) CreateClass(ctx context.Context, c school.Class, exec ...core.DBExecutor) (school.Class, error) {
	_, err := run(ctx, repo.exec(exec), psql.Insert("classes").
		Columns("id", "tenant_id", "name", "grade", "teacher_id", "max_students", "status", "created_at", "updated_at").
		Values(c.ID, c.TenantID, c.Name, c.Grade, c.TeacherID, c.MaxStudents, c.Status, c.CreatedAt, c.UpdatedAt))
	return c, errors.Wrap(err, "inserting class")
}

func (repo *schoolRepository) GetClass(ctx context.Context, scope policy.Filter, id string, exec ...core.DBExecutor) (school.Class, error) {
	var c school.Class
	err := get(ctx, repo.exec(exec), &c, classQuery.Where(classScope(scope)).Where(sq.Eq{"c.id": id}))
	if isNoRows(err) {
		return school.Class{}, school.ErrClassNotFound
	}
	return c, errors.Wrap(err, "selecting class")
}

// LockClass takes a row lock on the class for the rest of the transaction.
func (repo *schoolRepository) LockClass(ctx context.Context, scope policy.Filter, id string, exec core.DBExecutor) (school.Class, error) {
	var c school.Class
	err := get(ctx, repo.exec([]core.DBExecutor{exec}), &c,
		classQuery.Where(classScope(scope)).Where(sq.Eq{"c.id": id}).Suffix("FOR UPDATE OF c"))
	if isNoRows(err) {
		return school.Class{}, school.ErrClassNotFound
	}
	return c, errors.Wrap(err, "locking class")
}

func (repo *schoolRepository) QueryClasses(
	ctx context.Context,
	scope policy.Filter,
	filter school.ClassFilter,
	ords []core.DBOrdering,
	pg core.Pagination,
) ([]school.Class, int, error) {
	q := classQuery.Where(classScope(scope))
	if filter.Grade != "" {
		q = q.Where(sq.Eq{"c.grade": filter.Grade})
	}
	if filter.TeacherID != "" {
		q = q.Where(sq.Eq{"c.teacher_id": filter.TeacherID})
	}
	if filter.Status != "" {
		q = q.Where(sq.Eq{"c.status": filter.Status})
	}
	if filter.Search != "" {
		q = q.Where(sq.ILike{"c.name": "%" + filter.Search + "%"})
	}
	var rows []school.Class
	total, err := page(ctx, repo.db, &rows, q, ords, pg)
	return rows, total, errors.Wrap(err, "selecting classes")
}

func (repo *schoolRepository) UpdateClass(ctx context.Context, c school.Class, exec ...core.DBExecutor) (school.Class, error) {
	n, err := run(ctx, repo.exec(exec), psql.Update("classes").
		SetMap(map[string]interface{}{
			"name":         c.Name,
			"grade":        c.Grade,
			"teacher_id":   c.TeacherID,
			"max_students": c.MaxStudents,
			"status":       c.Status,
			"updated_at":   c.UpdatedAt,
		}).
		Where(sq.Eq{"id": c.ID}))
	if err != nil {
		return school.Class{}, errors.Wrap(err, "updating class")
	}
	if n == 0 {
		return school.Class{}, school.ErrClassNotFound
	}
	return c, nil
}

func (repo *schoolRepository) SetClassesStatus(
	ctx context.Context,
	scope policy.Filter,
	ids []string,
	from, to school.ClassStatus,
	exec ...core.DBExecutor,
) (int, error) {
	n, err := run(ctx, repo.exec(exec), psql.Update("classes c").
		Set("status", to).
		Set("updated_at", core.NowFunc()).
		Where(classScope(scope)).
		Where(anyOf("c.id", ids)).
		Where(sq.Eq{"c.status": from}))
	return n, errors.Wrap(err, "updating classes status")
}

func (repo *schoolRepository) FindClassIDs(ctx context.Context, scope policy.Filter, ids []string, exec ...core.DBExecutor) ([]string, error) {
	found, err := findIDs(ctx, repo.exec(exec), "classes", "c", classScope(scope), ids)
	return found, errors.Wrap(err, "finding classes")
}

// ======== enrollments ========

func (repo *schoolRepository) CountActiveEnrollments(ctx context.Context, classID string, exec ...core.DBExecutor) (int, error) {
	var n int
	err := get(ctx, repo.exec(exec), &n, psql.Select("count(*)").From("enrollments").
		Where(sq.Eq{"class_id": classID, "status": school.EnrollmentActive}))
	return n, errors.Wrap(err, "counting enrollments")
}

func (repo *schoolRepository) QueryEnrollments(ctx context.Context, classID string, studentIDs []string, exec ...core.DBExecutor) ([]school.Enrollment, error) {
	var rows []school.Enrollment
	err := sel(ctx, repo.exec(exec), &rows, psql.Select(enrollmentColumns...).From("enrollments").
		Where(sq.Eq{"class_id": classID}).
		Where(anyOf("student_id", studentIDs)))
	return rows, errors.Wrap(err, "selecting enrollments")
}

func (repo *schoolRepository) CreateEnrollments(ctx context.Context, rows []school.Enrollment, exec ...core.DBExecutor) error {
	if len(rows) == 0 {
		return nil
	}
	ins := psql.Insert("enrollments").Columns(enrollmentColumns...)
	for _, e := range rows {
		ins = ins.Values(e.ID, e.TenantID, e.ClassID, e.StudentID, e.Status, e.EnrolledAt, e.DroppedAt)
	}
	_, err := run(ctx, repo.exec(exec), ins)
	if isUniqueViolation(err, "") {
		return core.NewInvariantError(core.ReasonAlreadyEnrolled, "student already has an enrollment in this class", nil)
	}
	return errors.Wrap(err, "inserting enrollments")
}

func (repo *schoolRepository) SetEnrollmentsStatus(
	ctx context.Context,
	ids []string,
	status school.EnrollmentStatus,
	at time.Time,
	exec ...core.DBExecutor,
) error {
	if len(ids) == 0 {
		return nil
	}
	q := psql.Update("enrollments").Set("status", status).Where(anyOf("id", ids))
	if status == school.EnrollmentActive {
		q = q.Set("enrolled_at", at).Set("dropped_at", null.Time{})
	} else {
		q = q.Set("dropped_at", at)
	}
	_, err := run(ctx, repo.exec(exec), q)
	return errors.Wrap(err, "updating enrollments status")
}

// ======== lessons ========

func (repo *schoolRepository) CreateLesson(ctx context.Context, l school.Lesson, exec ...core.DBExecutor) (school.Lesson, error) {
	_, err := run(ctx, repo.exec(exec), psql.Insert("lessons").
		Columns("id", "tenant_id", "class_id", "teacher_id", "title", "description", "starts_at", "ends_at", "status", "created_at", "updated_at").
		Values(l.ID, l.TenantID, l.ClassID, l.TeacherID, l.Title, l.Description, l.StartsAt, l.EndsAt, l.Status, l.CreatedAt, l.UpdatedAt))
	return l, errors.Wrap(err, "inserting lesson")
}

func (repo *schoolRepository) GetLesson(ctx context.Context, scope policy.Filter, id string, exec ...core.DBExecutor) (school.Lesson, error) {
	var l school.Lesson
	err := get(ctx, repo.exec(exec), &l, lessonQuery.Where(lessonScope(scope)).Where(sq.Eq{"l.id": id}))
	if isNoRows(err) {
		return school.Lesson{}, school.ErrLessonNotFound
	}
	return l, errors.Wrap(err, "selecting lesson")
}

func (repo *schoolRepository) QueryLessons(
	ctx context.Context,
	scope policy.Filter,
	filter school.LessonFilter,
	ords []core.DBOrdering,
	pg core.Pagination,
) ([]school.Lesson, int, error) {
	q := lessonQuery.Where(lessonScope(scope))
	if filter.ClassID != "" {
		q = q.Where(sq.Eq{"l.class_id": filter.ClassID})
	}
	if filter.TeacherID != "" {
		q = q.Where(sq.Eq{"l.teacher_id": filter.TeacherID})
	}
	if filter.Status != "" {
		q = q.Where(sq.Eq{"l.status": filter.Status})
	}
	if !filter.From.IsZero() {
		q = q.Where(sq.GtOrEq{"l.starts_at": filter.From})
	}
	if !filter.To.IsZero() {
		q = q.Where(sq.LtOrEq{"l.starts_at": filter.To})
	}
	var rows []school.Lesson
	total, err := page(ctx, repo.db, &rows, q, ords, pg)
	return rows, total, errors.Wrap(err, "selecting lessons")
}

func (repo *schoolRepository) UpdateLesson(ctx context.Context, l school.Lesson, exec ...core.DBExecutor) (school.Lesson, error) {
	n, err := run(ctx, repo.exec(exec), psql.Update("lessons").
		SetMap(map[string]interface{}{
			"teacher_id":  l.TeacherID,
			"title":       l.Title,
			"description": l.Description,
			"starts_at":   l.StartsAt,
			"ends_at":     l.EndsAt,
			"status":      l.Status,
			"updated_at":  l.UpdatedAt,
		}).
		Where(sq.Eq{"id": l.ID}))
	if err != nil {
		return school.Lesson{}, errors.Wrap(err, "updating lesson")
	}
	if n == 0 {
		return school.Lesson{}, school.ErrLessonNotFound
	}
	return l, nil
}
