package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/policy"
	"github.com/trezcool/darasa/core/school"
	"github.com/trezcool/darasa/core/tenant"
)

// ======== scope predicates (the caller holds the lock) ========

func (t tables) activeEnrollment(classID, studentID string) bool {
	for _, e := range t.enrollments {
		if e.ClassID == classID && e.StudentID == studentID && e.IsActive() {
			return true
		}
	}
	return false
}

func (t tables) teachesClass(teacherID, classID string) bool {
	c, ok := t.classes[classID]
	return ok && teacherID != "" && c.TeacherID.Valid && c.TeacherID.String == teacherID
}

func (t tables) studentVisible(scope policy.Filter, s school.Student) bool {
	if !inTenant(scope.TenantID, s.TenantID) {
		return false
	}
	switch scope.Narrowing {
	case policy.NarrowTeacher:
		for _, e := range t.enrollments {
			if e.StudentID == s.ID && e.IsActive() && t.teachesClass(scope.TeacherID, e.ClassID) {
				return true
			}
		}
		return false
	case policy.NarrowStudents:
		return contains(scope.StudentIDs, s.ID)
	}
	return true
}

func (t tables) teacherVisible(scope policy.Filter, tch school.Teacher) bool {
	return inTenant(scope.TenantID, tch.TenantID) && scope.Narrowing != policy.NarrowStudents
}

func (t tables) classVisible(scope policy.Filter, c school.Class) bool {
	if !inTenant(scope.TenantID, c.TenantID) {
		return false
	}
	switch scope.Narrowing {
	case policy.NarrowTeacher:
		return t.teachesClass(scope.TeacherID, c.ID)
	case policy.NarrowStudents:
		for _, sid := range scope.StudentIDs {
			if t.activeEnrollment(c.ID, sid) {
				return true
			}
		}
		return false
	}
	return true
}

func (t tables) lessonVisible(scope policy.Filter, l school.Lesson) bool {
	if !inTenant(scope.TenantID, l.TenantID) {
		return false
	}
	switch scope.Narrowing {
	case policy.NarrowTeacher:
		return t.teachesClass(scope.TeacherID, l.ClassID) ||
			(scope.TeacherID != "" && l.TeacherID.Valid && l.TeacherID.String == scope.TeacherID)
	case policy.NarrowStudents:
		c, ok := t.classes[l.ClassID]
		return ok && t.classVisible(scope, c)
	}
	return true
}

func (t tables) student(s school.Student) school.Student {
	s.ParentUserIDs = append([]string{}, t.studentParents[s.ID]...)
	sort.Strings(s.ParentUserIDs)
	return s
}

func (t tables) class(c school.Class) school.Class {
	c.ActiveStudents = 0
	for _, e := range t.enrollments {
		if e.ClassID == c.ID && e.IsActive() {
			c.ActiveStudents++
		}
	}
	return c
}

type schoolRepository struct {
	db *DB
}

func NewSchoolRepository(db *DB) school.Repository {
	return &schoolRepository{db: db}
}

// ======== students ========

func (repo *schoolRepository) CreateStudent(_ context.Context, s school.Student, exec ...core.DBExecutor) (school.Student, error) {
	defer repo.db.lockWrite(exec...)()

	s.ParentUserIDs = nil
	repo.db.students[s.ID] = s
	return repo.db.student(s), nil
}

func (repo *schoolRepository) GetStudent(_ context.Context, scope policy.Filter, id string, _ ...core.DBExecutor) (school.Student, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	s, ok := repo.db.students[id]
	if !ok || !repo.db.studentVisible(scope, s) {
		return school.Student{}, school.ErrStudentNotFound
	}
	return repo.db.student(s), nil
}

func (repo *schoolRepository) QueryStudents(
	_ context.Context,
	scope policy.Filter,
	filter school.StudentFilter,
	ords []core.DBOrdering,
	page core.Pagination,
) ([]school.Student, int, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	ids := idSet(filter.IDs)
	var rows []school.Student
	for _, s := range repo.db.students {
		if !repo.db.studentVisible(scope, s) {
			continue
		}
		if len(filter.IDs) > 0 && !ids[s.ID] {
			continue
		}
		if filter.Grade != "" && s.Grade != filter.Grade {
			continue
		}
		if filter.Status != "" && s.Status != filter.Status {
			continue
		}
		if filter.ClassID != "" && !repo.db.activeEnrollment(filter.ClassID, s.ID) {
			continue
		}
		if filter.Search != "" && !containsFold(s.FullName(), filter.Search) && !containsFold(s.Email.String, filter.Search) {
			continue
		}
		rows = append(rows, repo.db.student(s))
	}
	sortRows(rows, ords, func(s school.Student, col string) interface{} {
		switch col {
		case "first_name":
			return s.FirstName
		case "last_name":
			return s.LastName
		case "grade":
			return s.Grade
		case "status":
			return string(s.Status)
		}
		return s.CreatedAt
	})
	rows, total := paginate(rows, page)
	return rows, total, nil
}

func (repo *schoolRepository) UpdateStudent(_ context.Context, s school.Student, exec ...core.DBExecutor) (school.Student, error) {
	defer repo.db.lockWrite(exec...)()

	if _, ok := repo.db.students[s.ID]; !ok {
		return school.Student{}, school.ErrStudentNotFound
	}
	s.ParentUserIDs = nil
	repo.db.students[s.ID] = s
	return repo.db.student(s), nil
}

func (repo *schoolRepository) SetStudentParents(_ context.Context, studentID string, parentUserIDs []string, exec ...core.DBExecutor) error {
	defer repo.db.lockWrite(exec...)()

	if len(parentUserIDs) == 0 {
		delete(repo.db.studentParents, studentID)
		return nil
	}
	repo.db.studentParents[studentID] = append([]string(nil), parentUserIDs...)
	return nil
}

func (repo *schoolRepository) AddStudentParent(_ context.Context, studentIDs []string, parentUserID string, exec ...core.DBExecutor) error {
	defer repo.db.lockWrite(exec...)()

	for _, sid := range studentIDs {
		if !contains(repo.db.studentParents[sid], parentUserID) {
			repo.db.studentParents[sid] = append(repo.db.studentParents[sid], parentUserID)
		}
	}
	return nil
}

func (repo *schoolRepository) SetStudentsStatus(
	_ context.Context,
	scope policy.Filter,
	ids []string,
	from, to school.StudentStatus,
	exec ...core.DBExecutor,
) (int, error) {
	defer repo.db.lockWrite(exec...)()

	n := 0
	now := core.NowFunc()
	for _, id := range ids {
		s, ok := repo.db.students[id]
		if !ok || s.Status != from || !repo.db.studentVisible(scope, s) {
			continue
		}
		s.Status = to
		s.UpdatedAt = now
		repo.db.students[id] = s
		n++
	}
	return n, nil
}

func (repo *schoolRepository) FindStudentIDs(_ context.Context, scope policy.Filter, ids []string, _ ...core.DBExecutor) ([]string, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var found []string
	for _, id := range ids {
		if s, ok := repo.db.students[id]; ok && repo.db.studentVisible(scope, s) {
			found = append(found, id)
		}
	}
	return found, nil
}

func (repo *schoolRepository) LinkedStudentIDs(_ context.Context, tenantID, userID string, parent bool) ([]string, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	ids := []string{}
	for _, s := range repo.db.students {
		if s.TenantID != tenantID {
			continue
		}
		if parent && contains(repo.db.studentParents[s.ID], userID) ||
			!parent && s.UserID.Valid && s.UserID.String == userID {
			ids = append(ids, s.ID)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (repo *schoolRepository) FindParentUserIDs(_ context.Context, tenantID string, userIDs []string, _ ...core.DBExecutor) ([]string, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	wanted := idSet(userIDs)
	var found []string
	for _, m := range repo.db.memberships {
		if m.TenantID == tenantID && wanted[m.UserID] && m.Role == tenant.RoleParent && m.IsActive() {
			found = append(found, m.UserID)
		}
	}
	return found, nil
}

// ======== teachers ========

func (repo *schoolRepository) CreateTeacher(_ context.Context, t school.Teacher, exec ...core.DBExecutor) (school.Teacher, error) {
	defer repo.db.lockWrite(exec...)()

	repo.db.teachers[t.ID] = t
	return t, nil
}

func (repo *schoolRepository) GetTeacher(_ context.Context, scope policy.Filter, id string, _ ...core.DBExecutor) (school.Teacher, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	t, ok := repo.db.teachers[id]
	if !ok || !repo.db.teacherVisible(scope, t) {
		return school.Teacher{}, school.ErrTeacherNotFound
	}
	return t, nil
}

func (repo *schoolRepository) GetTeacherByUser(_ context.Context, tenantID, userID string) (school.Teacher, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for _, t := range repo.db.teachers {
		if t.TenantID == tenantID && t.UserID.Valid && t.UserID.String == userID {
			return t, nil
		}
	}
	return school.Teacher{}, school.ErrTeacherNotFound
}

func (repo *schoolRepository) QueryTeachers(
	_ context.Context,
	scope policy.Filter,
	filter school.TeacherFilter,
	ords []core.DBOrdering,
	page core.Pagination,
) ([]school.Teacher, int, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var rows []school.Teacher
	for _, t := range repo.db.teachers {
		if !repo.db.teacherVisible(scope, t) {
			continue
		}
		if filter.Status != "" && t.Status != filter.Status {
			continue
		}
		if filter.Subject != "" && !containsFold(t.Subject.String, filter.Subject) {
			continue
		}
		if filter.Search != "" && !containsFold(t.FullName(), filter.Search) && !containsFold(t.Email.String, filter.Search) {
			continue
		}
		rows = append(rows, t)
	}
	sortRows(rows, ords, func(t school.Teacher, col string) interface{} {
		switch col {
		case "first_name":
			return t.FirstName
		case "last_name":
			return t.LastName
		case "subject":
			return t.Subject
		case "status":
			return string(t.Status)
		}
		return t.CreatedAt
	})
	rows, total := paginate(rows, page)
	return rows, total, nil
}

func (repo *schoolRepository) UpdateTeacher(_ context.Context, t school.Teacher, exec ...core.DBExecutor) (school.Teacher, error) {
	defer repo.db.lockWrite(exec...)()

	if _, ok := repo.db.teachers[t.ID]; !ok {
		return school.Teacher{}, school.ErrTeacherNotFound
	}
	repo.db.teachers[t.ID] = t
	return t, nil
}

func (repo *schoolRepository) SetTeachersStatus(
	_ context.Context,
	scope policy.Filter,
	ids []string,
	from, to school.TeacherStatus,
	exec ...core.DBExecutor,
) (int, error) {
	defer repo.db.lockWrite(exec...)()

	n := 0
	now := core.NowFunc()
	for _, id := range ids {
		t, ok := repo.db.teachers[id]
		if !ok || t.Status != from || !repo.db.teacherVisible(scope, t) {
			continue
		}
		t.Status = to
		t.UpdatedAt = now
		repo.db.teachers[id] = t
		n++
	}
	return n, nil
}

func (repo *schoolRepository) FindTeacherIDs(_ context.Context, scope policy.Filter, ids []string, _ ...core.DBExecutor) ([]string, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var found []string
	for _, id := range ids {
		if t, ok := repo.db.teachers[id]; ok && repo.db.teacherVisible(scope, t) {
			found = append(found, id)
		}
	}
	return found, nil
}

// ======== classes ========

func (repo *schoolRepository) CreateClass(_ context.Context, c school.Class, exec ...core.DBExecutor) (school.Class, error) {
	defer repo.db.lockWrite(exec...)()

	repo.db.classes[c.ID] = c
	return repo.db.class(c), nil
}

func (repo *schoolRepository) GetClass(_ context.Context, scope policy.Filter, id string, _ ...core.DBExecutor) (school.Class, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	c, ok := repo.db.classes[id]
	if !ok || !repo.db.classVisible(scope, c) {
		return school.Class{}, school.ErrClassNotFound
	}
	return repo.db.class(c), nil
}

// LockClass relies on RunInTx serializing transactions.
func (repo *schoolRepository) LockClass(ctx context.Context, scope policy.Filter, id string, _ core.DBExecutor) (school.Class, error) {
	return repo.GetClass(ctx, scope, id)
}

func (repo *schoolRepository) QueryClasses(
	_ context.Context,
	scope policy.Filter,
	filter school.ClassFilter,
	ords []core.DBOrdering,
	page core.Pagination,
) ([]school.Class, int, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var rows []school.Class
	for _, c := range repo.db.classes {
		if !repo.db.classVisible(scope, c) {
			continue
		}
		if filter.Grade != "" && c.Grade != filter.Grade {
			continue
		}
		if filter.TeacherID != "" && c.TeacherID.String != filter.TeacherID {
			continue
		}
		if filter.Status != "" && c.Status != filter.Status {
			continue
		}
		if filter.Search != "" && !containsFold(c.Name, filter.Search) {
			continue
		}
		rows = append(rows, repo.db.class(c))
	}
	sortRows(rows, ords, func(c school.Class, col string) interface{} {
		switch col {
		case "name":
			return c.Name
		case "grade":
			return c.Grade
		case "max_students":
			return c.MaxStudents
		case "status":
			return string(c.Status)
		}
		return c.CreatedAt
	})
	rows, total := paginate(rows, page)
	return rows, total, nil
}

func (repo *schoolRepository) UpdateClass(_ context.Context, c school.Class, exec ...core.DBExecutor) (school.Class, error) {
	defer repo.db.lockWrite(exec...)()

	if _, ok := repo.db.classes[c.ID]; !ok {
		return school.Class{}, school.ErrClassNotFound
	}
	c.ActiveStudents = 0
	repo.db.classes[c.ID] = c
	return repo.db.class(c), nil
}

func (repo *schoolRepository) SetClassesStatus(
	_ context.Context,
	scope policy.Filter,
	ids []string,
	from, to school.ClassStatus,
	exec ...core.DBExecutor,
) (int, error) {
	defer repo.db.lockWrite(exec...)()

	n := 0
	now := core.NowFunc()
	for _, id := range ids {
		c, ok := repo.db.classes[id]
		if !ok || c.Status != from || !repo.db.classVisible(scope, c) {
			continue
		}
		c.Status = to
		c.UpdatedAt = now
		repo.db.classes[id] = c
		n++
	}
	return n, nil
}

func (repo *schoolRepository) FindClassIDs(_ context.Context, scope policy.Filter, ids []string, _ ...core.DBExecutor) ([]string, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var found []string
	for _, id := range ids {
		if c, ok := repo.db.classes[id]; ok && repo.db.classVisible(scope, c) {
			found = append(found, id)
		}
	}
	return found, nil
}

// ======== enrollments ========

func (repo *schoolRepository) CountActiveEnrollments(_ context.Context, classID string, _ ...core.DBExecutor) (int, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	n := 0
	for _, e := range repo.db.enrollments {
		if e.ClassID == classID && e.IsActive() {
			n++
		}
	}
	return n, nil
}

func (repo *schoolRepository) QueryEnrollments(_ context.Context, classID string, studentIDs []string, _ ...core.DBExecutor) ([]school.Enrollment, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	wanted := idSet(studentIDs)
	var rows []school.Enrollment
	for _, e := range repo.db.enrollments {
		if e.ClassID == classID && wanted[e.StudentID] {
			rows = append(rows, e)
		}
	}
	return rows, nil
}

func (repo *schoolRepository) CreateEnrollments(_ context.Context, rows []school.Enrollment, exec ...core.DBExecutor) error {
	defer repo.db.lockWrite(exec...)()

	for _, e := range rows {
		for _, other := range repo.db.enrollments {
			if other.ClassID == e.ClassID && other.StudentID == e.StudentID {
				return core.NewInvariantError(
					core.ReasonAlreadyEnrolled,
					"student already has an enrollment in this class",
					map[string]interface{}{"student_id": e.StudentID},
				)
			}
		}
		repo.db.enrollments[e.ID] = e
	}
	return nil
}

func (repo *schoolRepository) SetEnrollmentsStatus(
	_ context.Context,
	ids []string,
	status school.EnrollmentStatus,
	at time.Time,
	exec ...core.DBExecutor,
) error {
	defer repo.db.lockWrite(exec...)()

	for _, id := range ids {
		e, ok := repo.db.enrollments[id]
		if !ok {
			continue
		}
		e.Status = status
		if status == school.EnrollmentActive {
			e.EnrolledAt = at
			e.DroppedAt = null.Time{}
		} else {
			e.DroppedAt = null.TimeFrom(at)
		}
		repo.db.enrollments[id] = e
	}
	return nil
}

// ======== lessons ========

func (repo *schoolRepository) CreateLesson(_ context.Context, l school.Lesson, exec ...core.DBExecutor) (school.Lesson, error) {
	defer repo.db.lockWrite(exec...)()

	repo.db.lessons[l.ID] = l
	return l, nil
}

func (repo *schoolRepository) GetLesson(_ context.Context, scope policy.Filter, id string, _ ...core.DBExecutor) (school.Lesson, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	l, ok := repo.db.lessons[id]
	if !ok || !repo.db.lessonVisible(scope, l) {
		return school.Lesson{}, school.ErrLessonNotFound
	}
	return l, nil
}

func (repo *schoolRepository) QueryLessons(
	_ context.Context,
	scope policy.Filter,
	filter school.LessonFilter,
	ords []core.DBOrdering,
	page core.Pagination,
) ([]school.Lesson, int, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var rows []school.Lesson
	for _, l := range repo.db.lessons {
		if !repo.db.lessonVisible(scope, l) {
			continue
		}
		if filter.ClassID != "" && l.ClassID != filter.ClassID {
			continue
		}
		if filter.TeacherID != "" && l.TeacherID.String != filter.TeacherID {
			continue
		}
		if filter.Status != "" && l.Status != filter.Status {
			continue
		}
		if !filter.From.IsZero() && l.StartsAt.Before(filter.From) {
			continue
		}
		if !filter.To.IsZero() && l.StartsAt.After(filter.To) {
			continue
		}
		rows = append(rows, l)
	}
	sortRows(rows, ords, func(l school.Lesson, col string) interface{} {
		switch col {
		case "title":
			return l.Title
		case "starts_at":
			return l.StartsAt
		case "status":
			return string(l.Status)
		}
		return l.CreatedAt
	})
	rows, total := paginate(rows, page)
	return rows, total, nil
}

func (repo *schoolRepository) UpdateLesson(_ context.Context, l school.Lesson, exec ...core.DBExecutor) (school.Lesson, error) {
	defer repo.db.lockWrite(exec...)()

	if _, ok := repo.db.lessons[l.ID]; !ok {
		return school.Lesson{}, school.ErrLessonNotFound
	}
	repo.db.lessons[l.ID] = l
	return l, nil
}
