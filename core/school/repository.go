package school

import (
	"context"
	"time"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/policy"
)

var (
	// errors
	ErrStudentNotFound = core.NewNotFoundError("student")
	ErrTeacherNotFound = core.NewNotFoundError("teacher")
	ErrClassNotFound   = core.NewNotFoundError("class")
	ErrLessonNotFound  = core.NewNotFoundError("lesson")
)

// Repository persists school profiles, classes, enrollments and lessons.
// Every read takes the caller's scope filter; rows outside of it do not exist.
type Repository interface {
	CreateStudent(ctx context.Context, s Student, exec ...core.DBExecutor) (Student, error)
	GetStudent(ctx context.Context, scope policy.Filter, id string, exec ...core.DBExecutor) (Student, error)
	QueryStudents(ctx context.Context, scope policy.Filter, filter StudentFilter, ords []core.DBOrdering, page core.Pagination) ([]Student, int, error)
	UpdateStudent(ctx context.Context, s Student, exec ...core.DBExecutor) (Student, error)
	// SetStudentParents replaces the parent accounts of a student.
	SetStudentParents(ctx context.Context, studentID string, parentUserIDs []string, exec ...core.DBExecutor) error
	AddStudentParent(ctx context.Context, studentIDs []string, parentUserID string, exec ...core.DBExecutor) error
	SetStudentsStatus(ctx context.Context, scope policy.Filter, ids []string, from, to StudentStatus, exec ...core.DBExecutor) (int, error)
	// FindStudentIDs returns the ids among ids that match a student in scope.
	FindStudentIDs(ctx context.Context, scope policy.Filter, ids []string, exec ...core.DBExecutor) ([]string, error)
	// LinkedStudentIDs lists the students of a tenant linked to userID: its own profile, or its children when parent.
	LinkedStudentIDs(ctx context.Context, tenantID, userID string, parent bool) ([]string, error)
	// FindParentUserIDs returns the ids among userIDs holding an ACTIVE PARENT membership in the tenant.
	FindParentUserIDs(ctx context.Context, tenantID string, userIDs []string, exec ...core.DBExecutor) ([]string, error)

	CreateTeacher(ctx context.Context, t Teacher, exec ...core.DBExecutor) (Teacher, error)
	GetTeacher(ctx context.Context, scope policy.Filter, id string, exec ...core.DBExecutor) (Teacher, error)
	GetTeacherByUser(ctx context.Context, tenantID, userID string) (Teacher, error)
	QueryTeachers(ctx context.Context, scope policy.Filter, filter TeacherFilter, ords []core.DBOrdering, page core.Pagination) ([]Teacher, int, error)
	UpdateTeacher(ctx context.Context, t Teacher, exec ...core.DBExecutor) (Teacher, error)
	SetTeachersStatus(ctx context.Context, scope policy.Filter, ids []string, from, to TeacherStatus, exec ...core.DBExecutor) (int, error)
	FindTeacherIDs(ctx context.Context, scope policy.Filter, ids []string, exec ...core.DBExecutor) ([]string, error)

	CreateClass(ctx context.Context, c Class, exec ...core.DBExecutor) (Class, error)
	GetClass(ctx context.Context, scope policy.Filter, id string, exec ...core.DBExecutor) (Class, error)
	// LockClass is GetClass holding a row lock until the end of the transaction.
	LockClass(ctx context.Context, scope policy.Filter, id string, exec core.DBExecutor) (Class, error)
	QueryClasses(ctx context.Context, scope policy.Filter, filter ClassFilter, ords []core.DBOrdering, page core.Pagination) ([]Class, int, error)
	UpdateClass(ctx context.Context, c Class, exec ...core.DBExecutor) (Class, error)
	SetClassesStatus(ctx context.Context, scope policy.Filter, ids []string, from, to ClassStatus, exec ...core.DBExecutor) (int, error)
	FindClassIDs(ctx context.Context, scope policy.Filter, ids []string, exec ...core.DBExecutor) ([]string, error)

	CountActiveEnrollments(ctx context.Context, classID string, exec ...core.DBExecutor) (int, error)
	// QueryEnrollments returns the enrollment rows (any status) of studentIDs in a class.
	QueryEnrollments(ctx context.Context, classID string, studentIDs []string, exec ...core.DBExecutor) ([]Enrollment, error)
	CreateEnrollments(ctx context.Context, rows []Enrollment, exec ...core.DBExecutor) error
	// SetEnrollmentsStatus activates (enrolled_at = at, dropped_at cleared) or drops (dropped_at = at) enrollments.
	SetEnrollmentsStatus(ctx context.Context, ids []string, status EnrollmentStatus, at time.Time, exec ...core.DBExecutor) error

	CreateLesson(ctx context.Context, l Lesson, exec ...core.DBExecutor) (Lesson, error)
	GetLesson(ctx context.Context, scope policy.Filter, id string, exec ...core.DBExecutor) (Lesson, error)
	QueryLessons(ctx context.Context, scope policy.Filter, filter LessonFilter, ords []core.DBOrdering, page core.Pagination) ([]Lesson, int, error)
	UpdateLesson(ctx context.Context, l Lesson, exec ...core.DBExecutor) (Lesson, error)
}
