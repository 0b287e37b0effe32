package pgrepos

import (
	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"

	"github.com/trezcool/darasa/core/policy"
)

// Scope predicates render a policy.Filter against the aliased table of each entity.
// Teacher narrowing goes through class ownership; student narrowing through active enrollments.

var none = sq.Expr("FALSE")

func tenantEq(col string, scope policy.Filter) sq.Sqlizer {
	if scope.TenantID == "" {
		return sq.Expr("TRUE")
	}
	return sq.Eq{col: scope.TenantID}
}

func anyOf(col string, ids []string) sq.Sqlizer {
	return sq.Expr(col+" = ANY(?)", pq.Array(ids))
}

func ownsClass(classCol string, scope policy.Filter) sq.Sqlizer {
	if scope.TeacherID == "" {
		return none
	}
	return sq.Expr("EXISTS (SELECT 1 FROM classes oc WHERE oc.id = "+classCol+" AND oc.teacher_id = ?)", scope.TeacherID)
}

func attendsClass(classCol string, studentIDs []string) sq.Sqlizer {
	return sq.Expr(
		"EXISTS (SELECT 1 FROM enrollments ae WHERE ae.class_id = "+classCol+" AND ae.status = 'ACTIVE' AND ae.student_id = ANY(?))",
		pq.Array(studentIDs),
	)
}

// studentScope applies to `students s`.
func studentScope(scope policy.Filter) sq.Sqlizer {
	and := sq.And{tenantEq("s.tenant_id", scope)}
	switch scope.Narrowing {
	case policy.NarrowTeacher:
		if scope.TeacherID == "" {
			return append(and, none)
		}
		and = append(and, sq.Expr(
			`EXISTS (
				SELECT 1 FROM enrollments te JOIN classes tc ON tc.id = te.class_id
				WHERE te.student_id = s.id AND te.status = 'ACTIVE' AND tc.teacher_id = ?
			)`,
			scope.TeacherID,
		))
	case policy.NarrowStudents:
		and = append(and, anyOf("s.id", scope.StudentIDs))
	}
	return and
}

// teacherScope applies to `teachers t`.
func teacherScope(scope policy.Filter) sq.Sqlizer {
	and := sq.And{tenantEq("t.tenant_id", scope)}
	if scope.Narrowing == policy.NarrowStudents {
		and = append(and, none)
	}
	return and
}

// classScope applies to `classes c`.
func classScope(scope policy.Filter) sq.Sqlizer {
	and := sq.And{tenantEq("c.tenant_id", scope)}
	switch scope.Narrowing {
	case policy.NarrowTeacher:
		if scope.TeacherID == "" {
			return append(and, none)
		}
		and = append(and, sq.Eq{"c.teacher_id": scope.TeacherID})
	case policy.NarrowStudents:
		and = append(and, attendsClass("c.id", scope.StudentIDs))
	}
	return and
}

// lessonScope applies to `lessons l`.
func lessonScope(scope policy.Filter) sq.Sqlizer {
	and := sq.And{tenantEq("l.tenant_id", scope)}
	switch scope.Narrowing {
	case policy.NarrowTeacher:
		if scope.TeacherID == "" {
			return append(and, none)
		}
		and = append(and, sq.Or{ownsClass("l.class_id", scope), sq.Eq{"l.teacher_id": scope.TeacherID}})
	case policy.NarrowStudents:
		and = append(and, attendsClass("l.class_id", scope.StudentIDs))
	}
	return and
}

// attendanceScope applies to `attendance a`.
func attendanceScope(scope policy.Filter) sq.Sqlizer {
	and := sq.And{tenantEq("a.tenant_id", scope)}
	switch scope.Narrowing {
	case policy.NarrowTeacher:
		if scope.TeacherID == "" {
			return append(and, none)
		}
		and = append(and, sq.Or{
			ownsClass("a.class_id", scope),
			sq.Expr("EXISTS (SELECT 1 FROM lessons al WHERE al.id = a.lesson_id AND al.teacher_id = ?)", scope.TeacherID),
		})
	case policy.NarrowStudents:
		and = append(and, anyOf("a.student_id", scope.StudentIDs))
	}
	return and
}

// paymentScope applies to `payments p`.
func paymentScope(scope policy.Filter) sq.Sqlizer {
	and := sq.And{tenantEq("p.tenant_id", scope)}
	switch scope.Narrowing {
	case policy.NarrowTeacher:
		and = append(and, none)
	case policy.NarrowStudents:
		and = append(and, anyOf("p.student_id", scope.StudentIDs))
	}
	return and
}
