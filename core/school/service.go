package school

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/auth"
	"github.com/trezcool/darasa/core/policy"
	"github.com/trezcool/darasa/core/tenant"
)

type Service struct {
	repo Repository
	tx   core.Transactor
}

func NewService(repo Repository, tx core.Transactor) *Service {
	return &Service{repo: repo, tx: tx}
}

// Principal builds the request principal from validated claims, loading the school profiles the
// user owns in the session's tenant. targetTenant is only honoured for SUPERADMIN.
func (svc *Service) Principal(ctx context.Context, claims auth.Claims, targetTenant string) (policy.Principal, error) {
	p := policy.Principal{Claims: claims}
	switch claims.Role {
	case tenant.RoleSuperAdmin:
		p.TargetTenantID = core.CleanString(targetTenant)
	case tenant.RoleTeacher:
		t, err := svc.repo.GetTeacherByUser(ctx, claims.TenantID, claims.UserID)
		switch {
		case err == nil:
			p.TeacherID = t.ID
		case !core.IsNotFound(err):
			return policy.Principal{}, errors.Wrap(err, "getting teacher profile")
		}
	case tenant.RoleStudent, tenant.RoleParent:
		ids, err := svc.repo.LinkedStudentIDs(ctx, claims.TenantID, claims.UserID, claims.Role == tenant.RoleParent)
		if err != nil {
			return policy.Principal{}, errors.Wrap(err, "listing linked students")
		}
		p.StudentIDs = ids
	}
	return p, nil
}

// LinkProfiles attaches userID to existing profiles of the tenant: the teacher profile of a
// TEACHER, the student profile of a STUDENT, the children of a PARENT.
func (svc *Service) LinkProfiles(
	ctx context.Context,
	tenantID string,
	role tenant.Role,
	userID, teacherID string,
	studentIDs []string,
	exec core.DBExecutor,
) error {
	scope := policy.Tenant(tenantID)
	switch role {
	case tenant.RoleTeacher:
		t, err := svc.repo.GetTeacher(ctx, scope, teacherID, exec)
		if err != nil {
			return err
		}
		if t.UserID.Valid && t.UserID.String != userID {
			return core.NewValidationError(nil, core.FieldError{Field: "teacher_id", Error: "this teacher is already linked to another account"})
		}
		t.UserID = null.StringFrom(userID)
		t.UpdatedAt = core.NowFunc()
		_, err = svc.repo.UpdateTeacher(ctx, t, exec)
		return errors.Wrap(err, "linking teacher")

	case tenant.RoleStudent:
		for _, id := range studentIDs {
			s, err := svc.repo.GetStudent(ctx, scope, id, exec)
			if err != nil {
				return err
			}
			if s.UserID.Valid && s.UserID.String != userID {
				return core.NewValidationError(nil, core.FieldError{Field: "student_ids", Error: "this student is already linked to another account"})
			}
			s.UserID = null.StringFrom(userID)
			s.UpdatedAt = core.NowFunc()
			if _, err = svc.repo.UpdateStudent(ctx, s, exec); err != nil {
				return errors.Wrap(err, "linking student")
			}
		}
		return nil

	case tenant.RoleParent:
		found, err := svc.repo.FindStudentIDs(ctx, scope, studentIDs, exec)
		if err != nil {
			return errors.Wrap(err, "finding students")
		}
		if missing := difference(studentIDs, found); len(missing) > 0 {
			return core.NewNotFoundError("student", missing...)
		}
		return errors.Wrap(svc.repo.AddStudentParent(ctx, studentIDs, userID, exec), "linking parent")
	}
	return nil
}

// ======== students ========

func (svc *Service) checkParents(ctx context.Context, tenantID string, userIDs []string, exec ...core.DBExecutor) error {
	if len(userIDs) == 0 {
		return nil
	}
	found, err := svc.repo.FindParentUserIDs(ctx, tenantID, userIDs, exec...)
	if err != nil {
		return errors.Wrap(err, "finding parents")
	}
	if missing := difference(userIDs, found); len(missing) > 0 {
		return core.NewValidationError(nil, core.FieldError{Field: "parent_user_ids", Error: "not a parent of this school: " + missing[0]})
	}
	return nil
}

func (svc *Service) CreateStudent(ctx context.Context, p policy.Principal, ns NewStudent) (Student, error) {
	if err := policy.Authorize(p, policy.StudentsWrite, policy.Context{}); err != nil {
		return Student{}, err
	}
	tenantID, err := p.WriteTenant()
	if err != nil {
		return Student{}, err
	}

	var std Student
	err = svc.tx.RunInTx(ctx, func(exec core.DBExecutor) error {
		if err := svc.checkParents(ctx, tenantID, ns.ParentUserIDs, exec); err != nil {
			return err
		}
		now := core.NowFunc()
		s := Student{
			ID:        uuid.New().String(),
			TenantID:  tenantID,
			FirstName: ns.FirstName,
			LastName:  ns.LastName,
			Grade:     ns.Grade,
			Status:    StudentActive,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if ns.Email != "" {
			s.Email = null.StringFrom(ns.Email)
		}
		if ns.DateOfBirth != nil {
			s.DateOfBirth = null.TimeFrom(*ns.DateOfBirth)
		}
		created, err := svc.repo.CreateStudent(ctx, s, exec)
		if err != nil {
			return errors.Wrap(err, "creating student")
		}
		if len(ns.ParentUserIDs) > 0 {
			if err = svc.repo.SetStudentParents(ctx, created.ID, ns.ParentUserIDs, exec); err != nil {
				return errors.Wrap(err, "setting parents")
			}
		}
		std, err = svc.repo.GetStudent(ctx, policy.Tenant(tenantID), created.ID, exec)
		return err
	})
	return std, err
}

func (svc *Service) GetStudent(ctx context.Context, p policy.Principal, id string) (Student, error) {
	// ownership is enforced by the scoped fetch
	s, err := svc.repo.GetStudent(ctx, policy.Scope(p), id)
	if err != nil {
		return Student{}, err
	}
	if err = policy.Authorize(p, policy.StudentsRead, policy.On("student", s.TenantID, nil)); err != nil {
		return Student{}, err
	}
	return s, nil
}

func (svc *Service) QueryStudents(
	ctx context.Context,
	p policy.Principal,
	filter StudentFilter,
	ords []core.DBOrdering,
	page core.Pagination,
) (core.Page[Student], error) {
	if err := policy.Authorize(p, policy.StudentsRead, policy.Context{}); err != nil {
		return core.Page[Student]{}, err
	}
	if err := StudentLifecycle.CheckFilter(filter.Status); err != nil {
		return core.Page[Student]{}, err
	}
	ords = StudentOrdering.Resolve(ords, core.DBOrdering{Field: "last_name", Ascending: true}, core.DBOrdering{Field: "first_name", Ascending: true})
	students, total, err := svc.repo.QueryStudents(ctx, policy.Scope(p), filter, ords, page)
	if err != nil {
		return core.Page[Student]{}, errors.Wrap(err, "querying students")
	}
	return core.NewPage(students, page, total), nil
}

func (svc *Service) UpdateStudent(ctx context.Context, p policy.Principal, id string, us UpdateStudent) (Student, error) {
	if err := policy.Authorize(p, policy.StudentsWrite, policy.Context{}); err != nil {
		return Student{}, err
	}

	var std Student
	err := svc.tx.RunInTx(ctx, func(exec core.DBExecutor) error {
		s, err := svc.repo.GetStudent(ctx, policy.Scope(p), id, exec)
		if err != nil {
			return err
		}
		if us.FirstName != nil {
			s.FirstName = *us.FirstName
		}
		if us.LastName != nil {
			s.LastName = *us.LastName
		}
		if us.Email != nil {
			s.Email = null.NewString(*us.Email, *us.Email != "")
		}
		if us.DateOfBirth != nil {
			s.DateOfBirth = null.TimeFrom(*us.DateOfBirth)
		}
		if us.Grade != nil {
			s.Grade = *us.Grade
		}
		if us.Status != nil && *us.Status != s.Status {
			if err = StudentLifecycle.Transition(s.Status, *us.Status); err != nil {
				return err
			}
			s.Status = *us.Status
		}
		s.UpdatedAt = core.NowFunc()
		if _, err = svc.repo.UpdateStudent(ctx, s, exec); err != nil {
			return errors.Wrap(err, "updating student")
		}
		if us.ParentUserIDs != nil {
			if err = svc.checkParents(ctx, s.TenantID, us.ParentUserIDs, exec); err != nil {
				return err
			}
			if err = svc.repo.SetStudentParents(ctx, s.ID, us.ParentUserIDs, exec); err != nil {
				return errors.Wrap(err, "setting parents")
			}
		}
		std, err = svc.repo.GetStudent(ctx, policy.Tenant(s.TenantID), s.ID, exec)
		return err
	})
	return std, err
}

// DeleteStudent soft-deletes a student (ACTIVE -> INACTIVE).
func (svc *Service) DeleteStudent(ctx context.Context, p policy.Principal, id string) error {
	if err := policy.Authorize(p, policy.StudentsWrite, policy.Context{}); err != nil {
		return err
	}
	s, err := svc.repo.GetStudent(ctx, policy.Scope(p), id)
	if err != nil {
		return err
	}
	if err = StudentLifecycle.Transition(s.Status, StudentInactive); err != nil {
		return err
	}
	_, err = svc.repo.SetStudentsStatus(ctx, policy.Tenant(s.TenantID), []string{s.ID}, StudentActive, StudentInactive)
	return errors.Wrap(err, "deleting student")
}

// BulkDeleteStudents soft-deletes the ACTIVE students among ids. Every id must exist in scope.
func (svc *Service) BulkDeleteStudents(ctx context.Context, p policy.Principal, ids []string) (core.BulkResult, error) {
	if err := authorizeBulk(p, policy.StudentsWrite); err != nil {
		return core.BulkResult{}, err
	}
	ids = core.UniqueStrings(ids)
	scope := policy.Scope(p)

	var res core.BulkResult
	err := svc.tx.RunInTx(ctx, func(exec core.DBExecutor) error {
		found, err := svc.repo.FindStudentIDs(ctx, scope, ids, exec)
		if err != nil {
			return errors.Wrap(err, "finding students")
		}
		if missing := difference(ids, found); len(missing) > 0 {
			return core.NewNotFoundError("student", missing...)
		}
		res.Affected, err = svc.repo.SetStudentsStatus(ctx, scope, ids, StudentActive, StudentInactive, exec)
		return errors.Wrap(err, "deleting students")
	})
	return res, err
}

// ======== teachers ========

func (svc *Service) CreateTeacher(ctx context.Context, p policy.Principal, nt NewTeacher) (Teacher, error) {
	if err := policy.Authorize(p, policy.TeachersWrite, policy.Context{}); err != nil {
		return Teacher{}, err
	}
	tenantID, err := p.WriteTenant()
	if err != nil {
		return Teacher{}, err
	}

	now := core.NowFunc()
	t := Teacher{
		ID:        uuid.New().String(),
		TenantID:  tenantID,
		FirstName: nt.FirstName,
		LastName:  nt.LastName,
		Email:     null.NewString(nt.Email, nt.Email != ""),
		Phone:     null.NewString(nt.Phone, nt.Phone != ""),
		Subject:   null.NewString(nt.Subject, nt.Subject != ""),
		Status:    TeacherActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	t, err = svc.repo.CreateTeacher(ctx, t)
	return t, errors.Wrap(err, "creating teacher")
}

func (svc *Service) GetTeacher(ctx context.Context, p policy.Principal, id string) (Teacher, error) {
	t, err := svc.repo.GetTeacher(ctx, policy.Scope(p), id)
	if err != nil {
		return Teacher{}, err
	}
	if err = policy.Authorize(p, policy.TeachersRead, policy.On("teacher", t.TenantID, nil)); err != nil {
		return Teacher{}, err
	}
	return t, nil
}

func (svc *Service) QueryTeachers(
	ctx context.Context,
	p policy.Principal,
	filter TeacherFilter,
	ords []core.DBOrdering,
	page core.Pagination,
) (core.Page[Teacher], error) {
	if err := policy.Authorize(p, policy.TeachersRead, policy.Context{}); err != nil {
		return core.Page[Teacher]{}, err
	}
	if err := TeacherLifecycle.CheckFilter(filter.Status); err != nil {
		return core.Page[Teacher]{}, err
	}
	ords = TeacherOrdering.Resolve(ords, core.DBOrdering{Field: "last_name", Ascending: true}, core.DBOrdering{Field: "first_name", Ascending: true})
	teachers, total, err := svc.repo.QueryTeachers(ctx, policy.Scope(p), filter, ords, page)
	if err != nil {
		return core.Page[Teacher]{}, errors.Wrap(err, "querying teachers")
	}
	return core.NewPage(teachers, page, total), nil
}

func (svc *Service) UpdateTeacher(ctx context.Context, p policy.Principal, id string, ut UpdateTeacher) (Teacher, error) {
	if err := policy.Authorize(p, policy.TeachersWrite, policy.Context{}); err != nil {
		return Teacher{}, err
	}
	t, err := svc.repo.GetTeacher(ctx, policy.Scope(p), id)
	if err != nil {
		return Teacher{}, err
	}
	if ut.FirstName != nil {
		t.FirstName = *ut.FirstName
	}
	if ut.LastName != nil {
		t.LastName = *ut.LastName
	}
	if ut.Email != nil {
		t.Email = null.NewString(*ut.Email, *ut.Email != "")
	}
	if ut.Phone != nil {
		t.Phone = null.NewString(*ut.Phone, *ut.Phone != "")
	}
	if ut.Subject != nil {
		t.Subject = null.NewString(*ut.Subject, *ut.Subject != "")
	}
	if ut.Status != nil && *ut.Status != t.Status {
		if err = TeacherLifecycle.Transition(t.Status, *ut.Status); err != nil {
			return Teacher{}, err
		}
		t.Status = *ut.Status
	}
	t.UpdatedAt = core.NowFunc()
	t, err = svc.repo.UpdateTeacher(ctx, t)
	return t, errors.Wrap(err, "updating teacher")
}

func (svc *Service) DeleteTeacher(ctx context.Context, p policy.Principal, id string) error {
	if err := policy.Authorize(p, policy.TeachersWrite, policy.Context{}); err != nil {
		return err
	}
	t, err := svc.repo.GetTeacher(ctx, policy.Scope(p), id)
	if err != nil {
		return err
	}
	if err = TeacherLifecycle.Transition(t.Status, TeacherInactive); err != nil {
		return err
	}
	_, err = svc.repo.SetTeachersStatus(ctx, policy.Tenant(t.TenantID), []string{t.ID}, TeacherActive, TeacherInactive)
	return errors.Wrap(err, "deleting teacher")
}

func (svc *Service) BulkDeleteTeachers(ctx context.Context, p policy.Principal, ids []string) (core.BulkResult, error) {
	if err := authorizeBulk(p, policy.TeachersWrite); err != nil {
		return core.BulkResult{}, err
	}
	ids = core.UniqueStrings(ids)
	scope := policy.Scope(p)

	var res core.BulkResult
	err := svc.tx.RunInTx(ctx, func(exec core.DBExecutor) error {
		found, err := svc.repo.FindTeacherIDs(ctx, scope, ids, exec)
		if err != nil {
			return errors.Wrap(err, "finding teachers")
		}
		if missing := difference(ids, found); len(missing) > 0 {
			return core.NewNotFoundError("teacher", missing...)
		}
		res.Affected, err = svc.repo.SetTeachersStatus(ctx, scope, ids, TeacherActive, TeacherInactive, exec)
		return errors.Wrap(err, "deleting teachers")
	})
	return res, err
}

// ======== classes ========

func (svc *Service) checkTeacher(ctx context.Context, tenantID, teacherID string, exec ...core.DBExecutor) error {
	if teacherID == "" {
		return nil
	}
	_, err := svc.repo.GetTeacher(ctx, policy.Tenant(tenantID), teacherID, exec...)
	if core.IsNotFound(err) {
		return core.NewValidationError(nil, core.FieldError{Field: "teacher_id", Error: "teacher not found"})
	}
	return err
}

func (svc *Service) CreateClass(ctx context.Context, p policy.Principal, nc NewClass) (Class, error) {
	if err := policy.Authorize(p, policy.ClassesWrite, policy.Context{}); err != nil {
		return Class{}, err
	}
	tenantID, err := p.WriteTenant()
	if err != nil {
		return Class{}, err
	}
	if err = svc.checkTeacher(ctx, tenantID, nc.TeacherID); err != nil {
		return Class{}, err
	}

	now := core.NowFunc()
	c := Class{
		ID:          uuid.New().String(),
		TenantID:    tenantID,
		Name:        nc.Name,
		Grade:       nc.Grade,
		TeacherID:   null.NewString(nc.TeacherID, nc.TeacherID != ""),
		MaxStudents: nc.MaxStudents,
		Status:      ClassActive,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	c, err = svc.repo.CreateClass(ctx, c)
	return c, errors.Wrap(err, "creating class")
}

func (svc *Service) GetClass(ctx context.Context, p policy.Principal, id string) (Class, error) {
	c, err := svc.repo.GetClass(ctx, policy.Scope(p), id)
	if err != nil {
		return Class{}, err
	}
	if err = policy.Authorize(p, policy.ClassesRead, policy.On("class", c.TenantID, nil)); err != nil {
		return Class{}, err
	}
	return c, nil
}

func (svc *Service) QueryClasses(
	ctx context.Context,
	p policy.Principal,
	filter ClassFilter,
	ords []core.DBOrdering,
	page core.Pagination,
) (core.Page[Class], error) {
	if err := policy.Authorize(p, policy.ClassesRead, policy.Context{}); err != nil {
		return core.Page[Class]{}, err
	}
	if err := ClassLifecycle.CheckFilter(filter.Status); err != nil {
		return core.Page[Class]{}, err
	}
	ords = ClassOrdering.Resolve(ords, core.DBOrdering{Field: "name", Ascending: true})
	classes, total, err := svc.repo.QueryClasses(ctx, policy.Scope(p), filter, ords, page)
	if err != nil {
		return core.Page[Class]{}, errors.Wrap(err, "querying classes")
	}
	return core.NewPage(classes, page, total), nil
}

// UpdateClass edits a class. The capacity cannot drop below the current active enrollments.
func (svc *Service) UpdateClass(ctx context.Context, p policy.Principal, id string, uc UpdateClass) (Class, error) {
	if err := policy.Authorize(p, policy.ClassesWrite, policy.Context{}); err != nil {
		return Class{}, err
	}

	var class Class
	err := svc.tx.RunInTx(ctx, func(exec core.DBExecutor) error {
		c, err := svc.repo.LockClass(ctx, policy.Scope(p), id, exec)
		if err != nil {
			return err
		}
		if uc.Name != nil {
			c.Name = *uc.Name
		}
		if uc.Grade != nil {
			c.Grade = *uc.Grade
		}
		if uc.TeacherID != nil {
			if err = svc.checkTeacher(ctx, c.TenantID, *uc.TeacherID, exec); err != nil {
				return err
			}
			c.TeacherID = null.NewString(*uc.TeacherID, *uc.TeacherID != "")
		}
		if uc.MaxStudents != nil {
			active, err := svc.repo.CountActiveEnrollments(ctx, c.ID, exec)
			if err != nil {
				return errors.Wrap(err, "counting active enrollments")
			}
			if *uc.MaxStudents < active {
				return core.NewInvariantError(
					core.ReasonCapacityExceeded,
					"max_students cannot be lower than the number of enrolled students",
					map[string]interface{}{"active_students": active, "max_students": *uc.MaxStudents},
				)
			}
			c.MaxStudents = *uc.MaxStudents
		}
		if uc.Status != nil && *uc.Status != c.Status {
			if err = ClassLifecycle.Transition(c.Status, *uc.Status); err != nil {
				return err
			}
			c.Status = *uc.Status
		}
		c.UpdatedAt = core.NowFunc()
		if _, err = svc.repo.UpdateClass(ctx, c, exec); err != nil {
			return errors.Wrap(err, "updating class")
		}
		class, err = svc.repo.GetClass(ctx, policy.Tenant(c.TenantID), c.ID, exec)
		return err
	})
	return class, err
}

// DeleteClass archives a class.
func (svc *Service) DeleteClass(ctx context.Context, p policy.Principal, id string) error {
	if err := policy.Authorize(p, policy.ClassesWrite, policy.Context{}); err != nil {
		return err
	}
	c, err := svc.repo.GetClass(ctx, policy.Scope(p), id)
	if err != nil {
		return err
	}
	if err = ClassLifecycle.Transition(c.Status, ClassArchived); err != nil {
		return err
	}
	_, err = svc.repo.SetClassesStatus(ctx, policy.Tenant(c.TenantID), []string{c.ID}, ClassActive, ClassArchived)
	return errors.Wrap(err, "archiving class")
}

func (svc *Service) BulkDeleteClasses(ctx context.Context, p policy.Principal, ids []string) (core.BulkResult, error) {
	if err := authorizeBulk(p, policy.ClassesWrite); err != nil {
		return core.BulkResult{}, err
	}
	ids = core.UniqueStrings(ids)
	scope := policy.Scope(p)

	var res core.BulkResult
	err := svc.tx.RunInTx(ctx, func(exec core.DBExecutor) error {
		found, err := svc.repo.FindClassIDs(ctx, scope, ids, exec)
		if err != nil {
			return errors.Wrap(err, "finding classes")
		}
		if missing := difference(ids, found); len(missing) > 0 {
			return core.NewNotFoundError("class", missing...)
		}
		res.Affected, err = svc.repo.SetClassesStatus(ctx, scope, ids, ClassActive, ClassArchived, exec)
		return errors.Wrap(err, "archiving classes")
	})
	return res, err
}

// ======== lessons ========

// CreateLesson schedules a lesson of a class. The lesson teacher defaults to the class teacher;
// teachers always schedule lessons as themselves.
func (svc *Service) CreateLesson(ctx context.Context, p policy.Principal, nl NewLesson) (Lesson, error) {
	if err := policy.Authorize(p, policy.LessonsWrite, policy.Context{}); err != nil {
		return Lesson{}, err
	}
	c, err := svc.repo.GetClass(ctx, policy.Scope(p), nl.ClassID)
	if core.IsNotFound(err) {
		return Lesson{}, core.NewValidationError(nil, core.FieldError{Field: "class_id", Error: "class not found"})
	} else if err != nil {
		return Lesson{}, err
	}
	if c.Status != ClassActive {
		return Lesson{}, core.NewInvariantError(
			core.ReasonInvalidTransition,
			"cannot schedule lessons for an archived class",
			map[string]interface{}{"status": c.Status},
		)
	}

	teacherID := nl.TeacherID
	switch {
	case p.Role == tenant.RoleTeacher:
		teacherID = p.TeacherID
	case teacherID == "":
		teacherID = c.TeacherID.String
	default:
		if err = svc.checkTeacher(ctx, c.TenantID, teacherID); err != nil {
			return Lesson{}, err
		}
	}

	now := core.NowFunc()
	l := Lesson{
		ID:          uuid.New().String(),
		TenantID:    c.TenantID,
		ClassID:     c.ID,
		TeacherID:   null.NewString(teacherID, teacherID != ""),
		Title:       nl.Title,
		Description: null.NewString(nl.Description, nl.Description != ""),
		StartsAt:    nl.StartsAt.UTC(),
		EndsAt:      nl.EndsAt.UTC(),
		Status:      LessonScheduled,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	l, err = svc.repo.CreateLesson(ctx, l)
	return l, errors.Wrap(err, "creating lesson")
}

func (svc *Service) GetLesson(ctx context.Context, p policy.Principal, id string) (Lesson, error) {
	l, err := svc.repo.GetLesson(ctx, policy.Scope(p), id)
	if err != nil {
		return Lesson{}, err
	}
	if err = policy.Authorize(p, policy.LessonsRead, policy.On("lesson", l.TenantID, nil)); err != nil {
		return Lesson{}, err
	}
	return l, nil
}

func (svc *Service) QueryLessons(
	ctx context.Context,
	p policy.Principal,
	filter LessonFilter,
	ords []core.DBOrdering,
	page core.Pagination,
) (core.Page[Lesson], error) {
	if err := policy.Authorize(p, policy.LessonsRead, policy.Context{}); err != nil {
		return core.Page[Lesson]{}, err
	}
	if err := LessonLifecycle.CheckFilter(filter.Status); err != nil {
		return core.Page[Lesson]{}, err
	}
	ords = LessonOrdering.Resolve(ords, core.DBOrdering{Field: "starts_at", Ascending: true})
	lessons, total, err := svc.repo.QueryLessons(ctx, policy.Scope(p), filter, ords, page)
	if err != nil {
		return core.Page[Lesson]{}, errors.Wrap(err, "querying lessons")
	}
	return core.NewPage(lessons, page, total), nil
}

func (svc *Service) UpdateLesson(ctx context.Context, p policy.Principal, id string, ul UpdateLesson) (Lesson, error) {
	if err := policy.Authorize(p, policy.LessonsWrite, policy.Context{}); err != nil {
		return Lesson{}, err
	}
	l, err := svc.repo.GetLesson(ctx, policy.Scope(p), id)
	if err != nil {
		return Lesson{}, err
	}
	if ul.Title != nil {
		l.Title = *ul.Title
	}
	if ul.Description != nil {
		l.Description = null.NewString(*ul.Description, *ul.Description != "")
	}
	if ul.StartsAt != nil {
		l.StartsAt = ul.StartsAt.UTC()
	}
	if ul.EndsAt != nil {
		l.EndsAt = ul.EndsAt.UTC()
	}
	if !l.EndsAt.After(l.StartsAt) {
		return Lesson{}, core.NewValidationError(nil, core.FieldError{Field: "ends_at", Error: "ends_at must be after starts_at"})
	}
	if ul.Status != nil && *ul.Status != l.Status {
		if err = LessonLifecycle.Transition(l.Status, *ul.Status); err != nil {
			return Lesson{}, err
		}
		l.Status = *ul.Status
	}
	l.UpdatedAt = core.NowFunc()
	l, err = svc.repo.UpdateLesson(ctx, l)
	return l, errors.Wrap(err, "updating lesson")
}

// CancelLesson is the lesson's delete.
func (svc *Service) CancelLesson(ctx context.Context, p policy.Principal, id string) (Lesson, error) {
	status := LessonCancelled
	return svc.UpdateLesson(ctx, p, id, UpdateLesson{Status: &status})
}

func authorizeBulk(p policy.Principal, action policy.Action) error {
	if err := policy.Authorize(p, action, policy.Context{}); err != nil {
		return err
	}
	return policy.Authorize(p, policy.DataBulkDelete, policy.Context{})
}
