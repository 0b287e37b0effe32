package school

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/lib/pq"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/darasa/core"
)

type (
	StudentStatus    string
	TeacherStatus    string
	ClassStatus      string
	EnrollmentStatus string
	LessonStatus     string
)

const (
	StudentActive    StudentStatus = "ACTIVE"
	StudentInactive  StudentStatus = "INACTIVE"
	StudentGraduated StudentStatus = "GRADUATED"

	TeacherActive   TeacherStatus = "ACTIVE"
	TeacherInactive TeacherStatus = "INACTIVE"

	ClassActive   ClassStatus = "ACTIVE"
	ClassArchived ClassStatus = "ARCHIVED"

	EnrollmentActive  EnrollmentStatus = "ACTIVE"
	EnrollmentDropped EnrollmentStatus = "DROPPED"

	LessonScheduled LessonStatus = "SCHEDULED"
	LessonCancelled LessonStatus = "CANCELLED"
)

var (
	StudentLifecycle = core.NewLifecycle("student", map[StudentStatus][]StudentStatus{
		StudentActive:    {StudentInactive, StudentGraduated},
		StudentInactive:  {StudentActive},
		StudentGraduated: nil,
	})
	TeacherLifecycle = core.NewLifecycle("teacher", map[TeacherStatus][]TeacherStatus{
		TeacherActive:   {TeacherInactive},
		TeacherInactive: {TeacherActive},
	})
	ClassLifecycle = core.NewLifecycle("class", map[ClassStatus][]ClassStatus{
		ClassActive:   {ClassArchived},
		ClassArchived: {ClassActive},
	})
	EnrollmentLifecycle = core.NewLifecycle("enrollment", map[EnrollmentStatus][]EnrollmentStatus{
		EnrollmentActive:  {EnrollmentDropped},
		EnrollmentDropped: {EnrollmentActive},
	})
	LessonLifecycle = core.NewLifecycle("lesson", map[LessonStatus][]LessonStatus{
		LessonScheduled: {LessonCancelled},
		LessonCancelled: {LessonScheduled},
	})
)

type Student struct {
	ID            string         `db:"id" json:"id"`
	TenantID      string         `db:"tenant_id" json:"tenant_id"`
	UserID        null.String    `db:"user_id" json:"user_id"`
	FirstName     string         `db:"first_name" json:"first_name"`
	LastName      string         `db:"last_name" json:"last_name"`
	Email         null.String    `db:"email" json:"email"`
	DateOfBirth   null.Time      `db:"date_of_birth" json:"date_of_birth"`
	Grade         string         `db:"grade" json:"grade"`
	Status        StudentStatus  `db:"status" json:"status"`
	ParentUserIDs pq.StringArray `db:"parent_user_ids" json:"parent_user_ids"`
	CreatedAt     time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time      `db:"updated_at" json:"updated_at"`
}

func (s Student) FullName() string { return s.FirstName + " " + s.LastName }

type Teacher struct {
	ID        string        `db:"id" json:"id"`
	TenantID  string        `db:"tenant_id" json:"tenant_id"`
	UserID    null.String   `db:"user_id" json:"user_id"`
	FirstName string        `db:"first_name" json:"first_name"`
	LastName  string        `db:"last_name" json:"last_name"`
	Email     null.String   `db:"email" json:"email"`
	Phone     null.String   `db:"phone" json:"phone"`
	Subject   null.String   `db:"subject" json:"subject"`
	Status    TeacherStatus `db:"status" json:"status"`
	CreatedAt time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt time.Time     `db:"updated_at" json:"updated_at"`
}

func (t Teacher) FullName() string { return t.FirstName + " " + t.LastName }

// Class has a capacity: its active enrollments never exceed MaxStudents.
type Class struct {
	ID             string      `db:"id" json:"id"`
	TenantID       string      `db:"tenant_id" json:"tenant_id"`
	Name           string      `db:"name" json:"name"`
	Grade          string      `db:"grade" json:"grade"`
	TeacherID      null.String `db:"teacher_id" json:"teacher_id"`
	MaxStudents    int         `db:"max_students" json:"max_students"`
	ActiveStudents int         `db:"active_students" json:"active_students"` // computed
	Status         ClassStatus `db:"status" json:"status"`
	CreatedAt      time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time   `db:"updated_at" json:"updated_at"`
}

// Enrollment is the soft-deletable student-class relation.
type Enrollment struct {
	ID         string           `db:"id" json:"id"`
	TenantID   string           `db:"tenant_id" json:"tenant_id"`
	ClassID    string           `db:"class_id" json:"class_id"`
	StudentID  string           `db:"student_id" json:"student_id"`
	Status     EnrollmentStatus `db:"status" json:"status"`
	EnrolledAt time.Time        `db:"enrolled_at" json:"enrolled_at"`
	DroppedAt  null.Time        `db:"dropped_at" json:"dropped_at"`
}

func (e Enrollment) IsActive() bool { return e.Status == EnrollmentActive }

type Lesson struct {
	ID          string       `db:"id" json:"id"`
	TenantID    string       `db:"tenant_id" json:"tenant_id"`
	ClassID     string       `db:"class_id" json:"class_id"`
	TeacherID   null.String  `db:"teacher_id" json:"teacher_id"`
	Title       string       `db:"title" json:"title"`
	Description null.String  `db:"description" json:"description"`
	StartsAt    time.Time    `db:"starts_at" json:"starts_at"`
	EndsAt      time.Time    `db:"ends_at" json:"ends_at"`
	Status      LessonStatus `db:"status" json:"status"`
	CreatedAt   time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time    `db:"updated_at" json:"updated_at"`
}

// requests

type NewStudent struct {
	FirstName     string     `json:"first_name" validate:"required,max=100"`
	LastName      string     `json:"last_name" validate:"required,max=100"`
	Email         string     `json:"email" validate:"omitempty,email"`
	DateOfBirth   *time.Time `json:"date_of_birth"`
	Grade         string     `json:"grade" validate:"max=50"`
	ParentUserIDs []string   `json:"parent_user_ids" validate:"omitempty,dive,uuid"`
}

func (ns *NewStudent) Validate(validate *validator.Validate) error {
	ns.FirstName = core.CleanString(ns.FirstName)
	ns.LastName = core.CleanString(ns.LastName)
	ns.Email = core.CleanString(ns.Email, true /* lower */)
	ns.Grade = core.CleanString(ns.Grade)
	ns.ParentUserIDs = core.UniqueStrings(ns.ParentUserIDs)
	return validate.Struct(ns)
}

type UpdateStudent struct {
	FirstName     *string        `json:"first_name" validate:"omitempty,min=1,max=100"`
	LastName      *string        `json:"last_name" validate:"omitempty,min=1,max=100"`
	Email         *string        `json:"email" validate:"omitempty,email"`
	DateOfBirth   *time.Time     `json:"date_of_birth"`
	Grade         *string        `json:"grade" validate:"omitempty,max=50"`
	Status        *StudentStatus `json:"status" validate:"omitempty,oneof=ACTIVE INACTIVE GRADUATED"`
	ParentUserIDs []string       `json:"parent_user_ids" validate:"omitempty,dive,uuid"`
}

func (us *UpdateStudent) Validate(validate *validator.Validate) error {
	cleanPtr(us.FirstName, false)
	cleanPtr(us.LastName, false)
	cleanPtr(us.Email, true)
	cleanPtr(us.Grade, false)
	if us.ParentUserIDs != nil {
		us.ParentUserIDs = core.UniqueStrings(us.ParentUserIDs)
	}
	return validate.Struct(us)
}

type NewTeacher struct {
	FirstName string `json:"first_name" validate:"required,max=100"`
	LastName  string `json:"last_name" validate:"required,max=100"`
	Email     string `json:"email" validate:"omitempty,email"`
	Phone     string `json:"phone" validate:"omitempty,max=30"`
	Subject   string `json:"subject" validate:"omitempty,max=100"`
}

func (nt *NewTeacher) Validate(validate *validator.Validate) error {
	nt.FirstName = core.CleanString(nt.FirstName)
	nt.LastName = core.CleanString(nt.LastName)
	nt.Email = core.CleanString(nt.Email, true /* lower */)
	nt.Phone = core.CleanString(nt.Phone)
	nt.Subject = core.CleanString(nt.Subject)
	return validate.Struct(nt)
}

type UpdateTeacher struct {
	FirstName *string        `json:"first_name" validate:"omitempty,min=1,max=100"`
	LastName  *string        `json:"last_name" validate:"omitempty,min=1,max=100"`
	Email     *string        `json:"email" validate:"omitempty,email"`
	Phone     *string        `json:"phone" validate:"omitempty,max=30"`
	Subject   *string        `json:"subject" validate:"omitempty,max=100"`
	Status    *TeacherStatus `json:"status" validate:"omitempty,oneof=ACTIVE INACTIVE"`
}

func (ut *UpdateTeacher) Validate(validate *validator.Validate) error {
	cleanPtr(ut.FirstName, false)
	cleanPtr(ut.LastName, false)
	cleanPtr(ut.Email, true)
	cleanPtr(ut.Phone, false)
	cleanPtr(ut.Subject, false)
	return validate.Struct(ut)
}

type NewClass struct {
	Name        string `json:"name" validate:"required,max=100"`
	Grade       string `json:"grade" validate:"max=50"`
	TeacherID   string `json:"teacher_id" validate:"omitempty,uuid"`
	MaxStudents int    `json:"max_students" validate:"required,gt=0,lte=1000"`
}

func (nc *NewClass) Validate(validate *validator.Validate) error {
	nc.Name = core.CleanString(nc.Name)
	nc.Grade = core.CleanString(nc.Grade)
	nc.TeacherID = core.CleanString(nc.TeacherID)
	return validate.Struct(nc)
}

type UpdateClass struct {
	Name        *string      `json:"name" validate:"omitempty,min=1,max=100"`
	Grade       *string      `json:"grade" validate:"omitempty,max=50"`
	TeacherID   *string      `json:"teacher_id" validate:"omitempty,uuid"`
	MaxStudents *int         `json:"max_students" validate:"omitempty,gt=0,lte=1000"`
	Status      *ClassStatus `json:"status" validate:"omitempty,oneof=ACTIVE ARCHIVED"`
}

func (uc *UpdateClass) Validate(validate *validator.Validate) error {
	cleanPtr(uc.Name, false)
	cleanPtr(uc.Grade, false)
	cleanPtr(uc.TeacherID, false)
	return validate.Struct(uc)
}

// EnrollStudents is the body of enroll and unenroll.
type EnrollStudents struct {
	StudentIDs []string `json:"student_ids" validate:"required,min=1,max=500,dive,uuid"`
}

func (es *EnrollStudents) Validate(validate *validator.Validate) error {
	if err := validate.Struct(es); err != nil {
		return err
	}
	// repeated ids count once
	es.StudentIDs = core.UniqueStrings(es.StudentIDs)
	return nil
}

type NewLesson struct {
	ClassID     string    `json:"class_id" validate:"required,uuid"`
	TeacherID   string    `json:"teacher_id" validate:"omitempty,uuid"`
	Title       string    `json:"title" validate:"required,max=150"`
	Description string    `json:"description" validate:"max=2000"`
	StartsAt    time.Time `json:"starts_at" validate:"required"`
	EndsAt      time.Time `json:"ends_at" validate:"required,gtfield=StartsAt"`
}

func (nl *NewLesson) Validate(validate *validator.Validate) error {
	nl.Title = core.CleanString(nl.Title)
	nl.Description = core.CleanString(nl.Description)
	nl.TeacherID = core.CleanString(nl.TeacherID)
	return validate.Struct(nl)
}

type UpdateLesson struct {
	Title       *string       `json:"title" validate:"omitempty,min=1,max=150"`
	Description *string       `json:"description" validate:"omitempty,max=2000"`
	StartsAt    *time.Time    `json:"starts_at"`
	EndsAt      *time.Time    `json:"ends_at"`
	Status      *LessonStatus `json:"status" validate:"omitempty,oneof=SCHEDULED CANCELLED"`
}

func (ul *UpdateLesson) Validate(validate *validator.Validate) error {
	cleanPtr(ul.Title, false)
	cleanPtr(ul.Description, false)
	return validate.Struct(ul)
}

// filters

type StudentFilter struct {
	Search  string        `query:"search"`
	Grade   string        `query:"grade"`
	Status  StudentStatus `query:"status"`
	ClassID string        `query:"class_id"`
	IDs     []string      `query:"-"`
}

type TeacherFilter struct {
	Search  string        `query:"search"`
	Subject string        `query:"subject"`
	Status  TeacherStatus `query:"status"`
}

type ClassFilter struct {
	Search    string      `query:"search"`
	Grade     string      `query:"grade"`
	TeacherID string      `query:"teacher_id"`
	Status    ClassStatus `query:"status"`
}

type LessonFilter struct {
	ClassID   string       `query:"class_id"`
	TeacherID string       `query:"teacher_id"`
	Status    LessonStatus `query:"status"`
	From      time.Time    `query:"from"`
	To        time.Time    `query:"to"`
}

func (f *StudentFilter) Clean() { f.Search = core.CleanString(f.Search) }
func (f *TeacherFilter) Clean() { f.Search = core.CleanString(f.Search) }
func (f *ClassFilter) Clean()   { f.Search = core.CleanString(f.Search) }

var (
	StudentOrdering = core.OrderingColumns{
		"first_name": "first_name",
		"last_name":  "last_name",
		"grade":      "grade",
		"status":     "status",
		"created_at": "created_at",
	}
	TeacherOrdering = core.OrderingColumns{
		"first_name": "first_name",
		"last_name":  "last_name",
		"subject":    "subject",
		"status":     "status",
		"created_at": "created_at",
	}
	ClassOrdering = core.OrderingColumns{
		"name":         "name",
		"grade":        "grade",
		"max_students": "max_students",
		"status":       "status",
		"created_at":   "created_at",
	}
	LessonOrdering = core.OrderingColumns{
		"title":      "title",
		"starts_at":  "starts_at",
		"status":     "status",
		"created_at": "created_at",
	}
)

func cleanPtr(s *string, lower bool) {
	if s != nil {
		*s = core.CleanString(*s, lower)
	}
}
