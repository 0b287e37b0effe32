package attendance

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/darasa/core"
)

type Status string

const (
	StatusPresent Status = "PRESENT"
	StatusAbsent  Status = "ABSENT"
	StatusLate    Status = "LATE"
	StatusExcused Status = "EXCUSED"
)

// Attendance is the mark of one student for one lesson. Marks can be corrected to any status.
type Attendance struct {
	ID             string      `db:"id" json:"id"`
	TenantID       string      `db:"tenant_id" json:"tenant_id"`
	LessonID       string      `db:"lesson_id" json:"lesson_id"`
	ClassID        string      `db:"class_id" json:"class_id"`
	StudentID      string      `db:"student_id" json:"student_id"`
	Status         Status      `db:"status" json:"status"`
	Note           null.String `db:"note" json:"note"`
	RecordedBy     string      `db:"recorded_by" json:"recorded_by"`
	RecordedAt     time.Time   `db:"recorded_at" json:"recorded_at"`
	UpdatedAt      time.Time   `db:"updated_at" json:"updated_at"`
	LessonStartsAt time.Time   `db:"lesson_starts_at" json:"lesson_starts_at"` // computed
}

type Mark struct {
	StudentID string `json:"student_id" validate:"required,uuid"`
	Status    Status `json:"status" validate:"required,oneof=PRESENT ABSENT LATE EXCUSED"`
	Note      string `json:"note" validate:"max=500"`
}

// RecordAttendance is the body of a lesson's attendance upsert.
type RecordAttendance struct {
	Marks []Mark `json:"marks" validate:"required,min=1,max=500,dive"`
}

func (ra *RecordAttendance) Validate(validate *validator.Validate) error {
	for i := range ra.Marks {
		ra.Marks[i].StudentID = core.CleanString(ra.Marks[i].StudentID)
		ra.Marks[i].Status = Status(core.CleanString(string(ra.Marks[i].Status)))
		ra.Marks[i].Note = core.CleanString(ra.Marks[i].Note)
	}
	if err := validate.Struct(ra); err != nil {
		return err
	}
	seen := make(map[string]bool, len(ra.Marks))
	for i, m := range ra.Marks {
		if seen[m.StudentID] {
			return core.NewValidationError(nil, core.FieldError{
				Field: fmt.Sprintf("marks[%d].student_id", i),
				Error: "duplicate student",
			})
		}
		seen[m.StudentID] = true
	}
	return nil
}

func (ra RecordAttendance) StudentIDs() []string {
	ids := make([]string, 0, len(ra.Marks))
	for _, m := range ra.Marks {
		ids = append(ids, m.StudentID)
	}
	return ids
}

type Filter struct {
	ClassID   string    `query:"class_id"`
	LessonID  string    `query:"lesson_id"`
	StudentID string    `query:"student_id"`
	Status    Status    `query:"status"`
	From      time.Time `query:"from"` // on the lesson's start
	To        time.Time `query:"to"`
}

var Ordering = core.OrderingColumns{
	"status":           "status",
	"recorded_at":      "recorded_at",
	"lesson_starts_at": "lesson_starts_at",
}
