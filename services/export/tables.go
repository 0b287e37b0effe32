package export

import (
	"fmt"
	"strconv"
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/trezcool/darasa/core/attendance"
	"github.com/trezcool/darasa/core/payment"
	"github.com/trezcool/darasa/core/school"
	"github.com/trezcool/darasa/core/stats"
)

const (
	dateLayout     = "2006-01-02"
	datetimeLayout = "2006-01-02 15:04"
)

func optString(s null.String) string {
	if !s.Valid {
		return ""
	}
	return s.String
}

func optTime(t null.Time, layout string) string {
	if !t.Valid {
		return ""
	}
	return t.Time.Format(layout)
}

func StudentsTable(rows []school.Student) Table {
	t := Table{
		Title:  "Students",
		Header: []string{"id", "first_name", "last_name", "email", "date_of_birth", "grade", "status", "created_at"},
	}
	for _, s := range rows {
		t.Rows = append(t.Rows, []string{
			s.ID, s.FirstName, s.LastName, optString(s.Email), optTime(s.DateOfBirth, dateLayout),
			s.Grade, string(s.Status), s.CreatedAt.Format(datetimeLayout),
		})
	}
	return t
}

func TeachersTable(rows []school.Teacher) Table {
	t := Table{
		Title:  "Teachers",
		Header: []string{"id", "first_name", "last_name", "email", "phone", "subject", "status", "created_at"},
	}
	for _, tc := range rows {
		t.Rows = append(t.Rows, []string{
			tc.ID, tc.FirstName, tc.LastName, optString(tc.Email), optString(tc.Phone),
			optString(tc.Subject), string(tc.Status), tc.CreatedAt.Format(datetimeLayout),
		})
	}
	return t
}

func ClassesTable(rows []school.Class) Table {
	t := Table{
		Title:  "Classes",
		Header: []string{"id", "name", "grade", "teacher_id", "max_students", "active_students", "status", "created_at"},
	}
	for _, c := range rows {
		t.Rows = append(t.Rows, []string{
			c.ID, c.Name, c.Grade, optString(c.TeacherID), strconv.Itoa(c.MaxStudents),
			strconv.Itoa(c.ActiveStudents), string(c.Status), c.CreatedAt.Format(datetimeLayout),
		})
	}
	return t
}

func AttendanceTable(rows []attendance.Attendance) Table {
	t := Table{
		Title:  "Attendance",
		Header: []string{"id", "lesson_id", "class_id", "student_id", "lesson_starts_at", "status", "note", "recorded_by", "recorded_at"},
	}
	for _, a := range rows {
		t.Rows = append(t.Rows, []string{
			a.ID, a.LessonID, a.ClassID, a.StudentID, a.LessonStartsAt.Format(datetimeLayout),
			string(a.Status), optString(a.Note), a.RecordedBy, a.RecordedAt.Format(datetimeLayout),
		})
	}
	return t
}

func PaymentsTable(rows []payment.Payment) Table {
	t := Table{
		Title:  "Payments",
		Header: []string{"id", "student_id", "amount", "currency", "description", "due_date", "status", "method", "paid_at"},
	}
	for _, p := range rows {
		t.Rows = append(t.Rows, []string{
			p.ID, p.StudentID, Amount(p.Amount), p.Currency, p.Description, p.DueDate.Format(dateLayout),
			string(p.Status), optString(p.Method), optTime(p.PaidAt, datetimeLayout),
		})
	}
	return t
}

// Amount formats minor units with two decimals.
func Amount(minor int64) string {
	sign := ""
	if minor < 0 {
		sign = "-"
		minor = -minor
	}
	return fmt.Sprintf("%s%d.%02d", sign, minor/100, minor%100)
}

// AttendanceReportTables lays out a report as a summary sheet then one sheet per class.
func AttendanceReportTables(rep attendance.Report) []Table {
	summary := Table{
		Title:  "Summary",
		Header: []string{"class", "students", "present", "absent", "late", "excused", "rate_%"},
	}
	classes := make([]Table, 0, len(rep.Classes))
	for _, cr := range rep.Classes {
		summary.Rows = append(summary.Rows, countsRow(
			[]string{cr.Class.Name, strconv.Itoa(len(cr.Students))}, cr.Counts, cr.Rate,
		))

		t := Table{
			Title:  cr.Class.Name,
			Header: []string{"student_id", "student", "present", "absent", "late", "excused", "rate_%"},
		}
		for _, line := range cr.Students {
			t.Rows = append(t.Rows, countsRow([]string{line.StudentID, line.Name}, line.Counts, line.Rate))
		}
		classes = append(classes, t)
	}
	label := "TOTAL"
	if !rep.From.IsZero() || !rep.To.IsZero() {
		label = fmt.Sprintf("TOTAL %s..%s", fmtDate(rep.From), fmtDate(rep.To))
	}
	summary.Rows = append(summary.Rows, countsRow([]string{label, ""}, rep.Total, rep.Rate))
	return append([]Table{summary}, classes...)
}

func countsRow(lead []string, c stats.AttendanceCounts, rate int) []string {
	return append(lead,
		strconv.Itoa(c.Present), strconv.Itoa(c.Absent), strconv.Itoa(c.Late), strconv.Itoa(c.Excused), strconv.Itoa(rate),
	)
}

func fmtDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(dateLayout)
}
