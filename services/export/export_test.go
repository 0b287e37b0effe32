package export

import (
	"bytes"
	"encoding/csv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/volatiletech/null/v8"
	"github.com/xuri/excelize/v2"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/attendance"
	"github.com/trezcool/darasa/core/payment"
	"github.com/trezcool/darasa/core/school"
	"github.com/trezcool/darasa/core/stats"
)

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"", FormatCSV, false},
		{"csv", FormatCSV, false},
		{" XLSX ", FormatXLSX, false},
		{"pdf", FormatPDF, false},
		{"docx", "", true},
	}
	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			got, err := ParseFormat(tc.in)
			if tc.wantErr {
				require.Error(t, err)
				_, ok := err.(*core.ValidationError)
				assert.True(t, ok)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestFilename(t *testing.T) {
	now := time.Date(2024, 3, 9, 17, 0, 0, 0, time.UTC)
	assert.Equal(t, "students-2024-03-09.csv", Filename("students", FormatCSV, now))
	assert.Equal(t, "attendance_report-2024-03-09.xlsx", Filename("Attendance Report", FormatXLSX, now))
	assert.Equal(t, "export-2024-03-09.csv", Filename("", FormatCSV, now))
}

func TestAmount(t *testing.T) {
	assert.Equal(t, "12.50", Amount(1250))
	assert.Equal(t, "0.05", Amount(5))
	assert.Equal(t, "-3.00", Amount(-300))
}

func TestWriteCSV(t *testing.T) {
	created := time.Date(2024, 1, 2, 8, 30, 0, 0, time.UTC)
	table := StudentsTable([]school.Student{
		{ID: "s1", FirstName: "Ada", LastName: "Lovelace, Jr", Grade: "5", Status: school.StudentActive, CreatedAt: created},
		{ID: "s2", FirstName: "Alan", LastName: "Turing", Email: null.StringFrom("alan@example.com"), Grade: "6", Status: school.StudentGraduated, CreatedAt: created},
	})

	buf := new(bytes.Buffer)
	require.NoError(t, WriteCSV(buf, table))

	records, err := csv.NewReader(buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, table.Header, records[0])
	assert.Equal(t, "Lovelace, Jr", records[1][2])
	assert.Equal(t, "", records[1][3])
	assert.Equal(t, "alan@example.com", records[2][3])
	assert.Equal(t, "2024-01-02 08:30", records[2][7])
}

func TestPaymentsTable(t *testing.T) {
	due := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	table := PaymentsTable([]payment.Payment{
		{ID: "p1", StudentID: "s1", Amount: 15000, Currency: "USD", Description: "Term 1", DueDate: due, Status: payment.StatusPending},
	})
	require.Len(t, table.Rows, 1)
	assert.Equal(t, []string{"p1", "s1", "150.00", "USD", "Term 1", "2024-05-01", "PENDING", "", ""}, table.Rows[0])
}

func TestWorkbook(t *testing.T) {
	rep := attendance.Report{
		Classes: []attendance.ClassReport{
			{
				Class: school.Class{ID: "c1", Name: "Math/5A"},
				Students: []attendance.StudentLine{
					{StudentID: "s1", Name: "Ada Lovelace", Counts: stats.AttendanceCounts{Present: 3, Absent: 1}, Rate: 75},
				},
				Counts: stats.AttendanceCounts{Present: 3, Absent: 1},
				Rate:   75,
			},
			{Class: school.Class{ID: "c2", Name: "Math/5A"}},
		},
		Total: stats.AttendanceCounts{Present: 3, Absent: 1},
		Rate:  75,
	}

	f, err := Workbook(AttendanceReportTables(rep)...)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"Summary", "Math_5A", "Math_5A (2)"}, f.GetSheetList())

	rows, err := f.GetRows("Summary")
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, []string{"Math/5A", "1", "3", "1", "0", "0", "75"}, rows[1])
	assert.Equal(t, "TOTAL", rows[3][0])

	rows, err = f.GetRows("Math_5A")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"s1", "Ada Lovelace", "3", "1", "0", "0", "75"}, rows[1])

	styleID, err := f.GetCellStyle("Summary", "A1")
	require.NoError(t, err)
	style, err := f.GetStyle(styleID)
	require.NoError(t, err)
	require.NotNil(t, style.Font)
	assert.True(t, style.Font.Bold)

	buf := new(bytes.Buffer)
	require.NoError(t, WriteWorkbook(buf, ClassesTable(nil)))
	reopened, err := excelize.OpenReader(buf)
	require.NoError(t, err)
	assert.Equal(t, []string{"Classes"}, reopened.GetSheetList())
}

func TestColumnName(t *testing.T) {
	assert.Equal(t, "A", columnName(1))
	assert.Equal(t, "Z", columnName(26))
	assert.Equal(t, "AA", columnName(27))
}
