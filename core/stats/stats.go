// Package stats holds the pure aggregation helpers behind attendance, payment and dashboard figures.
package stats

import "math"

// Rate is part/total as a rounded percentage; 0 when total is 0.
func Rate(part, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(float64(part) / float64(total) * 100))
}

// AttendanceCounts are attendance marks per status.
type AttendanceCounts struct {
	Present int `json:"present"`
	Absent  int `json:"absent"`
	Late    int `json:"late"`
	Excused int `json:"excused"`
}

func (c AttendanceCounts) Total() int { return c.Present + c.Absent + c.Late + c.Excused }

func (c AttendanceCounts) Add(o AttendanceCounts) AttendanceCounts {
	return AttendanceCounts{
		Present: c.Present + o.Present,
		Absent:  c.Absent + o.Absent,
		Late:    c.Late + o.Late,
		Excused: c.Excused + o.Excused,
	}
}

// LessonAttendance is the head count of one lesson.
type LessonAttendance struct {
	LessonID string
	Enrolled int
	Present  int
}

type AttendanceSummary struct {
	AttendanceCounts
	Total             int `json:"total"`
	AttendanceRate    int `json:"attendance_rate"`
	Lessons           int `json:"lessons"`
	AverageLessonRate int `json:"average_lesson_rate"`
}

// SummarizeAttendance totals the marks and averages the per-lesson presence rates.
// Only PRESENT counts as present. Lessons without enrolled students are left out of the average.
func SummarizeAttendance(counts AttendanceCounts, lessons []LessonAttendance) AttendanceSummary {
	sum := AttendanceSummary{
		AttendanceCounts: counts,
		Total:            counts.Total(),
		AttendanceRate:   Rate(counts.Present, counts.Total()),
	}

	var (
		rates float64
		n     int
	)
	for _, l := range lessons {
		if l.Enrolled < 1 {
			continue
		}
		rates += float64(l.Present) / float64(l.Enrolled) * 100
		n++
	}
	sum.Lessons = n
	if n > 0 {
		sum.AverageLessonRate = int(math.Round(rates / float64(n)))
	}
	return sum
}

// PaymentCounts are payment counts and amounts (minor units) per status.
type PaymentCounts struct {
	Pending         int   `json:"pending"`
	Paid            int   `json:"paid"`
	Overdue         int   `json:"overdue"`
	Cancelled       int   `json:"cancelled"`
	AmountPending   int64 `json:"amount_pending"`
	AmountPaid      int64 `json:"amount_paid"`
	AmountOverdue   int64 `json:"amount_overdue"`
	AmountCancelled int64 `json:"amount_cancelled"`
}

type PaymentSummary struct {
	PaymentCounts
	Total          int   `json:"total"`
	AmountDue      int64 `json:"amount_due"`
	AmountTotal    int64 `json:"amount_total"`
	CollectionRate int   `json:"collection_rate"`
}

// SummarizePayments totals payments. Cancelled payments are neither due nor collectable;
// the collection rate is paid / (paid + pending + overdue), by count.
func SummarizePayments(c PaymentCounts) PaymentSummary {
	collectable := c.Paid + c.Pending + c.Overdue
	return PaymentSummary{
		PaymentCounts:  c,
		Total:          c.Pending + c.Paid + c.Overdue + c.Cancelled,
		AmountDue:      c.AmountPending + c.AmountOverdue,
		AmountTotal:    c.AmountPending + c.AmountPaid + c.AmountOverdue,
		CollectionRate: Rate(c.Paid, collectable),
	}
}
