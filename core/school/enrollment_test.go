package school

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/darasa/core"
)

func TestPlanEnrollment(t *testing.T) {
	class := Class{ID: "c1", MaxStudents: 3}
	active := Enrollment{ID: "e1", StudentID: "s1", Status: EnrollmentActive}
	dropped := Enrollment{ID: "e2", StudentID: "s2", Status: EnrollmentDropped}

	tests := []struct {
		name        string
		activeCount int
		ids         []string
		found       []string
		existing    []Enrollment
		want        EnrollmentPlan
		wantReason  core.Reason
		wantDetails map[string]interface{}
		wantMissing []string
	}{
		{
			name:  "new students",
			ids:   []string{"s1", "s2"},
			found: []string{"s1", "s2"},
			want:  EnrollmentPlan{Create: []string{"s1", "s2"}},
		},
		{
			name:        "fills the class",
			activeCount: 1,
			ids:         []string{"s3", "s4"},
			found:       []string{"s3", "s4"},
			want:        EnrollmentPlan{Create: []string{"s3", "s4"}},
		},
		{
			name:        "capacity checked on the whole batch",
			activeCount: 2,
			ids:         []string{"s3", "s4"},
			found:       []string{"s3", "s4"},
			wantReason:  core.ReasonCapacityExceeded,
			wantDetails: map[string]interface{}{"available_capacity": 1, "requested": 2},
		},
		{
			name:        "over capacity counts as full",
			activeCount: 5,
			ids:         []string{"s3"},
			found:       []string{"s3"},
			wantReason:  core.ReasonCapacityExceeded,
			wantDetails: map[string]interface{}{"available_capacity": 0, "requested": 1},
		},
		{
			name:        "already enrolled students count against capacity",
			activeCount: 1,
			ids:         []string{"s1", "s3", "s4"},
			found:       []string{"s1", "s3", "s4"},
			existing:    []Enrollment{active},
			wantReason:  core.ReasonCapacityExceeded,
			wantDetails: map[string]interface{}{"available_capacity": 2, "requested": 3},
		},
		{
			name:        "unknown students",
			ids:         []string{"s1", "x", "y"},
			found:       []string{"s1"},
			wantMissing: []string{"x", "y"},
		},
		{
			name:        "all already enrolled",
			activeCount: 1,
			ids:         []string{"s1"},
			found:       []string{"s1"},
			existing:    []Enrollment{active},
			wantReason:  core.ReasonAlreadyEnrolled,
			wantDetails: map[string]interface{}{"student_ids": []string{"s1"}},
		},
		{
			name:        "mixed",
			activeCount: 1,
			ids:         []string{"s1", "s2"},
			found:       []string{"s1", "s2"},
			existing:    []Enrollment{active, dropped},
			want:        EnrollmentPlan{Reactivate: []Enrollment{dropped}, Active: []string{"s1"}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan, err := PlanEnrollment(class, tt.activeCount, tt.ids, tt.found, tt.existing)
			switch {
			case tt.wantReason != "":
				var ierr *core.InvariantError
				require.ErrorAs(t, err, &ierr)
				assert.Equal(t, tt.wantReason, ierr.Reason)
				assert.Equal(t, tt.wantDetails, ierr.Details)
			case tt.wantMissing != nil:
				var nferr *core.NotFoundError
				require.ErrorAs(t, err, &nferr)
				assert.Equal(t, "student", nferr.Resource)
				assert.Equal(t, tt.wantMissing, nferr.IDs)
			default:
				require.NoError(t, err)
				assert.Equal(t, tt.want, plan)
			}
		})
	}
}

func TestPlanUnenrollment(t *testing.T) {
	active := Enrollment{ID: "e1", StudentID: "s1", Status: EnrollmentActive}
	dropped := Enrollment{ID: "e2", StudentID: "s2", Status: EnrollmentDropped}

	got, err := PlanUnenrollment([]Enrollment{active, dropped})
	require.NoError(t, err)
	assert.Equal(t, []Enrollment{active}, got)

	for _, existing := range [][]Enrollment{nil, {dropped}} {
		_, err = PlanUnenrollment(existing)
		assert.True(t, core.HasReason(err, core.ReasonNothingToUnenroll), "got %v", err)
	}
}

func TestDifference(t *testing.T) {
	assert.Equal(t, []string{"a", "c"}, difference([]string{"a", "b", "c"}, []string{"b"}))
	assert.Nil(t, difference([]string{"a"}, []string{"a", "b"}))
}
