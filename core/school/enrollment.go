package school

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/policy"
)

// EnrollResult reports what an enroll call changed.
type EnrollResult struct {
	Enrolled       int `json:"enrolled"`
	NewEnrollments int `json:"new_enrollments"`
	Reactivated    int `json:"reactivated"`
}

type UnenrollResult struct {
	Unenrolled int `json:"unenrolled"`
}

// EnrollmentPlan is the outcome of checking an enroll request against a class.
type EnrollmentPlan struct {
	Create     []string     // student ids without any enrollment row
	Reactivate []Enrollment // dropped rows to bring back
	Active     []string     // already enrolled, left untouched
}

// PlanEnrollment checks the capacity and duplicate invariants of enrolling studentIDs into class.
//   - activeCount is the class's current number of active enrollments
//   - found lists the requested ids that resolved to students in scope
//   - existing holds the enrollment rows of the class for the requested students
//
// The capacity gate applies to the whole (deduplicated) batch.
func PlanEnrollment(class Class, activeCount int, studentIDs, found []string, existing []Enrollment) (EnrollmentPlan, error) {
	available := class.MaxStudents - activeCount
	if available < 0 {
		available = 0
	}
	if len(studentIDs) > available {
		return EnrollmentPlan{}, core.NewInvariantError(
			core.ReasonCapacityExceeded,
			fmt.Sprintf("class capacity exceeded: %d seat(s) available, %d requested", available, len(studentIDs)),
			map[string]interface{}{"available_capacity": available, "requested": len(studentIDs)},
		)
	}

	if missing := difference(studentIDs, found); len(missing) > 0 {
		return EnrollmentPlan{}, core.NewNotFoundError("student", missing...)
	}

	byStudent := make(map[string]Enrollment, len(existing))
	for _, e := range existing {
		byStudent[e.StudentID] = e
	}

	var plan EnrollmentPlan
	for _, id := range studentIDs {
		e, ok := byStudent[id]
		switch {
		case !ok:
			plan.Create = append(plan.Create, id)
		case e.IsActive():
			plan.Active = append(plan.Active, id)
		default:
			plan.Reactivate = append(plan.Reactivate, e)
		}
	}
	if len(plan.Create) == 0 && len(plan.Reactivate) == 0 {
		return EnrollmentPlan{}, core.NewInvariantError(
			core.ReasonAlreadyEnrolled,
			"all students are already enrolled in this class",
			map[string]interface{}{"student_ids": plan.Active},
		)
	}
	return plan, nil
}

// PlanUnenrollment keeps the active enrollments among existing. None -> nothing_to_unenroll.
func PlanUnenrollment(existing []Enrollment) ([]Enrollment, error) {
	var active []Enrollment
	for _, e := range existing {
		if e.IsActive() {
			active = append(active, e)
		}
	}
	if len(active) == 0 {
		return nil, core.NewInvariantError(
			core.ReasonNothingToUnenroll,
			"nothing to unenroll: none of these students is actively enrolled in this class",
			nil,
		)
	}
	return active, nil
}

// Enroll adds students to a class. The check and the writes run in one transaction holding a lock
// on the class row, so concurrent enrollments cannot overshoot its capacity.
func (svc *Service) Enroll(ctx context.Context, p policy.Principal, classID string, studentIDs []string) (EnrollResult, error) {
	studentIDs = core.UniqueStrings(studentIDs)
	scope := policy.Scope(p)

	var res EnrollResult
	err := svc.tx.RunInTx(ctx, func(exec core.DBExecutor) error {
		class, err := svc.repo.LockClass(ctx, scope, classID, exec)
		if err != nil {
			return err
		}
		if err = policy.Authorize(p, policy.ClassesEnroll, policy.On("class", class.TenantID, nil)); err != nil {
			return err
		}
		if class.Status != ClassActive {
			return core.NewInvariantError(
				core.ReasonInvalidTransition,
				"cannot enroll students into an archived class",
				map[string]interface{}{"status": class.Status},
			)
		}

		activeCount, err := svc.repo.CountActiveEnrollments(ctx, class.ID, exec)
		if err != nil {
			return errors.Wrap(err, "counting active enrollments")
		}
		// students are resolved in the class's tenant
		found, err := svc.repo.FindStudentIDs(ctx, policy.Tenant(class.TenantID), studentIDs, exec)
		if err != nil {
			return errors.Wrap(err, "finding students")
		}
		existing, err := svc.repo.QueryEnrollments(ctx, class.ID, studentIDs, exec)
		if err != nil {
			return errors.Wrap(err, "querying enrollments")
		}

		plan, err := PlanEnrollment(class, activeCount, studentIDs, found, existing)
		if err != nil {
			return err
		}

		now := core.NowFunc()
		if len(plan.Create) > 0 {
			rows := make([]Enrollment, 0, len(plan.Create))
			for _, sid := range plan.Create {
				rows = append(rows, Enrollment{
					ID:         uuid.New().String(),
					TenantID:   class.TenantID,
					ClassID:    class.ID,
					StudentID:  sid,
					Status:     EnrollmentActive,
					EnrolledAt: now,
				})
			}
			if err = svc.repo.CreateEnrollments(ctx, rows, exec); err != nil {
				return errors.Wrap(err, "creating enrollments")
			}
		}
		if len(plan.Reactivate) > 0 {
			if err = svc.repo.SetEnrollmentsStatus(ctx, enrollmentIDs(plan.Reactivate), EnrollmentActive, now, exec); err != nil {
				return errors.Wrap(err, "reactivating enrollments")
			}
		}

		res = EnrollResult{
			Enrolled:       len(plan.Create) + len(plan.Reactivate),
			NewEnrollments: len(plan.Create),
			Reactivated:    len(plan.Reactivate),
		}
		return nil
	})
	if err != nil {
		return EnrollResult{}, err
	}
	return res, nil
}

// Unenroll drops the active enrollments of studentIDs in a class.
func (svc *Service) Unenroll(ctx context.Context, p policy.Principal, classID string, studentIDs []string) (UnenrollResult, error) {
	studentIDs = core.UniqueStrings(studentIDs)
	scope := policy.Scope(p)

	var res UnenrollResult
	err := svc.tx.RunInTx(ctx, func(exec core.DBExecutor) error {
		class, err := svc.repo.LockClass(ctx, scope, classID, exec)
		if err != nil {
			return err
		}
		if err = policy.Authorize(p, policy.ClassesEnroll, policy.On("class", class.TenantID, nil)); err != nil {
			return err
		}

		existing, err := svc.repo.QueryEnrollments(ctx, class.ID, studentIDs, exec)
		if err != nil {
			return errors.Wrap(err, "querying enrollments")
		}
		active, err := PlanUnenrollment(existing)
		if err != nil {
			return err
		}
		if err = svc.repo.SetEnrollmentsStatus(ctx, enrollmentIDs(active), EnrollmentDropped, core.NowFunc(), exec); err != nil {
			return errors.Wrap(err, "dropping enrollments")
		}
		res.Unenrolled = len(active)
		return nil
	})
	if err != nil {
		return UnenrollResult{}, err
	}
	return res, nil
}

// Roster lists the students actively enrolled in a class.
func (svc *Service) Roster(ctx context.Context, p policy.Principal, classID string, page core.Pagination) (core.Page[Student], error) {
	class, err := svc.GetClass(ctx, p, classID)
	if err != nil {
		return core.Page[Student]{}, err
	}
	return svc.QueryStudents(ctx, p, StudentFilter{ClassID: class.ID}, nil, page)
}

// ActiveStudentIDs keeps the ids among studentIDs that are actively enrolled in the class.
func (svc *Service) ActiveStudentIDs(ctx context.Context, classID string, studentIDs []string, exec ...core.DBExecutor) ([]string, error) {
	rows, err := svc.repo.QueryEnrollments(ctx, classID, studentIDs, exec...)
	if err != nil {
		return nil, errors.Wrap(err, "querying enrollments")
	}
	out := make([]string, 0, len(rows))
	for _, e := range rows {
		if e.IsActive() {
			out = append(out, e.StudentID)
		}
	}
	return out, nil
}

func enrollmentIDs(rows []Enrollment) []string {
	ids := make([]string, 0, len(rows))
	for _, e := range rows {
		ids = append(ids, e.ID)
	}
	return ids
}

// difference returns the items of a missing from b, in a's order.
func difference(a, b []string) []string {
	in := make(map[string]struct{}, len(b))
	for _, s := range b {
		in[s] = struct{}{}
	}
	var out []string
	for _, s := range a {
		if _, ok := in[s]; !ok {
			out = append(out, s)
		}
	}
	return out
}
