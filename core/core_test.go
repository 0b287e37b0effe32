package core

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type state string

var testLifecycle = NewLifecycle("payment", map[state][]state{
	"PENDING": {"PAID", "OVERDUE", "CANCELLED"},
	"OVERDUE": {"PAID", "CANCELLED"},
})

func TestLifecycle_Transition(t *testing.T) {
	tests := []struct {
		name       string
		from, to   state
		wantReason Reason
		wantErr    string
	}{
		{name: "allowed", from: "PENDING", to: "PAID"},
		{name: "allowed from intermediate", from: "OVERDUE", to: "CANCELLED"},
		{name: "same state", from: "PAID", to: "PAID", wantReason: ReasonDuplicateAction, wantErr: "payment is already PAID"},
		{name: "from terminal", from: "PAID", to: "PENDING", wantReason: ReasonInvalidTransition, wantErr: "payment cannot go from PAID to PENDING"},
		{name: "backwards", from: "OVERDUE", to: "PENDING", wantReason: ReasonInvalidTransition, wantErr: "payment cannot go from OVERDUE to PENDING"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := testLifecycle.Transition(tt.from, tt.to)
			if tt.wantReason == "" {
				assert.NoError(t, err)
				return
			}
			assert.True(t, HasReason(err, tt.wantReason), "got %v", err)
			assert.EqualError(t, err, tt.wantErr)
		})
	}

	assert.True(t, testLifecycle.Valid("CANCELLED"))
	assert.False(t, testLifecycle.Valid("REFUNDED"))
	assert.NoError(t, testLifecycle.CheckFilter(""))
	assert.NoError(t, testLifecycle.CheckFilter("PAID"))
	assert.EqualError(t, testLifecycle.CheckFilter("REFUNDED"), "unknown payment status: REFUNDED")
}

func TestErrors(t *testing.T) {
	assert.EqualError(t, NewNotFoundError("class"), "class not found")
	assert.EqualError(t, NewNotFoundError("class", "a"), "class not found: a")
	assert.EqualError(t, NewNotFoundError("class", "a", "b"), "class not found: a, b")

	wrapped := errors.Wrap(NewNotFoundError("class"), "getting class")
	assert.True(t, IsNotFound(wrapped))
	assert.False(t, IsNotFound(ErrForbidden))

	verr := NewValidationError(nil, FieldError{Field: "name", Error: "name is required"})
	assert.EqualError(t, verr, "name is required")

	assert.True(t, HasReason(errors.Wrap(NewInvariantError(ReasonAlreadyEnrolled, "x", nil), "enrolling"), ReasonAlreadyEnrolled))
	assert.False(t, HasReason(NewInvariantError(ReasonAlreadyEnrolled, "x", nil), ReasonCapacityExceeded))
}

func TestUniqueStrings(t *testing.T) {
	assert.Equal(t, []string{"b", "a"}, UniqueStrings([]string{" b", "a", "", "b ", "a"}))
	assert.Equal(t, []string{}, UniqueStrings(nil))
}

func TestSlugify(t *testing.T) {
	tests := map[string]string{
		"Kilima Primary School": "kilima-primary-school",
		"  St. Mary's (2)  ":    "st-mary-s-2",
		"École":                 "cole",
		"---":                   "",
	}
	for in, want := range tests {
		assert.Equal(t, want, Slugify(in), in)
	}
}

func TestPagination(t *testing.T) {
	p := Pagination{Page: 0, Limit: 500}
	p.Clean()
	assert.Equal(t, Pagination{Page: 1, Limit: MaxPageLimit}, p)

	p = Pagination{Page: 3, Limit: 0}
	p.Clean()
	assert.Equal(t, DefaultPageLimit, p.Limit)
	assert.Equal(t, 40, p.Offset())

	start, end := Pagination{Page: 2, Limit: 5}.Window(7)
	assert.Equal(t, [2]int{5, 7}, [2]int{start, end})
	start, end = Pagination{Page: 4, Limit: 5}.Window(7)
	assert.Equal(t, [2]int{7, 7}, [2]int{start, end})

	page := NewPage[int](nil, Pagination{Page: 1, Limit: 5}, 0)
	require.NotNil(t, page.Data)
}

func TestOrderingColumns_Resolve(t *testing.T) {
	cols := OrderingColumns{"name": "last_name", "created_at": "created_at"}
	got := cols.Resolve([]DBOrdering{{Field: "name", Ascending: true}, {Field: "password"}}, DBOrdering{Field: "created_at"})
	assert.Equal(t, []DBOrdering{{Field: "last_name", Ascending: true}}, got)
	assert.Equal(t, "last_name ASC", got[0].String())

	got = cols.Resolve([]DBOrdering{{Field: "password"}}, DBOrdering{Field: "created_at"})
	assert.Equal(t, []DBOrdering{{Field: "created_at"}}, got)
}
