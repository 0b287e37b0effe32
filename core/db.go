package core

import (
	"context"

	"github.com/jmoiron/sqlx"
)

type (
	// DBExecutor is satisfied by both *sqlx.DB and *sqlx.Tx.
	DBExecutor interface {
		sqlx.ExtContext
	}

	// Transactor runs fn inside a single database transaction. fn's exec must be passed down to
	// every repository call that belongs to the unit of work.
	Transactor interface {
		RunInTx(ctx context.Context, fn func(exec DBExecutor) error) error
	}
)

type DBOrdering struct {
	Field     string
	Ascending bool
}

func (ord DBOrdering) String() string {
	direction := "DESC"
	if ord.Ascending {
		direction = "ASC"
	}
	return ord.Field + " " + direction
}

// OrderingColumns maps public ordering fields to the columns they sort on.
type OrderingColumns map[string]string

// Resolve keeps the orderings whose field is known, translated to column names.
// Unknown fields are dropped; `fallback` is used when nothing remains.
func (cols OrderingColumns) Resolve(orderings []DBOrdering, fallback ...DBOrdering) []DBOrdering {
	out := make([]DBOrdering, 0, len(orderings))
	for _, ord := range orderings {
		if col, ok := cols[ord.Field]; ok {
			out = append(out, DBOrdering{Field: col, Ascending: ord.Ascending})
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
