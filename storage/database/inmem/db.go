package inmemdb

import (
	"context"
	"maps"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/attendance"
	"github.com/trezcool/darasa/core/notice"
	"github.com/trezcool/darasa/core/notification"
	"github.com/trezcool/darasa/core/payment"
	"github.com/trezcool/darasa/core/school"
	"github.com/trezcool/darasa/core/tenant"
	"github.com/trezcool/darasa/core/user"
)

type (
	// DB is a mutex-guarded in-memory store with the semantics of the PostgreSQL one.
	DB struct {
		sync.RWMutex
		txMu sync.Mutex
		tables
	}

	tables struct {
		users          map[string]user.User
		tenants        map[string]tenant.Tenant
		memberships    map[string]tenant.Membership
		students       map[string]school.Student
		studentParents map[string][]string // {student id: parent user ids}
		teachers       map[string]school.Teacher
		classes        map[string]school.Class
		enrollments    map[string]school.Enrollment
		lessons        map[string]school.Lesson
		attendance     map[string]attendance.Attendance
		payments       map[string]payment.Payment
		notices        map[string]notice.Notice
		notifications  map[string]notification.Notification
	}
)

var _ core.Transactor = (*DB)(nil)

func Open() *DB {
	db := &DB{}
	db.reset()
	return db
}

func (db *DB) reset() {
	db.tables = tables{
		users:          make(map[string]user.User),
		tenants:        make(map[string]tenant.Tenant),
		memberships:    make(map[string]tenant.Membership),
		students:       make(map[string]school.Student),
		studentParents: make(map[string][]string),
		teachers:       make(map[string]school.Teacher),
		classes:        make(map[string]school.Class),
		enrollments:    make(map[string]school.Enrollment),
		lessons:        make(map[string]school.Lesson),
		attendance:     make(map[string]attendance.Attendance),
		payments:       make(map[string]payment.Payment),
		notices:        make(map[string]notice.Notice),
		notifications:  make(map[string]notification.Notification),
	}
}

// Flush empties every table.
func (db *DB) Flush() {
	db.Lock()
	defer db.Unlock()
	db.reset()
}

func (t tables) clone() tables {
	parents := make(map[string][]string, len(t.studentParents))
	for k, v := range t.studentParents {
		parents[k] = append([]string(nil), v...)
	}
	return tables{
		users:          maps.Clone(t.users),
		tenants:        maps.Clone(t.tenants),
		memberships:    maps.Clone(t.memberships),
		students:       maps.Clone(t.students),
		studentParents: parents,
		teachers:       maps.Clone(t.teachers),
		classes:        maps.Clone(t.classes),
		enrollments:    maps.Clone(t.enrollments),
		lessons:        maps.Clone(t.lessons),
		attendance:     maps.Clone(t.attendance),
		payments:       maps.Clone(t.payments),
		notices:        maps.Clone(t.notices),
		notifications:  maps.Clone(t.notifications),
	}
}

// txExec is the executor RunInTx hands to fn. Repositories use it to tell writes of the running
// transaction from concurrent ones.
type txExec struct {
	sqlx.ExtContext
}

// RunInTx serializes transactions and restores every table when fn fails.
// Writes made outside a transaction wait for the running one, so a rollback only undoes fn's own writes.
func (db *DB) RunInTx(ctx context.Context, fn func(exec core.DBExecutor) error) error {
	db.txMu.Lock()
	defer db.txMu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	db.RLock()
	snapshot := db.tables.clone()
	db.RUnlock()

	if err := fn(txExec{}); err != nil {
		db.Lock()
		db.tables = snapshot
		db.Unlock()
		return err
	}
	return nil
}

// lockWrite takes the write lock and returns its release.
func (db *DB) lockWrite(exec ...core.DBExecutor) (unlock func()) {
	if len(exec) > 0 {
		if _, ok := exec[0].(txExec); ok {
			db.Lock()
			return db.Unlock
		}
	}
	db.txMu.Lock()
	db.Lock()
	return func() {
		db.Unlock()
		db.txMu.Unlock()
	}
}

// Ping always succeeds.
func (db *DB) Ping(ctx context.Context) error { return ctx.Err() }

// ======== helpers ========

func inTenant(scopeTenant, tenantID string) bool {
	return scopeTenant == "" || scopeTenant == tenantID
}

func contains(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}

func containsFold(s string, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}

func idSet(ids []string) map[string]bool {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}

// paginate returns the page of rows and the total count.
func paginate[T any](rows []T, page core.Pagination) ([]T, int) {
	start, end := page.Window(len(rows))
	return rows[start:end], len(rows)
}

// sortRows orders rows by the given columns; col returns the value of a column of a row.
func sortRows[T any](rows []T, ords []core.DBOrdering, col func(T, string) interface{}) {
	sort.SliceStable(rows, func(i, j int) bool {
		for _, ord := range ords {
			c := compare(col(rows[i], ord.Field), col(rows[j], ord.Field))
			if c == 0 {
				continue
			}
			if ord.Ascending {
				return c < 0
			}
			return c > 0
		}
		return false
	})
}

func compare(a, b interface{}) int {
	switch x := a.(type) {
	case string:
		return strings.Compare(strings.ToLower(x), strings.ToLower(b.(string)))
	case int:
		return cmpOrdered(x, b.(int))
	case int64:
		return cmpOrdered(x, b.(int64))
	case bool:
		return cmpOrdered(boolInt(x), boolInt(b.(bool)))
	case time.Time:
		return x.Compare(b.(time.Time))
	case null.Time:
		y := b.(null.Time)
		switch {
		case !x.Valid && !y.Valid:
			return 0
		case !x.Valid: // NULLS LAST
			return 1
		case !y.Valid:
			return -1
		}
		return x.Time.Compare(y.Time)
	case null.String:
		return compare(x.String, b.(null.String).String)
	}
	return 0
}

func cmpOrdered[T int | int64](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
