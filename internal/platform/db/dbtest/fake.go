// Package dbtest provides an in-memory stand-in for transactional writes so
// repositories can be tested for commit and rollback behaviour.
package dbtest

import (
	"context"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Call is one statement executed inside a transaction.
type Call struct {
	SQL  string
	Args []any
}

// FakeDB hands out fake transactions. Statements become visible in Committed
// only when their transaction commits.
type FakeDB struct {
	mu sync.Mutex

	// FailOn, when set, is consulted before every statement with its
	// zero-based position inside the transaction.
	FailOn func(sql string, index int) error

	Committed  []Call
	Begun      int
	RolledBack int
	nextID     int64
}

// BeginTx implements db.Beginner.
func (f *FakeDB) BeginTx(context.Context, pgx.TxOptions) (pgx.Tx, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Begun++
	return &fakeTx{db: f}, nil
}

// CommittedMatching returns committed statements containing fragment.
func (f *FakeDB) CommittedMatching(fragment string) []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Call
	for _, c := range f.Committed {
		if strings.Contains(c.SQL, fragment) {
			out = append(out, c)
		}
	}
	return out
}

func (f *FakeDB) id() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	return f.nextID
}

type fakeTx struct {
	pgx.Tx
	db    *FakeDB
	calls []Call
	done  bool
}

func (t *fakeTx) record(sql string, args []any) error {
	if t.done {
		return pgx.ErrTxClosed
	}
	if t.db.FailOn != nil {
		if err := t.db.FailOn(sql, len(t.calls)); err != nil {
			return err
		}
	}
	t.calls = append(t.calls, Call{SQL: sql, Args: args})
	return nil
}

func (t *fakeTx) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if err := t.record(sql, args); err != nil {
		return pgconn.CommandTag{}, err
	}
	return pgconn.NewCommandTag("OK 1"), nil
}

// QueryRow records the statement and yields a fresh id for RETURNING id.
func (t *fakeTx) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	if err := t.record(sql, args); err != nil {
		return idRow{err: err}
	}
	return idRow{id: t.db.id()}
}

func (t *fakeTx) Commit(context.Context) error {
	if t.done {
		return pgx.ErrTxClosed
	}
	t.done = true
	t.db.mu.Lock()
	defer t.db.mu.Unlock()
	t.db.Committed = append(t.db.Committed, t.calls...)
	return nil
}

func (t *fakeTx) Rollback(context.Context) error {
	if t.done {
		return pgx.ErrTxClosed
	}
	t.done = true
	t.db.mu.Lock()
	defer t.db.mu.Unlock()
	t.db.RolledBack++
	return nil
}

type idRow struct {
	id  int64
	err error
}

func (r idRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	if len(dest) > 0 {
		if p, ok := dest[0].(*int64); ok {
			*p = r.id
		}
	}
	return nil
}
