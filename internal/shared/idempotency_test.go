package shared

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/portagency/pdadesk/internal/platform/db"
)

type execConn struct {
	db.DBTX
	sql  []string
	args [][]any
	err  error
	tag  string
}

func (c *execConn) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	c.sql = append(c.sql, sql)
	c.args = append(c.args, args)
	if c.err != nil {
		return pgconn.CommandTag{}, c.err
	}
	return pgconn.NewCommandTag(c.tag), nil
}

func TestClaimInsertsScopedKey(t *testing.T) {
	conn := &execConn{tag: "INSERT 0 1"}
	store := NewIdempotencyStore(conn)

	require.NoError(t, store.Claim(context.Background(), 7, "pda.save", "abc"))
	require.Len(t, conn.args, 1)
	assert.Equal(t, []any{"abc", "pda.save", int64(7)}, conn.args[0])
}

func TestClaimReportsConflict(t *testing.T) {
	store := NewIdempotencyStore(&execConn{err: &pgconn.PgError{Code: "23505"}})

	err := store.Claim(context.Background(), 7, "pda.save", "abc")
	assert.ErrorIs(t, err, ErrIdempotencyConflict)
}

func TestClaimRequiresKeyAndModule(t *testing.T) {
	store := NewIdempotencyStore(&execConn{})

	assert.Error(t, store.Claim(context.Background(), 7, "pda.save", ""))
	assert.Error(t, store.Claim(context.Background(), 7, "", "abc"))
}

func TestClaimPassesThroughOtherErrors(t *testing.T) {
	boom := errors.New("connection reset")
	store := NewIdempotencyStore(&execConn{err: boom})

	err := store.Claim(context.Background(), 7, "pda.save", "abc")
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrIdempotencyConflict)
}

func TestSweepReturnsRemovedCount(t *testing.T) {
	conn := &execConn{tag: "DELETE 4"}
	store := NewIdempotencyStore(conn)
	cutoff := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	n, err := store.Sweep(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
	assert.Equal(t, []any{cutoff}, conn.args[0])
}

func TestNilStoreIsInert(t *testing.T) {
	var store *IdempotencyStore
	n, err := store.Sweep(context.Background(), time.Now())
	assert.NoError(t, err)
	assert.Zero(t, n)
	assert.NoError(t, store.Release(context.Background(), 1, "pda.save", "abc"))
}
