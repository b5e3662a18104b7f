package db

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/mock"
)

// --- Mock DBTX ---

type mockDBTX struct {
	mock.Mock
}

func (m *mockDBTX) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	args := m.Called(ctx, sql, arguments)
	return args.Get(0).(pgconn.CommandTag), args.Error(1)
}

func (m *mockDBTX) Query(ctx context.Context, sql string, arguments ...any) (pgx.Rows, error) {
	args := m.Called(ctx, sql, arguments)
	if r := args.Get(0); r != nil {
		return r.(pgx.Rows), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockDBTX) QueryRow(ctx context.Context, sql string, arguments ...any) pgx.Row {
	args := m.Called(ctx, sql, arguments)
	return args.Get(0).(pgx.Row)
}

// --- Mock Row ---

type mockRow struct {
	scanErr error
	scanFn  func(dest ...any) error
}

func (r *mockRow) Scan(dest ...any) error {
	if r.scanFn != nil {
		return r.scanFn(dest...)
	}
	return r.scanErr
}

func intRow(n int) *mockRow {
	return &mockRow{scanFn: func(dest ...any) error {
		*dest[0].(*int) = n
		return nil
	}}
}

func boolRow(b bool) *mockRow {
	return &mockRow{scanFn: func(dest ...any) error {
		*dest[0].(*bool) = b
		return nil
	}}
}

// sqlContaining matches a statement by a distinctive fragment.
func sqlContaining(fragment string) any {
	return mock.MatchedBy(func(sql string) bool {
		return strings.Contains(sql, fragment)
	})
}

// --- Fake transaction and connection ---

// fakeTx implements pgx.Tx by delegating queries to a mockDBTX. Methods the
// store never calls panic through the nil embedded interface.
type fakeTx struct {
	pgx.Tx
	db         *mockDBTX
	commitErr  error
	committed  bool
	rolledBack bool
}

func (t *fakeTx) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	return t.db.Exec(ctx, sql, arguments...)
}

func (t *fakeTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return t.db.Query(ctx, sql, args...)
}

func (t *fakeTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return t.db.QueryRow(ctx, sql, args...)
}

func (t *fakeTx) Commit(context.Context) error {
	if t.commitErr != nil {
		return t.commitErr
	}
	t.committed = true
	return nil
}

func (t *fakeTx) Rollback(context.Context) error {
	if t.committed {
		return pgx.ErrTxClosed
	}
	t.rolledBack = true
	return nil
}

// fakeConn hands out txs in order, one per Begin. Statements run directly on
// the connection go to the embedded mock, which expects none.
type fakeConn struct {
	*mockDBTX
	txs      []*fakeTx
	begins   int
	beginErr error
	closed   int
}

func (c *fakeConn) Begin(context.Context) (pgx.Tx, error) {
	if c.beginErr != nil {
		return nil, c.beginErr
	}
	tx := c.txs[c.begins]
	c.begins++
	return tx, nil
}

func (c *fakeConn) Close(context.Context) error {
	c.closed++
	return nil
}

func (c *fakeConn) IsClosed() bool {
	return c.closed > 0
}

// fakeOpener hands out a fixed connection or error.
type fakeOpener struct {
	conn  *fakeConn
	err   error
	calls int
}

func (o *fakeOpener) Connect(context.Context) (Conn, error) {
	o.calls++
	if o.err != nil {
		return nil, o.err
	}
	return o.conn, nil
}
