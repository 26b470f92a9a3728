package pool

import (
	"context"
	"sync"

	"github.com/go-sql-driver/mysql"

	"github.com/clusterkit/clusterkit/internal/dbconn"
	"github.com/clusterkit/clusterkit/internal/dberrors"
)

// Fairy is an exclusive, single-owner wrapper around a pooled connection
// for the duration of a scoped borrow. Every delegated call runs through
// the pool's error-classification policy, which can flip the fairy's
// expired flag; Close() guarantees the underlying connection is returned
// to (or discarded from) the pool exactly once.
type Fairy struct {
	mu       sync.Mutex
	conn     *dbconn.Connection
	key      Key
	pool     *Pool
	expired  bool
	returned bool
}

// Connection returns the wrapped connection handle, for callers that need
// direct C1 access (e.g. the routing pool issuing SHOW AGGREGATORS).
func (f *Fairy) Connection() *dbconn.Connection { return f.conn }

// Key returns the connection key this fairy was borrowed against.
func (f *Fairy) Key() Key { return f.key }

// Expire marks the fairy's connection as broken; Close will discard
// rather than return it to the idle queue.
func (f *Fairy) Expire() {
	f.mu.Lock()
	f.expired = true
	f.mu.Unlock()
}

// Expired reports the current expiry state.
func (f *Fairy) Expired() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.expired
}

// Close returns the fairy to the pool (checkin), discarding it if it was
// expired. It is safe to call more than once; only the first call has an
// effect, guaranteeing return-on-scope-exit even if a caller defers Close
// after already closing explicitly.
func (f *Fairy) Close() error {
	f.mu.Lock()
	if f.returned {
		f.mu.Unlock()
		return nil
	}
	f.returned = true
	expired := f.expired
	f.mu.Unlock()
	return f.pool.checkin(f, expired)
}

func (f *Fairy) wrapFailure(err error) error {
	errno := 0
	var mysqlErr *mysql.MySQLError
	if ok := asMySQLError(err, &mysqlErr); ok {
		errno = int(mysqlErr.Number)
	}
	return &dberrors.PoolConnectionFailure{Errno: errno, Message: err.Error(), Key: f.key}
}

func asMySQLError(err error, out **mysql.MySQLError) bool {
	if me, ok := err.(*mysql.MySQLError); ok {
		*out = me
		return true
	}
	return false
}

// Query proxies dbconn.Connection.Query, classifying any error as a
// connection failure (expiring the fairy) or an application error
// (rethrown verbatim).
func (f *Fairy) Query(ctx context.Context, sqlText string, positional []interface{}, named map[string]interface{}) (*dbconn.SelectResult, int64, error) {
	result, affected, err := f.conn.Query(ctx, sqlText, positional, named)
	if err != nil && classify(ctx, f.conn, err) {
		f.Expire()
		return nil, 0, f.wrapFailure(err)
	}
	return result, affected, err
}

// Get proxies dbconn.Connection.Get with the same classification policy.
func (f *Fairy) Get(ctx context.Context, sqlText string, positional []interface{}, named map[string]interface{}) (*dbconn.Row, error) {
	row, err := f.conn.Get(ctx, sqlText, positional, named)
	if err != nil && classify(ctx, f.conn, err) {
		f.Expire()
		return nil, f.wrapFailure(err)
	}
	return row, err
}

// Execute proxies dbconn.Connection.Execute with the same classification
// policy.
func (f *Fairy) Execute(ctx context.Context, sqlText string, positional []interface{}, named map[string]interface{}) (int64, error) {
	id, err := f.conn.Execute(ctx, sqlText, positional, named)
	if err != nil && classify(ctx, f.conn, err) {
		f.Expire()
		return 0, f.wrapFailure(err)
	}
	return id, err
}
