// Package lock implements the SQL-backed distributed lock manager: a
// degenerate queue where holding a lock is "a row with matching id and
// lock_hash exists and last_contact is recent enough."
package lock

import (
	"context"
	cryptorand "crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/clusterkit/clusterkit/internal/dberrors"
	"github.com/clusterkit/clusterkit/internal/metrics"
	"github.com/clusterkit/clusterkit/internal/routing"
	"github.com/clusterkit/clusterkit/internal/sqlutil"
)

const erDupEntry = 1062

// Manager owns one lock table/namespace.
type Manager struct {
	base *sqlutil.Base
	name string
}

// New builds a lock manager named name against router.
func New(router *routing.Router, name string) *Manager {
	return &Manager{base: sqlutil.New(router), name: name}
}

// TableName is the backtick-quoted identifier for this namespace's table.
func (m *Manager) TableName() string { return "`" + m.name + "`" }

// Setup registers the lock table if it does not already exist.
func (m *Manager) Setup(ctx context.Context) error {
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
  id VARCHAR(255) NOT NULL,
  lock_hash BINARY(32) NOT NULL,
  owner VARCHAR(1024) NOT NULL,
  last_contact DATETIME NOT NULL,
  expiry INT UNSIGNED NOT NULL,
  PRIMARY KEY (id)
) ENGINE=InnoDB`, m.TableName())
	return m.base.Setup(ctx, ddl)
}

// Destroy drops the lock table.
func (m *Manager) Destroy(ctx context.Context) error {
	return m.base.Destroy(ctx, "DROP TABLE IF EXISTS "+m.TableName())
}

// newLockHash generates a fresh guard token for one acquire, independent
// of id/owner, so a stale in-process *Lock from an earlier generation of
// the same lock can never match a later generation's row.
func newLockHash() []byte {
	buf := make([]byte, 16)
	if _, err := cryptorand.Read(buf); err != nil {
		return []byte(fmt.Sprintf("%032d", time.Now().UnixNano())[:32])
	}
	return []byte(hex.EncodeToString(buf))
}

// AcquireOptions configures an acquire attempt.
type AcquireOptions struct {
	Expiry        time.Duration
	Block         bool
	Timeout       time.Duration
	RetryInterval time.Duration
}

// Acquire attempts to INSERT a lock row for id; a duplicate key means the
// lock is already held, in which case Acquire returns (nil, nil) in
// non-blocking mode or retries until Timeout in blocking mode.
func (m *Manager) Acquire(ctx context.Context, id, owner string, opts AcquireOptions) (*Lock, error) {
	var deadline time.Time
	hasDeadline := opts.Block && opts.Timeout > 0
	if hasDeadline {
		deadline = time.Now().Add(opts.Timeout)
	}

	for {
		lock, err := m.tryAcquire(ctx, id, owner, opts.Expiry)
		if err != nil {
			return nil, err
		}
		if lock != nil {
			return lock, nil
		}
		if !opts.Block {
			return nil, nil
		}
		if hasDeadline && time.Now().After(deadline) {
			return nil, nil
		}
		if err := sleepJittered(ctx, opts.RetryInterval); err != nil {
			return nil, err
		}
	}
}

// tryAcquire GCs expired rows then attempts a single INSERT.
func (m *Manager) tryAcquire(ctx context.Context, id, owner string, expiry time.Duration) (*Lock, error) {
	f, err := m.base.Borrow(ctx, "acquire")
	if err != nil {
		return nil, err
	}
	defer f.Close()

	expirySeconds := int64(expiry.Seconds())
	if expirySeconds <= 0 {
		expirySeconds = 60
	}

	gcSQL := "DELETE FROM " + m.TableName() + " WHERE last_contact <= NOW() - INTERVAL %s SECOND"
	if _, _, err := f.Query(ctx, gcSQL, []interface{}{expirySeconds}, nil); err != nil {
		return nil, err
	}

	hash := newLockHash()
	insertSQL := "INSERT INTO " + m.TableName() + " (id, lock_hash, owner, last_contact, expiry) VALUES (%s, %s, %s, NOW(), %s)"
	_, _, err = f.Query(ctx, insertSQL, []interface{}{id, hash, owner, expirySeconds}, nil)
	if err != nil {
		var mysqlErr *mysql.MySQLError
		if errors.As(err, &mysqlErr) && int(mysqlErr.Number) == erDupEntry {
			metrics.RecordLockContention(m.name)
			return nil, nil
		}
		return nil, err
	}

	metrics.RecordLockAcquired(m.name)
	return &Lock{manager: m, id: id, owner: owner, hash: hash, expiry: time.Duration(expirySeconds) * time.Second}, nil
}

func sleepJittered(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	jitter := time.Duration(float64(interval) * (0.1 + rand.Float64()*0.9))
	timer := time.NewTimer(jitter)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Lock is a held lock row; Release lets it go explicitly, and Close is an
// alias suitable for deferring from the acquiring scope.
type Lock struct {
	manager  *Manager
	id       string
	owner    string
	hash     []byte
	expiry   time.Duration
	released bool
}

// ID returns the lock's logical identifier.
func (l *Lock) ID() string { return l.id }

func (l *Lock) guardedWhere() (string, []interface{}) {
	return "id=%s AND lock_hash=%s", []interface{}{l.id, l.hash}
}

// Valid re-reads last_contact > now - expiry for this lock's row.
func (l *Lock) Valid(ctx context.Context) (bool, error) {
	if l.released {
		return false, nil
	}
	f, err := l.manager.base.Borrow(ctx, "valid")
	if err != nil {
		return false, err
	}
	defer f.Close()

	where, args := l.guardedWhere()
	expirySeconds := int64(l.expiry.Seconds())
	sqlText := fmt.Sprintf("SELECT id FROM %s WHERE %s AND last_contact > NOW() - INTERVAL %%s SECOND", l.manager.TableName(), where)
	row, err := f.Get(ctx, sqlText, append(args, expirySeconds), nil)
	if err != nil {
		return false, err
	}
	return row != nil, nil
}

// Ping refreshes last_contact, guarded by (id, lock_hash).
func (l *Lock) Ping(ctx context.Context) error {
	if l.released {
		return &dberrors.LockAlreadyReleased{LockID: l.id}
	}
	f, err := l.manager.base.Borrow(ctx, "ping")
	if err != nil {
		return err
	}
	defer f.Close()

	where, args := l.guardedWhere()
	sqlText := fmt.Sprintf("UPDATE %s SET last_contact=NOW() WHERE %s", l.manager.TableName(), where)
	_, affected, err := f.Query(ctx, sqlText, args, nil)
	if err != nil {
		return err
	}
	if affected != 1 {
		return &dberrors.LockDoesNotExist{LockID: l.id}
	}
	return nil
}

// Release deletes the lock row, guarded by (id, lock_hash).
func (l *Lock) Release(ctx context.Context) error {
	if l.released {
		return nil
	}
	f, err := l.manager.base.Borrow(ctx, "release")
	if err != nil {
		return err
	}
	defer f.Close()

	where, args := l.guardedWhere()
	sqlText := fmt.Sprintf("DELETE FROM %s WHERE %s", l.manager.TableName(), where)
	if _, _, err := f.Query(ctx, sqlText, args, nil); err != nil {
		return err
	}
	l.released = true
	metrics.RecordLockReleased(l.manager.name)
	return nil
}

// Close is an alias for Release, so a Lock can be deferred from the
// acquiring scope like any other scoped resource.
func (l *Lock) Close(ctx context.Context) error { return l.Release(ctx) }
