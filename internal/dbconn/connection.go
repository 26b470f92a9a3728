// Package dbconn is the thin connection handle (C1): one physical
// session against a MySQL-wire-protocol server, with ping-based
// liveness, idle-timeout reconnect, parameter escaping, and row-as-record
// decoding. It knows nothing about pooling or routing — those are built
// on top of it.
package dbconn

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/xwb1989/sqlparser"

	"github.com/clusterkit/clusterkit/internal/dberrors"
)

// DefaultMaxIdleTime matches the server's 8-hour idle disconnect with
// headroom: a handle unused longer than this silently reconnects before
// its next query instead of surfacing a stale-socket error.
const DefaultMaxIdleTime = 25200 * time.Second

// Options are driver knobs forwarded verbatim into the DSN (e.g.
// "readTimeout", "interpolateParams"); TLSConfigName, if set, must name a
// configuration already registered with mysql.RegisterTLSConfig.
type Options struct {
	Params        map[string]string
	TLSConfigName string
}

// Connection is a single physical session. It is not safe for concurrent
// use by multiple goroutines — the pool layer (C2) is what makes
// concurrent access safe, by handing each caller an exclusively-owned
// fairy.
type Connection struct {
	mu sync.Mutex

	db   *sql.DB
	conn *sql.Conn

	host, user, password, database string
	port                           int
	maxIdleTime                    time.Duration
	options                        Options

	lastUse time.Time
}

// Connect performs one physical connect, sets the UTF-8 client charset,
// and records the initial last-use time.
func Connect(ctx context.Context, host string, port int, user, password, database string, maxIdleTime time.Duration, options Options) (*Connection, error) {
	if maxIdleTime <= 0 {
		maxIdleTime = DefaultMaxIdleTime
	}
	c := &Connection{
		host:        host,
		port:        port,
		user:        user,
		password:    password,
		database:    database,
		maxIdleTime: maxIdleTime,
		options:     options,
	}
	if err := c.open(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Connection) dsn() string {
	cfg := mysql.NewConfig()
	cfg.Net = "tcp"
	cfg.Addr = fmt.Sprintf("%s:%d", c.host, c.port)
	cfg.User = c.user
	cfg.Passwd = c.password
	cfg.DBName = c.database
	cfg.Collation = "utf8mb4_general_ci"
	cfg.ParseTime = true
	cfg.InterpolateParams = false
	if c.options.TLSConfigName != "" {
		cfg.TLSConfig = c.options.TLSConfigName
	}
	if len(c.options.Params) > 0 {
		cfg.Params = make(map[string]string, len(c.options.Params))
		for k, v := range c.options.Params {
			cfg.Params[k] = v
		}
	}
	return cfg.FormatDSN()
}

func (c *Connection) open(ctx context.Context) error {
	db, err := sql.Open("mysql", c.dsn())
	if err != nil {
		return &dberrors.PoolConnectionFailure{Message: err.Error()}
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	conn, err := db.Conn(ctx)
	if err != nil {
		db.Close()
		return &dberrors.PoolConnectionFailure{Message: err.Error()}
	}
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		db.Close()
		return &dberrors.PoolConnectionFailure{Message: err.Error()}
	}

	c.db = db
	c.conn = conn
	c.lastUse = time.Now()
	return nil
}

// Ping is a lightweight liveness probe.
func (c *Connection) Ping(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return &dberrors.NotConnected{Operation: "ping"}
	}
	return c.conn.PingContext(ctx)
}

// Connected reports true iff Ping succeeds.
func (c *Connection) Connected(ctx context.Context) bool {
	return c.Ping(ctx) == nil
}

// Reconnect closes and re-opens the session with the stored connect
// arguments, atomically replacing the underlying session.
func (c *Connection) Reconnect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked()
	return c.open(ctx)
}

func (c *Connection) closeLocked() {
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	if c.db != nil {
		c.db.Close()
		c.db = nil
	}
}

// Close releases the underlying session.
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked()
	return nil
}

// SelectDB switches the default schema and updates the stored connect
// arguments so a later Reconnect preserves it.
func (c *Connection) SelectDB(ctx context.Context, database string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return &dberrors.NotConnected{Operation: "select_db"}
	}
	if _, err := c.conn.ExecContext(ctx, "USE "+quoteIdent(database)); err != nil {
		return err
	}
	c.database = database
	return nil
}

func quoteIdent(name string) string {
	return "`" + name + "`"
}

// ensureConnected silently reconnects if the handle has been idle longer
// than maxIdleTime, masking the server's own idle disconnect.
func (c *Connection) ensureConnected(ctx context.Context) error {
	c.mu.Lock()
	idle := c.conn != nil && time.Since(c.lastUse) > c.maxIdleTime
	c.mu.Unlock()
	if idle {
		return c.Reconnect(ctx)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return &dberrors.NotConnected{Operation: "query"}
	}
	return nil
}

func (c *Connection) touch() {
	c.mu.Lock()
	c.lastUse = time.Now()
	c.mu.Unlock()
}

// Query executes sqlText, substituting at most one of positional or
// named parameters. A SELECT or SHOW statement yields a *SelectResult;
// any other statement yields the number of affected rows.
func (c *Connection) Query(ctx context.Context, sqlText string, positional []interface{}, named map[string]interface{}) (*SelectResult, int64, error) {
	if err := c.ensureConnected(ctx); err != nil {
		return nil, 0, err
	}
	escaped, err := Escape(sqlText, positional, named)
	if err != nil {
		return nil, 0, err
	}

	isSelect, err := IsSelect(escaped)
	if err != nil {
		// Statements the parser rejects are executed as non-SELECT.
		isSelect = false
	}
	if !isSelect {
		// SHOW statements (e.g. the routing pool's SHOW AGGREGATORS)
		// return rows too, so they also take the result-set path.
		if stmt, perr := sqlparser.Parse(escaped); perr == nil {
			_, isSelect = stmt.(*sqlparser.Show)
		}
	}

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return nil, 0, &dberrors.NotConnected{Operation: "query"}
	}

	defer c.touch()

	if isSelect {
		result, err := c.runSelect(ctx, conn, escaped)
		return result, 0, err
	}

	res, err := conn.ExecContext(ctx, escaped)
	if err != nil {
		return nil, 0, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, 0, err
	}
	return nil, affected, nil
}

func (c *Connection) runSelect(ctx context.Context, conn *sql.Conn, escaped string) (*SelectResult, error) {
	rows, err := conn.QueryContext(ctx, escaped)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	result := &SelectResult{Fields: cols}
	for rows.Next() {
		raw := make([]interface{}, len(cols))
		ptrs := make([]interface{}, len(cols))
		for i := range raw {
			ptrs[i] = &raw[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		values := make([]interface{}, len(cols))
		for i, v := range raw {
			values[i] = normalizeScanned(v)
		}
		names := make([]string, len(cols))
		copy(names, cols)
		result.Rows = append(result.Rows, NewRow(names, values))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func normalizeScanned(v interface{}) interface{} {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}

// Get runs sqlText expecting exactly one row; it fails if the statement
// is not a SELECT or returns more than one row. It returns a nil *Row,
// nil error when the statement legitimately returns zero rows.
func (c *Connection) Get(ctx context.Context, sqlText string, positional []interface{}, named map[string]interface{}) (*Row, error) {
	escapedCheck, err := Escape(sqlText, positional, named)
	if err != nil {
		return nil, err
	}
	isSelect, err := IsSelect(escapedCheck)
	if err != nil || !isSelect {
		return nil, &dberrors.FormatException{Reason: "get() requires a SELECT statement"}
	}

	result, _, err := c.Query(ctx, sqlText, positional, named)
	if err != nil {
		return nil, err
	}
	if result.Len() == 0 {
		return nil, nil
	}
	if result.Len() > 1 {
		return nil, &dberrors.FormatException{Reason: "get() statement returned more than one row"}
	}
	return result.Rows[0], nil
}

// Execute runs a mutating statement and returns the last-insert id.
func (c *Connection) Execute(ctx context.Context, sqlText string, positional []interface{}, named map[string]interface{}) (int64, error) {
	if err := c.ensureConnected(ctx); err != nil {
		return 0, err
	}
	escaped, err := Escape(sqlText, positional, named)
	if err != nil {
		return 0, err
	}

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return 0, &dberrors.NotConnected{Operation: "execute"}
	}
	defer c.touch()

	res, err := conn.ExecContext(ctx, escaped)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// Host, Port, User, Database, and Options expose the connect arguments
// used to (re)open this handle, for the pool's key/classification logic.
func (c *Connection) Host() string       { return c.host }
func (c *Connection) Port() int          { return c.port }
func (c *Connection) User() string       { return c.user }
func (c *Connection) Database() string   { return c.database }
func (c *Connection) LastUse() time.Time { c.mu.Lock(); defer c.mu.Unlock(); return c.lastUse }
