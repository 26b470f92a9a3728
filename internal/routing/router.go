// Package routing implements the random-aggregator routing pool (C3): it
// discovers a cluster's aggregator nodes via SHOW AGGREGATORS, maintains a
// sticky selection with transparent failover, and exposes a "master
// aggregator" view on top of an inner connection pool.
package routing

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/clusterkit/clusterkit/internal/dberrors"
	"github.com/clusterkit/clusterkit/internal/logger"
	"github.com/clusterkit/clusterkit/internal/metrics"
	"github.com/clusterkit/clusterkit/internal/pool"
)

// refreshInterval bounds how often SHOW AGGREGATORS is actually issued;
// the memoized refresh in afterSuccessfulBorrow is a no-op within this
// window of the last successful discovery.
const refreshInterval = 30 * time.Second

// notAnAggregatorErrno is the vendor-specific error code SHOW AGGREGATORS
// returns against a single-node cluster; the router collapses to treating
// the primary as the only (and master) aggregator in that case.
const notAnAggregatorErrno = 1959

// Aggregator is one (host, port) routing node.
type Aggregator struct {
	Host   string
	Port   int
	Master bool
}

func (a Aggregator) key(user, password, database string, pid int, options map[string]string) pool.Key {
	return pool.Key{Host: a.Host, Port: a.Port, User: user, Password: password, Database: database, Options: options, PID: pid}
}

// Router is the routing pool. The primary address is the bootstrap
// contact point used to discover the aggregator list; it need not be an
// aggregator itself.
type Router struct {
	mu sync.Mutex // reentrant in spirit: held only across in-process mutation, never across I/O beyond one round trip

	primary  Aggregator
	user     string
	password string
	database string
	pid      int
	options  map[string]string

	inner *pool.Pool

	sticky *Aggregator
	list   []Aggregator
	master *Aggregator

	lastRefresh time.Time
}

// New builds a router against the given bootstrap primary and inner pool.
func New(primary Aggregator, user, password, database string, pid int, options map[string]string, inner *pool.Pool) *Router {
	return &Router{
		primary:  primary,
		user:     user,
		password: password,
		database: database,
		pid:      pid,
		options:  options,
		inner:    inner,
	}
}

// Connect implements the connect() algorithm from the spec: try sticky
// first, then discover the list if empty, then shuffle and try every
// member. If every member fails, the sticky selection and the list are
// cleared and the last failure is returned.
func (r *Router) Connect(ctx context.Context) (*pool.Fairy, error) {
	r.mu.Lock()
	sticky := r.sticky
	r.mu.Unlock()

	if sticky != nil {
		f, err := r.inner.Connect(ctx, sticky.key(r.user, r.password, r.database, r.pid, r.options))
		if err == nil {
			r.afterSuccessfulBorrow(ctx)
			return f, nil
		}
		var pcf *dberrors.PoolConnectionFailure
		if !errors.As(err, &pcf) {
			return nil, err
		}
		r.mu.Lock()
		r.sticky = nil
		r.mu.Unlock()
		metrics.RecordRoutingFailover()
		logger.Warn("routing: sticky aggregator failed, falling back", "aggregator", fmt.Sprintf("%s:%d", sticky.Host, sticky.Port))
	}

	r.mu.Lock()
	empty := len(r.list) == 0
	r.mu.Unlock()
	if empty {
		if err := r.discover(ctx); err != nil {
			return nil, err
		}
	}

	r.mu.Lock()
	candidates := append([]Aggregator(nil), r.list...)
	r.mu.Unlock()

	rand.Shuffle(len(candidates), func(i, j int) { candidates[i], candidates[j] = candidates[j], candidates[i] })

	var lastErr error
	for _, agg := range candidates {
		f, err := r.inner.Connect(ctx, agg.key(r.user, r.password, r.database, r.pid, r.options))
		if err == nil {
			chosen := agg
			r.mu.Lock()
			r.sticky = &chosen
			r.mu.Unlock()
			r.afterSuccessfulBorrow(ctx)
			return f, nil
		}
		lastErr = err
	}

	r.mu.Lock()
	r.sticky = nil
	r.list = nil
	r.mu.Unlock()

	if lastErr == nil {
		lastErr = &dberrors.PoolConnectionFailure{Message: "no aggregators available"}
	}
	return nil, lastErr
}

// ConnectMaster returns a fairy to the master aggregator, or nil if it
// cannot be reached. If the master is unknown, a refresh is forced first.
func (r *Router) ConnectMaster(ctx context.Context) (*pool.Fairy, error) {
	r.mu.Lock()
	master := r.master
	r.mu.Unlock()

	if master == nil {
		if err := r.discover(ctx); err != nil {
			return nil, nil
		}
		r.mu.Lock()
		master = r.master
		r.mu.Unlock()
		if master == nil {
			return nil, nil
		}
	}

	f, err := r.inner.Connect(ctx, master.key(r.user, r.password, r.database, r.pid, r.options))
	if err != nil {
		return nil, nil
	}
	return f, nil
}

// afterSuccessfulBorrow invokes the memoized refresh: a no-op within
// refreshInterval of the last successful refresh.
func (r *Router) afterSuccessfulBorrow(ctx context.Context) {
	r.mu.Lock()
	due := time.Since(r.lastRefresh) >= refreshInterval
	r.mu.Unlock()
	if !due {
		return
	}
	if err := r.discover(ctx); err != nil {
		logger.Warn("routing: memoized refresh failed", "error", err)
	}
}

// discover borrows from the primary, runs SHOW AGGREGATORS, and rewrites
// the list atomically.
func (r *Router) discover(ctx context.Context) error {
	key := pool.Key{Host: r.primary.Host, Port: r.primary.Port, User: r.user, Password: r.password, Database: r.database, Options: r.options, PID: r.pid}
	f, err := r.inner.Connect(ctx, key)
	if err != nil {
		return err
	}
	defer func() {
		f.Expire()
		f.Close()
	}()

	result, _, err := f.Query(ctx, "SHOW AGGREGATORS", nil, nil)
	if err != nil {
		var mysqlErr *mysql.MySQLError
		if errors.As(err, &mysqlErr) && int(mysqlErr.Number) == notAnAggregatorErrno {
			metrics.RecordRoutingRefresh("singlebox")
			return r.collapseToSinglebox()
		}
		metrics.RecordRoutingRefresh("failure")
		return err
	}

	list := make([]Aggregator, 0, result.Len())
	var master *Aggregator
	for _, row := range result.Rows {
		host, _ := row.Get("Host")
		port, _ := row.Get("Port")
		masterFlag, _ := row.Get("Master_Aggregator")

		hostStr := fmt.Sprintf("%v", host)
		if hostStr == "127.0.0.1" {
			hostStr = r.primary.Host
		}
		portInt := toInt(port)

		agg := Aggregator{Host: hostStr, Port: portInt, Master: toInt(masterFlag) == 1}
		list = append(list, agg)
		if agg.Master {
			chosen := agg
			master = &chosen
		}
	}

	if len(list) == 0 {
		metrics.RecordRoutingRefresh("failure")
		return &dberrors.PoolConnectionFailure{Message: "SHOW AGGREGATORS returned no rows", Key: key}
	}

	r.mu.Lock()
	r.list = list
	r.master = master
	r.lastRefresh = time.Now()
	r.mu.Unlock()
	metrics.RecordRoutingRefresh("success")
	return nil
}

// collapseToSinglebox handles the "not an aggregator" reply: the cluster
// is a single node, so the primary is the only (and master) aggregator.
func (r *Router) collapseToSinglebox() error {
	solo := Aggregator{Host: r.primary.Host, Port: r.primary.Port, Master: true}
	r.mu.Lock()
	r.list = []Aggregator{solo}
	r.master = &solo
	r.lastRefresh = time.Now()
	r.mu.Unlock()
	return nil
}

// Stats is a point-in-time view of the router's discovered topology, for
// the read-only stats surface.
type Stats struct {
	Primary     string
	Sticky      string
	Master      string
	Aggregators []Aggregator
	LastRefresh time.Time
}

// Stats returns a snapshot of the router's current sticky selection,
// master aggregator, and full aggregator list.
func (r *Router) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := Stats{
		Primary:     fmt.Sprintf("%s:%d", r.primary.Host, r.primary.Port),
		Aggregators: append([]Aggregator(nil), r.list...),
		LastRefresh: r.lastRefresh,
	}
	if r.sticky != nil {
		s.Sticky = fmt.Sprintf("%s:%d", r.sticky.Host, r.sticky.Port)
	}
	if r.master != nil {
		s.Master = fmt.Sprintf("%s:%d", r.master.Host, r.master.Port)
	}
	return s
}

func toInt(v interface{}) int {
	switch n := v.(type) {
	case int64:
		return int(n)
	case int:
		return n
	case string:
		var out int
		fmt.Sscanf(n, "%d", &out)
		return out
	default:
		return 0
	}
}
