// Package pool implements the per-process connection pool (C2): bounded,
// per-key queues of reusable connection handles, and the "fairy"
// checkout/return proxy that classifies connection failures so broken
// sessions never re-enter the pool.
package pool

import (
	"context"
	"sync"

	"github.com/clusterkit/clusterkit/internal/dbconn"
	"github.com/clusterkit/clusterkit/internal/dberrors"
	"github.com/clusterkit/clusterkit/internal/logger"
	"github.com/clusterkit/clusterkit/internal/metrics"
)

// Capacity is the maximum number of idle connections retained per key.
// Returns beyond this are closed rather than enqueued.
const Capacity = 128

// MaxIdleTime is the idle-reconnect threshold handed to every connection
// this pool opens.
var MaxIdleTime = dbconn.DefaultMaxIdleTime

type keyedQueue struct {
	idle chan *dbconn.Connection
	live int
}

// Pool owns every idle queue and tracks live (checked-out) connections
// per key. Each per-key queue is independently synchronized; there is no
// global lock serializing checkouts from different keys.
type Pool struct {
	mu            sync.Mutex
	queues        map[string]*keyedQueue
	tlsConfigName string
}

// New returns an empty pool.
func New() *Pool {
	return &Pool{queues: make(map[string]*keyedQueue)}
}

// SetTLSConfigName names the backend TLS config (already registered with
// mysql.RegisterTLSConfig, e.g. by tls.Manager.RegisterAs) that every
// connection this pool opens should use. An empty name disables TLS.
func (p *Pool) SetTLSConfigName(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tlsConfigName = name
}

func (p *Pool) queueFor(key Key) *keyedQueue {
	p.mu.Lock()
	defer p.mu.Unlock()
	canon := key.canonical()
	q, ok := p.queues[canon]
	if !ok {
		q = &keyedQueue{idle: make(chan *dbconn.Connection, Capacity)}
		p.queues[canon] = q
	}
	return q
}

// Connect borrows a fairy for key: a non-blocking take from the key's
// idle queue is tried first and liveness-checked; on miss or a dead
// session a fresh connection is opened. Any open/liveness failure is
// raised as *dberrors.PoolConnectionFailure and the attempt is abandoned
// without ever exposing a broken fairy to the caller.
func (p *Pool) Connect(ctx context.Context, key Key) (*Fairy, error) {
	q := p.queueFor(key)

	for {
		select {
		case conn := <-q.idle:
			if conn.Connected(ctx) {
				p.mu.Lock()
				q.live++
				p.mu.Unlock()
				metrics.RecordPoolCheckout("idle_hit")
				return &Fairy{conn: conn, key: key, pool: p}, nil
			}
			conn.Close()
			logger.Debug("pool: discarded dead idle connection", "key", key.String())
			continue
		default:
		}
		break
	}

	p.mu.Lock()
	tlsConfigName := p.tlsConfigName
	p.mu.Unlock()

	conn, err := dbconn.Connect(ctx, key.Host, key.Port, key.User, key.Password, key.Database, MaxIdleTime, dbconn.Options{Params: key.Options, TLSConfigName: tlsConfigName})
	if err != nil {
		logger.Warn("pool: connect failed", "key", key.String(), "error", err)
		metrics.RecordPoolCheckout("failure")
		var failure *dberrors.PoolConnectionFailure
		if pf, ok := err.(*dberrors.PoolConnectionFailure); ok {
			failure = pf
			failure.Key = key
			return nil, failure
		}
		return nil, &dberrors.PoolConnectionFailure{Message: err.Error(), Key: key}
	}

	p.mu.Lock()
	q.live++
	p.mu.Unlock()
	metrics.RecordPoolCheckout("opened")
	return &Fairy{conn: conn, key: key, pool: p}, nil
}

// checkin returns a fairy's connection to its key's idle queue, unless it
// was expired or the queue is already full, in which case the connection
// is closed. The fairy is always removed from the live set. A close-on-
// close failure is logged, never reraised.
func (p *Pool) checkin(f *Fairy, expire bool) error {
	q := p.queueFor(f.key)

	p.mu.Lock()
	if q.live > 0 {
		q.live--
	}
	p.mu.Unlock()

	if expire {
		metrics.RecordPoolCheckin("expired")
		if err := f.conn.Close(); err != nil {
			logger.Warn("pool: error closing expired connection", "key", f.key.String(), "error", err)
		}
		return nil
	}

	select {
	case q.idle <- f.conn:
		metrics.RecordPoolCheckin("enqueued")
		metrics.SetPoolIdleQueueDepth(f.key.String(), len(q.idle))
		return nil
	default:
		metrics.RecordPoolCheckin("overflow")
		if err := f.conn.Close(); err != nil {
			logger.Warn("pool: error closing overflow connection", "key", f.key.String(), "error", err)
		}
		return nil
	}
}

// Size reports the approximate idle+live count across all keys.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	total := 0
	for _, q := range p.queues {
		total += len(q.idle) + q.live
	}
	return total
}

// Close closes every idle connection across all keys. Live (checked-out)
// fairies are unaffected; they close on their own Close() call.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, q := range p.queues {
		for n := len(q.idle); n > 0; n-- {
			conn := <-q.idle
			conn.Close()
		}
	}
	return nil
}
