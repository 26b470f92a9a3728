// Package queue implements the durable, cooperative step-queue (C4): rows
// of a SQL table treated as long-running tasks with heartbeats, steps,
// requeue, and bulk-finish semantics. The single-statement conditional
// UPDATE with affected_rows == 1 is the synchronization primitive; it
// guarantees at-most-one executor across any number of concurrent callers
// without an external lock.
package queue

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/clusterkit/clusterkit/internal/dberrors"
	"github.com/clusterkit/clusterkit/internal/metrics"
	"github.com/clusterkit/clusterkit/internal/routing"
	"github.com/clusterkit/clusterkit/internal/sqlutil"
)

// bulkFinishExecutionID marks a row finished by an administrative sweep
// rather than a live executor; it is never generated by Start, so it can
// never collide with a genuine claim.
const bulkFinishExecutionID = "bulkfinish0000000000000000000000"[:32]

// claimBatchSize is the number of claimable rows considered per attempt,
// ordered by created ASC.
const claimBatchSize = 5

// Queue is a single named step-queue: one table, one TTL.
type Queue struct {
	base  *sqlutil.Base
	name  string
	ttl   time.Duration
	stats Progress
}

// New builds a queue named name against router, with the given
// reclamation TTL.
func New(router *routing.Router, name string, ttl time.Duration) *Queue {
	return &Queue{base: sqlutil.New(router), name: name, ttl: ttl}
}

// Name returns the queue's table name.
func (q *Queue) Name() string { return q.name }

// Stats returns a point-in-time snapshot of this queue's claim-loop
// activity.
func (q *Queue) Stats() Snapshot { return q.stats.Snapshot() }

// TableName is the backtick-quoted identifier for this queue's table.
func (q *Queue) TableName() string { return "`" + q.name + "`" }

// Setup registers the queue's table if it does not already exist.
func (q *Queue) Setup(ctx context.Context) error {
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
  id BIGINT UNSIGNED NOT NULL AUTO_INCREMENT,
  created DATETIME NOT NULL,
  data JSON NOT NULL,
  execution_id CHAR(32) NULL,
  steps JSON NOT NULL,
  started DATETIME NULL,
  last_contact DATETIME NULL,
  finished DATETIME NULL,
  update_count INT UNSIGNED NOT NULL DEFAULT 0,
  result VARCHAR(255) AS (JSON_UNQUOTE(JSON_EXTRACT(data, '$.result'))) PERSISTED,
  PRIMARY KEY (id),
  KEY ix_created (created),
  KEY ix_started (started),
  KEY ix_last_contact (last_contact)
) ENGINE=InnoDB`, q.TableName())
	return q.base.Setup(ctx, ddl)
}

// Destroy drops the queue's table.
func (q *Queue) Destroy(ctx context.Context) error {
	return q.base.Destroy(ctx, "DROP TABLE IF EXISTS "+q.TableName())
}

func (q *Queue) ttlSeconds() int64 { return int64(q.ttl.Seconds()) }

// claimablePredicate returns the SQL fragment and its single positional
// argument (the TTL) for "finished IS NULL AND (execution_id IS NULL OR
// last_contact <= NOW() - INTERVAL ttl SECOND)".
func (q *Queue) claimablePredicate() (string, []interface{}) {
	return "(finished IS NULL AND (execution_id IS NULL OR last_contact <= NOW() - INTERVAL %s SECOND))", []interface{}{q.ttlSeconds()}
}

func withExtra(where string, args []interface{}, extra *ExtraPredicate) (string, []interface{}) {
	if extra == nil {
		return where, args
	}
	return where + " AND (" + extra.Fragment + ")", append(args, extra.Args...)
}

// Enqueue inserts a new queued row with the given opaque payload.
func (q *Queue) Enqueue(ctx context.Context, data map[string]interface{}) (int64, error) {
	if data == nil {
		data = map[string]interface{}{}
	}
	payload, err := json.Marshal(data)
	if err != nil {
		return 0, err
	}
	f, err := q.base.Borrow(ctx, "enqueue")
	if err != nil {
		return 0, err
	}
	defer f.Close()

	sqlText := "INSERT INTO " + q.TableName() + " (created, data, steps) VALUES (NOW(), %s, '[]')"
	id, err := f.Execute(ctx, sqlText, []interface{}{string(payload)}, nil)
	if err != nil {
		return 0, err
	}
	return id, nil
}

// QSize returns the number of currently-claimable rows.
func (q *Queue) QSize(ctx context.Context, extra *ExtraPredicate) (int64, error) {
	f, err := q.base.Borrow(ctx, "qsize")
	if err != nil {
		return 0, err
	}
	defer f.Close()

	basePred, baseArgs := q.claimablePredicate()
	where, args := withExtra(basePred, baseArgs, extra)
	row, err := f.Get(ctx, "SELECT COUNT(*) AS n FROM "+q.TableName()+" WHERE "+where, args, nil)
	if err != nil {
		return 0, err
	}
	n, _ := row.Get("n")
	return toInt64(n), nil
}

// StartOptions configures a claim attempt.
type StartOptions struct {
	Block         bool
	Timeout       time.Duration
	RetryInterval time.Duration
	Extra         *ExtraPredicate
}

// Start attempts to claim one row. In non-blocking mode it returns
// (nil, nil) if no row is currently claimable. In blocking mode it
// retries with jittered sleeps of RetryInterval until Timeout elapses.
func (q *Queue) Start(ctx context.Context, opts StartOptions) (*TaskHandler, error) {
	var deadline time.Time
	hasDeadline := opts.Block && opts.Timeout > 0
	if hasDeadline {
		deadline = time.Now().Add(opts.Timeout)
	}

	for {
		handler, foundWork, err := q.attemptClaimBatch(ctx, opts.Extra)
		if err != nil {
			q.stats.recordError()
			return nil, err
		}
		if handler != nil {
			q.stats.recordClaimed()
			metrics.RecordQueueClaim(q.name, "claimed")
			return handler, nil
		}
		if foundWork {
			// Selection was non-empty but every UPDATE lost the race;
			// refetch immediately rather than sleeping.
			metrics.RecordQueueClaim(q.name, "raced")
			continue
		}
		metrics.RecordQueueClaim(q.name, "empty")
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

// attemptClaimBatch selects up to claimBatchSize claimable rows and tries
// to claim each in turn; it reports whether the selection was non-empty
// so Start can distinguish "no work" from "lost every race".
func (q *Queue) attemptClaimBatch(ctx context.Context, extra *ExtraPredicate) (*TaskHandler, bool, error) {
	f, err := q.base.Borrow(ctx, "start")
	if err != nil {
		return nil, false, err
	}
	defer f.Close()

	basePred, baseArgs := q.claimablePredicate()
	where, args := withExtra(basePred, baseArgs, extra)
	result, _, err := f.Query(ctx, fmt.Sprintf("SELECT id, execution_id FROM %s WHERE %s ORDER BY created ASC LIMIT %d", q.TableName(), where, claimBatchSize), args, nil)
	if err != nil {
		return nil, false, err
	}
	q.stats.recordExamined(int64(result.Len()))
	if result.Len() == 0 {
		return nil, false, nil
	}

	executionID := newExecutionID()
	claimBasePred, claimBaseArgs := q.claimablePredicate()
	claimWhere, claimArgs := withExtra(claimBasePred, claimBaseArgs, extra)

	for _, row := range result.Rows {
		id := toInt64(row.At(0))
		priorExecutionID, _ := row.At(1).(string)
		updateSQL := fmt.Sprintf(
			"UPDATE %s SET execution_id=%%s, started=NOW(), last_contact=NOW(), update_count=update_count+1, steps='[]' WHERE id=%%s AND %s",
			q.TableName(), claimWhere)
		updateArgs := append([]interface{}{executionID, id}, claimArgs...)

		_, affected, err := f.Query(ctx, updateSQL, updateArgs, nil)
		if err != nil {
			return nil, true, err
		}
		if affected == 1 {
			if priorExecutionID != "" {
				metrics.RecordQueueReclamation(q.name)
			}
			handler, err := q.loadHandler(ctx, id, executionID)
			if err != nil {
				return nil, true, err
			}
			return handler, true, nil
		}
	}
	return nil, true, nil
}

// loadHandler re-reads the just-claimed row and builds the in-memory
// handler view.
func (q *Queue) loadHandler(ctx context.Context, id int64, executionID string) (*TaskHandler, error) {
	f, err := q.base.Borrow(ctx, "start")
	if err != nil {
		return nil, err
	}
	defer f.Close()

	row, err := f.Get(ctx, "SELECT data, steps, started, last_contact FROM "+q.TableName()+" WHERE id=%s AND execution_id=%s", []interface{}{id, executionID}, nil)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, &dberrors.TaskDoesNotExist{TaskID: id, ExecutionID: executionID}
	}

	data, err := decodeData(row.At(0))
	if err != nil {
		return nil, err
	}
	steps, err := decodeSteps(row.At(1))
	if err != nil {
		return nil, err
	}

	return &TaskHandler{
		queue:       q,
		taskID:      id,
		executionID: executionID,
		data:        data,
		steps:       steps,
	}, nil
}

// BulkFinish performs a single UPDATE over every currently-claimable row,
// setting the sentinel execution id, as an administrative sweep. It
// performs no retries and returns the number of rows affected.
func (q *Queue) BulkFinish(ctx context.Context, result string, extra *ExtraPredicate) (int64, error) {
	f, err := q.base.Borrow(ctx, "bulk_finish")
	if err != nil {
		return 0, err
	}
	defer f.Close()

	basePred, baseArgs := q.claimablePredicate()
	where, args := withExtra(basePred, baseArgs, extra)
	sqlText := fmt.Sprintf(
		"UPDATE %s SET execution_id=%%s, started=NOW(), finished=NOW(), last_contact=NOW(), steps='[]', data=JSON_SET(data, '$.result', %%s) WHERE %s",
		q.TableName(), where)
	fullArgs := append([]interface{}{bulkFinishExecutionID, result}, args...)

	_, affected, err := f.Query(ctx, sqlText, fullArgs, nil)
	if err != nil {
		return 0, err
	}
	metrics.RecordQueueBulkFinish(q.name, affected)
	return affected, nil
}

func newExecutionID() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand failing is catastrophic; fall back to a
		// time-derived id rather than panic mid-claim.
		return strings.ToLower(hex.EncodeToString([]byte(fmt.Sprintf("%032d", time.Now().UnixNano()))))[:32]
	}
	return hex.EncodeToString(buf)
}

func sleepJittered(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	n, _ := rand.Int(rand.Reader, big.NewInt(1000))
	jitter := time.Duration(float64(interval) * (0.1 + float64(n.Int64())/1000.0))
	timer := time.NewTimer(jitter)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func decodeData(v interface{}) (map[string]interface{}, error) {
	s, _ := v.(string)
	if s == "" {
		return map[string]interface{}{}, nil
	}
	var out map[string]interface{}
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func decodeSteps(v interface{}) ([]Step, error) {
	s, _ := v.(string)
	if s == "" {
		return nil, nil
	}
	var out []Step
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func toInt64(v interface{}) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case string:
		var out int64
		fmt.Sscanf(n, "%d", &out)
		return out
	default:
		return 0
	}
}
