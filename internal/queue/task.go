package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/clusterkit/clusterkit/internal/dberrors"
	"github.com/clusterkit/clusterkit/internal/metrics"
)

// Step is a named, timestamped span within a task.
type Step struct {
	Name     string     `json:"name"`
	Start    time.Time  `json:"start"`
	Stop     *time.Time `json:"stop,omitempty"`
	Duration *float64   `json:"duration,omitempty"`
}

// TaskHandler is the in-memory view of a claimed task: the cached data,
// steps, and claim identity. It is destroyed (in the sense of refusing
// further mutation) once Finish succeeds or its claim is known to have
// expired.
type TaskHandler struct {
	queue       *Queue
	taskID      int64
	executionID string
	data        map[string]interface{}
	steps       []Step
	finished    bool
}

// TaskID returns the claimed row's id.
func (h *TaskHandler) TaskID() int64 { return h.taskID }

// ExecutionID returns this claim's opaque token.
func (h *TaskHandler) ExecutionID() string { return h.executionID }

// Data returns the cached task payload as claimed.
func (h *TaskHandler) Data() map[string]interface{} { return h.data }

// guardedWhere is the predicate every handler mutation is checked
// against: the claim must still match and still be live.
func (h *TaskHandler) guardedWhere() (string, []interface{}) {
	return "id=%s AND execution_id=%s AND last_contact > NOW() - INTERVAL %s SECOND",
		[]interface{}{h.taskID, h.executionID, h.queue.ttlSeconds()}
}

func (h *TaskHandler) guardedUpdate(ctx context.Context, setClause string, setArgs []interface{}) (int64, error) {
	f, err := h.queue.base.Borrow(ctx, "task_update")
	if err != nil {
		return 0, err
	}
	defer f.Close()

	where, whereArgs := h.guardedWhere()
	sqlText := fmt.Sprintf("UPDATE %s SET %s WHERE %s", h.queue.TableName(), setClause, where)
	_, affected, err := f.Query(ctx, sqlText, append(append([]interface{}{}, setArgs...), whereArgs...), nil)
	return affected, err
}

// Valid re-reads last_contact > now - ttl for this handler's claim; it
// reports false (with no error) once the handler locally knows it's
// finished.
func (h *TaskHandler) Valid(ctx context.Context) (bool, error) {
	if h.finished {
		return false, nil
	}
	f, err := h.queue.base.Borrow(ctx, "valid")
	if err != nil {
		return false, err
	}
	defer f.Close()

	where, args := h.guardedWhere()
	row, err := f.Get(ctx, "SELECT id FROM "+h.queue.TableName()+" WHERE "+where, args, nil)
	if err != nil {
		return false, err
	}
	return row != nil, nil
}

// Ping is the heartbeat: advances last_contact and update_count, guarded
// by the claim still matching and being live.
func (h *TaskHandler) Ping(ctx context.Context) error {
	if h.finished {
		return &dberrors.AlreadyFinished{TaskID: h.taskID}
	}
	affected, err := h.guardedUpdate(ctx, "last_contact=NOW(), update_count=update_count+1", nil)
	if err != nil {
		return err
	}
	if affected != 1 {
		return &dberrors.TaskDoesNotExist{TaskID: h.taskID, ExecutionID: h.executionID}
	}
	metrics.RecordQueueHeartbeat(h.queue.name)
	return nil
}

func (h *TaskHandler) findStep(name string) (*Step, int) {
	for i := range h.steps {
		if h.steps[i].Name == name {
			return &h.steps[i], i
		}
	}
	return nil, -1
}

// StartStep appends {name, start: now} to the step list.
func (h *TaskHandler) StartStep(ctx context.Context, name string) error {
	if h.finished {
		return &dberrors.AlreadyFinished{TaskID: h.taskID}
	}
	if existing, _ := h.findStep(name); existing != nil {
		if existing.Stop == nil {
			return &dberrors.StepAlreadyStarted{Name: name}
		}
		return &dberrors.StepAlreadyFinished{Name: name}
	}

	newSteps := append(append([]Step(nil), h.steps...), Step{Name: name, Start: time.Now().UTC()})
	stepsJSON, err := json.Marshal(newSteps)
	if err != nil {
		return err
	}

	affected, err := h.guardedUpdate(ctx, "steps=%s, last_contact=NOW(), update_count=update_count+1", []interface{}{string(stepsJSON)})
	if err != nil {
		return err
	}
	if affected != 1 {
		return &dberrors.TaskDoesNotExist{TaskID: h.taskID, ExecutionID: h.executionID}
	}
	h.steps = newSteps
	return nil
}

// StopStep sets stop=now and duration=stop-start on the matching
// unfinished step.
func (h *TaskHandler) StopStep(ctx context.Context, name string) error {
	if h.finished {
		return &dberrors.AlreadyFinished{TaskID: h.taskID}
	}
	existing, idx := h.findStep(name)
	if existing == nil {
		return &dberrors.StepNotStarted{Name: name}
	}
	if existing.Stop != nil {
		return &dberrors.StepAlreadyFinished{Name: name}
	}

	newSteps := append([]Step(nil), h.steps...)
	stop := time.Now().UTC()
	duration := stop.Sub(newSteps[idx].Start).Seconds()
	newSteps[idx].Stop = &stop
	newSteps[idx].Duration = &duration

	stepsJSON, err := json.Marshal(newSteps)
	if err != nil {
		return err
	}

	affected, err := h.guardedUpdate(ctx, "steps=%s, last_contact=NOW(), update_count=update_count+1", []interface{}{string(stepsJSON)})
	if err != nil {
		return err
	}
	if affected != 1 {
		return &dberrors.TaskDoesNotExist{TaskID: h.taskID, ExecutionID: h.executionID}
	}
	h.steps = newSteps
	return nil
}

// Step is a scoped helper that starts name on entry and stops it on
// normal exit; if fn returns an error, the step is left open so the task
// remains reclaimable after TTL for inspection or retry.
func (h *TaskHandler) Step(ctx context.Context, name string, fn func(context.Context) error) error {
	if err := h.StartStep(ctx, name); err != nil {
		return err
	}
	if err := fn(ctx); err != nil {
		return err
	}
	return h.StopStep(ctx, name)
}

func (h *TaskHandler) openStepName() string {
	for _, s := range h.steps {
		if s.Stop == nil {
			return s.Name
		}
	}
	return ""
}

// Finish marks the task terminal with the given result, rejecting if any
// step is still running or the task is already finished.
func (h *TaskHandler) Finish(ctx context.Context, result string) error {
	if h.finished {
		return &dberrors.AlreadyFinished{TaskID: h.taskID}
	}
	if open := h.openStepName(); open != "" {
		return &dberrors.StepRunning{Name: open}
	}

	h.data["result"] = result
	dataJSON, err := json.Marshal(h.data)
	if err != nil {
		return err
	}

	affected, err := h.guardedUpdate(ctx, "finished=NOW(), data=%s, last_contact=NOW(), update_count=update_count+1", []interface{}{string(dataJSON)})
	if err != nil {
		return err
	}
	if affected != 1 {
		return &dberrors.TaskDoesNotExist{TaskID: h.taskID, ExecutionID: h.executionID}
	}
	h.finished = true
	metrics.RecordQueueFinish(h.queue.name)
	return nil
}

// Requeue clears the claim fields, returning the row to the claimable
// pool with no result and empty steps.
func (h *TaskHandler) Requeue(ctx context.Context) error {
	if h.finished {
		return &dberrors.AlreadyFinished{TaskID: h.taskID}
	}
	if open := h.openStepName(); open != "" {
		return &dberrors.StepRunning{Name: open}
	}

	delete(h.data, "result")
	dataJSON, err := json.Marshal(h.data)
	if err != nil {
		return err
	}

	f, err := h.queue.base.Borrow(ctx, "requeue")
	if err != nil {
		return err
	}
	defer f.Close()

	where, whereArgs := h.guardedWhere()
	sqlText := fmt.Sprintf(
		"UPDATE %s SET execution_id=NULL, started=NULL, last_contact=NULL, finished=NULL, steps='[]', data=%%s WHERE %s",
		h.queue.TableName(), where)
	_, affected, err := f.Query(ctx, sqlText, append([]interface{}{string(dataJSON)}, whereArgs...), nil)
	if err != nil {
		return err
	}
	if affected != 1 {
		return &dberrors.TaskDoesNotExist{TaskID: h.taskID, ExecutionID: h.executionID}
	}
	h.steps = nil
	return nil
}
