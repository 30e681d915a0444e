// Package board owns the client-side task list. It applies mutations
// optimistically, confirms them against the task API and rolls them back
// when the API rejects them.
package board

import (
	"context"
	"errors"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/daveduya011/wph-task-manager/client"
	"github.com/daveduya011/wph-task-manager/domain"
)

// Remote is the task API as seen by the controller. *client.Client
// satisfies it.
type Remote interface {
	ListTasks(ctx context.Context) ([]domain.Task, error)
	CreateTask(ctx context.Context, f domain.TaskFields) (domain.Task, error)
	UpdateTask(ctx context.Context, id string, p domain.TaskPatch) (domain.Task, error)
	DeleteTask(ctx context.Context, id string) error
}

// Op names a mutation kind.
type Op string

const (
	OpCreate Op = "create"
	OpUpdate Op = "update"
	OpStatus Op = "status"
	OpDelete Op = "delete"
)

// Phase is the lifecycle stage of a mutation.
type Phase int

const (
	Pending Phase = iota
	Committed
	Reverted
)

func (p Phase) String() string {
	switch p {
	case Pending:
		return "pending"
	case Committed:
		return "committed"
	case Reverted:
		return "reverted"
	default:
		return "unknown"
	}
}

var messages = map[Op][3]string{
	OpCreate: {"Creating...", "Task Created", "Create failed"},
	OpUpdate: {"Updating...", "Task Updated", "Update Failed"},
	OpStatus: {"Updating...", "Task Updated", "Update Failed"},
	OpDelete: {"Deleting...", "Task Deleted", "Delete failed"},
}

// Notification reports the progress of one mutation.
type Notification struct {
	Op      Op
	Phase   Phase
	Message string
	// Detail carries the failure reason for Reverted notifications.
	Detail string
	TaskID string
}

// Notifier receives notifications. Notify is never called with the
// controller lock held.
type Notifier interface {
	Notify(Notification)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Notification)

func (f NotifierFunc) Notify(n Notification) { f(n) }

// mutation is a single in-flight change. after is the optimistic record,
// if any; the snapshot it reverts to lives in the task's track.
type mutation struct {
	op     Op
	taskID string
	seq    uint64
	after  *domain.Task
	phase  Phase
}

func (m *mutation) notification(err error) Notification {
	n := Notification{Op: m.op, Phase: m.phase, TaskID: m.taskID, Message: messages[m.op][m.phase]}
	if err != nil {
		n.Detail = client.ResultOf(err).Error
	}
	return n
}

// track sequences the mutations of one task. seq is the last issued
// sequence number; confirmed is the newest record the server returned and
// confirmedSeq the sequence it answered.
type track struct {
	seq            uint64
	latestResolved uint64
	confirmed      domain.Task
	confirmedSeq   uint64
	pending        int
}

// Controller owns the displayed task list.
type Controller struct {
	remote Remote
	notify Notifier
	logger *log.Logger

	mu     sync.Mutex
	tasks  []domain.Task
	tracks map[string]*track
	closed bool
}

// NewController creates a controller. notifier and logger may be nil.
func NewController(remote Remote, notifier Notifier, logger *log.Logger) *Controller {
	if notifier == nil {
		notifier = NotifierFunc(func(Notification) {})
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Controller{remote: remote, notify: notifier, logger: logger, tracks: map[string]*track{}}
}

// Close detaches the controller. Remote calls still in flight complete
// but their outcome no longer touches state or emits notifications.
func (c *Controller) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

// Load replaces the displayed list with the server's. Tasks with
// mutations in flight keep their optimistic record.
func (c *Controller) Load(ctx context.Context) client.Result {
	tasks, err := c.remote.ListTasks(ctx)
	if err != nil {
		c.logger.WithError(err).Warn("board: load tasks failed")
		return client.ResultOf(err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return client.OK
	}
	next := make([]domain.Task, 0, len(tasks))
	for _, t := range tasks {
		if tr, ok := c.tracks[t.ID]; ok {
			tr.confirmed = t
			if cur, ok := c.find(t.ID); ok && tr.latestResolved != tr.seq {
				t = c.tasks[cur]
			}
		}
		next = append(next, t)
	}
	c.tasks = next
	return client.OK
}

// Tasks returns a copy of the displayed list.
func (c *Controller) Tasks() []domain.Task {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.Task, len(c.tasks))
	copy(out, c.tasks)
	return out
}

// Task returns the displayed record for id.
func (c *Controller) Task(id string) (domain.Task, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	i, ok := c.find(id)
	if !ok {
		return domain.Task{}, false
	}
	return c.tasks[i], true
}

// Columns groups the displayed list for the kanban and table views.
func (c *Controller) Columns() []domain.Column {
	return domain.Columns(c.Tasks())
}

// Create asks the server for a new task and displays the record it returns.
func (c *Controller) Create(ctx context.Context, f domain.TaskFields) client.Result {
	m := &mutation{op: OpCreate}
	c.emit(m.notification(nil))
	created, err := c.remote.CreateTask(ctx, f)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return client.ResultOf(err)
	}
	if err != nil {
		m.phase = Reverted
	} else {
		m.phase = Committed
		m.taskID = created.ID
		// A Load that finished first may already list the new task.
		if i, ok := c.find(created.ID); ok {
			c.tasks[i] = created
		} else {
			c.tasks = append(c.tasks, created)
		}
	}
	c.mu.Unlock()
	return c.finish(m, err)
}

// Update sends a partial update. The displayed record is replaced by the
// server's answer, never guessed locally.
func (c *Controller) Update(ctx context.Context, id string, p domain.TaskPatch) client.Result {
	return c.mutate(ctx, OpUpdate, id, p, nil)
}

// ChangeStatus moves a task to status. The new status is displayed
// immediately and reverted if the server rejects it. Moving a task to the
// status it already has is a successful no-op.
func (c *Controller) ChangeStatus(ctx context.Context, id string, status domain.Status) client.Result {
	if _, err := domain.ParseStatus(string(status)); err != nil {
		return client.ResultOf(err)
	}
	return c.mutate(ctx, OpStatus, id, domain.TaskPatch{Status: &status}, func(t domain.Task) (domain.Task, bool) {
		if t.Status == status {
			return t, false
		}
		t.Status = status
		return t, true
	})
}

// Delete removes a task once the server confirms.
func (c *Controller) Delete(ctx context.Context, id string) client.Result {
	c.mu.Lock()
	if _, ok := c.find(id); !ok {
		c.mu.Unlock()
		return client.ResultOf(domain.ErrNotFound)
	}
	c.mu.Unlock()

	m := &mutation{op: OpDelete, taskID: id}
	c.emit(m.notification(nil))
	err := c.remote.DeleteTask(ctx, id)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return client.ResultOf(err)
	}
	if err == nil || errors.Is(err, domain.ErrNotFound) {
		c.remove(id)
	}
	if err != nil {
		m.phase = Reverted
	} else {
		m.phase = Committed
	}
	c.mu.Unlock()
	return c.finish(m, err)
}

// mutate runs an update against id. optimistic, when set, computes the
// record to display while the call is in flight; returning false skips
// the call entirely.
func (c *Controller) mutate(ctx context.Context, op Op, id string, p domain.TaskPatch, optimistic func(domain.Task) (domain.Task, bool)) client.Result {
	c.mu.Lock()
	i, ok := c.find(id)
	if !ok {
		c.mu.Unlock()
		return client.ResultOf(domain.ErrNotFound)
	}
	current := c.tasks[i]
	m := &mutation{op: op, taskID: id}
	if optimistic != nil {
		next, changed := optimistic(current)
		if !changed {
			c.mu.Unlock()
			return client.OK
		}
		m.after = &next
	}
	tr, ok := c.tracks[id]
	if !ok {
		tr = &track{confirmed: current}
		c.tracks[id] = tr
	}
	tr.seq++
	tr.pending++
	m.seq = tr.seq
	if m.after != nil {
		c.tasks[i] = *m.after
	}
	c.mu.Unlock()

	c.emit(m.notification(nil))
	updated, err := c.remote.UpdateTask(ctx, id, p)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		c.logger.WithField("task", id).Debug("board: discarding result after close")
		return client.ResultOf(err)
	}
	c.resolve(tr, m, updated, err)
	c.mu.Unlock()
	return c.finish(m, err)
}

// resolve applies the outcome of m. Answers to superseded requests only
// advance the confirmed record; the display follows the newest issued
// request until it resolves and the newest confirmed record afterwards.
func (c *Controller) resolve(tr *track, m *mutation, updated domain.Task, err error) {
	tr.pending--
	defer func() {
		if tr.pending == 0 {
			delete(c.tracks, m.taskID)
		}
	}()

	if err != nil {
		m.phase = Reverted
		if errors.Is(err, domain.ErrNotFound) {
			c.remove(m.taskID)
			return
		}
	} else {
		m.phase = Committed
		if m.seq > tr.confirmedSeq {
			tr.confirmed = updated
			tr.confirmedSeq = m.seq
		}
	}
	if m.seq == tr.seq {
		tr.latestResolved = m.seq
	}
	if tr.latestResolved != tr.seq {
		return
	}
	if i, ok := c.find(m.taskID); ok {
		c.tasks[i] = tr.confirmed
	}
}

func (c *Controller) finish(m *mutation, err error) client.Result {
	c.emit(m.notification(err))
	if err != nil {
		c.logger.WithFields(log.Fields{
			"op":   string(m.op),
			"task": m.taskID,
		}).WithError(err).Warn("board: mutation reverted")
	}
	return client.ResultOf(err)
}

func (c *Controller) emit(n Notification) {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if !closed {
		c.notify.Notify(n)
	}
}

func (c *Controller) find(id string) (int, bool) {
	for i := range c.tasks {
		if c.tasks[i].ID == id {
			return i, true
		}
	}
	return 0, false
}

func (c *Controller) remove(id string) {
	if i, ok := c.find(id); ok {
		c.tasks = append(c.tasks[:i], c.tasks[i+1:]...)
	}
	delete(c.tracks, id)
}
