package board

import (
	"context"
	"errors"
	"sync"

	"github.com/daveduya011/wph-task-manager/client"
	"github.com/daveduya011/wph-task-manager/domain"
)

var (
	// ErrDragInProgress is returned by Start while another drag is active.
	ErrDragInProgress = errors.New("drag already in progress")
	// ErrUnknownTask is returned by Start for a task not on the board.
	ErrUnknownTask = errors.New("task not on board")
)

// DragState is the state of a drag gesture.
type DragState int

const (
	Idle DragState = iota
	Dragging
)

// DragDrop tracks one kanban drag gesture at a time. Columns are
// identified by their status.
type DragDrop struct {
	ctrl *Controller

	mu          sync.Mutex
	state       DragState
	taskID      string
	highlight   domain.Status
	highlighted bool
}

// NewDragDrop creates an idle reconciler feeding ctrl.
func NewDragDrop(ctrl *Controller) *DragDrop {
	return &DragDrop{ctrl: ctrl}
}

// State returns the current gesture state.
func (d *DragDrop) State() DragState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Start begins dragging taskID.
func (d *DragDrop) Start(taskID string) error {
	if _, ok := d.ctrl.Task(taskID); !ok {
		return ErrUnknownTask
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state == Dragging {
		return ErrDragInProgress
	}
	d.state = Dragging
	d.taskID = taskID
	d.highlighted = false
	return nil
}

// Dragging returns the id of the dragged task. The board hides that card
// while the gesture lasts.
func (d *DragDrop) Dragging() (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.taskID, d.state == Dragging
}

// CanDrop reports whether column would accept the dragged task: it must
// be a real column other than the one the task is in.
func (d *DragDrop) CanDrop(column domain.Status) bool {
	d.mu.Lock()
	id, dragging := d.taskID, d.state == Dragging
	d.mu.Unlock()
	return dragging && d.accepts(id, column)
}

func (d *DragDrop) accepts(id string, column domain.Status) bool {
	if !column.Valid() {
		return false
	}
	t, ok := d.ctrl.Task(id)
	return ok && t.Status != column
}

// Enter records the pointer over column. Only columns that accept the
// drop are highlighted.
func (d *DragDrop) Enter(column domain.Status) {
	if !d.CanDrop(column) {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state == Dragging {
		d.highlight = column
		d.highlighted = true
	}
}

// Leave clears the highlight if it belongs to column.
func (d *DragDrop) Leave(column domain.Status) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.highlighted && d.highlight == column {
		d.highlighted = false
	}
}

// Highlighted returns the highlighted column, if any.
func (d *DragDrop) Highlighted() (domain.Status, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.highlight, d.highlighted
}

// Cancel abandons the gesture.
func (d *DragDrop) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.reset()
}

// Drop ends the gesture over targets, the columns under the pointer from
// innermost outwards. The first real column wins. The gesture is reset
// before any status change is sent; the bool reports whether one was.
func (d *DragDrop) Drop(ctx context.Context, targets ...domain.Status) (client.Result, bool) {
	d.mu.Lock()
	id, dragging := d.taskID, d.state == Dragging
	d.reset()
	d.mu.Unlock()
	if !dragging {
		return client.OK, false
	}

	var (
		column domain.Status
		found  bool
	)
	for _, t := range targets {
		if t.Valid() {
			column, found = t, true
			break
		}
	}
	if !found || !d.accepts(id, column) {
		return client.OK, false
	}
	return d.ctrl.ChangeStatus(ctx, id, column), true
}

func (d *DragDrop) reset() {
	d.state = Idle
	d.taskID = ""
	d.highlight = ""
	d.highlighted = false
}
