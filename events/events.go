package events

import (
	"context"
	"errors"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"

	"github.com/daveduya011/wph-task-manager/domain"
)

// Event types published after a successful task mutation.
const (
	TaskCreated = "task-created"
	TaskUpdated = "task-updated"
	TaskDeleted = "task-deleted"
)

var errPublisherClosed = errors.New("event publisher closed")

// Event describes a committed change to a task.
type Event struct {
	ID     string       `json:"id"`
	Type   string       `json:"type"`
	TaskID string       `json:"taskId"`
	Task   *domain.Task `json:"task,omitempty"`
	Time   int64        `json:"time"`
}

// New builds an event for taskID. task may be nil for deletions.
func New(typ, taskID string, task *domain.Task) Event {
	return Event{
		ID:     uuid.NewString(),
		Type:   typ,
		TaskID: taskID,
		Task:   task,
		Time:   time.Now().UnixMilli(),
	}
}

// Encode returns the JSON form used on every transport.
func (e Event) Encode() ([]byte, error) {
	return sonic.Marshal(e)
}

// Decode parses an event previously produced by Encode.
func Decode(data []byte) (Event, error) {
	var e Event
	err := sonic.Unmarshal(data, &e)
	return e, err
}

// Publisher delivers task events to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Multi fans an event out to every publisher and joins their errors.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, ev Event) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Discard drops every event.
type Discard struct{}

func (Discard) Publish(context.Context, Event) error { return nil }
