package domain

import (
	"strings"
	"time"
)

// DueDateLayout is the canonical wire and storage form of a due date.
const DueDateLayout = "2006-01-02"

// Task represents a single board item.
type Task struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	DueDate     string   `json:"dueDate,omitempty"`
	Priority    Priority `json:"priority"`
	Status      Status   `json:"status"`
}

// TaskFields carries the values supplied when creating a task.
type TaskFields struct {
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	DueDate     string   `json:"dueDate,omitempty"`
	Priority    Priority `json:"priority"`
	Status      Status   `json:"status"`
}

// TaskPatch carries a partial update. Nil fields are left untouched.
type TaskPatch struct {
	Title       *string   `json:"title,omitempty"`
	Description *string   `json:"description,omitempty"`
	DueDate     *string   `json:"dueDate,omitempty"`
	Priority    *Priority `json:"priority,omitempty"`
	Status      *Status   `json:"status,omitempty"`
}

// NewTask validates fields and builds a task with the given id.
func NewTask(id string, f TaskFields) (Task, error) {
	f, err := f.Normalize()
	if err != nil {
		return Task{}, err
	}
	return Task{
		ID:          id,
		Title:       f.Title,
		Description: f.Description,
		DueDate:     f.DueDate,
		Priority:    f.Priority,
		Status:      f.Status,
	}, nil
}

// Normalize trims the title, canonicalises the due date and checks enums.
func (f TaskFields) Normalize() (TaskFields, error) {
	f.Title = strings.TrimSpace(f.Title)
	if f.Title == "" {
		return f, &ValidationError{Field: "title", Reason: "Title is required"}
	}
	due, err := NormalizeDueDate(f.DueDate)
	if err != nil {
		return f, err
	}
	f.DueDate = due
	if !f.Priority.Valid() {
		return f, &ValidationError{Field: "priority", Reason: "unknown priority " + quote(string(f.Priority))}
	}
	if !f.Status.Valid() {
		return f, &ValidationError{Field: "status", Reason: "unknown status " + quote(string(f.Status))}
	}
	return f, nil
}

// Empty reports whether the patch changes nothing.
func (p TaskPatch) Empty() bool {
	return p.Title == nil && p.Description == nil && p.DueDate == nil && p.Priority == nil && p.Status == nil
}

// Apply returns t with the supplied patch fields applied. The result is
// validated, so a patch can never blank the title or smuggle in a free-form
// status or priority.
func (p TaskPatch) Apply(t Task) (Task, error) {
	f := TaskFields{
		Title:       t.Title,
		Description: t.Description,
		DueDate:     t.DueDate,
		Priority:    t.Priority,
		Status:      t.Status,
	}
	if p.Title != nil {
		f.Title = *p.Title
	}
	if p.Description != nil {
		f.Description = *p.Description
	}
	if p.DueDate != nil {
		f.DueDate = *p.DueDate
	}
	if p.Priority != nil {
		f.Priority = *p.Priority
	}
	if p.Status != nil {
		f.Status = *p.Status
	}
	return NewTask(t.ID, f)
}

// NormalizeDueDate accepts an empty value, a calendar date or an RFC3339
// timestamp and returns the calendar date form.
func NormalizeDueDate(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", nil
	}
	if d, err := time.Parse(DueDateLayout, raw); err == nil {
		return d.Format(DueDateLayout), nil
	}
	if ts, err := time.Parse(time.RFC3339, raw); err == nil {
		return ts.UTC().Format(DueDateLayout), nil
	}
	return "", &ValidationError{Field: "dueDate", Reason: "expected an ISO-8601 date, got " + quote(raw)}
}

// Column is one kanban column or table section.
type Column struct {
	Status Status `json:"status"`
	Tasks  []Task `json:"tasks"`
}

// Columns groups tasks by status, one column per status in workflow order.
// Tasks keep their relative order inside a column.
func Columns(tasks []Task) []Column {
	cols := make([]Column, len(Statuses))
	index := make(map[Status]int, len(Statuses))
	for i, s := range Statuses {
		cols[i] = Column{Status: s, Tasks: []Task{}}
		index[s] = i
	}
	for _, t := range tasks {
		if i, ok := index[t.Status]; ok {
			cols[i].Tasks = append(cols[i].Tasks, t)
		}
	}
	return cols
}

func quote(s string) string {
	return "\"" + s + "\""
}
