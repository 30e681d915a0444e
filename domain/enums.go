package domain

import "fmt"

// Status is the workflow stage of a task.
type Status string

const (
	StatusTodo       Status = "To Do"
	StatusInProgress Status = "In Progress"
	StatusCompleted  Status = "Completed"
)

// Statuses lists every status in workflow order.
var Statuses = []Status{StatusTodo, StatusInProgress, StatusCompleted}

// statusTokens maps each status to the token persisted by the stores.
var statusTokens = map[Status]string{
	StatusTodo:       "To_Do",
	StatusInProgress: "In_Progress",
	StatusCompleted:  "Completed",
}

var statusByToken map[string]Status

func init() {
	if err := buildStatusTable(); err != nil {
		panic(err)
	}
}

func buildStatusTable() error {
	if len(statusTokens) != len(Statuses) {
		return fmt.Errorf("status table has %d entries, want %d", len(statusTokens), len(Statuses))
	}
	byToken := make(map[string]Status, len(statusTokens))
	for _, s := range Statuses {
		tok, ok := statusTokens[s]
		if !ok || tok == "" {
			return fmt.Errorf("status %q has no storage token", s)
		}
		if prev, dup := byToken[tok]; dup {
			return fmt.Errorf("storage token %q used by %q and %q", tok, prev, s)
		}
		byToken[tok] = s
	}
	statusByToken = byToken
	return nil
}

// Valid reports whether s is one of the enumerated statuses.
func (s Status) Valid() bool {
	_, ok := statusTokens[s]
	return ok
}

// StorageToken returns the persisted form of s.
func (s Status) StorageToken() (string, error) {
	tok, ok := statusTokens[s]
	if !ok {
		return "", &ValidationError{Field: "status", Reason: fmt.Sprintf("unknown status %q", string(s))}
	}
	return tok, nil
}

// StatusFromStorage decodes a persisted token.
func StatusFromStorage(token string) (Status, error) {
	s, ok := statusByToken[token]
	if !ok {
		return "", fmt.Errorf("unknown stored status token %q", token)
	}
	return s, nil
}

// ParseStatus accepts the display form of a status.
func ParseStatus(raw string) (Status, error) {
	s := Status(raw)
	if !s.Valid() {
		return "", &ValidationError{Field: "status", Reason: fmt.Sprintf("unknown status %q", raw)}
	}
	return s, nil
}

// Priority is the urgency of a task.
type Priority string

const (
	PriorityLow    Priority = "Low"
	PriorityMedium Priority = "Medium"
	PriorityHigh   Priority = "High"
)

// Priorities lists every priority from lowest to highest.
var Priorities = []Priority{PriorityLow, PriorityMedium, PriorityHigh}

// Valid reports whether p is one of the enumerated priorities.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

// ParsePriority accepts the display form of a priority.
func ParsePriority(raw string) (Priority, error) {
	p := Priority(raw)
	if !p.Valid() {
		return "", &ValidationError{Field: "priority", Reason: fmt.Sprintf("unknown priority %q", raw)}
	}
	return p, nil
}

// Layout is the preferred board presentation.
type Layout string

const (
	LayoutKanban Layout = "kanban"
	LayoutTable  Layout = "table"
)

// ParseLayout returns the layout named by raw, falling back to kanban.
func ParseLayout(raw string) Layout {
	if l := Layout(raw); l == LayoutTable {
		return l
	}
	return LayoutKanban
}

// Valid reports whether l is a known layout.
func (l Layout) Valid() bool {
	return l == LayoutKanban || l == LayoutTable
}
