package tasks

import "time"

// DateLayout is the wire and storage format for due dates.
const DateLayout = "2006-01-02"

type Priority string

const (
	PriorityLow    Priority = "Low"
	PriorityNormal Priority = "Normal"
	PriorityHigh   Priority = "High"
)

// Priorities lists the accepted values in display order.
var Priorities = []Priority{PriorityLow, PriorityNormal, PriorityHigh}

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh:
		return true
	}
	return false
}

type Task struct {
	ID          int64
	Title       string
	Description string
	DueDate     *time.Time
	Priority    Priority
	Completed   bool
}

// DueDateString formats the due date for display, or "" when unset.
func (t Task) DueDateString() string {
	if t.DueDate == nil {
		return ""
	}
	return t.DueDate.Format(DateLayout)
}

// NewTask carries the fields accepted on creation.
type NewTask struct {
	Title       string
	Description string
	DueDate     *time.Time
	Priority    Priority
}
