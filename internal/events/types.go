// Package events provides in-process event distribution.
package events

import (
	"time"
)

// EventType represents different event types
type EventType string

const (
	// JobRunFinished is emitted after every scheduled or manual job run
	JobRunFinished EventType = "JOB_RUN_FINISHED"
	// ErrorOccurred is emitted for failures outside a job run
	ErrorOccurred EventType = "ERROR_OCCURRED"
)

// EventData is the interface that all event data types must implement
type EventData interface {
	EventType() EventType
}

// Event is one published event
type Event struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Module    string    `json:"module"`
	Data      EventData `json:"data"`
}

// JobRunFinishedData summarizes one finished job run
type JobRunFinishedData struct {
	RunID       string    `json:"run_id"`
	Job         string    `json:"job"`
	Trigger     string    `json:"trigger"` // "schedule" or "manual"
	StartedAt   time.Time `json:"started_at"`
	DurationMs  int64     `json:"duration_ms"`
	Scanned     int       `json:"scanned"`
	Updated     int       `json:"updated"`
	Skipped     int       `json:"skipped"`
	SideEffects int       `json:"side_effects"`
	Failed      int       `json:"failed"`
	Error       string    `json:"error,omitempty"`
}

// EventType returns the event type for JobRunFinishedData
func (d *JobRunFinishedData) EventType() EventType {
	return JobRunFinished
}

// ErrorEventData contains data for ErrorOccurred events
type ErrorEventData struct {
	Error   string            `json:"error"`
	Context map[string]string `json:"context,omitempty"`
}

// EventType returns the event type for ErrorEventData
func (d *ErrorEventData) EventType() EventType {
	return ErrorOccurred
}
