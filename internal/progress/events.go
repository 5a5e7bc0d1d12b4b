// Package progress streams audit workflow state to reviewers over SSE.
package progress

import "time"

// EventType identifies a stream event.
type EventType string

const (
	EventRunStarted    EventType = "RUN_STARTED"
	EventRunFinished   EventType = "RUN_FINISHED"
	EventRunError      EventType = "RUN_ERROR"
	EventStepStarted   EventType = "STEP_STARTED"
	EventStepFinished  EventType = "STEP_FINISHED"
	EventStateSnapshot EventType = "STATE_SNAPSHOT"
	EventStateDelta    EventType = "STATE_DELTA"
)

// Event is a single SSE event emitted to the client.
type Event struct {
	Type       EventType `json:"type"`
	Timestamp  time.Time `json:"timestamp"`
	WorkflowID string    `json:"workflow_id"`
	Data       any       `json:"data,omitempty"`
}

// StateSnapshotData carries the full audit state.
type StateSnapshotData struct {
	Phase string `json:"phase"`
	State any    `json:"state"`
}

// StateDeltaData carries the top-level fields that changed since the last event.
type StateDeltaData struct {
	Phase   string  `json:"phase"`
	Patches []Patch `json:"patches"`
}

// Patch is an RFC 6902-style replace or remove of one state field.
type Patch struct {
	Op    string `json:"op"`
	Path  string `json:"path"`
	Value any    `json:"value,omitempty"`
}

// StepData names the phase a transition entered or left.
type StepData struct {
	Phase string `json:"phase"`
}

// FinishedData carries the workflow's termination reason.
type FinishedData struct {
	Reason string `json:"reason"`
}

// ErrorData carries error info for RUN_ERROR events.
type ErrorData struct {
	Message string `json:"message"`
}
