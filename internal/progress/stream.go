package progress

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/syncshop/catalog-audit/internal/temporal/workflows"
)

// StateReader reads audit workflow state. Implemented by querier.TemporalQuerier.
type StateReader interface {
	GetWorkflowState(ctx context.Context, workflowID string) (*workflows.WorkflowResult, error)
}

// StreamConfig controls SSE stream behavior.
type StreamConfig struct {
	PollInterval time.Duration
	MaxDuration  time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() StreamConfig {
	return StreamConfig{
		PollInterval: 2 * time.Second,
		MaxDuration:  30 * time.Minute,
	}
}

// stream writes events for one workflow.
type stream struct {
	w     http.ResponseWriter
	rc    *http.ResponseController
	wfID  string
	clock func() time.Time
}

func (s *stream) emit(t EventType, data any) {
	payload, err := json.Marshal(Event{Type: t, Timestamp: s.clock().UTC(), WorkflowID: s.wfID, Data: data})
	if err != nil {
		return
	}
	fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", t, payload)
	_ = s.rc.Flush()
}

// StreamHandler serves SSE events for an audit workflow: a snapshot first,
// then phase transitions and field deltas until the workflow finishes.
// The workflow id is read from the {id} path value.
func StreamHandler(q StateReader, cfg StreamConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		wfID := r.PathValue("id")
		if wfID == "" {
			http.Error(w, "workflow id required", http.StatusBadRequest)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")

		ctx, cancel := context.WithTimeout(r.Context(), cfg.MaxDuration)
		defer cancel()

		s := &stream{w: w, rc: http.NewResponseController(w), wfID: wfID, clock: time.Now}
		s.emit(EventRunStarted, nil)

		result, err := q.GetWorkflowState(ctx, wfID)
		if err != nil {
			s.emit(EventRunError, ErrorData{Message: err.Error()})
			return
		}
		s.emit(EventStateSnapshot, StateSnapshotData{Phase: result.State.Phase, State: result.State})
		if finished(result) {
			s.emit(EventRunFinished, FinishedData{Reason: string(result.Reason)})
			return
		}

		last := result.State
		ticker := time.NewTicker(cfg.PollInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			result, err = q.GetWorkflowState(ctx, wfID)
			if err != nil {
				s.emit(EventRunError, ErrorData{Message: err.Error()})
				return
			}
			cur := result.State

			if cur.Phase != last.Phase {
				s.emit(EventStepFinished, StepData{Phase: last.Phase})
				s.emit(EventStepStarted, StepData{Phase: cur.Phase})
			}
			if patches := Diff(last, cur); len(patches) > 0 {
				s.emit(EventStateDelta, StateDeltaData{Phase: cur.Phase, Patches: patches})
			}
			last = cur

			if finished(result) {
				s.emit(EventRunFinished, FinishedData{Reason: string(result.Reason)})
				return
			}
		}
	}
}

// finished reports whether the result came from a closed workflow. Running
// workflows answer the state query without a reason.
func finished(r *workflows.WorkflowResult) bool {
	return r.Reason != ""
}

// Diff returns one patch per top-level state field whose JSON encoding changed.
func Diff(prev, cur workflows.AuditState) []Patch {
	before := fields(prev)
	after := fields(cur)

	var out []Patch
	for _, name := range fieldOrder {
		b, a := before[name], after[name]
		switch {
		case a == nil && b == nil:
		case a == nil:
			out = append(out, Patch{Op: "remove", Path: "/" + name})
		case b == nil || !bytes.Equal(a, b):
			out = append(out, Patch{Op: "replace", Path: "/" + name, Value: json.RawMessage(a)})
		}
	}
	return out
}

var fieldOrder = []string{
	"phase", "file", "session_id", "summary", "decision", "approval",
	"approved_by", "corrections", "creation", "progress", "verification", "error",
}

func fields(s workflows.AuditState) map[string]json.RawMessage {
	data, err := json.Marshal(s)
	if err != nil {
		return nil
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return nil
	}
	return m
}
