package progress_test

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syncshop/catalog-audit/internal/domain"
	"github.com/syncshop/catalog-audit/internal/progress"
	"github.com/syncshop/catalog-audit/internal/temporal/activities"
	"github.com/syncshop/catalog-audit/internal/temporal/workflows"
)

// seqReader returns results in order, repeating the last one.
type seqReader struct {
	mu      sync.Mutex
	results []*workflows.WorkflowResult
	err     error
	calls   int
}

func (s *seqReader) GetWorkflowState(_ context.Context, _ string) (*workflows.WorkflowResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	i := min(s.calls, len(s.results)-1)
	s.calls++
	return s.results[i], nil
}

type sseEvent struct {
	Type string
	Data string
}

func serve(t *testing.T, q progress.StateReader) []sseEvent {
	t.Helper()
	cfg := progress.StreamConfig{PollInterval: 10 * time.Millisecond, MaxDuration: 5 * time.Second}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /audits/{id}/events", progress.StreamHandler(q, cfg))
	ts := httptest.NewServer(mux)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/audits/wf-1/events")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	return parseSSE(t, resp)
}

func parseSSE(t *testing.T, resp *http.Response) []sseEvent {
	t.Helper()
	var events []sseEvent
	scanner := bufio.NewScanner(resp.Body)
	var current sseEvent
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			current.Type = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			current.Data = strings.TrimPrefix(line, "data: ")
		case line == "" && current.Type != "":
			events = append(events, current)
			current = sseEvent{}
		}
	}
	return events
}

func types(events []sseEvent) []string {
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = e.Type
	}
	return out
}

func TestStreamHandler_CompletedWorkflow(t *testing.T) {
	q := &seqReader{results: []*workflows.WorkflowResult{{
		State:  workflows.AuditState{Phase: workflows.PhaseCompleted, File: "regular.csv"},
		Reason: workflows.ReasonCompleted,
	}}}

	events := serve(t, q)
	assert.Equal(t, []string{"RUN_STARTED", "STATE_SNAPSHOT", "RUN_FINISHED"}, types(events))
	assert.Contains(t, events[2].Data, `"reason":"completed"`)
}

func TestStreamHandler_FollowsPhases(t *testing.T) {
	waiting := workflows.AuditState{Phase: workflows.PhaseApproval, File: "regular.csv", SessionID: "s1"}
	correcting := waiting
	correcting.Phase = workflows.PhaseCorrect
	correcting.Approval = domain.ApprovalApproved
	correcting.ApprovedBy = "ops@example.com"
	done := correcting
	done.Phase = workflows.PhaseCompleted

	q := &seqReader{results: []*workflows.WorkflowResult{
		{State: waiting},
		{State: waiting},
		{State: correcting},
		{State: done, Reason: workflows.ReasonCompleted},
	}}

	events := serve(t, q)
	assert.Equal(t, []string{
		"RUN_STARTED", "STATE_SNAPSHOT",
		"STEP_FINISHED", "STEP_STARTED", "STATE_DELTA",
		"STEP_FINISHED", "STEP_STARTED", "STATE_DELTA",
		"RUN_FINISHED",
	}, types(events))

	var delta progress.Event
	require.NoError(t, json.Unmarshal([]byte(events[4].Data), &delta))
	assert.Equal(t, "wf-1", delta.WorkflowID)
	assert.Contains(t, events[4].Data, `"path":"/approved_by"`)
}

func TestStreamHandler_ErrorQuerying(t *testing.T) {
	events := serve(t, &seqReader{err: assert.AnError})
	assert.Equal(t, []string{"RUN_STARTED", "RUN_ERROR"}, types(events))
}

func TestDiff(t *testing.T) {
	prev := workflows.AuditState{Phase: workflows.PhaseAuditing, File: "f.csv", Error: "boom"}
	cur := workflows.AuditState{Phase: workflows.PhaseApproval, File: "f.csv", SessionID: "s1"}

	patches := progress.Diff(prev, cur)
	require.Len(t, patches, 3)
	assert.Equal(t, "replace", patches[0].Op)
	assert.Equal(t, "/phase", patches[0].Path)
	assert.Equal(t, "/session_id", patches[1].Path)
	assert.Equal(t, progress.Patch{Op: "remove", Path: "/error"}, patches[2])

	assert.Empty(t, progress.Diff(cur, cur))
}

func TestStreamHandler_RelaysCreationProgress(t *testing.T) {
	creating := workflows.AuditState{Phase: workflows.PhaseCreate, File: "regular.csv", SessionID: "s1"}
	first := creating
	first.Progress = &activities.CreationProgress{Done: 1, Total: 3}
	second := creating
	second.Progress = &activities.CreationProgress{Done: 2, Total: 3}
	done := creating
	done.Phase = workflows.PhaseCompleted

	q := &seqReader{results: []*workflows.WorkflowResult{
		{State: first},
		{State: second},
		{State: done, Reason: workflows.ReasonCompleted},
	}}

	events := serve(t, q)
	assert.Equal(t, []string{
		"RUN_STARTED", "STATE_SNAPSHOT",
		"STATE_DELTA",
		"STEP_FINISHED", "STEP_STARTED", "STATE_DELTA",
		"RUN_FINISHED",
	}, types(events))
	assert.Contains(t, events[2].Data, `"path":"/progress"`)
	assert.Contains(t, events[2].Data, `"done":2`)
	assert.Contains(t, events[5].Data, `{"op":"remove","path":"/progress"}`)
}
