package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/syncshop/catalog-audit/internal/domain"
	"github.com/syncshop/catalog-audit/internal/report"
	"github.com/syncshop/catalog-audit/internal/store"
	"github.com/syncshop/catalog-audit/internal/temporal/activities"
	"github.com/syncshop/catalog-audit/internal/temporal/querier"
	"github.com/syncshop/catalog-audit/internal/temporal/versioning"
	"github.com/syncshop/catalog-audit/internal/temporal/workflows"
)

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListAudits(w http.ResponseWriter, r *http.Request) {
	opts := querier.ListOptions{
		TaskQueue:    versioning.QueueAudit,
		WorkflowType: "AuditWorkflow",
	}
	if status := r.URL.Query().Get("status"); status != "" {
		opts.StatusFilter = status
	}

	audits, err := s.querier.ListWorkflows(r.Context(), opts)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, audits)
}

func (s *Server) handleStartAudit(w http.ResponseWriter, r *http.Request) {
	var body struct {
		File string           `json:"file"`
		Mode domain.FetchMode `json:"mode"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if body.File == "" {
		writeError(w, http.StatusBadRequest, "'file' field is required")
		return
	}
	if body.Mode == "" {
		body.Mode = domain.FetchSync
	}
	if !body.Mode.Valid() {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid mode %q", body.Mode))
		return
	}

	started, err := s.querier.StartAudit(r.Context(), workflows.AuditInput{
		File:             body.File,
		Mode:             body.Mode,
		AutoFixKinds:     s.opts.AutoFixKinds,
		MaxPriceDeltaPct: s.opts.MaxPriceDeltaPct,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, started)
}

func (s *Server) handleGetAudit(w http.ResponseWriter, r *http.Request) {
	result, err := s.querier.GetWorkflowState(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// loadSession resolves a workflow id to its stored session. It writes the
// error response itself and reports whether the caller may continue.
func (s *Server) loadSession(w http.ResponseWriter, r *http.Request) (domain.AuditSession, bool) {
	result, err := s.querier.GetWorkflowState(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return domain.AuditSession{}, false
	}
	if result.State.SessionID == "" {
		writeError(w, http.StatusConflict, "audit has not produced a session yet")
		return domain.AuditSession{}, false
	}
	sess, err := s.sessions.LoadSession(r.Context(), result.State.SessionID)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return domain.AuditSession{}, false
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return domain.AuditSession{}, false
	}
	return sess, true
}

func (s *Server) handleDiscrepancies(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.loadSession(w, r)
	if !ok {
		return
	}
	records := sess.Discrepancies
	if kind := domain.DiscrepancyKind(r.URL.Query().Get("kind")); kind != "" {
		if !kind.Valid() {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown discrepancy kind %q", kind))
			return
		}
		records = sess.SelectKinds(kind)
	}
	if records == nil {
		records = []domain.DiscrepancyRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleReportCSV(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.loadSession(w, r)
	if !ok {
		return
	}
	full := r.URL.Query().Get("full") == "true"
	writeCSV(w, "discrepancies.csv", report.Discrepancies(sess, full))
}

func (s *Server) handleMissingCSV(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.loadSession(w, r)
	if !ok {
		return
	}
	writeCSV(w, "missing_products.csv", report.Missing(sess))
}

func (s *Server) handleReportXLSX(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.loadSession(w, r)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := report.WriteXLSX(&buf, report.Discrepancies(sess, false), report.Missing(sess), report.ExcessiveMedia(sess)); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="audit.xlsx"`)
	_, _ = w.Write(buf.Bytes())
}

func writeCSV(w http.ResponseWriter, name string, t report.Table) {
	var buf bytes.Buffer
	if err := report.WriteCSV(&buf, t); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	s.handleApprovalAction(w, r, true)
}

func (s *Server) handleDeny(w http.ResponseWriter, r *http.Request) {
	s.handleApprovalAction(w, r, false)
}

func (s *Server) handleApprovalAction(w http.ResponseWriter, r *http.Request, approved bool) {
	id := r.PathValue("id")

	var body struct {
		By         string   `json:"by"`
		Reason     string   `json:"reason,omitempty"`
		RecordIDs  []string `json:"record_ids,omitempty"`
		FixAll     bool     `json:"fix_all,omitempty"`
		CreateAll  bool     `json:"create_all,omitempty"`
		CreateKeys []string `json:"create_keys,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	// An authenticated operator cannot approve under another name.
	if user := UserFromContext(r.Context()); user != "" {
		body.By = user
	}
	if body.By == "" {
		writeError(w, http.StatusBadRequest, "'by' field is required")
		return
	}

	resp := activities.ApprovalResponse{
		Approved: approved,
		By:       body.By,
		Reason:   body.Reason,
	}
	if approved {
		resp.RecordIDs = body.RecordIDs
		resp.FixAll = body.FixAll
		resp.CreateAll = body.CreateAll
		resp.CreateKeys = body.CreateKeys
	}
	result, err := s.querier.SubmitApproval(r.Context(), id, resp)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"result": result})
}
