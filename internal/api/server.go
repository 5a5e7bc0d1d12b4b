// Package api serves the audit review surface over HTTP.
package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/coreos/go-oidc/v3/oidc"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/syncshop/catalog-audit/internal/domain"
	"github.com/syncshop/catalog-audit/internal/progress"
	"github.com/syncshop/catalog-audit/internal/temporal/querier"
)

// SessionReader loads stored audit sessions. Implemented by store.Store.
type SessionReader interface {
	LoadSession(ctx context.Context, id string) (domain.AuditSession, error)
}

// Options configures a Server.
type Options struct {
	CORSOrigins []string
	OIDC        OIDCConfig
	// Policy defaults applied to audits started over the API.
	AutoFixKinds     []domain.DiscrepancyKind
	MaxPriceDeltaPct float64
}

// Server is the HTTP API server for audit review.
type Server struct {
	querier  querier.WorkflowQuerier
	sessions SessionReader
	opts     Options
	mux      *http.ServeMux
	handler  http.Handler
}

// New creates a Server. With OIDC enabled it runs provider discovery and
// fails if the issuer cannot be reached.
func New(ctx context.Context, q querier.WorkflowQuerier, sessions SessionReader, opts Options) (*Server, error) {
	s := &Server{querier: q, sessions: sessions, opts: opts, mux: http.NewServeMux()}
	s.routes()

	var h http.Handler = s.mux
	if opts.OIDC.Enabled {
		provider, err := oidc.NewProvider(ctx, opts.OIDC.IssuerURL)
		if err != nil {
			return nil, fmt.Errorf("api: oidc discovery: %w", err)
		}
		h = oidcAuth(provider, opts.OIDC.Audience)(h)
	}
	h = requestID(logging(cors(opts.CORSOrigins, h)))
	s.handler = otelhttp.NewHandler(h, "catalog-audit-api")
	return s, nil
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /api/v1/health", s.handleHealth)
	s.mux.HandleFunc("GET /api/v1/audits", s.handleListAudits)
	s.mux.HandleFunc("POST /api/v1/audits", s.handleStartAudit)
	s.mux.HandleFunc("GET /api/v1/audits/{id}", s.handleGetAudit)
	s.mux.HandleFunc("GET /api/v1/audits/{id}/events", progress.StreamHandler(s.querier, progress.DefaultConfig()))
	s.mux.HandleFunc("GET /api/v1/audits/{id}/discrepancies", s.handleDiscrepancies)
	s.mux.HandleFunc("GET /api/v1/audits/{id}/report.csv", s.handleReportCSV)
	s.mux.HandleFunc("GET /api/v1/audits/{id}/missing.csv", s.handleMissingCSV)
	s.mux.HandleFunc("GET /api/v1/audits/{id}/report.xlsx", s.handleReportXLSX)
	s.mux.HandleFunc("POST /api/v1/audits/{id}/approve", s.handleApprove)
	s.mux.HandleFunc("POST /api/v1/audits/{id}/deny", s.handleDeny)
}
