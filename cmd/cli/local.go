package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/syncshop/catalog-audit/internal/audit"
	"github.com/syncshop/catalog-audit/internal/config"
	"github.com/syncshop/catalog-audit/internal/connectors"
	"github.com/syncshop/catalog-audit/internal/creation"
	"github.com/syncshop/catalog-audit/internal/dispatch"
	"github.com/syncshop/catalog-audit/internal/domain"
	"github.com/syncshop/catalog-audit/internal/observability"
	"github.com/syncshop/catalog-audit/internal/policy"
	"github.com/syncshop/catalog-audit/internal/report"
	"github.com/syncshop/catalog-audit/internal/store"
)

// env is the local collaborator set shared by the offline subcommands.
type env struct {
	cfg    config.Config
	logger *slog.Logger
	conn   connectors.Set
	store  *store.Store
}

func setup(ctx context.Context) *env {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	logger := observability.InitLogger(cfg.LogLevel)
	conn, err := connectors.Build(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("connectors: %v", err)
	}
	if dir := filepath.Dir(cfg.DBPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			log.Fatalf("create db dir: %v", err)
		}
	}
	st, err := store.Open(cfg.DBPath)
	if err != nil {
		log.Fatalf("open store: %v", err)
	}
	return &env{cfg: cfg, logger: logger, conn: conn, store: st}
}

func (e *env) close() {
	if err := e.store.Close(); err != nil {
		e.logger.Warn("close store", "error", err)
	}
}

func (e *env) runner() *audit.Runner {
	return audit.NewRunner(e.conn.Feeds, e.conn.Shop, e.logger, nil)
}

// session loads id, or the newest session when id is empty.
func (e *env) session(ctx context.Context, id string) domain.AuditSession {
	var (
		sess domain.AuditSession
		err  error
	)
	if id == "" {
		sess, err = e.store.Latest(ctx)
	} else {
		sess, err = e.store.LoadSession(ctx, id)
	}
	if errors.Is(err, store.ErrNotFound) {
		log.Fatalf("no such session %q", id)
	}
	if err != nil {
		log.Fatalf("load session: %v", err)
	}
	return sess
}

func (e *env) save(ctx context.Context, sess domain.AuditSession) {
	if err := e.store.SaveSession(ctx, sess); err != nil {
		log.Fatalf("save session: %v", err)
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt)
}

func printJSON(v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		log.Fatalf("marshal output: %v", err)
	}
	fmt.Println(string(data))
}

func cmdFiles(args []string) {
	fs := flag.NewFlagSet("files", flag.ExitOnError)
	_ = fs.Parse(args)

	ctx, stop := signalContext()
	defer stop()
	e := setup(ctx)
	defer e.close()

	files, err := e.runner().Files(ctx)
	if err != nil {
		log.Fatalf("%v", err)
	}
	for _, f := range files {
		fmt.Println(f)
	}
}

func cmdAudit(args []string) {
	fs := flag.NewFlagSet("audit", flag.ExitOnError)
	file := fs.String("file", "", "feed file to audit (required)")
	mode := fs.String("mode", string(domain.FetchSync), "platform fetch mode: sync or bulk")
	fixAll := fs.Bool("fix-all", false, "apply every correctable discrepancy after the audit")
	createAll := fs.Bool("create-all", false, "create every missing product after the audit")
	reportDir := fs.String("report", "", "write CSV reports to this directory")
	xlsx := fs.Bool("xlsx", false, "write a single workbook instead of CSV reports")
	_ = fs.Parse(args)

	if *file == "" {
		fs.Usage()
		os.Exit(1)
	}

	ctx, stop := signalContext()
	defer stop()
	e := setup(ctx)
	defer e.close()

	sess, err := e.runner().Run(ctx, audit.Request{File: *file, Mode: domain.FetchMode(*mode)})
	if err != nil {
		log.Fatalf("%v", err)
	}
	e.save(ctx, sess)
	printJSON(sess.Summary())

	if *fixAll {
		sess = e.fix(ctx, sess, correctable(sess))
	}
	if *createAll {
		sess = e.create(ctx, sess, nil)
	}
	if *reportDir != "" {
		writeReports(sess, *reportDir, false, *xlsx)
	}
}

func cmdSessions(args []string) {
	fs := flag.NewFlagSet("sessions", flag.ExitOnError)
	limit := fs.Int("limit", 20, "maximum sessions to list (0 for all)")
	_ = fs.Parse(args)

	ctx, stop := signalContext()
	defer stop()
	e := setup(ctx)
	defer e.close()

	list, err := e.store.ListSessions(ctx, *limit)
	if err != nil {
		log.Fatalf("%v", err)
	}
	printJSON(list)
}

func cmdFix(args []string) {
	fs := flag.NewFlagSet("fix", flag.ExitOnError)
	id := fs.String("session", "", "session id (default: latest)")
	kinds := fs.String("kinds", "", "comma separated discrepancy kinds to fix")
	ids := fs.String("ids", "", "comma separated record ids to fix")
	_ = fs.Parse(args)

	ctx, stop := signalContext()
	defer stop()
	e := setup(ctx)
	defer e.close()

	sess := e.session(ctx, *id)
	var records []domain.DiscrepancyRecord
	switch {
	case *ids != "":
		records = sess.Select(splitList(*ids))
	case *kinds != "":
		ks, err := policy.ParseKinds(*kinds)
		if err != nil {
			log.Fatalf("%v", err)
		}
		records = sess.SelectKinds(ks...)
	default:
		records = correctable(sess)
	}
	e.fix(ctx, sess, records)
}

func cmdCreate(args []string) {
	fs := flag.NewFlagSet("create", flag.ExitOnError)
	id := fs.String("session", "", "session id (default: latest)")
	keys := fs.String("keys", "", "comma separated missing keys to create (default: all)")
	_ = fs.Parse(args)

	ctx, stop := signalContext()
	defer stop()
	e := setup(ctx)
	defer e.close()

	e.create(ctx, e.session(ctx, *id), splitList(*keys))
}

func cmdExport(args []string) {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	id := fs.String("session", "", "session id (default: latest)")
	out := fs.String("out", "", "output directory (required)")
	full := fs.Bool("full", false, "include internal platform identifiers")
	xlsx := fs.Bool("xlsx", false, "write a single workbook instead of CSV reports")
	_ = fs.Parse(args)

	if *out == "" {
		fs.Usage()
		os.Exit(1)
	}

	ctx, stop := signalContext()
	defer stop()
	e := setup(ctx)
	defer e.close()

	writeReports(e.session(ctx, *id), *out, *full, *xlsx)
}

func correctable(sess domain.AuditSession) []domain.DiscrepancyRecord {
	var out []domain.DiscrepancyRecord
	for _, r := range sess.Discrepancies {
		if r.Kind.Correctable() {
			out = append(out, r)
		}
	}
	return out
}

// fix dispatches records as an operator-approved batch and stores the result.
func (e *env) fix(ctx context.Context, sess domain.AuditSession, records []domain.DiscrepancyRecord) domain.AuditSession {
	if len(records) == 0 {
		fmt.Println("nothing to fix")
		return sess
	}
	if err := policy.EnforceDispatchSafety(domain.ApprovalApproved, records); err != nil {
		log.Fatalf("%v", err)
	}
	d := dispatch.New(e.conn.Shop,
		dispatch.WithChunkSize(e.cfg.MutationChunkSize),
		dispatch.WithLogger(e.logger),
	)
	res := d.Dispatch(ctx, records)
	next := sess.ApplyDispatch(res.Attempted, res.Failures)
	e.save(ctx, next)

	fmt.Printf("attempted %d, failed %d, remaining %d\n", len(res.Attempted), len(res.Failures), len(next.Discrepancies))
	for id, msg := range res.Messages() {
		fmt.Printf("  %s: %s\n", id, msg)
	}
	return next
}

func (e *env) create(ctx context.Context, sess domain.AuditSession, keys []string) domain.AuditSession {
	cands := sess.SelectMissing(keys)
	if len(cands) == 0 {
		fmt.Println("nothing to create")
		return sess
	}
	c := creation.NewCreator(e.conn.Shop, e.logger, nil)
	res := c.Create(ctx, cands, func(done, total int) {
		fmt.Fprintf(os.Stderr, "\rcreating products %d/%d", done, total)
		if done == total {
			fmt.Fprintln(os.Stderr)
		}
	})
	next := sess.ApplyCreation(res.Created(), res.Failures())
	e.save(ctx, next)

	fmt.Printf("created %d rows, remaining %d\n", len(res.Created()), len(next.Missing))
	for _, g := range res.Groups {
		if !g.OK {
			fmt.Printf("  %s: %s\n", g.GroupKey, g.Message)
		}
	}
	return next
}

func writeReports(sess domain.AuditSession, dir string, full, xlsx bool) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		log.Fatalf("create report dir: %v", err)
	}
	tables := []report.Table{report.Discrepancies(sess, full), report.Missing(sess), report.ExcessiveMedia(sess)}
	base := filepath.Join(dir, sess.ID)

	if xlsx {
		writeFile(base+".xlsx", func(f *os.File) error { return report.WriteXLSX(f, tables...) })
		return
	}
	names := []string{"_discrepancies.csv", "_missing.csv", "_excessive_media.csv"}
	for i, t := range tables {
		writeFile(base+names[i], func(f *os.File) error { return report.WriteCSV(f, t) })
	}
}

func writeFile(path string, write func(*os.File) error) {
	f, err := os.Create(path)
	if err != nil {
		log.Fatalf("create %s: %v", path, err)
	}
	if err := write(f); err != nil {
		f.Close()
		log.Fatalf("%v", err)
	}
	if err := f.Close(); err != nil {
		log.Fatalf("close %s: %v", path, err)
	}
	fmt.Println("wrote", path)
}
