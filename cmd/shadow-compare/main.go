// shadow-compare audits one feed file twice and compares the outputs as sets.
// By default the in-process audit runs in sync and bulk mode against the
// fixtures; with --external the in-process report is compared to the CSV an
// external audit command prints.
// Exit code 0 = outputs match. Exit code 1 = divergence detected. Exit code 2 = error.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"github.com/syncshop/catalog-audit/internal/domain"
	"github.com/syncshop/catalog-audit/internal/report"
	"github.com/syncshop/catalog-audit/internal/shadow"
)

func main() {
	fixturesDir := flag.String("fixtures-dir", "", "directory holding shop.yaml and feeds/ (required)")
	file := flag.String("file", "", "feed file to audit (required)")
	external := flag.String("external", "", "external audit command printing a discrepancy CSV")
	flag.Parse()

	if *fixturesDir == "" || *file == "" {
		fmt.Fprintln(os.Stderr, "error: --fixtures-dir and --file are required")
		flag.Usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	goRunner := &shadow.GoRunner{FixturesDir: *fixturesDir, Logger: logger}

	var (
		result *shadow.ComparisonResult
		err    error
	)
	if *external == "" {
		result, err = compareModes(ctx, goRunner, *file)
	} else {
		result, err = compareExternal(ctx, goRunner, &shadow.CommandRunner{Path: *external}, *file)
	}
	if err != nil {
		logger.Error("comparison failed", "error", err)
		os.Exit(2)
	}

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		logger.Error("marshal result failed", "error", err)
		os.Exit(2)
	}
	fmt.Println(string(out))

	if !result.AllMatch {
		logger.Warn("divergence detected", "summary", result.Summary)
		os.Exit(1)
	}
}

func compareModes(ctx context.Context, r *shadow.GoRunner, file string) (*shadow.ComparisonResult, error) {
	syncSess, err := r.Run(ctx, file, domain.FetchSync)
	if err != nil {
		return nil, err
	}
	bulkSess, err := r.Run(ctx, file, domain.FetchBulk)
	if err != nil {
		return nil, err
	}
	return shadow.Compare(syncSess, bulkSess), nil
}

func compareExternal(ctx context.Context, r *shadow.GoRunner, ext *shadow.CommandRunner, file string) (*shadow.ComparisonResult, error) {
	sess, err := r.Run(ctx, file, domain.FetchSync)
	if err != nil {
		return nil, err
	}
	var local bytes.Buffer
	if err := report.WriteCSV(&local, report.Discrepancies(sess, false)); err != nil {
		return nil, err
	}
	remote, err := ext.Run(ctx, file)
	if err != nil {
		return nil, err
	}
	return shadow.CompareReports(&local, bytes.NewReader(remote))
}
