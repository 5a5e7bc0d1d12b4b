package shadow

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"

	"github.com/syncshop/catalog-audit/internal/audit"
	"github.com/syncshop/catalog-audit/internal/domain"
	"github.com/syncshop/catalog-audit/internal/feed"
	"github.com/syncshop/catalog-audit/internal/testutil"
)

// GoRunner runs the in-process audit against a fixtures directory holding
// shop.yaml and a feeds/ directory.
type GoRunner struct {
	FixturesDir string
	Logger      *slog.Logger
}

// Run audits one feed file in the given mode.
func (r *GoRunner) Run(ctx context.Context, file string, mode domain.FetchMode) (domain.AuditSession, error) {
	shop, err := testutil.LoadStubShop(filepath.Join(r.FixturesDir, "shop.yaml"))
	if err != nil {
		return domain.AuditSession{}, err
	}
	feeds := feed.NewDirSource(filepath.Join(r.FixturesDir, "feeds"))
	runner := audit.NewRunner(feeds, shop, r.Logger, nil)
	sess, err := runner.Run(ctx, audit.Request{File: file, Mode: mode})
	if err != nil {
		return domain.AuditSession{}, fmt.Errorf("shadow run %s (%s): %w", file, mode, err)
	}
	return sess, nil
}

// CommandRunner invokes an external audit tool that prints a discrepancy CSV
// report on stdout. The feed file name is passed as the last argument.
type CommandRunner struct {
	Path string
	Args []string
}

// Run executes the command and returns its stdout.
func (r *CommandRunner) Run(ctx context.Context, file string) ([]byte, error) {
	args := append(append([]string(nil), r.Args...), file)
	cmd := exec.CommandContext(ctx, r.Path, args...)
	out, err := cmd.Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return nil, fmt.Errorf("external audit failed: %s\n%s", err, exitErr.Stderr)
		}
		return nil, fmt.Errorf("external audit: %w", err)
	}
	return out, nil
}
