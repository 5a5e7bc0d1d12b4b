package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"go.temporal.io/sdk/client"

	"github.com/syncshop/catalog-audit/internal/config"
	"github.com/syncshop/catalog-audit/internal/domain"
	"github.com/syncshop/catalog-audit/internal/policy"
	"github.com/syncshop/catalog-audit/internal/temporal/activities"
	"github.com/syncshop/catalog-audit/internal/temporal/querier"
	"github.com/syncshop/catalog-audit/internal/temporal/workflows"
)

func dial() (*querier.TemporalQuerier, config.Config, func()) {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	c, err := client.Dial(client.Options{
		HostPort:  cfg.TemporalAddress,
		Namespace: cfg.TemporalNamespace,
	})
	if err != nil {
		log.Fatalf("unable to create Temporal client: %v", err)
	}
	return querier.New(c), cfg, c.Close
}

func cmdTrigger(args []string) {
	fs := flag.NewFlagSet("trigger", flag.ExitOnError)
	file := fs.String("file", "", "feed file to audit (required)")
	mode := fs.String("mode", string(domain.FetchSync), "platform fetch mode: sync or bulk")
	_ = fs.Parse(args)

	if *file == "" {
		fs.Usage()
		os.Exit(1)
	}

	q, cfg, closeFn := dial()
	defer closeFn()

	kinds, err := policy.ParseKinds(cfg.AutoFixKinds)
	if err != nil {
		log.Fatalf("invalid AUDIT_AUTO_FIX_KINDS: %v", err)
	}
	sum, err := q.StartAudit(context.Background(), workflows.AuditInput{
		File:             *file,
		Mode:             domain.FetchMode(*mode),
		AutoFixKinds:     kinds,
		MaxPriceDeltaPct: cfg.MaxAutoPriceDeltaPct,
	})
	if err != nil {
		log.Fatalf("failed to start workflow: %v", err)
	}
	fmt.Printf("started workflow %s (run=%s)\n", sum.WorkflowID, sum.RunID)
}

func cmdStatus(args []string) {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	wfID := fs.String("workflow-id", "", "workflow ID (required)")
	_ = fs.Parse(args)

	if *wfID == "" {
		fs.Usage()
		os.Exit(1)
	}

	q, _, closeFn := dial()
	defer closeFn()

	ctx := context.Background()
	desc, err := q.DescribeWorkflow(ctx, *wfID)
	if err != nil {
		log.Fatalf("failed to describe workflow: %v", err)
	}
	out := map[string]any{"workflow": desc}
	if state, err := q.GetWorkflowState(ctx, *wfID); err != nil {
		fmt.Fprintf(os.Stderr, "state unavailable: %v\n", err)
	} else {
		out["result"] = state
	}
	printJSON(out)
}

func cmdApprove(args []string) {
	fs := flag.NewFlagSet("approve", flag.ExitOnError)
	wfID := fs.String("workflow-id", "", "workflow ID (required)")
	by := fs.String("by", "", "approver identity (required)")
	ids := fs.String("ids", "", "comma separated record ids to apply")
	fixAll := fs.Bool("fix-all", false, "apply every correctable discrepancy")
	createAll := fs.Bool("create-all", false, "create every missing product")
	keys := fs.String("create-keys", "", "comma separated missing keys to create")
	_ = fs.Parse(args)

	if *wfID == "" || *by == "" {
		fs.Usage()
		os.Exit(1)
	}

	sendApproval(*wfID, activities.ApprovalResponse{
		Approved:   true,
		By:         *by,
		RecordIDs:  splitList(*ids),
		FixAll:     *fixAll,
		CreateAll:  *createAll,
		CreateKeys: splitList(*keys),
	})
}

func cmdDeny(args []string) {
	fs := flag.NewFlagSet("deny", flag.ExitOnError)
	wfID := fs.String("workflow-id", "", "workflow ID (required)")
	by := fs.String("by", "", "denier identity (required)")
	reason := fs.String("reason", "", "denial reason")
	_ = fs.Parse(args)

	if *wfID == "" || *by == "" {
		fs.Usage()
		os.Exit(1)
	}

	sendApproval(*wfID, activities.ApprovalResponse{Approved: false, By: *by, Reason: *reason})
}

func sendApproval(wfID string, resp activities.ApprovalResponse) {
	q, _, closeFn := dial()
	defer closeFn()

	result, err := q.SubmitApproval(context.Background(), wfID, resp)
	if err != nil {
		log.Fatalf("update failed: %v", err)
	}
	fmt.Printf("update result: %s\n", result)
}
