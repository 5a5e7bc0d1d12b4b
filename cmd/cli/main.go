// Command audit-cli runs catalog audits locally and drives audit workflows.
//
// Usage:
//
//	audit-cli files
//	audit-cli audit    --file F [--mode sync|bulk] [--fix-all] [--create-all] [--report DIR] [--xlsx]
//	audit-cli sessions [--limit N]
//	audit-cli fix      [--session ID] [--kinds K,K] [--ids ID,ID]
//	audit-cli create   [--session ID] [--keys K,K]
//	audit-cli export   [--session ID] --out DIR [--full] [--xlsx]
//	audit-cli trigger  --file F [--mode sync|bulk]
//	audit-cli status   --workflow-id WID
//	audit-cli approve  --workflow-id WID --by USER [--ids ID,ID] [--fix-all] [--create-all]
//	audit-cli deny     --workflow-id WID --by USER --reason R
package main

import (
	"fmt"
	"os"
	"strings"
)

func main() {
	if len(os.Args) < 2 {
		usage()
	}

	args := os.Args[2:]
	switch os.Args[1] {
	case "files":
		cmdFiles(args)
	case "audit":
		cmdAudit(args)
	case "sessions":
		cmdSessions(args)
	case "fix":
		cmdFix(args)
	case "create":
		cmdCreate(args)
	case "export":
		cmdExport(args)
	case "trigger":
		cmdTrigger(args)
	case "status":
		cmdStatus(args)
	case "approve":
		cmdApprove(args)
	case "deny":
		cmdDeny(args)
	default:
		usage()
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: audit-cli <files|audit|sessions|fix|create|export|trigger|status|approve|deny> [flags]")
	os.Exit(1)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
