package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/Mindburn-Labs/boundary/pkg/audit"
)

// runVerifyAuditCmd implements `boundaryctl verify-audit`: walk an audit
// log's hash chain from genesis and print the head hash on success.
//
// Exit codes:
//
//	0 = chain verified
//	1 = chain broken or unreadable
//	2 = bad arguments
func runVerifyAuditCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("verify-audit", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var auditLog string
	cmd.StringVar(&auditLog, "audit-log", "", "Audit log JSONL path to verify (REQUIRED)")

	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if auditLog == "" {
		_, _ = fmt.Fprintln(stderr, "Error: --audit-log is required")
		return 2
	}

	if _, err := os.Stat(auditLog); err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	head, err := audit.Verify(auditLog)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	_, _ = fmt.Fprintln(stdout, head)
	return 0
}
