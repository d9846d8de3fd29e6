package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/Mindburn-Labs/boundary/pkg/audit"
	"github.com/Mindburn-Labs/boundary/pkg/config"
	"github.com/Mindburn-Labs/boundary/pkg/redaction"
)

// runRedactCmd implements `boundaryctl redact`: read an internal
// ModelRequest JSON file, run it through the redaction engine, and print
// the resulting call id and hashes for scripting.
//
// Exit codes:
//
//	0 = redacted successfully
//	1 = redaction failed
//	2 = bad arguments
func runRedactCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("redact", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		repoRoot           string
		requestJSON        string
		auditLog           string
		policyDecisionID   string
		requiresApproval   bool
		policyID           string
		profile            string
		summaryBudgetChars int
	)

	cmd.StringVar(&repoRoot, "repo-root", "", "Repo root containing runtime/ (REQUIRED)")
	cmd.StringVar(&requestJSON, "request-json", "", "Path to an internal ModelRequest JSON file (REQUIRED)")
	cmd.StringVar(&auditLog, "audit-log", "", "Audit log JSONL path to append to (REQUIRED)")
	cmd.StringVar(&policyDecisionID, "policy-decision-id", "policy_decision_unspecified", "Policy decision id recorded in audit")
	cmd.BoolVar(&requiresApproval, "requires-approval", true, "Whether approval is required to dispatch (recorded in audit only)")
	cmd.StringVar(&policyID, "policy-id", "policy_unspecified", "Policy id used inside the redaction block")
	cmd.StringVar(&profile, "profile", "strict", `Redaction profile: "strict" or "explicit_allowlist"`)
	cmd.IntVar(&summaryBudgetChars, "summary-budget-chars", 1200, "Summary budget in characters before a message is replaced by its hash")

	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if repoRoot == "" || requestJSON == "" || auditLog == "" {
		_, _ = fmt.Fprintln(stderr, "Error: --repo-root, --request-json, and --audit-log are required")
		return 2
	}

	var prof redaction.Profile
	switch profile {
	case "strict":
		prof = redaction.ProfileStrict
	case "explicit_allowlist":
		prof = redaction.ProfileExplicitAllowlist
	default:
		_, _ = fmt.Fprintf(stderr, "Error: unknown profile %q\n", profile)
		return 2
	}

	if err := ensureRuntimeDirs(repoRoot); err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	raw, err := os.ReadFile(requestJSON)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: read request json: %v\n", err)
		return 2
	}
	var req redaction.ModelRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: parse request json: %v\n", err)
		return 2
	}

	ctx := context.Background()
	cfg := config.Load()

	appender, err := openAuditAppender(ctx, cfg, auditLog, repoRoot)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: open audit log: %v\n", err)
		return 2
	}
	defer appender.Close()

	store, err := buildArtifactStore(ctx, cfg, repoRoot)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: open artifact store: %v\n", err)
		return 2
	}

	gate, err := buildSchemaGate()
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: build schema gate: %v\n", err)
		return 2
	}
	telemetryProvider, err := buildTelemetry()
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: build telemetry provider: %v\n", err)
		return 2
	}

	engine := &redaction.Engine{
		RepoRoot:           repoRoot,
		PolicyID:           policyID,
		Profile:            prof,
		SummaryBudgetChars: summaryBudgetChars,
		Store:              store,
		Appender:           appender,
		Schema:             gate,
		Telemetry:          telemetryProvider,
	}

	result, err := engine.RedactAndAudit(ctx, req, redaction.PolicyInput{
		DecisionID:       policyDecisionID,
		RiskClass:        audit.RiskNetwork,
		RequiresApproval: requiresApproval,
	})
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: redact: %v\n", err)
		return 1
	}

	out := map[string]string{
		"call_id":            result.CallID,
		"pre_hash":           result.Manifest.PreHash,
		"post_hash":          result.Manifest.PostHash,
		"transform_log_hash": result.Manifest.TransformLogHash,
	}
	data, _ := json.Marshal(out)
	_, _ = fmt.Fprintln(stdout, string(data))
	return 0
}

func ensureRuntimeDirs(repoRoot string) error {
	for _, dir := range []string{
		filepath.Join(repoRoot, "runtime", "logs"),
		filepath.Join(repoRoot, "runtime", "artifacts"),
	} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("mkdir %s: %w", dir, err)
		}
	}
	return nil
}
