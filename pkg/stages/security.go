package stages

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/PlastyPesa/NeoXten-Automation-Framework-sub001/pkg/api"
	"github.com/PlastyPesa/NeoXten-Automation-Framework-sub001/pkg/evidence"
	"github.com/PlastyPesa/NeoXten-Automation-Framework-sub001/pkg/runstate"
	"github.com/PlastyPesa/NeoXten-Automation-Framework-sub001/pkg/scan"
	"github.com/PlastyPesa/NeoXten-Automation-Framework-sub001/pkg/workers"
)

// SecurityAuditor gates the build on dependency vulnerabilities and committed secrets.
type SecurityAuditor struct {
	auditor scan.DependencyAuditor
	scanner scan.SecretScanner
	timeout time.Duration
}

// NewSecurityAuditor creates the audit stage.
func NewSecurityAuditor(auditor scan.DependencyAuditor, scanner scan.SecretScanner, timeout time.Duration) *SecurityAuditor {
	return &SecurityAuditor{auditor: auditor, scanner: scanner, timeout: timeout}
}

func (s *SecurityAuditor) ID() string                 { return api.StageSecurity }
func (s *SecurityAuditor) Accepts() string            { return api.TaskSecurityAudit }
func (s *SecurityAuditor) Requires() []runstate.Slice { return []runstate.Slice{runstate.SliceBuildOutput} }
func (s *SecurityAuditor) Produces() []runstate.Slice {
	return []runstate.Slice{runstate.SliceSecurityReport}
}
func (s *SecurityAuditor) Timeout() time.Duration { return s.timeout }

func (s *SecurityAuditor) Execute(ctx context.Context, _ workers.Task, state *runstate.RunState, chain *evidence.Chain) workers.Result {
	build, _ := state.BuildOutput()
	dir := build.ProjectDir

	var (
		wg       sync.WaitGroup
		vulns    []runstate.Vulnerability
		findings []scan.SecretFinding
		auditErr error
		scanErr  error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		vulns, auditErr = s.auditor.Audit(ctx, dir)
	}()
	go func() {
		defer wg.Done()
		findings, scanErr = s.scanner.Scan(ctx, dir)
	}()
	wg.Wait()

	if vulns == nil {
		vulns = []runstate.Vulnerability{}
	}
	blocking := 0
	for _, v := range vulns {
		if scan.IsBlocking(v.Severity) {
			blocking++
		}
	}

	report := runstate.SecurityReport{
		Vulnerabilities: vulns,
		SecretsFound:    len(findings),
		OverallPassed:   blocking == 0 && len(findings) == 0 && auditErr == nil && scanErr == nil,
	}
	state.SetSecurityReport(report)

	fields := map[string]any{
		"vulnerabilities": len(vulns),
		"criticalOrHigh":  blocking,
		"secretsFound":    len(findings),
		"overallPassed":   report.OverallPassed,
	}
	if len(findings) > 0 {
		fields["secretLocations"] = secretLocations(findings)
	}
	if auditErr != nil {
		fields["auditError"] = auditErr.Error()
	}
	if scanErr != nil {
		fields["scanError"] = scanErr.Error()
	}
	if err := note(ctx, chain, s.ID(), api.StageSecurity, "security audit finished", fields); err != nil {
		return workers.Failed("%v", err)
	}

	slog.Info("security audit finished", "dir", dir, "criticalOrHigh", blocking, "secrets", len(findings), "passed", report.OverallPassed)

	if report.OverallPassed {
		return workers.Done()
	}

	var reasons []string
	if blocking > 0 {
		reasons = append(reasons, fmt.Sprintf("%d critical/high vulnerabilities", blocking))
	}
	if len(findings) > 0 {
		reasons = append(reasons, fmt.Sprintf("%d secrets found", len(findings)))
	}
	if auditErr != nil {
		reasons = append(reasons, fmt.Sprintf("dependency audit failed: %v", auditErr))
	}
	if scanErr != nil {
		reasons = append(reasons, fmt.Sprintf("secret scan failed: %v", scanErr))
	}
	return workers.Failed("security gate failed: %s", strings.Join(reasons, "; "))
}

func secretLocations(findings []scan.SecretFinding) []string {
	locs := make([]string, 0, len(findings))
	for _, f := range findings {
		locs = append(locs, fmt.Sprintf("%s:%d", f.Path, f.Line))
	}
	return locs
}
