// Package scan implements the dependency audit and secret scan used by the security stage.
package scan

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/PlastyPesa/NeoXten-Automation-Framework-sub001/pkg/runstate"
	"github.com/PlastyPesa/NeoXten-Automation-Framework-sub001/pkg/shell"
)

// DependencyAuditor reports known vulnerabilities in a project's dependencies.
type DependencyAuditor interface {
	Audit(ctx context.Context, projectDir string) ([]runstate.Vulnerability, error)
}

// NPMAudit runs an npm-audit compatible command and parses its JSON report.
type NPMAudit struct {
	Runner  shell.Runner
	Command string
}

// NewNPMAudit creates an auditor running command through runner.
func NewNPMAudit(runner shell.Runner, command string) *NPMAudit {
	return &NPMAudit{Runner: runner, Command: command}
}

func (a *NPMAudit) Audit(ctx context.Context, projectDir string) ([]runstate.Vulnerability, error) {
	res, err := a.Runner.Run(ctx, a.Command, projectDir)
	if err != nil {
		return nil, fmt.Errorf("running audit: %w", err)
	}

	// npm audit exits non-zero when it finds anything, so the exit code alone
	// says nothing about whether the report is usable.
	if strings.TrimSpace(res.Stdout) == "" {
		if res.ExitCode != 0 {
			return nil, fmt.Errorf("audit exited %d: %s", res.ExitCode, shell.Tail(res.Stderr, 500))
		}
		return []runstate.Vulnerability{}, nil
	}

	vulns, err := ParseNPMAudit([]byte(res.Stdout))
	if err != nil {
		return nil, err
	}
	slog.Debug("dependency audit parsed", "dir", projectDir, "vulnerabilities", len(vulns))
	return vulns, nil
}

type npmReport struct {
	// npm >= 7
	Vulnerabilities map[string]struct {
		Name     string            `json:"name"`
		Severity string            `json:"severity"`
		Via      []json.RawMessage `json:"via"`
	} `json:"vulnerabilities"`
	// npm 6
	Advisories map[string]struct {
		ModuleName string `json:"module_name"`
		Severity   string `json:"severity"`
		Title      string `json:"title"`
	} `json:"advisories"`
	Error *struct {
		Code    string `json:"code"`
		Summary string `json:"summary"`
	} `json:"error"`
}

// ParseNPMAudit decodes both the npm 6 and npm 7+ audit report layouts.
// Results are sorted by package name.
func ParseNPMAudit(data []byte) ([]runstate.Vulnerability, error) {
	var r npmReport
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parsing audit report: %w", err)
	}
	if r.Error != nil {
		return nil, fmt.Errorf("audit report error %s: %s", r.Error.Code, r.Error.Summary)
	}

	vulns := []runstate.Vulnerability{}
	for key, v := range r.Vulnerabilities {
		name := v.Name
		if name == "" {
			name = key
		}
		vulns = append(vulns, runstate.Vulnerability{
			Severity:    strings.ToLower(v.Severity),
			Package:     name,
			Description: viaTitle(v.Via),
		})
	}
	for _, adv := range r.Advisories {
		vulns = append(vulns, runstate.Vulnerability{
			Severity:    strings.ToLower(adv.Severity),
			Package:     adv.ModuleName,
			Description: adv.Title,
		})
	}

	sort.Slice(vulns, func(i, j int) bool {
		if vulns[i].Package != vulns[j].Package {
			return vulns[i].Package < vulns[j].Package
		}
		return vulns[i].Description < vulns[j].Description
	})
	return vulns, nil
}

// viaTitle picks the first advisory title; plain strings name a transitive package.
func viaTitle(via []json.RawMessage) string {
	var transitive []string
	for _, raw := range via {
		var adv struct {
			Title string `json:"title"`
		}
		if err := json.Unmarshal(raw, &adv); err == nil && adv.Title != "" {
			return adv.Title
		}
		var name string
		if err := json.Unmarshal(raw, &name); err == nil && name != "" {
			transitive = append(transitive, name)
		}
	}
	if len(transitive) > 0 {
		return "via " + strings.Join(transitive, ", ")
	}
	return ""
}

// IsBlocking reports whether a severity fails the security gate.
func IsBlocking(severity string) bool {
	switch strings.ToLower(severity) {
	case "critical", "high":
		return true
	}
	return false
}
