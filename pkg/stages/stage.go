// Package stages holds the concrete pipeline workers.
package stages

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"text/template"

	"github.com/Masterminds/sprig/v3"

	"github.com/PlastyPesa/NeoXten-Automation-Framework-sub001/pkg/evidence"
	"github.com/PlastyPesa/NeoXten-Automation-Framework-sub001/pkg/fsys"
	"github.com/PlastyPesa/NeoXten-Automation-Framework-sub001/pkg/inference"
	"github.com/PlastyPesa/NeoXten-Automation-Framework-sub001/pkg/scan"
	"github.com/PlastyPesa/NeoXten-Automation-Framework-sub001/pkg/shell"
)

// Deps are the external collaborators stages are built from.
// Auditor and Scanner default to implementations derived from the config.
type Deps struct {
	Inference inference.Client
	Shell     shell.Runner
	FS        fsys.FS
	Auditor   scan.DependencyAuditor
	Scanner   scan.SecretScanner
}

func parseTemplate(name, text string) (*template.Template, error) {
	funcs := sprig.TxtFuncMap()
	funcs["shquote"] = shellQuote
	tmpl, err := template.New(name).Funcs(funcs).Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("parsing %s template: %w", name, err)
	}
	return tmpl, nil
}

// shellQuote wraps s in single quotes for a POSIX shell. Embedded single quotes
// close the string, emit an escaped quote and reopen it.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func render(tmpl *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("executing %s template: %w", tmpl.Name(), err)
	}
	return buf.String(), nil
}

// note appends a progress note. Evidence failures are logged; the caller decides
// whether they are fatal.
func note(ctx context.Context, chain *evidence.Chain, workerID, stage, message string, fields map[string]any) error {
	if _, err := chain.Note(ctx, workerID, stage, message, fields); err != nil {
		slog.Error("appending evidence", "worker", workerID, "message", message, "error", err)
		return fmt.Errorf("appending evidence: %w", err)
	}
	return nil
}
