package stages

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/PlastyPesa/NeoXten-Automation-Framework-sub001/pkg/api"
	"github.com/PlastyPesa/NeoXten-Automation-Framework-sub001/pkg/evidence"
	"github.com/PlastyPesa/NeoXten-Automation-Framework-sub001/pkg/runstate"
	"github.com/PlastyPesa/NeoXten-Automation-Framework-sub001/pkg/shell"
	"github.com/PlastyPesa/NeoXten-Automation-Framework-sub001/pkg/workers"
)

const (
	BuildCommandNPM   = "npm run build"
	BuildCommandTauri = "npx tauri build"
)

// BuildCommand picks the build invocation from the plan's stack name.
func BuildCommand(stackName string) string {
	name := strings.ToLower(stackName)
	switch {
	case strings.Contains(name, "next"), strings.Contains(name, "vite"):
		return BuildCommandNPM
	case strings.Contains(name, "tauri"):
		return BuildCommandTauri
	default:
		return BuildCommandNPM
	}
}

// Assembler builds the generated project once every work unit is done.
type Assembler struct {
	runner     shell.Runner
	projectDir string
	cfg        api.AssemblerConfig
}

// NewAssembler creates the build stage.
func NewAssembler(runner shell.Runner, projectDir string, cfg api.AssemblerConfig) *Assembler {
	return &Assembler{runner: runner, projectDir: projectDir, cfg: cfg}
}

func (a *Assembler) ID() string      { return api.StageAssembler }
func (a *Assembler) Accepts() string { return api.TaskAssemble }
func (a *Assembler) Requires() []runstate.Slice {
	return []runstate.Slice{runstate.SlicePlan, runstate.SliceWorkUnits}
}
func (a *Assembler) Produces() []runstate.Slice { return []runstate.Slice{runstate.SliceBuildOutput} }
func (a *Assembler) Timeout() time.Duration     { return a.cfg.Timeout }

func (a *Assembler) Execute(ctx context.Context, _ workers.Task, state *runstate.RunState, chain *evidence.Chain) workers.Result {
	plan, _ := state.Plan()
	units, _ := state.WorkUnits()

	var incomplete []string
	outputFiles := []string{}
	for _, u := range units {
		if u.Status != runstate.UnitDone {
			incomplete = append(incomplete, u.ID)
			continue
		}
		outputFiles = append(outputFiles, u.OutputFiles...)
	}
	if len(incomplete) > 0 {
		return workers.Failed("work units not done: %s", strings.Join(incomplete, ", "))
	}

	command := BuildCommand(plan.Stack.Name)
	if err := note(ctx, chain, a.ID(), api.StageAssembler, "build started", map[string]any{
		"command":    command,
		"projectDir": a.projectDir,
		"fileCount":  len(outputFiles),
	}); err != nil {
		return workers.Failed("%v", err)
	}

	slog.Info("running build", "command", command, "dir", a.projectDir, "files", len(outputFiles))
	res, err := a.runner.Run(ctx, command, a.projectDir)
	if err != nil {
		_ = note(ctx, chain, a.ID(), api.StageAssembler, "build could not start", map[string]any{"error": err.Error()})
		return workers.Failed("build %q could not run: %v", command, err)
	}

	if err := note(ctx, chain, a.ID(), api.StageAssembler, "build finished", map[string]any{
		"exitCode":    res.ExitCode,
		"stdoutBytes": len(res.Stdout),
		"stderrBytes": len(res.Stderr),
	}); err != nil {
		return workers.Failed("%v", err)
	}

	if res.ExitCode != 0 {
		return workers.Failed("build %q exited %d: %s", command, res.ExitCode, shell.Tail(res.Stderr, a.tailChars()))
	}

	state.SetBuildOutput(runstate.BuildOutput{
		ProjectDir:   a.projectDir,
		BuildCommand: command,
		ExitCode:     res.ExitCode,
		OutputFiles:  outputFiles,
	})
	return workers.Done(workers.Artifact{Name: "project", Path: a.projectDir})
}

func (a *Assembler) tailChars() int {
	if a.cfg.StderrTailChars > 0 {
		return a.cfg.StderrTailChars
	}
	return 500
}
