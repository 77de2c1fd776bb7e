package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/briandowns/spinner"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/PlastyPesa/NeoXten-Automation-Framework-sub001/pkg/api"
	"github.com/PlastyPesa/NeoXten-Automation-Framework-sub001/pkg/fsys"
	"github.com/PlastyPesa/NeoXten-Automation-Framework-sub001/pkg/inference"
	"github.com/PlastyPesa/NeoXten-Automation-Framework-sub001/pkg/processing"
	"github.com/PlastyPesa/NeoXten-Automation-Framework-sub001/pkg/shell"
	"github.com/PlastyPesa/NeoXten-Automation-Framework-sub001/pkg/stages"
	"github.com/PlastyPesa/NeoXten-Automation-Framework-sub001/pkg/tracing"
	"github.com/PlastyPesa/NeoXten-Automation-Framework-sub001/pkg/workers"
)

func runCmd(g *globalFlags, ui *ui) *cobra.Command {
	var (
		planFile    string
		metricsFile string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run builder, assembler and security over a plan",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(g)
			if err != nil {
				return err
			}
			plan, err := api.LoadPlan(planFile)
			if err != nil {
				return exitWith(exitLoadPlanFailed, err)
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			shutdown, err := tracing.Setup(ctx, cfg.Tracing)
			if err != nil {
				return exitWith(exitToolErrors, err)
			}
			defer func() {
				sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer scancel()
				if err := shutdown(sctx); err != nil {
					slog.Warn("tracing shutdown", "error", err)
				}
			}()

			reg, err := newRegistry(cfg)
			if err != nil {
				return exitWith(exitToolErrors, err)
			}

			spin := newSpinner(" Running pipeline...")
			m, runErr := processing.NewEngine(reg, cfg).RunPipeline(ctx, plan)
			spin.Stop()

			if metricsFile != "" {
				if err := prometheus.WriteToTextfile(metricsFile, prometheus.DefaultGatherer); err != nil {
					slog.Warn("writing metrics file", "filename", metricsFile, "error", err)
				}
			}

			if m != nil {
				printManifest(ui, m)
			}
			switch {
			case runErr != nil:
				return exitWith(exitRunError, runErr)
			case m.Status == processing.StatusFailed:
				return exitWith(exitRunFailed, errors.New("pipeline failed"))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&planFile, "plan", "plan.yaml", "plan file with stack, features and work units")
	cmd.Flags().StringVar(&metricsFile, "metrics-file", "", "write prometheus metrics in text format to this file")
	return cmd
}

// newRegistry registers every stage. The builder is left out when no
// inference client can be created from the configuration.
func newRegistry(cfg *api.Config) (*workers.Registry, error) {
	deps := stages.Deps{Shell: shell.NewExec(), FS: fsys.OS{}}
	client, err := inference.NewFromConfig(cfg.LLM)
	if err != nil {
		slog.Warn("builder disabled", "provider", cfg.LLM.Provider, "error", err)
	} else {
		deps.Inference = client
	}

	reg := workers.NewRegistry()
	if err := stages.Register(reg, cfg, deps); err != nil {
		return nil, err
	}
	slog.Debug("stages registered", "stages", reg.List())
	return reg, nil
}

// silentSpinner is used when stdout is not a terminal.
type silentSpinner struct{}

func (silentSpinner) Stop() {}

type stopper interface{ Stop() }

func newSpinner(suffix string) stopper {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return silentSpinner{}
	}
	s := spinner.New(spinner.CharSets[14], 120*time.Millisecond, spinner.WithWriter(os.Stdout))
	s.Suffix = suffix
	s.Start()
	return s
}

func printManifest(ui *ui, m *processing.Manifest) {
	fmt.Printf("%s %s\n", ui.title("Run"), m.RunID)
	for _, st := range m.Stages {
		mark := ui.ok("[OK]  ")
		detail := ""
		switch st.Status {
		case processing.StatusFailed:
			mark = ui.warn("[FAIL]")
			detail = st.Reason
		case processing.StatusError:
			mark = ui.err("[ERR] ")
			detail = st.Error
		}
		fmt.Printf("  %s %-10s %s %s\n", mark, st.Stage, ui.dim(fmt.Sprintf("%dms", st.DurationMs)), detail)
	}

	status := ui.ok(m.Status)
	if m.Status != processing.StatusPassed {
		status = ui.err(m.Status)
	}
	fmt.Printf("%s %s in %dms, %d evidence entries\n", ui.title("Status"), status, m.DurationMs, m.EvidenceLen)
}
