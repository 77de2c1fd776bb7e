package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/PlastyPesa/NeoXten-Automation-Framework-sub001/pkg/api"
	"github.com/PlastyPesa/NeoXten-Automation-Framework-sub001/pkg/evidence"
	"github.com/PlastyPesa/NeoXten-Automation-Framework-sub001/pkg/processing"
)

func evidenceCmd(g *globalFlags, ui *ui) *cobra.Command {
	var (
		runID    string
		from, to uint64
		asJSON   bool
	)

	cmd := &cobra.Command{
		Use:   "evidence",
		Short: "Verify and print the evidence chain of a run",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(g)
			if err != nil {
				return err
			}
			entries, err := processing.LoadEvidence(cfg.RunsDir, runID)
			if err != nil {
				return exitWith(exitToolErrors, err)
			}
			if err := evidence.VerifyEntries(entries); err != nil {
				return exitWith(exitEvidenceBroken, err)
			}

			upper := to
			if upper == 0 {
				upper = math.MaxUint64
			}
			selected := evidence.FilterRange(entries, from, upper)

			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				for _, e := range selected {
					if err := enc.Encode(e); err != nil {
						return exitWith(exitToolErrors, err)
					}
				}
				return nil
			}

			for _, e := range selected {
				fmt.Printf("%4d %s %-9s %-10s %-10s %s\n", e.Seq,
					ui.dim(e.Timestamp.Format(time.RFC3339)), e.Type, e.WorkerID, e.Stage, describe(e))
			}
			fmt.Printf("%s %d of %d entries, chain verified\n", ui.ok("[OK]"), len(selected), len(entries))
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&runID, "run", "", "run id")
	f.Uint64Var(&from, "from", 1, "first sequence number")
	f.Uint64Var(&to, "to", 0, "last sequence number, 0 for the end of the chain")
	f.BoolVar(&asJSON, "json", false, "print entries as ndjson")
	_ = cmd.MarkFlagRequired("run")
	return cmd
}

func describe(e evidence.Entry) string {
	switch d := e.Data.(type) {
	case evidence.Note:
		return d.Message
	case evidence.LLMCall:
		if d.Error != "" {
			return fmt.Sprintf("%s failed: %s", d.Model, d.Error)
		}
		return fmt.Sprintf("%s %dms", d.Model, d.DurationMs)
	default:
		return ""
	}
}

func validateCmd(g *globalFlags, ui *ui) *cobra.Command {
	var planFile string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration and a plan file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := loadConfig(g); err != nil {
				return err
			}
			plan, err := api.LoadPlan(planFile)
			if err != nil {
				return exitWith(exitLoadPlanFailed, err)
			}
			fmt.Printf("%s %s: stack %s, %d features, %d work units\n", ui.ok("[OK]"),
				plan.FilePath, plan.Plan.Stack.Name, len(plan.Plan.Features), len(plan.WorkUnits))
			return nil
		},
	}
	cmd.Flags().StringVar(&planFile, "plan", "plan.yaml", "plan file to validate")
	return cmd
}

func runsCmd(g *globalFlags, ui *ui) *cobra.Command {
	return &cobra.Command{
		Use:   "runs",
		Short: "List past runs, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(g)
			if err != nil {
				return err
			}
			history, err := processing.RunHistory(cfg.RunsDir)
			if err != nil {
				return exitWith(exitToolErrors, err)
			}
			if len(history) == 0 {
				fmt.Println(ui.dim("no runs in " + cfg.RunsDir))
				return nil
			}
			for _, m := range history {
				fmt.Printf("%s  %s  %-7s %-10s %s\n", m.RunID,
					ui.dim(m.StartedAt.Local().Format(time.DateTime)), colorStatus(ui, m.Status), m.CurrentStage,
					ui.dim(fmt.Sprintf("%dms", m.DurationMs)))
			}
			return nil
		},
	}
}

func statusCmd(g *globalFlags, ui *ui) *cobra.Command {
	return &cobra.Command{
		Use:   "status <run-id>",
		Short: "Show the latest state and gate results of a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(g)
			if err != nil {
				return err
			}
			doc, err := processing.LoadRunState(cfg.RunsDir, args[0])
			if err != nil {
				return exitWith(exitToolErrors, err)
			}
			fmt.Printf("%s %s %s at %s\n", ui.title("Run"), doc.RunID, colorStatus(ui, doc.Status), doc.CurrentStage)
			if len(doc.GateResults) == 0 {
				fmt.Println(ui.dim("  no gates evaluated yet"))
			}
			for _, gr := range doc.GateResults {
				mark := ui.ok("[PASS]")
				if !gr.Passed {
					mark = ui.err("[FAIL]")
				}
				fmt.Printf("  %s %-30s measured %d, threshold %d\n", mark, gr.Name, gr.Measured, gr.Threshold)
			}
			if doc.Status == processing.StatusError {
				return exitWith(exitRunError, errors.New("run ended with an error"))
			}
			return nil
		},
	}
}

func colorStatus(ui *ui, status string) string {
	switch status {
	case processing.StatusPassed:
		return ui.ok(status)
	case processing.StatusFailed, processing.StatusError:
		return ui.err(status)
	default:
		return ui.warn(status)
	}
}
