package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"syscall"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/PlastyPesa/NeoXten-Automation-Framework-sub001/pkg/api"
	"github.com/PlastyPesa/NeoXten-Automation-Framework-sub001/pkg/evidence"
	"github.com/PlastyPesa/NeoXten-Automation-Framework-sub001/pkg/fsys"
	"github.com/PlastyPesa/NeoXten-Automation-Framework-sub001/pkg/shell"
	"github.com/PlastyPesa/NeoXten-Automation-Framework-sub001/pkg/stages"
)

func assetsCmd(g *globalFlags, ui *ui) *cobra.Command {
	var (
		screenshots    []string
		featureGraphic string
		outputDir      string
		platforms      []string
	)

	cmd := &cobra.Command{
		Use:   "assets",
		Short: "Resize screenshots to store sizes and verify the results",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(g)
			if err != nil {
				return err
			}
			sources, err := expandGlobs(screenshots)
			if err != nil {
				return exitWith(exitUsage, err)
			}
			if len(sources) == 0 {
				return exitWith(exitUsage, errors.New("no screenshots matched"))
			}

			p, err := stages.NewAssetPipeline(shell.NewExec(), fsys.OS{}, cfg.Assets)
			if err != nil {
				return exitWith(exitLoadConfigurationFailed, err)
			}

			// each packaging run starts a new chain
			evidencePath := filepath.Join(outputDir, evidence.NDJSONFilename)
			if err := os.Remove(evidencePath); err != nil && !os.IsNotExist(err) {
				return exitWith(exitToolErrors, err)
			}
			sink, err := evidence.NewNDJSONSink(evidencePath)
			if err != nil {
				return exitWith(exitToolErrors, err)
			}
			defer func() {
				if err := sink.Close(); err != nil {
					slog.Warn("closing evidence sink", "error", err)
				}
			}()
			chain := evidence.NewChain(evidence.WithSink(sink))

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			if cfg.Assets.Timeout > 0 {
				var tcancel context.CancelFunc
				ctx, tcancel = context.WithTimeout(ctx, cfg.Assets.Timeout)
				defer tcancel()
			}

			var bar *progressbar.ProgressBar
			p.Progress = func(done, total int) {
				if bar == nil {
					bar = progressbar.NewOptions(total,
						progressbar.OptionSetDescription("Packaging assets"),
						progressbar.OptionSetWidth(18),
						progressbar.OptionShowCount(),
						progressbar.OptionClearOnFinish(),
					)
				}
				_ = bar.Set(done)
			}

			report, err := p.Run(ctx, stages.AssetRequest{
				Screenshots:    sources,
				FeatureGraphic: featureGraphic,
				OutputDir:      outputDir,
				Platforms:      platforms,
			}, chain)
			if bar != nil {
				_ = bar.Finish()
			}
			if err != nil {
				return exitWith(exitToolErrors, err)
			}

			printAssetReport(ui, report)
			if !report.AllPassed {
				return exitWith(exitAssetsFailed, fmt.Errorf("%d of %d asset checks failed", report.Failed(), len(report.Checks)))
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringSliceVar(&screenshots, "screenshots", nil, "screenshot files or doublestar globs")
	f.StringVar(&featureGraphic, "feature-graphic", "", "source image for platforms that require a feature graphic")
	f.StringVar(&outputDir, "output-dir", "store-assets", "directory receiving resized assets and the validation report")
	f.StringSliceVar(&platforms, "platforms", []string{api.PlatformAndroid}, "target platforms")
	_ = cmd.MarkFlagRequired("screenshots")
	return cmd
}

// expandGlobs resolves each pattern against the filesystem. Patterns without
// glob meta characters are kept as-is so a missing file is reported by the
// pipeline rather than silently dropped.
func expandGlobs(patterns []string) ([]string, error) {
	var out []string
	for _, pattern := range patterns {
		if !hasMeta(pattern) {
			out = append(out, pattern)
			continue
		}
		matches, err := doublestar.FilepathGlob(pattern, doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("expanding %q: %w", pattern, err)
		}
		slices.Sort(matches)
		out = append(out, matches...)
	}
	return slices.Compact(out), nil
}

func hasMeta(pattern string) bool {
	for _, c := range pattern {
		switch c {
		case '*', '?', '[', '{':
			return true
		}
	}
	return false
}

func printAssetReport(ui *ui, report stages.AssetReport) {
	for _, c := range report.Checks {
		mark := ui.ok("[OK]  ")
		if !c.Passed {
			mark = ui.err("[FAIL]")
		}
		actual := fmt.Sprintf("%dx%d", c.ActualWidth, c.ActualHeight)
		if c.Error != "" {
			actual = c.Error
		}
		fmt.Printf("  %s %-16s %-12s %s %s\n", mark, c.Platform, c.Target, c.Output,
			ui.dim(fmt.Sprintf("want %dx%d, got %s", c.ExpectedWidth, c.ExpectedHeight, actual)))
	}
	fmt.Printf("%s %s\n", ui.title("Report"), report.ReportPath)
}
