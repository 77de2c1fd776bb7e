package stages

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"sort"
	"strconv"
	"strings"
	"text/template"
	"time"

	"github.com/PlastyPesa/NeoXten-Automation-Framework-sub001/pkg/api"
	"github.com/PlastyPesa/NeoXten-Automation-Framework-sub001/pkg/evidence"
	"github.com/PlastyPesa/NeoXten-Automation-Framework-sub001/pkg/fsys"
	"github.com/PlastyPesa/NeoXten-Automation-Framework-sub001/pkg/metrics"
	"github.com/PlastyPesa/NeoXten-Automation-Framework-sub001/pkg/runstate"
	"github.com/PlastyPesa/NeoXten-Automation-Framework-sub001/pkg/shell"
	"github.com/PlastyPesa/NeoXten-Automation-Framework-sub001/pkg/workers"
)

// ValidationReportFile is written to the output directory by every run.
const ValidationReportFile = "validation-report.json"

// AssetRequest is the Task.Input of a package_assets dispatch.
type AssetRequest struct {
	Screenshots    []string `json:"screenshots"`
	FeatureGraphic string   `json:"featureGraphic,omitempty"`
	OutputDir      string   `json:"outputDir"`
	Platforms      []string `json:"platforms"`
}

// AssetCheck compares one generated file against its required size.
type AssetCheck struct {
	Platform       string `json:"platform"`
	Target         string `json:"target"`
	Source         string `json:"source"`
	Output         string `json:"output"`
	ExpectedWidth  int    `json:"expectedWidth"`
	ExpectedHeight int    `json:"expectedHeight"`
	ActualWidth    int    `json:"actualWidth"`
	ActualHeight   int    `json:"actualHeight"`
	Passed         bool   `json:"passed"`
	Error          string `json:"error,omitempty"`
}

// AssetReport is the persisted validation report.
type AssetReport struct {
	Platforms   []string     `json:"platforms"`
	Checks      []AssetCheck `json:"checks"`
	AllPassed   bool         `json:"allPassed"`
	GeneratedAt time.Time    `json:"generatedAt"`
	ReportPath  string       `json:"-"`
}

// Failed counts the checks that did not pass.
func (r AssetReport) Failed() int {
	n := 0
	for _, c := range r.Checks {
		if !c.Passed {
			n++
		}
	}
	return n
}

// AssetPipeline resizes store screenshots and verifies the results by re-measuring them.
type AssetPipeline struct {
	runner    shell.Runner
	fs        fsys.FS
	timeout   time.Duration
	platforms map[string]api.PlatformTargets
	resize    *template.Template
	identify  *template.Template
	now       func() time.Time

	// Progress, when set, is called after every check.
	Progress func(done, total int)
}

// NewAssetPipeline creates the asset packaging stage.
func NewAssetPipeline(runner shell.Runner, fs fsys.FS, cfg api.AssetsConfig) (*AssetPipeline, error) {
	resizeText := cfg.ResizeCommand
	if resizeText == "" {
		resizeText = api.DefaultResizeCommand
	}
	identifyText := cfg.IdentifyCommand
	if identifyText == "" {
		identifyText = api.DefaultIdentifyCommand
	}
	resize, err := parseTemplate("resize", resizeText)
	if err != nil {
		return nil, err
	}
	identify, err := parseTemplate("identify", identifyText)
	if err != nil {
		return nil, err
	}
	platforms := cfg.Platforms
	if platforms == nil {
		platforms = api.DefaultPlatforms()
	}
	return &AssetPipeline{
		runner:    runner,
		fs:        fs,
		timeout:   cfg.Timeout,
		platforms: platforms,
		resize:    resize,
		identify:  identify,
		now:       time.Now,
	}, nil
}

func (p *AssetPipeline) ID() string                 { return api.StageAssets }
func (p *AssetPipeline) Accepts() string            { return api.TaskPackageAssets }
func (p *AssetPipeline) Requires() []runstate.Slice { return nil }
func (p *AssetPipeline) Produces() []runstate.Slice { return nil }
func (p *AssetPipeline) Timeout() time.Duration     { return p.timeout }

func (p *AssetPipeline) Execute(ctx context.Context, task workers.Task, _ *runstate.RunState, chain *evidence.Chain) workers.Result {
	req, err := assetRequest(task.Input)
	if err != nil {
		return workers.Failed("%v", err)
	}
	report, err := p.Run(ctx, req, chain)
	if err != nil {
		return workers.Failed("%v", err)
	}
	if !report.AllPassed {
		return workers.Failed("%d of %d asset checks failed, see %s", report.Failed(), len(report.Checks), report.ReportPath)
	}

	artifacts := make([]workers.Artifact, 0, len(report.Checks)+1)
	for _, c := range report.Checks {
		artifacts = append(artifacts, workers.Artifact{Name: c.Platform + "/" + c.Target, Path: c.Output})
	}
	artifacts = append(artifacts, workers.Artifact{Name: "validation-report", Path: report.ReportPath})
	return workers.Done(artifacts...)
}

func assetRequest(input any) (AssetRequest, error) {
	switch v := input.(type) {
	case AssetRequest:
		return v, nil
	case *AssetRequest:
		if v != nil {
			return *v, nil
		}
	}
	return AssetRequest{}, fmt.Errorf("package_assets task input must be an AssetRequest, got %T", input)
}

type job struct {
	platform string
	target   api.Size
	source   string
	output   string
}

// Run resizes every source to every size of the selected platforms and writes
// the validation report. A check passes only when the re-measured output size
// equals the target.
func (p *AssetPipeline) Run(ctx context.Context, req AssetRequest, chain *evidence.Chain) (AssetReport, error) {
	jobs, err := p.plan(req)
	if err != nil {
		return AssetReport{}, err
	}
	if err := p.fs.MkdirAll(req.OutputDir); err != nil {
		return AssetReport{}, err
	}
	if chain != nil {
		if err := note(ctx, chain, p.ID(), api.StageAssets, "asset packaging started", map[string]any{
			"platforms":   slices.Clone(req.Platforms),
			"screenshots": len(req.Screenshots),
			"outputs":     len(jobs),
		}); err != nil {
			return AssetReport{}, err
		}
	}

	report := AssetReport{Platforms: req.Platforms, Checks: make([]AssetCheck, 0, len(jobs)), AllPassed: true}
	for _, j := range jobs {
		check := p.process(ctx, j)
		result := "pass"
		if !check.Passed {
			result = "fail"
			report.AllPassed = false
			slog.Warn("asset check failed", "platform", j.platform, "output", j.output,
				"expected", fmt.Sprintf("%dx%d", check.ExpectedWidth, check.ExpectedHeight),
				"actual", fmt.Sprintf("%dx%d", check.ActualWidth, check.ActualHeight), "error", check.Error)
		}
		metrics.AssetChecksTotal.WithLabelValues(j.platform, result).Inc()
		report.Checks = append(report.Checks, check)
		if p.Progress != nil {
			p.Progress(len(report.Checks), len(jobs))
		}
	}
	report.GeneratedAt = p.now().UTC()

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return AssetReport{}, fmt.Errorf("encoding validation report: %w", err)
	}
	report.ReportPath = filepath.Join(req.OutputDir, ValidationReportFile)
	if err := p.fs.WriteFile(report.ReportPath, data); err != nil {
		return AssetReport{}, fmt.Errorf("writing validation report: %w", err)
	}

	if chain != nil {
		if err := note(ctx, chain, p.ID(), api.StageAssets, "asset packaging finished", map[string]any{
			"checks":    len(report.Checks),
			"failed":    report.Failed(),
			"allPassed": report.AllPassed,
			"report":    report.ReportPath,
		}); err != nil {
			return report, err
		}
	}

	slog.Info("asset packaging finished", "checks", len(report.Checks), "failed", report.Failed(), "allPassed", report.AllPassed)
	return report, nil
}

// plan expands the request into one job per (platform, size, source).
func (p *AssetPipeline) plan(req AssetRequest) ([]job, error) {
	if req.OutputDir == "" {
		return nil, errors.New("output directory is required")
	}
	if len(req.Platforms) == 0 {
		return nil, errors.New("at least one platform is required")
	}
	for _, src := range append(append([]string{}, req.Screenshots...), req.FeatureGraphic) {
		if src != "" && !p.fs.Exists(src) {
			return nil, fmt.Errorf("source %s does not exist", src)
		}
	}

	var jobs []job
	for _, platform := range req.Platforms {
		targets, ok := p.platforms[platform]
		if !ok {
			return nil, fmt.Errorf("unknown platform %q (known: %s)", platform, strings.Join(p.knownPlatforms(), ", "))
		}
		for i, src := range req.Screenshots {
			for _, size := range targets.Screenshots {
				name := fmt.Sprintf("%s-%02d%s", sizeName(size), i+1, outputExt(src))
				jobs = append(jobs, job{
					platform: platform,
					target:   size,
					source:   src,
					output:   filepath.Join(req.OutputDir, platform, name),
				})
			}
		}
		if req.FeatureGraphic != "" && targets.FeatureGraphic != nil {
			size := *targets.FeatureGraphic
			jobs = append(jobs, job{
				platform: platform,
				target:   size,
				source:   req.FeatureGraphic,
				output:   filepath.Join(req.OutputDir, platform, sizeName(size)+outputExt(req.FeatureGraphic)),
			})
		}
	}
	return jobs, nil
}

func (p *AssetPipeline) process(ctx context.Context, j job) AssetCheck {
	check := AssetCheck{
		Platform:       j.platform,
		Target:         sizeName(j.target),
		Source:         j.source,
		Output:         j.output,
		ExpectedWidth:  j.target.Width,
		ExpectedHeight: j.target.Height,
	}

	if err := p.fs.MkdirAll(filepath.Dir(j.output)); err != nil {
		check.Error = err.Error()
		return check
	}

	cmd, err := render(p.resize, map[string]any{
		"Source": j.source, "Output": j.output, "Width": j.target.Width, "Height": j.target.Height,
	})
	if err != nil {
		check.Error = err.Error()
		return check
	}
	res, err := p.runner.Run(ctx, cmd, "")
	if err != nil {
		check.Error = err.Error()
		return check
	}
	if res.ExitCode != 0 {
		check.Error = fmt.Sprintf("resize exited %d: %s", res.ExitCode, shell.Tail(res.Stderr, 200))
		return check
	}

	w, h, err := p.measure(ctx, j.output)
	if err != nil {
		check.Error = err.Error()
		return check
	}
	check.ActualWidth, check.ActualHeight = w, h
	check.Passed = w == j.target.Width && h == j.target.Height
	return check
}

// measure reads the real pixel size of path with the identify command.
func (p *AssetPipeline) measure(ctx context.Context, path string) (int, int, error) {
	cmd, err := render(p.identify, map[string]any{"Path": path})
	if err != nil {
		return 0, 0, err
	}
	res, err := p.runner.Run(ctx, cmd, "")
	if err != nil {
		return 0, 0, err
	}
	if res.ExitCode != 0 {
		return 0, 0, fmt.Errorf("identify exited %d: %s", res.ExitCode, shell.Tail(res.Stderr, 200))
	}
	return ParseDimensions(res.Stdout)
}

// ParseDimensions reads "W H" or "WxH".
func ParseDimensions(out string) (int, int, error) {
	fields := strings.FieldsFunc(strings.TrimSpace(out), func(r rune) bool {
		return r == ' ' || r == 'x' || r == '\t' || r == '\n'
	})
	if len(fields) < 2 {
		return 0, 0, fmt.Errorf("unexpected identify output %q", out)
	}
	w, err := strconv.Atoi(fields[0])
	if err != nil {
		return 0, 0, fmt.Errorf("parsing width from %q: %w", out, err)
	}
	h, err := strconv.Atoi(fields[1])
	if err != nil {
		return 0, 0, fmt.Errorf("parsing height from %q: %w", out, err)
	}
	return w, h, nil
}

func (p *AssetPipeline) knownPlatforms() []string {
	names := make([]string, 0, len(p.platforms))
	for name := range p.platforms {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func sizeName(s api.Size) string {
	if s.Name != "" {
		return s.Name
	}
	return fmt.Sprintf("%dx%d", s.Width, s.Height)
}

func outputExt(src string) string {
	if ext := strings.ToLower(filepath.Ext(src)); ext == ".jpg" || ext == ".jpeg" {
		return ext
	}
	return ".png"
}
