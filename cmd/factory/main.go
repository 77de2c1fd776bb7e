package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/PlastyPesa/NeoXten-Automation-Framework-sub001/pkg/api"
	"github.com/PlastyPesa/NeoXten-Automation-Framework-sub001/pkg/logging"
	"github.com/PlastyPesa/NeoXten-Automation-Framework-sub001/pkg/processing"
)

var version = "dev"

const (
	_ = iota
	exitUsage
	exitDotenvError
	exitLoadConfigurationFailed
	exitLoadPlanFailed
	exitLoadContextFailed
	exitRunFailed
	exitRunError
	exitAssetsFailed
	exitEvidenceBroken
	exitToolErrors
)

// exitError carries the process exit code out of a command.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func exitWith(code int, err error) error {
	return &exitError{code: code, err: err}
}

type ui struct {
	title func(a ...any) string
	ok    func(a ...any) string
	warn  func(a ...any) string
	err   func(a ...any) string
	dim   func(a ...any) string
}

func newUI() *ui {
	return &ui{
		title: color.New(color.FgHiCyan, color.Bold).SprintFunc(),
		ok:    color.New(color.FgGreen, color.Bold).SprintFunc(),
		warn:  color.New(color.FgYellow).SprintFunc(),
		err:   color.New(color.FgRed, color.Bold).SprintFunc(),
		dim:   color.New(color.FgHiBlack).SprintFunc(),
	}
}

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configFile  string
	contextFile string
	envFile     string
	loggingType string
	logLevel    string
}

func main() {
	var g globalFlags
	ui := newUI()

	root := &cobra.Command{
		Use:           "factory",
		Short:         "App factory pipeline",
		Long:          "Runs the build, assemble and security pipeline over a plan and packages store assets.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&g.configFile, "config", "", "factory.yaml configuration file")
	pf.StringVar(&g.contextFile, "context-file", "", "YAML file of extra prompt variables")
	pf.StringVar(&g.envFile, "env-file", ".env", "dotenv file loaded before the configuration")
	pf.StringVar(&g.loggingType, "logging-type", logging.Auto, "logging type: auto, json, text or tint")
	pf.StringVar(&g.logLevel, "log-level", "info", "logging level: debug, info, warn, error")

	root.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error {
		if err := logging.Initialize(g.loggingType, g.logLevel); err != nil {
			return exitWith(exitUsage, err)
		}
		return includeEnv(g.envFile)
	}

	root.AddCommand(
		runCmd(&g, ui),
		assetsCmd(&g, ui),
		evidenceCmd(&g, ui),
		validateCmd(&g, ui),
		runsCmd(&g, ui),
		statusCmd(&g, ui),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, ui.err("[ERROR]"), err.Error())
		var ee *exitError
		if errors.As(err, &ee) {
			os.Exit(ee.code)
		}
		os.Exit(exitUsage)
	}
}

func includeEnv(filename string) error {
	err := godotenv.Load(filename)
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Error("failed to load .env", "filename", filename, "error", err)
			return exitWith(exitDotenvError, err)
		}
		slog.Debug("no .env file found", "filename", filename)
		return nil
	}
	slog.Info("using .env file", "filename", filename)
	return nil
}

// loadConfig reads the configuration and layers the context file over the
// builder's prompt context.
func loadConfig(g *globalFlags) (*api.Config, error) {
	cfg, err := api.LoadConfig(g.configFile)
	if err != nil {
		slog.Error("failed to load configuration", "filename", g.configFile, "error", err)
		return nil, exitWith(exitLoadConfigurationFailed, err)
	}
	if g.contextFile != "" {
		vars, err := processing.LoadPromptContext(g.contextFile)
		if err != nil {
			slog.Error("failed to load context file", "filename", g.contextFile, "error", err)
			return nil, exitWith(exitLoadContextFailed, err)
		}
		processing.ApplyPromptContext(cfg, vars)
	}
	return cfg, nil
}
