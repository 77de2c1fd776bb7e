package api

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultResizeCommand   = `magick {{ .Source | shquote }} -resize {{ .Width }}x{{ .Height }}! {{ .Output | shquote }}`
	DefaultIdentifyCommand = `magick identify -format '%w %h' {{ .Path | shquote }}`
	DefaultAuditCommand    = "npm audit --json"

	DefaultSystemPrompt = "You are a senior engineer generating source files for a project. " +
		"Reply with a single JSON object and nothing else."
	DefaultPromptTemplate = `Project stack: {{ .Stack.Name }}
Work unit: {{ .Unit.ID }}
Description: {{ .Unit.Description }}
{{- if .Unit.FeatureIDs }}
Features: {{ .Unit.FeatureIDs | join ", " }}
{{- end }}
{{- range .Features }}
- {{ .ID }}: {{ .Title }}{{ if .Description }} ({{ .Description }}){{ end }}
{{- end }}

Return JSON of the form {"files": [{"path": "relative/path", "content": "file content"}]}.
Paths are relative to the project root.`
)

// DefaultSecretPatterns are matched line by line by the secret scanner.
var DefaultSecretPatterns = []string{
	`AKIA[0-9A-Z]{16}`,
	`-----BEGIN (RSA |EC |OPENSSH |DSA )?PRIVATE KEY-----`,
	`sk-[A-Za-z0-9_-]{20,}`,
	`gh[pousr]_[A-Za-z0-9]{36,}`,
	`xox[baprs]-[A-Za-z0-9-]{10,}`,
	`(?i)(api[_-]?key|secret|password)\s*[:=]\s*['"][^'"\s]{12,}['"]`,
}

// LoadConfig reads factory.yaml, applies environment overrides and defaults, and validates.
// An empty filename yields the defaults.
func LoadConfig(filename string) (*Config, error) {
	var c Config
	if filename != "" {
		data, err := os.ReadFile(filename)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &c); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
		absPath, err := filepath.Abs(filename)
		if err != nil {
			return nil, fmt.Errorf("resolving absolute path: %w", err)
		}
		c.FilePath = absPath
	}

	c.applyEnv()
	c.applyDefaults()

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validating config %s: %w", filename, err)
	}

	slog.Debug("config loaded", "file", c.FilePath, "projectDir", c.Project.Dir, "evidenceSink", c.Evidence.Sink)
	return &c, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("FACTORY_PROJECT_DIR"); v != "" {
		c.Project.Dir = v
	}
	if v := os.Getenv("FACTORY_RUNS_DIR"); v != "" {
		c.RunsDir = v
	}
	if v := os.Getenv("FACTORY_EVIDENCE_SINK"); v != "" {
		c.Evidence.Sink = v
	}
	if v := os.Getenv("FACTORY_REDIS_ADDR"); v != "" {
		c.Evidence.RedisAddr = v
	}
	if v := os.Getenv("FACTORY_LLM_MODEL"); v != "" {
		c.LLM.Model = v
	}
	if v := os.Getenv("FACTORY_LLM_BASE_URL"); v != "" {
		c.LLM.BaseURL = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" && c.LLM.APIKey == "" {
		c.LLM.APIKey = v
	}
}

func (c *Config) applyDefaults() {
	if c.Project.Dir == "" {
		c.Project.Dir = "build/app"
	}
	if c.RunsDir == "" {
		c.RunsDir = "runs"
	}
	if c.Evidence.Sink == "" {
		c.Evidence.Sink = SinkNDJSON
	}
	if c.Evidence.RedisAddr == "" {
		c.Evidence.RedisAddr = "localhost:6379"
	}
	if c.Evidence.RedisKeyPrefix == "" {
		c.Evidence.RedisKeyPrefix = "factory:evidence:"
	}
	if c.LLM.Provider == "" {
		c.LLM.Provider = ProviderOpenAI
	}
	if c.LLM.Model == "" {
		c.LLM.Model = "gpt-4o"
	}
	if c.Builder.Timeout <= 0 {
		c.Builder.Timeout = 20 * time.Minute
	}
	if c.Builder.SystemPrompt == "" {
		c.Builder.SystemPrompt = DefaultSystemPrompt
	}
	if c.Builder.PromptTemplate == "" {
		c.Builder.PromptTemplate = DefaultPromptTemplate
	}
	if c.Builder.MaxTokens <= 0 {
		c.Builder.MaxTokens = 8192
	}
	if c.Assembler.Timeout <= 0 {
		c.Assembler.Timeout = 15 * time.Minute
	}
	if c.Assembler.StderrTailChars <= 0 {
		c.Assembler.StderrTailChars = 500
	}
	if c.Security.Timeout <= 0 {
		c.Security.Timeout = 5 * time.Minute
	}
	if c.Security.AuditCommand == "" {
		c.Security.AuditCommand = DefaultAuditCommand
	}
	if len(c.Security.SecretPatterns) == 0 {
		c.Security.SecretPatterns = DefaultSecretPatterns
	}
	if len(c.Security.Exclude) == 0 {
		c.Security.Exclude = []string{"node_modules/**", ".git/**", "dist/**", "**/*.png", "**/*.jpg"}
	}
	if c.Assets.Timeout <= 0 {
		c.Assets.Timeout = 5 * time.Minute
	}
	if c.Assets.ResizeCommand == "" {
		c.Assets.ResizeCommand = DefaultResizeCommand
	}
	if c.Assets.IdentifyCommand == "" {
		c.Assets.IdentifyCommand = DefaultIdentifyCommand
	}
	if c.Assets.Platforms == nil {
		c.Assets.Platforms = DefaultPlatforms()
	}
	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = "factory"
	}
}

// LoadPlan reads a plan.yaml file, sets FilePath, and validates it.
func LoadPlan(filename string) (*PlanFile, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("reading plan file: %w", err)
	}

	var p PlanFile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parsing plan file: %w", err)
	}

	absPath, err := filepath.Abs(filename)
	if err != nil {
		return nil, fmt.Errorf("resolving absolute path: %w", err)
	}
	p.FilePath = absPath

	if problems := p.Problems(); len(problems) > 0 {
		return nil, fmt.Errorf("validating plan %s: %s", filename, strings.Join(problems, "; "))
	}

	return &p, nil
}
