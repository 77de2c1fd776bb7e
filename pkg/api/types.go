package api

import (
	"time"

	"github.com/PlastyPesa/NeoXten-Automation-Framework-sub001/pkg/runstate"
)

const (
	StageBuilder   = "builder"
	StageAssembler = "assembler"
	StageSecurity  = "security"
	StageAssets    = "assets"

	TaskBuildUnits    = "build_units"
	TaskAssemble      = "assemble"
	TaskSecurityAudit = "security_audit"
	TaskPackageAssets = "package_assets"

	SinkNone   = "none"
	SinkNDJSON = "ndjson"
	SinkSQLite = "sqlite"
	SinkRedis  = "redis"

	PlatformAndroid         = "android"
	PlatformChromeExtension = "chrome_extension"
	PlatformIOS             = "ios"

	ProviderOpenAI = "openai"
)

// Config is the factory.yaml configuration format.
type Config struct {
	Project   ProjectConfig   `yaml:"project"`
	RunsDir   string          `yaml:"runsDir"`
	Evidence  EvidenceConfig  `yaml:"evidence"`
	LLM       LLMConfig       `yaml:"llm"`
	Builder   BuilderConfig   `yaml:"builder"`
	Assembler AssemblerConfig `yaml:"assembler"`
	Security  SecurityConfig  `yaml:"security"`
	Assets    AssetsConfig    `yaml:"assets"`
	Tracing   TracingConfig   `yaml:"tracing"`

	// Set by the loader, not from YAML.
	FilePath string `yaml:"-"`
}

// ProjectConfig locates the generated project on disk.
type ProjectConfig struct {
	Dir string `yaml:"dir"`
}

// EvidenceConfig selects where evidence entries are mirrored.
type EvidenceConfig struct {
	Sink           string `yaml:"sink"`
	Path           string `yaml:"path"`
	RedisAddr      string `yaml:"redisAddr"`
	RedisPassword  string `yaml:"redisPassword"`
	RedisKeyPrefix string `yaml:"redisKeyPrefix"`
}

// LLMConfig configures the inference provider.
type LLMConfig struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
	BaseURL  string `yaml:"baseUrl"`
	APIKey   string `yaml:"apiKey"`
}

// BuilderConfig configures the code-generation stage.
type BuilderConfig struct {
	Timeout        time.Duration `yaml:"timeout"`
	SystemPrompt   string        `yaml:"systemPrompt"`
	PromptTemplate string        `yaml:"promptTemplate"`
	MaxTokens      int           `yaml:"maxTokens"`
	Temperature    float64       `yaml:"temperature"`
	// Context is exposed to the prompt template as .Context.
	Context map[string]any `yaml:"context"`
}

// AssemblerConfig configures the build stage.
type AssemblerConfig struct {
	Timeout         time.Duration `yaml:"timeout"`
	StderrTailChars int           `yaml:"stderrTailChars"`
}

// SecurityConfig configures the audit stage.
type SecurityConfig struct {
	Timeout        time.Duration `yaml:"timeout"`
	AuditCommand   string        `yaml:"auditCommand"`
	SecretPatterns []string      `yaml:"secretPatterns"`
	Include        []string      `yaml:"include"`
	Exclude        []string      `yaml:"exclude"`
}

// AssetsConfig configures store asset packaging.
type AssetsConfig struct {
	Timeout         time.Duration              `yaml:"timeout"`
	ResizeCommand   string                     `yaml:"resizeCommand"`
	IdentifyCommand string                     `yaml:"identifyCommand"`
	Platforms       map[string]PlatformTargets `yaml:"platforms"`
}

// PlatformTargets lists the sizes one store platform requires.
type PlatformTargets struct {
	Screenshots    []Size `yaml:"screenshots"`
	FeatureGraphic *Size  `yaml:"featureGraphic,omitempty"`
}

// Size is a pixel dimension.
type Size struct {
	Name   string `yaml:"name" json:"name,omitempty"`
	Width  int    `yaml:"width" json:"width"`
	Height int    `yaml:"height" json:"height"`
}

// TracingConfig configures OTLP trace export.
type TracingConfig struct {
	Enabled     bool    `yaml:"enabled"`
	ServiceName string  `yaml:"serviceName"`
	Endpoint    string  `yaml:"endpoint"`
	Insecure    bool    `yaml:"insecure"`
	SampleRatio float64 `yaml:"sampleRatio"`
}

// PlanFile is the plan.yaml input format.
type PlanFile struct {
	Plan      runstate.Plan       `yaml:"plan"`
	WorkUnits []runstate.WorkUnit `yaml:"workUnits"`

	// Set by the loader, not from YAML.
	FilePath string `yaml:"-"`
}

// DefaultPlatforms is the built-in store target table.
func DefaultPlatforms() map[string]PlatformTargets {
	return map[string]PlatformTargets{
		PlatformAndroid: {
			Screenshots:    []Size{{Name: "phone", Width: 1080, Height: 1920}},
			FeatureGraphic: &Size{Name: "feature-graphic", Width: 1024, Height: 500},
		},
		PlatformChromeExtension: {
			Screenshots: []Size{
				{Name: "screenshot", Width: 1280, Height: 800},
				{Name: "small", Width: 640, Height: 400},
			},
		},
		PlatformIOS: {
			Screenshots: []Size{{Name: "iphone-6.7", Width: 1290, Height: 2796}},
		},
	}
}
