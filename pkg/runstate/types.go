package runstate

// Slice names one optional piece of a RunState.
type Slice string

const (
	SlicePlan           Slice = "plan"
	SliceWorkUnits      Slice = "workUnits"
	SliceBuildOutput    Slice = "buildOutput"
	SliceSecurityReport Slice = "securityReport"
)

// UnitStatus is the lifecycle state of a WorkUnit.
type UnitStatus string

const (
	UnitPending UnitStatus = "pending"
	UnitDone    UnitStatus = "done"
	UnitFailed  UnitStatus = "failed"
)

// Stack describes the technology stack the plan targets.
type Stack struct {
	Name      string   `json:"name" yaml:"name"`
	Framework string   `json:"framework,omitempty" yaml:"framework,omitempty"`
	Language  string   `json:"language,omitempty" yaml:"language,omitempty"`
	Platforms []string `json:"platforms,omitempty" yaml:"platforms,omitempty"`
}

// Feature is one entry of the plan's feature list.
type Feature struct {
	ID          string `json:"id" yaml:"id"`
	Title       string `json:"title" yaml:"title"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

// Plan is opaque to the pipeline beyond Stack.Name.
type Plan struct {
	Name     string    `json:"name,omitempty" yaml:"name,omitempty"`
	Stack    Stack     `json:"stack" yaml:"stack"`
	Features []Feature `json:"features,omitempty" yaml:"features,omitempty"`
}

// WorkUnit is one unit of generated-code work.
type WorkUnit struct {
	ID          string     `json:"id" yaml:"id"`
	Description string     `json:"description" yaml:"description"`
	FeatureIDs  []string   `json:"featureIds,omitempty" yaml:"featureIds,omitempty"`
	Status      UnitStatus `json:"status" yaml:"status"`
	OutputFiles []string   `json:"outputFiles,omitempty" yaml:"outputFiles,omitempty"`
}

// UnitPatch carries the fields UpdateWorkUnit may change. Nil fields are left alone.
type UnitPatch struct {
	Status      *UnitStatus
	OutputFiles []string
}

// BuildOutput is committed by the assembler after a successful build.
type BuildOutput struct {
	ProjectDir   string   `json:"projectDir"`
	BuildCommand string   `json:"buildCommand"`
	ExitCode     int      `json:"exitCode"`
	OutputFiles  []string `json:"outputFiles"`
}

// Vulnerability is a single dependency audit finding.
type Vulnerability struct {
	Severity    string `json:"severity"`
	Package     string `json:"package"`
	Description string `json:"description"`
}

// SecurityReport is committed by the security auditor on both pass and fail.
type SecurityReport struct {
	Vulnerabilities []Vulnerability `json:"vulnerabilities"`
	SecretsFound    int             `json:"secretsFound"`
	OverallPassed   bool            `json:"overallPassed"`
}
