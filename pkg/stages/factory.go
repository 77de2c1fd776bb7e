package stages

import (
	"fmt"

	"github.com/PlastyPesa/NeoXten-Automation-Framework-sub001/pkg/api"
	"github.com/PlastyPesa/NeoXten-Automation-Framework-sub001/pkg/scan"
	"github.com/PlastyPesa/NeoXten-Automation-Framework-sub001/pkg/workers"
)

// IDs lists every stage NewStage knows, in pipeline order.
var IDs = []string{api.StageBuilder, api.StageAssembler, api.StageSecurity, api.StageAssets}

// NewStage creates the stage with the given id from the config.
func NewStage(id string, cfg *api.Config, deps Deps) (workers.Contract, error) {
	switch id {
	case api.StageBuilder:
		b, err := NewBuilder(deps.Inference, deps.FS, cfg.Project.Dir, cfg.Builder)
		if err != nil {
			return nil, err
		}
		return b, nil
	case api.StageAssembler:
		return NewAssembler(deps.Shell, cfg.Project.Dir, cfg.Assembler), nil
	case api.StageSecurity:
		auditor := deps.Auditor
		if auditor == nil {
			auditor = scan.NewNPMAudit(deps.Shell, cfg.Security.AuditCommand)
		}
		scanner := deps.Scanner
		if scanner == nil {
			ps, err := scan.NewPatternScanner(cfg.Security.SecretPatterns, cfg.Security.Include, cfg.Security.Exclude)
			if err != nil {
				return nil, err
			}
			scanner = ps
		}
		return NewSecurityAuditor(auditor, scanner, cfg.Security.Timeout), nil
	case api.StageAssets:
		p, err := NewAssetPipeline(deps.Shell, deps.FS, cfg.Assets)
		if err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unknown stage: %s", id)
	}
}

// Register creates every stage in IDs and registers it with reg. Stages whose
// dependencies are absent are skipped: the builder without an inference client.
func Register(reg *workers.Registry, cfg *api.Config, deps Deps) error {
	for _, id := range IDs {
		if id == api.StageBuilder && deps.Inference == nil {
			continue
		}
		stage, err := NewStage(id, cfg, deps)
		if err != nil {
			return fmt.Errorf("creating stage %s: %w", id, err)
		}
		if err := reg.Register(stage); err != nil {
			return err
		}
	}
	return nil
}
