package api

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/PlastyPesa/NeoXten-Automation-Framework-sub001/pkg/runstate"
)

var validSinks = map[string]bool{
	SinkNone:   true,
	SinkNDJSON: true,
	SinkSQLite: true,
	SinkRedis:  true,
}

// Validate checks the configuration and reports every problem at once.
func (c *Config) Validate() error {
	var errs []string

	if !validSinks[c.Evidence.Sink] {
		errs = append(errs, fmt.Sprintf("evidence.sink %q is not valid", c.Evidence.Sink))
	}
	if c.LLM.Provider != ProviderOpenAI {
		errs = append(errs, fmt.Sprintf("llm.provider %q is not supported", c.LLM.Provider))
	}
	if c.Builder.Temperature < 0 || c.Builder.Temperature > 2 {
		errs = append(errs, "builder.temperature must be within [0, 2]")
	}
	for i, p := range c.Security.SecretPatterns {
		if _, err := regexp.Compile(p); err != nil {
			errs = append(errs, fmt.Sprintf("security.secretPatterns[%d]: %v", i, err))
		}
	}
	for name, targets := range c.Assets.Platforms {
		for i, s := range targets.Screenshots {
			if s.Width <= 0 || s.Height <= 0 {
				errs = append(errs, fmt.Sprintf("assets.platforms.%s.screenshots[%d]: width and height must be positive", name, i))
			}
		}
		if fg := targets.FeatureGraphic; fg != nil && (fg.Width <= 0 || fg.Height <= 0) {
			errs = append(errs, fmt.Sprintf("assets.platforms.%s.featureGraphic: width and height must be positive", name))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Problems lists every validation error of a plan file; empty means valid.
func (p *PlanFile) Problems() []string {
	var errs []string

	if strings.TrimSpace(p.Plan.Stack.Name) == "" {
		errs = append(errs, "plan.stack.name is required")
	}

	features := make(map[string]bool, len(p.Plan.Features))
	for i, f := range p.Plan.Features {
		if f.ID == "" {
			errs = append(errs, fmt.Sprintf("feature %d: id is required", i))
			continue
		}
		if features[f.ID] {
			errs = append(errs, fmt.Sprintf("feature %q: duplicate id", f.ID))
		}
		features[f.ID] = true
	}

	units := make(map[string]int)
	for i, u := range p.WorkUnits {
		if u.ID == "" {
			errs = append(errs, fmt.Sprintf("work unit %d: id is required", i))
			continue
		}
		if prev, exists := units[u.ID]; exists {
			errs = append(errs, fmt.Sprintf("work unit %d: duplicate id %q (first defined at %d)", i, u.ID, prev))
		}
		units[u.ID] = i

		switch u.Status {
		case "", runstate.UnitPending, runstate.UnitDone, runstate.UnitFailed:
		default:
			errs = append(errs, fmt.Sprintf("work unit %q: unknown status %q", u.ID, u.Status))
		}
		for _, fid := range u.FeatureIDs {
			if len(features) > 0 && !features[fid] {
				errs = append(errs, fmt.Sprintf("work unit %q: unknown feature %q", u.ID, fid))
			}
		}
	}

	return errs
}
