package plan

import (
	"context"
	"fmt"
	"maps"

	"github.com/ethereum-optimism/infra/op-narrator/runner"
)

// RunSpecs turns every case instance of the plan into an independent run.
// Runs are returned case by case, instances in declaration order.
func (p *Plan) RunSpecs() []runner.RunSpec {
	specs := make([]runner.RunSpec, 0, p.RunCount())
	for i := range p.Cases {
		c := &p.Cases[i]
		for _, inst := range c.instancesOf() {
			specs = append(specs, c.runSpec(inst))
		}
	}
	return specs
}

func (c *CaseConfig) runSpec(inst InstanceConfig) runner.RunSpec {
	params := make(map[string]string, len(c.Params)+len(inst.Params))
	maps.Copy(params, c.Params)
	maps.Copy(params, inst.Params)

	title := c.Title
	setup := c.Setup
	spec := runner.RunSpec{
		Title:      title,
		Instance:   inst.Name,
		Parameters: params,
		BaseURL:    expand(c.BaseURL, params),
		Steps:      toSteps(c.Steps),
	}

	spec.Before = func(ctx context.Context, h *runner.Harness) error {
		if inst.Name != "" {
			h.SetTitle(fmt.Sprintf("%s [%s]", title, inst.Name))
		}
		return runSequence(ctx, h, setup)
	}
	if len(c.Teardown) > 0 {
		teardown := c.Teardown
		spec.After = func(ctx context.Context, h *runner.Harness) error {
			return runSequence(ctx, h, teardown)
		}
	}
	return spec
}
