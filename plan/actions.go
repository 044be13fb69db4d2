package plan

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum-optimism/infra/op-narrator/runner"
)

// expand replaces ${name} and $name placeholders with run parameters.
// Unknown parameters expand to the empty string.
func expand(s string, params map[string]string) string {
	return os.Expand(s, func(key string) string {
		return params[key]
	})
}

// stepFunc builds the body of a declared step. Pending steps without an
// action get no body and are recorded as pending.
func stepFunc(s StepConfig) runner.StepFunc {
	if s.Action == "" {
		return nil
	}
	return func(ctx context.Context, h *runner.Harness) error {
		return runAction(ctx, h, s)
	}
}

func runAction(ctx context.Context, h *runner.Harness, s StepConfig) error {
	if h.Resource == nil || h.Pages == nil {
		return errors.New("no resource available")
	}
	target := expand(s.Target, h.Params)
	value := expand(s.Value, h.Params)

	switch s.Action {
	case ActionOpen:
		return h.Pages.Open(ctx, target)

	case ActionOpenHome:
		return h.Pages.OpenHomePage(ctx)

	case ActionExpectStatus:
		want, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid status %q: %w", value, err)
		}
		if got := h.Resource.StatusCode(); got != want {
			return fmt.Errorf("assertion failed: expected status %d, got %d at %s", want, got, h.Resource.CurrentURL())
		}
		return nil

	case ActionExpectText:
		if !strings.Contains(h.Resource.PageSource(), value) {
			return fmt.Errorf("assertion failed: text %q not found at %s", value, h.Resource.CurrentURL())
		}
		return nil

	case ActionExpectTitle:
		if got := h.Resource.Title(); got != value {
			return fmt.Errorf("assertion failed: expected title %q, got %q", value, got)
		}
		return nil

	case ActionExpectURL:
		want, err := h.Pages.Resolve(value)
		if err != nil {
			return err
		}
		if got := h.Resource.CurrentURL(); got != want {
			return fmt.Errorf("assertion failed: expected url %s, got %s", want, got)
		}
		return nil

	case ActionWait:
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid wait duration %q: %w", value, err)
		}
		h.Log.Debug("Waiting", "step", s.Name, "duration", d)
		select {
		case <-time.After(d):
			return nil
		case <-ctx.Done():
			return context.Cause(ctx)
		}

	default:
		return fmt.Errorf("unknown action %q", s.Action)
	}
}

// runSequence executes hook steps one after another, stopping at the first error
func runSequence(ctx context.Context, h *runner.Harness, steps []StepConfig) error {
	for _, s := range runner.OrderSteps(toSteps(steps)) {
		if s.Pending || s.Run == nil {
			continue
		}
		if err := s.Run(ctx, h); err != nil {
			return fmt.Errorf("%s: %w", s.Name, err)
		}
	}
	return nil
}

func toSteps(configs []StepConfig) []runner.Step {
	steps := make([]runner.Step, 0, len(configs))
	for _, c := range configs {
		steps = append(steps, runner.Step{
			Name:    c.Name,
			Order:   c.Order,
			Pending: c.Pending,
			Run:     stepFunc(c),
		})
	}
	return steps
}
