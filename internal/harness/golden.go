package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/gridsync/internal/ir"
)

// Snapshot renders the parts of a result that golden files pin down: per
// step, the summary, error code, state sequence, request size and bindings.
// Pass ids and request hashes are left out.
func Snapshot(name string, result *Result) ([]byte, error) {
	steps := make(ir.IRArray, len(result.Trace))
	for i, tr := range result.Trace {
		step := ir.IRObject{
			"action":   ir.IRString(tr.Action),
			"requests": ir.IRInt(tr.Requests),
		}
		if tr.Summary.Title != "" {
			step["title"] = ir.IRString(tr.Summary.Title)
		}
		if tr.Summary.Message != "" {
			step["message"] = ir.IRString(tr.Summary.Message)
		}
		if tr.ErrorCode != "" {
			step["error_code"] = ir.IRString(tr.ErrorCode)
		}
		if len(tr.States) > 0 {
			states := make(ir.IRArray, len(tr.States))
			for j, s := range tr.States {
				states[j] = ir.IRString(s)
			}
			step["states"] = states
		}
		if len(tr.Bindings) > 0 {
			bindings := make(ir.IRArray, len(tr.Bindings))
			for j, b := range tr.Bindings {
				bindings[j] = bindingObject(b)
			}
			step["bindings"] = bindings
		}
		if len(tr.Violations) > 0 {
			v := make(ir.IRArray, len(tr.Violations))
			for j, m := range tr.Violations {
				v[j] = ir.IRString(m)
			}
			step["violations"] = v
		}
		steps[i] = step
	}

	return ir.MarshalCanonical(ir.IRObject{
		"scenario_name": ir.IRString(name),
		"steps":         steps,
	})
}

func bindingObject(b ir.Binding) ir.IRObject {
	obj := ir.IRObject{
		"position":  ir.IRInt(b.Position),
		"operation": ir.IRString(b.Operation),
		"id":        ir.IRInt(b.ID),
	}
	if b.Version != nil {
		obj["version"] = ir.IRInt(*b.Version)
	}
	if b.PreviousID != nil {
		obj["previous_id"] = ir.IRInt(*b.PreviousID)
	}
	return obj
}

// RunWithGolden executes a scenario and compares its snapshot against a
// golden file stored in testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails.
// Test failure (via goldie) occurs if the snapshot doesn't match.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an existing result's snapshot against a golden
// file without re-running the scenario.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	snapshot, err := Snapshot(scenarioName, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, snapshot)
	return nil
}
