package harness

import (
	"context"
	"fmt"
)

// SuiteResult summarises a directory of scenarios.
type SuiteResult struct {
	Total    int            `json:"total"`
	Passed   int            `json:"passed"`
	Failed   int            `json:"failed"`
	Failures []SuiteFailure `json:"failures,omitempty"`
}

// SuiteFailure is one scenario that did not pass.
type SuiteFailure struct {
	Scenario string   `json:"scenario"`
	Path     string   `json:"path"`
	Errors   []string `json:"errors"`
}

// RunDir loads and runs every scenario file in dir.
//
// A scenario that fails to load or execute counts as a failure; RunDir
// itself errors only when dir cannot be read.
func RunDir(ctx context.Context, dir string) (*SuiteResult, error) {
	paths, err := FindScenarios(dir)
	if err != nil {
		return nil, err
	}
	return RunFiles(ctx, paths), nil
}

// RunFiles runs the given scenario files in order.
func RunFiles(ctx context.Context, paths []string) *SuiteResult {
	result := &SuiteResult{}
	for _, path := range paths {
		result.Total++

		scenario, err := LoadScenario(path)
		if err != nil {
			result.fail("", path, fmt.Sprintf("failed to load scenario: %v", err))
			continue
		}

		run, err := RunContext(ctx, scenario)
		if err != nil {
			result.fail(scenario.Name, path, fmt.Sprintf("scenario execution failed: %v", err))
			continue
		}
		if !run.Pass {
			result.fail(scenario.Name, path, run.Errors...)
			continue
		}
		result.Passed++
	}
	return result
}

func (r *SuiteResult) fail(name, path string, errs ...string) {
	r.Failed++
	r.Failures = append(r.Failures, SuiteFailure{Scenario: name, Path: path, Errors: errs})
}
