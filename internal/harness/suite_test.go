package harness

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunDirTestdata(t *testing.T) {
	result, err := RunDir(context.Background(), "testdata/scenarios")
	require.NoError(t, err)

	assert.Equal(t, 6, result.Total)
	assert.Equal(t, result.Total, result.Passed, "failures: %+v", result.Failures)
	assert.Empty(t, result.Failures)
}

func TestRunDirCollectsFailures(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a_ok.yaml"), []byte(minimalScenario), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b_broken.yaml"), []byte("name: [\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "c_failing.yaml"), []byte(minimalScenario+`    expect:
      title: Warning
`), 0o644))

	result, err := RunDir(context.Background(), dir)
	require.NoError(t, err)

	assert.Equal(t, 3, result.Total)
	assert.Equal(t, 1, result.Passed)
	assert.Equal(t, 2, result.Failed)
	require.Len(t, result.Failures, 2)
	assert.Contains(t, result.Failures[0].Errors[0], "failed to load scenario")
	assert.Equal(t, "minimal", result.Failures[1].Scenario)
}

func TestRunDirMissing(t *testing.T) {
	_, err := RunDir(context.Background(), filepath.Join(t.TempDir(), "absent"))
	assert.Error(t, err)
}
