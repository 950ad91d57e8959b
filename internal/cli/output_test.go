package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/gridsync/internal/ir"
)

func TestOutputFormatter_Error(t *testing.T) {
	details := map[string]string{"sheet": "cargo.csv"}

	tests := []struct {
		name    string
		format  string
		verbose bool
		want    []string
		notWant []string
	}{
		{"text", "text", false, []string{"Error [COMMAND_ERROR]: sheet not found\n"}, []string{"Details:"}},
		{"text verbose", "text", true, []string{"Error [COMMAND_ERROR]", "Details: map[sheet:cargo.csv]"}, nil},
		{"json", "json", false, []string{`"status":"error"`, `"code":"COMMAND_ERROR"`, `"details":{"sheet":"cargo.csv"}`}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			f := &OutputFormatter{Format: tt.format, Writer: buf, Verbose: tt.verbose}
			require.NoError(t, f.Error(CodeCommand, "sheet not found", details))
			for _, s := range tt.want {
				assert.Contains(t, buf.String(), s)
			}
			for _, s := range tt.notWant {
				assert.NotContains(t, buf.String(), s)
			}
		})
	}
}

func TestOutputFormatter_Success(t *testing.T) {
	buf := &bytes.Buffer{}
	require.NoError(t, (&OutputFormatter{Format: "text", Writer: buf}).Success("No tables."))
	assert.Equal(t, "No tables.\n", buf.String())

	buf.Reset()
	require.NoError(t, (&OutputFormatter{Format: "json", Writer: buf}).Success([]string{"ports"}))
	assert.JSONEq(t, `{"status":"ok","data":["ports"]}`, buf.String())
}

func TestOutputFormatter_VerboseLogGoesToErrWriter(t *testing.T) {
	out, diag := &bytes.Buffer{}, &bytes.Buffer{}
	f := &OutputFormatter{Format: "json", Writer: out, ErrWriter: diag, Verbose: true}
	f.VerboseLog("Selected %d row(s)", 3)
	assert.Empty(t, out.String())
	assert.Equal(t, "Selected 3 row(s)\n", diag.String())

	f.Verbose = false
	f.VerboseLog("dropped")
	assert.NotContains(t, diag.String(), "dropped")
}

func TestOutputFormatter_TextPass(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: buf}

	err := formatter.Pass("pass-1", ir.Summary{Title: ir.TitleSuccess, Message: "2 row(s) created"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "Success: 2 row(s) created\n", buf.String())
}

func TestOutputFormatter_JSONPass(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	summary := ir.Summary{Title: ir.TitleWarning, Message: "Duplicate record, insert skipped"}
	require.NoError(t, formatter.Pass("pass-7", summary, summary))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "pass-7", resp.PassID)
}

func TestOutputFormatter_FailPipelineError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	perr := ir.NewValidationError([]ir.RowIssue{{Row: 2, Reason: "missing unique key", Missing: []string{"port_code"}}})
	err := formatter.Fail(perr, CodeCommand, ExitCommandError)

	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err), "pipeline errors fail the pass, not the command")
	assert.True(t, IsReported(err))
	assert.True(t, ir.IsValidationError(err))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, string(ir.ErrCodeValidation), resp.Error.Code)
	assert.NotNil(t, resp.Error.Details)
}

func TestOutputFormatter_FailCommandError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: buf}

	err := formatter.Fail(errors.New("open cargo.csv: no such file"), CodeCommand, ExitCommandError)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, buf.String(), "Error [COMMAND_ERROR]: open cargo.csv")
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("plain")))
	assert.Equal(t, ExitCommandError, GetExitCode(fmt.Errorf("wrapped: %w", NewExitError(ExitCommandError, "bad flag"))))
	assert.False(t, IsReported(NewExitError(ExitFailure, "x")))
}
