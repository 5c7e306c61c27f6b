package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutputFormatter_SuccessJSON(t *testing.T) {
	var buf bytes.Buffer
	f := &OutputFormatter{Format: "json", Writer: &buf}

	require.NoError(t, f.Success(map[string]string{"key": "value"}))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Nil(t, resp.Error)
}

func TestOutputFormatter_SuccessTextUsesStringer(t *testing.T) {
	var buf bytes.Buffer
	f := &OutputFormatter{Format: "text", Writer: &buf}

	require.NoError(t, f.Success(SubmitOutput{
		Publication: "pub-1",
		Refs:        []string{"doc-x@4"},
	}))

	assert.Contains(t, buf.String(), "publication pub-1 archived")
	assert.Contains(t, buf.String(), "doc-x@4")
}

func TestOutputFormatter_ErrorJSON(t *testing.T) {
	var buf bytes.Buffer
	f := &OutputFormatter{Format: "json", Writer: &buf}

	require.NoError(t, f.Error("NOT_READY", "publication pub-1 is awaiting-acceptance", nil))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "NOT_READY", resp.Error.Code)
}

func TestOutputFormatter_VerboseLogRouting(t *testing.T) {
	var out, errOut bytes.Buffer
	f := &OutputFormatter{Format: "json", Writer: &out, ErrWriter: &errOut, Verbose: true}

	f.VerboseLog("opened %s", "presswork.db")

	assert.Empty(t, out.String())
	assert.Contains(t, errOut.String(), "opened presswork.db")
}

func TestOutputFormatter_VerboseLogSilentByDefault(t *testing.T) {
	var out bytes.Buffer
	f := &OutputFormatter{Format: "text", Writer: &out}

	f.VerboseLog("should not appear")
	assert.Empty(t, out.String())
}

func TestExitError_Codes(t *testing.T) {
	assert.Equal(t, ExitCommandError, GetExitCode(NewExitError(ExitCommandError, "bad path")))
	assert.Equal(t, ExitFailure, GetExitCode(WrapExitError(ExitFailure, "refused", errors.New("cause"))))
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("plain error")))
}

func TestExitError_Unwrap(t *testing.T) {
	cause := errors.New("cause")
	err := WrapExitError(ExitFailure, "refused", cause)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "refused")
}
