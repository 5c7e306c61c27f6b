package cli

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const onePagePackage = `{
  "format": "presswork/v1",
  "publisher": "user:press",
  "items": [
    {
      "kind": "document",
      "title": "One Pager",
      "content": "body",
      "roles": [{"role": "author", "identity": "user:alice"}],
      "license": {"name": "cc-by-4.0", "acceptors": ["user:alice"]}
    }
  ]
}`

// TestWorkflow_EndToEnd drives a package through the full lifecycle
// over a shared database file, the way an operator would.
func TestWorkflow_EndToEnd(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "press.db")
	pkg := writePackage(t, dir, "one-pager.json", onePagePackage)

	// Intake opens the publication awaiting its two requirements.
	out, err := runCLI(t, "intake", pkg, "--db", db, "--format", "json")
	require.NoError(t, err)
	resp := decodeResponse(t, out)
	require.Equal(t, "ok", resp.Status)

	data := resp.Data.(map[string]any)
	pubID := data["publication"].(string)
	require.NotEmpty(t, pubID)
	assert.Equal(t, "awaiting-acceptance", data["state"])
	assert.Len(t, data["requirements"], 2)

	// Submit is refused while requirements are pending, exit code 1.
	_, err = runCLI(t, "submit", pubID, "--db", db, "--format", "json")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	// Both decisions land; the second one flips the state to ready.
	out, err = runCLI(t, "accept", pubID, "--db", db, "--format", "json",
		"--identity", "user:alice", "--kind", "role", "--subject", "author")
	require.NoError(t, err)
	resp = decodeResponse(t, out)
	assert.Equal(t, "awaiting-acceptance", resp.Data.(map[string]any)["state"])

	out, err = runCLI(t, "accept", pubID, "--db", db, "--format", "json",
		"--identity", "user:alice", "--kind", "license", "--all")
	require.NoError(t, err)
	resp = decodeResponse(t, out)
	assert.Equal(t, "ready", resp.Data.(map[string]any)["state"])

	// Submit archives the single item at version 1.
	out, err = runCLI(t, "submit", pubID, "--db", db, "--format", "json")
	require.NoError(t, err)
	resp = decodeResponse(t, out)
	refs := resp.Data.(map[string]any)["refs"].([]any)
	require.Len(t, refs, 1)

	// Status reflects the archived publication.
	out, err = runCLI(t, "status", pubID, "--db", db, "--format", "json")
	require.NoError(t, err)
	resp = decodeResponse(t, out)
	status := resp.Data.(map[string]any)
	assert.Equal(t, "archived", status["state"])

	// Locate finds the archived content by its minted identifier.
	items := status["items"].([]any)
	contentID := items[0].(map[string]any)["content_id"].(string)

	out, err = runCLI(t, "locate", contentID, "--db", db, "--format", "json")
	require.NoError(t, err)
	resp = decodeResponse(t, out)
	loc := resp.Data.(map[string]any)
	assert.Equal(t, true, loc["archived"])
	assert.Equal(t, contentID+"@1", loc["ref"])
}

func TestWorkflow_IntakeRejectsBadPackage(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "press.db")
	pkg := writePackage(t, dir, "bad.json", "{not json")

	out, err := runCLI(t, "intake", pkg, "--db", db, "--format", "json")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	resp := decodeResponse(t, out)
	require.Equal(t, "error", resp.Status)
	assert.Equal(t, "MALFORMED_PACKAGE", resp.Error.Code)
}

func TestWorkflow_RejectTerminatesPublication(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "press.db")
	pkg := writePackage(t, dir, "one-pager.json", onePagePackage)

	out, err := runCLI(t, "intake", pkg, "--db", db, "--format", "json")
	require.NoError(t, err)
	pubID := decodeResponse(t, out).Data.(map[string]any)["publication"].(string)

	out, err = runCLI(t, "accept", pubID, "--db", db, "--format", "json",
		"--identity", "user:alice", "--kind", "license", "--subject", "cc-by-4.0", "--reject")
	require.NoError(t, err)
	assert.Equal(t, "rejected", decodeResponse(t, out).Data.(map[string]any)["state"])
}

func TestWorkflow_StatusUnknownPublication(t *testing.T) {
	db := filepath.Join(t.TempDir(), "press.db")

	_, err := runCLI(t, "status", "nope", "--db", db, "--format", "json")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestWorkflow_AcceptNeedsSubjectOrAll(t *testing.T) {
	db := filepath.Join(t.TempDir(), "press.db")

	_, err := runCLI(t, "accept", "pub-1", "--db", db,
		"--identity", "user:alice", "--kind", "role")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestWorkflow_ScenarioCommand(t *testing.T) {
	dir := t.TempDir()
	writePackage(t, dir, "resource-only.json", `{
  "format": "presswork/v1",
  "publisher": "user:press",
  "items": [{"kind": "resource", "content": "a diagram"}]
}`)
	scenario := writePackage(t, dir, "scenario.yaml", `
name: cli-smoke
description: a requirement-free package archives end to end
ids: [pub-1, res-1]
steps:
  - intake:
      package: resource-only.json
    expect:
      state: ready
  - submit:
      publication: pub-1
    expect:
      state: archived
      refs: [res-1@1]
assertions:
  - type: jobs
    count: 2
`)

	out, err := runCLI(t, "scenario", scenario, "--format", "json")
	require.NoError(t, err)
	resp := decodeResponse(t, out)
	require.Equal(t, "ok", resp.Status)
	data := resp.Data.(map[string]any)
	assert.Equal(t, "cli-smoke", data["scenario"])
	assert.Equal(t, float64(2), data["steps"])
	assert.Equal(t, float64(2), data["jobs"])
}
