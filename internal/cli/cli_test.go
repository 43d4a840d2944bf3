package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/cross19xx/eas-build/internal/service"
	"github.com/cross19xx/eas-build/pkg/build"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd("v1.0.0", "abc123", "2026-10-01")
	var out, stderr bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append([]string{"--log-level", "error"}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func writeDefinition(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "build.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func TestVersionCmd(t *testing.T) {
	out, err := runCLI(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "eas-build v1.0.0")
	assert.Contains(t, out, "Commit: abc123")
}

func TestValidateCmd(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		out, err := runCLI(t, "validate", "../../testdata/valid/functions.yaml")
		require.NoError(t, err)
		assert.Contains(t, out, "is valid")
	})

	t.Run("valid json", func(t *testing.T) {
		out, err := runCLI(t, "validate", "-o", "json", "../../testdata/valid/simple.yaml")
		require.NoError(t, err)

		var body map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(out), &body))
		assert.Equal(t, true, body["valid"])
		assert.Equal(t, "Build Android", body["name"])
	})

	t.Run("invalid", func(t *testing.T) {
		out, err := runCLI(t, "validate", "../../testdata/invalid/semantic-error.yaml")
		require.Error(t, err)
		assert.Contains(t, out, "❌")
		assert.Contains(t, out, "line ")
		assert.Contains(t, out, "deploy-to-store")
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := runCLI(t, "validate", "does-not-exist.yaml")
		assert.Error(t, err)
	})

	t.Run("bad output format", func(t *testing.T) {
		_, err := runCLI(t, "validate", "-o", "xml", "../../testdata/valid/simple.yaml")
		assert.ErrorContains(t, err, "invalid output format")
	})
}

func TestFunctionsCmd(t *testing.T) {
	out, err := runCLI(t, "functions")
	require.NoError(t, err)
	assert.Contains(t, out, "checkout\n")
	assert.Contains(t, out, "with.repository (string, required)")
	assert.Contains(t, out, "with.ref (string, default main)")

	out, err = runCLI(t, "functions", "-o", "json")
	require.NoError(t, err)
	var infos []service.FunctionInfo
	require.NoError(t, json.Unmarshal([]byte(out), &infos))
	assert.Len(t, infos, 3)
}

func TestRunCmd(t *testing.T) {
	requireShell(t)

	artifactsDir := filepath.Join(t.TempDir(), "artifacts")
	path := writeDefinition(t, `name: Package
env:
  VERSION: "0.0.0"
steps:
  - id: package
    run: |
      mkdir -p dist
      echo "$VERSION" > dist/version.txt
      cp dist/version.txt "$EAS_BUILD_ARTIFACTS_DIR/version.txt"
      ::upload-artifact type=build-artifact::dist/version.txt
`)

	out, err := runCLI(t, "run", path, "-o", "json", "--env", "VERSION=2.1.0", "--artifacts-dir", artifactsDir)
	require.NoError(t, err, out)

	var result service.Result
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, build.WorkflowCompleted, result.Status)
	require.Len(t, result.Artifacts[build.ArtifactTypeBuildArtifact], 1)

	data, err := os.ReadFile(filepath.Join(artifactsDir, "version.txt"))
	require.NoError(t, err)
	assert.Equal(t, "2.1.0\n", string(data))
}

func TestRunCmd_TextOutputAndFailure(t *testing.T) {
	requireShell(t)

	path := writeDefinition(t, `name: Failing
steps:
  - id: ok
    run: "true"
  - id: boom
    run: exit 3
`)

	out, err := runCLI(t, "run", path)
	require.Error(t, err)

	var aborted *build.WorkflowAbortedError
	assert.ErrorAs(t, err, &aborted)
	assert.Contains(t, out, "Status: failed")
	assert.Contains(t, out, "boom")
	assert.Contains(t, out, "No artifacts.")
}

func TestRunCmd_WorkdirKept(t *testing.T) {
	requireShell(t)

	project := t.TempDir()
	src := filepath.Join(project, "app.json")
	require.NoError(t, os.WriteFile(src, []byte("{}"), 0o644))

	path := writeDefinition(t, "name: Local\nworking-directory: .\nsteps:\n  - run: touch built.txt\n")

	out, err := runCLI(t, "run", path, "--workdir", project)
	require.NoError(t, err, out)

	assert.FileExists(t, src)
	assert.FileExists(t, filepath.Join(project, "built.txt"))
}

func TestServeCmd_Help(t *testing.T) {
	out, err := runCLI(t, "serve", "--help")
	require.NoError(t, err)
	assert.Contains(t, out, "without\nauthentication")
	assert.Contains(t, out, "127.0.0.1")
}

func TestServerCmd(t *testing.T) {
	for _, args := range [][]string{{"--version"}, {"--help"}} {
		cmd := NewServerCmd("v1.0.0", "abc123", "2026-10-01")
		var out bytes.Buffer
		cmd.SetOut(&out)
		cmd.SetErr(&out)
		cmd.SetArgs(args)
		require.NoError(t, cmd.Execute())

		if args[0] == "--version" {
			assert.Contains(t, out.String(), "v1.0.0 (commit: abc123")
			continue
		}
		assert.Contains(t, out.String(), "eas-build-server")
		assert.Contains(t, out.String(), "--port")
		assert.Contains(t, out.String(), "--config")
	}
}

func TestRunCmd_InvalidEnvFlag(t *testing.T) {
	path := writeDefinition(t, "name: x\nsteps:\n  - run: \"true\"\n")
	_, err := runCLI(t, "run", path, "--env", "NOEQUALS")
	assert.ErrorContains(t, err, "KEY=VALUE")
}

func TestParseEnvFlags(t *testing.T) {
	env, err := parseEnvFlags([]string{"A=1", "B=x=y", "EMPTY="})
	require.NoError(t, err)
	assert.Equal(t, build.Env{"A": "1", "B": "x=y", "EMPTY": ""}, env)

	env, err = parseEnvFlags(nil)
	require.NoError(t, err)
	assert.Nil(t, env)

	_, err = parseEnvFlags([]string{"=value"})
	assert.Error(t, err)
}
