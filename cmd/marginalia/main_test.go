package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/poiesic/marginalia"
	"github.com/poiesic/marginalia/ai/mock"
	"github.com/poiesic/marginalia/config"
	"github.com/poiesic/marginalia/tokens"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testCLI struct {
	t        *testing.T
	dir      string
	cfgPath  string
	provider *mock.MockProvider
}

func newTestCLI(t *testing.T) *testCLI {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Storage.Path = filepath.Join(dir, "db")
	cfgPath := filepath.Join(dir, "marginalia.yaml")
	require.NoError(t, config.Save(cfgPath, cfg))

	return &testCLI{
		t:        t,
		dir:      dir,
		cfgPath:  cfgPath,
		provider: mock.NewMockProviderWithServices(mock.NewMockEmbedder(), mock.NewMockGenerator()),
	}
}

// run executes the CLI and returns stdout.
func (tc *testCLI) run(args ...string) (string, error) {
	app := newApp(
		marginalia.WithProvider(tc.provider),
		marginalia.WithTokenCounter(tokens.Estimator{}))
	var stdout, stderr bytes.Buffer
	app.Writer = &stdout
	app.ErrWriter = &stderr

	full := append([]string{"marginalia", "--config", tc.cfgPath, "--env-file", ""}, args...)
	err := app.Run(full)
	return stdout.String(), err
}

func (tc *testCLI) writeFile(name, body string) string {
	path := filepath.Join(tc.dir, name)
	require.NoError(tc.t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLogLevel(t *testing.T) {
	tc := newTestCLI(t)

	_, err := tc.run("--log-level", "loud", "documents")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid log level")

	_, err = tc.run("--log-level", "DEBUG", "documents")
	assert.NoError(t, err)
}

func TestInitCommand(t *testing.T) {
	tc := newTestCLI(t)

	_, err := tc.run("init")
	require.Error(t, err, "existing file is not overwritten")
	assert.Contains(t, err.Error(), "--force")

	out, err := tc.run("init", "--force")
	require.NoError(t, err)
	assert.Contains(t, out, tc.cfgPath)

	cfg, err := config.Load(tc.cfgPath)
	require.NoError(t, err)
	assert.Equal(t, config.Default().Storage.Path, cfg.Storage.Path)
}

func TestIngestQueryDelete(t *testing.T) {
	tc := newTestCLI(t)
	body := "The observatory opens at dusk on clear nights."
	path := tc.writeFile("hours.txt", body)

	out, err := tc.run("ingest", "--meta", "team=outreach", path)
	require.NoError(t, err)
	assert.Contains(t, out, "OK")
	assert.Contains(t, out, "1 chunks")

	out, err = tc.run("documents")
	require.NoError(t, err)
	assert.Contains(t, out, "hours")
	assert.Contains(t, out, "completed")

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	id := strings.Fields(lines[1])[0]

	out, err = tc.run("query", "--min-score", "0.99", body)
	require.NoError(t, err)
	assert.Contains(t, out, "answer:")
	assert.Contains(t, out, "[1] hours.txt")

	out, err = tc.run("query", "--filter", "team=finance", body)
	require.NoError(t, err)
	assert.Contains(t, out, "I don't have enough information")

	out, err = tc.run("delete", id)
	require.NoError(t, err)
	assert.Contains(t, out, "Deleted "+id)

	out, err = tc.run("documents")
	require.NoError(t, err)
	assert.Contains(t, out, "No documents.")
}

func TestIngestFailures(t *testing.T) {
	tc := newTestCLI(t)

	_, err := tc.run("ingest")
	assert.Error(t, err)

	_, err = tc.run("ingest", "--meta", "novalue", tc.writeFile("a.txt", "alpha"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "key=value")

	good := tc.writeFile("good.md", "# Notes\n\nSomething worth keeping.")
	bad := tc.writeFile("image.png", "not really")
	out, err := tc.run("ingest", good, bad)
	require.Error(t, err)
	assert.Contains(t, out, "OK")
	assert.Contains(t, out, "FAILED  "+bad)
}

func TestQueryArguments(t *testing.T) {
	tc := newTestCLI(t)

	_, err := tc.run("query")
	assert.Error(t, err)

	_, err = tc.run("query", "--filter", "=x", "question")
	assert.Error(t, err)

	_, err = tc.run("delete")
	assert.Error(t, err)

	_, err = tc.run("delete", "doc_missing")
	assert.Error(t, err)
}

func TestParseMetadata(t *testing.T) {
	m, err := parseMetadata(nil)
	require.NoError(t, err)
	assert.Nil(t, m)

	m, err = parseMetadata([]string{"team = infra", "year=2024"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"team": "infra", "year": "2024"}, m)

	_, err = parseMetadata([]string{"=x"})
	assert.Error(t, err)
}
