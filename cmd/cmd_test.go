package main

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/space-cli/internal/config"
	"github.com/sells-group/space-cli/internal/model"
	"github.com/sells-group/space-cli/internal/track"
)

const testSeq = "ATGACCATGATTACGGATTCACTGGCCGTCGTTTTACAACGTCGTGACTGGGAAAACC"

// execute runs the root command from an empty working directory with a
// throwaway SQLite store.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Chdir(t.TempDir())
	t.Setenv("SPACE_LOG_LEVEL", "error")
	t.Setenv("SPACE_STORE_DATABASE_URL", filepath.Join(t.TempDir(), "space.db"))

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})
	err := rootCmd.Execute()
	return out.String(), err
}

func writeInput(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestRunCommand_EndToEnd(t *testing.T) {
	in := t.TempDir()
	out := filepath.Join(t.TempDir(), "out")
	writeInput(t, in, "a.fasta", ">a\n"+testSeq+"\n")
	writeInput(t, in, "b.fasta", ">b\n"+testSeq+"\n")
	writeInput(t, in, "bad.fasta", "ACGT\n")
	metricsFile := filepath.Join(t.TempDir(), "run.prom")

	stdout, err := execute(t, "run",
		"--input", in, "--out", out, "--format", "jsonl",
		"--skip-engineered", "--skip-natural", "--concurrency", "2",
		"--metrics-file", metricsFile,
	)
	require.NoError(t, err)

	var got struct {
		RunID    string        `json:"run_id"`
		Location string        `json:"location"`
		Summary  model.Summary `json:"summary"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &got))
	assert.NotEmpty(t, got.RunID)
	assert.Equal(t, filepath.Join(out, "golden_table.jsonl"), got.Location)
	assert.Equal(t, 1, got.Summary.Written)
	assert.Equal(t, 1, got.Summary.Duplicates)
	assert.Equal(t, 1, got.Summary.Rejected)

	prom, err := os.ReadFile(metricsFile)
	require.NoError(t, err)
	assert.Contains(t, string(prom), "space_runs_total")
}

func TestNormalizeCommand(t *testing.T) {
	path := writeInput(t, t.TempDir(), "p.fasta", ">pUC19 high copy cloning vector\n"+testSeq+"\n")

	stdout, err := execute(t, "normalize", path)
	require.NoError(t, err)

	var md map[string]any
	require.NoError(t, json.Unmarshal([]byte(stdout), &md))
	assert.NotEmpty(t, md)
}

func TestQCCommand(t *testing.T) {
	path := writeInput(t, t.TempDir(), "p.fasta", ">p\n"+testSeq+"\n")

	stdout, err := execute(t, "qc", path)
	require.NoError(t, err)

	var qc model.QCPartial
	require.NoError(t, json.Unmarshal([]byte(stdout), &qc))
	assert.Equal(t, "p", qc.SampleID)
	assert.False(t, qc.Skipped)
}

func TestQCCommand_Malformed(t *testing.T) {
	path := writeInput(t, t.TempDir(), "p.fasta", "ACGT\n")
	_, err := execute(t, "qc", path)
	require.Error(t, err)
}

func TestScanNaturalCommand_NoReports(t *testing.T) {
	dir := t.TempDir()
	_, err := execute(t, "scan-natural", "--sample", "p", "--bakta", filepath.Join(dir, "missing.gff3"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "none of the given reports")
}

func TestClassifyCommand(t *testing.T) {
	dir := t.TempDir()
	path := writeInput(t, dir, "p.fasta", ">p\n"+testSeq+"\n")
	writeInput(t, dir, "p.engineered.json", `{"sample_id":"p","has_synthetic_ori":true,"origins":[{"id":"pUC"}]}`)

	stdout, err := execute(t, "classify", path, "--skip-natural")
	require.NoError(t, err)

	var rec model.ClassifiedRecord
	require.NoError(t, json.Unmarshal([]byte(stdout), &rec))
	assert.Equal(t, "p", rec.SampleID)
	assert.Equal(t, model.ClassEngineered, rec.Classification)
	assert.Equal(t, []string{"pUC"}, rec.Origins)
}

func TestWriteDefaultConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, writeDefaultConfig(path, false))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var got config.Config
	require.NoError(t, yaml.Unmarshal(data, &got))
	assert.Equal(t, *config.Default(), got)

	err = writeDefaultConfig(path, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	require.NoError(t, writeDefaultConfig(path, true))
}

func TestInitCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "space.yaml")
	stdout, err := execute(t, "init", "--path", path)
	require.NoError(t, err)
	assert.Contains(t, stdout, path)
	assert.FileExists(t, path)
}

func TestClassifyCommand_MissingTrackDocument(t *testing.T) {
	path := writeInput(t, t.TempDir(), "p.fasta", ">p\n"+testSeq+"\n")

	_, err := execute(t, "classify", path, "--skip-natural")
	require.Error(t, err)
	assert.True(t, track.IsInconsistentJoin(err))
	assert.Contains(t, err.Error(), "missing track document")
}
