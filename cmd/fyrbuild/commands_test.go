package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vs-ude/fyrbuild/internal/backends/objfile"
)

const manifest = `crate: hello
crate_types: [executable]
main: hello_main
units:
  - name: hello.0
    primary: true
    items:
      - function: hello_main
        result: i64
        body:
          - {op: call, dest: 0, symbol: answer}
          - {op: return, args: [0]}
  - name: hello.1
    items:
      - function: answer
        result: i64
        body:
          - {op: const, dest: 0, value: 42}
          - {op: return, args: [0]}
`

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestRootCommand(t *testing.T) {
	cmd := newRootCommand()

	assert.Equal(t, "fyrbuild", cmd.Use)
	assert.True(t, cmd.SilenceUsage)
	var names []string
	for _, c := range cmd.Commands() {
		names = append(names, c.Name())
	}
	assert.ElementsMatch(t, []string{"build", "env", "backend-config"}, names)
	assert.NotNil(t, cmd.PersistentFlags().ShorthandLookup("j"))
}

func TestBuildCommand(t *testing.T) {
	// Given
	dir := t.TempDir()
	path := filepath.Join(dir, "hello.yaml")
	require.NoError(t, os.WriteFile(path, []byte(manifest), 0o644))
	metrics := filepath.Join(dir, "metrics.txt")

	// When
	out, err := run(t, "build", path, "--out-dir", dir, "--emit", "obj,link", "-j", "2", "--metrics-file", metrics)

	// Then
	require.NoError(t, err, out)
	assert.Contains(t, out, "OK")
	for _, unit := range []string{"hello.0", "hello.1"} {
		data, err := os.ReadFile(filepath.Join(dir, "hello."+unit+".o"))
		require.NoError(t, err)
		_, err = objfile.Decode(data)
		assert.NoError(t, err)
	}
	data, err := os.ReadFile(metrics)
	require.NoError(t, err)
	assert.Contains(t, string(data), "fyrbuild_codegen_units_compiled_total 2")
}

func TestBuildCommandReportsInvalidManifest(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("crate: x\nallocator: nope\n"), 0o644))

	_, err := run(t, "build", path, "--out-dir", dir)

	assert.Error(t, err)
}

func TestEnvCommandMergesOptionsFile(t *testing.T) {
	// Given
	dir := t.TempDir()
	path := filepath.Join(dir, "options.yaml")
	require.NoError(t, os.WriteFile(path, []byte("backend: spirv\nparallelism: 7\nlto: true\n"), 0o644))

	// When
	out, err := run(t, "env", "--options", path, "--jobs", "3")

	// Then
	require.NoError(t, err)
	var conf struct {
		Options struct {
			Backend     string `json:"backend"`
			Parallelism int    `json:"parallelism"`
			LTO         bool   `json:"lto"`
		} `json:"options"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &conf))
	assert.Equal(t, "spirv", conf.Options.Backend)
	assert.Equal(t, 3, conf.Options.Parallelism)
	assert.True(t, conf.Options.LTO)
}

func TestBackendConfigCommand(t *testing.T) {
	out, err := run(t, "backend-config", "--backend", "obj")
	require.NoError(t, err)
	assert.Contains(t, out, "The obj backend has no configuration")

	_, err = run(t, "backend-config", "--backend", "llvm")
	assert.Error(t, err)
}

func TestWriteMetrics(t *testing.T) {
	// Given
	dir := t.TempDir()
	registry := prometheus.NewRegistry()
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "units_total", Help: "Units."})
	c.Add(3)
	registry.MustRegister(c)

	// When
	path := filepath.Join(dir, "nested", "metrics.txt")
	err := writeMetrics(path, registry)

	// Then
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "units_total 3")
	assert.Error(t, writeMetrics(dir, registry), "a directory cannot be written")
}
