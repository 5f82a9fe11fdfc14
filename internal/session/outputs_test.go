package session

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vs-ude/fyrbuild/internal/config"
)

func TestParseEmitDefaultsToExecutable(t *testing.T) {
	outputs, err := ParseEmit(nil)
	require.NoError(t, err)
	assert.Len(t, outputs, 1)
	assert.Contains(t, outputs, OutputExe)
}

func TestParseEmit(t *testing.T) {
	// When
	outputs, err := ParseEmit([]string{"obj,asm=out.s", "ir=-"})

	// Then
	require.NoError(t, err)
	assert.Len(t, outputs, 3)
	assert.Nil(t, outputs[OutputObject])
	assert.Equal(t, &OutFileName{Path: "out.s"}, outputs[OutputAssembly])
	assert.Equal(t, &OutFileName{Stdout: true}, outputs[OutputIR])

	_, err = ParseEmit([]string{"wasm"})
	assert.Error(t, err)
	_, err = ParseEmit([]string{"obj="})
	assert.Error(t, err)
}

func TestOutputPaths(t *testing.T) {
	o, err := NewOutputFilenames("build", "hello", "", []string{"obj", "asm=x.s"})
	require.NoError(t, err)

	assert.True(t, o.Contains(OutputObject))
	assert.False(t, o.ContainsExplicitName(OutputObject))
	assert.True(t, o.ContainsExplicitName(OutputAssembly))
	assert.False(t, o.Contains(OutputExe))
	assert.Equal(t, []OutputType{OutputObject, OutputAssembly}, o.Types())

	assert.Equal(t, OutFileName{Path: filepath.Join("build", "hello.o")}, o.Path(OutputObject))
	assert.Equal(t, OutFileName{Path: "x.s"}, o.Path(OutputAssembly))
	assert.Equal(t, filepath.Join("build", "hello.cgu-0.o"), o.TempPath(OutputObject, "cgu-0"))
	assert.Equal(t, filepath.Join("build", "hello.cgu-0.asm.o"), o.TempPath(OutputObject, "cgu-0.asm"))
	assert.Equal(t, filepath.Join("build", "hello.s"), o.TempPath(OutputAssembly, ""))
}

func TestSingleOutputFile(t *testing.T) {
	o, err := NewOutputFilenames(".", "hello", "a.out", []string{"obj"})
	require.NoError(t, err)
	require.NotNil(t, o.SingleOutputFile)
	assert.Equal(t, OutFileName{Path: "a.out"}, o.Path(OutputObject))

	o, err = NewOutputFilenames(".", "hello", filepath.Join("out", "prog.bin"), []string{"obj", "asm"})
	require.NoError(t, err)
	assert.Nil(t, o.SingleOutputFile)
	assert.Equal(t, OutFileName{Path: filepath.Join("out", "prog.o")}, o.Path(OutputObject))
}

func TestShouldCodegen(t *testing.T) {
	o, err := NewOutputFilenames(".", "x", "", []string{"metadata", "dep-info"})
	require.NoError(t, err)
	assert.False(t, o.ShouldCodegen())

	o, err = NewOutputFilenames(".", "x", "", nil)
	require.NoError(t, err)
	assert.True(t, o.ShouldCodegen())
}

func TestTextOutputs(t *testing.T) {
	assert.True(t, OutputAssembly.IsTextOutput())
	assert.True(t, OutputIR.IsTextOutput())
	assert.False(t, OutputObject.IsTextOutput())
	assert.False(t, OutputBitcode.IsTextOutput())
}

func TestNewSession(t *testing.T) {
	opts := config.DefaultOptions()
	opts.Emit = []string{"obj"}
	opts.OutDir = t.TempDir()
	cfg := &config.Config{Options: opts}

	s, err := New(cfg, "hello")
	require.NoError(t, err)
	assert.NotEmpty(t, s.ID)
	assert.NotNil(t, s.Metrics)
	assert.False(t, s.Log.HasErrors())
	assert.Equal(t, filepath.Join(opts.OutDir, "hello.o"), s.Outputs.Path(OutputObject).Path)
	assert.Equal(t, "obj", s.Options().Backend)
}
