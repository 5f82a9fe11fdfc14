package driver

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vs-ude/fyrbuild/internal/backends/objfile"
	"github.com/vs-ude/fyrbuild/internal/config"
	"github.com/vs-ude/fyrbuild/internal/errlog"
	"github.com/vs-ude/fyrbuild/internal/incremental"
	"github.com/vs-ude/fyrbuild/internal/mono"
	"pgregory.net/rapid"
)

func readFile(t *testing.T, path string) []byte {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return data
}

func TestCompileKeepsPartitionOrder(t *testing.T) {
	root := t.TempDir()
	rapid.Check(t, func(rt *rapid.T) {
		// Given
		n := rapid.IntRange(1, 8).Draw(rt, "units")
		parallelism := rapid.IntRange(1, 4).Draw(rt, "parallelism")
		withAsm := rapid.SliceOfN(rapid.Bool(), n, n).Draw(rt, "asm")
		dir, err := os.MkdirTemp(root, "run")
		require.NoError(rt, err)
		var names, expected []string
		for i := 0; i < n; i++ {
			names = append(names, fmt.Sprintf("cgu%d", i))
		}
		p := program(names...)
		for i, u := range p.Units {
			expected = append(expected, u.Name)
			if withAsm[i] {
				u.Items = append(u.Items, &mono.GlobalAsm{Template: ".globl {0}", Symbols: []string{u.Name + "_f"}})
				expected = append(expected, u.Name+".asm")
			}
		}
		sess := newTestSession(rt, dir, func(o *config.Options) { o.Parallelism = parallelism })

		// When
		results, err := Compile(context.Background(), sess, newTestBackend(), p, nil)

		// Then
		require.NoError(rt, err)
		assert.Equal(rt, expected, moduleNames(results.Modules))
		for _, m := range results.Modules {
			_, err := os.Stat(m.Object)
			assert.NoError(rt, err)
		}
	})
}

func TestCompileReusesUnchangedUnits(t *testing.T) {
	// Given
	dir := t.TempDir()
	incr := func(o *config.Options) { o.Incremental = filepath.Join(dir, "incr") }
	p := program("a", "b", "c")
	p.Units[2].Items = append(p.Units[2].Items, &mono.GlobalAsm{Template: "nop"})
	first := newTestSession(t, dir, incr)
	results, err := Compile(context.Background(), first, newTestBackend(), p, nil)
	require.NoError(t, err)
	objects := make(map[string][]byte)
	for _, m := range results.Modules {
		objects[m.Name] = readFile(t, m.Object)
	}

	// When
	second := newTestSession(t, dir, incr)
	b := newTestBackend()
	tracker := incremental.NewTracker()
	results, err = Compile(context.Background(), second, b, p, tracker)

	// Then
	require.NoError(t, err)
	assert.Empty(t, b.created())
	assert.Equal(t, []string{"a", "b", "c", "c.asm"}, moduleNames(results.Modules))
	for _, m := range results.Modules {
		assert.Equal(t, objects[m.Name], readFile(t, m.Object), m.Name)
	}
	for _, name := range []string{"a", "b", "c"} {
		r, ok := tracker.Actual(name)
		assert.True(t, ok)
		assert.Equal(t, incremental.ReusePreLto, r)
	}
	assert.Len(t, results.WorkProducts, 3)
	assert.Equal(t, 3.0, testutil.ToFloat64(first.Metrics.UnitsCompiled))
	assert.Equal(t, 0.0, testutil.ToFloat64(second.Metrics.UnitsCompiled))
	assert.Equal(t, 3.0, testutil.ToFloat64(second.Metrics.UnitsReused.WithLabelValues("pre-lto")))
}

func TestCompileRecompilesChangedUnit(t *testing.T) {
	// Given
	dir := t.TempDir()
	incr := func(o *config.Options) { o.Incremental = filepath.Join(dir, "incr") }
	_, err := Compile(context.Background(), newTestSession(t, dir, incr), newTestBackend(), program("a", "b", "c"), nil)
	require.NoError(t, err)
	changed := program("a", "b", "c")
	changed.Units[1].Items = []mono.Item{function("b_f", 42)}

	// When
	sess := newTestSession(t, dir, incr)
	b := newTestBackend()
	tracker := incremental.NewTracker()
	_, err = Compile(context.Background(), sess, b, changed, tracker)

	// Then
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, b.created())
	r, _ := tracker.Actual("b")
	assert.Equal(t, incremental.ReuseNo, r)
	r, _ = tracker.Actual("a")
	assert.Equal(t, incremental.ReusePreLto, r)
	compiled := testutil.ToFloat64(sess.Metrics.UnitsCompiled)
	reused := testutil.ToFloat64(sess.Metrics.UnitsReused.WithLabelValues("pre-lto"))
	assert.Equal(t, 1.0, compiled)
	assert.Equal(t, 3.0, compiled+reused)
}

func TestCompileReusesPostLto(t *testing.T) {
	// Given
	dir := t.TempDir()
	opts := func(o *config.Options) {
		o.Incremental = filepath.Join(dir, "incr")
		o.LTO = true
	}
	_, err := Compile(context.Background(), newTestSession(t, dir, opts), newTestBackend(), program("a"), nil)
	require.NoError(t, err)

	// When
	sess := newTestSession(t, dir, opts)
	tracker := incremental.NewTracker()
	_, err = Compile(context.Background(), sess, newTestBackend(), program("a"), tracker)

	// Then
	require.NoError(t, err)
	r, _ := tracker.Actual("a")
	assert.Equal(t, incremental.ReusePostLto, r)
	assert.Equal(t, 1.0, testutil.ToFloat64(sess.Metrics.UnitsReused.WithLabelValues("post-lto")))
}

func TestCompileWithDisabledCacheRecompiles(t *testing.T) {
	// Given
	dir := t.TempDir()
	incr := func(o *config.Options) { o.Incremental = filepath.Join(dir, "incr") }
	_, err := Compile(context.Background(), newTestSession(t, dir, incr), newTestBackend(), program("a", "b"), nil)
	require.NoError(t, err)
	index := readFile(t, filepath.Join(dir, "incr", "work-products.json"))

	// When
	sess := newTestSession(t, dir, func(o *config.Options) {
		incr(o)
		o.DisableIncrCache = true
	})
	b := newTestBackend()
	tracker := incremental.NewTracker()
	results, err := Compile(context.Background(), sess, b, program("a", "b"), tracker)

	// Then
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, moduleNames(results.Modules))
	assert.ElementsMatch(t, []string{"a", "b"}, b.created())
	r, _ := tracker.Actual("a")
	assert.Equal(t, incremental.ReusePreLto, r)
	assert.Empty(t, results.WorkProducts)
	assert.Equal(t, index, readFile(t, filepath.Join(dir, "incr", "work-products.json")))
}

func TestCompileRecompilesWhenExtraOutputIsMissing(t *testing.T) {
	// Given
	dir := t.TempDir()
	incr := func(o *config.Options) { o.Incremental = filepath.Join(dir, "incr") }
	_, err := Compile(context.Background(), newTestSession(t, dir, incr), newTestBackend(), program("a"), nil)
	require.NoError(t, err)

	// When
	sess := newTestSession(t, dir, func(o *config.Options) {
		incr(o)
		o.Emit = []string{"ir", "link"}
	})
	b := newTestBackend()
	results, err := Compile(context.Background(), sess, b, program("a"), nil)

	// Then
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, b.created())
	assert.Contains(t, results.WorkProducts["a"].SavedFiles, incremental.KindIR)
	assert.Contains(t, string(readFile(t, filepath.Join(dir, "out", "prog.ir"))), "define i64 @a_f()")
}

func TestCompileAbortsOnUnitFailure(t *testing.T) {
	// Given
	dir := t.TempDir()
	sess := newTestSession(t, dir, func(o *config.Options) { o.Incremental = filepath.Join(dir, "incr") })
	b := newTestBackend()
	b.fail["b"] = true
	b.fail["d"] = true

	// When
	results, err := Compile(context.Background(), sess, b, program("a", "b", "c", "d"), nil)

	// Then
	assert.ErrorIs(t, err, errlog.ErrAborted)
	assert.Nil(t, results)
	assert.Equal(t, []errlog.ErrorCode{errlog.ErrorUnitCompile, errlog.ErrorUnitCompile}, errorCodes(sess.Log))
	entries, err := os.ReadDir(filepath.Join(dir, "out"))
	require.NoError(t, err)
	assert.Empty(t, entries)
	_, err = os.Stat(filepath.Join(dir, "incr", "work-products.json"))
	assert.True(t, os.IsNotExist(err))
	assert.Equal(t, 2.0, testutil.ToFloat64(sess.Metrics.UnitsFailed))
}

func TestCompileCopiesSingleUnitOutput(t *testing.T) {
	// Given
	dir := t.TempDir()
	final := filepath.Join(dir, "final.o")
	sess := newTestSession(t, dir, func(o *config.Options) {
		o.Emit = []string{"obj"}
		o.OutputFile = final
	})

	// When
	results, err := Compile(context.Background(), sess, newTestBackend(), program("a"), nil)

	// Then
	require.NoError(t, err)
	f, err := objfile.Decode(readFile(t, final))
	require.NoError(t, err)
	_, ok := f.Section(".text")
	assert.True(t, ok)
	_, err = os.Stat(results.Modules[0].Object)
	assert.True(t, os.IsNotExist(err))
	assert.Empty(t, warningCodes(sess.Log))
}

func TestCompileIgnoresOutputFileForSeveralUnits(t *testing.T) {
	tests := []struct {
		name     string
		emitPath bool
		warning  errlog.ErrorCode
	}{
		{"output file", false, errlog.WarningIgnoringOutput},
		{"emit path", true, errlog.WarningIgnoringEmitPath},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Given
			dir := t.TempDir()
			final := filepath.Join(dir, "final.o")
			sess := newTestSession(t, dir, func(o *config.Options) {
				if tt.emitPath {
					o.Emit = []string{"obj=" + final}
				} else {
					o.Emit = []string{"obj"}
					o.OutputFile = final
				}
			})

			// When
			_, err := Compile(context.Background(), sess, newTestBackend(), program("a", "b", "c"), nil)

			// Then
			require.NoError(t, err)
			assert.Equal(t, []errlog.ErrorCode{tt.warning}, warningCodes(sess.Log))
			_, err = os.Stat(final)
			assert.True(t, os.IsNotExist(err))
			for _, name := range []string{"a", "b", "c"} {
				_, err := os.Stat(filepath.Join(dir, "out", "prog."+name+".o"))
				assert.NoError(t, err)
			}
		})
	}
}

func TestCompileWritesTextOutputToTerminal(t *testing.T) {
	// Given
	dir := t.TempDir()
	sess := newTestSession(t, dir, func(o *config.Options) { o.Emit = []string{"ir=-"} })
	sess.StdoutIsTerminal = func() bool { return true }

	// When
	_, err := Compile(context.Background(), sess, newTestBackend(), program("a"), nil)

	// Then
	require.NoError(t, err)
	assert.Contains(t, sess.Stdout.(*bytes.Buffer).String(), "define i64 @a_f()")
	entries, err := os.ReadDir(filepath.Join(dir, "out"))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestCompileRefusesBinaryOutputToTerminal(t *testing.T) {
	// Given
	dir := t.TempDir()
	sess := newTestSession(t, dir, func(o *config.Options) { o.Emit = []string{"obj=-"} })
	sess.StdoutIsTerminal = func() bool { return true }

	// When
	_, err := Compile(context.Background(), sess, newTestBackend(), program("a"), nil)

	// Then
	assert.ErrorIs(t, err, errlog.ErrAborted)
	assert.Equal(t, []errlog.ErrorCode{errlog.ErrorBinaryOutputToTty}, errorCodes(sess.Log))
	assert.Zero(t, sess.Stdout.(*bytes.Buffer).Len())
}

func TestCompileWarnsAboutUnsupportedOutput(t *testing.T) {
	// Given
	dir := t.TempDir()
	sess := newTestSession(t, dir, func(o *config.Options) { o.Emit = []string{"asm", "link"} })
	b := newTestBackend()
	b.outputs = nil

	// When
	results, err := Compile(context.Background(), sess, b, program("a"), nil)

	// Then
	require.NoError(t, err)
	assert.Equal(t, []errlog.ErrorCode{errlog.WarningUnsupportedOutput}, warningCodes(sess.Log))
	assert.Empty(t, results.Modules[0].Assembly)
}

func TestCompileRespectsParallelism(t *testing.T) {
	for _, k := range []int{1, 2} {
		t.Run(fmt.Sprint(k), func(t *testing.T) {
			// Given
			sess := newTestSession(t, t.TempDir(), func(o *config.Options) { o.Parallelism = k })
			b := newTestBackend()
			b.delay = 20 * time.Millisecond

			// When
			results, err := Compile(context.Background(), sess, b, program("a", "b", "c", "d", "e", "f"), nil)

			// Then
			require.NoError(t, err)
			assert.Len(t, results.Modules, 6)
			assert.LessOrEqual(t, b.maxActive(), k)
			assert.GreaterOrEqual(t, b.maxActive(), 1)
		})
	}
}

func TestCompileReraisesWorkerPanic(t *testing.T) {
	// Given
	sess := newTestSession(t, t.TempDir(), nil)
	b := newTestBackend()
	b.panics["a"] = true

	// When / Then
	assert.PanicsWithValue(t, "boom", func() {
		_, _ = Compile(context.Background(), sess, b, program("a"), nil)
	})
}

func TestCompileSkipsCodegenForMetadataOnly(t *testing.T) {
	// Given
	dir := t.TempDir()
	sess := newTestSession(t, dir, func(o *config.Options) { o.Emit = []string{"metadata"} })
	b := newTestBackend()

	// When
	results, err := Compile(context.Background(), sess, b, program("a", "b"), nil)

	// Then
	require.NoError(t, err)
	assert.Empty(t, results.Modules)
	assert.Empty(t, b.created())
	assert.Equal(t, "demo", results.CrateInfo.CrateName)
}

func TestCompileEmitsAuxiliaryModules(t *testing.T) {
	// Given
	sess := newTestSession(t, t.TempDir(), nil)
	p := program("a")
	p.CrateTypes = []mono.CrateType{mono.CrateDylib}
	p.Allocator = mono.AllocatorGlobal
	p.Metadata = []byte("crate metadata")

	// When
	results, err := Compile(context.Background(), sess, newTestBackend(), p, nil)

	// Then
	require.NoError(t, err)
	require.NotNil(t, results.AllocatorModule)
	require.NotNil(t, results.MetadataModule)
	assert.Equal(t, AllocatorModuleName, results.AllocatorModule.Name)
	assert.Equal(t, ModuleMetadata, results.MetadataModule.Kind)

	f, err := objfile.Decode(readFile(t, results.AllocatorModule.Object))
	require.NoError(t, err)
	symtab, _ := f.Section(".symtab")
	symbols, err := objfile.DecodeSymbols(symtab)
	require.NoError(t, err)
	bindings := make(map[string]objfile.SymbolBinding)
	for _, s := range symbols {
		bindings[s.Name] = s.Binding
	}
	assert.Equal(t, objfile.BindGlobal, bindings["__fyr_realloc"])
	assert.Equal(t, objfile.BindUndefined, bindings["__fg_realloc"])

	f, err = objfile.Decode(readFile(t, results.MetadataModule.Object))
	require.NoError(t, err)
	rodata, _ := f.Section(".rodata")
	metadata, err := DecodeMetadata(rodata)
	require.NoError(t, err)
	assert.Equal(t, p.Metadata, metadata)
}

func TestCompileReportsReuseMismatch(t *testing.T) {
	// Given
	sess := newTestSession(t, t.TempDir(), nil)
	tracker := incremental.NewTracker()
	tracker.Expect("a", incremental.ReusePreLto)

	// When
	_, err := Compile(context.Background(), sess, newTestBackend(), program("a"), tracker)

	// Then
	require.NoError(t, err)
	assert.Equal(t, []errlog.ErrorCode{errlog.WarningReuseMismatch}, warningCodes(sess.Log))
}

func TestCompileFailedSessionKeepsCachedObjects(t *testing.T) {
	// Given
	dir := t.TempDir()
	incr := func(o *config.Options) { o.Incremental = filepath.Join(dir, "incr") }
	results, err := Compile(context.Background(), newTestSession(t, dir, incr), newTestBackend(), program("a", "b"), nil)
	require.NoError(t, err)
	original := readFile(t, results.Modules[0].Object)

	changed := program("a", "b")
	changed.Units[0].Items = []mono.Item{function("a_f", 14)}
	changed.Units[1].Items = []mono.Item{function("b_f", 99)}
	failing := newTestBackend()
	failing.fail["b"] = true
	_, err = Compile(context.Background(), newTestSession(t, dir, incr), failing, changed, nil)
	require.ErrorIs(t, err, errlog.ErrAborted)
	require.ElementsMatch(t, []string{"a", "b"}, failing.created())

	// When
	sess := newTestSession(t, dir, incr)
	b := newTestBackend()
	tracker := incremental.NewTracker()
	results, err = Compile(context.Background(), sess, b, program("a", "b"), tracker)

	// Then
	require.NoError(t, err)
	assert.Empty(t, b.created())
	r, _ := tracker.Actual("a")
	assert.Equal(t, incremental.ReusePreLto, r)
	assert.Equal(t, original, readFile(t, results.Modules[0].Object))
}

func TestCompileRecompilesPrimaryUnitWhenMainSymbolChanges(t *testing.T) {
	// Given
	dir := t.TempDir()
	incr := func(o *config.Options) { o.Incremental = filepath.Join(dir, "incr") }
	withMain := func(main string) *mono.Program {
		p := program("a")
		p.Units[0].Primary = true
		p.Units[0].Items = []mono.Item{function("f1", 1), function("f2", 2)}
		p.MainSymbol = main
		return p
	}
	first, err := Compile(context.Background(), newTestSession(t, dir, incr), newTestBackend(), withMain("f1"), nil)
	require.NoError(t, err)
	before := readFile(t, first.Modules[0].Object)

	// When
	b := newTestBackend()
	tracker := incremental.NewTracker()
	results, err := Compile(context.Background(), newTestSession(t, dir, incr), b, withMain("f2"), tracker)

	// Then
	require.NoError(t, err)
	r, _ := tracker.Actual("a")
	assert.Equal(t, incremental.ReuseNo, r)
	assert.Equal(t, []string{"a"}, b.created())
	assert.NotEqual(t, before, readFile(t, results.Modules[0].Object))
}

func TestCompileRecompilesWhenBackendConfigChanges(t *testing.T) {
	// Given
	dir := t.TempDir()
	incr := func(o *config.Options) { o.Incremental = filepath.Join(dir, "incr") }
	_, err := Compile(context.Background(), newTestSession(t, dir, incr), newTestBackend(), program("a"), nil)
	require.NoError(t, err)

	// When
	sess := newTestSession(t, dir, func(o *config.Options) {
		incr(o)
		o.BackendConfig = "cross.json"
	})
	sess.Config.Target = &config.BuildTargetConfig{Name: "cross", HardwareArchitecture: "arm", OperatingSystem: "linux"}
	b := newTestBackend()
	tracker := incremental.NewTracker()
	_, err = Compile(context.Background(), sess, b, program("a"), tracker)

	// Then
	require.NoError(t, err)
	r, _ := tracker.Actual("a")
	assert.Equal(t, incremental.ReuseNo, r)
	assert.Equal(t, []string{"a"}, b.created())
}

func TestCompileAbortsOnCacheCopyFailure(t *testing.T) {
	// Given
	dir := t.TempDir()
	incr := func(o *config.Options) { o.Incremental = filepath.Join(dir, "incr") }
	p := program("a", "c")
	p.Units[1].Items = append(p.Units[1].Items, &mono.GlobalAsm{Template: "nop"})
	_, err := Compile(context.Background(), newTestSession(t, dir, incr), newTestBackend(), p, nil)
	require.NoError(t, err)
	saved, err := filepath.Glob(filepath.Join(dir, "incr", "c.*.asm.o"))
	require.NoError(t, err)
	require.Len(t, saved, 1)
	require.NoError(t, os.Remove(saved[0]))
	out, err := os.ReadDir(filepath.Join(dir, "out"))
	require.NoError(t, err)
	for _, e := range out {
		require.NoError(t, os.RemoveAll(filepath.Join(dir, "out", e.Name())))
	}

	// When
	sess := newTestSession(t, dir, incr)
	b := newTestBackend()
	results, err := Compile(context.Background(), sess, b, p, nil)

	// Then
	assert.ErrorIs(t, err, errlog.ErrAborted)
	assert.Nil(t, results)
	assert.Equal(t, []errlog.ErrorCode{errlog.ErrorCacheCopy}, errorCodes(sess.Log))
	assert.Empty(t, b.created())
	entries, err := os.ReadDir(filepath.Join(dir, "out"))
	require.NoError(t, err)
	assert.Empty(t, entries, "files copied before the failure are removed")
	compiled := testutil.ToFloat64(sess.Metrics.UnitsCompiled)
	reused := testutil.ToFloat64(sess.Metrics.UnitsReused.WithLabelValues("pre-lto"))
	failed := testutil.ToFloat64(sess.Metrics.UnitsFailed)
	assert.Equal(t, 0.0, compiled)
	assert.Equal(t, 1.0, failed)
	assert.Equal(t, 2.0, compiled+reused+failed)
}
