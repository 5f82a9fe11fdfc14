package driver

import (
	"bytes"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"github.com/vs-ude/fyrbuild/internal/backends/backend"
	"github.com/vs-ude/fyrbuild/internal/backends/objfile"
	"github.com/vs-ude/fyrbuild/internal/config"
	"github.com/vs-ude/fyrbuild/internal/errlog"
	"github.com/vs-ude/fyrbuild/internal/metrics"
	"github.com/vs-ude/fyrbuild/internal/mono"
	"github.com/vs-ude/fyrbuild/internal/session"
)

// testBackend wraps the obj backend and records how objects are created.
type testBackend struct {
	inner   *objfile.Backend
	delay   time.Duration
	outputs []session.OutputType
	fail    map[string]bool
	panics  map[string]bool

	active  int64
	peak    int64
	mu      sync.Mutex
	objects []string
}

func newTestBackend() *testBackend {
	inner := objfile.NewBackend()
	return &testBackend{inner: inner, outputs: inner.SupportedOutputs(), fail: map[string]bool{}, panics: map[string]bool{}}
}

func (b *testBackend) Name() string {
	return "test"
}

func (b *testBackend) SupportedOutputs() []session.OutputType {
	return b.outputs
}

func (b *testBackend) NewObject(unitName string, opts backend.ObjectOptions) (backend.Object, error) {
	obj, err := b.inner.NewObject(unitName, opts)
	if err != nil {
		return nil, err
	}
	b.mu.Lock()
	b.objects = append(b.objects, unitName)
	b.mu.Unlock()
	return &testObject{Object: obj, b: b, unit: unitName}, nil
}

func (b *testBackend) created() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.objects...)
}

func (b *testBackend) maxActive() int {
	return int(atomic.LoadInt64(&b.peak))
}

type testObject struct {
	backend.Object
	b    *testBackend
	unit string
}

func (o *testObject) FinishObject(path string, info backend.FinishInfo) error {
	active := atomic.AddInt64(&o.b.active, 1)
	defer atomic.AddInt64(&o.b.active, -1)
	for {
		peak := atomic.LoadInt64(&o.b.peak)
		if active <= peak || atomic.CompareAndSwapInt64(&o.b.peak, peak, active) {
			break
		}
	}
	time.Sleep(o.b.delay)
	if o.b.panics[o.unit] {
		panic("boom")
	}
	if o.b.fail[o.unit] {
		return errors.Errorf("cannot lower %v", o.unit)
	}
	return o.Object.FinishObject(path, info)
}

func newTestSession(t require.TestingT, dir string, change func(o *config.Options)) *session.Session {
	opts := config.DefaultOptions()
	opts.OutDir = filepath.Join(dir, "out")
	opts.Parallelism = 2
	if change != nil {
		change(&opts)
	}
	require.NoError(t, mkdirAll(opts.OutDir))
	outputs, err := session.NewOutputFilenames(opts.OutDir, "prog", opts.OutputFile, opts.Emit)
	require.NoError(t, err)
	return &session.Session{
		ID:               "test",
		Config:           &config.Config{Options: opts},
		Log:              errlog.NewErrorLog(),
		Outputs:          outputs,
		Metrics:          metrics.New(),
		Stdout:           &bytes.Buffer{},
		StdoutIsTerminal: func() bool { return false },
	}
}

func function(symbol string, value int64) *mono.Function {
	return &mono.Function{Symbol: symbol, Result: mono.TypeI64, Body: []mono.Instr{
		{Op: mono.OpConst, Dest: 0, Value: value},
		{Op: mono.OpReturn, Args: []int{0}},
	}}
}

// program returns a program with one unit per name, each defining `<name>_f`.
func program(names ...string) *mono.Program {
	p := &mono.Program{CrateName: "demo", CrateTypes: []mono.CrateType{mono.CrateExecutable}}
	for i, name := range names {
		p.Units = append(p.Units, &mono.CompilationUnit{
			Name:  name,
			Items: []mono.Item{function(name+"_f", int64(i))},
		})
	}
	return p
}

func moduleNames(modules []*CompiledModule) []string {
	var names []string
	for _, m := range modules {
		names = append(names, m.Name)
	}
	return names
}

func warningCodes(log *errlog.ErrorLog) []errlog.ErrorCode {
	_, warnings := log.Snapshot()
	var codes []errlog.ErrorCode
	for _, w := range warnings {
		codes = append(codes, w.Code())
	}
	return codes
}

func errorCodes(log *errlog.ErrorLog) []errlog.ErrorCode {
	errs, _ := log.Snapshot()
	var codes []errlog.ErrorCode
	for _, e := range errs {
		codes = append(codes, e.Code())
	}
	return codes
}

func mkdirAll(dir string) error {
	return os.MkdirAll(dir, 0o755)
}
