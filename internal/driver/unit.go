package driver

import (
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/golang/glog"
	"github.com/pkg/errors"
	"github.com/vs-ude/fyrbuild/internal/backends/backend"
	"github.com/vs-ude/fyrbuild/internal/incremental"
	"github.com/vs-ude/fyrbuild/internal/mono"
	"github.com/vs-ude/fyrbuild/internal/session"
)

// extraOutputs are the per-module outputs a backend may write besides the object.
var extraOutputs = []struct {
	t    session.OutputType
	kind string
}{
	{session.OutputAssembly, incremental.KindAssembly},
	{session.OutputIR, incremental.KindIR},
	{session.OutputBitcode, incremental.KindBitcode},
}

// requestedOutputs returns the extra outputs that are requested and supported by the backend.
func requestedOutputs(sess *session.Session, b backend.Backend) []session.OutputType {
	var types []session.OutputType
	for _, o := range extraOutputs {
		if sess.Outputs.Contains(o.t) && backend.Supports(b, o.t) {
			types = append(types, o.t)
		}
	}
	return types
}

func requiredKinds(types []session.OutputType) []string {
	var kinds []string
	for _, o := range extraOutputs {
		for _, t := range types {
			if o.t == t {
				kinds = append(kinds, o.kind)
			}
		}
	}
	return kinds
}

// moduleCodegen lowers the items of one module through a backend object.
type moduleCodegen struct {
	sess    *session.Session
	backend backend.Backend
	name    string
	kind    ModuleKind
	items   []mono.Item
	// entry is the symbol called by the entry point wrapper, if any.
	entry string
}

// compile writes the object of the module and, if the module has global asm, its companion.
// `saved` maps work product kinds to the written files.
func (c *moduleCodegen) compile() (modules []*CompiledModule, saved map[string]string, err error) {
	start := time.Now()
	defer func() {
		if c.kind == ModuleRegular {
			c.sess.Metrics.ObserveCompile(time.Since(start).Seconds(), err)
		}
	}()
	opts := c.sess.Options()
	obj, err := c.backend.NewObject(c.name, backend.ObjectOptions{
		TargetCPU:        opts.TargetCPU,
		FunctionSections: opts.FunctionSections,
		DebugInfo:        opts.DebugInfo,
	})
	if err != nil {
		return nil, nil, err
	}
	for _, item := range c.items {
		if err := obj.Predefine(item); err != nil {
			return nil, nil, err
		}
	}
	for _, item := range c.items {
		switch item := item.(type) {
		case *mono.Function:
			err = obj.EmitFunction(item)
		case *mono.Static:
			err = obj.EmitStatic(item)
		case *mono.GlobalAsm:
			err = obj.EmitGlobalAsm(item)
		default:
			err = errors.Errorf("unknown item kind %v", item.Kind())
		}
		if err != nil {
			return nil, nil, err
		}
	}
	if c.entry != "" {
		if err := obj.EmitEntryWrapper(c.entry); err != nil {
			return nil, nil, err
		}
	}

	module := &CompiledModule{Name: c.name, Kind: c.kind, Object: c.sess.Outputs.TempPath(session.OutputObject, c.name)}
	saved = map[string]string{incremental.KindObject: module.Object}
	info := backend.FinishInfo{
		Producer:     opts.Producer,
		DebugInfo:    opts.DebugInfo,
		UnwindTables: opts.UnwindTables,
		Emit:         make(map[session.OutputType]string),
	}
	for _, t := range requestedOutputs(c.sess, c.backend) {
		path := c.sess.Outputs.TempPath(t, c.name)
		info.Emit[t] = path
		switch t {
		case session.OutputAssembly:
			module.Assembly = path
		case session.OutputIR:
			module.IR = path
		case session.OutputBitcode:
			module.Bytecode = path
		}
		saved[requiredKinds([]session.OutputType{t})[0]] = path
	}
	asmName := c.name + ".asm"
	asmPath := c.sess.Outputs.TempPath(session.OutputObject, asmName)
	// Temporaries of an earlier session may be hard links into the incremental cache.
	for _, path := range append(sortedPaths(info.Emit), module.Object, asmPath) {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return nil, nil, err
		}
	}
	if err := obj.FinishObject(module.Object, info); err != nil {
		return nil, nil, err
	}
	modules = append(modules, module)

	ok, err := obj.FinishGlobalAsm(asmPath)
	if err != nil {
		return modules, nil, errors.Wrap(err, "global asm")
	}
	if ok {
		modules = append(modules, &CompiledModule{Name: asmName, Kind: c.kind, Object: asmPath})
		saved[incremental.KindAsmObject] = asmPath
	}
	for _, m := range modules {
		observeFiles(c.sess, m)
	}
	glog.V(3).Infof("Compiled %v module %v in %v", c.kind, c.name, time.Since(start))
	return modules, saved, nil
}

func sortedPaths(m map[session.OutputType]string) []string {
	paths := make([]string, 0, len(m))
	for _, o := range extraOutputs {
		if p, ok := m[o.t]; ok {
			paths = append(paths, p)
		}
	}
	return paths
}

// observeFiles accounts the sizes of the module's files.
func observeFiles(sess *session.Session, m *CompiledModule) {
	for _, o := range []struct {
		kind string
		path string
	}{
		{incremental.KindObject, m.Object},
		{incremental.KindAssembly, m.Assembly},
		{incremental.KindIR, m.IR},
		{incremental.KindBitcode, m.Bytecode},
	} {
		if o.path == "" {
			continue
		}
		if stat, err := os.Stat(o.path); err == nil {
			sess.Metrics.ObserveArtifact(o.kind, stat.Size())
			glog.V(5).Infof("%v: %v", o.path, humanize.Bytes(uint64(stat.Size())))
		}
	}
}

// compileUnit is the job of a unit that cannot be reused.
func compileUnit(sess *session.Session, b backend.Backend, p *mono.Program, u *mono.CompilationUnit, fp mono.Fingerprint) *unitResult {
	sess.Metrics.ActiveCompiles.Inc()
	defer sess.Metrics.ActiveCompiles.Dec()
	c := &moduleCodegen{sess: sess, backend: b, name: u.Name, kind: ModuleRegular, items: u.ItemsInDeterministicOrder()}
	if u.Primary && p.MainSymbol != "" {
		c.entry = p.MainSymbol
	}
	modules, saved, err := c.compile()
	return &unitResult{modules: modules, saved: saved, reuse: incremental.ReuseNo, fingerprint: fp, err: err}
}
