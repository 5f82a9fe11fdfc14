package driver

import (
	"context"
	"time"

	"github.com/golang/glog"
	"github.com/vs-ude/fyrbuild/internal/backends/backend"
	"github.com/vs-ude/fyrbuild/internal/errlog"
	"github.com/vs-ude/fyrbuild/internal/incremental"
	"github.com/vs-ude/fyrbuild/internal/mono"
	"github.com/vs-ude/fyrbuild/internal/session"
)

// Compile lowers every unit of the program with the backend, reusing cached units where possible,
// and writes the requested outputs.
// The reuse decisions are recorded in `tracker`, which may be nil.
// When any error has been logged, the session is aborted and an error wrapping errlog.ErrAborted is returned.
func Compile(ctx context.Context, sess *session.Session, b backend.Backend, p *mono.Program, tracker *incremental.Tracker) (*CodegenResults, error) {
	opts := sess.Options()
	results := &CodegenResults{
		Metadata: p.Metadata,
		CrateInfo: CrateInfo{
			CrateName:         p.CrateName,
			TargetCPU:         opts.TargetCPU,
			CrateTypes:        p.CrateTypes,
			DependencyFormats: p.Dependencies,
		},
		WorkProducts: make(map[string]*incremental.WorkProduct),
	}
	if !sess.Outputs.ShouldCodegen() {
		glog.V(3).Infof("No requested output needs codegen, skipping %v units", len(p.Units))
		return results, nil
	}
	if tracker == nil {
		tracker = incremental.NewTracker()
	}
	start := time.Now()

	for _, t := range sess.Outputs.Types() {
		switch t {
		case session.OutputAssembly, session.OutputIR, session.OutputBitcode:
			if !backend.Supports(b, t) {
				sess.Log.AddWarning(errlog.WarningUnsupportedOutput, b.Name(), t.Shorthand())
			}
		}
	}

	var store *incremental.Store
	if dir := sess.IncrementalDir(); dir != "" {
		var err error
		if store, err = incremental.Open(ctx, dir); err != nil {
			return nil, err
		}
		defer func() {
			if err := store.Close(); err != nil {
				glog.Warningf("Failed to unlock the incremental cache: %v", err)
			}
		}()
	}
	classifier := &incremental.Classifier{
		Store:      store,
		Salt:       sess.Config.Salt() + backend.Salt(b),
		LTO:        opts.LTO,
		MainSymbol: p.MainSymbol,
		Required:   requiredKinds(requestedOutputs(sess, b)),
	}

	// Every unit is classified before the first one is dispatched.
	reuse := make([]incremental.Reuse, len(p.Units))
	fingerprints := make([]mono.Fingerprint, len(p.Units))
	for i, u := range p.Units {
		reuse[i], fingerprints[i] = classifier.Determine(u)
		tracker.SetActual(u.Name, reuse[i])
		if opts.DisableIncrCache {
			reuse[i] = incremental.ReuseNo
		}
	}

	limiter := NewConcurrencyLimiter(opts.Parallelism)
	inline := limiter.Limit() == 1
	ongoing := &ongoingCodegen{sess: sess, store: store, units: p.Units, postLto: opts.LTO}
	for i, u := range p.Units {
		u, fp := u, fingerprints[i]
		if reuse[i] != incremental.ReuseNo {
			ongoing.handles = append(ongoing.handles, &syncModule{result: reuseUnit(sess, store, u, reuse[i], fp)})
			continue
		}
		h, err := limiter.spawn(ctx, inline, func() *unitResult {
			return compileUnit(sess, b, p, u, fp)
		})
		if err != nil {
			h = &syncModule{result: &unitResult{reuse: incremental.ReuseNo, fingerprint: fp, err: err}}
		}
		ongoing.handles = append(ongoing.handles, h)
	}
	glog.V(3).Infof("Dispatched %v units with parallelism %v", len(p.Units), limiter.Limit())

	// The auxiliary modules are built while the workers run.
	if p.Allocator != mono.AllocatorNone {
		ongoing.allocator = compileAuxiliary(sess, b, AllocatorModuleName, ModuleAllocator, allocatorShim(p.Allocator))
	}
	if p.NeedsMetadataModule() || opts.EmbedMetadata {
		items, err := metadataItems(p)
		if err != nil {
			sess.Log.AddError(errlog.ErrorAuxiliaryModule, MetadataModuleName, err.Error())
		} else {
			ongoing.metadata = compileAuxiliary(sess, b, MetadataModuleName, ModuleMetadata, items)
		}
	}

	modules, products := ongoing.join()
	tracker.Check(sess.Log)
	glog.V(3).Infof("Codegen of %v units finished in %v, peak parallelism %v", len(p.Units), time.Since(start), limiter.Peak())
	if err := sess.Log.AbortIfErrors(); err != nil {
		ongoing.removeTemps(modules)
		return nil, err
	}

	if store != nil && !opts.DisableIncrCache {
		if err := store.Commit(products); err != nil {
			sess.Log.AddError(errlog.ErrorWorkProduct, "*", err.Error())
		}
		results.WorkProducts = products
	}
	results.Modules = modules
	results.AllocatorModule = ongoing.allocator
	results.MetadataModule = ongoing.metadata

	m := &materializer{sess: sess, results: results}
	m.run()
	if err := sess.Log.AbortIfErrors(); err != nil {
		return nil, err
	}
	return results, nil
}

// compileAuxiliary compiles a module that bypasses the incremental cache.
// Failures are logged and nil is returned.
func compileAuxiliary(sess *session.Session, b backend.Backend, name string, kind ModuleKind, items []mono.Item) *CompiledModule {
	c := &moduleCodegen{sess: sess, backend: b, name: name, kind: kind, items: items}
	modules, _, err := c.compile()
	if err != nil {
		sess.Log.AddError(errlog.ErrorAuxiliaryModule, name, err.Error())
		return nil
	}
	if len(modules) > 1 {
		glog.Warningf("Module %v produced unexpected global asm", name)
	}
	return modules[0]
}
