package driver

import (
	"github.com/golang/glog"
	"github.com/pkg/errors"
	"github.com/vs-ude/fyrbuild/internal/incremental"
	"github.com/vs-ude/fyrbuild/internal/mono"
	"github.com/vs-ude/fyrbuild/internal/session"
)

// reuseUnit copies the saved files of a unit out of the store into the session's temporaries.
func reuseUnit(sess *session.Session, store *incremental.Store, u *mono.CompilationUnit, reuse incremental.Reuse, fp mono.Fingerprint) (result *unitResult) {
	result = &unitResult{reuse: reuse, fingerprint: fp}
	defer func() {
		sess.Metrics.ObserveReuse(reuse.String(), result.err)
	}()
	wp, ok := store.Previous(u.Name)
	if !ok {
		result.err = errors.Errorf("no work product for %v", u.Name)
		return result
	}
	result.previous = wp

	module := &CompiledModule{Name: u.Name, Kind: ModuleRegular}
	var companion *CompiledModule
	for _, kind := range []string{incremental.KindObject, incremental.KindAsmObject, incremental.KindAssembly, incremental.KindIR, incremental.KindBitcode} {
		file, ok := wp.SavedFiles[kind]
		if !ok {
			continue
		}
		var dst string
		switch kind {
		case incremental.KindObject:
			dst = sess.Outputs.TempPath(session.OutputObject, u.Name)
			module.Object = dst
		case incremental.KindAsmObject:
			name := u.Name + ".asm"
			dst = sess.Outputs.TempPath(session.OutputObject, name)
			companion = &CompiledModule{Name: name, Kind: ModuleRegular, Object: dst}
		case incremental.KindAssembly:
			dst = sess.Outputs.TempPath(session.OutputAssembly, u.Name)
			module.Assembly = dst
		case incremental.KindIR:
			dst = sess.Outputs.TempPath(session.OutputIR, u.Name)
			module.IR = dst
		case incremental.KindBitcode:
			dst = sess.Outputs.TempPath(session.OutputBitcode, u.Name)
			module.Bytecode = dst
		}
		// The destination is recorded before the copy, so an abort also removes the files copied so far.
		if err := incremental.LinkOrCopy(store.Path(file), dst); err != nil {
			result.modules = collectReused(module, companion)
			result.err = errors.Wrapf(err, "failed to copy %v", file)
			return result
		}
	}
	result.modules = collectReused(module, companion)
	for _, m := range result.modules {
		observeFiles(sess, m)
	}
	glog.V(3).Infof("Reusing codegen unit %v (%v)", u.Name, reuse)
	return result
}

func collectReused(module, companion *CompiledModule) []*CompiledModule {
	if companion == nil {
		return []*CompiledModule{module}
	}
	return []*CompiledModule{module, companion}
}
