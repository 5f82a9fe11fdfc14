package driver

import (
	"os"

	"github.com/golang/glog"
	"github.com/vs-ude/fyrbuild/internal/errlog"
	"github.com/vs-ude/fyrbuild/internal/incremental"
	"github.com/vs-ude/fyrbuild/internal/mono"
	"github.com/vs-ude/fyrbuild/internal/session"
)

// ongoingCodegen is the state of a session between dispatch and join.
type ongoingCodegen struct {
	sess  *session.Session
	store *incremental.Store
	units []*mono.CompilationUnit
	// handles are in partition order.
	handles []ongoingModule
	// postLto is recorded in the work products of fresh units.
	postLto bool

	allocator *CompiledModule
	metadata  *CompiledModule
}

// join waits for every unit in partition order.
// Every unit error is logged. A worker panic is re-raised on the calling goroutine.
func (c *ongoingCodegen) join() ([]*CompiledModule, map[string]*incremental.WorkProduct) {
	var modules []*CompiledModule
	products := make(map[string]*incremental.WorkProduct)
	saveProducts := c.store != nil && !c.sess.Options().DisableIncrCache
	for i, h := range c.handles {
		u := c.units[i]
		r := h.wait()
		// The files of a failed unit are removed together with the others on abort.
		modules = append(modules, r.modules...)
		if r.err != nil {
			if r.reuse == incremental.ReuseNo {
				c.sess.Log.AddError(errlog.ErrorUnitCompile, u.Name, r.err.Error())
			} else {
				c.sess.Log.AddError(errlog.ErrorCacheCopy, u.Name, r.err.Error())
			}
			continue
		}
		if !saveProducts {
			continue
		}
		if r.previous != nil {
			products[u.Name] = r.previous
			continue
		}
		wp, err := c.store.CopyToCache(u.Name, r.fingerprint, c.postLto, r.saved)
		if err != nil {
			c.sess.Log.AddError(errlog.ErrorWorkProduct, u.Name, err.Error())
			continue
		}
		products[u.Name] = wp
	}
	return modules, products
}

// removeTemps deletes the temporaries of an aborted session.
func (c *ongoingCodegen) removeTemps(modules []*CompiledModule) {
	if c.sess.Options().SaveTemps {
		return
	}
	all := append([]*CompiledModule(nil), modules...)
	for _, m := range []*CompiledModule{c.allocator, c.metadata} {
		if m != nil {
			all = append(all, m)
		}
	}
	for _, m := range all {
		for _, f := range m.files() {
			if err := os.Remove(f); err != nil && !os.IsNotExist(err) {
				glog.Warningf("Failed to remove %v: %v", f, err)
			}
		}
	}
}
