package incremental

import (
	"sort"
	"sync"

	"github.com/golang/glog"
	"github.com/vs-ude/fyrbuild/internal/errlog"
	"github.com/vs-ude/fyrbuild/internal/mono"
)

// Reuse is the decision whether the objects of a unit can be taken from the cache.
type Reuse int

const (
	// ReuseNo means the unit must be compiled.
	ReuseNo Reuse = iota
	// ReusePreLto means the cached object matches and has not been through LTO.
	ReusePreLto
	// ReusePostLto means the cached object matches and is already optimized by LTO.
	ReusePostLto
)

// String ...
func (r Reuse) String() string {
	switch r {
	case ReuseNo:
		return "no"
	case ReusePreLto:
		return "pre-lto"
	case ReusePostLto:
		return "post-lto"
	}
	return "unknown"
}

// Classifier decides the reuse of units against the store.
type Classifier struct {
	// Store is nil when there is no incremental directory.
	Store *Store
	Salt  string
	LTO   bool
	// MainSymbol is called by the entry wrapper of the primary unit.
	MainSymbol string
	// Required lists the file kinds besides the object a reusable work product must have saved.
	Required []string
}

// Determine returns the reuse decision and the current fingerprint of a unit.
func (c *Classifier) Determine(u *mono.CompilationUnit) (Reuse, mono.Fingerprint) {
	salt := c.Salt
	if u.Primary {
		salt += "\x00main=" + c.MainSymbol
	}
	fp := mono.FingerprintUnit(u, salt)
	if c.Store == nil {
		return ReuseNo, fp
	}
	wp, ok := c.Store.Previous(u.Name)
	if !ok || wp.Fingerprint != fp {
		return ReuseNo, fp
	}
	for _, kind := range append([]string{KindObject}, c.Required...) {
		if _, ok := wp.SavedFiles[kind]; !ok {
			return ReuseNo, fp
		}
	}
	if wp.PostLto && c.LTO {
		return ReusePostLto, fp
	}
	return ReusePreLto, fp
}

// Tracker records the reuse decision of every unit of a session.
// Tests and the front-end can register expectations that are verified by Check.
type Tracker struct {
	mu       sync.Mutex
	actual   map[string]Reuse
	expected map[string]Reuse
}

// NewTracker ...
func NewTracker() *Tracker {
	return &Tracker{actual: make(map[string]Reuse), expected: make(map[string]Reuse)}
}

// SetActual records the decision of a unit.
func (t *Tracker) SetActual(cgu string, r Reuse) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.actual[cgu] = r
}

// Actual ...
func (t *Tracker) Actual(cgu string) (Reuse, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	r, ok := t.actual[cgu]
	return r, ok
}

// Expect registers the decision a unit is expected to get.
func (t *Tracker) Expect(cgu string, r Reuse) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.expected[cgu] = r
}

// Check logs a warning for every expectation that was not met.
func (t *Tracker) Check(log *errlog.ErrorLog) {
	t.mu.Lock()
	defer t.mu.Unlock()
	names := make([]string, 0, len(t.expected))
	for name := range t.expected {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		want := t.expected[name]
		got, ok := t.actual[name]
		if !ok {
			log.AddWarning(errlog.WarningReuseMismatch, name, want.String(), "unknown")
			continue
		}
		if got != want {
			log.AddWarning(errlog.WarningReuseMismatch, name, want.String(), got.String())
			continue
		}
		glog.V(5).Infof("Codegen unit %v was reused as expected (%v)", name, got)
	}
}
