package incremental

import (
	"context"
	"encoding/json"
	"io/ioutil"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/gofrs/flock"
	"github.com/golang/glog"
	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/vs-ude/fyrbuild/internal/mono"
)

const (
	indexFile = "work-products.json"
	lockFile  = ".lock"
)

// File kinds of a work product.
const (
	// KindObject is the object file of a codegen unit.
	KindObject = "o"
	// KindAsmObject is the object file assembled from the global asm of a codegen unit.
	KindAsmObject = "asm.o"
	// KindAssembly, KindIR and KindBitcode are the textual and bitcode outputs of a codegen unit.
	KindAssembly = "s"
	KindIR       = "ir"
	KindBitcode  = "bc"
)

// WorkProduct records the files a codegen unit produced in an earlier session.
type WorkProduct struct {
	CguName     string           `json:"cgu_name"`
	Fingerprint mono.Fingerprint `json:"fingerprint"`
	// SavedFiles maps a file kind to a file name inside the store directory.
	SavedFiles map[string]string `json:"saved_files"`
	PostLto    bool              `json:"post_lto"`
}

type index struct {
	Version  int            `json:"version"`
	Products []*WorkProduct `json:"products"`
}

const indexVersion = 1

// Store is the on-disk cache of work products in the incremental directory.
// The store holds a file lock while it is open, so two sessions never share a directory.
type Store struct {
	dir      string
	lock     *flock.Flock
	previous map[string]*WorkProduct
}

// Open locks the incremental directory and loads the work products of the previous session.
// A missing or unreadable index yields an empty store.
func Open(ctx context.Context, dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "failed to create incremental directory %v", dir)
	}
	lock := flock.New(filepath.Join(dir, lockFile))
	locked, err := lock.TryLockContext(ctx, 100*time.Millisecond)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to lock incremental directory %v", dir)
	}
	if !locked {
		return nil, errors.Errorf("incremental directory %v is in use by another session", dir)
	}
	s := &Store{dir: dir, lock: lock, previous: make(map[string]*WorkProduct)}
	data, err := ioutil.ReadFile(filepath.Join(dir, indexFile))
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		lock.Unlock()
		return nil, errors.Wrap(err, "failed to read the work product index")
	}
	var idx index
	if err := json.Unmarshal(data, &idx); err != nil || idx.Version != indexVersion {
		glog.Warningf("Discarding the work product index in %v: unreadable or outdated", dir)
		return s, nil
	}
	for _, wp := range idx.Products {
		s.previous[wp.CguName] = wp
	}
	glog.V(3).Infof("Loaded %d work products from %v", len(s.previous), dir)
	return s, nil
}

// Dir ...
func (s *Store) Dir() string {
	return s.dir
}

// Previous returns the work product a unit left in the previous session.
func (s *Store) Previous(cgu string) (*WorkProduct, bool) {
	wp, ok := s.previous[cgu]
	return wp, ok
}

// Path returns the location of a saved file.
func (s *Store) Path(file string) string {
	return filepath.Join(s.dir, file)
}

// savedName names a saved file after its unit, fingerprint and kind. Files of a new
// fingerprint never replace the files the committed index still refers to.
func savedName(cgu string, fp mono.Fingerprint, kind string) string {
	short := string(fp)
	if len(short) > 16 {
		short = short[:16]
	}
	return cgu + "." + short + "." + kind
}

// CopyToCache saves the files of a freshly compiled unit and returns its new work product.
// `files` maps a file kind to the path of the file in the session.
// The index is not touched until Commit.
func (s *Store) CopyToCache(cgu string, fp mono.Fingerprint, postLto bool, files map[string]string) (*WorkProduct, error) {
	wp := &WorkProduct{CguName: cgu, Fingerprint: fp, SavedFiles: make(map[string]string), PostLto: postLto}
	kinds := make([]string, 0, len(files))
	for kind := range files {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	for _, kind := range kinds {
		name := savedName(cgu, fp, kind)
		if err := LinkOrCopy(files[kind], s.Path(name)); err != nil {
			return nil, errors.Wrapf(err, "failed to save %v file of %v", kind, cgu)
		}
		wp.SavedFiles[kind] = name
	}
	return wp, nil
}

// Commit replaces the index with the given work products and deletes saved files
// that no work product refers to.
func (s *Store) Commit(products map[string]*WorkProduct) error {
	idx := index{Version: indexVersion}
	live := make(map[string]bool)
	for _, wp := range products {
		idx.Products = append(idx.Products, wp)
		for _, f := range wp.SavedFiles {
			live[f] = true
		}
	}
	sort.Slice(idx.Products, func(i, j int) bool { return idx.Products[i].CguName < idx.Products[j].CguName })
	data, err := json.MarshalIndent(&idx, "", "  ")
	if err != nil {
		return err
	}
	if err := s.writeAtomic(indexFile, data); err != nil {
		return errors.Wrap(err, "failed to write the work product index")
	}
	live[indexFile] = true
	live[lockFile] = true
	entries, err := ioutil.ReadDir(s.dir)
	if err != nil {
		return errors.Wrap(err, "failed to list the incremental directory")
	}
	// Files of aborted sessions were never indexed, so the directory is swept instead of the old index.
	var result *multierror.Error
	for _, e := range entries {
		if e.IsDir() || live[e.Name()] {
			continue
		}
		if err := os.Remove(s.Path(e.Name())); err != nil && !os.IsNotExist(err) {
			result = multierror.Append(result, err)
		}
	}
	s.previous = make(map[string]*WorkProduct, len(products))
	for name, wp := range products {
		s.previous[name] = wp
	}
	glog.V(3).Infof("Committed %d work products to %v", len(products), s.dir)
	return result.ErrorOrNil()
}

func (s *Store) writeAtomic(name string, data []byte) error {
	tmpName := s.Path(name + "." + uuid.New().String() + ".tmp")
	if err := ioutil.WriteFile(tmpName, data, 0o644); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, s.Path(name)); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

// Close releases the directory lock.
func (s *Store) Close() error {
	return s.lock.Unlock()
}
