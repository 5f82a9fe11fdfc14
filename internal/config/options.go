package config

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/ioutil"
	"runtime"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Options are the codegen options of a session.
type Options struct {
	// Backend names the code generator, one of "obj", "c99" or "spirv".
	Backend string `yaml:"backend" json:"backend"`
	// BackendConfig is the path or name of a backend specific JSON configuration.
	BackendConfig string `yaml:"backend_config" json:"backend_config,omitempty"`
	// Parallelism bounds the number of units compiled at the same time.
	Parallelism int `yaml:"parallelism" json:"parallelism"`
	// Incremental is the incremental cache directory. Empty disables incremental compilation.
	Incremental string `yaml:"incremental" json:"incremental,omitempty"`
	// DisableIncrCache keeps classifying units but never reuses or stores work products.
	DisableIncrCache bool `yaml:"disable_incr_cache" json:"disable_incr_cache"`
	DebugInfo        bool   `yaml:"debuginfo" json:"debuginfo"`
	UnwindTables     bool   `yaml:"unwind_tables" json:"unwind_tables"`
	FunctionSections bool   `yaml:"function_sections" json:"function_sections"`
	LTO              bool   `yaml:"lto" json:"lto"`
	TargetCPU        string `yaml:"target_cpu" json:"target_cpu,omitempty"`
	// SaveTemps keeps every temporary file.
	SaveTemps bool `yaml:"save_temps" json:"save_temps"`
	// Emit lists the requested outputs, e.g. "obj" or "asm=out.s".
	Emit       []string `yaml:"emit" json:"emit"`
	OutDir     string   `yaml:"out_dir" json:"out_dir"`
	OutputFile string   `yaml:"output" json:"output,omitempty"`
	// EmbedMetadata forces the metadata module even for crate types that do not need it.
	EmbedMetadata bool `yaml:"embed_metadata" json:"embed_metadata"`
	// Producer is written into every object file.
	Producer string `yaml:"-" json:"producer"`
}

// DefaultOptions ...
func DefaultOptions() Options {
	return Options{
		Backend:      "obj",
		Parallelism:  runtime.NumCPU(),
		UnwindTables: true,
		OutDir:       ".",
		Producer:     "fyrbuild",
	}
}

// LoadOptions reads options from a YAML file on top of the defaults.
func LoadOptions(path string) (Options, error) {
	opts := DefaultOptions()
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return opts, errors.Wrapf(err, "failed to read options file %v", path)
	}
	if err := yaml.Unmarshal(data, &opts); err != nil {
		return opts, errors.Wrapf(err, "failed to parse options file %v", path)
	}
	return opts, nil
}

// Validate checks the options for contradictions.
func (o *Options) Validate() error {
	if o.Parallelism < 0 {
		return errors.Errorf("parallelism must not be negative, got %d", o.Parallelism)
	}
	if o.Parallelism == 0 {
		o.Parallelism = runtime.NumCPU()
	}
	switch o.Backend {
	case "obj", "c99", "spirv":
	case "":
		o.Backend = "obj"
	default:
		return errors.Errorf("unknown backend %q", o.Backend)
	}
	if o.OutDir == "" {
		o.OutDir = "."
	}
	return nil
}

// Salt returns a digest of every option that changes the bytes of an object file.
// It is mixed into the fingerprint of every codegen unit.
func (o *Options) Salt() string {
	h := sha256.New()
	fmt.Fprintf(h, "backend=%s\x00backend_config=%s\x00debuginfo=%t\x00unwind=%t\x00fsections=%t\x00cpu=%s\x00producer=%s\x00",
		o.Backend, o.BackendConfig, o.DebugInfo, o.UnwindTables, o.FunctionSections, o.TargetCPU, o.Producer)
	return hex.EncodeToString(h.Sum(nil))
}
