package main

import (
	"flag"
	"strconv"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/vs-ude/fyrbuild/internal/config"
)

type commonFlags struct {
	verbose         bool
	verbosity       int
	optionsFile     string
	buildTargetName string
	debug           bool
	opts            config.Options
}

func (f *commonFlags) register(cmd *cobra.Command) {
	f.opts = config.DefaultOptions()
	pf := cmd.PersistentFlags()
	pf.BoolVarP(&f.verbose, "verbose", "V", false, "More verbose output while compiling. Mostly helpful for compiler development.")
	pf.IntVar(&f.verbosity, "verbosity", 3, "Log level used by --verbose.")
	pf.StringVar(&f.optionsFile, "options", "", "YAML file with codegen options. Flags override its values.")
	pf.StringVarP(&f.buildTargetName, "target", "b", "", "Name of the build target. A JSON file of the same name must be located in the build_targets directory.")
	pf.BoolVarP(&f.debug, "debug", "d", false, "Choose the debug build target <build_target>-debug.")

	pf.StringVar(&f.opts.Backend, "backend", f.opts.Backend, "Code generator, one of "+usedBackends()+".")
	pf.StringVar(&f.opts.BackendConfig, "backend-config", "", "Path or name of the JSON backend configuration.")
	pf.IntVarP(&f.opts.Parallelism, "jobs", "j", f.opts.Parallelism, "Number of codegen units compiled at the same time.")
	pf.StringVar(&f.opts.Incremental, "incremental", "", "Directory of the incremental cache. Empty disables incremental compilation.")
	pf.BoolVar(&f.opts.DisableIncrCache, "disable-incr-cache", false, "Never reuse or save work products.")
	pf.BoolVarP(&f.opts.DebugInfo, "debuginfo", "g", false, "Emit debug information.")
	pf.BoolVar(&f.opts.UnwindTables, "unwind-tables", f.opts.UnwindTables, "Emit unwind tables.")
	pf.BoolVar(&f.opts.FunctionSections, "function-sections", false, "Place every function in its own section.")
	pf.BoolVar(&f.opts.LTO, "lto", false, "Link time optimization is performed on the objects.")
	pf.StringVar(&f.opts.TargetCPU, "target-cpu", "", "CPU to generate code for.")
	pf.BoolVar(&f.opts.SaveTemps, "save-temps", false, "Keep every temporary file.")
	pf.StringSliceVar(&f.opts.Emit, "emit", nil, "Outputs to produce: obj, asm, ir, bc, metadata, link, dep-info. A `kind=path` form sets the path, `-` is stdout.")
	pf.StringVar(&f.opts.OutDir, "out-dir", f.opts.OutDir, "Directory of the outputs and temporaries.")
	pf.StringVarP(&f.opts.OutputFile, "output", "o", "", "Output file, only honored when a single file is produced.")
	pf.BoolVar(&f.opts.EmbedMetadata, "embed-metadata", false, "Always emit the metadata module.")
}

// setupLogging maps --verbose onto glog.
func (f *commonFlags) setupLogging() error {
	if !f.verbose {
		return nil
	}
	if err := flag.Set("logtostderr", "true"); err != nil {
		return err
	}
	return flag.Set("v", strconv.Itoa(f.verbosity))
}

// loadConfig merges the options file, the flags that were set explicitly and the build target.
func (f *commonFlags) loadConfig(cmd *cobra.Command) (*config.Config, error) {
	opts := f.opts
	if f.optionsFile != "" {
		loaded, err := config.LoadOptions(f.optionsFile)
		if err != nil {
			return nil, err
		}
		opts = overrideOptions(cmd, loaded, f.opts)
	}
	opts.Producer = "fyrbuild " + version
	cfg, err := config.New(config.HostEnvironment(), opts)
	if err != nil {
		return nil, err
	}
	cfg.Verbose = f.verbose
	cfg.Target = config.HostBuildTarget()
	if f.buildTargetName != "" {
		name := f.buildTargetName
		if f.debug {
			name += "-debug"
		}
		path, err := config.LocateBuildTarget(cfg, name)
		if err != nil {
			return nil, err
		}
		if cfg.Target, err = config.LoadBuildTarget(path); err != nil {
			return nil, errors.Wrapf(err, "build target %v", name)
		}
	}
	if cfg.Options.TargetCPU == "" && cfg.Target.CPU != "" {
		cfg.Options.TargetCPU = cfg.Target.CPU
	}
	return cfg, nil
}

// overrideOptions applies the flags given on the command line on top of the loaded options.
func overrideOptions(cmd *cobra.Command, loaded, flags config.Options) config.Options {
	changed := func(name string) bool {
		return cmd.Flags().Changed(name)
	}
	if changed("backend") {
		loaded.Backend = flags.Backend
	}
	if changed("backend-config") {
		loaded.BackendConfig = flags.BackendConfig
	}
	if changed("jobs") {
		loaded.Parallelism = flags.Parallelism
	}
	if changed("incremental") {
		loaded.Incremental = flags.Incremental
	}
	if changed("disable-incr-cache") {
		loaded.DisableIncrCache = flags.DisableIncrCache
	}
	if changed("debuginfo") {
		loaded.DebugInfo = flags.DebugInfo
	}
	if changed("unwind-tables") {
		loaded.UnwindTables = flags.UnwindTables
	}
	if changed("function-sections") {
		loaded.FunctionSections = flags.FunctionSections
	}
	if changed("lto") {
		loaded.LTO = flags.LTO
	}
	if changed("target-cpu") {
		loaded.TargetCPU = flags.TargetCPU
	}
	if changed("save-temps") {
		loaded.SaveTemps = flags.SaveTemps
	}
	if changed("emit") {
		loaded.Emit = flags.Emit
	}
	if changed("out-dir") {
		loaded.OutDir = flags.OutDir
	}
	if changed("output") {
		loaded.OutputFile = flags.OutputFile
	}
	if changed("embed-metadata") {
		loaded.EmbedMetadata = flags.EmbedMetadata
	}
	return loaded
}

type buildFlags struct {
	stem        string
	metricsFile string
}

func (f *buildFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.stem, "stem", "", "File name stem of outputs and temporaries. Defaults to the crate name.")
	cmd.Flags().StringVar(&f.metricsFile, "metrics-file", "", "Write the codegen metrics in the Prometheus text format to this file.")
}
