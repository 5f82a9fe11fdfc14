package config

import (
	"encoding/json"
	"io/ioutil"
	"os"
	"path/filepath"
	"runtime"

	"github.com/pkg/errors"
)

// BuildTargetConfig ...
type BuildTargetConfig struct {
	Name                 string          `json:"name"`
	HardwareArchitecture string          `json:"arch"`
	OperatingSystem      string          `json:"os"`
	CPU                  string          `json:"cpu"`
	C99                  *BuildTargetC99 `json:"c99"`
}

// BuildTargetC99 ...
type BuildTargetC99 struct {
	Compiler  *BuildTargetC99Compiler  `json:"compiler"`
	Assembler *BuildTargetC99Assembler `json:"assembler"`
}

// BuildTargetC99Compiler ...
type BuildTargetC99Compiler struct {
	Command string   `json:"command"`
	Flags   []string `json:"flags"`
}

// BuildTargetC99Assembler ...
type BuildTargetC99Assembler struct {
	Command string   `json:"command"`
	Flags   []string `json:"flags"`
}

// HostBuildTarget describes the machine the compiler runs on.
func HostBuildTarget() *BuildTargetConfig {
	t := &BuildTargetConfig{HardwareArchitecture: runtime.GOARCH, OperatingSystem: runtime.GOOS}
	t.Name = t.PlatformName()
	return t
}

// PlatformName returns `<arch>-<os>`. A nil target is the host.
func (t *BuildTargetConfig) PlatformName() string {
	if t == nil {
		return runtime.GOARCH + "-" + runtime.GOOS
	}
	return t.HardwareArchitecture + "-" + t.OperatingSystem
}

// LocateBuildTarget searches `<name>.json` in `<FYRBASE>/build_targets` and in the
// user configuration directory.
func LocateBuildTarget(c *Config, name string) (string, error) {
	candidates := []string{
		filepath.Join(c.ConfDirPath, "build_targets", name+".json"),
	}
	if c.FyrBase != "" {
		candidates = append([]string{filepath.Join(c.FyrBase, "build_targets", name+".json")}, candidates...)
	}
	for _, filename := range candidates {
		if _, err := os.Stat(filename); err == nil {
			return filename, nil
		}
	}
	return "", errors.Errorf("failed to find build target file for target %v", name)
}

// LoadBuildTarget reads a build target file.
// A missing file or a directory yields the host target.
func LoadBuildTarget(filename string) (*BuildTargetConfig, error) {
	stat, err := os.Stat(filename)
	if err != nil || stat.IsDir() {
		return HostBuildTarget(), nil
	}
	data, err := ioutil.ReadFile(filename)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read build target file %v", filename)
	}
	cfg := &BuildTargetConfig{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrapf(err, "failed to parse build target file %v", filename)
	}
	if cfg.HardwareArchitecture == "" {
		cfg.HardwareArchitecture = runtime.GOARCH
	}
	if cfg.OperatingSystem == "" {
		cfg.OperatingSystem = runtime.GOOS
	}
	cfg.Name = cfg.PlatformName()
	return cfg, nil
}
