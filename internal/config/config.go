package config

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// Config holds the configuration of one compiler invocation.
// It is built once before the pipeline starts and is never mutated afterwards,
// so it can be handed to every worker without synchronization.
type Config struct {
	FyrBase      string `json:"FYRBASE"`
	FyrPath      string `json:"FYRPATH"` // may be empty
	CacheDirPath string
	ConfDirPath  string
	Verbose      bool               `json:"-"` // this field is governed by a run flag
	Options      Options            `json:"options"`
	Target       *BuildTargetConfig `json:"target,omitempty"`
}

// Environment is the source of environment variables and user directories.
// Tests substitute it to avoid depending on the host.
type Environment struct {
	Getenv        func(string) string
	UserCacheDir  func() (string, error)
	UserConfigDir func() (string, error)
}

// HostEnvironment reads the process environment.
func HostEnvironment() Environment {
	return Environment{Getenv: os.Getenv, UserCacheDir: os.UserCacheDir, UserConfigDir: os.UserConfigDir}
}

// New creates a configuration from the given environment and options.
func New(env Environment, opts Options) (*Config, error) {
	cacheDir, err := getFyrDirectory(env.UserCacheDir())
	if err != nil {
		return nil, errors.Wrap(err, "determining the cache directory")
	}
	confDir, err := getFyrDirectory(env.UserConfigDir())
	if err != nil {
		return nil, errors.Wrap(err, "determining the config directory")
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return &Config{
		FyrBase:      env.Getenv("FYRBASE"),
		FyrPath:      env.Getenv("FYRPATH"),
		CacheDirPath: cacheDir,
		ConfDirPath:  confDir,
		Options:      opts,
	}, nil
}

// getFyrDirectory returns the Fyr-specific path of user/system directories if it can be determined.
func getFyrDirectory(path string, err error) (string, error) {
	if err != nil {
		return "", err
	}
	return filepath.Join(path, "fyrlang"), nil
}

// IncrementalDir returns the directory of the incremental cache, or an empty string
// if incremental compilation is disabled.
func (c *Config) IncrementalDir() string {
	return c.Options.Incremental
}

// PlatformName returns the `<arch>-<os>` name of the configured target.
func (c *Config) PlatformName() string {
	return c.Target.PlatformName()
}

// PrintConf prints the configuration to `w` in JSON format.
func (c *Config) PrintConf(w io.Writer) {
	prettyConf, _ := json.MarshalIndent(c, "", "    ")
	fmt.Fprintln(w, string(prettyConf))
}

// Salt extends the option salt with the build target, whose compiler and flags change the bytes of every object.
func (c *Config) Salt() string {
	h := sha256.New()
	fmt.Fprintf(h, "options=%s\x00", c.Options.Salt())
	if c.Target != nil {
		data, err := json.Marshal(c.Target)
		if err != nil {
			panic(err)
		}
		h.Write(data)
	}
	return hex.EncodeToString(h.Sum(nil))
}
