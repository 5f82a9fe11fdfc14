package backend

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/golang/glog"
	"github.com/pkg/errors"
	"github.com/vs-ude/fyrbuild/internal/config"
)

// Config is the interface backends need to implement in order to be configurable.
type Config interface {
	Default()
	Name() string
	CheckConfig() ([]string, error)
}

// PrintConfig prints the given config in formatted JSON.
func PrintConfig(w io.Writer, c Config) {
	conf, _ := json.MarshalIndent(c, "", "    ")
	fmt.Fprintln(w, string(conf))
}

// LoadConfig checks the existence of the given configuration file and parses it into the provided config struct.
func LoadConfig(path string, c Config, cfg *config.Config) error {
	path, err := expandConfigPath(path, c, cfg)
	if err != nil {
		return err
	}
	file, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, "the backend configuration could not be opened")
	}
	defer file.Close()
	return errors.Wrapf(readConfig(file, c), "backend configuration %v", path)
}

func readConfig(r io.Reader, c Config) error {
	jsonParser := json.NewDecoder(r)
	if err := jsonParser.Decode(c); err != nil {
		return errors.Wrap(err, "the backend configuration file contains invalid JSON")
	}
	warnings, err := c.CheckConfig()
	if warnings != nil {
		printWarnings(c, warnings)
	}
	if err != nil {
		return errors.Wrap(err, "the backend configuration file contains errors")
	}
	return nil
}

// expandConfigPath checks if the file exists in $WORKDIR/, $CONFDIR/backend/`c.Name()`/, or $FYRBASE/configs/backend/`c.Name()`,
// in this order and returns the absolute path to it.
func expandConfigPath(p string, c Config, cfg *config.Config) (string, error) {
	if _, err := os.Stat(p); err == nil {
		return filepath.Abs(p)
	}
	candidates := []string{filepath.Join(cfg.ConfDirPath, "backend", c.Name(), p)}
	if cfg.FyrBase != "" {
		candidates = append(candidates, filepath.Join(cfg.FyrBase, "configs", "backend", c.Name(), p))
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", errors.Errorf("the backend configuration file %v could not be located, "+
		"please make sure you have provided a correct path or name for the file", p)
}

func printWarnings(c Config, warnings []string) {
	glog.Warningf("The %v configuration contains possible issues!", c.Name())
	for _, warning := range warnings {
		glog.Warning(warning)
	}
}
