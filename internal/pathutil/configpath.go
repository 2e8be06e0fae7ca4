// Package pathutil locates and writes config files.
package pathutil

import (
	"encoding/json"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"

	"github.com/mitchellh/go-homedir"
	"github.com/pkg/errors"
	"github.com/skycoin/skycoin/src/util/logging"
)

var log = logging.MustGetLogger("pathutil")

// ConfigFile is the name of the node config file.
const ConfigFile = "datalink-config.json"

// ErrConfigNotFound is returned when no candidate config path exists.
var ErrConfigNotFound = errors.New("config not found")

// ErrFileExists is returned by WriteJSONConfig when it may not replace a file.
var ErrFileExists = errors.New("file already exists")

// ConfigLocationType describes a config path's location type.
type ConfigLocationType string

const (
	// WorkingDirLoc is the working directory.
	WorkingDirLoc = ConfigLocationType("WD")

	// HomeLoc is ~/.skycoin/datalink.
	HomeLoc = ConfigLocationType("HOME")

	// LocalLoc is /usr/local/skycoin/datalink.
	LocalLoc = ConfigLocationType("LOCAL")
)

// String implements fmt.Stringer for ConfigLocationType.
func (t ConfigLocationType) String() string {
	return string(t)
}

// Set implements pflag.Value for ConfigLocationType.
func (t *ConfigLocationType) Set(s string) error {
	for _, v := range AllConfigLocationTypes() {
		if strings.EqualFold(s, string(v)) {
			*t = v
			return nil
		}
	}
	return fmt.Errorf("invalid config location type %q, valid types: %v", s, AllConfigLocationTypes())
}

// Type implements pflag.Value for ConfigLocationType.
func (t ConfigLocationType) Type() string {
	return "pathutil.ConfigLocationType"
}

// AllConfigLocationTypes returns all valid config location types in search order.
func AllConfigLocationTypes() []ConfigLocationType {
	return []ConfigLocationType{WorkingDirLoc, HomeLoc, LocalLoc}
}

// ConfigPaths maps location types to config paths.
type ConfigPaths map[ConfigLocationType]string

// String implements fmt.Stringer for ConfigPaths.
func (dp ConfigPaths) String() string {
	var paths []string
	for _, t := range AllConfigLocationTypes() {
		if p, ok := dp[t]; ok {
			paths = append(paths, p)
		}
	}
	return strings.Join(paths, ", ")
}

// HomeDir returns the user's home directory, or "." if it cannot be found.
func HomeDir() string {
	dir, err := homedir.Dir()
	if err != nil {
		log.WithError(err).Warn("failed to find home directory")
		return "."
	}
	return dir
}

// NodeDefaults returns the default config paths of datalink-node.
func NodeDefaults() ConfigPaths {
	paths := make(ConfigPaths)
	if wd, err := os.Getwd(); err == nil {
		paths[WorkingDirLoc] = filepath.Join(wd, ConfigFile)
	}
	paths[HomeLoc] = filepath.Join(HomeDir(), ".skycoin", "datalink", ConfigFile)
	paths[LocalLoc] = filepath.Join("/usr/local/skycoin/datalink", ConfigFile)
	return paths
}

// FindConfigPath looks for a config file in the following order:
// - args[argsIndex], if argsIndex >= 0 and it is set.
// - The env variable, if set.
// - The first default path that exists.
func FindConfigPath(args []string, argsIndex int, env string, defaults ConfigPaths) (string, error) {
	if argsIndex >= 0 && len(args) > argsIndex {
		path := args[argsIndex]
		log.Infof("using args[%d] as config path: %s", argsIndex, path)
		return path, nil
	}
	if env != "" {
		if path, ok := os.LookupEnv(env); ok {
			log.Infof("using $%s as config path: %s", env, path)
			return path, nil
		}
	}
	log.Debug("config path is not explicitly specified, trying default paths...")
	for i, t := range AllConfigLocationTypes() {
		path, ok := defaults[t]
		if !ok {
			continue
		}
		if _, err := os.Stat(path); err != nil {
			log.Debugf("- [%d/%d] '%s' cannot be accessed: %s", i+1, len(defaults), path, err)
			continue
		}
		log.Infof("using fallback config path: %s", path)
		return path, nil
	}
	return "", errors.Wrapf(ErrConfigNotFound, "searched %s", defaults)
}

// WriteJSONConfig writes conf as indented JSON to output, creating parent
// directories. An existing file is only replaced when replace is set.
func WriteJSONConfig(conf interface{}, output string, replace bool) error {
	raw, err := json.MarshalIndent(conf, "", "\t")
	if err != nil {
		return err
	}
	if _, err := os.Stat(output); !replace && err == nil {
		return errors.Wrapf(ErrFileExists, "%s", output)
	}
	if err := os.MkdirAll(filepath.Dir(output), 0750); err != nil {
		return fmt.Errorf("failed to create output directory: %s", err)
	}
	if err := ioutil.WriteFile(output, raw, 0644); err != nil {
		return fmt.Errorf("failed to write file: %s", err)
	}
	log.Infof("Wrote %d bytes to %s", len(raw), output)
	return nil
}
