package config

import (
	"os"
	"path/filepath"
)

// localConfigBase names project configuration files, e.g. .aotc.yml
const localConfigBase = ".aotc"

// configExtensions are tried in order in each directory
var configExtensions = []string{"yml", "yaml", "json", "toml"}

// configFileIn returns the first regular file base.<ext> in dir
func configFileIn(dir, base string) string {
	for _, ext := range configExtensions {
		path := filepath.Join(dir, base+"."+ext)

		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path
		}
	}

	return ""
}

// FindLocalConfig returns the project configuration nearest to runnerJar,
// searching its directory and then each parent up to the filesystem root.
// It returns "" when there is none.
func FindLocalConfig(runnerJar string) string {
	for dir := filepath.Dir(runnerJar); ; {
		if path := configFileIn(dir, localConfigBase); path != "" {
			return path
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}

		dir = parent
	}
}
