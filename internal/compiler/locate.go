package compiler

import (
	"os"
	"path/filepath"
	"runtime"

	"go.trai.ch/zerr"
)

// ExecutableName is the native-image launcher for the host OS
func ExecutableName() string {
	if runtime.GOOS == "windows" {
		return "native-image.cmd"
	}

	return "native-image"
}

// SearchPaths lists where LocateExecutable looks for native-image
type SearchPaths struct {
	// Override is an explicit path to the executable
	Override string

	// GraalVMHome is searched in its bin directory
	GraalVMHome string

	// JavaHome is searched in its bin directory
	JavaHome string

	// Path is a PATH style directory list
	Path string
}

// LocateExecutable returns the first native-image found, trying the
// override, GraalVM home, Java home and then every PATH directory
func LocateExecutable(paths SearchPaths) (string, error) {
	name := ExecutableName()

	var candidates []string
	if paths.Override != "" {
		candidates = append(candidates, paths.Override)
	}

	if paths.GraalVMHome != "" {
		candidates = append(candidates, filepath.Join(paths.GraalVMHome, "bin", name))
	}

	if paths.JavaHome != "" {
		candidates = append(candidates, filepath.Join(paths.JavaHome, "bin", name))
	}

	for _, dir := range filepath.SplitList(paths.Path) {
		if dir == "" {
			continue
		}

		candidates = append(candidates, filepath.Join(dir, name))
	}

	for _, candidate := range candidates {
		info, err := os.Stat(candidate)
		if err == nil && !info.IsDir() {
			abs, err := filepath.Abs(candidate)
			if err != nil {
				return candidate, nil
			}

			return abs, nil
		}
	}

	return "", zerr.With(zerr.Wrap(ErrExecutableNotFound, "executable lookup failed"), "name", name)
}
