package compiler

import (
	"bufio"
	"bytes"
	"fmt"
	"strings"

	"go.trai.ch/zerr"
)

const (
	// MinimumVersion is the oldest GraalVM release that can build images
	MinimumVersion = "19.3.1"

	versionPrefix = "GraalVM Version "
)

var obsoleteVersionPrefixes = []string{"1.0.0", "19.0.", "19.1.", "19.2.", "19.3.0"}

// ParseVersion extracts the version from `native-image --version` output.
// The first line starting with "GraalVM Version " wins.
func ParseVersion(output []byte) (string, bool) {
	scanner := bufio.NewScanner(bytes.NewReader(output))
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if version, ok := strings.CutPrefix(line, versionPrefix); ok {
			return strings.TrimSpace(version), true
		}
	}

	return "", false
}

// CheckVersion rejects GraalVM versions older than MinimumVersion
func CheckVersion(version string) error {
	for _, prefix := range obsoleteVersionPrefixes {
		if strings.HasPrefix(version, prefix) {
			err := zerr.Wrap(ErrObsoleteVersion, fmt.Sprintf("GraalVM %s detected, please upgrade to GraalVM %s", version, MinimumVersion))
			return zerr.With(zerr.With(err, "version", version), "minimum", MinimumVersion)
		}
	}

	return nil
}
