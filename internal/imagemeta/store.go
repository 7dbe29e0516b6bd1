// Package imagemeta remembers which native-image version a builder image
// contains, so containerized builds do not have to start the image only to
// ask for its version.
//
// Records are an optimization: read and write failures are logged and
// otherwise ignored, which simply forces a fresh version probe.
package imagemeta

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/Norgate-AV/aotc/internal/logger"
	"github.com/Norgate-AV/aotc/internal/props"
)

const (
	// DefaultDir is the default store location relative to the user's home directory
	DefaultDir = ".aotc/builder-image-metadata"

	metadataFile = "metadata.properties"
	versionKey   = "nativeImageCommandVersion"
)

// Metadata is what is known about a builder image
type Metadata struct {
	NativeImageVersion string
}

// Store persists Metadata per builder image under a root directory
type Store struct {
	root   string
	logger *slog.Logger
}

// New creates a store rooted at root. A nil logger discards warnings.
func New(root string, log *slog.Logger) *Store {
	return &Store{
		root:   root,
		logger: logger.OrDiscard(log),
	}
}

// Default creates a store in DefaultDir under the user's home directory
func Default(log *slog.Logger) (*Store, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}

	return New(filepath.Join(home, DefaultDir), log), nil
}

// Root returns the store's root directory
func (s *Store) Root() string {
	return s.root
}

// Retrieve returns the metadata recorded for image, if any
func (s *Store) Retrieve(image string) (Metadata, bool) {
	path := s.path(image)

	values, err := props.Load(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn("could not read builder image metadata", "path", path, "error", err)
		}

		return Metadata{}, false
	}

	version := values[versionKey]
	if version == "" {
		return Metadata{}, false
	}

	return Metadata{NativeImageVersion: version}, true
}

// Store records md for image, overwriting any previous record
func (s *Store) Store(image string, md Metadata) {
	path := s.path(image)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		s.logger.Warn("could not create builder image metadata directory", "path", filepath.Dir(path), "error", err)
		return
	}

	values := map[string]string{versionKey: md.NativeImageVersion}
	if err := props.Store(path, values, ""); err != nil {
		s.logger.Warn("could not write builder image metadata", "path", path, "error", err)
	}
}

// path maps an image reference such as "quay.io/quarkus/image:20.1" to
// <root>/quay.io/quarkus/image/20.1/metadata.properties
func (s *Store) path(image string) string {
	rel := filepath.FromSlash(strings.ReplaceAll(image, ":", "/"))
	return filepath.Join(s.root, rel, metadataFile)
}
