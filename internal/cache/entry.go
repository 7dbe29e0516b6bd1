package cache

import (
	"os"
	"path/filepath"
	"time"

	"go.trai.ch/zerr"

	"github.com/Norgate-AV/aotc/internal/props"
)

const (
	inputsFileName   = "inputs.txt"
	artifactFileName = "artifact.bin"
	runnerFileName   = "runner.jar"
	metadataFileName = "metadata.txt"

	storedOnKey        = "storedOn"
	lastRetrievedOnKey = "lastRetrievedOn"
	runnerJarNameKey   = "runnerJarName"
)

// Metadata describes when an entry was stored and last used
type Metadata struct {
	// RunnerJarName is the file name of the runner jar the artifact was built from
	RunnerJarName string

	// StoredOn is when the entry was created
	StoredOn time.Time

	// LastRetrievedOn is refreshed on every cache hit and drives eviction order
	LastRetrievedOn time.Time
}

// LoadMetadata reads entry metadata from path
func LoadMetadata(path string) (Metadata, error) {
	values, err := props.Load(path)
	if err != nil {
		return Metadata{}, err
	}

	storedOn, err := time.Parse(time.RFC3339Nano, values[storedOnKey])
	if err != nil {
		return Metadata{}, zerr.With(zerr.Wrap(err, "invalid storedOn timestamp"), "path", path)
	}

	lastRetrievedOn, err := time.Parse(time.RFC3339Nano, values[lastRetrievedOnKey])
	if err != nil {
		return Metadata{}, zerr.With(zerr.Wrap(err, "invalid lastRetrievedOn timestamp"), "path", path)
	}

	return Metadata{
		RunnerJarName:   values[runnerJarNameKey],
		StoredOn:        storedOn,
		LastRetrievedOn: lastRetrievedOn,
	}, nil
}

// Store writes the metadata to path
func (m Metadata) Store(path string) error {
	return props.Store(path, map[string]string{
		storedOnKey:        m.StoredOn.UTC().Format(time.RFC3339Nano),
		lastRetrievedOnKey: m.LastRetrievedOn.UTC().Format(time.RFC3339Nano),
		runnerJarNameKey:   m.RunnerJarName,
	}, "")
}

// Entry is a cached native image together with the inputs it was built from
type Entry struct {
	// Digest is the fingerprint digest addressing the entry
	Digest string

	// Metadata as of the lookup that produced this Entry
	Metadata Metadata

	paths entryPaths
}

// Dir returns the entry's directory
func (e *Entry) Dir() string {
	return e.paths.dir
}

// ArtifactFile returns the path of the cached native image
func (e *Entry) ArtifactFile() string {
	return e.paths.artifactFile
}

// RunnerJarFile returns the path of the cached runner jar
func (e *Entry) RunnerJarFile() string {
	return e.paths.runnerJarFile
}

// InputsFile returns the path of the serialized build inputs
func (e *Entry) InputsFile() string {
	return e.paths.inputsFile
}

// RestoreArtifact copies the cached native image to dst
func (e *Entry) RestoreArtifact(dst string) error {
	return copyFile(e.paths.artifactFile, dst)
}

// entryPaths lays out the files of one cache entry
type entryPaths struct {
	dir           string
	inputsFile    string
	artifactFile  string
	runnerJarFile string
	metadataFile  string
}

func newEntryPaths(dir string) entryPaths {
	return entryPaths{
		dir:           dir,
		inputsFile:    filepath.Join(dir, inputsFileName),
		artifactFile:  filepath.Join(dir, artifactFileName),
		runnerJarFile: filepath.Join(dir, runnerFileName),
		metadataFile:  filepath.Join(dir, metadataFileName),
	}
}

// valid reports whether the entry is complete. The runner jar is not
// required. Metadata is written last when storing, so a half written entry
// is never valid. Retrieval and garbage collection use the same predicate.
func (p entryPaths) valid() bool {
	return isDir(p.dir) &&
		exists(p.inputsFile) &&
		exists(p.artifactFile) &&
		exists(p.metadataFile)
}

// size is the number of bytes the entry occupies. Missing files count as zero.
func (p entryPaths) size() int64 {
	return fileSize(p.inputsFile) + fileSize(p.artifactFile) + fileSize(p.runnerJarFile)
}

func (p entryPaths) delete() error {
	if err := os.RemoveAll(p.dir); err != nil {
		return zerr.With(zerr.Wrap(err, "failed to delete cache entry"), "path", p.dir)
	}

	return nil
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func fileSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}

	return info.Size()
}
