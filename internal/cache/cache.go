// Package cache stores native images keyed by the digest of the inputs they
// were built from, so identical builds can be skipped.
//
// Every entry lives in its own directory under the cache root:
//
//	<root>/<digest>/inputs.txt     canonical build inputs
//	<root>/<digest>/artifact.bin   the native image
//	<root>/<digest>/runner.jar     the runner jar it was built from
//	<root>/<digest>/metadata.txt   stored-on, last-retrieved-on, runner jar name
//
// The root also holds cache.properties (capacity, gc interval, enabled flag)
// and next-gc.txt. Several processes may share a root. Entries become valid
// only once metadata.txt is written, and garbage collection runs under an
// advisory lock on cache.lock next to the root, so at most one process sweeps
// at a time. Sweeps delete least recently retrieved entries until the total
// size fits the configured capacity.
package cache

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"go.trai.ch/zerr"

	"github.com/Norgate-AV/aotc/internal/fingerprint"
	"github.com/Norgate-AV/aotc/internal/logger"
)

const (
	// DefaultCacheDir is the default cache root relative to the user's home directory
	DefaultCacheDir = ".aotc/native-image-cache"

	nextGCFileName = "next-gc.txt"
	lockFileName   = "cache.lock"
)

// Option configures a Cache
type Option func(*Cache)

// WithClock replaces the wall clock used for timestamps and gc scheduling
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		c.now = now
	}
}

// WithLogger sets the logger for warnings and gc progress
func WithLogger(log *slog.Logger) Option {
	return func(c *Cache) {
		c.logger = logger.OrDiscard(log)
	}
}

// Cache manages native image entries under a root directory
type Cache struct {
	root   string
	prefs  Prefs
	now    func() time.Time
	logger *slog.Logger

	// mu serializes collection within the process
	mu     sync.Mutex
	nextGC time.Time
}

// New opens the cache rooted at root, creating the root and its
// preferences file if needed
func New(root string, opts ...Option) (*Cache, error) {
	c := &Cache{
		root:   root,
		now:    time.Now,
		logger: logger.Discard(),
	}

	for _, opt := range opts {
		opt(c)
	}

	prefs, err := LoadPrefs(root, c.logger)
	if err != nil {
		return nil, err
	}

	c.prefs = prefs
	c.nextGC = c.readNextGC()

	return c, nil
}

var (
	defaultOnce  sync.Once
	defaultCache *Cache
	defaultErr   error
)

// Default returns the process-wide cache in DefaultCacheDir under the
// user's home directory. Options only apply to the first call.
func Default(opts ...Option) (*Cache, error) {
	defaultOnce.Do(func() {
		home, err := os.UserHomeDir()
		if err != nil {
			defaultErr = zerr.Wrap(err, "failed to resolve home directory")
			return
		}

		defaultCache, defaultErr = New(filepath.Join(home, DefaultCacheDir), opts...)
	})

	return defaultCache, defaultErr
}

// Root returns the cache root directory
func (c *Cache) Root() string {
	return c.root
}

// Prefs returns the preferences loaded for this root
func (c *Cache) Prefs() Prefs {
	return c.prefs
}

// Enabled reports whether storing and retrieving are turned on
func (c *Cache) Enabled() bool {
	return c.prefs.Enabled
}

// Retrieve looks up the entry built from inputs. It returns nil on a miss.
// A hit refreshes the entry's last-retrieved time.
func (c *Cache) Retrieve(inputs fingerprint.Inputs) (*Entry, error) {
	if !c.prefs.Enabled {
		return nil, nil
	}

	digest := inputs.Digest()
	paths := c.entryPaths(digest)

	if !paths.valid() {
		return nil, nil // Cache miss
	}

	md, err := LoadMetadata(paths.metadataFile)
	if err != nil {
		return nil, zerr.With(zerr.Wrap(err, "failed to read cache entry metadata"), "digest", digest)
	}

	md.LastRetrievedOn = c.now()
	if err := md.Store(paths.metadataFile); err != nil {
		return nil, zerr.With(zerr.Wrap(err, "failed to update cache entry metadata"), "digest", digest)
	}

	c.logger.Debug("cache hit", "digest", digest)

	return &Entry{
		Digest:   digest,
		Metadata: md,
		paths:    paths,
	}, nil
}

// Store saves artifactFile and runnerJarFile as the entry for inputs,
// replacing any previous entry, then collects garbage if due
func (c *Cache) Store(inputs fingerprint.Inputs, artifactFile, runnerJarFile string) error {
	if !c.prefs.Enabled {
		return nil
	}

	digest := inputs.Digest()
	paths := c.entryPaths(digest)

	if err := os.MkdirAll(paths.dir, 0o755); err != nil {
		return zerr.With(zerr.Wrap(err, "failed to create cache entry directory"), "path", paths.dir)
	}

	if err := copyFile(artifactFile, paths.artifactFile); err != nil {
		return zerr.Wrap(err, "failed to store artifact")
	}

	if err := copyFile(runnerJarFile, paths.runnerJarFile); err != nil {
		return zerr.Wrap(err, "failed to store runner jar")
	}

	if err := inputs.Persist(paths.inputsFile); err != nil {
		return err
	}

	// Metadata goes last: its presence makes the entry valid
	now := c.now()
	md := Metadata{
		RunnerJarName:   filepath.Base(runnerJarFile),
		StoredOn:        now,
		LastRetrievedOn: now,
	}

	if err := md.Store(paths.metadataFile); err != nil {
		return err
	}

	c.logger.Debug("stored cache entry", "digest", digest, "path", paths.dir)

	return c.GCIfNecessary()
}

// GCIfNecessary runs a collection sweep when the next gc time has passed.
// It returns immediately when another process is already collecting.
func (c *Cache) GCIfNecessary() error {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if !now.After(c.nextGC) || !isDir(c.root) {
		return nil
	}

	lock, err := tryLock(c.lockPath())
	if err != nil {
		return err
	}

	if lock == nil {
		c.logger.Debug("cache gc already running in another process")
		return nil
	}

	defer func() {
		if err := lock.Unlock(); err != nil {
			c.logger.Warn("failed to release cache lock", "error", err)
		}
	}()

	// Another process may have collected since we last looked
	c.nextGC = c.readNextGC()
	if !now.After(c.nextGC) {
		return nil
	}

	c.nextGC = now.Add(c.prefs.GCInterval)
	if err := c.writeNextGC(c.nextGC); err != nil {
		return err
	}

	return c.sweep()
}

// Stats returns the number of valid entries and their total size in bytes
func (c *Cache) Stats() (int, int64, error) {
	candidates, err := c.scan()
	if err != nil {
		return 0, 0, err
	}

	var total int64
	for _, cand := range candidates {
		total += cand.size
	}

	return len(candidates), total, nil
}

// Clear removes every entry. Preferences and the gc schedule are kept.
func (c *Cache) Clear() error {
	dirs, err := os.ReadDir(c.root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}

		return zerr.With(zerr.Wrap(err, "failed to read cache directory"), "path", c.root)
	}

	for _, d := range dirs {
		if !d.IsDir() {
			continue
		}

		if err := c.entryPaths(d.Name()).delete(); err != nil {
			return err
		}
	}

	return nil
}

// candidate is a valid entry seen during a scan of the root
type candidate struct {
	paths           entryPaths
	size            int64
	lastRetrievedOn time.Time
}

func (c *Cache) scan() ([]candidate, error) {
	dirs, err := os.ReadDir(c.root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}

		return nil, zerr.With(zerr.Wrap(err, "failed to read cache directory"), "path", c.root)
	}

	var candidates []candidate
	for _, d := range dirs {
		if !d.IsDir() {
			continue
		}

		paths := c.entryPaths(d.Name())
		if !paths.valid() {
			continue
		}

		// Unreadable metadata leaves a zero time, which sorts first for eviction
		md, err := LoadMetadata(paths.metadataFile)
		if err != nil {
			c.logger.Warn("invalid cache entry metadata", "path", paths.metadataFile, "error", err)
		}

		candidates = append(candidates, candidate{
			paths:           paths,
			size:            paths.size(),
			lastRetrievedOn: md.LastRetrievedOn,
		})
	}

	return candidates, nil
}

func (c *Cache) sweep() error {
	candidates, err := c.scan()
	if err != nil {
		return zerr.Wrap(err, "could not perform garbage collection")
	}

	var total int64
	for _, cand := range candidates {
		total += cand.size
	}

	c.logger.Debug("cache gc", "entries", len(candidates), "size", total, "capacity", c.prefs.Capacity)

	if total <= c.prefs.Capacity {
		return nil
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].lastRetrievedOn.Before(candidates[j].lastRetrievedOn)
	})

	for _, cand := range candidates {
		if total <= c.prefs.Capacity {
			break
		}

		if err := cand.paths.delete(); err != nil {
			return zerr.Wrap(err, "could not perform garbage collection")
		}

		total -= cand.size
		c.logger.Debug("evicted cache entry", "path", cand.paths.dir, "size", cand.size)
	}

	return nil
}

// readNextGC returns the persisted next gc time. A missing or corrupt file
// is replaced by the current time, which makes collection due on the next
// check.
func (c *Cache) readNextGC() time.Time {
	path := c.nextGCPath()

	data, err := os.ReadFile(path)
	if err == nil {
		t, parseErr := time.Parse(time.RFC3339Nano, strings.TrimSpace(string(data)))
		if parseErr == nil {
			return t
		}

		c.logger.Warn("invalid next gc time, resetting", "path", path, "error", parseErr)
	} else if !errors.Is(err, fs.ErrNotExist) {
		c.logger.Warn("could not read next gc time", "path", path, "error", err)
	}

	now := c.now()
	if err := c.writeNextGC(now); err != nil {
		c.logger.Warn("could not write next gc time", "path", path, "error", err)
	}

	return now
}

func (c *Cache) writeNextGC(t time.Time) error {
	path := c.nextGCPath()

	if err := os.WriteFile(path, []byte(t.UTC().Format(time.RFC3339Nano)+"\n"), 0o644); err != nil {
		return zerr.With(zerr.Wrap(err, "failed to write next gc time"), "path", path)
	}

	return nil
}

func (c *Cache) entryPaths(digest string) entryPaths {
	return newEntryPaths(filepath.Join(c.root, digest))
}

func (c *Cache) nextGCPath() string {
	return filepath.Join(c.root, nextGCFileName)
}

// lockPath is a sibling of the root
func (c *Cache) lockPath() string {
	return filepath.Join(filepath.Dir(c.root), lockFileName)
}
