package cache

import (
	"errors"
	"io/fs"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.trai.ch/zerr"

	"github.com/Norgate-AV/aotc/internal/logger"
	"github.com/Norgate-AV/aotc/internal/props"
)

const (
	prefsFileName = "cache.properties"

	gcIntervalKey = "gcInterval"
	capacityKey   = "capacity"
	enabledKey    = "enabled"

	defaultGCInterval = 7 * 24 * time.Hour
	defaultCapacity   = "300m"
)

// Prefs controls garbage collection of a cache root
type Prefs struct {
	// GCInterval is the time between two collection sweeps
	GCInterval time.Duration

	// Capacity is the maximum total size of all entries in bytes
	Capacity int64

	// Enabled turns storing and retrieving on or off
	Enabled bool
}

// DefaultPrefs returns the preferences written to a fresh cache root
func DefaultPrefs() Prefs {
	capacity, _ := ParseCapacity(defaultCapacity)

	return Prefs{
		GCInterval: defaultGCInterval,
		Capacity:   capacity,
		Enabled:    true,
	}
}

// LoadPrefs reads the preferences of the cache rooted at root. A missing
// file is created with the defaults. Malformed values are logged and
// replaced by their defaults.
func LoadPrefs(root string, log *slog.Logger) (Prefs, error) {
	log = logger.OrDiscard(log)
	path := filepath.Join(root, prefsFileName)

	values, err := props.Load(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return Prefs{}, err
		}

		if err := writeDefaultPrefs(root, path); err != nil {
			return Prefs{}, err
		}

		return DefaultPrefs(), nil
	}

	prefs := DefaultPrefs()

	if raw, ok := values[gcIntervalKey]; ok {
		interval, err := time.ParseDuration(raw)
		if err != nil || interval < 0 {
			log.Warn("invalid cache gc interval, using default", "value", raw, "default", defaultGCInterval)
		} else {
			prefs.GCInterval = interval
		}
	}

	if raw, ok := values[capacityKey]; ok {
		capacity, err := ParseCapacity(raw)
		if err != nil {
			log.Warn("invalid cache capacity, using default", "value", raw, "default", defaultCapacity, "error", err)
		} else {
			prefs.Capacity = capacity
		}
	}

	if raw, ok := values[enabledKey]; ok {
		prefs.Enabled = strings.EqualFold(raw, "true")
	}

	return prefs, nil
}

func writeDefaultPrefs(root, path string) error {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return zerr.With(zerr.Wrap(err, "failed to create cache directory"), "path", root)
	}

	return props.Store(path, map[string]string{
		gcIntervalKey: defaultGCInterval.String(),
		capacityKey:   defaultCapacity,
		enabledKey:    "true",
	}, "Native image cache preferences")
}

// ParseCapacity converts a size such as "512k", "300m" or "2g" into bytes.
// The suffix is case-insensitive; a number without a suffix is megabytes.
func ParseCapacity(raw string) (int64, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return 0, zerr.New("empty capacity")
	}

	multiplier := int64(1 << 20)
	switch last := s[len(s)-1]; {
	case last == 'b':
		multiplier = 1
		s = s[:len(s)-1]
	case last == 'k':
		multiplier = 1 << 10
		s = s[:len(s)-1]
	case last == 'm':
		multiplier = 1 << 20
		s = s[:len(s)-1]
	case last == 'g':
		multiplier = 1 << 30
		s = s[:len(s)-1]
	case last < '0' || last > '9':
		return 0, zerr.With(zerr.New("unknown capacity unit"), "unit", string(last))
	}

	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, zerr.With(zerr.Wrap(err, "invalid capacity"), "value", raw)
	}

	if n < 0 {
		return 0, zerr.With(zerr.New("negative capacity"), "value", raw)
	}

	if n > math.MaxInt64/multiplier {
		return 0, zerr.With(zerr.New("capacity too large"), "value", raw)
	}

	return n * multiplier, nil
}
