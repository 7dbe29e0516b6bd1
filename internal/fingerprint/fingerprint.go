// Package fingerprint describes the complete set of inputs that can change
// the output of a native image build.
//
// Inputs are rendered in a canonical text form, one "key = value" line per
// entry with keys in lexicographic order. The digest of that text identifies
// a build in the artifact cache, so two Inputs holding the same pairs always
// produce the same digest regardless of insertion order.
package fingerprint

import (
	"errors"
	"io/fs"
	"os"
	"sort"
	"strings"

	"go.trai.ch/zerr"

	"github.com/Norgate-AV/aotc/internal/digest"
)

// Inputs is an immutable, key ordered set of build inputs
type Inputs struct {
	keys   []string
	values map[string]string
}

// Get returns the value stored under key
func (in Inputs) Get(key string) (string, bool) {
	v, ok := in.values[key]
	return v, ok
}

// Keys returns the keys in canonical order
func (in Inputs) Keys() []string {
	return append([]string(nil), in.keys...)
}

// Len returns the number of entries
func (in Inputs) Len() int {
	return len(in.keys)
}

// String returns the canonical serialization
func (in Inputs) String() string {
	var sb strings.Builder
	for _, k := range in.keys {
		sb.WriteString(k)
		sb.WriteString(" = ")
		sb.WriteString(in.values[k])
		sb.WriteByte('\n')
	}

	return sb.String()
}

// Digest returns the hex encoded digest of the canonical serialization
func (in Inputs) Digest() string {
	return digest.String(in.String())
}

// Persist writes the canonical serialization to path
func (in Inputs) Persist(path string) error {
	if err := os.WriteFile(path, []byte(in.String()), 0o644); err != nil {
		return zerr.With(zerr.Wrap(err, "failed to write build inputs"), "path", path)
	}

	return nil
}

// MatchesFile reports whether path holds exactly the canonical serialization
// of these inputs. A missing file is not an error.
func (in Inputs) MatchesFile(path string) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}

		return false, zerr.With(zerr.Wrap(err, "failed to read build inputs"), "path", path)
	}

	return string(data) == in.String(), nil
}

// Builder accumulates entries for an Inputs value. The zero value is ready to use.
type Builder struct {
	entries map[string]string
}

// NewBuilder creates an empty builder
func NewBuilder() *Builder {
	return &Builder{entries: make(map[string]string)}
}

// Entry sets key to value, replacing any previous value
func (b *Builder) Entry(key, value string) *Builder {
	if b.entries == nil {
		b.entries = make(map[string]string)
	}

	b.entries[key] = value
	return b
}

// Entries copies every entry of in into the builder
func (b *Builder) Entries(in Inputs) *Builder {
	for _, k := range in.keys {
		b.Entry(k, in.values[k])
	}

	return b
}

// Build snapshots the current entries. Later changes to the builder do not
// affect the returned Inputs.
func (b *Builder) Build() Inputs {
	values := make(map[string]string, len(b.entries))
	keys := make([]string, 0, len(b.entries))
	for k, v := range b.entries {
		values[k] = v
		keys = append(keys, k)
	}
	sort.Strings(keys)

	return Inputs{keys: keys, values: values}
}
