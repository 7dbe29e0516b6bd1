// Package props reads and writes the small "key=value" files kept next to
// cached artifacts: cache preferences, entry metadata and builder image
// metadata.
package props

import (
	"bufio"
	"bytes"
	"os"
	"sort"
	"strings"

	"go.trai.ch/zerr"
)

// Parse decodes "key=value" lines. Blank lines and lines starting with '#'
// or '!' are ignored, and whitespace around keys and values is trimmed.
// A line without '=' or ':' declares a key with an empty value.
func Parse(data []byte) map[string]string {
	values := make(map[string]string)

	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || line[0] == '#' || line[0] == '!' {
			continue
		}

		key, value := line, ""
		if i := strings.IndexAny(line, "=:"); i >= 0 {
			key, value = line[:i], line[i+1:]
		}

		values[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}

	return values
}

// Format encodes values with keys sorted, preceded by an optional comment line
func Format(values map[string]string, comment string) []byte {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	if comment != "" {
		buf.WriteString("# ")
		buf.WriteString(comment)
		buf.WriteByte('\n')
	}

	for _, k := range keys {
		buf.WriteString(k)
		buf.WriteByte('=')
		buf.WriteString(values[k])
		buf.WriteByte('\n')
	}

	return buf.Bytes()
}

// Load reads and parses the file at path
func Load(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, zerr.With(zerr.Wrap(err, "failed to read properties"), "path", path)
	}

	return Parse(data), nil
}

// Store writes values to path, replacing any existing file
func Store(path string, values map[string]string, comment string) error {
	if err := os.WriteFile(path, Format(values, comment), 0o644); err != nil {
		return zerr.With(zerr.Wrap(err, "failed to write properties"), "path", path)
	}

	return nil
}
