package imagemeta

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Norgate-AV/aotc/internal/logger"
)

const testImage = "quay.io/quarkus/ubi-quarkus-native-image:20.1.0-java11"

func TestStore_RetrieveMissing(t *testing.T) {
	store := New(t.TempDir(), nil)

	_, ok := store.Retrieve(testImage)
	assert.False(t, ok)
}

func TestStore_RoundTrip(t *testing.T) {
	root := t.TempDir()
	store := New(root, nil)

	store.Store(testImage, Metadata{NativeImageVersion: "20.1.0 (Java Version 11.0.7)"})

	md, ok := store.Retrieve(testImage)
	require.True(t, ok)
	assert.Equal(t, "20.1.0 (Java Version 11.0.7)", md.NativeImageVersion)

	// Registry/tag separators map to nested directories
	expected := filepath.Join(root, "quay.io", "quarkus", "ubi-quarkus-native-image", "20.1.0-java11", "metadata.properties")
	assert.FileExists(t, expected)

	// Another tag of the same image is a different record
	_, ok = store.Retrieve("quay.io/quarkus/ubi-quarkus-native-image:19.3.1-java11")
	assert.False(t, ok)
}

func TestStore_Overwrite(t *testing.T) {
	store := New(t.TempDir(), nil)

	store.Store(testImage, Metadata{NativeImageVersion: "20.0.0"})
	store.Store(testImage, Metadata{NativeImageVersion: "20.1.0"})

	md, ok := store.Retrieve(testImage)
	require.True(t, ok)
	assert.Equal(t, "20.1.0", md.NativeImageVersion)
}

func TestStore_RecordWithoutVersion(t *testing.T) {
	root := t.TempDir()
	store := New(root, nil)

	path := store.path(testImage)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("# empty\nother=value\n"), 0o644))

	_, ok := store.Retrieve(testImage)
	assert.False(t, ok)
}

func TestStore_FailuresAreLoggedNotFatal(t *testing.T) {
	root := t.TempDir()

	// A regular file where the image directory should be blocks writes
	blocker := filepath.Join(root, "quay.io")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	var buf bytes.Buffer
	store := New(root, logger.NewWithWriter(&buf, false))

	store.Store(testImage, Metadata{NativeImageVersion: "20.1.0"})
	assert.Contains(t, buf.String(), "could not create builder image metadata directory")

	_, ok := store.Retrieve(testImage)
	assert.False(t, ok)
}
