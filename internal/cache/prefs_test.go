package cache

import (
	"bytes"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Norgate-AV/aotc/internal/logger"
)

func TestParseCapacity(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    int64
		wantErr bool
	}{
		{name: "bytes", raw: "512b", want: 512},
		{name: "kilobytes", raw: "4k", want: 4 << 10},
		{name: "megabytes", raw: "300m", want: 300 << 20},
		{name: "gigabytes", raw: "2g", want: 2 << 30},
		{name: "upper case suffix", raw: "2G", want: 2 << 30},
		{name: "no suffix is megabytes", raw: "10", want: 10 << 20},
		{name: "surrounding whitespace", raw: "  8k ", want: 8 << 10},
		{name: "zero", raw: "0", want: 0},
		{name: "unknown unit", raw: "5t", wantErr: true},
		{name: "not a number", raw: "lotsm", wantErr: true},
		{name: "negative", raw: "-1m", wantErr: true},
		{name: "overflowing gigabytes", raw: "99999999999g", wantErr: true},
		{name: "overflowing bytes", raw: "9223372036854775808b", wantErr: true},
		{name: "largest bytes", raw: "9223372036854775807b", want: math.MaxInt64},
		{name: "empty", raw: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseCapacity(tt.raw)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLoadPrefs_WritesDefaults(t *testing.T) {
	root := filepath.Join(t.TempDir(), "cache")

	prefs, err := LoadPrefs(root, logger.Discard())
	require.NoError(t, err)
	assert.Equal(t, DefaultPrefs(), prefs)

	data, err := os.ReadFile(filepath.Join(root, prefsFileName))
	require.NoError(t, err)
	assert.Contains(t, string(data), "capacity=300m")
	assert.Contains(t, string(data), "enabled=true")
	assert.Contains(t, string(data), "gcInterval=168h0m0s")

	// The written file reads back to the same values
	again, err := LoadPrefs(root, logger.Discard())
	require.NoError(t, err)
	assert.Equal(t, prefs, again)
}

func TestLoadPrefs_Values(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    Prefs
		warning string
	}{
		{
			name:    "all set",
			content: "gcInterval=1h\ncapacity=1g\nenabled=true\n",
			want:    Prefs{GCInterval: time.Hour, Capacity: 1 << 30, Enabled: true},
		},
		{
			name:    "disabled",
			content: "enabled=false\n",
			want:    Prefs{GCInterval: defaultGCInterval, Capacity: 300 << 20, Enabled: false},
		},
		{
			name:    "anything but true disables",
			content: "enabled=yes\n",
			want:    Prefs{GCInterval: defaultGCInterval, Capacity: 300 << 20, Enabled: false},
		},
		{
			name:    "invalid capacity unit falls back",
			content: "capacity=12x\n",
			want:    DefaultPrefs(),
			warning: "invalid cache capacity",
		},
		{
			name:    "overflowing capacity falls back",
			content: "capacity=99999999999g\n",
			want:    DefaultPrefs(),
			warning: "invalid cache capacity",
		},
		{
			name:    "invalid interval falls back",
			content: "gcInterval=weekly\n",
			want:    DefaultPrefs(),
			warning: "invalid cache gc interval",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := t.TempDir()
			require.NoError(t, os.WriteFile(filepath.Join(root, prefsFileName), []byte(tt.content), 0o644))

			var buf bytes.Buffer
			prefs, err := LoadPrefs(root, logger.NewWithWriter(&buf, false))
			require.NoError(t, err)
			assert.Equal(t, tt.want, prefs)

			if tt.warning != "" {
				assert.Contains(t, buf.String(), tt.warning)
			} else {
				assert.Empty(t, buf.String())
			}
		})
	}
}

func TestLoadPrefs_NilLogger(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, prefsFileName), []byte("capacity=12x\ngcInterval=weekly\n"), 0o644))

	var prefs Prefs
	require.NotPanics(t, func() {
		var err error
		prefs, err = LoadPrefs(root, nil)
		require.NoError(t, err)
	})
	assert.Equal(t, DefaultPrefs(), prefs)
}

func TestLoadPrefs_UnwritableRoot(t *testing.T) {
	parent := t.TempDir()
	blocker := filepath.Join(parent, "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	_, err := LoadPrefs(filepath.Join(blocker, "cache"), logger.Discard())
	assert.Error(t, err)
}
