package util

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteAndReadFloat(t *testing.T) {
	// GIVEN
	path := filepath.Join(t.TempDir(), "duty")

	// WHEN
	err := WriteFloatToFileAtomic(42.5, path)
	require.NoError(t, err)
	value, err := ReadFloatFromFile(path)

	// THEN
	assert.NoError(t, err)
	assert.Equal(t, 42.5, value)
}

func TestReadFloatFromFile_Empty(t *testing.T) {
	// GIVEN
	path := filepath.Join(t.TempDir(), "empty")
	require.NoError(t, os.WriteFile(path, []byte("  \n"), 0644))

	// WHEN
	_, err := ReadFloatFromFile(path)

	// THEN
	assert.Error(t, err)
}

func TestReadFloatFromFile_Garbage(t *testing.T) {
	// GIVEN
	path := filepath.Join(t.TempDir(), "garbage")
	require.NoError(t, os.WriteFile(path, []byte("twenty"), 0644))

	// WHEN
	_, err := ReadFloatFromFile(path)

	// THEN
	assert.Error(t, err)
}

func TestReadFloatFromFile_Missing(t *testing.T) {
	// WHEN
	_, err := ReadFloatFromFile(filepath.Join(t.TempDir(), "missing"))

	// THEN
	assert.Error(t, err)
}

func TestExpandHomeDir_NoTilde(t *testing.T) {
	// WHEN
	result, err := ExpandHomeDir("/tmp/sensor")

	// THEN
	assert.NoError(t, err)
	assert.Equal(t, "/tmp/sensor", result)
}
