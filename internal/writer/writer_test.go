package writer

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "out")

	w, err := New(dir)
	require.NoError(t, err)
	assert.Equal(t, dir, w.Dir())

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestWriteJSONIndentedAndComplete(t *testing.T) {
	w, err := New(t.TempDir())
	require.NoError(t, err)

	doc := map[string]any{"@context": "http://www.daostar.org/schemas", "name": "Octant"}
	require.NoError(t, w.WriteJSON("grants_system.json", doc))

	data, err := os.ReadFile(filepath.Join(w.Dir(), "grants_system.json"))
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(string(data), "{\n  "))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "Octant", decoded["name"])
}

func TestWriteJSONLeavesNoTempFile(t *testing.T) {
	w, err := New(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, w.WriteJSON("doc.json", map[string]int{"a": 1}))

	entries, err := os.ReadDir(w.Dir())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "doc.json", entries[0].Name())
}

func TestWriteJSONOverwrites(t *testing.T) {
	w, err := New(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, w.WriteJSON("doc.json", map[string]int{"v": 1}))
	require.NoError(t, w.WriteJSON("doc.json", map[string]int{"v": 2}))

	data, err := os.ReadFile(filepath.Join(w.Dir(), "doc.json"))
	require.NoError(t, err)

	var decoded map[string]int
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, 2, decoded["v"])
}

func TestWriteJSONUnmarshalableDocument(t *testing.T) {
	w, err := New(t.TempDir())
	require.NoError(t, err)

	assert.Error(t, w.WriteJSON("bad.json", map[string]any{"ch": make(chan int)}))
}
