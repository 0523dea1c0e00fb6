package macro

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLint(t *testing.T) {
	macros, err := RenderAll(sideCamera())
	require.NoError(t, err)
	for _, m := range macros {
		assert.NoError(t, Lint(m), m.FileName())
	}

	bad := []string{
		"",
		"; only a comment\n",
		"G0 X10 G1 Y10\n",
		"G0 X{200-60\n",
		`M98 P"/macros/tool_lock.g` + "\n",
		"G0 X1 X2\n",
	}
	for _, text := range bad {
		err = Lint(GeneratedMacro{Kind: Pre, ToolNumber: 1, Text: text})
		assert.Error(t, err, text)
	}
}

func TestWriteAll(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "macros")
	macros, err := RenderAll(sideCamera())
	require.NoError(t, err)

	paths, err := WriteAll(dir, macros)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "tpre2.g"),
		filepath.Join(dir, "tpost2.g"),
		filepath.Join(dir, "tfree2.g"),
	}, paths)

	data, err := os.ReadFile(paths[1])
	require.NoError(t, err)
	assert.Equal(t, macros[1].Text, string(data))

	info, err := os.Stat(paths[0])
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o644), info.Mode().Perm()&0o644)
}

func TestWriteAll_LintFirst(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "macros")
	macros, err := RenderAll(sideCamera())
	require.NoError(t, err)
	macros[2].Text = "G0 X{1\n"

	_, err = WriteAll(dir, macros)
	assert.Error(t, err)
	_, err = os.Stat(dir)
	assert.True(t, os.IsNotExist(err))
}
