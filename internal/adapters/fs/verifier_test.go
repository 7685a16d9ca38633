package fs_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/kbuild/internal/adapters/fs"
	"go.trai.ch/kbuild/internal/core/domain"
)

func TestVerifier_Exists(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.ptx")
	b := filepath.Join(dir, "b.ptx")
	require.NoError(t, os.WriteFile(a, []byte("ptx"), domain.PrivateFilePerm))

	v := fs.NewVerifier()

	ok, err := v.Exists([]string{a})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = v.Exists([]string{a, b})
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = v.Exists([]string{dir})
	require.NoError(t, err)
	assert.False(t, ok, "directories are not artifacts")

	ok, err = v.Exists(nil)
	require.NoError(t, err)
	assert.True(t, ok)
}
