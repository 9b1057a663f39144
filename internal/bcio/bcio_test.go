package bcio_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kristofer/nutshell/internal/bcio"
	"github.com/kristofer/nutshell/pkg/bytecode"
	"github.com/kristofer/nutshell/pkg/compiler"
	"github.com/kristofer/nutshell/pkg/vm"
)

func TestSaveLoadBytecodeRoundTrips(t *testing.T) {
	asm, err := compiler.Compile("return 1 + 2;")
	require.NoError(t, err)

	dir := t.TempDir()
	path := filepath.Join(dir, "out.bc")
	require.NoError(t, bcio.SaveBytecode(path, asm.Buffer()))

	loaded, err := bcio.LoadBytecode(path)
	require.NoError(t, err)
	require.Equal(t, asm.Buffer().Code, loaded.Code)

	m := vm.New()
	result, err := m.Run(loaded, nil, 0)
	require.NoError(t, err)
	require.Equal(t, 3.0, result.Number())
}

func TestSaveLoadXrefRoundTrips(t *testing.T) {
	asm, err := compiler.Compile("let x = 1;\nlet y = 2;\nreturn x + y;")
	require.NoError(t, err)
	require.NotEmpty(t, asm.Xref)

	dir := t.TempDir()
	path := filepath.Join(dir, "out.xref")
	require.NoError(t, bcio.SaveXref(path, asm.Xref))

	loaded, err := bcio.LoadXref(path)
	require.NoError(t, err)
	require.Equal(t, asm.Xref, loaded)
}

func TestLoadXrefRejectsTruncatedFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.xref")
	require.NoError(t, os.WriteFile(path, []byte{1, 2, 3}, 0o644))

	_, err := bcio.LoadXref(path)
	require.Error(t, err)
}

func TestLineForOffsetAfterRoundTrip(t *testing.T) {
	asm, err := compiler.Compile("let x = 1;\nreturn x;")
	require.NoError(t, err)

	dir := t.TempDir()
	path := filepath.Join(dir, "out.xref")
	require.NoError(t, bcio.SaveXref(path, asm.Xref))
	loaded, err := bcio.LoadXref(path)
	require.NoError(t, err)

	require.Equal(t, bytecode.LineForOffset(asm.Xref, 0), bytecode.LineForOffset(loaded, 0))
}
