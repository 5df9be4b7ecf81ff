package toolchain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNVCC_StderrHeuristic(t *testing.T) {
	// nvcc can exit zero even when compilation failed; the stderr scan
	// must catch that
	stubRun(t, func(name string, args ...string) ([]byte, []byte, int, error) {
		return nil, []byte(`kernel.cu(3): error: identifier "foo" is undefined`), 0, nil
	})

	nv := GuessNVCCToolchain()

	err := nv.BuildObject("kernel.o", []string{"kernel.cu"})

	var compileErr *CompileError
	require.ErrorAs(t, err, &compileErr)
	assert.Equal(t, "nvcc", compileErr.Cmdline[0])
}

func TestNVCC_WarningsPass(t *testing.T) {
	stubRun(t, func(name string, args ...string) ([]byte, []byte, int, error) {
		return nil, []byte("kernel.cu(7): warning: variable declared but never referenced\n"), 0, nil
	})

	nv := GuessNVCCToolchain()

	assert.NoError(t, nv.BuildExtension("kernel.so", []string{"kernel.cu"}))
	assert.NoError(t, nv.LinkExtension("kernel.so", []string{"kernel.o"}))
}

func TestNVCC_NonZeroExit(t *testing.T) {
	stubRun(t, func(name string, args ...string) ([]byte, []byte, int, error) {
		return nil, []byte("nvcc fatal   : Unknown option\n"), 1, nil
	})

	err := GuessNVCCToolchain().BuildObject("kernel.o", []string{"kernel.cu"})
	assert.Error(t, err)
}

func TestGuessNVCCToolchain_Defaults(t *testing.T) {
	nv := GuessNVCCToolchain()

	assert.Equal(t, "nvcc", nv.CC)
	assert.Contains(t, nv.Undefines, "__BLOCKS__")
	assert.Equal(t, ".o", nv.ObjectSuffix())
	assert.NotEmpty(t, nv.SharedSuffix())
}
