package toolchain

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubRun replaces the subprocess runner for the duration of a test.
func stubRun(t *testing.T, fn func(name string, args ...string) ([]byte, []byte, int, error)) {
	t.Helper()

	orig := runCapture
	runCapture = fn
	t.Cleanup(func() { runCapture = orig })
}

func testGCC() *GCC {
	return &GCC{
		CC:          "cc",
		CFlags:      []string{"-fPIC", "-O2"},
		LDFlags:     []string{"-shared"},
		Defines:     []string{"NDEBUG", "N=4"},
		Undefines:   []string{"DEBUG"},
		IncludeDirs: []string{"/usr/local/include"},
		LibraryDirs: []string{"/usr/local/lib"},
		Libraries:   []string{"m"},
		ObjSuffix:   ".o",
		SoSuffix:    ".so",
	}
}

func TestGCC_CmdlineObject(t *testing.T) {
	args := testGCC().cmdline(true, "out.o", []string{"mod.c"})

	assert.Equal(t, []string{
		"cc", "-fPIC", "-O2", "-c",
		"-DNDEBUG", "-DN=4", "-UDEBUG",
		"-I/usr/local/include",
		"-o", "out.o",
		"mod.c",
	}, args, "Object builds use -c and skip link inputs")
}

func TestGCC_CmdlineShared(t *testing.T) {
	args := testGCC().cmdline(false, "out.so", []string{"mod.c"})

	assert.Equal(t, []string{
		"cc", "-fPIC", "-O2", "-shared",
		"-DNDEBUG", "-DN=4", "-UDEBUG",
		"-I/usr/local/include",
		"-o", "out.so",
		"mod.c",
		"-L/usr/local/lib", "-lm",
	}, args, "Shared builds use ldflags and append link inputs last")
}

func TestGCC_Version(t *testing.T) {
	stubRun(t, func(name string, args ...string) ([]byte, []byte, int, error) {
		assert.Equal(t, "cc", name)
		assert.Equal(t, []string{"--version"}, args)
		return []byte("cc (GCC) 13.2.0\nCopyright (C) 2023 Free Software Foundation, Inc.\n"), nil, 0, nil
	})

	version, err := testGCC().Version()
	require.NoError(t, err)
	assert.Contains(t, version, "13.2.0")

	tuple, err := testGCC().VersionTuple()
	require.NoError(t, err)
	assert.Equal(t, []int{13, 2, 0}, tuple)
}

func TestGCC_VersionFailure(t *testing.T) {
	stubRun(t, func(name string, args ...string) ([]byte, []byte, int, error) {
		return nil, []byte("not found"), 1, nil
	})

	_, err := testGCC().Version()
	assert.Error(t, err)
}

func TestGCC_ABIID(t *testing.T) {
	stubRun(t, func(name string, args ...string) ([]byte, []byte, int, error) {
		return []byte("cc (GCC) 13.2.0\n"), nil, 0, nil
	})

	g := testGCC()

	abi1, err := g.ABIID()
	require.NoError(t, err)
	assert.Contains(t, string(abi1), "13.2.0")
	assert.Contains(t, string(abi1), "-DNDEBUG")

	// Any flag change must change the ABI id
	g2 := testGCC()
	g2.Defines = append(g2.Defines, "EXTRA")

	abi2, err := g2.ABIID()
	require.NoError(t, err)
	assert.NotEqual(t, abi1, abi2)
}

func TestGCC_Dependencies(t *testing.T) {
	var gotArgs []string

	stubRun(t, func(name string, args ...string) ([]byte, []byte, int, error) {
		gotArgs = append([]string{name}, args...)
		out := "mod.o: mod.c /usr/include/stdio.h \\\n" +
			" /usr/include/features.h \\\n" +
			" /opt/answer/answer.h\n"
		return []byte(out), nil, 0, nil
	})

	deps, err := testGCC().Dependencies("mod.c")
	require.NoError(t, err)

	assert.Equal(t, []string{
		"/opt/answer/answer.h",
		"/usr/include/features.h",
		"/usr/include/stdio.h",
	}, deps, "Dependencies are sorted and exclude the source file")

	assert.Equal(t, "cc", gotArgs[0])
	assert.Equal(t, "-M", gotArgs[1])
	assert.Contains(t, gotArgs, "-DNDEBUG")
	assert.Contains(t, gotArgs, "-I/usr/local/include")
	assert.Equal(t, "mod.c", gotArgs[len(gotArgs)-1])
}

func TestGCC_DependenciesFailure(t *testing.T) {
	stubRun(t, func(name string, args ...string) ([]byte, []byte, int, error) {
		return nil, []byte("mod.c:1:10: fatal error: nope.h: No such file\n"), 1, nil
	})

	_, err := testGCC().Dependencies("mod.c")

	var compileErr *CompileError
	require.ErrorAs(t, err, &compileErr)
	assert.Contains(t, compileErr.Output, "nope.h")
}

func TestGCC_BuildFailureCarriesCmdline(t *testing.T) {
	stubRun(t, func(name string, args ...string) ([]byte, []byte, int, error) {
		return nil, []byte("mod.c:1:1: error: expected declaration\n"), 1, nil
	})

	err := testGCC().BuildObject("out.o", []string{"mod.c"})

	var compileErr *CompileError
	require.ErrorAs(t, err, &compileErr)
	assert.Equal(t, "cc", compileErr.Cmdline[0])
	assert.Contains(t, compileErr.Cmdline, "-c")
	assert.Contains(t, compileErr.Cmdline, "out.o")
	assert.Contains(t, compileErr.Error(), "compilation failed")
}

func TestGCC_BuildSuccess(t *testing.T) {
	stubRun(t, func(name string, args ...string) ([]byte, []byte, int, error) {
		return nil, []byte("warning: unused variable\n"), 0, nil
	})

	assert.NoError(t, testGCC().BuildExtension("out.so", []string{"mod.c"}))
	assert.NoError(t, testGCC().LinkExtension("out.so", []string{"a.o", "b.o"}))
}

func TestGCC_RunnerError(t *testing.T) {
	stubRun(t, func(name string, args ...string) ([]byte, []byte, int, error) {
		return nil, nil, -1, errors.New("exec: not found")
	})

	err := testGCC().BuildObject("out.o", []string{"mod.c"})
	require.Error(t, err)

	var compileErr *CompileError
	assert.False(t, errors.As(err, &compileErr), "Exec failures are not compile errors")
}

func TestGCC_WithLibrary(t *testing.T) {
	g := testGCC()

	extended := g.WithLibrary("answerlib",
		[]string{"/opt/answer/include", "/usr/local/include"},
		[]string{"/opt/answer/lib"},
		[]string{"answer"})

	// New libraries come first, duplicate dirs are dropped
	assert.Equal(t, []string{"/usr/local/include", "/opt/answer/include"}, extended.IncludeDirs)
	assert.Equal(t, []string{"/usr/local/lib", "/opt/answer/lib"}, extended.LibraryDirs)
	assert.Equal(t, []string{"answer", "m"}, extended.Libraries)

	// The receiver is never mutated
	assert.Equal(t, []string{"/usr/local/include"}, g.IncludeDirs)
	assert.Equal(t, []string{"m"}, g.Libraries)

	// Re-adding the same feature is a no-op
	again := extended.WithLibrary("answerlib", []string{"/elsewhere"}, nil, nil)
	assert.Equal(t, extended, again)
}

func TestGCC_WithOptimizationLevel(t *testing.T) {
	stubRun(t, func(name string, args ...string) ([]byte, []byte, int, error) {
		return []byte("cc (GCC) 13.2.0\n"), nil, 0, nil
	})

	g := testGCC()
	g.CFlags = []string{"-fPIC", "-O2", "-g", "-march=armv8-a", "-DNDEBUG"}

	opt := g.WithOptimizationLevel(3)
	assert.Equal(t,
		[]string{"-fPIC", "-O3", "-DNDEBUG", "-march=native", "-mtune=native"},
		opt.CFlags, "Old optimization flags are scrubbed before new ones are added")

	debug := g.WithDebugging()
	assert.Equal(t, []string{"-fPIC", "-g"}, debug.CFlags)

	// The receiver keeps its flags
	assert.Contains(t, g.CFlags, "-O2")
}

func TestGCC_WithOptimizationLevelOldCompiler(t *testing.T) {
	stubRun(t, func(name string, args ...string) ([]byte, []byte, int, error) {
		return []byte("cc (GCC) 4.1.0\n"), nil, 0, nil
	})

	opt := testGCC().WithOptimizationLevel(3)
	assert.NotContains(t, opt.CFlags, "-march=native",
		"Host tuning requires gcc >= 4.3")
}

func TestJoinContinuedLines(t *testing.T) {
	joined := joinContinuedLines([]string{
		"mod.o: mod.c \\",
		" a.h \\",
		" b.h",
		"other: c.h",
	})

	assert.Equal(t, []string{
		"mod.o: mod.c  a.h  b.h",
		"other: c.h",
	}, joined)
}

func TestParseMakeRules(t *testing.T) {
	deps := parseMakeRules("mod.o: mod.c a.h \\\n b.h\nlines without colon are skipped\n")

	assert.Equal(t, []string{"mod.c", "a.h", "b.h"}, deps)
}

func TestCompileError_Message(t *testing.T) {
	err := &CompileError{
		Cmdline: []string{"cc", "-c", "-o", "m.o", "m.c"},
		Output:  "m.c:1: error",
	}

	msg := err.Error()
	assert.True(t, strings.HasPrefix(msg, "compilation failed: cc -c -o m.o m.c"))
	assert.Contains(t, msg, "m.c:1: error")
}
