package toolchain

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// GCC drives a gcc-compatible compiler (gcc, clang). The zero value is not
// usable; construct via GuessToolchain or fill in at least CC and the
// suffixes.
//
// A GCC value is treated as immutable: derived variants (WithLibrary,
// WithOptimizationLevel, ...) return copies and never mutate the receiver.
type GCC struct {
	// CC is the compiler executable
	CC string

	// LD is the linker executable; defaults to CC when empty
	LD string

	CFlags  []string
	LDFlags []string

	// Preprocessor defines (NAME or NAME=VALUE) and undefines
	Defines   []string
	Undefines []string

	IncludeDirs []string
	LibraryDirs []string
	Libraries   []string

	// Features already registered via WithLibrary; duplicate features
	// are ignored
	Features []string

	ObjSuffix string
	SoSuffix  string
}

func (g *GCC) clone() *GCC {
	c := *g
	c.CFlags = append([]string(nil), g.CFlags...)
	c.LDFlags = append([]string(nil), g.LDFlags...)
	c.Defines = append([]string(nil), g.Defines...)
	c.Undefines = append([]string(nil), g.Undefines...)
	c.IncludeDirs = append([]string(nil), g.IncludeDirs...)
	c.LibraryDirs = append([]string(nil), g.LibraryDirs...)
	c.Libraries = append([]string(nil), g.Libraries...)
	c.Features = append([]string(nil), g.Features...)

	return &c
}

// ObjectSuffix returns the object file suffix.
func (g *GCC) ObjectSuffix() string { return g.ObjSuffix }

// SharedSuffix returns the shared library suffix.
func (g *GCC) SharedSuffix() string { return g.SoSuffix }

// cmdline assembles the compiler command line. Argument order is part of
// the ABI id, so it must stay stable: flags, mode flag, defines, undefines,
// include dirs, output path, sources, then (shared only) library dirs and
// libraries.
func (g *GCC) cmdline(object bool, outFile string, files []string) []string {
	args := []string{g.CC}
	args = append(args, g.CFlags...)

	if object {
		args = append(args, "-c")
	} else {
		args = append(args, g.LDFlags...)
	}

	for _, define := range g.Defines {
		args = append(args, "-D"+define)
	}

	for _, undefine := range g.Undefines {
		args = append(args, "-U"+undefine)
	}

	for _, dir := range g.IncludeDirs {
		args = append(args, "-I"+dir)
	}

	if outFile != "" {
		args = append(args, "-o", outFile)
	}

	args = append(args, files...)

	if !object {
		for _, dir := range g.LibraryDirs {
			args = append(args, "-L"+dir)
		}

		for _, lib := range g.Libraries {
			args = append(args, "-l"+lib)
		}
	}

	return args
}

// Version returns the compiler's --version output.
func (g *GCC) Version() (string, error) {
	stdout, stderr, code, err := runCapture(g.CC, "--version")
	if err != nil {
		return "", err
	}

	if code != 0 {
		return "", fmt.Errorf("version query failed: %s", strings.TrimSpace(string(stderr)))
	}

	return string(stdout), nil
}

// VersionTuple parses the numeric compiler version from the first line of
// the --version output (e.g. 13.2.0 -> [13 2 0]).
func (g *GCC) VersionTuple() ([]int, error) {
	version, err := g.Version()
	if err != nil {
		return nil, err
	}

	lines := strings.Split(version, "\n")
	words := strings.Fields(lines[0])

	for _, word := range words {
		numbers := strings.Split(word, ".")
		if len(numbers) < 2 {
			continue
		}

		var result []int
		for _, n := range numbers {
			v, err := strconv.Atoi(n)
			if err != nil {
				break
			}

			result = append(result, v)
		}

		if len(result) >= 2 {
			return result, nil
		}
	}

	return nil, fmt.Errorf("could not parse version from %q", lines[0])
}

// ABIID returns the compiler version plus the assembled command line.
func (g *GCC) ABIID() ([]byte, error) {
	version, err := g.Version()
	if err != nil {
		return nil, err
	}

	parts := append([]string{version}, g.cmdline(false, "", nil)...)

	return []byte(strings.Join(parts, "\x00")), nil
}

// Dependencies asks the compiler for make-style dependency rules (-M) and
// returns the included files, excluding the sources themselves.
func (g *GCC) Dependencies(sourceFiles ...string) ([]string, error) {
	args := []string{"-M"}

	for _, define := range g.Defines {
		args = append(args, "-D"+define)
	}

	for _, undefine := range g.Undefines {
		args = append(args, "-U"+undefine)
	}

	for _, dir := range g.IncludeDirs {
		args = append(args, "-I"+dir)
	}

	args = append(args, sourceFiles...)

	stdout, stderr, code, err := runCapture(g.CC, args...)
	if err != nil {
		return nil, err
	}

	if code != 0 {
		return nil, &CompileError{
			Cmdline: append([]string{g.CC}, args...),
			Output:  string(stderr),
		}
	}

	deps := parseMakeRules(string(stdout))

	exclude := make(map[string]bool, len(sourceFiles))
	for _, src := range sourceFiles {
		exclude[src] = true
	}

	var result []string
	for _, dep := range deps {
		if !exclude[dep] {
			result = append(result, dep)
		}
	}

	sort.Strings(result)

	return result, nil
}

// BuildObject compiles sourceFiles into objFile.
func (g *GCC) BuildObject(objFile string, sourceFiles []string) error {
	return g.run(g.cmdline(true, objFile, sourceFiles))
}

// BuildExtension compiles and links sourceFiles into the shared library
// extFile.
func (g *GCC) BuildExtension(extFile string, sourceFiles []string) error {
	return g.run(g.cmdline(false, extFile, sourceFiles))
}

// LinkExtension links objectFiles into the shared library extFile.
func (g *GCC) LinkExtension(extFile string, objectFiles []string) error {
	return g.run(g.cmdline(false, extFile, objectFiles))
}

func (g *GCC) run(cmdline []string) error {
	_, stderr, code, err := runCapture(cmdline[0], cmdline[1:]...)
	if err != nil {
		return err
	}

	if code != 0 {
		return &CompileError{Cmdline: cmdline, Output: string(stderr)}
	}

	return nil
}

// WithLibrary returns a copy of the toolchain extended with the include
// dirs, library dirs and libraries of the named feature. Adding the same
// feature twice, or a directory already present, is a no-op.
func (g *GCC) WithLibrary(feature string, includeDirs, libraryDirs, libraries []string) *GCC {
	for _, f := range g.Features {
		if f == feature {
			return g
		}
	}

	c := g.clone()
	c.Features = append(c.Features, feature)

	for _, dir := range includeDirs {
		if !contains(c.IncludeDirs, dir) {
			c.IncludeDirs = append(c.IncludeDirs, dir)
		}
	}

	for _, dir := range libraryDirs {
		if !contains(c.LibraryDirs, dir) {
			c.LibraryDirs = append(c.LibraryDirs, dir)
		}
	}

	// New libraries come first so they can satisfy symbols referenced by
	// the ones already present
	c.Libraries = append(append([]string(nil), libraries...), c.Libraries...)

	return c
}

// WithOptimizationLevel returns a copy of the toolchain with optimization
// flags replaced: level on the gcc -O scale, or DebugLevel for a -g build.
// Level 2 and above additionally tunes for the host CPU on gcc >= 4.3.
func (g *GCC) WithOptimizationLevel(level int) *GCC {
	c := g.clone()

	var cflags []string
	for _, flag := range c.CFlags {
		if hasAnyPrefix(flag, "-O", "-g", "-march", "-mtune", "-DNDEBUG") {
			continue
		}

		cflags = append(cflags, flag)
	}

	if level == DebugLevel {
		cflags = append(cflags, "-g")
	} else {
		cflags = append(cflags, fmt.Sprintf("-O%d", level), "-DNDEBUG")

		if level >= 2 && g.versionAtLeast(4, 3) {
			cflags = append(cflags, "-march=native", "-mtune=native")
		}
	}

	c.CFlags = cflags

	return c
}

// DebugLevel selects a -g build in WithOptimizationLevel.
const DebugLevel = -1

// WithDebugging returns a copy with optimization stripped and -g added.
func (g *GCC) WithDebugging() *GCC {
	return g.WithOptimizationLevel(DebugLevel)
}

func (g *GCC) versionAtLeast(major, minor int) bool {
	tuple, err := g.VersionTuple()
	if err != nil || len(tuple) < 2 {
		return false
	}

	return tuple[0] > major || (tuple[0] == major && tuple[1] >= minor)
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}

	return false
}

func hasAnyPrefix(s string, prefixes ...string) bool {
	for _, prefix := range prefixes {
		if strings.HasPrefix(s, prefix) {
			return true
		}
	}

	return false
}
