// Package jitc compiles C/C++/CUDA source strings with an external
// toolchain and caches the resulting artifacts by content and ABI.
package jitc

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/forgecc/jitc/internal/cache"
	"github.com/forgecc/jitc/internal/toolchain"
)

// JIT couples a toolchain with a compile cache.
type JIT struct {
	tc toolchain.Toolchain
	c  *cache.Cache
}

// New returns a JIT compiling with tc and caching in c.
func New(tc toolchain.Toolchain, c *cache.Cache) *JIT {
	return &JIT{tc: tc, c: c}
}

// CompileFromString builds (or fetches) the shared library for the given
// source text. The returned result carries the artifact path, a stable
// module id and whether a compilation actually ran.
func (j *JIT) CompileFromString(name, source string) (cache.Result, error) {
	return j.compile(name, source, j.tc.SharedSuffix(), j.tc.BuildExtension)
}

// ObjectFromString builds (or fetches) the object file for the given
// source text.
func (j *JIT) ObjectFromString(name, source string) (cache.Result, error) {
	return j.compile(name, source, j.tc.ObjectSuffix(), j.tc.BuildObject)
}

func (j *JIT) compile(name, source, suffix string,
	build func(string, []string) error) (cache.Result, error) {

	abi, err := j.tc.ABIID()
	if err != nil {
		return cache.Result{}, fmt.Errorf("failed to determine toolchain ABI: %w", err)
	}

	return j.c.CompileOrFetch(cache.Build{
		ABI:    abi,
		Source: []byte(source),
		Name:   name,
		Suffix: suffix,
		Compile: func(sourcePath, artifactPath string) error {
			return build(artifactPath, []string{sourcePath})
		},
		Dependencies: func(sourcePath string) ([]string, error) {
			return j.tc.Dependencies(sourcePath)
		},
	})
}

// LinkModules links already-compiled object files into a shared library
// placed next to the first object, returning its path. Linking is not
// cached: it is cheap relative to compilation and its inputs are already
// cache-addressed objects.
func (j *JIT) LinkModules(objectFiles []string) (string, error) {
	if len(objectFiles) == 0 {
		return "", fmt.Errorf("no object files to link")
	}

	base := strings.TrimSuffix(objectFiles[0], filepath.Ext(objectFiles[0]))
	extFile := base + j.tc.SharedSuffix()

	if err := j.tc.LinkExtension(extFile, objectFiles); err != nil {
		return "", err
	}

	return extFile, nil
}

// GuessToolchain probes the host for a usable C compiler.
func GuessToolchain() (*toolchain.GCC, error) {
	return toolchain.GuessToolchain()
}
