package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/forgecc/jitc"
	"github.com/forgecc/jitc/internal/cache"
	"github.com/forgecc/jitc/internal/config"
	"github.com/forgecc/jitc/internal/libraries"
	"github.com/forgecc/jitc/internal/toolchain"
)

var buildCmd = &cobra.Command{
	Use:          "build",
	Short:        "Compile a source file through the cache",
	Long:         `Compile a C, C++ or CUDA source file into an object or shared library, reusing a cached artifact when source, headers and toolchain are unchanged.`,
	RunE:         runBuild,
	SilenceUsage: true,
}

var sourceExtensions = []string{".c", ".cc", ".cpp", ".cxx", ".cu"}

func runBuild(cmd *cobra.Command, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("requires exactly one file argument")
	}

	file := args[0]
	if !hasSourceExtension(file) {
		return fmt.Errorf("file must have one of these extensions: %s",
			strings.Join(sourceExtensions, ", "))
	}

	absFile, err := filepath.Abs(file)
	if err != nil {
		return fmt.Errorf("failed to resolve absolute path: %w", err)
	}

	cfg, err := config.NewLoader().LoadForBuild(cmd, args)
	if err != nil {
		return err
	}

	source, err := os.ReadFile(absFile)
	if err != nil {
		return fmt.Errorf("failed to read source file: %w", err)
	}

	tc, err := buildToolchain(cfg, absFile)
	if err != nil {
		return err
	}

	log := zap.NewNop()
	if cfg.Verbose {
		if log, err = zap.NewDevelopment(); err != nil {
			return err
		}
	}

	opts := []cache.Option{cache.WithLogger(log)}
	if cfg.NoCache {
		opts = append(opts, cache.WithCachingDisabled())
	}

	c, err := cache.New(cfg.CacheDir, opts...)
	if err != nil {
		return err
	}
	defer c.Close()

	j := jitc.New(tc, c)

	name := strings.TrimSuffix(filepath.Base(absFile), filepath.Ext(absFile))

	var result cache.Result
	if cfg.Mode == "object" {
		result, err = j.ObjectFromString(name, string(source))
	} else {
		result, err = j.CompileFromString(name, string(source))
	}
	if err != nil {
		return err
	}

	if result.Rebuilt {
		fmt.Println(result.Path)
	} else {
		fmt.Printf("%s (cached)\n", result.Path)
	}

	return nil
}

// buildToolchain assembles the toolchain from configuration: a guessed or
// named compiler, CUDA handling for .cu files, search paths, defines and
// feature libraries from the site config.
func buildToolchain(cfg *config.Config, sourceFile string) (toolchain.Toolchain, error) {
	if filepath.Ext(sourceFile) == ".cu" {
		nv := toolchain.GuessNVCCToolchain()
		if cfg.CC != "" {
			nv.CC = cfg.CC
		}

		nv.Defines = append(nv.Defines, cfg.Defines...)
		nv.Undefines = append(nv.Undefines, cfg.Undefines...)
		nv.IncludeDirs = append(nv.IncludeDirs, cfg.IncludeDirs...)
		nv.LibraryDirs = append(nv.LibraryDirs, cfg.LibraryDirs...)
		nv.Libraries = append(nv.Libraries, cfg.Libraries...)

		return nv, nil
	}

	var tc *toolchain.GCC
	var err error

	if cfg.CC != "" {
		tc = toolchain.NewGCC(cfg.CC)
	} else if tc, err = toolchain.GuessToolchain(); err != nil {
		return nil, err
	}

	tc.Defines = append(tc.Defines, cfg.Defines...)
	tc.Undefines = append(tc.Undefines, cfg.Undefines...)
	tc.IncludeDirs = append(tc.IncludeDirs, cfg.IncludeDirs...)
	tc.LibraryDirs = append(tc.LibraryDirs, cfg.LibraryDirs...)
	tc.Libraries = append(tc.Libraries, cfg.Libraries...)

	if cfg.OptLevel != 0 {
		tc = tc.WithOptimizationLevel(cfg.OptLevel)
	}

	if len(cfg.Features) > 0 {
		site, err := config.DefaultSite()
		if err != nil {
			return nil, err
		}

		for _, feature := range cfg.Features {
			if tc, err = libraries.Add(tc, site, feature); err != nil {
				return nil, err
			}
		}
	}

	return tc, nil
}

func hasSourceExtension(file string) bool {
	ext := filepath.Ext(file)
	for _, known := range sourceExtensions {
		if ext == known {
			return true
		}
	}

	return false
}
