package config

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/viper"
)

// Default configuration values
const (
	DefaultMode     = "shared"
	DefaultOptLevel = 0
)

// Holds the build options for jitc
type Config struct {
	// Compiler executable; empty means guess from the environment
	CC string

	// Build mode: "object" or "shared"
	Mode string

	// Optimization level on the gcc -O scale; -1 means debug build
	OptLevel int

	// Preprocessor defines and undefines (NAME or NAME=VALUE)
	Defines   []string
	Undefines []string

	// Search paths
	IncludeDirs []string
	LibraryDirs []string
	Libraries   []string

	// Named feature libraries resolved from the site config
	Features []string

	// Cache location; empty means the per-user default
	CacheDir string

	// Disable the compile cache entirely
	NoCache bool

	// Enable verbose output
	Verbose bool
}

func Load() (*Config, error) {
	cfg := &Config{
		CC:          viper.GetString("cc"),
		Mode:        viper.GetString("mode"),
		OptLevel:    viper.GetInt("opt"),
		Defines:     viper.GetStringSlice("define"),
		Undefines:   viper.GetStringSlice("undefine"),
		IncludeDirs: viper.GetStringSlice("include_dir"),
		LibraryDirs: viper.GetStringSlice("library_dir"),
		Libraries:   viper.GetStringSlice("library"),
		Features:    viper.GetStringSlice("feature"),
		CacheDir:    viper.GetString("cache_dir"),
		NoCache:     viper.GetBool("no_cache"),
		Verbose:     viper.GetBool("verbose"),
	}

	if cfg.Mode == "" {
		cfg.Mode = DefaultMode
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Mode != "object" && c.Mode != "shared" {
		return fmt.Errorf("invalid build mode: %s", c.Mode)
	}

	// Resolve search paths so cached entries do not depend on the
	// working directory the build was started from
	for i, dir := range c.IncludeDirs {
		abs, err := filepath.Abs(dir)
		if err != nil {
			return fmt.Errorf("invalid include dir: %v", err)
		}

		c.IncludeDirs[i] = abs
	}

	for i, dir := range c.LibraryDirs {
		abs, err := filepath.Abs(dir)
		if err != nil {
			return fmt.Errorf("invalid library dir: %v", err)
		}

		c.LibraryDirs[i] = abs
	}

	if c.CacheDir != "" {
		abs, err := filepath.Abs(c.CacheDir)
		if err != nil {
			return fmt.Errorf("invalid cache dir: %v", err)
		}

		c.CacheDir = abs
	}

	return nil
}
