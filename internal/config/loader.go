package config

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Loader handles configuration loading from various sources
type Loader struct{}

// NewLoader creates a new configuration loader
func NewLoader() *Loader {
	return &Loader{}
}

// LoadForBuild loads configuration specifically for build operations.
// Precedence, lowest first: defaults, global config, project-local config,
// command-line flags.
func (l *Loader) LoadForBuild(cmd *cobra.Command, args []string) (*Config, error) {
	l.setupViperDefaults()
	l.loadGlobalConfig()
	l.loadLocalConfig(args)
	l.bindCommandFlags(cmd)

	return Load()
}

// setupViperDefaults sets up default values for viper
func (l *Loader) setupViperDefaults() {
	viper.SetDefault("mode", DefaultMode)
	viper.SetDefault("opt", DefaultOptLevel)
	viper.SetDefault("no_cache", false)
	viper.SetDefault("verbose", false)
}

// loadGlobalConfig loads global configuration from the user config directory
func (l *Loader) loadGlobalConfig() {
	confDir, err := os.UserConfigDir()
	if err != nil {
		return
	}

	globalDir := filepath.Join(confDir, "jitc")

	for _, ext := range []string{"yml", "yaml", "json", "toml"} {
		globalPath := filepath.Join(globalDir, "config."+ext)

		if _, err := os.Stat(globalPath); err == nil {
			viper.SetConfigFile(globalPath)

			if err := viper.ReadInConfig(); err == nil {
				break
			}
		}
	}
}

// loadLocalConfig loads local configuration from the source file's directory
func (l *Loader) loadLocalConfig(args []string) {
	if len(args) > 0 {
		absFirstFile, err := filepath.Abs(args[0])
		if err != nil {
			return // silently ignore, config.Load() will handle validation
		}

		dir := filepath.Dir(absFirstFile)
		localPath := FindLocalConfig(dir)
		if localPath != "" {
			viper.SetConfigFile(localPath)
			_ = viper.ReadInConfig()
		}
	}
}

// bindCommandFlags binds command flags to viper
func (l *Loader) bindCommandFlags(cmd *cobra.Command) {
	_ = viper.BindPFlag("cc", cmd.Flags().Lookup("cc"))
	_ = viper.BindPFlag("mode", cmd.Flags().Lookup("mode"))
	_ = viper.BindPFlag("opt", cmd.Flags().Lookup("opt"))
	_ = viper.BindPFlag("define", cmd.Flags().Lookup("define"))
	_ = viper.BindPFlag("undefine", cmd.Flags().Lookup("undefine"))
	_ = viper.BindPFlag("include_dir", cmd.Flags().Lookup("include-dir"))
	_ = viper.BindPFlag("library_dir", cmd.Flags().Lookup("library-dir"))
	_ = viper.BindPFlag("library", cmd.Flags().Lookup("library"))
	_ = viper.BindPFlag("feature", cmd.Flags().Lookup("feature"))
	_ = viper.BindPFlag("cache_dir", cmd.Flags().Lookup("cache-dir"))
	_ = viper.BindPFlag("no_cache", cmd.Flags().Lookup("no-cache"))
	_ = viper.BindPFlag("verbose", cmd.Flags().Lookup("verbose"))
}
