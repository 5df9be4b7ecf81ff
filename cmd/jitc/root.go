package main

import (
	"fmt"
	"os"

	"github.com/forgecc/jitc/internal/version"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:          "jitc",
	Short:        "JIT compile cache for C/C++/CUDA",
	Long:         `Compile C, C++ and CUDA sources with a system toolchain and cache the artifacts by content and ABI hash`,
	RunE:         runBuild,
	SilenceUsage: true,
	Args:         cobra.ArbitraryArgs,
}

func main() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.Version = fmt.Sprintf("%s (%s) %s", version.Version, version.Commit, version.BuildTime)
	rootCmd.PersistentFlags().String("cc", "", "Compiler executable (default: guess from $CC, cc, gcc, clang)")
	rootCmd.PersistentFlags().StringP("mode", "m", "", "Build mode: object or shared")
	rootCmd.PersistentFlags().IntP("opt", "O", 0, "Optimization level on the gcc -O scale (-1 for a debug build)")
	rootCmd.PersistentFlags().StringSliceP("define", "D", []string{}, "Preprocessor defines (NAME or NAME=VALUE)")
	rootCmd.PersistentFlags().StringSliceP("undefine", "U", []string{}, "Preprocessor undefines")
	rootCmd.PersistentFlags().StringSliceP("include-dir", "I", []string{}, "Header search directories")
	rootCmd.PersistentFlags().StringSliceP("library-dir", "L", []string{}, "Library search directories")
	rootCmd.PersistentFlags().StringSliceP("library", "l", []string{}, "Libraries to link against")
	rootCmd.PersistentFlags().StringSlice("feature", []string{}, "Feature libraries from the site config (e.g. cuda)")
	rootCmd.PersistentFlags().String("cache-dir", "", "Compile cache directory (default: per-user temp dir)")
	rootCmd.PersistentFlags().Bool("no-cache", false, "Disable the compile cache")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Verbose output")
	rootCmd.AddCommand(buildCmd)
	rootCmd.AddCommand(cacheCmd)
	rootCmd.AddCommand(toolchainCmd)
}
