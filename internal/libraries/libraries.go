// Package libraries resolves named feature libraries (Boost, CUDA, ...)
// from the site configuration and wires them into a toolchain.
package libraries

import (
	"fmt"
	"path/filepath"

	"github.com/forgecc/jitc/internal/config"
	"github.com/forgecc/jitc/internal/toolchain"
)

// Add returns a copy of tc extended with the include dirs, library dirs
// and libraries of the named feature, resolved from site. The generic
// convention is three site keys per feature:
//
//	<feature>_inc_dir:  [ ... ]
//	<feature>_lib_dir:  [ ... ]
//	<feature>_libname:  [ ... ]
//
// A few features additionally understand a root-style shortcut (cuda_root).
// Values support ${VAR} expansion, handled at site load time.
func Add(tc *toolchain.GCC, site *config.Site, feature string) (*toolchain.GCC, error) {
	includeDirs := site.GetStringSlice(feature + "_inc_dir")
	libraryDirs := site.GetStringSlice(feature + "_lib_dir")
	libraries := site.GetStringSlice(feature + "_libname")

	if feature == "cuda" {
		if root := site.GetString("cuda_root", ""); root != "" {
			if len(includeDirs) == 0 {
				includeDirs = []string{filepath.Join(root, "include")}
			}

			if len(libraryDirs) == 0 {
				libraryDirs = []string{
					filepath.Join(root, "lib64"),
					filepath.Join(root, "lib"),
				}
			}

			if len(libraries) == 0 {
				libraries = []string{"cuda", "cudart"}
			}
		}
	}

	if len(includeDirs) == 0 && len(libraryDirs) == 0 && len(libraries) == 0 {
		return nil, fmt.Errorf(
			"unknown feature library %q: set %s_inc_dir/%s_lib_dir/%s_libname in the site config",
			feature, feature, feature, feature)
	}

	return tc.WithLibrary(feature, includeDirs, libraryDirs, libraries), nil
}
