package toolchain

import (
	"os"
	"runtime"
	"strings"
)

// sharedSuffix returns the platform's shared library suffix.
func sharedSuffix() string {
	switch runtime.GOOS {
	case "darwin":
		return ".dylib"
	case "windows":
		return ".dll"
	default:
		return ".so"
	}
}

// NewGCC returns a GCC toolchain for the given compiler executable with
// platform defaults for building shared libraries.
func NewGCC(cc string) *GCC {
	ldflags := []string{"-shared"}
	if runtime.GOOS == "darwin" {
		ldflags = []string{"-dynamiclib", "-undefined", "dynamic_lookup"}
	}

	return &GCC{
		CC:        cc,
		CFlags:    []string{"-fPIC"},
		LDFlags:   ldflags,
		ObjSuffix: ".o",
		SoSuffix:  sharedSuffix(),
	}
}

// GuessToolchain probes the host for a supported C compiler and returns a
// configured GCC toolchain. Candidates are $CC followed by the usual
// executable names. Returns a GuessError if nothing usable is found.
func GuessToolchain() (*GCC, error) {
	candidates := []string{os.Getenv("CC"), "cc", "gcc", "clang", "c++"}

	for _, cc := range candidates {
		if cc == "" {
			continue
		}

		stdout, _, code, err := runCapture(cc, "--version")
		if err != nil || code != 0 {
			continue
		}

		version := string(stdout)
		if !strings.Contains(version, "Free Software Foundation") &&
			!strings.Contains(version, "clang") {
			continue
		}

		return NewGCC(cc), nil
	}

	return nil, &GuessError{Reason: "no gcc-compatible compiler found (tried $CC, cc, gcc, clang, c++)"}
}

// GuessNVCCToolchain returns an NVCC toolchain with CUDA defaults.
// The nvcc executable itself is only checked at first use.
func GuessNVCCToolchain() *NVCC {
	return &NVCC{GCC{
		CC:        "nvcc",
		CFlags:    []string{"-Xcompiler", "-fPIC"},
		LDFlags:   []string{"-shared"},
		Undefines: []string{"__BLOCKS__"},
		ObjSuffix: ".o",
		SoSuffix:  sharedSuffix(),
	}}
}
