// Package toolchain models external C/C++/CUDA compilers and assembles
// their command lines.
package toolchain

import (
	"bytes"
	"fmt"
	"os/exec"
	"strings"
)

// Toolchain abstracts an external compiler used to produce objects and
// shared libraries from source files.
type Toolchain interface {
	// Version returns the exact version string reported by the compiler.
	Version() (string, error)

	// ABIID returns a stable byte string describing the ABI this
	// toolchain produces: the compiler version plus the exact assembled
	// command line. Any flag change yields a different ABIID.
	ABIID() ([]byte, error)

	// Dependencies returns the header files transitively included by the
	// given source files, excluding the source files themselves.
	Dependencies(sourceFiles ...string) ([]string, error)

	// BuildObject compiles sourceFiles into the object file objFile.
	BuildObject(objFile string, sourceFiles []string) error

	// BuildExtension compiles and links sourceFiles into the shared
	// library extFile.
	BuildExtension(extFile string, sourceFiles []string) error

	// LinkExtension links already-compiled objectFiles into extFile.
	LinkExtension(extFile string, objectFiles []string) error

	// ObjectSuffix returns the object file suffix (e.g. ".o").
	ObjectSuffix() string

	// SharedSuffix returns the shared library suffix (e.g. ".so").
	SharedSuffix() string
}

// CompileError reports a failed compiler invocation. It carries the full
// failing command line for diagnostics.
type CompileError struct {
	Cmdline []string
	Output  string
}

func (e *CompileError) Error() string {
	msg := "compilation failed: " + strings.Join(e.Cmdline, " ")
	if e.Output != "" {
		msg += "\n" + e.Output
	}

	return msg
}

// GuessError indicates that no supported compiler could be identified.
type GuessError struct {
	Reason string
}

func (e *GuessError) Error() string {
	return "could not guess toolchain: " + e.Reason
}

// runCapture invokes a command and captures its output. Replaced in tests.
var runCapture = func(name string, args ...string) (stdout, stderr []byte, exitCode int, err error) {
	var outBuf, errBuf bytes.Buffer

	cmd := exec.Command(name, args...)
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf

	runErr := cmd.Run()
	if runErr != nil {
		if exitErr, ok := runErr.(*exec.ExitError); ok {
			return outBuf.Bytes(), errBuf.Bytes(), exitErr.ExitCode(), nil
		}

		return nil, nil, -1, fmt.Errorf("failed to invoke %s: %w", name, runErr)
	}

	return outBuf.Bytes(), errBuf.Bytes(), 0, nil
}
