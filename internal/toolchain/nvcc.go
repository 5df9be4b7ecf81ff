package toolchain

import "strings"

// NVCC drives the CUDA nvcc compiler. It shares command assembly with GCC
// but compensates for nvcc's unreliable exit codes by scanning captured
// stderr for an error marker.
type NVCC struct {
	GCC
}

// BuildObject compiles sourceFiles into objFile.
func (n *NVCC) BuildObject(objFile string, sourceFiles []string) error {
	return n.runChecked(n.cmdline(true, objFile, sourceFiles))
}

// BuildExtension compiles and links sourceFiles into extFile.
func (n *NVCC) BuildExtension(extFile string, sourceFiles []string) error {
	return n.runChecked(n.cmdline(false, extFile, sourceFiles))
}

// LinkExtension links objectFiles into extFile.
func (n *NVCC) LinkExtension(extFile string, objectFiles []string) error {
	return n.runChecked(n.cmdline(false, extFile, objectFiles))
}

func (n *NVCC) runChecked(cmdline []string) error {
	_, stderr, code, err := runCapture(cmdline[0], cmdline[1:]...)
	if err != nil {
		return err
	}

	// nvcc has been seen returning zero for failed compilations
	if code != 0 || strings.Contains(string(stderr), "error") {
		return &CompileError{Cmdline: cmdline, Output: string(stderr)}
	}

	return nil
}
