package toolchain

import (
	"fmt"
	"os"
	"strings"
)

// joinContinuedLines merges lines ending in a backslash with their
// successors, the way make reads them.
func joinContinuedLines(lines []string) []string {
	var result []string
	appendLine := false

	for _, line := range lines {
		line = strings.TrimRight(line, "\n")

		appendNext := strings.HasSuffix(line, "\\")
		if appendNext {
			line = line[:len(line)-1]
		}

		if appendLine && len(result) > 0 {
			result[len(result)-1] += line
		} else {
			result = append(result, line)
		}

		appendLine = appendNext
	}

	if appendLine {
		fmt.Fprintln(os.Stderr, "Warning: line continuation at end of dependency output")
	}

	return result
}

// parseMakeRules extracts the prerequisite paths from "target: deps" rules
// as emitted by cc -M. Continuation lines are joined first.
func parseMakeRules(output string) []string {
	lines := joinContinuedLines(strings.Split(output, "\n"))

	var deps []string
	for _, line := range lines {
		_, rhs, found := strings.Cut(line, ":")
		if !found {
			continue
		}

		deps = append(deps, strings.Fields(rhs)...)
	}

	return deps
}
