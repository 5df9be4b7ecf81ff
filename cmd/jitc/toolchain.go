package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/forgecc/jitc/internal/cache"
	"github.com/forgecc/jitc/internal/toolchain"
)

var toolchainCmd = &cobra.Command{
	Use:          "toolchain",
	Short:        "Show the guessed host toolchain",
	RunE:         runToolchain,
	SilenceUsage: true,
}

func runToolchain(cmd *cobra.Command, args []string) error {
	tc, err := toolchain.GuessToolchain()
	if err != nil {
		return err
	}

	version, err := tc.Version()
	if err != nil {
		return err
	}

	abi, err := tc.ABIID()
	if err != nil {
		return err
	}

	fmt.Printf("Compiler: %s\n", tc.CC)
	fmt.Printf("Version: %s\n", strings.SplitN(version, "\n", 2)[0])
	fmt.Printf("ABI digest: %s\n", cache.Key(nil, abi).Encoded()[:16])

	return nil
}
