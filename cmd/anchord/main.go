package main

import (
	"fmt"
	"os"

	"github.com/pushchain/credential-anchor/anchorClient/config"
	anchorerrors "github.com/pushchain/credential-anchor/anchorClient/errors"
)

// exitTrustFailure is returned when a record no longer matches its anchored hash.
const exitTrustFailure = 2

func main() {
	// Load environment variables from .env file if available
	if _, err := config.LoadEnv(); err != nil {
		fmt.Fprintln(os.Stderr, "failed to load .env:", err)
	}

	rootCmd := NewRootCmd()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(rootCmd.ErrOrStderr(), err)
		os.Exit(exitCode(err))
	}
}

func exitCode(err error) int {
	if anchorerrors.IsCode(err, anchorerrors.ErrCodeTrustFailure) {
		return exitTrustFailure
	}
	return 1
}
