// Package testutils provides helper functions for testing.
package testutils

import (
	"fmt"
	"os"
	"slices"
)

// SetupFakeCmdArgs returns the argv to run the fake command implemented by the
// test function named testFuncName, re-executing the current test binary.
// Everything after the "--" separator is made available to the fake through
// GetFakeCmdArgs.
func SetupFakeCmdArgs(testFuncName string, args ...string) []string {
	cmdArgs := []string{os.Args[0], fmt.Sprintf("-test.run=^%s$", testFuncName), "--"}
	return append(cmdArgs, args...)
}

// GetFakeCmdArgs returns the arguments passed to a fake command, or an error
// when the test binary is not running as a fake command.
func GetFakeCmdArgs() ([]string, error) {
	i := slices.Index(os.Args, "--")
	if i == -1 {
		return nil, fmt.Errorf("not running as a fake command")
	}
	return os.Args[i+1:], nil
}
