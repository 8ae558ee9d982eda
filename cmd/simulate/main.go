package main

import (
	"fmt"
	"os"

	"github.com/simforge/simforge/pkg/simerrors"
)

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(simerrors.ExitCode(err))
	}
}
