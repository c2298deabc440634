// Package main provides the pipeviz command line tool.
// pipeviz simulates a five-stage instruction pipeline cycle by cycle and
// explains every stage change, stall, and hazard.
package main

import (
	"fmt"
	"os"

	"github.com/tebeka/atexit"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		atexit.Exit(1)
	}

	atexit.Exit(0)
}
