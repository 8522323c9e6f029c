// Command isnad is the batch CLI over the narrator resolution pipeline.
package main

import (
	"os"
)

// Set via ldflags at build time
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
