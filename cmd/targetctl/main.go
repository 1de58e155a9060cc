// Command targetctl is an operator tool for the ad-targeting service: it
// dry-runs decisions against local rule and catalog files, anonymizes
// sample events and issues admin tokens.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
