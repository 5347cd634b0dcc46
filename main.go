// The main package for the migsim executable.
package main

import (
	"github.com/ora2es/migsim/cmd"
)

// main is the entry point of the application.
// It defers all execution to the Cobra CLI library.
func main() {
	cmd.Execute()
}
