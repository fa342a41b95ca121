// The main package for the apply4me executable.
package main

import (
	"github.com/BhekumusaEric/apply4me-sub001/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
