// The main package for the zapdeals executable.
package main

import (
	"github.com/zapdeals/zapdeals/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
