// The main package for the digest executable.
package main

import (
	"github.com/JakeFAU/article-digest/cmd"
)

// main is the entry point of the application.
// It defers all execution to the Cobra CLI library.
func main() {
	cmd.Execute()
}
