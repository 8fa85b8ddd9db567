// Command discussiond runs the discussion orchestration engine.
package main

import (
	"fmt"
	"os"

	"github.com/discussiond/engine/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
