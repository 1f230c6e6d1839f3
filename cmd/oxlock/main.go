// Command oxlock is the CLI adapter over the core lock/draft/queue/upload
// components: a thin cobra tree that wires flags to constructors and
// prints results, with no business logic of its own.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "oxlock:", err)
		os.Exit(1)
	}
}
