// Command qmin enqueues to and consumes from qmin queues.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/xraph/qmin"
)

func main() {
	root := newRootCommand()
	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		if errors.Is(err, qmin.ErrForcedShutdown) {
			os.Exit(1)
		}
		os.Exit(2)
	}
}
