// xconnect - compiles and runs cross-connect scripts on optical and
// packet network devices.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"xconnect/cmd"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := cmd.Execute(ctx, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "xconnect: %v\n", err)
		os.Exit(1)
	}
}
