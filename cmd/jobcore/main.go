// jobcore — webhook-driven background job subsystem.
//
// Usage:
//
//	jobcore serve                 Run the HTTP surface and processor
//	jobcore jobs list|status|...  Operate on jobs via the HTTP surface
//	jobcore audit tail            Stream audit events from RabbitMQ
package main

import (
	"fmt"
	"os"

	"github.com/sourceforge-bot/jobcore/cmd/jobcore/cmd"
)

func main() {
	if err := cmd.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
