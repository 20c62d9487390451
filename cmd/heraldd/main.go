// Command heraldd runs the Herald job queue: the delivery and trigger
// queues, the due-job scheduler, the cron scheduler and the admin API.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
