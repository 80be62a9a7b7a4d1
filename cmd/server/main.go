// Command server runs the order pacer: the HTTP control surface, the run
// engine and the daily status report. It also imports contact samples and
// previews schedules.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
