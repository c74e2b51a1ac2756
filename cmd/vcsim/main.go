// Command vcsim drives the possession stack against the simulated runtime.
package main

import "os"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
