// Command chatpool-coordinator runs the session pool: slot pools for the
// multiplexed tiers, a supervisor for dedicated worker processes and the MCP
// admin tool surface.
package main

import "os"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
