// Command knife runs the knife server and its JSON-RPC client commands.
//
// Exit codes:
//
//	0 = success
//	1 = error (connection, RPC or timeout)
package main

import (
	"os"

	"github.com/harun/knife/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
