// Command eas-build-server runs only the build HTTP API. It is the serve
// subcommand of eas-build packaged as its own binary.
package main

import (
	"fmt"
	"os"

	"github.com/cross19xx/eas-build/internal/cli"
)

var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := cli.NewServerCmd(Version, Commit, BuildTime).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "eas-build-server: %v\n", err)
		os.Exit(1)
	}
}
