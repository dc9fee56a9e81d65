// Command amikoctl is the operator control tool for one amiko node.
//
// Per this module's CLI-transport decision (no lnrpc/gRPC surface
// exists to talk to), amikoctl does not dial a running amikod: each
// invocation restores its own transient node.Node straight from the
// same on-disk state amikod persists to, performs one operation, and
// saves again before exiting. Running amikoctl concurrently with a
// live amikod against the same DataDir is unsupported — persist.Store
// applies no file locking of its own (see DESIGN.md).
//
// Grounded on cmd/lncli's app/command split: one cli.App built in
// main.go, one cli.Command per file, "fatal" as the single error exit
// path.
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli"
)

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "[amikoctl] %v\n", err)
	os.Exit(1)
}

func main() {
	app := cli.NewApp()
	app.Name = "amikoctl"
	app.Usage = "control plane for an amiko payment node"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "configfile, C",
			Usage: "path to amikod's configuration file",
		},
		cli.StringFlag{
			Name:  "datadir, d",
			Usage: "amikod's data directory (overrides configfile)",
		},
	}
	app.Commands = []cli.Command{
		balanceCommand,
		requestCommand,
		payCommand,
		depositCommand,
	}

	if err := app.Run(os.Args); err != nil {
		fatal(err)
	}
}
