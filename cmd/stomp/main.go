// Command stomp is the collaborator-layer CLI around the correlate
// package: it reads an ASCII footprint and catalog, runs an angular
// auto-correlation, and writes the w(theta) and covariance tables. It is
// the one place in this module that parses flags and exits the process,
// mirroring the teacher's cli package's single top-level *cli.App.
package main

import (
	"fmt"
	"os"

	"github.com/edaniels/golog"
	"github.com/urfave/cli/v2"
)

func main() {
	if err := app().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "stomp:", err)
		os.Exit(exitCodeFor(err))
	}
}

func app() *cli.App {
	return &cli.App{
		Name:            "stomp",
		Usage:           "compute the angular two-point correlation function of a galaxy catalog",
		HideHelpCommand: true,
		Commands: []*cli.Command{
			autoCorrelateCommand(),
		},
	}
}

func newLogger(c *cli.Context) golog.Logger {
	if c.Bool("debug") {
		return golog.NewDebugLogger("stomp")
	}
	return golog.NewDevelopmentLogger("stomp")
}
