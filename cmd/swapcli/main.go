// swapcli is a command line client for the submarine swap broker's HTTP
// API.
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli"
)

const defaultSwapServer = "http://127.0.0.1:9652"

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "[swapcli] %v\n", err)
	os.Exit(1)
}

func main() {
	app := cli.NewApp()
	app.Name = "swapcli"
	app.Version = "0.1.0"
	app.Usage = "control plane for your submarine swap broker"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "swapserver",
			Value: defaultSwapServer,
			Usage: "base URL of the broker's HTTP API",
		},
	}
	app.Commands = []cli.Command{
		createCommand,
		lookupCommand,
		settleCommand,
	}

	if err := app.Run(os.Args); err != nil {
		fatal(err)
	}
}
