package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "leeksaver",
		Usage: "A-share market data synchronization service",
		Commands: []*cli.Command{
			serveCommand(),
			syncCommand(),
			doctorCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		if exit, ok := err.(cli.ExitCoder); ok {
			os.Exit(exit.ExitCode())
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
