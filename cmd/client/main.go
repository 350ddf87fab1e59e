package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	"github.com/Tyrowin/linechat/internal/client"
)

func main() {
	app := cli.NewApp()
	app.Name = "linechat-client"
	app.Usage = "Terminal client for a linechat server"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "addr,a",
			Usage: "Server TCP address",
			Value: "127.0.0.1:9000",
		},
		cli.DurationFlag{
			Name:  "timeout,t",
			Usage: "Dial timeout",
			Value: 5 * time.Second,
		},
		cli.BoolFlag{
			Name:  "debug,d",
			Usage: "Enable debug output",
		},
	}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		fmt.Printf("Error: %s\n", err.Error())
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	log.SetOutput(os.Stderr)
	if c.Bool("debug") {
		log.SetLevel(log.DebugLevel)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cl, err := client.Dial(ctx, c.String("addr"), c.Duration("timeout"), log.StandardLogger())
	if err != nil {
		return err
	}
	log.Debugf("Connected to %s", c.String("addr"))

	if err := cl.Run(ctx, os.Stdin, os.Stdout); err != nil && ctx.Err() == nil {
		return err
	}
	fmt.Fprintln(os.Stderr, "Disconnected.")
	return nil
}
