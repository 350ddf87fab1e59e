package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli"

	"github.com/Tyrowin/linechat/internal/server"
)

func main() {
	app := cli.NewApp()
	app.Name = "linechat"
	app.Usage = "Multi-client line chat server over TCP and WebSocket"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "config,c",
			Usage: "Path to a TOML config file",
		},
		cli.StringFlag{
			Name:  "tcp-addr,a",
			Usage: "Address for raw TCP chat clients",
		},
		cli.StringFlag{
			Name:  "http-addr",
			Usage: `Address for the HTTP/WebSocket listener ("off" disables it)`,
		},
		cli.IntFlag{
			Name:  "max-clients,m",
			Usage: "Maximum concurrent sessions",
		},
		cli.StringFlag{
			Name:  "log-level",
			Usage: "Log level (debug, info, warn, error)",
		},
		cli.StringFlag{
			Name:  "log-format",
			Usage: "Log format (text, json, plain)",
		},
		cli.BoolFlag{
			Name:  "debug,d",
			Usage: "Enable debug output",
		},
	}
	app.Action = serve

	if err := app.Run(os.Args); err != nil {
		fmt.Printf("Error: %s\n", err.Error())
		os.Exit(1)
	}
}

func serve(c *cli.Context) error {
	cfg, err := server.LoadConfig(c.String("config"))
	if err != nil {
		return err
	}
	applyFlags(c, cfg)

	log, err := server.NewLogger(cfg.LogLevel, cfg.LogFormat, os.Stderr)
	if err != nil {
		return err
	}

	srv, err := server.New(cfg, log)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Infof("Starting linechat (max %d clients)", cfg.MaxClients)
	if err := srv.Run(ctx); err != nil {
		return err
	}
	log.Info("Server stopped")
	return nil
}

// applyFlags overlays flags given on the command line; they win over the
// config file and the environment.
func applyFlags(c *cli.Context, cfg *server.Config) {
	if c.IsSet("tcp-addr") {
		cfg.TCPAddr = c.String("tcp-addr")
	}
	if c.IsSet("http-addr") {
		cfg.HTTPAddr = c.String("http-addr")
	}
	if c.IsSet("max-clients") {
		cfg.MaxClients = c.Int("max-clients")
	}
	if c.IsSet("log-level") {
		cfg.LogLevel = c.String("log-level")
	}
	if c.IsSet("log-format") {
		cfg.LogFormat = c.String("log-format")
	}
	if c.Bool("debug") {
		cfg.LogLevel = "debug"
	}
}
