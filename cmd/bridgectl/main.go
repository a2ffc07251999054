package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/scenebridge/scenebridge/bridge"
	"github.com/scenebridge/scenebridge/config"
)

func main() {
	app := &cli.App{
		Name:  "bridgectl",
		Usage: "issue operations against a running bridge target",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "host",
				Usage: "The target host.",
				Value: config.DefaultHost,
			},
			&cli.IntFlag{
				Name:  "port",
				Usage: "The target port.",
				Value: config.DefaultPort,
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "Per-call timeout.",
				Value: bridge.DefaultCallTimeout,
			},
			&cli.BoolFlag{
				Name:  "wait",
				Usage: "Wait for the target to become healthy before calling.",
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "call",
				Usage:     "call a named operation: bridgectl call <method> [params-json]",
				ArgsUsage: "<method> [params-json]",
				Action:    call,
			},
		},
	}
	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func call(c *cli.Context) error {
	if c.NArg() < 1 {
		return fmt.Errorf("usage: bridgectl call <method> [params-json]")
	}
	method := c.Args().Get(0)

	var params any
	if c.NArg() > 1 {
		if err := json.Unmarshal([]byte(c.Args().Get(1)), &params); err != nil {
			return fmt.Errorf("parsing params JSON: %w", err)
		}
	}

	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("building logger: %w", err)
	}
	defer logger.Sync()

	client, err := bridge.NewClient(c.String("host"), c.Int("port"),
		bridge.WithClientLogger(logger),
		bridge.WithCustomizeRetryableClient(func(r *retryablehttp.Client) {
			r.RetryMax = 3
		}),
	)
	if err != nil {
		return fmt.Errorf("building client: %w", err)
	}
	defer client.Disconnect()

	if c.Bool("wait") {
		waitCtx, cancel := context.WithTimeout(c.Context, 30*time.Second)
		defer cancel()
		if err := client.WaitForTarget(waitCtx); err != nil {
			return fmt.Errorf("waiting for target: %w", err)
		}
	}

	result, err := client.Call(c.Context, method, params, c.Duration("timeout"))
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding result: %w", err)
	}
	fmt.Println(string(out))
	return nil
}
