package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/scenebridge/scenebridge/bridge"
	"github.com/scenebridge/scenebridge/codec"
	"github.com/scenebridge/scenebridge/config"
	"github.com/scenebridge/scenebridge/handlers"
	"github.com/scenebridge/scenebridge/scene"
)

func main() {
	app := &cli.App{
		Name:  "bridged",
		Usage: "the bridge target daemon hosting a live scene tree",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config",
				Usage: "Path to a TOML config file.",
			},
			&cli.StringFlag{
				Name:  "listen-addr",
				Usage: "The host:port for the bridge server to listen on. Overrides config.",
			},
			&cli.StringFlag{
				Name:  "capture-dir",
				Usage: "Directory for frame capture artifacts. Overrides config.",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Log level. One of [debug,info,warn,error].",
			},
		},
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func run(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}
	listenAddr := cfg.ListenAddr()
	if addr := c.String("listen-addr"); addr != "" {
		listenAddr = addr
	}
	if dir := c.String("capture-dir"); dir != "" {
		cfg.CaptureDir = dir
	}
	if lvl := c.String("log-level"); lvl != "" {
		cfg.LogLevel = lvl
	}

	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("parsing log level: %w", err)
	}
	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(level)
	logger, err := zapCfg.Build()
	if err != nil {
		return fmt.Errorf("building logger: %w", err)
	}
	defer logger.Sync()

	tree := demoTree()
	h := handlers.New(tree,
		handlers.WithLogger(logger),
		handlers.WithCaptureDir(cfg.CaptureDir),
	)

	server, err := bridge.NewServer(
		bridge.WithListenAddr(listenAddr),
		bridge.WithServerLogger(logger),
	)
	if err != nil {
		return fmt.Errorf("building bridge server: %w", err)
	}
	h.Register(server)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger.Sugar().Infow("starting bridge target", "Addr", listenAddr, "TickInterval", cfg.TickInterval())
	return server.Run(ctx, cfg.TickInterval())
}

// demoTree builds the scene the standalone daemon hosts. An embedding engine
// would pass its own tree instead.
func demoTree() *scene.Tree {
	tree := scene.NewTree()
	must2(tree.Add("/root", "Main", "Node2D"))
	player := must2(tree.Add("/root/Main", "Player", "CharacterBody2D"))
	player.Props["Position"] = codec.Vector2{X: 0, Y: 0}
	player.Props["Modulate"] = codec.Color{R: 1, G: 1, B: 1, A: 1}
	must2(tree.Add("/root/Main", "Ground", "TileMap"))
	return tree
}

func must2[V any](v V, err error) V {
	if err != nil {
		panic(err)
	}
	return v
}
