// Command netcall serves the example SharedObject targets and calls remote
// objects from the command line.
//
//	netcall serve --listen ws://127.0.0.1:5556/
//	netcall call --uri ws://127.0.0.1:5556/ bar AddAndPrint 4
//	netcall demo --uri ws://127.0.0.1:5556/
package main

import (
	"context"
	"errors"
	"fmt"
	"netcall/client"
	"netcall/codec"
	"netcall/config"
	"netcall/loadbalance"
	"netcall/logging"
	"netcall/middleware"
	"netcall/registry"
	"netcall/server"
	"netcall/transport"
	"netcall/value"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli"
	"go.uber.org/zap"
)

func main() {
	app := cli.NewApp()
	app.Name = "netcall"
	app.Usage = "call methods of objects registered in a remote process"
	app.Version = "0.1.0"
	app.Flags = []cli.Flag{
		cli.StringFlag{Name: "config, c", Usage: "TOML configuration file"},
		cli.StringFlag{Name: "log-level", Usage: "override logging.level"},
	}
	app.Commands = []cli.Command{
		cli.Command{
			Name:  "serve",
			Usage: "serve the example objects foo, bar, fizz and fazz",
			Flags: []cli.Flag{
				cli.StringFlag{Name: "listen, l", Usage: "listen URI (ws://host:port/ or tcp://host:port)"},
				cli.BoolFlag{Name: "parallel", Usage: "dispatch the messages of a connection concurrently"},
			},
			Action: serveCommand,
		},
		cli.Command{
			Name:      "call",
			Usage:     "call one method; each argument is a JSON value",
			ArgsUsage: "<obj> <method> [arg ...]",
			Flags: []cli.Flag{
				cli.StringFlag{Name: "uri, u", Usage: "server URI; ignored when an etcd directory is configured"},
			},
			Action: callCommand,
		},
		cli.Command{
			Name:  "demo",
			Usage: "run the example call sequence against a server started with serve",
			Flags: []cli.Flag{
				cli.StringFlag{Name: "uri, u", Usage: "server URI"},
			},
			Action: demoCommand,
		},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// setup loads the configuration and builds the logger shared by every command.
func setup(c *cli.Context) (*config.Config, *zap.Logger, error) {
	cfg := config.Default()
	if path := c.GlobalString("config"); path != "" {
		var err error
		if cfg, err = config.Load(path); err != nil {
			return nil, nil, err
		}
	}
	if level := c.GlobalString("log-level"); level != "" {
		cfg.Logging.Level = level
	}
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

func openDirectory(cfg config.DirectoryConfig, logger *zap.Logger) (registry.Directory, func(), error) {
	switch cfg.Backend {
	case "etcd":
		dir, err := registry.NewEtcdDirectory(cfg.Endpoints, cfg.DialTimeout(), logger.Named("directory"))
		if err != nil {
			return nil, nil, err
		}
		return dir, func() { dir.Close() }, nil
	case "memory":
		return registry.NewMemoryDirectory(), func() {}, nil
	}
	return nil, func() {}, nil
}

func serveCommand(c *cli.Context) error {
	cfg, logger, err := setup(c)
	if err != nil {
		return err
	}
	defer logger.Sync()

	listen := cfg.Server.Listen
	if c.String("listen") != "" {
		listen = c.String("listen")
	}
	cdc, err := codec.ByName(cfg.Server.Codec)
	if err != nil {
		return err
	}

	opts := []server.Option{
		server.WithLogger(logger),
		server.WithCodec(cdc),
		server.WithParallel(cfg.Server.Parallel || c.Bool("parallel")),
	}
	if cfg.Server.MaxMessageSize > 0 {
		opts = append(opts, server.WithTransportOptions(transport.WithMaxMessageSize(cfg.Server.MaxMessageSize)))
	}
	dir, closeDir, err := openDirectory(cfg.Directory, logger)
	if err != nil {
		return err
	}
	defer closeDir()
	if dir != nil {
		opts = append(opts, server.WithDirectory(dir, cfg.Directory.AdvertiseAddr, cfg.Directory.TTLSeconds))
	}

	svr := server.NewServer(opts...)
	svr.Use(middleware.Logging(logger.Named("calls")))
	if rl := cfg.Server.RateLimit; rl.Enabled {
		svr.Use(middleware.RateLimit(rl.Rate, rl.Burst))
	}
	if cfg.Server.TimeoutMS > 0 {
		svr.Use(middleware.Timeout(cfg.Server.Timeout()))
	}

	if err := registerExamples(svr, os.Stdout); err != nil {
		logger.Warn("publishing example objects failed", zap.Error(err))
	}

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-signals
		logger.Info("shutting down", zap.String("signal", sig.String()))
		if err := svr.Shutdown(cfg.Server.ShutdownTimeout()); err != nil {
			logger.Warn("shutdown incomplete", zap.Error(err))
		}
	}()

	return svr.ListenAndServe(listen)
}

// connect returns a Caller for the configured directory, or a Client dialed
// to the configured URI.
func connect(c *cli.Context, cfg *config.Config, logger *zap.Logger) (client.Caller, func(), error) {
	cdc, err := codec.ByName(cfg.Client.Codec)
	if err != nil {
		return nil, nil, err
	}
	opts := []client.Option{
		client.WithLogger(logger),
		client.WithCodec(cdc),
		client.WithCallTimeout(cfg.Client.CallTimeout()),
	}
	if cfg.Client.HeartbeatMS > 0 {
		opts = append(opts, client.WithHeartbeat(cfg.Client.Heartbeat()))
	}

	if cfg.Directory.Backend == "etcd" {
		dir, closeDir, err := openDirectory(cfg.Directory, logger)
		if err != nil {
			return nil, nil, err
		}
		bal, err := loadbalance.ByName(cfg.Directory.Balancer)
		if err != nil {
			closeDir()
			return nil, nil, err
		}
		r := client.NewRouter(dir, bal, opts...)
		return r, func() { r.Close(); closeDir() }, nil
	}

	uri := cfg.Client.URI
	if c.String("uri") != "" {
		uri = c.String("uri")
	}
	cl, err := client.Dial(context.Background(), uri, opts...)
	if err != nil {
		return nil, nil, err
	}
	return cl, func() { cl.Close() }, nil
}

func callCommand(c *cli.Context) error {
	if c.NArg() < 2 {
		return cli.NewExitError("usage: netcall call <obj> <method> [arg ...]", 2)
	}
	cfg, logger, err := setup(c)
	if err != nil {
		return err
	}
	defer logger.Sync()

	args := make([]any, 0, c.NArg()-2)
	for _, raw := range c.Args().Tail()[1:] {
		v, err := value.Parse([]byte(raw))
		if err != nil {
			return fmt.Errorf("argument %q is not a JSON value: %w", raw, err)
		}
		args = append(args, v)
	}

	caller, closeCaller, err := connect(c, cfg, logger)
	if err != nil {
		return err
	}
	defer closeCaller()

	result, err := caller.Call(context.Background(), c.Args().Get(0), c.Args().Get(1), args...)
	var remote *client.RemoteError
	if errors.As(err, &remote) {
		return cli.NewExitError("remote error: "+remote.Message, 1)
	}
	if err != nil {
		return err
	}
	fmt.Println(result)
	return nil
}

// demoCommand replays the classic example call sequence of the NetCall
// clients.
func demoCommand(c *cli.Context) error {
	cfg, logger, err := setup(c)
	if err != nil {
		return err
	}
	defer logger.Sync()

	caller, closeCaller, err := connect(c, cfg, logger)
	if err != nil {
		return err
	}
	defer closeCaller()
	ctx := context.Background()

	if _, err := caller.Call(ctx, "foo", "Print", "Hello!"); err != nil {
		return err
	}
	if _, err := caller.Call(ctx, "bar", "Print", "World!"); err != nil {
		return err
	}
	for _, n := range []int{4, 8} {
		total, err := client.CallAs[int](ctx, caller, "bar", "AddAndPrint", n)
		if err != nil {
			return err
		}
		fmt.Printf("bar.AddAndPrint(%d) = %d\n", n, total)
	}
	addition := AddNumbers{A: 10, B: 5}
	sum, err := client.CallAs[int](ctx, caller, "foo", "AddTwo", addition)
	if err != nil {
		return err
	}
	fmt.Printf("%d + %d = %d\n", addition.A, addition.B, sum)
	return nil
}
