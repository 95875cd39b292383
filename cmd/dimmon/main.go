// Command dimmon is the runtime kernel's primary executable: it loads a
// configuration file, creates the starter node, hands it the verbatim
// remainder, and drives the main loop until interrupted.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/google/uuid"
	"github.com/urfave/cli/v3"

	"github.com/rcc-msu/dimmon/pkg/config"
	"github.com/rcc-msu/dimmon/pkg/diagnostics"
	"github.com/rcc-msu/dimmon/pkg/kernel"
	"github.com/rcc-msu/dimmon/pkg/log"
	"github.com/rcc-msu/dimmon/pkg/version"
	_ "github.com/rcc-msu/dimmon/pkg/modules/aggregate/aggregateall"
	_ "github.com/rcc-msu/dimmon/pkg/modules/aggregate/wavebuf"
	_ "github.com/rcc-msu/dimmon/pkg/modules/control/starter"
	_ "github.com/rcc-msu/dimmon/pkg/modules/endpoint/tcp"
	_ "github.com/rcc-msu/dimmon/pkg/modules/sensor/dummy"
	_ "github.com/rcc-msu/dimmon/pkg/modules/sink/recorder"
	_ "github.com/rcc-msu/dimmon/pkg/modules/transform/prepend"
)

func main() {
	app := &cli.Command{
		Name:    "dimmon",
		Usage:   "a single-process runtime kernel for monitoring pipelines",
		Version: version.BuildVersion(),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "configuration file path",
				Value: "dimmon.conf",
			},
			&cli.StringFlag{
				Name:  "diagnostics-socket",
				Usage: "Unix socket path to publish per-wave NDJSON trace events on; empty disables diagnostics",
			},
			&cli.BoolFlag{
				Name:  "diagnostics-compress",
				Usage: "flate-compress the diagnostics NDJSON stream",
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "enable debug logging",
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "types",
				Usage: "list registered node types",
				Action: func(ctx context.Context, c *cli.Command) error {
					return listTypes()
				},
			},
			{
				Name:  "validate",
				Usage: "parse and sanity-check a config file without starting the main loop",
				Action: func(ctx context.Context, c *cli.Command) error {
					return validateConfig(c.String("config"))
				},
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			return run(ctx, c.String("config"), c.String("diagnostics-socket"), c.Bool("diagnostics-compress"), c.Bool("debug"))
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func listTypes() error {
	names := kernel.GlobalRegistry.Names()
	sort.Strings(names)
	for _, name := range names {
		fmt.Println(name)
	}
	return nil
}

func validateConfig(path string) error {
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	if _, err := kernel.GlobalRegistry.Lookup(cfg.StarterType); err != nil {
		return fmt.Errorf("starter type %q is not registered: %w", cfg.StarterType, err)
	}
	fmt.Printf("config %s is valid: %d module path(s), starter %q, remainder at line %d\n",
		path, len(cfg.ModulePaths), cfg.StarterType, cfg.RemainderLine)
	return nil
}

func run(ctx context.Context, configPath, diagSocket string, diagCompress, debug bool) error {
	if debug {
		log.SetGlobalDebug(true)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	for _, p := range cfg.ModulePaths {
		fmt.Fprintf(os.Stderr, "dimmon: module path %s (statically linked, not dlopen'd)\n", p)
	}

	remainder, err := config.OpenRemainder(cfg)
	if err != nil {
		return fmt.Errorf("opening config remainder: %w", err)
	}
	defer remainder.Close()

	rt, err := kernel.New(kernel.Options{})
	if err != nil {
		return fmt.Errorf("constructing runtime: %w", err)
	}
	if err := rt.Initialize(); err != nil {
		return fmt.Errorf("initializing runtime: %w", err)
	}

	var bridge *diagnostics.Bridge
	if diagSocket != "" {
		bridge = diagnostics.New(diagSocket, diagCompress)
		if err := bridge.Start(); err != nil {
			return fmt.Errorf("starting diagnostics bridge: %w", err)
		}
		defer bridge.Stop()
		rt.WaveHook = func(wave kernel.ID, trace uuid.UUID) {
			bridge.PublishWave(uint64(wave), trace, "wave finished")
		}
	}

	starter, err := rt.CreateNode(cfg.StarterType)
	if err != nil {
		return fmt.Errorf("creating starter node %q: %w", cfg.StarterType, err)
	}

	startupMsg := kernel.NewMessage(starter.ID(), kernel.CmdStartup, kernel.TypeGeneric, 0, 0,
		kernel.StartupPayload{FD: int(remainder.Fd()), LineNo: cfg.RemainderLine})
	if err := rt.SendToID(starter.ID(), startupMsg); err != nil {
		return fmt.Errorf("starting up %q: %w", cfg.StarterType, err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		rt.Stop()
	}()

	return rt.Run()
}
