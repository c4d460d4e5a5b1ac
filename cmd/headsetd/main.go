// Headsetd is the onboard telemetry agent for a head-mounted device.
//
// It runs a tick-driven control loop that samples simulated head, eye,
// and hand sensors at one rate, publishes serialized telemetry to a
// message broker at a second rate, and services a watchdog at a third,
// while a small fault-escalation state machine tracks device health.
// Configuration is loaded from a single YAML file discovered
// automatically (see [config.DefaultSearchPaths]); every broker and
// rate setting can be overridden from the command line.
//
// Usage:
//
//	headsetd run               Start the agent loop
//	headsetd consume           Tap the telemetry stream off the broker
//	headsetd version           Print version and build information
//	headsetd -o json version   Output version information as JSON
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/visorlabs/headsetd/internal/amqp"
	"github.com/visorlabs/headsetd/internal/api"
	"github.com/visorlabs/headsetd/internal/buildinfo"
	"github.com/visorlabs/headsetd/internal/config"
	"github.com/visorlabs/headsetd/internal/engine"
	"github.com/visorlabs/headsetd/internal/journal"
	"github.com/visorlabs/headsetd/internal/mqtt"
	"github.com/visorlabs/headsetd/internal/sim"
	"github.com/visorlabs/headsetd/internal/telemetry"
)

// main is intentionally minimal. It constructs the OS-level environment
// (context, stdio, argv) and delegates immediately to [run]. This keeps
// os.Exit, os.Stdout, and os.Args out of the application logic so that
// the full startup-to-shutdown lifecycle can be driven from tests.
func main() {
	ctx := context.Background()

	if err := run(ctx, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

// run is the real entry point for the headsetd command. OS-level
// dependencies are injected: ctx controls process lifetime, stdout and
// stderr receive all output, args is os.Args[1:]. The global flags
// (-config, -o) are parsed by hand so run() stays callable from
// parallel tests; the larger per-command flag surface uses a local
// [flag.FlagSet] for the same reason.
func run(ctx context.Context, stdout io.Writer, stderr io.Writer, args []string) error {
	var configPath string
	var outputFmt string // "text" (default) or "json"
	var command string
	var cmdArgs []string

	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "-config" && i+1 < len(args):
			configPath = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-config="):
			configPath = strings.TrimPrefix(args[i], "-config=")
		case (args[i] == "-o" || args[i] == "--output") && i+1 < len(args):
			outputFmt = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-o="):
			outputFmt = strings.TrimPrefix(args[i], "-o=")
		case args[i] == "-h" || args[i] == "-help" || args[i] == "--help":
			return printUsage(stdout)
		case !strings.HasPrefix(args[i], "-") && command == "":
			command = args[i]
		default:
			if command != "" {
				cmdArgs = append(cmdArgs, args[i])
			} else {
				return fmt.Errorf("unknown flag %q (see headsetd -help)", args[i])
			}
		}
	}

	switch command {
	case "", "run":
		return runAgent(ctx, stdout, stderr, configPath, cmdArgs)
	case "consume":
		return runConsume(ctx, stdout, configPath, cmdArgs)
	case "version":
		return printVersion(stdout, outputFmt)
	default:
		return fmt.Errorf("unknown command %q (see headsetd -help)", command)
	}
}

func printUsage(w io.Writer) error {
	fmt.Fprint(w, `headsetd - head-mounted device telemetry agent

Usage:
  headsetd [global flags] <command> [command flags]

Commands:
  run        Start the agent loop (default)
  consume    Subscribe to the telemetry exchange and print payloads
  version    Print version and build information

Global flags:
  -config PATH   Config file (default: search headsetd.yaml,
                 ~/.config/headsetd/config.yaml, /etc/headsetd/config.yaml)
  -o FORMAT      Output format for version: text or json

Run flags:
  -host HOST             Broker host
  -port PORT             Broker port
  -username USER         Broker username
  -password PASS         Broker password
  -vhost VHOST           AMQP vhost
  -exchange NAME         Exchange name
  -routing-key KEY       Routing key
  -transport KIND        amqp, mqtt, or console
  -no-broker             Console output only (same as -transport console)
  -sensor-hz HZ          Sensor update frequency (default 1000)
  -telemetry-hz HZ       Telemetry transmission rate (default 60)
  -duration SEC          Run duration in seconds (0 = unbounded)
  -watchdog-timeout MS   Watchdog timeout (default 5000)
  -power-save            Enable power saving mode
  -cpu-sleep-level N     CPU sleep level 0-3 (default 1)
  -log-level LEVEL       trace, debug, info, warn, or error
`)
	return nil
}

func printVersion(w io.Writer, format string) error {
	if format == "json" {
		return json.NewEncoder(w).Encode(buildinfo.Info())
	}
	fmt.Fprintln(w, buildinfo.String())
	return nil
}

// loadConfig finds and loads the config file, falling back to defaults
// when no file exists and none was requested explicitly.
func loadConfig(configPath string) (*config.Config, error) {
	path, err := config.FindConfig(configPath)
	if err != nil {
		if configPath != "" {
			return nil, err
		}
		return config.Default(), nil
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	return cfg, nil
}

// agentFlags declares the run-command flag surface against cfg's
// current values, so unset flags leave the config untouched.
func agentFlags(fs *flag.FlagSet, cfg *config.Config) *bool {
	fs.StringVar(&cfg.Broker.Host, "host", cfg.Broker.Host, "broker host")
	fs.IntVar(&cfg.Broker.Port, "port", cfg.Broker.Port, "broker port")
	fs.StringVar(&cfg.Broker.Username, "username", cfg.Broker.Username, "broker username")
	fs.StringVar(&cfg.Broker.Password, "password", cfg.Broker.Password, "broker password")
	fs.StringVar(&cfg.Broker.VHost, "vhost", cfg.Broker.VHost, "AMQP vhost")
	fs.StringVar(&cfg.Broker.Exchange, "exchange", cfg.Broker.Exchange, "exchange name")
	fs.StringVar(&cfg.Broker.RoutingKey, "routing-key", cfg.Broker.RoutingKey, "routing key")
	fs.StringVar(&cfg.Broker.Transport, "transport", cfg.Broker.Transport, "amqp, mqtt, or console")
	fs.IntVar(&cfg.Engine.SensorUpdateHz, "sensor-hz", cfg.Engine.SensorUpdateHz, "sensor update frequency")
	fs.IntVar(&cfg.Engine.TelemetryRateHz, "telemetry-hz", cfg.Engine.TelemetryRateHz, "telemetry transmission rate")
	fs.IntVar(&cfg.Engine.DurationSec, "duration", cfg.Engine.DurationSec, "run duration in seconds, 0 = unbounded")
	fs.IntVar(&cfg.Engine.WatchdogTimeoutMS, "watchdog-timeout", cfg.Engine.WatchdogTimeoutMS, "watchdog timeout in ms")
	fs.BoolVar(&cfg.Engine.PowerSaveEnabled, "power-save", cfg.Engine.PowerSaveEnabled, "enable power saving mode")
	fs.IntVar(&cfg.Engine.CPUSleepLevel, "cpu-sleep-level", cfg.Engine.CPUSleepLevel, "CPU sleep level 0-3")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level")
	return fs.Bool("no-broker", false, "console output only")
}

// newLogger builds the structured logger all components share.
func newLogger(w io.Writer, levelStr string) (*slog.Logger, error) {
	level, err := config.ParseLogLevel(levelStr)
	if err != nil {
		return nil, err
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: config.ReplaceLogLevelNames,
	})), nil
}

func runAgent(ctx context.Context, stdout, stderr io.Writer, configPath string, args []string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.SetOutput(stderr)
	noBroker := agentFlags(fs, cfg)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *noBroker {
		cfg.Broker.Transport = "console"
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := newLogger(stderr, cfg.LogLevel)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)
	logger.Info("starting", "build", buildinfo.String())

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Journal: persistent identity and reset counter, plus the local
	// snapshot log.
	var store *journal.Store
	instanceID := "ephemeral"
	var restoredResets uint32
	if cfg.Journal.Enabled {
		dbPath := filepath.Join(cfg.DataDir, "headsetd.db")
		store, err = journal.Open(dbPath, cfg.Journal.Keep)
		if err != nil {
			return fmt.Errorf("open journal: %w", err)
		}
		defer store.Close()

		if instanceID, err = store.InstanceID(); err != nil {
			return fmt.Errorf("load instance id: %w", err)
		}
		if restoredResets, err = store.ResetCount(); err != nil {
			return fmt.Errorf("load reset count: %w", err)
		}
		logger.Info("journal open", "path", dbPath, "instance_id", instanceID)
	}

	// Transport. A broker that is required but unreachable at startup is
	// a fatal configuration problem; transient outages after startup are
	// recoverable faults handled by the engine.
	var pub engine.Publisher
	switch cfg.Broker.Transport {
	case "amqp":
		ap := amqp.NewPublisher(cfg.Broker, logger)
		if err := ap.Connect(); err != nil {
			return fmt.Errorf("broker required but unreachable (use -no-broker for console output): %w", err)
		}
		defer ap.Close()
		pub = ap
	case "mqtt":
		mp := mqtt.NewPublisher(cfg.Broker, instanceID, logger)
		if err := mp.Start(ctx); err != nil {
			return fmt.Errorf("broker required but unreachable (use -no-broker for console output): %w", err)
		}
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			mp.Stop(stopCtx)
		}()
		pub = mp
	default:
		pub = telemetry.NewConsole(stdout)
		cfg.Broker.QueueDepth = 0 // console writes are cheap, publish inline
	}

	engCfg := engine.Config{
		SensorHz:            cfg.Engine.SensorUpdateHz,
		TelemetryHz:         cfg.Engine.TelemetryRateHz,
		WatchdogEnabled:     cfg.Engine.WatchdogEnabled,
		WatchdogTimeout:     uint64(cfg.Engine.WatchdogTimeoutMS),
		PowerSave:           cfg.Engine.PowerSaveEnabled,
		SleepLevel:          cfg.Engine.CPUSleepLevel,
		EscalationThreshold: cfg.Engine.EscalationThreshold,
		MaxTicks:            uint64(cfg.Engine.DurationSec) * 1000,
		PublishTimeout:      time.Duration(cfg.Broker.PublishTimeoutMS) * time.Millisecond,
		QueueDepth:          cfg.Broker.QueueDepth,
	}

	opts := []engine.Option{
		engine.WithLogger(logger),
		engine.WithInstanceID(instanceID),
		engine.WithRestoredResets(restoredResets),
	}

	var hub *api.Hub
	if cfg.Listen.Enabled {
		hub = api.NewHub(logger)
		opts = append(opts, engine.WithObserver(func(s *telemetry.Snapshot) {
			hub.Broadcast(telemetry.Encode(s))
		}))
	}
	if store != nil {
		opts = append(opts, engine.WithObserver(func(s *telemetry.Snapshot) {
			if err := store.Append(s); err != nil {
				logger.Warn("journal append failed", "frame", s.FrameID, "error", err)
			}
		}))
		opts = append(opts, engine.WithResetHook(func(resets uint32) {
			if err := store.SetResetCount(resets); err != nil {
				logger.Warn("persist reset count failed", "error", err)
			}
		}))
	}

	synthSeed := uint64(time.Now().UnixNano())
	eng := engine.New(engCfg, pub, sim.New(synthSeed), opts...)

	if cfg.Listen.Enabled {
		server := api.NewServer(cfg.Listen.Address, cfg.Listen.Port, eng, hub, logger)
		go func() {
			if err := server.Start(); err != nil && ctx.Err() == nil {
				logger.Error("status server failed", "error", err)
			}
		}()
		defer func() {
			shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			server.Shutdown(shutCtx)
		}()
	}

	return eng.Run(ctx)
}

func runConsume(ctx context.Context, stdout io.Writer, configPath string, args []string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	fs := flag.NewFlagSet("consume", flag.ContinueOnError)
	fs.StringVar(&cfg.Broker.Host, "host", cfg.Broker.Host, "broker host")
	fs.IntVar(&cfg.Broker.Port, "port", cfg.Broker.Port, "broker port")
	fs.StringVar(&cfg.Broker.Username, "username", cfg.Broker.Username, "broker username")
	fs.StringVar(&cfg.Broker.Password, "password", cfg.Broker.Password, "broker password")
	fs.StringVar(&cfg.Broker.VHost, "vhost", cfg.Broker.VHost, "AMQP vhost")
	fs.StringVar(&cfg.Broker.Exchange, "exchange", cfg.Broker.Exchange, "exchange name")
	fs.StringVar(&cfg.Broker.RoutingKey, "routing-key", cfg.Broker.RoutingKey, "routing key")
	logLevel := fs.String("log-level", cfg.LogLevel, "log level")
	if err := fs.Parse(args); err != nil {
		return err
	}

	logger, err := newLogger(os.Stderr, *logLevel)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	consumer := amqp.NewConsumer(cfg.Broker, logger)
	return consumer.Run(ctx, func(payload []byte) {
		snap, err := telemetry.Decode(payload)
		if err != nil {
			logger.Warn("undecodable telemetry payload", "error", err, "size", len(payload))
			return
		}
		fmt.Fprintf(stdout, "frame=%d ts=%dus state: battery=%d%% connected=%v head=(%.3f, %.3f, %.3f)\n",
			snap.FrameID, snap.TimestampUS, snap.BatteryLevel, snap.IsConnected,
			snap.HeadPosition.X, snap.HeadPosition.Y, snap.HeadPosition.Z)
	})
}
