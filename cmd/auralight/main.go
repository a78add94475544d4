package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dooshek/auralight/internal/audio"
	"github.com/dooshek/auralight/internal/config"
	"github.com/dooshek/auralight/internal/dbus"
	"github.com/dooshek/auralight/internal/device"
	"github.com/dooshek/auralight/internal/fileops"
	"github.com/dooshek/auralight/internal/logger"
	"github.com/dooshek/auralight/internal/monitor"
	"github.com/dooshek/auralight/internal/mqtt"
	"github.com/dooshek/auralight/internal/server"
	"github.com/dooshek/auralight/internal/state"
	"github.com/dooshek/auralight/internal/stats"
	"github.com/dooshek/auralight/internal/types"
)

func init() {
	// Show flags with the -- prefix
	flag.Usage = func() {
		out := flag.CommandLine.Output()
		fmt.Fprintf(out, "Usage of %s:\n", os.Args[0])
		flag.VisitAll(func(f *flag.Flag) {
			fmt.Fprintf(out, "  --%s", f.Name)
			name, usage := flag.UnquoteUsage(f)
			if len(name) > 0 {
				fmt.Fprintf(out, " %s", name)
			}
			fmt.Fprintf(out, "\n    \t%s", usage)
			if f.DefValue != "" && f.DefValue != "false" {
				fmt.Fprintf(out, " (default %q)", f.DefValue)
			}
			fmt.Fprintf(out, "\n")
		})
	}
}

type options struct {
	configPath  string
	logLevel    string
	logFilename string
	source      string
	input       string
	loop        bool
	monitor     bool
	writeConfig bool
	listClips   bool
	resetStats  bool
	noMQTT      bool
	noDBus      bool
	noServer    bool
}

func parseFlags() options {
	var o options
	flag.StringVar(&o.configPath, "config", "", "Config file (default ~/.config/auralight/auralight.yaml)")
	flag.StringVar(&o.logLevel, "log-level", "info", "Set log level (debug|info|warn|error)")
	flag.StringVar(&o.logFilename, "log-filename", "", "Log to file instead of stdout")
	flag.StringVar(&o.source, "source", "mic", "Audio source (mic|file)")
	flag.StringVar(&o.input, "input", "", "Audio file or clip name for --source file")
	flag.BoolVar(&o.loop, "loop", true, "Replay the input file forever")
	flag.BoolVar(&o.monitor, "monitor", false, "Draw a live meter in the terminal")
	flag.BoolVar(&o.writeConfig, "write-config", false, "Write the effective configuration and exit")
	flag.BoolVar(&o.listClips, "list-clips", false, "List audio clips in the clips directory and exit")
	flag.BoolVar(&o.resetStats, "reset-stats", false, "Clear the accumulated run statistics")
	flag.BoolVar(&o.noMQTT, "no-mqtt", false, "Do not connect to the MQTT broker")
	flag.BoolVar(&o.noDBus, "no-dbus", false, "Do not register the D-Bus service")
	flag.BoolVar(&o.noServer, "no-server", false, "Do not start the WebSocket feed")
	flag.Parse()
	return o
}

func main() {
	opts := parseFlags()

	logger.SetLevel(opts.logLevel)
	if opts.logFilename != "" {
		if err := logger.SetOutputFile(opts.logFilename); err != nil {
			fmt.Printf("Error setting log file: %v\n", err)
			os.Exit(1)
		}
		defer logger.CloseLogFile()
	}

	fileOps, err := fileops.NewDefaultFileOps()
	if err != nil {
		logger.Error("Failed to initialize file operations", err)
		os.Exit(1)
	}
	if err := fileOps.EnsureDirectories(); err != nil {
		logger.Error("Failed to create necessary directories", err)
		os.Exit(1)
	}

	if opts.listClips {
		if err := listClips(fileOps); err != nil {
			logger.Error("Failed to list clips", err)
			os.Exit(1)
		}
		return
	}

	cfg, err := loadConfig(fileOps, opts)
	if err != nil {
		logger.Error("Error loading config", err)
		os.Exit(1)
	}

	if opts.writeConfig {
		if err := config.Save(fileOps, cfg); err != nil {
			logger.Error("Failed to write config", err)
			os.Exit(1)
		}
		logger.Infof("Configuration written to %s", fileOps.GetConfigDir())
		return
	}

	if err := fileOps.CheckPID(); err != nil {
		if errors.Is(err, fileops.ErrProcessAlreadyRunning) {
			logger.Error("Another instance of AuraLight is already running", err)
			os.Exit(1)
		}
		logger.Warnf("Ignoring PID file: %v", err)
	}
	if err := fileOps.SavePID(); err != nil {
		logger.Error("Failed to save PID file", err)
		os.Exit(1)
	}
	defer fileOps.HandleExit()

	if err := run(fileOps, cfg, opts); err != nil {
		logger.Error("AuraLight stopped", err)
		fileOps.HandleExit()
		os.Exit(1)
	}
}

func listClips(fileOps fileops.FileOps) error {
	clips, err := fileOps.ListClips()
	if err != nil {
		return err
	}
	if len(clips) == 0 {
		fmt.Printf("ℹ️ No clips in %s\n", fileOps.GetClipsDir())
		return nil
	}
	fmt.Println("📋 Clips:")
	for _, c := range clips {
		fmt.Printf("  %s\n", c)
	}
	return nil
}

// loadConfig reads the config file and applies command line overrides.
func loadConfig(fileOps fileops.FileOps, opts options) (*types.Config, error) {
	var (
		cfg *types.Config
		err error
	)
	if opts.configPath != "" {
		cfg, err = config.LoadFile(opts.configPath)
	} else {
		cfg, err = config.Load(fileOps)
	}
	if err != nil {
		return nil, err
	}

	if opts.noMQTT {
		cfg.MQTT.Enabled = false
	}
	if opts.noDBus {
		cfg.DBus.Enabled = false
	}
	if opts.noServer {
		cfg.Server.Enabled = false
	}
	return cfg, nil
}

type closer func()

// openSource starts the configured audio input.
func openSource(ctx context.Context, fileOps fileops.FileOps, cfg *types.Config, opts options) (audio.SampleSource, closer, error) {
	switch opts.source {
	case "mic":
		mic, err := audio.NewMicSource(cfg.Audio.SampleRate, cfg.Audio.ADCBits)
		if err != nil {
			return nil, nil, err
		}
		if err := mic.Start(); err != nil {
			mic.Close()
			return nil, nil, err
		}
		return mic, mic.Close, nil

	case "file":
		if opts.input == "" {
			return nil, nil, errors.New("--source file needs --input")
		}
		path, err := fileOps.ResolveClip(opts.input)
		if err != nil {
			return nil, nil, err
		}
		fs, err := audio.NewFileSource(path, cfg.Audio.SampleRate, cfg.Audio.ADCBits, opts.loop)
		if err != nil {
			return nil, nil, err
		}
		fs.Start(ctx)
		logger.Infof("▶️  Replaying %s", path)
		return fs, func() {}, nil
	}
	return nil, nil, fmt.Errorf("unknown audio source %q", opts.source)
}

func run(fileOps fileops.FileOps, cfg *types.Config, opts options) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Infof("Received signal %v, shutting down...", sig)
		cancel()
	}()

	src, closeSource, err := openSource(ctx, fileOps, cfg, opts)
	if err != nil {
		return fmt.Errorf("failed to open audio source: %w", err)
	}
	defer closeSource()

	analyzer, err := audio.NewAnalyzer(cfg.Audio, src)
	if err != nil {
		return err
	}

	mode, err := state.ParseMode(cfg.Device.Mode)
	if err != nil {
		return err
	}
	dev := state.NewDevice(cfg.Device.On, mode)

	st := stats.NewManager(fileOps.GetStatsPath(), time.Now())
	if opts.resetStats {
		if err := st.Reset(time.Now()); err != nil {
			logger.Warnf("Failed to reset stats: %v", err)
		}
	}
	defer func() {
		if err := st.Save(time.Now()); err != nil {
			logger.Error("Failed to save stats", err)
		}
	}()

	var loopOpts []device.Option
	if opts.configPath == "" {
		loopOpts = append(loopOpts, device.WithRangeStore(func(minDb, maxDb float64) error {
			return config.SaveVolumeRange(fileOps, minDb, maxDb)
		}))
	}
	loop := device.New(*cfg, analyzer, dev, st, loopOpts...)

	if cfg.MQTT.Enabled {
		topics := mqtt.NewTopics(cfg.MQTT.TopicRoot, cfg.Device.ID, cfg.Luminaire.ID)
		client := mqtt.NewClient(cfg.MQTT, topics, cfg.Device.Version, loop)
		if err := client.Connect(ctx); err != nil {
			logger.Warnf("📡 Running without MQTT: %v", err)
		} else {
			// Connected, or retrying in the background.
			loop.SetPublisher(client)
			defer client.Close()
		}
	}

	if cfg.Server.Enabled {
		srv := server.New(cfg.Server, loop, loop)
		if err := srv.Start(ctx); err != nil {
			logger.Warnf("🌐 WebSocket feed disabled: %v", err)
		}
	}

	if cfg.DBus.Enabled {
		bus := dbus.NewServer(analyzer, loop)
		if err := bus.Start(); err != nil {
			logger.Warnf("🔌 D-Bus service disabled: %v", err)
		} else {
			changes, unsubscribe := dev.Subscribe()
			defer unsubscribe()
			defer bus.Stop()
			go bus.Watch(ctx, changes)
		}
	}

	if opts.monitor {
		go monitor.Run(ctx, loop, 100*time.Millisecond, os.Stdout)
	}

	logger.Infof("✨ AuraLight %s started (%s, %s)", cfg.Device.Version, dev.Get().Mode, state.PowerString(dev.Get().On))
	loop.Run(ctx)
	logger.Info("AuraLight stopped")
	return nil
}
