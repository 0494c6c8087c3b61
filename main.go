// fw-prompt serves firewall connection prompts over D-Bus, one dialog at a time.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"os/user"
	"path/filepath"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nikicat/fw-prompt/internal/api"
	"github.com/nikicat/fw-prompt/internal/cli"
	"github.com/nikicat/fw-prompt/internal/command"
	"github.com/nikicat/fw-prompt/internal/config"
	"github.com/nikicat/fw-prompt/internal/daemon"
	"github.com/nikicat/fw-prompt/internal/dialog"
	"github.com/nikicat/fw-prompt/internal/logging"
	"github.com/nikicat/fw-prompt/internal/modal"
	"github.com/nikicat/fw-prompt/internal/procinfo"
	"github.com/nikicat/fw-prompt/internal/prompt"
	"github.com/nikicat/fw-prompt/internal/service"
)

const shutdownTimeout = 5 * time.Second

var progName = filepath.Base(os.Args[0])

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		if err := runServe(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
	case "status", "history":
		runAPI(os.Args[1], os.Args[2:])
	case "test", "close", "command":
		runBus(os.Args[1], os.Args[2:])
	case "service":
		runService(os.Args[2:])
	case "-h", "--help", "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `Usage: %s <command> [options]

Commands:
  serve           Own %s and show prompts
  status          Show the active prompt and the queue
  history         Show answered prompts
  test            Queue a sample prompt
  close           Close every open and queued prompt
  command [name]  Send a keybinding command to the visible prompt, or list them
  service         Manage the systemd user service

Run '%s <command> -h' for command-specific help.
`, progName, daemon.BusName, progName)
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}

// runAPI handles the subcommands that read the monitor API.
func runAPI(cmd string, args []string) {
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file (default: $XDG_CONFIG_HOME/fw-prompt/config.yaml)")
	stateDirFlag := fs.String("state-dir", "", "State directory (default: $XDG_STATE_HOME/fw-prompt)")
	serverAddr := fs.String("server", config.DefaultListenAddr, "API server address")
	jsonOutput := fs.Bool("json", false, "Output as JSON")
	limit := fs.Int("limit", 0, "Show at most this many entries (history only, 0 for all)")
	fs.Parse(args) //nolint:errcheck

	// Load config and apply values for flags not explicitly set
	cfg, err := loadConfig(*configPath)
	if err != nil {
		fatal(err)
	}
	set := setFlags(fs)
	if !set["state-dir"] && cfg.StateDir != "" {
		*stateDirFlag = cfg.StateDir
	}
	if !set["server"] && cfg.Listen != "" {
		*serverAddr = cfg.Listen
	}

	stateDir := *stateDirFlag
	if stateDir == "" {
		stateDir = config.DefaultStateDir()
	}

	auth, err := api.LoadAuth(stateDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "error: %s is not running (no token file found)\n", progName)
			fmt.Fprintf(os.Stderr, "Start the service first with: %s serve\n", progName)
		} else {
			fmt.Fprintf(os.Stderr, "error loading auth: %v\n", err)
		}
		os.Exit(1)
	}

	client := cli.NewClient(*serverAddr, auth.Token())
	formatter := cli.NewFormatter(os.Stdout, *jsonOutput)

	switch cmd {
	case "status":
		var st *cli.Status
		st, err = client.Status()
		if err != nil {
			fatal(err)
		}
		err = formatter.FormatStatus(st)
	case "history":
		var entries []cli.HistoryEntry
		entries, err = client.History(*limit)
		if err != nil {
			fatal(err)
		}
		err = formatter.FormatHistory(entries)
	}
	if err != nil {
		fatal(err)
	}
}

// runBus handles the subcommands that call the prompt service directly.
func runBus(cmd string, args []string) {
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file (default: $XDG_CONFIG_HOME/fw-prompt/config.yaml)")
	bus := fs.String("bus", config.DefaultBus, "Bus to call: system, session or a D-Bus address")
	jsonOutput := fs.Bool("json", false, "Output as JSON")
	fs.Parse(args) //nolint:errcheck

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fatal(err)
	}
	if !setFlags(fs)["bus"] && cfg.Serve.Bus != "" {
		*bus = cfg.Serve.Bus
	}

	client, err := cli.DialBus(*bus)
	if err != nil {
		fatal(err)
	}
	defer client.Close()

	formatter := cli.NewFormatter(os.Stdout, *jsonOutput)

	switch cmd {
	case "test":
		if err = client.TestPrompt(); err == nil {
			err = formatter.FormatAction("queued test prompt")
		}
	case "close":
		if err = client.ClosePrompt(); err == nil {
			err = formatter.FormatAction("closed all prompts")
		}
	case "command":
		if fs.NArg() == 0 {
			var names []string
			if names, err = client.Commands(); err == nil {
				err = formatter.FormatCommands(names)
			}
			break
		}
		name := fs.Arg(0)
		var handled bool
		if handled, err = client.Invoke(name); err == nil {
			err = formatter.FormatCommand(name, handled)
		}
	}
	if err != nil {
		client.Close()
		fatal(err)
	}
}

func runServe(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file (default: $XDG_CONFIG_HOME/fw-prompt/config.yaml)")
	bus := fs.String("bus", config.DefaultBus, "Bus to own the service name on: system, session or a D-Bus address")
	replace := fs.Bool("replace", false, "Take the service name over from a running instance")
	listenAddr := fs.String("listen", config.DefaultListenAddr, "HTTP API listen address")
	noAPI := fs.Bool("no-api", false, "Do not serve the monitor API")
	dialogBackend := fs.String("dialog", config.DefaultDialog, "Dialog backend: notify or terminal")
	tty := fs.String("tty", "", "Terminal device for the terminal dialog (default: /dev/tty)")
	logLevel := fs.String("log-level", config.DefaultLogLevel, "Log level: debug, info, warn, error")
	logFormat := fs.String("log-format", config.DefaultLogFormat, "Log format: text (colored) or json")
	logFile := fs.String("log-file", "", "Write logs to this size-rotated file instead of stderr")
	stateDirFlag := fs.String("state-dir", "", "State directory (default: $XDG_STATE_HOME/fw-prompt)")
	fs.Parse(args) //nolint:errcheck

	path := *configPath
	if path == "" {
		path = config.DefaultPath()
	}
	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}

	// Explicit flags win over the file, also after a reload.
	set := setFlags(fs)
	override := func(c *config.Config) *config.Config {
		if set["bus"] {
			c.Serve.Bus = *bus
		}
		if set["replace"] {
			c.Serve.ReplaceName = *replace
		}
		if set["listen"] {
			c.Listen = *listenAddr
		}
		if set["no-api"] {
			enabled := !*noAPI
			c.Serve.API = &enabled
		}
		if set["dialog"] {
			c.Serve.Dialog = *dialogBackend
		}
		if set["tty"] {
			c.Serve.TTY = *tty
		}
		if set["log-level"] {
			c.Serve.LogLevel = *logLevel
		}
		if set["log-format"] {
			c.Serve.LogFormat = *logFormat
		}
		if set["log-file"] {
			c.Serve.LogFile = *logFile
		}
		if set["state-dir"] {
			c.StateDir = *stateDirFlag
		}
		return c.WithDefaults()
	}
	cfg = override(cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	level := new(slog.LevelVar)
	level.Set(logging.ParseLevel(cfg.Serve.LogLevel))
	logCloser := logging.Setup(logging.Options{Level: level, Format: cfg.Serve.LogFormat, File: cfg.Serve.LogFile})
	defer logCloser.Close()

	audit := logging.OpenAudit(cfg.Serve.AuditLog)
	defer audit.Close()

	factory, stopDialogs, err := newDialogFactory(cfg.Serve)
	if err != nil {
		return err
	}
	defer stopDialogs()

	mgr := prompt.NewManager(factory, prompt.Options{
		RetryInterval: time.Duration(cfg.Serve.RetryInterval),
		MaxAttempts:   cfg.Serve.MaxAttempts,
		HistoryLimit:  cfg.Serve.HistoryLimit,
	})
	mgr.Subscribe(audit)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return mgr.Run(gctx) })

	srv := daemon.NewServer(daemon.Options{
		Bus:         cfg.Serve.Bus,
		ReplaceName: cfg.Serve.ReplaceName,
		Queue:       mgr,
		Router:      command.NewRouter(mgr),
	})
	if err := srv.Start(); err != nil {
		mgr.Shutdown()
		g.Wait() //nolint:errcheck
		return err
	}
	defer srv.Close()

	if cfg.Serve.APIEnabled() {
		apiServer, auth, err := startAPI(cfg, mgr)
		if err != nil {
			mgr.Shutdown()
			g.Wait() //nolint:errcheck
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := apiServer.Shutdown(shutdownCtx); err != nil {
				slog.Warn("API shutdown", "error", err)
			}
			if err := auth.Remove(); err != nil {
				slog.Warn("remove token file", "error", err)
			}
		}()
	}

	if path != "" {
		g.Go(func() error {
			// Hot reload is best effort; serving goes on without it.
			err := config.Watch(gctx, path, func(next *config.Config) {
				next = override(next)
				if err := next.Validate(); err != nil {
					slog.Warn("ignoring invalid config change", "error", err)
					return
				}
				level.Set(logging.ParseLevel(next.Serve.LogLevel))
				factory.SetDefaults(dialog.Defaults{Expanded: next.Serve.Expanded, Expert: next.Serve.Expert})
			})
			if err != nil {
				slog.Warn("config hot reload disabled", "path", path, "error", err)
			}
			return nil
		})
	}

	if err := daemon.SdNotify("READY=1", "STATUS=serving "+daemon.BusName); err != nil {
		slog.Warn("sd_notify", "error", err)
	}
	slog.Info("fw-prompt started", "version", api.BuildVersion, "bus", cfg.Serve.Bus, "dialog", cfg.Serve.Dialog)

	<-gctx.Done()
	slog.Info("shutting down")
	daemon.SdNotify("STOPPING=1") //nolint:errcheck

	// Answer everyone still waiting before the bus goes away.
	mgr.Shutdown()
	return g.Wait()
}

// newDialogFactory builds the session factory for the configured backend.
// The returned func releases what the backend holds.
func newDialogFactory(s config.ServeConfig) (*dialog.Factory, func(), error) {
	backend, err := dialog.ParseBackend(s.Dialog)
	if err != nil {
		return nil, nil, err
	}

	lockPath := s.LockPath
	if lockPath == "" {
		lockPath = modal.DefaultPath()
	}
	f := &dialog.Factory{
		Backend: backend,
		Grab:    modal.NewLock(lockPath),
		TTY:     s.TTY,
		Keys:    dialog.DefaultKeyMap(),
		Procs:   &procinfo.Default,
	}
	f.SetDefaults(dialog.Defaults{Expanded: s.Expanded, Expert: s.Expert})

	stop := func() {}
	if backend == dialog.BackendNotify {
		notifier, err := dialog.NewDBusNotifier(nil)
		if err != nil {
			return nil, nil, fmt.Errorf("notification backend: %w", err)
		}
		f.Notifier = notifier
		stop = notifier.Stop
	}
	slog.Debug("dialog backend ready", "backend", backend, "lock", lockPath)
	return f, stop, nil
}

func startAPI(cfg *config.Config, feed api.Feed) (*api.Server, *api.Auth, error) {
	auth, err := api.NewAuth(cfg.StateDir)
	if err != nil {
		return nil, nil, fmt.Errorf("create auth: %w", err)
	}
	apiServer, err := api.NewServer(cfg.Listen, feed, auth)
	if err != nil {
		auth.Remove() //nolint:errcheck
		return nil, nil, fmt.Errorf("create API server: %w", err)
	}
	if err := apiServer.Start(); err != nil {
		auth.Remove() //nolint:errcheck
		return nil, nil, fmt.Errorf("start API server: %w", err)
	}
	slog.Info("API server started",
		"url", "http://"+apiServer.Addr(),
		"token_file", apiServer.TokenFilePath())
	return apiServer, auth, nil
}

// runService handles the "service" subcommand group.
func runService(args []string) {
	if len(args) == 0 {
		printServiceUsage()
		os.Exit(1)
	}

	switch args[0] {
	case "install":
		runServiceInstall(args[1:])
	case "uninstall":
		if err := service.Uninstall(); err != nil {
			fatal(err)
		}
	case "status":
		service.Status() //nolint:errcheck
	case "policy":
		runServicePolicy(args[1:])
	case "-h", "--help", "help":
		printServiceUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown service command: %s\n\n", args[0])
		printServiceUsage()
		os.Exit(1)
	}
}

func runServiceInstall(args []string) {
	fs := flag.NewFlagSet("service install", flag.ExitOnError)
	start := fs.Bool("start", false, "Start the service immediately after installing")
	configPath := fs.String("config", "", "Config file path to embed in the unit file")
	bus := fs.String("bus", "", "Bus to embed in the unit file")
	fs.Parse(args) //nolint:errcheck

	if err := service.Install(service.Options{
		ConfigPath: *configPath,
		Bus:        *bus,
		Start:      *start,
	}); err != nil {
		fatal(err)
	}
}

func runServicePolicy(args []string) {
	fs := flag.NewFlagSet("service policy", flag.ExitOnError)
	userName := fs.String("user", "", "User allowed to own the service name (default: current user)")
	fs.Parse(args) //nolint:errcheck

	if *userName == "" {
		u, err := user.Current()
		if err != nil {
			fatal(err)
		}
		*userName = u.Username
	}
	if err := service.WritePolicy(os.Stdout, *userName); err != nil {
		fatal(err)
	}
}

func printServiceUsage() {
	fmt.Fprintf(os.Stderr, `Usage: %s service <command> [options]

Commands:
  install       Install and enable the systemd user service
  uninstall     Stop, disable, and remove the systemd user service
  status        Show the service status
  policy        Print a system bus policy for /etc/dbus-1/system.d/

Install options:
  --start       Start the service immediately after installing
  --config      Config file path to embed in the unit file's ExecStart
  --bus         Bus to embed in the unit file's ExecStart

Policy options:
  --user        User allowed to own %s
`, progName, daemon.BusName)
}

// loadConfig loads a config file. An explicit path that doesn't exist is an error.
// A missing default path is silently ignored (returns empty config).
func loadConfig(explicitPath string) (*config.Config, error) {
	if explicitPath != "" {
		if _, statErr := os.Stat(explicitPath); statErr != nil {
			return nil, fmt.Errorf("config file not found: %s", explicitPath)
		}
		cfg, err := config.Load(explicitPath)
		if err != nil {
			return nil, fmt.Errorf("load config %s: %w", explicitPath, err)
		}
		return cfg, nil
	}

	defaultPath := config.DefaultPath()
	if defaultPath == "" {
		return &config.Config{}, nil
	}
	cfg, err := config.Load(defaultPath)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", defaultPath, err)
	}
	return cfg, nil
}

// setFlags returns the set of flag names that were explicitly provided on the command line.
func setFlags(fs *flag.FlagSet) map[string]bool {
	m := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { m[f.Name] = true })
	return m
}
