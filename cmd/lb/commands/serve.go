package commands

import (
	"bufio"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/meshlb/lb/config"
	"github.com/meshlb/lb/lb"
	"github.com/meshlb/lb/logger"
)

var (
	configPath           string
	jsonLogs             bool
	defaultModeFlag      string
	maxPerServerFlag     int
	pingIntervalFlag     int
	evictionTimeoutFlag  int
)

// ServeCmd starts the load balancer and blocks until an interrupt or
// terminate signal arrives.
var ServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the load balancer",
	Long:  `Bind all four listening ports and run until interrupted.`,
	RunE:  runServe,
}

func init() {
	ServeCmd.Flags().StringVarP(&configPath, "config", "c", "", "path to a TOML config file")
	ServeCmd.Flags().BoolVar(&jsonLogs, "json-logs", false, "emit structured JSON logs instead of console output")
	ServeCmd.Flags().StringVar(&defaultModeFlag, "default-mode", "static", "initial default assignment mode (static|dynamic)")
	ServeCmd.Flags().IntVar(&maxPerServerFlag, "max-per-server", config.Unbounded, "initial max live clients per server (0 = unbounded)")
	ServeCmd.Flags().IntVar(&pingIntervalFlag, "ping-interval-ms", 1000, "initial RTT probe interval in milliseconds")
	ServeCmd.Flags().IntVar(&evictionTimeoutFlag, "eviction-timeout-ms", config.DefaultEvictionTimeoutMs, "initial stale-server eviction threshold in milliseconds")
}

func runServe(cmd *cobra.Command, args []string) error {
	if err := logger.Initialize(jsonLogs); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logger.Cleanup()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	cfg.JSONLogs = jsonLogs

	mode, ok := config.ParseMode(defaultModeFlag)
	if !ok || mode == config.ModeSticky {
		mode = config.ModeStatic
	}
	rt := config.NewRuntime(mode, maxPerServerFlag, pingIntervalFlag, evictionTimeoutFlag)

	instance, err := lb.New(cfg, rt, logger.Logger)
	if err != nil {
		return fmt.Errorf("failed to bind listeners: %w", err)
	}
	instance.Start()

	if !jsonLogs {
		printStartupBanner(cfg)
	}

	watcher := startConfigWatcher(configPath)
	go runConsole(instance)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	logger.Infow("shutdown signal received")
	if watcher != nil {
		_ = watcher.Close()
	}
	instance.Shutdown()
	return nil
}

// startConfigWatcher wires fsnotify hot-reload for the TOML config file.
// Only the four ports live in StartConfig, and ports can't be rebound
// without a restart, so a reload currently just surfaces a log line — the
// admin-mutable Runtime record (defaultMode, maxPerServer, ...) is owned
// exclusively by the admin channel.
func startConfigWatcher(path string) *config.FileWatcher {
	if path == "" {
		return nil
	}
	watcher, err := config.NewFileWatcher(path)
	if err != nil {
		logger.Warnw("config watcher unavailable", logger.FieldError, err)
		return nil
	}
	watcher.OnReload(func(*config.StartConfig) error {
		logger.Infow("config file changed; port bindings require a restart to take effect")
		return nil
	})
	watcher.Start()
	return watcher
}

// runConsole reads admin-grammar lines from stdin and renders the
// interpreter's response through the same pterm components the startup
// banner uses, sharing the same Interpreter instance the ADMIN_PORT
// listener does.
func runConsole(instance *lb.LB) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		for _, l := range instance.Interpreter().Execute(scanner.Text()) {
			renderConsoleLine(l)
		}
		pterm.DefaultBasicText.Println("END")
	}
}

// renderConsoleLine color-codes one interpreter response line: errors in
// red, a bare "OK" in green, everything else (servers/live/status/weights
// listings) as plain pterm text.
func renderConsoleLine(line string) {
	switch {
	case strings.HasPrefix(line, "ERROR"):
		pterm.Error.Println(line)
	case line == "OK":
		pterm.Success.Println(line)
	default:
		pterm.DefaultBasicText.Println(line)
	}
}
