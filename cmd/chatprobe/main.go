// Package main is the chatprobe CLI: parallel browser sessions that keep
// asking a chat web app the same question while recording its traffic.
package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"chatprobe/internal/artifact"
	"chatprobe/internal/config"
	"chatprobe/internal/logging"
)

var (
	// Global flags
	cfgPath     string
	parallelism int
	headless    bool
	verbose     bool
	metricsAddr string
	rawStdin    bool

	// Set up by PersistentPreRunE
	cfg     *config.Config
	console *logging.Console
	logger  *zap.Logger
	started time.Time
)

// modeAnnotation pins a subcommand to a run mode.
const modeAnnotation = "chatprobe/mode"

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "chatprobe",
	Short: "Probe a chat web app from parallel browser sessions",
	Long: `chatprobe opens several tabs of a chat web application in one browser,
asks the same question in each of them over and over, streams the answers to
the terminal and records the page's HTTP and WebSocket traffic.

Run without a subcommand to start probing (or to honour LOGIN_ONLY /
AUTH_CHECK_ONLY from the environment). Stop with Ctrl+C; the captures are
written on the way out.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: runProbe,
}

func init() {
	bindFlags(rootCmd)
	rootCmd.AddCommand(runCmd, loginCmd, authCheckCmd)
}

// bindFlags registers the global flags on cmd.
func bindFlags(cmd *cobra.Command) {
	flags := cmd.PersistentFlags()
	flags.StringVarP(&cfgPath, "config", "c", "", "Path to a YAML config file")
	flags.IntVarP(&parallelism, "parallelism", "p", 0, "Number of parallel chat sessions")
	flags.BoolVar(&headless, "headless", true, "Run the browser without a window")
	flags.BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	flags.StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
	flags.BoolVar(&rawStdin, "raw-stdin", false, "Put a TTY stdin in raw mode and treat Ctrl+C bytes as an interrupt")
}

// exitError carries a process exit code through cobra.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err != nil {
		return e.err.Error()
	}
	return fmt.Sprintf("exit status %d", e.code)
}

func (e *exitError) Unwrap() error { return e.err }

// Exit codes
const (
	exitOK            = 0
	exitFailure       = 1
	exitLoginRequired = 2
	exitInterrupted   = 130
)

func main() {
	os.Exit(exitCode(rootCmd.Execute()))
}

func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	fmt.Fprintln(os.Stderr, err)
	return exitFailure
}

// setup loads the configuration and opens the console and logger.
func setup(cmd *cobra.Command, args []string) error {
	c, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	cfg = c
	started = time.Now()

	if cfg.ArtifactsEnabled() {
		names := artifact.NewNames(cfg.Output.Dir, started)
		console, err = logging.OpenConsole(os.Stdout, names.Prefix("console")+".log")
		if err != nil {
			return err
		}
	} else {
		console = logging.NewConsole(os.Stdout, nil)
	}

	level := cfg.Logging.Level
	if verbose {
		level = "debug"
	}
	logger, err = logging.NewLogger(console, level, cfg.Logging.Format == "json")
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	return nil
}

// loadConfig reads the config file and environment, then applies the
// subcommand's mode and any flags that were set explicitly.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	c, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	if m, ok := cmd.Annotations[modeAnnotation]; ok {
		c.Mode = config.Mode(m)
	}

	flags := cmd.Flags()
	if flags.Changed("parallelism") {
		c.Parallelism = parallelism
	}
	if flags.Changed("headless") {
		c.Browser.Headless = headless
	}
	if flags.Changed("metrics-addr") {
		c.Metrics.Addr = metricsAddr
	}
	if flags.Changed("raw-stdin") {
		c.Terminal.RawStdin = rawStdin
	}

	c.Resolve()
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return c, nil
}
