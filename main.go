// Package main implements recovery, the maintenance-mode utility of a
// handheld Linux console.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"recovery/internal/config"
	"recovery/internal/gadget"
	"recovery/internal/mode"
)

var (
	version   = "dev" // Injected at build time via -ldflags
	buildTime = ""    // Unix seconds, injected at build time via -ldflags
)

var (
	logger *slog.Logger

	configPath string
	verbose    bool
	dryRun     bool
	profile    string
)

var rootCmd = &cobra.Command{
	Use:           "recovery",
	Short:         "Recovery and maintenance modes",
	Long:          "Recovery picks a maintenance mode from the command line, pending flags and the buttons held at boot, then runs it or shows the recovery menu. Without a command it boots the next stage.",
	Args:          cobra.ArbitraryArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	CompletionOptions: cobra.CompletionOptions{
		DisableDefaultCmd: true,
	},
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelError
		if verbose {
			level = slog.LevelInfo
		}
		if os.Getenv("RECOVERY_DEBUG") == "1" {
			level = slog.LevelDebug
		}
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: level,
		}))
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) > 0 {
			logger.Warn("Ignoring unknown arguments", "args", args)
		}
		return runRequest(cmd, mode.Request{})
	},
}

// runRequest is the single point where a parsed command line becomes a
// mode.Request. Tests replace it.
var runRequest = runMode

// modeCmd builds the sub-command that forces c. Trailing arguments are
// accepted and ignored, so "stop" short-circuits whatever follows it.
func modeCmd(c mode.Command, short string) *cobra.Command {
	return &cobra.Command{
		Use:   string(c),
		Short: short,
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRequest(cmd, mode.Request{Command: c, Args: args})
		},
	}
}

var networkCmd = &cobra.Command{
	Use:   "network [on]",
	Short: "Bring up the USB network",
	Long:  "Bring up the USB network. With \"on\" the link is configured without any screen or console output and the command returns at once.",
	Args:  cobra.ArbitraryArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRequest(cmd, mode.Request{Command: mode.CmdNetwork, Args: args})
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print recovery version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("recovery version %s\n", version)
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show USB storage export status",
	Long:  "Show which block devices each supported USB gadget backend currently exports.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		found := false
		for _, b := range gadget.Backends(gadget.Sysfs{Logger: logger, LegacyDir: cfg.Gadget.LegacyDir}) {
			if !b.Supported() {
				continue
			}
			found = true

			st, err := b.Status()
			if err != nil {
				logger.Warn("Failed to get status", "backend", b.Name(), "error", err)
				continue
			}
			fmt.Printf("Backend: %s\n", b.Name())
			fmt.Printf("Status: %s\n", st)
		}

		if !found {
			fmt.Println("No active USB gadget found")
		}
		return nil
	},
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if profile != "" {
		cfg.Profile = profile
	}
	if dryRun {
		cfg.DryRun = true
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	logger.Info("Loaded configuration", "path", configPath, "profile", cfg.Profile, "dry_run", cfg.DryRun)
	return cfg, nil
}

func runMode(cmd *cobra.Command, req mode.Request) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if !cfg.DryRun && os.Geteuid() != 0 {
		return fmt.Errorf("must run as root\nHint: use --dry-run to preview")
	}

	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	return a.run(cmd.Context(), req)
}

func init() {
	// Disable auto-generated commands
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.SetHelpCommand(&cobra.Command{Hidden: true})

	flags := rootCmd.PersistentFlags()
	flags.SortFlags = false
	flags.StringVarP(&configPath, "config", "c", "", "load configuration from file (default "+config.DefaultPath+")")
	flags.StringVar(&profile, "profile", "", "hardware button profile")
	flags.BoolVarP(&dryRun, "dry-run", "n", false, "log privileged operations instead of running them")
	flags.BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	cobra.EnableCommandSorting = false
	rootCmd.AddCommand(modeCmd(mode.CmdStop, "Save the clock to the RTC and exit"))
	rootCmd.AddCommand(networkCmd)
	rootCmd.AddCommand(modeCmd(mode.CmdStorage, "Export the SD cards as USB mass storage"))
	rootCmd.AddCommand(modeCmd(mode.CmdFatResize, "Append the free card space as a new partition"))
	rootCmd.AddCommand(modeCmd(mode.CmdFsck, "Check the file systems and reboot"))
	rootCmd.AddCommand(modeCmd(mode.CmdMenu, "Show the recovery menu"))
	rootCmd.AddCommand(modeCmd(mode.CmdStart, "Boot the next stage"))
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	err := execute(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// execute runs the command tree. A panic is turned into an error after the
// disks have been synced.
func execute(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			syscall.Sync()
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return rootCmd.ExecuteContext(ctx)
}
