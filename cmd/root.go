// Package cmd provides the lexitrie CLI: a small cobra application that
// embeds the search engine façade behind add/search/stats/init commands.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"lexitrie/internal/config"
	"lexitrie/internal/engine"
	"lexitrie/internal/events"
	"lexitrie/internal/health"
	"lexitrie/internal/logger"
	"lexitrie/internal/metrics"
	"lexitrie/internal/rcache"
	"lexitrie/internal/storage"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/term"
)

var (
	// Version is set during build
	Version = "0.1.0"
	// BuildTime is set during build
	BuildTime = "unknown"
	// Commit is set during build
	Commit = "unknown"

	cfgFile string
	debug   bool

	eng       *engine.Engine
	indexFile string

	// rootCmd represents the base command
	rootCmd = &cobra.Command{
		Use:   "lexitrie",
		Short: "Embeddable full-text search engine",
		Long: `A trie-based full-text search engine you can index and query from the
command line: add documents, search them by term, fuzzy match or regex, and
inspect engine statistics.
`,
		Version: "", // Will be set in SetVersionInfo()
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initialize(cmd.Context())
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			cleanup()
		},
	}
)

// applyPremiumHelpRecursively applies the styled help renderer to all commands
func applyPremiumHelpRecursively(c *cobra.Command) {
	setupPremiumHelp(c)
	for _, sub := range c.Commands() {
		applyPremiumHelpRecursively(sub)
	}
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		logger.Info("received shutdown signal, shutting down gracefully...")
		cancel()
	}()

	rootCmd.SetContext(ctx)

	applyPremiumHelpRecursively(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		logger.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/lexitrie/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "enable debug mode")
}

func setupPremiumHelp(cmd *cobra.Command) {
	cmd.SetHelpFunc(func(c *cobra.Command, args []string) {
		if c.Name() == "lexitrie" {
			termWidth := 80
			if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
				termWidth = w
			}

			padX := 4
			if termWidth < 70 {
				padX = 1
			}

			bannerStyle := lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("#FFFFFF")).
				Background(lipgloss.Color("#8B5CF6")).
				Padding(1, padX).
				Border(lipgloss.NormalBorder()).
				BorderForeground(lipgloss.Color("#8B5CF6")).
				MarginBottom(1)

			if termWidth < 70 {
				bannerStyle = bannerStyle.Width(termWidth - 2)
			}

			desc := "⚡ lexitrie\nA trie-based full-text search engine"
			fmt.Printf("\n%s\n", bannerStyle.Render(desc))
		} else {
			fmt.Printf("\n%s\n", title(fmt.Sprintf("%s - %s", c.CommandPath(), c.Short)))
			if c.Long != "" && c.Long != c.Short {
				fmt.Printf("%s\n\n", secondary(c.Long))
			} else {
				fmt.Println()
			}
		}

		fmt.Printf("%s\n", title("Usage:"))
		if c.Runnable() {
			fmt.Printf("  %s %s\n", primary(c.UseLine()), warning("[flags]"))
		}
		if c.HasAvailableSubCommands() {
			fmt.Printf("  %s %s\n", primary(c.CommandPath()), success("[command]"))
		}
		fmt.Println()

		if len(c.Example) > 0 {
			fmt.Printf("%s\n", title("Examples:"))
			fmt.Printf("%s\n\n", accent(c.Example))
		}

		if c.HasAvailableSubCommands() {
			fmt.Printf("%s\n", title("Commands:"))
			for _, sub := range c.Commands() {
				if !sub.IsAvailableCommand() {
					continue
				}
				pad := 20 - len(sub.Name())
				if pad < 2 {
					pad = 2
				}
				fmt.Printf("  %s%s%s\n", success(sub.Name()), strings.Repeat(" ", pad), muted(sub.Short))
			}
			fmt.Println()
		}

		printFlagsGroup := func(label string, flags *pflag.FlagSet) {
			visibleCount := 0
			flags.VisitAll(func(f *pflag.Flag) {
				if !f.Hidden {
					visibleCount++
				}
			})

			if visibleCount > 0 {
				fmt.Printf("%s\n", title(label))
				flags.VisitAll(func(f *pflag.Flag) {
					if f.Hidden {
						return
					}
					name := fmt.Sprintf("      --%s", f.Name)
					if f.Shorthand != "" {
						name = fmt.Sprintf("  -%s, --%s", f.Shorthand, f.Name)
					}
					if f.Value.Type() != "bool" {
						if f.Value.Type() == "string" {
							name += " string"
						} else {
							name += " " + f.Value.Type()
						}
					}
					pad := 28 - len(name)
					if pad < 2 {
						pad = 2
					}
					fmt.Printf("%s%s%s\n", warning(name), strings.Repeat(" ", pad), muted(f.Usage))
				})
				fmt.Println()
			}
		}

		if c.HasAvailableLocalFlags() {
			printFlagsGroup("Flags:", c.LocalFlags())
		}

		if c.HasAvailableInheritedFlags() {
			printFlagsGroup("Global Flags:", c.InheritedFlags())
		}

		if c.HasAvailableSubCommands() {
			part1 := primary(fmt.Sprintf("\"%s ", c.CommandPath()))
			part2 := success("[command]")
			part3 := warning(" --help\"")
			fmt.Printf("%s%s%s%s%s\n", muted("Use "), part1, part2, part3, muted(" for more information about a command."))
		}
	})
}

// SetVersionInfo updates the version string after variables are set
func SetVersionInfo() {
	rootCmd.Version = Version
}

// initialize performs initialization before command execution: logger,
// config, metrics, health, and the engine itself (restored from the last
// exported index on disk, if any).
func initialize(ctx context.Context) error {
	logCfg := logger.DefaultConfig()
	if debug {
		logCfg.Level = "debug"
	}
	if err := logger.Initialize(logCfg); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	log := logger.With("init")
	log.Info("starting lexitrie", "version", Version, "commit", Commit, "build_time", BuildTime)

	cfg, err := config.Load(cfgFile)
	if err != nil {
		log.Error("failed to load configuration", "error", err)
		return fmt.Errorf("failed to load config: %w", err)
	}
	if debug {
		cfg.App.Debug = true
	}

	if err := config.EnsureDirs(); err != nil {
		log.Error("failed to create directories", "error", err)
		return fmt.Errorf("failed to create directories: %w", err)
	}

	metrics.Initialize(Version, Commit)

	indexFile = filepath.Join(config.GetDataDir(), "data", "index.json")

	healthChecker := health.NewChecker(Version)
	healthChecker.RegisterDefaultChecks()
	healthChecker.Register(health.StorageCheck(func(ctx context.Context) error {
		_, err := os.Stat(config.GetDataDir())
		return err
	}))
	if res := healthChecker.Check(ctx); res.Status != health.StatusHealthy.String() {
		log.Warn("engine health degraded at startup", "status", res.Status)
	}

	backend, err := openBackend(cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to open storage backend: %w", err)
	}

	e, err := engine.New(engine.Config{
		IndexName:         cfg.App.Name,
		Version:           cfg.App.Version,
		MaxWordLength:     cfg.Index.MaxWordLength,
		CaseSensitive:     cfg.Index.CaseSensitive,
		DefaultFields:     cfg.Index.Fields,
		VersioningEnabled: cfg.Versioning.Enabled,
		MaxVersions:       cfg.Versioning.MaxVersions,
		Cache: rcache.Config{
			MaxSize:  cfg.Cache.MaxSize,
			TTLMs:    int64(cfg.Cache.TTLMs),
			Strategy: rcache.Strategy(cfg.Cache.Strategy),
		},
	}, backend, events.NewBus(), logger.Get(), metrics.Get())
	if err != nil {
		return fmt.Errorf("failed to build engine: %w", err)
	}
	if err := e.Initialize(ctx); err != nil {
		return fmt.Errorf("failed to initialize engine: %w", err)
	}

	if blob, err := os.ReadFile(indexFile); err == nil {
		if err := e.ImportIndex(ctx, blob); err != nil {
			log.Warn("failed to restore persisted index, starting empty", "error", err)
		} else {
			log.Info("restored index from disk", "path", indexFile)
		}
	}

	eng = e

	log.Info("initialization complete", "config_file", config.GetConfigPath(), "debug", cfg.App.Debug)
	return nil
}

// openBackend selects the storage backend named by cfg.Backend ("memory" by
// default, "bbolt" for durable on-disk storage at cfg.Path).
func openBackend(cfg config.StorageConfig) (storage.Backend, error) {
	switch cfg.Backend {
	case "bbolt":
		path := cfg.Path
		if path == "" {
			path = filepath.Join(config.GetDataDir(), "data", "lexitrie.db")
		}
		return storage.OpenBolt(path)
	default:
		return storage.NewMemory(), nil
	}
}

// cleanup persists the index back to disk and closes the engine.
func cleanup() {
	log := logger.With("cleanup")

	if eng != nil {
		ctx := context.Background()
		if blob, err := eng.ExportIndex(ctx); err != nil {
			log.Error("failed to export index", "error", err)
		} else if err := os.WriteFile(indexFile, blob, 0644); err != nil {
			log.Error("failed to persist index", "error", err)
		}
		if err := eng.Close(ctx); err != nil {
			log.Error("failed to close engine", "error", err)
		}
	}

	if err := logger.Get().Sync(); err != nil {
		_ = err
	}

	log.Info("cleanup complete")
}

// Styling helpers, used by the help renderer and by subcommands.

func title(s string) string {
	return lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7C3AED")).Render(s)
}

func secondary(s string) string {
	return lipgloss.NewStyle().Foreground(lipgloss.Color("#9CA3AF")).Render(s)
}

func primary(s string) string {
	return lipgloss.NewStyle().Foreground(lipgloss.Color("#3B82F6")).Render(s)
}

func success(s string) string {
	return lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981")).Bold(true).Render(s)
}

func warning(s string) string {
	return lipgloss.NewStyle().Foreground(lipgloss.Color("#F59E0B")).Render(s)
}

func muted(s string) string {
	return lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280")).Render(s)
}

func accent(s string) string {
	return lipgloss.NewStyle().Foreground(lipgloss.Color("#06B6D4")).Render(s)
}
