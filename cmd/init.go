package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"lexitrie/internal/config"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

// initCmd initializes lexitrie for first-time use
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize lexitrie for first-time use",
	Long: `Interactive setup wizard for lexitrie configuration.

This command will:
  • Create the configuration and data directory structure
  • Write a default configuration file
  • Optionally tune fuzzy-matching, versioning, and cache settings

Run this once before indexing your first document, or any time you want
to reconfigure the engine's defaults.`,
	Example: `  lexitrie init              # Interactive setup
  lexitrie init --quick      # Quick setup with defaults`,
	RunE: runInit,
}

var (
	initQuick bool
)

func init() {
	rootCmd.AddCommand(initCmd)

	initCmd.Flags().BoolVarP(&initQuick, "quick", "q", false, "quick setup with defaults (non-interactive)")
}

func runInit(cmd *cobra.Command, args []string) error {
	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7C3AED"))
	subtitleStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))

	if !initQuick {
		fmt.Println()
		fmt.Println(titleStyle.Render("⚡ lexitrie Initialization Wizard"))
		fmt.Println(subtitleStyle.Render("Let's set up the search engine for your system"))
		fmt.Println()
	}

	if !initQuick {
		fmt.Println("📁 Creating directories...")
	}
	if err := config.EnsureDirs(); err != nil {
		return fmt.Errorf("failed to create directories: %w", err)
	}
	if !initQuick {
		fmt.Println("   ✓ Directories created")
		fmt.Println()
	}

	if !initQuick {
		fmt.Println("⚙️  Setting up configuration...")
	}
	cfg := config.Get()

	if initQuick {
		if err := config.Save(); err != nil {
			return fmt.Errorf("failed to save config: %w", err)
		}
	} else {
		reader := bufio.NewReader(os.Stdin)

		fmt.Print(subtitleStyle.Render("Enable fuzzy matching by default? [Y/n]: "))
		choice, _ := reader.ReadString('\n')
		choice = strings.ToLower(strings.TrimSpace(choice))
		cfg.Fuzzy.Enabled = choice == "" || choice == "y" || choice == "yes"
		fmt.Printf("   ✓ Fuzzy matching: %s\n\n", boolToEnabled(cfg.Fuzzy.Enabled))

		fmt.Print(subtitleStyle.Render("Enable document versioning? [y/N]: "))
		choice, _ = reader.ReadString('\n')
		choice = strings.ToLower(strings.TrimSpace(choice))
		cfg.Versioning.Enabled = choice == "y" || choice == "yes"
		fmt.Printf("   ✓ Versioning: %s\n\n", boolToEnabled(cfg.Versioning.Enabled))

		fmt.Print(subtitleStyle.Render("Result cache size [1000]: "))
		choice, _ = reader.ReadString('\n')
		choice = strings.TrimSpace(choice)
		if choice != "" {
			if n, err := strconv.Atoi(choice); err == nil && n > 0 {
				cfg.Cache.MaxSize = n
			}
		}
		fmt.Printf("   ✓ Cache size: %d\n\n", cfg.Cache.MaxSize)

		if err := config.Save(); err != nil {
			return fmt.Errorf("failed to save config: %w", err)
		}
	}

	if !initQuick {
		fmt.Println()
		fmt.Println(titleStyle.Render("✅ Setup Complete!"))
		fmt.Println()
		fmt.Println("Quick start:")
		fmt.Println("  lexitrie add --title \"...\" --content \"...\"   # index a document")
		fmt.Println("  lexitrie search <query>                        # search the index")
		fmt.Println("  lexitrie stats                                 # view engine statistics")
		fmt.Println()
		fmt.Printf("Configuration file: %s\n", config.GetConfigPath())
	} else {
		fmt.Println("✅ Quick setup complete!")
	}

	return nil
}

func boolToEnabled(b bool) string {
	if b {
		return lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981")).Render("enabled")
	}
	return lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444")).Render("disabled")
}
