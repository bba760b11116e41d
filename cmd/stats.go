package cmd

import (
	"fmt"

	"lexitrie/internal/metrics"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:     "stats",
	Aliases: []string{"stat"},
	Short:   "Show engine and index statistics",
	Long:    `Display index size, cache occupancy, and cumulative engine metrics.`,
	RunE:    runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)
}

var (
	statsColPurple = lipgloss.Color("#7C3AED")
	statsColViolet = lipgloss.Color("#8B5CF6")
	statsColGray   = lipgloss.Color("#6B7280")
	statsColYellow = lipgloss.Color("#FCD34D")
)

func runStats(cmd *cobra.Command, args []string) error {
	stats := eng.GetStats()
	snap := metrics.Get().Snapshot()

	banner := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#FFFFFF")).
		Background(statsColPurple).
		Padding(0, 3).
		Render("  📊  lexitrie stats  ")

	panel := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(statsColViolet).
		Padding(0, 2)

	label := lipgloss.NewStyle().Foreground(statsColGray)
	value := lipgloss.NewStyle().Bold(true).Foreground(statsColYellow)

	row := func(k string, v any) string {
		return fmt.Sprintf("%s %s", label.Render(k+":"), value.Render(fmt.Sprintf("%v", v)))
	}

	fmt.Println()
	fmt.Println(banner)
	fmt.Println()

	indexLines := []string{
		row("documents", stats.DocumentCount),
		row("index size", stats.IndexSize),
		row("cache size", stats.CacheSize),
		row("initialized", stats.Initialized),
	}
	fmt.Println(panel.Render(lipgloss.JoinVertical(lipgloss.Left, indexLines...)))
	fmt.Println()

	searchStats, _ := snap["search"].(map[string]any)
	docStats, _ := snap["documents"].(map[string]int64)

	metricLines := []string{
		row("searches", searchStats["count"]),
		row("search errors", searchStats["errors"]),
		row("avg duration (ms)", searchStats["avg_duration"]),
		row("regex timeouts", searchStats["regex_timeouts"]),
		row("cache hits", searchStats["cache_hits"]),
		row("cache misses", searchStats["cache_misses"]),
		row("cache evictions", searchStats["cache_evicted"]),
		"",
		row("indexed", docStats["indexed"]),
		row("updated", docStats["updated"]),
		row("removed", docStats["removed"]),
		row("bulk updates", docStats["bulk"]),
	}
	fmt.Println(panel.Render(lipgloss.JoinVertical(lipgloss.Left, metricLines...)))
	fmt.Println()

	return nil
}
