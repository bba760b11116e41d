package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"lexitrie/internal/config"
	"lexitrie/internal/engine"

	"github.com/spf13/cobra"
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search the index",
	Long: `Search the index by term (with optional fuzzy matching) or, with
--regex, by walking the trie for keys matching a regular expression.`,
	Example: `  lexitrie search golang
  lexitrie search goland --fuzzy --max-distance 1
  lexitrie search --regex "^go.*" --page 2
  lexitrie search golang --fields title,tags --boost title=2.0`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSearch,
}

var (
	searchFuzzy       bool
	searchMaxDistance int
	searchPrefix      bool
	searchFields      string
	searchBoost       string
	searchMaxResults  int
	searchThreshold   float64
	searchMinScore    float64
	searchSortBy      string
	searchSortOrder   string
	searchPage        int
	searchPageSize    int
	searchRegex       string
	searchCaseSens    bool
	searchShowMatches bool
)

func init() {
	rootCmd.AddCommand(searchCmd)

	searchCmd.Flags().BoolVar(&searchFuzzy, "fuzzy", false, "enable fuzzy matching")
	searchCmd.Flags().IntVar(&searchMaxDistance, "max-distance", 2, "maximum edit distance for fuzzy matching")
	searchCmd.Flags().BoolVar(&searchPrefix, "prefix", false, "match terms as prefixes")
	searchCmd.Flags().StringVar(&searchFields, "fields", "", "comma-separated fields to restrict matching to")
	searchCmd.Flags().StringVar(&searchBoost, "boost", "", "comma-separated field=weight pairs, e.g. title=2.0,tags=1.5")
	searchCmd.Flags().IntVar(&searchMaxResults, "max-results", 10, "maximum number of results to consider before pagination")
	searchCmd.Flags().Float64Var(&searchThreshold, "threshold", 0.5, "minimum score for term-query results")
	searchCmd.Flags().Float64Var(&searchMinScore, "min-score", 0, "minimum score for --regex results")
	searchCmd.Flags().StringVar(&searchSortBy, "sort-by", "score", "sort field; results are always ordered by score")
	searchCmd.Flags().StringVar(&searchSortOrder, "sort-order", "desc", "sort order: asc|desc")
	searchCmd.Flags().IntVar(&searchPage, "page", 1, "page number (1-indexed)")
	searchCmd.Flags().IntVar(&searchPageSize, "page-size", 10, "results per page")
	searchCmd.Flags().StringVar(&searchRegex, "regex", "", "regular expression to match trie keys, instead of a term query")
	searchCmd.Flags().BoolVar(&searchCaseSens, "case-sensitive", false, "case-sensitive matching")
	searchCmd.Flags().BoolVar(&searchShowMatches, "show-matches", false, "print the matched terms for each result")
}

func runSearch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	var query string
	if len(args) > 0 {
		query = args[0]
	}

	opts := engine.DefaultSearchOptions()
	opts.Fuzzy = searchFuzzy
	if !cmd.Flags().Changed("fuzzy") {
		opts.Fuzzy = config.Get().Fuzzy.Enabled
	}
	opts.MaxDistance = searchMaxDistance
	opts.PrefixMatch = searchPrefix
	opts.MaxResults = searchMaxResults
	opts.Threshold = searchThreshold
	opts.MinScore = searchMinScore
	opts.SortBy = searchSortBy
	opts.SortOrder = searchSortOrder
	opts.Page = searchPage
	opts.PageSize = searchPageSize
	opts.CaseSensitive = searchCaseSens
	opts.IncludeMatches = searchShowMatches

	if searchFields != "" {
		opts.Fields = splitCSV(searchFields)
	}
	if searchBoost != "" {
		boost, err := parseBoost(searchBoost)
		if err != nil {
			return err
		}
		opts.Boost = boost
	}
	if searchRegex != "" {
		opts.Regex = &searchRegex
	}

	results, err := eng.Search(ctx, query, opts)
	if err != nil {
		return fmt.Errorf("search: %w", err)
	}

	if len(results) == 0 {
		fmt.Println(muted("no results"))
		return nil
	}

	for i, r := range results {
		fmt.Printf("%s %s  %s\n", muted(fmt.Sprintf("%d.", i+1)), success(r.ID), accent(fmt.Sprintf("score=%.4f", r.Score)))
		if r.Fields.Title != "" {
			fmt.Printf("   %s %s\n", muted("title:"), r.Fields.Title)
		}
		if searchShowMatches && len(r.Matches) > 0 {
			fmt.Printf("   %s %s\n", muted("matches:"), strings.Join(r.Matches, ", "))
		}
	}
	return nil
}

func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseBoost(s string) (map[string]float64, error) {
	boost := make(map[string]float64)
	for _, pair := range strings.Split(s, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		kv := strings.SplitN(pair, "=", 2)
		if len(kv) != 2 {
			return nil, fmt.Errorf("invalid boost entry %q, expected field=weight", pair)
		}
		weight, err := strconv.ParseFloat(strings.TrimSpace(kv[1]), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid boost weight in %q: %w", pair, err)
		}
		boost[strings.TrimSpace(kv[0])] = weight
	}
	return boost, nil
}
