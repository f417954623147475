package cmd

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/amanidx/internal/search"
	"github.com/Aman-CERP/amanidx/internal/ui"
)

// searchOptions holds CLI flags for search.
type searchOptions struct {
	dir         string
	limit       int
	jsonOutput  bool
	lexicalOnly bool
	noLexical   bool
	noColor     bool
}

func newSearchCmd(root *rootOptions) *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the indexed workspace",
		Long: `Search the workspace index. BM25 keyword hits and embedding similarity
hits are merged into one ranked list; each result shows which side found it.

Examples:
  amanidx search "retry with backoff"
  amanidx search handleRequest --lexical-only -n 5
  amanidx search "config loading" --json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd, strings.Join(args, " "), root, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.dir, "dir", "C", "", "Workspace root (default: project root of the working directory)")
	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 0, "Maximum number of results (default: search.max_results)")
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().BoolVar(&opts.lexicalOnly, "lexical-only", false, "Keyword search only; skip the query embedding")
	cmd.Flags().BoolVar(&opts.noLexical, "no-lexical", false, "Embedding similarity only")
	cmd.Flags().BoolVar(&opts.noColor, "no-color", false, "Disable colors")
	cmd.MarkFlagsMutuallyExclusive("lexical-only", "no-lexical")

	return cmd
}

func runSearch(cmd *cobra.Command, query string, root *rootOptions, opts searchOptions) error {
	workspace, err := resolveRoot([]string{opts.dir})
	if err != nil {
		return err
	}

	a, err := openApp(workspace, root, nil)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	engine, err := search.NewEngine(a.svc, a.gateway, a.cfg.Search, a.logger)
	if err != nil {
		return err
	}

	searchOpts := engine.DefaultOptions(workspace)
	if opts.limit > 0 {
		searchOpts.MaxResults = opts.limit
	}
	if opts.lexicalOnly {
		searchOpts.Lexical = true
		searchOpts.LexicalOnly = true
	}
	if opts.noLexical {
		searchOpts.Lexical = false
	}

	resp, err := engine.Search(cmd.Context(), query, searchOpts)
	if err != nil {
		return err
	}

	renderer := ui.NewResultsRenderer(cmd.OutOrStdout(), opts.noColor || ui.DetectNoColor() || !ui.IsTTY(cmd.OutOrStdout()))
	if opts.jsonOutput {
		return renderer.RenderJSON(resp)
	}
	return renderer.Render(resp)
}
