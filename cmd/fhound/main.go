// Command fhound is the command-line search client. It runs scans in-process
// rather than through the daemon, so it works on machines where fhoundd is
// not running.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	internal "github.com/filehound/filehound/fhound"
	"github.com/filehound/filehound/fhound/content"
	"github.com/filehound/filehound/fhound/extract"
	"github.com/filehound/filehound/fhound/search"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var (
	keywords      []string
	exclude       []string
	extensions    []string
	ignores       []string
	modifiedAfter string
	modifiedBefor string
	caseSensitive bool
	workers       int
	searchContent bool
	contextRunes  int
	showSize      bool
)

// cliSink drives the progress bar and carries the Ctrl+C cancellation flag
// into the scanner and the content engine.
type cliSink struct {
	bar       *progressbar.ProgressBar
	cancelled atomic.Bool
}

func (s *cliSink) DirScanned()      { _ = s.bar.Add(1) }
func (s *cliSink) FilesMatched(int) {}
func (s *cliSink) FileProcessed()   { _ = s.bar.Add(1) }
func (s *cliSink) Cancelled() bool  { return s.cancelled.Load() }

func formatSize(size int64) string {
	switch {
	case size >= 1024*1024*1024:
		return fmt.Sprintf("%.2f GB", float64(size)/(1024*1024*1024))
	case size >= 1024*1024:
		return fmt.Sprintf("%.2f MB", float64(size)/(1024*1024))
	case size >= 1024:
		return fmt.Sprintf("%.2f KB", float64(size)/1024)
	default:
		return fmt.Sprintf("%d B", size)
	}
}

func parseDate(value, flagName string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --%s date %q, want YYYY-MM-DD", flagName, value)
	}
	return t, nil
}

func run(cmd *cobra.Command, args []string) error {
	after, err := parseDate(modifiedAfter, "after")
	if err != nil {
		return err
	}
	before, err := parseDate(modifiedBefor, "before")
	if err != nil {
		return err
	}

	nameKeywords := keywords
	if searchContent {
		// With -c the keywords select file text, not filenames; the scan
		// phase enumerates every candidate file.
		nameKeywords = nil
	}

	scope := search.Scope{
		Roots: args,
		Filters: search.Filters{
			Keywords:       nameKeywords,
			Exclude:        exclude,
			Extensions:     extensions,
			ModifiedAfter:  after,
			ModifiedBefore: before,
			CaseSensitive:  caseSensitive,
			IgnorePatterns: ignores,
		},
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sink := &cliSink{bar: progressbar.Default(-1, "Scanning")}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case <-sigChan:
			fmt.Fprintln(os.Stderr, "\nSearch interrupted")
			sink.cancelled.Store(true)
			cancel()
		case <-ctx.Done():
		}
	}()

	scanner := search.NewScanner(search.WithWorkers(workers))
	records, issues, err := scanner.Scan(ctx, scope, sink)
	_ = sink.bar.Finish()
	if err != nil && !errors.Is(err, search.ErrCancelled) {
		return err
	}
	interrupted := errors.Is(err, search.ErrCancelled)

	if searchContent && !interrupted {
		return runContent(ctx, sink, records, issues)
	}

	for _, rec := range records {
		if showSize {
			fmt.Printf("%s (%s)\n", rec.Path, formatSize(rec.Size))
		} else {
			fmt.Println(rec.Path)
		}
	}
	printIssues(issues)
	fmt.Fprintf(os.Stderr, "Total files found: %d\n", len(records))
	if interrupted {
		fmt.Fprintln(os.Stderr, "Results are partial")
	}
	return nil
}

func runContent(ctx context.Context, sink *cliSink, records []search.FileRecord, scanIssues []search.Issue) error {
	paths := make([]string, 0, len(records))
	for _, rec := range records {
		if extract.Supported(rec.Path) {
			paths = append(paths, rec.Path)
		}
	}

	sink.bar = progressbar.Default(int64(len(paths)), "Reading")
	engine := content.NewEngine(extract.NewService(), content.WithWorkers(workers))
	opts := content.Options{CaseSensitive: caseSensitive, ContextLen: contextRunes}

	matches, issues, err := engine.Search(ctx, paths, keywords, opts, sink)
	_ = sink.bar.Finish()
	if err != nil && !errors.Is(err, search.ErrCancelled) {
		return err
	}

	for _, m := range matches {
		fmt.Printf("%s\n", m.Path)
		if m.Snippet != "" {
			fmt.Printf("    ...%s...\n", m.Snippet)
		}
	}
	printIssues(append(scanIssues, issues...))
	fmt.Fprintf(os.Stderr, "Total files matched: %d\n", len(matches))
	if errors.Is(err, search.ErrCancelled) {
		fmt.Fprintln(os.Stderr, "Results are partial")
	}
	return nil
}

func printIssues(issues []search.Issue) {
	for _, issue := range issues {
		fmt.Fprintf(os.Stderr, "warning: %s: %s\n", issue.Path, issue.Error)
	}
}

func main() {
	rootCmd := &cobra.Command{
		Use:   internal.DefaultAppName + " [directories...]",
		Short: "Fast filename and content search",
		Long: `Searches directory trees for files by name, and optionally by content.
Keywords match if any of them occurs in the filename (or file text with -c).
Example: fhound -k report -k invoice -e xlsx -c ~/Documents`,
		Args:          cobra.MinimumNArgs(1),
		RunE:          run,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	rootCmd.Flags().StringSliceVarP(&keywords, "keyword", "k", nil, "Keyword to search for (can be specified multiple times)")
	rootCmd.Flags().StringSliceVarP(&exclude, "exclude", "x", nil, "Skip files and directories whose name contains this")
	rootCmd.Flags().StringSliceVarP(&extensions, "ext", "e", nil, "File extension filter, with or without leading dot")
	rootCmd.Flags().StringSliceVar(&ignores, "ignore", nil, "Gitignore-style pattern to exclude paths")
	rootCmd.Flags().StringVar(&modifiedAfter, "after", "", "Only files modified after this date (YYYY-MM-DD)")
	rootCmd.Flags().StringVar(&modifiedBefor, "before", "", "Only files modified before this date (YYYY-MM-DD)")
	rootCmd.Flags().BoolVar(&caseSensitive, "case-sensitive", false, "Match keywords case-sensitively")
	rootCmd.Flags().IntVarP(&workers, "workers", "w", 0, "Worker count (default: derived from CPU cores)")
	rootCmd.Flags().BoolVarP(&searchContent, "content", "c", false, "Search inside file contents instead of names only")
	rootCmd.Flags().IntVar(&contextRunes, "context", internal.DefaultSnippetRunes, "Snippet context length in characters")
	rootCmd.Flags().BoolVarP(&showSize, "size", "s", false, "Show file sizes")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
