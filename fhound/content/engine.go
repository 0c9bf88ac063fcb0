// Package content searches inside document files for keywords, extracting
// text through a pluggable extractor and fanning the per-file work out over
// a bounded worker pool.
package content

import (
	"context"
	"errors"
	"log/slog"
	"runtime"
	"sort"
	"sync"

	"github.com/filehound/filehound/fhound/extract"
	"github.com/filehound/filehound/fhound/search"

	"github.com/sourcegraph/conc/pool"
)

// Extractor turns a document into searchable plain text.
type Extractor interface {
	Extract(ctx context.Context, path string) (string, error)
}

// ProgressSink receives per-file progress during a content search.
// Implementations must be safe for concurrent use.
type ProgressSink interface {
	FileProcessed()
	Cancelled() bool
}

// Options tunes how keywords are matched within extracted text.
type Options struct {
	CaseSensitive bool
	// ContextLen is the number of runes of surrounding context kept on
	// each side of the first match when building a snippet.
	ContextLen int
}

// Engine runs keyword searches over file contents. Extraction dominates the
// cost, so the worker count defaults to half the CPUs to leave headroom for
// the rest of the process.
type Engine struct {
	workers   int
	extractor Extractor
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithWorkers overrides the extraction concurrency.
func WithWorkers(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.workers = n
		}
	}
}

// NewEngine creates an engine backed by the given extractor.
func NewEngine(extractor Extractor, opts ...EngineOption) *Engine {
	e := &Engine{
		workers:   max(1, runtime.NumCPU()/2),
		extractor: extractor,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Search extracts each candidate file and reports those containing at least
// one keyword, along with which keywords matched and a snippet around the
// first occurrence. Files whose format has no extractor are skipped, other
// extraction failures are reported as per-file issues. On cancellation the
// matches gathered so far are returned together with search.ErrCancelled;
// no new files are dispatched once the flag is observed, and in-flight
// extractions are abandoned at their next check point.
func (e *Engine) Search(ctx context.Context, paths []string, keywords []string, opts Options, sink ProgressSink) ([]search.ContentMatch, []search.Issue, error) {
	if sink == nil {
		sink = nopSink{}
	}
	if len(keywords) == 0 || len(paths) == 0 {
		return nil, nil, nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var mu sync.Mutex
	var matches []search.ContentMatch
	var issues []search.Issue

	p := pool.New().WithMaxGoroutines(e.workers)
	cancelled := false
	for _, path := range paths {
		if sink.Cancelled() || ctx.Err() != nil {
			cancelled = true
			cancel()
			break
		}
		p.Go(func() {
			if sink.Cancelled() || ctx.Err() != nil {
				return
			}
			match, issue := e.searchFile(ctx, path, keywords, opts)
			sink.FileProcessed()

			mu.Lock()
			defer mu.Unlock()
			if match != nil {
				matches = append(matches, *match)
			}
			if issue != nil {
				issues = append(issues, *issue)
			}
		})
	}
	p.Wait()

	// Dispatch order is lost to the pool; sort so identical searches
	// produce identical result listings.
	sort.Slice(matches, func(i, j int) bool { return matches[i].Path < matches[j].Path })
	sort.Slice(issues, func(i, j int) bool { return issues[i].Path < issues[j].Path })

	if cancelled || sink.Cancelled() {
		return matches, issues, search.ErrCancelled
	}
	if err := ctx.Err(); err != nil {
		return matches, issues, err
	}
	return matches, issues, nil
}

func (e *Engine) searchFile(ctx context.Context, path string, keywords []string, opts Options) (*search.ContentMatch, *search.Issue) {
	text, err := e.extractor.Extract(ctx, path)
	if err != nil {
		if errors.Is(err, extract.ErrUnsupported) || errors.Is(err, context.Canceled) {
			return nil, nil
		}
		slog.Debug("Content extraction failed", "path", path, "error", err)
		return nil, &search.Issue{Path: path, Error: err.Error()}
	}
	if text == "" {
		return nil, nil
	}

	var matched []string
	var snippet string
	for _, kw := range keywords {
		if kw == "" {
			continue
		}
		if !containsKeyword(text, kw, opts.CaseSensitive) {
			continue
		}
		matched = append(matched, kw)
		if snippet == "" {
			snippet = snippetAround(text, kw, opts.ContextLen, opts.CaseSensitive)
		}
	}
	if len(matched) == 0 {
		return nil, nil
	}
	return &search.ContentMatch{Path: path, Keywords: matched, Snippet: snippet}, nil
}

type nopSink struct{}

func (nopSink) FileProcessed()  {}
func (nopSink) Cancelled() bool { return false }
