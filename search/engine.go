package search

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/poiesic/lorekeeper/core"
	"golang.org/x/sync/errgroup"
)

// Scoring constants.
const (
	LexicalBaseScore = 0.85
	VectorBaseScore  = 0.6

	titleBonus   = 0.08
	contentBonus = 0.05
	keywordBonus = 0.04

	thinPenalty       = 0.06
	thinContentLength = 60
)

// Source produces raw candidates for a query.
type Source interface {
	// Name identifies the source in logs and reports.
	Name() string

	// Kind selects the base score applied to the source's candidates.
	Kind() core.SourceKind

	// Candidates returns up to limit items for query.
	Candidates(ctx context.Context, query string, limit int) ([]core.KnowledgeItem, error)
}

// Report is the full outcome of a fusion call. Failed maps source names to
// the errors they returned; those sources contributed no candidates.
type Report struct {
	Results []core.RetrievalResult
	Failed  map[string]error
	Elapsed time.Duration
}

// Engine scores and merges candidates from its sources.
// An Engine holds no per-call state and is safe for concurrent use.
type Engine struct {
	sources []Source
	base    map[core.SourceKind]float64
	monitor Monitor
	logger  *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) error {
		if logger == nil {
			logger = slog.Default()
		}
		e.logger = logger
		return nil
	}
}

// WithMonitor replaces the default logging monitor. A nil monitor disables
// fusion events.
func WithMonitor(monitor Monitor) Option {
	return func(e *Engine) error {
		if monitor == nil {
			monitor = noopMonitor{}
		}
		e.monitor = monitor
		return nil
	}
}

// WithBaseScore overrides the base score for a source kind.
func WithBaseScore(kind core.SourceKind, score float64) Option {
	return func(e *Engine) error {
		if score < 0 || score > 1 {
			return ErrInvalidBaseScore
		}
		e.base[kind] = score
		return nil
	}
}

// NewEngine creates a fusion engine over sources.
func NewEngine(sources []Source, opts ...Option) (*Engine, error) {
	if len(sources) == 0 {
		return nil, ErrSourceRequired
	}
	e := &Engine{
		sources: sources,
		base: map[core.SourceKind]float64{
			core.SourceLexical: LexicalBaseScore,
			core.SourceVector:  VectorBaseScore,
		},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}
	e.logger = e.logger.With("component", "fusion")
	if e.monitor == nil {
		e.monitor = &logMonitor{logger: e.logger}
	}
	return e, nil
}

// Search returns up to limit scored results for query, best first.
// Source failures are logged and count as zero candidates.
func (e *Engine) Search(ctx context.Context, query string, limit int) ([]core.RetrievalResult, error) {
	report, err := e.SearchReport(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	return report.Results, nil
}

// SearchReport is Search with per-source failures and timing exposed.
// The only error returned is the context's.
func (e *Engine) SearchReport(ctx context.Context, query string, limit int) (*Report, error) {
	start := time.Now()
	e.monitor.Start(query)

	report := &Report{Results: []core.RetrievalResult{}, Failed: map[string]error{}}
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" || limit <= 0 {
		report.Elapsed = time.Since(start)
		e.monitor.Finish(query, 0, report.Elapsed)
		return report, nil
	}

	candidates := make([][]core.KnowledgeItem, len(e.sources))
	failures := make([]error, len(e.sources))
	g, gctx := errgroup.WithContext(ctx)
	for i, src := range e.sources {
		g.Go(func() error {
			items, err := src.Candidates(gctx, query, limit)
			if err != nil {
				failures[i] = err
				return nil
			}
			candidates[i] = items
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		e.monitor.Finish(query, 0, time.Since(start))
		return nil, err
	}

	best := make(map[int64]int)
	for i, src := range e.sources {
		if failures[i] != nil {
			e.logger.Warn("source failed", "source", src.Name(), "err", failures[i])
			report.Failed[src.Name()] = failures[i]
			continue
		}
		for _, item := range candidates[i] {
			score := e.score(item, src.Kind(), q)
			if at, ok := best[item.ID]; ok {
				if score > report.Results[at].Score {
					report.Results[at] = core.RetrievalResult{Item: item, Score: score, Origin: src.Kind()}
				}
				continue
			}
			best[item.ID] = len(report.Results)
			report.Results = append(report.Results, core.RetrievalResult{Item: item, Score: score, Origin: src.Kind()})
		}
	}

	sort.SliceStable(report.Results, func(i, j int) bool {
		a, b := report.Results[i], report.Results[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		return a.Item.ID < b.Item.ID
	})
	if len(report.Results) > limit {
		report.Results = report.Results[:limit]
	}

	report.Elapsed = time.Since(start)
	e.monitor.Finish(query, len(report.Results), report.Elapsed)
	return report, nil
}

// score computes the clamped relevance of item for the lower-cased query q.
func (e *Engine) score(item core.KnowledgeItem, kind core.SourceKind, q string) float64 {
	s := e.base[kind]
	if strings.Contains(strings.ToLower(item.Title), q) {
		s += titleBonus
	}
	if strings.Contains(strings.ToLower(item.Content), q) {
		s += contentBonus
	}
	for _, kw := range item.Keywords {
		if strings.Contains(strings.ToLower(kw), q) {
			s += keywordBonus
			break
		}
	}
	if utf8.RuneCountInString(item.Content) < thinContentLength {
		s -= thinPenalty
	}
	return core.ClampScore(s)
}
