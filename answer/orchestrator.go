package answer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/poiesic/lorekeeper/ai"
	"github.com/poiesic/lorekeeper/core"
)

const (
	// LocalThreshold is the number of local results at which the AI is not consulted.
	LocalThreshold = 3

	localConfidence = 1.0
	baseConfidence  = 0.5
	perResultBonus  = 0.1
)

// Fusion produces ranked local results. *search.Engine satisfies it.
type Fusion interface {
	Search(ctx context.Context, query string, limit int) ([]core.RetrievalResult, error)
}

// Orchestrator decides between a local answer and an AI completion.
// It keeps no per-call state.
type Orchestrator struct {
	fusion       Fusion
	completer    ai.Completer
	connectivity Connectivity
	logger       *slog.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator) error

// WithCompleter sets the AI collaborator used when local material is thin.
func WithCompleter(completer ai.Completer) Option {
	return func(o *Orchestrator) error {
		o.completer = completer
		return nil
	}
}

// WithConnectivity sets the reachability check. Default is always online.
func WithConnectivity(c Connectivity) Option {
	return func(o *Orchestrator) error {
		if c == nil {
			c = StaticConnectivity(true)
		}
		o.connectivity = c
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) error {
		if logger == nil {
			logger = slog.Default()
		}
		o.logger = logger
		return nil
	}
}

// New creates an orchestrator over fusion.
func New(fusion Fusion, opts ...Option) (*Orchestrator, error) {
	if fusion == nil {
		return nil, ErrFusionRequired
	}
	o := &Orchestrator{
		fusion:       fusion,
		connectivity: StaticConnectivity(true),
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, err
		}
	}
	o.logger = o.logger.With("component", "orchestrator")
	return o, nil
}

// Ask answers question using at most limit local results.
func (o *Orchestrator) Ask(ctx context.Context, question string, limit int) (*core.QueryResult, error) {
	return o.AskStream(ctx, question, limit, nil)
}

// AskStream is Ask with partial AI output reported to onPartial. onPartial
// receives the whole answer so far and is never called for local answers.
// The returned error is non-nil only when the fusion engine fails, which
// happens when ctx is done.
func (o *Orchestrator) AskStream(ctx context.Context, question string, limit int, onPartial func(string)) (*core.QueryResult, error) {
	local, err := o.fusion.Search(ctx, question, limit)
	if err != nil {
		return nil, err
	}

	refs := make([]core.KnowledgeItem, len(local))
	contents := make([]string, len(local))
	for i, r := range local {
		refs[i] = r.Item
		contents[i] = r.Item.Content
	}
	joined := strings.Join(contents, "\n")

	if len(local) >= LocalThreshold || !o.connectivity.Online(ctx) {
		o.logger.Debug("answering locally", "results", len(local))
		return &core.QueryResult{Answer: joined, References: refs, Confidence: localConfidence}, nil
	}

	confidence := Confidence(len(local))
	text, err := o.complete(ctx, question, joined, onPartial)
	if err != nil {
		o.logger.Warn("ai request failed", "results", len(local), "err", err)
		text = fmt.Sprintf("AI request failed: %v", err)
	}
	return &core.QueryResult{Answer: text, References: refs, Confidence: confidence}, nil
}

func (o *Orchestrator) complete(ctx context.Context, question, reference string, onPartial func(string)) (string, error) {
	if o.completer == nil {
		return "", ErrNoCompleter
	}
	return o.completer.Complete(ctx, question, reference, onPartial)
}

// Confidence returns the confidence of an answer built from n local results.
func Confidence(n int) float64 {
	if n >= LocalThreshold {
		return localConfidence
	}
	return baseConfidence + perResultBonus*float64(n)
}
