// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


// Package lorekeeper wires the knowledge store, embedding pipeline, vector
// index and answer orchestration into one Assistant.
package lorekeeper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/poiesic/lorekeeper/ai"
	"github.com/poiesic/lorekeeper/ai/openai"
	"github.com/poiesic/lorekeeper/answer"
	"github.com/poiesic/lorekeeper/config"
	"github.com/poiesic/lorekeeper/core"
	"github.com/poiesic/lorekeeper/ingestion"
	"github.com/poiesic/lorekeeper/reembed"
	"github.com/poiesic/lorekeeper/retrieval"
	"github.com/poiesic/lorekeeper/scheduler"
	"github.com/poiesic/lorekeeper/search"
	"github.com/poiesic/lorekeeper/storage/badger"
	"github.com/poiesic/lorekeeper/stream"
	"github.com/poiesic/lorekeeper/vectorindex"
	"github.com/poiesic/lorekeeper/worker"
)

// WorkerTask is the registry name of the embedding batch run.
const WorkerTask = "embedding-batch"

// Assistant is the composition root.
type Assistant struct {
	settings     *config.Settings
	backend      *badger.Backend
	queue        *badger.QueueRepository
	knowledge    *badger.KnowledgeRepository
	vectors      *badger.VectorRepository
	index        vectorindex.Index
	provider     ai.AIProvider
	retriever    *retrieval.Retriever
	engine       *search.Engine
	orchestrator *answer.Orchestrator
	registry     *scheduler.Registry
	logger       *slog.Logger
}

// Option configures an Assistant.
type Option func(*options)

type options struct {
	inMemory     bool
	provider     ai.AIProvider
	completer    ai.Completer
	connectivity answer.Connectivity
	logger       *slog.Logger
}

// WithInMemoryStore keeps the badger store in memory. Index artifacts are
// still read from and written to the configured index directory.
func WithInMemoryStore() Option {
	return func(o *options) { o.inMemory = true }
}

// WithProvider replaces the OpenAI-compatible provider built from settings.
// Its embedder embeds queries for vector tiers.
func WithProvider(provider ai.AIProvider) Option {
	return func(o *options) { o.provider = provider }
}

// WithCompleter replaces the streaming completer built from settings.
func WithCompleter(completer ai.Completer) Option {
	return func(o *options) { o.completer = completer }
}

// WithConnectivity replaces the HTTP probe of the AI base URL.
func WithConnectivity(c answer.Connectivity) Option {
	return func(o *options) { o.connectivity = c }
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// Open builds an Assistant from settings. The vector index tier is chosen
// here, once, by probing the index directory.
func Open(settings *config.Settings, opts ...Option) (*Assistant, error) {
	o := &options{logger: slog.Default()}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}

	a := &Assistant{settings: settings, logger: o.logger.With("component", "assistant")}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	backend, err := badger.OpenBackend(settings.DBPath(), o.inMemory)
	if err != nil {
		return nil, err
	}
	a.backend = backend
	if a.queue, err = badger.NewQueueRepository(backend); err != nil {
		return nil, err
	}
	if a.knowledge, err = badger.NewKnowledgeRepository(backend); err != nil {
		return nil, err
	}
	if a.vectors, err = badger.NewVectorRepository(backend); err != nil {
		return nil, err
	}

	if dir := settings.IndexDir(); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating index directory: %w", err)
		}
	}
	var remote *vectorindex.Remote
	if url := settings.RemoteIndexURL(); url != "" {
		remote = vectorindex.NewRemote(url,
			vectorindex.WithCollection(settings.RemoteCollection()),
			vectorindex.WithRemoteLogger(o.logger))
	}
	if a.index, err = vectorindex.Select(settings.IndexDir(), settings.Dimension(), remote); err != nil {
		return nil, fmt.Errorf("selecting vector index: %w", err)
	}
	a.logger.Info("vector index selected", "tier", a.index.Tier(), "dimension", a.index.Dimension())

	aiConfig := settings.AIConfig()
	a.provider = o.provider
	if a.provider == nil {
		if a.provider, err = openai.NewProvider(aiConfig); err != nil {
			return nil, fmt.Errorf("creating ai provider: %w", err)
		}
	}
	if a.retriever, err = retrieval.New(a.index, a.provider.Embedder(), retrieval.WithLogger(o.logger)); err != nil {
		return nil, err
	}

	lexical, err := search.NewLexicalSource(a.knowledge)
	if err != nil {
		return nil, err
	}
	sources := []search.Source{lexical}
	if settings.VectorSearch() {
		vector, err := search.NewVectorSource(a.retriever, a.knowledge,
			search.WithMinScore(settings.VectorMinScore()))
		if err != nil {
			return nil, err
		}
		sources = append(sources, vector)
	}
	if a.engine, err = search.NewEngine(sources, search.WithLogger(o.logger)); err != nil {
		return nil, err
	}

	completer := o.completer
	switch {
	case completer != nil:
	case !settings.AIStreaming():
		completer = a.provider.Completer()
	case aiConfig.CompletionHost != "":
		client, err := stream.NewClient(aiConfig.CompletionHost,
			stream.WithAPIKey(aiConfig.APIKey),
			stream.WithModel(aiConfig.CompletionModel),
			stream.WithLogger(o.logger))
		if err != nil {
			return nil, err
		}
		completer = stream.NewCompleter(client)
	}
	connectivity := o.connectivity
	if connectivity == nil {
		connectivity = answer.NewProbeConnectivity(aiConfig.CompletionHost, answer.WithProbeLogger(o.logger))
	}
	if a.orchestrator, err = answer.New(a.engine,
		answer.WithCompleter(completer),
		answer.WithConnectivity(connectivity),
		answer.WithLogger(o.logger)); err != nil {
		return nil, err
	}

	if a.registry, err = scheduler.New(scheduler.WithLogger(o.logger)); err != nil {
		return nil, err
	}

	ok = true
	return a, nil
}

// Close stops background runs and releases storage.
func (a *Assistant) Close() error {
	var errs []error
	if a.registry != nil {
		errs = append(errs, a.registry.Close())
	}
	if a.provider != nil {
		if err := a.provider.Close(); err != nil {
			a.logger.Error("error closing AI provider", "err", err)
		}
	}
	if a.queue != nil {
		errs = append(errs, a.queue.Close())
	}
	if a.knowledge != nil {
		errs = append(errs, a.knowledge.Close())
	}
	if a.backend != nil {
		if err := a.backend.Close(); err != nil {
			a.logger.Error("error closing backend storage", "err", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Tier reports which vector index tier was selected.
func (a *Assistant) Tier() vectorindex.Tier {
	return a.index.Tier()
}

// Knowledge returns the knowledge repository.
func (a *Assistant) Knowledge() *badger.KnowledgeRepository {
	return a.knowledge
}

// Queue returns the embedding queue.
func (a *Assistant) Queue() *badger.QueueRepository {
	return a.queue
}

// Index returns the selected vector index.
func (a *Assistant) Index() vectorindex.Index {
	return a.index
}

// Enqueue queues content for embedding under id.
func (a *Assistant) Enqueue(ctx context.Context, id, content string) error {
	if err := core.ValidateRequest(id); err != nil {
		return err
	}
	return a.queue.Enqueue(ctx, id, content)
}

// Import loads JSON-lines knowledge items and queues them for embedding.
func (a *Assistant) Import(ctx context.Context, r io.Reader) (ingestion.Stats, error) {
	im, err := ingestion.NewImporter(a.knowledge, a.queue, ingestion.WithLogger(a.logger))
	if err != nil {
		return ingestion.Stats{}, err
	}
	return im.ImportJSONL(ctx, r)
}

// Reembed queues every stored item for embedding again.
func (a *Assistant) Reembed(ctx context.Context, progress io.Writer) (int, error) {
	return reembed.NewReembedder(a.knowledge, a.queue, nil, progress).Run(ctx)
}

// NewWorker builds a batch worker from the current settings. A missing
// embedding backend is not an error here; the worker reports
// core.OutcomeFailure when run.
func (a *Assistant) NewWorker() (*worker.Worker, error) {
	metrics, err := worker.NewMetricsLog(a.settings.MetricsPath())
	if err != nil {
		return nil, err
	}
	opts := []worker.Option{
		worker.WithIndex(a.index),
		worker.WithIndexPath(vectorindex.ArtifactPath(a.settings.IndexDir(), a.index)),
		worker.WithFallbackStore(a.vectors),
		worker.WithItemChecker(a.knowledge),
		worker.WithMetricsLog(metrics),
		worker.WithLogger(a.logger),
	}
	backend, err := a.settings.Backend()
	switch {
	case err == nil:
		opts = append(opts, worker.WithBackend(backend))
	case errors.Is(err, config.ErrNotConfigured):
		a.logger.Warn("embedding backend not configured", "err", err)
	default:
		return nil, err
	}
	return worker.New(a.queue, opts...)
}

// RunWorker runs one embedding batch in the calling goroutine.
func (a *Assistant) RunWorker(ctx context.Context) (worker.Stats, core.Outcome) {
	w, err := a.NewWorker()
	if err != nil {
		a.logger.Error("cannot build worker", "err", err)
		return worker.Stats{}, core.OutcomeFailure
	}
	return w.RunOnce(ctx)
}

// ScheduleWorker asks the registry for an embedding run under policy and
// reports whether one was scheduled.
func (a *Assistant) ScheduleWorker(policy scheduler.Policy) bool {
	return a.registry.Enqueue(WorkerTask, policy, a.workerTask)
}

// ServeWorker schedules an embedding run every interval until ctx ends.
func (a *Assistant) ServeWorker(ctx context.Context, interval time.Duration) error {
	return a.registry.Every(ctx, WorkerTask, interval, a.workerTask)
}

// WaitWorker blocks until no embedding run is pending or running.
func (a *Assistant) WaitWorker() {
	a.registry.Wait()
}

func (a *Assistant) workerTask(ctx context.Context) core.Outcome {
	_, outcome := a.RunWorker(ctx)
	return outcome
}

// Search returns up to limit fused local results for query.
func (a *Assistant) Search(ctx context.Context, query string, limit int) ([]core.RetrievalResult, error) {
	return a.engine.Search(ctx, query, limit)
}

// Ask answers question from local material, escalating to the AI endpoint
// when fewer than three local results exist.
func (a *Assistant) Ask(ctx context.Context, question string, limit int) (*core.QueryResult, error) {
	return a.orchestrator.Ask(ctx, question, limit)
}

// AskStream is Ask with partial AI output reported to onPartial.
func (a *Assistant) AskStream(ctx context.Context, question string, limit int, onPartial func(string)) (*core.QueryResult, error) {
	return a.orchestrator.AskStream(ctx, question, limit, onPartial)
}
