// Package config holds the mutable key-value configuration surface.
//
// Values come from, in increasing priority: built-in defaults, an optional
// config file, LOREKEEPER_* environment variables, and Set calls.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/poiesic/lorekeeper/ai"
	"github.com/poiesic/lorekeeper/core"
	"github.com/poiesic/lorekeeper/embedding"
	"github.com/spf13/viper"
)

// Configuration keys.
const (
	KeyEmbeddingMode    = "embedding_service_mode"
	KeyEmbeddingURL     = "embedding_service_url"
	KeyEmbeddingPython  = "embedding_python_path"
	KeyEmbeddingCLI     = "embedding_cli_path"
	KeyDBPath           = "db_path"
	KeyIndexDir         = "index_dir"
	KeyMetricsPath      = "metrics_path"
	KeyDimension        = "dimension"
	KeyRemoteIndexURL   = "remote_index_url"
	KeyRemoteCollection = "remote_collection"
	KeyAIBaseURL        = "ai_base_url"
	KeyAIAPIKey         = "ai_api_key"
	KeyAIModel          = "ai_model"
	KeyAIEmbeddingModel = "ai_embedding_model"
	KeyAIStreaming      = "ai_streaming"
	KeyVectorSearch     = "vector_search"
	KeyVectorMinScore   = "vector_min_score"
	KeyWorkerInterval   = "worker_interval"
)

// DefaultVectorMinScore is the vector hit floor used when vector_search is
// on and vector_min_score is unset or out of range.
const DefaultVectorMinScore = 0.8

// Embedding service modes.
const (
	ModeHTTP = "http"
	ModeCLI  = "cli"
)

// EnvPrefix prefixes environment overrides, e.g. LOREKEEPER_DB_PATH.
const EnvPrefix = "LOREKEEPER"

func defaults() map[string]any {
	d := ai.DefaultConfig()
	return map[string]any{
		KeyEmbeddingMode:    ModeHTTP,
		KeyEmbeddingURL:     "",
		KeyEmbeddingPython:  "",
		KeyEmbeddingCLI:     "",
		KeyDBPath:           filepath.Join("data", "lorekeeper.db"),
		KeyIndexDir:         filepath.Join("data", "index"),
		KeyMetricsPath:      filepath.Join("data", "embedding_metrics.jsonl"),
		KeyDimension:        core.DefaultDimension,
		KeyRemoteIndexURL:   "",
		KeyRemoteCollection: "",
		KeyAIBaseURL:        d.CompletionHost,
		KeyAIAPIKey:         "",
		KeyAIModel:          d.CompletionModel,
		KeyAIEmbeddingModel: d.EmbeddingModel,
		KeyAIStreaming:      true,
		KeyVectorSearch:     false,
		KeyVectorMinScore:   DefaultVectorMinScore,
		KeyWorkerInterval:   "15m",
	}
}

// Keys lists every configuration key in sorted order.
func Keys() []string {
	keys := make([]string, 0, len(defaults()))
	for k := range defaults() {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Settings is a viper-backed configuration. It is safe for concurrent use.
type Settings struct {
	mu     sync.RWMutex
	v      *viper.Viper
	path   string
	logger *slog.Logger
}

// Option configures Settings.
type Option func(*Settings)

// WithFile reads configuration from path when it exists. Save writes there.
// The file type follows the extension (yaml, json, toml).
func WithFile(path string) Option {
	return func(s *Settings) {
		s.path = path
	}
}

// WithLogger sets the logger used by Backend-built components.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Settings) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Load builds Settings from defaults, the optional file and the environment.
// A missing file is not an error.
func Load(opts ...Option) (*Settings, error) {
	s := &Settings{v: viper.New(), logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	for k, val := range defaults() {
		s.v.SetDefault(k, val)
	}
	s.v.SetEnvPrefix(EnvPrefix)
	s.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	s.v.AutomaticEnv()

	if s.path != "" {
		s.v.SetConfigFile(s.path)
		if err := s.v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("reading config %s: %w", s.path, err)
			}
		}
	}
	return s, nil
}

// Path returns the config file path, empty when none is set.
func (s *Settings) Path() string {
	return s.path
}

// Get returns the string form of key.
func (s *Settings) Get(key string) (string, error) {
	if !known(key) {
		return "", fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.v.GetString(key), nil
}

// Set overrides key for the lifetime of s. Call Save to persist it.
func (s *Settings) Set(key string, value any) error {
	if !known(key) {
		return fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.v.Set(key, value)
	return nil
}

// Save writes all settings to the config file.
func (s *Settings) Save() error {
	if s.path == "" {
		return ErrNoConfigFile
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ensureDir(s.path); err != nil {
		return err
	}
	if err := s.v.WriteConfigAs(s.path); err != nil {
		return fmt.Errorf("writing config %s: %w", s.path, err)
	}
	return nil
}

func (s *Settings) str(key string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return strings.TrimSpace(s.v.GetString(key))
}

func (s *Settings) EmbeddingMode() string    { return strings.ToLower(s.str(KeyEmbeddingMode)) }
func (s *Settings) DBPath() string           { return s.str(KeyDBPath) }
func (s *Settings) IndexDir() string         { return s.str(KeyIndexDir) }
func (s *Settings) MetricsPath() string      { return s.str(KeyMetricsPath) }
func (s *Settings) RemoteIndexURL() string   { return s.str(KeyRemoteIndexURL) }
func (s *Settings) RemoteCollection() string { return s.str(KeyRemoteCollection) }
func (s *Settings) AIBaseURL() string        { return s.str(KeyAIBaseURL) }
func (s *Settings) AIAPIKey() string         { return s.str(KeyAIAPIKey) }
func (s *Settings) AIModel() string          { return s.str(KeyAIModel) }

// Dimension returns the vector dimension, falling back to
// core.DefaultDimension for non-positive values.
func (s *Settings) Dimension() int {
	s.mu.RLock()
	dim := s.v.GetInt(KeyDimension)
	s.mu.RUnlock()
	if dim <= 0 {
		return core.DefaultDimension
	}
	return dim
}

// AIStreaming reports whether escalations use the SSE stream client. When
// false the provider's request/response completer is used instead.
func (s *Settings) AIStreaming() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.v.GetBool(KeyAIStreaming)
}

// VectorSearch reports whether nearest-neighbor hits feed the fusion engine
// alongside text matches. Off by default.
func (s *Settings) VectorSearch() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.v.GetBool(KeyVectorSearch)
}

// VectorMinScore returns the index score a vector hit needs to count as a
// local result. Values outside (0,1] fall back to DefaultVectorMinScore.
func (s *Settings) VectorMinScore() float64 {
	s.mu.RLock()
	floor := s.v.GetFloat64(KeyVectorMinScore)
	s.mu.RUnlock()
	if floor <= 0 || floor > 1 {
		return DefaultVectorMinScore
	}
	return floor
}

// WorkerInterval returns the periodic worker interval. Unparseable or
// non-positive values fall back to 15 minutes.
func (s *Settings) WorkerInterval() time.Duration {
	s.mu.RLock()
	d := s.v.GetDuration(KeyWorkerInterval)
	s.mu.RUnlock()
	if d <= 0 {
		return 15 * time.Minute
	}
	return d
}

// AIConfig returns the configuration for the ai packages.
func (s *Settings) AIConfig() *ai.Config {
	opts := []ai.ConfigOption{
		ai.WithHost(s.AIBaseURL()),
		ai.WithCompletionModel(s.AIModel()),
		ai.WithEmbeddingModel(s.str(KeyAIEmbeddingModel)),
		ai.WithDimension(s.Dimension()),
	}
	if key := s.AIAPIKey(); key != "" {
		opts = append(opts, ai.WithAPIKey(key))
	}
	cfg := ai.NewConfig(opts...)
	cfg.Normalize()
	return cfg
}

// Backend builds the embedding backend for the configured mode. Missing
// endpoint or paths yield ErrNotConfigured.
func (s *Settings) Backend() (embedding.Backend, error) {
	var (
		backend embedding.Backend
		err     error
	)
	switch mode := s.EmbeddingMode(); mode {
	case ModeHTTP:
		backend, err = embedding.NewHTTPBackend(s.str(KeyEmbeddingURL), embedding.WithHTTPLogger(s.logger))
	case ModeCLI:
		backend, err = embedding.NewCLIBackend(s.str(KeyEmbeddingPython), s.str(KeyEmbeddingCLI), embedding.WithCLILogger(s.logger))
	default:
		err = fmt.Errorf("%w: unknown %s %q", ErrNotConfigured, KeyEmbeddingMode, mode)
	}
	if err != nil {
		return nil, err
	}
	return backend, nil
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	return nil
}

func known(key string) bool {
	_, ok := defaults()[key]
	return ok
}
