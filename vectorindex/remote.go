package vectorindex

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/poiesic/lorekeeper/core"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

const (
	defaultRemoteTimeout = 15 * time.Second
	defaultRemoteRate    = 10 // requests per second
	defaultRemoteBurst   = 5
	// neutralScore is used for remote hits that carry no distance.
	neutralScore = 0.5
)

// Remote is a text-native index served over HTTP. The service embeds the
// query text itself and returns item content with each hit, so hits carry a
// hydrated Item. Persistence is the server's concern; SaveIndex and
// LoadIndex do nothing.
//
// Requests pass through a rate limiter and a circuit breaker.
type Remote struct {
	endpoint   string
	collection string
	client     *http.Client
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker
	logger     *slog.Logger

	mu  sync.RWMutex
	dim int
}

var _ Index = (*Remote)(nil)

// RemoteOption configures a Remote index.
type RemoteOption func(*Remote)

// WithCollection scopes requests to a server-side collection.
func WithCollection(name string) RemoteOption {
	return func(r *Remote) {
		r.collection = name
	}
}

// WithRemoteHTTPClient replaces the default HTTP client.
func WithRemoteHTTPClient(client *http.Client) RemoteOption {
	return func(r *Remote) {
		r.client = client
	}
}

// WithRateLimit sets the request rate (per second) and burst.
func WithRateLimit(perSecond float64, burst int) RemoteOption {
	return func(r *Remote) {
		r.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// WithRemoteLogger sets the logger.
func WithRemoteLogger(logger *slog.Logger) RemoteOption {
	return func(r *Remote) {
		r.logger = logger
	}
}

// NewRemote creates a remote index client for endpoint.
func NewRemote(endpoint string, opts ...RemoteOption) *Remote {
	r := &Remote{
		endpoint: strings.TrimSuffix(endpoint, "/"),
		client:   &http.Client{Timeout: defaultRemoteTimeout},
		limiter:  rate.NewLimiter(rate.Limit(defaultRemoteRate), defaultRemoteBurst),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With("component", "remote-index")
	r.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "remote-index",
		MaxRequests: 1,
		Interval:    30 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			r.logger.Warn("circuit breaker state changed", "from", from.String(), "to", to.String())
		},
	})
	return r
}

// Tier returns TierRemote.
func (r *Remote) Tier() Tier { return TierRemote }

// Init records the dimension used to validate upserts.
func (r *Remote) Init(dim int) error {
	if err := core.ValidateDimension(dim); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dim = dim
	return nil
}

// Dimension returns the configured dimension.
func (r *Remote) Dimension() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.dim
}

// SaveIndex is a no-op; the server persists its own state.
func (r *Remote) SaveIndex(path string) error { return nil }

// LoadIndex is a no-op; the server persists its own state.
func (r *Remote) LoadIndex(path string) error { return nil }

type remoteSearchRequest struct {
	QueryText  string `json:"query_text"`
	Limit      int    `json:"limit"`
	Collection string `json:"collection,omitempty"`
}

type remoteSearchResult struct {
	UnitName        string   `json:"unitName"`
	JobTitle        string   `json:"jobTitle"`
	SourceFile      string   `json:"source_file"`
	ContentMarkdown string   `json:"contentMarkdown"`
	Distance        *float64 `json:"distance"`
}

type remoteSearchResponse struct {
	Results []remoteSearchResult `json:"results"`
}

type remoteUpsertRequest struct {
	IDs        []int64     `json:"ids"`
	Vectors    [][]float32 `json:"vectors"`
	Collection string      `json:"collection,omitempty"`
}

// Search posts the query text to <endpoint>/search. Results without content
// are dropped.
func (r *Remote) Search(ctx context.Context, q Query, k int) ([]Hit, error) {
	text := strings.TrimSpace(q.Text)
	if text == "" {
		return nil, ErrTextRequired
	}
	if k <= 0 {
		return []Hit{}, nil
	}

	var resp remoteSearchResponse
	req := remoteSearchRequest{QueryText: text, Limit: k, Collection: r.collection}
	if err := r.post(ctx, "/search", req, &resp); err != nil {
		return nil, err
	}

	hits := make([]Hit, 0, len(resp.Results))
	for _, res := range resp.Results {
		if strings.TrimSpace(res.ContentMarkdown) == "" {
			continue
		}
		hits = append(hits, res.toHit())
		if len(hits) == k {
			break
		}
	}
	return hits, nil
}

func (res remoteSearchResult) toHit() Hit {
	title := res.JobTitle
	if title == "" {
		title = res.UnitName
	}
	item := &core.KnowledgeItem{
		ID:       core.IDFromContent(res.SourceFile + res.ContentMarkdown),
		Title:    title,
		Content:  res.ContentMarkdown,
		Source:   res.SourceFile,
		Category: res.UnitName,
	}
	score := neutralScore
	if res.Distance != nil && *res.Distance >= 0 {
		score = 1 / (1 + *res.Distance)
	}
	return Hit{ID: item.ID, Score: core.ClampScore(score), Item: item}
}

// Upsert posts vectors to <endpoint>/upsert.
func (r *Remote) Upsert(ctx context.Context, ids []int64, vectors []float32) error {
	rows, err := splitRows(ids, vectors, r.Dimension())
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}
	req := remoteUpsertRequest{IDs: ids, Vectors: rows, Collection: r.collection}
	return r.post(ctx, "/upsert", req, nil)
}

// post sends body as JSON and decodes the response into out when out is non-nil.
func (r *Remote) post(ctx context.Context, path string, body, out any) error {
	if err := r.limiter.Wait(ctx); err != nil {
		return err
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	_, err = r.breaker.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint+path, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := r.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return nil, fmt.Errorf("status %d: %s", resp.StatusCode, bytes.TrimSpace(data))
		}
		if out != nil {
			if err := json.Unmarshal(data, out); err != nil {
				return nil, fmt.Errorf("decoding response: %w", err)
			}
		}
		return nil, nil
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return fmt.Errorf("%w: %s%s: %w", ErrRemoteUnavailable, r.endpoint, path, err)
	}
	return nil
}
