package answer

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

const defaultProbeTimeout = 2 * time.Second

// Connectivity reports whether the AI endpoint can be reached.
type Connectivity interface {
	Online(ctx context.Context) bool
}

// StaticConnectivity always reports the same state.
type StaticConnectivity bool

func (s StaticConnectivity) Online(_ context.Context) bool { return bool(s) }

// ProbeConnectivity checks reachability with an HTTP GET. Any HTTP response,
// whatever its status, counts as online.
type ProbeConnectivity struct {
	url     string
	client  *http.Client
	timeout time.Duration
	logger  *slog.Logger
}

// ProbeOption configures a ProbeConnectivity.
type ProbeOption func(*ProbeConnectivity)

// WithProbeTimeout bounds each probe.
func WithProbeTimeout(d time.Duration) ProbeOption {
	return func(p *ProbeConnectivity) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// WithProbeClient sets the HTTP client used for probes.
func WithProbeClient(client *http.Client) ProbeOption {
	return func(p *ProbeConnectivity) {
		if client != nil {
			p.client = client
		}
	}
}

// WithProbeLogger sets the logger.
func WithProbeLogger(logger *slog.Logger) ProbeOption {
	return func(p *ProbeConnectivity) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// NewProbeConnectivity probes url, normally the AI base URL.
func NewProbeConnectivity(url string, opts ...ProbeOption) *ProbeConnectivity {
	p := &ProbeConnectivity{
		url:     url,
		client:  http.DefaultClient,
		timeout: defaultProbeTimeout,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With("component", "connectivity")
	return p
}

func (p *ProbeConnectivity) Online(ctx context.Context) bool {
	if p.url == "" {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		p.logger.Warn("bad probe url", "url", p.url, "err", err)
		return false
	}
	resp, err := p.client.Do(req)
	if err != nil {
		p.logger.Debug("endpoint unreachable", "url", p.url, "err", err)
		return false
	}
	resp.Body.Close()
	return true
}
