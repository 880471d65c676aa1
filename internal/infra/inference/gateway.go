// Package inference is the client for the external build/inference service.
//
// Every outbound call returns a Result instead of an error: the service is
// treated as unreliable and callers decide how to surface an outage.
package inference

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	DefaultProbeTimeout  = 15 * time.Second
	DefaultUploadTimeout = 5 * time.Minute
	DefaultCooldown      = 60 * time.Second

	healthPath = "/health"
	buildsPath = "/builds"
	notifyPath = "/builds/notify"
	mergesPath = "/merges"
)

// Result describes the outcome of one outbound call.
type Result struct {
	OK         bool
	StatusCode int
	Message    string
	Err        error
}

func failure(status int, msg string, err error) Result {
	return Result{OK: false, StatusCode: status, Message: msg, Err: err}
}

// Error returns a non-nil error for failed results.
func (r Result) Error() error {
	if r.OK {
		return nil
	}
	if r.Err != nil {
		return fmt.Errorf("%s: %w", r.Message, r.Err)
	}
	return fmt.Errorf("%s", r.Message)
}

type Options struct {
	BaseURL       string
	ProbeTimeout  time.Duration
	UploadTimeout time.Duration
	Cooldown      time.Duration

	// HTTPClient supplies the transport (e.g. an OAuth2 client). Its
	// Timeout is ignored; per-call timeouts come from the options above.
	HTTPClient *http.Client
	Logger     *zap.Logger
	Now        func() time.Time
}

// Gateway talks to the inference service. Availability state is local to
// the instance; horizontally scaled replicas each keep their own.
type Gateway struct {
	baseURL      string
	probeClient  *http.Client
	uploadClient *http.Client
	cooldown     time.Duration
	log          *zap.Logger
	now          func() time.Time

	lastCheck atomic.Int64 // unix nanos of the last probe or observed failure
	available atomic.Bool
}

func New(opts Options) *Gateway {
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = DefaultProbeTimeout
	}
	if opts.UploadTimeout <= 0 {
		opts.UploadTimeout = DefaultUploadTimeout
	}
	if opts.Cooldown <= 0 {
		opts.Cooldown = DefaultCooldown
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	var transport http.RoundTripper
	if opts.HTTPClient != nil {
		transport = opts.HTTPClient.Transport
	}

	g := &Gateway{
		baseURL:      strings.TrimRight(opts.BaseURL, "/"),
		probeClient:  &http.Client{Transport: transport, Timeout: opts.ProbeTimeout},
		uploadClient: &http.Client{Transport: transport, Timeout: opts.UploadTimeout},
		cooldown:     opts.Cooldown,
		log:          opts.Logger.Named("inference"),
		now:          opts.Now,
	}
	g.available.Store(true)
	return g
}

// ClientCredentialsHTTPClient returns an HTTP client that attaches OAuth2
// client-credentials tokens to every request.
func ClientCredentialsHTTPClient(ctx context.Context, tokenURL, clientID, clientSecret string, scopes ...string) *http.Client {
	cfg := clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     tokenURL,
		Scopes:       scopes,
	}
	return cfg.Client(ctx)
}

// Configured reports whether a base URL was provided.
func (g *Gateway) Configured() bool {
	return g.baseURL != ""
}

// CheckAvailability probes the service at most once per cooldown window and
// otherwise returns the cached verdict.
func (g *Gateway) CheckAvailability(ctx context.Context) bool {
	if !g.Configured() {
		return false
	}

	now := g.now().UnixNano()
	last := g.lastCheck.Load()
	if last != 0 && now-last < int64(g.cooldown) {
		return g.available.Load()
	}
	// whoever wins the swap probes; everyone else reads the cached flag
	if !g.lastCheck.CompareAndSwap(last, now) {
		return g.available.Load()
	}

	ok := g.probe(ctx)
	g.available.Store(ok)
	if !ok {
		g.log.Warn("inference service unavailable")
	}
	return ok
}

func (g *Gateway) probe(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, g.baseURL+healthPath, nil)
	if err != nil {
		return false
	}
	resp, err := g.probeClient.Do(req)
	if err != nil {
		g.log.Debug("probe failed", zap.Error(err))
		return false
	}
	resp.Body.Close()
	return resp.StatusCode < http.StatusInternalServerError
}

func (g *Gateway) markDown() {
	g.available.Store(false)
	g.lastCheck.Store(g.now().UnixNano())
}

// post sends the body produced by open to path and degrades any failure
// into a Result. open is only called once the service is believed up, and
// the body is always closed before post returns.
func (g *Gateway) post(ctx context.Context, client *http.Client, path string, open func() io.ReadCloser) Result {
	if !g.Configured() {
		return failure(0, "inference service not configured", nil)
	}
	if !g.CheckAvailability(ctx) {
		return failure(0, "inference service unavailable", nil)
	}

	body := open()
	defer body.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+path, body)
	if err != nil {
		return failure(0, "build request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		g.markDown()
		g.log.Error("inference call failed", zap.String("path", path), zap.Error(err))
		return failure(0, "inference call failed", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// a 4xx is a problem with this call, not with the service
		if resp.StatusCode >= 500 {
			g.markDown()
		}
		g.log.Error("inference call rejected", zap.String("path", path), zap.Int("status", resp.StatusCode))
		return failure(resp.StatusCode, fmt.Sprintf("inference service returned %d", resp.StatusCode), nil)
	}
	return Result{OK: true, StatusCode: resp.StatusCode}
}
