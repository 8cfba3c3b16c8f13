// Package router implements the LEGACORE Provider Router.
//
// The router orders the configured providers (static precedence, an optional
// preferred provider, and an optional two-way load balance), calls them one
// at a time with a per-call timeout, retries the whole list up to MaxRetries
// times, and returns the first successful response. Generate never fails:
// when every attempt fails it returns a synthetic fallback response.
package router

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/legacore/legacore/control-plane/internal/credentials"
	"github.com/legacore/legacore/control-plane/internal/metrics"
	"github.com/legacore/legacore/control-plane/pkg/models"
)

// UnavailableText is the canonical body of a fallback response.
const UnavailableText = "AI services are currently unavailable. Please check your API configuration or try again later."

// ErrNoStreamingProvider is returned by Stream when every attempt failed.
var ErrNoStreamingProvider = errors.New("no AI providers available for streaming")

var tracer = otel.Tracer("legacore/router")

// Config tunes provider selection.
type Config struct {
	MaxRetries        int           `env:"MAX_RETRIES" envDefault:"3"`
	Timeout           time.Duration `env:"TIMEOUT" envDefault:"30s"`
	PreferredProvider string        `env:"PREFERRED_PROVIDER"`
	LoadBalancing     bool          `env:"LOAD_BALANCING" envDefault:"false"`
	BalancedPair      []string      `env:"BALANCED_PAIR" envDefault:"openai,groq" envSeparator:","`
	SiteURL           string        `env:"SITE_URL" envDefault:"http://localhost:3000"`
	AppTitle          string        `env:"APP_TITLE" envDefault:"LEGACORE Platform"`

	// BaseURLs overrides provider endpoints, e.g. "openai=http://proxy:8080/v1".
	BaseURLs map[string]string `env:"BASE_URLS" envSeparator:"," envKeyValSeparator:"="`
}

func (c *Config) applyDefaults() {
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.AppTitle == "" {
		c.AppTitle = "LEGACORE Platform"
	}
}

// MaxLatency is the longest Generate can take before it falls back: every
// provider attempted on every pass, each running to Timeout.
func (c Config) MaxLatency() time.Duration {
	c.applyDefaults()
	return time.Duration(len(models.ProviderNames)*c.MaxRetries) * c.Timeout
}

// Option customises a Router.
type Option func(*Router)

// WithDriver installs d for provider, replacing the default HTTP driver.
func WithDriver(provider string, d Driver) Option {
	return func(r *Router) {
		r.overrides[provider] = d
	}
}

// Router routes generation requests across providers.
type Router struct {
	cfg Config

	mu         sync.RWMutex
	validation models.ValidationResult
	drivers    map[string]Driver
	overrides  map[string]Driver

	// Served-request counters and last used provider.
	statsMu  sync.Mutex
	counts   map[string]int64
	lastUsed string
}

// New builds a router from credential sources.
func New(cfg Config, src credentials.Sources, opts ...Option) *Router {
	cfg.applyDefaults()
	r := &Router{
		cfg:       cfg,
		overrides: make(map[string]Driver),
		counts:    make(map[string]int64),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.Refresh(src)
	return r
}

// Refresh recomputes credential validation and rebuilds the HTTP drivers.
func (r *Router) Refresh(src credentials.Sources) {
	validation := credentials.Validate(src)
	drivers := make(map[string]Driver, len(models.ProviderNames))

	for _, name := range models.ProviderNames {
		if d, ok := r.overrides[name]; ok {
			drivers[name] = d
			continue
		}
		pc := validation.Provider(name)
		if !pc.HasValidKey {
			continue
		}
		baseURL := DefaultBaseURLs[name]
		if u := r.cfg.BaseURLs[name]; u != "" {
			baseURL = u
		}
		ep := Endpoint{
			Provider: name,
			BaseURL:  baseURL,
			APIKey:   src.Key(name),
			Model:    pc.Model,
		}
		if name == models.ProviderOpenRouter {
			ep.Headers = map[string]string{
				"HTTP-Referer": r.cfg.SiteURL,
				"X-Title":      r.cfg.AppTitle,
			}
		}
		drivers[name] = NewChatDriver(ep)
	}

	r.mu.Lock()
	r.validation = validation
	r.drivers = drivers
	r.mu.Unlock()

	log.Info().
		Bool("has_any_provider", validation.HasAnyProvider).
		Str("recommended", validation.RecommendedProvider).
		Strs("warnings", validation.Warnings).
		Msg("Provider credentials validated")
}

// Validation returns the current credential validation.
func (r *Router) Validation() models.ValidationResult {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.validation
}

// candidate pairs a provider with the driver taken from the same snapshot.
type candidate struct {
	name   string
	driver Driver
}

// order returns the providers to attempt, in order.
func (r *Router) order() []candidate {
	r.mu.RLock()
	v := r.validation
	drivers := r.drivers
	r.mu.RUnlock()

	order := append([]string(nil), models.ProviderNames...)

	if p := r.cfg.PreferredProvider; p != "" && v.Provider(p).HasValidKey {
		order = moveToFront(order, p)
	}

	if r.cfg.LoadBalancing && len(r.cfg.BalancedPair) == 2 {
		a, b := r.cfg.BalancedPair[0], r.cfg.BalancedPair[1]
		if v.Provider(a).HasValidKey && v.Provider(b).HasValidKey {
			ia, ib := indexOf(order, a), indexOf(order, b)
			if ia >= 0 && ib >= 0 {
				r.statsMu.Lock()
				ca, cb := r.counts[a], r.counts[b]
				r.statsMu.Unlock()
				// The less used of the pair takes the earlier slot.
				if (ia < ib && cb < ca) || (ib < ia && ca < cb) {
					order[ia], order[ib] = order[ib], order[ia]
				}
			}
		}
	}

	usable := make([]candidate, 0, len(order))
	for _, name := range order {
		if d := drivers[name]; d != nil && v.Provider(name).HasValidKey {
			usable = append(usable, candidate{name: name, driver: d})
		}
	}
	return usable
}

// Generate runs the request against the ordered providers and returns the
// first success, or a fallback response when every attempt failed.
func (r *Router) Generate(ctx context.Context, req *Request) models.AIResponse {
	providers := r.order()
	if len(providers) == 0 {
		metrics.FallbackResponses.Inc()
		return models.AIResponse{
			Text:     UnavailableText + " (no AI providers are configured)",
			Provider: models.ProviderMock,
			Model:    models.ProviderFallback,
		}
	}

	var lastErr error
	attempts := 0
	for pass := 1; pass <= r.cfg.MaxRetries; pass++ {
		for _, p := range providers {
			name := p.name
			if ctx.Err() != nil {
				lastErr = ctx.Err()
				break
			}
			attempts++
			c, err := r.attempt(ctx, p, req, pass)
			if err != nil {
				log.Warn().
					Str("provider", name).
					Int("attempt", pass).
					Err(err).
					Msg("Provider call failed, trying next")
				lastErr = err
				continue
			}

			r.markUsed(name)
			return models.AIResponse{
				Text:     c.Text,
				Provider: name,
				Model:    c.Model,
				Usage:    c.Usage,
			}
		}
	}

	metrics.FallbackResponses.Inc()
	log.Error().
		Int("providers", len(providers)).
		Int("retries", r.cfg.MaxRetries).
		Int("attempts", attempts).
		Err(lastErr).
		Msg("All providers failed, returning fallback response")

	return models.AIResponse{
		Text: fmt.Sprintf("%s (last error: %v; tried %d provider(s) x %d retries)",
			UnavailableText, lastErr, len(providers), r.cfg.MaxRetries),
		Provider: models.ProviderFallback,
		Model:    models.ProviderFallback,
	}
}

// GenerateResponse is Generate for a single prompt.
func (r *Router) GenerateResponse(ctx context.Context, prompt, systemPrompt string) models.AIResponse {
	return r.Generate(ctx, NewRequest(prompt, systemPrompt))
}

type callResult struct {
	c   *Completion
	err error
}

// attempt issues one bounded provider call. The call races a timer; a
// driver that ignores its context is abandoned when the timer fires.
func (r *Router) attempt(ctx context.Context, p candidate, req *Request, pass int) (*Completion, error) {
	name, d := p.name, p.driver

	ctx, span := tracer.Start(ctx, "router.generate")
	span.SetAttributes(
		attribute.String("provider", name),
		attribute.Int("attempt", pass),
	)
	defer span.End()

	callCtx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	start := time.Now()
	ch := make(chan callResult, 1)
	go func() {
		c, err := d.Generate(callCtx, req)
		ch <- callResult{c: c, err: err}
	}()

	var res callResult
	select {
	case res = <-ch:
	case <-callCtx.Done():
		res.err = fmt.Errorf("%s: timed out after %s", name, r.cfg.Timeout)
		if ctx.Err() != nil {
			res.err = fmt.Errorf("%s: %w", name, ctx.Err())
		}
	}
	if res.err == nil && res.c == nil {
		res.err = fmt.Errorf("%s: empty completion", name)
	}

	status := "success"
	if res.err != nil {
		status = "error"
		span.RecordError(res.err)
		span.SetStatus(codes.Error, res.err.Error())
	}
	metrics.RecordProviderAttempt(name, status, time.Since(start).Seconds())

	return res.c, res.err
}

func (r *Router) markUsed(name string) {
	r.statsMu.Lock()
	r.counts[name]++
	r.lastUsed = name
	r.statsMu.Unlock()
}

// ── Streaming ───────────────────────────────────────────────

// StreamResponse is an open stream and the provider serving it.
type StreamResponse struct {
	Stream   TextStream
	Provider string
	Model    string
}

type streamResult struct {
	s   TextStream
	err error
}

// Stream opens a text stream using the same provider selection as
// Generate. Unlike Generate it returns an error when every attempt failed.
func (r *Router) Stream(ctx context.Context, req *Request) (*StreamResponse, error) {
	providers := r.order()
	validation := r.Validation()

	var lastErr error
	for pass := 1; pass <= r.cfg.MaxRetries; pass++ {
		for _, p := range providers {
			name := p.name
			if ctx.Err() != nil {
				return nil, fmt.Errorf("%w: %v", ErrNoStreamingProvider, ctx.Err())
			}
			s, err := r.openStream(ctx, p, req)
			if err != nil {
				log.Warn().Str("provider", name).Int("attempt", pass).Err(err).Msg("Provider streaming failed, trying next")
				lastErr = err
				continue
			}
			r.markUsed(name)
			return &StreamResponse{
				Stream:   s,
				Provider: name,
				Model:    validation.Provider(name).Model,
			}, nil
		}
	}

	if lastErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoStreamingProvider, lastErr)
	}
	return nil, ErrNoStreamingProvider
}

// StreamText is Stream for a single prompt.
func (r *Router) StreamText(ctx context.Context, prompt, systemPrompt string) (*StreamResponse, error) {
	return r.Stream(ctx, NewRequest(prompt, systemPrompt))
}

// openStream bounds only the opening of the stream by the timeout; the
// returned stream lives until closed or ctx ends.
func (r *Router) openStream(ctx context.Context, p candidate, req *Request) (TextStream, error) {
	name, d := p.name, p.driver

	streamCtx, cancel := context.WithCancel(ctx)
	ch := make(chan streamResult, 1)
	go func() {
		s, err := d.Stream(streamCtx, req)
		ch <- streamResult{s: s, err: err}
	}()

	timer := time.NewTimer(r.cfg.Timeout)
	defer timer.Stop()

	select {
	case res := <-ch:
		if res.err != nil {
			cancel()
			metrics.RecordProviderAttempt(name, "error", 0)
			return nil, res.err
		}
		metrics.RecordProviderAttempt(name, "success", 0)
		return &cancelStream{TextStream: res.s, cancel: cancel}, nil
	case <-timer.C:
		cancel()
		go func() {
			if res := <-ch; res.s != nil {
				res.s.Close()
			}
		}()
		metrics.RecordProviderAttempt(name, "error", r.cfg.Timeout.Seconds())
		return nil, fmt.Errorf("%s: stream open timed out after %s", name, r.cfg.Timeout)
	}
}

type cancelStream struct {
	TextStream
	cancel context.CancelFunc
}

func (s *cancelStream) Close() error {
	defer s.cancel()
	return s.TextStream.Close()
}

// ── Status ──────────────────────────────────────────────────

// ActiveProvider summarises a provider with a usable key.
type ActiveProvider struct {
	Name      string                `json:"name"`
	Status    models.ProviderStatus `json:"status"`
	Model     string                `json:"model"`
	KeySource models.KeySource      `json:"keySource"`
}

// Status is a read-only snapshot of router state.
type Status struct {
	Validation          models.ValidationResult `json:"validation"`
	HasAnyProvider      bool                    `json:"hasAnyProvider"`
	RecommendedProvider string                  `json:"recommendedProvider"`
	ActiveProviders     []ActiveProvider        `json:"activeProviders"`
	RequestCounts       map[string]int64        `json:"requestCounts"`
	LastUsedProvider    string                  `json:"lastUsedProvider,omitempty"`
}

// Status returns the current router state.
func (r *Router) Status() Status {
	v := r.Validation()

	active := []ActiveProvider{}
	for _, name := range models.ProviderNames {
		pc := v.Provider(name)
		if !pc.HasValidKey {
			continue
		}
		active = append(active, ActiveProvider{Name: name, Status: pc.Status, Model: pc.Model, KeySource: pc.KeySource})
	}

	r.statsMu.Lock()
	counts := make(map[string]int64, len(r.counts))
	for k, c := range r.counts {
		counts[k] = c
	}
	last := r.lastUsed
	r.statsMu.Unlock()

	return Status{
		Validation:          v,
		HasAnyProvider:      v.HasAnyProvider,
		RecommendedProvider: v.RecommendedProvider,
		ActiveProviders:     active,
		RequestCounts:       counts,
		LastUsedProvider:    last,
	}
}

func moveToFront(order []string, name string) []string {
	i := indexOf(order, name)
	if i <= 0 {
		return order
	}
	out := make([]string, 0, len(order))
	out = append(out, name)
	out = append(out, order[:i]...)
	return append(out, order[i+1:]...)
}

func indexOf(list []string, name string) int {
	for i, v := range list {
		if v == name {
			return i
		}
	}
	return -1
}
