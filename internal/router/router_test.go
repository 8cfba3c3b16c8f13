package router_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/legacore/legacore/control-plane/internal/credentials"
	"github.com/legacore/legacore/control-plane/internal/router"
	"github.com/legacore/legacore/control-plane/pkg/models"
)

// mockDriver is a scripted provider.
type mockDriver struct {
	name  string
	fail  bool
	delay time.Duration
	calls atomic.Int64
}

func (d *mockDriver) Generate(ctx context.Context, req *router.Request) (*router.Completion, error) {
	d.calls.Add(1)
	if d.delay > 0 {
		time.Sleep(d.delay)
	}
	if d.fail {
		return nil, fmt.Errorf("%s exploded", d.name)
	}
	return &router.Completion{Text: "hello from " + d.name, Model: d.name + "-model"}, nil
}

func (d *mockDriver) Stream(ctx context.Context, req *router.Request) (router.TextStream, error) {
	d.calls.Add(1)
	if d.fail {
		return nil, fmt.Errorf("%s stream exploded", d.name)
	}
	return &sliceStream{parts: []string{"hel", "lo"}}, nil
}

type sliceStream struct {
	parts  []string
	closed bool
}

func (s *sliceStream) Recv() (string, error) {
	if len(s.parts) == 0 {
		return "", io.EOF
	}
	p := s.parts[0]
	s.parts = s.parts[1:]
	return p, nil
}

func (s *sliceStream) Close() error { s.closed = true; return nil }

var allKeys = credentials.Sources{
	OpenAIPrimary:     "sk-proj-abcdefghijklmnopqrstuvwxyz",
	GroqPrimary:       "gsk_abcdefghijklmnopqrstuvwxyz",
	XAIPrimary:        "grok_abcdefghijklmnopqrstuvwxyz",
	OpenRouterPrimary: "sk-or-v1-abcdefghijklmnopqrstuvwxyz",
}

func newTestRouter(t *testing.T, cfg router.Config, src credentials.Sources, drivers map[string]*mockDriver) *router.Router {
	t.Helper()
	var opts []router.Option
	for name, d := range drivers {
		opts = append(opts, router.WithDriver(name, d))
	}
	return router.New(cfg, src, opts...)
}

func TestGenerate_NoProvidersReturnsFallback(t *testing.T) {
	r := router.New(router.Config{}, credentials.Sources{})

	resp := r.GenerateResponse(context.Background(), "Hello", "")
	assert.True(t, resp.IsFallback())
	assert.Equal(t, models.ProviderMock, resp.Provider)
	assert.NotEmpty(t, resp.Text)
	assert.True(t, strings.HasPrefix(resp.Text, router.UnavailableText))
}

func TestGenerate_ShortCircuitsOnFirstSuccess(t *testing.T) {
	openai := &mockDriver{name: "openai"}
	groq := &mockDriver{name: "groq"}
	r := newTestRouter(t, router.Config{}, allKeys, map[string]*mockDriver{"openai": openai, "groq": groq})

	resp := r.GenerateResponse(context.Background(), "hi", "be nice")
	assert.Equal(t, "openai", resp.Provider)
	assert.Equal(t, "hello from openai", resp.Text)
	assert.EqualValues(t, 1, openai.calls.Load())
	assert.EqualValues(t, 0, groq.calls.Load())

	st := r.Status()
	assert.EqualValues(t, 1, st.RequestCounts["openai"])
	assert.Equal(t, "openai", st.LastUsedProvider)
}

func TestGenerate_RetryBound(t *testing.T) {
	drivers := map[string]*mockDriver{}
	for _, name := range models.ProviderNames {
		drivers[name] = &mockDriver{name: name, fail: true}
	}
	r := newTestRouter(t, router.Config{MaxRetries: 3}, allKeys, drivers)

	resp := r.GenerateResponse(context.Background(), "hi", "")
	assert.Equal(t, models.ProviderFallback, resp.Provider)
	assert.Contains(t, resp.Text, "openrouter exploded")
	assert.Contains(t, resp.Text, "tried 4 provider(s) x 3 retries")

	var total int64
	for _, d := range drivers {
		assert.EqualValues(t, 3, d.calls.Load(), d.name)
		total += d.calls.Load()
	}
	assert.EqualValues(t, len(models.ProviderNames)*3, total)
}

func TestGenerate_SkipsProvidersWithoutKeys(t *testing.T) {
	openai := &mockDriver{name: "openai"}
	groq := &mockDriver{name: "groq"}
	src := credentials.Sources{GroqPrimary: allKeys.GroqPrimary}
	r := newTestRouter(t, router.Config{}, src, map[string]*mockDriver{"openai": openai, "groq": groq})

	resp := r.GenerateResponse(context.Background(), "hi", "")
	assert.Equal(t, "groq", resp.Provider)
	assert.EqualValues(t, 0, openai.calls.Load())
}

func TestGenerate_FallsThroughToNextProvider(t *testing.T) {
	openai := &mockDriver{name: "openai", fail: true}
	groq := &mockDriver{name: "groq"}
	r := newTestRouter(t, router.Config{}, allKeys, map[string]*mockDriver{"openai": openai, "groq": groq})

	resp := r.GenerateResponse(context.Background(), "hi", "")
	assert.Equal(t, "groq", resp.Provider)
	assert.EqualValues(t, 1, openai.calls.Load())
}

func TestGenerate_TimeoutCountsAsFailure(t *testing.T) {
	slow := &mockDriver{name: "openai", delay: 200 * time.Millisecond}
	groq := &mockDriver{name: "groq"}
	r := newTestRouter(t, router.Config{Timeout: 20 * time.Millisecond}, allKeys,
		map[string]*mockDriver{"openai": slow, "groq": groq})

	resp := r.GenerateResponse(context.Background(), "hi", "")
	assert.Equal(t, "groq", resp.Provider)
}

func TestGenerate_PreferredProviderFirst(t *testing.T) {
	openai := &mockDriver{name: "openai"}
	xai := &mockDriver{name: "xai"}
	r := newTestRouter(t, router.Config{PreferredProvider: "xai"}, allKeys,
		map[string]*mockDriver{"openai": openai, "xai": xai})

	resp := r.GenerateResponse(context.Background(), "hi", "")
	assert.Equal(t, "xai", resp.Provider)
	assert.EqualValues(t, 0, openai.calls.Load())
}

func TestGenerate_PreferredProviderIgnoredWithoutKey(t *testing.T) {
	openai := &mockDriver{name: "openai"}
	xai := &mockDriver{name: "xai"}
	src := credentials.Sources{OpenAIPrimary: allKeys.OpenAIPrimary}
	r := newTestRouter(t, router.Config{PreferredProvider: "xai"}, src,
		map[string]*mockDriver{"openai": openai, "xai": xai})

	resp := r.GenerateResponse(context.Background(), "hi", "")
	assert.Equal(t, "openai", resp.Provider)
	assert.EqualValues(t, 0, xai.calls.Load())
}

func TestGenerate_LoadBalancesPair(t *testing.T) {
	openai := &mockDriver{name: "openai"}
	groq := &mockDriver{name: "groq"}
	r := newTestRouter(t, router.Config{LoadBalancing: true, BalancedPair: []string{"openai", "groq"}}, allKeys,
		map[string]*mockDriver{"openai": openai, "groq": groq})

	var got []string
	for i := 0; i < 4; i++ {
		got = append(got, r.GenerateResponse(context.Background(), "hi", "").Provider)
	}
	assert.Equal(t, []string{"openai", "groq", "openai", "groq"}, got)
	assert.EqualValues(t, 2, openai.calls.Load())
	assert.EqualValues(t, 2, groq.calls.Load())
}

func TestStream_ReturnsFirstOpenStream(t *testing.T) {
	openai := &mockDriver{name: "openai", fail: true}
	groq := &mockDriver{name: "groq"}
	r := newTestRouter(t, router.Config{}, allKeys, map[string]*mockDriver{"openai": openai, "groq": groq})

	sr, err := r.StreamText(context.Background(), "hi", "")
	require.NoError(t, err)
	defer sr.Stream.Close()
	assert.Equal(t, "groq", sr.Provider)
	assert.Equal(t, "llama-3.3-70b-versatile", sr.Model)

	var sb strings.Builder
	for {
		part, err := sr.Stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		sb.WriteString(part)
	}
	assert.Equal(t, "hello", sb.String())
}

func TestStream_AllFailReturnsError(t *testing.T) {
	r := router.New(router.Config{}, credentials.Sources{})
	_, err := r.StreamText(context.Background(), "hi", "")
	assert.ErrorIs(t, err, router.ErrNoStreamingProvider)
}

func TestStatus_ActiveProviders(t *testing.T) {
	r := router.New(router.Config{}, credentials.Sources{GroqFallback: allKeys.GroqPrimary})
	st := r.Status()

	assert.True(t, st.HasAnyProvider)
	assert.Equal(t, "groq", st.RecommendedProvider)
	require.Len(t, st.ActiveProviders, 1)
	assert.Equal(t, models.StatusFallback, st.ActiveProviders[0].Status)
	assert.Empty(t, st.LastUsedProvider)
}

func TestRefresh_PicksUpNewKeys(t *testing.T) {
	r := router.New(router.Config{}, credentials.Sources{})
	assert.False(t, r.Status().HasAnyProvider)

	r.Refresh(allKeys)
	assert.True(t, r.Status().HasAnyProvider)
	assert.Equal(t, "openai", r.Status().RecommendedProvider)
}

func TestRefresh_ConcurrentWithGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if strings.HasSuffix(r.URL.Path, "/chat/completions") && r.Header.Get("Accept") == "text/event-stream" {
			w.Header().Set("Content-Type", "text/event-stream")
			fmt.Fprint(w, "data: {\"choices\":[{\"index\":0,\"delta\":{\"content\":\"hi\"}}]}\n\ndata: [DONE]\n\n")
			return
		}
		fmt.Fprint(w, `{"id":"c1","model":"m1","choices":[{"index":0,"message":{"role":"assistant","content":"pong"}}]}`)
	}))
	defer srv.Close()

	cfg := router.Config{
		MaxRetries: 1,
		Timeout:    2 * time.Second,
		BaseURLs: map[string]string{
			"openai":     srv.URL,
			"groq":       srv.URL,
			"xai":        srv.URL,
			"openrouter": srv.URL,
		},
	}
	r := router.New(cfg, allKeys)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; ctx.Err() == nil; i++ {
			if i%2 == 0 {
				r.Refresh(credentials.Sources{})
			} else {
				r.Refresh(allKeys)
			}
		}
	}()

	for i := 0; i < 300; i++ {
		resp := r.GenerateResponse(context.Background(), "ping", "")
		if resp.Provider != models.ProviderMock {
			assert.Equal(t, "pong", resp.Text)
		}
		if sr, err := r.StreamText(context.Background(), "ping", ""); err == nil {
			sr.Stream.Close()
		}
	}
	cancel()
	<-done
}

func TestRoutersDoNotShareState(t *testing.T) {
	a := newTestRouter(t, router.Config{}, allKeys, map[string]*mockDriver{"openai": {name: "openai"}})
	b := newTestRouter(t, router.Config{}, allKeys, map[string]*mockDriver{"openai": {name: "openai"}})

	a.GenerateResponse(context.Background(), "hi", "")
	assert.EqualValues(t, 1, a.Status().RequestCounts["openai"])
	assert.EqualValues(t, 0, b.Status().RequestCounts["openai"])
}

// ── HTTP driver ─────────────────────────────────────────────

func TestChatDriver_Generate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.Equal(t, "LEGACORE Platform", r.Header.Get("X-Title"))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"c1","model":"m1","choices":[{"index":0,"message":{"role":"assistant","content":"pong"}}],"usage":{"prompt_tokens":3,"completion_tokens":1,"total_tokens":4}}`)
	}))
	defer srv.Close()

	d := router.NewChatDriver(router.Endpoint{
		Provider: "openrouter",
		BaseURL:  srv.URL,
		APIKey:   "test-key",
		Model:    "m1",
		Headers:  map[string]string{"X-Title": "LEGACORE Platform"},
	})

	c, err := d.Generate(context.Background(), router.NewRequest("ping", "sys"))
	require.NoError(t, err)
	assert.Equal(t, "pong", c.Text)
	require.NotNil(t, c.Usage)
	assert.Equal(t, 4, c.Usage.TotalTokens)
}

func TestChatDriver_GenerateError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"error":{"message":"quota exceeded","type":"rate_limit"}}`)
	}))
	defer srv.Close()

	d := router.NewChatDriver(router.Endpoint{Provider: "groq", BaseURL: srv.URL, APIKey: "k", Model: "m"})
	_, err := d.Generate(context.Background(), router.NewRequest("ping", ""))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 429")
	assert.Contains(t, err.Error(), "quota exceeded")
}

func TestChatDriver_Stream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"choices\":[{\"index\":0,\"delta\":{\"content\":\"Hel\"}}]}\n\n")
		fmt.Fprint(w, ": keep-alive\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"index\":0,\"delta\":{\"content\":\"lo\"}}]}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	d := router.NewChatDriver(router.Endpoint{Provider: "openai", BaseURL: srv.URL, APIKey: "k", Model: "gpt-4"})
	s, err := d.Stream(context.Background(), router.NewRequest("hi", ""))
	require.NoError(t, err)
	defer s.Close()

	var parts []string
	for {
		p, err := s.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		parts = append(parts, p)
	}
	assert.Equal(t, []string{"Hel", "lo"}, parts)
}

func TestChatDriver_StreamWithoutSpaceAfterData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data:{\"choices\":[{\"index\":0,\"delta\":{\"content\":\"hi\"}}]}\n\n")
		fmt.Fprint(w, "data:[DONE]\n\n")
	}))
	defer srv.Close()

	d := router.NewChatDriver(router.Endpoint{Provider: "groq", BaseURL: srv.URL, APIKey: "k", Model: "m"})
	s, err := d.Stream(context.Background(), router.NewRequest("hi", ""))
	require.NoError(t, err)
	defer s.Close()

	p, err := s.Recv()
	require.NoError(t, err)
	assert.Equal(t, "hi", p)

	_, err = s.Recv()
	assert.ErrorIs(t, err, io.EOF)
}
