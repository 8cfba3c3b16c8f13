package router

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
	openai "github.com/sashabaranov/go-openai"

	"github.com/legacore/legacore/control-plane/pkg/models"
)

// Request is one generation call as seen by a provider driver.
type Request struct {
	Messages    []models.ChatMessage
	Temperature *float64
	MaxTokens   int
}

// NewRequest builds a request from a prompt and an optional system prompt.
func NewRequest(prompt, systemPrompt string) *Request {
	req := &Request{}
	if systemPrompt != "" {
		req.Messages = append(req.Messages, models.ChatMessage{Role: models.RoleSystem, Content: systemPrompt})
	}
	req.Messages = append(req.Messages, models.ChatMessage{Role: models.RoleUser, Content: prompt})
	return req
}

// Completion is a driver's raw answer.
type Completion struct {
	Text  string
	Model string
	Usage *models.Usage
}

// TextStream yields generated text fragments. Recv returns io.EOF once the
// provider signals completion.
type TextStream interface {
	Recv() (string, error)
	Close() error
}

// Driver is an opaque upstream text-generation backend.
type Driver interface {
	Generate(ctx context.Context, req *Request) (*Completion, error)
	Stream(ctx context.Context, req *Request) (TextStream, error)
}

// ── OpenAI-compatible chat completions ──────────────────────

// Default public endpoints for the known providers.
var DefaultBaseURLs = map[string]string{
	models.ProviderOpenAI:     "https://api.openai.com/v1",
	models.ProviderGroq:       "https://api.groq.com/openai/v1",
	models.ProviderXAI:        "https://api.x.ai/v1",
	models.ProviderOpenRouter: "https://openrouter.ai/api/v1",
}

const (
	defaultTemperature = 0.7
	defaultMaxTokens   = 2000

	dataPrefix = "data:"
	doneMarker = "[DONE]"

	emptyCompletionText = "No response generated"
)

// Endpoint configures a ChatDriver.
type Endpoint struct {
	Provider string
	BaseURL  string
	APIKey   string
	Model    string
	Headers  map[string]string
}

// ChatDriver talks to any provider exposing the OpenAI chat completions API.
type ChatDriver struct {
	ep     Endpoint
	client *resty.Client
}

// NewChatDriver creates a driver for ep. Timeouts and retries are owned by
// the Router, so the client carries neither.
func NewChatDriver(ep Endpoint) *ChatDriver {
	client := resty.New().
		SetBaseURL(strings.TrimRight(ep.BaseURL, "/")).
		SetHeader("Content-Type", "application/json").
		SetHeaders(ep.Headers)
	if ep.APIKey != "" {
		client.SetAuthToken(ep.APIKey)
	}

	client.OnBeforeRequest(func(_ *resty.Client, r *resty.Request) error {
		log.Debug().Str("provider", ep.Provider).Str("url", r.URL).Msg("Provider request")
		return nil
	})
	client.OnAfterResponse(func(_ *resty.Client, r *resty.Response) error {
		log.Debug().Str("provider", ep.Provider).Int("status", r.StatusCode()).Dur("took", r.Time()).Msg("Provider response")
		return nil
	})

	return &ChatDriver{ep: ep, client: client}
}

func (d *ChatDriver) buildRequest(req *Request, stream bool) openai.ChatCompletionRequest {
	msgs := make([]openai.ChatCompletionMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}

	temp := defaultTemperature
	if req.Temperature != nil {
		temp = *req.Temperature
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	return openai.ChatCompletionRequest{
		Model:       d.ep.Model,
		Messages:    msgs,
		Temperature: float32(temp),
		MaxTokens:   maxTokens,
		Stream:      stream,
	}
}

// Generate sends one non-streaming chat completion.
func (d *ChatDriver) Generate(ctx context.Context, req *Request) (*Completion, error) {
	var out openai.ChatCompletionResponse
	var apiErr openai.ErrorResponse

	resp, err := d.client.R().
		SetContext(ctx).
		SetBody(d.buildRequest(req, false)).
		SetResult(&out).
		SetError(&apiErr).
		Post("/chat/completions")
	if err != nil {
		return nil, fmt.Errorf("%s: request failed: %w", d.ep.Provider, err)
	}
	if resp.IsError() {
		return nil, d.statusError(resp.StatusCode(), &apiErr, resp.String())
	}

	text := ""
	if len(out.Choices) > 0 {
		text = out.Choices[0].Message.Content
	}
	if text == "" {
		text = emptyCompletionText
	}

	model := out.Model
	if model == "" {
		model = d.ep.Model
	}

	c := &Completion{Text: text, Model: model}
	if out.Usage.TotalTokens > 0 {
		c.Usage = &models.Usage{
			PromptTokens:     out.Usage.PromptTokens,
			CompletionTokens: out.Usage.CompletionTokens,
			TotalTokens:      out.Usage.TotalTokens,
		}
	}
	return c, nil
}

// Stream opens a server-sent-events chat completion.
func (d *ChatDriver) Stream(ctx context.Context, req *Request) (TextStream, error) {
	resp, err := d.client.R().
		SetContext(ctx).
		SetBody(d.buildRequest(req, true)).
		SetHeader("Accept", "text/event-stream").
		SetDoNotParseResponse(true).
		Post("/chat/completions")
	if err != nil {
		return nil, fmt.Errorf("%s: stream request failed: %w", d.ep.Provider, err)
	}

	body := resp.RawBody()
	if body == nil {
		return nil, fmt.Errorf("%s: stream request failed: empty response body", d.ep.Provider)
	}
	if resp.IsError() {
		defer body.Close()
		raw, _ := io.ReadAll(body)
		var apiErr openai.ErrorResponse
		_ = json.Unmarshal(raw, &apiErr)
		return nil, d.statusError(resp.StatusCode(), &apiErr, string(raw))
	}

	return newSSEStream(body), nil
}

func (d *ChatDriver) statusError(code int, apiErr *openai.ErrorResponse, raw string) error {
	msg := strings.TrimSpace(raw)
	if apiErr != nil && apiErr.Error != nil && apiErr.Error.Message != "" {
		msg = apiErr.Error.Message
	}
	return fmt.Errorf("%s: status %d: %s", d.ep.Provider, code, msg)
}

// sseStream decodes OpenAI-style "data: {...}" lines into text deltas. The
// space after the colon is optional.
type sseStream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
}

func newSSEStream(body io.ReadCloser) *sseStream {
	sc := bufio.NewScanner(body)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &sseStream{body: body, scanner: sc}
}

func (s *sseStream) Recv() (string, error) {
	for s.scanner.Scan() {
		line := strings.TrimSpace(s.scanner.Text())
		if !strings.HasPrefix(line, dataPrefix) {
			continue
		}
		data := strings.TrimPrefix(strings.TrimPrefix(line, dataPrefix), " ")
		if data == doneMarker {
			return "", io.EOF
		}

		var chunk openai.ChatCompletionStreamResponse
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			log.Debug().Err(err).Msg("Skipping undecodable stream chunk")
			continue
		}
		if len(chunk.Choices) == 0 || chunk.Choices[0].Delta.Content == "" {
			continue
		}
		return chunk.Choices[0].Delta.Content, nil
	}
	if err := s.scanner.Err(); err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return "", io.EOF
}

func (s *sseStream) Close() error {
	return s.body.Close()
}
