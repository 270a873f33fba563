package openai

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

	goopenai "github.com/sashabaranov/go-openai"

	"sales-agent/internal/domain"
)

const (
	defaultBaseURL       = "https://api.openai.com/v1"
	defaultDecisionModel = "gpt-4o-2024-08-06"
	defaultResponseModel = "gpt-4o-mini"
)

// tokenPayload is the expected JSON shape stored in SSM for the API token.
type tokenPayload struct {
	Token string `json:"token"`
}

type Getter interface {
	GetParameter(ctx context.Context, name string) (string, error)
}

// StatusError carries the HTTP status of a failed upstream call.
type StatusError struct {
	StatusCode int
	Err        error
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("openai: upstream status %d: %v", e.StatusCode, e.Err)
}

func (e *StatusError) HTTPStatusCode() int {
	return e.StatusCode
}

func (e *StatusError) Unwrap() error {
	return e.Err
}

// Client is the reasoning backend: structured decisions and reply prose over
// OpenAI chat completions.
type Client struct {
	baseURL       string
	httpClient    *http.Client
	getter        Getter
	paramPrefix   string
	decisionModel string
	responseModel string
	logger        *slog.Logger

	apiOnce sync.Once
	api     *goopenai.Client
	apiErr  error
}

type Option func(*Client)

func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimSpace(baseURL)
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithDecisionModel sets the model used for structured decisions.
func WithDecisionModel(model string) Option {
	return func(c *Client) {
		if m := strings.TrimSpace(model); m != "" {
			c.decisionModel = m
		}
	}
}

// WithResponseModel sets the model used to write reply prose.
func WithResponseModel(model string) Option {
	return func(c *Client) {
		if m := strings.TrimSpace(model); m != "" {
			c.responseModel = m
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewClient creates a Client whose API key is read from
// <paramPrefix>/open-ai-token on first use and kept for the life of the
// process.
func NewClient(ps Getter, paramPrefix string, opts ...Option) (*Client, error) {
	if ps == nil {
		return nil, errors.New("openai: paramstore getter must not be nil")
	}
	paramPrefix = strings.TrimRight(strings.TrimSpace(paramPrefix), "/")
	if paramPrefix == "" {
		return nil, errors.New("openai: parameter prefix must not be empty")
	}
	c := &Client{
		baseURL:       defaultBaseURL,
		httpClient:    &http.Client{Timeout: 30 * time.Second},
		getter:        ps,
		paramPrefix:   paramPrefix,
		decisionModel: defaultDecisionModel,
		responseModel: defaultResponseModel,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// resolveAPI builds the SDK client on the first call. A failed key fetch is
// remembered; the process has to restart to retry it.
func (c *Client) resolveAPI(ctx context.Context) (*goopenai.Client, error) {
	c.apiOnce.Do(func() {
		key, err := fetchAPIKeyFromParamStore(ctx, c.getter, c.tokenParameterName())
		if err != nil {
			c.apiErr = err
			return
		}
		cfg := goopenai.DefaultConfig(key)
		cfg.BaseURL = apiBaseURL(c.baseURL)
		if c.httpClient != nil {
			cfg.HTTPClient = c.httpClient
		}
		c.api = goopenai.NewClientWithConfig(cfg)
	})
	return c.api, c.apiErr
}

func (c *Client) tokenParameterName() string {
	return c.paramPrefix + "/open-ai-token"
}

func apiBaseURL(baseURL string) string {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if base == "" {
		return defaultBaseURL
	}
	if strings.HasSuffix(base, "/v1") {
		return base
	}
	return base + "/v1"
}

type completion struct {
	model       string
	messages    []domain.ChatMessage
	format      *goopenai.ChatCompletionResponseFormat
	temperature float32
	maxTokens   int
}

func (c *Client) complete(ctx context.Context, op string, req completion) (string, error) {
	if req.model == "" {
		return "", errors.New("openai: model must not be empty")
	}
	api, err := c.resolveAPI(ctx)
	if err != nil {
		return "", err
	}

	msgs := make([]goopenai.ChatCompletionMessage, 0, len(req.messages))
	for _, m := range req.messages {
		msgs = append(msgs, goopenai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}
	start := time.Now()
	resp, err := api.CreateChatCompletion(ctx, goopenai.ChatCompletionRequest{
		Model:               req.model,
		Messages:            msgs,
		ResponseFormat:      req.format,
		Temperature:         req.temperature,
		MaxCompletionTokens: req.maxTokens,
	})
	if err != nil {
		return "", upstreamError(op, err)
	}
	c.logger.Debug("openai completion",
		"op", op,
		"model", req.model,
		"duration_ms", time.Since(start).Milliseconds(),
		"total_tokens", resp.Usage.TotalTokens,
	)
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai: %s: no choices in response", op)
	}
	return resp.Choices[0].Message.Content, nil
}

// upstreamError keeps the status code of SDK errors reachable through
// errors.As.
func upstreamError(op string, err error) error {
	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) {
		return &StatusError{StatusCode: apiErr.HTTPStatusCode, Err: fmt.Errorf("%s: %w", op, err)}
	}
	var reqErr *goopenai.RequestError
	if errors.As(err, &reqErr) {
		return &StatusError{StatusCode: reqErr.HTTPStatusCode, Err: fmt.Errorf("%s: %w", op, err)}
	}
	return fmt.Errorf("openai: %s request failed: %w", op, err)
}

// Decide asks for a structured decision for text, given the conversation so
// far. c may be nil.
func (c *Client) Decide(ctx context.Context, text string, conv *domain.ConversationContext) (domain.Decision, error) {
	raw, err := c.complete(ctx, "decide", completion{
		model:     c.decisionModel,
		messages:  buildDecisionMessages(text, conv),
		format:    decisionResponseFormat(),
		maxTokens: 500,
	})
	if err != nil {
		return domain.Decision{}, err
	}
	return parseDecision(raw)
}

// Render rewrites a plain reply as conversational prose.
func (c *Client) Render(ctx context.Context, text string, action domain.Action, base string, vehicles []domain.Vehicle) (string, error) {
	input, err := buildRenderInput(text, action, base, vehicles)
	if err != nil {
		return "", err
	}
	return c.complete(ctx, "render", completion{
		model: c.responseModel,
		messages: []domain.ChatMessage{
			{Role: "system", Content: buildRenderPrompt()},
			{Role: "user", Content: input},
		},
		temperature: 0.7,
		maxTokens:   500,
	})
}

// FinancingProse writes payment plans for a vehicle price.
func (c *Client) FinancingProse(ctx context.Context, text string, price float64) (string, error) {
	return c.complete(ctx, "financing", completion{
		model: c.responseModel,
		messages: []domain.ChatMessage{
			{Role: "system", Content: buildFinancingPrompt()},
			{Role: "user", Content: buildFinancingInput(text, price)},
		},
		temperature: 0.3,
		maxTokens:   800,
	})
}

// InfoProse answers a company question from the info document.
func (c *Client) InfoProse(ctx context.Context, text, info, query string) (string, error) {
	return c.complete(ctx, "info", completion{
		model: c.responseModel,
		messages: []domain.ChatMessage{
			{Role: "system", Content: buildInfoPrompt()},
			{Role: "user", Content: buildInfoInput(text, info, query)},
		},
		temperature: 0.5,
		maxTokens:   800,
	})
}

func decisionResponseFormat() *goopenai.ChatCompletionResponseFormat {
	return &goopenai.ChatCompletionResponseFormat{
		Type: goopenai.ChatCompletionResponseFormatTypeJSONSchema,
		JSONSchema: &goopenai.ChatCompletionResponseFormatJSONSchema{
			Name:   "agent_decision",
			Strict: true,
			Schema: json.RawMessage(`{
				"type":"object",
				"additionalProperties":false,
				"properties":{
					"action":{"type":"string","enum":["search_cars","get_car_details","get_financing_options","get_kavak_info","respond","clarify","out_of_scope"]},
					"make":{"type":["string","null"]},
					"model":{"type":["string","null"]},
					"year":{"type":["integer","null"]},
					"price_max":{"type":["number","null"]},
					"stock_id":{"type":["string","null"]},
					"down_payment":{"type":["number","null"]},
					"duration":{"type":["integer","null"]},
					"info_query":{"type":["string","null"]},
					"message":{"type":["string","null"]},
					"missing_information":{"type":["array","null"],"items":{"type":"string","enum":["make","model","year","price_max"]}},
					"reason":{"type":["string","null"]}
				},
				"required":["action","make","model","year","price_max","stock_id","down_payment","duration","info_query","message","missing_information","reason"]
			}`),
		},
	}
}

func parseDecision(raw string) (domain.Decision, error) {
	var out domain.Decision
	dec := json.NewDecoder(bytes.NewBufferString(strings.TrimSpace(raw)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&out); err != nil {
		return domain.Decision{}, fmt.Errorf("openai: decode decision: %w", err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return domain.Decision{}, errors.New("openai: decode decision: multiple JSON values")
		}
		return domain.Decision{}, fmt.Errorf("openai: decode decision trailing data: %w", err)
	}
	if !out.Action.Valid() {
		return domain.Decision{}, fmt.Errorf("openai: decision has unknown action %q", out.Action)
	}
	for _, f := range out.MissingInformation {
		if !f.Valid() {
			return domain.Decision{}, fmt.Errorf("openai: decision has unknown missing field %q", f)
		}
	}
	return out, nil
}

func fetchAPIKeyFromParamStore(ctx context.Context, getter Getter, name string) (string, error) {
	if getter == nil {
		return "", errors.New("openai: paramstore getter is nil")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("openai: token parameter name is empty")
	}

	raw, err := getter.GetParameter(ctx, name)
	if err != nil {
		return "", fmt.Errorf("openai: fetch token from paramstore: %w", err)
	}
	var tp tokenPayload
	if err := json.Unmarshal([]byte(raw), &tp); err != nil {
		return "", fmt.Errorf("openai: unmarshal paramstore token value as JSON: %w", err)
	}
	if tp.Token == "" {
		return "", fmt.Errorf("openai: API token is empty")
	}
	return tp.Token, nil
}
