package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	apperr "github.com/yungbote/podreach-backend/internal/pkg/errors"
	"github.com/yungbote/podreach-backend/internal/pkg/httpx"
	"github.com/yungbote/podreach-backend/internal/pkg/retry"
	"github.com/yungbote/podreach-backend/internal/platform/logger"
)

// Client is the LLM surface used by enrichment, quality and vetting.
type Client interface {
	// Structured outputs (json_schema)
	GenerateJSON(ctx context.Context, system string, user string, schemaName string, schema map[string]any) (map[string]any, error)

	// Plain text (no schema)
	GenerateText(ctx context.Context, system string, user string) (string, error)
}

type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	Timeout     time.Duration
	MaxRetries  int
	Temperature *float64
}

// WithModel returns a client that uses the provided model for generation calls.
// If model is empty or base is not a *client, base is returned unchanged.
func WithModel(base Client, model string) Client {
	model = strings.TrimSpace(model)
	if base == nil || model == "" {
		return base
	}
	if c, ok := base.(*client); ok {
		clone := *c
		clone.model = model
		clone.noTemp = &noTempCache{seen: map[string]time.Time{}}
		return &clone
	}
	return base
}

type client struct {
	log         *logger.Logger
	baseURL     string
	apiKey      string
	model       string
	httpClient  *http.Client
	policy      retry.Policy
	temperature *float64
	noTemp      *noTempCache
}

// noTempCache remembers models that rejected the temperature parameter.
type noTempCache struct {
	mu   sync.RWMutex
	seen map[string]time.Time
}

const noTempTTL = 24 * time.Hour

func NewClient(log *logger.Logger, cfg Config) (Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, fmt.Errorf("openai: %w: OPENAI_API_KEY", apperr.ErrMissingCredentials)
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = "https://api.openai.com"
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = "gpt-4o-mini"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 180 * time.Second
	}
	policy := retry.APIPolicy
	if cfg.MaxRetries >= 0 {
		policy.Attempts = cfg.MaxRetries
	}
	return &client{
		log:         log.With("service", "OpenAIClient"),
		baseURL:     baseURL,
		apiKey:      apiKey,
		model:       model,
		httpClient:  &http.Client{Timeout: timeout},
		policy:      policy,
		temperature: cfg.Temperature,
		noTemp:      &noTempCache{seen: map[string]time.Time{}},
	}, nil
}

func (c *client) modelIsNoTemp(model string) bool {
	key := strings.ToLower(strings.TrimSpace(model))
	c.noTemp.mu.RLock()
	at, ok := c.noTemp.seen[key]
	c.noTemp.mu.RUnlock()
	return ok && time.Since(at) < noTempTTL
}

func (c *client) noteNoTempModel(model string) {
	key := strings.ToLower(strings.TrimSpace(model))
	c.noTemp.mu.Lock()
	c.noTemp.seen[key] = time.Now()
	c.noTemp.mu.Unlock()
	c.log.Info("Model rejected temperature; omitting it from now on", "model", model)
}

func (c *client) applyTemperature(req *responsesRequest) {
	if c.temperature == nil || c.modelIsNoTemp(req.Model) {
		return
	}
	req.Temperature = c.temperature
}

func isUnsupportedTemperatureParam(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	if !strings.Contains(msg, "temperature") {
		return false
	}
	for _, s := range []string{"unsupported parameter", "unknown parameter", "not supported", "does not support", "only the default", "unsupported_value"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

func (c *client) doOnce(ctx context.Context, path string, body any, out any) error {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return retry.Permanent(err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, &buf)
	if err != nil {
		return retry.Permanent(err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return readErr
	}
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return retry.Permanent(fmt.Errorf("openai: %w: http %d", apperr.ErrMissingCredentials, resp.StatusCode))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &httpx.StatusError{StatusCode: resp.StatusCode, Body: string(raw)}
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return retry.Permanent(fmt.Errorf("openai decode error: %w", err))
	}
	return nil
}

func (c *client) do(ctx context.Context, path string, body any, out any) error {
	return retry.Do(ctx, c.policy, func() error {
		return c.doOnce(ctx, path, body, out)
	}, func(err error, wait time.Duration) {
		c.log.Warn("OpenAI request retrying", "path", path, "sleep", wait.String(), "error", err.Error())
	})
}

// doResponses retries exactly once without temperature if the model rejects it.
func (c *client) doResponses(ctx context.Context, req *responsesRequest, out *responsesResponse) error {
	err := c.do(ctx, "/v1/responses", req, out)
	if err == nil || req.Temperature == nil || !isUnsupportedTemperatureParam(err) {
		return err
	}
	c.noteNoTempModel(req.Model)
	req.Temperature = nil
	return c.do(ctx, "/v1/responses", req, out)
}

type inputMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responsesRequest struct {
	Model string         `json:"model"`
	Input []inputMessage `json:"input"`
	Text  *struct {
		Format map[string]any `json:"format,omitempty"`
	} `json:"text,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
}

type responsesResponse struct {
	Output []struct {
		Type    string `json:"type"`
		Role    string `json:"role,omitempty"`
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text,omitempty"`
		} `json:"content,omitempty"`
	} `json:"output"`
	Refusal string `json:"refusal,omitempty"`
}

func extractOutputText(resp responsesResponse) string {
	var out strings.Builder
	for _, item := range resp.Output {
		if item.Type == "message" && item.Role == "assistant" {
			for _, c := range item.Content {
				if c.Type == "output_text" && c.Text != "" {
					out.WriteString(c.Text)
				}
			}
		}
	}
	return out.String()
}

func (c *client) generate(ctx context.Context, system, user string, format map[string]any) (string, error) {
	ctx, span := otel.Tracer("podreach/openai").Start(ctx, "openai.responses")
	defer span.End()
	span.SetAttributes(attribute.String("llm.model", c.model))

	req := responsesRequest{
		Model: c.model,
		Input: []inputMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
	}
	if format != nil {
		req.Text = &struct {
			Format map[string]any `json:"format,omitempty"`
		}{Format: format}
	}
	c.applyTemperature(&req)

	var resp responsesResponse
	if err := c.doResponses(ctx, &req, &resp); err != nil {
		span.RecordError(err)
		return "", err
	}
	if resp.Refusal != "" {
		return "", fmt.Errorf("model refused: %s", resp.Refusal)
	}
	text := extractOutputText(resp)
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("no output_text found in response")
	}
	return text, nil
}

func (c *client) GenerateJSON(ctx context.Context, system string, user string, schemaName string, schema map[string]any) (map[string]any, error) {
	if schemaName == "" {
		return nil, errors.New("schemaName required")
	}
	if schema == nil {
		return nil, errors.New("schema required")
	}
	jsonText, err := c.generate(ctx, system, user, map[string]any{
		"type":   "json_schema",
		"name":   schemaName,
		"schema": schema,
		"strict": true,
	})
	if err != nil {
		return nil, err
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(jsonText), &obj); err != nil {
		return nil, fmt.Errorf("failed to parse model JSON: %w", err)
	}
	return obj, nil
}

func (c *client) GenerateText(ctx context.Context, system string, user string) (string, error) {
	return c.generate(ctx, system, user, nil)
}
