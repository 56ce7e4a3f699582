package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"waenhancer/internal/constants"
	"waenhancer/internal/errors"
	"waenhancer/internal/metrics"
	"waenhancer/pkg/circuitbreaker"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const serviceName = "gemini"

// Client calls the generateContent endpoint.
type Client struct {
	baseURL    string
	httpClient *http.Client
	breaker    *circuitbreaker.CircuitBreaker
	logger     *logrus.Logger
	tracer     trace.Tracer
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func WithBreaker(cb *circuitbreaker.CircuitBreaker) Option {
	return func(c *Client) { c.breaker = cb }
}

func NewClient(baseURL string, timeout time.Duration, logger *logrus.Logger, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = constants.DefaultAIBaseURL
	}
	if timeout <= 0 {
		timeout = time.Duration(constants.DefaultAITimeoutSec) * time.Second
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
		tracer:     otel.Tracer("waenhancer/gemini"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CountsAsFailure reports whether err should count against the circuit breaker.
// Only transport problems do; a bad key or odd payload says nothing about availability.
func CountsAsFailure(err error) bool {
	return errors.GetCode(err) == errors.ErrCodeNetwork
}

// GenerateContent sends prompt to model and returns the first candidate's text.
// An empty apiKey fails with a configuration error before any request is made.
func (c *Client) GenerateContent(ctx context.Context, apiKey, model, prompt string) (string, error) {
	if strings.TrimSpace(apiKey) == "" {
		metrics.AIRequests.WithLabelValues(string(errors.ErrCodeConfiguration)).Inc()
		return "", errors.NewConfigurationError("aiApiKey", "Gemini API key is not set")
	}
	if model == "" {
		model = constants.DefaultAIModel
	}

	ctx, span := c.tracer.Start(ctx, "gemini.generateContent",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("ai.model", model)))
	defer span.End()

	start := time.Now()
	var text string
	call := func(ctx context.Context) error {
		var err error
		text, err = c.generate(ctx, apiKey, model, prompt)
		return err
	}

	var err error
	if c.breaker != nil {
		err = c.breaker.Execute(ctx, call)
		var cbErr *circuitbreaker.CircuitBreakerError
		if stderrors.As(err, &cbErr) {
			stats := c.breaker.GetStats()
			err = errors.NewNetworkError(serviceName, "generateContent", 0, cbErr).
				WithContext("breaker_failures", stats.Failures).
				WithContext("breaker_rejected", stats.Rejected).
				WithUserMessage("AI service temporarily unavailable")
		}
	} else {
		err = call(ctx)
	}
	metrics.AIRequestDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.AIRequests.WithLabelValues(string(errors.GetCode(err))).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, string(errors.GetCode(err)))
		return "", err
	}
	metrics.AIRequests.WithLabelValues("ok").Inc()
	return text, nil
}

func (c *Client) generate(ctx context.Context, apiKey, model, prompt string) (string, error) {
	body, err := json.Marshal(NewPrompt(prompt))
	if err != nil {
		return "", fmt.Errorf("failed to marshal payload: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v1/models/%s:generateContent", c.baseURL, url.PathEscape(model))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", errors.NewNetworkError(serviceName, "generateContent", 0, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, constants.MaxAIResponseBytes))
	if err != nil {
		return "", errors.NewNetworkError(serviceName, "read response", resp.StatusCode, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := fmt.Sprintf("request failed with status %d", resp.StatusCode)
		var apiErr errorResponse
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Error != nil && apiErr.Error.Message != "" {
			msg = fmt.Sprintf("%s: %s", msg, apiErr.Error.Message)
		}
		c.logger.WithFields(logrus.Fields{
			"status_code": resp.StatusCode,
			"model":       model,
		}).Warn("Gemini request rejected")
		return "", errors.NewNetworkError(serviceName, "generateContent", resp.StatusCode, fmt.Errorf("%s", msg)).
			WithRaw(raw)
	}

	var parsed GenerateContentResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", errors.NewFormatError(serviceName, "response is not valid JSON", raw)
	}
	text, ok := parsed.FirstText()
	if !ok {
		return "", errors.NewFormatError(serviceName, "response has no candidates[0].content.parts[0].text", raw)
	}
	return text, nil
}
