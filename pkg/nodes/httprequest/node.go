// Package httprequest provides the HTTP request node for workflow graph
// execution. URL, headers and body are rendered as templates against the
// execution context before the request is issued.
package httprequest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/strandhq/strand/pkg/models"
	"github.com/strandhq/strand/pkg/nodes/internal/value"
	"github.com/strandhq/strand/pkg/protocol"
	"github.com/strandhq/strand/pkg/template"
)

const (
	defaultTimeoutSeconds = 30
	maxResponseBytes      = 10 << 20
)

var validMethods = map[string]bool{
	http.MethodGet: true, http.MethodPost: true, http.MethodPut: true,
	http.MethodDelete: true, http.MethodPatch: true, http.MethodHead: true,
	http.MethodOptions: true,
}

// Node issues one HTTP request per invocation. Server errors and network
// failures are retried per the retry settings; client errors are not.
type Node struct {
	id string
}

// Config is the parsed input set for one invocation.
type Config struct {
	URL            string
	Method         string
	Headers        map[string]string
	Body           string
	TimeoutSeconds int
	IntegrationID  string
	Retries        RetryConfig
}

// RetryConfig bounds the retry loop.
type RetryConfig struct {
	Attempts int
	DelayMs  int
}

// NewNode validates the static inputs it can see. Presence of required
// inputs is not checked here: they may arrive over edges at execution time.
func NewNode(id string, config map[string]any) (*Node, error) {
	if method, ok := config["method"].(string); ok && method != "" {
		if !validMethods[strings.ToUpper(method)] {
			return nil, fmt.Errorf("invalid HTTP method: %s", method)
		}
	}

	if timeout, ok := value.Number(config["timeout"]); ok {
		if timeout < 1 || timeout > 300 {
			return nil, errors.New("timeout must be between 1 and 300 seconds")
		}
	}

	if retries, ok := config["retries"].(map[string]any); ok {
		if err := validateRetries(retries); err != nil {
			return nil, err
		}
	}

	return &Node{id: id}, nil
}

func validateRetries(retries map[string]any) error {
	if attempts, ok := value.Number(retries["attempts"]); ok {
		if attempts < 1 || attempts > 10 {
			return errors.New("retry attempts must be between 1 and 10")
		}
	}

	if delay, ok := value.Number(retries["delay"]); ok {
		if delay < 0 || delay > 30000 {
			return errors.New("retry delay must be between 0 and 30000 milliseconds")
		}
	}

	return nil
}

func (n *Node) Descriptor() models.NodeDescriptor {
	return Descriptor()
}

// Execute renders the request, issues it and returns the response. Responses
// with status >= 400 fail the node; 5xx and transport errors are retried
// first when retries are configured.
func (n *Node) Execute(ctx context.Context, ectx *protocol.ExecutionContext) (map[string]any, error) {
	config, err := configFromInputs(ectx.Inputs)
	if err != nil {
		return nil, err
	}

	url, err := renderString(config.URL, ectx)
	if err != nil {
		return nil, fmt.Errorf("failed to render URL template: %w", err)
	}

	body := config.Body
	if body != "" {
		body, err = renderBody(config.Body, ectx)
		if err != nil {
			return nil, fmt.Errorf("failed to render body template: %w", err)
		}
	}

	headers := make(map[string]string, len(config.Headers)+1)

	for key, raw := range config.Headers {
		rendered, err := renderString(raw, ectx)
		if err != nil {
			return nil, fmt.Errorf("failed to render header %s: %w", key, err)
		}

		headers[key] = rendered
	}

	if config.IntegrationID != "" {
		token, err := ectx.Integrations.GetValidAccessToken(ctx, config.IntegrationID)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve integration token: %w", err)
		}

		headers["Authorization"] = "Bearer " + token
	}

	var lastErr error

	for attempt := 1; attempt <= config.Retries.Attempts; attempt++ {
		if attempt > 1 {
			select {
			case <-time.After(time.Duration(config.Retries.DelayMs) * time.Millisecond):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		outputs, err := n.perform(ctx, config, url, body, headers)
		if err == nil {
			return outputs, nil
		}

		lastErr = err

		var httpErr *HTTPError
		if errors.As(err, &httpErr) && httpErr.StatusCode < http.StatusInternalServerError {
			break
		}
	}

	if config.Retries.Attempts > 1 {
		return nil, fmt.Errorf("HTTP request failed after %d attempts: %w", config.Retries.Attempts, lastErr)
	}

	return nil, lastErr
}

// HTTPError carries the response status for failed requests so the retry
// loop can tell client errors from server errors.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
}

func (n *Node) perform(ctx context.Context, config Config, url, body string, headers map[string]string) (map[string]any, error) {
	var reqBody io.Reader
	if body != "" {
		reqBody = strings.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, config.Method, url, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	for key, val := range headers {
		req.Header.Set(key, val)
	}

	if body != "" && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	client := &http.Client{
		Timeout: time.Duration(config.TimeoutSeconds) * time.Second,
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, &HTTPError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	outputs := map[string]any{
		"status_code": resp.StatusCode,
		"headers":     headerValues(resp.Header),
		"body":        string(respBody),
	}

	var jsonBody any
	if err := json.Unmarshal(respBody, &jsonBody); err == nil {
		outputs["json"] = jsonBody
	}

	return outputs, nil
}

func configFromInputs(inputs map[string]any) (Config, error) {
	config := Config{
		Method:         http.MethodGet,
		Headers:        make(map[string]string),
		TimeoutSeconds: defaultTimeoutSeconds,
		Retries:        RetryConfig{Attempts: 1},
	}

	url, _ := inputs["url"].(string)
	if url == "" {
		return config, errors.New("missing required input 'url'")
	}

	config.URL = url

	if method, ok := inputs["method"].(string); ok && method != "" {
		config.Method = strings.ToUpper(method)
	}

	if !validMethods[config.Method] {
		return config, fmt.Errorf("invalid HTTP method: %s", config.Method)
	}

	if headers, ok := inputs["headers"].(map[string]any); ok {
		for key, val := range headers {
			if str, ok := val.(string); ok {
				config.Headers[key] = str
			}
		}
	}

	switch body := inputs["body"].(type) {
	case string:
		config.Body = body
	case map[string]any, []any:
		encoded, err := json.Marshal(body)
		if err != nil {
			return config, fmt.Errorf("failed to encode body: %w", err)
		}

		config.Body = string(encoded)
	}

	if timeout, ok := value.Number(inputs["timeout"]); ok {
		config.TimeoutSeconds = int(timeout)
	}

	if integrationID, ok := inputs["integration_id"].(string); ok {
		config.IntegrationID = integrationID
	}

	if retries, ok := inputs["retries"].(map[string]any); ok {
		if attempts, ok := value.Number(retries["attempts"]); ok && attempts >= 1 {
			config.Retries.Attempts = int(attempts)
		}

		if delay, ok := value.Number(retries["delay"]); ok && delay >= 0 {
			config.Retries.DelayMs = int(delay)
		}
	}

	return config, nil
}

func renderString(input string, ectx *protocol.ExecutionContext) (string, error) {
	rendered, err := template.RenderWithContext(input, ectx)
	if err != nil {
		return "", err
	}

	if str, ok := rendered.(string); ok {
		return str, nil
	}

	return fmt.Sprintf("%v", rendered), nil
}

// renderBody keeps structured template output as JSON text instead of Go's
// default formatting, so an object-shaped body template sends valid JSON.
func renderBody(input string, ectx *protocol.ExecutionContext) (string, error) {
	rendered, err := template.RenderWithContext(input, ectx)
	if err != nil {
		return "", err
	}

	switch body := rendered.(type) {
	case string:
		return body, nil
	case map[string]any, []any:
		encoded, err := json.Marshal(body)
		if err != nil {
			return "", err
		}

		return string(encoded), nil
	default:
		return fmt.Sprintf("%v", rendered), nil
	}
}

func headerValues(header http.Header) map[string]any {
	values := make(map[string]any, len(header))
	for key := range header {
		values[key] = header.Get(key)
	}

	return values
}
