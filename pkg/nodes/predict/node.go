// Package predict provides the durable AI-prediction node. It creates a
// prediction on an inference service, polls durably until the prediction
// reaches a terminal status, then fetches the full result.
//
// The service contract is POST {service_url}/predictions returning
// {"id","status"} and GET {service_url}/predictions/{id} returning
// {"status","error","output"}. Poll steps persist only the status so the
// step log stays small; the output is fetched outside the log once the
// prediction succeeds, which means a replay re-fetches it instead of
// carrying a possibly large payload through every checkpoint.
package predict

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/strandhq/strand/pkg/durable"
	"github.com/strandhq/strand/pkg/models"
	"github.com/strandhq/strand/pkg/nodes/internal/value"
	"github.com/strandhq/strand/pkg/protocol"
)

const (
	defaultPollInterval = 5 * time.Second
	defaultMaxPolls     = 240
	requestTimeout      = 30 * time.Second
)

// Node runs one prediction per invocation.
type Node struct {
	id     string
	client *http.Client
}

type predictionRef struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type pollResult struct {
	Status string `json:"status"`
	Error  string `json:"error"`
}

type prediction struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Error  string `json:"error"`
	Output any    `json:"output"`
}

func NewNode(id string, config map[string]any) (*Node, error) {
	if raw, ok := config["poll_interval"]; ok {
		if _, err := parseInterval(raw); err != nil {
			return nil, err
		}
	}

	return &Node{
		id:     id,
		client: &http.Client{Timeout: requestTimeout},
	}, nil
}

func (n *Node) Descriptor() models.NodeDescriptor {
	return Descriptor()
}

func (n *Node) Execute(ctx context.Context, ectx *protocol.ExecutionContext) (map[string]any, error) {
	serviceURL, _ := ectx.Inputs["service_url"].(string)
	if serviceURL == "" {
		return nil, errors.New("missing required input 'service_url'")
	}

	serviceURL = strings.TrimRight(serviceURL, "/")

	model, _ := ectx.Inputs["model"].(string)
	if model == "" {
		return nil, errors.New("missing required input 'model'")
	}

	input, ok := ectx.Inputs["input"].(map[string]any)
	if !ok {
		return nil, errors.New("missing required input 'input'")
	}

	integrationID, _ := ectx.Inputs["integration_id"].(string)
	if integrationID == "" {
		return nil, errors.New("missing required input 'integration_id'")
	}

	if ectx.Steps == nil {
		return nil, errors.New("predict node requires a durable step runner")
	}

	interval := defaultPollInterval

	if raw, ok := ectx.Inputs["poll_interval"]; ok {
		parsed, err := parseInterval(raw)
		if err != nil {
			return nil, err
		}

		interval = parsed
	}

	maxPolls := defaultMaxPolls
	if raw, ok := value.Number(ectx.Inputs["max_polls"]); ok && raw >= 1 {
		maxPolls = int(raw)
	}

	token, err := ectx.Integrations.GetValidAccessToken(ctx, integrationID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve integration token: %w", err)
	}

	authorization := "Bearer " + token

	ref, err := durable.Step(ctx, ectx.Steps, "create", func(ctx context.Context) (predictionRef, error) {
		return n.create(ctx, serviceURL, authorization, model, input)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create prediction: %w", err)
	}

	polls := 0

	for polls < maxPolls {
		if err := ectx.Steps.Sleep(ctx, interval); err != nil {
			return nil, err
		}

		polls++

		status, err := durable.Step(ctx, ectx.Steps, fmt.Sprintf("poll-%d", polls), func(ctx context.Context) (pollResult, error) {
			return n.poll(ctx, serviceURL, authorization, ref.ID)
		})
		if err != nil {
			return nil, fmt.Errorf("failed to poll prediction %s: %w", ref.ID, err)
		}

		switch status.Status {
		case "succeeded":
			return n.fetchOutput(ctx, serviceURL, authorization, ref.ID, polls)
		case "failed", "canceled", "cancelled":
			return nil, fmt.Errorf("prediction %s %s: %s", ref.ID, status.Status, status.Error)
		}
	}

	return nil, fmt.Errorf("prediction %s did not finish after %d polls", ref.ID, maxPolls)
}

func (n *Node) create(ctx context.Context, serviceURL, authorization, model string, input map[string]any) (predictionRef, error) {
	var ref predictionRef

	body, err := json.Marshal(map[string]any{
		"model": model,
		"input": input,
	})
	if err != nil {
		return ref, fmt.Errorf("failed to encode prediction request: %w", err)
	}

	if err := n.request(ctx, http.MethodPost, serviceURL+"/predictions", authorization, bytes.NewReader(body), &ref); err != nil {
		return ref, err
	}

	if ref.ID == "" {
		return ref, errors.New("inference service returned no prediction id")
	}

	return ref, nil
}

func (n *Node) poll(ctx context.Context, serviceURL, authorization, predictionID string) (pollResult, error) {
	var status pollResult

	err := n.request(ctx, http.MethodGet, serviceURL+"/predictions/"+predictionID, authorization, nil, &status)

	return status, err
}

// fetchOutput retrieves the full prediction outside the step log.
func (n *Node) fetchOutput(ctx context.Context, serviceURL, authorization, predictionID string, polls int) (map[string]any, error) {
	var result prediction

	if err := n.request(ctx, http.MethodGet, serviceURL+"/predictions/"+predictionID, authorization, nil, &result); err != nil {
		return nil, fmt.Errorf("failed to fetch prediction %s: %w", predictionID, err)
	}

	return map[string]any{
		"output":        result.Output,
		"prediction_id": predictionID,
		"polls":         polls,
	}, nil
}

func (n *Node) request(ctx context.Context, method, url, authorization string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	req.Header.Set("Authorization", authorization)

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("inference service returned HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}

func parseInterval(raw any) (time.Duration, error) {
	interval, ok := value.Duration(raw)
	if !ok || interval <= 0 {
		return 0, fmt.Errorf("invalid poll_interval %v: use seconds or a Go duration string", raw)
	}

	return interval, nil
}
