// Package render provides the durable render-job node. It submits a job to
// an external render service, polls until the job reaches a terminal status,
// then downloads the produced artifact into the object store.
//
// The service contract is POST {service_url}/jobs returning {"id","status"}
// and GET {service_url}/jobs/{id} returning {"status","progress","error",
// "output_url"}. Submission and every poll are durable steps, so a replay
// after a crash or suspension never resubmits the job; the artifact download
// runs outside the step log and is repeated on replay instead of persisting
// megabytes into it.
package render

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
	defaultPollInterval = 15 * time.Second
	defaultMaxPolls     = 120
	requestTimeout      = 30 * time.Second
	maxArtifactBytes    = 512 << 20
)

// Node runs one render job per invocation.
type Node struct {
	id     string
	client *http.Client
}

type jobSubmission struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type jobStatus struct {
	Status    string  `json:"status"`
	Progress  float64 `json:"progress"`
	Error     string  `json:"error"`
	OutputURL string  `json:"output_url"`
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

	job, ok := ectx.Inputs["job"].(map[string]any)
	if !ok {
		return nil, errors.New("missing required input 'job'")
	}

	if ectx.Steps == nil {
		return nil, errors.New("render node requires a durable step runner")
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

	// Tokens are fetched outside the step log so a replay gets a fresh one
	// instead of a cached, possibly expired credential.
	authorization, err := n.authorization(ctx, ectx)
	if err != nil {
		return nil, err
	}

	submission, err := durable.Step(ctx, ectx.Steps, "submit", func(ctx context.Context) (jobSubmission, error) {
		return n.submit(ctx, serviceURL, authorization, job)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to submit render job: %w", err)
	}

	var (
		status jobStatus
		polls  int
	)

	for polls < maxPolls {
		if err := ectx.Steps.Sleep(ctx, interval); err != nil {
			return nil, err
		}

		polls++

		status, err = durable.Step(ctx, ectx.Steps, fmt.Sprintf("poll-%d", polls), func(ctx context.Context) (jobStatus, error) {
			return n.poll(ctx, serviceURL, authorization, submission.ID)
		})
		if err != nil {
			return nil, fmt.Errorf("failed to poll render job %s: %w", submission.ID, err)
		}

		ectx.ReportProgress(status.Progress)

		switch status.Status {
		case "completed":
			return n.download(ctx, ectx, authorization, submission.ID, status, polls)
		case "failed", "cancelled", "canceled":
			return nil, fmt.Errorf("render job %s %s: %s", submission.ID, status.Status, status.Error)
		}
	}

	return nil, fmt.Errorf("render job %s did not finish after %d polls", submission.ID, maxPolls)
}

func (n *Node) authorization(ctx context.Context, ectx *protocol.ExecutionContext) (string, error) {
	integrationID, _ := ectx.Inputs["integration_id"].(string)
	if integrationID == "" {
		return "", nil
	}

	token, err := ectx.Integrations.GetValidAccessToken(ctx, integrationID)
	if err != nil {
		return "", fmt.Errorf("failed to resolve integration token: %w", err)
	}

	return "Bearer " + token, nil
}

func (n *Node) submit(ctx context.Context, serviceURL, authorization string, job map[string]any) (jobSubmission, error) {
	var submission jobSubmission

	body, err := json.Marshal(job)
	if err != nil {
		return submission, fmt.Errorf("failed to encode job: %w", err)
	}

	if err := n.request(ctx, http.MethodPost, serviceURL+"/jobs", authorization, bytes.NewReader(body), &submission); err != nil {
		return submission, err
	}

	if submission.ID == "" {
		return submission, errors.New("render service returned no job id")
	}

	return submission, nil
}

func (n *Node) poll(ctx context.Context, serviceURL, authorization, jobID string) (jobStatus, error) {
	var status jobStatus

	err := n.request(ctx, http.MethodGet, serviceURL+"/jobs/"+jobID, authorization, nil, &status)

	return status, err
}

// download fetches the finished artifact into the object store. It runs
// outside the step log: after a replay the reference from a previous
// incarnation is gone, so the artifact is fetched again.
func (n *Node) download(ctx context.Context, ectx *protocol.ExecutionContext, authorization, jobID string, status jobStatus, polls int) (map[string]any, error) {
	if status.OutputURL == "" {
		return nil, fmt.Errorf("render job %s completed without an output URL", jobID)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, status.OutputURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create download request: %w", err)
	}

	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download artifact: %w", err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("artifact download failed with HTTP %d", resp.StatusCode)
	}

	mime := resp.Header.Get("Content-Type")
	if mime == "" {
		mime = "application/octet-stream"
	}

	ref, err := ectx.Objects.Write(ctx, io.LimitReader(resp.Body, maxArtifactBytes), mime)
	if err != nil {
		return nil, fmt.Errorf("failed to store artifact: %w", err)
	}

	ectx.ReportProgress(1)

	return map[string]any{
		"artifact": ref.AsValue(),
		"job_id":   jobID,
		"polls":    polls,
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

	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("render service returned HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
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
