package predict

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strandhq/strand/pkg/durable"
	"github.com/strandhq/strand/pkg/protocol"
	"github.com/strandhq/strand/pkg/testutil"
)

type staticTokens map[string]string

func (s staticTokens) GetValidAccessToken(_ context.Context, integrationID string) (string, error) {
	return s[integrationID], nil
}

// inferenceService fakes the prediction API with a scripted status sequence.
type inferenceService struct {
	creates  atomic.Int32
	polls    atomic.Int32
	statuses []string
	output   any
	lastAuth string
}

func (s *inferenceService) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /predictions", func(w http.ResponseWriter, r *http.Request) {
		s.creates.Add(1)
		s.lastAuth = r.Header.Get("Authorization")
		_ = json.NewEncoder(w).Encode(predictionRef{ID: "P1", Status: "starting"})
	})
	mux.HandleFunc("GET /predictions/P1", func(w http.ResponseWriter, r *http.Request) {
		idx := int(s.polls.Add(1)) - 1
		if idx >= len(s.statuses) {
			idx = len(s.statuses) - 1
		}

		_ = json.NewEncoder(w).Encode(prediction{
			ID:     "P1",
			Status: s.statuses[idx],
			Output: s.output,
		})
	})

	return mux
}

func execute(t *testing.T, steps *testutil.MemoryPersistence, inputs map[string]any, threshold time.Duration) (map[string]any, error) {
	t.Helper()

	runner, err := durable.NewRunner(context.Background(), steps.StepRepository(), "exec-1", "predict-1",
		durable.WithParkThreshold(threshold))
	require.NoError(t, err)

	node, err := NewNode("predict-1", nil)
	require.NoError(t, err)

	return node.Execute(context.Background(), &protocol.ExecutionContext{
		ExecutionID:  "exec-1",
		NodeID:       "predict-1",
		Inputs:       inputs,
		Integrations: staticTokens{"openai": "tok-9"},
		Steps:        runner,
		Logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

func baseInputs(serviceURL string) map[string]any {
	return map[string]any{
		"service_url":    serviceURL,
		"model":          "owl/story-writer",
		"input":          map[string]any{"prompt": "a story about graphs"},
		"integration_id": "openai",
		"poll_interval":  "1ms",
	}
}

func TestExecute_PredictionSucceeds(t *testing.T) {
	service := &inferenceService{
		statuses: []string{"starting", "processing", "succeeded"},
		output:   map[string]any{"text": "Once upon a time"},
	}
	server := httptest.NewServer(service.handler())
	defer server.Close()

	outputs, err := execute(t, testutil.NewMemoryPersistence(), baseInputs(server.URL), time.Second)
	require.NoError(t, err)

	assert.Equal(t, "P1", outputs["prediction_id"])
	assert.Equal(t, 3, outputs["polls"])
	assert.Equal(t, map[string]any{"text": "Once upon a time"}, outputs["output"])
	assert.Equal(t, "Bearer tok-9", service.lastAuth)
	assert.Equal(t, int32(1), service.creates.Load())

	// Three status polls plus the final output fetch
	assert.Equal(t, int32(4), service.polls.Load())
}

func TestExecute_ReplayNeverRecreates(t *testing.T) {
	service := &inferenceService{
		statuses: []string{"processing", "succeeded"},
		output:   "42",
	}
	server := httptest.NewServer(service.handler())
	defer server.Close()

	steps := testutil.NewMemoryPersistence()
	inputs := baseInputs(server.URL)
	inputs["poll_interval"] = "30ms"

	var outputs map[string]any

	for invocation := 1; ; invocation++ {
		require.LessOrEqual(t, invocation, 5, "node did not finish within the expected invocations")

		result, err := execute(t, steps, inputs, time.Millisecond)
		if err == nil {
			outputs = result

			break
		}

		suspend, ok := durable.IsSuspend(err)
		require.True(t, ok, "unexpected error: %v", err)

		time.Sleep(time.Until(suspend.ResumeAt) + 5*time.Millisecond)
	}

	assert.Equal(t, "42", outputs["output"])
	assert.Equal(t, int32(1), service.creates.Load(), "prediction must never be recreated")
}

func TestExecute_PredictionFails(t *testing.T) {
	service := &inferenceService{statuses: []string{"failed"}}
	server := httptest.NewServer(service.handler())
	defer server.Close()

	_, err := execute(t, testutil.NewMemoryPersistence(), baseInputs(server.URL), time.Second)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "prediction P1 failed")
}

func TestExecute_RequiresIntegration(t *testing.T) {
	inputs := baseInputs("http://localhost:9000")
	delete(inputs, "integration_id")

	_, err := execute(t, testutil.NewMemoryPersistence(), inputs, time.Second)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing required input 'integration_id'")
}
