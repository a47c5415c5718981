package httprequest

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strandhq/strand/pkg/protocol"
)

type staticTokens map[string]string

func (s staticTokens) GetValidAccessToken(_ context.Context, integrationID string) (string, error) {
	return s[integrationID], nil
}

func testContext(inputs map[string]any) *protocol.ExecutionContext {
	return &protocol.ExecutionContext{
		ExecutionID: "exec-1",
		WorkflowID:  "wf-1",
		NodeID:      "http-1",
		Inputs:      inputs,
		Variables:   map[string]any{},
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func TestNewNode(t *testing.T) {
	tests := []struct {
		name        string
		config      map[string]any
		expectError string
	}{
		{
			name:   "empty config is valid",
			config: map[string]any{},
		},
		{
			name:        "invalid method",
			config:      map[string]any{"method": "FETCH"},
			expectError: "invalid HTTP method",
		},
		{
			name:        "timeout out of range",
			config:      map[string]any{"timeout": float64(900)},
			expectError: "timeout must be between",
		},
		{
			name:        "retry attempts out of range",
			config:      map[string]any{"retries": map[string]any{"attempts": float64(50)}},
			expectError: "retry attempts must be between",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewNode("http-1", tt.config)

			if tt.expectError != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.expectError)

				return
			}

			require.NoError(t, err)
		})
	}
}

func TestExecute_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"message": "success"}`))
	}))
	defer server.Close()

	node, err := NewNode("http-1", nil)
	require.NoError(t, err)

	outputs, err := node.Execute(context.Background(), testContext(map[string]any{
		"url": server.URL,
	}))
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, outputs["status_code"])
	assert.Equal(t, `{"message": "success"}`, outputs["body"])
	assert.Equal(t, map[string]any{"message": "success"}, outputs["json"])

	headers, ok := outputs["headers"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "application/json", headers["Content-Type"])
}

func TestExecute_PostsRenderedBody(t *testing.T) {
	var (
		gotBody        []byte
		gotContentType string
		gotAuth        string
	)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		gotContentType = r.Header.Get("Content-Type")
		gotAuth = r.Header.Get("Authorization")

		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id": "order-9"}`))
	}))
	defer server.Close()

	node, err := NewNode("http-1", nil)
	require.NoError(t, err)

	ectx := testContext(map[string]any{
		"url":            server.URL + "/orders",
		"method":         "POST",
		"body":           `{"city": "{{ .vars.city }}"}`,
		"integration_id": "shop",
	})
	ectx.Variables = map[string]any{"city": "Lisbon"}
	ectx.Integrations = staticTokens{"shop": "tok-123"}

	outputs, err := node.Execute(context.Background(), ectx)
	require.NoError(t, err)

	assert.Equal(t, http.StatusCreated, outputs["status_code"])
	assert.JSONEq(t, `{"city": "Lisbon"}`, string(gotBody))
	assert.Equal(t, "application/json", gotContentType)
	assert.Equal(t, "Bearer tok-123", gotAuth)
}

func TestExecute_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)

			return
		}

		_, _ = w.Write([]byte(`ok`))
	}))
	defer server.Close()

	node, err := NewNode("http-1", nil)
	require.NoError(t, err)

	outputs, err := node.Execute(context.Background(), testContext(map[string]any{
		"url":     server.URL,
		"retries": map[string]any{"attempts": float64(3), "delay": float64(1)},
	}))
	require.NoError(t, err)

	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, "ok", outputs["body"])
}

func TestExecute_ClientErrorsAreNotRetried(t *testing.T) {
	var calls atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`missing`))
	}))
	defer server.Close()

	node, err := NewNode("http-1", nil)
	require.NoError(t, err)

	_, err = node.Execute(context.Background(), testContext(map[string]any{
		"url":     server.URL,
		"retries": map[string]any{"attempts": float64(3), "delay": float64(1)},
	}))
	require.Error(t, err)

	assert.Equal(t, int32(1), calls.Load())
	assert.Contains(t, err.Error(), "HTTP 404")
}

func TestExecute_MissingURL(t *testing.T) {
	node, err := NewNode("http-1", nil)
	require.NoError(t, err)

	_, err = node.Execute(context.Background(), testContext(map[string]any{}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing required input 'url'")
}

func TestExecute_TemplatedURL(t *testing.T) {
	var gotPath string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_, _ = w.Write([]byte(`ok`))
	}))
	defer server.Close()

	node, err := NewNode("http-1", nil)
	require.NoError(t, err)

	ectx := testContext(map[string]any{
		"url":  server.URL + "/users/{{ .vars.user_id }}",
		"user": "ignored",
	})
	ectx.Variables = map[string]any{"user_id": "u-42"}

	_, err = node.Execute(context.Background(), ectx)
	require.NoError(t, err)
	assert.Equal(t, "/users/u-42", gotPath)
}
