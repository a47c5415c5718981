package web_test

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strandhq/strand/pkg/eventbus"
	"github.com/strandhq/strand/pkg/models"
	"github.com/strandhq/strand/pkg/objectstore"
	"github.com/strandhq/strand/pkg/registry"
	"github.com/strandhq/strand/pkg/services"
	"github.com/strandhq/strand/pkg/testutil"
	"github.com/strandhq/strand/pkg/web"
)

const testSigningSecret = "strand-test-secret"

type stubPublisher struct {
	published []eventbus.Event
}

func (p *stubPublisher) Publish(_ context.Context, _ string, event eventbus.Event) error {
	p.published = append(p.published, event)

	return nil
}

type testAPI struct {
	app     *fiber.App
	store   *testutil.MemoryPersistence
	objects *objectstore.Store
}

func setupTestAPI(t *testing.T) *testAPI {
	t.Helper()

	store := testutil.NewMemoryPersistence()

	objects, err := objectstore.NewStore(t.TempDir(), "", []byte(testSigningSecret), slog.Default())
	require.NoError(t, err)

	registryInstance := registry.NewRegistry(slog.Default())
	registryInstance.RegisterDefaultNodes()

	handlers := web.NewAPIHandlers(
		services.NewWorkflow(store),
		services.NewNode(store, registryInstance),
		services.NewPublishing(store, registryInstance),
		services.NewExecution(store, &stubPublisher{}, slog.Default()),
		objects,
		validator.New(validator.WithRequiredStructEnabled()),
		registryInstance,
	)

	app := fiber.New()
	handlers.Register(app)

	return &testAPI{app: app, store: store, objects: objects}
}

func (a *testAPI) request(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()

	var reader io.Reader

	if body != nil {
		if str, ok := body.(string); ok {
			reader = strings.NewReader(str)
		} else {
			payload, err := json.Marshal(body)
			require.NoError(t, err)
			reader = bytes.NewReader(payload)
		}
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.app.Test(req)
	require.NoError(t, err)

	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()

	defer func() { _ = resp.Body.Close() }()

	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))

	return out
}

func (a *testAPI) createWorkflow(t *testing.T, name string) models.Workflow {
	t.Helper()

	resp := a.request(t, http.MethodPost, "/workflows", web.CreateWorkflowRequest{
		Name:  name,
		Owner: "test-user",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	return decodeBody[models.Workflow](t, resp)
}

func (a *testAPI) addNode(t *testing.T, workflowID string, req web.CreateNodeRequest) models.WorkflowNode {
	t.Helper()

	resp := a.request(t, http.MethodPost, "/workflows/"+workflowID+"/nodes", req)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	return decodeBody[models.WorkflowNode](t, resp)
}

// publishableWorkflow builds a workflow with a manual trigger wired into a
// transform through the graph editing endpoints.
func (a *testAPI) publishableWorkflow(t *testing.T) models.Workflow {
	t.Helper()

	workflow := a.createWorkflow(t, "Order Sync")

	start := a.addNode(t, workflow.ID, web.CreateNodeRequest{
		Type:    models.NodeTypeTriggerManual,
		Name:    "Start",
		Enabled: true,
	})
	shape := a.addNode(t, workflow.ID, web.CreateNodeRequest{
		Type:    "transform",
		Name:    "Shape",
		Inputs:  map[string]any{"expression": "{{ .inputs.data }}"},
		Enabled: true,
	})

	resp := a.request(t, http.MethodPost, "/workflows/"+workflow.ID+"/edges", web.ConnectRequest{
		SourcePort: models.MakePortID(start.ID, "data"),
		TargetPort: models.MakePortID(shape.ID, "data"),
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	_ = resp.Body.Close()

	return workflow
}

func (a *testAPI) publish(t *testing.T, workflowID string) models.Deployment {
	t.Helper()

	resp := a.request(t, http.MethodPost, "/workflows/"+workflowID+"/publish", nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	return decodeBody[models.Deployment](t, resp)
}

func TestCreateWorkflow(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		requestBody    any
		expectedStatus int
	}{
		{
			name: "successful creation",
			requestBody: web.CreateWorkflowRequest{
				Name:        "Test Workflow",
				Description: "Test Description",
				Owner:       "test-user",
				Variables:   map[string]any{"env": "test"},
			},
			expectedStatus: http.StatusCreated,
		},
		{
			name: "missing name",
			requestBody: web.CreateWorkflowRequest{
				Owner: "test-user",
			},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name: "name too short",
			requestBody: web.CreateWorkflowRequest{
				Name:  "Te",
				Owner: "test-user",
			},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name: "missing owner",
			requestBody: web.CreateWorkflowRequest{
				Name: "Test Workflow",
			},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "invalid JSON",
			requestBody:    "not-json",
			expectedStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			api := setupTestAPI(t)

			resp := api.request(t, http.MethodPost, "/workflows", tt.requestBody)

			defer func() { _ = resp.Body.Close() }()

			assert.Equal(t, tt.expectedStatus, resp.StatusCode)

			if tt.expectedStatus == http.StatusCreated {
				workflow := decodeBody[models.Workflow](t, resp)
				assert.NotEmpty(t, workflow.ID)
				assert.Equal(t, "Test Workflow", workflow.Name)
				assert.Equal(t, models.WorkflowStatusDraft, workflow.Status)
				assert.Empty(t, workflow.Nodes)
			}
		})
	}
}

func TestUpdateWorkflow(t *testing.T) {
	t.Parallel()

	api := setupTestAPI(t)
	workflow := api.createWorkflow(t, "Original Name")

	name := "Updated Name"
	resp := api.request(t, http.MethodPatch, "/workflows/"+workflow.ID, web.UpdateWorkflowRequest{
		Name:      &name,
		Variables: map[string]any{"env": "production"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	updated := decodeBody[models.Workflow](t, resp)
	assert.Equal(t, "Updated Name", updated.Name)
	assert.Equal(t, "production", updated.Variables["env"])
	assert.Equal(t, workflow.Owner, updated.Owner)
}

func TestUpdateWorkflow_NotFound(t *testing.T) {
	t.Parallel()

	api := setupTestAPI(t)

	name := "New Name"
	resp := api.request(t, http.MethodPatch, "/workflows/missing", web.UpdateWorkflowRequest{Name: &name})

	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestDeleteWorkflow(t *testing.T) {
	t.Parallel()

	api := setupTestAPI(t)
	workflow := api.createWorkflow(t, "Disposable")

	resp := api.request(t, http.MethodDelete, "/workflows/"+workflow.ID, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = api.request(t, http.MethodGet, "/workflows/"+workflow.ID, nil)

	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestDeleteWorkflow_PublishedIsConflict(t *testing.T) {
	t.Parallel()

	api := setupTestAPI(t)
	workflow := api.publishableWorkflow(t)
	api.publish(t, workflow.ID)

	resp := api.request(t, http.MethodDelete, "/workflows/"+workflow.ID, nil)

	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestGetWorkflows(t *testing.T) {
	t.Parallel()

	api := setupTestAPI(t)
	api.createWorkflow(t, "First Workflow")
	api.createWorkflow(t, "Second Workflow")

	resp := api.request(t, http.MethodGet, "/workflows/?limit=1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	page := decodeBody[struct {
		Workflows   []models.Workflow `json:"workflows"`
		TotalCount  int               `json:"total_count"`
		HasNextPage bool              `json:"has_next_page"`
	}](t, resp)

	assert.Len(t, page.Workflows, 1)
	assert.Equal(t, 2, page.TotalCount)
	assert.True(t, page.HasNextPage)
}

func TestGetWorkflows_InvalidSortField(t *testing.T) {
	t.Parallel()

	api := setupTestAPI(t)

	resp := api.request(t, http.MethodGet, "/workflows/?sort_by=color", nil)

	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestWorkflowNodeEndpoints(t *testing.T) {
	t.Parallel()

	api := setupTestAPI(t)
	workflow := api.createWorkflow(t, "Graph Editing")

	node := api.addNode(t, workflow.ID, web.CreateNodeRequest{
		Type:    "log",
		Name:    "Audit",
		Inputs:  map[string]any{"level": "info"},
		Enabled: true,
	})
	assert.Equal(t, "log", node.Type)
	assert.NotEmpty(t, node.ID)

	resp := api.request(t, http.MethodGet, "/workflows/"+workflow.ID+"/nodes/"+node.ID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	fetched := decodeBody[models.WorkflowNode](t, resp)
	assert.Equal(t, "Audit", fetched.Name)

	resp = api.request(t, http.MethodPatch, "/workflows/"+workflow.ID+"/nodes/"+node.ID, web.UpdateNodeRequest{
		Name:    "Audit Trail",
		Inputs:  map[string]any{"level": "warn"},
		Enabled: true,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	updated := decodeBody[models.WorkflowNode](t, resp)
	assert.Equal(t, "Audit Trail", updated.Name)
	assert.Equal(t, "warn", updated.Inputs["level"])

	resp = api.request(t, http.MethodDelete, "/workflows/"+workflow.ID+"/nodes/"+node.ID, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = api.request(t, http.MethodGet, "/workflows/"+workflow.ID+"/nodes/"+node.ID, nil)

	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCreateWorkflowNode_UnknownType(t *testing.T) {
	t.Parallel()

	api := setupTestAPI(t)
	workflow := api.createWorkflow(t, "Graph Editing")

	resp := api.request(t, http.MethodPost, "/workflows/"+workflow.ID+"/nodes", web.CreateNodeRequest{
		Type: "teleport",
		Name: "Nope",
	})

	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestWorkflowEdgeEndpoints(t *testing.T) {
	t.Parallel()

	api := setupTestAPI(t)
	workflow := api.createWorkflow(t, "Graph Wiring")

	start := api.addNode(t, workflow.ID, web.CreateNodeRequest{
		Type: models.NodeTypeTriggerManual, Name: "Start", Enabled: true,
	})
	shape := api.addNode(t, workflow.ID, web.CreateNodeRequest{
		Type: "transform", Name: "Shape",
		Inputs:  map[string]any{"expression": "{{ .inputs.data }}"},
		Enabled: true,
	})

	resp := api.request(t, http.MethodPost, "/workflows/"+workflow.ID+"/edges", web.ConnectRequest{
		SourcePort: models.MakePortID(start.ID, "data"),
		TargetPort: models.MakePortID(shape.ID, "data"),
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	edge := decodeBody[models.Edge](t, resp)
	assert.NotEmpty(t, edge.ID)

	// A second edge into the same input is rejected
	resp = api.request(t, http.MethodPost, "/workflows/"+workflow.ID+"/edges", web.ConnectRequest{
		SourcePort: models.MakePortID(start.ID, "data"),
		TargetPort: models.MakePortID(shape.ID, "data"),
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	_ = resp.Body.Close()

	resp = api.request(t, http.MethodDelete, "/workflows/"+workflow.ID+"/edges/"+edge.ID, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = api.request(t, http.MethodDelete, "/workflows/"+workflow.ID+"/edges/"+edge.ID, nil)

	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCreateWorkflowEdge_BadPort(t *testing.T) {
	t.Parallel()

	api := setupTestAPI(t)
	workflow := api.createWorkflow(t, "Graph Wiring")

	resp := api.request(t, http.MethodPost, "/workflows/"+workflow.ID+"/edges", web.ConnectRequest{
		SourcePort: "no-colon-here",
		TargetPort: "also-bad",
	})

	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestPublishLifecycle(t *testing.T) {
	t.Parallel()

	api := setupTestAPI(t)
	workflow := api.publishableWorkflow(t)

	deployment := api.publish(t, workflow.ID)
	assert.Equal(t, 1, deployment.Version)
	assert.Equal(t, workflow.ID, deployment.WorkflowID)

	resp := api.request(t, http.MethodGet, "/workflows/"+workflow.ID+"/deployments/current", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	current := decodeBody[models.Deployment](t, resp)
	assert.Equal(t, deployment.ID, current.ID)

	second := api.publish(t, workflow.ID)
	assert.Equal(t, 2, second.Version)

	resp = api.request(t, http.MethodGet, "/workflows/"+workflow.ID+"/deployments", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	listing := decodeBody[struct {
		Deployments []models.Deployment `json:"deployments"`
	}](t, resp)
	assert.Len(t, listing.Deployments, 2)

	resp = api.request(t, http.MethodPost, "/workflows/"+workflow.ID+"/unpublish", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	retired := decodeBody[models.Workflow](t, resp)
	assert.Equal(t, models.WorkflowStatusUnpublished, retired.Status)
}

func TestPublishWorkflow_InvalidGraph(t *testing.T) {
	t.Parallel()

	api := setupTestAPI(t)
	workflow := api.createWorkflow(t, "Empty Graph")

	resp := api.request(t, http.MethodPost, "/workflows/"+workflow.ID+"/publish", nil)

	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetCurrentDeployment_NotDeployed(t *testing.T) {
	t.Parallel()

	api := setupTestAPI(t)
	workflow := api.createWorkflow(t, "Never Published")

	resp := api.request(t, http.MethodGet, "/workflows/"+workflow.ID+"/deployments/current", nil)

	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestExecutionLifecycle(t *testing.T) {
	t.Parallel()

	api := setupTestAPI(t)
	workflow := api.publishableWorkflow(t)
	api.publish(t, workflow.ID)

	resp := api.request(t, http.MethodPost, "/workflows/"+workflow.ID+"/executions", web.StartExecutionRequest{
		Data: map[string]any{"order_id": "ord-9"},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	execution := decodeBody[models.Execution](t, resp)
	assert.Equal(t, models.ExecutionStatusSubmitted, execution.Status)
	assert.Equal(t, models.TriggerKindManual, execution.TriggerKind)

	resp = api.request(t, http.MethodGet, "/executions/"+execution.ID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	fetched := decodeBody[models.Execution](t, resp)
	assert.Equal(t, execution.ID, fetched.ID)

	resp = api.request(t, http.MethodGet, "/workflows/"+workflow.ID+"/executions", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	listing := decodeBody[struct {
		Executions []models.Execution `json:"executions"`
	}](t, resp)
	assert.Len(t, listing.Executions, 1)

	// Submitted executions are not running yet, so pause is a conflict
	resp = api.request(t, http.MethodPost, "/executions/"+execution.ID+"/pause", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	_ = resp.Body.Close()

	resp = api.request(t, http.MethodPost, "/executions/"+execution.ID+"/cancel", web.CancelExecutionRequest{
		Reason: "operator request",
	})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	cancelled := decodeBody[models.Execution](t, resp)
	assert.Equal(t, models.ExecutionStatusCancelled, cancelled.Status)
}

func TestStartExecution_NoDeployment(t *testing.T) {
	t.Parallel()

	api := setupTestAPI(t)
	workflow := api.createWorkflow(t, "Not Deployed")

	resp := api.request(t, http.MethodPost, "/workflows/"+workflow.ID+"/executions", nil)

	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestGetExecution_NotFound(t *testing.T) {
	t.Parallel()

	api := setupTestAPI(t)

	resp := api.request(t, http.MethodGet, "/executions/missing", nil)

	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestGetNodeTypes(t *testing.T) {
	t.Parallel()

	api := setupTestAPI(t)

	resp := api.request(t, http.MethodGet, "/nodes", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	catalog := decodeBody[struct {
		Nodes []models.NodeDescriptor `json:"nodes"`
	}](t, resp)

	require.NotEmpty(t, catalog.Nodes)

	types := make([]string, 0, len(catalog.Nodes))
	for _, descriptor := range catalog.Nodes {
		types = append(types, descriptor.Type)
	}

	assert.Contains(t, types, "httprequest")
	assert.Contains(t, types, models.NodeTypeTriggerManual)
}

func TestDownloadObject(t *testing.T) {
	t.Parallel()

	api := setupTestAPI(t)

	ref, err := api.objects.Write(context.Background(), strings.NewReader("rendered frame bytes"), "image/png")
	require.NoError(t, err)

	url, err := api.objects.Presign(*ref, time.Hour)
	require.NoError(t, err)

	resp := api.request(t, http.MethodGet, url, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	defer func() { _ = resp.Body.Close() }()

	content, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "rendered frame bytes", string(content))
	assert.Equal(t, "application/octet-stream", resp.Header.Get("Content-Type"))
}

func TestDownloadObject_BadSignature(t *testing.T) {
	t.Parallel()

	api := setupTestAPI(t)

	ref, err := api.objects.Write(context.Background(), strings.NewReader("secret bytes"), "")
	require.NoError(t, err)

	expires := time.Now().Add(time.Hour).Unix()
	path := fmt.Sprintf("/objects/%s?expires=%d&signature=deadbeef", ref.ID, expires)

	resp := api.request(t, http.MethodGet, path, nil)

	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestDownloadObject_ExpiredLink(t *testing.T) {
	t.Parallel()

	api := setupTestAPI(t)

	ref, err := api.objects.Write(context.Background(), strings.NewReader("stale bytes"), "")
	require.NoError(t, err)

	// Correctly signed but past its expiry
	expires := time.Now().Add(-time.Hour).Unix()
	mac := hmac.New(sha256.New, []byte(testSigningSecret))
	fmt.Fprintf(mac, "%s:%d", ref.ID, expires)
	signature := hex.EncodeToString(mac.Sum(nil))

	path := fmt.Sprintf("/objects/%s?expires=%d&signature=%s", ref.ID, expires, signature)

	resp := api.request(t, http.MethodGet, path, nil)

	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusGone, resp.StatusCode)
}

func TestDownloadObject_MissingParams(t *testing.T) {
	t.Parallel()

	api := setupTestAPI(t)

	resp := api.request(t, http.MethodGet, "/objects/some-id", nil)

	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHealthCheck(t *testing.T) {
	t.Parallel()

	api := setupTestAPI(t)

	resp := api.request(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	health := decodeBody[struct {
		Status string `json:"status"`
	}](t, resp)
	assert.Equal(t, "healthy", health.Status)
}
