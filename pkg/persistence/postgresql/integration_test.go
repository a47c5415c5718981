package postgresql_test

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/strandhq/strand/pkg/models"
	"github.com/strandhq/strand/pkg/persistence"
	"github.com/strandhq/strand/pkg/persistence/postgresql"
)

var postgresContainer *postgres.PostgresContainer

func dropDB(ctx context.Context, t *testing.T, databaseURL string) {
	t.Helper()

	db, err := sql.Open("postgres", databaseURL)
	require.NoError(t, err)

	// Drop tables in reverse dependency order (children first, parents last)
	for _, table := range []string{"schedules", "integrations", "execution_steps", "executions", "deployments", "workflows", "schema_migrations"} {
		_, err = db.ExecContext(ctx, "DROP TABLE IF EXISTS "+table+" CASCADE")
		require.NoError(t, err)
	}

	require.NoError(t, db.Close())
}

func setupTestDB(t *testing.T) (*postgresql.Persistence, context.Context) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)

	if postgresContainer == nil || !postgresContainer.IsRunning() {
		var err error

		postgresContainer, err = postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("strand_test"),
			postgres.WithUsername("strand"),
			postgres.WithPassword("strand"),
			postgres.BasicWaitStrategies(),
		)
		require.NoError(t, err)
	}

	databaseURL, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	dropDB(ctx, t, databaseURL)

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	store, err := postgresql.NewPersistence(ctx, logger, databaseURL)
	require.NoError(t, err)

	t.Cleanup(func() {
		dropDB(ctx, t, databaseURL)
		require.NoError(t, store.Close(ctx))
		cancel()
	})

	return store, ctx
}

func buildWorkflow(id string) *models.Workflow {
	return &models.Workflow{
		ID:          id,
		Name:        "Report Pipeline",
		Description: "Fetches a feed and renders a report",
		Status:      models.WorkflowStatusDraft,
		Nodes: []*models.WorkflowNode{
			{ID: "fetch", Type: "httprequest", Name: "Fetch Feed", Enabled: true,
				Inputs: map[string]any{"url": "https://example.com/feed", "method": "GET"}},
			{ID: "render", Type: "render", Name: "Render Report", Enabled: true},
		},
		Edges: []*models.Edge{
			{ID: "e1", SourcePort: "fetch:body", TargetPort: "render:document"},
		},
		Variables: map[string]any{"region": "eu"},
		Owner:     "owner-1",
	}
}

func TestMigrationsAreIdempotent(t *testing.T) {
	store, ctx := setupTestDB(t)

	require.NoError(t, store.HealthCheck(ctx))

	// Re-running migrations against an up-to-date schema is a no-op
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	databaseURL, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	second, err := postgresql.NewPersistence(ctx, logger, databaseURL)
	require.NoError(t, err)
	require.NoError(t, second.Close(ctx))
}

func TestWorkflowRoundTrip(t *testing.T) {
	store, ctx := setupTestDB(t)
	repo := store.WorkflowRepository()

	workflow := buildWorkflow("wf-1")
	require.NoError(t, repo.Save(ctx, workflow))

	stored, err := repo.GetByID(ctx, "wf-1")
	require.NoError(t, err)
	assert.Equal(t, "Report Pipeline", stored.Name)
	require.Len(t, stored.Nodes, 2)
	assert.Equal(t, "httprequest", stored.Nodes[0].Type)
	require.Len(t, stored.Edges, 1)
	assert.Equal(t, "fetch:body", stored.Edges[0].SourcePort)
	assert.Equal(t, map[string]any{"region": "eu"}, stored.Variables)

	stored.Status = models.WorkflowStatusPublished
	require.NoError(t, repo.Save(ctx, stored))

	workflows, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, workflows, 1)
	assert.Equal(t, models.WorkflowStatusPublished, workflows[0].Status)

	require.NoError(t, repo.Delete(ctx, "wf-1"))

	_, err = repo.GetByID(ctx, "wf-1")
	assert.True(t, persistence.IsWorkflowNotFound(err))

	err = repo.Delete(ctx, "wf-1")
	assert.True(t, persistence.IsWorkflowNotFound(err))
}

func TestDeploymentVersioning(t *testing.T) {
	store, ctx := setupTestDB(t)
	repo := store.DeploymentRepository()

	snapshot := buildWorkflow("wf-1")

	for version := 1; version <= 3; version++ {
		require.NoError(t, repo.Create(ctx, &models.Deployment{
			ID:         fmt.Sprintf("dep-%d", version),
			WorkflowID: "wf-1",
			Version:    version,
			Snapshot:   snapshot,
			CreatedAt:  time.Now().UTC(),
		}))
	}

	t.Run("duplicate version is rejected", func(t *testing.T) {
		err := repo.Create(ctx, &models.Deployment{
			ID:         "dep-dup",
			WorkflowID: "wf-1",
			Version:    3,
			Snapshot:   snapshot,
			CreatedAt:  time.Now().UTC(),
		})
		assert.ErrorIs(t, err, persistence.ErrDeploymentExists)
	})

	t.Run("current picks the highest version", func(t *testing.T) {
		current, err := repo.CurrentByWorkflow(ctx, "wf-1")
		require.NoError(t, err)
		assert.Equal(t, 3, current.Version)
		require.NotNil(t, current.Snapshot)
		assert.Len(t, current.Snapshot.Nodes, 2)
	})

	t.Run("list is version ordered", func(t *testing.T) {
		deployments, err := repo.ListByWorkflow(ctx, "wf-1")
		require.NoError(t, err)
		require.Len(t, deployments, 3)
		assert.Equal(t, 1, deployments[0].Version)
		assert.Equal(t, 3, deployments[2].Version)
	})
}

func TestExecutionRoundTrip(t *testing.T) {
	store, ctx := setupTestDB(t)

	deployment := &models.Deployment{
		ID:         "dep-1",
		WorkflowID: "wf-1",
		Version:    1,
		Snapshot:   buildWorkflow("wf-1"),
		CreatedAt:  time.Now().UTC(),
	}
	require.NoError(t, store.DeploymentRepository().Create(ctx, deployment))

	repo := store.ExecutionRepository()

	execution := models.NewExecution("exec-1", deployment, models.TriggerKindWebhook)
	execution.Status = models.ExecutionStatusSubmitted
	execution.Webhook = &models.WebhookRequest{
		Method:     "POST",
		Path:       "/hooks/report",
		Body:       json.RawMessage(`{"event":"push"}`),
		ReceivedAt: time.Now().UTC(),
	}

	require.NoError(t, repo.Create(ctx, execution))

	t.Run("duplicate create is rejected", func(t *testing.T) {
		err := repo.Create(ctx, execution)
		assert.ErrorIs(t, err, persistence.ErrExecutionExists)
	})

	t.Run("trigger payload maps back onto its kind", func(t *testing.T) {
		stored, err := repo.GetByID(ctx, "exec-1")
		require.NoError(t, err)
		assert.Equal(t, models.TriggerKindWebhook, stored.TriggerKind)
		require.NotNil(t, stored.Webhook)
		assert.Equal(t, "/hooks/report", stored.Webhook.Path)
		assert.Nil(t, stored.TriggerData)
	})

	t.Run("update persists node state", func(t *testing.T) {
		stored, err := repo.GetByID(ctx, "exec-1")
		require.NoError(t, err)

		now := time.Now().UTC()
		stored.Status = models.ExecutionStatusExecuting
		stored.StartedAt = &now
		stored.NodeExecutions["fetch"] = &models.NodeExecution{
			NodeID:   "fetch",
			Status:   models.NodeStatusCompleted,
			Outputs:  map[string]any{"status_code": float64(200)},
			Progress: 1,
		}
		require.NoError(t, repo.Update(ctx, stored))

		again, err := repo.GetByID(ctx, "exec-1")
		require.NoError(t, err)
		assert.Equal(t, models.ExecutionStatusExecuting, again.Status)
		require.NotNil(t, again.StartedAt)
		require.NotNil(t, again.NodeExecutions["fetch"])
		assert.Equal(t, float64(200), again.NodeExecutions["fetch"].Outputs["status_code"])
	})

	t.Run("list by workflow", func(t *testing.T) {
		executions, err := repo.ListByWorkflow(ctx, "wf-1")
		require.NoError(t, err)
		assert.Len(t, executions, 1)
	})

	t.Run("update of missing execution", func(t *testing.T) {
		ghost := models.NewExecution("ghost", deployment, models.TriggerKindManual)
		ghost.TriggerData = map[string]any{}
		err := repo.Update(ctx, ghost)
		assert.True(t, persistence.IsExecutionNotFound(err))
	})
}

func TestStepLogAppendGuard(t *testing.T) {
	store, ctx := setupTestDB(t)
	repo := store.StepRepository()

	record := func(nodeID string, seq int, key string) *models.StepRecord {
		return &models.StepRecord{
			ExecutionID: "exec-1",
			NodeID:      nodeID,
			Seq:         seq,
			Key:         key,
			Kind:        models.StepKindStep,
			Result:      json.RawMessage(`{"job_id":"j-42"}`),
			CompletedAt: time.Now().UTC(),
		}
	}

	require.NoError(t, repo.AppendStep(ctx, record("render", 0, "submit")))
	require.NoError(t, repo.AppendStep(ctx, record("render", 1, "poll")))

	t.Run("same sequence twice conflicts", func(t *testing.T) {
		err := repo.AppendStep(ctx, record("render", 1, "poll"))
		assert.True(t, persistence.IsStepConflict(err))
	})

	t.Run("other nodes are unaffected", func(t *testing.T) {
		require.NoError(t, repo.AppendStep(ctx, record("predict", 0, "call")))
	})

	t.Run("list preserves order and payload", func(t *testing.T) {
		steps, err := repo.ListSteps(ctx, "exec-1", "render")
		require.NoError(t, err)
		require.Len(t, steps, 2)
		assert.Equal(t, "submit", steps[0].Key)
		assert.JSONEq(t, `{"job_id":"j-42"}`, string(steps[0].Result))
	})

	t.Run("sleep records keep wake time", func(t *testing.T) {
		wakeAt := time.Now().UTC().Add(time.Minute).Truncate(time.Millisecond)
		sleep := record("render", 2, "sleep")
		sleep.Kind = models.StepKindSleep
		sleep.Result = nil
		sleep.WakeAt = &wakeAt
		require.NoError(t, repo.AppendStep(ctx, sleep))

		steps, err := repo.ListSteps(ctx, "exec-1", "render")
		require.NoError(t, err)
		require.Len(t, steps, 3)
		require.NotNil(t, steps[2].WakeAt)
		assert.WithinDuration(t, wakeAt, *steps[2].WakeAt, time.Millisecond)
	})

	t.Run("delete clears the execution log", func(t *testing.T) {
		require.NoError(t, repo.DeleteSteps(ctx, "exec-1"))

		steps, err := repo.ListSteps(ctx, "exec-1", "render")
		require.NoError(t, err)
		assert.Empty(t, steps)
	})
}

func TestIntegrationAndScheduleRepositories(t *testing.T) {
	store, ctx := setupTestDB(t)

	t.Run("integration round-trip", func(t *testing.T) {
		repo := store.IntegrationRepository()

		integration := &models.Integration{
			ID:           "int-1",
			OwnerID:      "owner-1",
			Provider:     "modelapi",
			AccessToken:  "token-abc",
			RefreshToken: "refresh-xyz",
			ExpiresAt:    time.Now().UTC().Add(time.Hour).Truncate(time.Millisecond),
		}
		require.NoError(t, repo.Save(ctx, integration))

		stored, err := repo.GetByID(ctx, "int-1")
		require.NoError(t, err)
		assert.Equal(t, "token-abc", stored.AccessToken)
		assert.WithinDuration(t, integration.ExpiresAt, stored.ExpiresAt, time.Millisecond)

		mine, err := repo.ListByOwner(ctx, "owner-1")
		require.NoError(t, err)
		assert.Len(t, mine, 1)

		require.NoError(t, repo.Delete(ctx, "int-1"))
		assert.ErrorIs(t, repo.Delete(ctx, "int-1"), persistence.ErrIntegrationNotFound)
	})

	t.Run("due schedules query", func(t *testing.T) {
		repo := store.ScheduleRepository()
		now := time.Now().UTC()

		save := func(id string, due time.Time, active bool) {
			require.NoError(t, repo.Save(ctx, &models.Schedule{
				ID:             id,
				DeploymentID:   "dep-1",
				NodeID:         "cron",
				CronExpression: "0 * * * *",
				NextDueAt:      due,
				Active:         active,
			}))
		}

		save("sch-due", now.Add(-time.Minute), true)
		save("sch-future", now.Add(time.Hour), true)
		save("sch-off", now.Add(-time.Hour), false)

		due, err := repo.Due(ctx, now, 10)
		require.NoError(t, err)
		require.Len(t, due, 1)
		assert.Equal(t, "sch-due", due[0].ID)

		require.NoError(t, repo.DeleteByDeployment(ctx, "dep-1"))

		due, err = repo.Due(ctx, now, 10)
		require.NoError(t, err)
		assert.Empty(t, due)
	})
}
