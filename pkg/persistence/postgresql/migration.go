package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			-- Workflows: the editable graph definition. Nodes and edges are
			-- stored as documents because the engine always loads whole graphs.
			CREATE TABLE workflows (
				id VARCHAR(255) PRIMARY KEY,
				name VARCHAR(255) NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				status VARCHAR(50) NOT NULL,
				nodes JSONB NOT NULL DEFAULT '[]',
				edges JSONB NOT NULL DEFAULT '[]',
				variables JSONB,
				metadata JSONB,
				owner VARCHAR(255),
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
				published_at TIMESTAMP WITH TIME ZONE,
				deleted_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX idx_workflows_status ON workflows(status);
			CREATE INDEX idx_workflows_owner ON workflows(owner);
			CREATE INDEX idx_workflows_created_at ON workflows(created_at);

			-- Deployments: immutable validated snapshots, one version sequence
			-- per workflow.
			CREATE TABLE deployments (
				id VARCHAR(255) PRIMARY KEY,
				workflow_id VARCHAR(255) NOT NULL,
				version INTEGER NOT NULL,
				snapshot JSONB NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				UNIQUE (workflow_id, version)
			);

			CREATE INDEX idx_deployments_workflow_id ON deployments(workflow_id);

			-- Executions: one row per run, node state folded into a document.
			CREATE TABLE executions (
				id VARCHAR(255) PRIMARY KEY,
				workflow_id VARCHAR(255) NOT NULL,
				deployment_id VARCHAR(255) NOT NULL REFERENCES deployments(id),
				status VARCHAR(50) NOT NULL,
				trigger_kind VARCHAR(50) NOT NULL,
				trigger_payload JSONB,
				node_executions JSONB NOT NULL DEFAULT '{}',
				error_message TEXT,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				started_at TIMESTAMP WITH TIME ZONE,
				finished_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX idx_executions_workflow_id ON executions(workflow_id);
			CREATE INDEX idx_executions_status ON executions(status);
			CREATE INDEX idx_executions_created_at ON executions(created_at);

			-- Durable step logs. The primary key doubles as the append guard:
			-- a second worker replaying the same node hits a unique violation
			-- instead of double-recording a step.
			CREATE TABLE execution_steps (
				execution_id VARCHAR(255) NOT NULL,
				node_id VARCHAR(255) NOT NULL,
				seq INTEGER NOT NULL,
				key VARCHAR(255) NOT NULL,
				kind VARCHAR(20) NOT NULL,
				result JSONB,
				wake_at TIMESTAMP WITH TIME ZONE,
				completed_at TIMESTAMP WITH TIME ZONE NOT NULL,
				PRIMARY KEY (execution_id, node_id, seq)
			);

			CREATE INDEX idx_execution_steps_execution_id ON execution_steps(execution_id);
		`,
		2: `
			-- Migration 2: activator support (integrations and cron schedules)

			CREATE TABLE integrations (
				id VARCHAR(255) PRIMARY KEY,
				owner_id VARCHAR(255) NOT NULL,
				provider VARCHAR(255) NOT NULL,
				access_token TEXT NOT NULL DEFAULT '',
				refresh_token TEXT,
				expires_at TIMESTAMP WITH TIME ZONE,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_integrations_owner_id ON integrations(owner_id);

			CREATE TABLE schedules (
				id VARCHAR(255) PRIMARY KEY,
				deployment_id VARCHAR(255) NOT NULL,
				node_id VARCHAR(255) NOT NULL,
				cron_expression VARCHAR(255) NOT NULL,
				next_due_at TIMESTAMP WITH TIME ZONE NOT NULL,
				active BOOLEAN NOT NULL DEFAULT true,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_schedules_deployment_id ON schedules(deployment_id);
			CREATE INDEX idx_schedules_due ON schedules(next_due_at) WHERE active;
		`,
	}
}
