package engine

import (
	"github.com/strandhq/strand/pkg/durable"
	"github.com/strandhq/strand/pkg/models"
	"github.com/strandhq/strand/pkg/protocol"
)

// resolveInputs merges the three input layers for one node invocation:
// declared defaults, operator-set statics, then upstream edge values, each
// layer overriding the previous. Edge values come from the source node's
// recorded outputs; readiness gating guarantees those nodes completed.
func resolveInputs(
	workflow *models.Workflow,
	node *models.WorkflowNode,
	descriptor models.NodeDescriptor,
	nodeExecutions map[string]*models.NodeExecution,
) map[string]any {
	inputs := make(map[string]any, len(descriptor.Inputs))

	for _, in := range descriptor.Inputs {
		if in.Default != nil {
			inputs[in.Name] = in.Default
		}
	}

	for name, value := range node.Inputs {
		inputs[name] = value
	}

	for _, edge := range workflow.IncomingEdges(node.ID) {
		sourceNodeID, sourcePort, ok := models.ParsePortID(edge.SourcePort)
		if !ok {
			continue
		}

		_, targetPort, ok := models.ParsePortID(edge.TargetPort)
		if !ok {
			continue
		}

		source, ok := nodeExecutions[sourceNodeID]
		if !ok || source.Outputs == nil {
			continue
		}

		if value, ok := source.Outputs[sourcePort]; ok {
			inputs[targetPort] = value
		}
	}

	return inputs
}

// filterOutputs keeps only the outputs the node type declares. Undeclared
// keys never reach dependents or the execution record.
func filterOutputs(descriptor models.NodeDescriptor, outputs map[string]any) map[string]any {
	if outputs == nil {
		return nil
	}

	filtered := make(map[string]any, len(outputs))

	for _, out := range descriptor.Outputs {
		if value, ok := outputs[out.Name]; ok {
			filtered[out.Name] = value
		}
	}

	return filtered
}

// buildContext assembles the per-invocation execution context handed to
// Execute. Contexts are never reused across invocations.
func (s *Scheduler) buildContext(
	rc *runContext,
	nodeID string,
	inputs map[string]any,
	runner *durable.Runner,
	progress func(float64),
) *protocol.ExecutionContext {
	execution := rc.execution

	ectx := &protocol.ExecutionContext{
		ExecutionID:  execution.ID,
		WorkflowID:   execution.WorkflowID,
		NodeID:       nodeID,
		Inputs:       inputs,
		Variables:    rc.workflow.Variables,
		Env:          s.config.Env,
		Secrets:      s.config.Secrets,
		Integrations: s.integrations,
		Objects:      s.objects,
		Progress:     progress,
		Logger:       s.logger.With("execution_id", execution.ID, "node_id", nodeID),
		TriggerKind:  execution.TriggerKind,
		Trigger:      execution.TriggerData,
		Webhook:      execution.Webhook,
		Email:        execution.Email,
		Queue:        execution.Queue,
		Schedule:     execution.Schedule,
	}

	if runner != nil {
		ectx.Steps = runner
	}

	return ectx
}
