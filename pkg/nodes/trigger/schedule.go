package trigger

import (
	"context"
	"time"

	"github.com/strandhq/strand/pkg/models"
	"github.com/strandhq/strand/pkg/protocol"
)

// ScheduleNode exposes the cron firing that started the execution.
type ScheduleNode struct {
	id string
}

func NewScheduleNode(id string) *ScheduleNode {
	return &ScheduleNode{id: id}
}

func (n *ScheduleNode) Descriptor() models.NodeDescriptor {
	return ScheduleDescriptor()
}

func (n *ScheduleNode) Execute(_ context.Context, ectx *protocol.ExecutionContext) (map[string]any, error) {
	firing, err := ectx.ScheduledFiring()
	if err != nil {
		return nil, err
	}

	return map[string]any{
		"schedule_id":     firing.ScheduleID,
		"cron_expression": firing.CronExpression,
		"scheduled_for":   firing.ScheduledFor.UTC().Format(time.RFC3339),
		"fired_at":        firing.FiredAt.UTC().Format(time.RFC3339),
	}, nil
}
