package trigger

import (
	"context"

	"github.com/strandhq/strand/pkg/models"
	"github.com/strandhq/strand/pkg/protocol"
)

// ScheduleDescriptor returns the static description of the schedule trigger
// node. The cron input configures ingestion; the activator upserts a
// schedule row from it when the deployment goes live.
func ScheduleDescriptor() models.NodeDescriptor {
	return models.NodeDescriptor{
		Type:        models.NodeTypeTriggerSchedule,
		Name:        "Schedule Trigger",
		Description: "Starts the workflow on a cron schedule",
		Category:    models.CategoryTypeTrigger,
		Inputs: []models.ParameterSpec{
			{Name: "cron", Kind: models.ValueKindString, Required: true, Description: "Five-field cron expression, such as */5 * * * *"},
		},
		Outputs: []models.ParameterSpec{
			{Name: "schedule_id", Kind: models.ValueKindString, Description: "Identifier of the schedule that fired"},
			{Name: "cron_expression", Kind: models.ValueKindString, Description: "The schedule's cron expression"},
			{Name: "scheduled_for", Kind: models.ValueKindString, Description: "The slot this firing covers, RFC 3339"},
			{Name: "fired_at", Kind: models.ValueKindString, Description: "When the firing was observed, RFC 3339"},
		},
	}
}

// ScheduleFactory creates schedule trigger nodes.
type ScheduleFactory struct{}

func NewScheduleFactory() protocol.NodeFactory {
	return &ScheduleFactory{}
}

func (f *ScheduleFactory) Create(_ context.Context, id string, _ map[string]any) (protocol.Node, error) {
	return NewScheduleNode(id), nil
}

func (f *ScheduleFactory) ID() string {
	return models.NodeTypeTriggerSchedule
}

func (f *ScheduleFactory) Name() string {
	return "Schedule Trigger"
}

func (f *ScheduleFactory) Description() string {
	return "Starts the workflow on a cron schedule"
}

func (f *ScheduleFactory) Descriptor() models.NodeDescriptor {
	return ScheduleDescriptor()
}
