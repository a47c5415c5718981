package registry

import (
	"github.com/strandhq/strand/pkg/nodes/delay"
	"github.com/strandhq/strand/pkg/nodes/httprequest"
	"github.com/strandhq/strand/pkg/nodes/log"
	"github.com/strandhq/strand/pkg/nodes/merge"
	"github.com/strandhq/strand/pkg/nodes/predict"
	"github.com/strandhq/strand/pkg/nodes/render"
	"github.com/strandhq/strand/pkg/nodes/transform"
	"github.com/strandhq/strand/pkg/nodes/trigger"
)

// RegisterDefaultNodes registers every built-in node factory.
func (r *Registry) RegisterDefaultNodes() {
	// Actions
	r.RegisterNode(httprequest.NewFactory())
	r.RegisterNode(transform.NewFactory())
	r.RegisterNode(log.NewFactory())
	r.RegisterNode(merge.NewFactory())

	// Durable actions
	r.RegisterNode(delay.NewFactory())
	r.RegisterNode(render.NewFactory())
	r.RegisterNode(predict.NewFactory())

	// Triggers
	r.RegisterNode(trigger.NewManualFactory())
	r.RegisterNode(trigger.NewWebhookFactory())
	r.RegisterNode(trigger.NewScheduleFactory())
	r.RegisterNode(trigger.NewQueueFactory())
	r.RegisterNode(trigger.NewEmailFactory())
}
