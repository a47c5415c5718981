package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func linearWorkflow() *Workflow {
	return &Workflow{
		ID:     "workflow-1",
		Name:   "fetch and transform",
		Status: WorkflowStatusDraft,
		Nodes: []*WorkflowNode{
			{ID: "fetch", Type: "httprequest", Name: "Fetch", Enabled: true},
			{ID: "shape", Type: "transform", Name: "Shape", Enabled: true},
			{ID: "audit", Type: "log", Name: "Audit", Enabled: true},
		},
		Edges: []*Edge{
			{ID: "e1", SourcePort: MakePortID("fetch", "body"), TargetPort: MakePortID("shape", "value")},
			{ID: "e2", SourcePort: MakePortID("shape", "result"), TargetPort: MakePortID("audit", "message")},
		},
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
}

func TestParsePortID(t *testing.T) {
	testCases := []struct {
		name     string
		portID   string
		nodeID   string
		portName string
		ok       bool
	}{
		{
			name:     "well formed",
			portID:   "node-1:result",
			nodeID:   "node-1",
			portName: "result",
			ok:       true,
		},
		{
			name:     "port name containing colon",
			portID:   "node-1:ns:result",
			nodeID:   "node-1",
			portName: "ns:result",
			ok:       true,
		},
		{
			name:   "no separator",
			portID: "node-1",
			ok:     false,
		},
		{
			name:   "empty",
			portID: "",
			ok:     false,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			nodeID, portName, ok := ParsePortID(tc.portID)
			assert.Equal(t, tc.ok, ok)

			if tc.ok {
				assert.Equal(t, tc.nodeID, nodeID)
				assert.Equal(t, tc.portName, portName)
			}
		})
	}
}

func TestMakePortID_RoundTrip(t *testing.T) {
	portID := MakePortID("node-1", "result")
	assert.Equal(t, "node-1:result", portID)

	nodeID, portName, ok := ParsePortID(portID)
	require.True(t, ok)
	assert.Equal(t, "node-1", nodeID)
	assert.Equal(t, "result", portName)
}

func TestWorkflow_NodeByID(t *testing.T) {
	workflow := linearWorkflow()

	node := workflow.NodeByID("shape")
	require.NotNil(t, node)
	assert.Equal(t, "transform", node.Type)

	assert.Nil(t, workflow.NodeByID("missing"))
}

func TestWorkflow_EdgeLookups(t *testing.T) {
	workflow := linearWorkflow()

	incoming := workflow.IncomingEdges("shape")
	require.Len(t, incoming, 1)
	assert.Equal(t, "e1", incoming[0].ID)

	outgoing := workflow.OutgoingEdges("shape")
	require.Len(t, outgoing, 1)
	assert.Equal(t, "e2", outgoing[0].ID)

	assert.Empty(t, workflow.IncomingEdges("fetch"))
	assert.Empty(t, workflow.OutgoingEdges("audit"))
}
