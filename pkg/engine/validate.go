package engine

import (
	"fmt"
	"sort"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/strandhq/strand/pkg/models"
)

// DescriptorSource resolves node type identifiers to their static
// descriptors. The registry satisfies this.
type DescriptorSource interface {
	NodeDescriptor(nodeType string) (models.NodeDescriptor, error)
}

// Validator checks that a workflow graph can execute before a deployment
// snapshot is taken. A graph that passes never fails structurally at run
// time; node code can still fail on live data.
type Validator struct {
	descriptors DescriptorSource
}

func NewValidator(descriptors DescriptorSource) *Validator {
	return &Validator{descriptors: descriptors}
}

// Validate runs the full rule set and returns a *ValidationError carrying
// every issue found, or nil for a publishable graph.
func (v *Validator) Validate(workflow *models.Workflow) error {
	if len(workflow.Nodes) == 0 {
		return &ValidationError{WorkflowID: workflow.ID, Issues: []error{ErrEmptyWorkflow}}
	}

	var issues []error

	descriptors := make(map[string]models.NodeDescriptor, len(workflow.Nodes))
	seen := make(map[string]bool, len(workflow.Nodes))

	var triggerNodes []string

	for _, node := range workflow.Nodes {
		if seen[node.ID] {
			issues = append(issues, fmt.Errorf("%w: %q", ErrDuplicateNodeID, node.ID))

			continue
		}

		seen[node.ID] = true

		descriptor, err := v.descriptors.NodeDescriptor(node.Type)
		if err != nil {
			issues = append(issues, fmt.Errorf("%w: node %q has type %q", ErrUnknownNodeType, node.ID, node.Type))

			continue
		}

		descriptors[node.ID] = descriptor

		if descriptor.Category == models.CategoryTypeTrigger {
			triggerNodes = append(triggerNodes, node.ID)
		}

		issues = append(issues, v.checkInputLiterals(node, descriptor)...)
	}

	if len(triggerNodes) > 1 {
		issues = append(issues, fmt.Errorf("%w: at most one trigger node per workflow, found %s",
			ErrTriggerPlacement, strings.Join(triggerNodes, ", ")))
	}

	edgeTargets := make(map[string]int)
	adjacency := make(map[string][]string)
	indegree := make(map[string]int)

	for i, edge := range workflow.Edges {
		label := edge.ID
		if label == "" {
			label = fmt.Sprintf("#%d", i)
		}

		issues = append(issues, v.checkEdge(workflow, descriptors, label, edge, edgeTargets, adjacency, indegree)...)
	}

	duplicates := make([]string, 0)

	for port, count := range edgeTargets {
		if count > 1 {
			duplicates = append(duplicates, fmt.Sprintf("%s (%d edges)", port, count))
		}
	}

	sort.Strings(duplicates)

	for _, d := range duplicates {
		issues = append(issues, fmt.Errorf("%w: %s", ErrDuplicateTargetInput, d))
	}

	for _, nodeID := range triggerNodes {
		if indegree[nodeID] > 0 {
			issues = append(issues, fmt.Errorf("%w: trigger node %q has incoming edges", ErrTriggerPlacement, nodeID))
		}
	}

	issues = append(issues, v.checkRequiredInputs(workflow, descriptors, edgeTargets)...)
	issues = append(issues, v.checkAcyclic(workflow, adjacency, indegree)...)

	if len(issues) > 0 {
		return &ValidationError{WorkflowID: workflow.ID, Issues: issues}
	}

	return nil
}

func (v *Validator) checkEdge(
	workflow *models.Workflow,
	descriptors map[string]models.NodeDescriptor,
	label string,
	edge *models.Edge,
	edgeTargets map[string]int,
	adjacency map[string][]string,
	indegree map[string]int,
) []error {
	var issues []error

	sourceNodeID, sourcePort, ok := models.ParsePortID(edge.SourcePort)
	if !ok {
		return []error{fmt.Errorf("%w: edge %s source %q is not a port reference", ErrDanglingEdge, label, edge.SourcePort)}
	}

	targetNodeID, targetPort, ok := models.ParsePortID(edge.TargetPort)
	if !ok {
		return []error{fmt.Errorf("%w: edge %s target %q is not a port reference", ErrDanglingEdge, label, edge.TargetPort)}
	}

	sourceNode := workflow.NodeByID(sourceNodeID)
	if sourceNode == nil {
		return []error{fmt.Errorf("%w: edge %s source node %q does not exist", ErrDanglingEdge, label, sourceNodeID)}
	}

	targetNode := workflow.NodeByID(targetNodeID)
	if targetNode == nil {
		return []error{fmt.Errorf("%w: edge %s target node %q does not exist", ErrDanglingEdge, label, targetNodeID)}
	}

	if !sourceNode.Enabled {
		issues = append(issues, fmt.Errorf("%w: edge %s source node %q", ErrDisabledNodeEdge, label, sourceNodeID))
	}

	if !targetNode.Enabled {
		issues = append(issues, fmt.Errorf("%w: edge %s target node %q", ErrDisabledNodeEdge, label, targetNodeID))
	}

	var output, input *models.ParameterSpec

	if descriptor, ok := descriptors[sourceNodeID]; ok {
		output = descriptor.Output(sourcePort)
		if output == nil {
			issues = append(issues, fmt.Errorf("%w: edge %s source port %q is not an output of %q",
				ErrDanglingEdge, label, sourcePort, sourceNode.Type))
		}
	}

	if descriptor, ok := descriptors[targetNodeID]; ok {
		input = descriptor.Input(targetPort)
		if input == nil {
			issues = append(issues, fmt.Errorf("%w: edge %s target port %q is not an input of %q",
				ErrDanglingEdge, label, targetPort, targetNode.Type))
		}
	}

	if output != nil && input != nil && !output.Kind.CompatibleWith(input.Kind) {
		issues = append(issues, fmt.Errorf("%w: edge %s carries %s into %s", ErrKindMismatch, label, output.Kind, input.Kind))
	}

	edgeTargets[edge.TargetPort]++
	adjacency[sourceNodeID] = append(adjacency[sourceNodeID], targetNodeID)
	indegree[targetNodeID]++

	return issues
}

func (v *Validator) checkRequiredInputs(
	workflow *models.Workflow,
	descriptors map[string]models.NodeDescriptor,
	edgeTargets map[string]int,
) []error {
	var issues []error

	for _, node := range workflow.Nodes {
		descriptor, ok := descriptors[node.ID]
		if !ok || !node.Enabled {
			continue
		}

		for _, in := range descriptor.Inputs {
			if !in.Required || in.Default != nil {
				continue
			}

			if edgeTargets[models.MakePortID(node.ID, in.Name)] > 0 {
				continue
			}

			if _, ok := node.Inputs[in.Name]; ok {
				continue
			}

			issues = append(issues, fmt.Errorf("%w: node %q input %q has no edge, value or default",
				ErrRequiredInputMissing, node.ID, in.Name))
		}
	}

	return issues
}

// checkAcyclic runs Kahn's algorithm over the edge adjacency. Nodes left
// unordered are either on a cycle or downstream of one.
func (v *Validator) checkAcyclic(workflow *models.Workflow, adjacency map[string][]string, indegree map[string]int) []error {
	degree := make(map[string]int, len(workflow.Nodes))

	var queue []string

	for _, node := range workflow.Nodes {
		if _, ok := degree[node.ID]; ok {
			continue
		}

		degree[node.ID] = indegree[node.ID]

		if degree[node.ID] == 0 {
			queue = append(queue, node.ID)
		}
	}

	processed := 0

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		processed++

		for _, next := range adjacency[id] {
			degree[next]--

			if degree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}

	if processed == len(degree) {
		return nil
	}

	var remaining []string

	for id, d := range degree {
		if d > 0 {
			remaining = append(remaining, id)
		}
	}

	sort.Strings(remaining)

	return []error{fmt.Errorf("%w: nodes %s cannot be ordered", ErrGraphCycle, strings.Join(remaining, ", "))}
}

// checkInputLiterals validates the node's static input values against the
// type's derived JSON Schema. Template expressions resolve at execution
// time, so only literal values are checked here.
func (v *Validator) checkInputLiterals(node *models.WorkflowNode, descriptor models.NodeDescriptor) []error {
	literals := make(map[string]any, len(node.Inputs))

	for name, value := range node.Inputs {
		if s, ok := value.(string); ok && strings.Contains(s, "{{") {
			continue
		}

		literals[name] = value
	}

	if len(literals) == 0 {
		return nil
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewGoLoader(descriptor.InputSchema()),
		gojsonschema.NewGoLoader(literals),
	)
	if err != nil {
		return []error{fmt.Errorf("%w: node %q: %w", ErrInputSchemaViolation, node.ID, err)}
	}

	var issues []error

	for _, desc := range result.Errors() {
		issues = append(issues, fmt.Errorf("%w: node %q: %s", ErrInputSchemaViolation, node.ID, desc))
	}

	return issues
}
