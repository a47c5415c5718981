// Package template renders node configuration strings against the values
// visible to a running node.
package template

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"text/template"
	"time"

	"github.com/strandhq/strand/pkg/protocol"
)

// RenderWithContext evaluates input against the bindings a node sees at
// execution time: resolved inputs, workflow variables, environment and
// secret values, the manual trigger payload, and the execution identity.
func RenderWithContext(input string, executionCtx *protocol.ExecutionContext) (any, error) {
	data := map[string]any{
		"inputs":  executionCtx.Inputs,
		"vars":    executionCtx.Variables,
		"env":     executionCtx.Env,
		"secrets": executionCtx.Secrets,
		"execution": map[string]any{
			"id":          executionCtx.ExecutionID,
			"workflow_id": executionCtx.WorkflowID,
			"node_id":     executionCtx.NodeID,
		},
	}

	if trigger, err := executionCtx.TriggerData(); err == nil {
		data["trigger"] = trigger
	}

	return Render(input, data)
}

// Parse compiles a template string without executing it. Nodes call it at
// validation time so bad expressions fail before an execution starts.
func Parse(templateStr string) (*template.Template, error) {
	tmpl, err := template.
		New("node").
		Funcs(template.FuncMap{
			"now": func() string {
				return time.Now().UTC().Format(time.RFC3339)
			},
		}).Parse(templateStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse template '%s': %w", templateStr, err)
	}

	return tmpl, nil
}

// Render executes a template string against data and coerces the output:
// JSON-looking results are decoded, then numbers and booleans, and anything
// else stays a string.
func Render(templateStr string, data any) (any, error) {
	tmpl, err := Parse(templateStr)
	if err != nil {
		return nil, err
	}

	var buf strings.Builder

	err = tmpl.Execute(&buf, data)
	if err != nil {
		return nil, fmt.Errorf("failed to execute template '%s': %w", templateStr, err)
	}

	result := strings.TrimSpace(buf.String())

	if (strings.HasPrefix(result, "{") && strings.HasSuffix(result, "}")) ||
		(strings.HasPrefix(result, "[") && strings.HasSuffix(result, "]")) {
		var jsonResult any

		err := json.Unmarshal([]byte(result), &jsonResult)
		if err != nil {
			return nil, fmt.Errorf("failed to parse json '%s': %w", templateStr, err)
		}

		return jsonResult, nil
	}

	if num, err := strconv.ParseFloat(result, 64); err == nil {
		return num, nil
	}

	if b, err := strconv.ParseBool(result); err == nil {
		return b, nil
	}

	return result, nil
}
