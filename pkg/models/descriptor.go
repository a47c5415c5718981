package models

// ParameterSpec declares a single named input or output of a node type.
type ParameterSpec struct {
	Name        string    `json:"name"        validate:"required,min=1"`
	Kind        ValueKind `json:"kind"        validate:"required"`
	Required    bool      `json:"required"`
	Default     any       `json:"default,omitempty"`
	Hidden      bool      `json:"hidden,omitempty"` // Not shown in the editor palette
	Description string    `json:"description,omitempty"`
}

// NodeDescriptor is the static description of a node type: identity, whether
// its Execute body runs under the durable step log, and the declared ports.
// Descriptors are served to editors and drive graph validation.
type NodeDescriptor struct {
	Type        string          `json:"type"        validate:"required,min=3"`
	Name        string          `json:"name"        validate:"required"`
	Description string          `json:"description"`
	Category    CategoryType    `json:"category"    validate:"required"`
	Durable     bool            `json:"durable"`
	Inputs      []ParameterSpec `json:"inputs"`
	Outputs     []ParameterSpec `json:"outputs"`
}

// CategoryType separates trigger nodes (graph roots materializing trigger
// payloads) from regular action nodes.
type CategoryType string

const (
	CategoryTypeAction  CategoryType = "action"
	CategoryTypeTrigger CategoryType = "trigger"
)

// Built-in trigger node types.
const (
	NodeTypeTriggerManual   = "trigger:manual"
	NodeTypeTriggerWebhook  = "trigger:webhook"
	NodeTypeTriggerSchedule = "trigger:schedule"
	NodeTypeTriggerQueue    = "trigger:queue"
	NodeTypeTriggerEmail    = "trigger:email"
)

// Input returns the input spec with the given name, or nil.
func (d NodeDescriptor) Input(name string) *ParameterSpec {
	for i := range d.Inputs {
		if d.Inputs[i].Name == name {
			return &d.Inputs[i]
		}
	}

	return nil
}

// Output returns the output spec with the given name, or nil.
func (d NodeDescriptor) Output(name string) *ParameterSpec {
	for i := range d.Outputs {
		if d.Outputs[i].Name == name {
			return &d.Outputs[i]
		}
	}

	return nil
}

// InputSchema derives the JSON Schema for this node type's static input
// values. Required inputs are not enforced here: an input fed by an edge is
// satisfied at runtime, so required-ness is checked by the graph validator
// which knows the edges.
func (d NodeDescriptor) InputSchema() *JSONSchema {
	schema := &JSONSchema{
		Type:       "object",
		Title:      d.Name,
		Properties: make(map[string]*Property, len(d.Inputs)),
	}

	for _, in := range d.Inputs {
		schema.Properties[in.Name] = in.property()
	}

	return schema
}

func (p ParameterSpec) property() *Property {
	prop := &Property{
		Description: p.Description,
		Default:     p.Default,
	}

	if p.Kind.IsMedia() {
		// Media inputs are object references
		prop.Type = "object"
		prop.Properties = map[string]*Property{
			"id":   {Type: "string"},
			"mime": {Type: "string"},
			"size": {Type: "number"},
		}
		prop.Required = []string{"id"}

		return prop
	}

	prop.Type = p.Kind.schemaType()

	return prop
}
