package tools

// ToolToSchema renders a Tool as the OpenAI-style function-calling schema
// object: {"type": "function", "function": {"name", "description", "parameters"}}.
// This is the one shape every provider in pkg/providers expects, and the
// shape GetDefinitions exposes for system-prompt tool summaries.
func ToolToSchema(tool Tool) map[string]any {
	params := tool.Parameters()
	if params == nil {
		params = map[string]any{"type": "object", "properties": map[string]any{}}
	}

	return map[string]any{
		"type": "function",
		"function": map[string]any{
			"name":        tool.Name(),
			"description": tool.Description(),
			"parameters":  params,
		},
	}
}
