package tools

import "context"

// ResponseTool is how the LLM ends a monologue turn: its Execute result
// carries BreakLoop=true, so the engine returns Message as the final
// answer instead of looping again.
type ResponseTool struct{}

func NewResponseTool() *ResponseTool {
	return &ResponseTool{}
}

func (t *ResponseTool) Name() string { return "response" }

func (t *ResponseTool) Description() string {
	return "Send the final answer to the user and end this turn. Call this once you have " +
		"everything needed to reply; any other tool call continues the conversation."
}

func (t *ResponseTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"message": map[string]interface{}{
				"type":        "string",
				"description": "The final reply text to show the user.",
			},
		},
		"required": []string{"message"},
	}
}

func (t *ResponseTool) Execute(ctx context.Context, args map[string]interface{}) *ToolResult {
	message, _ := args["message"].(string)
	return BreakResult(message)
}
