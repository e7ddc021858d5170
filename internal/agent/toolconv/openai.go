package toolconv

import (
	"encoding/json"

	openai "github.com/sashabaranov/go-openai"

	"github.com/haasonsaas/sentinel/internal/tools"
)

// ToOpenAITools converts tool definitions to OpenAI function schema.
func ToOpenAITools(defs []tools.Definition) []openai.Tool {
	result := make([]openai.Tool, len(defs))
	for i, def := range defs {
		var schemaMap map[string]any
		if err := json.Unmarshal(def.Schema, &schemaMap); err != nil {
			schemaMap = map[string]any{
				"type":       "object",
				"properties": map[string]any{},
			}
		}

		result[i] = openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        def.Name,
				Description: def.Description,
				Parameters:  schemaMap,
			},
		}
	}
	return result
}
