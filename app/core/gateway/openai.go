package gateway

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"

	config "github.com/LEOK66/Modo-sub004/app/configs"
	"github.com/LEOK66/Modo-sub004/app/pkg/types"
)

const systemPrompt = `You are Modo, a personal day-planning coach. You manage the user's workout, nutrition and custom tasks.
When the user asks to see, add, change or remove tasks, or asks for a multi-day plan, call the matching tool instead of answering in prose.
Dates are YYYY-MM-DD and times are HH:MM (24h). When you are unsure of a date, omit it; the app derives it from context.
Deleting a task is destructive: only set confirmed=true after the user explicitly confirmed.`

// OpenAIGateway is the ModelGateway implementation over the chat
// completion API. The coordinator never sees any of this; it only
// receives the extracted tool calls.
type OpenAIGateway struct {
	client openai.Client
	model  string
}

func NewOpenAIGateway(cfg config.ModelConfig) (*OpenAIGateway, error) {
	apiKey := strings.TrimSpace(os.Getenv(cfg.APIKeyEnv))
	if apiKey == "" {
		return nil, fmt.Errorf("gateway: %s is not set", cfg.APIKeyEnv)
	}
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &OpenAIGateway{
		client: openai.NewClient(opts...),
		model:  cfg.Name,
	}, nil
}

func (g *OpenAIGateway) CompleteChat(ctx context.Context, history []types.ChatMessage) (types.ChatResult, error) {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(history)+1)
	messages = append(messages, openai.SystemMessage(systemPrompt))
	for _, msg := range history {
		switch msg.Role {
		case types.ChatRoleUser:
			messages = append(messages, openai.UserMessage(msg.Content))
		case types.ChatRoleAssistant:
			messages = append(messages, openai.AssistantMessage(msg.Content))
		case types.ChatRoleSystem:
			messages = append(messages, openai.SystemMessage(msg.Content))
		case types.ChatRoleTool:
			messages = append(messages, openai.ToolMessage(msg.Content, msg.ToolCallID))
		}
	}

	completion, err := g.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(g.model),
		Messages: messages,
		Tools:    commandTools(),
	})
	if err != nil {
		return types.ChatResult{}, fmt.Errorf("gateway: chat completion: %w", err)
	}
	if len(completion.Choices) == 0 {
		return types.ChatResult{}, fmt.Errorf("gateway: empty completion")
	}

	choice := completion.Choices[0].Message
	result := types.ChatResult{Text: strings.TrimSpace(choice.Content)}
	for _, tc := range choice.ToolCalls {
		result.ToolCalls = append(result.ToolCalls, types.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	return result, nil
}

// commandTools exports the command registry as function tool schemas.
// The parameter shapes mirror what the dispatcher decodes.
func commandTools() []openai.ChatCompletionToolUnionParam {
	taskSchema := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"type":           map[string]interface{}{"type": "string", "enum": []string{"workout", "nutrition", "custom"}},
			"title":          map[string]interface{}{"type": "string"},
			"date":           map[string]interface{}{"type": "string", "description": "YYYY-MM-DD"},
			"time":           map[string]interface{}{"type": "string", "description": "HH:MM, 24h"},
			"category":       map[string]interface{}{"type": "string"},
			"exercises":      map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "object"}},
			"meals":          map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "object"}},
			"total_duration": map[string]interface{}{"type": "integer"},
			"total_calories": map[string]interface{}{"type": "integer"},
		},
		"required": []string{"type", "title", "date"},
	}

	return []openai.ChatCompletionToolUnionParam{
		openai.ChatCompletionFunctionTool(shared.FunctionDefinitionParam{
			Name:        "read_tasks",
			Description: openai.String("List the user's tasks for a date, optionally across a 1-7 day range with category and completion filters."),
			Parameters: shared.FunctionParameters{
				"type": "object",
				"properties": map[string]interface{}{
					"date":       map[string]interface{}{"type": "string", "description": "YYYY-MM-DD"},
					"date_range": map[string]interface{}{"type": "integer", "minimum": 1, "maximum": 7},
					"category":   map[string]interface{}{"type": "string"},
					"is_done":    map[string]interface{}{"type": "boolean"},
				},
				"required": []string{"date"},
			},
		}),
		openai.ChatCompletionFunctionTool(shared.FunctionDefinitionParam{
			Name:        "update_task",
			Description: openai.String("Apply a partial update to one task. Only fields present in updates are changed."),
			Parameters: shared.FunctionParameters{
				"type": "object",
				"properties": map[string]interface{}{
					"task_id": map[string]interface{}{"type": "string"},
					"date":    map[string]interface{}{"type": "string", "description": "YYYY-MM-DD"},
					"updates": map[string]interface{}{"type": "object"},
				},
				"required": []string{"task_id", "date", "updates"},
			},
		}),
		openai.ChatCompletionFunctionTool(shared.FunctionDefinitionParam{
			Name:        "delete_task",
			Description: openai.String("Delete one task. Requires confirmed=true after the user explicitly confirmed."),
			Parameters: shared.FunctionParameters{
				"type": "object",
				"properties": map[string]interface{}{
					"task_id":   map[string]interface{}{"type": "string"},
					"date":      map[string]interface{}{"type": "string", "description": "YYYY-MM-DD"},
					"confirmed": map[string]interface{}{"type": "boolean"},
				},
				"required": []string{"task_id", "date", "confirmed"},
			},
		}),
		openai.ChatCompletionFunctionTool(shared.FunctionDefinitionParam{
			Name:        "create_task",
			Description: openai.String("Create one or more tasks."),
			Parameters: shared.FunctionParameters{
				"type": "object",
				"properties": map[string]interface{}{
					"tasks":  map[string]interface{}{"type": "array", "items": taskSchema},
					"source": map[string]interface{}{"type": "string"},
				},
				"required": []string{"tasks"},
			},
		}),
		openai.ChatCompletionFunctionTool(shared.FunctionDefinitionParam{
			Name:        "generate_multi_day_plan",
			Description: openai.String("Generate workout and/or nutrition tasks for several consecutive days."),
			Parameters: shared.FunctionParameters{
				"type": "object",
				"properties": map[string]interface{}{
					"start_date":        map[string]interface{}{"type": "string", "description": "YYYY-MM-DD"},
					"day_count":         map[string]interface{}{"type": "integer", "minimum": 1, "maximum": 7},
					"include_workout":   map[string]interface{}{"type": "boolean"},
					"include_nutrition": map[string]interface{}{"type": "boolean"},
				},
				"required": []string{"start_date"},
			},
		}),
	}
}
