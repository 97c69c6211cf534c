// Package openai provides a model.Client implementation backed by the OpenAI
// Chat Completions API. It translates cascade requests into
// openai.ChatCompletionNewParams calls using github.com/openai/openai-go and
// maps responses (text, tool calls, usage) back into the generic model
// structures.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	sdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/cascadekit/cascade/runtime/agent/model"
	"github.com/cascadekit/cascade/runtime/agent/toolregistry"
)

type (
	// ChatCompletionsClient captures the subset of the OpenAI SDK client used
	// by the adapter. Satisfied by the Chat Completions service on *sdk.Client.
	ChatCompletionsClient interface {
		New(ctx context.Context, body sdk.ChatCompletionNewParams, opts ...option.RequestOption) (*sdk.ChatCompletion, error)
	}

	// Options configures optional OpenAI adapter behavior.
	Options struct {
		// DefaultModel is used when Request.Model is empty and ModelClass does
		// not resolve to HighModel/SmallModel.
		DefaultModel string

		// HighModel is used when Request.ModelClass is ModelClassHighReasoning
		// and Request.Model is empty.
		HighModel string

		// SmallModel is used when Request.ModelClass is ModelClassSmall and
		// Request.Model is empty.
		SmallModel string

		// MaxTokens sets the default completion cap when a request does not
		// specify MaxTokens.
		MaxTokens int

		// Temperature is used when a request does not specify Temperature.
		Temperature float64
	}

	// Client implements model.Client via the OpenAI Chat Completions API.
	Client struct {
		chat         ChatCompletionsClient
		defaultModel string
		highModel    string
		smallModel   string
		maxTok       int
		temp         float64
	}
)

// New builds an OpenAI-backed model client from the provided chat client and
// configuration options.
func New(chat ChatCompletionsClient, opts Options) (*Client, error) {
	if chat == nil {
		return nil, errors.New("openai client is required")
	}
	if strings.TrimSpace(opts.DefaultModel) == "" {
		return nil, errors.New("default model identifier is required")
	}
	return &Client{
		chat:         chat,
		defaultModel: opts.DefaultModel,
		highModel:    opts.HighModel,
		smallModel:   opts.SmallModel,
		maxTok:       opts.MaxTokens,
		temp:         opts.Temperature,
	}, nil
}

// NewFromAPIKey constructs a client using the default OpenAI HTTP client. It
// reads OPENAI_API_KEY and related defaults from the environment.
func NewFromAPIKey(apiKey, defaultModel string) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("api key is required")
	}
	sc := sdk.NewClient(option.WithAPIKey(apiKey))
	return New(&sc.Chat.Completions, Options{DefaultModel: defaultModel})
}

// Complete issues a non-streaming chat completion and translates the
// response into the generic planner structures.
func (c *Client) Complete(ctx context.Context, req *model.Request) (*model.Response, error) {
	params, _, err := c.prepareRequest(req)
	if err != nil {
		return nil, err
	}
	resp, err := c.chat.New(ctx, *params)
	if err != nil {
		if isRateLimited(err) {
			return nil, fmt.Errorf("%w: %w", model.ErrRateLimited, err)
		}
		return nil, fmt.Errorf("openai chat completions: %w", err)
	}
	return translateResponse(resp)
}

// Stream is not yet supported for the Chat Completions adapter; callers
// should fall back to Complete.
func (c *Client) Stream(ctx context.Context, req *model.Request) (model.Streamer, error) {
	return nil, model.ErrStreamingUnsupported
}

func (c *Client) prepareRequest(req *model.Request) (*sdk.ChatCompletionNewParams, map[string]string, error) {
	if len(req.Messages) == 0 {
		return nil, nil, errors.New("openai: messages are required")
	}
	modelID := c.resolveModelID(req)
	if modelID == "" {
		return nil, nil, errors.New("openai: model identifier is required")
	}
	tools, canonToProv, err := encodeTools(req.Tools)
	if err != nil {
		return nil, nil, err
	}
	msgs, err := encodeMessages(req.Messages, canonToProv)
	if err != nil {
		return nil, nil, err
	}
	params := sdk.ChatCompletionNewParams{
		Model:    modelID,
		Messages: msgs,
	}
	if len(tools) > 0 {
		params.Tools = tools
	}
	if maxTokens := c.effectiveMaxTokens(req.MaxTokens); maxTokens > 0 {
		params.MaxTokens = sdk.Int(int64(maxTokens))
	}
	if t := c.effectiveTemperature(req.Temperature); t > 0 {
		params.Temperature = sdk.Float(t)
	}
	if req.ToolChoice != nil {
		tc, err := encodeToolChoice(req.ToolChoice)
		if err != nil {
			return nil, nil, err
		}
		params.ToolChoice = tc
	}
	return &params, canonToProv, nil
}

func (c *Client) resolveModelID(req *model.Request) string {
	if s := req.Model; s != "" {
		return s
	}
	switch string(req.ModelClass) {
	case string(model.ModelClassHighReasoning):
		if c.highModel != "" {
			return c.highModel
		}
	case string(model.ModelClassSmall):
		if c.smallModel != "" {
			return c.smallModel
		}
	}
	return c.defaultModel
}

func (c *Client) effectiveMaxTokens(requested int) int {
	if requested > 0 {
		return requested
	}
	return c.maxTok
}

func (c *Client) effectiveTemperature(requested float32) float64 {
	if requested > 0 {
		return float64(requested)
	}
	return c.temp
}

// encodeTools converts tool definitions to the provider wire format, mapping
// canonical tool identifiers to provider-safe function names (OpenAI function
// names are restricted to [a-zA-Z0-9_-]).
func encodeTools(defs []*model.ToolDefinition) ([]sdk.ChatCompletionToolParam, map[string]string, error) {
	if len(defs) == 0 {
		return nil, nil, nil
	}
	tools := make([]sdk.ChatCompletionToolParam, 0, len(defs))
	canonToProv := make(map[string]string, len(defs))
	for _, def := range defs {
		if def == nil || def.Name == "" {
			continue
		}
		sanitized := sanitizeToolName(def.Name)
		canonToProv[def.Name] = sanitized
		tools = append(tools, sdk.ChatCompletionToolParam{
			Type: "function",
			Function: sdk.FunctionDefinitionParam{
				Name:        sanitized,
				Description: sdk.String(def.Description),
				Parameters:  def.InputSchema,
			},
		})
	}
	return tools, canonToProv, nil
}

func sanitizeToolName(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}

func encodeToolChoice(tc *model.ToolChoice) (sdk.ChatCompletionToolChoiceOptionUnionParam, error) {
	switch tc.Mode {
	case model.ToolChoiceModeAuto, "":
		return sdk.ChatCompletionToolChoiceOptionUnionParam{OfAuto: sdk.String("auto")}, nil
	case model.ToolChoiceModeNone:
		return sdk.ChatCompletionToolChoiceOptionUnionParam{OfAuto: sdk.String("none")}, nil
	case model.ToolChoiceModeAny:
		return sdk.ChatCompletionToolChoiceOptionUnionParam{OfAuto: sdk.String("required")}, nil
	case model.ToolChoiceModeTool:
		if tc.Name == "" {
			return sdk.ChatCompletionToolChoiceOptionUnionParam{}, errors.New("openai: tool choice mode \"tool\" requires a name")
		}
		return sdk.ChatCompletionToolChoiceOptionUnionParam{
			OfChatCompletionNamedToolChoice: &sdk.ChatCompletionNamedToolChoiceParam{
				Type:     "function",
				Function: sdk.ChatCompletionNamedToolChoiceFunctionParam{Name: sanitizeToolName(tc.Name)},
			},
		}, nil
	default:
		return sdk.ChatCompletionToolChoiceOptionUnionParam{}, fmt.Errorf("openai: unsupported tool choice mode %q", tc.Mode)
	}
}

func encodeMessages(msgs []*model.Message, canonToProv map[string]string) ([]sdk.ChatCompletionMessageParamUnion, error) {
	encoded := make([]sdk.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, m := range msgs {
		if m == nil {
			continue
		}
		text := flattenText(m.Parts)
		switch m.Role { //nolint:exhaustive
		case model.ConversationRoleSystem:
			if text != "" {
				encoded = append(encoded, sdk.SystemMessage(text))
			}
		case model.ConversationRoleUser:
			encoded = append(encoded, encodeUserMessage(m, text))
		case model.ConversationRoleAssistant:
			assistant, err := encodeAssistantMessage(m, text, canonToProv)
			if err != nil {
				return nil, err
			}
			encoded = append(encoded, assistant)
		default:
			return nil, fmt.Errorf("openai: unsupported message role %q", m.Role)
		}
	}
	if len(encoded) == 0 {
		return nil, errors.New("openai: at least one user/assistant message is required")
	}
	return encoded, nil
}

// encodeUserMessage folds tool results into the user turn, since Chat
// Completions represents tool results as standalone "tool" role messages
// rather than content blocks.
func encodeUserMessage(m *model.Message, text string) sdk.ChatCompletionMessageParamUnion {
	for _, part := range m.Parts {
		if v, ok := part.(model.ToolResultPart); ok {
			content := stringifyToolResult(v.Content)
			return sdk.ToolMessage(content, v.ToolUseID)
		}
	}
	return sdk.UserMessage(text)
}

func encodeAssistantMessage(m *model.Message, text string, canonToProv map[string]string) (sdk.ChatCompletionMessageParamUnion, error) {
	var calls []sdk.ChatCompletionMessageToolCallParam
	for _, part := range m.Parts {
		v, ok := part.(model.ToolUsePart)
		if !ok {
			continue
		}
		name, ok := canonToProv[v.Name]
		if !ok || name == "" {
			name = sanitizeToolName(v.Name)
		}
		args, err := json.Marshal(v.Input)
		if err != nil {
			return sdk.ChatCompletionMessageParamUnion{}, fmt.Errorf("openai: marshal tool_use %s input: %w", v.Name, err)
		}
		calls = append(calls, sdk.ChatCompletionMessageToolCallParam{
			ID:   v.ID,
			Type: "function",
			Function: sdk.ChatCompletionMessageToolCallFunctionParam{
				Name:      name,
				Arguments: string(args),
			},
		})
	}
	msg := sdk.AssistantMessage(text)
	if len(calls) > 0 {
		msg.OfAssistant.ToolCalls = calls
	}
	return msg, nil
}

func stringifyToolResult(content any) string {
	switch v := content.(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(b)
	}
}

func flattenText(parts []model.Part) string {
	var b strings.Builder
	for _, p := range parts {
		if v, ok := p.(model.TextPart); ok {
			b.WriteString(v.Text)
		}
	}
	return b.String()
}

func translateResponse(resp *sdk.ChatCompletion) (*model.Response, error) {
	if resp == nil || len(resp.Choices) == 0 {
		return nil, errors.New("openai: response contained no choices")
	}
	choice := resp.Choices[0]
	var content []model.Message
	if text := choice.Message.Content; text != "" {
		content = append(content, model.Message{
			Role:  model.ConversationRoleAssistant,
			Parts: []model.Part{model.TextPart{Text: text}},
		})
	}
	toolCalls := make([]model.ToolCall, 0, len(choice.Message.ToolCalls))
	for _, call := range choice.Message.ToolCalls {
		toolCalls = append(toolCalls, model.ToolCall{
			Name:    toolregistry.Ident(call.Function.Name),
			Payload: json.RawMessage(call.Function.Arguments),
			ID:      call.ID,
		})
	}
	return &model.Response{
		Content:   content,
		ToolCalls: toolCalls,
		Usage: model.TokenUsage{
			InputTokens:  int(resp.Usage.PromptTokens),
			OutputTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:  int(resp.Usage.TotalTokens),
		},
		StopReason: string(choice.FinishReason),
	}, nil
}

func isRateLimited(err error) bool {
	var apiErr *sdk.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429
	}
	return false
}
