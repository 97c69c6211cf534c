package openai_test

import (
	"context"
	"encoding/json"
	"testing"

	sdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/stretchr/testify/require"

	openaimodel "github.com/cascadekit/cascade/features/model/openai"
	"github.com/cascadekit/cascade/runtime/agent/model"
	"github.com/cascadekit/cascade/runtime/agent/toolregistry"
)

type stubChatClient struct {
	captured sdk.ChatCompletionNewParams
	resp     *sdk.ChatCompletion
	err      error
}

func (s *stubChatClient) New(_ context.Context, body sdk.ChatCompletionNewParams, _ ...option.RequestOption) (*sdk.ChatCompletion, error) {
	s.captured = body
	return s.resp, s.err
}

func TestClientComplete(t *testing.T) {
	stub := &stubChatClient{
		resp: &sdk.ChatCompletion{
			Choices: []sdk.ChatCompletionChoice{
				{
					FinishReason: "stop",
					Message: sdk.ChatCompletionMessage{
						Role:    "assistant",
						Content: "hi there",
						ToolCalls: []sdk.ChatCompletionMessageToolCall{
							{
								ID: "call_1",
								Function: sdk.ChatCompletionMessageToolCallFunction{
									Name:      "lookup",
									Arguments: `{"query":"docs"}`,
								},
							},
						},
					},
				},
			},
			Usage: sdk.CompletionUsage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
		},
	}

	client, err := openaimodel.New(stub, openaimodel.Options{DefaultModel: "gpt-4o"})
	require.NoError(t, err)

	resp, err := client.Complete(context.Background(), &model.Request{
		Messages: []*model.Message{{
			Role:  model.ConversationRoleUser,
			Parts: []model.Part{model.TextPart{Text: "ping"}},
		}},
		Tools: []*model.ToolDefinition{{
			Name:        "lookup",
			Description: "Search",
			InputSchema: map[string]any{"type": "object"},
		}},
	})
	require.NoError(t, err)
	require.Len(t, resp.Content, 1)

	found := false
	for _, p := range resp.Content[0].Parts {
		if tp, ok := p.(model.TextPart); ok && tp.Text == "hi there" {
			found = true
		}
	}
	require.True(t, found, "expected hi there text part")

	require.Equal(t, toolregistry.Ident("lookup"), resp.ToolCalls[0].Name)
	var args map[string]any
	require.NoError(t, json.Unmarshal(resp.ToolCalls[0].Payload, &args))
	require.Equal(t, "docs", args["query"])
	require.Equal(t, "stop", resp.StopReason)
	require.Equal(t, 15, resp.Usage.TotalTokens)

	require.Equal(t, "gpt-4o", stub.captured.Model)
	require.Len(t, stub.captured.Messages, 1)
	require.Len(t, stub.captured.Tools, 1)
}

func TestClientCompleteWithToolChoiceTool(t *testing.T) {
	stub := &stubChatClient{resp: &sdk.ChatCompletion{Choices: []sdk.ChatCompletionChoice{{}}}}
	client, err := openaimodel.New(stub, openaimodel.Options{DefaultModel: "gpt-4o"})
	require.NoError(t, err)

	_, err = client.Complete(context.Background(), &model.Request{
		Messages: []*model.Message{{
			Role:  model.ConversationRoleUser,
			Parts: []model.Part{model.TextPart{Text: "ping"}},
		}},
		Tools: []*model.ToolDefinition{{
			Name:        "lookup",
			Description: "Search",
			InputSchema: map[string]any{"type": "object"},
		}},
		ToolChoice: &model.ToolChoice{Mode: model.ToolChoiceModeTool, Name: "lookup"},
	})
	require.NoError(t, err)

	require.True(t, stub.captured.ToolChoice.OfChatCompletionNamedToolChoice != nil)
	require.Equal(t, "lookup", stub.captured.ToolChoice.OfChatCompletionNamedToolChoice.Function.Name)
}

func TestClientCompleteWithToolChoiceNone(t *testing.T) {
	stub := &stubChatClient{resp: &sdk.ChatCompletion{Choices: []sdk.ChatCompletionChoice{{}}}}
	client, err := openaimodel.New(stub, openaimodel.Options{DefaultModel: "gpt-4o"})
	require.NoError(t, err)

	_, err = client.Complete(context.Background(), &model.Request{
		Messages: []*model.Message{{
			Role:  model.ConversationRoleUser,
			Parts: []model.Part{model.TextPart{Text: "ping"}},
		}},
		ToolChoice: &model.ToolChoice{Mode: model.ToolChoiceModeNone},
	})
	require.NoError(t, err)

	require.NotNil(t, stub.captured.ToolChoice.OfAuto)
	require.Equal(t, "none", *stub.captured.ToolChoice.OfAuto)
}

func TestClientRequiresDefaultModel(t *testing.T) {
	_, err := openaimodel.New(&stubChatClient{}, openaimodel.Options{})
	require.Error(t, err)
}

func TestClientStreamUnsupported(t *testing.T) {
	client, err := openaimodel.New(&stubChatClient{}, openaimodel.Options{DefaultModel: "gpt-4o"})
	require.NoError(t, err)
	_, err = client.Stream(context.Background(), &model.Request{})
	require.ErrorIs(t, err, model.ErrStreamingUnsupported)
}
