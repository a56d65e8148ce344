package summary

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"chatdigest/internal/models"

	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCompleter struct {
	req     openai.ChatCompletionRequest
	calls   int
	content string
	err     error
}

func (f *fakeCompleter) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (*openai.ChatCompletionResponse, error) {
	f.calls++
	f.req = req
	if f.err != nil {
		return nil, f.err
	}
	return &openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{{Message: openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: f.content}}},
		Usage:   openai.Usage{TotalTokens: 42},
	}, nil
}

func sampleConversations() []models.Conversation {
	return []models.Conversation{
		{
			ID:               "conv-1",
			ChannelID:        "C1",
			ChannelName:      "general",
			StartTime:        "2023-11-14T22:13:20Z",
			EndTime:          "2023-11-14T22:15:00Z",
			MessageCount:     2,
			UserMessageCount: 1,
			Messages: []models.Message{
				{TS: "1", User: "UA", Text: "deploy   is\nblocked"},
				{TS: "2", Text: "on it"},
			},
		},
		{
			ID:           "conv-2",
			ChannelID:    "C2",
			IsThread:     true,
			MessageCount: 1,
			Messages:     []models.Message{{TS: "3", User: "UB", Text: "thread reply"}},
		},
	}
}

func TestGenerateSchema(t *testing.T) {
	raw, err := GenerateSchema[digestResponse]()
	require.NoError(t, err)

	var schema map[string]any
	require.NoError(t, json.Unmarshal(raw, &schema))

	assert.Equal(t, "object", schema["type"])
	assert.Equal(t, false, schema["additionalProperties"])
	assert.ElementsMatch(t, []any{"conversations", "headline"}, schema["required"])
	assert.NotContains(t, schema, "$schema")

	items := schema["properties"].(map[string]any)["conversations"].(map[string]any)["items"].(map[string]any)
	assert.Equal(t, false, items["additionalProperties"])
	assert.ElementsMatch(t, []any{"action_items", "channel", "conversation_id", "summary"}, items["required"])
}

func TestBuildPrompt(t *testing.T) {
	window := Window{Since: time.Date(2023, 11, 14, 0, 0, 0, 0, time.UTC)}

	prompt := BuildPrompt("UA", window, sampleConversations())

	assert.Contains(t, prompt, "Person: UA")
	assert.Contains(t, prompt, "Period: 2023-11-14T00:00:00Z to open")
	assert.Contains(t, prompt, "Conversations: 2")
	assert.Contains(t, prompt, "id=conv-1 #general (channel)")
	assert.Contains(t, prompt, "id=conv-2 #C2 (thread)")
	assert.Contains(t, prompt, "- UA: deploy is blocked")
	assert.Contains(t, prompt, "- unknown: on it")
}

func TestBuildPrompt_TruncatesLongConversations(t *testing.T) {
	var messages []models.Message
	for i := 0; i < maxMessagesPerConversation+5; i++ {
		messages = append(messages, models.Message{User: "UA", Text: strings.Repeat("x", maxMessageChars+10)})
	}

	prompt := BuildPrompt("", Window{}, []models.Conversation{{ID: "c", ChannelID: "C1", Messages: messages}})

	assert.Contains(t, prompt, "... 5 more messages")
	assert.NotContains(t, prompt, strings.Repeat("x", maxMessageChars+1))
	assert.NotContains(t, prompt, "Period:")
}

func TestSummarize(t *testing.T) {
	completer := &fakeCompleter{content: `{
		"headline": "Unblocked the deploy",
		"conversations": [
			{"conversation_id": "conv-1", "channel": "general", "summary": "Deploy was blocked and picked up.", "action_items": ["check pipeline"]},
			{"conversation_id": "invented", "channel": "x", "summary": "hallucinated", "action_items": []},
			{"conversation_id": "conv-2", "channel": "C2", "summary": "A reply.", "action_items": null}
		]
	}`}
	svc, err := NewService(completer, zerolog.Nop())
	require.NoError(t, err)

	stats := models.SegmentationStats{TotalConversations: 2}
	digest, err := svc.Summarize(context.Background(), "UA", Window{}, sampleConversations(), stats)
	require.NoError(t, err)

	assert.Equal(t, "Unblocked the deploy", digest.Headline)
	require.Len(t, digest.Conversations, 2)
	assert.Equal(t, "conv-1", digest.Conversations[0].ConversationID)
	assert.Equal(t, []string{"check pipeline"}, digest.Conversations[0].ActionItems)
	assert.Equal(t, []string{}, digest.Conversations[1].ActionItems)
	assert.Equal(t, stats, digest.Stats)

	require.NotNil(t, completer.req.ResponseFormat)
	assert.Equal(t, openai.ChatCompletionResponseFormatTypeJSONSchema, completer.req.ResponseFormat.Type)
	assert.True(t, completer.req.ResponseFormat.JSONSchema.Strict)
	require.Len(t, completer.req.Messages, 2)
	assert.Equal(t, openai.ChatMessageRoleSystem, completer.req.Messages[0].Role)
}

func TestSummarize_NoConversationsSkipsModel(t *testing.T) {
	completer := &fakeCompleter{}
	svc, err := NewService(completer, zerolog.Nop())
	require.NoError(t, err)

	digest, err := svc.Summarize(context.Background(), "UA", Window{}, nil, models.SegmentationStats{})
	require.NoError(t, err)
	assert.Equal(t, 0, completer.calls)
	assert.NotEmpty(t, digest.Headline)
	assert.NotNil(t, digest.Conversations)
}

func TestSummarize_Errors(t *testing.T) {
	tests := []struct {
		name      string
		completer *fakeCompleter
		wantErr   string
	}{
		{"provider failure", &fakeCompleter{err: errors.New("429 too many requests")}, "failed to summarize conversations"},
		{"invalid json", &fakeCompleter{content: "not json"}, "failed to parse summary response"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, err := NewService(tt.completer, zerolog.Nop())
			require.NoError(t, err)

			_, err = svc.Summarize(context.Background(), "UA", Window{}, sampleConversations(), models.SegmentationStats{})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestSummarize_MatchesConversationLanguage(t *testing.T) {
	completer := &fakeCompleter{content: `{"headline": "פריסה", "conversations": []}`}
	svc, err := NewService(completer, zerolog.Nop())
	require.NoError(t, err)

	convs := []models.Conversation{{
		ID:        "conv-he",
		ChannelID: "C1",
		Messages:  []models.Message{{TS: "1.0", User: "UA", Text: "מתי מתחילה הפריסה?"}},
	}}
	_, err = svc.Summarize(context.Background(), "UA", Window{}, convs, models.SegmentationStats{})
	require.NoError(t, err)
	assert.Contains(t, completer.req.Messages[0].Content, "Hebrew")

	_, err = svc.Summarize(context.Background(), "UA", Window{}, sampleConversations(), models.SegmentationStats{})
	require.NoError(t, err)
	assert.Equal(t, systemPrompt, completer.req.Messages[0].Content)
}
