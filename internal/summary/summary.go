// Package summary turns segmented conversations into a digest of a user's
// activity using a chat completion with a structured JSON response.
package summary

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"chatdigest/internal/models"
	"chatdigest/internal/textutil"

	"github.com/invopop/jsonschema"
	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"
)

const (
	maxMessagesPerConversation = 40
	maxMessageChars            = 400
	languageSampleChars        = 4000
	summaryMaxTokens           = 2000
)

const systemPrompt = `You summarize chat activity for one person. You receive conversations that were already grouped from a chat workspace.
For each conversation write one or two sentences describing what was discussed and decided, and list concrete action items if any were agreed.
Write a one-sentence headline for the whole period. Refer to conversations only by the id you were given.`

// ChatCompleter is the slice of the OpenAI client the summarizer needs
type ChatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (*openai.ChatCompletionResponse, error)
}

// Window is the reporting period
type Window struct {
	Since time.Time `json:"since"`
	Until time.Time `json:"until"`
}

// ConversationSummary is the model's account of one conversation
type ConversationSummary struct {
	ConversationID string   `json:"conversation_id" jsonschema:"description=Id of the conversation being summarized"`
	Channel        string   `json:"channel" jsonschema:"description=Channel name or id"`
	Summary        string   `json:"summary" jsonschema:"description=One or two sentences on what was discussed"`
	ActionItems    []string `json:"action_items" jsonschema:"description=Concrete follow-ups that were agreed"`
}

// digestResponse is the part of a Digest produced by the model
type digestResponse struct {
	Headline      string                `json:"headline" jsonschema:"description=One sentence overview of the period"`
	Conversations []ConversationSummary `json:"conversations"`
}

// Digest is a summarized reporting period
type Digest struct {
	User          string                   `json:"user,omitempty"`
	Window        Window                   `json:"window"`
	Headline      string                   `json:"headline"`
	Conversations []ConversationSummary    `json:"conversations"`
	Stats         models.SegmentationStats `json:"stats"`
}

// Service produces digests
type Service struct {
	client ChatCompleter
	schema json.RawMessage
	logger zerolog.Logger
}

// NewService creates a summarizer on client
func NewService(client ChatCompleter, logger zerolog.Logger) (*Service, error) {
	schema, err := GenerateSchema[digestResponse]()
	if err != nil {
		return nil, err
	}
	return &Service{
		client: client,
		schema: schema,
		logger: logger.With().Str("component", "summarizer").Logger(),
	}, nil
}

// GenerateSchema reflects T into a JSON schema accepted by strict structured outputs:
// inline definitions, every property required, no additional properties.
func GenerateSchema[T any]() (json.RawMessage, error) {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties:  false,
		DoNotReference:             true,
		RequiredFromJSONSchemaTags: false,
	}
	var v T
	schema := reflector.Reflect(v)

	b, err := schema.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("failed to decode schema: %w", err)
	}
	delete(m, "$schema")
	delete(m, "$id")
	makeStrict(m)

	return json.Marshal(m)
}

func makeStrict(schema map[string]any) {
	if t, ok := schema["type"].(string); ok && t == "object" {
		schema["additionalProperties"] = false
		if props, ok := schema["properties"].(map[string]any); ok {
			required := make([]string, 0, len(props))
			for name := range props {
				required = append(required, name)
			}
			sort.Strings(required)
			schema["required"] = required
		}
	}
	if props, ok := schema["properties"].(map[string]any); ok {
		for _, p := range props {
			if pm, ok := p.(map[string]any); ok {
				makeStrict(pm)
			}
		}
	}
	if items, ok := schema["items"].(map[string]any); ok {
		makeStrict(items)
	}
}

// Summarize writes a digest of conversations for user over window
func (s *Service) Summarize(ctx context.Context, user string, window Window, conversations []models.Conversation, stats models.SegmentationStats) (*Digest, error) {
	digest := &Digest{
		User:          user,
		Window:        window,
		Conversations: []ConversationSummary{},
		Stats:         stats,
	}
	if len(conversations) == 0 {
		digest.Headline = "No conversations in this period."
		return digest, nil
	}

	prompt := systemPrompt
	lang := conversationLanguage(conversations)
	if instruction := textutil.DigestInstruction(lang); instruction != "" {
		prompt += "\n" + instruction
	}

	req := openai.ChatCompletionRequest{
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: prompt},
			{Role: openai.ChatMessageRoleUser, Content: BuildPrompt(user, window, conversations)},
		},
		MaxTokens:   summaryMaxTokens,
		Temperature: 0.2,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   "activity_digest",
				Schema: s.schema,
				Strict: true,
			},
		},
	}

	resp, err := s.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize conversations: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("summarizer returned no choices")
	}

	var parsed digestResponse
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse summary response: %w", err)
	}

	known := make(map[string]bool, len(conversations))
	for _, c := range conversations {
		known[c.ID] = true
	}
	for _, cs := range parsed.Conversations {
		if !known[cs.ConversationID] {
			s.logger.Warn().Str("conversation_id", cs.ConversationID).Msg("Dropping summary for unknown conversation")
			continue
		}
		if cs.ActionItems == nil {
			cs.ActionItems = []string{}
		}
		digest.Conversations = append(digest.Conversations, cs)
	}
	digest.Headline = parsed.Headline

	s.logger.Info().
		Int("conversations", len(conversations)).
		Int("summaries", len(digest.Conversations)).
		Int("total_tokens", resp.Usage.TotalTokens).
		Str("language", lang.Code).
		Msg("Digest generated")

	return digest, nil
}

// BuildPrompt renders conversations as plain text for the model
func BuildPrompt(user string, window Window, conversations []models.Conversation) string {
	var b strings.Builder

	if user != "" {
		fmt.Fprintf(&b, "Person: %s\n", user)
	}
	if !window.Since.IsZero() || !window.Until.IsZero() {
		fmt.Fprintf(&b, "Period: %s to %s\n", formatBound(window.Since), formatBound(window.Until))
	}
	fmt.Fprintf(&b, "Conversations: %d\n", len(conversations))

	for _, c := range conversations {
		channel := c.ChannelName
		if channel == "" {
			channel = c.ChannelID
		}
		kind := "channel"
		if c.IsThread {
			kind = "thread"
		}

		fmt.Fprintf(&b, "\n## id=%s #%s (%s) %s to %s, %d messages, %d by the person\n",
			c.ID, channel, kind, c.StartTime, c.EndTime, c.MessageCount, c.UserMessageCount)

		for i, m := range c.Messages {
			if i == maxMessagesPerConversation {
				fmt.Fprintf(&b, "... %d more messages\n", len(c.Messages)-i)
				break
			}
			author := m.User
			if author == "" {
				author = "unknown"
			}
			fmt.Fprintf(&b, "- %s: %s\n", author, truncate(m.Text, maxMessageChars))
		}
	}

	return b.String()
}

// conversationLanguage detects the language from a bounded sample of message text
func conversationLanguage(conversations []models.Conversation) textutil.Language {
	var b strings.Builder
	for _, c := range conversations {
		for _, m := range c.Messages {
			if b.Len() >= languageSampleChars {
				return textutil.DetectLanguage(b.String())
			}
			b.WriteString(m.Text)
			b.WriteByte(' ')
		}
	}
	return textutil.DetectLanguage(b.String())
}

func formatBound(t time.Time) string {
	if t.IsZero() {
		return "open"
	}
	return t.UTC().Format(time.RFC3339)
}

func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
