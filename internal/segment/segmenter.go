// Package segment partitions chat messages into conversations: thread
// extraction first, then inactivity gaps, then topic shifts inside each
// gap-delimited run.
package segment

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"time"

	"chatdigest/internal/config"
	"chatdigest/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// conversationNamespace scopes conversation ids
var conversationNamespace = uuid.MustParse("6f1d3a52-9c4e-4b7a-8e21-3d5f0a9b7c64")

// Options are the segmentation tunables
type Options struct {
	GapThreshold         time.Duration
	SimilarityThreshold  float64
	SemanticEnabled      bool
	SemanticMinMessages  int
	ChannelConcurrency   int
	EmbeddingConcurrency int
	TrackedUser          string
	ChannelNames         map[string]string // channel id -> display name
}

// DefaultOptions returns the built-in tunables
func DefaultOptions() Options {
	return Options{
		GapThreshold:         30 * time.Minute,
		SimilarityThreshold:  0.6,
		SemanticEnabled:      true,
		SemanticMinMessages:  2,
		ChannelConcurrency:   4,
		EmbeddingConcurrency: 8,
	}
}

// OptionsFromConfig projects the segmentation settings out of cfg
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		GapThreshold:         time.Duration(cfg.GapThresholdSeconds) * time.Second,
		SimilarityThreshold:  cfg.SimilarityThreshold,
		SemanticEnabled:      cfg.SemanticEnabled,
		SemanticMinMessages:  cfg.SemanticMinMessages,
		ChannelConcurrency:   cfg.ChannelConcurrency,
		EmbeddingConcurrency: cfg.EmbeddingConcurrency,
		TrackedUser:          cfg.TrackedUser,
	}
}

// Segmenter turns a flat message stream into conversations. It holds no
// state between runs apart from the embedding source it was given.
type Segmenter struct {
	opts     Options
	semantic *SemanticSplitter
	logger   zerolog.Logger
}

// New creates a Segmenter. source may be nil, which disables semantic splitting.
func New(source EmbeddingSource, opts Options, logger zerolog.Logger) *Segmenter {
	logger = logger.With().Str("component", "segmenter").Logger()

	s := &Segmenter{opts: opts, logger: logger}
	if opts.SemanticEnabled && source != nil {
		s.semantic = NewSemanticSplitter(source, opts.SimilarityThreshold, opts.SemanticMinMessages, opts.EmbeddingConcurrency, logger)
	}
	return s
}

// channelResult is one channel's share of a run
type channelResult struct {
	conversations []models.Conversation
	stats         models.SegmentationStats
	failure       *models.ChannelFailure
}

// Segment partitions messages into conversations. Channels are processed
// independently and concurrently; a channel with malformed timestamps is
// reported in Failures without affecting the others. The result is ordered
// by channel id, then conversation start time. Only cancellation of ctx
// fails the run as a whole.
func (s *Segmenter) Segment(ctx context.Context, messages []models.Message) (*models.SegmentationResult, error) {
	byChannel := make(map[string][]models.Message)
	for _, m := range messages {
		byChannel[m.Channel] = append(byChannel[m.Channel], m)
	}
	channelIDs := make([]string, 0, len(byChannel))
	for id := range byChannel {
		channelIDs = append(channelIDs, id)
	}
	sort.Strings(channelIDs)

	results := make([]channelResult, len(channelIDs))

	g, gctx := errgroup.WithContext(ctx)
	if s.opts.ChannelConcurrency > 0 {
		g.SetLimit(s.opts.ChannelConcurrency)
	}
	for i, id := range channelIDs {
		g.Go(func() error {
			res, err := s.segmentChannel(gctx, id, byChannel[id])
			if err != nil {
				var unordered *UnorderedInputError
				if !errors.As(err, &unordered) {
					return err
				}
				s.logger.Warn().Err(err).Str("channel_id", id).Msg("Channel skipped")
				res = channelResult{failure: &models.ChannelFailure{ChannelID: id, Error: err.Error()}}
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result := &models.SegmentationResult{Conversations: []models.Conversation{}}
	for _, res := range results {
		if res.failure != nil {
			result.Failures = append(result.Failures, *res.failure)
			continue
		}
		result.Conversations = append(result.Conversations, res.conversations...)
		result.Stats.Add(res.stats)
	}

	s.logger.Info().
		Int("channels", len(channelIDs)).
		Int("failed_channels", len(result.Failures)).
		Int("messages", result.Stats.TotalMessages).
		Int("conversations", result.Stats.TotalConversations).
		Int("threads", result.Stats.ThreadsExtracted).
		Int("time_gap_splits", result.Stats.TimeGapSplits).
		Int("semantic_splits", result.Stats.SemanticSplits).
		Int("semantic_fallbacks", result.Stats.SemanticFallbacks).
		Msg("Segmentation complete")

	return result, nil
}

func (s *Segmenter) segmentChannel(ctx context.Context, channelID string, messages []models.Message) (channelResult, error) {
	sorted, err := sortChronologically(channelID, messages)
	if err != nil {
		return channelResult{}, err
	}

	stats := models.SegmentationStats{TotalMessages: len(sorted)}

	threads, remaining := ExtractThreads(sorted)
	stats.ThreadsExtracted = len(threads)

	candidates, err := SplitByGap(remaining, s.opts.GapThreshold)
	if err != nil {
		return channelResult{}, fmt.Errorf("channel %s: %w", channelID, err)
	}
	if len(candidates) > 1 {
		stats.TimeGapSplits = len(candidates) - 1
	}

	var groups [][]models.Message
	for _, candidate := range candidates {
		if s.semantic == nil {
			groups = append(groups, candidate)
			continue
		}

		split, err := s.semantic.Split(ctx, candidate)
		if err != nil {
			return channelResult{}, err
		}
		if split.FellBack {
			stats.SemanticFallbacks++
		}
		stats.SemanticSplits += split.Boundaries
		groups = append(groups, split.Parts...)
	}

	conversations := make([]models.Conversation, 0, len(threads)+len(groups))
	for _, t := range threads {
		conversations = append(conversations, s.buildConversation(channelID, t.Messages, true, t.ThreadTS))
	}
	for _, group := range groups {
		conversations = append(conversations, s.buildConversation(channelID, group, false, ""))
	}
	sortConversations(conversations)
	stats.TotalConversations = len(conversations)

	return channelResult{conversations: conversations, stats: stats}, nil
}

// sortChronologically returns a copy of messages ordered by ts. Messages with
// equal ts keep their input order.
func sortChronologically(channelID string, messages []models.Message) ([]models.Message, error) {
	type stamped struct {
		msg models.Message
		at  int64
	}

	items := make([]stamped, len(messages))
	for i, m := range messages {
		at, err := ParseTS(m.TS)
		if err != nil {
			return nil, &UnorderedInputError{ChannelID: channelID, TS: m.TS, Position: i}
		}
		items[i] = stamped{msg: m, at: at}
	}

	slices.SortStableFunc(items, func(a, b stamped) int {
		return cmp.Compare(a.at, b.at)
	})

	sorted := make([]models.Message, len(items))
	for i, it := range items {
		sorted[i] = it.msg
	}
	return sorted, nil
}

func sortConversations(conversations []models.Conversation) {
	starts := make(map[string]int64, len(conversations))
	for _, c := range conversations {
		starts[c.ID] = mustMicros(c.Messages[0].TS)
	}
	slices.SortStableFunc(conversations, func(a, b models.Conversation) int {
		if c := cmp.Compare(starts[a.ID], starts[b.ID]); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}

func (s *Segmenter) buildConversation(channelID string, messages []models.Message, isThread bool, threadTS string) models.Conversation {
	first, last := messages[0], messages[len(messages)-1]

	seen := make(map[string]struct{})
	participants := []string{}
	userCount := 0
	for _, m := range messages {
		if m.User != "" {
			if _, ok := seen[m.User]; !ok {
				seen[m.User] = struct{}{}
				participants = append(participants, m.User)
			}
		}
		if s.opts.TrackedUser != "" && m.User == s.opts.TrackedUser {
			userCount++
		}
	}
	sort.Strings(participants)

	return models.Conversation{
		ID:               ConversationID(channelID, first.TS, last.TS),
		ChannelID:        channelID,
		ChannelName:      s.opts.ChannelNames[channelID],
		IsThread:         isThread,
		ThreadTS:         threadTS,
		Messages:         slices.Clone(messages),
		StartTime:        isoTime(mustMicros(first.TS)),
		EndTime:          isoTime(mustMicros(last.TS)),
		Participants:     participants,
		MessageCount:     len(messages),
		UserMessageCount: userCount,
	}
}

// ConversationID derives a stable id from the channel and the first and last ts
func ConversationID(channelID, firstTS, lastTS string) string {
	return uuid.NewSHA1(conversationNamespace, []byte(channelID+"|"+firstTS+"|"+lastTS)).String()
}
