package models

// Conversation is a group of messages judged to belong to one exchange:
// either an extracted thread or a gap/topic delimited run of channel messages.
// @Description Segmented conversation
type Conversation struct {
	ID               string    `json:"id" example:"5f0c3c9e-7a43-5d3b-9d6c-0c1f8e4f2a11"` // Stable id derived from channel and first/last ts
	ChannelID        string    `json:"channel_id" example:"C0123456"`                      // Channel the conversation happened in
	ChannelName      string    `json:"channel_name,omitempty" example:"general"`           // Display name when known
	IsThread         bool      `json:"is_thread"`                                          // Extracted from a thread reply chain
	ThreadTS         string    `json:"thread_ts,omitempty"`                                // Thread root reference
	Messages         []Message `json:"messages"`                                           // Chronological member messages
	StartTime        string    `json:"start_time" example:"2023-11-14T22:13:20Z"`          // First message time, ISO 8601
	EndTime          string    `json:"end_time" example:"2023-11-14T22:40:00Z"`            // Last message time, ISO 8601
	Participants     []string  `json:"participants"`                                       // Distinct author ids, sorted
	MessageCount     int       `json:"message_count"`
	UserMessageCount int       `json:"user_message_count"` // Messages authored by the tracked user
}

// SegmentationStats are the provenance counters of a segmentation run.
// TimeGapSplits and SemanticSplits count boundaries, not segments.
type SegmentationStats struct {
	TotalMessages      int `json:"total_messages"`
	TotalConversations int `json:"total_conversations"`
	ThreadsExtracted   int `json:"threads_extracted"`
	TimeGapSplits      int `json:"time_gap_splits"`
	SemanticSplits     int `json:"semantic_splits"`
	SemanticFallbacks  int `json:"semantic_fallbacks"` // Candidates left unsplit after an embedding failure
}

// Add accumulates another channel's counters.
func (s *SegmentationStats) Add(o SegmentationStats) {
	s.TotalMessages += o.TotalMessages
	s.TotalConversations += o.TotalConversations
	s.ThreadsExtracted += o.ThreadsExtracted
	s.TimeGapSplits += o.TimeGapSplits
	s.SemanticSplits += o.SemanticSplits
	s.SemanticFallbacks += o.SemanticFallbacks
}

// ChannelFailure reports a channel that could not be segmented.
type ChannelFailure struct {
	ChannelID string `json:"channel_id"`
	Error     string `json:"error"`
}

// SegmentationResult is the partition of a run's messages into conversations.
type SegmentationResult struct {
	Conversations []Conversation    `json:"conversations"`
	Stats         SegmentationStats `json:"stats"`
	Failures      []ChannelFailure  `json:"failures,omitempty"`
}
