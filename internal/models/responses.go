package models

import "time"

// HealthResponse represents a basic health check response
// @Description Health check response
type HealthResponse struct {
	Status    string    `json:"status" example:"healthy"`                 // Health status
	Timestamp time.Time `json:"timestamp" example:"2023-01-01T00:00:00Z"` // Timestamp of the check
	Version   string    `json:"version" example:"1.0.0"`                  // Application version
}

// DBHealthResponse represents an embedding cache database health check response
// @Description Database health check response
type DBHealthResponse struct {
	Status    string        `json:"status" example:"healthy"`                   // Health status
	Timestamp time.Time     `json:"timestamp" example:"2023-01-01T00:00:00Z"`   // Timestamp of the check
	Connected bool          `json:"connected" example:"true"`                   // Database connection status
	Latency   time.Duration `json:"latency" swaggertype:"string" example:"1ms"` // Database ping latency
	Error     string        `json:"error,omitempty" example:""`                 // Error message if any
}

// SegmentRequest is the body of the segmentation endpoint. Omitted tunables
// fall back to the server configuration; an explicit 0 is honoured.
// @Description Segmentation request payload
type SegmentRequest struct {
	Messages            []Message         `json:"messages"`                                    // Messages from one or more channels
	ChannelNames        map[string]string `json:"channel_names,omitempty"`                     // Optional channel id to display name
	TrackedUser         string            `json:"tracked_user,omitempty" example:"U024BE7LH"`  // User whose messages are counted
	GapThresholdSeconds *int              `json:"gap_threshold_seconds,omitempty" example:"1800"` // Inactivity gap that splits conversations; 0 splits on every new timestamp
	SimilarityThreshold *float64          `json:"similarity_threshold,omitempty" example:"0.6"`   // Cosine similarity below which topics split; 0 never splits
	DisableSemantic     bool              `json:"disable_semantic,omitempty"`                  // Skip embedding-based splitting
}

// SegmentResponse wraps a segmentation result
// @Description Segmentation response payload
type SegmentResponse struct {
	Result *SegmentationResult `json:"result,omitempty"`
	Error  string              `json:"error,omitempty" example:""` // Error message if any
}

// CacheStatsResponse reports embedding cache counters
// @Description Embedding cache statistics
type CacheStatsResponse struct {
	Backend       string `json:"backend" example:"sql"`
	Entries       int64  `json:"entries" example:"1024"` // Persisted entries, -1 when unknown
	Hits          int64  `json:"hits"`
	Misses        int64  `json:"misses"`
	ProviderCalls int64  `json:"provider_calls"`
	Failures      int64  `json:"failures"`
}
