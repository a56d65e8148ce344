package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"chatdigest/internal/events"
	"chatdigest/internal/models"
	"chatdigest/internal/segment"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

const publishTimeout = 5 * time.Second

// SegmentHandler segments the posted messages. source may be nil, in which
// case only thread and time-gap segmentation run. publisher may be nil.
// @Summary Segment messages into conversations
// @Tags segmentation
// @Accept json
// @Produce json
// @Param request body models.SegmentRequest true "Messages and optional tunables"
// @Success 200 {object} models.SegmentResponse
// @Failure 400 {object} models.SegmentResponse
// @Failure 503 {object} models.SegmentResponse
// @Router /api/segment [post]
func SegmentHandler(source segment.EmbeddingSource, base segment.Options, publisher *events.Publisher, logger zerolog.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req models.SegmentRequest
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, models.SegmentResponse{
				Error: fmt.Sprintf("Invalid request body: %v", err),
			})
		}

		opts, err := requestOptions(base, req)
		if err != nil {
			return c.JSON(http.StatusBadRequest, models.SegmentResponse{Error: err.Error()})
		}

		ctx := c.Request().Context()
		result, err := segment.New(source, opts, logger).Segment(ctx, req.Messages)
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				status = http.StatusServiceUnavailable
			}
			return c.JSON(status, models.SegmentResponse{
				Error: fmt.Sprintf("Segmentation failed: %v", err),
			})
		}

		if publisher != nil {
			pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
			event := events.NewSegmentationEvent(uuid.NewString(), "api", result, time.Now())
			if err := publisher.PublishSegmentation(pubCtx, event); err != nil {
				logger.Warn().Err(err).Str("run_id", event.RunID).Msg("Failed to publish segmentation event")
			}
			cancel()
		}

		return c.JSON(http.StatusOK, models.SegmentResponse{Result: result})
	}
}

// requestOptions applies the request's tunables on top of the server defaults
func requestOptions(base segment.Options, req models.SegmentRequest) (segment.Options, error) {
	opts := base
	if gap := req.GapThresholdSeconds; gap != nil {
		if *gap < 0 {
			return opts, fmt.Errorf("gap_threshold_seconds must not be negative")
		}
		opts.GapThreshold = time.Duration(*gap) * time.Second
	}
	if sim := req.SimilarityThreshold; sim != nil {
		if *sim < 0 || *sim > 1 {
			return opts, fmt.Errorf("similarity_threshold must be between 0 and 1")
		}
		opts.SimilarityThreshold = *sim
	}
	if req.DisableSemantic {
		opts.SemanticEnabled = false
	}
	if req.TrackedUser != "" {
		opts.TrackedUser = req.TrackedUser
	}
	if len(req.ChannelNames) > 0 {
		opts.ChannelNames = req.ChannelNames
	}
	return opts, nil
}
