package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"chatdigest/internal/backend"
	"chatdigest/internal/config"
	"chatdigest/internal/events"
	"chatdigest/internal/models"
	"chatdigest/internal/segment"
	"chatdigest/internal/slackexport"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

const dateLayout = "2006-01-02"

// runFlags are shared by segment and summarize
type runFlags struct {
	export     string
	since      string
	until      string
	user       string
	out        string
	format     string
	gap        time.Duration
	noSemantic bool
}

func (f *runFlags) register(cmd *cobra.Command, defaultFormat string) {
	cmd.Flags().StringVar(&f.export, "export", "", "Slack export directory (default $SLACK_EXPORT_DIR)")
	cmd.Flags().StringVar(&f.since, "since", "", "window start: YYYY-MM-DD, RFC 3339, or a duration back from now such as 168h")
	cmd.Flags().StringVar(&f.until, "until", "", "window end (exclusive), same forms as --since")
	cmd.Flags().StringVar(&f.user, "user", "", "tracked user id (default $TRACKED_USER)")
	cmd.Flags().StringVarP(&f.out, "out", "o", "", "write output to this file instead of stdout")
	cmd.Flags().StringVar(&f.format, "format", defaultFormat, "output format: json, md or term")
	cmd.Flags().DurationVar(&f.gap, "gap", 0, "inactivity gap that splits conversations (default $GAP_THRESHOLD_SECONDS)")
	cmd.Flags().BoolVar(&f.noSemantic, "no-semantic", false, "skip embedding-based topic splitting")
}

// env is what every command starts from
type env struct {
	cfg    *config.Config
	logger zerolog.Logger
}

// newEnv loads configuration and logs to stderr so stdout stays machine-readable
func newEnv() env {
	cfg := config.Load()
	return env{cfg: cfg, logger: cfg.SetupLoggerTo(os.Stderr)}
}

// run is one segmentation of an export window
type run struct {
	window  windowBounds
	user    string
	result  *models.SegmentationResult
	backend *backend.Backend
}

type windowBounds struct {
	since time.Time
	until time.Time
}

// segmentExport loads the export window and segments it. The caller closes run.backend.
func segmentExport(ctx context.Context, e env, f *runFlags) (*run, error) {
	now := time.Now()
	since, err := parseBound(f.since, now)
	if err != nil {
		return nil, fmt.Errorf("--since: %w", err)
	}
	until, err := parseBound(f.until, now)
	if err != nil {
		return nil, fmt.Errorf("--until: %w", err)
	}
	if !since.IsZero() && !until.IsZero() && !until.After(since) {
		return nil, fmt.Errorf("--until must be after --since")
	}

	dir := firstNonEmpty(f.export, e.cfg.SlackExportDir)
	if dir == "" {
		return nil, fmt.Errorf("no export directory: pass --export or set SLACK_EXPORT_DIR")
	}
	user := firstNonEmpty(f.user, e.cfg.TrackedUser)

	channels, err := slackexport.Load(dir, slackexport.Filter{Since: since, Until: until, User: user})
	if err != nil {
		return nil, err
	}
	messages, names := slackexport.Flatten(channels)
	e.logger.Info().Int("channels", len(channels)).Int("messages", len(messages)).Str("export", dir).Msg("Export loaded")

	opts := segment.OptionsFromConfig(e.cfg)
	opts.TrackedUser = user
	opts.ChannelNames = names
	if f.gap > 0 {
		opts.GapThreshold = f.gap
	}
	if f.noSemantic {
		opts.SemanticEnabled = false
	}

	b, err := openBackend(ctx, e)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	result, err := segment.New(b.Source(), opts, e.logger).Segment(ctx, messages)
	if err != nil {
		_ = b.Close()
		return nil, fmt.Errorf("segment: %w", err)
	}
	e.logger.Info().
		Int("conversations", result.Stats.TotalConversations).
		Int("failures", len(result.Failures)).
		Dur("elapsed", time.Since(start)).
		Msg("Segmentation complete")

	publishRun(ctx, e, result)

	return &run{
		window:  windowBounds{since: since, until: until},
		user:    user,
		result:  result,
		backend: b,
	}, nil
}

// openBackend opens the configured cache, degrading to memory when the
// persistent tier is unreachable so a run never fails on cache trouble
func openBackend(ctx context.Context, e env) (*backend.Backend, error) {
	b, err := backend.Open(ctx, e.cfg, e.logger)
	if err == nil {
		return b, nil
	}
	e.logger.Warn().Err(err).Msg("Embedding store unavailable, using in-memory cache")
	memCfg := *e.cfg
	memCfg.EmbeddingCacheBackend = backend.BackendMemory
	return backend.Open(ctx, &memCfg, e.logger)
}

// publishRun announces the run on NATS when it is configured
func publishRun(ctx context.Context, e env, result *models.SegmentationResult) {
	publisher, err := events.Connect(e.cfg.NatsURL, e.cfg.NatsToken, e.cfg.NatsSubject, e.logger)
	if err != nil {
		e.logger.Warn().Err(err).Msg("NATS unavailable, skipping segmentation event")
		return
	}
	defer publisher.Close()

	pubCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	event := events.NewSegmentationEvent(uuid.NewString(), "cli", result, time.Now())
	if err := publisher.PublishSegmentation(pubCtx, event); err != nil {
		e.logger.Warn().Err(err).Msg("Failed to publish segmentation event")
	}
}

// parseBound reads a window bound. Durations count back from now.
func parseBound(value string, now time.Time) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, nil
	}
	if t, err := time.ParseInLocation(dateLayout, value, time.UTC); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	if d, err := time.ParseDuration(value); err == nil && d > 0 {
		return now.Add(-d), nil
	}
	return time.Time{}, fmt.Errorf("cannot parse %q as a date, timestamp or duration", value)
}

// openOutput returns stdout or the named file
func openOutput(path string) (io.Writer, func() error, error) {
	if path == "" || path == "-" {
		return os.Stdout, func() error { return nil }, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("create %s: %w", path, err)
	}
	return f, f.Close, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
