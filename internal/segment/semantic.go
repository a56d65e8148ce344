package segment

import (
	"context"
	"errors"
	"strings"

	"chatdigest/internal/embeddings"
	"chatdigest/internal/models"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// EmbeddingSource returns the vector for a message text. *embeddings.Cache
// is the production implementation.
type EmbeddingSource interface {
	GetOrCompute(ctx context.Context, text string) ([]float32, error)
}

// SemanticSplitter subdivides a single gap candidate where adjacent messages
// drift apart in topic
type SemanticSplitter struct {
	source      EmbeddingSource
	threshold   float64
	minMessages int
	concurrency int
	logger      zerolog.Logger
}

// TopicSplit is the outcome of splitting one candidate
type TopicSplit struct {
	Parts      [][]models.Message
	Boundaries int
	FellBack   bool // embedding failed and the candidate was left whole
}

// NewSemanticSplitter creates a splitter. minMessages below 2 is raised to 2
// and concurrency below 1 means one embedding at a time.
func NewSemanticSplitter(source EmbeddingSource, threshold float64, minMessages, concurrency int, logger zerolog.Logger) *SemanticSplitter {
	if minMessages < 2 {
		minMessages = 2
	}
	if concurrency < 1 {
		concurrency = 1
	}
	return &SemanticSplitter{
		source:      source,
		threshold:   threshold,
		minMessages: minMessages,
		concurrency: concurrency,
		logger:      logger,
	}
}

// Split introduces a boundary between each adjacent pair of messages with
// text whose cosine similarity is below the threshold. Pairs where either
// message has no text are never compared. Embedding failures leave the
// candidate unsplit; only cancellation of ctx is returned as an error.
func (s *SemanticSplitter) Split(ctx context.Context, candidate []models.Message) (TopicSplit, error) {
	whole := TopicSplit{Parts: [][]models.Message{candidate}}

	usable := 0
	for _, m := range candidate {
		if hasText(m) {
			usable++
		}
	}
	if usable < s.minMessages {
		return whole, nil
	}

	// only messages that take part in a comparable pair need a vector
	needed := make([]bool, len(candidate))
	pairs := 0
	for i := 0; i+1 < len(candidate); i++ {
		if hasText(candidate[i]) && hasText(candidate[i+1]) {
			needed[i], needed[i+1] = true, true
			pairs++
		}
	}
	if pairs == 0 {
		return whole, nil
	}

	vectors, err := s.embed(ctx, candidate, needed)
	if err != nil {
		if ctx.Err() != nil {
			return TopicSplit{}, ctx.Err()
		}
		s.logFallback(candidate, err)
		whole.FellBack = true
		return whole, nil
	}

	var split TopicSplit
	start := 0
	for i := 0; i+1 < len(candidate); i++ {
		if !hasText(candidate[i]) || !hasText(candidate[i+1]) {
			continue
		}
		if embeddings.CosineSimilarity(vectors[i], vectors[i+1]) < s.threshold {
			split.Parts = append(split.Parts, candidate[start:i+1])
			split.Boundaries++
			start = i + 1
		}
	}
	split.Parts = append(split.Parts, candidate[start:])

	return split, nil
}

// embed fetches vectors for the needed messages with bounded fan-out. The
// first failure cancels the remaining lookups.
func (s *SemanticSplitter) embed(ctx context.Context, candidate []models.Message, needed []bool) ([][]float32, error) {
	vectors := make([][]float32, len(candidate))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i := range candidate {
		if !needed[i] {
			continue
		}
		g.Go(func() error {
			vec, err := s.source.GetOrCompute(gctx, candidate[i].Text)
			if err != nil {
				return err
			}
			vectors[i] = vec
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return vectors, nil
}

func (s *SemanticSplitter) logFallback(candidate []models.Message, err error) {
	reason := "provider_error"
	var malformed *embeddings.MalformedEmbeddingError
	if errors.As(err, &malformed) {
		reason = "malformed_embedding"
	}

	s.logger.Warn().
		Err(err).
		Str("reason", reason).
		Str("channel_id", candidate[0].Channel).
		Str("first_ts", candidate[0].TS).
		Int("messages", len(candidate)).
		Msg("Semantic split skipped, keeping candidate whole")
}

func hasText(m models.Message) bool {
	return strings.TrimSpace(m.Text) != ""
}
