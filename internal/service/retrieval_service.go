package service

import (
	"context"
	"fmt"
	"sort"

	"knova/internal/dto"
	"knova/internal/vectorstore"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// QueryEmbedder embeds retrieval questions.
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// FragmentSearcher runs a similarity search over one knowledge base.
type FragmentSearcher interface {
	Search(ctx context.Context, kbID uuid.UUID, queryVector []float32, k int) ([]vectorstore.SearchResult, error)
}

// RetrievalService answers "which fragments ground this question" across one
// or more knowledge bases. Multi-source results are merged by raw distance
// and truncated to the global top k.
type RetrievalService struct {
	embedder QueryEmbedder
	store    FragmentSearcher
	logger   *zap.Logger
}

func NewRetrievalService(embedder QueryEmbedder, store FragmentSearcher, logger *zap.Logger) *RetrievalService {
	return &RetrievalService{
		embedder: embedder,
		store:    store,
		logger:   logger,
	}
}

// Retrieve returns the top k fragments over the given knowledge bases, ranked
// by ascending distance. A single failing knowledge base is dropped with a
// warning; only embedding failure or all sources failing is fatal. An empty
// kb list or a question that embeds to a degenerate all-zero vector yields an
// empty result, never an error.
func (s *RetrievalService) Retrieve(ctx context.Context, kbIDs []uuid.UUID, question string, k int) ([]dto.SourceFragment, error) {
	if len(kbIDs) == 0 || k <= 0 {
		return []dto.SourceFragment{}, nil
	}

	queryVector, err := s.embedder.EmbedQuery(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("failed to embed question: %w", err)
	}
	if isZeroVector(queryVector) {
		return []dto.SourceFragment{}, nil
	}

	var merged []vectorstore.SearchResult
	failed := 0
	for _, kbID := range kbIDs {
		results, err := s.store.Search(ctx, kbID, queryVector, k)
		if err != nil {
			failed++
			s.logger.Warn("Knowledge base search failed, skipping source",
				zap.String("kb_id", kbID.String()),
				zap.Error(err),
			)
			continue
		}
		merged = append(merged, results...)
	}

	if failed == len(kbIDs) {
		return nil, fmt.Errorf("all %d knowledge base searches failed", failed)
	}

	// Stable sort keeps the original per-source ordering for equal distances.
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Distance < merged[j].Distance
	})
	if len(merged) > k {
		merged = merged[:k]
	}

	fragments := make([]dto.SourceFragment, len(merged))
	for i, result := range merged {
		fragments[i] = dto.SourceFragment{
			Content:         result.Content,
			SourceFilename:  result.SourceFile,
			SimilarityScore: Similarity(result.Distance),
			DocumentID:      result.DocumentID.String(),
			ChunkIndex:      result.ChunkIndex,
		}
	}

	return fragments, nil
}

// Similarity converts a raw distance to a bounded score in (0, 1], higher
// meaning more relevant, monotonically decreasing in distance. Negative
// distances map to zero.
func Similarity(distance float64) float64 {
	if distance < 0 {
		return 0
	}
	return 1 / (1 + distance)
}

func isZeroVector(vector []float32) bool {
	for _, v := range vector {
		if v != 0 {
			return false
		}
	}
	return true
}
