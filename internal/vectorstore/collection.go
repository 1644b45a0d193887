package vectorstore

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"knova/internal/models"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// SearchResult is one ranked fragment returned by a similarity search.
// Distance is the raw cosine distance, lower is closer.
type SearchResult struct {
	DocumentID uuid.UUID
	ChunkIndex int
	Content    string
	SourceFile string
	Distance   float64
}

// Collection is the live handle for one knowledge base's vectors. All vectors
// in a collection share one dimensionality, established by the first stored
// batch and persisted on the knowledge base row so it survives restarts.
type Collection struct {
	kbID   uuid.UUID
	db     *pgxpool.Pool
	logger *zap.Logger

	mu        sync.Mutex
	dim       int
	dimLoaded bool
}

func newCollection(kbID uuid.UUID, db *pgxpool.Pool, logger *zap.Logger) *Collection {
	return &Collection{kbID: kbID, db: db, logger: logger}
}

// AddFragments appends vectors tagged with document metadata. The batch must
// be internally consistent and match the collection's established dimension;
// a disagreement surfaces as DimensionMismatchError, never silent coercion.
func (c *Collection) AddFragments(ctx context.Context, fragments []models.Fragment, vectors [][]float32) error {
	if len(fragments) == 0 {
		return nil
	}
	if len(fragments) != len(vectors) {
		return &UnavailableError{Err: fmt.Errorf("got %d fragments but %d vectors", len(fragments), len(vectors))}
	}

	batchDim := len(vectors[0])
	for _, v := range vectors {
		if len(v) != batchDim {
			return &DimensionMismatchError{Expected: batchDim, Actual: len(v)}
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	dim, err := c.dimensionLocked(ctx)
	if err != nil {
		return err
	}
	if dim != 0 && dim != batchDim {
		return &DimensionMismatchError{Expected: dim, Actual: batchDim}
	}

	builder := squirrel.Insert("fragments").
		Columns("id", "kb_id", "document_id", "chunk_index", "source_file", "content", "embedding", "created_at").
		PlaceholderFormat(squirrel.Dollar)

	now := time.Now()
	for i, fragment := range fragments {
		builder = builder.Values(
			uuid.New(), c.kbID, fragment.DocumentID, fragment.Index,
			fragment.SourceFile, fragment.Content,
			squirrel.Expr("?::vector", vectorLiteral(vectors[i])), now,
		)
	}

	sql, args, err := builder.ToSql()
	if err != nil {
		return &UnavailableError{Err: err}
	}
	if _, err := c.db.Exec(ctx, sql, args...); err != nil {
		return &UnavailableError{Err: err}
	}

	if dim == 0 {
		if err := c.establishDimensionLocked(ctx, batchDim); err != nil {
			return err
		}
	}

	return nil
}

// Search returns up to k fragments ranked by ascending cosine distance.
// filterDocumentID, when non-nil, restricts the search to one document.
// Searching an empty collection returns an empty list.
func (c *Collection) Search(ctx context.Context, queryVector []float32, k int, filterDocumentID *uuid.UUID) ([]SearchResult, error) {
	if k <= 0 || len(queryVector) == 0 {
		return nil, nil
	}

	c.mu.Lock()
	dim, err := c.dimensionLocked(ctx)
	c.mu.Unlock()
	if err != nil {
		return nil, err
	}
	if dim == 0 {
		return nil, nil
	}
	if len(queryVector) != dim {
		return nil, &DimensionMismatchError{Expected: dim, Actual: len(queryVector)}
	}

	builder := squirrel.Select("document_id", "chunk_index", "content", "source_file").
		Column(squirrel.Expr("embedding <=> ?::vector AS distance", vectorLiteral(queryVector))).
		From("fragments").
		Where(squirrel.Eq{"kb_id": c.kbID}).
		OrderBy("distance ASC").
		Limit(uint64(k)).
		PlaceholderFormat(squirrel.Dollar)

	if filterDocumentID != nil {
		builder = builder.Where(squirrel.Eq{"document_id": *filterDocumentID})
	}

	sql, args, err := builder.ToSql()
	if err != nil {
		return nil, &UnavailableError{Err: err}
	}

	rows, err := c.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, &UnavailableError{Err: err}
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		var result SearchResult
		if err := rows.Scan(&result.DocumentID, &result.ChunkIndex, &result.Content, &result.SourceFile, &result.Distance); err != nil {
			return nil, &UnavailableError{Err: err}
		}
		results = append(results, result)
	}
	if err := rows.Err(); err != nil {
		return nil, &UnavailableError{Err: err}
	}

	return results, nil
}

// DeleteByDocument removes every vector tagged with the document id. Used on
// document delete and before a retry re-vectorizes the document.
func (c *Collection) DeleteByDocument(ctx context.Context, documentID uuid.UUID) error {
	sql, args, err := squirrel.Delete("fragments").
		Where(squirrel.Eq{"kb_id": c.kbID, "document_id": documentID}).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return &UnavailableError{Err: err}
	}
	if _, err := c.db.Exec(ctx, sql, args...); err != nil {
		return &UnavailableError{Err: err}
	}
	return nil
}

// CountByDocument reports how many vectors are stored for one document.
func (c *Collection) CountByDocument(ctx context.Context, documentID uuid.UUID) (int, error) {
	sql, args, err := squirrel.Select("COUNT(*)").
		From("fragments").
		Where(squirrel.Eq{"kb_id": c.kbID, "document_id": documentID}).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return 0, &UnavailableError{Err: err}
	}

	var count int
	if err := c.db.QueryRow(ctx, sql, args...).Scan(&count); err != nil {
		return 0, &UnavailableError{Err: err}
	}
	return count, nil
}

// destroy removes every vector in the collection and clears the established
// dimension, so the knowledge base could be re-populated from scratch.
func (c *Collection) destroy(ctx context.Context) error {
	sql, args, err := squirrel.Delete("fragments").
		Where(squirrel.Eq{"kb_id": c.kbID}).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return &UnavailableError{Err: err}
	}
	if _, err := c.db.Exec(ctx, sql, args...); err != nil {
		return &UnavailableError{Err: err}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.dim = 0
	c.dimLoaded = true
	return c.persistDimensionLocked(ctx, 0)
}

// dimensionLocked lazily loads the persisted dimension. Caller holds c.mu.
func (c *Collection) dimensionLocked(ctx context.Context) (int, error) {
	if c.dimLoaded {
		return c.dim, nil
	}

	sql, args, err := squirrel.Select("embedding_dim").
		From("knowledge_bases").
		Where(squirrel.Eq{"id": c.kbID}).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return 0, &UnavailableError{Err: err}
	}

	var dim int
	if err := c.db.QueryRow(ctx, sql, args...).Scan(&dim); err != nil {
		return 0, &UnavailableError{Err: err}
	}

	c.dim = dim
	c.dimLoaded = true
	return dim, nil
}

func (c *Collection) establishDimensionLocked(ctx context.Context, dim int) error {
	if err := c.persistDimensionLocked(ctx, dim); err != nil {
		return err
	}
	c.dim = dim
	c.dimLoaded = true
	c.logger.Info("Collection dimension established",
		zap.String("kb_id", c.kbID.String()),
		zap.Int("dimension", dim),
	)
	return nil
}

func (c *Collection) persistDimensionLocked(ctx context.Context, dim int) error {
	sql, args, err := squirrel.Update("knowledge_bases").
		Set("embedding_dim", dim).
		Set("updated_at", squirrel.Expr("NOW()")).
		Where(squirrel.Eq{"id": c.kbID}).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return &UnavailableError{Err: err}
	}
	if _, err := c.db.Exec(ctx, sql, args...); err != nil {
		return &UnavailableError{Err: err}
	}
	return nil
}

// vectorLiteral renders a vector in pgvector's text format: [0.1,0.2,...].
func vectorLiteral(vector []float32) string {
	var builder strings.Builder
	builder.WriteByte('[')
	for i, v := range vector {
		if i > 0 {
			builder.WriteByte(',')
		}
		builder.WriteString(strconv.FormatFloat(float64(v), 'f', -1, 32))
	}
	builder.WriteByte(']')
	return builder.String()
}
