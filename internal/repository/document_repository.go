package repository

import (
	"context"

	"knova/internal/models"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

var documentColumns = []string{
	"id", "kb_id", "file_name", "file_path", "file_type", "file_size",
	"status", "chunk_count", "error_message", "created_at", "updated_at",
}

type DocumentRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewDocumentRepository(db *pgxpool.Pool, logger *zap.Logger) *DocumentRepository {
	return &DocumentRepository{
		db:     db,
		logger: logger,
	}
}

func (r *DocumentRepository) Create(ctx context.Context, doc *models.Document) error {
	query := squirrel.Insert("documents").
		Columns(documentColumns...).
		Values(doc.ID, doc.KnowledgeBaseID, doc.FileName, doc.FilePath, doc.FileType, doc.FileSize,
			doc.Status, doc.ChunkCount, doc.ErrorMessage, doc.CreatedAt, doc.UpdatedAt).
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return err
	}

	_, err = r.db.Exec(ctx, sql, args...)
	return err
}

func (r *DocumentRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Document, error) {
	query := squirrel.Select(documentColumns...).
		From("documents").
		Where(squirrel.Eq{"id": id}).
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}

	var doc models.Document
	err = r.db.QueryRow(ctx, sql, args...).Scan(
		&doc.ID, &doc.KnowledgeBaseID, &doc.FileName, &doc.FilePath, &doc.FileType, &doc.FileSize,
		&doc.Status, &doc.ChunkCount, &doc.ErrorMessage, &doc.CreatedAt, &doc.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	return &doc, nil
}

func (r *DocumentRepository) ListByKnowledgeBase(ctx context.Context, kbID uuid.UUID, limit, offset int) ([]*models.Document, error) {
	query := squirrel.Select(documentColumns...).
		From("documents").
		Where(squirrel.Eq{"kb_id": kbID}).
		OrderBy("created_at DESC").
		Limit(uint64(limit)).
		Offset(uint64(offset)).
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var documents []*models.Document
	for rows.Next() {
		var doc models.Document
		if err := rows.Scan(
			&doc.ID, &doc.KnowledgeBaseID, &doc.FileName, &doc.FilePath, &doc.FileType, &doc.FileSize,
			&doc.Status, &doc.ChunkCount, &doc.ErrorMessage, &doc.CreatedAt, &doc.UpdatedAt,
		); err != nil {
			return nil, err
		}
		documents = append(documents, &doc)
	}

	return documents, rows.Err()
}

// SetCompleted marks a successful pipeline run, recording the exact fragment
// count and clearing any earlier failure message.
func (r *DocumentRepository) SetCompleted(ctx context.Context, id uuid.UUID, chunkCount int) error {
	return r.update(ctx, squirrel.Update("documents").
		Set("status", models.DocumentStatusCompleted).
		Set("chunk_count", chunkCount).
		Set("error_message", "").
		Set("updated_at", squirrel.Expr("NOW()")).
		Where(squirrel.Eq{"id": id}))
}

// SetFailed marks a failed pipeline run and persists the failure message.
func (r *DocumentRepository) SetFailed(ctx context.Context, id uuid.UUID, message string) error {
	return r.update(ctx, squirrel.Update("documents").
		Set("status", models.DocumentStatusFailed).
		Set("error_message", message).
		Set("updated_at", squirrel.Expr("NOW()")).
		Where(squirrel.Eq{"id": id}))
}

// ResetForRetry puts the document back into processing with a zero chunk
// count and no error message, before the pipeline re-runs.
func (r *DocumentRepository) ResetForRetry(ctx context.Context, id uuid.UUID) error {
	return r.update(ctx, squirrel.Update("documents").
		Set("status", models.DocumentStatusProcessing).
		Set("chunk_count", 0).
		Set("error_message", "").
		Set("updated_at", squirrel.Expr("NOW()")).
		Where(squirrel.Eq{"id": id}))
}

func (r *DocumentRepository) Delete(ctx context.Context, id uuid.UUID) error {
	sql, args, err := squirrel.Delete("documents").
		Where(squirrel.Eq{"id": id}).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return err
	}

	_, err = r.db.Exec(ctx, sql, args...)
	return err
}

func (r *DocumentRepository) update(ctx context.Context, builder squirrel.UpdateBuilder) error {
	sql, args, err := builder.PlaceholderFormat(squirrel.Dollar).ToSql()
	if err != nil {
		return err
	}

	_, err = r.db.Exec(ctx, sql, args...)
	return err
}
