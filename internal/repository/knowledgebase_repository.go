package repository

import (
	"context"

	"knova/internal/models"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

var knowledgeBaseColumns = []string{
	"id", "user_id", "name", "description", "embedding_dim", "created_at", "updated_at",
}

type KnowledgeBaseRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewKnowledgeBaseRepository(db *pgxpool.Pool, logger *zap.Logger) *KnowledgeBaseRepository {
	return &KnowledgeBaseRepository{
		db:     db,
		logger: logger,
	}
}

func (r *KnowledgeBaseRepository) Create(ctx context.Context, kb *models.KnowledgeBase) error {
	query := squirrel.Insert("knowledge_bases").
		Columns(knowledgeBaseColumns...).
		Values(kb.ID, kb.UserID, kb.Name, kb.Description, kb.EmbeddingDim, kb.CreatedAt, kb.UpdatedAt).
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return err
	}

	_, err = r.db.Exec(ctx, sql, args...)
	return err
}

func (r *KnowledgeBaseRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.KnowledgeBase, error) {
	query := squirrel.Select(knowledgeBaseColumns...).
		From("knowledge_bases").
		Where(squirrel.Eq{"id": id}).
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}

	var kb models.KnowledgeBase
	err = r.db.QueryRow(ctx, sql, args...).Scan(
		&kb.ID, &kb.UserID, &kb.Name, &kb.Description, &kb.EmbeddingDim, &kb.CreatedAt, &kb.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	return &kb, nil
}

func (r *KnowledgeBaseRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.KnowledgeBase, error) {
	query := squirrel.Select(knowledgeBaseColumns...).
		From("knowledge_bases").
		Where(squirrel.Eq{"user_id": userID}).
		OrderBy("created_at DESC").
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

	var bases []*models.KnowledgeBase
	for rows.Next() {
		var kb models.KnowledgeBase
		if err := rows.Scan(
			&kb.ID, &kb.UserID, &kb.Name, &kb.Description, &kb.EmbeddingDim, &kb.CreatedAt, &kb.UpdatedAt,
		); err != nil {
			return nil, err
		}
		bases = append(bases, &kb)
	}

	return bases, rows.Err()
}

// Delete removes the knowledge base row. Document rows cascade at the schema
// level; vectors are destroyed separately through the collection manager.
func (r *KnowledgeBaseRepository) Delete(ctx context.Context, id uuid.UUID) error {
	sql, args, err := squirrel.Delete("knowledge_bases").
		Where(squirrel.Eq{"id": id}).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return err
	}

	_, err = r.db.Exec(ctx, sql, args...)
	return err
}
