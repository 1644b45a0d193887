package models

import (
	"time"

	"github.com/google/uuid"
)

// KnowledgeBase is a user-owned named grouping of documents. It owns exactly
// one vector collection keyed by its id. EmbeddingDim is the established
// dimensionality of that collection; zero means no vectors were stored yet.
type KnowledgeBase struct {
	ID           uuid.UUID `db:"id"`
	UserID       uuid.UUID `db:"user_id"`
	Name         string    `db:"name"`
	Description  string    `db:"description"`
	EmbeddingDim int       `db:"embedding_dim"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}
