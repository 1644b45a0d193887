package models

import (
	"time"

	"github.com/google/uuid"
)

type DocumentStatus string

const (
	DocumentStatusProcessing DocumentStatus = "processing"
	DocumentStatusCompleted  DocumentStatus = "completed"
	DocumentStatusFailed     DocumentStatus = "failed"
)

// Document is one uploaded file belonging to exactly one knowledge base.
// ChunkCount is authoritative only when Status == completed; a retry resets
// it to zero before the pipeline re-runs.
type Document struct {
	ID              uuid.UUID      `db:"id"`
	KnowledgeBaseID uuid.UUID      `db:"kb_id"`
	FileName        string         `db:"file_name"`
	FilePath        string         `db:"file_path"`
	FileType        string         `db:"file_type"`
	FileSize        int64          `db:"file_size"`
	Status          DocumentStatus `db:"status"`
	ChunkCount      int            `db:"chunk_count"`
	ErrorMessage    string         `db:"error_message"`
	CreatedAt       time.Time      `db:"created_at"`
	UpdatedAt       time.Time      `db:"updated_at"`
}
