package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"time"

	"knova/internal/dto"
	"knova/internal/models"
	"knova/internal/repository"
	"knova/internal/vectorstore"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const maxUploadSize = 50 << 20 // 50 MB

var (
	ErrFileTooLarge = errors.New("file exceeds the upload size limit")
	ErrNotRetryable = errors.New("only failed documents can be retried")
	ErrStillRunning = errors.New("document is still being processed")
)

// Ingester is the slice of the ingestion pipeline the document service
// drives: enqueue a fresh run or re-run a failed one.
type Ingester interface {
	StartIngestion(documentID uuid.UUID)
	RetryIngestion(ctx context.Context, documentID uuid.UUID) error
}

// TypeResolver decides the canonical document type for an upload, or rejects
// it as unsupported.
type TypeResolver func(fileName, declaredType string) (string, error)

// DocumentService handles uploads and the document lifecycle. The file is
// persisted to disk and the row created before the pipeline is enqueued, so
// a crash between the two leaves a retryable processing row rather than a
// lost upload.
type DocumentService struct {
	docRepo     *repository.DocumentRepository
	kbRepo      *repository.KnowledgeBaseRepository
	vectors     *vectorstore.Manager
	ingester    Ingester
	resolveType TypeResolver
	uploadDir   string
	logger      *zap.Logger
}

func NewDocumentService(
	docRepo *repository.DocumentRepository,
	kbRepo *repository.KnowledgeBaseRepository,
	vectors *vectorstore.Manager,
	ingester Ingester,
	resolveType TypeResolver,
	uploadDir string,
	logger *zap.Logger,
) *DocumentService {
	return &DocumentService{
		docRepo:     docRepo,
		kbRepo:      kbRepo,
		vectors:     vectors,
		ingester:    ingester,
		resolveType: resolveType,
		uploadDir:   uploadDir,
		logger:      logger,
	}
}

// Upload stores the file, creates the document row in processing state and
// enqueues the ingestion pipeline. The response is returned immediately;
// progress is observable through the document status and the event stream.
func (s *DocumentService) Upload(ctx context.Context, userID, kbID uuid.UUID, fileHeader *multipart.FileHeader) (*dto.DocumentResponse, error) {
	kb, err := s.kbRepo.GetByID(ctx, kbID)
	if err != nil {
		return nil, fmt.Errorf("knowledge base not found: %w", err)
	}
	if kb.UserID != userID {
		return nil, ErrNotOwner
	}

	if fileHeader.Size > maxUploadSize {
		return nil, ErrFileTooLarge
	}

	fileType, err := s.resolveType(fileHeader.Filename, fileHeader.Header.Get("Content-Type"))
	if err != nil {
		return nil, err
	}

	docID := uuid.New()
	storedPath, err := s.saveFile(fileHeader, kbID, docID)
	if err != nil {
		return nil, fmt.Errorf("failed to store uploaded file: %w", err)
	}

	now := time.Now()
	doc := &models.Document{
		ID:              docID,
		KnowledgeBaseID: kbID,
		FileName:        fileHeader.Filename,
		FilePath:        storedPath,
		FileType:        fileType,
		FileSize:        fileHeader.Size,
		Status:          models.DocumentStatusProcessing,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := s.docRepo.Create(ctx, doc); err != nil {
		if rmErr := os.Remove(storedPath); rmErr != nil {
			s.logger.Warn("Failed to remove orphaned upload",
				zap.String("path", storedPath),
				zap.Error(rmErr),
			)
		}
		return nil, fmt.Errorf("failed to create document: %w", err)
	}

	s.ingester.StartIngestion(doc.ID)

	s.logger.Info("Document accepted for ingestion",
		zap.String("document_id", doc.ID.String()),
		zap.String("kb_id", kbID.String()),
		zap.String("file_type", fileType),
		zap.Int64("file_size", fileHeader.Size),
	)
	return documentResponse(doc), nil
}

func (s *DocumentService) Get(ctx context.Context, userID, docID uuid.UUID) (*dto.DocumentResponse, error) {
	doc, _, err := s.owned(ctx, userID, docID)
	if err != nil {
		return nil, err
	}
	return documentResponse(doc), nil
}

func (s *DocumentService) List(ctx context.Context, userID, kbID uuid.UUID, limit, offset int) ([]*dto.DocumentResponse, error) {
	kb, err := s.kbRepo.GetByID(ctx, kbID)
	if err != nil {
		return nil, fmt.Errorf("knowledge base not found: %w", err)
	}
	if kb.UserID != userID {
		return nil, ErrNotOwner
	}

	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	docs, err := s.docRepo.ListByKnowledgeBase(ctx, kbID, limit, offset)
	if err != nil {
		return nil, err
	}

	responses := make([]*dto.DocumentResponse, len(docs))
	for i, doc := range docs {
		responses[i] = documentResponse(doc)
	}
	return responses, nil
}

// Retry re-runs ingestion for a failed document.
func (s *DocumentService) Retry(ctx context.Context, userID, docID uuid.UUID) (*dto.DocumentResponse, error) {
	doc, _, err := s.owned(ctx, userID, docID)
	if err != nil {
		return nil, err
	}
	if doc.Status != models.DocumentStatusFailed {
		return nil, ErrNotRetryable
	}

	if err := s.ingester.RetryIngestion(ctx, doc.ID); err != nil {
		return nil, err
	}

	doc.Status = models.DocumentStatusProcessing
	doc.ChunkCount = 0
	doc.ErrorMessage = ""
	return documentResponse(doc), nil
}

// Delete removes the document's vectors, its row and the stored file. A
// document still in processing cannot be deleted; the pipeline run would
// re-insert fragments after the delete.
func (s *DocumentService) Delete(ctx context.Context, userID, docID uuid.UUID) error {
	doc, _, err := s.owned(ctx, userID, docID)
	if err != nil {
		return err
	}
	if doc.Status == models.DocumentStatusProcessing {
		return ErrStillRunning
	}

	if err := s.vectors.DeleteByDocument(ctx, doc.KnowledgeBaseID, doc.ID); err != nil {
		return fmt.Errorf("failed to delete fragments: %w", err)
	}
	if err := s.docRepo.Delete(ctx, doc.ID); err != nil {
		return err
	}
	if err := os.Remove(doc.FilePath); err != nil && !os.IsNotExist(err) {
		s.logger.Warn("Failed to remove stored file",
			zap.String("path", doc.FilePath),
			zap.Error(err),
		)
	}

	s.logger.Info("Document deleted",
		zap.String("document_id", doc.ID.String()),
		zap.String("kb_id", doc.KnowledgeBaseID.String()),
	)
	return nil
}

// owned fetches the document and verifies that the caller owns the knowledge
// base it belongs to.
func (s *DocumentService) owned(ctx context.Context, userID, docID uuid.UUID) (*models.Document, *models.KnowledgeBase, error) {
	doc, err := s.docRepo.GetByID(ctx, docID)
	if err != nil {
		return nil, nil, fmt.Errorf("document not found: %w", err)
	}
	kb, err := s.kbRepo.GetByID(ctx, doc.KnowledgeBaseID)
	if err != nil {
		return nil, nil, fmt.Errorf("knowledge base not found: %w", err)
	}
	if kb.UserID != userID {
		return nil, nil, ErrNotOwner
	}
	return doc, kb, nil
}

// saveFile copies the upload into uploadDir/<kbID>/<docID><ext>.
func (s *DocumentService) saveFile(fileHeader *multipart.FileHeader, kbID, docID uuid.UUID) (string, error) {
	dir := filepath.Join(s.uploadDir, kbID.String())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}

	src, err := fileHeader.Open()
	if err != nil {
		return "", err
	}
	defer src.Close()

	path := filepath.Join(dir, docID.String()+filepath.Ext(fileHeader.Filename))
	dst, err := os.Create(path)
	if err != nil {
		return "", err
	}

	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(path)
		return "", err
	}
	if err := dst.Close(); err != nil {
		os.Remove(path)
		return "", err
	}

	return path, nil
}

func documentResponse(doc *models.Document) *dto.DocumentResponse {
	return &dto.DocumentResponse{
		ID:              doc.ID.String(),
		KnowledgeBaseID: doc.KnowledgeBaseID.String(),
		FileName:        doc.FileName,
		FileType:        doc.FileType,
		FileSize:        doc.FileSize,
		Status:          string(doc.Status),
		ChunkCount:      doc.ChunkCount,
		ErrorMessage:    doc.ErrorMessage,
		CreatedAt:       doc.CreatedAt.Format(time.RFC3339),
	}
}
