package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"knova/internal/dto"
	"knova/internal/models"
	"knova/internal/repository"
	"knova/internal/vectorstore"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var ErrNotOwner = errors.New("resource does not belong to the user")

// KnowledgeService owns the knowledge base lifecycle. Deleting a knowledge
// base destroys its vector collection, its document rows and the stored
// files.
type KnowledgeService struct {
	kbRepo  *repository.KnowledgeBaseRepository
	docRepo *repository.DocumentRepository
	vectors *vectorstore.Manager
	logger  *zap.Logger
}

func NewKnowledgeService(
	kbRepo *repository.KnowledgeBaseRepository,
	docRepo *repository.DocumentRepository,
	vectors *vectorstore.Manager,
	logger *zap.Logger,
) *KnowledgeService {
	return &KnowledgeService{
		kbRepo:  kbRepo,
		docRepo: docRepo,
		vectors: vectors,
		logger:  logger,
	}
}

func (s *KnowledgeService) Create(ctx context.Context, userID uuid.UUID, req *dto.CreateKnowledgeBaseRequest) (*dto.KnowledgeBaseResponse, error) {
	now := time.Now()
	kb := &models.KnowledgeBase{
		ID:          uuid.New(),
		UserID:      userID,
		Name:        req.Name,
		Description: req.Description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.kbRepo.Create(ctx, kb); err != nil {
		return nil, fmt.Errorf("failed to create knowledge base: %w", err)
	}

	return knowledgeBaseResponse(kb), nil
}

func (s *KnowledgeService) Get(ctx context.Context, userID, kbID uuid.UUID) (*dto.KnowledgeBaseResponse, error) {
	kb, err := s.owned(ctx, userID, kbID)
	if err != nil {
		return nil, err
	}
	return knowledgeBaseResponse(kb), nil
}

func (s *KnowledgeService) List(ctx context.Context, userID uuid.UUID) ([]*dto.KnowledgeBaseResponse, error) {
	bases, err := s.kbRepo.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	responses := make([]*dto.KnowledgeBaseResponse, len(bases))
	for i, kb := range bases {
		responses[i] = knowledgeBaseResponse(kb)
	}
	return responses, nil
}

// Delete removes the knowledge base, its vector collection, all document
// rows and the uploaded files on disk.
func (s *KnowledgeService) Delete(ctx context.Context, userID, kbID uuid.UUID) error {
	kb, err := s.owned(ctx, userID, kbID)
	if err != nil {
		return err
	}

	if err := s.vectors.DeleteCollection(ctx, kb.ID); err != nil {
		return fmt.Errorf("failed to delete vector collection: %w", err)
	}

	docs, err := s.docRepo.ListByKnowledgeBase(ctx, kb.ID, 10000, 0)
	if err != nil {
		return err
	}
	for _, doc := range docs {
		if err := os.Remove(doc.FilePath); err != nil && !os.IsNotExist(err) {
			s.logger.Warn("Failed to remove stored file",
				zap.String("path", doc.FilePath),
				zap.Error(err),
			)
		}
	}

	// Document rows cascade with the knowledge base row.
	if err := s.kbRepo.Delete(ctx, kb.ID); err != nil {
		return fmt.Errorf("failed to delete knowledge base: %w", err)
	}

	s.logger.Info("Knowledge base deleted",
		zap.String("kb_id", kb.ID.String()),
		zap.Int("documents", len(docs)),
	)
	return nil
}

// VerifyOwnership checks that every knowledge base exists and belongs to the
// user. Queries spanning several bases must not leak into someone else's.
func (s *KnowledgeService) VerifyOwnership(ctx context.Context, userID uuid.UUID, kbIDs []uuid.UUID) error {
	for _, kbID := range kbIDs {
		if _, err := s.owned(ctx, userID, kbID); err != nil {
			return err
		}
	}
	return nil
}

// owned fetches the knowledge base and verifies the caller owns it.
func (s *KnowledgeService) owned(ctx context.Context, userID, kbID uuid.UUID) (*models.KnowledgeBase, error) {
	kb, err := s.kbRepo.GetByID(ctx, kbID)
	if err != nil {
		return nil, fmt.Errorf("knowledge base not found: %w", err)
	}
	if kb.UserID != userID {
		return nil, ErrNotOwner
	}
	return kb, nil
}

func knowledgeBaseResponse(kb *models.KnowledgeBase) *dto.KnowledgeBaseResponse {
	return &dto.KnowledgeBaseResponse{
		ID:           kb.ID.String(),
		Name:         kb.Name,
		Description:  kb.Description,
		EmbeddingDim: kb.EmbeddingDim,
		CreatedAt:    kb.CreatedAt.Format(time.RFC3339),
	}
}
