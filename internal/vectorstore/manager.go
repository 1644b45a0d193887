package vectorstore

import (
	"context"
	"sync"

	"knova/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// Manager owns one logical vector collection per knowledge base. Handles are
// created lazily and cached; the check-then-create sequence is serialized so
// concurrent callers never race into duplicate handles for the same id.
type Manager struct {
	db     *pgxpool.Pool
	logger *zap.Logger

	mu          sync.Mutex
	collections map[uuid.UUID]*Collection
}

func NewManager(db *pgxpool.Pool, logger *zap.Logger) *Manager {
	return &Manager{
		db:          db,
		logger:      logger,
		collections: make(map[uuid.UUID]*Collection),
	}
}

// Collection returns the live handle for the knowledge base, creating it on
// first use. There is never more than one live handle per id.
func (m *Manager) Collection(kbID uuid.UUID) *Collection {
	m.mu.Lock()
	defer m.mu.Unlock()

	if collection, ok := m.collections[kbID]; ok {
		return collection
	}

	collection := newCollection(kbID, m.db, m.logger)
	m.collections[kbID] = collection
	return collection
}

// AddFragments appends tagged vectors to the knowledge base's collection.
func (m *Manager) AddFragments(ctx context.Context, kbID uuid.UUID, fragments []models.Fragment, vectors [][]float32) error {
	return m.Collection(kbID).AddFragments(ctx, fragments, vectors)
}

// Search runs a similarity search over one knowledge base's collection.
func (m *Manager) Search(ctx context.Context, kbID uuid.UUID, queryVector []float32, k int) ([]SearchResult, error) {
	return m.Collection(kbID).Search(ctx, queryVector, k, nil)
}

// DeleteByDocument removes all vectors of one document from the collection.
func (m *Manager) DeleteByDocument(ctx context.Context, kbID, documentID uuid.UUID) error {
	return m.Collection(kbID).DeleteByDocument(ctx, documentID)
}

// CountByDocument reports the stored vector count for one document.
func (m *Manager) CountByDocument(ctx context.Context, kbID, documentID uuid.UUID) (int, error) {
	return m.Collection(kbID).CountByDocument(ctx, documentID)
}

// DeleteCollection destroys the knowledge base's entire collection and drops
// the cached handle. Used when the knowledge base itself is deleted.
func (m *Manager) DeleteCollection(ctx context.Context, kbID uuid.UUID) error {
	collection := m.Collection(kbID)
	if err := collection.destroy(ctx); err != nil {
		return err
	}

	m.mu.Lock()
	delete(m.collections, kbID)
	m.mu.Unlock()

	m.logger.Info("Vector collection deleted", zap.String("kb_id", kbID.String()))
	return nil
}
