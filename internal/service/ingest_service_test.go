package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"knova/internal/embedding"
	"knova/internal/loader"
	"knova/internal/models"
	"knova/internal/notify"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeDocStore struct {
	mu        sync.Mutex
	docs      map[uuid.UUID]*models.Document
	completed map[uuid.UUID]int
	failed    map[uuid.UUID]string
	resets    []uuid.UUID
}

func newFakeDocStore(docs ...*models.Document) *fakeDocStore {
	s := &fakeDocStore{
		docs:      make(map[uuid.UUID]*models.Document),
		completed: make(map[uuid.UUID]int),
		failed:    make(map[uuid.UUID]string),
	}
	for _, doc := range docs {
		s.docs[doc.ID] = doc
	}
	return s
}

func (s *fakeDocStore) GetByID(ctx context.Context, id uuid.UUID) (*models.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[id]
	if !ok {
		return nil, errors.New("not found")
	}
	copied := *doc
	return &copied, nil
}

func (s *fakeDocStore) SetCompleted(ctx context.Context, id uuid.UUID, chunkCount int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.completed[id] = chunkCount
	s.docs[id].Status = models.DocumentStatusCompleted
	s.docs[id].ChunkCount = chunkCount
	return nil
}

func (s *fakeDocStore) SetFailed(ctx context.Context, id uuid.UUID, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failed[id] = message
	s.docs[id].Status = models.DocumentStatusFailed
	s.docs[id].ErrorMessage = message
	return nil
}

func (s *fakeDocStore) ResetForRetry(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resets = append(s.resets, id)
	s.docs[id].Status = models.DocumentStatusProcessing
	s.docs[id].ChunkCount = 0
	s.docs[id].ErrorMessage = ""
	return nil
}

type fakeKBGetter struct {
	kb *models.KnowledgeBase
}

func (f *fakeKBGetter) GetByID(ctx context.Context, id uuid.UUID) (*models.KnowledgeBase, error) {
	if f.kb == nil {
		return nil, errors.New("not found")
	}
	return f.kb, nil
}

type fakeTextLoader struct {
	sections []loader.Section
	err      error
}

func (f *fakeTextLoader) Load(path, declaredType string) ([]loader.Section, error) {
	return f.sections, f.err
}

type fixedSplitter struct {
	chunks []string
}

func (f *fixedSplitter) Split(text string) []string { return f.chunks }

type fakeFragmentWriter struct {
	mu      sync.Mutex
	added   []models.Fragment
	vectors [][]float32
	addErr  error
	deleted []uuid.UUID
}

func (f *fakeFragmentWriter) AddFragments(ctx context.Context, kbID uuid.UUID, fragments []models.Fragment, vectors [][]float32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.addErr != nil {
		return f.addErr
	}
	f.added = append(f.added, fragments...)
	f.vectors = append(f.vectors, vectors...)
	return nil
}

func (f *fakeFragmentWriter) DeleteByDocument(ctx context.Context, kbID, documentID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, documentID)
	return nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []notify.Event
}

func (r *recordingPublisher) Publish(userID uuid.UUID, event notify.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

type ingestFixture struct {
	doc      *models.Document
	docs     *fakeDocStore
	writer   *fakeFragmentWriter
	notifier *recordingPublisher
	service  *IngestService
}

func newIngestFixture(textLoader TextLoader, splitter Splitter, writer *fakeFragmentWriter) *ingestFixture {
	ownerID := uuid.New()
	kbID := uuid.New()
	doc := &models.Document{
		ID:              uuid.New(),
		KnowledgeBaseID: kbID,
		FileName:        "report.txt",
		FilePath:        "/tmp/report.txt",
		FileType:        "text",
		Status:          models.DocumentStatusProcessing,
	}
	docs := newFakeDocStore(doc)
	notifier := &recordingPublisher{}
	svc := NewIngestService(
		docs,
		&fakeKBGetter{kb: &models.KnowledgeBase{ID: kbID, UserID: ownerID}},
		textLoader,
		splitter,
		embedding.NewHashEmbedder(16),
		writer,
		notifier,
		1, 4,
		zap.NewNop(),
	)
	return &ingestFixture{doc: doc, docs: docs, writer: writer, notifier: notifier, service: svc}
}

func TestProcessHappyPath(t *testing.T) {
	writer := &fakeFragmentWriter{}
	f := newIngestFixture(
		&fakeTextLoader{sections: []loader.Section{{Index: 0, Text: "some extracted text"}}},
		&fixedSplitter{chunks: []string{"chunk one", "chunk two", "chunk three"}},
		writer,
	)

	f.service.process(context.Background(), f.doc.ID)

	assert.Equal(t, 3, f.docs.completed[f.doc.ID])
	require.Len(t, writer.added, 3)
	require.Len(t, writer.vectors, 3)
	for i, fragment := range writer.added {
		assert.Equal(t, i, fragment.Index)
		assert.Equal(t, f.doc.ID, fragment.DocumentID)
		assert.Equal(t, "report.txt", fragment.SourceFile)
	}

	events := f.notifier.events
	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.Equal(t, string(models.DocumentStatusCompleted), last.Status)
	assert.Equal(t, 100, last.Progress)
}

func TestProcessFailsWhenNoTextExtracted(t *testing.T) {
	f := newIngestFixture(
		&fakeTextLoader{sections: []loader.Section{{Index: 0, Text: "   "}}},
		&fixedSplitter{chunks: nil},
		&fakeFragmentWriter{},
	)

	f.service.process(context.Background(), f.doc.ID)

	assert.Contains(t, f.docs.failed[f.doc.ID], "no text")
	last := f.notifier.events[len(f.notifier.events)-1]
	assert.Equal(t, string(models.DocumentStatusFailed), last.Status)
	assert.NotEmpty(t, last.Message)
}

func TestProcessFailsOnLoaderError(t *testing.T) {
	f := newIngestFixture(
		&fakeTextLoader{err: &loader.ExtractionError{Path: "/tmp/report.txt", Err: errors.New("corrupt file")}},
		&fixedSplitter{},
		&fakeFragmentWriter{},
	)

	f.service.process(context.Background(), f.doc.ID)

	assert.Contains(t, f.docs.failed[f.doc.ID], "corrupt file")
	assert.Empty(t, f.docs.completed)
}

func TestProcessFailsOnVectorStoreError(t *testing.T) {
	writer := &fakeFragmentWriter{addErr: errors.New("storage down")}
	f := newIngestFixture(
		&fakeTextLoader{sections: []loader.Section{{Index: 0, Text: "text"}}},
		&fixedSplitter{chunks: []string{"chunk"}},
		writer,
	)

	f.service.process(context.Background(), f.doc.ID)

	assert.Contains(t, f.docs.failed[f.doc.ID], "storage down")
	assert.Empty(t, f.docs.completed)
}

func TestRetryDeletesVectorsBeforeReRun(t *testing.T) {
	writer := &fakeFragmentWriter{}
	f := newIngestFixture(
		&fakeTextLoader{sections: []loader.Section{{Index: 0, Text: "text"}}},
		&fixedSplitter{chunks: []string{"chunk"}},
		writer,
	)
	f.docs.SetFailed(context.Background(), f.doc.ID, "earlier failure")

	require.NoError(t, f.service.RetryIngestion(context.Background(), f.doc.ID))

	assert.Equal(t, []uuid.UUID{f.doc.ID}, writer.deleted)
	assert.Equal(t, []uuid.UUID{f.doc.ID}, f.docs.resets)
}

func TestProcessFragmentOrderSurvivesBatchedEmbedding(t *testing.T) {
	// More chunks than one embedding batch, so flattening order matters.
	chunks := make([]string, 40)
	for i := range chunks {
		chunks[i] = string(rune('a'+i%26)) + "-chunk"
	}
	writer := &fakeFragmentWriter{}
	f := newIngestFixture(
		&fakeTextLoader{sections: []loader.Section{{Index: 0, Text: "long text"}}},
		&fixedSplitter{chunks: chunks},
		writer,
	)

	f.service.process(context.Background(), f.doc.ID)

	require.Len(t, writer.added, 40)
	embedder := embedding.NewHashEmbedder(16)
	for i, fragment := range writer.added {
		assert.Equal(t, i, fragment.Index)
		want, err := embedder.EmbedQuery(context.Background(), chunks[i])
		require.NoError(t, err)
		assert.Equal(t, want, writer.vectors[i], "vector %d must match its chunk", i)
	}
}

func TestStartIngestionFallsBackWhenQueueFull(t *testing.T) {
	writer := &fakeFragmentWriter{}
	f := newIngestFixture(
		&fakeTextLoader{sections: []loader.Section{{Index: 0, Text: "text"}}},
		&fixedSplitter{chunks: []string{"chunk"}},
		writer,
	)

	// Workers are not running, so the queue (capacity 4) fills up; further
	// starts must not block.
	for i := 0; i < 10; i++ {
		f.service.StartIngestion(f.doc.ID)
	}
}
