package service

import (
	"context"
	"strings"
	"sync"

	"knova/internal/embedding"
	"knova/internal/loader"
	"knova/internal/models"
	"knova/internal/notify"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Batch size for embedding calls and the cap on concurrent batches within one
// document. Fragment order in metadata is preserved regardless.
const (
	embedBatchSize     = 16
	embedBatchParallel = 4
)

// DocumentStore is the slice of the document repository the pipeline needs.
type DocumentStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Document, error)
	SetCompleted(ctx context.Context, id uuid.UUID, chunkCount int) error
	SetFailed(ctx context.Context, id uuid.UUID, message string) error
	ResetForRetry(ctx context.Context, id uuid.UUID) error
}

// KnowledgeBaseGetter resolves the owning knowledge base, used to address
// progress events to its owner.
type KnowledgeBaseGetter interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.KnowledgeBase, error)
}

// TextLoader extracts ordered text sections from a stored file.
type TextLoader interface {
	Load(path, declaredType string) ([]loader.Section, error)
}

// Splitter cuts extracted text into ordered overlapping fragments.
type Splitter interface {
	Split(text string) []string
}

// FragmentWriter is the slice of the vector collection manager the pipeline
// writes through.
type FragmentWriter interface {
	AddFragments(ctx context.Context, kbID uuid.UUID, fragments []models.Fragment, vectors [][]float32) error
	DeleteByDocument(ctx context.Context, kbID, documentID uuid.UUID) error
}

// IngestService drives the load → chunk → embed → store pipeline for one
// document per job, from a bounded worker pool. Errors at any step are
// recorded on the document row, never propagated to whoever enqueued the job.
type IngestService struct {
	docs     DocumentStore
	kbs      KnowledgeBaseGetter
	loader   TextLoader
	splitter Splitter
	embedder embedding.Embedder
	vectors  FragmentWriter
	notifier notify.Publisher
	logger   *zap.Logger

	queue   chan uuid.UUID
	workers int
	wg      sync.WaitGroup
}

func NewIngestService(
	docs DocumentStore,
	kbs KnowledgeBaseGetter,
	textLoader TextLoader,
	splitter Splitter,
	embedder embedding.Embedder,
	vectors FragmentWriter,
	notifier notify.Publisher,
	workers, queueSize int,
	logger *zap.Logger,
) *IngestService {
	if workers <= 0 {
		workers = 3
	}
	if queueSize <= 0 {
		queueSize = 64
	}
	return &IngestService{
		docs:     docs,
		kbs:      kbs,
		loader:   textLoader,
		splitter: splitter,
		embedder: embedder,
		vectors:  vectors,
		notifier: notifier,
		logger:   logger,
		queue:    make(chan uuid.UUID, queueSize),
		workers:  workers,
	}
}

// Run starts the worker pool and blocks until ctx is cancelled and all
// in-flight runs have finished. A run already picked up is completed even
// during shutdown; only queued jobs not yet claimed are abandoned.
func (s *IngestService) Run(ctx context.Context) {
	for i := 0; i < s.workers; i++ {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case documentID := <-s.queue:
					s.process(context.Background(), documentID)
				}
			}
		}()
	}
	s.wg.Wait()
}

// StartIngestion enqueues a pipeline run for the document. The document row
// must already exist in processing state. When the queue is full the run is
// dispatched on its own goroutine instead, so the caller never blocks.
func (s *IngestService) StartIngestion(documentID uuid.UUID) {
	select {
	case s.queue <- documentID:
	default:
		s.logger.Warn("Ingest queue full, running document on a detached goroutine",
			zap.String("document_id", documentID.String()),
		)
		go s.process(context.Background(), documentID)
	}
}

// RetryIngestion deletes any previously stored vectors for the document,
// resets its row to processing with a zero chunk count, and re-enters the
// pipeline. This keeps at most one complete vector set per document no matter
// how often a failed run is retried.
func (s *IngestService) RetryIngestion(ctx context.Context, documentID uuid.UUID) error {
	doc, err := s.docs.GetByID(ctx, documentID)
	if err != nil {
		return err
	}

	if err := s.vectors.DeleteByDocument(ctx, doc.KnowledgeBaseID, doc.ID); err != nil {
		return err
	}
	if err := s.docs.ResetForRetry(ctx, doc.ID); err != nil {
		return err
	}

	s.StartIngestion(doc.ID)
	return nil
}

func (s *IngestService) process(ctx context.Context, documentID uuid.UUID) {
	doc, err := s.docs.GetByID(ctx, documentID)
	if err != nil {
		s.logger.Error("Ingest job refers to unknown document",
			zap.String("document_id", documentID.String()),
			zap.Error(err),
		)
		return
	}

	ownerID := uuid.Nil
	if kb, err := s.kbs.GetByID(ctx, doc.KnowledgeBaseID); err == nil {
		ownerID = kb.UserID
	}

	s.progress(ownerID, doc.ID, models.DocumentStatusProcessing, 5, "")

	sections, err := s.loader.Load(doc.FilePath, doc.FileType)
	if err != nil {
		s.fail(ctx, ownerID, doc.ID, err)
		return
	}
	text := loader.JoinSections(sections)
	if strings.TrimSpace(text) == "" {
		s.fail(ctx, ownerID, doc.ID, errNoText)
		return
	}
	s.progress(ownerID, doc.ID, models.DocumentStatusProcessing, 25, "")

	chunks := s.splitter.Split(text)
	if len(chunks) == 0 {
		s.fail(ctx, ownerID, doc.ID, errNoFragments)
		return
	}
	fragments := make([]models.Fragment, len(chunks))
	for i, chunk := range chunks {
		fragments[i] = models.Fragment{
			KnowledgeBaseID: doc.KnowledgeBaseID,
			DocumentID:      doc.ID,
			Index:           i,
			Content:         chunk,
			SourceFile:      doc.FileName,
		}
	}
	s.progress(ownerID, doc.ID, models.DocumentStatusProcessing, 45, "")

	vectors, err := s.embedAll(ctx, chunks)
	if err != nil {
		s.fail(ctx, ownerID, doc.ID, err)
		return
	}
	s.progress(ownerID, doc.ID, models.DocumentStatusProcessing, 75, "")

	// If this fails after a partial write there is no compensating rollback:
	// a retry deletes the document's vectors before re-running.
	if err := s.vectors.AddFragments(ctx, doc.KnowledgeBaseID, fragments, vectors); err != nil {
		s.fail(ctx, ownerID, doc.ID, err)
		return
	}

	if err := s.docs.SetCompleted(ctx, doc.ID, len(fragments)); err != nil {
		s.logger.Error("Failed to mark document completed",
			zap.String("document_id", doc.ID.String()),
			zap.Error(err),
		)
		return
	}

	s.progress(ownerID, doc.ID, models.DocumentStatusCompleted, 100, "")
	s.logger.Info("Document ingested",
		zap.String("document_id", doc.ID.String()),
		zap.String("kb_id", doc.KnowledgeBaseID.String()),
		zap.Int("fragments", len(fragments)),
	)
}

// embedAll embeds fragment batches, up to embedBatchParallel batches in
// flight, and flattens the results back into fragment order.
func (s *IngestService) embedAll(ctx context.Context, chunks []string) ([][]float32, error) {
	batches := (len(chunks) + embedBatchSize - 1) / embedBatchSize
	results := make([][][]float32, batches)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(embedBatchParallel)
	for b := 0; b < batches; b++ {
		start := b * embedBatchSize
		end := start + embedBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		g.Go(func() error {
			vectors, err := s.embedder.EmbedBatch(gctx, chunks[start:end])
			if err != nil {
				return err
			}
			results[b] = vectors
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	vectors := make([][]float32, 0, len(chunks))
	for _, batch := range results {
		vectors = append(vectors, batch...)
	}
	return vectors, nil
}

func (s *IngestService) fail(ctx context.Context, ownerID, documentID uuid.UUID, cause error) {
	s.logger.Warn("Document ingestion failed",
		zap.String("document_id", documentID.String()),
		zap.Error(cause),
	)
	if err := s.docs.SetFailed(ctx, documentID, cause.Error()); err != nil {
		s.logger.Error("Failed to record ingestion failure",
			zap.String("document_id", documentID.String()),
			zap.Error(err),
		)
	}
	s.progress(ownerID, documentID, models.DocumentStatusFailed, 100, cause.Error())
}

// progress emits a best-effort notification; delivery failures never affect
// the pipeline's own state transitions.
func (s *IngestService) progress(ownerID, documentID uuid.UUID, status models.DocumentStatus, percent int, message string) {
	if s.notifier == nil || ownerID == uuid.Nil {
		return
	}
	s.notifier.Publish(ownerID, notify.Event{
		DocumentID: documentID,
		Status:     string(status),
		Progress:   percent,
		Message:    message,
	})
}

type pipelineError string

func (e pipelineError) Error() string { return string(e) }

const (
	errNoText      = pipelineError("no text could be extracted from the document")
	errNoFragments = pipelineError("document produced no fragments")
)
