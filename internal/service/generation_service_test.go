package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"knova/internal/dto"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeRetriever struct {
	fragments []dto.SourceFragment
	err       error
	calls     int
}

func (f *fakeRetriever) Retrieve(ctx context.Context, kbIDs []uuid.UUID, question string, k int) ([]dto.SourceFragment, error) {
	f.calls++
	return f.fragments, f.err
}

type fakeQuotaGate struct {
	checkErr   error
	consumeErr error
	consumed   []int64
}

func (f *fakeQuotaGate) Check(ctx context.Context, userID uuid.UUID, required int64) error {
	return f.checkErr
}

func (f *fakeQuotaGate) Consume(ctx context.Context, userID uuid.UUID, tokens int64) error {
	f.consumed = append(f.consumed, tokens)
	return f.consumeErr
}

type fakeCompletion struct {
	answer      string
	err         error
	gotPrompt   string
	streamParts []string
}

func (f *fakeCompletion) Complete(ctx context.Context, prompt string) (string, error) {
	f.gotPrompt = prompt
	return f.answer, f.err
}

func (f *fakeCompletion) StreamComplete(ctx context.Context, prompt string, onDelta func(string) error) error {
	f.gotPrompt = prompt
	if f.err != nil {
		return f.err
	}
	for _, part := range f.streamParts {
		if err := onDelta(part); err != nil {
			return err
		}
	}
	return nil
}

func sourceFragment(content string) dto.SourceFragment {
	return dto.SourceFragment{
		Content:         content,
		SourceFilename:  "doc.txt",
		SimilarityScore: 0.9,
		DocumentID:      uuid.NewString(),
	}
}

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, int64(0), EstimateTokens(""))
	// 8 Latin characters, roughly 4 chars per token.
	assert.Equal(t, int64(2), EstimateTokens("abcdefgh"))
	// 8 Cyrillic characters, roughly 2 chars per token.
	assert.Equal(t, int64(4), EstimateTokens("приветик"))
	// A single character still costs one token.
	assert.Equal(t, int64(1), EstimateTokens("a"))
}

func TestBuildPromptContainsAttributedSources(t *testing.T) {
	prompt := buildPrompt([]dto.SourceFragment{
		{Content: "first fragment", SourceFilename: "a.txt"},
		{Content: "second fragment", SourceFilename: "b.pdf"},
	}, "what is this?", nil)

	assert.Contains(t, prompt, "[1] a.txt")
	assert.Contains(t, prompt, "first fragment")
	assert.Contains(t, prompt, "[2] b.pdf")
	assert.True(t, strings.HasSuffix(prompt, "Question: what is this?"))
}

func TestBuildPromptWithoutSources(t *testing.T) {
	prompt := buildPrompt(nil, "anything?", nil)
	assert.Contains(t, prompt, "No relevant context")
}

func TestBuildPromptIncludesHistory(t *testing.T) {
	prompt := buildPrompt(nil, "follow-up", []dto.Turn{
		{Role: "user", Content: "earlier question"},
		{Role: "assistant", Content: "earlier answer"},
	})

	assert.Contains(t, prompt, "user: earlier question")
	assert.Contains(t, prompt, "assistant: earlier answer")
	// History comes before the final question.
	assert.Less(t, strings.Index(prompt, "earlier question"), strings.Index(prompt, "Question: follow-up"))
}

func TestQueryHappyPath(t *testing.T) {
	retriever := &fakeRetriever{fragments: []dto.SourceFragment{sourceFragment("context text")}}
	gate := &fakeQuotaGate{}
	llm := &fakeCompletion{answer: "generated answer"}
	s := NewGenerationService(retriever, gate, llm, 5, zap.NewNop())

	resp, err := s.Query(context.Background(), uuid.New(), []uuid.UUID{uuid.New()}, "question", 0, nil)
	require.NoError(t, err)

	assert.Equal(t, "generated answer", resp.Answer)
	require.Len(t, resp.Sources, 1)
	assert.Contains(t, llm.gotPrompt, "context text")

	require.Len(t, gate.consumed, 1)
	assert.Equal(t, resp.TokensUsed, gate.consumed[0])
	assert.Equal(t, EstimateTokens(llm.gotPrompt)+EstimateTokens("generated answer"), resp.TokensUsed)
}

func TestQueryQuotaRejectionBeforeRetrieval(t *testing.T) {
	retriever := &fakeRetriever{}
	gate := &fakeQuotaGate{checkErr: &InsufficientQuotaError{Remaining: 0, Required: 100}}
	s := NewGenerationService(retriever, gate, &fakeCompletion{}, 5, zap.NewNop())

	_, err := s.Query(context.Background(), uuid.New(), []uuid.UUID{uuid.New()}, "question", 0, nil)

	var quotaErr *InsufficientQuotaError
	require.ErrorAs(t, err, &quotaErr)
	assert.Zero(t, retriever.calls, "rejected call must do no retrieval work")
}

func TestQueryRetrievalFailureIsFatal(t *testing.T) {
	retriever := &fakeRetriever{err: errors.New("all sources down")}
	s := NewGenerationService(retriever, &fakeQuotaGate{}, &fakeCompletion{}, 5, zap.NewNop())

	_, err := s.Query(context.Background(), uuid.New(), []uuid.UUID{uuid.New()}, "question", 0, nil)
	assert.Error(t, err)
}

func TestQueryAnswerSurvivesConsumeFailure(t *testing.T) {
	gate := &fakeQuotaGate{consumeErr: errors.New("ledger down")}
	s := NewGenerationService(&fakeRetriever{}, gate, &fakeCompletion{answer: "answer"}, 5, zap.NewNop())

	resp, err := s.Query(context.Background(), uuid.New(), []uuid.UUID{uuid.New()}, "question", 0, nil)
	require.NoError(t, err)
	assert.Equal(t, "answer", resp.Answer)
}

func TestStreamQueryEventOrder(t *testing.T) {
	retriever := &fakeRetriever{fragments: []dto.SourceFragment{sourceFragment("ctx")}}
	llm := &fakeCompletion{streamParts: []string{"Hello", ", ", "world"}}
	s := NewGenerationService(retriever, &fakeQuotaGate{}, llm, 5, zap.NewNop())

	var events []StreamEvent
	err := s.StreamQuery(context.Background(), uuid.New(), []uuid.UUID{uuid.New()}, "question", 0, nil,
		func(e StreamEvent) error {
			events = append(events, e)
			return nil
		})
	require.NoError(t, err)

	require.Len(t, events, 5)
	assert.Equal(t, "sources", events[0].Type)
	require.Len(t, events[0].Sources, 1)

	var tokens []string
	for _, e := range events[1:4] {
		require.Equal(t, "token", e.Type)
		tokens = append(tokens, e.Token)
	}
	assert.Equal(t, []string{"Hello", ", ", "world"}, tokens)

	done := events[4]
	assert.Equal(t, "done", done.Type)
	assert.Equal(t, "Hello, world", done.Answer)
	assert.Positive(t, done.TokensUsed)
}

func TestStreamQueryGenerationFailureReturnsError(t *testing.T) {
	llm := &fakeCompletion{err: errors.New("model unavailable")}
	s := NewGenerationService(&fakeRetriever{}, &fakeQuotaGate{}, llm, 5, zap.NewNop())

	var events []StreamEvent
	err := s.StreamQuery(context.Background(), uuid.New(), []uuid.UUID{uuid.New()}, "question", 0, nil,
		func(e StreamEvent) error {
			events = append(events, e)
			return nil
		})

	require.Error(t, err)
	// Sources went out before the failure; no done event followed.
	require.Len(t, events, 1)
	assert.Equal(t, "sources", events[0].Type)
}

func TestStreamQueryQuotaRejection(t *testing.T) {
	gate := &fakeQuotaGate{checkErr: &InsufficientQuotaError{Remaining: 1, Required: 600}}
	s := NewGenerationService(&fakeRetriever{}, gate, &fakeCompletion{}, 5, zap.NewNop())

	err := s.StreamQuery(context.Background(), uuid.New(), []uuid.UUID{uuid.New()}, "question", 0, nil,
		func(StreamEvent) error { return nil })

	var quotaErr *InsufficientQuotaError
	assert.ErrorAs(t, err, &quotaErr)
}
