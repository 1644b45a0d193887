package service

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"knova/internal/dto"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// completionReserve is the token allowance assumed for the not-yet-generated
// answer during the quota pre-check. Actual usage is measured afterwards.
const completionReserve = 512

// Retriever produces ranked source fragments for a question.
type Retriever interface {
	Retrieve(ctx context.Context, kbIDs []uuid.UUID, question string, k int) ([]dto.SourceFragment, error)
}

// QuotaGate guards and debits the per-user token budget.
type QuotaGate interface {
	Check(ctx context.Context, userID uuid.UUID, required int64) error
	Consume(ctx context.Context, userID uuid.UUID, tokens int64) error
}

// CompletionClient is the opaque text generation backend.
type CompletionClient interface {
	Complete(ctx context.Context, prompt string) (string, error)
	StreamComplete(ctx context.Context, prompt string, onDelta func(delta string) error) error
}

// StreamEvent is one server-sent event of a streaming query. Type is one of
// "sources", "token", "done".
type StreamEvent struct {
	Type       string               `json:"type"`
	Sources    []dto.SourceFragment `json:"sources,omitempty"`
	Token      string               `json:"token,omitempty"`
	Answer     string               `json:"answer,omitempty"`
	TokensUsed int64                `json:"tokens_used,omitempty"`
}

// GenerationService wraps retrieval, prompt assembly and generation behind
// the quota gate. The gate is enforced at entry, before any retrieval work;
// actual usage is debited after generation, overage included.
type GenerationService struct {
	retriever Retriever
	quota     QuotaGate
	llm       CompletionClient
	topK      int
	logger    *zap.Logger
}

func NewGenerationService(retriever Retriever, quota QuotaGate, llm CompletionClient, topK int, logger *zap.Logger) *GenerationService {
	if topK <= 0 {
		topK = 5
	}
	return &GenerationService{
		retriever: retriever,
		quota:     quota,
		llm:       llm,
		topK:      topK,
		logger:    logger,
	}
}

// Query answers the question grounded in the given knowledge bases and
// returns the answer together with its ranked sources and the tokens debited.
func (s *GenerationService) Query(ctx context.Context, userID uuid.UUID, kbIDs []uuid.UUID, question string, k int, history []dto.Turn) (*dto.QueryResponse, error) {
	if k <= 0 {
		k = s.topK
	}

	if err := s.quota.Check(ctx, userID, EstimateTokens(question)+completionReserve); err != nil {
		return nil, err
	}

	sources, err := s.retriever.Retrieve(ctx, kbIDs, question, k)
	if err != nil {
		return nil, fmt.Errorf("retrieval failed: %w", err)
	}

	prompt := buildPrompt(sources, question, history)
	answer, err := s.llm.Complete(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("generation failed: %w", err)
	}

	used := EstimateTokens(prompt) + EstimateTokens(answer)
	if err := s.quota.Consume(ctx, userID, used); err != nil {
		// The answer was already produced; losing the debit is logged, not fatal.
		s.logger.Error("Failed to record quota usage",
			zap.String("user_id", userID.String()),
			zap.Error(err),
		)
	}

	return &dto.QueryResponse{
		Answer:     answer,
		Sources:    sources,
		TokensUsed: used,
	}, nil
}

// StreamQuery is the streaming variant: the ranked sources are emitted first,
// then token deltas as the model produces them, then a final done event with
// the assembled answer and the debited token count. Any error return means
// the stream ended without a done event; the transport layer reports it as a
// terminal error event, never as silent truncation.
func (s *GenerationService) StreamQuery(ctx context.Context, userID uuid.UUID, kbIDs []uuid.UUID, question string, k int, history []dto.Turn, emit func(StreamEvent) error) error {
	if k <= 0 {
		k = s.topK
	}

	if err := s.quota.Check(ctx, userID, EstimateTokens(question)+completionReserve); err != nil {
		return err
	}

	sources, err := s.retriever.Retrieve(ctx, kbIDs, question, k)
	if err != nil {
		return fmt.Errorf("retrieval failed: %w", err)
	}
	if err := emit(StreamEvent{Type: "sources", Sources: sources}); err != nil {
		return err
	}

	prompt := buildPrompt(sources, question, history)
	var answer strings.Builder
	err = s.llm.StreamComplete(ctx, prompt, func(delta string) error {
		answer.WriteString(delta)
		return emit(StreamEvent{Type: "token", Token: delta})
	})
	if err != nil {
		return fmt.Errorf("generation failed: %w", err)
	}

	// A client that disconnected mid-stream still pays for what was produced.
	used := EstimateTokens(prompt) + EstimateTokens(answer.String())
	if err := s.quota.Consume(context.WithoutCancel(ctx), userID, used); err != nil {
		s.logger.Error("Failed to record quota usage",
			zap.String("user_id", userID.String()),
			zap.Error(err),
		)
	}

	return emit(StreamEvent{Type: "done", Answer: answer.String(), TokensUsed: used})
}

// buildPrompt embeds the ranked fragments as numbered, attributed context
// blocks ahead of the question, with optional prior conversation turns.
func buildPrompt(sources []dto.SourceFragment, question string, history []dto.Turn) string {
	var b strings.Builder

	b.WriteString("Answer the question using the numbered context fragments below. ")
	b.WriteString("Ground every claim in the context; if the context does not contain the answer, say so plainly.\n\n")

	if len(sources) == 0 {
		b.WriteString("No relevant context was found in the selected knowledge bases.\n\n")
	} else {
		b.WriteString("Context:\n")
		for i, source := range sources {
			fmt.Fprintf(&b, "[%d] %s\n%s\n\n", i+1, source.SourceFilename, source.Content)
		}
	}

	if len(history) > 0 {
		b.WriteString("Conversation so far:\n")
		for _, turn := range history {
			fmt.Fprintf(&b, "%s: %s\n", turn.Role, turn.Content)
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "Question: %s", question)
	return b.String()
}

// EstimateTokens approximates token usage from character counts: roughly 2
// characters per token for Cyrillic and CJK scripts, 4 for everything else.
// The upstream model does not report exact usage in streaming mode, so this
// heuristic is what the ledger debits.
func EstimateTokens(text string) int64 {
	if text == "" {
		return 0
	}

	var dense, sparse int64
	for _, r := range text {
		if isDenseScript(r) {
			dense++
		} else {
			sparse++
		}
	}

	tokens := (dense+1)/2 + (sparse+3)/4
	if tokens < 1 {
		tokens = 1
	}
	return tokens
}

func isDenseScript(r rune) bool {
	return unicode.Is(unicode.Cyrillic, r) ||
		unicode.Is(unicode.Han, r) ||
		unicode.Is(unicode.Hiragana, r) ||
		unicode.Is(unicode.Katakana, r) ||
		unicode.Is(unicode.Hangul, r)
}
