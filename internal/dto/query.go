package dto

// Turn is one prior exchange of conversational history supplied by the caller.
type Turn struct {
	Role    string `json:"role" validate:"required,oneof=user assistant"`
	Content string `json:"content" validate:"required"`
}

type QueryRequest struct {
	KnowledgeBaseIDs []string `json:"kb_ids" validate:"required,min=1"`
	Question         string   `json:"question" validate:"required"`
	TopK             int      `json:"top_k"`
	History          []Turn   `json:"history,omitempty"`
}

// SourceFragment is the wire shape of one ranked retrieved fragment. Field
// names are part of the API contract; renaming them needs a version bump.
type SourceFragment struct {
	Content         string  `json:"content"`
	SourceFilename  string  `json:"source_filename"`
	SimilarityScore float64 `json:"similarity_score"`
	DocumentID      string  `json:"document_id"`
	ChunkIndex      int     `json:"chunk_index"`
}

type QueryResponse struct {
	Answer     string           `json:"answer"`
	Sources    []SourceFragment `json:"sources"`
	TokensUsed int64            `json:"tokens_used"`
}
