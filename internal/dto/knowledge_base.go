package dto

type CreateKnowledgeBaseRequest struct {
	Name        string `json:"name" validate:"required,min=1,max=100"`
	Description string `json:"description" validate:"max=500"`
}

type KnowledgeBaseResponse struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Description  string `json:"description"`
	EmbeddingDim int    `json:"embedding_dim"`
	CreatedAt    string `json:"created_at"`
}
