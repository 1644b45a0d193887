package dto

type DocumentResponse struct {
	ID              string `json:"id"`
	KnowledgeBaseID string `json:"kb_id"`
	FileName        string `json:"file_name"`
	FileType        string `json:"file_type"`
	FileSize        int64  `json:"file_size"`
	Status          string `json:"status"`
	ChunkCount      int    `json:"chunk_count"`
	ErrorMessage    string `json:"error_message,omitempty"`
	CreatedAt       string `json:"created_at"`
}
