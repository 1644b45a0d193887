package models

import (
	"github.com/google/uuid"
)

// Fragment is one contiguous span of a document's extracted text, the unit of
// embedding and retrieval. Fragments are not persisted as rows of their own;
// they live as vectors inside the owning knowledge base's collection, tagged
// with this metadata for later filtering and deletion.
type Fragment struct {
	KnowledgeBaseID uuid.UUID
	DocumentID      uuid.UUID
	Index           int
	Content         string
	SourceFile      string
}
