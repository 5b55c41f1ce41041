package model

// Node is the unit of indexing and retrieval: a chunk of document text
// plus its embedding and source attribution. The ID is derived from the
// document id and the chunk position, so identical input yields
// identical node ids across re-ingestion.
type Node struct {
	ID         string            `json:"id"`
	DocumentID string            `json:"document_id"`
	Position   int               `json:"position"`
	Text       string            `json:"text"`
	PageStart  int               `json:"page_start"`
	PageEnd    int               `json:"page_end"`
	Embedding  []float32         `json:"embedding,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// ScoredNode is a retrieval hit, best-first by similarity.
type ScoredNode struct {
	Node  *Node   `json:"node"`
	Score float32 `json:"score"`
}

// Attribution links a generated answer back to one source node.
type Attribution struct {
	NodeID     string  `json:"node_id"`
	DocumentID string  `json:"document_id"`
	PageStart  int     `json:"page_start"`
	PageEnd    int     `json:"page_end"`
	Score      float32 `json:"score"`
}
