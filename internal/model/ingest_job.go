package model

const (
	IngestJobStatusPending = "pending"
	IngestJobStatusRunning = "running"
	IngestJobStatusDone    = "done"
	IngestJobStatusFailed  = "failed"
)

// Ingestion pipeline stages, in order. A failed job records the stage
// it died in together with the error kind.
const (
	IngestStageReceived   = "received"
	IngestStageExtracting = "extracting"
	IngestStageChunking   = "chunking"
	IngestStageEmbedding  = "embedding"
	IngestStageStored     = "stored"
	IngestStageFailed     = "failed"
)

// IngestJob tracks one backgrounded ingestion run.
type IngestJob struct {
	ID         string `json:"id"`
	DocumentID string `json:"document_id"`
	Filename   string `json:"filename"`
	Status     string `json:"status"`
	Stage      string `json:"stage"`
	NodeCount  int    `json:"node_count"`
	Degraded   bool   `json:"degraded"`
	Error      string `json:"error,omitempty"`
	Ctime      int64  `json:"ctime"`
	Mtime      int64  `json:"mtime"`
}
