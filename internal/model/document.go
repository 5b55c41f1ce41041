package model

const (
	DocumentStateNormal  = 1
	DocumentStateDeleted = 2
)

// Document is an uploaded file tracked by the service. The ID is the
// sha256 of the uploaded bytes, so re-uploading identical content maps
// to the same document and re-ingestion replaces its nodes.
type Document struct {
	ID          string `json:"id"`
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
	FileKey     string `json:"file_key"`
	Strategy    string `json:"strategy"`
	Degraded    bool   `json:"degraded"`
	PageCount   int    `json:"page_count"`
	NodeCount   int    `json:"node_count"`
	State       int    `json:"state"`
	Ctime       int64  `json:"ctime"`
	Mtime       int64  `json:"mtime"`
}
