package dto

// IndexDocumentMessage is the payload published when a source document needs
// (re-)indexing.
type IndexDocumentMessage struct {
	SourceId string `json:"source_id"`
	Path     string `json:"path"`
}

type IndexStatusResponse struct {
	Documents int   `json:"documents"`
	Chunks    int64 `json:"chunks"`
}
