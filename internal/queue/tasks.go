package queue

const TypeDocumentIngest = "document:ingest"

// DocumentIngestPayload carries one document through the ingestion
// pipeline: chunk, embed, upsert into the collection.
type DocumentIngestPayload struct {
	Collection string         `json:"collection"`
	DocumentID string         `json:"document_id"`
	Text       string         `json:"text"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}
