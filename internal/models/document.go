package models

import "time"

// Document is a unit of source material before chunking: an uploaded file
// or a scraped page. It is discarded once its text has been chunked.
type Document struct {
	ID       string
	URL      string
	Filename string
	Title    string
	Content  string
	Metadata map[string]interface{}
}

type ProcessedDocument struct {
	Document
	Chunks []string
}

// VaultEntry is a persisted chunk with its embedding.
type VaultEntry struct {
	ID        string
	Document  string
	Embedding []float32
	Metadata  map[string]interface{}
	CreatedAt time.Time
}

type SearchResult struct {
	ID       string
	Document string
	Metadata map[string]interface{}
	Score    float32
}

// GraphState flows through the reasoning workflow. It lives for one request.
type GraphState struct {
	Question string   `json:"question"`
	Context  []string `json:"context"`
	Answer   string   `json:"answer,omitempty"`
}
