package paperless

import "time"

// Document is one archived document as returned by the Paperless-ngx API.
// Content is the OCR/extracted text.
type Document struct {
	ID       int       `json:"id"`
	Title    string    `json:"title"`
	Content  string    `json:"content"`
	Created  time.Time `json:"created"`
	Modified time.Time `json:"modified"`
	Tags     []int     `json:"tags"`
}

// Tag is a Paperless-ngx tag.
type Tag struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// documentsResponse is one page of GET /api/documents/.
type documentsResponse struct {
	Count   int        `json:"count"`
	Next    string     `json:"next"`
	Results []Document `json:"results"`
}

// tagsResponse is one page of GET /api/tags/.
type tagsResponse struct {
	Count   int    `json:"count"`
	Next    string `json:"next"`
	Results []Tag  `json:"results"`
}
