// Package api carries the HTTP contract of the upload service.
package api

import (
	_ "embed"

	"github.com/getkin/kin-openapi/openapi3"
)

//go:embed openapi.yaml
var spec []byte

// Load parses and validates the embedded OpenAPI document. Servers are
// cleared so request validation matches on path alone.
func Load() (*openapi3.T, error) {
	doc, err := openapi3.NewLoader().LoadFromData(spec)
	if err != nil {
		return nil, err
	}
	doc.Servers = nil
	return doc, nil
}

type CreateRecordRequest struct {
	Kind string `json:"kind"`
}

type SaveRequest struct {
	Temp map[string]string `json:"temp,omitempty"`
}

type FetchRequest struct {
	URL string `json:"url"`
}

type Attachment struct {
	Attribute   string            `json:"attribute"`
	URL         string            `json:"url,omitempty"`
	Path        string            `json:"path,omitempty"`
	Temp        string            `json:"temp,omitempty"`
	ContentType string            `json:"contentType,omitempty"`
	Size        int64             `json:"size,omitempty"`
	Versions    map[string]string `json:"versions,omitempty"`
}

type Record struct {
	ID          string                `json:"id"`
	Kind        string                `json:"kind"`
	Revision    int                   `json:"revision"`
	Fields      map[string]string     `json:"fields"`
	Attachments map[string]Attachment `json:"attachments"`
	CreatedAt   string                `json:"createdAt,omitempty"`
	UpdatedAt   string                `json:"updatedAt,omitempty"`
}

type ErrorResponse struct {
	Message string `json:"message"`
}
