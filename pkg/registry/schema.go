// pkg/registry/schema.go
package registry

type TemplateRegistry struct {
	Version     string            `json:"version"`
	LastUpdated string            `json:"lastUpdated"`
	Templates   []MessageTemplate `json:"templates"`
}

type MessageTemplate struct {
	Type           string                 `json:"type"`
	DisplayName    string                 `json:"displayName"`
	Description    string                 `json:"description"`
	Version        string                 `json:"version"`
	Subject        string                 `json:"subject"`
	Body           string                 `json:"body"` // HTML, {{placeholder}} syntax
	MetadataSchema map[string]interface{} `json:"metadataSchema,omitempty"`
	Tags           []string               `json:"tags,omitempty"`
}
