// pkg/registry/registry.go
package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

func LoadRegistry(path string) (*TemplateRegistry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var reg TemplateRegistry
	err = json.Unmarshal(data, &reg)
	return &reg, err
}

// Find returns the template for a notification type.
func (r *TemplateRegistry) Find(notificationType string) (*MessageTemplate, bool) {
	for i := range r.Templates {
		if r.Templates[i].Type == notificationType {
			return &r.Templates[i], true
		}
	}
	return nil, false
}

// ValidateMetadata checks metadata against the template's JSON schema. A
// template without a schema accepts anything.
func (t *MessageTemplate) ValidateMetadata(metadata map[string]interface{}) error {
	if t.MetadataSchema == nil {
		return nil
	}

	schemaLoader := gojsonschema.NewGoLoader(t.MetadataSchema)
	documentLoader := gojsonschema.NewGoLoader(metadata)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return fmt.Errorf("metadata validation: %w", err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return fmt.Errorf("metadata invalid for template %s: %s", t.Type, strings.Join(msgs, "; "))
	}
	return nil
}

// Render fills {{placeholder}} slots in the subject and body. Unknown
// placeholders are removed rather than left visible to recipients.
func (t *MessageTemplate) Render(data map[string]interface{}) (string, string) {
	return renderTemplate(t.Subject, data), renderTemplate(t.Body, data)
}

func renderTemplate(tmpl string, data map[string]interface{}) string {
	result := tmpl

	for k, v := range data {
		placeholder := "{{" + k + "}}"
		value := ""
		if s, ok := v.(string); ok {
			value = s
		} else if i, ok := v.(int); ok {
			value = fmt.Sprintf("%d", i)
		} else if v != nil {
			value = fmt.Sprintf("%v", v)
		}
		result = strings.ReplaceAll(result, placeholder, value)
	}

	// Remove any remaining placeholders (missing values)
	for {
		start := strings.Index(result, "{{")
		if start == -1 {
			break
		}
		end := strings.Index(result[start:], "}}")
		if end == -1 {
			break
		}
		end += start + 2
		result = result[:start] + result[end:]
	}

	return result
}

// Default returns the built-in registry used when no registry file is
// configured. Deployments override these via configs/templates.json.
func Default() *TemplateRegistry {
	return &TemplateRegistry{
		Version: "1.0.0",
		Templates: []MessageTemplate{
			{
				Type:    "follow_up_reminder",
				Subject: "Reminder: follow up with {{clientName}}",
				Body:    "<p>Follow-up #{{sequenceNumber}} for <b>{{clientName}}</b> ({{emailSubject}}) is due. Please check for a client reply.</p>",
			},
			{
				Type:    "escalation",
				Subject: "Follow-up escalated: {{clientName}}",
				Body:    "<p>The follow-up for <b>{{clientName}}</b> ({{emailSubject}}) is overdue and has been escalated to {{managerId}}.</p>",
			},
			{
				Type:    "escalation_digest",
				Subject: "Escalation digest: {{count}} overdue follow-ups",
				Body:    "<p>{{count}} follow-ups owned by your reports were escalated in the last hour:</p>{{items}}",
			},
			{
				Type:    "review_requested",
				Subject: "Review requested: {{title}}",
				Body:    "<p>{{message}}</p>",
			},
		},
	}
}
