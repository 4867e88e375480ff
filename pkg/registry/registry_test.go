// pkg/registry/registry_test.go
package registry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFind(t *testing.T) {
	reg := Default()

	tmpl, ok := reg.Find("escalation")
	require.True(t, ok)
	assert.Equal(t, "escalation", tmpl.Type)

	_, ok = reg.Find("carrier_pigeon")
	assert.False(t, ok)
}

func TestRender_FillsPlaceholders(t *testing.T) {
	tmpl := &MessageTemplate{
		Type:    "escalation",
		Subject: "Follow-up escalated: {{clientName}}",
		Body:    "<p>Sequence {{sequenceNumber}} for <b>{{clientName}}</b>.</p>",
	}

	subject, body := tmpl.Render(map[string]interface{}{
		"clientName":     "Acme Corp",
		"sequenceNumber": 3,
	})

	assert.Equal(t, "Follow-up escalated: Acme Corp", subject)
	assert.Equal(t, "<p>Sequence 3 for <b>Acme Corp</b>.</p>", body)
}

func TestRender_RemovesUnresolvedPlaceholders(t *testing.T) {
	tmpl := &MessageTemplate{
		Subject: "Reminder: {{clientName}}",
		Body:    "<p>{{message}} {{missing}}</p>",
	}

	subject, body := tmpl.Render(map[string]interface{}{"message": "hello"})

	assert.Equal(t, "Reminder: ", subject)
	assert.Equal(t, "<p>hello </p>", body)
}

func TestValidateMetadata_NoSchemaAcceptsAnything(t *testing.T) {
	tmpl := &MessageTemplate{Type: "escalation"}

	err := tmpl.ValidateMetadata(map[string]interface{}{"anything": true})

	assert.NoError(t, err)
}

func TestValidateMetadata_EnforcesSchema(t *testing.T) {
	tmpl := &MessageTemplate{
		Type: "escalation_digest",
		MetadataSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"count": map[string]interface{}{"type": "integer"},
			},
			"required": []interface{}{"count"},
		},
	}

	err := tmpl.ValidateMetadata(map[string]interface{}{"count": 4})
	assert.NoError(t, err)

	err = tmpl.ValidateMetadata(map[string]interface{}{"clients": []string{"Acme"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "escalation_digest")

	err = tmpl.ValidateMetadata(map[string]interface{}{"count": "four"})
	assert.Error(t, err)
}

func TestDefault_CoversAllNotificationTypes(t *testing.T) {
	reg := Default()

	for _, typ := range []string{"follow_up_reminder", "escalation", "escalation_digest", "review_requested"} {
		_, ok := reg.Find(typ)
		assert.True(t, ok, "missing default template for %s", typ)
	}
}

func TestLoadRegistry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "templates.json")
	content := `{
		"version": "2.0.0",
		"templates": [
			{"type": "escalation", "subject": "Escalated: {{clientName}}", "body": "<p>{{message}}</p>"}
		]
	}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	reg, err := LoadRegistry(path)

	require.NoError(t, err)
	assert.Equal(t, "2.0.0", reg.Version)
	tmpl, ok := reg.Find("escalation")
	require.True(t, ok)
	assert.Equal(t, "Escalated: {{clientName}}", tmpl.Subject)
}

func TestLoadRegistry_MissingFile(t *testing.T) {
	_, err := LoadRegistry(filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)
}
