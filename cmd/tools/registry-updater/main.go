// cmd/tools/registry-updater/main.go
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"followup-workers/pkg/registry"

	"github.com/xeipuuv/gojsonschema"
)

var registryPath string

func main() {
	addCmd := flag.NewFlagSet("add", flag.ExitOnError)
	updateCmd := flag.NewFlagSet("update", flag.ExitOnError)
	validateCmd := flag.NewFlagSet("validate", flag.ExitOnError)

	// Add command flags
	typeAdd := addCmd.String("type", "", "Notification type (e.g., escalation)")
	displayName := addCmd.String("displayName", "", "Display Name (e.g., Escalation Notice)")
	description := addCmd.String("description", "", "Description")
	subject := addCmd.String("subject", "", "Email subject template ({{placeholder}} syntax)")
	body := addCmd.String("body", "", "HTML body template ({{placeholder}} syntax)")
	version := addCmd.String("version", "1.0.0", "Version")
	addCmd.StringVar(&registryPath, "path", "configs/templates.json", "Path to registry file")

	// Update command flags
	typeUpdate := updateCmd.String("type", "", "Notification type to update")
	field := updateCmd.String("field", "", "Field to update (subject, body, version, etc.)")
	value := updateCmd.String("value", "", "New value for the field")
	updateCmd.StringVar(&registryPath, "path", "configs/templates.json", "Path to registry file")

	// Validate command flags
	validateCmd.StringVar(&registryPath, "path", "configs/templates.json", "Path to registry file")

	if len(os.Args) < 2 {
		help()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "add":
		addCmd.Parse(os.Args[2:])
		if *typeAdd == "" || *subject == "" || *body == "" {
			fmt.Println("Error: type, subject, and body are required for add.")
			addCmd.Usage()
			os.Exit(1)
		}
		tmpl := registry.MessageTemplate{
			Type:        *typeAdd,
			DisplayName: *displayName,
			Description: *description,
			Version:     *version,
			Subject:     *subject,
			Body:        *body,
			Tags:        []string{},
		}
		if err := addTemplate(&tmpl); err != nil {
			fmt.Printf("Error adding template: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Added template: %s\n", *typeAdd)

	case "update":
		updateCmd.Parse(os.Args[2:])
		if *typeUpdate == "" || *field == "" || *value == "" {
			fmt.Println("Error: type, field, and value are required for update.")
			updateCmd.Usage()
			os.Exit(1)
		}
		if err := updateTemplate(*typeUpdate, *field, *value); err != nil {
			fmt.Printf("Error updating template: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Updated template %s, field %s\n", *typeUpdate, *field)

	case "validate":
		validateCmd.Parse(os.Args[2:])
		if err := validateRegistry(); err != nil {
			fmt.Printf("Registry validation failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Registry validation passed.")

	case "help":
		fallthrough
	default:
		help()
	}
}

func addTemplate(tmpl *registry.MessageTemplate) error {
	reg, err := registry.LoadRegistry(registryPath)
	if err != nil {
		// If file doesn't exist, create new registry
		if os.IsNotExist(err) {
			reg = &registry.TemplateRegistry{
				Version:     "1.0.0",
				LastUpdated: time.Now().Format(time.RFC3339),
				Templates:   []registry.MessageTemplate{},
			}
		} else {
			return fmt.Errorf("failed to load registry: %w", err)
		}
	}

	for _, existing := range reg.Templates {
		if existing.Type == tmpl.Type {
			return fmt.Errorf("template for type %s already exists", tmpl.Type)
		}
	}

	reg.Templates = append(reg.Templates, *tmpl)
	reg.LastUpdated = time.Now().Format(time.RFC3339)

	return saveRegistry(reg, registryPath)
}

func updateTemplate(notificationType, field, value string) error {
	reg, err := registry.LoadRegistry(registryPath)
	if err != nil {
		return fmt.Errorf("failed to load registry: %w", err)
	}

	found := false
	for i := range reg.Templates {
		if reg.Templates[i].Type == notificationType {
			found = true
			switch field {
			case "subject":
				reg.Templates[i].Subject = value
			case "body":
				reg.Templates[i].Body = value
			case "version":
				reg.Templates[i].Version = value
			case "displayName":
				reg.Templates[i].DisplayName = value
			case "description":
				reg.Templates[i].Description = value
			case "metadataSchema":
				var schema map[string]interface{}
				if err := json.Unmarshal([]byte(value), &schema); err != nil {
					return fmt.Errorf("metadataSchema must be valid JSON: %w", err)
				}
				reg.Templates[i].MetadataSchema = schema
			default:
				return fmt.Errorf("unknown field: %s", field)
			}
			break
		}
	}

	if !found {
		return fmt.Errorf("template for type %s not found", notificationType)
	}

	reg.LastUpdated = time.Now().Format(time.RFC3339)
	return saveRegistry(reg, registryPath)
}

func validateRegistry() error {
	reg, err := registry.LoadRegistry(registryPath)
	if err != nil {
		return fmt.Errorf("failed to load registry: %w", err)
	}

	if len(reg.Templates) == 0 {
		return fmt.Errorf("registry contains no templates")
	}

	types := make(map[string]bool)
	for _, tmpl := range reg.Templates {
		if tmpl.Type == "" {
			return fmt.Errorf("template missing required field: Type")
		}
		if types[tmpl.Type] {
			return fmt.Errorf("duplicate template type: %s", tmpl.Type)
		}
		types[tmpl.Type] = true

		if tmpl.Subject == "" {
			return fmt.Errorf("template %s missing required field: Subject", tmpl.Type)
		}
		if tmpl.Body == "" {
			return fmt.Errorf("template %s missing required field: Body", tmpl.Type)
		}
		// A broken schema should fail here, not at dispatch time.
		if tmpl.MetadataSchema != nil {
			if _, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(tmpl.MetadataSchema)); err != nil {
				return fmt.Errorf("template %s has invalid metadata schema: %w", tmpl.Type, err)
			}
		}
	}

	fmt.Printf("Registry validation passed. Found %d templates.\n", len(reg.Templates))
	return nil
}

// saveRegistry handles saving the registry to file
func saveRegistry(reg *registry.TemplateRegistry, path string) error {
	data, err := json.MarshalIndent(reg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal registry: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write registry file: %w", err)
	}

	return nil
}

func help() {
	fmt.Print(`
Usage: registry-updater <command> [flags]

Commands:
  add      Add a new message template to the registry
  update   Update an existing template's field
  validate Validate the registry file
  help     Show this help message

Examples:
  registry-updater add -type escalation -displayName "Escalation Notice" -subject "Follow-up escalated: {{clientName}}" -body "<p>...</p>"
  registry-updater update -type escalation -field subject -value "Escalated: {{clientName}}"
  registry-updater validate -path configs/templates.json

Use 'registry-updater <command> -h' for more information about a command.

`)
}
