package engine

import (
	"bytes"
	"fmt"
	"text/template"
)

// MessageData is the variable set available to commit message templates.
type MessageData struct {
	SourceDir string
	TargetDir string
	Branch    string
	Files     int
}

// RenderMessage expands template variables in a commit message. A message
// without template actions passes through unchanged; an unknown variable
// is an error rather than silent empty output.
func RenderMessage(message string, data MessageData) (string, error) {
	tmpl, err := template.New("commit-message").Option("missingkey=error").Parse(message)
	if err != nil {
		return "", fmt.Errorf("parsing commit message template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("rendering commit message: %w", err)
	}
	return buf.String(), nil
}
