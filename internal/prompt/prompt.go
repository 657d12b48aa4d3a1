// Package prompt assembles the context block of a resolved workflow and
// substitutes it into a prompt template.
package prompt

import (
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mpataki/awinspect/internal/models"
)

// Placeholder is replaced with the context block.
const Placeholder = "{{CLI_OUTPUT}}"

// ErrTemplate is returned when a prompt template cannot be loaded.
var ErrTemplate = errors.New("prompt template unavailable")

//go:embed templates/*.md
var templates embed.FS

// Kind selects a template.
type Kind string

const (
	KindEvaluation Kind = "evaluation"
	KindSimulation Kind = "simulation"
)

// BuildContext concatenates files in order, each preceded by a marker line
// with its path relative to baseDir.
func BuildContext(files []models.ResolvedFile, baseDir string) string {
	var b strings.Builder
	for _, f := range files {
		b.WriteString("\n=== File: ")
		b.WriteString(displayPath(baseDir, f.Path))
		b.WriteString(" ===\n")
		b.WriteString(f.Content)
		b.WriteString("\n")
	}
	return b.String()
}

func displayPath(baseDir, path string) string {
	rel, err := filepath.Rel(baseDir, path)
	if err != nil {
		return path
	}
	return filepath.ToSlash(rel)
}

// Render substitutes block for the first placeholder in tmpl.
func Render(tmpl, block string) string {
	return strings.Replace(tmpl, Placeholder, block, 1)
}

// RenderSimulation renders tmpl and appends the user's simulated input.
func RenderSimulation(tmpl, block, input string) string {
	out := Render(tmpl, block)
	input = strings.TrimSpace(input)
	if input == "" {
		return out
	}
	return strings.TrimRight(out, "\n") + "\n\n## Simulated Input\n\n" + input + "\n"
}

// LoadTemplate returns <overrideDir>/<kind>.md when it exists, otherwise the
// built-in template.
func LoadTemplate(kind Kind, overrideDir string) (string, error) {
	name := string(kind) + ".md"

	var data []byte
	var err error
	source := "built-in " + name

	if overrideDir != "" {
		path := filepath.Join(overrideDir, name)
		data, err = os.ReadFile(path)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: could not read %s: %v", ErrTemplate, path, err)
		}
		if err == nil {
			source = path
		}
	}

	if data == nil {
		data, err = templates.ReadFile("templates/" + name)
		if err != nil {
			return "", fmt.Errorf("%w: no template for %q", ErrTemplate, kind)
		}
	}

	tmpl := string(data)
	if !strings.Contains(tmpl, Placeholder) {
		return "", fmt.Errorf("%w: %s has no %s placeholder", ErrTemplate, source, Placeholder)
	}
	return tmpl, nil
}
