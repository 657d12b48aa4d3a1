// Package discovery finds workflow files in a repository's workflow
// directory.
package discovery

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/mpataki/awinspect/internal/models"
)

// DefaultDir is the workflow directory relative to a repository root.
const DefaultDir = ".github/workflows"

// ErrNotFound is returned by Find when no workflow matches.
var ErrNotFound = errors.New("workflow not found")

func isWorkflowFile(name string) bool {
	return strings.HasSuffix(name, ".md")
}

// Discover lists the workflow files directly inside dir, sorted by name.
// A missing directory yields no workflows.
func Discover(dir string) ([]models.Workflow, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read workflow directory: %w", err)
	}

	var workflows []models.Workflow
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()
		if !isWorkflowFile(name) {
			continue
		}

		path, err := filepath.Abs(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}

		workflows = append(workflows, models.Workflow{
			Name: strings.TrimSuffix(name, filepath.Ext(name)),
			Path: path,
		})
	}

	sort.Slice(workflows, func(i, j int) bool {
		return workflows[i].Name < workflows[j].Name
	})

	return workflows, nil
}

// Find resolves a workflow argument: a display name from dir, or a path to
// an existing file.
func Find(dir, arg string) (models.Workflow, error) {
	workflows, err := Discover(dir)
	if err != nil {
		return models.Workflow{}, err
	}

	name := strings.TrimSuffix(arg, ".md")
	for _, wf := range workflows {
		if wf.Name == name {
			return wf, nil
		}
	}

	if info, err := os.Stat(arg); err == nil && !info.IsDir() {
		path, err := filepath.Abs(arg)
		if err != nil {
			return models.Workflow{}, err
		}
		base := filepath.Base(path)
		return models.Workflow{
			Name: strings.TrimSuffix(base, filepath.Ext(base)),
			Path: path,
		}, nil
	}

	return models.Workflow{}, fmt.Errorf("%w: %q", ErrNotFound, arg)
}
