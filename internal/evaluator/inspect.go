package evaluator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mpataki/awinspect/internal/format"
	"github.com/mpataki/awinspect/internal/frontmatter"
	"github.com/mpataki/awinspect/internal/imports"
	"github.com/mpataki/awinspect/internal/lua"
	"github.com/mpataki/awinspect/internal/models"
)

// Inspection is everything awinspect can tell about a workflow without
// asking a model.
type Inspection struct {
	Workflow models.Workflow

	// Document is nil when the frontmatter is malformed; ParseErr says why.
	Document *frontmatter.Document
	ParseErr error

	Fields []format.Field

	// Files is the import closure, dependencies first and the workflow last.
	Files []models.ResolvedFile
}

// RelativePath shows a resolved file relative to the workflow's directory.
func (i *Inspection) RelativePath(path string) string {
	rel, err := filepath.Rel(filepath.Dir(i.Workflow.Path), path)
	if err != nil {
		return path
	}
	return filepath.ToSlash(rel)
}

func (e *Evaluator) Inspect(wf models.Workflow) (*Inspection, error) {
	content, err := os.ReadFile(wf.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRootUnreadable, err)
	}

	insp := &Inspection{
		Workflow: wf,
		Files:    e.resolver.Resolve(wf.Path, imports.Visited{}),
	}

	doc, err := frontmatter.Parse(string(content))
	if err != nil {
		insp.ParseErr = err
		return insp, nil
	}
	insp.Document = doc
	insp.Fields = format.Fields(doc)

	return insp, nil
}

// Check runs the configured check scripts against the workflow.
func (e *Evaluator) Check(ctx context.Context, wf models.Workflow) ([]lua.Finding, error) {
	insp, err := e.Inspect(wf)
	if err != nil {
		return nil, err
	}
	return e.CheckInspection(ctx, insp)
}

func (e *Evaluator) CheckInspection(ctx context.Context, insp *Inspection) ([]lua.Finding, error) {
	scripts, err := lua.LoadScripts(e.checkDirs...)
	if err != nil {
		return nil, err
	}

	input := lua.Input{
		Name:  insp.Workflow.Name,
		Path:  insp.Workflow.Path,
		Files: make([]string, 0, len(insp.Files)),
	}
	if insp.Document != nil {
		input.Frontmatter = insp.Document.Metadata
	}
	for _, f := range insp.Files {
		input.Files = append(input.Files, insp.RelativePath(f.Path))
	}

	findings := e.checks.RunAll(ctx, scripts, input)
	if insp.ParseErr != nil {
		findings = append([]lua.Finding{{
			Script:  "frontmatter",
			Level:   lua.LevelFail,
			Message: insp.ParseErr.Error(),
		}}, findings...)
	}
	return findings, nil
}
