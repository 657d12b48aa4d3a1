// Package imports resolves the `imports:` closure of a workflow document.
//
// Resolution is a depth-first walk over the declared imports, emitting each
// file after everything it imports (dependency-first, self-last). Every
// canonical path is emitted at most once, at its first encounter, which also
// breaks cycles. Missing or unreadable files and malformed frontmatter never
// fail the walk: they only contribute less context.
package imports

import (
	"log/slog"
	"os"
	"path/filepath"

	"github.com/mpataki/awinspect/internal/frontmatter"
	"github.com/mpataki/awinspect/internal/logging"
	"github.com/mpataki/awinspect/internal/models"
)

// ReadFileFunc reads a whole file. os.ReadFile by default.
type ReadFileFunc func(name string) ([]byte, error)

// Visited is the set of canonical paths already entered during a traversal.
type Visited map[string]struct{}

func (v Visited) Has(path string) bool {
	_, ok := v[path]
	return ok
}

func (v Visited) Add(path string) {
	v[path] = struct{}{}
}

type Resolver struct {
	readFile ReadFileFunc
	logger   *slog.Logger
}

type Option func(*Resolver)

func WithReadFile(fn ReadFileFunc) Option {
	return func(r *Resolver) {
		r.readFile = fn
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) {
		r.logger = logger
	}
}

func New(opts ...Option) *Resolver {
	r := &Resolver{
		readFile: os.ReadFile,
		logger:   logging.Discard(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the import closure of path with a fresh traversal state.
func Resolve(path string) []models.ResolvedFile {
	return New().Resolve(path, nil)
}

// frame is one file on the traversal stack.
type frame struct {
	path    string
	content string
	dir     string
	imports []string
	next    int
}

// Resolve walks the imports reachable from path. visited is shared by the
// whole traversal; a nil visited starts a fresh one. The result is empty
// only when path itself cannot be entered.
func (r *Resolver) Resolve(path string, visited Visited) []models.ResolvedFile {
	if visited == nil {
		visited = Visited{}
	}

	root := r.enter(path, visited)
	if root == nil {
		return nil
	}

	var out []models.ResolvedFile
	stack := []*frame{root}

	for len(stack) > 0 {
		top := stack[len(stack)-1]

		if top.next < len(top.imports) {
			imp := top.imports[top.next]
			top.next++

			if child := r.enter(importPath(top.dir, imp), visited); child != nil {
				stack = append(stack, child)
			}
			continue
		}

		stack = stack[:len(stack)-1]
		out = append(out, models.ResolvedFile{Path: top.path, Content: top.content})
	}

	return out
}

// enter canonicalizes path, marks it visited and reads it. It returns nil
// when the file was already visited or cannot be read.
func (r *Resolver) enter(path string, visited Visited) *frame {
	abs, err := filepath.Abs(path)
	if err != nil {
		r.logger.Debug("skipping import: cannot canonicalize path", "path", path, "error", err)
		return nil
	}

	if visited.Has(abs) {
		r.logger.Debug("skipping import: already visited", "path", abs)
		return nil
	}
	visited.Add(abs)

	data, err := r.readFile(abs)
	if err != nil {
		r.logger.Debug("skipping import: unreadable", "path", abs, "error", err)
		return nil
	}

	f := &frame{
		path:    abs,
		content: string(data),
		dir:     filepath.Dir(abs),
	}

	doc, err := frontmatter.Parse(f.content)
	if err != nil {
		r.logger.Debug("treating file as having no imports", "path", abs, "error", err)
		return f
	}

	imports, ok := doc.Imports()
	if !ok {
		if _, present := doc.Metadata["imports"]; present {
			r.logger.Debug("ignoring imports field that is not a list of strings", "path", abs)
		}
		return f
	}
	f.imports = imports

	return f
}

// importPath resolves an import entry against the importing file's directory.
func importPath(dir, imp string) string {
	if filepath.IsAbs(imp) {
		return imp
	}
	return filepath.Join(dir, imp)
}
