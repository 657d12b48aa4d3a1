// Package frontmatter splits a workflow document into its YAML metadata
// block and markdown body.
package frontmatter

import (
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrMalformed is returned when a document opens a frontmatter block that
// cannot be decoded into a mapping.
var ErrMalformed = errors.New("malformed frontmatter")

const delimiter = "---"

// Document is a parsed workflow document.
type Document struct {
	// Metadata holds the decoded frontmatter. Never nil.
	Metadata map[string]any

	// Keys lists the top-level metadata keys in declaration order.
	Keys []string

	// FieldKeys holds the declaration order of the keys of each top-level
	// field whose value is a mapping.
	FieldKeys map[string][]string

	// Body is the text following the frontmatter block.
	Body string
}

// Parse extracts the frontmatter from content. A document without a leading
// delimiter line has empty metadata and the whole content as body.
func Parse(content string) (*Document, error) {
	text := strings.TrimPrefix(content, "\ufeff")
	lines := strings.SplitAfter(text, "\n")

	if len(lines) == 0 || strings.TrimRight(lines[0], "\r\n") != delimiter {
		return &Document{Metadata: map[string]any{}, Body: content}, nil
	}

	end := -1
	for i := 1; i < len(lines); i++ {
		line := strings.TrimRight(lines[i], "\r\n")
		if line == delimiter || line == "..." {
			end = i
			break
		}
	}
	if end == -1 {
		return nil, fmt.Errorf("%w: closing %q not found", ErrMalformed, delimiter)
	}

	block := strings.Join(lines[1:end], "")
	body := strings.Join(lines[end+1:], "")

	var root yaml.Node
	if err := yaml.Unmarshal([]byte(block), &root); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	doc := &Document{Metadata: map[string]any{}, Body: body}

	// An empty block decodes to a zero node.
	if root.Kind == 0 || len(root.Content) == 0 {
		return doc, nil
	}

	mapping := root.Content[0]
	if mapping.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%w: expected a mapping, got %s", ErrMalformed, kindName(mapping.Kind))
	}

	if err := mapping.Decode(&doc.Metadata); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	for i := 0; i+1 < len(mapping.Content); i += 2 {
		key, value := mapping.Content[i].Value, mapping.Content[i+1]
		doc.Keys = append(doc.Keys, key)

		if value.Kind != yaml.MappingNode {
			continue
		}
		if doc.FieldKeys == nil {
			doc.FieldKeys = map[string][]string{}
		}
		for j := 0; j+1 < len(value.Content); j += 2 {
			doc.FieldKeys[key] = append(doc.FieldKeys[key], value.Content[j].Value)
		}
	}

	return doc, nil
}

// Imports returns the `imports` field when it is a sequence of strings.
// Any other shape reports false.
func (d *Document) Imports() ([]string, bool) {
	raw, ok := d.Metadata["imports"]
	if !ok {
		return nil, false
	}

	seq, ok := raw.([]any)
	if !ok {
		return nil, false
	}

	imports := make([]string, 0, len(seq))
	for _, item := range seq {
		s, ok := item.(string)
		if !ok {
			return nil, false
		}
		imports = append(imports, s)
	}

	return imports, true
}

func kindName(k yaml.Kind) string {
	switch k {
	case yaml.SequenceNode:
		return "sequence"
	case yaml.ScalarNode:
		return "scalar"
	case yaml.AliasNode:
		return "alias"
	default:
		return "unknown node"
	}
}
