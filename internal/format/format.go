// Package format normalizes frontmatter field values into labelled items
// with hover details, for the workflow detail view and the inspect command.
package format

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/mpataki/awinspect/internal/cron"
	"github.com/mpataki/awinspect/internal/frontmatter"
)

type Icon string

const (
	IconCheck    Icon = "check"
	IconSchedule Icon = "schedule"
	IconNone     Icon = "none"
)

// NoneLabel is the label of the item produced for absent or empty values.
const NoneLabel = "None"

// Item is one badge of a formatted field.
type Item struct {
	Label  string
	Detail string
	Icon   Icon
}

// Field is a frontmatter key with its formatted items.
type Field struct {
	Key   string
	Items []Item
}

// entry is an intermediate (label, value) pair. value is nil for scalars.
type entry struct {
	label string
	value any
}

// Items formats the value of frontmatter field key. Mapping keys are
// listed in sorted order.
func Items(key string, value any) []Item {
	return ItemsInOrder(key, value, nil)
}

// ItemsInOrder is Items with mapping keys listed in order first. Keys missing
// from order follow, sorted.
func ItemsInOrder(key string, value any, order []string) []Item {
	value = normalize(value)
	if isFalsy(value) {
		return []Item{{Label: NoneLabel, Detail: NoneLabel, Icon: IconNone}}
	}

	var entries []entry
	switch v := value.(type) {
	case []any:
		for _, elem := range v {
			if isStructured(elem) || elem == nil {
				entries = append(entries, entry{label: compactJSON(elem), value: elem})
				continue
			}
			entries = append(entries, entry{label: stringify(elem)})
		}
	case map[string]any:
		for _, k := range mappingKeys(v, order) {
			entries = append(entries, entry{label: k, value: v[k]})
		}
	default:
		entries = append(entries, entry{label: stringify(v)})
	}

	items := make([]Item, 0, len(entries))
	for _, e := range entries {
		detail := defaultDetail(e)

		if key == "permissions" {
			detail = keyValueDetail(e)
		}

		if key == "on" || key == "schedule" {
			if seq, ok := e.value.([]any); ok && e.label == "schedule" {
				items = append(items, scheduleItems(seq)...)
				continue
			}
			if s, ok := e.value.(string); ok && strings.Contains(s, " ") {
				detail = cron.Describe(s)
			}
		}

		items = append(items, Item{Label: e.label, Detail: detail, Icon: IconCheck})
	}

	return items
}

// Fields formats every frontmatter key of doc in declaration order.
func Fields(doc *frontmatter.Document) []Field {
	fields := make([]Field, 0, len(doc.Keys))
	for _, k := range doc.Keys {
		fields = append(fields, Field{Key: k, Items: ItemsInOrder(k, doc.Metadata[k], doc.FieldKeys[k])})
	}
	return fields
}

func mappingKeys(m map[string]any, order []string) []string {
	keys := make([]string, 0, len(m))
	seen := make(map[string]bool, len(m))
	for _, k := range order {
		if _, ok := m[k]; ok && !seen[k] {
			keys = append(keys, k)
			seen[k] = true
		}
	}

	var rest []string
	for k := range m {
		if !seen[k] {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	return append(keys, rest...)
}

func scheduleItems(seq []any) []Item {
	items := make([]Item, 0, len(seq))
	for _, s := range seq {
		expr := ""
		if m, ok := s.(map[string]any); ok {
			if c, ok := m["cron"].(string); ok && c != "" {
				expr = c
			}
		}
		if expr == "" {
			if isStructured(s) {
				expr = compactJSON(s)
			} else {
				expr = stringify(s)
			}
		}
		items = append(items, Item{Label: expr, Detail: cron.Describe(expr), Icon: IconSchedule})
	}
	return items
}

func defaultDetail(e entry) string {
	if isStructured(e.value) {
		return indentedJSON(e.value)
	}
	return keyValueDetail(e)
}

func keyValueDetail(e entry) string {
	if isFalsy(e.value) {
		return e.label
	}
	if isStructured(e.value) {
		return e.label + ": " + compactJSON(e.value)
	}
	return e.label + ": " + stringify(e.value)
}

func isStructured(v any) bool {
	switch v.(type) {
	case []any, map[string]any:
		return true
	}
	return false
}

func isFalsy(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return x == ""
	case bool:
		return !x
	case int:
		return x == 0
	case int64:
		return x == 0
	case uint64:
		return x == 0
	case float64:
		return x == 0 || x != x
	}
	return false
}

func stringify(v any) string {
	if v == nil {
		return "null"
	}
	return fmt.Sprint(v)
}

func compactJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}

func indentedJSON(v any) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}

// normalize converts YAML's map[any]any (non-string keys) and typed Go
// slices and maps into []any and map[string]any, recursively.
func normalize(v any) any {
	switch x := v.(type) {
	case map[any]any:
		m := make(map[string]any, len(x))
		for k, val := range x {
			m[fmt.Sprint(k)] = normalize(val)
		}
		return m
	case map[string]any:
		m := make(map[string]any, len(x))
		for k, val := range x {
			m[k] = normalize(val)
		}
		return m
	case map[string]string:
		m := make(map[string]any, len(x))
		for k, val := range x {
			m[k] = val
		}
		return m
	case []any:
		s := make([]any, len(x))
		for i, val := range x {
			s[i] = normalize(val)
		}
		return s
	case []string:
		s := make([]any, len(x))
		for i, val := range x {
			s[i] = val
		}
		return s
	default:
		return v
	}
}
