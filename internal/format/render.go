package format

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	badgeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252")).
			Background(lipgloss.Color("236")).
			Padding(0, 1)

	scheduleBadgeStyle = badgeStyle.
				Foreground(lipgloss.Color("220"))

	noneStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243")).
			Italic(true)
)

func iconGlyph(icon Icon) string {
	switch icon {
	case IconSchedule:
		return "⏱"
	case IconCheck:
		return "✓"
	default:
		return ""
	}
}

// Badge renders a single item as a terminal badge.
func Badge(item Item) string {
	switch item.Icon {
	case IconNone:
		return noneStyle.Render(item.Label)
	case IconSchedule:
		return scheduleBadgeStyle.Render(iconGlyph(item.Icon) + " " + item.Label)
	default:
		return badgeStyle.Render(iconGlyph(item.Icon) + " " + item.Label)
	}
}

// Render formats the value of key as one line of badges.
func Render(key string, value any) string {
	items := Items(key, value)
	badges := make([]string, 0, len(items))
	for _, item := range items {
		badges = append(badges, Badge(item))
	}
	return strings.Join(badges, " ")
}
