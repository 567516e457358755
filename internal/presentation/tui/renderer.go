package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/aretw0/moments/pkg/domain"
	"github.com/charmbracelet/glamour"
)

// NewRenderer returns a function that renders markdown using glamour.
// width <= 0 keeps glamour's default word wrap.
func NewRenderer(width int) func(string) (string, error) {
	opts := []glamour.TermRendererOption{glamour.WithAutoStyle()}
	if width > 0 {
		opts = append(opts, glamour.WithWordWrap(width))
	}
	r, err := glamour.NewTermRenderer(opts...)
	if err != nil {
		return func(markdown string) (string, error) { return markdown, nil }
	}
	return func(markdown string) (string, error) {
		return r.Render(markdown)
	}
}

// DraftMarkdown describes a draft as markdown. preview bounds the scene excerpt; 0 omits it.
func DraftMarkdown(key domain.DraftKey, rec domain.DraftRecord, now time.Time, preview int) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# Draft `%s`\n\n", key)
	sb.WriteString("| Field | Value |\n|---|---|\n")
	fmt.Fprintf(&sb, "| Key | `%s` |\n", key.Base())
	fmt.Fprintf(&sb, "| Saved at | %s |\n", rec.SavedAt.Format(time.RFC3339))
	fmt.Fprintf(&sb, "| Age | %s |\n", rec.Age(now).Round(time.Second))
	fmt.Fprintf(&sb, "| Saved by | %s |\n", rec.SavedBy)
	fmt.Fprintf(&sb, "| Size | %d bytes |\n", rec.ByteSize)
	fmt.Fprintf(&sb, "| Hash | `%s` |\n", rec.ContentHash)
	if rec.ContentHash != "" && rec.ContentHash != domain.HashContent(rec.SceneContent) {
		sb.WriteString("\n> **Warning:** the stored hash does not match the content.\n")
	}
	if preview > 0 {
		excerpt := rec.SceneContent
		if r := []rune(excerpt); len(r) > preview {
			excerpt = string(r[:preview]) + "…"
		}
		fmt.Fprintf(&sb, "\n## Scene\n\n```json\n%s\n```\n", excerpt)
	}
	return sb.String()
}
