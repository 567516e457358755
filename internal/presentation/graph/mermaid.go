package graph

import (
	"fmt"
	"strings"

	"github.com/aretw0/moments/pkg/domain"
)

// GraphOverlay contains dynamic state data to visualize on the graph.
type GraphOverlay struct {
	VisitedStates []domain.SessionState
	CurrentState  domain.SessionState
}

// GenerateMermaid produces a Mermaid flowchart of the session lifecycle.
// It applies semantic styling:
// - Uninitialized: ((Circle))
// - Disposed: (((Double circle)))
// - Error: {{Hexagon}}
// - Default: [Rectangle]
// Transitions into disposed are dotted since every live state may unmount.
func GenerateMermaid(overlay *GraphOverlay) string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")

	for _, state := range domain.States {
		safeID := sanitizeMermaidID(string(state))

		opener, closer := "[", "]"
		switch state {
		case domain.StateUninitialized:
			opener, closer = "((", "))"
		case domain.StateDisposed:
			opener, closer = "(((", ")))"
		case domain.StateError:
			opener, closer = "{{", "}}"
		}
		sb.WriteString(fmt.Sprintf("    %s%s\"%s\"%s\n", safeID, opener, state, closer))

		for _, next := range state.Next() {
			arrow := "-->"
			if next == domain.StateDisposed {
				arrow = "-. dispose .->"
			}
			sb.WriteString(fmt.Sprintf("    %s %s %s\n", safeID, arrow, sanitizeMermaidID(string(next))))
		}
	}

	if overlay != nil {
		sb.WriteString("\n    %% Overlay Styles\n")
		// Force black text (color:#000) for high-contrast on light backgrounds, regardless of theme (Light/Dark)
		sb.WriteString("    classDef visited fill:#e1f5fe,stroke:#01579b,stroke-width:2px,color:#000;\n")
		sb.WriteString("    classDef current fill:#ffeb3b,stroke:#fbc02d,stroke-width:4px,color:#000;\n")

		seen := make(map[string]bool)
		for _, st := range overlay.VisitedStates {
			safeID := sanitizeMermaidID(string(st))
			if !seen[safeID] && safeID != "" {
				seen[safeID] = true
				sb.WriteString(fmt.Sprintf("    class %s visited;\n", safeID))
			}
		}
		if overlay.CurrentState != "" {
			sb.WriteString(fmt.Sprintf("    class %s current;\n", sanitizeMermaidID(string(overlay.CurrentState))))
		}
	}
	return sb.String()
}

func sanitizeMermaidID(id string) string {
	s := strings.ReplaceAll(id, ".", "_")
	s = strings.ReplaceAll(s, "-", "_")
	s = strings.ReplaceAll(s, "/", "_")
	return s
}
