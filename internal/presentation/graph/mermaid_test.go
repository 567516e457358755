package graph

import (
	"strings"
	"testing"

	"github.com/aretw0/moments/pkg/domain"
	"github.com/stretchr/testify/assert"
)

func TestGenerateMermaid(t *testing.T) {
	out := GenerateMermaid(nil)

	assert.True(t, strings.HasPrefix(out, "graph TD\n"))
	assert.Contains(t, out, `uninitialized(("uninitialized"))`)
	assert.Contains(t, out, `disposed((("disposed")))`)
	assert.Contains(t, out, `error{{"error"}}`)
	assert.Contains(t, out, "initializing --> ready")
	assert.Contains(t, out, "ready -. dispose .-> disposed")
	assert.NotContains(t, out, "ready --> initializing")
	assert.NotContains(t, out, "classDef")
}

func TestGenerateMermaid_Overlay(t *testing.T) {
	out := GenerateMermaid(&GraphOverlay{
		VisitedStates: []domain.SessionState{domain.StateUninitialized, domain.StateInitializing, domain.StateInitializing},
		CurrentState:  domain.StateReady,
	})

	assert.Equal(t, 1, strings.Count(out, "class initializing visited;"))
	assert.Contains(t, out, "class uninitialized visited;")
	assert.Contains(t, out, "class ready current;")
}
