package tui

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/aretw0/moments/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDraftMarkdown(t *testing.T) {
	now := time.Date(2026, 5, 10, 9, 0, 0, 0, time.UTC)
	key := domain.DraftKey{UserID: "u1", MediaType: domain.MediaVideo}
	rec := domain.NewDraftRecord(`{"scene":"long content"}`, domain.TriggerBeforeUnload, now.Add(-90*time.Second))

	md := DraftMarkdown(key, rec, now, 8)
	assert.Contains(t, md, "# Draft `u1/video`")
	assert.Contains(t, md, "`moment-video-draft-u1-latest`")
	assert.Contains(t, md, "| Age | 1m30s |")
	assert.Contains(t, md, "| Saved by | before-unload |")
	assert.Contains(t, md, `{"scene"…`)
	assert.NotContains(t, md, "Warning")

	rec.ContentHash = "tampered"
	assert.Contains(t, DraftMarkdown(key, rec, now, 0), "does not match")
	assert.NotContains(t, DraftMarkdown(key, rec, now, 0), "## Scene")
}

func TestNewRenderer(t *testing.T) {
	render := NewRenderer(60)
	out, err := render("# Title\n\nbody")
	require.NoError(t, err)
	assert.Contains(t, out, "Title")
	assert.Contains(t, out, "body")
}

func TestPrintBanner(t *testing.T) {
	var buf bytes.Buffer
	PrintBanner(&buf, "1.2.3")
	assert.True(t, strings.Contains(buf.String(), "v1.2.3"))
}
