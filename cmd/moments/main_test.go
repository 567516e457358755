package main

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/aretw0/moments/pkg/adapters/file"
	"github.com/aretw0/moments/pkg/domain"
	"github.com/aretw0/moments/pkg/draft"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "moments version")
}

func TestDevice(t *testing.T) {
	out, err := run(t, "device", "--user-agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64)")
	require.NoError(t, err)

	var profile domain.DeviceProfile
	require.NoError(t, json.Unmarshal([]byte(out), &profile))
	assert.False(t, profile.Mobile)
}

func TestStates(t *testing.T) {
	out, err := run(t, "states", "--current", string(domain.StateReady))
	require.NoError(t, err)
	assert.Contains(t, out, "graph TD")

	_, err = run(t, "states", "--current", "bogus")
	assert.Error(t, err)
}

func TestDraftCommands_FileBackend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "drafts.json")
	flags := []string{"--storage", "file", "--path", path}

	repo := draft.NewRepository(file.New(path))
	_, err := repo.Write(context.Background(), domain.DraftKey{UserID: "u1", MediaType: domain.MediaImage}, `{"scene":1}`, domain.TriggerManualSave)
	require.NoError(t, err)

	out, err := run(t, append([]string{"draft", "ls"}, flags...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "u1")
	assert.Contains(t, out, "manual-save")

	_, err = run(t, append([]string{"draft", "rm", "u1", "audio"}, flags...)...)
	assert.Error(t, err)

	out, err = run(t, append([]string{"draft", "rm", "u1"}, flags...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "deleted")

	out, err = run(t, append([]string{"draft", "ls"}, flags...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "No drafts found.")
}

func TestParseKey(t *testing.T) {
	key, err := parseKey([]string{"u1"})
	require.NoError(t, err)
	assert.Equal(t, domain.DraftKey{UserID: "u1", MediaType: domain.MediaImage}, key)

	key, err = parseKey([]string{"u1", "video"})
	require.NoError(t, err)
	assert.Equal(t, domain.MediaVideo, key.MediaType)
}
