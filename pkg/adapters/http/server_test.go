package http

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aretw0/moments"
	"github.com/aretw0/moments/pkg/actions"
	"github.com/aretw0/moments/pkg/adapters/headless"
	"github.com/aretw0/moments/pkg/adapters/memory"
	"github.com/aretw0/moments/pkg/domain"
	"github.com/aretw0/moments/pkg/draft"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const iphoneUA = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Mobile/15E148"

func newTestServer(t *testing.T, store *memory.Store) (*Server, http.Handler) {
	t.Helper()
	ed := moments.New(headless.NewFactory(), store, moments.WithAutosaveDebounce(time.Hour))
	srv := NewServer(ed)
	t.Cleanup(func() { srv.Close(context.Background()) })
	return srv, srv.Handler()
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("User-Agent", iphoneUA)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func startSession(t *testing.T, h http.Handler, req CreateSessionRequest) SessionView {
	t.Helper()
	w := do(t, h, "POST", "/sessions", req)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	return decode[SessionView](t, w)
}

func waitFor(t *testing.T, h http.Handler, id string, cond func(SessionView) bool) SessionView {
	t.Helper()
	var last SessionView
	require.Eventually(t, func() bool {
		w := do(t, h, "GET", "/sessions/"+id, nil)
		if w.Code != http.StatusOK {
			return false
		}
		last = decode[SessionView](t, w)
		return cond(last)
	}, 2*time.Second, 5*time.Millisecond)
	return last
}

func ready(v SessionView) bool { return v.State == domain.StateReady }

func TestServer_HealthInfoDevice(t *testing.T) {
	_, h := newTestServer(t, memory.NewStore())

	assert.Equal(t, http.StatusOK, do(t, h, "GET", "/health", nil).Code)

	info := decode[map[string]string](t, do(t, h, "GET", "/info", nil))
	assert.Equal(t, moments.Version, info["version"])

	profile := decode[domain.DeviceProfile](t, do(t, h, "GET", "/device", nil))
	assert.True(t, profile.Mobile)
	assert.Equal(t, domain.MobileMaxRasterDimension, profile.MaxRasterDimension)
}

func TestServer_CreateSessionValidation(t *testing.T) {
	_, h := newTestServer(t, memory.NewStore())

	assert.Equal(t, http.StatusBadRequest, do(t, h, "POST", "/sessions", CreateSessionRequest{}).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, "POST", "/sessions", CreateSessionRequest{UserID: "u1", MediaType: "gif"}).Code)
	assert.Equal(t, http.StatusNotFound, do(t, h, "GET", "/sessions/missing", nil).Code)
}

func TestServer_SessionLifecycle(t *testing.T) {
	store := memory.NewStore()
	_, h := newTestServer(t, store)

	created := startSession(t, h, CreateSessionRequest{UserID: "u1", InitialMediaURL: "https://cdn/p.jpg"})
	v := waitFor(t, h, created.ID, ready)
	assert.Equal(t, domain.MediaImage, v.MediaType)
	assert.True(t, v.Profile.Mobile)
	assert.True(t, v.History.CanUndo)
	assert.Equal(t, domain.RecoveryNotApplicable, v.Recovery)
	assert.Empty(t, v.Failed)

	hist := decode[domain.HistoryState](t, do(t, h, "POST", "/sessions/"+created.ID+"/undo", nil))
	assert.True(t, hist.CanRedo)
	hist = decode[domain.HistoryState](t, do(t, h, "POST", "/sessions/"+created.ID+"/redo", nil))
	assert.False(t, hist.CanRedo)

	saved := decode[map[string]string](t, do(t, h, "POST", "/sessions/"+created.ID+"/save", nil))
	assert.Equal(t, string(domain.AutosaveWritten), saved["outcome"])
	assert.Equal(t, 5, store.Len())

	list := decode[[]SessionView](t, do(t, h, "GET", "/sessions", nil))
	require.Len(t, list, 1)

	assert.Equal(t, http.StatusNoContent, do(t, h, "DELETE", "/sessions/"+created.ID, nil).Code)
	assert.Equal(t, http.StatusNotFound, do(t, h, "GET", "/sessions/"+created.ID, nil).Code)
}

func TestServer_ActionsAndExport(t *testing.T) {
	_, h := newTestServer(t, memory.NewStore())
	id := startSession(t, h, CreateSessionRequest{UserID: "u1"}).ID
	waitFor(t, h, id, ready)

	assert.Equal(t, http.StatusNotFound, do(t, h, "GET", "/sessions/"+id+"/export", nil).Code)

	w := do(t, h, "POST", "/sessions/"+id+"/actions/"+actions.Export, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = do(t, h, "GET", "/sessions/"+id+"/export", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	assert.NotEmpty(t, w.Body.Bytes())

	w = do(t, h, "POST", "/sessions/"+id+"/actions/"+actions.Save, nil)
	require.Equal(t, http.StatusOK, w.Code)
	notes := decode[[]domain.Notification](t, do(t, h, "GET", "/sessions/"+id+"/notifications", nil))
	require.NotEmpty(t, notes)
	assert.Equal(t, domain.NotifySuccess, notes[len(notes)-1].Level)

	assert.Equal(t, http.StatusNotFound, do(t, h, "POST", "/sessions/"+id+"/actions/explode", nil).Code)
}

func TestServer_Upload(t *testing.T) {
	srv, h := newTestServer(t, memory.NewStore())
	id := startSession(t, h, CreateSessionRequest{UserID: "u1"}).ID
	waitFor(t, h, id, ready)

	req := httptest.NewRequest("POST", "/sessions/"+id+"/uploads", strings.NewReader("PNGDATA"))
	req.Header.Set("Content-Type", "image/png")
	req.Header.Set("X-Upload-Name", "cat.png")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	sess, ok := srv.Editor.Session(id)
	require.True(t, ok)
	assert.Empty(t, sess.Notifications(), "upload succeeded without an error notification")

	srv.Blobs.mu.RLock()
	refs := append([]string(nil), srv.Blobs.owners[id]...)
	srv.Blobs.mu.RUnlock()
	require.Len(t, refs, 1)

	w = do(t, h, "GET", "/blobs/"+refs[0], nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "PNGDATA", w.Body.String())
}

func TestServer_RecoveryFlow(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	key := domain.DraftKey{UserID: "u1", MediaType: domain.MediaImage}
	_, err := draft.NewRepository(store).Write(ctx, key, `{"old":true}`, domain.TriggerAutoSave)
	require.NoError(t, err)

	_, h := newTestServer(t, store)
	id := startSession(t, h, CreateSessionRequest{UserID: "u1"}).ID

	v := waitFor(t, h, id, func(v SessionView) bool { return v.Pending != nil })
	assert.Equal(t, domain.RecoveryPending, v.Recovery)
	assert.Equal(t, domain.TriggerAutoSave, v.Pending.SavedBy)

	assert.Equal(t, http.StatusBadRequest, do(t, h, "POST", "/sessions/"+id+"/recovery", map[string]string{"choice": "maybe"}).Code)
	assert.Equal(t, http.StatusAccepted, do(t, h, "POST", "/sessions/"+id+"/recovery", map[string]string{"choice": "discard"}).Code)

	v = waitFor(t, h, id, ready)
	assert.Equal(t, domain.RecoveryDiscarded, v.Recovery)
	assert.Nil(t, v.Pending)
	assert.Zero(t, store.Len())
}

func TestServer_Drafts(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	repo := draft.NewRepository(store)
	_, err := repo.Write(ctx, domain.DraftKey{UserID: "u1", MediaType: domain.MediaImage}, "a", domain.TriggerManualSave)
	require.NoError(t, err)
	_, err = repo.Write(ctx, domain.DraftKey{UserID: "u2", MediaType: domain.MediaVideo}, "bb", domain.TriggerAutoSave)
	require.NoError(t, err)

	_, h := newTestServer(t, store)

	list := decode[[]DraftView](t, do(t, h, "GET", "/drafts", nil))
	require.Len(t, list, 2)

	one := decode[DraftView](t, do(t, h, "GET", "/drafts/u2/video", nil))
	assert.Equal(t, 2, one.ByteSize)
	assert.Equal(t, domain.HashContent("bb"), one.Hash)

	assert.Equal(t, http.StatusBadRequest, do(t, h, "GET", "/drafts/u2/gif", nil).Code)
	assert.Equal(t, http.StatusNoContent, do(t, h, "DELETE", "/drafts/u2/video", nil).Code)
	assert.Equal(t, http.StatusNotFound, do(t, h, "GET", "/drafts/u2/video", nil).Code)
}

func TestServer_NotStarted(t *testing.T) {
	gate := make(chan struct{})
	ed := moments.New(headless.NewFactory(headless.WithCreateGate(gate)), memory.NewStore())
	srv := NewServer(ed)
	h := srv.Handler()
	t.Cleanup(func() {
		close(gate)
		srv.Close(context.Background())
	})

	id := startSession(t, h, CreateSessionRequest{UserID: "u1"}).ID
	assert.Equal(t, http.StatusConflict, do(t, h, "POST", "/sessions/"+id+"/undo", nil).Code)
}

func TestSubscribeEvents_Session(t *testing.T) {
	srv, h := newTestServer(t, memory.NewStore())
	id := startSession(t, h, CreateSessionRequest{UserID: "u1"}).ID
	waitFor(t, h, id, ready)

	ts := httptest.NewServer(h)
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, "GET", ts.URL+"/sessions/"+id+"/events?watch=notification", nil)
	require.NoError(t, err)
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	lines := make(chan string, 32)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(resp.Body)
		for sc.Scan() {
			lines <- sc.Text()
		}
	}()
	require.Equal(t, "event: ping", <-lines)

	require.Eventually(t, func() bool { return srv.Streams.Subscribers(id) == 1 }, time.Second, 5*time.Millisecond)
	do(t, h, "POST", "/sessions/"+id+"/undo", nil)
	do(t, h, "POST", "/sessions/"+id+"/actions/"+actions.Save, nil)

	var got []string
	timeout := time.After(2 * time.Second)
	for len(got) < 2 {
		select {
		case line, ok := <-lines:
			require.True(t, ok)
			if strings.HasPrefix(line, "event: ") || strings.HasPrefix(line, "data: {") {
				got = append(got, line)
			}
		case <-timeout:
			t.Fatalf("no notification received, got %v", got)
		}
	}
	assert.Equal(t, "event: notification", got[0])
	assert.Contains(t, got[1], `"level":"success"`)
	cancel()
}

func TestStreamManager(t *testing.T) {
	sm := NewStreamManager()
	ch, cancel := sm.Subscribe("s1")
	sm.Broadcast("s1", "hello")
	sm.Broadcast("s2", "ignored")
	assert.Equal(t, "hello", <-ch)
	assert.Equal(t, 1, sm.Subscribers("s1"))
	cancel()
	cancel()
	assert.Zero(t, sm.Subscribers("s1"))
	_, open := <-ch
	assert.False(t, open)
}
