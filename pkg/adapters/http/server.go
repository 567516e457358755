package http

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aretw0/moments"
	"github.com/aretw0/moments/internal/logging"
	"github.com/aretw0/moments/pkg/actions"
	"github.com/aretw0/moments/pkg/device"
	"github.com/aretw0/moments/pkg/domain"
	"github.com/go-chi/chi/v5"
)

// maxUploadBytes bounds a single uploaded file.
const maxUploadBytes = 32 << 20

// Server bridges editor sessions to HTTP hosts.
type Server struct {
	Editor  *moments.Editor
	Streams *StreamManager
	Blobs   *BlobStore

	logger *slog.Logger
	wg     sync.WaitGroup
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the request logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// NewServer creates a Server for editor.
func NewServer(editor *moments.Editor, opts ...Option) *Server {
	s := &Server{
		Editor:  editor,
		Streams: NewStreamManager(),
		Blobs:   NewBlobStore(),
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewHandler creates a new HTTP handler for the editor.
func NewHandler(editor *moments.Editor, opts ...Option) http.Handler {
	return NewServer(editor, opts...).Handler()
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Get("/health", s.GetHealth)
	r.Get("/info", s.GetInfo)
	r.Get("/device", s.GetDevice)
	r.Get("/blobs/{blob}", s.GetBlob)

	r.Route("/sessions", func(r chi.Router) {
		r.Get("/", s.ListSessions)
		r.Post("/", s.CreateSession)
		r.Route("/{session}", func(r chi.Router) {
			r.Get("/", s.GetSession)
			r.Delete("/", s.CloseSession)
			r.Get("/events", s.SubscribeEvents)
			r.Get("/notifications", s.GetNotifications)
			r.Post("/recovery", s.ResolveRecovery)
			r.Post("/actions/{action}", s.RunAction)
			r.Post("/uploads", s.Upload)
			r.Get("/export", s.GetExport)
			r.Post("/undo", s.Undo)
			r.Post("/redo", s.Redo)
			r.Post("/save", s.Save)
			r.Post("/hide", s.Hide)
		})
	})

	r.Route("/drafts", func(r chi.Router) {
		r.Get("/", s.ListDrafts)
		r.Get("/{user}/{media}", s.GetDraft)
		r.Delete("/{user}/{media}", s.DeleteDraft)
	})
	return enableCORS(r)
}

// Close disposes every session and waits for pending starts to return.
func (s *Server) Close(ctx context.Context) {
	s.Editor.Shutdown(ctx)
	s.wg.Wait()
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Upload-Name")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// CreateSessionRequest is the body of POST /sessions.
type CreateSessionRequest struct {
	UserID          string       `json:"user_id"`
	Role            string       `json:"role,omitempty"`
	MediaType       string       `json:"media_type,omitempty"`
	InitialMediaURL string       `json:"initial_media_url,omitempty"`
	Theme           domain.Theme `json:"theme,omitempty"`
}

// SessionView is the JSON representation of a session.
type SessionView struct {
	ID        string                  `json:"id"`
	UserID    string                  `json:"user_id"`
	MediaType domain.MediaType        `json:"media_type"`
	State     domain.SessionState     `json:"state"`
	Error     *ErrorView              `json:"error,omitempty"`
	Profile   domain.DeviceProfile    `json:"profile"`
	History   domain.HistoryState     `json:"history"`
	Autosave  AutosaveView            `json:"autosave"`
	Recovery  domain.RecoveryDecision `json:"recovery"`
	Pending   *DraftView              `json:"pending_draft,omitempty"`
	Failed    []string                `json:"failed_steps,omitempty"`
}

// ErrorView is a user visible failure.
type ErrorView struct {
	Kind    domain.ErrorKind `json:"kind"`
	Message string           `json:"message"`
}

// AutosaveView mirrors autosave.Status.
type AutosaveView struct {
	HasUnsavedChanges bool       `json:"has_unsaved_changes"`
	LastSaved         *time.Time `json:"last_saved,omitempty"`
	IsSaving          bool       `json:"is_saving"`
}

// DraftView describes a stored draft without its content.
type DraftView struct {
	UserID    string             `json:"user_id,omitempty"`
	MediaType domain.MediaType   `json:"media_type,omitempty"`
	SavedAt   time.Time          `json:"saved_at"`
	SavedBy   domain.SaveTrigger `json:"saved_by"`
	Hash      string             `json:"content_hash"`
	ByteSize  int                `json:"byte_size"`
}

func draftView(rec domain.DraftRecord) *DraftView {
	return &DraftView{SavedAt: rec.SavedAt, SavedBy: rec.SavedBy, Hash: rec.ContentHash, ByteSize: rec.ByteSize}
}

func sessionView(sess *moments.Session) SessionView {
	host := sess.Host()
	st := sess.Autosave()
	v := SessionView{
		ID:        sess.ID(),
		UserID:    host.UserID,
		MediaType: host.MediaType,
		State:     sess.State(),
		Profile:   sess.Profile(),
		History:   sess.History(),
		Autosave:  AutosaveView{HasUnsavedChanges: st.HasUnsavedChanges, IsSaving: st.IsSaving},
		Recovery:  sess.Recovery(),
	}
	if !st.LastSaved.IsZero() {
		v.Autosave.LastSaved = &st.LastSaved
	}
	if err := sess.Err(); err != nil {
		var se *domain.SessionError
		if errors.As(err, &se) {
			v.Error = &ErrorView{Kind: se.Kind, Message: se.Message}
		} else {
			v.Error = &ErrorView{Kind: domain.KindStartFailed, Message: domain.KindStartFailed.Message()}
		}
	}
	if rec, ok := sess.PendingDraft(); ok {
		v.Pending = draftView(rec)
	}
	for _, step := range sess.Report().Failed() {
		v.Failed = append(v.Failed, step.Name)
	}
	return v
}

// GetHealth handles the GET /health request.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetInfo handles the GET /info request.
func (s *Server) GetInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"app":     "moments-http",
		"version": strings.TrimSpace(moments.Version),
	})
}

// GetDevice resolves the device profile of the calling client.
func (s *Server) GetDevice(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, device.Resolve(device.EnvironmentFromRequest(r)))
}

// CreateSession handles POST /sessions. The session starts in the background;
// clients poll GET /sessions/{id} or follow its event stream.
func (s *Server) CreateSession(w http.ResponseWriter, r *http.Request) {
	var body CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		s.logger.Warn("CreateSession: Invalid request body", "err", err)
		return
	}
	if body.UserID == "" {
		http.Error(w, "user_id is required", http.StatusBadRequest)
		return
	}
	media := domain.MediaImage
	if body.MediaType != "" {
		m, err := domain.ParseMediaType(body.MediaType)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		media = m
	}

	var id string
	host := moments.Host{
		UserID:          body.UserID,
		Role:            body.Role,
		MediaType:       media,
		InitialMediaURL: body.InitialMediaURL,
		Theme:           body.Theme,
		Actions:         s.callbacks(&id),
		Notifier: notifierFunc(func(n domain.Notification) {
			s.broadcast(id, "notification", n)
		}),
	}
	sess := s.Editor.NewSession(host, device.EnvironmentFromRequest(r))
	id = sess.ID()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := sess.Start(context.Background()); err != nil {
			s.logger.Warn("Session start failed", "session_id", id, "err", err)
		} else if unregister, err := sess.OnHistoryChange(func(h domain.HistoryState) {
			s.broadcast(id, "history", h)
		}); err != nil {
			s.logger.Warn("History stream unavailable", "session_id", id, "err", err)
		} else {
			sess.Defer(unregister)
		}
		s.broadcast(id, "state", map[string]domain.SessionState{"state": sess.State()})
	}()

	writeJSON(w, http.StatusAccepted, sessionView(sess))
}

// ListSessions handles GET /sessions.
func (s *Server) ListSessions(w http.ResponseWriter, r *http.Request) {
	views := []SessionView{}
	for _, sess := range s.Editor.Sessions() {
		views = append(views, sessionView(sess))
	}
	writeJSON(w, http.StatusOK, views)
}

// GetSession handles GET /sessions/{session}.
func (s *Server) GetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sessionView(sess))
}

// CloseSession handles DELETE /sessions/{session}. The scene is saved first when possible.
func (s *Server) CloseSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	if sess.State() == domain.StateReady {
		if err := sess.Hide(r.Context()); err != nil {
			s.logger.Warn("Final save failed", "session_id", sess.ID(), "err", err)
		}
	}
	sess.Close(r.Context())
	s.broadcast(sess.ID(), "state", map[string]domain.SessionState{"state": sess.State()})
	s.Blobs.Forget(sess.ID())
	w.WriteHeader(http.StatusNoContent)
}

// GetNotifications drains the session notification backlog.
func (s *Server) GetNotifications(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	out := sess.Notifications()
	if out == nil {
		out = []domain.Notification{}
	}
	writeJSON(w, http.StatusOK, out)
}

// ResolveRecovery handles POST /sessions/{session}/recovery with {"choice": "recover"|"discard"}.
func (s *Server) ResolveRecovery(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var body struct {
		Choice string `json:"choice"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	choice, err := domain.ParseRecoveryChoice(body.Choice)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := sess.ResolveRecovery(choice); err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// RunAction handles POST /sessions/{session}/actions/{action}.
// The optional body is a JSON object passed as the action arguments.
func (s *Server) RunAction(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	args := map[string]any{}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&args); err != nil && !errors.Is(err, io.EOF) {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
	}
	name := chi.URLParam(r, "action")
	if err := sess.RunAction(r.Context(), name, args); err != nil {
		s.sessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionView(sess))
}

// Upload handles POST /sessions/{session}/uploads with the raw file as body.
func (s *Server) Upload(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	data, err := io.ReadAll(io.LimitReader(r.Body, maxUploadBytes+1))
	if err != nil {
		http.Error(w, "Failed to read upload", http.StatusBadRequest)
		return
	}
	if len(data) > maxUploadBytes {
		http.Error(w, "Upload too large", http.StatusRequestEntityTooLarge)
		return
	}
	file := actions.Upload{
		Name:     r.Header.Get("X-Upload-Name"),
		MimeType: r.Header.Get("Content-Type"),
		Data:     data,
	}
	if err := sess.RunAction(r.Context(), actions.UploadFile, map[string]any{"file": file}); err != nil {
		s.sessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionView(sess))
}

// GetExport returns the last blob exported by the session.
func (s *Server) GetExport(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	blob, ok := s.Blobs.LastExport(sess.ID())
	if !ok {
		http.Error(w, "Nothing exported yet", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", blob.MimeType)
	_, _ = w.Write(blob.Data)
}

// GetBlob serves an uploaded or exported blob.
func (s *Server) GetBlob(w http.ResponseWriter, r *http.Request) {
	blob, ok := s.Blobs.Get(chi.URLParam(r, "blob"))
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", blob.MimeType)
	_, _ = w.Write(blob.Data)
}

// Undo handles POST /sessions/{session}/undo.
func (s *Server) Undo(w http.ResponseWriter, r *http.Request) {
	s.historyStep(w, r, (*moments.Session).Undo)
}

// Redo handles POST /sessions/{session}/redo.
func (s *Server) Redo(w http.ResponseWriter, r *http.Request) {
	s.historyStep(w, r, (*moments.Session).Redo)
}

func (s *Server) historyStep(w http.ResponseWriter, r *http.Request, step func(*moments.Session, context.Context) error) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	if err := step(sess, r.Context()); err != nil {
		s.sessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.History())
}

// Save handles POST /sessions/{session}/save.
func (s *Server) Save(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	outcome, err := sess.Save(r.Context())
	if err != nil && outcome != domain.AutosaveFailed {
		s.sessionError(w, err)
		return
	}
	resp := map[string]any{"outcome": outcome}
	if err != nil {
		resp["error"] = domain.KindStorageFailed.Message()
	}
	writeJSON(w, http.StatusOK, resp)
}

// Hide handles POST /sessions/{session}/hide, sent when the host page is hidden or unloaded.
func (s *Server) Hide(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	if err := sess.Hide(r.Context()); err != nil {
		s.logger.Warn("Hide save failed", "session_id", sess.ID(), "err", err)
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListDrafts handles GET /drafts.
func (s *Server) ListDrafts(w http.ResponseWriter, r *http.Request) {
	repo := s.Editor.Repository()
	keys, err := repo.List(r.Context())
	if err != nil {
		http.Error(w, fmt.Sprintf("List error: %v", err), http.StatusInternalServerError)
		s.logger.Error("ListDrafts failed", "err", err)
		return
	}
	views := []DraftView{}
	for _, key := range keys {
		rec, err := repo.Load(r.Context(), key)
		if err != nil {
			s.logger.Warn("Skipping unreadable draft", "draft", key.String(), "err", err)
			continue
		}
		v := draftView(*rec)
		v.UserID, v.MediaType = key.UserID, key.MediaType
		views = append(views, *v)
	}
	sort.Slice(views, func(i, j int) bool { return views[i].SavedAt.After(views[j].SavedAt) })
	writeJSON(w, http.StatusOK, views)
}

// GetDraft handles GET /drafts/{user}/{media}.
func (s *Server) GetDraft(w http.ResponseWriter, r *http.Request) {
	key, ok := draftKey(w, r)
	if !ok {
		return
	}
	rec, err := s.Editor.Repository().Load(r.Context(), key)
	if errors.Is(err, domain.ErrDraftNotFound) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		http.Error(w, fmt.Sprintf("Load error: %v", err), http.StatusInternalServerError)
		return
	}
	v := draftView(*rec)
	v.UserID, v.MediaType = key.UserID, key.MediaType
	writeJSON(w, http.StatusOK, v)
}

// DeleteDraft handles DELETE /drafts/{user}/{media}.
func (s *Server) DeleteDraft(w http.ResponseWriter, r *http.Request) {
	key, ok := draftKey(w, r)
	if !ok {
		return
	}
	if err := s.Editor.Repository().Delete(r.Context(), key); err != nil {
		http.Error(w, fmt.Sprintf("Delete error: %v", err), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func draftKey(w http.ResponseWriter, r *http.Request) (domain.DraftKey, bool) {
	media, err := domain.ParseMediaType(chi.URLParam(r, "media"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return domain.DraftKey{}, false
	}
	return domain.DraftKey{UserID: chi.URLParam(r, "user"), MediaType: media}, true
}

func (s *Server) session(w http.ResponseWriter, r *http.Request) (*moments.Session, bool) {
	sess, ok := s.Editor.Session(chi.URLParam(r, "session"))
	if !ok {
		http.Error(w, "Session not found", http.StatusNotFound)
	}
	return sess, ok
}

func (s *Server) sessionError(w http.ResponseWriter, err error) {
	var se *domain.SessionError
	switch {
	case errors.Is(err, domain.ErrNotStarted):
		http.Error(w, "Session is not ready", http.StatusConflict)
	case errors.Is(err, domain.ErrSessionDisposed):
		http.Error(w, "Session disposed", http.StatusGone)
	case errors.Is(err, domain.ErrUnknownAction):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.As(err, &se):
		writeJSON(w, http.StatusConflict, ErrorView{Kind: se.Kind, Message: se.Message})
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
		s.logger.Error("Session operation failed", "err", err)
	}
}

// callbacks returns host action handlers storing blobs on the server.
// id is filled in once the session exists.
func (s *Server) callbacks(id *string) actions.Callbacks {
	return actions.Callbacks{
		OnExport: func(_ context.Context, blob []byte, mime string) error {
			ref := s.Blobs.Put(*id, blob, mime)
			s.Blobs.SetLastExport(*id, ref)
			s.broadcast(*id, "export", map[string]string{"url": "/blobs/" + ref, "mime_type": mime})
			return nil
		},
		OnUpload: func(_ context.Context, file actions.Upload) (string, error) {
			if len(file.Data) == 0 {
				return "", errors.New("empty upload")
			}
			return "/blobs/" + s.Blobs.Put(*id, file.Data, file.MimeType), nil
		},
	}
}

func (s *Server) broadcast(sessionID, event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.Warn("Event encode failed", "event", event, "err", err)
		return
	}
	s.Streams.Broadcast(sessionID, fmt.Sprintf("event: %s\ndata: %s", event, data))
}

type notifierFunc func(domain.Notification)

func (f notifierFunc) Notify(_ context.Context, n domain.Notification) { f(n) }

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Blob is stored binary content.
type Blob struct {
	Data     []byte
	MimeType string
}

// BlobStore keeps uploaded and exported blobs in memory, grouped by session.
type BlobStore struct {
	mu      sync.RWMutex
	blobs   map[string]Blob
	owners  map[string][]string
	exports map[string]string
}

// NewBlobStore creates an empty BlobStore.
func NewBlobStore() *BlobStore {
	return &BlobStore{
		blobs:   make(map[string]Blob),
		owners:  make(map[string][]string),
		exports: make(map[string]string),
	}
}

// Put stores data and returns its content addressed reference.
func (b *BlobStore) Put(owner string, data []byte, mime string) string {
	sum := sha256.Sum256(data)
	ref := hex.EncodeToString(sum[:16])
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.blobs[ref]; !ok {
		b.owners[owner] = append(b.owners[owner], ref)
	}
	b.blobs[ref] = Blob{Data: data, MimeType: mime}
	return ref
}

// Get returns the blob stored under ref.
func (b *BlobStore) Get(ref string) (Blob, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	blob, ok := b.blobs[ref]
	return blob, ok
}

// SetLastExport records ref as the latest export of owner.
func (b *BlobStore) SetLastExport(owner, ref string) {
	b.mu.Lock()
	b.exports[owner] = ref
	b.mu.Unlock()
}

// LastExport returns the latest export of owner.
func (b *BlobStore) LastExport(owner string) (Blob, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	ref, ok := b.exports[owner]
	if !ok {
		return Blob{}, false
	}
	blob, ok := b.blobs[ref]
	return blob, ok
}

// Forget drops every blob stored by owner.
func (b *BlobStore) Forget(owner string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ref := range b.owners[owner] {
		delete(b.blobs, ref)
	}
	delete(b.owners, owner)
	delete(b.exports, owner)
}
