package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/aretw0/moments"
	"github.com/aretw0/moments/internal/logging"
	"github.com/aretw0/moments/pkg/device"
	"github.com/aretw0/moments/pkg/domain"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"golang.org/x/sync/errgroup"
)

const draftsURI = "moments://drafts"

// DraftSummary describes a stored draft.
type DraftSummary struct {
	UserID    string             `json:"user_id" jsonschema_description:"Owner of the draft"`
	MediaType domain.MediaType   `json:"media_type" jsonschema_description:"image or video"`
	SavedAt   time.Time          `json:"saved_at" jsonschema_description:"When the draft was written"`
	SavedBy   domain.SaveTrigger `json:"saved_by" jsonschema_description:"auto-save, manual-save or before-unload"`
	Hash      string             `json:"content_hash"`
	ByteSize  int                `json:"byte_size"`
	Content   string             `json:"content,omitempty" jsonschema_description:"Serialized scene, only when requested"`
}

// DraftList wraps draft summaries.
type DraftList struct {
	Drafts []DraftSummary `json:"drafts"`
}

// SessionSummary describes a live session.
type SessionSummary struct {
	ID        string                  `json:"id"`
	UserID    string                  `json:"user_id"`
	MediaType domain.MediaType        `json:"media_type"`
	State     domain.SessionState     `json:"state"`
	History   domain.HistoryState     `json:"history"`
	Recovery  domain.RecoveryDecision `json:"recovery"`
	Unsaved   bool                    `json:"has_unsaved_changes"`
}

// SessionList wraps session summaries.
type SessionList struct {
	Sessions []SessionSummary `json:"sessions"`
}

// Server exposes drafts and editor sessions as MCP tools.
type Server struct {
	editor    *moments.Editor
	mcpServer *server.MCPServer
	logger    *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// NewServer creates a new MCP Server instance.
func NewServer(editor *moments.Editor, opts ...Option) *Server {
	s := &Server{
		editor:    editor,
		mcpServer: server.NewMCPServer("moments-mcp", strings.TrimSpace(moments.Version)),
		logger:    logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registerTools()
	s.registerResources()
	return s
}

// MCPServer returns the underlying protocol server.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// ServeStdio starts the server on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE serves the MCP SSE transport on addr until ctx is done.
func (s *Server) ServeSSE(ctx context.Context, addr string) error {
	baseURL := "http://" + addr
	if strings.HasPrefix(addr, ":") {
		baseURL = "http://localhost" + addr
	}
	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))

	mux := http.NewServeMux()
	mux.Handle("/sse", corsMiddleware(sseServer.SSEHandler()))
	mux.Handle("/message", corsMiddleware(sseServer.MessageHandler()))
	httpServer := &http.Server{Addr: addr, Handler: mux}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("MCP Server listening (SSE)", "address", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	})
	return g.Wait()
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) registerTools() {
	// TOOL: list_drafts
	s.mcpServer.AddTool(mcp.NewTool("list_drafts",
		mcp.WithDescription("List every stored draft, newest first."),
		mcp.WithOutputSchema[DraftList](),
	), mcp.NewStructuredToolHandler(s.handleListDrafts))

	// TOOL: inspect_draft
	s.mcpServer.AddTool(mcp.NewTool("inspect_draft",
		mcp.WithDescription("Show the metadata of one draft, optionally with its serialized scene."),
		mcp.WithString("user_id", mcp.Required(), mcp.Description("Owner of the draft")),
		mcp.WithString("media_type", mcp.Description("image (default) or video")),
		mcp.WithBoolean("include_content", mcp.Description("Include the serialized scene")),
		mcp.WithOutputSchema[DraftSummary](),
	), mcp.NewStructuredToolHandler(s.handleInspectDraft))

	// TOOL: delete_draft
	s.mcpServer.AddTool(mcp.NewTool("delete_draft",
		mcp.WithDescription("Delete a draft and its metadata."),
		mcp.WithString("user_id", mcp.Required(), mcp.Description("Owner of the draft")),
		mcp.WithString("media_type", mcp.Description("image (default) or video")),
	), s.handleDeleteDraft)

	// TOOL: resolve_device
	s.mcpServer.AddTool(mcp.NewTool("resolve_device",
		mcp.WithDescription("Resolve the editor device profile for a browser environment."),
		mcp.WithString("user_agent", mcp.Description("User-Agent header")),
		mcp.WithString("mobile_hint", mcp.Description(`Sec-CH-UA-Mobile client hint, "?1" or "?0"`)),
		mcp.WithString("platform", mcp.Description("Sec-CH-UA-Platform client hint")),
		mcp.WithNumber("max_touch_points", mcp.Description("navigator.maxTouchPoints")),
		mcp.WithOutputSchema[domain.DeviceProfile](),
	), mcp.NewStructuredToolHandler(s.handleResolveDevice))

	// TOOL: list_sessions
	s.mcpServer.AddTool(mcp.NewTool("list_sessions",
		mcp.WithDescription("List live editor sessions."),
		mcp.WithOutputSchema[SessionList](),
	), mcp.NewStructuredToolHandler(s.handleListSessions))

	// TOOL: run_action
	s.mcpServer.AddTool(mcp.NewTool("run_action",
		mcp.WithDescription("Trigger an editor action (export, save, undo, redo...) on a live session."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session ID")),
		mcp.WithString("action", mcp.Required(), mcp.Description("Action name, or undo/redo")),
		mcp.WithOutputSchema[SessionSummary](),
	), mcp.NewStructuredToolHandler(s.handleRunAction))

	// TOOL: resolve_recovery
	s.mcpServer.AddTool(mcp.NewTool("resolve_recovery",
		mcp.WithDescription("Answer the draft recovery prompt of a session."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session ID")),
		mcp.WithString("choice", mcp.Required(), mcp.Enum("recover", "discard")),
	), s.handleResolveRecovery)
}

func (s *Server) handleListDrafts(ctx context.Context, _ mcp.CallToolRequest, _ map[string]interface{}) (DraftList, error) {
	drafts, err := s.listDrafts(ctx)
	if err != nil {
		return DraftList{}, err
	}
	return DraftList{Drafts: drafts}, nil
}

func (s *Server) listDrafts(ctx context.Context) ([]DraftSummary, error) {
	repo := s.editor.Repository()
	keys, err := repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list drafts: %w", err)
	}
	out := []DraftSummary{}
	for _, key := range keys {
		rec, err := repo.Load(ctx, key)
		if err != nil {
			s.logger.Warn("Skipping unreadable draft", "draft", key.String(), "err", err)
			continue
		}
		out = append(out, summarize(key, *rec, false))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SavedAt.After(out[j].SavedAt) })
	return out, nil
}

func (s *Server) handleInspectDraft(ctx context.Context, _ mcp.CallToolRequest, args map[string]interface{}) (DraftSummary, error) {
	key, err := draftKey(args)
	if err != nil {
		return DraftSummary{}, err
	}
	rec, err := s.editor.Repository().Load(ctx, key)
	if err != nil {
		return DraftSummary{}, fmt.Errorf("load draft %s: %w", key, err)
	}
	include, _ := args["include_content"].(bool)
	return summarize(key, *rec, include), nil
}

func (s *Server) handleDeleteDraft(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	key, err := draftKey(request.GetArguments())
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.editor.Repository().Delete(ctx, key); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("delete failed: %v", err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("deleted draft %s", key)), nil
}

func (s *Server) handleResolveDevice(_ context.Context, _ mcp.CallToolRequest, args map[string]interface{}) (domain.DeviceProfile, error) {
	env := device.Environment{}
	env.UserAgent, _ = args["user_agent"].(string)
	env.MobileHint, _ = args["mobile_hint"].(string)
	env.Platform, _ = args["platform"].(string)
	if n, ok := args["max_touch_points"].(float64); ok {
		env.MaxTouchPoints = int(n)
	}
	return device.Resolve(env), nil
}

func (s *Server) handleListSessions(_ context.Context, _ mcp.CallToolRequest, _ map[string]interface{}) (SessionList, error) {
	out := SessionList{Sessions: []SessionSummary{}}
	for _, sess := range s.editor.Sessions() {
		out.Sessions = append(out.Sessions, sessionSummary(sess))
	}
	return out, nil
}

func (s *Server) handleRunAction(ctx context.Context, _ mcp.CallToolRequest, args map[string]interface{}) (SessionSummary, error) {
	id, _ := args["session_id"].(string)
	sess, ok := s.editor.Session(id)
	if !ok {
		return SessionSummary{}, fmt.Errorf("session %q not found", id)
	}
	action, _ := args["action"].(string)
	var err error
	switch action {
	case "undo":
		err = sess.Undo(ctx)
	case "redo":
		err = sess.Redo(ctx)
	default:
		err = sess.RunAction(ctx, action, nil)
	}
	if err != nil {
		return SessionSummary{}, fmt.Errorf("%s failed: %w", action, err)
	}
	return sessionSummary(sess), nil
}

func (s *Server) handleResolveRecovery(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, ok := s.editor.Session(request.GetString("session_id", ""))
	if !ok {
		return mcp.NewToolResultError("session not found"), nil
	}
	choice, err := domain.ParseRecoveryChoice(request.GetString("choice", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := sess.ResolveRecovery(choice); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(choice)), nil
}

func (s *Server) registerResources() {
	// EXPOSE: moments://drafts
	s.mcpServer.AddResource(mcp.NewResource(draftsURI, "Stored drafts",
		mcp.WithMIMEType("application/json"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		drafts, err := s.listDrafts(ctx)
		if err != nil {
			return nil, err
		}
		jsonBytes, _ := json.Marshal(drafts)
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      draftsURI,
				MIMEType: "application/json",
				Text:     string(jsonBytes),
			},
		}, nil
	})
}

func draftKey(args map[string]interface{}) (domain.DraftKey, error) {
	user, _ := args["user_id"].(string)
	if user == "" {
		return domain.DraftKey{}, errors.New("user_id is required")
	}
	media := domain.MediaImage
	if m, _ := args["media_type"].(string); m != "" {
		parsed, err := domain.ParseMediaType(m)
		if err != nil {
			return domain.DraftKey{}, err
		}
		media = parsed
	}
	return domain.DraftKey{UserID: user, MediaType: media}, nil
}

func summarize(key domain.DraftKey, rec domain.DraftRecord, content bool) DraftSummary {
	d := DraftSummary{
		UserID:    key.UserID,
		MediaType: key.MediaType,
		SavedAt:   rec.SavedAt,
		SavedBy:   rec.SavedBy,
		Hash:      rec.ContentHash,
		ByteSize:  rec.ByteSize,
	}
	if content {
		d.Content = rec.SceneContent
	}
	return d
}

func sessionSummary(sess *moments.Session) SessionSummary {
	host := sess.Host()
	return SessionSummary{
		ID:        sess.ID(),
		UserID:    host.UserID,
		MediaType: host.MediaType,
		State:     sess.State(),
		History:   sess.History(),
		Recovery:  sess.Recovery(),
		Unsaved:   sess.Autosave().HasUnsavedChanges,
	}
}
