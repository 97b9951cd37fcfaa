package fsops

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

const (
	apiPrefix      = "/api/fs"
	wsPingInterval = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // the API only listens on loopback
	},
}

// Handlers exposes an Engine over HTTP.
type Handlers struct {
	engine     *Engine
	showHidden bool
}

// NewHandlers creates the HTTP handlers. showHidden is the default for
// requests that do not pass ?hidden=.
func NewHandlers(engine *Engine, showHidden bool) *Handlers {
	return &Handlers{engine: engine, showHidden: showHidden}
}

// Router returns a router with every route registered.
func (h *Handlers) Router() *mux.Router {
	r := mux.NewRouter()
	h.Register(r)
	return r
}

// Register adds the API routes and /metrics to r. Routes are registered on r
// itself so a method mismatch answers 405 instead of falling through to 404.
func (h *Handlers) Register(r *mux.Router) {
	r.HandleFunc(apiPrefix+"/list", h.HandleList).Methods(http.MethodGet)
	r.HandleFunc(apiPrefix+"/details", h.HandleDetails).Methods(http.MethodGet)
	r.HandleFunc(apiPrefix+"/properties", h.HandleProperties).Methods(http.MethodGet)
	r.HandleFunc(apiPrefix+"/search", h.HandleSearch).Methods(http.MethodGet)
	r.HandleFunc(apiPrefix+"/dirsize", h.HandleDirSize).Methods(http.MethodGet)
	r.HandleFunc(apiPrefix+"/text", h.HandleText).Methods(http.MethodGet)
	r.HandleFunc(apiPrefix+"/base64", h.HandleBase64).Methods(http.MethodGet)
	r.HandleFunc(apiPrefix+"/home", h.HandleHome).Methods(http.MethodGet)
	r.HandleFunc(apiPrefix+"/quick-access", h.HandleQuickAccess).Methods(http.MethodGet)
	r.HandleFunc(apiPrefix+"/status", h.HandleStatus).Methods(http.MethodGet)
	r.HandleFunc(apiPrefix+"/events", h.HandleEvents).Methods(http.MethodGet)

	r.HandleFunc(apiPrefix+"/copy", h.HandleCopy).Methods(http.MethodPost)
	r.HandleFunc(apiPrefix+"/move", h.HandleMove).Methods(http.MethodPost)
	r.HandleFunc(apiPrefix+"/delete", h.HandleDelete).Methods(http.MethodPost)
	r.HandleFunc(apiPrefix+"/duplicate", h.HandleDuplicate).Methods(http.MethodPost)
	r.HandleFunc(apiPrefix+"/rename", h.HandleRename).Methods(http.MethodPost)
	r.HandleFunc(apiPrefix+"/batch-rename", h.HandleBatchRename).Methods(http.MethodPost)
	r.HandleFunc(apiPrefix+"/mkdir", h.HandleMkdir).Methods(http.MethodPost)
	r.HandleFunc(apiPrefix+"/create", h.HandleCreate).Methods(http.MethodPost)
	r.HandleFunc(apiPrefix+"/watch", h.HandleWatch).Methods(http.MethodPost)
	r.HandleFunc(apiPrefix+"/unwatch", h.HandleUnwatch).Methods(http.MethodPost)

	r.Handle("/metrics", h.engine.Metrics().Handler()).Methods(http.MethodGet)
}

// --- request bodies ---

// TransferRequest is the body of /copy and /move.
type TransferRequest struct {
	Sources     []string `json:"sources"`
	Destination string   `json:"destination"`
}

// DeleteRequest is the body of /delete.
type DeleteRequest struct {
	Paths    []string `json:"paths"`
	UseTrash bool     `json:"use_trash"`
}

// PathRequest is the body of /duplicate and /watch.
type PathRequest struct {
	Path string `json:"path"`
}

// RenameRequest is the body of /rename.
type RenameRequest struct {
	Path    string `json:"path"`
	NewName string `json:"new_name"`
}

// BatchRenameRequest is the body of /batch-rename.
type BatchRenameRequest struct {
	Paths       []string `json:"paths"`
	Pattern     string   `json:"pattern"`
	Replacement string   `json:"replacement"`
	UseRegex    bool     `json:"use_regex"`
}

// CreateRequest is the body of /mkdir and /create.
type CreateRequest struct {
	Parent  string `json:"parent"`
	Name    string `json:"name"`
	Content string `json:"content,omitempty"`
}

// --- read handlers ---

// HandleList handles GET /api/fs/list?path=<dir>&hidden=<bool>
func (h *Handlers) HandleList(w http.ResponseWriter, r *http.Request) {
	path, ok := requireQuery(w, r, "path")
	if !ok {
		return
	}
	sub("handlers").Debug("HTTP list", "path", path)
	contents, err := h.engine.List(path, h.hidden(r))
	respond(w, contents, err)
}

// HandleDetails handles GET /api/fs/details?path=<path>
func (h *Handlers) HandleDetails(w http.ResponseWriter, r *http.Request) {
	path, ok := requireQuery(w, r, "path")
	if !ok {
		return
	}
	entry, err := h.engine.Details(path)
	respond(w, entry, err)
}

// HandleProperties handles GET /api/fs/properties?path=<path>
func (h *Handlers) HandleProperties(w http.ResponseWriter, r *http.Request) {
	path, ok := requireQuery(w, r, "path")
	if !ok {
		return
	}
	props, err := h.engine.Properties(path)
	respond(w, props, err)
}

// HandleSearch handles GET /api/fs/search?root=<dir>&q=<query>&hidden=<bool>
func (h *Handlers) HandleSearch(w http.ResponseWriter, r *http.Request) {
	root, ok := requireQuery(w, r, "root")
	if !ok {
		return
	}
	query := r.URL.Query().Get("q")
	sub("handlers").Info("HTTP search", "root", root, "query", query)
	results, err := h.engine.Search(r.Context(), root, query, h.hidden(r))
	respond(w, map[string]any{"results": results}, err)
}

// HandleDirSize handles GET /api/fs/dirsize?path=<dir>
func (h *Handlers) HandleDirSize(w http.ResponseWriter, r *http.Request) {
	path, ok := requireQuery(w, r, "path")
	if !ok {
		return
	}
	size, err := h.engine.DirSize(r.Context(), path)
	respond(w, map[string]any{"path": path, "size": size}, err)
}

// HandleText handles GET /api/fs/text?path=<file>&max=<bytes>
func (h *Handlers) HandleText(w http.ResponseWriter, r *http.Request) {
	path, ok := requireQuery(w, r, "path")
	if !ok {
		return
	}
	text, err := h.engine.ReadText(path, maxBytes(r))
	respond(w, map[string]any{"path": path, "content": text}, err)
}

// HandleBase64 handles GET /api/fs/base64?path=<file>&max=<bytes>
func (h *Handlers) HandleBase64(w http.ResponseWriter, r *http.Request) {
	path, ok := requireQuery(w, r, "path")
	if !ok {
		return
	}
	data, err := h.engine.ReadBase64(path, maxBytes(r))
	respond(w, map[string]any{"path": path, "content": data}, err)
}

// HandleHome handles GET /api/fs/home
func (h *Handlers) HandleHome(w http.ResponseWriter, r *http.Request) {
	home, err := h.engine.Home()
	respond(w, map[string]any{"path": home}, err)
}

// HandleQuickAccess handles GET /api/fs/quick-access
func (h *Handlers) HandleQuickAccess(w http.ResponseWriter, r *http.Request) {
	locs, err := h.engine.QuickAccess()
	respond(w, map[string]any{"items": locs}, err)
}

// HandleStatus handles GET /api/fs/status
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	respond(w, h.engine.Status(), nil)
}

// --- mutation handlers ---

// HandleCopy handles POST /api/fs/copy
func (h *Handlers) HandleCopy(w http.ResponseWriter, r *http.Request) {
	var req TransferRequest
	if !decode(w, r, &req) {
		return
	}
	sub("handlers").Info("HTTP copy", "sources", len(req.Sources), "destination", req.Destination)
	respond(w, okBody, h.engine.Copy(r.Context(), req.Sources, req.Destination))
}

// HandleMove handles POST /api/fs/move
func (h *Handlers) HandleMove(w http.ResponseWriter, r *http.Request) {
	var req TransferRequest
	if !decode(w, r, &req) {
		return
	}
	sub("handlers").Info("HTTP move", "sources", len(req.Sources), "destination", req.Destination)
	respond(w, okBody, h.engine.Move(r.Context(), req.Sources, req.Destination))
}

// HandleDelete handles POST /api/fs/delete
func (h *Handlers) HandleDelete(w http.ResponseWriter, r *http.Request) {
	var req DeleteRequest
	if !decode(w, r, &req) {
		return
	}
	sub("handlers").Info("HTTP delete", "paths", len(req.Paths), "trash", req.UseTrash)
	respond(w, okBody, h.engine.Delete(r.Context(), req.Paths, req.UseTrash))
}

// HandleDuplicate handles POST /api/fs/duplicate
func (h *Handlers) HandleDuplicate(w http.ResponseWriter, r *http.Request) {
	var req PathRequest
	if !decode(w, r, &req) {
		return
	}
	path, err := h.engine.Duplicate(r.Context(), req.Path)
	respond(w, map[string]any{"path": path}, err)
}

// HandleRename handles POST /api/fs/rename
func (h *Handlers) HandleRename(w http.ResponseWriter, r *http.Request) {
	var req RenameRequest
	if !decode(w, r, &req) {
		return
	}
	path, err := h.engine.Rename(req.Path, req.NewName)
	respond(w, map[string]any{"path": path}, err)
}

// HandleBatchRename handles POST /api/fs/batch-rename
func (h *Handlers) HandleBatchRename(w http.ResponseWriter, r *http.Request) {
	var req BatchRenameRequest
	if !decode(w, r, &req) {
		return
	}
	pairs, err := h.engine.BatchRename(r.Context(), req.Paths, req.Pattern, req.Replacement, req.UseRegex)
	respond(w, map[string]any{"renamed": pairs}, err)
}

// HandleMkdir handles POST /api/fs/mkdir
func (h *Handlers) HandleMkdir(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if !decode(w, r, &req) {
		return
	}
	path, err := h.engine.CreateDirectory(req.Parent, req.Name)
	respond(w, map[string]any{"path": path}, err)
}

// HandleCreate handles POST /api/fs/create
func (h *Handlers) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if !decode(w, r, &req) {
		return
	}
	path, err := h.engine.CreateFile(req.Parent, req.Name, []byte(req.Content))
	respond(w, map[string]any{"path": path}, err)
}

// HandleWatch handles POST /api/fs/watch
func (h *Handlers) HandleWatch(w http.ResponseWriter, r *http.Request) {
	var req PathRequest
	if !decode(w, r, &req) {
		return
	}
	err := h.engine.Watch(req.Path)
	respond(w, map[string]any{"watching": h.engine.WatchedPath()}, err)
}

// HandleUnwatch handles POST /api/fs/unwatch
func (h *Handlers) HandleUnwatch(w http.ResponseWriter, r *http.Request) {
	h.engine.Unwatch()
	respond(w, okBody, nil)
}

// HandleEvents handles GET /api/fs/events (WebSocket). Each directory change
// is sent as a JSON ChangeEvent.
func (h *Handlers) HandleEvents(w http.ResponseWriter, r *http.Request) {
	l := sub("handlers")
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		l.Warn("websocket upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	bus := h.engine.Events()
	ch := bus.Subscribe()
	defer bus.Unsubscribe(ch)
	l.Debug("events client connected", "remote", r.RemoteAddr)

	// The client never sends anything meaningful; reading detects close.
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			l.Debug("events client gone", "remote", r.RemoteAddr)
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			if err := conn.WriteJSON(event); err != nil {
				l.Debug("events write failed", "err", err)
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				return
			}
		}
	}
}

// --- helpers ---

var okBody = map[string]bool{"ok": true}

func (h *Handlers) hidden(r *http.Request) bool {
	if v, err := strconv.ParseBool(r.URL.Query().Get("hidden")); err == nil {
		return v
	}
	return h.showHidden
}

func maxBytes(r *http.Request) int64 {
	n, _ := strconv.ParseInt(r.URL.Query().Get("max"), 10, 64)
	return n
}

func requireQuery(w http.ResponseWriter, r *http.Request, key string) (string, bool) {
	v := r.URL.Query().Get(key)
	if v == "" {
		writeError(w, http.StatusBadRequest, "missing "+key)
		return "", false
	}
	return v, true
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		sub("handlers").Warn("bad request body", "url", r.URL.Path, "err", err)
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func respond(w http.ResponseWriter, body any, err error) {
	if err != nil {
		writeError(w, StatusCode(err), err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(body) //nolint:errcheck
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg}) //nolint:errcheck
}

// StatusCode maps an engine error to an HTTP status.
func StatusCode(err error) int {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrSourceMissing):
		return http.StatusNotFound
	case errors.Is(err, ErrNotADirectory), errors.Is(err, ErrDestinationInvalid),
		errors.Is(err, ErrInvalidName), errors.Is(err, ErrPattern):
		return http.StatusBadRequest
	case errors.Is(err, ErrAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, ErrTrashUnsupported):
		return http.StatusNotImplemented
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, ErrClosed):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}
