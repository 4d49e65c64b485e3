package api

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"

	"readalong/companion/internal/audio"
	"readalong/companion/internal/auth"
	"readalong/companion/internal/book"
	"readalong/companion/internal/config"
	"readalong/companion/internal/reading"
	"readalong/companion/internal/workflow"
)

type Handlers struct {
	cfg      config.Config
	sessions *reading.Store
	books    *book.Store
	player   audio.Player
	source   workflow.Source
}

func NewHandlers(cfg config.Config, sessions *reading.Store, books *book.Store, player audio.Player, source workflow.Source) *Handlers {
	return &Handlers{cfg: cfg, sessions: sessions, books: books, player: player, source: source}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *Handlers) runtimeOptions() reading.RuntimeOptions {
	return reading.RuntimeOptions{
		PreRoll:       time.Duration(h.cfg.Reader.PreRollMs) * time.Millisecond,
		SilenceWindow: time.Duration(h.cfg.Reader.SilenceWindowMs) * time.Millisecond,
		Tick:          time.Duration(h.cfg.Reader.TickMs) * time.Millisecond,
		Policy:        workflow.ParsePolicy(h.cfg.Reader.InterruptPolicy),
	}
}

func (h *Handlers) HandleListBooks(w http.ResponseWriter, r *http.Request) {
	type bookInfo struct {
		ID    string `json:"id"`
		Title string `json:"title"`
		Pages int    `json:"pages"`
	}
	books := h.books.List()
	out := make([]bookInfo, 0, len(books))
	for _, b := range books {
		out = append(out, bookInfo{ID: b.ID, Title: b.Title, Pages: len(b.Pages)})
	}
	writeJSON(w, http.StatusOK, map[string]any{"books": out})
}

func (h *Handlers) HandleCreateSession(w http.ResponseWriter, r *http.Request) {
	var body struct {
		BookID    string `json:"book_id"`
		ChildName string `json:"child_name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.BookID == "" {
		http.Error(w, "missing book_id", http.StatusBadRequest)
		return
	}
	b, err := h.books.Get(body.BookID)
	if err != nil {
		http.Error(w, "unknown book", http.StatusNotFound)
		return
	}
	if len(b.Pages) == 0 {
		http.Error(w, "book has no pages", http.StatusBadRequest)
		return
	}

	id := uuid.New().String()
	sess := &reading.Session{
		ID:        id,
		BookID:    b.ID,
		BookTitle: b.Title,
		ChildName: body.ChildName,
		CreatedAt: time.Now().UTC(),
		Status:    "created",
	}
	if err := h.sessions.CreateSession(sess); err != nil {
		log.Printf("[api] create session %s: %v", id, err)
		http.Error(w, "session id collision", http.StatusInternalServerError)
		return
	}

	journal := func(typ string, payload map[string]any) {
		h.sessions.AppendEvent(id, typ, payload)
	}
	rt := reading.NewRuntime(id, b, h.player, h.source, journal, h.runtimeOptions())
	h.sessions.AttachRuntime(id, rt)
	h.sessions.AppendEvent(id, "session_created", map[string]any{"book_id": b.ID})

	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": id,
		"book_id":    b.ID,
		"book_title": b.Title,
		"pages":      len(b.Pages),
	})
}

func (h *Handlers) HandleStartSession(w http.ResponseWriter, r *http.Request, id string) {
	sess := h.sessions.GetSession(id)
	if sess == nil {
		http.NotFound(w, r)
		return
	}
	rt := h.sessions.Runtime(id)
	if rt == nil {
		http.Error(w, "session has no runtime", http.StatusConflict)
		return
	}
	if rt.Machine.Enabled() {
		h.sessions.AppendEvent(id, "session_start_requested", map[string]any{"noop": true})
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "reading": true})
		return
	}
	h.sessions.AppendEvent(id, "session_start_requested", nil)
	rt.Start()
	h.sessions.SetStatus(id, "reading")
	h.sessions.AppendEvent(id, "session_started", nil)
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "reading": true})
}

func (h *Handlers) HandleEndSession(w http.ResponseWriter, r *http.Request, id string) {
	sess := h.sessions.GetSession(id)
	if sess == nil {
		http.NotFound(w, r)
		return
	}
	rt := h.sessions.Runtime(id)
	if rt == nil || !rt.Machine.Enabled() {
		h.sessions.AppendEvent(id, "session_end_requested", map[string]any{"noop": true})
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "reading": false})
		return
	}
	h.sessions.AppendEvent(id, "session_end_requested", nil)
	rt.Stop()
	h.sessions.SetStatus(id, "ended")
	h.sessions.AppendEvent(id, "session_ended", nil)
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "reading": false})
}

func (h *Handlers) HandleGetState(w http.ResponseWriter, r *http.Request, id string) {
	rt := h.sessions.Runtime(id)
	if rt == nil {
		http.NotFound(w, r)
		return
	}
	state, snap := rt.Machine.State()
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": id,
		"enabled":    rt.Machine.Enabled(),
		"state":      state,
		"context":    snap,
	})
}

func (h *Handlers) HandleListEvents(w http.ResponseWriter, r *http.Request, id string) {
	if h.sessions.GetSession(id) == nil {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": id,
		"events":     h.sessions.ListEvents(id),
	})
}

func (h *Handlers) HandleSkip(w http.ResponseWriter, r *http.Request, id, direction string) {
	rt := h.sessions.Runtime(id)
	if rt == nil {
		http.NotFound(w, r)
		return
	}
	if !rt.Machine.Enabled() {
		http.Error(w, "session not reading", http.StatusConflict)
		return
	}
	switch direction {
	case "next":
		rt.Machine.SkipToNextPage()
	case "previous":
		rt.Machine.SkipToPreviousPage()
	default:
		http.NotFound(w, r)
		return
	}
	state, snap := rt.Machine.State()
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "state": state, "context": snap})
}

func (h *Handlers) HandleReset(w http.ResponseWriter, r *http.Request, id string) {
	rt := h.sessions.Runtime(id)
	if rt == nil {
		http.NotFound(w, r)
		return
	}
	rt.Machine.Reset()
	if page, last := rt.Navigator.Current(); page != nil && rt.Machine.Enabled() {
		rt.Machine.SetCurrentPage(*page, last)
	}
	state, snap := rt.Machine.State()
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "state": state, "context": snap})
}

// HandleMintListenerToken issues the bearer token the listener client presents
// on its websocket.
func (h *Handlers) HandleMintListenerToken(w http.ResponseWriter, r *http.Request, id string) {
	if h.sessions.GetSession(id) == nil {
		http.NotFound(w, r)
		return
	}
	if h.cfg.Listener.TokenSecret == "" {
		http.Error(w, "listener auth not configured", http.StatusBadRequest)
		return
	}
	exp := time.Now().Add(time.Duration(h.cfg.Listener.TokenExpMin) * time.Minute).Unix()
	token := auth.GenerateListenerToken(h.cfg.Listener.TokenSecret, id, exp)
	h.sessions.AppendEvent(id, "listener_token_minted", nil)
	writeJSON(w, http.StatusOK, map[string]any{"token": token, "expires_at": exp})
}

// HandleDebugSpeech injects a speech edge without a websocket, for manual
// poking during development.
func (h *Handlers) HandleDebugSpeech(w http.ResponseWriter, r *http.Request, id, edge string) {
	rt := h.sessions.Runtime(id)
	if rt == nil {
		http.NotFound(w, r)
		return
	}
	switch edge {
	case "assistant-start":
		rt.Gate.AssistantStarted()
	case "assistant-stop":
		rt.Gate.AssistantStopped()
	case "child-start":
		rt.Gate.ChildStarted()
	case "child-stop":
		rt.Gate.ChildStopped()
	default:
		http.NotFound(w, r)
		return
	}
	h.sessions.AppendEvent(id, "debug_speech", map[string]any{"edge": edge})
	state, _ := rt.Machine.State()
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "state": state})
}
