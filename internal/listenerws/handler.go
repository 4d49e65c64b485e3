package listenerws

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"

	"readalong/companion/internal/auth"
	"readalong/companion/internal/config"
	"readalong/companion/internal/reading"
	"readalong/companion/internal/workflow"

	ws "nhooyr.io/websocket"
)

// Message is the wire shape for both directions of the listener socket.
// Inbound, Type names a speech or playback edge; outbound, Type is
// "state_changed" and Payload carries the snapshot.
type Message struct {
	Type      string         `json:"type"`
	TsMs      int64          `json:"ts_ms,omitempty"`
	SessionID string         `json:"session_id,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// StateMessage is pushed to the listener on every machine transition.
type StateMessage struct {
	Type      string           `json:"type"`
	SessionID string           `json:"session_id"`
	State     workflow.State   `json:"state"`
	Context   workflow.Context `json:"context"`
}

type Server struct {
	Cfg   config.Config
	Store *reading.Store
	Reg   *Registry
}

func NewServer(cfg config.Config, st *reading.Store, reg *Registry) *Server {
	return &Server{Cfg: cfg, Store: st, Reg: reg}
}

// HandleListenerWS upgrades the listener client's connection, pushes state
// snapshots, and feeds speech/playback edges into the session's runtime.
func (s *Server) HandleListenerWS(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	sessionID := q.Get("session_id")
	if sessionID == "" {
		http.Error(w, "missing session_id", http.StatusBadRequest)
		return
	}
	if s.Store.GetSession(sessionID) == nil {
		http.Error(w, "unknown session", http.StatusNotFound)
		return
	}
	rt := s.Store.Runtime(sessionID)
	if rt == nil {
		http.Error(w, "session has no runtime", http.StatusConflict)
		return
	}
	authz := r.Header.Get("Authorization")
	if !strings.HasPrefix(authz, "Bearer ") {
		http.Error(w, "missing bearer token", http.StatusUnauthorized)
		return
	}
	token := strings.TrimPrefix(authz, "Bearer ")
	if s.Cfg.Listener.TokenSecret == "" {
		http.Error(w, "listener auth not configured", http.StatusUnauthorized)
		return
	}
	if _, _, err := auth.ValidateListenerToken(s.Cfg.Listener.TokenSecret, token, sessionID, time.Now(), s.Cfg.Listener.TokenSkewSecs); err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	c, err := ws.Accept(w, r, nil)
	if err != nil {
		log.Printf("[listenerws] accept: %v", err)
		return
	}
	replaced := s.Reg.Replace(sessionID, c)
	if replaced {
		s.Store.AppendEvent(sessionID, "listener_replaced", nil)
	}
	s.Store.AppendEvent(sessionID, "listener_connected", nil)

	// Push every transition to the listener; Subscribe delivers the current
	// snapshot immediately so a reconnecting client catches up.
	pushCtx, cancelPush := context.WithCancel(context.Background())
	unsub := rt.Machine.Subscribe(func(state workflow.State, wctx workflow.Context) {
		msg := StateMessage{Type: "state_changed", SessionID: sessionID, State: state, Context: wctx}
		if err := s.Reg.SendJSON(pushCtx, sessionID, msg); err != nil {
			log.Printf("[listenerws] sid=%s push: %v", sessionID, err)
		}
	})
	defer func() {
		unsub()
		cancelPush()
	}()

	ctx := r.Context()
	for {
		typ, data, err := c.Read(ctx)
		if err != nil {
			break
		}
		if typ != ws.MessageText && typ != ws.MessageBinary {
			continue
		}
		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			s.Store.AppendEvent(sessionID, "listener_msg_invalid", map[string]any{"error": err.Error()})
			continue
		}
		if !Dispatch(rt, msg) {
			s.Store.AppendEvent(sessionID, "listener_msg_unknown", map[string]any{"type": msg.Type})
		}
	}
	_ = c.Close(ws.StatusNormalClosure, "done")
	s.Reg.Remove(sessionID)
	s.Store.AppendEvent(sessionID, "listener_disconnected", nil)
}

// Dispatch routes one inbound message to the runtime. Speech edges go through
// the gate so duplicates collapse; playback reports go straight to the
// machine. Returns false for an unrecognized type.
func Dispatch(rt *reading.Runtime, msg Message) bool {
	switch msg.Type {
	case "assistant_speech_start":
		rt.Gate.AssistantStarted()
	case "assistant_speech_stop":
		rt.Gate.AssistantStopped()
	case "child_speech_start":
		rt.Gate.ChildStarted()
	case "child_speech_stop":
		rt.Gate.ChildStopped()
	case "narration_started":
		rt.Machine.HandleNarrationPlaybackStart()
	case "narration_ended":
		rt.Machine.HandleNarrationPlaybackEnd()
	case "narration_error":
		reason := "unknown"
		if r, ok := msg.Payload["reason"].(string); ok && r != "" {
			reason = r
		}
		rt.Machine.HandleNarrationError(reason)
	default:
		return false
	}
	return true
}
