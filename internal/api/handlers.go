package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strings"

	"github.com/optimnow-labs/finops-assistant/internal/agui"
	"github.com/optimnow-labs/finops-assistant/internal/domain"
)

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":   "ok",
		"registry": string(s.registry.State()),
	})
}

func (s *Server) handleRegistry(w http.ResponseWriter, _ *http.Request) {
	declared := s.registry.DeclaredServers()
	servers := make([]map[string]any, 0, len(declared))
	connected := make(map[string]bool)
	for _, name := range s.registry.ConnectedServers() {
		connected[name] = true
	}
	for _, d := range declared {
		servers = append(servers, map[string]any{
			"name":      d.Name,
			"command":   d.Command,
			"connected": connected[d.Name],
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"state":   string(s.registry.State()),
		"usable":  s.registry.Usable(),
		"servers": servers,
	})
}

func (s *Server) handleListTools(w http.ResponseWriter, _ *http.Request) {
	all := s.registry.Tools()

	type toolInfo struct {
		Name        string `json:"name"`
		Description string `json:"description"`
		Origin      string `json:"origin"`
		Server      string `json:"server,omitempty"`
	}
	out := make([]toolInfo, 0, len(all))
	for _, t := range all {
		out = append(out, toolInfo{
			Name:        t.Name,
			Description: t.Description,
			Origin:      string(t.Origin),
			Server:      t.Server,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })

	writeJSON(w, http.StatusOK, map[string]any{"tools": out})
}

func (s *Server) handleCreateSession(w http.ResponseWriter, _ *http.Request) {
	sess := s.store.Create()

	// Status line for the client's welcome message: whether remote tool
	// servers are up yet, and how many tools each origin contributes.
	var local, remote int
	for _, t := range s.registry.Tools() {
		if t.Origin == domain.OriginLocal {
			local++
		} else {
			remote++
		}
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"session_id":   sess.ID,
		"created_at":   sess.CreatedAt,
		"registry":     string(s.registry.State()),
		"local_tools":  local,
		"remote_tools": remote,
	})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.sessionFromPath(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": sess.ID,
		"created_at": sess.CreatedAt,
		"messages":   sess.History(),
	})
}

func (s *Server) handlePostMessage(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.sessionFromPath(w, r)
	if !ok {
		return
	}

	if !s.registry.Usable() {
		writeError(w, http.StatusServiceUnavailable,
			"tool registry is not ready; state: "+string(s.registry.State()))
		return
	}

	var body struct {
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(body.Content) == "" {
		writeError(w, http.StatusBadRequest, "'content' field is required")
		return
	}

	if err := s.startRun(sess, body.Content); err != nil {
		switch {
		case errors.Is(err, ErrRunInProgress):
			writeError(w, http.StatusConflict, err.Error())
		default:
			// Budget exhaustion is the only other startRun failure.
			writeError(w, http.StatusTooManyRequests, err.Error())
		}
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"session_id": sess.ID,
		"status":     "streaming",
	})
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.sessionFromPath(w, r)
	if !ok {
		return
	}

	flusher, okFlush := w.(http.Flusher)
	if !okFlush {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	// Subscribe before the response goes out so events published right
	// after the client connects are not missed.
	events, cancel := s.broker.Subscribe(sess.ID)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, okCh := <-events:
			if !okCh {
				return
			}
			if err := agui.WriteSSE(w, ev); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func (s *Server) handleConsent(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.sessionFromPath(w, r)
	if !ok {
		return
	}

	var body struct {
		Reply string `json:"reply"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(body.Reply) == "" {
		writeError(w, http.StatusBadRequest, "'reply' field is required")
		return
	}

	if err := s.bridge.Resolve(sess.ID, body.Reply); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "accepted"})
}

func (s *Server) sessionFromPath(w http.ResponseWriter, r *http.Request) (*Session, bool) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "session id required")
		return nil, false
	}
	sess, err := s.store.Get(id)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return nil, false
	}
	return sess, true
}
