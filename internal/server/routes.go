package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/lazypower/recall/internal/memory"
)

// decodeJSON reads a request body into v. An empty body is an error for
// endpoints that require one.
func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

func (s *Server) handleOverview(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	overview, err := s.engine.GetMemoryOverview(userID)
	if err != nil {
		log.Error("overview failed", "user", userID, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, overview)
}

// handleContext returns the merged memory view the dialogue layer feeds
// into a prompt: the mode-merged bucket, profile basics, extras, recent
// history and the active mode's summaries.
func (s *Server) handleContext(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	window := 12
	if raw := r.URL.Query().Get("window"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			window = n
		}
	}

	state, err := s.engine.GetUserState(userID)
	if err != nil {
		log.Error("context load failed", "user", userID, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	doc := state.User
	merged := memory.MergedBucket(doc, s.engine.Limits)

	writeJSON(w, http.StatusOK, map[string]any{
		"mode":          doc.ActiveMode(),
		"preferredName": doc.Profile.PreferredName,
		"style":         doc.Profile.Style,
		"goals":         merged.Goals,
		"notes":         merged.Notes,
		"pinned":        merged.PinnedMemories,
		"extras":        doc.Profile.ModeExtras,
		"history":       memory.RecentHistory(doc, window),
		"summaries":     *doc.SummariesFor(doc.ActiveMode()),
	})
}

func (s *Server) handleRecordTurn(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	var req struct {
		UserText      string `json:"user_text"`
		AssistantText string `json:"assistant_text"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.UserText == "" && req.AssistantText == "" {
		writeError(w, http.StatusBadRequest, "user_text or assistant_text required")
		return
	}

	if err := s.engine.RecordTurn(userID, req.UserText, req.AssistantText); err != nil {
		log.Error("record turn failed", "user", userID, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "recorded"})
}

func (s *Server) handleAddNote(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	var req struct {
		Text string `json:"text"`
	}
	if err := decodeJSON(r, &req); err != nil || req.Text == "" {
		writeError(w, http.StatusBadRequest, "text required")
		return
	}

	if err := s.engine.AddNote(userID, req.Text); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "added"})
}

func (s *Server) handleAddPin(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	var req struct {
		Text string `json:"text"`
	}
	if err := decodeJSON(r, &req); err != nil || req.Text == "" {
		writeError(w, http.StatusBadRequest, "text required")
		return
	}

	stored, score, err := s.engine.AddPinnedMemory(userID, req.Text)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"stored": stored,
		"score":  score,
	})
}

func (s *Server) handleSetName(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	var req struct {
		PreferredName string `json:"preferred_name"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if err := s.engine.SetPreferredName(userID, req.PreferredName); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (s *Server) handleSetExtras(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	var req struct {
		Instructions []string `json:"instructions"`
		Memories     []string `json:"memories"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if err := s.engine.SetModeExtras(userID, req.Instructions, req.Memories); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if _, err := s.engine.ResetUserState(userID); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

func (s *Server) handlePruneHistory(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	var req struct {
		Days int    `json:"days"`
		Mode string `json:"mode"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	overview, err := s.engine.PruneHistoryByDays(userID, req.Days, req.Mode)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, overview)
}

func (s *Server) handleDeleteByDate(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	day := r.URL.Query().Get("day")
	mode := r.URL.Query().Get("mode")

	overview, err := s.engine.DeleteByDate(userID, day, mode)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, overview)
}

func (s *Server) handleDeleteRecent(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	days := 0
	if raw := r.URL.Query().Get("days"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			days = n
		}
	}
	mode := r.URL.Query().Get("mode")

	overview, err := s.engine.DeleteRecentDays(userID, days, mode)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, overview)
}

func (s *Server) handleDeleteByTag(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	tag := r.URL.Query().Get("tag")
	mode := r.URL.Query().Get("mode")
	if tag == "" {
		writeError(w, http.StatusBadRequest, "tag required")
		return
	}

	overview, err := s.engine.DeleteByTag(userID, tag, mode)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, overview)
}

func (s *Server) handleDeleteItem(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	var req struct {
		Mode       string `json:"mode"`
		MemoryType string `json:"memory_type"`
		Text       string `json:"text"`
	}
	if err := decodeJSON(r, &req); err != nil || req.Text == "" {
		writeError(w, http.StatusBadRequest, "text required")
		return
	}

	overview, err := s.engine.DeleteMemoryItem(userID, req.Mode, req.MemoryType, req.Text)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, overview)
}
