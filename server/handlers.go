package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/danfors/topicd/config"
	"github.com/danfors/topicd/memory"
	"github.com/danfors/topicd/status"
	"github.com/danfors/topicd/summary"
)

// Extraction and reply generation get their own deadline, detached from the
// request that triggered them.
const backgroundTaskTimeout = 5 * time.Minute

type postMessageRequest struct {
	UserID     string `json:"user_id"`
	Content    string `json:"content"`
	TopicSetID string `json:"topic_set_id"`
}

type postMessageResponse struct {
	ConversationID string `json:"conversation_id"`
	Accepted       bool   `json:"accepted"`
}

// handlePostMessage ingests one user turn. The turn is stored synchronously;
// reply generation and the extraction batch run as independent background
// units so the request returns immediately.
func (s *Server) handlePostMessage(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "conversationID")

	var req postMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.UserID == "" || req.Content == "" {
		http.Error(w, "user_id and content are required", http.StatusBadRequest)
		return
	}
	set, ok := s.cfg.TopicSets[req.TopicSetID]
	if !ok {
		http.Error(w, "unknown topic_set_id", http.StatusBadRequest)
		return
	}

	if err := s.convs.AppendUserMessage(r.Context(), conversationID, req.UserID, req.Content); err != nil {
		s.logger.Error().Err(err).Str("conversation_id", conversationID).Msg("Failed to store message")
		http.Error(w, "failed to store message", http.StatusInternalServerError)
		return
	}

	go s.generateReply(conversationID, req.UserID, set)
	go s.runExtraction(conversationID, req.UserID, set.ID)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(postMessageResponse{ConversationID: conversationID, Accepted: true}) //nolint:errcheck // Response write error
}

// generateReply produces the assistant turn inside a matched
// thinking_start/thinking_end pair. The pair closes on every exit path.
func (s *Server) generateReply(conversationID, userID string, set *config.TopicSetConfig) {
	if s.replier == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), backgroundTaskTimeout)
	defer cancel()

	done := s.publisher.BeginThinking(conversationID, status.TriggerUserMessage)
	defer done()

	window, err := s.convs.RecentWindow(ctx, conversationID, s.messageWindow())
	if err != nil {
		s.logger.Error().Err(err).Str("conversation_id", conversationID).Msg("Failed to read reply window")
		return
	}

	guidance := s.buildReplyGuidance(ctx, userID, set)
	reply, err := s.replier.Reply(ctx, conversationID, window, guidance)
	if err != nil {
		s.logger.Error().Err(err).Str("conversation_id", conversationID).Msg("Reply generation failed")
		return
	}
	if err := s.convs.AppendAssistantMessage(ctx, conversationID, userID, reply); err != nil {
		s.logger.Error().Err(err).Str("conversation_id", conversationID).Msg("Failed to store assistant reply")
	}
}

// runExtraction runs the topic batch and profile extraction for one turn.
func (s *Server) runExtraction(conversationID, userID, topicSetID string) {
	ctx, cancel := context.WithTimeout(context.Background(), backgroundTaskTimeout)
	defer cancel()

	set := s.cfg.TopicSets[topicSetID]
	window, err := s.convs.RecentWindow(ctx, conversationID, s.messageWindow())
	if err != nil {
		s.logger.Error().Err(err).Str("conversation_id", conversationID).Msg("Failed to read extraction window")
		return
	}

	if _, err := s.engine.RunBatch(ctx, conversationID, userID, set, window); err != nil {
		s.logger.Error().Err(err).Str("conversation_id", conversationID).Msg("Extraction batch failed")
	}
	if err := s.engine.RunProfileExtraction(ctx, userID, window); err != nil {
		s.logger.Debug().Err(err).Str("conversation_id", conversationID).Msg("Profile extraction failed")
	}
}

func (s *Server) messageWindow() int {
	if s.cfg.Extraction.MessageWindow > 0 {
		return s.cfg.Extraction.MessageWindow
	}
	return 50
}

func (s *Server) handleGetTopicMemories(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	topicSetID := chi.URLParam(r, "topicSetID")

	memories, err := s.store.ListTopicMemories(r.Context(), userID, topicSetID)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to list topic memories")
		http.Error(w, "failed to list topic memories", http.StatusInternalServerError)
		return
	}

	writeJSON(w, map[string]interface{}{
		"topic_set_id": topicSetID,
		"memories":     memories,
	})
}

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	profile, found, err := s.store.GetProfile(r.Context(), userID)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to read profile")
		http.Error(w, "failed to read profile", http.StatusInternalServerError)
		return
	}
	if !found {
		http.Error(w, "profile not found", http.StatusNotFound)
		return
	}
	writeJSON(w, profile)
}

func (s *Server) handleGetSummary(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	topicSetID := chi.URLParam(r, "topicSetID")

	raw, found, err := s.store.Get(r.Context(), memory.SummaryNamespace(userID, topicSetID), memory.SummaryKey)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to read summary")
		http.Error(w, "failed to read summary", http.StatusInternalServerError)
		return
	}
	if !found {
		http.Error(w, "summary not found", http.StatusNotFound)
		return
	}

	var data summary.Data
	if err := json.Unmarshal(raw, &data); err != nil {
		s.logger.Error().Err(err).Msg("Stored summary is unreadable")
		http.Error(w, "stored summary is unreadable", http.StatusInternalServerError)
		return
	}
	writeJSON(w, data)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.db.PingContext(r.Context()); err != nil {
		http.Error(w, "database unavailable", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, map[string]interface{}{
		"status":         "ok",
		"uptime_seconds": int(time.Since(s.startedAt).Seconds()),
	})
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v) //nolint:errcheck // Response write error
}
