package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/qunmoxiao/cybertown/internal/affinity"
	"github.com/qunmoxiao/cybertown/internal/ambient"
	"github.com/qunmoxiao/cybertown/internal/chat"
	"github.com/qunmoxiao/cybertown/internal/gateway"
	"github.com/qunmoxiao/cybertown/internal/keyword"
	"github.com/qunmoxiao/cybertown/internal/memory"
	"github.com/qunmoxiao/cybertown/internal/npc"
	"github.com/qunmoxiao/cybertown/internal/quiz"
)

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	roster       *npc.Roster
	orchestrator *chat.Orchestrator
	scheduler    *ambient.Scheduler
	engine       *affinity.Engine
	memories     memory.Store
	matcher      *keyword.Matcher
	quizzes      *quiz.Generator
	broadcaster  *gateway.Broadcaster
	wsHandler    *gateway.WSHandler
	logger       *zap.Logger
}

// NewHandler creates a new API handler.
func NewHandler(
	roster *npc.Roster,
	orchestrator *chat.Orchestrator,
	scheduler *ambient.Scheduler,
	engine *affinity.Engine,
	memories memory.Store,
	matcher *keyword.Matcher,
	quizzes *quiz.Generator,
	broadcaster *gateway.Broadcaster,
	wsHandler *gateway.WSHandler,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		roster:       roster,
		orchestrator: orchestrator,
		scheduler:    scheduler,
		engine:       engine,
		memories:     memories,
		matcher:      matcher,
		quizzes:      quizzes,
		broadcaster:  broadcaster,
		wsHandler:    wsHandler,
		logger:       logger,
	}
}

// Router builds the chi router with all routes.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.healthCheck)

		r.Get("/npcs", h.listNPCs)
		r.Get("/npcs/status", h.npcStatus)
		r.Post("/npcs/status/refresh", h.refreshStatus)
		r.Get("/npcs/{name}", h.getNPC)
		r.Get("/npcs/{name}/memories", h.getMemories)
		r.Delete("/npcs/{name}/memories", h.clearMemories)
		r.Get("/npcs/{name}/affinity", h.getAffinity)
		r.Put("/npcs/{name}/affinity", h.setAffinity)
		r.Get("/affinities", h.listAffinities)

		r.Post("/chat", h.chat)
		r.Get("/quizzes/generated", h.generateQuiz)
		r.Get("/broadcasts", h.listBroadcasts)
	})

	r.Get("/ws/dialogues", h.wsHandler.ServeHTTP)

	return r
}

func (h *Handler) healthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "town": "cybertown"})
}

func (h *Handler) listNPCs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.roster.List())
}

func (h *Handler) getNPC(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	p, ok := h.roster.Get(name)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "npc not found"})
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) npcStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.scheduler.Status())
}

func (h *Handler) refreshStatus(w http.ResponseWriter, r *http.Request) {
	h.scheduler.ForceUpdate(r.Context())
	writeJSON(w, http.StatusOK, h.scheduler.Status())
}

func (h *Handler) getMemories(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if _, ok := h.roster.Get(name); !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "npc not found"})
		return
	}

	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	entries, err := h.memories.Recent(r.Context(), name, limit)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if entries == nil {
		entries = []*memory.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *Handler) clearMemories(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if _, ok := h.roster.Get(name); !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "npc not found"})
		return
	}

	for _, t := range []memory.Type{memory.TypeWorking, memory.TypeEpisodic} {
		if err := h.memories.ClearType(r.Context(), name, t); err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared", "npc_name": name})
}

func (h *Handler) getAffinity(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if _, ok := h.roster.Get(name); !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "npc not found"})
		return
	}
	playerID := r.URL.Query().Get("player_id")
	if playerID == "" {
		playerID = "anonymous"
	}

	score, err := h.engine.Get(r.Context(), name, playerID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	band := affinity.BandFor(score)
	writeJSON(w, http.StatusOK, map[string]any{
		"npc_name":  name,
		"player_id": playerID,
		"score":     score,
		"level":     band.Name,
		"modifier":  band.Modifier,
	})
}

type setAffinityRequest struct {
	PlayerID string `json:"player_id"`
	Score    int    `json:"score"`
}

func (h *Handler) setAffinity(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if _, ok := h.roster.Get(name); !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "npc not found"})
		return
	}
	var req setAffinityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if req.PlayerID == "" {
		req.PlayerID = "anonymous"
	}

	result, err := h.engine.Set(r.Context(), name, req.PlayerID, req.Score)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) listAffinities(w http.ResponseWriter, r *http.Request) {
	records, err := h.engine.List(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if records == nil {
		records = []*affinity.Record{}
	}
	writeJSON(w, http.StatusOK, records)
}

type chatResponse struct {
	*chat.Response
	MatchedKeywords []string `json:"matched_keywords,omitempty"`
}

func (h *Handler) chat(w http.ResponseWriter, r *http.Request) {
	var req chat.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if req.Message == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "message is required"})
		return
	}

	result, err := h.orchestrator.Chat(r.Context(), &req)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, chat.ErrUnknownNPC) {
			status = http.StatusNotFound
		}
		writeJSON(w, status, map[string]string{"error": err.Error()})
		return
	}

	// Quest matching runs on what the NPC actually said, one envelope
	// per matched keyword.
	hits := h.matcher.Match(r.Context(), req.NPCName, result.Reply)
	matched := make([]string, 0, len(hits))
	for _, hit := range hits {
		matched = append(matched, hit.Keyword)
		h.broadcaster.Publish(r.Context(), gateway.NewEnvelope(gateway.KindQuestKeywordMatched, map[string]any{
			"npc_name":        req.NPCName,
			"quest_id":        hit.QuestID,
			"matched_keyword": hit.Keyword,
			"content":         result.Reply,
		}))
	}
	if len(matched) == 0 {
		matched = nil
	}

	writeJSON(w, http.StatusOK, chatResponse{Response: result, MatchedKeywords: matched})
}

func (h *Handler) listBroadcasts(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	writeJSON(w, http.StatusOK, h.broadcaster.History(limit))
}

func (h *Handler) generateQuiz(w http.ResponseWriter, r *http.Request) {
	npcName := r.URL.Query().Get("npc_name")
	quizID := r.URL.Query().Get("quiz_id")

	count := 0
	if raw := r.URL.Query().Get("count"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "count must be a positive integer"})
			return
		}
		count = n
	}

	q, err := h.quizzes.Generate(r.Context(), npcName, quizID, count)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, q)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
