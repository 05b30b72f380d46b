package agent

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	agentModel "github.com/shodhai/speaking-agent/backend/internal/model/agent"
	agentService "github.com/shodhai/speaking-agent/backend/internal/service/agent"
	"github.com/shodhai/speaking-agent/backend/internal/service/room"
	"github.com/shodhai/speaking-agent/backend/pkg/utils"
)

// Handler exposes the agent control surface: create, inspect, and tear
// down voice agent sessions.
type Handler struct {
	registry *agentService.Registry
	rooms    *room.Client
}

// New builds the agent handler. rooms may be nil when no room provider
// is configured; agents then run without a media room.
func New(registry *agentService.Registry, rooms *room.Client) *Handler {
	return &Handler{
		registry: registry,
		rooms:    rooms,
	}
}

// RegisterRoutes mounts the agent routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/agents", h.handleCreateAgent)
	r.Get("/agents", h.handleListAgents)
	r.Get("/agents/{agentID}", h.handleGetAgent)
	r.Delete("/agents/{agentID}", h.handleDeleteAgent)
}

type createAgentRequest struct {
	Role     string `json:"role"`
	RoomURL  string `json:"roomUrl"`
	RoomName string `json:"roomName"`
	UserName string `json:"userName"`
}

type createAgentResponse struct {
	ID       string          `json:"id"`
	Role     agentModel.Role `json:"role"`
	RoomURL  string          `json:"roomUrl,omitempty"`
	Token    string          `json:"token,omitempty"`
	UserName string          `json:"userName,omitempty"`
}

// handleCreateAgent allocates a session, resolving the media room first.
// Callers either bring their own roomUrl or name a room to create.
func (h *Handler) handleCreateAgent(w http.ResponseWriter, r *http.Request) {
	var payload createAgentRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if payload.Role != "" && !agentModel.Role(payload.Role).Valid() {
		utils.RespondError(w, http.StatusBadRequest, "unknown role: "+payload.Role)
		return
	}
	role := agentModel.ParseRole(payload.Role)

	roomURL := payload.RoomURL
	roomName := payload.RoomName
	if roomURL != "" && roomName == "" {
		roomName = room.RoomNameFromURL(roomURL)
	}

	if roomURL == "" && roomName != "" {
		if h.rooms == nil || !h.rooms.Enabled() {
			utils.RespondError(w, http.StatusServiceUnavailable, "room provider not configured")
			return
		}
		created, err := h.rooms.CreateOrGetRoom(r.Context(), roomName)
		if err != nil {
			log.Printf("[agent] room creation failed name=%s: %v", roomName, err)
			utils.RespondError(w, http.StatusBadGateway, "room creation failed")
			return
		}
		roomURL = created.URL
		roomName = created.Name
	}

	session, err := h.registry.Create(role, roomURL, payload.UserName)
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, "failed to create agent")
		return
	}

	resp := createAgentResponse{
		ID:       session.ID(),
		Role:     session.Role(),
		RoomURL:  roomURL,
		UserName: payload.UserName,
	}

	if roomName != "" && h.rooms != nil && h.rooms.Enabled() {
		token, err := h.rooms.IssueToken(r.Context(), roomName, payload.UserName)
		if err != nil {
			log.Printf("[agent] token issuance failed room=%s: %v", roomName, err)
		} else {
			resp.Token = token
		}
	}

	utils.RespondJSON(w, http.StatusCreated, resp)
}

// handleListAgents returns summaries of every live session.
func (h *Handler) handleListAgents(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"agents": h.registry.List(),
	})
}

// handleGetAgent returns one session's summary plus its transcript.
func (h *Handler) handleGetAgent(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentID")

	session, ok := h.registry.Get(agentID)
	if !ok {
		utils.RespondError(w, http.StatusNotFound, "agent not found")
		return
	}

	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"agent":   session.Summary(),
		"history": session.History(),
	})
}

// handleDeleteAgent tears a session down. Deleting twice yields 404 the
// second time.
func (h *Handler) handleDeleteAgent(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentID")

	if !h.registry.Remove(agentID) {
		utils.RespondError(w, http.StatusNotFound, "agent not found")
		return
	}

	utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// HandleHealth reports service liveness and the live agent count.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"status":       "ok",
		"activeAgents": h.registry.Len(),
	})
}
