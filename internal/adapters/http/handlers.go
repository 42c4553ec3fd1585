package http

import (
	"net/http"

	"github.com/dkeye/Meet/internal/app/orch"
	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

const (
	sessionRoomKey     = "room_id"
	sessionIdentityKey = "identity"
)

// Handlers adapts the room session service to gin.
type Handlers struct {
	Orch    *orch.Orchestrator
	Limiter *JoinLimiter
}

func roomParam(c *gin.Context) domain.RoomID { return domain.RoomID(c.Param("id")) }
func userParam(c *gin.Context) domain.UserID { return domain.UserID(c.Param("userId")) }

func remember(c *gin.Context, roomID domain.RoomID, id domain.UserID) {
	s := sessions.Default(c)
	s.Set(sessionRoomKey, string(roomID))
	s.Set(sessionIdentityKey, string(id))
	if err := s.Save(); err != nil {
		log.Warn().Err(err).Str("module", "adapters.http").Msg("session save")
	}
}

func (h *Handlers) ListRooms(c *gin.Context) {
	c.JSON(http.StatusOK, h.Orch.ListRooms(c.Request.Context()))
}

func (h *Handlers) CreateRoom(c *gin.Context) {
	var req core.CreateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWith(c, http.StatusBadRequest, core.CodeInvalidRequest, "missing or invalid hostName")
		return
	}
	res, err := h.Orch.CreateRoom(c.Request.Context(), req.HostName)
	if err != nil {
		writeError(c, err)
		return
	}
	remember(c, res.RoomID, res.HostIdentity)
	c.JSON(http.StatusOK, res)
}

func (h *Handlers) JoinRoom(c *gin.Context) {
	roomID := roomParam(c)
	var req core.JoinRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWith(c, http.StatusBadRequest, core.CodeInvalidRequest, "missing or invalid userName")
		return
	}
	if h.Limiter != nil && !h.Limiter.Allow(c.GetString("client_token")+"|"+string(roomID)) {
		log.Warn().Str("module", "adapters.http").Str("room", string(roomID)).Msg("join rate limited")
		abortWith(c, http.StatusTooManyRequests, core.CodeRateLimited, "too many join attempts")
		return
	}
	res, err := h.Orch.JoinRoom(c.Request.Context(), roomID, req.UserName, req.IsHost)
	if err != nil {
		writeError(c, err)
		return
	}
	remember(c, roomID, res.UserIdentity)
	c.JSON(http.StatusOK, res)
}

func (h *Handlers) RoomStatus(c *gin.Context) {
	st, err := h.Orch.RoomStatus(c.Request.Context(), roomParam(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (h *Handlers) ApproveUser(c *gin.Context) {
	p, err := h.Orch.ApproveUser(c.Request.Context(), roomParam(c), userParam(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, core.ApproveResponse{Success: true, Message: "user approved", User: p})
}

func (h *Handlers) UserStatus(c *gin.Context) {
	st, err := h.Orch.CheckUserStatus(c.Request.Context(), roomParam(c), userParam(c))
	if err != nil {
		writeError(c, err)
		return
	}
	switch st.State {
	case domain.StateApproved:
		c.JSON(http.StatusOK, core.UserStatusResponse{IsApproved: true, IsInRoom: true, User: st.Participant})
	case domain.StateWaiting:
		c.JSON(http.StatusOK, core.UserStatusResponse{IsWaiting: true, User: st.Participant})
	default:
		abortWith(c, http.StatusNotFound, core.CodeUserRemoved, "user is not in this room")
	}
}

func (h *Handlers) WaitingList(c *gin.Context) {
	list, err := h.Orch.WaitingList(c.Request.Context(), roomParam(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *Handlers) Participants(c *gin.Context) {
	list, err := h.Orch.Participants(c.Request.Context(), roomParam(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *Handlers) Locate(c *gin.Context) {
	loc, err := h.Orch.Locate(c.Request.Context(), roomParam(c), userParam(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, loc)
}

func (h *Handlers) UpdateMedia(c *gin.Context) {
	var req core.MediaRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWith(c, http.StatusBadRequest, core.CodeInvalidRequest, "invalid media toggle")
		return
	}
	p, err := h.Orch.UpdateMedia(c.Request.Context(), roomParam(c), userParam(c), req.IsMuted, req.IsVideoOn)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *Handlers) LeaveRoom(c *gin.Context) {
	if err := h.Orch.LeaveRoom(c.Request.Context(), roomParam(c), userParam(c)); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, core.SuccessResponse{Success: true})
}

func (h *Handlers) EndRoom(c *gin.Context) {
	if err := h.Orch.EndRoom(c.Request.Context(), roomParam(c)); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, core.SuccessResponse{Success: true})
}

func (h *Handlers) WhoAmI(c *gin.Context) {
	s := sessions.Default(c)
	resp := core.WhoAmIResponse{ClientToken: c.GetString("client_token")}
	if v, ok := s.Get(sessionRoomKey).(string); ok {
		resp.RoomID = domain.RoomID(v)
	}
	if v, ok := s.Get(sessionIdentityKey).(string); ok {
		resp.Identity = domain.UserID(v)
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "rooms": h.Orch.Registry.Len()})
}
