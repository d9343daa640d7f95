package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
)

type CreateRoomRequest struct {
	Name string `json:"name"`
}

// RoomDetail is a room plus who is currently connected to its relay group.
type RoomDetail struct {
	*domain.Room
	Members []core.MemberDTO `json:"members"`
}

// Evicter disconnects the relay group of a deactivated room.
type Evicter interface {
	EvictRoom(code domain.RoomCode)
	Members(code domain.RoomCode) []core.MemberDTO
}

type RoomHandlers struct {
	Store core.RoomStore
	Relay Evicter
}

// Register mounts the room API on g. Paths keep their trailing slash.
func (h *RoomHandlers) Register(g *gin.RouterGroup) {
	g.POST("/rooms/", h.create)
	g.GET("/rooms/", h.list)
	g.GET("/rooms/:code/", h.get)
	g.GET("/rooms/:code/join/", h.join)
	g.DELETE("/rooms/:code/", h.deactivate)
}

func (h *RoomHandlers) create(c *gin.Context) {
	var req CreateRoomRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
			return
		}
	}
	room, err := h.Store.Create(req.Name)
	if errors.Is(err, domain.ErrRoomNameTooLong) {
		c.JSON(http.StatusBadRequest, gin.H{"name": err.Error()})
		return
	}
	if err != nil {
		log.Error().Err(err).Str("module", "transport.http").Msg("create room")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create room"})
		return
	}
	c.JSON(http.StatusCreated, room)
}

func (h *RoomHandlers) list(c *gin.Context) {
	c.JSON(http.StatusOK, h.Store.List())
}

func (h *RoomHandlers) get(c *gin.Context) {
	room, ok := h.lookup(c)
	if !ok {
		return
	}
	detail := RoomDetail{Room: room, Members: []core.MemberDTO{}}
	if h.Relay != nil {
		if m := h.Relay.Members(room.Code); m != nil {
			detail.Members = m
		}
	}
	c.JSON(http.StatusOK, detail)
}

func (h *RoomHandlers) join(c *gin.Context) {
	room, ok := h.lookup(c)
	if !ok {
		return
	}
	log.Info().Str("module", "transport.http").Str("room", string(room.Code)).Msg("join lookup")
	c.JSON(http.StatusOK, room)
}

func (h *RoomHandlers) deactivate(c *gin.Context) {
	code := domain.RoomCode(c.Param("code"))
	if err := h.Store.Deactivate(code); err != nil {
		notFound(c)
		return
	}
	if h.Relay != nil {
		h.Relay.EvictRoom(code)
	}
	c.Status(http.StatusNoContent)
}

func (h *RoomHandlers) lookup(c *gin.Context) (*domain.Room, bool) {
	room, err := h.Store.Get(domain.RoomCode(c.Param("code")))
	if err != nil {
		notFound(c)
		return nil, false
	}
	return room, true
}

func notFound(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{"detail": "Not found."})
}
