package rest

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/Meet/internal/app"
	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
	transport "github.com/dkeye/Meet/internal/transport/http"
)

func newAPI(t *testing.T) *Client {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := &transport.RoomHandlers{Store: app.NewMemoryRoomStore()}
	h.Register(r.Group("/api"))
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return New(srv.URL+"/api/", srv.Client())
}

func TestCreateGetJoin(t *testing.T) {
	api := newAPI(t)
	ctx := context.Background()

	room, err := api.CreateRoom(ctx, "retro")
	require.NoError(t, err)
	assert.Equal(t, "retro", room.Name)
	assert.Len(t, string(room.Code), domain.RoomCodeLen)

	got, err := api.GetRoom(ctx, room.Code)
	require.NoError(t, err)
	assert.Equal(t, room.ID, got.ID)

	joined, err := api.JoinRoom(ctx, room.Code)
	require.NoError(t, err)
	assert.Equal(t, room.Code, joined.Code)

	rooms, err := api.ListRooms(ctx)
	require.NoError(t, err)
	require.Len(t, rooms, 1)
}

func TestMissingRoom(t *testing.T) {
	api := newAPI(t)
	_, err := api.JoinRoom(context.Background(), "ABC123")
	assert.ErrorIs(t, err, core.ErrRoomNotFound)
	_, err = api.GetRoom(context.Background(), "ABC123")
	assert.ErrorIs(t, err, core.ErrRoomNotFound)
}

func TestAPIError(t *testing.T) {
	api := newAPI(t)
	_, err := api.CreateRoom(context.Background(), strings.Repeat("n", domain.MaxRoomNameLen+1))
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
}

func TestUnreachable(t *testing.T) {
	api := New("http://127.0.0.1:1/api", nil)
	_, err := api.GetRoom(context.Background(), "x")
	require.Error(t, err)
	assert.NotErrorIs(t, err, core.ErrRoomNotFound)
}
