// Package rest is a client for the room API of the relay server.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
)

const defaultTimeout = 10 * time.Second

// APIError is a non-2xx answer that is not a missing room.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("room api: status %d: %s", e.Status, e.Body)
}

type Client struct {
	base string
	http *http.Client
}

// New builds a client for baseURL (e.g. http://localhost:8080/api). A nil
// hc gets a client with a default timeout.
func New(baseURL string, hc *http.Client) *Client {
	if hc == nil {
		hc = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{base: strings.TrimRight(baseURL, "/"), http: hc}
}

func (c *Client) CreateRoom(ctx context.Context, name string) (*domain.Room, error) {
	body, err := json.Marshal(struct {
		Name string `json:"name"`
	}{name})
	if err != nil {
		return nil, err
	}
	var room domain.Room
	if err := c.do(ctx, http.MethodPost, "/rooms/", body, http.StatusCreated, &room); err != nil {
		return nil, err
	}
	log.Info().Str("module", "rest").Str("room", string(room.Code)).Msg("room created")
	return &room, nil
}

// GetRoom fails with core.ErrRoomNotFound for unknown or inactive codes.
func (c *Client) GetRoom(ctx context.Context, code domain.RoomCode) (*domain.Room, error) {
	var room domain.Room
	if err := c.do(ctx, http.MethodGet, "/rooms/"+url.PathEscape(string(code))+"/", nil, http.StatusOK, &room); err != nil {
		return nil, err
	}
	return &room, nil
}

// JoinRoom resolves code before the signaling channel is opened.
func (c *Client) JoinRoom(ctx context.Context, code domain.RoomCode) (*domain.Room, error) {
	var room domain.Room
	if err := c.do(ctx, http.MethodGet, "/rooms/"+url.PathEscape(string(code))+"/join/", nil, http.StatusOK, &room); err != nil {
		return nil, err
	}
	return &room, nil
}

func (c *Client) ListRooms(ctx context.Context) ([]domain.Room, error) {
	var rooms []domain.Room
	if err := c.do(ctx, http.MethodGet, "/rooms/", nil, http.StatusOK, &rooms); err != nil {
		return nil, err
	}
	return rooms, nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, want int, out any) error {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rd)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("room api %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return core.ErrRoomNotFound
	}
	if resp.StatusCode != want {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &APIError{Status: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("room api %s %s: decode: %w", method, path, err)
	}
	return nil
}
