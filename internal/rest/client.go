// Package rest consumes the marketplace's HTTP endpoints that seed and
// complement the live chat stream: message history, room listings and
// server-side read marks.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tradeguard/chatsync/internal/types"
)

const requestTimeout = 15 * time.Second

type Client struct {
	baseURL string
	token   string
	http    *http.Client
	log     *log.Logger
}

func NewClient(baseURL, token string, logger *log.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: requestTimeout},
		log:     logger,
	}
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reqBody)
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := &ApiError{StatusCode: resp.StatusCode}
		if err := json.NewDecoder(resp.Body).Decode(apiErr); err != nil || apiErr.Message == "" {
			apiErr.Message = strings.ToLower(http.StatusText(resp.StatusCode))
		}
		return apiErr
	}

	if out == nil {
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	return nil
}

// Messages fetches the persisted history page for a room, oldest first.
func (c *Client) Messages(ctx context.Context, roomId string) ([]types.Message, error) {
	q := url.Values{}
	q.Set("room_id", roomId)

	var msgs []types.Message
	if err := c.do(ctx, http.MethodGet, "/api/messages", q, nil, &msgs); err != nil {
		return nil, err
	}

	return msgs, nil
}

type markReadRequest struct {
	RoomId string `json:"room_id"`
}

// MarkRoomRead clears the server-side unread count for a room.
func (c *Client) MarkRoomRead(ctx context.Context, roomId string) error {
	return c.do(ctx, http.MethodPost, "/api/rooms/read", nil, markReadRequest{RoomId: roomId}, nil)
}

// ListRooms returns every order conversation visible to the caller. For
// admin tokens this is the whole inbox.
func (c *Client) ListRooms(ctx context.Context) ([]types.Room, error) {
	var rooms []types.Room
	if err := c.do(ctx, http.MethodGet, "/api/rooms", nil, nil, &rooms); err != nil {
		return nil, err
	}

	return rooms, nil
}
