package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tradeguard/chatsync/internal/testutil"
	"github.com/tradeguard/chatsync/internal/types"
)

func Test_Messages(t *testing.T) {
	t.Run("fetches a room's history page", func(t *testing.T) {
		page := []types.Message{
			{Id: "m1", RoomId: "order-1", SenderId: "u1", Content: "hi", Kind: types.KindText, Status: types.StatusRead, CreatedAt: time.Now().UTC()},
			{Id: "m2", RoomId: "order-1", SenderId: "u2", Content: "hello", Kind: types.KindText, Status: types.StatusSent, CreatedAt: time.Now().UTC()},
		}

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodGet, r.Method)
			assert.Equal(t, "/api/messages", r.URL.Path)
			assert.Equal(t, "order-1", r.URL.Query().Get("room_id"))
			assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))

			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(page)
		}))
		defer srv.Close()

		c := NewClient(srv.URL, "test-token", testutil.TestLogger(t))
		msgs, err := c.Messages(context.Background(), "order-1")
		require.NoError(t, err)

		require.Len(t, msgs, 2)
		assert.Equal(t, "m1", msgs[0].Id)
		assert.Equal(t, "hello", msgs[1].Content)
	})

	t.Run("api error surfaces status and message", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusNotFound)
			json.NewEncoder(w).Encode(map[string]any{"status_code": 404, "message": "room not found"})
		}))
		defer srv.Close()

		c := NewClient(srv.URL, "test-token", testutil.TestLogger(t))
		_, err := c.Messages(context.Background(), "missing")
		require.Error(t, err)

		var apiErr *ApiError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
		assert.Equal(t, "room not found", apiErr.Message)
	})

	t.Run("non-json error body falls back to status text", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		}))
		defer srv.Close()

		c := NewClient(srv.URL, "test-token", testutil.TestLogger(t))
		_, err := c.Messages(context.Background(), "order-1")

		var apiErr *ApiError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)
		assert.Equal(t, "internal server error", apiErr.Message)
	})
}

func Test_MarkRoomRead(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/rooms/read", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req markReadRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "order-1", req.RoomId)

		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "test-token", testutil.TestLogger(t))
	assert.NoError(t, c.MarkRoomRead(context.Background(), "order-1"))
}

func Test_ListRooms(t *testing.T) {
	rooms := []types.Room{
		{Id: "order-1", OrderId: "o-1", BuyerId: "b1", SellerId: "s1", UnreadCount: 2},
		{Id: "order-2", OrderId: "o-2", BuyerId: "b2", SellerId: "s2"},
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/rooms", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(rooms)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "test-token", testutil.TestLogger(t))
	got, err := c.ListRooms(context.Background())
	require.NoError(t, err)

	require.Len(t, got, 2)
	assert.Equal(t, 2, got[0].UnreadCount)
	assert.Equal(t, "order-2", got[1].Id)
}
