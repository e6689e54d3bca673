package main

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func activeMembership(t *testing.T, roomID, founderID int) bool {
	t.Helper()
	var active bool
	err := db.QueryRow(`
		SELECT COALESCE((SELECT is_active FROM room_memberships WHERE room_id = $1 AND founder_id = $2), FALSE)
	`, roomID, founderID).Scan(&active)
	require.NoError(t, err)
	return active
}

func TestRoomHandlers(t *testing.T) {
	requireDB(t)

	roomID := createTestRoom(t, "Deep Work", 2)
	a := createTestFounder(t, nil)
	b := createTestFounder(t, nil)
	c := createTestFounder(t, nil)
	base := fmt.Sprintf("/api/rooms/%d", roomID)

	t.Run("join and member count", func(t *testing.T) {
		w := doRequest(t, http.MethodPost, base+"/join", a.Token, nil)
		require.Equal(t, http.StatusOK, w.Code)
		resp := decodeBody[map[string]any](t, w)
		assert.Equal(t, "joined", resp["status"])
		assert.Equal(t, "Deep Work", resp["room_name"])
		assert.Equal(t, float64(roomID), resp["room_id"])

		// Joining twice is harmless.
		w = doRequest(t, http.MethodPost, base+"/join", a.Token, nil)
		require.Equal(t, http.StatusOK, w.Code)

		w = doRequest(t, http.MethodGet, "/api/rooms", a.Token, nil)
		require.Equal(t, http.StatusOK, w.Code)
		var found *Room
		for _, r := range decodeBody[[]Room](t, w) {
			if r.ID == roomID {
				found = &r
			}
		}
		require.NotNil(t, found)
		assert.Equal(t, 1, found.MemberCount)
	})

	t.Run("full room", func(t *testing.T) {
		w := doRequest(t, http.MethodPost, base+"/join", b.Token, nil)
		require.Equal(t, http.StatusOK, w.Code)

		w = doRequest(t, http.MethodPost, base+"/join", c.Token, nil)
		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Equal(t, "room_full", errorCode(t, w))

		w = doRequest(t, http.MethodPost, base+"/leave", b.Token, nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.False(t, activeMembership(t, roomID, b.FounderID))

		w = doRequest(t, http.MethodPost, base+"/join", c.Token, nil)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("unknown room", func(t *testing.T) {
		w := doRequest(t, http.MethodPost, "/api/rooms/999999/join", a.Token, nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, "room_not_found", errorCode(t, w))

		w = doRequest(t, http.MethodGet, "/api/rooms/999999/messages", a.Token, nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("messages oldest first and capped", func(t *testing.T) {
		w := doRequest(t, http.MethodPost, base+"/send_message", a.Token, map[string]string{"content": "   "})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "content_required", errorCode(t, w))

		for i := range roomMessageHistory + 5 {
			_, err := saveRoomMessage(t.Context(), db, roomID, a.FounderID, fmt.Sprintf("msg %d", i))
			require.NoError(t, err)
		}
		w = doRequest(t, http.MethodPost, base+"/send_message", b.Token, map[string]string{"content": "  latest  "})
		require.Equal(t, http.StatusCreated, w.Code)
		sent := decodeBody[RoomMessage](t, w)
		assert.Equal(t, "latest", sent.Content)
		assert.Equal(t, b.FounderID, sent.Sender.ID)

		w = doRequest(t, http.MethodGet, base+"/messages", a.Token, nil)
		require.Equal(t, http.StatusOK, w.Code)
		msgs := decodeBody[[]RoomMessage](t, w)
		require.Len(t, msgs, roomMessageHistory)
		assert.Equal(t, "latest", msgs[len(msgs)-1].Content)
		assert.Equal(t, "msg 6", msgs[0].Content)
		assert.NotEmpty(t, msgs[0].Sender.Name)
	})
}

func dialWS(t *testing.T, srv *httptest.Server, path string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + path
	return websocket.DefaultDialer.Dial(url, nil)
}

func TestRoomWebsocket(t *testing.T) {
	requireDB(t)

	srv := httptest.NewServer(testMux)
	defer srv.Close()

	roomID := createTestRoom(t, "Night Owls", 10)
	a := createTestFounder(t, nil)
	b := createTestFounder(t, nil)

	t.Run("rejects missing token", func(t *testing.T) {
		_, resp, err := dialWS(t, srv, fmt.Sprintf("/ws/rooms/%d", roomID))
		require.Error(t, err)
		require.NotNil(t, resp)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	connA, _, err := dialWS(t, srv, fmt.Sprintf("/ws/rooms/%d?token=%s", roomID, a.Token))
	require.NoError(t, err)
	defer connA.Close()
	connB, _, err := dialWS(t, srv, fmt.Sprintf("/ws/rooms/%d?token=%s", roomID, b.Token))
	require.NoError(t, err)

	assert.True(t, activeMembership(t, roomID, a.FounderID))
	require.Eventually(t, func() bool { return roomHub.count(roomID) == 2 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, connA.WriteJSON(map[string]string{"type": "chat_message", "message": "hello room"}))

	for _, conn := range []*websocket.Conn{connA, connB} {
		_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
		var frame roomChatFrame
		require.NoError(t, conn.ReadJSON(&frame))
		assert.Equal(t, "chat_message", frame.Type)
		assert.Equal(t, "hello room", frame.Message)
		require.NotNil(t, frame.Sender)
		assert.Equal(t, a.FounderID, frame.Sender.ID)
		assert.NotZero(t, frame.ID)
		assert.NotNil(t, frame.Timestamp)
	}

	t.Run("persisted", func(t *testing.T) {
		w := doRequest(t, http.MethodGet, fmt.Sprintf("/api/rooms/%d/messages", roomID), a.Token, nil)
		require.Equal(t, http.StatusOK, w.Code)
		msgs := decodeBody[[]RoomMessage](t, w)
		require.NotEmpty(t, msgs)
		assert.Equal(t, "hello room", msgs[len(msgs)-1].Content)
	})

	t.Run("rest messages are broadcast", func(t *testing.T) {
		w := doRequest(t, http.MethodPost, fmt.Sprintf("/api/rooms/%d/send_message", roomID), b.Token, map[string]string{"content": "from rest"})
		require.Equal(t, http.StatusCreated, w.Code)

		_ = connA.SetReadDeadline(time.Now().Add(3 * time.Second))
		var frame roomChatFrame
		require.NoError(t, connA.ReadJSON(&frame))
		assert.Equal(t, "from rest", frame.Message)
		_ = connB.SetReadDeadline(time.Now().Add(3 * time.Second))
		require.NoError(t, connB.ReadJSON(&frame))
	})

	t.Run("unknown frame type", func(t *testing.T) {
		require.NoError(t, connA.WriteJSON(map[string]string{"type": "dance"}))
		_ = connA.SetReadDeadline(time.Now().Add(3 * time.Second))
		var evt ServerEvent
		require.NoError(t, connA.ReadJSON(&evt))
		assert.Equal(t, "error", evt.Type)
	})

	t.Run("disconnect deactivates membership", func(t *testing.T) {
		require.NoError(t, connB.Close())
		require.Eventually(t, func() bool {
			return !activeMembership(t, roomID, b.FounderID)
		}, 3*time.Second, 20*time.Millisecond)
		assert.True(t, activeMembership(t, roomID, a.FounderID))
	})

	t.Run("membership lasts until the founder's last socket closes", func(t *testing.T) {
		connA2, _, err := dialWS(t, srv, fmt.Sprintf("/ws/rooms/%d?token=%s", roomID, a.Token))
		require.NoError(t, err)
		require.Eventually(t, func() bool { return roomHub.count(roomID) == 2 }, 2*time.Second, 10*time.Millisecond)

		require.NoError(t, connA2.Close())
		require.Eventually(t, func() bool { return roomHub.count(roomID) == 1 }, 3*time.Second, 20*time.Millisecond)
		assert.Never(t, func() bool {
			return !activeMembership(t, roomID, a.FounderID)
		}, 300*time.Millisecond, 20*time.Millisecond)

		require.NoError(t, connA.Close())
		require.Eventually(t, func() bool {
			return !activeMembership(t, roomID, a.FounderID)
		}, 3*time.Second, 20*time.Millisecond)
	})
}
