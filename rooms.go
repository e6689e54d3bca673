package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const roomMessageHistory = 50

type Room struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	Emoji       string `json:"emoji"`
	Description string `json:"description"`
	IsActive    bool   `json:"is_active"`
	MaxMembers  int    `json:"max_members"`
	MemberCount int    `json:"member_count"`
}

type roomSender struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

type RoomMessage struct {
	ID        int        `json:"id"`
	Sender    roomSender `json:"sender"`
	Content   string     `json:"content"`
	CreatedAt time.Time  `json:"created_at"`
}

// roomChatFrame is both the inbound and the broadcast websocket frame.
type roomChatFrame struct {
	Type      string      `json:"type"`
	Message   string      `json:"message"`
	Sender    *roomSender `json:"sender,omitempty"`
	Timestamp *time.Time  `json:"timestamp,omitempty"`
	ID        int         `json:"id,omitempty"`
}

var errRoomNotFound = errors.New("room not found")
var errRoomFull = errors.New("room full")

// GET /api/rooms
func listRoomsHandler(db *sql.DB) http.HandlerFunc {
	return authenticate(func(w http.ResponseWriter, r *http.Request) {
		rows, err := db.QueryContext(r.Context(), `
			SELECT r.id, r.name, r.emoji, r.description, r.is_active, r.max_members,
			       (SELECT COUNT(*) FROM room_memberships m WHERE m.room_id = r.id AND m.is_active)
			FROM coworking_rooms r
			WHERE r.is_active
			ORDER BY r.id
		`)
		if err != nil {
			writeServerError(w, r, "db_error", err)
			return
		}
		defer rows.Close()

		rooms := make([]Room, 0, 8)
		for rows.Next() {
			var rm Room
			if err := rows.Scan(&rm.ID, &rm.Name, &rm.Emoji, &rm.Description, &rm.IsActive, &rm.MaxMembers, &rm.MemberCount); err != nil {
				writeServerError(w, r, "db_error", err)
				return
			}
			rooms = append(rooms, rm)
		}
		if err := rows.Err(); err != nil {
			writeServerError(w, r, "db_error", err)
			return
		}
		writeJSON(w, http.StatusOK, rooms)
	})
}

// joinRoom creates or reactivates the membership. The room row is locked so
// concurrent joins cannot overshoot max_members.
func joinRoom(ctx context.Context, db *sql.DB, roomID, founderID int) (string, error) {
	var name string
	err := withTx(ctx, db, func(tx *sql.Tx) error {
		var maxMembers int
		err := tx.QueryRowContext(ctx, `
			SELECT name, max_members FROM coworking_rooms WHERE id = $1 AND is_active FOR UPDATE
		`, roomID).Scan(&name, &maxMembers)
		if errors.Is(err, sql.ErrNoRows) {
			return errRoomNotFound
		} else if err != nil {
			return err
		}

		var already bool
		var active int
		if err := tx.QueryRowContext(ctx, `
			SELECT
				EXISTS (SELECT 1 FROM room_memberships WHERE room_id = $1 AND founder_id = $2 AND is_active),
				(SELECT COUNT(*) FROM room_memberships WHERE room_id = $1 AND is_active)
		`, roomID, founderID).Scan(&already, &active); err != nil {
			return err
		}
		if already {
			_, err := tx.ExecContext(ctx, `
				UPDATE room_memberships SET last_active = NOW() WHERE room_id = $1 AND founder_id = $2
			`, roomID, founderID)
			return err
		}
		if active >= maxMembers {
			return errRoomFull
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO room_memberships (room_id, founder_id, is_active)
			VALUES ($1, $2, TRUE)
			ON CONFLICT (room_id, founder_id) DO UPDATE
			SET is_active = TRUE, last_active = NOW()
		`, roomID, founderID)
		return err
	})
	return name, err
}

func leaveRoom(ctx context.Context, db *sql.DB, roomID, founderID int) error {
	_, err := db.ExecContext(ctx, `
		UPDATE room_memberships SET is_active = FALSE, last_active = NOW()
		WHERE room_id = $1 AND founder_id = $2
	`, roomID, founderID)
	return err
}

func roomExists(ctx context.Context, db *sql.DB, roomID int) (bool, error) {
	var exists bool
	err := db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM coworking_rooms WHERE id = $1)`, roomID).Scan(&exists)
	return exists, err
}

// POST /api/rooms/{id}/join
func joinRoomHandler(db *sql.DB) http.HandlerFunc {
	return authenticate(func(w http.ResponseWriter, r *http.Request) {
		roomID, ok := pathID(r, "id")
		if !ok {
			writeError(w, http.StatusNotFound, "room_not_found")
			return
		}
		me := requireFounderID(w, r, db)
		if me == 0 {
			return
		}

		name, err := joinRoom(r.Context(), db, roomID, me)
		switch {
		case errors.Is(err, errRoomNotFound):
			writeError(w, http.StatusNotFound, "room_not_found")
			return
		case errors.Is(err, errRoomFull):
			writeError(w, http.StatusConflict, "room_full")
			return
		case err != nil:
			writeServerError(w, r, "db_error", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"status":    "joined",
			"room_id":   roomID,
			"room_name": name,
		})
	})
}

// POST /api/rooms/{id}/leave
func leaveRoomHandler(db *sql.DB) http.HandlerFunc {
	return authenticate(func(w http.ResponseWriter, r *http.Request) {
		roomID, ok := pathID(r, "id")
		if !ok {
			writeError(w, http.StatusNotFound, "room_not_found")
			return
		}
		me := requireFounderID(w, r, db)
		if me == 0 {
			return
		}
		exists, err := roomExists(r.Context(), db, roomID)
		if err != nil {
			writeServerError(w, r, "db_error", err)
			return
		}
		if !exists {
			writeError(w, http.StatusNotFound, "room_not_found")
			return
		}
		if err := leaveRoom(r.Context(), db, roomID, me); err != nil {
			writeServerError(w, r, "db_error", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "left", "room_id": roomID})
	})
}

// GET /api/rooms/{id}/messages
// Latest messages, oldest first.
func roomMessagesHandler(db *sql.DB) http.HandlerFunc {
	return authenticate(func(w http.ResponseWriter, r *http.Request) {
		roomID, ok := pathID(r, "id")
		if !ok {
			writeError(w, http.StatusNotFound, "room_not_found")
			return
		}
		exists, err := roomExists(r.Context(), db, roomID)
		if err != nil {
			writeServerError(w, r, "db_error", err)
			return
		}
		if !exists {
			writeError(w, http.StatusNotFound, "room_not_found")
			return
		}

		rows, err := db.QueryContext(r.Context(), `
			SELECT id, sender_id, content, created_at FROM (
				SELECT id, sender_id, content, created_at
				FROM room_messages
				WHERE room_id = $1
				ORDER BY created_at DESC, id DESC
				LIMIT $2
			) latest
			ORDER BY created_at ASC, id ASC
		`, roomID, roomMessageHistory)
		if err != nil {
			writeServerError(w, r, "db_error", err)
			return
		}
		defer rows.Close()

		msgs := make([]RoomMessage, 0, roomMessageHistory)
		var senders []int
		for rows.Next() {
			var m RoomMessage
			if err := rows.Scan(&m.ID, &m.Sender.ID, &m.Content, &m.CreatedAt); err != nil {
				writeServerError(w, r, "db_error", err)
				return
			}
			msgs = append(msgs, m)
			senders = append(senders, m.Sender.ID)
		}
		if err := rows.Err(); err != nil {
			writeServerError(w, r, "db_error", err)
			return
		}

		summaries, err := founderSummaries(r.Context(), db, senders)
		if err != nil {
			writeServerError(w, r, "db_error", err)
			return
		}
		for i := range msgs {
			if s := summaries[msgs[i].Sender.ID]; s != nil {
				msgs[i].Sender.Name = s.Name
			}
		}
		writeJSON(w, http.StatusOK, msgs)
	})
}

// saveRoomMessage persists a message and returns it with the sender's name.
func saveRoomMessage(ctx context.Context, db *sql.DB, roomID, founderID int, content string) (*RoomMessage, error) {
	m := RoomMessage{Sender: roomSender{ID: founderID}, Content: content}
	err := db.QueryRowContext(ctx, `
		WITH ins AS (
			INSERT INTO room_messages (room_id, sender_id, content)
			VALUES ($1, $2, $3)
			RETURNING id, created_at
		)
		SELECT ins.id, ins.created_at, f.name
		FROM ins, founder_profiles f
		WHERE f.id = $2
	`, roomID, founderID, content).Scan(&m.ID, &m.CreatedAt, &m.Sender.Name)
	if err != nil {
		return nil, fmt.Errorf("save room message: %w", err)
	}
	return &m, nil
}

func (m *RoomMessage) frame() roomChatFrame {
	sender := m.Sender
	ts := m.CreatedAt
	return roomChatFrame{
		Type:      "chat_message",
		Message:   m.Content,
		Sender:    &sender,
		Timestamp: &ts,
		ID:        m.ID,
	}
}

// POST /api/rooms/{id}/send_message
func sendRoomMessageHandler(db *sql.DB) http.HandlerFunc {
	return authenticate(func(w http.ResponseWriter, r *http.Request) {
		roomID, ok := pathID(r, "id")
		if !ok {
			writeError(w, http.StatusNotFound, "room_not_found")
			return
		}
		var req struct {
			Content string `json:"content"`
		}
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_json")
			return
		}
		me := requireFounderID(w, r, db)
		if me == 0 {
			return
		}
		exists, err := roomExists(r.Context(), db, roomID)
		if err != nil {
			writeServerError(w, r, "db_error", err)
			return
		}
		if !exists {
			writeError(w, http.StatusNotFound, "room_not_found")
			return
		}
		content := strings.TrimSpace(req.Content)
		if content == "" {
			writeError(w, http.StatusBadRequest, "content_required")
			return
		}

		msg, err := saveRoomMessage(r.Context(), db, roomID, me, content)
		if err != nil {
			writeServerError(w, r, "db_error", err)
			return
		}
		roomHub.broadcast(roomID, msg.frame())
		writeJSON(w, http.StatusCreated, msg)
	})
}

// GET /ws/rooms/{id}?token=
func wsRoomHandler(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := getUserIDFromRequest(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		roomID, ok := pathID(r, "id")
		if !ok {
			writeError(w, http.StatusNotFound, "room_not_found")
			return
		}
		founderID, err := currentFounderID(r.Context(), db, userID)
		if errors.Is(err, errNoProfile) {
			writeError(w, http.StatusBadRequest, "profile_required")
			return
		} else if err != nil {
			writeServerError(w, r, "db_error", err)
			return
		}

		if _, err := joinRoom(r.Context(), db, roomID, founderID); errors.Is(err, errRoomNotFound) {
			writeError(w, http.StatusNotFound, "room_not_found")
			return
		} else if errors.Is(err, errRoomFull) {
			writeError(w, http.StatusConflict, "room_full")
			return
		} else if err != nil {
			writeServerError(w, r, "db_error", err)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Warn("room websocket upgrade failed", "room_id", roomID, "founder_id", founderID, "err", err)
			return
		}

		// The request context dies with the upgrade; socket work uses its own.
		ctx := context.WithoutCancel(r.Context())
		if err := setFounderOnline(ctx, db, founderID, true); err != nil {
			logger.Warn("cannot mark founder online", "founder_id", founderID, "err", err)
		}

		client := newClient(roomID, founderID, conn)
		client.heartbeat = presenceHeartbeat(ctx, db, founderID)
		roomHub.register(client)
		logger.Debug("room websocket connected", "room_id", roomID, "founder_id", founderID, "clients", roomHub.count(roomID))

		go clientWriter(client)
		readLoop(client, func(payload []byte) {
			handleRoomFrame(ctx, db, client, payload)
		})

		last := roomHub.unregister(client)
		close(client.send)
		if !last {
			return
		}
		if err := leaveRoom(ctx, db, roomID, founderID); err != nil {
			logger.Warn("cannot deactivate room membership", "room_id", roomID, "founder_id", founderID, "err", err)
		}
	}
}

func handleRoomFrame(ctx context.Context, db *sql.DB, c *Client, payload []byte) {
	var in roomChatFrame
	if err := json.Unmarshal(payload, &in); err != nil {
		c.trySend(ServerEvent{Type: "error", Data: "invalid message format"})
		return
	}
	switch in.Type {
	case "chat_message":
		content := strings.TrimSpace(in.Message)
		if content == "" {
			c.trySend(ServerEvent{Type: "error", Data: "content_required"})
			return
		}
		msg, err := saveRoomMessage(ctx, db, c.key, c.founderID, content)
		if err != nil {
			logger.Error("room message not saved", "room_id", c.key, "founder_id", c.founderID, "err", err)
			c.trySend(ServerEvent{Type: "error", Data: "cannot send message"})
			return
		}
		roomHub.broadcast(c.key, msg.frame())
	default:
		c.trySend(ServerEvent{Type: "error", Data: "unknown message type"})
	}
}
