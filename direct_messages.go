package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strings"
	"time"
)

// DirectMessage is one direct_messages row.
type DirectMessage struct {
	ID                 int             `json:"id"`
	FromFounder        int             `json:"from_founder"`
	ToFounder          int             `json:"to_founder"`
	FromFounderDetails *FounderSummary `json:"from_founder_details,omitempty"`
	ToFounderDetails   *FounderSummary `json:"to_founder_details,omitempty"`
	Content            string          `json:"content"`
	Read               bool            `json:"read"`
	CreatedAt          time.Time       `json:"created_at"`
}

func scanDirectMessages(rows *sql.Rows) ([]*DirectMessage, error) {
	defer rows.Close()
	msgs := make([]*DirectMessage, 0, 32)
	for rows.Next() {
		var m DirectMessage
		if err := rows.Scan(&m.ID, &m.FromFounder, &m.ToFounder, &m.Content, &m.Read, &m.CreatedAt); err != nil {
			return nil, err
		}
		msgs = append(msgs, &m)
	}
	return msgs, rows.Err()
}

// attachDetails fills in sender and recipient summaries through the loader.
func attachDetails(ctx context.Context, db *sql.DB, msgs []*DirectMessage) error {
	ids := make([]int, 0, 2*len(msgs))
	for _, m := range msgs {
		ids = append(ids, m.FromFounder, m.ToFounder)
	}
	summaries, err := founderSummaries(ctx, db, ids)
	if err != nil {
		return err
	}
	for _, m := range msgs {
		m.FromFounderDetails = summaries[m.FromFounder]
		m.ToFounderDetails = summaries[m.ToFounder]
	}
	return nil
}

// GET /api/messages
func listMessagesHandler(db *sql.DB) http.HandlerFunc {
	return authenticate(func(w http.ResponseWriter, r *http.Request) {
		me := requireFounderID(w, r, db)
		if me == 0 {
			return
		}

		rows, err := db.QueryContext(r.Context(), `
			SELECT id, from_founder_id, to_founder_id, content, read, created_at
			FROM direct_messages
			WHERE from_founder_id = $1 OR to_founder_id = $1
			ORDER BY created_at DESC, id DESC
		`, me)
		if err != nil {
			writeServerError(w, r, "db_error", err)
			return
		}
		msgs, err := scanDirectMessages(rows)
		if err != nil {
			writeServerError(w, r, "db_error", err)
			return
		}
		if err := attachDetails(r.Context(), db, msgs); err != nil {
			writeServerError(w, r, "db_error", err)
			return
		}
		writeJSON(w, http.StatusOK, msgs)
	})
}

// POST /api/messages
func sendMessageHandler(db *sql.DB) http.HandlerFunc {
	return authenticate(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ToFounder int    `json:"to_founder"`
			Content   string `json:"content"`
		}
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_json")
			return
		}
		me := requireFounderID(w, r, db)
		if me == 0 {
			return
		}

		content := strings.TrimSpace(req.Content)
		if req.ToFounder <= 0 || content == "" {
			writeError(w, http.StatusBadRequest, "missing_fields")
			return
		}
		exists, err := founderExists(r.Context(), db, req.ToFounder)
		if err != nil {
			writeServerError(w, r, "db_error", err)
			return
		}
		if !exists {
			writeError(w, http.StatusNotFound, "founder_not_found")
			return
		}

		m := DirectMessage{FromFounder: me, ToFounder: req.ToFounder, Content: content}
		if err := db.QueryRowContext(r.Context(), `
			INSERT INTO direct_messages (from_founder_id, to_founder_id, content)
			VALUES ($1, $2, $3)
			RETURNING id, read, created_at
		`, me, req.ToFounder, content).Scan(&m.ID, &m.Read, &m.CreatedAt); err != nil {
			writeServerError(w, r, "db_error", err)
			return
		}

		// Push to the recipient and echo to the sender's other sockets.
		evt := ServerEvent{Type: "direct_message", Data: m}
		messageHub.broadcast(m.ToFounder, evt)
		messageHub.broadcast(m.FromFounder, evt)

		writeJSON(w, http.StatusCreated, m)
	})
}

// GET /api/messages/conversation/{id}
// Both directions oldest first. The peer's messages to me become read.
func conversationHandler(db *sql.DB) http.HandlerFunc {
	return authenticate(func(w http.ResponseWriter, r *http.Request) {
		peer, ok := pathID(r, "id")
		if !ok {
			writeError(w, http.StatusNotFound, "founder_not_found")
			return
		}
		me := requireFounderID(w, r, db)
		if me == 0 {
			return
		}
		exists, err := founderExists(r.Context(), db, peer)
		if err != nil {
			writeServerError(w, r, "db_error", err)
			return
		}
		if !exists {
			writeError(w, http.StatusNotFound, "founder_not_found")
			return
		}

		rows, err := db.QueryContext(r.Context(), `
			SELECT id, from_founder_id, to_founder_id, content, read, created_at
			FROM direct_messages
			WHERE (from_founder_id = $1 AND to_founder_id = $2)
			   OR (from_founder_id = $2 AND to_founder_id = $1)
			ORDER BY created_at ASC, id ASC
		`, me, peer)
		if err != nil {
			writeServerError(w, r, "db_error", err)
			return
		}
		msgs, err := scanDirectMessages(rows)
		if err != nil {
			writeServerError(w, r, "db_error", err)
			return
		}

		// The listing shows the state before this read, as the sender saw it.
		if _, err := db.ExecContext(r.Context(), `
			UPDATE direct_messages SET read = TRUE
			WHERE from_founder_id = $1 AND to_founder_id = $2 AND read = FALSE
		`, peer, me); err != nil {
			writeServerError(w, r, "db_error", err)
			return
		}
		writeJSON(w, http.StatusOK, msgs)
	})
}

// ConversationSummary is one row of the inbox overview.
type ConversationSummary struct {
	FounderID       int        `json:"founder_id"`
	Name            string     `json:"name"`
	ProfileImageURL *string    `json:"profile_image_url,omitempty"`
	LastMessageAt   *time.Time `json:"last_message_at,omitempty"`
	UnreadMessages  int        `json:"unread_messages"`
	IsOnline        bool       `json:"is_online"`
}

// GET /api/messages/summary
// One row per peer I have exchanged messages with, latest activity first.
func messageSummaryHandler(db *sql.DB) http.HandlerFunc {
	return authenticate(func(w http.ResponseWriter, r *http.Request) {
		me := requireFounderID(w, r, db)
		if me == 0 {
			return
		}

		// 1) peers = every founder on the other side of a message
		// 2) per peer: latest message time and unread count addressed to me
		const q = `
WITH peers AS (
  SELECT CASE WHEN m.from_founder_id = $1 THEN m.to_founder_id ELSE m.from_founder_id END AS peer_id,
         m.created_at,
         (m.to_founder_id = $1 AND m.read = FALSE) AS unread
  FROM direct_messages m
  WHERE m.from_founder_id = $1 OR m.to_founder_id = $1
)
SELECT f.id, f.name, f.profile_image, MAX(p.created_at), COUNT(*) FILTER (WHERE p.unread), f.is_online
FROM peers p
JOIN founder_profiles f ON f.id = p.peer_id
GROUP BY f.id, f.name, f.profile_image, f.is_online
ORDER BY MAX(p.created_at) DESC, f.id ASC`

		rows, err := db.QueryContext(r.Context(), q, me)
		if err != nil {
			writeServerError(w, r, "db_error", err)
			return
		}
		defer rows.Close()

		summaries := make([]ConversationSummary, 0, 16)
		for rows.Next() {
			var s ConversationSummary
			var image sql.NullString
			var last time.Time
			if err := rows.Scan(&s.FounderID, &s.Name, &image, &last, &s.UnreadMessages, &s.IsOnline); err != nil {
				writeServerError(w, r, "db_error", err)
				return
			}
			s.LastMessageAt = &last
			if image.Valid && image.String != "" {
				url := founderImageURL(s.FounderID)
				s.ProfileImageURL = &url
			}
			summaries = append(summaries, s)
		}
		if err := rows.Err(); err != nil {
			writeServerError(w, r, "db_error", err)
			return
		}
		writeJSON(w, http.StatusOK, summaries)
	})
}

// GET /ws/messages?token=
// Receive-only feed of direct messages for the caller.
func wsMessagesHandler(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := getUserIDFromRequest(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized")
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

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Warn("message websocket upgrade failed", "founder_id", founderID, "err", err)
			return
		}

		ctx := context.WithoutCancel(r.Context())
		if err := setFounderOnline(ctx, db, founderID, true); err != nil {
			logger.Warn("cannot mark founder online", "founder_id", founderID, "err", err)
		}

		client := newClient(founderID, founderID, conn)
		client.heartbeat = presenceHeartbeat(ctx, db, founderID)
		messageHub.register(client)
		client.trySend(ServerEvent{Type: "info", Data: "connected"})

		go clientWriter(client)
		readLoop(client, nil)

		messageHub.unregister(client)
		close(client.send)
	}
}
