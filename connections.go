package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strings"
	"time"
)

const (
	statusPending  = "pending"
	statusAccepted = "accepted"
	statusRejected = "rejected"
)

type connectionResp struct {
	ID                 int             `json:"id"`
	FromFounder        int             `json:"from_founder"`
	ToFounder          int             `json:"to_founder"`
	FromFounderDetails *FounderSummary `json:"from_founder_details"`
	ToFounderDetails   *FounderSummary `json:"to_founder_details"`
	Status             string          `json:"status"`
	Message            string          `json:"message"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// GET /api/connections
func listConnectionsHandler(db *sql.DB) http.HandlerFunc {
	return authenticate(func(w http.ResponseWriter, r *http.Request) {
		me, err := currentFounderID(r.Context(), db, userIDFromContext(r.Context()))
		if errors.Is(err, errNoProfile) {
			writeError(w, http.StatusBadRequest, "profile_required")
			return
		} else if err != nil {
			writeServerError(w, r, "db_error", err)
			return
		}

		rows, err := db.QueryContext(r.Context(), `
			SELECT id, from_founder_id, to_founder_id, status, message, created_at, updated_at
			FROM founder_connections
			WHERE from_founder_id = $1 OR to_founder_id = $1
			ORDER BY created_at DESC, id DESC
		`, me)
		if err != nil {
			writeServerError(w, r, "db_error", err)
			return
		}
		defer rows.Close()

		conns := make([]connectionResp, 0, 16)
		var ids []int
		for rows.Next() {
			var c connectionResp
			if err := rows.Scan(&c.ID, &c.FromFounder, &c.ToFounder, &c.Status, &c.Message, &c.CreatedAt, &c.UpdatedAt); err != nil {
				writeServerError(w, r, "db_error", err)
				return
			}
			conns = append(conns, c)
			ids = append(ids, c.FromFounder, c.ToFounder)
		}
		if err := rows.Err(); err != nil {
			writeServerError(w, r, "db_error", err)
			return
		}

		summaries, err := founderSummaries(r.Context(), db, ids)
		if err != nil {
			writeServerError(w, r, "db_error", err)
			return
		}
		for i := range conns {
			conns[i].FromFounderDetails = summaries[conns[i].FromFounder]
			conns[i].ToFounderDetails = summaries[conns[i].ToFounder]
		}
		writeJSON(w, http.StatusOK, conns)
	})
}

type connectionStateResp struct {
	State        string `json:"state"`
	ConnectionID int    `json:"connection_id"`
}

// POST /api/connections
// Creates a pending request from the caller to to_founder.
// If the other side had already requested, we auto-accept.
func requestConnectionHandler(db *sql.DB) http.HandlerFunc {
	return authenticate(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ToFounder int    `json:"to_founder"`
			Message   string `json:"message"`
		}
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_json")
			return
		}

		me, err := currentFounderID(r.Context(), db, userIDFromContext(r.Context()))
		if errors.Is(err, errNoProfile) {
			writeError(w, http.StatusBadRequest, "profile_required")
			return
		} else if err != nil {
			writeServerError(w, r, "db_error", err)
			return
		}
		if req.ToFounder == me {
			writeError(w, http.StatusBadRequest, "invalid_target")
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

		resp, created, err := openConnection(r.Context(), db, me, req.ToFounder, req.Message)
		if errors.Is(err, errConnectionRejected) {
			writeError(w, http.StatusConflict, "invalid_state")
			return
		} else if err != nil {
			writeServerError(w, r, "db_error", err)
			return
		}
		status := http.StatusOK
		if created {
			status = http.StatusCreated
		}
		writeJSON(w, status, resp)
	})
}

var errConnectionRejected = errors.New("connection was rejected")

// openConnection sends from's request to to, or accepts to's pending
// request when one exists. created reports whether a new row was inserted.
// Two opposite requests racing on an empty pair collide on the pair index;
// the loser retries once and then sees the winner's row.
func openConnection(ctx context.Context, db *sql.DB, from, to int, message string) (connectionStateResp, bool, error) {
	resp, created, err := openConnectionTx(ctx, db, from, to, message)
	if isUniqueViolation(err) {
		resp, created, err = openConnectionTx(ctx, db, from, to, message)
	}
	return resp, created, err
}

func openConnectionTx(ctx context.Context, db *sql.DB, from, to int, message string) (connectionStateResp, bool, error) {
	var resp connectionStateResp
	created := false

	err := withTx(ctx, db, func(tx *sql.Tx) error {
		row, err := loadPairForUpdate(tx, from, to)
		if err != nil {
			return err
		}

		if row == nil {
			if err := tx.QueryRow(`
				INSERT INTO founder_connections (from_founder_id, to_founder_id, status, message)
				VALUES ($1, $2, 'pending', $3)
				RETURNING id
			`, from, to, strings.TrimSpace(message)).Scan(&resp.ConnectionID); err != nil {
				return err
			}
			resp.State = statusPending
			created = true
			return nil
		}

		resp.ConnectionID = row.ID
		switch row.Status {
		case statusPending:
			// They asked first: accept regardless of who calls now.
			if row.FromFounderID == to {
				if _, err := tx.Exec(`
					UPDATE founder_connections SET status = 'accepted', updated_at = NOW() WHERE id = $1
				`, row.ID); err != nil {
					return err
				}
				resp.State = statusAccepted
				return nil
			}
			resp.State = statusPending
			return nil
		case statusAccepted:
			resp.State = statusAccepted
			return nil
		default:
			return errConnectionRejected
		}
	})
	return resp, created, err
}

// POST /api/connections/{id}/accept and /reject
// Only the addressee may decide, only while pending. Repeating the same
// decision echoes the state.
func respondConnectionHandler(db *sql.DB, decision string) http.HandlerFunc {
	return authenticate(func(w http.ResponseWriter, r *http.Request) {
		connID, ok := pathID(r, "id")
		if !ok {
			writeError(w, http.StatusNotFound, "not_found")
			return
		}
		me, err := currentFounderID(r.Context(), db, userIDFromContext(r.Context()))
		if errors.Is(err, errNoProfile) {
			writeError(w, http.StatusBadRequest, "profile_required")
			return
		} else if err != nil {
			writeServerError(w, r, "db_error", err)
			return
		}

		resp := connectionStateResp{ConnectionID: connID}
		wroteErr := false

		err = withTx(r.Context(), db, func(tx *sql.Tx) error {
			var c ConnectionRow
			err := tx.QueryRow(`
				SELECT id, from_founder_id, to_founder_id, status
				FROM founder_connections
				WHERE id = $1
				FOR UPDATE
			`, connID).Scan(&c.ID, &c.FromFounderID, &c.ToFounderID, &c.Status)
			if errors.Is(err, sql.ErrNoRows) {
				writeError(w, http.StatusNotFound, "not_found")
				wroteErr = true
				return nil
			} else if err != nil {
				return err
			}

			if c.ToFounderID != me {
				writeError(w, http.StatusForbidden, "not_authorized")
				wroteErr = true
				return nil
			}

			switch c.Status {
			case statusPending:
				if _, err := tx.Exec(`
					UPDATE founder_connections SET status = $2, updated_at = NOW() WHERE id = $1
				`, c.ID, decision); err != nil {
					return err
				}
				resp.State = decision
				return nil
			case decision:
				resp.State = decision
				return nil
			default:
				writeError(w, http.StatusConflict, "invalid_state")
				wroteErr = true
				return nil
			}
		})
		if err != nil {
			writeServerError(w, r, "db_error", err)
			return
		}
		if wroteErr {
			return
		}
		writeJSON(w, http.StatusOK, resp)
	})
}
