package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/lib/pq"
)

// errNoProfile means the authenticated user has not created a founder profile yet.
var errNoProfile = errors.New("founder profile required")

// --- Response helpers ---
func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		_ = json.NewEncoder(w).Encode(payload)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeServerError logs err once and answers with a generic 500.
func writeServerError(w http.ResponseWriter, r *http.Request, code string, err error) {
	logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "code", code, "err", err)
	writeError(w, http.StatusInternalServerError, code)
}

func decodeJSON(r *http.Request, dst any) error {
	return json.NewDecoder(r.Body).Decode(dst)
}

// pathID parses a numeric path wildcard such as {id}.
func pathID(r *http.Request, name string) (int, bool) {
	id, err := strconv.Atoi(r.PathValue(name))
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

func violatedConstraint(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Constraint
	}
	return ""
}

// withTx wraps a function in a database transaction.
// - Ensures COMMIT on success, ROLLBACK on errors or panics.
func withTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// ConnectionRow is one founder_connections row.
type ConnectionRow struct {
	ID            int
	FromFounderID int // requester
	ToFounderID   int // addressee
	Status        string
	Message       string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// loadPairForUpdate returns the connection row between two founders in
// either direction and locks it until the transaction ends.
// Returns (nil, nil) when the pair has no row yet.
func loadPairForUpdate(tx *sql.Tx, a, b int) (*ConnectionRow, error) {
	row := tx.QueryRow(`
		SELECT id, from_founder_id, to_founder_id, status, message, created_at, updated_at
		FROM founder_connections
		WHERE (from_founder_id = $1 AND to_founder_id = $2)
		   OR (from_founder_id = $2 AND to_founder_id = $1)
		ORDER BY updated_at DESC, id DESC
		LIMIT 1
		FOR UPDATE
	`, a, b)

	var c ConnectionRow
	if err := row.Scan(&c.ID, &c.FromFounderID, &c.ToFounderID, &c.Status, &c.Message, &c.CreatedAt, &c.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}
