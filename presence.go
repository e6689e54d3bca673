package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"time"
)

// setOnline flips is_online for the user's founder profile and bumps
// last_active.
func setOnline(ctx context.Context, db *sql.DB, userID int, online bool) error {
	res, err := db.ExecContext(ctx, `
		UPDATE founder_profiles
		SET is_online = $2, last_active = NOW()
		WHERE user_id = $1
	`, userID, online)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errNoProfile
	}
	return nil
}

func setFounderOnline(ctx context.Context, db *sql.DB, founderID int, online bool) error {
	_, err := db.ExecContext(ctx, `
		UPDATE founder_profiles
		SET is_online = $2, last_active = NOW()
		WHERE id = $1
	`, founderID, online)
	return err
}

// presenceHeartbeat keeps a connected founder's last_active fresh so the
// sweeper does not mark them offline while a socket is open.
func presenceHeartbeat(ctx context.Context, db *sql.DB, founderID int) func() {
	return func() {
		if err := setFounderOnline(ctx, db, founderID, true); err != nil {
			logger.Warn("cannot refresh presence", "founder_id", founderID, "err", err)
		}
	}
}

// POST /api/founders/me/ping
func pingHandler(db *sql.DB) http.HandlerFunc {
	return authenticate(func(w http.ResponseWriter, r *http.Request) {
		err := setOnline(r.Context(), db, userIDFromContext(r.Context()), true)
		if errors.Is(err, errNoProfile) {
			writeError(w, http.StatusBadRequest, "profile_required")
			return
		} else if err != nil {
			writeServerError(w, r, "db_error", err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
}

// sweepStalePresence marks founders offline when they have not been active
// within ttl.
func sweepStalePresence(ctx context.Context, db *sql.DB, ttl time.Duration) (int64, error) {
	res, err := db.ExecContext(ctx, `
		UPDATE founder_profiles
		SET is_online = FALSE
		WHERE is_online = TRUE
		  AND last_active < NOW() - make_interval(secs => $1)
	`, ttl.Seconds())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
